package core

import (
	"context"
	"time"

	"pkt.systems/loom/internal/persist"
	"pkt.systems/loom/schema"
)

// RestoreSession rebuilds windows, tabs and groups from storage. Tabs idle
// beyond the archive threshold are discarded; everything else comes back
// asleep, in persisted order, with no activation slot populated. Saved
// window geometry is consumed and wiped so a crash before the next save
// cannot replay stale geometry.
func (e *Engine) RestoreSession(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	records, err := e.store.LoadTabs(ctx)
	if err != nil {
		return err
	}
	groupRecords, err := e.store.LoadGroups(ctx)
	if err != nil {
		return err
	}
	geometry, err := e.store.LoadGeometry(ctx)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-e.cfg.ArchiveThreshold)
	var live []persist.TabRecord
	for _, rec := range records {
		if rec.LastActiveAt.Before(cutoff) {
			e.log.Info("discarding archived tab at restore", "uid", rec.UID, "last_active", rec.LastActiveAt)
			if derr := e.store.DeleteTab(ctx, rec.UID); derr != nil {
				e.log.Warn("archived tab delete failed", "uid", rec.UID, "error", derr)
			}
			continue
		}
		live = append(live, rec)
	}

	// One window per persisted window group, in row order.
	var order []schema.WindowGroupID
	byGroup := make(map[schema.WindowGroupID][]persist.TabRecord)
	for _, rec := range live {
		if _, seen := byGroup[rec.WindowGroupID]; !seen {
			order = append(order, rec.WindowGroupID)
		}
		byGroup[rec.WindowGroupID] = append(byGroup[rec.WindowGroupID], rec)
	}
	windows := make(map[schema.WindowGroupID]Window, len(order))
	for _, windowGroupID := range order {
		geo, ok := geometry[windowGroupID]
		if !ok {
			geo = e.cfg.DefaultGeometry
		}
		window, werr := e.windows.CreateWindow(ctx, CreateWindowRequest{GroupID: windowGroupID, Geometry: geo})
		if werr != nil {
			e.log.Warn("window restore failed, tabs stay persisted", "window_group", windowGroupID, "error", werr)
			continue
		}
		windows[windowGroupID] = window
	}

	e.mu.Lock()
	e.beginLocked()
	now := time.Now().UTC()
	byUID := make(map[schema.TabUID]*Tab, len(live))
	for _, windowGroupID := range order {
		window, ok := windows[windowGroupID]
		if !ok {
			continue
		}
		for _, rec := range byGroup[windowGroupID] {
			tab := &Tab{
				id:            e.allocTabIDLocked(),
				uid:           rec.UID,
				profileID:     rec.ProfileID,
				spaceID:       rec.SpaceID,
				windowID:      window.ID(),
				windowGroupID: window.GroupID(),
				position:      rec.Position,
				title:         rec.Title,
				url:           rec.URL,
				faviconURL:    rec.FaviconURL,
				muted:         rec.Muted,
				asleep:        true,
				createdAt:     rec.CreatedAt,
				lastActiveAt:  rec.LastActiveAt,
				navHistory:    rec.NavHistory,
				navIndex:      rec.NavIndex,
				preSleep: &sleepSnapshot{
					url:      rec.URL,
					history:  rec.NavHistory,
					index:    rec.NavIndex,
					captured: now,
				},
			}
			e.tabs[tab.id] = tab
			e.tabsByUID[tab.uid] = tab
			byUID[tab.uid] = tab
			e.emitTabLocked(schema.TabEventCreated, tab)
		}
	}

	for _, rec := range groupRecords {
		e.restoreGroupLocked(ctx, rec, byUID)
	}
	fx := e.endLocked()
	e.mu.Unlock()
	e.deliver(ctx, fx)

	if werr := e.store.WipeGeometry(ctx); werr != nil {
		e.log.Warn("geometry wipe failed", "error", werr)
	}
	e.log.Info("session restored", "windows", len(windows), "tabs", len(byUID), "groups", len(groupRecords))
	return nil
}

// restoreGroupLocked reattaches a persisted group to the restored tabs it
// can still find. Fewer than two surviving members dissolves the record.
func (e *Engine) restoreGroupLocked(ctx context.Context, rec persist.GroupRecord, byUID map[schema.TabUID]*Tab) {
	var members []*Tab
	for _, uid := range rec.MemberUIDs {
		if tab, ok := byUID[uid]; ok && tab.group == nil {
			members = append(members, tab)
		}
	}
	if len(members) < 2 {
		e.persistLocked(func(ctx context.Context) {
			if err := e.store.DeleteGroup(ctx, rec.ID); err != nil {
				e.log.Warn("stale group delete failed", "group", rec.ID, "error", err)
			}
		})
		return
	}
	group := &TabGroup{
		id:       rec.ID,
		mode:     rec.Mode,
		windowID: members[0].windowID,
		spaceID:  members[0].spaceID,
	}
	for _, member := range members {
		// Members landing in a different slot than the group anchor move
		// back into it so the group stays coherent.
		e.moveToSlotLocked(ctx, member, group.slot(), members[0].windowGroupID)
		group.attach(member)
	}
	group.front = members[0]
	if tab, ok := byUID[rec.FrontUID]; ok && group.contains(tab) {
		group.front = tab
	}
	e.groups[group.id] = group
	e.emitGroupLocked(schema.GroupEventCreated, group)
}
