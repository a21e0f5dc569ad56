package core

import (
	"context"

	"pkt.systems/loom/internal/logx"
	"pkt.systems/loom/schema"
)

// CreateTabGroup composes existing live tabs into a glance or split group.
// Members already in other groups leave them first; members in other
// window+space slots move to the first member's slot. The first member
// becomes the glance front.
func (e *Engine) CreateTabGroup(ctx context.Context, req schema.CreateGroupRequest) (schema.GroupSnapshot, error) {
	if req.Mode != schema.GroupModeGlance && req.Mode != schema.GroupModeSplit {
		return schema.GroupSnapshot{}, schema.ErrInvalidRequest
	}
	e.mu.Lock()
	if e.shuttingDown {
		e.mu.Unlock()
		return schema.GroupSnapshot{}, schema.ErrShuttingDown
	}
	var members []*Tab
	seen := make(map[schema.TabID]struct{})
	for _, tabID := range req.TabIDs {
		if _, dup := seen[tabID]; dup {
			continue
		}
		seen[tabID] = struct{}{}
		if tab := e.liveTab(tabID); tab != nil {
			members = append(members, tab)
		}
	}
	if len(members) < 2 {
		e.mu.Unlock()
		return schema.GroupSnapshot{}, schema.ErrGroupTooSmall
	}
	e.beginLocked()
	anchor := members[0]
	key := anchor.slot()
	anyActive := false
	for _, member := range members {
		if e.index.isTabActive(member) {
			anyActive = true
			break
		}
	}
	for _, member := range members {
		e.detachFromGroupLocked(ctx, member)
		e.moveToSlotLocked(ctx, member, key, anchor.windowGroupID)
	}
	group := &TabGroup{
		id:       newGroupID(),
		mode:     req.Mode,
		windowID: key.Window,
		spaceID:  key.Space,
	}
	for _, member := range members {
		group.attach(member)
	}
	group.front = members[0]
	e.groups[group.id] = group
	e.saveGroupLocked(group)
	e.emitGroupLocked(schema.GroupEventCreated, group)
	if anyActive {
		e.index.setActive(group)
		e.layout.applySlotLocked(ctx, key)
	}
	snap := group.Snapshot()
	fx := e.endLocked()
	e.mu.Unlock()
	e.deliver(ctx, fx)
	logx.WithGroup(e.log, snap.ID, snap.Mode).Debug("tab group created", "members", len(snap.TabIDs))
	return snap, nil
}

// SetFrontTab raises a member to the glance front.
func (e *Engine) SetFrontTab(ctx context.Context, groupID schema.GroupID, tabID schema.TabID) error {
	e.mu.Lock()
	group := e.liveGroup(groupID)
	if group == nil {
		e.mu.Unlock()
		return schema.ErrGroupNotFound
	}
	if group.mode != schema.GroupModeGlance {
		e.mu.Unlock()
		return schema.ErrInvalidRequest
	}
	tab := e.liveTab(tabID)
	if tab == nil || !group.contains(tab) {
		e.mu.Unlock()
		return schema.ErrTabNotFound
	}
	if !group.setFront(tab) {
		e.mu.Unlock()
		return nil
	}
	e.beginLocked()
	tab.touch()
	e.markDirtyLocked(tab)
	e.saveGroupLocked(group)
	e.emitGroupLocked(schema.GroupEventChanged, group)
	if e.index.active[group.slot()] == group {
		e.index.focusTab(group.slot(), tab)
		e.layout.applySlotLocked(ctx, group.slot())
	}
	fx := e.endLocked()
	e.mu.Unlock()
	e.deliver(ctx, fx)
	return nil
}

// AddTabToGroup appends a live tab to an existing group, moving it into the
// group's slot if needed.
func (e *Engine) AddTabToGroup(ctx context.Context, groupID schema.GroupID, tabID schema.TabID) error {
	e.mu.Lock()
	group := e.liveGroup(groupID)
	if group == nil {
		e.mu.Unlock()
		return schema.ErrGroupNotFound
	}
	tab := e.liveTab(tabID)
	if tab == nil {
		e.mu.Unlock()
		return schema.ErrTabNotFound
	}
	if tab.group == group {
		e.mu.Unlock()
		return nil
	}
	e.beginLocked()
	windowGroupID := tab.windowGroupID
	if len(group.members) > 0 {
		windowGroupID = group.members[0].windowGroupID
	}
	e.detachFromGroupLocked(ctx, tab)
	e.moveToSlotLocked(ctx, tab, group.slot(), windowGroupID)
	group.attach(tab)
	e.saveGroupLocked(group)
	e.emitGroupLocked(schema.GroupEventChanged, group)
	if e.index.active[group.slot()] == group {
		e.index.refreshSlot(group.slot())
		e.layout.applySlotLocked(ctx, group.slot())
	}
	fx := e.endLocked()
	e.mu.Unlock()
	e.deliver(ctx, fx)
	return nil
}

// RemoveTabFromGroup detaches a member; the tab stays in its slot as an
// ungrouped tab. A group left with fewer than two members dissolves.
func (e *Engine) RemoveTabFromGroup(ctx context.Context, groupID schema.GroupID, tabID schema.TabID) error {
	e.mu.Lock()
	group := e.liveGroup(groupID)
	if group == nil {
		e.mu.Unlock()
		return schema.ErrGroupNotFound
	}
	tab := e.liveTab(tabID)
	if tab == nil || tab.group != group {
		e.mu.Unlock()
		return schema.ErrTabNotFound
	}
	e.beginLocked()
	e.detachFromGroupLocked(ctx, tab)
	e.layout.applySlotLocked(ctx, tab.slot())
	fx := e.endLocked()
	e.mu.Unlock()
	e.deliver(ctx, fx)
	return nil
}

// DissolveGroup explicitly breaks a group apart. Members stay in the slot
// as ungrouped tabs; the current front becomes the slot's active tab when
// the group was active.
func (e *Engine) DissolveGroup(ctx context.Context, groupID schema.GroupID) error {
	e.mu.Lock()
	group := e.liveGroup(groupID)
	if group == nil {
		e.mu.Unlock()
		return schema.ErrGroupNotFound
	}
	e.beginLocked()
	e.dissolveGroupLocked(group)
	e.layout.applySlotLocked(ctx, group.slot())
	fx := e.endLocked()
	e.mu.Unlock()
	e.deliver(ctx, fx)
	return nil
}

// detachFromGroupLocked removes the tab from its group, if any, and applies
// the below-two-members dissolution rule plus activation focus fallback.
func (e *Engine) detachFromGroupLocked(ctx context.Context, tab *Tab) {
	group := tab.group
	if group == nil {
		return
	}
	key := group.slot()
	wasFocused := e.index.focused[key] == tab
	remaining := group.detach(tab)
	if remaining < 2 {
		e.dissolveGroupLocked(group)
		return
	}
	e.saveGroupLocked(group)
	e.emitGroupLocked(schema.GroupEventChanged, group)
	if e.index.active[key] == group {
		if wasFocused {
			e.index.focusTab(key, group.front)
		} else {
			e.index.refreshSlot(key)
		}
		e.layout.applySlotLocked(ctx, key)
	}
}

// dissolveGroupLocked breaks the group apart. When the group occupied its
// slot's activation, the front (falling back to the last member) is promoted
// to active tab; an empty group clears the slot through history replay.
func (e *Engine) dissolveGroupLocked(group *TabGroup) {
	key := group.slot()
	wasActive := e.index.active[key] == group
	promoted := group.front
	if promoted == nil && len(group.members) > 0 {
		promoted = group.members[0]
	}
	for len(group.members) > 0 {
		group.detach(group.members[0])
	}
	group.destroyed = true
	delete(e.groups, group.id)
	e.index.forget(key, group.activeRef())
	e.emitGroupLocked(schema.GroupEventDissolved, group)
	if e.store != nil {
		id := group.id
		e.persistLocked(func(ctx context.Context) {
			if err := e.store.DeleteGroup(ctx, id); err != nil {
				e.log.Warn("group delete failed", "group", id, "error", err)
			}
		})
	}
	if wasActive {
		if promoted != nil && !promoted.destroyed {
			e.index.setActive(promoted)
		} else {
			e.index.removeActive(key)
		}
	}
}

// moveToSlotLocked re-homes the tab into another window+space slot and
// withdraws it from its old slot's activation.
func (e *Engine) moveToSlotLocked(ctx context.Context, tab *Tab, key slotKey, windowGroupID schema.WindowGroupID) {
	if tab.slot() == key {
		return
	}
	oldKey := tab.slot()
	if e.index.active[oldKey] == tab {
		e.index.forget(oldKey, tab.activeRef())
		e.index.removeActive(oldKey)
	} else {
		e.index.forget(oldKey, tab.activeRef())
	}
	tab.windowID = key.Window
	tab.spaceID = key.Space
	tab.windowGroupID = windowGroupID
	tab.position = e.nextPositionLocked(key.Window)
	e.markDirtyLocked(tab)
	e.emitTabLocked(schema.TabEventMoved, tab)
	e.fx.structural[oldKey.Window] = struct{}{}
	e.layout.applySlotLocked(ctx, oldKey)
}

// saveGroupLocked schedules a synchronous group upsert after the mutex is
// released. The member list is captured now so later mutations in the same
// operation cannot leak in.
func (e *Engine) saveGroupLocked(group *TabGroup) {
	if e.store == nil {
		return
	}
	windowGroupID := schema.WindowGroupID("")
	if len(group.members) > 0 {
		windowGroupID = group.members[0].windowGroupID
	}
	rec := recordForGroup(group, windowGroupID)
	e.persistLocked(func(ctx context.Context) {
		if err := e.store.SaveGroup(ctx, rec); err != nil {
			e.log.Warn("group save failed", "group", rec.ID, "error", err)
		}
	})
}
