package core

import (
	"context"
	"fmt"
	"time"

	"pkt.systems/loom/internal/logx"
	"pkt.systems/loom/internal/persist"
	"pkt.systems/loom/schema"
)

// CreateTab resolves the target window, space and profile, constructs a page
// view and registers the tab. Profile resolution and view construction run
// outside the engine mutex; the target window is re-validated afterwards.
func (e *Engine) CreateTab(ctx context.Context, req schema.CreateTabRequest) (schema.TabSnapshot, error) {
	e.mu.Lock()
	if e.shuttingDown {
		e.mu.Unlock()
		return schema.TabSnapshot{}, schema.ErrShuttingDown
	}
	e.mu.Unlock()

	window, err := e.resolveWindow(ctx, req.WindowID)
	if err != nil {
		return schema.TabSnapshot{}, err
	}
	spaceID, profileID, err := e.resolveTarget(ctx, req)
	if err != nil {
		return schema.TabSnapshot{}, err
	}
	session, err := e.profiles.EnsureProfile(ctx, profileID)
	if err != nil {
		return schema.TabSnapshot{}, fmt.Errorf("ensure profile %s: %w", profileID, err)
	}
	view, err := e.pageViews.NewPageView(ctx, PageViewOptions{ProfileID: session.ProfileID(), URL: req.URL})
	if err != nil {
		return schema.TabSnapshot{}, fmt.Errorf("new page view: %w", err)
	}

	e.mu.Lock()
	if e.shuttingDown {
		e.mu.Unlock()
		_ = view.Destroy()
		return schema.TabSnapshot{}, schema.ErrShuttingDown
	}
	if _, ok := e.windows.Window(window.ID()); !ok {
		e.mu.Unlock()
		_ = view.Destroy()
		return schema.TabSnapshot{}, schema.ErrStaleTarget
	}
	e.beginLocked()
	now := time.Now().UTC()
	tab := &Tab{
		id:            e.allocTabIDLocked(),
		uid:           newTabUID(),
		profileID:     session.ProfileID(),
		spaceID:       spaceID,
		windowID:      window.ID(),
		windowGroupID: window.GroupID(),
		position:      e.nextPositionLocked(window.ID()),
		title:         req.Title,
		url:           req.URL,
		ephemeral:     req.Ephemeral,
		createdAt:     now,
		lastActiveAt:  now,
		view:          view,
	}
	if req.URL != "" {
		tab.navHistory = []schema.NavigationEntry{{URL: req.URL, Title: req.Title}}
		tab.navIndex = 0
	}
	e.tabs[tab.id] = tab
	e.tabsByUID[tab.uid] = tab
	e.markDirtyLocked(tab)
	e.emitTabLocked(schema.TabEventCreated, tab)
	if req.Activate || e.index.active[tab.slot()] == nil {
		e.index.setActive(tab)
		e.layout.applySlotLocked(ctx, tab.slot())
	}
	snap := tab.Snapshot()
	fx := e.endLocked()
	e.mu.Unlock()
	e.deliver(ctx, fx)
	logx.Tab(e.log.With("window", snap.WindowID), snap.ID).Debug("tab created",
		"space", spaceID, "profile", profileID, "ephemeral", req.Ephemeral)
	return snap, nil
}

// resolveWindow picks the explicit window, the focused window, the first
// window or creates a fresh one, in that order.
func (e *Engine) resolveWindow(ctx context.Context, windowID schema.WindowID) (Window, error) {
	if windowID != "" {
		window, ok := e.windows.Window(windowID)
		if !ok {
			return nil, schema.ErrWindowNotFound
		}
		return window, nil
	}
	if window, ok := e.windows.FocusedWindow(); ok {
		return window, nil
	}
	if all := e.windows.Windows(); len(all) > 0 {
		return all[0], nil
	}
	window, err := e.windows.CreateWindow(ctx, CreateWindowRequest{Geometry: e.cfg.DefaultGeometry})
	if err != nil {
		return nil, fmt.Errorf("create window: %w", err)
	}
	return window, nil
}

// resolveTarget fills in the space and profile of a create request from the
// space's owning profile or the profile's most recent space.
func (e *Engine) resolveTarget(ctx context.Context, req schema.CreateTabRequest) (schema.SpaceID, schema.ProfileID, error) {
	spaceID, profileID := req.SpaceID, req.ProfileID
	switch {
	case spaceID != "":
		if profileID == "" {
			owner, err := e.spaces.SpaceProfile(ctx, spaceID)
			if err != nil {
				return "", "", fmt.Errorf("space %s: %w", spaceID, schema.ErrSpaceNotFound)
			}
			profileID = owner
		}
	case profileID != "":
		if recent, ok := e.spaces.MostRecentSpaceFor(ctx, profileID); ok {
			spaceID = recent
		} else if recent, ok := e.spaces.MostRecentSpace(ctx); ok {
			spaceID = recent
		} else {
			return "", "", schema.ErrSpaceNotFound
		}
	default:
		recent, ok := e.spaces.MostRecentSpace(ctx)
		if !ok {
			return "", "", schema.ErrSpaceNotFound
		}
		spaceID = recent
		owner, err := e.spaces.SpaceProfile(ctx, spaceID)
		if err != nil {
			return "", "", fmt.Errorf("space %s: %w", spaceID, schema.ErrSpaceNotFound)
		}
		profileID = owner
	}
	if profileID == "" {
		return "", "", schema.ErrProfileNotFound
	}
	return spaceID, profileID, nil
}

// RemoveTab closes a tab: group detachment with dissolution, activation
// promotion, a recently-closed entry for non-ephemeral tabs and page view
// teardown.
func (e *Engine) RemoveTab(ctx context.Context, tabID schema.TabID) error {
	e.mu.Lock()
	tab := e.liveTab(tabID)
	if tab == nil {
		e.mu.Unlock()
		return schema.ErrTabNotFound
	}
	e.beginLocked()
	e.removeTabLocked(ctx, tab)
	fx := e.endLocked()
	e.mu.Unlock()
	e.deliver(ctx, fx)
	return nil
}

// removeTabLocked is the shared closing path for explicit removal and the
// archive sweep: group detachment, activation promotion, a recently-closed
// entry for non-ephemeral tabs and page view teardown.
func (e *Engine) removeTabLocked(ctx context.Context, tab *Tab) {
	key := tab.slot()

	var closed *persist.ClosedTabRecord
	if !tab.ephemeral {
		rec := closedRecordFor(tab)
		closed = &rec
	}

	e.detachFromGroupLocked(ctx, tab)
	e.index.forget(key, tab.activeRef())
	if e.index.active[key] == tab {
		e.index.removeActive(key)
	}

	if e.store != nil && !tab.ephemeral {
		e.store.MarkRemoved(tab.uid)
		rec := *closed
		e.persistLocked(func(ctx context.Context) {
			if err := e.store.PushClosed(ctx, rec); err != nil {
				e.log.Warn("recently-closed push failed", "uid", rec.UID, "error", err)
			}
		})
	}
	if !tab.asleep {
		if err := tab.view.Destroy(); err != nil {
			logx.Tab(e.log, tab.id).Debug("page view teardown failed", "error", err)
		}
	}
	tab.destroyed = true
	delete(e.tabs, tab.id)
	delete(e.tabsByUID, tab.uid)
	e.emitTabLocked(schema.TabEventRemoved, tab)
	e.layout.applySlotLocked(ctx, key)
}

func closedRecordFor(tab *Tab) persist.ClosedTabRecord {
	history, index := tab.currentNavigation()
	rec := persist.ClosedTabRecord{
		UID:        tab.uid,
		ProfileID:  tab.profileID,
		SpaceID:    tab.spaceID,
		Title:      tab.title,
		URL:        tab.url,
		FaviconURL: tab.faviconURL,
		NavHistory: history,
		NavIndex:   index,
		ClosedAt:   time.Now().UTC(),
	}
	if tab.group != nil {
		group := recordForGroup(tab.group, tab.windowGroupID)
		rec.Group = &group
	}
	return rec
}

// SleepTab releases the tab's page view. Visible tabs refuse to sleep.
func (e *Engine) SleepTab(ctx context.Context, tabID schema.TabID) error {
	e.mu.Lock()
	tab := e.liveTab(tabID)
	if tab == nil {
		e.mu.Unlock()
		return schema.ErrTabNotFound
	}
	e.beginLocked()
	err := e.lifecycle.sleepLocked(tab)
	if err == nil {
		e.markDirtyLocked(tab)
		e.emitTabLocked(schema.TabEventSlept, tab)
	}
	fx := e.endLocked()
	e.mu.Unlock()
	e.deliver(ctx, fx)
	return err
}

// WakeTab reconstructs the tab's page view from its captured navigation
// state.
func (e *Engine) WakeTab(ctx context.Context, tabID schema.TabID) error {
	e.mu.Lock()
	tab := e.liveTab(tabID)
	if tab == nil {
		e.mu.Unlock()
		return schema.ErrTabNotFound
	}
	e.beginLocked()
	err := e.lifecycle.wakeLocked(ctx, tab)
	if err == nil {
		e.markDirtyLocked(tab)
		e.emitTabLocked(schema.TabEventWoke, tab)
	}
	fx := e.endLocked()
	e.mu.Unlock()
	e.deliver(ctx, fx)
	return err
}

// SetActiveTab activates the tab in its window+space. A grouped tab
// activates its whole group with the tab focused.
func (e *Engine) SetActiveTab(ctx context.Context, tabID schema.TabID) error {
	e.mu.Lock()
	tab := e.liveTab(tabID)
	if tab == nil {
		e.mu.Unlock()
		return schema.ErrTabNotFound
	}
	e.beginLocked()
	tab.touch()
	e.markDirtyLocked(tab)
	key := tab.slot()
	if tab.group != nil {
		e.index.setActive(tab.group)
		e.index.focusTab(key, tab)
	} else {
		e.index.setActive(tab)
	}
	e.layout.applySlotLocked(ctx, key)
	fx := e.endLocked()
	e.mu.Unlock()
	e.deliver(ctx, fx)
	return nil
}

// ActivatePrevious switches the slot back to its most recent prior live
// entity. It reports whether a switch happened.
func (e *Engine) ActivatePrevious(ctx context.Context, windowID schema.WindowID, spaceID schema.SpaceID) bool {
	e.mu.Lock()
	key := slotKey{Window: windowID, Space: spaceID}
	previous := e.index.previous(key)
	if previous == nil {
		e.mu.Unlock()
		return false
	}
	e.beginLocked()
	e.index.setActive(previous)
	e.layout.applySlotLocked(ctx, key)
	fx := e.endLocked()
	e.mu.Unlock()
	e.deliver(ctx, fx)
	return true
}

// MoveTab re-homes a tab into another window and/or space. The tab leaves
// its group and its tail position is assigned in the target window.
func (e *Engine) MoveTab(ctx context.Context, req schema.MoveTabRequest) error {
	e.mu.Lock()
	tab := e.liveTab(req.TabID)
	if tab == nil {
		e.mu.Unlock()
		return schema.ErrTabNotFound
	}
	targetWindowID := req.WindowID
	if targetWindowID == "" {
		targetWindowID = tab.windowID
	}
	window, ok := e.windows.Window(targetWindowID)
	if !ok {
		e.mu.Unlock()
		return schema.ErrWindowNotFound
	}
	targetSpace := req.SpaceID
	if targetSpace == "" {
		targetSpace = tab.spaceID
	}
	if targetWindowID == tab.windowID && targetSpace == tab.spaceID {
		e.mu.Unlock()
		return nil
	}
	e.beginLocked()
	oldKey := tab.slot()
	e.detachFromGroupLocked(ctx, tab)
	if e.index.active[oldKey] == tab {
		e.index.forget(oldKey, tab.activeRef())
		e.index.removeActive(oldKey)
	} else {
		e.index.forget(oldKey, tab.activeRef())
	}
	tab.windowID = targetWindowID
	tab.windowGroupID = window.GroupID()
	tab.spaceID = targetSpace
	tab.position = e.nextPositionLocked(targetWindowID)
	tab.touch()
	e.markDirtyLocked(tab)
	e.emitTabLocked(schema.TabEventMoved, tab)
	e.fx.structural[oldKey.Window] = struct{}{}
	e.layout.applySlotLocked(ctx, oldKey)
	e.layout.applySlotLocked(ctx, tab.slot())
	fx := e.endLocked()
	e.mu.Unlock()
	e.deliver(ctx, fx)
	return nil
}

// NavigationCommitted records a page navigation on an awake tab, truncating
// any forward history.
func (e *Engine) NavigationCommitted(ctx context.Context, tabID schema.TabID, url, title string) error {
	e.mu.Lock()
	tab := e.liveTab(tabID)
	if tab == nil {
		e.mu.Unlock()
		return schema.ErrTabNotFound
	}
	if tab.asleep {
		e.mu.Unlock()
		return schema.ErrTabAsleep
	}
	e.beginLocked()
	entry := schema.NavigationEntry{URL: url, Title: title}
	if len(tab.navHistory) > 0 && tab.navIndex >= 0 && tab.navIndex < len(tab.navHistory) && tab.navHistory[tab.navIndex].URL == url {
		tab.navHistory[tab.navIndex] = entry
	} else {
		if tab.navIndex+1 < len(tab.navHistory) {
			tab.navHistory = tab.navHistory[:tab.navIndex+1]
		}
		tab.navHistory = append(tab.navHistory, entry)
		tab.navIndex = len(tab.navHistory) - 1
	}
	tab.url = url
	if title != "" {
		tab.title = title
	}
	tab.touch()
	e.markDirtyLocked(tab)
	e.emitTabLocked(schema.TabEventUpdated, tab)
	fx := e.endLocked()
	e.mu.Unlock()
	e.deliver(ctx, fx)
	return nil
}

// SetTabTitle updates the display title.
func (e *Engine) SetTabTitle(ctx context.Context, tabID schema.TabID, title string) error {
	return e.updateContent(ctx, tabID, func(tab *Tab) bool {
		if tab.title == title {
			return false
		}
		tab.title = title
		return true
	})
}

// SetTabMuted toggles audio muting.
func (e *Engine) SetTabMuted(ctx context.Context, tabID schema.TabID, muted bool) error {
	return e.updateContent(ctx, tabID, func(tab *Tab) bool {
		if tab.muted == muted {
			return false
		}
		tab.muted = muted
		return true
	})
}

// SetFaviconURL updates the favicon location.
func (e *Engine) SetFaviconURL(ctx context.Context, tabID schema.TabID, faviconURL string) error {
	return e.updateContent(ctx, tabID, func(tab *Tab) bool {
		if tab.faviconURL == faviconURL {
			return false
		}
		tab.faviconURL = faviconURL
		return true
	})
}

func (e *Engine) updateContent(ctx context.Context, tabID schema.TabID, mutate func(*Tab) bool) error {
	e.mu.Lock()
	tab := e.liveTab(tabID)
	if tab == nil {
		e.mu.Unlock()
		return schema.ErrTabNotFound
	}
	if !mutate(tab) {
		e.mu.Unlock()
		return nil
	}
	e.beginLocked()
	e.markDirtyLocked(tab)
	e.emitTabLocked(schema.TabEventUpdated, tab)
	fx := e.endLocked()
	e.mu.Unlock()
	e.deliver(ctx, fx)
	return nil
}

// MakeTabEphemeral excludes the tab from persistence and listings. Any
// already persisted row is removed at the next flush.
func (e *Engine) MakeTabEphemeral(ctx context.Context, tabID schema.TabID) error {
	e.mu.Lock()
	tab := e.liveTab(tabID)
	if tab == nil {
		e.mu.Unlock()
		return schema.ErrTabNotFound
	}
	if tab.ephemeral {
		e.mu.Unlock()
		return nil
	}
	e.beginLocked()
	tab.ephemeral = true
	if e.store != nil {
		e.store.MarkRemoved(tab.uid)
	}
	e.emitPinnedLocked(tab)
	fx := e.endLocked()
	e.mu.Unlock()
	e.deliver(ctx, fx)
	return nil
}

// MakeTabPersistent re-admits the tab to persistence and listings.
func (e *Engine) MakeTabPersistent(ctx context.Context, tabID schema.TabID) error {
	e.mu.Lock()
	tab := e.liveTab(tabID)
	if tab == nil {
		e.mu.Unlock()
		return schema.ErrTabNotFound
	}
	if !tab.ephemeral {
		e.mu.Unlock()
		return nil
	}
	e.beginLocked()
	tab.ephemeral = false
	e.markDirtyLocked(tab)
	e.emitPinnedLocked(tab)
	fx := e.endLocked()
	e.mu.Unlock()
	e.deliver(ctx, fx)
	return nil
}

// ReopenClosed pops the most recent recently-closed entry and recreates it
// as an active tab with its navigation history.
func (e *Engine) ReopenClosed(ctx context.Context, windowID schema.WindowID) (schema.TabSnapshot, error) {
	if e.store == nil {
		return schema.TabSnapshot{}, schema.ErrTabNotFound
	}
	rec, ok, err := e.store.PopClosed(ctx)
	if err != nil {
		return schema.TabSnapshot{}, err
	}
	if !ok {
		return schema.TabSnapshot{}, schema.ErrTabNotFound
	}
	// The entry goes back on the ring if the reopen fails before the tab
	// is registered.
	unpop := func() {
		if err := e.store.PushClosed(ctx, rec); err != nil {
			e.log.Warn("closed entry restore failed", "uid", rec.UID, "error", err)
		}
	}

	window, err := e.resolveWindow(ctx, windowID)
	if err != nil {
		unpop()
		return schema.TabSnapshot{}, err
	}
	session, err := e.profiles.EnsureProfile(ctx, rec.ProfileID)
	if err != nil {
		unpop()
		return schema.TabSnapshot{}, fmt.Errorf("ensure profile %s: %w", rec.ProfileID, err)
	}
	view, err := e.pageViews.NewPageView(ctx, PageViewOptions{
		ProfileID:    session.ProfileID(),
		URL:          rec.URL,
		History:      rec.NavHistory,
		HistoryIndex: rec.NavIndex,
	})
	if err != nil {
		unpop()
		return schema.TabSnapshot{}, fmt.Errorf("new page view: %w", err)
	}

	e.mu.Lock()
	if e.shuttingDown {
		e.mu.Unlock()
		_ = view.Destroy()
		unpop()
		return schema.TabSnapshot{}, schema.ErrShuttingDown
	}
	if _, ok := e.windows.Window(window.ID()); !ok {
		e.mu.Unlock()
		_ = view.Destroy()
		unpop()
		return schema.TabSnapshot{}, schema.ErrStaleTarget
	}
	e.beginLocked()
	now := time.Now().UTC()
	tab := &Tab{
		id:            e.allocTabIDLocked(),
		uid:           rec.UID,
		profileID:     session.ProfileID(),
		spaceID:       rec.SpaceID,
		windowID:      window.ID(),
		windowGroupID: window.GroupID(),
		position:      e.nextPositionLocked(window.ID()),
		title:         rec.Title,
		url:           rec.URL,
		faviconURL:    rec.FaviconURL,
		createdAt:     now,
		lastActiveAt:  now,
		navHistory:    rec.NavHistory,
		navIndex:      rec.NavIndex,
		view:          view,
	}
	e.tabs[tab.id] = tab
	e.tabsByUID[tab.uid] = tab
	e.markDirtyLocked(tab)
	e.emitTabLocked(schema.TabEventCreated, tab)
	e.index.setActive(tab)
	e.layout.applySlotLocked(ctx, tab.slot())
	snap := tab.Snapshot()
	fx := e.endLocked()
	e.mu.Unlock()
	e.deliver(ctx, fx)
	return snap, nil
}
