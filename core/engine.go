package core

import (
	"context"
	"sort"
	"sync"

	"pkt.systems/loom/internal/notify"
	"pkt.systems/loom/internal/persist"
	"pkt.systems/loom/schema"
	"pkt.systems/pslog"
)

// Engine owns every tab, tab group and activation slot of the process. All
// state lives behind one mutex; events and notifications collected during an
// operation are delivered after the mutex is released.
type Engine struct {
	cfg       schema.EngineConfig
	log       pslog.Logger
	profiles  ProfileResolver
	spaces    SpaceResolver
	windows   WindowRegistry
	pageViews PageViewFactory
	store     *persist.Store
	sink      EventSink
	notifier  *notify.Queue

	lifecycle *lifecycleManager
	layout    *layoutManager

	mu           sync.Mutex
	tabs         map[schema.TabID]*Tab
	tabsByUID    map[schema.TabUID]*Tab
	groups       map[schema.GroupID]*TabGroup
	index        *activationIndex
	nextTabID    schema.TabID
	shuttingDown bool

	// fx is the per-operation effect buffer, non-nil exactly between
	// beginLocked and endLocked.
	fx *effects
}

// New constructs an engine. Profiles, Spaces, Windows and PageViews are
// required; Store, Sink and Notifier may be nil.
func New(cfg schema.EngineConfig, deps EngineDeps) (*Engine, error) {
	cfg, err := schema.NormalizeEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	if deps.Profiles == nil || deps.Spaces == nil || deps.Windows == nil || deps.PageViews == nil {
		return nil, schema.ErrInvalidRequest
	}
	log := deps.Logger
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	e := &Engine{
		cfg:       cfg,
		log:       log,
		profiles:  deps.Profiles,
		spaces:    deps.Spaces,
		windows:   deps.Windows,
		pageViews: deps.PageViews,
		store:     deps.Store,
		sink:      deps.Sink,
		notifier:  deps.Notifier,
		tabs:      make(map[schema.TabID]*Tab),
		tabsByUID: make(map[schema.TabUID]*Tab),
		groups:    make(map[schema.GroupID]*TabGroup),
	}
	e.lifecycle = &lifecycleManager{engine: e}
	e.layout = &layoutManager{engine: e}
	e.index = newActivationIndex(e, e.emitActiveLocked)
	return e, nil
}

// Start launches the background flush and archive sweep loops. They stop
// when ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	if e.store != nil {
		go e.store.Run(ctx, e.cfg.FlushInterval)
	}
	go e.sweepLoop(ctx)
}

// Shutdown captures final navigation state, flushes pending persistence and
// tears down every page view. Events and notifications are suppressed from
// here on.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.shuttingDown {
		e.mu.Unlock()
		return nil
	}
	e.shuttingDown = true
	var views []PageView
	for _, tab := range e.tabs {
		if tab.asleep || tab.destroyed {
			continue
		}
		if history, index, err := tab.view.NavigationHistory(); err == nil {
			tab.navHistory = history
			tab.navIndex = index
			if index >= 0 && index < len(history) {
				tab.url = history[index].URL
			}
		}
		if e.store != nil && !tab.ephemeral {
			e.store.MarkDirty(recordFor(tab))
		}
		views = append(views, tab.view)
	}
	e.mu.Unlock()

	if e.notifier != nil {
		e.notifier.Close()
	}
	var err error
	if e.store != nil {
		err = e.store.Flush(ctx)
	}
	for _, view := range views {
		if derr := view.Destroy(); derr != nil {
			e.log.Debug("page view teardown at shutdown failed", "error", derr)
		}
	}
	return err
}

// effects accumulates the outward consequences of one locked operation.
type effects struct {
	events     []func(EventSink)
	persist    []func(context.Context)
	structural map[schema.WindowID]struct{}
	content    map[schema.WindowID][]schema.TabSnapshot
	suppress   bool
}

func (e *Engine) beginLocked() {
	e.fx = &effects{structural: make(map[schema.WindowID]struct{})}
}

func (e *Engine) endLocked() *effects {
	fx := e.fx
	e.fx = nil
	if fx != nil {
		fx.suppress = e.shuttingDown
	}
	return fx
}

// deliver runs persistence closures and emits the buffered events outside
// the engine mutex, in operation order.
func (e *Engine) deliver(ctx context.Context, fx *effects) {
	if fx == nil {
		return
	}
	for _, op := range fx.persist {
		op(ctx)
	}
	if fx.suppress {
		return
	}
	if e.sink != nil {
		for _, emit := range fx.events {
			emit(e.sink)
		}
	}
	if e.notifier == nil {
		return
	}
	for windowID := range fx.structural {
		e.notifier.EnqueueStructural(windowID)
	}
	for windowID, tabs := range fx.content {
		e.notifier.EnqueueContent(windowID, tabs...)
	}
}

func (e *Engine) emitTabLocked(eventType schema.TabEventType, tab *Tab) {
	if e.fx == nil {
		return
	}
	event := schema.TabEvent{Type: eventType, Tab: tab.Snapshot()}
	e.fx.events = append(e.fx.events, func(sink EventSink) { sink.OnTabEvent(event) })
	if eventType == schema.TabEventUpdated {
		if e.fx.content == nil {
			e.fx.content = make(map[schema.WindowID][]schema.TabSnapshot)
		}
		e.fx.content[tab.windowID] = append(e.fx.content[tab.windowID], event.Tab)
		return
	}
	e.fx.structural[tab.windowID] = struct{}{}
}

func (e *Engine) emitGroupLocked(eventType schema.GroupEventType, group *TabGroup) {
	if e.fx == nil {
		return
	}
	event := schema.GroupEvent{Type: eventType, Group: group.Snapshot()}
	e.fx.events = append(e.fx.events, func(sink EventSink) { sink.OnGroupEvent(event) })
	e.fx.structural[group.windowID] = struct{}{}
}

func (e *Engine) emitActiveLocked(event schema.ActiveChangedEvent) {
	if e.fx == nil {
		return
	}
	e.fx.events = append(e.fx.events, func(sink EventSink) { sink.OnActiveChanged(event) })
	e.fx.structural[event.WindowID] = struct{}{}
}

func (e *Engine) emitPinnedLocked(tab *Tab) {
	if e.fx == nil {
		return
	}
	event := schema.PinnedChangedEvent{Tab: tab.Snapshot()}
	e.fx.events = append(e.fx.events, func(sink EventSink) { sink.OnPinnedChanged(event) })
	e.fx.structural[tab.windowID] = struct{}{}
}

func (e *Engine) persistLocked(op func(context.Context)) {
	if e.fx == nil || e.store == nil {
		return
	}
	e.fx.persist = append(e.fx.persist, op)
}

// markDirtyLocked schedules the tab for the next batched flush. Ephemeral
// tabs never reach storage.
func (e *Engine) markDirtyLocked(tab *Tab) {
	if e.store == nil || tab.ephemeral || tab.destroyed {
		return
	}
	e.store.MarkDirty(recordFor(tab))
}

func recordFor(tab *Tab) persist.TabRecord {
	history, index := tab.currentNavigation()
	return persist.TabRecord{
		UID:           tab.uid,
		WindowGroupID: tab.windowGroupID,
		ProfileID:     tab.profileID,
		SpaceID:       tab.spaceID,
		Position:      tab.position,
		Title:         tab.title,
		URL:           tab.url,
		FaviconURL:    tab.faviconURL,
		Muted:         tab.muted,
		NavHistory:    history,
		NavIndex:      index,
		CreatedAt:     tab.createdAt,
		LastActiveAt:  tab.lastActiveAt,
	}
}

func recordForGroup(group *TabGroup, windowGroupID schema.WindowGroupID) persist.GroupRecord {
	rec := persist.GroupRecord{
		ID:            group.id,
		Mode:          group.mode,
		WindowGroupID: windowGroupID,
		SpaceID:       group.spaceID,
		MemberUIDs:    make([]schema.TabUID, 0, len(group.members)),
	}
	for _, member := range group.members {
		rec.MemberUIDs = append(rec.MemberUIDs, member.uid)
	}
	if group.front != nil {
		rec.FrontUID = group.front.uid
	}
	return rec
}

// entityResolver implementation.

func (e *Engine) liveTab(id schema.TabID) *Tab {
	tab := e.tabs[id]
	if tab == nil || tab.destroyed {
		return nil
	}
	return tab
}

func (e *Engine) liveGroup(id schema.GroupID) *TabGroup {
	group := e.groups[id]
	if group == nil || group.destroyed {
		return nil
	}
	return group
}

func (e *Engine) firstGroupIn(key slotKey) *TabGroup {
	var best *TabGroup
	for _, group := range e.groups {
		if group.destroyed || group.slot() != key || len(group.members) == 0 {
			continue
		}
		if best == nil || group.members[0].position < best.members[0].position {
			best = group
		}
	}
	return best
}

func (e *Engine) firstTabIn(key slotKey) *Tab {
	var best *Tab
	for _, tab := range e.tabs {
		if tab.destroyed || tab.slot() != key {
			continue
		}
		if best == nil || tab.position < best.position {
			best = tab
		}
	}
	return best
}

func (e *Engine) allocTabIDLocked() schema.TabID {
	e.nextTabID++
	return e.nextTabID
}

// nextPositionLocked appends past the last position in the window.
func (e *Engine) nextPositionLocked(windowID schema.WindowID) float64 {
	max := 0.0
	for _, tab := range e.tabs {
		if tab.destroyed || tab.windowID != windowID {
			continue
		}
		if tab.position > max {
			max = tab.position
		}
	}
	return max + 1
}

// Queries.

// ListTabs returns the window's tabs ordered by position. Ephemeral tabs are
// excluded from listings.
func (e *Engine) ListTabs(windowID schema.WindowID) []schema.TabSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listTabsLocked(windowID)
}

func (e *Engine) listTabsLocked(windowID schema.WindowID) []schema.TabSnapshot {
	var snaps []schema.TabSnapshot
	for _, tab := range e.tabs {
		if tab.destroyed || tab.ephemeral || tab.windowID != windowID {
			continue
		}
		snaps = append(snaps, tab.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].Position != snaps[j].Position {
			return snaps[i].Position < snaps[j].Position
		}
		return snaps[i].ID < snaps[j].ID
	})
	return snaps
}

// ListGroups returns the window's groups.
func (e *Engine) ListGroups(windowID schema.WindowID) []schema.GroupSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listGroupsLocked(windowID)
}

func (e *Engine) listGroupsLocked(windowID schema.WindowID) []schema.GroupSnapshot {
	var snaps []schema.GroupSnapshot
	for _, group := range e.groups {
		if group.destroyed || group.windowID != windowID {
			continue
		}
		snaps = append(snaps, group.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })
	return snaps
}

// Tab returns a snapshot of one tab.
func (e *Engine) Tab(tabID schema.TabID) (schema.TabSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tab := e.liveTab(tabID)
	if tab == nil {
		return schema.TabSnapshot{}, false
	}
	return tab.Snapshot(), true
}

// IsTabActive reports whether the tab is active in its window+space, either
// directly or through group membership.
func (e *Engine) IsTabActive(tabID schema.TabID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	tab := e.liveTab(tabID)
	if tab == nil {
		return false
	}
	return e.index.isTabActive(tab)
}

// StructuralSnapshot builds the full per-window resend payload. It is the
// notification queue's snapshot source.
func (e *Engine) StructuralSnapshot(windowID schema.WindowID) (schema.StructuralPayload, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	payload := schema.StructuralPayload{
		WindowID:      windowID,
		Tabs:          e.listTabsLocked(windowID),
		Groups:        e.listGroupsLocked(windowID),
		FocusedTabIDs: make(map[schema.SpaceID]schema.TabID),
		ActiveTabIDs:  make(map[schema.SpaceID][]schema.TabID),
	}
	for key := range e.index.active {
		if key.Window != windowID {
			continue
		}
		event := e.index.slotEvent(key)
		if event.FocusedTab != 0 {
			payload.FocusedTabIDs[key.Space] = event.FocusedTab
		}
		if len(event.ActiveIDs) > 0 {
			payload.ActiveTabIDs[key.Space] = event.ActiveIDs
		}
	}
	if _, ok := e.windows.Window(windowID); ok {
		return payload, true
	}
	return payload, len(payload.Tabs) > 0
}

// RecentlyClosed lists the recently-closed ring, most recent first.
func (e *Engine) RecentlyClosed(ctx context.Context) ([]schema.ClosedTabSnapshot, error) {
	if e.store == nil {
		return nil, nil
	}
	records, err := e.store.ListClosed(ctx)
	if err != nil {
		return nil, err
	}
	snaps := make([]schema.ClosedTabSnapshot, 0, len(records))
	for _, rec := range records {
		snaps = append(snaps, closedSnapshotFor(rec))
	}
	return snaps, nil
}

func closedSnapshotFor(rec persist.ClosedTabRecord) schema.ClosedTabSnapshot {
	snap := schema.ClosedTabSnapshot{
		Tab: schema.TabSnapshot{
			UID:        rec.UID,
			ProfileID:  rec.ProfileID,
			SpaceID:    rec.SpaceID,
			Title:      rec.Title,
			URL:        rec.URL,
			FaviconURL: rec.FaviconURL,
		},
		ClosedAt: rec.ClosedAt,
	}
	if rec.Group != nil {
		snap.Group = &schema.GroupSnapshot{
			ID:      rec.Group.ID,
			Mode:    rec.Group.Mode,
			SpaceID: rec.Group.SpaceID,
		}
	}
	return snap
}

// WindowGeometryChanged persists the window's new geometry and resettles
// every activation slot hosted by the window.
func (e *Engine) WindowGeometryChanged(ctx context.Context, windowID schema.WindowID, geometry schema.WindowGeometry) error {
	e.mu.Lock()
	window, ok := e.windows.Window(windowID)
	if !ok {
		e.mu.Unlock()
		return schema.ErrWindowNotFound
	}
	e.beginLocked()
	groupID := window.GroupID()
	e.persistLocked(func(ctx context.Context) {
		if err := e.store.SaveGeometry(ctx, groupID, geometry); err != nil {
			e.log.Warn("geometry save failed", "window", windowID, "error", err)
		}
	})
	for key := range e.index.active {
		if key.Window == windowID {
			e.layout.applySlotLocked(ctx, key)
		}
	}
	fx := e.endLocked()
	e.mu.Unlock()
	e.deliver(ctx, fx)
	return nil
}

// SetTabFullScreen toggles a tab's full-screen state and forces the host
// window to follow. The window's other tabs track the window, so the flag
// propagates to all of them.
func (e *Engine) SetTabFullScreen(ctx context.Context, tabID schema.TabID, on bool) error {
	e.mu.Lock()
	tab := e.liveTab(tabID)
	if tab == nil {
		e.mu.Unlock()
		return schema.ErrTabNotFound
	}
	if tab.fullScreen == on {
		e.mu.Unlock()
		return nil
	}
	e.beginLocked()
	if window, ok := e.windows.Window(tab.windowID); ok {
		window.SetFullScreen(on)
	}
	e.lifecycle.syncFullScreenLocked(tab.windowID, on)
	e.fx.structural[tab.windowID] = struct{}{}
	fx := e.endLocked()
	e.mu.Unlock()
	e.deliver(ctx, fx)
	return nil
}

// HostWindowFullScreenChanged mirrors the host window's full-screen flag
// onto the window's tabs.
func (e *Engine) HostWindowFullScreenChanged(ctx context.Context, windowID schema.WindowID, on bool) {
	e.mu.Lock()
	e.beginLocked()
	e.lifecycle.syncFullScreenLocked(windowID, on)
	e.fx.structural[windowID] = struct{}{}
	fx := e.endLocked()
	e.mu.Unlock()
	e.deliver(ctx, fx)
}
