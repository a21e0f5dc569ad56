package core

import "pkt.systems/loom/schema"

// slotKey is the composite key of the activation index: one activation slot
// per window+space pair.
type slotKey struct {
	Window schema.WindowID
	Space  schema.SpaceID
}

// entityRef identifies a tab or a group in the activation history. Exactly
// one field is set.
type entityRef struct {
	Tab   schema.TabID
	Group schema.GroupID
}

// activeEntity is the sum type occupying an activation slot: a *Tab or a
// *TabGroup. Every consumer switches exhaustively over the two variants.
type activeEntity interface {
	slot() slotKey
	activeRef() entityRef
}

func (t *Tab) activeRef() entityRef      { return entityRef{Tab: t.id} }
func (g *TabGroup) activeRef() entityRef { return entityRef{Group: g.id} }

// entityResolver supplies liveness lookups for history replay and fallback
// promotion. The engine implements it.
type entityResolver interface {
	liveTab(id schema.TabID) *Tab
	liveGroup(id schema.GroupID) *TabGroup
	firstGroupIn(key slotKey) *TabGroup
	firstTabIn(key slotKey) *Tab
}

// activationIndex maps each window+space slot to its active entity, focused
// tab and activation history. It is mutated only by the engine under the
// engine mutex; emit defers events into the engine's pending buffer.
type activationIndex struct {
	resolver entityResolver
	emit     func(event schema.ActiveChangedEvent)

	active  map[slotKey]activeEntity
	focused map[slotKey]*Tab
	history map[slotKey][]entityRef
}

func newActivationIndex(resolver entityResolver, emit func(event schema.ActiveChangedEvent)) *activationIndex {
	return &activationIndex{
		resolver: resolver,
		emit:     emit,
		active:   make(map[slotKey]activeEntity),
		focused:  make(map[slotKey]*Tab),
		history:  make(map[slotKey][]entityRef),
	}
}

// setActive stores the entity into its slot, logs it most-recent-last in the
// de-duplicated activation history, and derives the focused tab.
func (x *activationIndex) setActive(entity activeEntity) {
	key := entity.slot()
	x.active[key] = entity
	x.appendHistory(key, entity.activeRef())
	switch e := entity.(type) {
	case *Tab:
		x.focused[key] = e
	case *TabGroup:
		if len(e.members) > 0 {
			x.focused[key] = e.members[0]
		} else {
			delete(x.focused, key)
		}
	}
	x.emit(x.slotEvent(key))
}

// removeActive clears the slot and promotes a replacement: the most recent
// still-live history entry located in this exact window+space, then the
// first non-empty group, then the first tab, else an explicit empty event.
func (x *activationIndex) removeActive(key slotKey) {
	delete(x.active, key)
	delete(x.focused, key)

	entries := x.history[key]
	for i := len(entries) - 1; i >= 0; i-- {
		entity := x.resolveLive(key, entries[i])
		if entity == nil {
			// Dead entries are pruned as they are encountered.
			entries = append(entries[:i], entries[i+1:]...)
			continue
		}
		x.history[key] = entries
		x.setActive(entity)
		return
	}
	x.history[key] = entries

	if group := x.resolver.firstGroupIn(key); group != nil {
		x.setActive(group)
		return
	}
	if tab := x.resolver.firstTabIn(key); tab != nil {
		x.setActive(tab)
		return
	}
	x.emit(x.slotEvent(key))
}

// resolveLive maps a history entry to a live entity located in the slot.
func (x *activationIndex) resolveLive(key slotKey, ref entityRef) activeEntity {
	if ref.Tab != 0 {
		tab := x.resolver.liveTab(ref.Tab)
		if tab != nil && !tab.destroyed && tab.slot() == key {
			return tab
		}
		return nil
	}
	group := x.resolver.liveGroup(ref.Group)
	if group != nil && !group.destroyed && len(group.members) > 0 && group.slot() == key {
		return group
	}
	return nil
}

// isTabActive reports whether the tab is the active entity of its slot or a
// member of the active group.
func (x *activationIndex) isTabActive(tab *Tab) bool {
	switch e := x.active[tab.slot()].(type) {
	case *Tab:
		return e == tab
	case *TabGroup:
		return e.contains(tab)
	default:
		return false
	}
}

// focusTab moves focus within the slot without changing the active entity.
func (x *activationIndex) focusTab(key slotKey, tab *Tab) {
	if tab == nil {
		delete(x.focused, key)
	} else {
		x.focused[key] = tab
	}
	x.emit(x.slotEvent(key))
}

// previous returns the most recent live history entry that is not the
// current active entity, for history-based back navigation.
func (x *activationIndex) previous(key slotKey) activeEntity {
	current := entityRef{}
	if active := x.active[key]; active != nil {
		current = active.activeRef()
	}
	entries := x.history[key]
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i] == current {
			continue
		}
		if entity := x.resolveLive(key, entries[i]); entity != nil {
			return entity
		}
	}
	return nil
}

// refreshSlot re-emits the slot's activation state after membership or
// front changes that do not move the active entity.
func (x *activationIndex) refreshSlot(key slotKey) {
	x.emit(x.slotEvent(key))
}

// forget removes every occurrence of the entity from the slot's history.
func (x *activationIndex) forget(key slotKey, ref entityRef) {
	entries := x.history[key]
	kept := entries[:0]
	for _, entry := range entries {
		if entry != ref {
			kept = append(kept, entry)
		}
	}
	x.history[key] = kept
}

func (x *activationIndex) appendHistory(key slotKey, ref entityRef) {
	x.forget(key, ref)
	x.history[key] = append(x.history[key], ref)
}

// slotEvent builds the outward view of a slot's activation state.
func (x *activationIndex) slotEvent(key slotKey) schema.ActiveChangedEvent {
	event := schema.ActiveChangedEvent{WindowID: key.Window, SpaceID: key.Space}
	if focused := x.focused[key]; focused != nil {
		event.FocusedTab = focused.id
	}
	switch e := x.active[key].(type) {
	case *Tab:
		event.ActiveTab = e.id
		event.ActiveIDs = []schema.TabID{e.id}
	case *TabGroup:
		event.GroupID = e.id
		event.ActiveIDs = make([]schema.TabID, 0, len(e.members))
		for _, member := range e.members {
			event.ActiveIDs = append(event.ActiveIDs, member.id)
		}
		if event.FocusedTab != 0 {
			event.ActiveTab = event.FocusedTab
		} else if len(e.members) > 0 {
			event.ActiveTab = e.members[0].id
		}
	}
	return event
}
