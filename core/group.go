package core

import "pkt.systems/loom/schema"

// TabGroup is an ordered composition of at least two tabs sharing one
// activation slot. A group whose membership falls below two is dissolved by
// the engine immediately. Both variants share the data model; glance
// additionally tracks a front pointer, split layout is a stub.
type TabGroup struct {
	id        schema.GroupID
	mode      schema.GroupMode
	windowID  schema.WindowID
	spaceID   schema.SpaceID
	members   []*Tab
	front     *Tab
	destroyed bool
}

// ID returns the restart-stable group id.
func (g *TabGroup) ID() schema.GroupID { return g.id }

// Mode returns the composition variant.
func (g *TabGroup) Mode() schema.GroupMode { return g.mode }

// Members returns the ordered member list.
func (g *TabGroup) Members() []*Tab {
	return append([]*Tab(nil), g.members...)
}

// FrontTab returns the glance front member, or nil.
func (g *TabGroup) FrontTab() *Tab { return g.front }

func (g *TabGroup) slot() slotKey {
	return slotKey{Window: g.windowID, Space: g.spaceID}
}

func (g *TabGroup) contains(tab *Tab) bool {
	for _, member := range g.members {
		if member == tab {
			return true
		}
	}
	return false
}

// attach appends a tab to the member list and points the member back at the
// group. The caller has already detached the tab from any previous group.
func (g *TabGroup) attach(tab *Tab) {
	if g.contains(tab) {
		return
	}
	g.members = append(g.members, tab)
	tab.group = g
}

// detach removes a tab and returns the remaining member count. The front
// pointer falls back to the first remaining member.
func (g *TabGroup) detach(tab *Tab) int {
	for i, member := range g.members {
		if member != tab {
			continue
		}
		g.members = append(g.members[:i], g.members[i+1:]...)
		break
	}
	if tab.group == g {
		tab.group = nil
	}
	if g.front == tab {
		g.front = nil
		if len(g.members) > 0 {
			g.front = g.members[0]
		}
	}
	return len(g.members)
}

// setFront moves the glance front pointer. It reports whether the pointer
// changed.
func (g *TabGroup) setFront(tab *Tab) bool {
	if !g.contains(tab) || g.front == tab {
		return false
	}
	g.front = tab
	return true
}

// Snapshot returns a transport-friendly view of the group.
func (g *TabGroup) Snapshot() schema.GroupSnapshot {
	snap := schema.GroupSnapshot{
		ID:       g.id,
		Mode:     g.mode,
		WindowID: g.windowID,
		SpaceID:  g.spaceID,
		TabIDs:   make([]schema.TabID, 0, len(g.members)),
	}
	for _, member := range g.members {
		snap.TabIDs = append(snap.TabIDs, member.id)
	}
	if g.front != nil {
		snap.FrontTabID = g.front.id
	}
	return snap
}
