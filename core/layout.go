package core

import (
	"context"

	"pkt.systems/loom/internal/logx"
	"pkt.systems/loom/schema"
)

// Z-order bands, back to front. The glance front member must stack above
// every other visible view in its slot.
const (
	zOrderUngrouped = iota
	zOrderGlanceBack
	zOrderVisible
	zOrderGlanceFront
)

// layoutManager reconciles page-view visibility, bounds and stacking for one
// activation slot at a time. All methods run under the engine mutex.
type layoutManager struct {
	engine *Engine
}

type placement struct {
	bounds schema.Rect
	z      int
}

// applySlotLocked wakes, positions and shows the tabs of the slot's active
// entity and hides every other tab in the slot. Tabs that fail to wake or
// show stay hidden; the rest of the slot still settles.
func (m *layoutManager) applySlotLocked(ctx context.Context, key slotKey) {
	window, ok := m.engine.windows.Window(key.Window)
	if !ok {
		logx.WithSlot(m.engine.log, key.Window, key.Space).Debug("layout skipped, window gone")
		return
	}
	desired := m.desiredLocked(key, window)

	for _, tab := range m.engine.tabs {
		if tab.slot() != key || tab.destroyed {
			continue
		}
		if _, keep := desired[tab]; keep || !tab.visible {
			continue
		}
		if err := m.engine.lifecycle.hideLocked(tab); err != nil {
			logx.Tab(m.engine.log, tab.id).Warn("hide during layout failed", "error", err)
		}
	}

	for tab, place := range desired {
		if tab.asleep {
			if err := m.engine.lifecycle.wakeLocked(ctx, tab); err != nil {
				continue
			}
		}
		if err := tab.view.SetBounds(place.bounds); err != nil {
			logx.Tab(m.engine.log, tab.id).Warn("bounds update failed", "error", err)
			continue
		}
		if err := tab.view.SetZOrder(place.z); err != nil {
			logx.Tab(m.engine.log, tab.id).Warn("z-order update failed", "error", err)
			continue
		}
		if !tab.visible {
			if err := m.engine.lifecycle.showLocked(tab); err != nil {
				continue
			}
		}
		tab.fullScreen = window.FullScreen()
	}
}

// desiredLocked computes the visible placements for the window's slot from
// the active entity: a lone tab fills the content rect, a glance group shows
// all members with the front member inset and topmost. Split keeps the
// ungrouped placement for every member until its layout lands.
func (m *layoutManager) desiredLocked(key slotKey, window Window) map[*Tab]placement {
	content := window.ContentRect()
	desired := make(map[*Tab]placement)
	switch e := m.engine.index.active[key].(type) {
	case *Tab:
		desired[e] = placement{bounds: content, z: zOrderUngrouped}
	case *TabGroup:
		for _, member := range e.members {
			switch {
			case e.mode == schema.GroupModeGlance && member == e.front:
				desired[member] = placement{bounds: glanceFrontBounds(content), z: zOrderGlanceFront}
			case e.mode == schema.GroupModeGlance:
				desired[member] = placement{bounds: glanceBackBounds(content), z: zOrderGlanceBack}
			default:
				desired[member] = placement{bounds: content, z: zOrderVisible}
			}
		}
	}
	return desired
}

// glanceFrontBounds insets the front member to 85% width at full height,
// horizontally centered.
func glanceFrontBounds(content schema.Rect) schema.Rect {
	w := content.Width * 85 / 100
	return schema.Rect{
		X:      content.X + (content.Width-w)/2,
		Y:      content.Y,
		Width:  w,
		Height: content.Height,
	}
}

// glanceBackBounds insets back members to 95% width and 97.5% height,
// centered, so the front card reads as stacked on top.
func glanceBackBounds(content schema.Rect) schema.Rect {
	w := content.Width * 95 / 100
	h := content.Height * 975 / 1000
	return schema.Rect{
		X:      content.X + (content.Width-w)/2,
		Y:      content.Y + (content.Height-h)/2,
		Width:  w,
		Height: h,
	}
}
