package core

import (
	"context"
	"sort"
	"time"

	"pkt.systems/loom/schema"
)

// sweepNow is replaced in tests to steer the idle cutoff.
var sweepNow = time.Now

func (e *Engine) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweepOnce(ctx)
		}
	}
}

// sweepOnce destroys tabs idle beyond the archive threshold and compacts
// each window's positions back to whole numbers. Visible and active tabs
// never archive regardless of idle time; destroyed tabs remain recoverable
// through the recently-closed ring.
func (e *Engine) sweepOnce(ctx context.Context) {
	cutoff := sweepNow().Add(-e.cfg.ArchiveThreshold)
	e.mu.Lock()
	if e.shuttingDown {
		e.mu.Unlock()
		return
	}
	e.beginLocked()

	var victims []*Tab
	for _, tab := range e.tabs {
		if tab.destroyed || tab.visible || !tab.lastActiveAt.Before(cutoff) {
			continue
		}
		if e.index.isTabActive(tab) {
			continue
		}
		victims = append(victims, tab)
	}
	for _, tab := range victims {
		e.log.Info("archiving idle tab", "tab", uint64(tab.id), "last_active", tab.lastActiveAt)
		e.removeTabLocked(ctx, tab)
	}
	e.renormalizePositionsLocked()

	fx := e.endLocked()
	e.mu.Unlock()
	e.deliver(ctx, fx)
}

// renormalizePositionsLocked rewrites each window's tab positions to 1..n,
// keeping relative order. Fractional positions accumulate from inserts and
// moves; compaction keeps them readable and well spaced.
func (e *Engine) renormalizePositionsLocked() {
	byWindow := make(map[schema.WindowID][]*Tab)
	for _, tab := range e.tabs {
		if !tab.destroyed {
			byWindow[tab.windowID] = append(byWindow[tab.windowID], tab)
		}
	}
	for _, tabs := range byWindow {
		sort.Slice(tabs, func(i, j int) bool {
			if tabs[i].position != tabs[j].position {
				return tabs[i].position < tabs[j].position
			}
			return tabs[i].id < tabs[j].id
		})
		for i, tab := range tabs {
			next := float64(i + 1)
			if tab.position != next {
				tab.position = next
				e.markDirtyLocked(tab)
			}
		}
	}
}
