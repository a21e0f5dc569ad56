package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"pkt.systems/loom/internal/persist"
	"pkt.systems/loom/schema"
)

func TestRestoreSessionRebuildsWindowsTabsAndGroups(t *testing.T) {
	store := newEngineTestStore(t)
	ctx := context.Background()

	env1 := newTestEngine(t, store)
	var uids []schema.TabUID
	var ids []schema.TabID
	for i, url := range []string{"https://a.test/", "https://b.test/", "https://c.test/"} {
		snap, err := env1.engine.CreateTab(ctx, schema.CreateTabRequest{URL: url, Activate: i == 0})
		if err != nil {
			t.Fatalf("create tab %d: %v", i, err)
		}
		uids = append(uids, snap.UID)
		ids = append(ids, snap.ID)
	}
	group, err := env1.engine.CreateTabGroup(ctx, schema.CreateGroupRequest{
		Mode:   schema.GroupModeGlance,
		TabIDs: []schema.TabID{ids[1], ids[2]},
	})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := env1.engine.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	env2 := newTestEngine(t, store)
	if err := env2.engine.RestoreSession(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	windows := env2.windows.Windows()
	if len(windows) != 1 {
		t.Fatalf("expected one restored window, got %d", len(windows))
	}
	if windows[0].GroupID() != "wg-1" {
		t.Fatalf("restored window must keep its window group, got %q", windows[0].GroupID())
	}
	tabs := env2.engine.ListTabs(windows[0].ID())
	if len(tabs) != 3 {
		t.Fatalf("expected three restored tabs, got %d", len(tabs))
	}
	for i, snap := range tabs {
		if snap.UID != uids[i] {
			t.Fatalf("restored order mismatch at %d: got %q want %q", i, snap.UID, uids[i])
		}
		if !snap.Asleep {
			t.Fatalf("restored tabs must come back asleep, got %+v", snap)
		}
		if env2.engine.IsTabActive(snap.ID) {
			t.Fatalf("restore must leave activation slots empty")
		}
	}
	groups := env2.engine.ListGroups(windows[0].ID())
	if len(groups) != 1 || groups[0].ID != group.ID || len(groups[0].TabIDs) != 2 {
		t.Fatalf("expected restored group, got %+v", groups)
	}
	if len(env2.views.created) != 0 {
		t.Fatalf("restore must not construct page views")
	}
}

func TestRestoreDiscardsArchivedTabs(t *testing.T) {
	store := newEngineTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	stale := persist.TabRecord{
		UID:           "stale-uid",
		WindowGroupID: "wg-1",
		ProfileID:     "default",
		SpaceID:       "main",
		Position:      1,
		URL:           "https://old.test/",
		CreatedAt:     now.Add(-60 * 24 * time.Hour),
		LastActiveAt:  now.Add(-40 * 24 * time.Hour),
	}
	fresh := stale
	fresh.UID = "fresh-uid"
	fresh.Position = 2
	fresh.URL = "https://fresh.test/"
	fresh.LastActiveAt = now
	store.MarkDirty(stale)
	store.MarkDirty(fresh)
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	env := newTestEngine(t, store)
	if err := env.engine.RestoreSession(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	windows := env.windows.Windows()
	if len(windows) != 1 {
		t.Fatalf("expected one window, got %d", len(windows))
	}
	tabs := env.engine.ListTabs(windows[0].ID())
	if len(tabs) != 1 || tabs[0].UID != "fresh-uid" {
		t.Fatalf("archived tab must be discarded, got %+v", tabs)
	}
	records, err := store.LoadTabs(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 1 || records[0].UID != "fresh-uid" {
		t.Fatalf("archived row must be deleted from storage, got %+v", records)
	}
}

func TestSweepArchivesIdleHiddenTabs(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()
	active, err := env.engine.CreateTab(ctx, schema.CreateTabRequest{Activate: true})
	if err != nil {
		t.Fatalf("create tab: %v", err)
	}
	var hidden []schema.TabID
	for i := 0; i < 2; i++ {
		snap, err := env.engine.CreateTab(ctx, schema.CreateTabRequest{})
		if err != nil {
			t.Fatalf("create tab: %v", err)
		}
		hidden = append(hidden, snap.ID)
	}

	restore := sweepNow
	t.Cleanup(func() { sweepNow = restore })
	sweepNow = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }

	env.engine.sweepOnce(ctx)

	if _, ok := env.engine.Tab(active.ID); !ok {
		t.Fatalf("active visible tab must survive the sweep")
	}
	for _, id := range hidden {
		if _, ok := env.engine.Tab(id); ok {
			t.Fatalf("idle hidden tab %d must be archived", id)
		}
	}
	survivor, _ := env.engine.Tab(active.ID)
	if survivor.Position != 1 {
		t.Fatalf("positions must renormalize to whole numbers, got %v", survivor.Position)
	}
}

func TestShutdownRefusesNewWork(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()
	if _, err := env.engine.CreateTab(ctx, schema.CreateTabRequest{Activate: true}); err != nil {
		t.Fatalf("create tab: %v", err)
	}
	if err := env.engine.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !env.views.created[0].destroyed {
		t.Fatalf("shutdown must destroy page views")
	}
	if _, err := env.engine.CreateTab(ctx, schema.CreateTabRequest{}); !errors.Is(err, schema.ErrShuttingDown) {
		t.Fatalf("expected shutting down, got %v", err)
	}
}
