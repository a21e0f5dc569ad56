package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"pkt.systems/loom/schema"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := RunMigrations(db); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return NewStoreWithLogger(db, nil, 25)
}

func testRecord(uid string) TabRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return TabRecord{
		UID:           schema.TabUID(uid),
		WindowGroupID: "wg-1",
		ProfileID:     "default",
		SpaceID:       "main",
		Position:      1,
		Title:         "Example",
		URL:           "https://example.com/",
		NavHistory: []schema.NavigationEntry{
			{URL: "https://example.com/", Title: "Example"},
			{URL: "https://example.com/docs", Title: "Docs"},
		},
		NavIndex:     1,
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

func TestFlushRoundTrip(t *testing.T) {
	store := newTestStore(t)
	rec := testRecord("uid-1")
	store.MarkDirty(rec)
	if err := store.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	tabs, err := store.LoadTabs(context.Background())
	if err != nil {
		t.Fatalf("load tabs: %v", err)
	}
	if len(tabs) != 1 {
		t.Fatalf("expected 1 tab, got %d", len(tabs))
	}
	got := tabs[0]
	if got.URL != rec.URL || got.NavIndex != rec.NavIndex {
		t.Fatalf("url/index mismatch: %+v", got)
	}
	if len(got.NavHistory) != len(rec.NavHistory) {
		t.Fatalf("expected %d history entries, got %d", len(rec.NavHistory), len(got.NavHistory))
	}
	for i, entry := range rec.NavHistory {
		if got.NavHistory[i] != entry {
			t.Fatalf("history entry %d mismatch: %+v != %+v", i, got.NavHistory[i], entry)
		}
	}
}

func TestFlushIdempotent(t *testing.T) {
	store := newTestStore(t)
	store.MarkDirty(testRecord("uid-1"))
	if err := store.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	calls := 0
	flushTx = func(db *sql.DB, fn func(tx *sql.Tx) error) error {
		calls++
		return WithTx(db, fn)
	}
	defer func() { flushTx = WithTx }()
	if err := store.Flush(context.Background()); err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected zero writes on idempotent flush, got %d", calls)
	}
}

func TestFlushFailureRetainsPending(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < 500; i++ {
		store.MarkDirty(testRecord(fmt.Sprintf("uid-%03d", i)))
	}
	store.MarkRemoved("gone-1")
	store.MarkRemoved("gone-2")

	// Mutations arriving during the failed write must win over the re-merge.
	flushTx = func(db *sql.DB, fn func(tx *sql.Tx) error) error {
		for i := 0; i < 10; i++ {
			rec := testRecord(fmt.Sprintf("uid-%03d", i))
			rec.Title = "fresher"
			store.MarkDirty(rec)
		}
		return errors.New("disk full")
	}
	if err := store.Flush(context.Background()); err == nil {
		t.Fatalf("expected flush error")
	}

	dirty, removed := store.Pending()
	if dirty != 500 || removed != 2 {
		t.Fatalf("expected 500 dirty and 2 removed pending, got %d/%d", dirty, removed)
	}

	flushTx = WithTx
	defer func() { flushTx = WithTx }()
	if err := store.Flush(context.Background()); err != nil {
		t.Fatalf("recovery flush: %v", err)
	}
	dirty, removed = store.Pending()
	if dirty != 0 || removed != 0 {
		t.Fatalf("expected empty pending sets, got %d/%d", dirty, removed)
	}
	tabs, err := store.LoadTabs(context.Background())
	if err != nil {
		t.Fatalf("load tabs: %v", err)
	}
	if len(tabs) != 500 {
		t.Fatalf("expected 500 tabs, got %d", len(tabs))
	}
	fresher := 0
	for _, rec := range tabs {
		if rec.Title == "fresher" {
			fresher++
		}
	}
	if fresher != 10 {
		t.Fatalf("expected 10 fresher records, got %d", fresher)
	}
}

func TestRemovedOverridesDirty(t *testing.T) {
	store := newTestStore(t)
	store.MarkDirty(testRecord("uid-1"))
	store.MarkRemoved("uid-1")
	if err := store.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	tabs, err := store.LoadTabs(context.Background())
	if err != nil {
		t.Fatalf("load tabs: %v", err)
	}
	if len(tabs) != 0 {
		t.Fatalf("expected no tabs, got %d", len(tabs))
	}
}

func TestGroupRoundTrip(t *testing.T) {
	store := newTestStore(t)
	rec := GroupRecord{
		ID:            "group-1",
		Mode:          schema.GroupModeGlance,
		WindowGroupID: "wg-1",
		SpaceID:       "main",
		MemberUIDs:    []schema.TabUID{"uid-1", "uid-2"},
		FrontUID:      "uid-2",
	}
	if err := store.SaveGroup(context.Background(), rec); err != nil {
		t.Fatalf("save group: %v", err)
	}
	groups, err := store.LoadGroups(context.Background())
	if err != nil {
		t.Fatalf("load groups: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	got := groups[0]
	if got.ID != rec.ID || got.Mode != rec.Mode || got.FrontUID != rec.FrontUID {
		t.Fatalf("group mismatch: %+v", got)
	}
	if len(got.MemberUIDs) != 2 || got.MemberUIDs[0] != "uid-1" {
		t.Fatalf("member mismatch: %v", got.MemberUIDs)
	}
	if err := store.DeleteGroup(context.Background(), rec.ID); err != nil {
		t.Fatalf("delete group: %v", err)
	}
	groups, err = store.LoadGroups(context.Background())
	if err != nil {
		t.Fatalf("load groups: %v", err)
	}
	if len(groups) != 0 {
		t.Fatalf("expected no groups, got %d", len(groups))
	}
}

func TestGeometryWipe(t *testing.T) {
	store := newTestStore(t)
	geo := schema.WindowGeometry{X: 10, Y: 20, Width: 1024, Height: 768}
	if err := store.SaveGeometry(context.Background(), "wg-1", geo); err != nil {
		t.Fatalf("save geometry: %v", err)
	}
	loaded, err := store.LoadGeometry(context.Background())
	if err != nil {
		t.Fatalf("load geometry: %v", err)
	}
	if loaded["wg-1"] != geo {
		t.Fatalf("geometry mismatch: %+v", loaded["wg-1"])
	}
	if err := store.WipeGeometry(context.Background()); err != nil {
		t.Fatalf("wipe geometry: %v", err)
	}
	loaded, err = store.LoadGeometry(context.Background())
	if err != nil {
		t.Fatalf("load geometry after wipe: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected empty geometry, got %d entries", len(loaded))
	}
}

func TestRecentlyClosedRing(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 30; i++ {
		rec := ClosedTabRecord{
			UID:       schema.TabUID(fmt.Sprintf("uid-%02d", i)),
			ProfileID: "default",
			SpaceID:   "main",
			URL:       fmt.Sprintf("https://example.com/%d", i),
			ClosedAt:  now,
		}
		if i == 29 {
			rec.Group = &GroupRecord{ID: "group-1", Mode: schema.GroupModeGlance, MemberUIDs: []schema.TabUID{"uid-29", "uid-28"}}
		}
		if err := store.PushClosed(context.Background(), rec); err != nil {
			t.Fatalf("push closed %d: %v", i, err)
		}
	}
	list, err := store.ListClosed(context.Background())
	if err != nil {
		t.Fatalf("list closed: %v", err)
	}
	if len(list) != 25 {
		t.Fatalf("expected ring capped at 25, got %d", len(list))
	}
	if list[0].UID != "uid-29" {
		t.Fatalf("expected most recent first, got %s", list[0].UID)
	}
	popped, ok, err := store.PopClosed(context.Background())
	if err != nil || !ok {
		t.Fatalf("pop closed: ok=%v err=%v", ok, err)
	}
	if popped.UID != "uid-29" {
		t.Fatalf("expected uid-29, got %s", popped.UID)
	}
	if popped.Group == nil || popped.Group.ID != "group-1" {
		t.Fatalf("expected group snapshot, got %+v", popped.Group)
	}
	list, err = store.ListClosed(context.Background())
	if err != nil {
		t.Fatalf("list closed after pop: %v", err)
	}
	if len(list) != 24 {
		t.Fatalf("expected 24 entries after pop, got %d", len(list))
	}
}
