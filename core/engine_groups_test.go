package core

import (
	"context"
	"errors"
	"testing"

	"pkt.systems/loom/schema"
)

func TestCreateGroupRequiresTwoLiveTabs(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()
	snap, err := env.engine.CreateTab(ctx, schema.CreateTabRequest{Activate: true})
	if err != nil {
		t.Fatalf("create tab: %v", err)
	}
	_, err = env.engine.CreateTabGroup(ctx, schema.CreateGroupRequest{
		Mode:   schema.GroupModeGlance,
		TabIDs: []schema.TabID{snap.ID, 9999},
	})
	if !errors.Is(err, schema.ErrGroupTooSmall) {
		t.Fatalf("expected group too small, got %v", err)
	}
	_, err = env.engine.CreateTabGroup(ctx, schema.CreateGroupRequest{
		Mode:   schema.GroupMode("stacked"),
		TabIDs: []schema.TabID{snap.ID},
	})
	if !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected invalid mode, got %v", err)
	}
}

func TestGlanceGroupActivationAndFront(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()
	first, err := env.engine.CreateTab(ctx, schema.CreateTabRequest{Activate: true})
	if err != nil {
		t.Fatalf("create tab: %v", err)
	}
	second, err := env.engine.CreateTab(ctx, schema.CreateTabRequest{})
	if err != nil {
		t.Fatalf("create tab: %v", err)
	}
	group, err := env.engine.CreateTabGroup(ctx, schema.CreateGroupRequest{
		Mode:   schema.GroupModeGlance,
		TabIDs: []schema.TabID{first.ID, second.ID},
	})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if group.FrontTabID != first.ID {
		t.Fatalf("expected first member as front, got %d", group.FrontTabID)
	}
	// The group occupies the slot since a member was active. Every member
	// counts as active.
	if !env.engine.IsTabActive(first.ID) || !env.engine.IsTabActive(second.ID) {
		t.Fatalf("group members must report active")
	}

	frontBounds := schema.Rect{X: 96, Y: 0, Width: 1088, Height: 800}
	backBounds := schema.Rect{X: 32, Y: 10, Width: 1216, Height: 780}
	if env.views.created[0].bounds != frontBounds {
		t.Fatalf("front bounds: got %+v want %+v", env.views.created[0].bounds, frontBounds)
	}
	if env.views.created[1].bounds != backBounds {
		t.Fatalf("back bounds: got %+v want %+v", env.views.created[1].bounds, backBounds)
	}
	if env.views.created[0].z <= env.views.created[1].z {
		t.Fatalf("front member must stack above back members")
	}

	if err := env.engine.SetFrontTab(ctx, group.ID, second.ID); err != nil {
		t.Fatalf("set front: %v", err)
	}
	if env.views.created[1].bounds != frontBounds || env.views.created[0].bounds != backBounds {
		t.Fatalf("front swap must relayout both members")
	}
	last := env.sink.activeEvents[len(env.sink.activeEvents)-1]
	if last.FocusedTab != second.ID || last.GroupID != group.ID {
		t.Fatalf("front change must focus the raised member, got %+v", last)
	}
}

func TestGroupDissolvesBelowTwoMembers(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()
	first, err := env.engine.CreateTab(ctx, schema.CreateTabRequest{Activate: true})
	if err != nil {
		t.Fatalf("create tab: %v", err)
	}
	second, err := env.engine.CreateTab(ctx, schema.CreateTabRequest{})
	if err != nil {
		t.Fatalf("create tab: %v", err)
	}
	group, err := env.engine.CreateTabGroup(ctx, schema.CreateGroupRequest{
		Mode:   schema.GroupModeGlance,
		TabIDs: []schema.TabID{first.ID, second.ID},
	})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := env.engine.RemoveTabFromGroup(ctx, group.ID, second.ID); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	if groups := env.engine.ListGroups(first.WindowID); len(groups) != 0 {
		t.Fatalf("group must dissolve below two members, got %+v", groups)
	}
	// The front member of the dissolved active group takes over the slot.
	if !env.engine.IsTabActive(first.ID) {
		t.Fatalf("expected front member promoted to active tab")
	}
	if env.engine.IsTabActive(second.ID) {
		t.Fatalf("detached member must not stay active")
	}
	still, _ := env.engine.Tab(second.ID)
	if still.GroupID != "" {
		t.Fatalf("detached member must be ungrouped, got %+v", still)
	}
}

func TestRemovingMemberOfThreeKeepsGroup(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()
	var ids []schema.TabID
	for i := 0; i < 3; i++ {
		snap, err := env.engine.CreateTab(ctx, schema.CreateTabRequest{Activate: i == 0})
		if err != nil {
			t.Fatalf("create tab %d: %v", i, err)
		}
		ids = append(ids, snap.ID)
	}
	group, err := env.engine.CreateTabGroup(ctx, schema.CreateGroupRequest{
		Mode:   schema.GroupModeGlance,
		TabIDs: ids,
	})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := env.engine.RemoveTab(ctx, ids[2]); err != nil {
		t.Fatalf("remove tab: %v", err)
	}
	groups := env.engine.ListGroups("win-1")
	if len(groups) != 1 || len(groups[0].TabIDs) != 2 {
		t.Fatalf("group must survive with two members, got %+v", groups)
	}
	if groups[0].ID != group.ID {
		t.Fatalf("group identity must not change")
	}
	if !env.engine.IsTabActive(ids[0]) || !env.engine.IsTabActive(ids[1]) {
		t.Fatalf("remaining members must stay active")
	}
}

func TestAddTabToGroupPullsIntoSlot(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()
	first, err := env.engine.CreateTab(ctx, schema.CreateTabRequest{Activate: true})
	if err != nil {
		t.Fatalf("create tab: %v", err)
	}
	second, err := env.engine.CreateTab(ctx, schema.CreateTabRequest{})
	if err != nil {
		t.Fatalf("create tab: %v", err)
	}
	outsider, err := env.engine.CreateTab(ctx, schema.CreateTabRequest{SpaceID: "work"})
	if err != nil {
		t.Fatalf("create outsider: %v", err)
	}
	group, err := env.engine.CreateTabGroup(ctx, schema.CreateGroupRequest{
		Mode:   schema.GroupModeGlance,
		TabIDs: []schema.TabID{first.ID, second.ID},
	})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := env.engine.AddTabToGroup(ctx, group.ID, outsider.ID); err != nil {
		t.Fatalf("add member: %v", err)
	}
	joined, _ := env.engine.Tab(outsider.ID)
	if joined.SpaceID != first.SpaceID || joined.GroupID != group.ID {
		t.Fatalf("added member must land in the group slot, got %+v", joined)
	}
	if !env.engine.IsTabActive(outsider.ID) {
		t.Fatalf("member of the active group must report active")
	}
}

func TestSplitGroupSharesContentRect(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()
	first, err := env.engine.CreateTab(ctx, schema.CreateTabRequest{Activate: true})
	if err != nil {
		t.Fatalf("create tab: %v", err)
	}
	second, err := env.engine.CreateTab(ctx, schema.CreateTabRequest{})
	if err != nil {
		t.Fatalf("create tab: %v", err)
	}
	if _, err := env.engine.CreateTabGroup(ctx, schema.CreateGroupRequest{
		Mode:   schema.GroupModeSplit,
		TabIDs: []schema.TabID{first.ID, second.ID},
	}); err != nil {
		t.Fatalf("create split group: %v", err)
	}
	full := schema.Rect{Width: 1280, Height: 800}
	if env.views.created[0].bounds != full || env.views.created[1].bounds != full {
		t.Fatalf("split members keep the full content rect until split layout lands")
	}
}
