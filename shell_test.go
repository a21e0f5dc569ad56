package loom

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"pkt.systems/loom/core"
	"pkt.systems/loom/internal/eventbus"
	"pkt.systems/loom/schema"
)

func TestShellLifecycleAndEventFanout(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	s, err := New(ShellConfig{
		Engine: schema.EngineConfig{StatePath: filepath.Join(t.TempDir(), "state.db")},
	}, ShellDeps{
		Profiles:  stubProfiles{},
		Spaces:    stubSpaces{},
		Windows:   newStubRegistry(),
		PageViews: &stubViewFactory{},
		EventSink: sink,
	}, WithEventBus())
	if err != nil {
		t.Fatalf("new shell: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	snap, err := s.Engine().CreateTab(ctx, schema.CreateTabRequest{URL: "https://example.com/", Activate: true})
	if err != nil {
		t.Fatalf("create tab: %v", err)
	}
	if len(sink.tabEvents) == 0 || sink.tabEvents[0].Type != schema.TabEventCreated {
		t.Fatalf("external sink must receive tab events, got %+v", sink.tabEvents)
	}

	// The bus side of the fanout serves per-window subscribers.
	ch, cancel := s.Bus().Subscribe(snap.WindowID)
	defer cancel()
	if err := s.Engine().SetTabTitle(ctx, snap.ID, "Example"); err != nil {
		t.Fatalf("set title: %v", err)
	}
	select {
	case event := <-ch:
		if event.Type != eventbus.EventTab {
			t.Fatalf("expected tab event from bus, got %v", event.Type)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for bus event")
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := s.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestShellPersistsAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	statePath := filepath.Join(t.TempDir(), "state.db")
	deps := func() ShellDeps {
		return ShellDeps{
			Profiles:  stubProfiles{},
			Spaces:    stubSpaces{},
			Windows:   newStubRegistry(),
			PageViews: &stubViewFactory{},
		}
	}

	s1, err := New(ShellConfig{Engine: schema.EngineConfig{StatePath: statePath}}, deps())
	if err != nil {
		t.Fatalf("new shell: %v", err)
	}
	if err := s1.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	snap, err := s1.Engine().CreateTab(ctx, schema.CreateTabRequest{URL: "https://example.com/", Activate: true})
	if err != nil {
		t.Fatalf("create tab: %v", err)
	}
	if err := s1.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	s2, err := New(ShellConfig{Engine: schema.EngineConfig{StatePath: statePath}}, deps(), WithSessionRestore())
	if err != nil {
		t.Fatalf("new shell 2: %v", err)
	}
	if err := s2.Start(ctx); err != nil {
		t.Fatalf("start 2: %v", err)
	}
	defer func() { _ = s2.Stop(ctx) }()
	restored := s2.Engine().ListTabs("win-1")
	if len(restored) != 1 || restored[0].UID != snap.UID || !restored[0].Asleep {
		t.Fatalf("expected restored sleeping tab, got %+v", restored)
	}
}

type stubProfiles struct{}

func (stubProfiles) EnsureProfile(_ context.Context, profileID schema.ProfileID) (core.ProfileSession, error) {
	return stubSession{id: profileID}, nil
}

type stubSession struct{ id schema.ProfileID }

func (s stubSession) ProfileID() schema.ProfileID { return s.id }

type stubSpaces struct{}

func (stubSpaces) SpaceProfile(context.Context, schema.SpaceID) (schema.ProfileID, error) {
	return "default", nil
}
func (stubSpaces) MostRecentSpace(context.Context) (schema.SpaceID, bool) { return "main", true }
func (stubSpaces) MostRecentSpaceFor(context.Context, schema.ProfileID) (schema.SpaceID, bool) {
	return "main", true
}

type stubWindow struct {
	id      schema.WindowID
	groupID schema.WindowGroupID
	geo     schema.WindowGeometry
}

func (w *stubWindow) ID() schema.WindowID             { return w.id }
func (w *stubWindow) GroupID() schema.WindowGroupID   { return w.groupID }
func (w *stubWindow) Geometry() schema.WindowGeometry { return w.geo }
func (w *stubWindow) FullScreen() bool                { return false }
func (w *stubWindow) SetFullScreen(bool)              {}
func (w *stubWindow) ContentRect() schema.Rect {
	return schema.Rect{Width: w.geo.Width, Height: w.geo.Height}
}

type stubRegistry struct {
	windows map[schema.WindowID]*stubWindow
	nextID  int
}

func newStubRegistry() *stubRegistry {
	return &stubRegistry{windows: make(map[schema.WindowID]*stubWindow)}
}

func (r *stubRegistry) Window(windowID schema.WindowID) (core.Window, bool) {
	w, ok := r.windows[windowID]
	return w, ok
}

func (r *stubRegistry) FocusedWindow() (core.Window, bool) { return nil, false }

func (r *stubRegistry) Windows() []core.Window {
	ids := make([]string, 0, len(r.windows))
	for id := range r.windows {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	all := make([]core.Window, 0, len(ids))
	for _, id := range ids {
		all = append(all, r.windows[schema.WindowID(id)])
	}
	return all
}

func (r *stubRegistry) CreateWindow(_ context.Context, req core.CreateWindowRequest) (core.Window, error) {
	r.nextID++
	w := &stubWindow{
		id:      schema.WindowID(fmt.Sprintf("win-%d", r.nextID)),
		groupID: req.GroupID,
		geo:     req.Geometry,
	}
	if w.groupID == "" {
		w.groupID = schema.WindowGroupID(fmt.Sprintf("wg-%d", r.nextID))
	}
	r.windows[w.id] = w
	return w, nil
}

type stubView struct{ destroyed bool }

func (v *stubView) Show() error                 { return nil }
func (v *stubView) Hide() error                 { return nil }
func (v *stubView) SetBounds(schema.Rect) error { return nil }
func (v *stubView) SetZOrder(int) error         { return nil }
func (v *stubView) Navigate(string) error       { return nil }
func (v *stubView) NavigationHistory() ([]schema.NavigationEntry, int, error) {
	return nil, 0, fmt.Errorf("unavailable")
}
func (v *stubView) MediaPlaying() bool           { return false }
func (v *stubView) EnterPictureInPicture() error { return nil }
func (v *stubView) ExitPictureInPicture() error  { return nil }
func (v *stubView) Destroy() error               { v.destroyed = true; return nil }

type stubViewFactory struct{ created []*stubView }

func (f *stubViewFactory) NewPageView(context.Context, core.PageViewOptions) (core.PageView, error) {
	view := &stubView{}
	f.created = append(f.created, view)
	return view, nil
}

type recordingSink struct {
	tabEvents    []schema.TabEvent
	groupEvents  []schema.GroupEvent
	activeEvents []schema.ActiveChangedEvent
	pinnedEvents []schema.PinnedChangedEvent
}

func (s *recordingSink) OnTabEvent(event schema.TabEvent)     { s.tabEvents = append(s.tabEvents, event) }
func (s *recordingSink) OnGroupEvent(event schema.GroupEvent) { s.groupEvents = append(s.groupEvents, event) }
func (s *recordingSink) OnActiveChanged(event schema.ActiveChangedEvent) {
	s.activeEvents = append(s.activeEvents, event)
}
func (s *recordingSink) OnPinnedChanged(event schema.PinnedChangedEvent) {
	s.pinnedEvents = append(s.pinnedEvents, event)
}
