// Package host provides in-process implementations of the engine's
// collaborator interfaces for running loom without a native shell. A real
// embedding replaces these with adapters over its own windowing and profile
// systems.
package host

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"pkt.systems/pslog"

	"pkt.systems/loom/core"
	"pkt.systems/loom/schema"
)

// Window is a virtual host window. It tracks geometry and full-screen state
// but has no native surface behind it.
type Window struct {
	mu         sync.Mutex
	id         schema.WindowID
	groupID    schema.WindowGroupID
	geometry   schema.WindowGeometry
	fullScreen bool
}

// ID returns the window identifier.
func (w *Window) ID() schema.WindowID { return w.id }

// GroupID returns the persistent window-group identifier.
func (w *Window) GroupID() schema.WindowGroupID { return w.groupID }

// Geometry returns the current outer frame.
func (w *Window) Geometry() schema.WindowGeometry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.geometry
}

// SetGeometry updates the outer frame.
func (w *Window) SetGeometry(geometry schema.WindowGeometry) {
	w.mu.Lock()
	w.geometry = geometry
	w.mu.Unlock()
}

// FullScreen reports whether the window is full screen.
func (w *Window) FullScreen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fullScreen
}

// SetFullScreen toggles full-screen state.
func (w *Window) SetFullScreen(on bool) {
	w.mu.Lock()
	w.fullScreen = on
	w.mu.Unlock()
}

// ContentRect returns the drawable area. Virtual windows have no chrome, so
// the content rect spans the full frame at the origin.
func (w *Window) ContentRect() schema.Rect {
	w.mu.Lock()
	defer w.mu.Unlock()
	return schema.Rect{Width: w.geometry.Width, Height: w.geometry.Height}
}

// Registry implements core.WindowRegistry over virtual windows.
type Registry struct {
	mu      sync.Mutex
	log     pslog.Logger
	windows map[schema.WindowID]*Window
	focused schema.WindowID
	nextID  uint64
}

// NewRegistry returns an empty registry.
func NewRegistry(log pslog.Logger) *Registry {
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	return &Registry{log: log, windows: make(map[schema.WindowID]*Window)}
}

// Window resolves a window by ID.
func (r *Registry) Window(windowID schema.WindowID) (core.Window, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[windowID]
	if !ok {
		return nil, false
	}
	return w, true
}

// FocusedWindow returns the most recently focused window.
func (r *Registry) FocusedWindow() (core.Window, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[r.focused]
	if !ok {
		return nil, false
	}
	return w, true
}

// Windows lists all windows in stable ID order.
func (r *Registry) Windows() []core.Window {
	r.mu.Lock()
	defer r.mu.Unlock()
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

// CreateWindow opens a new virtual window. An empty GroupID gets a fresh
// group identifier; restore passes the persisted one through.
func (r *Registry) CreateWindow(_ context.Context, req core.CreateWindowRequest) (core.Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	w := &Window{
		id:       schema.WindowID(fmt.Sprintf("win-%d", r.nextID)),
		groupID:  req.GroupID,
		geometry: req.Geometry,
	}
	if w.groupID == "" {
		w.groupID = schema.WindowGroupID(fmt.Sprintf("wg-%d", r.nextID))
	}
	r.windows[w.id] = w
	r.focused = w.id
	r.log.Debug("host window created", "window", w.id, "window_group", w.groupID)
	return w, nil
}

// Focus marks a window as focused. Unknown IDs are ignored.
func (r *Registry) Focus(windowID schema.WindowID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.windows[windowID]; ok {
		r.focused = windowID
	}
}

// Close removes a window from the registry.
func (r *Registry) Close(windowID schema.WindowID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.windows, windowID)
	if r.focused == windowID {
		r.focused = ""
	}
}
