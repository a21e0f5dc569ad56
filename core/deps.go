package core

import (
	"context"

	"pkt.systems/loom/internal/notify"
	"pkt.systems/loom/internal/persist"
	"pkt.systems/loom/schema"
	"pkt.systems/pslog"
)

// ProfileSession is the opaque session handle returned by profile resolution.
type ProfileSession interface {
	ProfileID() schema.ProfileID
}

// ProfileResolver guarantees a profile is loaded before any tab uses it.
// EnsureProfile may block on an external lookup; callers re-validate liveness
// of their targets after it returns.
type ProfileResolver interface {
	EnsureProfile(ctx context.Context, profileID schema.ProfileID) (ProfileSession, error)
}

// SpaceResolver maps spaces to their owning profiles and tracks recency.
type SpaceResolver interface {
	SpaceProfile(ctx context.Context, spaceID schema.SpaceID) (schema.ProfileID, error)
	MostRecentSpace(ctx context.Context) (schema.SpaceID, bool)
	MostRecentSpaceFor(ctx context.Context, profileID schema.ProfileID) (schema.SpaceID, bool)
}

// Window is a live host window handle.
type Window interface {
	ID() schema.WindowID
	GroupID() schema.WindowGroupID
	ContentRect() schema.Rect
	Geometry() schema.WindowGeometry
	FullScreen() bool
	SetFullScreen(on bool)
}

// CreateWindowRequest asks the registry for a new window. GroupID carries a
// persisted window-group identifier forward at restore; empty means assign a
// fresh one.
type CreateWindowRequest struct {
	GroupID  schema.WindowGroupID
	Geometry schema.WindowGeometry
}

// WindowRegistry resolves and creates host windows.
type WindowRegistry interface {
	Window(windowID schema.WindowID) (Window, bool)
	FocusedWindow() (Window, bool)
	Windows() []Window
	CreateWindow(ctx context.Context, req CreateWindowRequest) (Window, error)
}

// PageView is the embedding page-view primitive. The engine only ever drives
// it through this interface; rendering itself is out of scope.
type PageView interface {
	Show() error
	Hide() error
	SetBounds(bounds schema.Rect) error
	SetZOrder(z int) error
	Navigate(url string) error
	NavigationHistory() ([]schema.NavigationEntry, int, error)
	MediaPlaying() bool
	EnterPictureInPicture() error
	ExitPictureInPicture() error
	Destroy() error
}

// PageViewOptions configures a freshly constructed page view.
type PageViewOptions struct {
	ProfileID    schema.ProfileID
	URL          string
	History      []schema.NavigationEntry
	HistoryIndex int
}

// PageViewFactory constructs page views. Wake-from-sleep goes through here as
// well as initial tab creation.
type PageViewFactory interface {
	NewPageView(ctx context.Context, opts PageViewOptions) (PageView, error)
}

// EventSink receives structural engine events.
type EventSink interface {
	OnTabEvent(event schema.TabEvent)
	OnGroupEvent(event schema.GroupEvent)
	OnActiveChanged(event schema.ActiveChangedEvent)
	OnPinnedChanged(event schema.PinnedChangedEvent)
}

// EngineDeps captures dependencies for the engine. Store, Sink and Notifier
// are optional; collaborator interfaces are required.
type EngineDeps struct {
	Profiles  ProfileResolver
	Spaces    SpaceResolver
	Windows   WindowRegistry
	PageViews PageViewFactory
	Store     *persist.Store
	Sink      EventSink
	Notifier  *notify.Queue
	Logger    pslog.Logger
}
