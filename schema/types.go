package schema

// TabID is the process-lifetime numeric handle of a live tab. IDs are never
// reused while the process runs.
type TabID uint64

// TabUID identifies a tab stably across restarts.
type TabUID string

// WindowID identifies a host window.
type WindowID string

// WindowGroupID groups persisted tabs under the window they were last part
// of, so restore can recreate one window per group.
type WindowGroupID string

// SpaceID identifies a workspace within a profile.
type SpaceID string

// ProfileID identifies a browsing profile.
type ProfileID string

// GroupID identifies a tab group stably across restarts.
type GroupID string

// GroupMode selects the tab-group composition variant.
type GroupMode string

const (
	// GroupModeGlance renders two tabs simultaneously, the front one smaller
	// and on top.
	GroupModeGlance GroupMode = "glance"
	// GroupModeSplit is the planned side-by-side variant. Membership and
	// activation are fully tracked; bounds computation is a stub.
	GroupModeSplit GroupMode = "split"
)

// Rect is a rectangle in window content coordinates.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// WindowGeometry is the persisted outer frame of a window.
type WindowGeometry struct {
	X      int
	Y      int
	Width  int
	Height int
}

// NavigationEntry is one entry of a tab's navigation history.
type NavigationEntry struct {
	URL   string
	Title string
}
