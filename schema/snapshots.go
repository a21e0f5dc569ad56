package schema

import "time"

// TabSnapshot is a read-only view of tab state for transports and listings.
type TabSnapshot struct {
	ID           TabID
	UID          TabUID
	ProfileID    ProfileID
	SpaceID      SpaceID
	WindowID     WindowID
	Position     float64
	Title        string
	URL          string
	FaviconURL   string
	Muted        bool
	Visible      bool
	Asleep       bool
	FullScreen   bool
	PictureInPic bool
	Ephemeral    bool
	GroupID      GroupID
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// GroupSnapshot is a read-only view of a tab group.
type GroupSnapshot struct {
	ID         GroupID
	Mode       GroupMode
	WindowID   WindowID
	SpaceID    SpaceID
	TabIDs     []TabID
	FrontTabID TabID
}

// ClosedTabSnapshot is one entry of the recently-closed ring,
// most-recent-first.
type ClosedTabSnapshot struct {
	Tab      TabSnapshot
	ClosedAt time.Time
	// Group carries the group the tab belonged to at close time, if any.
	Group *GroupSnapshot
}
