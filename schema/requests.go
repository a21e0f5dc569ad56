package schema

// CreateTabRequest asks the engine to create a tab. WindowID, ProfileID and
// SpaceID are all optional; unset fields are resolved against the focused or
// first window and the profile's most-recently-used space.
type CreateTabRequest struct {
	WindowID  WindowID
	ProfileID ProfileID
	SpaceID   SpaceID
	URL       string
	Title     string
	// Ephemeral excludes the tab from persistence and structural listings.
	Ephemeral bool
	// Activate makes the new tab active in its window+space.
	Activate bool
}

// CreateGroupRequest asks the engine to compose existing tabs into a group.
// Tabs already in another group are detached first.
type CreateGroupRequest struct {
	Mode   GroupMode
	TabIDs []TabID
}

// MoveTabRequest re-homes a tab into another window and/or space.
type MoveTabRequest struct {
	TabID    TabID
	WindowID WindowID
	SpaceID  SpaceID
}
