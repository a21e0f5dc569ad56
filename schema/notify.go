package schema

// StructuralPayload is the full per-window resend: every tab and group in the
// window plus the focused/active id maps keyed by space.
type StructuralPayload struct {
	WindowID      WindowID
	Tabs          []TabSnapshot
	Groups        []GroupSnapshot
	FocusedTabIDs map[SpaceID]TabID
	ActiveTabIDs  map[SpaceID][]TabID
}

// ContentPayload carries only the changed tabs of a window.
type ContentPayload struct {
	WindowID WindowID
	Tabs     []TabSnapshot
}
