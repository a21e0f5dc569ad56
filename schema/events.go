package schema

// TabEventType describes tab lifecycle or state changes.
type TabEventType string

const (
	// TabEventCreated indicates a tab was created.
	TabEventCreated TabEventType = "created"
	// TabEventRemoved indicates a tab was removed.
	TabEventRemoved TabEventType = "removed"
	// TabEventUpdated indicates content-only tab state changed.
	TabEventUpdated TabEventType = "updated"
	// TabEventMoved indicates a tab changed window or space.
	TabEventMoved TabEventType = "moved"
	// TabEventSlept indicates a tab released its page view.
	TabEventSlept TabEventType = "slept"
	// TabEventWoke indicates a tab recreated its page view.
	TabEventWoke TabEventType = "woke"
)

// TabEvent represents a change to a single tab.
type TabEvent struct {
	Type TabEventType
	Tab  TabSnapshot
}

// GroupEventType describes tab-group lifecycle changes.
type GroupEventType string

const (
	// GroupEventCreated indicates a group was created.
	GroupEventCreated GroupEventType = "created"
	// GroupEventChanged indicates group membership or front changed.
	GroupEventChanged GroupEventType = "changed"
	// GroupEventDissolved indicates a group fell below two members or was
	// removed explicitly.
	GroupEventDissolved GroupEventType = "dissolved"
)

// GroupEvent represents a change to a tab group.
type GroupEvent struct {
	Type  GroupEventType
	Group GroupSnapshot
}

// ActiveChangedEvent reports the active slot of one window+space after a
// change. Zero ids mean the slot is empty.
type ActiveChangedEvent struct {
	WindowID   WindowID
	SpaceID    SpaceID
	ActiveTab  TabID
	ActiveIDs  []TabID
	FocusedTab TabID
	GroupID    GroupID
}

// PinnedChangedEvent broadcasts a pinned-tab-association change.
type PinnedChangedEvent struct {
	Tab TabSnapshot
}
