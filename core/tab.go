package core

import (
	"time"

	"pkt.systems/loom/schema"
)

// Tab tracks the runtime state of a single browsable unit. A tab belongs to
// exactly one window and one space at any instant; its runtime id is never
// reused while the process runs.
type Tab struct {
	id            schema.TabID
	uid           schema.TabUID
	profileID     schema.ProfileID
	spaceID       schema.SpaceID
	windowID      schema.WindowID
	windowGroupID schema.WindowGroupID
	position      float64

	title      string
	url        string
	faviconURL string

	muted            bool
	visible          bool
	asleep           bool
	fullScreen       bool
	pictureInPicture bool
	ephemeral        bool
	destroyed        bool

	createdAt    time.Time
	lastActiveAt time.Time

	navHistory []schema.NavigationEntry
	navIndex   int

	// view is nil exactly while the tab is asleep.
	view PageView
	// preSleep holds the navigation state captured when the tab went to
	// sleep, cleared again on wake.
	preSleep *sleepSnapshot

	group *TabGroup
}

type sleepSnapshot struct {
	url      string
	history  []schema.NavigationEntry
	index    int
	captured time.Time
}

// ID returns the process-lifetime runtime id.
func (t *Tab) ID() schema.TabID { return t.id }

// UID returns the restart-stable id.
func (t *Tab) UID() schema.TabUID { return t.uid }

// Group returns the group the tab belongs to, or nil.
func (t *Tab) Group() *TabGroup { return t.group }

func (t *Tab) slot() slotKey {
	return slotKey{Window: t.windowID, Space: t.spaceID}
}

func (t *Tab) touch() {
	t.lastActiveAt = time.Now().UTC()
}

// Snapshot returns a transport-friendly view of the tab.
func (t *Tab) Snapshot() schema.TabSnapshot {
	snap := schema.TabSnapshot{
		ID:           t.id,
		UID:          t.uid,
		ProfileID:    t.profileID,
		SpaceID:      t.spaceID,
		WindowID:     t.windowID,
		Position:     t.position,
		Title:        t.title,
		URL:          t.url,
		FaviconURL:   t.faviconURL,
		Muted:        t.muted,
		Visible:      t.visible,
		Asleep:       t.asleep,
		FullScreen:   t.fullScreen,
		PictureInPic: t.pictureInPicture,
		Ephemeral:    t.ephemeral,
		CreatedAt:    t.createdAt,
		LastActiveAt: t.lastActiveAt,
	}
	if t.group != nil {
		snap.GroupID = t.group.id
	}
	return snap
}

// currentNavigation reports the tab's navigation state, preferring the live
// page view and falling back to the last known history while asleep.
func (t *Tab) currentNavigation() ([]schema.NavigationEntry, int) {
	if t.asleep && t.preSleep != nil {
		return t.preSleep.history, t.preSleep.index
	}
	return t.navHistory, t.navIndex
}
