package eventbus

import (
	"context"
	"sync"

	"pkt.systems/loom/schema"
	"pkt.systems/pslog"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventTab carries tab lifecycle updates.
	EventTab EventType = "tab"
	// EventGroup carries tab-group lifecycle updates.
	EventGroup EventType = "group"
	// EventActive carries active-slot changes for a window+space.
	EventActive EventType = "active"
	// EventPinned carries pinned-tab-association broadcasts.
	EventPinned EventType = "pinned"
)

// Event represents an engine event delivered to subscribers.
type Event struct {
	Type   EventType
	Tab    schema.TabEvent
	Group  schema.GroupEvent
	Active schema.ActiveChangedEvent
	Pinned schema.PinnedChangedEvent
}

// Bus fanouts engine events to per-window subscribers.
type Bus struct {
	mu    sync.Mutex
	subs  map[schema.WindowID]map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[schema.WindowID]map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber for the window and returns a channel + cancel.
func (b *Bus) Subscribe(windowID schema.WindowID) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	windowSubs := b.subs[windowID]
	if windowSubs == nil {
		windowSubs = make(map[chan Event]struct{})
		b.subs[windowID] = windowSubs
	}
	windowSubs[ch] = struct{}{}
	count := len(windowSubs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.With("window", windowID).Debug("eventbus subscribe", "subs", count)
	}
	return ch, func() {
		b.mu.Lock()
		if subs := b.subs[windowID]; subs != nil {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(b.subs, windowID)
			}
		}
		b.mu.Unlock()
		close(ch)
		if b.log != nil {
			b.log.With("window", windowID).Debug("eventbus unsubscribe")
		}
	}
}

// OnTabEvent publishes a tab event to the tab's window.
func (b *Bus) OnTabEvent(event schema.TabEvent) {
	b.publish(event.Tab.WindowID, Event{Type: EventTab, Tab: event})
}

// OnGroupEvent publishes a group event to the group's window.
func (b *Bus) OnGroupEvent(event schema.GroupEvent) {
	b.publish(event.Group.WindowID, Event{Type: EventGroup, Group: event})
}

// OnActiveChanged publishes an active-slot change to its window.
func (b *Bus) OnActiveChanged(event schema.ActiveChangedEvent) {
	b.publish(event.WindowID, Event{Type: EventActive, Active: event})
}

// OnPinnedChanged broadcasts a pinned-tab-association change to every window.
func (b *Bus) OnPinnedChanged(event schema.PinnedChangedEvent) {
	if b == nil {
		return
	}
	b.mu.Lock()
	windows := make([]schema.WindowID, 0, len(b.subs))
	for windowID := range b.subs {
		windows = append(windows, windowID)
	}
	b.mu.Unlock()
	for _, windowID := range windows {
		b.publish(windowID, Event{Type: EventPinned, Pinned: event})
	}
}

func (b *Bus) publish(windowID schema.WindowID, event Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	windowSubs := b.subs[windowID]
	subs := make([]chan Event, 0, len(windowSubs))
	for sub := range windowSubs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	dropped := 0
	for _, sub := range subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 && b.log != nil {
		b.log.With("window", windowID).Trace("eventbus dropped", "count", dropped)
	}
}
