package notify

import (
	"context"
	"sync"
	"time"

	"pkt.systems/loom/schema"
	"pkt.systems/pslog"
)

// Observer receives coalesced refresh payloads for one window.
type Observer interface {
	ApplyStructural(payload schema.StructuralPayload)
	ApplyContent(payload schema.ContentPayload)
}

// SnapshotFunc builds the full structural payload for a window at delivery
// time. It returns false when the window no longer exists.
type SnapshotFunc func(windowID schema.WindowID) (schema.StructuralPayload, bool)

// Queue coalesces structural and content-only mutations into debounced
// refresh payloads, one outbound payload per observer per cycle. A structural
// enqueue subsumes and discards any pending content entries for its window.
type Queue struct {
	log      pslog.Logger
	debounce time.Duration
	snapshot SnapshotFunc

	mu        sync.Mutex
	observers map[schema.WindowID]Observer
	pending   map[schema.WindowID]*windowPending
	closed    bool
}

type windowPending struct {
	structural bool
	content    map[schema.TabID]schema.TabSnapshot
	order      []schema.TabID
	timer      *time.Timer
}

// New constructs a queue. The snapshot func is consulted lazily at delivery
// time so a burst of changes costs one listing, not one per change.
func New(snapshot SnapshotFunc, debounce time.Duration, logger pslog.Logger) *Queue {
	if debounce <= 0 {
		debounce = schema.DefaultDebounceWindow
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Queue{
		log:       logger,
		debounce:  debounce,
		snapshot:  snapshot,
		observers: make(map[schema.WindowID]Observer),
		pending:   make(map[schema.WindowID]*windowPending),
	}
}

// Attach registers the observer for a window, replacing any previous one.
func (q *Queue) Attach(windowID schema.WindowID, observer Observer) {
	q.mu.Lock()
	q.observers[windowID] = observer
	q.mu.Unlock()
}

// Detach removes the window's observer and drops its pending entries.
func (q *Queue) Detach(windowID schema.WindowID) {
	q.mu.Lock()
	delete(q.observers, windowID)
	if pending := q.pending[windowID]; pending != nil && pending.timer != nil {
		pending.timer.Stop()
	}
	delete(q.pending, windowID)
	q.mu.Unlock()
}

// EnqueueStructural schedules a full resend of the window's tab/group listing.
func (q *Queue) EnqueueStructural(windowID schema.WindowID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	pending := q.ensurePendingLocked(windowID)
	pending.structural = true
	// The full resend subsumes any queued per-tab content.
	pending.content = nil
	pending.order = nil
}

// EnqueueContent schedules a resend of just the changed tabs' data.
func (q *Queue) EnqueueContent(windowID schema.WindowID, tabs ...schema.TabSnapshot) {
	if len(tabs) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	pending := q.ensurePendingLocked(windowID)
	if pending.structural {
		return
	}
	if pending.content == nil {
		pending.content = make(map[schema.TabID]schema.TabSnapshot)
	}
	for _, tab := range tabs {
		if _, seen := pending.content[tab.ID]; !seen {
			pending.order = append(pending.order, tab.ID)
		}
		pending.content[tab.ID] = tab
	}
}

// Flush delivers every pending payload immediately.
func (q *Queue) Flush() {
	q.mu.Lock()
	windows := make([]schema.WindowID, 0, len(q.pending))
	for windowID, pending := range q.pending {
		if pending.timer != nil {
			pending.timer.Stop()
		}
		windows = append(windows, windowID)
	}
	q.mu.Unlock()
	for _, windowID := range windows {
		q.fire(windowID)
	}
}

// Close stops all timers and suppresses further deliveries.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	for _, pending := range q.pending {
		if pending.timer != nil {
			pending.timer.Stop()
		}
	}
	q.pending = make(map[schema.WindowID]*windowPending)
	q.mu.Unlock()
}

func (q *Queue) ensurePendingLocked(windowID schema.WindowID) *windowPending {
	pending := q.pending[windowID]
	if pending == nil {
		pending = &windowPending{}
		q.pending[windowID] = pending
	}
	if pending.timer == nil {
		pending.timer = time.AfterFunc(q.debounce, func() { q.fire(windowID) })
	}
	return pending
}

func (q *Queue) fire(windowID schema.WindowID) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	pending := q.pending[windowID]
	delete(q.pending, windowID)
	observer := q.observers[windowID]
	q.mu.Unlock()
	if pending == nil || observer == nil {
		return
	}
	if pending.structural {
		if q.snapshot == nil {
			return
		}
		payload, ok := q.snapshot(windowID)
		if !ok {
			q.log.Trace("notify skipped", "window", windowID, "reason", "window gone")
			return
		}
		observer.ApplyStructural(payload)
		q.log.Trace("notify structural", "window", windowID, "tabs", len(payload.Tabs), "groups", len(payload.Groups))
		return
	}
	if len(pending.order) == 0 {
		return
	}
	payload := schema.ContentPayload{WindowID: windowID}
	payload.Tabs = make([]schema.TabSnapshot, 0, len(pending.order))
	for _, id := range pending.order {
		payload.Tabs = append(payload.Tabs, pending.content[id])
	}
	observer.ApplyContent(payload)
	q.log.Trace("notify content", "window", windowID, "tabs", len(payload.Tabs))
}
