package notify

import (
	"sync"
	"testing"
	"time"

	"pkt.systems/loom/schema"
)

type captureObserver struct {
	mu         sync.Mutex
	structural []schema.StructuralPayload
	content    []schema.ContentPayload
}

func (o *captureObserver) ApplyStructural(payload schema.StructuralPayload) {
	o.mu.Lock()
	o.structural = append(o.structural, payload)
	o.mu.Unlock()
}

func (o *captureObserver) ApplyContent(payload schema.ContentPayload) {
	o.mu.Lock()
	o.content = append(o.content, payload)
	o.mu.Unlock()
}

func (o *captureObserver) counts() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.structural), len(o.content)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func testSnapshot(windowID schema.WindowID) (schema.StructuralPayload, bool) {
	return schema.StructuralPayload{
		WindowID: windowID,
		Tabs:     []schema.TabSnapshot{{ID: 1, WindowID: windowID}},
	}, true
}

func TestBurstCoalescesIntoOnePayload(t *testing.T) {
	observer := &captureObserver{}
	queue := New(testSnapshot, 20*time.Millisecond, nil)
	defer queue.Close()
	queue.Attach("win-1", observer)

	for i := 0; i < 10; i++ {
		queue.EnqueueStructural("win-1")
	}
	waitFor(t, func() bool {
		structural, _ := observer.counts()
		return structural > 0
	})
	time.Sleep(60 * time.Millisecond)
	structural, content := observer.counts()
	if structural != 1 {
		t.Fatalf("expected 1 structural payload, got %d", structural)
	}
	if content != 0 {
		t.Fatalf("expected no content payloads, got %d", content)
	}
}

func TestStructuralDiscardsPendingContent(t *testing.T) {
	observer := &captureObserver{}
	queue := New(testSnapshot, 20*time.Millisecond, nil)
	defer queue.Close()
	queue.Attach("win-1", observer)

	queue.EnqueueContent("win-1", schema.TabSnapshot{ID: 2, WindowID: "win-1"})
	queue.EnqueueStructural("win-1")
	waitFor(t, func() bool {
		structural, _ := observer.counts()
		return structural > 0
	})
	_, content := observer.counts()
	if content != 0 {
		t.Fatalf("expected content subsumed by structural resend, got %d payloads", content)
	}
}

func TestContentCoalescesLatestWins(t *testing.T) {
	observer := &captureObserver{}
	queue := New(testSnapshot, 20*time.Millisecond, nil)
	defer queue.Close()
	queue.Attach("win-1", observer)

	queue.EnqueueContent("win-1", schema.TabSnapshot{ID: 2, Title: "old", WindowID: "win-1"})
	queue.EnqueueContent("win-1", schema.TabSnapshot{ID: 3, Title: "other", WindowID: "win-1"})
	queue.EnqueueContent("win-1", schema.TabSnapshot{ID: 2, Title: "new", WindowID: "win-1"})
	waitFor(t, func() bool {
		_, content := observer.counts()
		return content > 0
	})
	observer.mu.Lock()
	defer observer.mu.Unlock()
	if len(observer.content) != 1 {
		t.Fatalf("expected 1 content payload, got %d", len(observer.content))
	}
	payload := observer.content[0]
	if len(payload.Tabs) != 2 {
		t.Fatalf("expected 2 coalesced tabs, got %d", len(payload.Tabs))
	}
	if payload.Tabs[0].ID != 2 || payload.Tabs[0].Title != "new" {
		t.Fatalf("expected latest data for tab 2 first, got %+v", payload.Tabs[0])
	}
}

func TestWindowsAreIsolated(t *testing.T) {
	observer1 := &captureObserver{}
	observer2 := &captureObserver{}
	queue := New(testSnapshot, 20*time.Millisecond, nil)
	defer queue.Close()
	queue.Attach("win-1", observer1)
	queue.Attach("win-2", observer2)

	queue.EnqueueStructural("win-1")
	waitFor(t, func() bool {
		structural, _ := observer1.counts()
		return structural > 0
	})
	structural, content := observer2.counts()
	if structural != 0 || content != 0 {
		t.Fatalf("expected no payloads for win-2, got %d/%d", structural, content)
	}
}

func TestCloseSuppressesDelivery(t *testing.T) {
	observer := &captureObserver{}
	queue := New(testSnapshot, 20*time.Millisecond, nil)
	queue.Attach("win-1", observer)
	queue.EnqueueStructural("win-1")
	queue.Close()
	time.Sleep(60 * time.Millisecond)
	structural, content := observer.counts()
	if structural != 0 || content != 0 {
		t.Fatalf("expected delivery suppressed after close, got %d/%d", structural, content)
	}
}

func TestFlushDeliversImmediately(t *testing.T) {
	observer := &captureObserver{}
	queue := New(testSnapshot, time.Hour, nil)
	defer queue.Close()
	queue.Attach("win-1", observer)
	queue.EnqueueStructural("win-1")
	queue.Flush()
	structural, _ := observer.counts()
	if structural != 1 {
		t.Fatalf("expected immediate delivery on flush, got %d", structural)
	}
}
