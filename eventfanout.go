package loom

import (
	"pkt.systems/loom/core"
	"pkt.systems/loom/schema"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnTabEvent(event schema.TabEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnTabEvent(event)
	}
}

func (f eventFanout) OnGroupEvent(event schema.GroupEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnGroupEvent(event)
	}
}

func (f eventFanout) OnActiveChanged(event schema.ActiveChangedEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnActiveChanged(event)
	}
}

func (f eventFanout) OnPinnedChanged(event schema.PinnedChangedEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnPinnedChanged(event)
	}
}
