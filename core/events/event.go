package events

import "escrowchain/core/types"

// Event represents a structured state change emitted by the chain.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// Wire is implemented by events that can be rendered into the flat
// attribute form persisted by the event journal.
type Wire interface {
	Event() *types.Event
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer collects events emitted during a unit of work so they can be
// published only once the unit commits.
type Buffer struct {
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.events = append(b.events, evt)
}

// Len reports the number of buffered events.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.events)
}

// Truncate drops events emitted after the buffer held n of them.
func (b *Buffer) Truncate(n int) {
	if b == nil || n < 0 || n >= len(b.events) {
		return
	}
	b.events = b.events[:n]
}

// Drain returns the buffered events and clears the buffer.
func (b *Buffer) Drain() []Event {
	if b == nil {
		return nil
	}
	out := b.events
	b.events = nil
	return out
}

// Reset discards all buffered events.
func (b *Buffer) Reset() {
	if b == nil {
		return
	}
	b.events = nil
}

// ToWire converts events into their flat representation, skipping events
// that do not render one.
func ToWire(evts []Event) []types.Event {
	out := make([]types.Event, 0, len(evts))
	for _, evt := range evts {
		w, ok := evt.(Wire)
		if !ok {
			continue
		}
		rendered := w.Event()
		if rendered == nil {
			continue
		}
		attrs := make(map[string]string, len(rendered.Attributes))
		for k, v := range rendered.Attributes {
			attrs[k] = v
		}
		out = append(out, types.Event{Type: rendered.Type, Attributes: attrs})
	}
	return out
}
