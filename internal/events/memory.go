package events

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Publisher and Subscriber. It keeps every published event so
// the simulator and tests can inspect the log after the fact.
type MemoryBus struct {
	mu       sync.Mutex
	log      map[string][]Event
	handlers map[string][]func(Event)
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		log:      make(map[string][]Event),
		handlers: make(map[string][]func(Event)),
	}
}

func (b *MemoryBus) Publish(_ context.Context, stream string, event Event) error {
	b.mu.Lock()
	b.log[stream] = append(b.log[stream], event)
	handlers := append([]func(Event){}, b.handlers[stream]...)
	b.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

func (b *MemoryBus) PublishAll(ctx context.Context, stream string, events []Event) error {
	for _, e := range events {
		if err := b.Publish(ctx, stream, e); err != nil {
			return err
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, stream string, handler func(Event)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[stream] = append(b.handlers[stream], handler)
	return nil
}

// Events returns a copy of everything published to stream so far.
func (b *MemoryBus) Events(stream string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.log[stream]...)
}
