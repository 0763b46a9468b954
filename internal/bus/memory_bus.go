// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"sync"

	"github.com/ManuGH/astrogate/internal/metrics"
)

const defaultBuffer = 64

// MemoryBus is an in-memory pub/sub. It is not durable and provides
// best-effort delivery: slow subscribers lose messages instead of blocking
// the publisher.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySub]struct{}
	buffer int
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[*memorySub]struct{}), buffer: defaultBuffer}
}

// NewMemoryBusWithBuffer is like NewMemoryBus with a custom per-subscriber buffer.
func NewMemoryBusWithBuffer(n int) *MemoryBus {
	b := NewMemoryBus()
	if n > 0 {
		b.buffer = n
	}
	return b
}

func (b *MemoryBus) Publish(_ context.Context, topic string, msg Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs[topic] {
		select {
		case s.ch <- msg:
		default:
			// drop on backpressure to avoid producer blockage
			metrics.IncBusDrop(topic)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (Subscriber, error) {
	s := &memorySub{bus: b, topic: topic, ch: make(chan Message, b.buffer)}

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*memorySub]struct{})
	}
	b.subs[topic][s] = struct{}{}
	b.mu.Unlock()

	if ctx != nil && ctx.Done() != nil {
		s.stop = context.AfterFunc(ctx, s.detach)
	}
	return s, nil
}

type memorySub struct {
	bus   *MemoryBus
	topic string
	ch    chan Message
	once  sync.Once
	stop  func() bool
}

func (s *memorySub) C() <-chan Message { return s.ch }

func (s *memorySub) Close() error {
	if s.stop != nil {
		s.stop()
	}
	s.detach()
	return nil
}

// detach runs on the AfterFunc goroutine too, so it must not touch stop.
func (s *memorySub) detach() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs[s.topic], s)
		if len(s.bus.subs[s.topic]) == 0 {
			delete(s.bus.subs, s.topic)
		}
		// closed under the write lock so no publisher can send afterwards
		close(s.ch)
		s.bus.mu.Unlock()
	})
}
