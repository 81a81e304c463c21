package events

import (
	"context"
	"sync"

	"verida.org/internal/contract"
)

// Stream fan-outs committed events to live subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan contract.Event
	next int
}

func NewStream() *Stream {
	return &Stream{subs: make(map[int]chan contract.Event)}
}

// Subscribe registers a subscriber and returns a channel which will receive events.
// The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan contract.Event {
	ch := make(chan contract.Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers. It never blocks.
func (s *Stream) Publish(_ context.Context, evt contract.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow.
		}
	}
	return nil
}

// Subscribers reports the number of active subscribers.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
