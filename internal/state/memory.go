package state

import (
	"context"
	"sync"
)

// Memory keeps state in process memory. Update calls are serialized.
type Memory struct {
	mu   sync.RWMutex
	data map[ref][]byte
}

var _ Backend = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{data: make(map[ref][]byte)}
}

func (m *Memory) Update(ctx context.Context, fn func(Txn) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn := newBuffered(memorySource{m}, false)
	if err := fn(txn); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, w := range txn.pending() {
		m.data[w.ref] = clone(w.value)
	}
	return nil
}

func (m *Memory) View(ctx context.Context, fn func(Txn) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(newBuffered(memorySource{m}, true))
}

func (m *Memory) Close() error { return nil }

// memorySource reads the committed map; callers hold m.mu.
type memorySource struct{ m *Memory }

func (s memorySource) load(_ context.Context, r ref) ([]byte, bool, error) {
	v, ok := s.m.data[r]
	if !ok {
		return nil, false, nil
	}
	return clone(v), true, nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
