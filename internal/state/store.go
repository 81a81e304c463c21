package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidKey = errors.New("invalid state key")
	ErrReadOnly   = errors.New("state transaction is read-only")
	// ErrConflict is returned when a concurrent writer invalidated the reads of
	// a transaction and retries were exhausted.
	ErrConflict = errors.New("state transaction conflict")
)

// Tx is the view of one namespace inside a transaction. Values are JSON encoded.
type Tx interface {
	Get(ctx context.Context, key Key, dst any) (bool, error)
	Set(ctx context.Context, key Key, v any) error
	Has(ctx context.Context, key Key) (bool, error)
}

// Txn is one atomic unit of work. Writes made through any scope are committed
// together or not at all.
type Txn interface {
	Scope(ns Namespace) Tx
}

// Backend runs transactions against durable storage.
type Backend interface {
	// Update runs fn and commits its writes only when fn returns nil.
	Update(ctx context.Context, fn func(Txn) error) error
	// View runs fn against a read-only transaction.
	View(ctx context.Context, fn func(Txn) error) error
	Close() error
}

type ref struct {
	ns  Namespace
	key Key
}

type observed struct {
	value []byte
	found bool
}

type source interface {
	load(ctx context.Context, r ref) ([]byte, bool, error)
}

// buffered collects writes in memory until the backend decides to commit.
// Reads hit the write set first, then the backend source.
type buffered struct {
	src      source
	readOnly bool
	writes   map[ref][]byte
	order    []ref
	reads    map[ref]observed
}

func newBuffered(src source, readOnly bool) *buffered {
	return &buffered{
		src:      src,
		readOnly: readOnly,
		writes:   make(map[ref][]byte),
		reads:    make(map[ref]observed),
	}
}

func (b *buffered) Scope(ns Namespace) Tx { return scoped{txn: b, ns: ns} }

func (b *buffered) raw(ctx context.Context, r ref) ([]byte, bool, error) {
	if v, ok := b.writes[r]; ok {
		return v, true, nil
	}
	if o, ok := b.reads[r]; ok {
		return o.value, o.found, nil
	}
	v, found, err := b.src.load(ctx, r)
	if err != nil {
		return nil, false, err
	}
	b.reads[r] = observed{value: v, found: found}
	return v, found, nil
}

// pending returns the write set in first-write order.
func (b *buffered) pending() []write {
	out := make([]write, 0, len(b.order))
	for _, r := range b.order {
		out = append(out, write{ref: r, value: b.writes[r]})
	}
	return out
}

type write struct {
	ref   ref
	value []byte
}

type scoped struct {
	txn *buffered
	ns  Namespace
}

func (s scoped) ref(key Key) (ref, error) {
	if key.IsZero() || !key.Kind().Valid() || s.ns == "" {
		return ref{}, fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	return ref{ns: s.ns, key: key}, nil
}

func (s scoped) Get(ctx context.Context, key Key, dst any) (bool, error) {
	r, err := s.ref(key)
	if err != nil {
		return false, err
	}
	v, found, err := s.txn.raw(ctx, r)
	if err != nil || !found {
		return false, err
	}
	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s scoped) Set(ctx context.Context, key Key, v any) error {
	if s.txn.readOnly {
		return ErrReadOnly
	}
	r, err := s.ref(key)
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if _, ok := s.txn.writes[r]; !ok {
		s.txn.order = append(s.txn.order, r)
	}
	s.txn.writes[r] = data
	return nil
}

func (s scoped) Has(ctx context.Context, key Key) (bool, error) {
	r, err := s.ref(key)
	if err != nil {
		return false, err
	}
	_, found, err := s.txn.raw(ctx, r)
	return found, err
}

// AppendIndex appends id to the list stored under key.
func AppendIndex(ctx context.Context, tx Tx, key Key, id string) error {
	ids, err := Index(ctx, tx, key)
	if err != nil {
		return err
	}
	return tx.Set(ctx, key, append(ids, id))
}

// Index returns the list stored under key, or an empty list when absent.
func Index(ctx context.Context, tx Tx, key Key) ([]string, error) {
	var ids []string
	found, err := tx.Get(ctx, key, &ids)
	if err != nil {
		return nil, err
	}
	if !found || ids == nil {
		return []string{}, nil
	}
	return ids, nil
}
