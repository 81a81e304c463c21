package contract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"verida.org/internal/obs"
	"verida.org/internal/state"
)

// Principal is an opaque identity. The core only compares principals for
// equality; verifying them is the job of the Authorizer.
type Principal string

func (p Principal) String() string { return string(p) }

// Valid reports whether p is non-empty.
func (p Principal) Valid() bool { return strings.TrimSpace(string(p)) != "" }

// Authorizer asserts that p authorized the current call.
type Authorizer interface {
	RequireAuth(ctx context.Context, p Principal) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, p Principal) error

func (f AuthorizerFunc) RequireAuth(ctx context.Context, p Principal) error { return f(ctx, p) }

// Clock supplies ledger time. Timestamps have second resolution.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads wall time truncated to seconds.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC().Truncate(time.Second) }

// Event describes a committed mutation. Record holds the snapshot of the
// affected record after the call.
type Event struct {
	Contract string          `json:"contract"`
	Name     string          `json:"name"`
	ID       string          `json:"id"`
	At       time.Time       `json:"at"`
	Record   json.RawMessage `json:"record,omitempty"`
}

// Publisher receives events after their call committed.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Call summarizes one finished invocation for observers.
type Call struct {
	Contract string
	Op       string
	Err      error
	Duration time.Duration
	Events   []Event
}

// Observer is notified after every invocation, committed or not.
type Observer func(ctx context.Context, call Call)

// Env is the execution environment of one call: its transaction, the store
// of the invoked contract, ledger time and the authorization capability.
type Env struct {
	ctx      context.Context
	txn      state.Txn
	store    state.Tx
	now      time.Time
	auth     Authorizer
	contract state.Namespace
	events   []Event
}

func (e *Env) Context() context.Context { return e.ctx }

// Store returns the invoked contract's own records.
func (e *Env) Store() state.Tx { return e.store }

// Txn exposes the whole transaction so capabilities can enlist in it.
func (e *Env) Txn() state.Txn { return e.txn }

func (e *Env) Now() time.Time { return e.now }

// RequireAuth fails the call unless p authorized it.
func (e *Env) RequireAuth(p Principal) error {
	if !p.Valid() {
		return ErrUnauthorized
	}
	if e.auth == nil {
		return ErrUnauthorized
	}
	return e.auth.RequireAuth(e.ctx, p)
}

// Emit records an event to be published once the call commits.
func (e *Env) Emit(name, id string, record any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", name, err)
	}
	e.events = append(e.events, Event{
		Contract: string(e.contract),
		Name:     name,
		ID:       id,
		At:       e.now,
		Record:   raw,
	})
	return nil
}

// Host executes contract calls atomically against a state backend.
type Host struct {
	backend   state.Backend
	clock     Clock
	auth      Authorizer
	publisher Publisher
	observers []Observer
}

// Option configures Host.
type Option func(*Host)

func WithClock(c Clock) Option {
	return func(h *Host) {
		if c != nil {
			h.clock = c
		}
	}
}

func WithAuthorizer(a Authorizer) Option {
	return func(h *Host) { h.auth = a }
}

func WithPublisher(p Publisher) Option {
	return func(h *Host) { h.publisher = p }
}

func WithObserver(o Observer) Option {
	return func(h *Host) {
		if o != nil {
			h.observers = append(h.observers, o)
		}
	}
}

// NewHost constructs a Host. Without WithAuthorizer every authorization
// check fails.
func NewHost(backend state.Backend, opts ...Option) *Host {
	h := &Host{backend: backend, clock: SystemClock{}}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Backend returns the underlying state backend.
func (h *Host) Backend() state.Backend { return h.backend }

// Invoke runs fn as one atomic call of contract ns. Writes and events are
// discarded when fn fails.
func (h *Host) Invoke(ctx context.Context, ns state.Namespace, op string, fn func(env *Env) error) error {
	start := time.Now()
	var events []Event
	err := h.backend.Update(ctx, func(txn state.Txn) error {
		env := h.newEnv(ctx, txn, ns)
		if err := fn(env); err != nil {
			return err
		}
		events = env.events
		return nil
	})
	call := Call{Contract: string(ns), Op: op, Err: err, Duration: time.Since(start)}
	if err == nil {
		call.Events = events
		h.publish(ctx, events)
	}
	for _, o := range h.observers {
		o(ctx, call)
	}
	return err
}

// Query runs fn against a read-only view of contract ns.
func (h *Host) Query(ctx context.Context, ns state.Namespace, fn func(env *Env) error) error {
	return h.backend.View(ctx, func(txn state.Txn) error {
		return fn(h.newEnv(ctx, txn, ns))
	})
}

func (h *Host) newEnv(ctx context.Context, txn state.Txn, ns state.Namespace) *Env {
	return &Env{
		ctx:      ctx,
		txn:      txn,
		store:    txn.Scope(ns),
		now:      h.clock.Now(),
		auth:     h.auth,
		contract: ns,
	}
}

func (h *Host) publish(ctx context.Context, events []Event) {
	if h.publisher == nil {
		return
	}
	for _, evt := range events {
		if err := h.publisher.Publish(ctx, evt); err != nil {
			obs.Warn("event publish failed", map[string]any{
				"contract": evt.Contract,
				"event":    evt.Name,
				"id":       evt.ID,
				"error":    err.Error(),
			})
		}
	}
}
