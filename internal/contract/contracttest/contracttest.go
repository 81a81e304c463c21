// Package contracttest provides a deterministic host for contract tests.
package contracttest

import (
	"context"
	"sync"
	"time"

	"verida.org/internal/contract"
	"verida.org/internal/state"
)

// Epoch is the initial time of a ManualClock.
var Epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// ManualClock only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *ManualClock { return &ManualClock{now: Epoch} }

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type signerKey struct{}

// As returns a context in which p is the verified signer of the call.
func As(p contract.Principal) context.Context {
	return context.WithValue(context.Background(), signerKey{}, p)
}

// Authorizer accepts a claim only when it matches the signer set by As.
var Authorizer = contract.AuthorizerFunc(func(ctx context.Context, p contract.Principal) error {
	if signer, ok := ctx.Value(signerKey{}).(contract.Principal); ok && signer == p {
		return nil
	}
	return contract.ErrUnauthorized
})

// Recorder collects published events.
type Recorder struct {
	mu     sync.Mutex
	events []contract.Event
}

func (r *Recorder) Publish(_ context.Context, evt contract.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *Recorder) Events() []contract.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]contract.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Env bundles a host with its clock, backend and event recorder.
type Env struct {
	Host    *contract.Host
	Clock   *ManualClock
	Backend *state.Memory
	Events  *Recorder
}

func New() *Env {
	e := &Env{Clock: NewClock(), Backend: state.NewMemory(), Events: &Recorder{}}
	e.Host = contract.NewHost(e.Backend,
		contract.WithClock(e.Clock),
		contract.WithAuthorizer(Authorizer),
		contract.WithPublisher(e.Events),
	)
	return e
}
