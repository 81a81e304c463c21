// Package sweeper refunds expired escrows on a cron schedule. Expiration is
// permissionless, so the sweeper needs no principal.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"verida.org/internal/contract"
	"verida.org/internal/obs"
)

const (
	DefaultSchedule = "@every 1m"
	defaultBatch    = 100
)

// Candidates lists escrows that look expired. The list may be stale; the
// vault decides.
type Candidates interface {
	ExpiredCandidates(ctx context.Context, now time.Time, limit int) ([]string, error)
}

type Expirer interface {
	HandleExpiration(ctx context.Context, id string) error
}

// Result counts the outcome of one sweep.
type Result struct {
	Expired int
	Skipped int
	Failed  int
}

type Sweeper struct {
	candidates Candidates
	vault      Expirer
	clock      contract.Clock
	batch      int
	timeout    time.Duration
	cron       *cron.Cron
}

type Option func(*Sweeper)

func WithBatch(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batch = n
		}
	}
}

func WithClock(c contract.Clock) Option {
	return func(s *Sweeper) {
		if c != nil {
			s.clock = c
		}
	}
}

func New(candidates Candidates, vault Expirer, opts ...Option) *Sweeper {
	s := &Sweeper{
		candidates: candidates,
		vault:      vault,
		clock:      contract.SystemClock{},
		batch:      defaultBatch,
		timeout:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(obs.Logger()))))
	return s
}

// RunOnce expires every candidate the vault agrees is expired.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	ids, err := s.candidates.ExpiredCandidates(ctx, s.clock.Now(), s.batch)
	if err != nil {
		return res, err
	}
	for _, id := range ids {
		err := s.vault.HandleExpiration(ctx, id)
		switch {
		case err == nil:
			res.Expired++
			obs.CountSweep("expired")
		case errors.Is(err, contract.ErrNotExpired), errors.Is(err, contract.ErrInvalidState), errors.Is(err, contract.ErrNotFound):
			res.Skipped++
			obs.CountSweep("skipped")
		default:
			res.Failed++
			obs.CountSweep("failed")
			obs.Warn("escrow expiration failed", map[string]any{"escrow_id": id, "error": err.Error()})
		}
	}
	return res, nil
}

func (s *Sweeper) job() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	res, err := s.RunOnce(ctx)
	if err != nil {
		obs.Error("escrow sweep failed", map[string]any{"error": err.Error()})
		return
	}
	if res.Expired+res.Failed > 0 {
		obs.Info("escrow sweep finished", map[string]any{
			"expired": res.Expired,
			"skipped": res.Skipped,
			"failed":  res.Failed,
		})
	}
}

// Start schedules the sweep and starts the cron runner.
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := s.cron.AddFunc(schedule, s.job); err != nil {
		return err
	}
	obs.Info("scheduled escrow expiry sweep", map[string]any{"schedule": schedule})
	s.cron.Start()
	return nil
}

// Stop stops the scheduler; the returned context is done once a running
// sweep finishes.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}
