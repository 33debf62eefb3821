// Package scheduler bounds how many source fetches run at once and how
// quickly new ones may start.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	// DefaultMaxConcurrent is the number of jobs allowed to run at once.
	DefaultMaxConcurrent = 3
	// DefaultMinSpacing is the admission interval used by NewDefault.
	DefaultMinSpacing = 500 * time.Millisecond
	// DefaultBurst caps admissions inside one spacing window.
	DefaultBurst = 3
)

// Config holds scheduler limits. Zero values fall back to the defaults.
type Config struct {
	MaxConcurrent int
	// MinSpacing is the minimum time between two admissions.
	MinSpacing time.Duration
	// Burst is how many admissions may happen back to back inside one
	// spacing window.
	Burst int
}

// Scheduler admits jobs under a concurrency ceiling and an admission rate.
// It is safe for concurrent use.
type Scheduler struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	cfg     Config
}

// New creates a Scheduler from cfg.
func New(cfg Config) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.MinSpacing < 0 {
		cfg.MinSpacing = 0
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}

	limit := rate.Inf
	if cfg.MinSpacing > 0 {
		limit = rate.Every(cfg.MinSpacing)
	}

	return &Scheduler{
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		limiter: rate.NewLimiter(limit, cfg.Burst),
		cfg:     cfg,
	}
}

// NewDefault creates a Scheduler with the default limits.
func NewDefault() *Scheduler {
	return New(Config{MinSpacing: DefaultMinSpacing})
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Do waits for a free slot and an admission token, then runs job. The
// job's error is returned as is; it has no effect on other jobs. If ctx is
// cancelled before admission, job never runs and the context error is
// returned.
func (s *Scheduler) Do(ctx context.Context, job func(ctx context.Context) error) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("scheduler: acquire slot: %w", err)
	}
	defer s.sem.Release(1)

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("scheduler: wait for admission: %w", err)
	}

	return job(ctx)
}
