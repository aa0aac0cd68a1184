// Package scheduler runs the evaluator's sweep on a fixed interval.
package scheduler

import (
	"context"
	"log"
	"time"
)

// DefaultInterval is used when New is given a non-positive interval.
const DefaultInterval = 5 * time.Minute

// Sweeper is implemented by nag.Evaluator.
type Sweeper interface {
	Sweep(ctx context.Context) error
}

// Scheduler calls Sweep once at start and then every interval.
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
}

// New creates a Scheduler.
func New(sweeper Sweeper, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{sweeper: sweeper, interval: interval}
}

// Interval returns the time between sweeps.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Run blocks until ctx is done. Ticks that arrive while a sweep is still
// running are dropped.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("[Scheduler] Sweeping every %s", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[Scheduler] Stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := s.sweeper.Sweep(ctx); err != nil {
		log.Printf("[Scheduler] Sweep failed after %s: %v", time.Since(start).Round(time.Millisecond), err)
		return
	}
	log.Printf("[Scheduler] Sweep finished in %s", time.Since(start).Round(time.Millisecond))
}
