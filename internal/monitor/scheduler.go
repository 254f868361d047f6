package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/neonwatch/neonmon/internal/metrics"
)

// Probe is one independently scheduled monitoring task.
type Probe interface {
	Name() string
	// Run executes one round. Transient I/O failures are handled inside the
	// probe; a returned error means a store-layer failure that should hold
	// back the heartbeat.
	Run(ctx context.Context) error
}

// Scheduler drives all probes on a fixed interval. Each tick fans the probes
// out concurrently, waits with a per-round deadline, and advances the
// heartbeat gauge when the round completes without a store-layer error. One
// probe's failure never aborts its siblings.
type Scheduler struct {
	interval time.Duration
	probes   []Probe
	reg      *metrics.Registry
	log      *slog.Logger

	// ticks overrides the wall-clock ticker in tests.
	ticks <-chan time.Time

	mu        sync.RWMutex
	lastRound time.Time
	lastErrs  map[string]string
}

// NewScheduler creates a scheduler over the given probes.
func NewScheduler(interval time.Duration, probes []Probe, reg *metrics.Registry) *Scheduler {
	return &Scheduler{
		interval: interval,
		probes:   probes,
		reg:      reg,
		log:      slog.With("component", "scheduler"),
		lastErrs: make(map[string]string),
	}
}

// WithTickSource replaces the wall-clock ticker, making rounds driveable
// from tests.
func (s *Scheduler) WithTickSource(ticks <-chan time.Time) *Scheduler {
	s.ticks = ticks
	return s
}

// Run loops until the context is cancelled. The first round starts
// immediately rather than one interval in.
func (s *Scheduler) Run(ctx context.Context) error {
	ticks := s.ticks
	if ticks == nil {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	s.RunRound(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticks:
			s.RunRound(ctx)
		}
	}
}

// RunRound executes a single round across all probes.
func (s *Scheduler) RunRound(ctx context.Context) {
	roundID := uuid.New().String()[:8]
	started := time.Now()

	roundCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	errs := make(map[string]string)
	var mu sync.Mutex

	// Plain group, not WithContext: one probe's error must not cancel the
	// others.
	var g errgroup.Group
	for _, probe := range s.probes {
		g.Go(func() error {
			if err := probe.Run(roundCtx); err != nil {
				mu.Lock()
				errs[probe.Name()] = err.Error()
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	s.lastRound = time.Now()
	s.lastErrs = errs
	s.mu.Unlock()

	if len(errs) == 0 {
		s.reg.LastUpdate.SetToCurrentTime()
	} else {
		s.log.Warn("round finished with store-layer errors",
			"round", roundID, "failed_probes", len(errs))
	}

	s.log.Debug("round complete",
		"round", roundID, "probes", len(s.probes), "elapsed", time.Since(started))
}

// Status reports the last round for the /health endpoint.
func (s *Scheduler) Status() metrics.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	probes := make(map[string]string, len(s.lastErrs))
	for name, msg := range s.lastErrs {
		probes[name] = msg
	}
	return metrics.Status{
		LastRound: s.lastRound,
		Healthy:   !s.lastRound.IsZero() && len(s.lastErrs) == 0,
		Probes:    probes,
	}
}
