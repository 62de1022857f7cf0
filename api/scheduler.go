/*
scheduler.go - Periodic overdue sweep

PURPOSE:
  Periodically evaluates every member's dues status and publishes the
  overdue totals as prometheus gauges. The same sweep backs the
  POST /api/admin/sweep endpoint.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Reads members once, then computes status per member via the engine
  - A member whose status cannot be computed is logged and skipped
  - Keeps the last result for GET /api/admin/sweep

USAGE:
  scheduler := NewOverdueScheduler(engine, logger)
  scheduler.CheckInterval = cfg.SweepInterval
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - metrics/metrics.go: OverdueMembers, OverduePeriods, SweepDuration
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/dues-engine/dues"
	"github.com/warp/dues-engine/metrics"
	"github.com/warp/dues-engine/period"
)

// SweepResult is the outcome of one overdue sweep.
type SweepResult struct {
	At             time.Time
	AsOf           period.Date
	Members        int
	OverduePeriods int
	Overdue        []OverdueMember
}

// OverdueMember is one member with at least one overdue period.
type OverdueMember struct {
	MemberID     dues.MemberID
	Name         string
	OverdueCount int
}

// Sweep computes the status of every member as of asOf.
func Sweep(ctx context.Context, engine *dues.Engine, asOf period.Date, logger *zap.Logger) (SweepResult, error) {
	start := time.Now()
	res := SweepResult{At: start.UTC(), AsOf: asOf, Overdue: []OverdueMember{}}

	profiles, err := engine.Members.Profiles(ctx)
	if err != nil {
		return res, fmt.Errorf("list members: %w", err)
	}
	res.Members = len(profiles)

	for _, p := range profiles {
		st, err := engine.StatusOf(ctx, p, asOf)
		if err != nil {
			logger.Warn("sweep: status failed",
				zap.String("member_id", string(p.MemberID)),
				zap.Error(err),
			)
			continue
		}
		if st.State != dues.StateOverdue {
			continue
		}
		logger.Debug("sweep: member overdue",
			zap.String("member_id", string(p.MemberID)),
			zap.Int("overdue_count", st.OverdueCount),
		)
		res.OverduePeriods += st.OverdueCount
		res.Overdue = append(res.Overdue, OverdueMember{
			MemberID:     p.MemberID,
			Name:         p.Name,
			OverdueCount: st.OverdueCount,
		})
	}

	metrics.ObserveSweep(time.Since(start), len(res.Overdue), res.OverduePeriods)
	return res, nil
}

// OverdueScheduler runs Sweep on a fixed interval.
type OverdueScheduler struct {
	Engine        *dues.Engine
	Logger        *zap.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	last *SweepResult
}

// NewOverdueScheduler creates a new scheduler.
func NewOverdueScheduler(engine *dues.Engine, logger *zap.Logger) *OverdueScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverdueScheduler{
		Engine:        engine,
		Logger:        logger,
		CheckInterval: time.Hour,
		Enabled:       true,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (s *OverdueScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled || s.CheckInterval <= 0 {
		s.Logger.Info("overdue scheduler disabled")
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)

	go s.run(s.ticker.C)

	s.Logger.Info("overdue scheduler started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler.
func (s *OverdueScheduler) Stop() {
	s.mu.Lock()
	ticker := s.ticker
	s.ticker = nil
	s.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.Logger.Info("overdue scheduler stopped")
	}
}

// run only reads tick; Stop clears s.ticker while a sweep may be in flight.
func (s *OverdueScheduler) run(tick <-chan time.Time) {
	defer s.wg.Done()

	// Run immediately on start
	s.RunNow(context.Background())

	for {
		select {
		case <-tick:
			s.RunNow(context.Background())
		case <-s.stop:
			return
		}
	}
}

// RunNow triggers an immediate sweep and records its result.
func (s *OverdueScheduler) RunNow(ctx context.Context) (SweepResult, error) {
	res, err := Sweep(ctx, s.Engine, s.Engine.Today(), s.Logger)
	if err != nil {
		s.Logger.Error("overdue sweep failed", zap.Error(err))
		return res, err
	}

	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()

	s.Logger.Info("overdue sweep completed",
		zap.Int("members", res.Members),
		zap.Int("overdue_members", len(res.Overdue)),
		zap.Int("overdue_periods", res.OverduePeriods),
	)
	return res, nil
}

// Last returns the most recent sweep result, if any.
func (s *OverdueScheduler) Last() (SweepResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return SweepResult{}, false
	}
	return *s.last, true
}
