// Package scheduler drives date-based lifecycle transitions. The sweeper
// queries the store for workflows whose effective or obsoleting date has
// arrived and activates each one through the state machine. It is built as
// an explicit Sweep(ctx, now) so callers control the clock; running it on a
// ticker is a deployment concern.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/veridoc/veridoc/internal/lifecycle"
	"github.com/veridoc/veridoc/internal/observability"
	"github.com/veridoc/veridoc/internal/store"
	"github.com/veridoc/veridoc/model"
)

// Sweeper finds due workflows and activates them. A failure on one
// workflow never stops the sweep; each failure is recorded in the report
// and retried on later sweeps up to a per-workflow attempt cap.
type Sweeper struct {
	store   store.DocumentStore
	machine *lifecycle.Machine
	logger  *zap.Logger
	metrics *observability.Metrics

	maxAttempts int

	mu       sync.Mutex
	attempts map[string]int
}

// NewSweeper creates a sweeper. maxAttempts caps how many consecutive
// failing sweeps try the same workflow; values below 1 fall back to 5.
// metrics may be nil.
func NewSweeper(st store.DocumentStore, machine *lifecycle.Machine, logger *zap.Logger, metrics *observability.Metrics, maxAttempts int) *Sweeper {
	if maxAttempts < 1 {
		maxAttempts = 5
	}
	return &Sweeper{
		store:       st,
		machine:     machine,
		logger:      logger,
		metrics:     metrics,
		maxAttempts: maxAttempts,
		attempts:    make(map[string]int),
	}
}

// Failure records one workflow the sweep could not activate.
type Failure struct {
	Key    model.WorkflowKey
	Reason string
}

// Report summarizes one sweep.
type Report struct {
	SweptAt   time.Time
	Activated []model.WorkflowKey
	Skipped   []model.WorkflowKey
	Failures  []Failure
}

// Sweep activates every workflow whose effective or obsoleting date is at
// or before now. Workflows whose state changed between the query and the
// activation attempt are counted as skipped, not failed.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (Report, error) {
	ctx, span := observability.StartSpan(ctx, "scheduler.sweep")
	start := time.Now()
	report := Report{SweptAt: now}

	due, err := s.collectDue(ctx, now)
	if err != nil {
		observability.EndSpan(span, err)
		return report, err
	}

	for _, wf := range due {
		if err := ctx.Err(); err != nil {
			observability.EndSpan(span, err)
			return report, err
		}
		key := wf.Key()
		if s.exhausted(key) {
			report.Skipped = append(report.Skipped, key)
			continue
		}

		result, err := s.machine.ScheduledActivate(ctx, key, now)
		switch {
		case err == nil:
			s.clearAttempts(key)
			report.Activated = append(report.Activated, key)
			if s.metrics != nil {
				s.metrics.SweepActivationsTotal.WithLabelValues(result.CurrentState).Inc()
			}
		case model.IsCode(err, model.ErrGuardViolation):
			// The workflow moved on (terminated, already activated by a
			// concurrent sweep) between the query and this attempt.
			s.clearAttempts(key)
			report.Skipped = append(report.Skipped, key)
		default:
			s.recordFailure(key)
			report.Failures = append(report.Failures, Failure{Key: key, Reason: err.Error()})
			if s.metrics != nil {
				s.metrics.SweepFailuresTotal.WithLabelValues(model.ErrorCode(err)).Inc()
			}
			s.logger.Warn("sweep activation failed",
				zap.String("workflow", key.String()),
				zap.Error(err),
			)
		}
	}

	if s.metrics != nil {
		s.metrics.SweepsTotal.Inc()
		s.metrics.SweepDurationSeconds.Observe(time.Since(start).Seconds())
	}
	s.logger.Info("sweep complete",
		zap.Time("cutoff", now),
		zap.Int("activated", len(report.Activated)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("failed", len(report.Failures)),
	)
	observability.EndSpan(span, nil)
	return report, nil
}

func (s *Sweeper) collectDue(ctx context.Context, now time.Time) ([]model.WorkflowInstance, error) {
	effective, err := s.store.FindDueEffective(ctx, now)
	if err != nil {
		return nil, err
	}
	obsoleting, err := s.store.FindDueObsoleting(ctx, now)
	if err != nil {
		return nil, err
	}
	return append(effective, obsoleting...), nil
}

// exhausted reports whether a workflow has failed maxAttempts consecutive
// sweeps. Exhausted workflows are skipped until a sweep succeeds for them
// or the process restarts.
func (s *Sweeper) exhausted(key model.WorkflowKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[key.String()] >= s.maxAttempts
}

func (s *Sweeper) recordFailure(key model.WorkflowKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[key.String()]++
}

func (s *Sweeper) clearAttempts(key model.WorkflowKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, key.String())
}
