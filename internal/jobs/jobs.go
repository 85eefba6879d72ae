// Package jobs runs the periodic maintenance tasks.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/conorfennell/memoryrefresh/internal/domain"
)

// Service is what the jobs call into.
type Service interface {
	RefreshTagUsage(ctx context.Context) (map[int64]int64, error)
	ReadTopOverdueTranslateCards(ctx context.Context, limit int) (domain.OverdueQueue, error)
}

// Intervals sets how often each job runs. A non-positive interval disables
// the job.
type Intervals struct {
	TagRefresh time.Duration
	DueReport  time.Duration
}

// Scheduler manages the scheduled tasks of the application.
type Scheduler struct {
	scheduler *gocron.Scheduler
	svc       Service
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// New registers the enabled jobs. Nothing runs until Start.
func New(svc Service, iv Intervals, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		svc:       svc,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
	s.scheduler.SingletonModeAll()

	if iv.TagRefresh > 0 {
		if _, err := s.scheduler.Every(iv.TagRefresh).WaitForSchedule().Do(s.RefreshTagUsage); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to schedule tag usage refresh: %w", err)
		}
	}
	if iv.DueReport > 0 {
		if _, err := s.scheduler.Every(iv.DueReport).Do(s.ReportDue); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to schedule due report: %w", err)
		}
	}
	return s, nil
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	return s.scheduler.Len()
}

// Start runs the jobs in the background.
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop terminates all scheduled tasks and cancels running ones.
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}

// RefreshTagUsage reloads the tag usage counts.
func (s *Scheduler) RefreshTagUsage() {
	counts, err := s.svc.RefreshTagUsage(s.ctx)
	if err != nil {
		s.logger.Error("failed to refresh tag usage", zap.Error(err))
		return
	}
	s.logger.Debug("refreshed tag usage", zap.Int("tags", len(counts)))
}

// ReportDue logs how many cards are due for review.
func (s *Scheduler) ReportDue() {
	queue, err := s.svc.ReadTopOverdueTranslateCards(s.ctx, 1)
	if err != nil {
		s.logger.Error("failed to read due cards", zap.Error(err))
		return
	}
	fields := []zap.Field{zap.Int("due", queue.DueCount)}
	if queue.NextActivatesIn != "" {
		fields = append(fields, zap.String("next_activates_in", queue.NextActivatesIn))
	}
	s.logger.Info("cards due for review", fields...)
}
