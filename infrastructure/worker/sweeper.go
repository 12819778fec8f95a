package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"social-publisher/infrastructure/logger"
	"social-publisher/usecase"
)

// Sweeper runs the scheduler sweep on a fixed interval. A sweep still running
// when the next tick fires is not started twice.
type Sweeper struct {
	scheduler *gocron.Scheduler
	uc        usecase.ISchedulerUsecase
	interval  time.Duration
}

func NewSweeper(uc usecase.ISchedulerUsecase, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Sweeper{scheduler: s, uc: uc, interval: interval}
}

// Start schedules the sweep and stops it once ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.scheduler.Every(s.interval).Do(s.sweep, ctx)
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.scheduler.StartAsync()
	logger.GetLogger().WithField("interval", s.interval.String()).Info("Scheduler sweeper started")

	go func() {
		<-ctx.Done()
		s.scheduler.Stop()
		logger.GetLogger().Info("Scheduler sweeper stopped")
	}()
	return nil
}

func (s *Sweeper) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	report, err := s.uc.Sweep(ctx)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Sweep failed")
		return
	}
	if report.Due == 0 {
		return
	}
	logger.GetLogger().
		WithField("due", report.Due).
		WithField("claimed", report.Claimed).
		WithField("done", report.Done).
		WithField("failed", report.Failed).
		WithField("retried", report.Retried).
		WithField("duration", time.Since(start).String()).
		Info("Sweep finished")
}
