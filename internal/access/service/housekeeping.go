package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/ledgerdrop/internal/access/store"
)

// DefaultTokenRetention is how long expired tokens are kept for audit.
const DefaultTokenRetention = 7 * 24 * time.Hour

// HousekeepingService periodically deletes tokens past their retention
// window and expired sessions. Nothing depends on it for correctness.
type HousekeepingService struct {
	Store     store.Store
	Logger    *slog.Logger
	Interval  time.Duration
	Retention time.Duration
	Now       func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

type HousekeepingReport struct {
	Tokens   int64
	Sessions int64
}

// NewHousekeepingService returns a service running every interval, one hour
// if interval is not positive.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval, retention time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	if retention <= 0 {
		retention = DefaultTokenRetention
	}
	return &HousekeepingService{
		Store:     st,
		Logger:    logger,
		Interval:  interval,
		Retention: retention,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start runs the worker in the background until Stop is called.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts the worker down, waiting for an in-progress pass to finish.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.cleanup()
	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

func (s *HousekeepingService) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		s.Logger.Error("housekeeping pass failed", "error", err)
	}
}

// RunOnce performs a single pass. Each deletion is independent; errors are
// joined and the counts of whatever succeeded are still returned.
func (s *HousekeepingService) RunOnce(ctx context.Context) (HousekeepingReport, error) {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}

	var (
		report HousekeepingReport
		errs   []error
	)

	n, err := s.Store.Tokens().DeleteExpired(ctx, now.Add(-s.Retention))
	if err != nil {
		errs = append(errs, err)
	}
	report.Tokens = n

	n, err = s.Store.Sessions().DeleteExpiredSessions(ctx, now)
	if err != nil {
		errs = append(errs, err)
	}
	report.Sessions = n

	s.Logger.Info("housekeeping cleanup completed",
		"tokens_deleted", report.Tokens,
		"sessions_deleted", report.Sessions,
	)
	return report, errors.Join(errs...)
}
