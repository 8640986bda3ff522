// Package maintenance runs the scheduled reproduction payment jobs.
package maintenance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// PaymentJobs is the part of the delivery service the scheduler drives.
type PaymentJobs interface {
	CancelUnpaidReproductions(ctx context.Context, maxAge time.Duration) (int, error)
	SendPaymentReminders(ctx context.Context, age time.Duration) (int, error)
}

// PaymentConfig controls when unpaid reproduction offers are chased and expired.
type PaymentConfig struct {
	// Schedule is a five-field cron spec.
	Schedule     string
	MaxDays      int
	ReminderDays int
}

// PaymentScheduler cancels expired reproduction offers and reminds customers
// of unpaid ones.
type PaymentScheduler struct {
	jobs    PaymentJobs
	config  PaymentConfig
	cron    *cron.Cron
	logger  zerolog.Logger
	mu      sync.Mutex
	running bool
}

// Report is the outcome of one run.
type Report struct {
	Cancelled int
	Reminded  int
}

// NewPaymentScheduler creates a new payment job scheduler.
func NewPaymentScheduler(jobs PaymentJobs, config PaymentConfig, logger zerolog.Logger) *PaymentScheduler {
	return &PaymentScheduler{
		jobs:   jobs,
		config: config,
		cron:   cron.New(),
		logger: logger.With().Str("component", "payment_jobs").Logger(),
	}
}

// Start registers the jobs on the configured schedule.
func (s *PaymentScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("payment scheduler already running")
	}

	if _, err := s.cron.AddFunc(s.config.Schedule, func() {
		_, _ = s.RunNow(context.Background())
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", s.config.Schedule).
		Int("max_days", s.config.MaxDays).
		Int("reminder_days", s.config.ReminderDays).
		Msg("payment scheduler started")

	return nil
}

// Stop stops the scheduler. The returned context is done once a running job finishes.
func (s *PaymentScheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	s.running = false
	s.logger.Info().Msg("stopping payment scheduler")
	return s.cron.Stop()
}

// RunNow cancels expired offers first, then reminds the customers of the
// remaining ones. Both jobs run even if the first fails.
func (s *PaymentScheduler) RunNow(ctx context.Context) (Report, error) {
	var report Report
	var errs []error

	cancelled, err := s.jobs.CancelUnpaidReproductions(ctx, days(s.config.MaxDays))
	if err != nil {
		s.logger.Error().Err(err).Msg("cancelling unpaid reproductions failed")
		errs = append(errs, err)
	}
	report.Cancelled = cancelled

	reminded, err := s.jobs.SendPaymentReminders(ctx, days(s.config.ReminderDays))
	if err != nil {
		s.logger.Error().Err(err).Msg("sending payment reminders failed")
		errs = append(errs, err)
	}
	report.Reminded = reminded

	s.logger.Info().
		Int("cancelled", report.Cancelled).
		Int("reminded", report.Reminded).
		Msg("payment jobs completed")

	return report, errors.Join(errs...)
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
