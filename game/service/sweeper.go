package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSweepInterval = 5 * time.Second
	DefaultArchiveAfter  = 24 * time.Hour
)

// Sweeper periodically expires abandoned sessions so their results are reported
// even when the client never comes back.
type Sweeper struct {
	sched        gocron.Scheduler
	svc          GameService
	archiver     Archiver
	interval     time.Duration
	archiveAfter time.Duration
}

// SweeperOption configures a Sweeper
type SweeperOption func(*Sweeper)

// WithSweepInterval sets how often expired sessions are collected
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.interval = d }
}

// WithArchiver also drops finished sessions older than after from hot storage
func WithArchiver(a Archiver, after time.Duration) SweeperOption {
	return func(s *Sweeper) {
		s.archiver = a
		s.archiveAfter = after
	}
}

// NewSweeper creates the scheduler; call Start to begin running jobs
func NewSweeper(svc GameService, opts ...SweeperOption) (*Sweeper, error) {
	s := &Sweeper{
		svc:          svc,
		interval:     DefaultSweepInterval,
		archiveAfter: DefaultArchiveAfter,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", s.interval)
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	s.sched = sched

	if _, err := sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.Sweep),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("expire-sessions"),
	); err != nil {
		return nil, fmt.Errorf("failed to schedule expiry job: %w", err)
	}

	if s.archiver != nil {
		if _, err := sched.NewJob(
			gocron.DurationJob(time.Hour),
			gocron.NewTask(func() {
				if n := s.archiver.ArchiveCompleted(s.archiveAfter); n > 0 {
					log.Info().Int("count", n).Msg("archived completed sessions")
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithName("archive-sessions"),
		); err != nil {
			return nil, fmt.Errorf("failed to schedule archive job: %w", err)
		}
	}
	return s, nil
}

// Start runs the scheduled jobs in the background
func (s *Sweeper) Start() {
	log.Info().Dur("interval", s.interval).Msg("session sweeper started")
	s.sched.Start()
}

// Stop waits for running jobs and stops the scheduler
func (s *Sweeper) Stop() error {
	return s.sched.Shutdown()
}

// Sweep runs a single expiry pass
func (s *Sweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	n, err := s.svc.ExpireStale(ctx)
	if err != nil {
		log.Error().Err(err).Msg("session sweep failed")
		return
	}
	if n > 0 {
		log.Info().Int("count", n).Msg("expired abandoned sessions")
	}
}
