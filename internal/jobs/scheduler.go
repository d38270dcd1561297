package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweeper drops expired records from an in-process registry.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// SweepFunc adapts a function to Sweeper.
type SweepFunc func(ctx context.Context) (int, error)

func (f SweepFunc) Sweep(ctx context.Context) (int, error) { return f(ctx) }

type job struct {
	name    string
	sweeper Sweeper
}

// Scheduler runs every registered sweep on one cron schedule from Start
// until Stop.
type Scheduler struct {
	cron     *cron.Cron
	schedule string
	jobs     []job
	timeout  time.Duration
	log      zerolog.Logger
}

func NewScheduler(schedule string, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:     c,
		schedule: schedule,
		timeout:  time.Minute,
		log:      log,
	}
}

func (s *Scheduler) Add(name string, sweeper Sweeper) {
	s.jobs = append(s.jobs, job{name: name, sweeper: sweeper})
}

func (s *Scheduler) Start() error {
	for _, j := range s.jobs {
		j := j
		if _, err := s.cron.AddFunc(s.schedule, func() { s.run(j) }); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.log.Info().Str("schedule", s.schedule).Int("jobs", len(s.jobs)).Msg("sweep scheduler started")
	return nil
}

// Stop halts the schedule and waits up to timeout for running sweeps.
func (s *Scheduler) Stop(timeout time.Duration) {
	select {
	case <-s.cron.Stop().Done():
	case <-time.After(timeout):
		s.log.Warn().Msg("sweep still running at shutdown")
	}
}

// RunAll sweeps every job once, outside the schedule.
func (s *Scheduler) RunAll() {
	for _, j := range s.jobs {
		s.run(j)
	}
}

func (s *Scheduler) run(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	removed, err := j.sweeper.Sweep(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("job", j.name).Msg("sweep failed")
		return
	}
	s.log.Debug().Str("job", j.name).Int("removed", removed).Msg("sweep finished")
}
