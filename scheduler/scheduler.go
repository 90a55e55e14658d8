package scheduler

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type Job interface {
	Run()
}

type SchedulerParams struct {
	Logger zerolog.Logger
}

func NewScheduler(params SchedulerParams) *Scheduler {
	logger := cronLogger{logger: params.Logger}
	return &Scheduler{
		// A run still going when the next one is due makes the next one a
		// no-op.
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		logger: params.Logger,
		jobs:   make(map[cron.EntryID]Job),
	}
}

type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   map[cron.EntryID]Job
	logger zerolog.Logger
}

// Start the scheduler in its own routine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop the scheduler and wait for running jobs to complete.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) AddJob(schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.cron.AddJob(schedule, job)
	if err != nil {
		return fmt.Errorf("could not add backup job: %w", err)
	}
	s.jobs[entry] = job
	s.logger.Info().Str("schedule", schedule).Msg("scheduled backup job")

	return nil
}

// ReplaceJobs removes every job and schedules job in their place. The
// previous jobs are kept when schedule is invalid.
func (s *Scheduler) ReplaceJobs(schedule string, job Job) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("could not parse schedule: %w", err)
	}
	s.RemoveJobs()
	return s.AddJob(schedule, job)
}

func (s *Scheduler) RemoveJobs() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for entry := range s.jobs {
		s.cron.Remove(entry)
		delete(s.jobs, entry)
	}
}

func (s *Scheduler) JobsCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// cronLogger sends the cron library logs to zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
