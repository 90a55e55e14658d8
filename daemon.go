package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stupid-simple/rotate/backup"
	"github.com/stupid-simple/rotate/config"
	"github.com/stupid-simple/rotate/fileutils"
	"github.com/stupid-simple/rotate/metrics"
	"github.com/stupid-simple/rotate/scheduler"
)

const defaultSchedule = "0 * * * *"

func daemonCommand(ctx context.Context, args Command, logger zerolog.Logger) error {
	if args.Daemon.DryRun {
		logger = logger.With().Bool("dryrun", true).Logger()
	}

	m := metrics.New()
	runner, cfg, err := newRunner(args.Daemon.Config, args.Daemon.DryRun, logger, backup.WithMetrics(m))
	if err != nil {
		return err
	}

	job := &runnerJob{ctx: ctx, runner: runner, logger: logger}
	defer job.Close()

	s := scheduler.NewScheduler(scheduler.SchedulerParams{
		Logger: logger,
	})
	if err := s.AddJob(scheduleOf(cfg), job); err != nil {
		return err
	}

	if cfg.Metrics.Listen != "" {
		go serveMetrics(ctx, cfg.Metrics.Listen, m, logger)
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	startConfigFileWatcher(ctx, args.Daemon.Config, logger, ticker, func(cfg *config.Config) {
		runner, err := backup.NewRunner(cfg, logger, backup.WithDryRun(args.Daemon.DryRun), backup.WithMetrics(m))
		if err != nil {
			logger.Error().Err(err).Msg("could not apply new config, keeping the previous one")
			return
		}
		if err := s.ReplaceJobs(scheduleOf(cfg), job); err != nil {
			logger.Error().Err(err).Msg("could not apply new schedule, keeping the previous one")
			_ = runner.Close()
			return
		}
		job.Swap(runner)
		logger.Info().Object("config", cfg).Msg("applied new config")
	})

	s.Start()
	defer s.Stop()

	<-ctx.Done()

	return nil
}

func scheduleOf(cfg *config.Config) string {
	if cfg.Schedule == "" {
		return defaultSchedule
	}
	return cfg.Schedule
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
	}
}

func startConfigFileWatcher(ctx context.Context, cfgPath string, logger zerolog.Logger, ticker *time.Ticker, onChanged func(cfg *config.Config)) {
	logger.Info().Str("path", cfgPath).Msg("watching config file for changes")
	watcher, err := fileutils.WatchFile(ctx, cfgPath, ticker.C, func(err error) {
		logger.Error().Err(err).Msg("could not watch config file")
	})
	if err != nil {
		logger.Error().Err(err).Msg("could not watch config file")
		return
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-watcher:
				if !ok {
					return
				}
				logger.Info().Str("path", cfgPath).Msg("config file changed, reloading")

				cfg, err := config.LoadFromFile(cfgPath)
				if err != nil {
					logger.Error().Err(err).Msg("could not load config")
					break
				}

				onChanged(cfg)
			}
		}
	}()
}

// runnerJob runs the current runner on every schedule tick. Swapping the
// runner waits for a run in progress to finish.
type runnerJob struct {
	mu     sync.Mutex
	ctx    context.Context
	runner *backup.Runner
	logger zerolog.Logger
}

func (j *runnerJob) Run() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.ctx.Err() != nil {
		return
	}
	report, err := j.runner.Run(j.ctx)
	if err != nil {
		j.logger.Error().Err(err).Msg("backup run failed")
		return
	}
	if n := report.Failed(); n > 0 {
		j.logger.Warn().Str("run_id", report.RunID).Int("failed", n).Msg("backup run finished with failures")
	}
}

func (j *runnerJob) Swap(runner *backup.Runner) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.runner.Close(); err != nil {
		j.logger.Warn().Err(err).Msg("could not close previous catalog")
	}
	j.runner = runner
}

func (j *runnerJob) Close() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.runner.Close(); err != nil {
		j.logger.Warn().Err(err).Msg("could not close catalog")
	}
}
