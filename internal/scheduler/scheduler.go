package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// TickFunc is invoked on every cron firing.
type TickFunc func(ctx context.Context, fired time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	// Spec is a standard five-field cron expression or a descriptor such as
	// "@daily" or "@every 1h".
	Spec       string
	Timezone   string
	RunOnStart bool
}

// Scheduler drives cron-timed execution of pipeline jobs. Ticks never
// overlap: a firing while the previous tick still runs is skipped.
type Scheduler struct {
	opts     Options
	schedule cron.Schedule
	location *time.Location
	logger   zerolog.Logger
}

// New parses the cron spec and timezone.
func New(opts Options, logger zerolog.Logger) (*Scheduler, error) {
	spec := strings.TrimSpace(opts.Spec)
	if spec == "" {
		return nil, fmt.Errorf("scheduler cron spec is required")
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}

	location := time.UTC
	if opts.Timezone != "" {
		location, err = time.LoadLocation(opts.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", opts.Timezone, err)
		}
	}

	opts.Spec = spec
	return &Scheduler{
		opts:     opts,
		schedule: schedule,
		location: location,
		logger:   logger.With().Str("component", "scheduler").Str("cron", spec).Logger(),
	}, nil
}

// Next reports the first firing strictly after from.
func (s *Scheduler) Next(from time.Time) time.Time {
	return s.schedule.Next(from.In(s.location))
}

// Run blocks, invoking tick at every firing until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.RunOnStart {
		s.execute(ctx, tick, time.Now().In(s.location))
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	logAdapter := cronLogger{logger: s.logger}
	runner := cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(logAdapter),
		cron.WithChain(cron.Recover(logAdapter), cron.SkipIfStillRunning(logAdapter)),
	)
	runner.Schedule(s.schedule, cron.FuncJob(func() {
		s.execute(ctx, tick, time.Now().In(s.location))
	}))

	runner.Start()
	s.logger.Info().Time("next_run", s.Next(time.Now())).Msg("scheduler started")

	<-ctx.Done()
	stopped := runner.Stop()
	<-stopped.Done()
	s.logger.Info().Msg("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) execute(ctx context.Context, tick TickFunc, fired time.Time) {
	if ctx.Err() != nil {
		return
	}
	s.logger.Info().Time("fired", fired).Msg("executing scheduled tick")
	if err := tick(ctx, fired); err != nil {
		s.logger.Error().Err(err).Time("fired", fired).Msg("tick execution failed")
	}
}

// cronLogger routes cron's internal logging into zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

var _ cron.Logger = cronLogger{}
