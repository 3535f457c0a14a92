package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stock-analytics/internal/alerting"
	"stock-analytics/internal/analytics"
	"stock-analytics/internal/config"
	"stock-analytics/internal/ingest"
	"stock-analytics/internal/scheduler"
	"stock-analytics/internal/storage"
)

// RunSummary describes one pipeline run, successful or not.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Attempts   int
	Skipped    bool
	Report     *ingest.Report
	Result     *analytics.Result
	RowsStored int64
}

// RowsCleaned is the number of rows written by ingestion.
func (s *RunSummary) RowsCleaned() int {
	if s == nil || s.Report == nil {
		return 0
	}
	return s.Report.RowsWritten
}

// RowsEnriched is the number of rows written by the transform.
func (s *RunSummary) RowsEnriched() int {
	if s == nil || s.Result == nil {
		return 0
	}
	return len(s.Result.Rows)
}

// FailedFiles lists the base names of skipped input files.
func (s *RunSummary) FailedFiles() []string {
	if s == nil || s.Report == nil {
		return nil
	}
	var names []string
	for _, f := range s.Report.Files {
		if !f.OK() {
			names = append(names, filepath.Base(f.Path))
		}
	}
	return names
}

// Service orchestrates ingestion, transformation, persistence, and alerting.
type Service struct {
	scheduler *scheduler.Scheduler
	runs      storage.RunStore
	rows      storage.AnalyticsStore
	notifier  alerting.Notifier
	logger    zerolog.Logger

	ingestOpts ingest.Options
	engineOpts analytics.EngineOptions
	alertsOn   bool
	onSuccess  bool
	retries    int
	retryDelay time.Duration
	locker     storage.AdvisoryLocker
	lockKey    int64
}

// New constructs the pipeline service. Any of sched, runs, rows and notifier
// may be nil.
func New(cfg *config.Config, sched *scheduler.Scheduler, runs storage.RunStore, rows storage.AnalyticsStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := runs.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler: sched,
		runs:      runs,
		rows:      rows,
		notifier:  notifier,
		logger:    logger.With().Str("component", "service").Logger(),
		ingestOpts: ingest.Options{
			RawDir:     cfg.Paths.RawDir,
			Pattern:    cfg.Paths.Pattern,
			OutputPath: cfg.Paths.CleanedFile,
			ReportPath: cfg.Ingest.ReportPath,
			Workers:    cfg.Ingest.Workers,
		},
		engineOpts: analytics.EngineOptions{
			InputPath:  cfg.Paths.CleanedFile,
			OutputPath: cfg.Paths.EnrichedFile,
			Windows: analytics.Options{
				ShortWindow:      cfg.Analytics.ShortWindow,
				LongWindow:       cfg.Analytics.LongWindow,
				VolatilityWindow: cfg.Analytics.VolatilityWindow,
			},
		},
		alertsOn:   cfg.Alerting.Enabled,
		onSuccess:  cfg.Alerting.OnSuccess,
		retries:    cfg.Scheduler.Retries,
		retryDelay: cfg.Scheduler.RetryDelay,
		locker:     locker,
		lockKey:    cfg.Database.AdvisoryLockKey,
	}
}

// Run begins the cron loop; each firing runs the pipeline with retries.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.Tick)
}

// Tick 执行一次定时触发, 失败时按配置重试。
func (s *Service) Tick(ctx context.Context, fired time.Time) error {
	summary, err := s.run(ctx, s.retries)
	if err == nil && !summary.Skipped {
		s.logger.Info().Time("fired", fired).Str("run_id", summary.RunID).Msg("scheduled run completed")
	}
	return err
}

// RunOnce runs ingest then transform a single time, without retries.
func (s *Service) RunOnce(ctx context.Context) (*RunSummary, error) {
	return s.run(ctx, 0)
}

func (s *Service) run(ctx context.Context, retries int) (*RunSummary, error) {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	if !proceed {
		s.logger.Info().Msg("skip run because advisory lock held elsewhere")
		return &RunSummary{Skipped: true}, nil
	}
	if unlock != nil {
		defer unlock()
	}

	var summary *RunSummary
	for attempt := 0; ; attempt++ {
		summary, err = s.execute(ctx)
		summary.Attempts = attempt + 1
		if err == nil || attempt >= retries || ctx.Err() != nil {
			break
		}

		s.logger.Warn().Err(err).
			Int("attempt", attempt+1).
			Dur("retry_in", s.retryDelay).
			Msg("pipeline run failed, retrying")
		if waitErr := sleepContext(ctx, s.retryDelay); waitErr != nil {
			break
		}
	}

	s.record(ctx, summary, err)
	s.notify(ctx, summary, err)
	return summary, err
}

func (s *Service) execute(ctx context.Context) (*RunSummary, error) {
	summary := &RunSummary{StartedAt: time.Now().UTC()}
	defer func() { summary.FinishedAt = time.Now().UTC() }()

	report, err := ingest.New(s.ingestOpts, s.logger).Run(ctx)
	summary.Report = report
	if report != nil {
		summary.RunID = report.RunID
	} else {
		summary.RunID = uuid.NewString()
	}
	if err != nil {
		return summary, fmt.Errorf("ingest: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return summary, err
	}

	result, err := analytics.NewEngine(s.engineOpts, s.logger).Run(ctx)
	if err != nil {
		return summary, fmt.Errorf("transform: %w", err)
	}
	summary.Result = result

	if s.rows != nil {
		stored, err := s.rows.ReplaceAnalytics(ctx, result.Rows)
		if err != nil {
			s.logger.Error().Err(err).Str("run_id", summary.RunID).Msg("failed to store analytics rows")
		} else {
			summary.RowsStored = stored
		}
	}

	s.logger.Info().
		Str("run_id", summary.RunID).
		Int("rows_cleaned", summary.RowsCleaned()).
		Int("rows_enriched", summary.RowsEnriched()).
		Int64("rows_stored", summary.RowsStored).
		Msg("pipeline run finished")
	return summary, nil
}

func (s *Service) record(ctx context.Context, summary *RunSummary, runErr error) {
	if s.runs == nil || summary == nil {
		return
	}
	rec := storage.RunRecord{
		ID:           summary.RunID,
		StartedAt:    summary.StartedAt,
		FinishedAt:   summary.FinishedAt,
		RowsCleaned:  summary.RowsCleaned(),
		RowsEnriched: summary.RowsEnriched(),
		Status:       storage.StatusSucceeded,
	}
	if summary.Report != nil {
		rec.FilesTotal = len(summary.Report.Files)
		rec.FilesFailed = summary.Report.Failed()
	}
	if runErr != nil {
		rec.Status = storage.StatusFailed
		rec.Error = runErr.Error()
	}
	// ctx may already be cancelled; the audit row is still wanted.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.runs.InsertRun(writeCtx, rec); err != nil {
		s.logger.Error().Err(err).Str("run_id", rec.ID).Msg("failed to persist run record")
	}
}

func (s *Service) notify(ctx context.Context, summary *RunSummary, runErr error) {
	if !s.alertsOn || s.notifier == nil || summary == nil {
		return
	}
	if runErr == nil && !s.onSuccess {
		return
	}
	if errors.Is(runErr, context.Canceled) {
		return
	}

	note := alerting.Notification{
		RunID:        summary.RunID,
		StartedAt:    summary.StartedAt,
		Duration:     summary.FinishedAt.Sub(summary.StartedAt),
		Succeeded:    runErr == nil,
		FilesFailed:  summary.FailedFiles(),
		RowsCleaned:  summary.RowsCleaned(),
		RowsEnriched: summary.RowsEnriched(),
		Err:          runErr,
	}
	if summary.Report != nil {
		note.FilesTotal = len(summary.Report.Files)
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("run_id", summary.RunID).Msg("failed to dispatch alert")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
