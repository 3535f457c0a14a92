package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-analytics/internal/alerting"
	"stock-analytics/internal/config"
	"stock-analytics/internal/dataset"
	"stock-analytics/internal/generator"
	"stock-analytics/internal/ingest"
	"stock-analytics/internal/storage"
)

type fakeRunStore struct {
	mu   sync.Mutex
	runs []storage.RunRecord
}

func (f *fakeRunStore) InsertRun(_ context.Context, run storage.RunRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeRunStore) ListRecentRuns(context.Context, int) ([]storage.RunRecord, error) {
	return f.runs, nil
}

type lockingRunStore struct {
	fakeRunStore
	acquired bool
	unlocked int
}

func (l *lockingRunStore) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	if !l.acquired {
		return nil, false, nil
	}
	return func() { l.unlocked++ }, true, nil
}

type fakeAnalyticsStore struct {
	rows []dataset.Enriched
	err  error
}

func (f *fakeAnalyticsStore) ReplaceAnalytics(_ context.Context, rows []dataset.Enriched) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.rows = rows
	return int64(len(rows)), nil
}

type fakeNotifier struct {
	notes []alerting.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, note alerting.Notification) error {
	f.notes = append(f.notes, note)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Paths: config.PathsConfig{
			RawDir:       filepath.Join(dir, "raw"),
			Pattern:      "*.csv",
			CleanedFile:  filepath.Join(dir, "processed", "clean.csv"),
			EnrichedFile: filepath.Join(dir, "processed", "analytics.csv"),
		},
		Ingest:    config.IngestConfig{Workers: 2},
		Analytics: config.AnalyticsConfig{ShortWindow: 7, LongWindow: 30, VolatilityWindow: 30},
		Scheduler: config.SchedulerConfig{Retries: 2, RetryDelay: time.Millisecond},
		Alerting:  config.AlertingConfig{Enabled: true},
	}
}

func generateRaw(t *testing.T, cfg *config.Config, periods int) {
	t.Helper()
	gen := generator.New(generator.Options{
		StocksDir: cfg.Paths.RawDir,
		Symbols:   generator.DefaultSymbols(),
		Start:     time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC),
		Periods:   periods,
	}, generator.NewSource(42), zerolog.Nop())
	_, err := gen.Run(context.Background())
	require.NoError(t, err)
}

func TestRunOnceEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	cfg.Alerting.OnSuccess = true
	generateRaw(t, cfg, 40)

	runs := &fakeRunStore{}
	rows := &fakeAnalyticsStore{}
	notifier := &fakeNotifier{}
	svc := New(cfg, nil, runs, rows, notifier, zerolog.Nop())

	summary, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Attempts)
	assert.Equal(t, 160, summary.RowsCleaned())
	assert.Equal(t, 160, summary.RowsEnriched())
	assert.Equal(t, int64(160), summary.RowsStored)
	assert.Equal(t, 4, summary.Result.Companies)
	assert.NotEmpty(t, summary.RunID)
	assert.FileExists(t, cfg.Paths.EnrichedFile)

	require.Len(t, runs.runs, 1)
	assert.Equal(t, storage.StatusSucceeded, runs.runs[0].Status)
	assert.Equal(t, 4, runs.runs[0].FilesTotal)
	assert.Equal(t, summary.RunID, runs.runs[0].ID)

	require.Len(t, notifier.notes, 1)
	assert.True(t, notifier.notes[0].Succeeded)
}

func TestRunOnceStoreFailureDoesNotFailRun(t *testing.T) {
	cfg := testConfig(t)
	generateRaw(t, cfg, 10)

	rows := &fakeAnalyticsStore{err: errors.New("connection refused")}
	notifier := &fakeNotifier{}
	svc := New(cfg, nil, nil, rows, notifier, zerolog.Nop())

	summary, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.RowsStored)
	assert.Empty(t, notifier.notes)
}

func TestTickRetriesThenReportsFailure(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Paths.RawDir, 0o755))

	runs := &fakeRunStore{}
	notifier := &fakeNotifier{}
	svc := New(cfg, nil, runs, nil, notifier, zerolog.Nop())

	err := svc.Tick(context.Background(), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, ingest.ErrMissingInput)

	require.Len(t, runs.runs, 1)
	assert.Equal(t, storage.StatusFailed, runs.runs[0].Status)
	assert.Contains(t, runs.runs[0].Error, "no input files")

	require.Len(t, notifier.notes, 1)
	assert.False(t, notifier.notes[0].Succeeded)
	assert.NoFileExists(t, cfg.Paths.CleanedFile)
}

func TestRunCountsAttempts(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Paths.RawDir, 0o755))

	svc := New(cfg, nil, nil, nil, nil, zerolog.Nop())
	summary, err := svc.run(context.Background(), 2)
	require.ErrorIs(t, err, ingest.ErrMissingInput)
	assert.Equal(t, 3, summary.Attempts)

	summary, err = svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, summary.Attempts)
}

func TestRunStopsRetryingOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scheduler.RetryDelay = time.Hour
	require.NoError(t, os.MkdirAll(cfg.Paths.RawDir, 0o755))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	svc := New(cfg, nil, nil, nil, nil, zerolog.Nop())
	summary, err := svc.run(ctx, 5)
	require.Error(t, err)
	assert.Equal(t, 1, summary.Attempts)
}

func TestRunSkippedWhenLockHeld(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.AdvisoryLockKey = 7

	store := &lockingRunStore{}
	svc := New(cfg, nil, store, nil, nil, zerolog.Nop())

	summary, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Skipped)
	assert.Empty(t, store.runs)
}

func TestRunReleasesLock(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.AdvisoryLockKey = 7
	generateRaw(t, cfg, 5)

	store := &lockingRunStore{acquired: true}
	svc := New(cfg, nil, store, nil, nil, zerolog.Nop())

	_, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, store.unlocked)
	require.Len(t, store.runs, 1)
}

func TestRunWithoutScheduler(t *testing.T) {
	svc := New(testConfig(t), nil, nil, nil, nil, zerolog.Nop())
	assert.Error(t, svc.Run(context.Background()))
}
