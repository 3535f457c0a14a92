package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"stock-analytics/internal/alerting"
	"stock-analytics/internal/analytics"
	"stock-analytics/internal/config"
	"stock-analytics/internal/generator"
	"stock-analytics/internal/ingest"
	"stock-analytics/internal/orchestrator"
	"stock-analytics/internal/scheduler"
	"stock-analytics/internal/service"
	"stock-analytics/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Generate writes the synthetic price series and portfolio transactions.
func (a *App) Generate(ctx context.Context, opts GenerateOptions) (*generator.Summary, error) {
	gc := a.Config.Generator
	start, err := gc.Start()
	if err != nil {
		return nil, err
	}

	symbols := make([]generator.Symbol, 0, len(gc.Symbols))
	for _, s := range gc.Symbols {
		symbols = append(symbols, generator.Symbol{Ticker: s.Ticker, Sector: s.Sector, StartPrice: s.StartPrice})
	}

	seed := gc.Seed
	if opts.Seed != nil {
		seed = *opts.Seed
	}
	periods := gc.Periods
	if opts.Periods > 0 {
		periods = opts.Periods
	}

	gen := generator.New(generator.Options{
		StocksDir:    a.Config.Paths.RawDir,
		PortfolioDir: a.Config.Paths.PortfolioDir,
		Symbols:      symbols,
		Start:        start,
		Periods:      periods,
		Transactions: gc.Transactions,
	}, generator.NewSource(seed), a.Logger)

	return gen.Run(ctx)
}

// Ingest validates the raw files into the cleaned dataset.
func (a *App) Ingest(ctx context.Context) (*ingest.Report, error) {
	v := ingest.New(ingest.Options{
		RawDir:     a.Config.Paths.RawDir,
		Pattern:    a.Config.Paths.Pattern,
		OutputPath: a.Config.Paths.CleanedFile,
		ReportPath: a.Config.Ingest.ReportPath,
		Workers:    a.Config.Ingest.Workers,
	}, a.Logger)
	return v.Run(ctx)
}

// Transform enriches the cleaned dataset with rolling metrics.
func (a *App) Transform(ctx context.Context) (*analytics.Result, error) {
	engine := analytics.NewEngine(analytics.EngineOptions{
		InputPath:  a.Config.Paths.CleanedFile,
		OutputPath: a.Config.Paths.EnrichedFile,
		Windows:    a.windows(),
	}, a.Logger)
	return engine.Run(ctx)
}

func (a *App) windows() analytics.Options {
	return analytics.Options{
		ShortWindow:      a.Config.Analytics.ShortWindow,
		LongWindow:       a.Config.Analytics.LongWindow,
		VolatilityWindow: a.Config.Analytics.VolatilityWindow,
	}
}

// newService wires the pipeline service with the optional store and notifier.
func (a *App) newService(store *storage.Store, sched *scheduler.Scheduler) *service.Service {
	var runs storage.RunStore
	var rows storage.AnalyticsStore
	if store != nil {
		runs = store
		rows = store
	}
	return service.New(a.Config, sched, runs, rows, a.newNotifier(), a.Logger)
}

// RunPipeline executes ingest then transform once.
func (a *App) RunPipeline(ctx context.Context) (*service.RunSummary, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		defer closeStore()
	}

	return a.newService(store, nil).RunOnce(ctx)
}

// Schedule runs the pipeline on the configured cron until interrupted.
func (a *App) Schedule(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched, err := scheduler.New(scheduler.Options{
		Spec:       a.Config.Scheduler.Cron,
		Timezone:   a.Config.Scheduler.Timezone,
		RunOnStart: a.Config.Scheduler.RunOnStart,
	}, a.Logger)
	if err != nil {
		return err
	}

	svc := a.newService(store, sched)

	a.Logger.Info().Str("cron", a.Config.Scheduler.Cron).Msg("starting pipeline scheduler")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("scheduler terminated with error")
		return err
	}

	a.Logger.Info().Msg("pipeline scheduler stopped")
	return nil
}

func (a *App) newTrigger() (*orchestrator.Trigger, error) {
	oc := a.Config.Orchestrator
	conn, err := a.Config.ResolveConnection(oc.Connection)
	if err != nil {
		return nil, err
	}
	return orchestrator.New(orchestrator.Options{
		JobID:        oc.JobID,
		ConnectionID: oc.Connection,
		Host:         conn.Host,
		Token:        conn.Token,
		Retries:      oc.Retries,
		RetryDelay:   oc.RetryDelay,
		Timeout:      oc.Timeout,
	}, a.Logger)
}

// Trigger starts the remote job now, or on the orchestrator cron when
// opts.Schedule is set.
func (a *App) Trigger(ctx context.Context, opts TriggerOptions) (orchestrator.RunNowResult, error) {
	trigger, err := a.newTrigger()
	if err != nil {
		return orchestrator.RunNowResult{}, err
	}

	if !opts.Schedule {
		return trigger.RunNow(ctx)
	}

	spec := a.Config.Orchestrator.Cron
	if spec == "" {
		spec = a.Config.Scheduler.Cron
	}
	sched, err := scheduler.New(scheduler.Options{
		Spec:     spec,
		Timezone: a.Config.Scheduler.Timezone,
	}, a.Logger)
	if err != nil {
		return orchestrator.RunNowResult{}, err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err = sched.Run(ctx, func(ctx context.Context, fired time.Time) error {
		_, err := trigger.RunNow(ctx)
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return orchestrator.RunNowResult{}, fmt.Errorf("trigger scheduler: %w", err)
	}
	return orchestrator.RunNowResult{}, nil
}

// GenerateOptions override generator settings from the command line.
type GenerateOptions struct {
	Seed    *uint64
	Periods int
}

// TriggerOptions configure the trigger command.
type TriggerOptions struct {
	Schedule bool
}

// ExportOptions hold parameters for exporting one company's analytics.
type ExportOptions struct {
	Company   string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit   int
	Company string
	Runs    bool
}

// BackfillOptions configure loading an enriched file into the database.
type BackfillOptions struct {
	InputPath string
	DryRun    bool
}
