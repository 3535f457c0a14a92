package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"stock-analytics/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App          AppConfig                   `mapstructure:"app"`
	Logging      logging.Config              `mapstructure:"logging"`
	Paths        PathsConfig                 `mapstructure:"paths"`
	Ingest       IngestConfig                `mapstructure:"ingest"`
	Analytics    AnalyticsConfig             `mapstructure:"analytics"`
	Generator    GeneratorConfig             `mapstructure:"generator"`
	Database     DatabaseConfig              `mapstructure:"database"`
	Scheduler    SchedulerConfig             `mapstructure:"scheduler"`
	Orchestrator OrchestratorConfig          `mapstructure:"orchestrator"`
	Connections  map[string]ConnectionConfig `mapstructure:"connections"`
	Alerting     AlertingConfig              `mapstructure:"alerting"`
	Export       ExportConfig                `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// PathsConfig locates every file the pipeline reads or writes.
type PathsConfig struct {
	RawDir       string `mapstructure:"raw_dir"`
	Pattern      string `mapstructure:"pattern"`
	PortfolioDir string `mapstructure:"portfolio_dir"`
	CleanedFile  string `mapstructure:"cleaned_file"`
	EnrichedFile string `mapstructure:"enriched_file"`
}

// IngestConfig tunes the validator.
type IngestConfig struct {
	Workers    int    `mapstructure:"workers"`
	ReportPath string `mapstructure:"report_path"`
}

// AnalyticsConfig sets trailing window sizes.
type AnalyticsConfig struct {
	ShortWindow      int `mapstructure:"short_window"`
	LongWindow       int `mapstructure:"long_window"`
	VolatilityWindow int `mapstructure:"volatility_window"`
}

// SymbolConfig describes a synthetic instrument.
type SymbolConfig struct {
	Ticker     string  `mapstructure:"ticker"`
	Sector     string  `mapstructure:"sector"`
	StartPrice float64 `mapstructure:"start_price"`
}

// GeneratorConfig drives synthetic data generation.
type GeneratorConfig struct {
	Seed         uint64         `mapstructure:"seed"`
	StartDate    string         `mapstructure:"start_date"`
	Periods      int            `mapstructure:"periods"`
	Transactions int            `mapstructure:"transactions"`
	Symbols      []SymbolConfig `mapstructure:"symbols"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// SchedulerConfig governs the recurring local pipeline.
type SchedulerConfig struct {
	Cron       string        `mapstructure:"cron"`
	Timezone   string        `mapstructure:"timezone"`
	RunOnStart bool          `mapstructure:"run_on_start"`
	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// OrchestratorConfig identifies the remote job triggered by `trigger`.
type OrchestratorConfig struct {
	JobID      int64         `mapstructure:"job_id"`
	Connection string        `mapstructure:"connection"`
	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Cron       string        `mapstructure:"cron"`
}

// ConnectionConfig is a named remote endpoint. TokenEnv names an environment
// variable consulted when Token is empty.
type ConnectionConfig struct {
	Host     string `mapstructure:"host"`
	Token    string `mapstructure:"token"`
	TokenEnv string `mapstructure:"token_env"`
}

// AlertingConfig routes run notifications.
type AlertingConfig struct {
	Enabled   bool           `mapstructure:"enabled"`
	OnSuccess bool           `mapstructure:"on_success"`
	Telegram  TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
	Width         int `mapstructure:"width"`
	Height        int `mapstructure:"height"`
}

// Load builds configuration from file, .env, environment, and defaults.
func Load(path string) (*Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("STOCKPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "stockpipe")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("paths.raw_dir", "data/raw/stocks")
	v.SetDefault("paths.pattern", "*.csv")
	v.SetDefault("paths.portfolio_dir", "data/raw/portfolio")
	v.SetDefault("paths.cleaned_file", "data/processed/clean_stock_data.csv")
	v.SetDefault("paths.enriched_file", "data/processed/stock_analytics.csv")

	v.SetDefault("ingest.workers", 1)
	v.SetDefault("ingest.report_path", "")

	v.SetDefault("analytics.short_window", 7)
	v.SetDefault("analytics.long_window", 30)
	v.SetDefault("analytics.volatility_window", 30)

	v.SetDefault("generator.seed", 42)
	v.SetDefault("generator.start_date", "2005-01-01")
	v.SetDefault("generator.periods", 5200)
	v.SetDefault("generator.transactions", 1000)
	v.SetDefault("generator.symbols", []map[string]any{
		{"ticker": "AAPL", "sector": "Technology", "start_price": 150.0},
		{"ticker": "MSFT", "sector": "Technology", "start_price": 220.0},
		{"ticker": "JPM", "sector": "Finance", "start_price": 100.0},
		{"ticker": "GOOGL", "sector": "Technology", "start_price": 120.0},
	})

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.advisory_lock_key", int64(0x73746b70))

	v.SetDefault("scheduler.cron", "0 18 * * 1-5")
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.run_on_start", false)
	v.SetDefault("scheduler.retries", 2)
	v.SetDefault("scheduler.retry_delay", "5m")

	v.SetDefault("orchestrator.job_id", int64(558961576002013))
	v.SetDefault("orchestrator.connection", "databricks_default")
	v.SetDefault("orchestrator.retries", 2)
	v.SetDefault("orchestrator.retry_delay", "5m")
	v.SetDefault("orchestrator.timeout", "30s")
	v.SetDefault("orchestrator.cron", "")

	v.SetDefault("connections.databricks_default.host", "")
	v.SetDefault("connections.databricks_default.token_env", "DATABRICKS_TOKEN")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.on_success", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 2000)
	v.SetDefault("export.width", 1280)
	v.SetDefault("export.height", 720)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Paths.RawDir == "" || c.Paths.CleanedFile == "" || c.Paths.EnrichedFile == "" {
		return fmt.Errorf("paths.raw_dir, paths.cleaned_file and paths.enriched_file must be set")
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest.workers must be at least 1")
	}
	if c.Analytics.ShortWindow <= 0 || c.Analytics.LongWindow <= 0 || c.Analytics.VolatilityWindow <= 0 {
		return fmt.Errorf("analytics windows must be greater than zero")
	}
	if c.Analytics.ShortWindow >= c.Analytics.LongWindow {
		return fmt.Errorf("analytics.short_window must be less than analytics.long_window")
	}
	if c.Generator.Periods <= 0 {
		return fmt.Errorf("generator.periods must be greater than zero")
	}
	if _, err := c.Generator.Start(); err != nil {
		return err
	}
	if c.Scheduler.Retries < 0 || c.Orchestrator.Retries < 0 {
		return fmt.Errorf("retries cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// Start parses the generator start date.
func (g GeneratorConfig) Start() (time.Time, error) {
	start, err := time.Parse("2006-01-02", g.StartDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("generator.start_date: %w", err)
	}
	return start, nil
}

// ResolveConnection returns the named connection with its token resolved.
func (c *Config) ResolveConnection(name string) (ConnectionConfig, error) {
	conn, ok := c.Connections[strings.ToLower(name)]
	if !ok {
		return ConnectionConfig{}, fmt.Errorf("connection %q not configured", name)
	}
	if conn.Token == "" && conn.TokenEnv != "" {
		conn.Token = os.Getenv(conn.TokenEnv)
	}
	if conn.Host == "" {
		return ConnectionConfig{}, fmt.Errorf("connection %q has no host", name)
	}
	if conn.Token == "" {
		return ConnectionConfig{}, fmt.Errorf("connection %q has no token", name)
	}
	return conn, nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
