package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sells-group/listing-ledger/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Ledger    LedgerConfig     `yaml:"ledger" mapstructure:"ledger"`
	Extract   ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Area      AreaConfig       `yaml:"area" mapstructure:"area"`
	Source    SourceConfig     `yaml:"source" mapstructure:"source"`
	Google    GoogleConfig     `yaml:"google" mapstructure:"google"`
	HTML      HTMLConfig       `yaml:"html" mapstructure:"html"`
	Firecrawl FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Snapshot  SnapshotConfig   `yaml:"snapshot" mapstructure:"snapshot"`
	Journal   JournalConfig    `yaml:"journal" mapstructure:"journal"`
	Monitor   MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log       LogConfig        `yaml:"log" mapstructure:"log"`
}

// LedgerConfig locates the run outputs and the duplicate ledger.
type LedgerConfig struct {
	OutputDir    string `yaml:"output_dir" mapstructure:"output_dir"`
	DuplicateDir string `yaml:"duplicate_dir" mapstructure:"duplicate_dir"`
	Schema       string `yaml:"schema" mapstructure:"schema"`
}

// ExtractConfig configures the session and field extraction.
type ExtractConfig struct {
	Subject         string `yaml:"subject" mapstructure:"subject"`
	MaxEmptyRetries int    `yaml:"max_empty_retries" mapstructure:"max_empty_retries"`
	MaxScrollProbes int    `yaml:"max_scroll_probes" mapstructure:"max_scroll_probes"`
	SearchRetries   int    `yaml:"search_retries" mapstructure:"search_retries"`
	SettleSearchMS  int    `yaml:"settle_search_ms" mapstructure:"settle_search_ms"`
	SettleOpenMS    int    `yaml:"settle_open_ms" mapstructure:"settle_open_ms"`
	SettleNextMS    int    `yaml:"settle_next_ms" mapstructure:"settle_next_ms"`
	SettleScrollMS  int    `yaml:"settle_scroll_ms" mapstructure:"settle_scroll_ms"`
	SettleReloadMS  int    `yaml:"settle_reload_ms" mapstructure:"settle_reload_ms"`
	EmptyWaitMS     int    `yaml:"empty_wait_ms" mapstructure:"empty_wait_ms"`
	SkipClosed      bool   `yaml:"skip_closed" mapstructure:"skip_closed"`
}

// AreaConfig configures area-name validation.
type AreaConfig struct {
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	Region      string `yaml:"region" mapstructure:"region"`
}

// SourceConfig selects the listing source driver.
type SourceConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	// BreakerThreshold consecutive transient failures open the source
	// breaker for BreakerCooldownSecs. Zero disables the breaker.
	BreakerThreshold    int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// GoogleConfig holds Google Places API settings.
type GoogleConfig struct {
	Key          string  `yaml:"key" mapstructure:"key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	PageSize     int     `yaml:"page_size" mapstructure:"page_size"`
	LanguageCode string  `yaml:"language_code" mapstructure:"language_code"`
	RegionCode   string  `yaml:"region_code" mapstructure:"region_code"`
}

// HTMLConfig configures the rendered-page source driver.
type HTMLConfig struct {
	SearchURL   string `yaml:"search_url" mapstructure:"search_url"`
	Renderer    string `yaml:"renderer" mapstructure:"renderer"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// FirecrawlConfig holds Firecrawl API settings for the firecrawl renderer.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// SnapshotConfig configures diagnostic captures.
type SnapshotConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir     string `yaml:"dir" mapstructure:"dir"`
}

// JournalConfig locates the sqlite run journal. An empty path disables it.
type JournalConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// MonitoringConfig configures run health checks over the journal.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	DryRunStreak         int     `yaml:"dry_run_streak" mapstructure:"dry_run_streak"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"`
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key is registered so env overrides reach Unmarshal.
	v.SetDefault("ledger.output_dir", "data")
	v.SetDefault("ledger.duplicate_dir", "duplicate_data")
	v.SetDefault("ledger.schema", string(model.SchemaExtended))
	v.SetDefault("extract.subject", "hot chips")
	v.SetDefault("extract.max_empty_retries", 6)
	v.SetDefault("extract.max_scroll_probes", 4)
	v.SetDefault("extract.search_retries", 3)
	v.SetDefault("extract.settle_search_ms", 5000)
	v.SetDefault("extract.settle_open_ms", 3000)
	v.SetDefault("extract.settle_next_ms", 3000)
	v.SetDefault("extract.settle_scroll_ms", 2000)
	v.SetDefault("extract.settle_reload_ms", 5000)
	v.SetDefault("extract.empty_wait_ms", 3000)
	v.SetDefault("extract.skip_closed", false)
	v.SetDefault("area.max_attempts", 2)
	v.SetDefault("area.region", "")
	v.SetDefault("source.driver", "places")
	v.SetDefault("source.breaker_threshold", 5)
	v.SetDefault("source.breaker_cooldown_secs", 30)
	v.SetDefault("google.key", "")
	v.SetDefault("google.language_code", "en")
	v.SetDefault("google.region_code", "")
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("google.rate_limit", 5.0)
	v.SetDefault("google.page_size", 20)
	v.SetDefault("html.search_url", "https://www.google.com/maps/search/")
	v.SetDefault("html.renderer", "direct")
	v.SetDefault("html.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0 Safari/537.36")
	v.SetDefault("html.timeout_secs", 30)
	v.SetDefault("firecrawl.key", "")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("snapshot.enabled", false)
	v.SetDefault("snapshot.dir", "snapshots")
	v.SetDefault("journal.path", ".ledger/journal.db")
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.dry_run_streak", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Mode "ledger"
// covers the ledger files only; mode "run" also covers the source driver.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "ledger", "run":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if _, err := model.ParseSchema(c.Ledger.Schema); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Ledger.OutputDir == "" {
		problems = append(problems, "ledger.output_dir is required")
	}
	if c.Ledger.DuplicateDir == "" {
		problems = append(problems, "ledger.duplicate_dir is required")
	}

	if mode == "run" {
		switch c.Source.Driver {
		case "places":
			if c.Google.Key == "" {
				problems = append(problems, "google.key is required for source.driver=places")
			}
			if c.Google.PageSize < 1 || c.Google.PageSize > 20 {
				problems = append(problems, "google.page_size must be between 1 and 20")
			}
		case "html":
			switch c.HTML.Renderer {
			case "direct":
			case "firecrawl":
				if c.Firecrawl.Key == "" {
					problems = append(problems, "firecrawl.key is required for html.renderer=firecrawl")
				}
			default:
				problems = append(problems, "html.renderer must be direct or firecrawl")
			}
		default:
			problems = append(problems, "source.driver must be places or html")
		}
		if strings.TrimSpace(c.Extract.Subject) == "" {
			problems = append(problems, "extract.subject is required")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Millis converts a millisecond config value to a Duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// InitLogger initializes the global zap logger. When cfg.File is set, JSON
// logs are also written to a size-rotated file.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}

	if cfg.File != "" {
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), sink, zapCfg.Level)
		logger = logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}
	zap.ReplaceGlobals(logger)

	return nil
}
