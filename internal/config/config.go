package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/lead-resolver/internal/scrape"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	FamilyTree FamilyTreeConfig `yaml:"familytree" mapstructure:"familytree"`
	Melissa    MelissaConfig    `yaml:"melissa" mapstructure:"melissa"`
	TextScan   TextScanConfig   `yaml:"textscan" mapstructure:"textscan"`
	TwoCaptcha TwoCaptchaConfig `yaml:"twocaptcha" mapstructure:"twocaptcha"`
	Judge      JudgeConfig      `yaml:"judge" mapstructure:"judge"`
	Alert      AlertConfig      `yaml:"alert" mapstructure:"alert"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
}

// StoreConfig configures the lead store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the intake server.
type ServerConfig struct {
	Port      int `yaml:"port" mapstructure:"port"`
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size"`
}

// FamilyTreeConfig configures the tier 1 directory.
type FamilyTreeConfig struct {
	BaseURL           string             `yaml:"base_url" mapstructure:"base_url"`
	SearchTimeoutSecs int                `yaml:"search_timeout_secs" mapstructure:"search_timeout_secs"`
	DetailTimeoutSecs int                `yaml:"detail_timeout_secs" mapstructure:"detail_timeout_secs"`
	TimeoutSecs       int                `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	DebugDir          string             `yaml:"debug_dir" mapstructure:"debug_dir"`
	Unblocker         scrape.ProxyConfig `yaml:"unblocker" mapstructure:"unblocker"`
	Residential       scrape.ProxyConfig `yaml:"residential" mapstructure:"residential"`
}

// MelissaConfig configures the tier 2 account-based directory.
type MelissaConfig struct {
	Enabled            bool    `yaml:"enabled" mapstructure:"enabled"`
	SigninURL          string  `yaml:"signin_url" mapstructure:"signin_url"`
	SearchURL          string  `yaml:"search_url" mapstructure:"search_url"`
	Username           string  `yaml:"username" mapstructure:"username"`
	Password           string  `yaml:"password" mapstructure:"password"`
	TimeoutSecs        int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ResultsTimeoutSecs int     `yaml:"results_timeout_secs" mapstructure:"results_timeout_secs"`
	MaxDistanceMiles   float64 `yaml:"max_distance_miles" mapstructure:"max_distance_miles"`
}

// TextScanConfig configures the tier 3 text directory.
type TextScanConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// TwoCaptchaConfig configures the challenge solving service.
type TwoCaptchaConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	PollIntervalMs int    `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	TimeoutMs      int    `yaml:"timeout_ms" mapstructure:"timeout_ms"`
}

// JudgeConfig selects and configures the LLM judge backend.
type JudgeConfig struct {
	Provider       string `yaml:"provider" mapstructure:"provider"`
	AnthropicKey   string `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	AnthropicModel string `yaml:"anthropic_model" mapstructure:"anthropic_model"`
	OpenAIKey      string `yaml:"openai_key" mapstructure:"openai_key"`
	OpenAIModel    string `yaml:"openai_model" mapstructure:"openai_model"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AlertConfig configures the alert webhook.
type AlertConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PipelineConfig configures lead intake and batch runs.
type PipelineConfig struct {
	DefaultState    string  `yaml:"default_state" mapstructure:"default_state"`
	DefaultLeadType string  `yaml:"default_lead_type" mapstructure:"default_lead_type"`
	BatchLimit      int     `yaml:"batch_limit" mapstructure:"batch_limit"`
	RequestRPS      float64 `yaml:"request_rps" mapstructure:"request_rps"`
	// UserAgent overrides the browser user agent sent by every fetcher.
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
}

// Seconds converts a seconds setting to a duration.
func Seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// Millis converts a milliseconds setting to a duration.
func Millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADRESOLVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.table", "leads")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.queue_size", 100)
	v.SetDefault("familytree.base_url", "https://www.familytreenow.com")
	v.SetDefault("familytree.search_timeout_secs", 45)
	v.SetDefault("familytree.detail_timeout_secs", 60)
	v.SetDefault("familytree.timeout_secs", 90)
	v.SetDefault("familytree.residential.session_format", "%s-session-%s")
	v.SetDefault("melissa.enabled", true)
	v.SetDefault("melissa.signin_url", "https://apps.melissa.com/user/signin.aspx?src=https://lookups.melissa.com/home/")
	v.SetDefault("melissa.search_url", "https://lookups.melissa.com/home/personatorsearch/")
	v.SetDefault("melissa.timeout_secs", 90)
	v.SetDefault("melissa.results_timeout_secs", 20)
	v.SetDefault("melissa.max_distance_miles", 10)
	v.SetDefault("textscan.enabled", true)
	v.SetDefault("textscan.base_url", "https://thatsthem.com")
	v.SetDefault("textscan.timeout_secs", 60)
	v.SetDefault("twocaptcha.base_url", "https://2captcha.com")
	v.SetDefault("twocaptcha.poll_interval_ms", 5000)
	v.SetDefault("twocaptcha.timeout_ms", 180000)
	v.SetDefault("judge.provider", "anthropic")
	v.SetDefault("judge.anthropic_model", "claude-haiku-4-5-20251001")
	v.SetDefault("judge.openai_model", "gpt-4o-mini")
	v.SetDefault("judge.timeout_secs", 30)
	v.SetDefault("alert.timeout_secs", 10)
	v.SetDefault("pipeline.default_state", "TX")
	v.SetDefault("pipeline.default_lead_type", "handyman")
	v.SetDefault("pipeline.batch_limit", 50)
	v.SetDefault("pipeline.request_rps", 1.0)

	// Secrets and endpoints have no default but must be known keys so
	// AutomaticEnv can bind them.
	for _, key := range []string{
		"store.database_url",
		"familytree.debug_dir",
		"familytree.unblocker.url", "familytree.unblocker.username", "familytree.unblocker.password",
		"familytree.residential.url", "familytree.residential.username", "familytree.residential.password",
		"melissa.username", "melissa.password",
		"twocaptcha.key",
		"judge.anthropic_key", "judge.openai_key", "judge.base_url",
		"alert.url",
		"pipeline.user_agent",
	} {
		v.SetDefault(key, "")
	}

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

// Validate checks the settings a command mode needs. Modes are
// "resolve", "batch", "serve" and "migrate".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, "store.driver must be postgres or sqlite")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "migrate":
	case "resolve", "batch", "serve":
		switch c.Judge.Provider {
		case "anthropic":
			if c.Judge.AnthropicKey == "" && c.Melissa.Enabled {
				errs = append(errs, "judge.anthropic_key is required")
			}
		case "openai":
			if c.Judge.OpenAIKey == "" && c.Melissa.Enabled {
				errs = append(errs, "judge.openai_key is required")
			}
		default:
			errs = append(errs, "judge.provider must be anthropic or openai")
		}
		if c.Melissa.MaxDistanceMiles < 0 {
			errs = append(errs, "melissa.max_distance_miles must be >= 0")
		}
		if mode == "batch" && c.Pipeline.BatchLimit <= 0 {
			errs = append(errs, "pipeline.batch_limit must be > 0")
		}
		if mode == "serve" {
			if c.Server.Port <= 0 {
				errs = append(errs, "server.port must be > 0")
			}
			if c.Server.QueueSize <= 0 {
				errs = append(errs, "server.queue_size must be > 0")
			}
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
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
	zap.ReplaceGlobals(logger)

	return nil
}
