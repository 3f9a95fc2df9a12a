package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rentguard/rentguard-cli/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Engine    EngineConfig    `yaml:"engine" mapstructure:"engine"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Packet    PacketConfig    `yaml:"packet" mapstructure:"packet"`
	Overrides OverridesConfig `yaml:"overrides" mapstructure:"overrides"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// EngineConfig configures the decision engine client.
type EngineConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	BreakerThreshold  int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldown   int     `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// Timeout returns the per-request timeout. Zero means none.
func (c EngineConfig) Timeout() time.Duration {
	if c.TimeoutSecs <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Cooldown returns how long an open circuit waits before calling the engine again.
func (c EngineConfig) Cooldown() time.Duration {
	return time.Duration(c.BreakerCooldown) * time.Second
}

// RetryConfig configures caller-side retry of evaluations.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// Resilience converts the settings to a resilience.RetryConfig.
func (c RetryConfig) Resilience() resilience.RetryConfig {
	return resilience.NewRetryConfig(c.MaxAttempts, c.InitialBackoffMs, c.MaxBackoffMs)
}

// PacketConfig configures judge packet output.
type PacketConfig struct {
	OutputDir     string `yaml:"output_dir" mapstructure:"output_dir"`
	MaxConcurrent int    `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// OverridesConfig points at an optional override queue file.
type OverridesConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// FetchConfig configures remote ledger downloads.
type FetchConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	MaxBytes    int64  `yaml:"max_bytes" mapstructure:"max_bytes"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// ServerConfig configures the local session API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, file and environment, in increasing
// precedence. Variables already set in the environment are never replaced by
// .env values.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path looks for an
// optional config.yaml in the working directory; a named file must exist.
func LoadFile(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("RENTGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("engine.base_url", "http://localhost:8000/api")
	v.SetDefault("engine.timeout_secs", 0)
	v.SetDefault("engine.requests_per_second", 5)
	v.SetDefault("engine.user_agent", "rentguard-cli/1.0")
	v.SetDefault("engine.breaker_threshold", 5)
	v.SetDefault("engine.breaker_cooldown_secs", 30)
	v.SetDefault("retry.max_attempts", 1)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("packet.output_dir", ".")
	v.SetDefault("packet.max_concurrent", 4)
	v.SetDefault("overrides.file", "")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.max_bytes", 10<<20)
	v.SetDefault("fetch.user_agent", "rentguard-cli/1.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings a command mode depends on. Modes are
// "evaluate", "packet" and "serve". All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "evaluate", "packet", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if strings.TrimSpace(c.Engine.BaseURL) == "" {
		errs = append(errs, "engine.base_url is required")
	}
	if c.Engine.TimeoutSecs < 0 {
		errs = append(errs, "engine.timeout_secs must be >= 0")
	}
	if c.Engine.RequestsPerSecond < 0 {
		errs = append(errs, "engine.requests_per_second must be >= 0")
	}
	if c.Engine.BreakerThreshold < 0 {
		errs = append(errs, "engine.breaker_threshold must be >= 0")
	}
	if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > 10 {
		errs = append(errs, "retry.max_attempts must be between 1 and 10")
	}

	if mode == "packet" || mode == "serve" {
		if c.Packet.MaxConcurrent < 1 || c.Packet.MaxConcurrent > 32 {
			errs = append(errs, "packet.max_concurrent must be between 1 and 32")
		}
	}
	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
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
