package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Server   ServerConfig
	Database DatabaseConfig
	Pipeline PipelineConfig
	Staging  StagingConfig
}

type AppConfig struct {
	Environment string
}

type LoggerConfig struct {
	Level  string
	Format string
}

type ServerConfig struct {
	Port           string
	AllowedOrigins []string
	MaxUploadBytes int64
}

type DatabaseConfig struct {
	DSN         string
	AutoMigrate bool
}

// PipelineConfig controls the parse/map pass.
type PipelineConfig struct {
	// YieldEvery is the number of rows mapped between cooperative pauses.
	YieldEvery int
	YieldPause time.Duration
	// StatementSource identifies the statement type stamped on every mapped record.
	StatementSource string
}

type StagingConfig struct {
	SessionTTL time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", "http://localhost:3000")
	v.SetDefault("server.max_upload_bytes", 32<<20)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("pipeline.yield_every", 500)
	v.SetDefault("pipeline.yield_pause", time.Millisecond)
	v.SetDefault("pipeline.statement_source", "BMI")
	v.SetDefault("staging.session_ttl", 12*time.Hour)
}

// Load reads .env (if present) and the environment. DATABASE_DSN, SERVER_PORT,
// PIPELINE_YIELD_EVERY etc. override the defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, relying on system env")
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App:    AppConfig{Environment: v.GetString("app.environment")},
		Logger: LoggerConfig{Level: v.GetString("logger.level"), Format: v.GetString("logger.format")},
		Server: ServerConfig{
			Port:           v.GetString("server.port"),
			AllowedOrigins: splitList(v.GetString("server.allowed_origins")),
			MaxUploadBytes: v.GetInt64("server.max_upload_bytes"),
		},
		Database: DatabaseConfig{
			DSN:         v.GetString("database.dsn"),
			AutoMigrate: v.GetBool("database.auto_migrate"),
		},
		Pipeline: PipelineConfig{
			YieldEvery:      v.GetInt("pipeline.yield_every"),
			YieldPause:      v.GetDuration("pipeline.yield_pause"),
			StatementSource: v.GetString("pipeline.statement_source"),
		},
		Staging: StagingConfig{SessionTTL: v.GetDuration("staging.session_ttl")},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Pipeline.YieldEvery <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.yield_every must be positive, got %d", c.Pipeline.YieldEvery))
	}
	if c.Pipeline.YieldPause < 0 {
		errs = append(errs, fmt.Errorf("pipeline.yield_pause must not be negative"))
	}
	if strings.TrimSpace(c.Pipeline.StatementSource) == "" {
		errs = append(errs, errors.New("pipeline.statement_source is required"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.max_upload_bytes must be positive"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
