// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultTargets are the model pages loaded when no targets are supplied.
var DefaultTargets = []string{
	"https://huggingface.co/deepseek-ai/deepseek-llm-7b-base",
	"https://huggingface.co/meta-llama/Llama-2-7b",
	"https://huggingface.co/meta-llama/Llama-3.1-8B-Instruct",
	"https://huggingface.co/meta-llama/Llama-3.1-70B-Instruct",
	"https://huggingface.co/meta-llama/Llama-3.1-405B-Instruct",
	"https://huggingface.co/meta-llama/Llama-3.1-8B-Vision",
	"https://huggingface.co/meta-llama/Llama-3.1-70B-Vision",
	"https://huggingface.co/HKUSTAudio/Llasa-3B",
	"https://huggingface.co/hexgrad/Kokoro-82M",
	"https://huggingface.co/google/gemma-2-9b-it-v1.5",
}

// EnvFiles are loaded into the process environment, in order, before Viper
// reads it. Variables already set are never overwritten.
var EnvFiles = []string{".env", ".env.local"}

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Audio    AudioConfig    `mapstructure:"audio"`
	Auth     AuthConfig     `mapstructure:"auth"`
	CORS     CORSConfig     `mapstructure:"cors"`
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Hub      HubConfig      `mapstructure:"hub"`
	Loader   LoaderConfig   `mapstructure:"loader"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the catalog API HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AudioConfig controls the audio file server.
type AudioConfig struct {
	Port        int    `mapstructure:"port"`
	Path        string `mapstructure:"path"`
	ChunkSize   int    `mapstructure:"chunk_size"`
	ContentType string `mapstructure:"content_type"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CORSConfig configures cross-origin access to the catalog API.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAgeSeconds    int      `mapstructure:"max_age_seconds"`
}

// APIConfig bounds catalog queries.
type APIConfig struct {
	DefaultLimit        int `mapstructure:"default_limit"`
	MaxLimit            int `mapstructure:"max_limit"`
	MaxBatchIDs         int `mapstructure:"max_batch_ids"`
	QueryTimeoutSeconds int `mapstructure:"query_timeout_seconds"`
}

// DatabaseConfig controls access to the relational catalog store.
type DatabaseConfig struct {
	Backend         string        `mapstructure:"backend"`
	DSN             string        `mapstructure:"dsn"`
	ModelsTable     string        `mapstructure:"models_table"`
	HardwareTable   string        `mapstructure:"hardware_table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// HubConfig configures the model-hub client.
type HubConfig struct {
	APIBaseURL        string  `mapstructure:"api_base_url"`
	RawBaseURL        string  `mapstructure:"raw_base_url"`
	Token             string  `mapstructure:"token"`
	UserAgent         string  `mapstructure:"user_agent"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	MaxAttempts       int     `mapstructure:"max_attempts"`
}

// LoaderConfig configures the batch loader.
type LoaderConfig struct {
	Output         string   `mapstructure:"output"`
	Targets        []string `mapstructure:"targets"`
	ReadmeMaxChars int      `mapstructure:"readme_max_chars"`
}

// StorageConfig selects where loader reports are archived.
type StorageConfig struct {
	Backend     string      `mapstructure:"backend"`
	Bucket      string      `mapstructure:"bucket"`
	Prefix      string      `mapstructure:"prefix"`
	ContentType string      `mapstructure:"content_type"`
	ChunkSize   int         `mapstructure:"chunk_size"`
	Local       LocalConfig `mapstructure:"local"`
}

// LocalConfig configures the local filesystem blob store.
type LocalConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// PubSubConfig holds metadata for upsert notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from .env files, an optional config file and the environment.
func Load(path string) (Config, error) {
	if err := loadEnvFiles(EnvFiles); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindCompatEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadEnvFiles(files []string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// bindCompatEnv maps the environment names used by existing deployments.
func bindCompatEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"database.dsn": {"CATALOG_DATABASE_DSN", "SUPABASE_DB_URL", "DATABASE_URL"},
		"hub.token":    {"CATALOG_HUB_TOKEN", "HUGGINGFACE_TOKEN"},
		"server.port":  {"CATALOG_SERVER_PORT", "PORT"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("audio.port", 8001)
	v.SetDefault("audio.chunk_size", 64*1024)
	v.SetDefault("audio.content_type", "audio/mpeg")
	v.SetDefault("audio.path", "")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"})
	v.SetDefault("cors.allowed_headers", []string{"*"})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age_seconds", 300)
	v.SetDefault("api.default_limit", 10)
	v.SetDefault("api.max_limit", 1000)
	v.SetDefault("api.max_batch_ids", 500)
	v.SetDefault("api.query_timeout_seconds", 5)
	v.SetDefault("database.backend", "postgres")
	v.SetDefault("database.models_table", "models")
	v.SetDefault("database.hardware_table", "hardware")
	v.SetDefault("hub.api_base_url", "https://huggingface.co/api")
	v.SetDefault("hub.raw_base_url", "https://huggingface.co")
	v.SetDefault("hub.user_agent", "model-catalog-loader/0.1")
	v.SetDefault("hub.timeout_seconds", 30)
	v.SetDefault("hub.requests_per_second", 2.0)
	v.SetDefault("hub.burst", 1)
	v.SetDefault("hub.max_attempts", 3)
	v.SetDefault("loader.output", "huggingface_models.csv")
	v.SetDefault("loader.targets", DefaultTargets)
	v.SetDefault("loader.readme_max_chars", 1000)
	v.SetDefault("storage.backend", "none")
	v.SetDefault("storage.prefix", "reports")
	v.SetDefault("storage.content_type", "text/csv; charset=utf-8")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.chunk_size", 0)
	v.SetDefault("storage.local.base_dir", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits shared by every command.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Audio.Port <= 0 {
		return fmt.Errorf("audio.port must be > 0")
	}
	if c.Audio.ChunkSize <= 0 {
		return fmt.Errorf("audio.chunk_size must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.API.DefaultLimit <= 0 || c.API.MaxLimit < c.API.DefaultLimit {
		return fmt.Errorf("api.default_limit must be > 0 and <= api.max_limit")
	}
	if c.API.MaxBatchIDs <= 0 {
		return fmt.Errorf("api.max_batch_ids must be > 0")
	}
	if c.API.QueryTimeoutSeconds <= 0 {
		return fmt.Errorf("api.query_timeout_seconds must be > 0")
	}
	switch c.Database.Backend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown database.backend %q", c.Database.Backend)
	}
	switch c.Storage.Backend {
	case "none", "memory":
	case "local":
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Hub.MaxAttempts <= 0 {
		return fmt.Errorf("hub.max_attempts must be > 0")
	}
	if c.Hub.TimeoutSeconds <= 0 {
		return fmt.Errorf("hub.timeout_seconds must be > 0")
	}
	if c.Loader.ReadmeMaxChars < 0 {
		return fmt.Errorf("loader.readme_max_chars must be >= 0")
	}
	return nil
}

// ValidateServe checks the settings the catalog API needs.
func (c Config) ValidateServe() error {
	if c.Database.Backend == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required (set CATALOG_DATABASE_DSN or SUPABASE_DB_URL)")
	}
	return nil
}

// ValidateAudio checks the settings the audio server needs.
func (c Config) ValidateAudio() error {
	if strings.TrimSpace(c.Audio.Path) == "" {
		return fmt.Errorf("audio.path is required")
	}
	return nil
}

// ValidateLoad checks the settings the loader needs.
func (c Config) ValidateLoad() error {
	if c.Database.Backend == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required (set CATALOG_DATABASE_DSN or SUPABASE_DB_URL)")
	}
	if c.Loader.Output == "" {
		return fmt.Errorf("loader.output is required")
	}
	return nil
}

// QueryTimeout is the per-request budget for catalog store calls.
func (c Config) QueryTimeout() time.Duration {
	return time.Duration(c.API.QueryTimeoutSeconds) * time.Second
}

// HubTimeout is the per-request budget for model-hub calls.
func (c Config) HubTimeout() time.Duration {
	return time.Duration(c.Hub.TimeoutSeconds) * time.Second
}

// PublishEnabled reports whether upsert notifications should go to Pub/Sub.
func (c Config) PublishEnabled() bool {
	return c.PubSub.ProjectID != "" && c.PubSub.TopicName != ""
}
