package config

import (
	"fmt"
	"os"
	"time"

	"github.com/JaimeStill/tayyib/internal/classifier"
	"github.com/JaimeStill/tayyib/internal/evidence"
	"github.com/JaimeStill/tayyib/internal/pipeline"
	"github.com/JaimeStill/tayyib/internal/session"
	"github.com/JaimeStill/tayyib/pkg/database"
	"github.com/JaimeStill/tayyib/pkg/storage"
	"github.com/pelletier/go-toml/v2"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvTayyibEnv             = "TAYYIB_ENV"
	EnvTayyibShutdownTimeout = "TAYYIB_SHUTDOWN_TIMEOUT"
	EnvTayyibVersion         = "TAYYIB_VERSION"
)

// DatabaseEnv names the Postgres environment overrides.
var DatabaseEnv = &database.Env{
	Host:            "TAYYIB_DB_HOST",
	Port:            "TAYYIB_DB_PORT",
	Name:            "TAYYIB_DB_NAME",
	User:            "TAYYIB_DB_USER",
	Password:        "TAYYIB_DB_PASSWORD",
	SSLMode:         "TAYYIB_DB_SSL_MODE",
	MaxOpenConns:    "TAYYIB_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "TAYYIB_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "TAYYIB_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "TAYYIB_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	ContainerName:    "TAYYIB_STORAGE_CONTAINER_NAME",
	ConnectionString: "TAYYIB_STORAGE_CONNECTION_STRING",
	ServiceURL:       "TAYYIB_STORAGE_SERVICE_URL",
}

// ClassifierEnv names the classifier environment overrides.
var ClassifierEnv = &classifier.Env{
	Provider:     "TAYYIB_CLASSIFIER_PROVIDER",
	BaseURL:      "TAYYIB_CLASSIFIER_BASE_URL",
	APIKey:       "TAYYIB_CLASSIFIER_API_KEY",
	Model:        "TAYYIB_CLASSIFIER_MODEL",
	Timeout:      "TAYYIB_CLASSIFIER_TIMEOUT",
	Retries:      "TAYYIB_CLASSIFIER_RETRIES",
	Concurrency:  "TAYYIB_CLASSIFIER_CONCURRENCY",
	Instructions: "TAYYIB_CLASSIFIER_INSTRUCTIONS",
}

var evidenceEnv = &evidence.Env{
	MaxFileSize:  "TAYYIB_EVIDENCE_MAX_FILE_SIZE",
	AllowedTypes: "TAYYIB_EVIDENCE_ALLOWED_TYPES",
	PreviewDir:   "TAYYIB_EVIDENCE_PREVIEW_DIR",
	Archive:      "TAYYIB_EVIDENCE_ARCHIVE",
}

var sessionEnv = &session.Env{
	TTL:           "TAYYIB_SESSION_TTL",
	SweepInterval: "TAYYIB_SESSION_SWEEP_INTERVAL",
	Backend:       "TAYYIB_SESSION_BACKEND",
	CookieName:    "TAYYIB_SESSION_COOKIE_NAME",
	Secret:        "TAYYIB_SESSION_SECRET",
}

var pipelineEnv = &pipeline.Env{
	RequireClient: "TAYYIB_PIPELINE_REQUIRE_CLIENT",
	Store:         "TAYYIB_PIPELINE_STORE",
	AutoMigrate:   "TAYYIB_PIPELINE_AUTO_MIGRATE",
}

// Config is the root configuration for the tayyib service.
type Config struct {
	Server          ServerConfig      `toml:"server"`
	Database        database.Config   `toml:"database"`
	Storage         storage.Config    `toml:"storage"`
	API             APIConfig         `toml:"api"`
	Classifier      classifier.Config `toml:"classifier"`
	Evidence        evidence.Config   `toml:"evidence"`
	Session         session.Config    `toml:"session"`
	Pipeline        pipeline.Config   `toml:"pipeline"`
	ShutdownTimeout string            `toml:"shutdown_timeout"`
	Version         string            `toml:"version"`
}

// Env returns the TAYYIB_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvTayyibEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// NeedsDatabase reports whether any configured component uses Postgres.
func (c *Config) NeedsDatabase() bool {
	return c.Pipeline.Store == pipeline.StorePostgres
}

// NeedsStorage reports whether any configured component uses blob storage.
func (c *Config) NeedsStorage() bool {
	return c.Session.Backend == session.BackendBlob || c.Evidence.ArchiveEnabled()
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.API.Merge(&overlay.API)
	c.Classifier.Merge(&overlay.Classifier)
	c.Evidence.Merge(&overlay.Evidence)
	c.Session.Merge(&overlay.Session)
	c.Pipeline.Merge(&overlay.Pipeline)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := c.Classifier.Finalize(ClassifierEnv); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	if err := c.Evidence.Finalize(evidenceEnv); err != nil {
		return fmt.Errorf("evidence: %w", err)
	}
	if err := c.Session.Finalize(sessionEnv); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := c.Pipeline.Finalize(pipelineEnv); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	// database and storage are validated only when a component uses them
	if c.NeedsDatabase() {
		if err := c.Database.Finalize(DatabaseEnv); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if c.NeedsStorage() {
		if err := c.Storage.Finalize(storageEnv); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvTayyibShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvTayyibVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvTayyibEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
