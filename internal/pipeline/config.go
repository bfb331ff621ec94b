package pipeline

import (
	"fmt"
	"os"
	"strconv"
)

// Store kinds.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds pipeline handoff parameters.
type Config struct {
	RequireClient *bool  `toml:"require_client"`
	Store         string `toml:"store"`
	AutoMigrate   *bool  `toml:"auto_migrate"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	RequireClient string
	Store         string
	AutoMigrate   string
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		if err := c.loadEnv(env); err != nil {
			return err
		}
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.RequireClient != nil {
		c.RequireClient = overlay.RequireClient
	}
	if overlay.Store != "" {
		c.Store = overlay.Store
	}
	if overlay.AutoMigrate != nil {
		c.AutoMigrate = overlay.AutoMigrate
	}
}

// Policy returns the submission policy described by the config.
func (c *Config) Policy() Policy {
	return Policy{RequireClient: c.RequireClient != nil && *c.RequireClient}
}

// Migrates reports whether the server applies the pipeline schema on startup.
func (c *Config) Migrates() bool {
	return c.Store == StorePostgres && c.AutoMigrate != nil && *c.AutoMigrate
}

func (c *Config) loadDefaults() {
	if c.RequireClient == nil {
		require := false
		c.RequireClient = &require
	}
	if c.Store == "" {
		c.Store = StorePostgres
	}
}

func (c *Config) loadEnv(env *Env) error {
	if err := envBool(&c.RequireClient, env.RequireClient); err != nil {
		return err
	}
	if err := envBool(&c.AutoMigrate, env.AutoMigrate); err != nil {
		return err
	}
	if env.Store != "" {
		if v := os.Getenv(env.Store); v != "" {
			c.Store = v
		}
	}
	return nil
}

func envBool(dst **bool, name string) error {
	if name == "" {
		return nil
	}
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = &b
	return nil
}

func (c *Config) validate() error {
	if c.Store != StorePostgres && c.Store != StoreMemory {
		return fmt.Errorf("invalid store %q: must be %s or %s", c.Store, StorePostgres, StoreMemory)
	}
	return nil
}
