package session

import (
	"fmt"
	"os"
	"time"
)

// Backend kinds.
const (
	BackendMemory = "memory"
	BackendBlob   = "blob"
)

// Config holds session cache parameters.
type Config struct {
	TTL           string `toml:"ttl"`
	SweepInterval string `toml:"sweep_interval"`
	Backend       string `toml:"backend"`
	CookieName    string `toml:"cookie_name"`
	Secret        string `toml:"secret"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	TTL           string
	SweepInterval string
	Backend       string
	CookieName    string
	Secret        string
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.TTL != "" {
		c.TTL = overlay.TTL
	}
	if overlay.SweepInterval != "" {
		c.SweepInterval = overlay.SweepInterval
	}
	if overlay.Backend != "" {
		c.Backend = overlay.Backend
	}
	if overlay.CookieName != "" {
		c.CookieName = overlay.CookieName
	}
	if overlay.Secret != "" {
		c.Secret = overlay.Secret
	}
}

// TTLDuration parses TTL. Call after Finalize.
func (c *Config) TTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.TTL)
	return d
}

// SweepIntervalDuration parses SweepInterval. Zero disables the sweep.
func (c *Config) SweepIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.SweepInterval)
	return d
}

func (c *Config) loadDefaults() {
	if c.TTL == "" {
		c.TTL = DefaultTTL.String()
	}
	if c.SweepInterval == "" {
		c.SweepInterval = "15m"
	}
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.CookieName == "" {
		c.CookieName = "tayyib_session"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.TTL != "" {
		if v := os.Getenv(env.TTL); v != "" {
			c.TTL = v
		}
	}
	if env.SweepInterval != "" {
		if v := os.Getenv(env.SweepInterval); v != "" {
			c.SweepInterval = v
		}
	}
	if env.Backend != "" {
		if v := os.Getenv(env.Backend); v != "" {
			c.Backend = v
		}
	}
	if env.CookieName != "" {
		if v := os.Getenv(env.CookieName); v != "" {
			c.CookieName = v
		}
	}
	if env.Secret != "" {
		if v := os.Getenv(env.Secret); v != "" {
			c.Secret = v
		}
	}
}

func (c *Config) validate() error {
	d, err := time.ParseDuration(c.TTL)
	if err != nil {
		return fmt.Errorf("invalid ttl: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("ttl must be positive")
	}
	if d, err := time.ParseDuration(c.SweepInterval); err != nil || d < 0 {
		return fmt.Errorf("invalid sweep_interval %q", c.SweepInterval)
	}
	if c.Backend != BackendMemory && c.Backend != BackendBlob {
		return fmt.Errorf("invalid backend %q: must be %s or %s", c.Backend, BackendMemory, BackendBlob)
	}
	if c.Secret != "" && len(c.Secret) < 32 {
		return fmt.Errorf("secret must be at least 32 bytes")
	}
	return nil
}
