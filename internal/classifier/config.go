package classifier

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Supported providers.
const (
	ProviderOpenAI = "openai"
	ProviderHTTP   = "http"
)

// Config holds classifier connection parameters.
type Config struct {
	Provider     string `toml:"provider"`
	BaseURL      string `toml:"base_url"`
	APIKey       string `toml:"api_key"`
	Model        string `toml:"model"`
	Timeout      string `toml:"timeout"`
	Retries      *int   `toml:"retries"`
	RetryWait    string `toml:"retry_wait"`
	Concurrency  int    `toml:"concurrency"`
	Instructions string `toml:"instructions"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Provider     string
	BaseURL      string
	APIKey       string
	Model        string
	Timeout      string
	Retries      string
	Concurrency  string
	Instructions string
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	if env != nil {
		if err := c.loadEnv(env); err != nil {
			return err
		}
	}
	c.loadDefaults()
	return c.validate()
}

// FinalizeOver is Finalize with overlay merged after the environment, so
// explicit values such as command-line flags take precedence. Selecting a
// different provider in overlay without a base URL drops the endpoint and
// model chosen for the previous provider.
func (c *Config) FinalizeOver(env *Env, overlay *Config) error {
	if env != nil {
		if err := c.loadEnv(env); err != nil {
			return err
		}
	}
	if overlay.Provider != "" && overlay.Provider != c.Provider && overlay.BaseURL == "" {
		c.BaseURL = ""
		c.Model = ""
	}
	c.Merge(overlay)
	c.loadDefaults()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Provider != "" {
		c.Provider = overlay.Provider
	}
	if overlay.BaseURL != "" {
		c.BaseURL = overlay.BaseURL
	}
	if overlay.APIKey != "" {
		c.APIKey = overlay.APIKey
	}
	if overlay.Model != "" {
		c.Model = overlay.Model
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	if overlay.Retries != nil {
		c.Retries = overlay.Retries
	}
	if overlay.RetryWait != "" {
		c.RetryWait = overlay.RetryWait
	}
	if overlay.Concurrency > 0 {
		c.Concurrency = overlay.Concurrency
	}
	if overlay.Instructions != "" {
		c.Instructions = overlay.Instructions
	}
}

// TimeoutDuration parses Timeout. Call after Finalize.
func (c *Config) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// RetryWaitDuration parses RetryWait. Call after Finalize.
func (c *Config) RetryWaitDuration() time.Duration {
	d, _ := time.ParseDuration(c.RetryWait)
	return d
}

// RetryCount returns the configured retry count.
func (c *Config) RetryCount() int {
	if c.Retries == nil {
		return 0
	}
	return *c.Retries
}

// loadDefaults runs after env overrides so the OpenAI endpoint default
// follows an env-selected provider.
func (c *Config) loadDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Provider == ProviderOpenAI {
		if c.BaseURL == "" {
			c.BaseURL = "https://api.openai.com/v1"
		}
		if c.Model == "" {
			c.Model = "gpt-4o"
		}
	}
	if c.Timeout == "" {
		c.Timeout = "2m"
	}
	if c.Retries == nil {
		retries := 2
		c.Retries = &retries
	}
	if c.RetryWait == "" {
		c.RetryWait = "500ms"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
}

func (c *Config) loadEnv(env *Env) error {
	if env.Provider != "" {
		if v := os.Getenv(env.Provider); v != "" {
			c.Provider = v
		}
	}
	if env.BaseURL != "" {
		if v := os.Getenv(env.BaseURL); v != "" {
			c.BaseURL = v
		}
	}
	if env.APIKey != "" {
		if v := os.Getenv(env.APIKey); v != "" {
			c.APIKey = v
		}
	}
	if env.Model != "" {
		if v := os.Getenv(env.Model); v != "" {
			c.Model = v
		}
	}
	if env.Timeout != "" {
		if v := os.Getenv(env.Timeout); v != "" {
			c.Timeout = v
		}
	}
	if env.Retries != "" {
		if v := os.Getenv(env.Retries); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", env.Retries, err)
			}
			c.Retries = &n
		}
	}
	if env.Concurrency != "" {
		if v := os.Getenv(env.Concurrency); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", env.Concurrency, err)
			}
			c.Concurrency = n
		}
	}
	if env.Instructions != "" {
		if v := os.Getenv(env.Instructions); v != "" {
			c.Instructions = v
		}
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderHTTP:
	default:
		return fmt.Errorf("invalid provider %q: must be %s or %s", c.Provider, ProviderOpenAI, ProviderHTTP)
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base_url required")
	}
	if c.Provider == ProviderOpenAI && c.Model == "" {
		return fmt.Errorf("model required")
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.RetryWait); err != nil {
		return fmt.Errorf("invalid retry_wait: %w", err)
	}
	if *c.Retries < 0 {
		return fmt.Errorf("retries must not be negative")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	return nil
}
