package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

const (
	EnvServerHost              = "TAYYIB_SERVER_HOST"
	EnvServerPort              = "TAYYIB_SERVER_PORT"
	EnvServerReadTimeout       = "TAYYIB_SERVER_READ_TIMEOUT"
	EnvServerReadHeaderTimeout = "TAYYIB_SERVER_READ_HEADER_TIMEOUT"
	EnvServerWriteTimeout      = "TAYYIB_SERVER_WRITE_TIMEOUT"
	EnvServerShutdownTimeout   = "TAYYIB_SERVER_SHUTDOWN_TIMEOUT"
)

// ServerConfig holds the HTTP listener settings. Timeouts are Go
// duration strings. The write timeout is long because a screening waits
// on the classifier.
type ServerConfig struct {
	Host              string `toml:"host"`
	Port              int    `toml:"port"`
	ReadTimeout       string `toml:"read_timeout"`
	ReadHeaderTimeout string `toml:"read_header_timeout"`
	WriteTimeout      string `toml:"write_timeout"`
	ShutdownTimeout   string `toml:"shutdown_timeout"`
}

func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *ServerConfig) ReadTimeoutDuration() time.Duration       { return duration(c.ReadTimeout) }
func (c *ServerConfig) ReadHeaderTimeoutDuration() time.Duration { return duration(c.ReadHeaderTimeout) }
func (c *ServerConfig) WriteTimeoutDuration() time.Duration      { return duration(c.WriteTimeout) }
func (c *ServerConfig) ShutdownTimeoutDuration() time.Duration   { return duration(c.ShutdownTimeout) }

// Finalize applies defaults, then TAYYIB_SERVER_* overrides, then validates.
func (c *ServerConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

func (c *ServerConfig) Merge(overlay *ServerConfig) {
	if overlay.Host != "" {
		c.Host = overlay.Host
	}
	if overlay.Port != 0 {
		c.Port = overlay.Port
	}
	for _, t := range c.timeouts() {
		if v := *t.from(overlay); v != "" {
			*t.field = v
		}
	}
}

// timeout ties a duration field to its key and env var so defaults,
// overrides, merge and validation walk one table.
type timeout struct {
	key   string
	env   string
	def   string
	field *string
	from  func(*ServerConfig) *string
}

func (c *ServerConfig) timeouts() []timeout {
	return []timeout{
		{"read_timeout", EnvServerReadTimeout, "1m", &c.ReadTimeout,
			func(o *ServerConfig) *string { return &o.ReadTimeout }},
		{"read_header_timeout", EnvServerReadHeaderTimeout, "10s", &c.ReadHeaderTimeout,
			func(o *ServerConfig) *string { return &o.ReadHeaderTimeout }},
		{"write_timeout", EnvServerWriteTimeout, "15m", &c.WriteTimeout,
			func(o *ServerConfig) *string { return &o.WriteTimeout }},
		{"shutdown_timeout", EnvServerShutdownTimeout, "30s", &c.ShutdownTimeout,
			func(o *ServerConfig) *string { return &o.ShutdownTimeout }},
	}
}

func (c *ServerConfig) loadDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	for _, t := range c.timeouts() {
		if *t.field == "" {
			*t.field = t.def
		}
	}
}

func (c *ServerConfig) loadEnv() {
	if v := os.Getenv(EnvServerHost); v != "" {
		c.Host = v
	}
	if v := os.Getenv(EnvServerPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	for _, t := range c.timeouts() {
		if v := os.Getenv(t.env); v != "" {
			*t.field = v
		}
	}
}

func (c *ServerConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	for _, t := range c.timeouts() {
		d, err := time.ParseDuration(*t.field)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", t.key, err)
		}
		if d < 0 {
			return fmt.Errorf("invalid %s: negative", t.key)
		}
	}
	return nil
}

func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
