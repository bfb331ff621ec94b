package storage

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
)

// Azure container names: 3-63 lowercase letters, digits and single hyphens.
var containerName = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)

// Config selects the blob account and container. A ConnectionString
// wins over ServiceURL, which authenticates with DefaultAzureCredential.
type Config struct {
	ContainerName    string `toml:"container_name"`
	ConnectionString string `toml:"connection_string"`
	ServiceURL       string `toml:"service_url"`
}

// Env names the variables that override each field.
type Env struct {
	ContainerName    string
	ConnectionString string
	ServiceURL       string
}

func (c *Config) Finalize(env *Env) error {
	if c.ContainerName == "" {
		c.ContainerName = "tayyib"
	}
	if env != nil {
		override(&c.ContainerName, env.ContainerName)
		override(&c.ConnectionString, env.ConnectionString)
		override(&c.ServiceURL, env.ServiceURL)
	}
	return c.validate()
}

func (c *Config) Merge(overlay *Config) {
	for dst, src := range map[*string]string{
		&c.ContainerName:    overlay.ContainerName,
		&c.ConnectionString: overlay.ConnectionString,
		&c.ServiceURL:       overlay.ServiceURL,
	} {
		if src != "" {
			*dst = src
		}
	}
}

func (c *Config) validate() error {
	if !containerName.MatchString(c.ContainerName) || strings.Contains(c.ContainerName, "--") {
		return fmt.Errorf("invalid container_name: %q", c.ContainerName)
	}
	if c.ConnectionString == "" && c.ServiceURL == "" {
		return fmt.Errorf("connection_string or service_url required")
	}
	if c.ConnectionString == "" {
		if u, err := url.Parse(c.ServiceURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid service_url: %q", c.ServiceURL)
		}
	}
	return nil
}

func override(dst *string, name string) {
	if name == "" {
		return
	}
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}
