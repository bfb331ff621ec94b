package evidence

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/JaimeStill/tayyib/pkg/formatting"
)

// DefaultAllowedTypes are the evidence MIME types accepted when none are configured.
var DefaultAllowedTypes = []string{
	"application/pdf",
	"image/jpeg",
	"image/png",
}

// Config holds evidence ledger parameters.
type Config struct {
	MaxFileSize  string   `toml:"max_file_size"`
	AllowedTypes []string `toml:"allowed_types"`
	PreviewDir   string   `toml:"preview_dir"`
	Archive      *bool    `toml:"archive"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	MaxFileSize  string
	AllowedTypes string
	PreviewDir   string
	Archive      string
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
	if overlay.MaxFileSize != "" {
		c.MaxFileSize = overlay.MaxFileSize
	}
	if len(overlay.AllowedTypes) > 0 {
		c.AllowedTypes = overlay.AllowedTypes
	}
	if overlay.PreviewDir != "" {
		c.PreviewDir = overlay.PreviewDir
	}
	if overlay.Archive != nil {
		c.Archive = overlay.Archive
	}
}

// MaxFileSizeBytes parses MaxFileSize into bytes.
// Call after Finalize; validation guarantees the value parses.
func (c *Config) MaxFileSizeBytes() int64 {
	n, _ := formatting.ParseBytes(c.MaxFileSize)
	return n
}

// ArchiveEnabled reports whether evidence bytes are copied to blob storage.
func (c *Config) ArchiveEnabled() bool {
	return c.Archive != nil && *c.Archive
}

func (c *Config) loadDefaults() {
	if c.MaxFileSize == "" {
		c.MaxFileSize = "10MB"
	}
	if len(c.AllowedTypes) == 0 {
		c.AllowedTypes = append([]string(nil), DefaultAllowedTypes...)
	}
	if c.Archive == nil {
		archive := false
		c.Archive = &archive
	}
}

func (c *Config) loadEnv(env *Env) error {
	if env.MaxFileSize != "" {
		if v := os.Getenv(env.MaxFileSize); v != "" {
			c.MaxFileSize = v
		}
	}
	if env.AllowedTypes != "" {
		if v := os.Getenv(env.AllowedTypes); v != "" {
			var types []string
			for t := range strings.SplitSeq(v, ",") {
				if t = strings.TrimSpace(t); t != "" {
					types = append(types, t)
				}
			}
			c.AllowedTypes = types
		}
	}
	if env.PreviewDir != "" {
		if v := os.Getenv(env.PreviewDir); v != "" {
			c.PreviewDir = v
		}
	}
	if env.Archive != "" {
		if v := os.Getenv(env.Archive); v != "" {
			archive, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", env.Archive, err)
			}
			c.Archive = &archive
		}
	}
	return nil
}

func (c *Config) validate() error {
	n, err := formatting.ParseBytes(c.MaxFileSize)
	if err != nil {
		return fmt.Errorf("invalid max_file_size: %w", err)
	}
	if n <= 0 {
		return fmt.Errorf("max_file_size must be positive")
	}
	if len(c.AllowedTypes) == 0 {
		return fmt.Errorf("allowed_types required")
	}
	return nil
}
