package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/JaimeStill/tayyib/pkg/formatting"
	"github.com/JaimeStill/tayyib/pkg/middleware"
	"github.com/JaimeStill/tayyib/pkg/pagination"
)

const (
	EnvAPIBasePath      = "TAYYIB_API_BASE_PATH"
	EnvAPIMaxUploadSize = "TAYYIB_API_MAX_UPLOAD_SIZE"

	defaultMaxUploadSize = 50 << 20
)

var corsEnv = &middleware.CORSEnv{
	Enabled:          "TAYYIB_CORS_ENABLED",
	Origins:          "TAYYIB_CORS_ORIGINS",
	AllowedMethods:   "TAYYIB_CORS_ALLOWED_METHODS",
	AllowedHeaders:   "TAYYIB_CORS_ALLOWED_HEADERS",
	AllowCredentials: "TAYYIB_CORS_ALLOW_CREDENTIALS",
	MaxAge:           "TAYYIB_CORS_MAX_AGE",
}

var paginationEnv = &pagination.ConfigEnv{
	DefaultPageSize: "TAYYIB_PAGINATION_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "TAYYIB_PAGINATION_MAX_PAGE_SIZE",
}

// APIConfig covers the HTTP module: where it mounts, how large a
// multipart upload may be, CORS and listing page sizes.
type APIConfig struct {
	BasePath      string                `toml:"base_path"`
	MaxUploadSize string                `toml:"max_upload_size"`
	CORS          middleware.CORSConfig `toml:"cors"`
	Pagination    pagination.Config     `toml:"pagination"`
}

// MaxUploadSizeBytes is the multipart body limit. Finalize has already
// rejected unparsable sizes, so the fallback only covers unfinalized use.
func (c *APIConfig) MaxUploadSizeBytes() int64 {
	if n, err := formatting.ParseBytes(c.MaxUploadSize); err == nil && n > 0 {
		return n
	}
	return defaultMaxUploadSize
}

func (c *APIConfig) Finalize() error {
	if c.BasePath == "" {
		c.BasePath = "/api"
	}
	if c.MaxUploadSize == "" {
		c.MaxUploadSize = formatting.FormatBytes(defaultMaxUploadSize, 0)
	}
	if v := os.Getenv(EnvAPIBasePath); v != "" {
		c.BasePath = v
	}
	if v := os.Getenv(EnvAPIMaxUploadSize); v != "" {
		c.MaxUploadSize = v
	}

	if !strings.HasPrefix(c.BasePath, "/") || strings.Count(c.BasePath, "/") != 1 || len(c.BasePath) < 2 {
		return fmt.Errorf("base_path must be a single segment like /api: %q", c.BasePath)
	}
	if n, err := formatting.ParseBytes(c.MaxUploadSize); err != nil || n <= 0 {
		return fmt.Errorf("invalid max_upload_size: %q", c.MaxUploadSize)
	}

	if err := c.CORS.Finalize(corsEnv); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	if err := c.Pagination.Finalize(paginationEnv); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}
	return nil
}

func (c *APIConfig) Merge(overlay *APIConfig) {
	if overlay.BasePath != "" {
		c.BasePath = overlay.BasePath
	}
	if overlay.MaxUploadSize != "" {
		c.MaxUploadSize = overlay.MaxUploadSize
	}
	c.CORS.Merge(&overlay.CORS)
	c.Pagination.Merge(&overlay.Pagination)
}
