// Package api assembles the screening API: domain systems, routes and the
// module middleware chain mounted under the configured base path.
package api

import (
	"net/http"

	"github.com/JaimeStill/tayyib/internal/config"
	"github.com/JaimeStill/tayyib/internal/infrastructure"
	"github.com/JaimeStill/tayyib/pkg/middleware"
	"github.com/JaimeStill/tayyib/pkg/module"
)

// NewModule builds the domain and mounts its routes. Requests pass
// through panic recovery, then request logging, then CORS.
func NewModule(cfg *config.Config, infra *infrastructure.Infrastructure) (*module.Module, error) {
	runtime := NewRuntime(cfg, infra)
	domain, err := NewDomain(cfg, runtime)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	registerRoutes(mux, domain, cfg, runtime)

	logger := runtime.Logger
	m := module.New(cfg.API.BasePath, mux)
	m.Use(middleware.Recover(logger))
	m.Use(middleware.Logger(logger))
	m.Use(middleware.CORS(&cfg.API.CORS))

	return m, nil
}
