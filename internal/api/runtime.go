package api

import (
	"github.com/JaimeStill/tayyib/internal/config"
	"github.com/JaimeStill/tayyib/internal/infrastructure"
	"github.com/JaimeStill/tayyib/pkg/pagination"
)

// Runtime is the infrastructure as the API module sees it: the same
// systems, a logger tagged module=api, and the API's paging limits.
type Runtime struct {
	*infrastructure.Infrastructure
	Pagination pagination.Config
}

func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	scoped := *infra
	scoped.Logger = infra.Logger.With("module", "api")

	return &Runtime{
		Infrastructure: &scoped,
		Pagination:     cfg.API.Pagination,
	}
}
