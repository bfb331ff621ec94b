package api

import (
	"net/http"

	"github.com/JaimeStill/tayyib/internal/config"
	"github.com/JaimeStill/tayyib/internal/pipeline"
	"github.com/JaimeStill/tayyib/internal/screening"
	"github.com/JaimeStill/tayyib/pkg/routes"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	cfg *config.Config,
	runtime *Runtime,
) {
	groups := []routes.Group{
		screening.NewHandler(
			domain.Screening,
			domain.Identity,
			domain.Ledger,
			runtime.Logger,
			cfg.API.MaxUploadSizeBytes(),
		).Routes(),
		pipeline.NewHandler(domain.Pipeline, runtime.Logger, runtime.Pagination).Routes(),
	}

	if cfg.Evidence.ArchiveEnabled() && runtime.Storage != nil {
		groups = append(groups, newArchiveHandler(runtime.Storage, runtime.Logger).routes())
	}

	routes.Register(mux, groups...)
}
