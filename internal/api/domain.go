package api

import (
	"context"
	"fmt"

	"github.com/JaimeStill/tayyib/internal/classifier"
	"github.com/JaimeStill/tayyib/internal/config"
	"github.com/JaimeStill/tayyib/internal/evidence"
	"github.com/JaimeStill/tayyib/internal/pipeline"
	"github.com/JaimeStill/tayyib/internal/rollup"
	"github.com/JaimeStill/tayyib/internal/screening"
	"github.com/JaimeStill/tayyib/internal/session"
	"github.com/JaimeStill/tayyib/pkg/database"
	"github.com/JaimeStill/tayyib/pkg/storage"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Screening screening.System
	Pipeline  pipeline.Store
	Ledger    *evidence.Ledger
	Identity  *session.Identity
}

// NewDomain creates all domain systems from the API runtime and registers
// their lifecycle hooks.
func NewDomain(cfg *config.Config, runtime *Runtime) (*Domain, error) {
	cls, err := classifier.New(&cfg.Classifier, runtime.Logger, runtime.Metrics)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}

	previews, err := evidence.NewPreviews(cfg.Evidence.PreviewDir, runtime.Logger, runtime.Metrics)
	if err != nil {
		return nil, fmt.Errorf("previews: %w", err)
	}
	previews.Start(runtime.Lifecycle)

	var archive storage.System
	if cfg.Evidence.ArchiveEnabled() {
		archive = runtime.Storage
	}
	ledger := evidence.New(&cfg.Evidence, rollup.Default, previews, archive, runtime.Logger, runtime.Metrics)

	backend := session.NewMemoryBackend()
	if cfg.Session.Backend == session.BackendBlob {
		backend = session.NewBlobBackend(runtime.Storage)
	}
	sessions := session.NewStore(backend, cfg.Session.TTLDuration(), runtime.Logger, runtime.Metrics)
	sessions.Start(runtime.Lifecycle, cfg.Session.SweepIntervalDuration())

	identity, err := session.NewIdentity(&cfg.Session, runtime.Logger)
	if err != nil {
		return nil, fmt.Errorf("session identity: %w", err)
	}

	store := pipeline.NewMemoryStore(runtime.Pagination)
	if cfg.Pipeline.Store == pipeline.StorePostgres {
		store = pipeline.NewStore(runtime.Database.Connection(), runtime.Logger, runtime.Pagination)
	}
	if cfg.Pipeline.Migrates() {
		migrateOnStartup(runtime, cfg.Database.URL())
	}
	handoff := pipeline.NewHandoff(store, cfg.Pipeline.Policy(), runtime.Logger, runtime.Metrics)

	sys := screening.New(screening.Deps{
		Classifier:  cls,
		Ledger:      ledger,
		Sessions:    sessions,
		Handoff:     handoff,
		Engine:      rollup.Default,
		Metrics:     runtime.Metrics,
		Concurrency: cfg.Classifier.Concurrency,
	}, runtime.Logger)

	return &Domain{
		Screening: sys,
		Pipeline:  store,
		Ledger:    ledger,
		Identity:  identity,
	}, nil
}

func migrateOnStartup(runtime *Runtime, url string) {
	logger := runtime.Logger.With("system", "migrations")
	runtime.Lifecycle.OnStartup("migrations", func(context.Context) error {
		version, err := database.Migrate(url, pipeline.Migrations, pipeline.MigrationsDir)
		if err != nil {
			return err
		}
		logger.Info("pipeline schema current", "version", version)
		return nil
	})
}
