package main

import (
	"net/http"

	"github.com/JaimeStill/tayyib/internal/infrastructure"
	"github.com/JaimeStill/tayyib/internal/metrics"
	"github.com/JaimeStill/tayyib/pkg/handlers"
	"github.com/JaimeStill/tayyib/pkg/module"
)

type healthStatus struct {
	Status string `json:"status"`
}

// newRouter serves the operational endpoints that sit outside the API
// module: liveness, readiness and the prometheus scrape target.
func newRouter(infra *infrastructure.Infrastructure) *module.Router {
	router := module.NewRouter()

	router.HandleNative("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		handlers.RespondJSON(w, http.StatusOK, healthStatus{Status: "ok"})
	})

	router.HandleNative("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !infra.Lifecycle.Ready() {
			handlers.RespondJSON(w, http.StatusServiceUnavailable, healthStatus{Status: "starting"})
			return
		}
		handlers.RespondJSON(w, http.StatusOK, healthStatus{Status: "ready"})
	})

	router.HandleNative("GET /metrics", metrics.Handler(infra.Registry).ServeHTTP)

	return router
}
