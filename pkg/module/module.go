// Package module mounts prefixed sub-routers, each with its own
// middleware chain, beside a set of root-level handlers.
package module

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/JaimeStill/tayyib/pkg/middleware"
)

// Module serves an inner router under a single-segment prefix such as
// "/api". The inner router sees paths with the prefix removed.
type Module struct {
	prefix string
	router http.Handler
	chain  middleware.Chain
}

// New panics when prefix is not a single segment with a leading slash.
func New(prefix string, router http.Handler) *Module {
	if err := validatePrefix(prefix); err != nil {
		panic(err)
	}
	return &Module{prefix: prefix, router: router}
}

func (m *Module) Prefix() string {
	return m.prefix
}

// Use appends mw to the module chain. Layers run in the order added.
func (m *Module) Use(mw middleware.Func) {
	m.chain.Use(mw)
}

// Handler returns the inner router behind the module chain.
func (m *Module) Handler() http.Handler {
	return m.chain.Then(m.router)
}

// Serve dispatches a shallow copy of req whose path is relative to the
// module prefix. The caller's request is left as it was.
func (m *Module) Serve(w http.ResponseWriter, req *http.Request) {
	m.Handler().ServeHTTP(w, m.rebase(req))
}

func (m *Module) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	m.Serve(w, req)
}

func (m *Module) rebase(req *http.Request) *http.Request {
	rel := strings.TrimPrefix(req.URL.Path, m.prefix)
	if len(rel) > 1 {
		rel = strings.TrimSuffix(rel, "/")
	}
	if rel == "" {
		rel = "/"
	}

	u := *req.URL
	u.Path = rel
	u.RawPath = ""

	out := req.Clone(req.Context())
	out.URL = &u
	return out
}

func validatePrefix(prefix string) error {
	switch {
	case prefix == "":
		return fmt.Errorf("module prefix cannot be empty")
	case prefix[0] != '/':
		return fmt.Errorf("module prefix must start with /: %s", prefix)
	case strings.Contains(prefix[1:], "/") || len(prefix) == 1:
		return fmt.Errorf("module prefix must be a single path segment: %s", prefix)
	}
	return nil
}
