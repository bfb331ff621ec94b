package module

import "net/http"

// Router is the root handler. Modules claim their prefix and its
// subtree; anything else goes to the handlers registered with
// HandleNative and otherwise answers 404.
type Router struct {
	mux *http.ServeMux
}

func NewRouter() *Router {
	return &Router{mux: http.NewServeMux()}
}

// HandleNative registers a root-level route using ServeMux pattern syntax.
func (r *Router) HandleNative(pattern string, handler http.HandlerFunc) {
	r.mux.HandleFunc(pattern, handler)
}

// Mount routes the module's prefix, with or without a trailing slash,
// and every path beneath it to m.
func (r *Router) Mount(m *Module) {
	r.mux.Handle(m.prefix, m)
	r.mux.Handle(m.prefix+"/", m)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}
