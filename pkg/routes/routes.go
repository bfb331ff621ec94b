// Package routes declares HTTP routes as nested groups and registers
// them on a ServeMux using method-qualified patterns.
package routes

import "net/http"

// Route is one method and path under its group's prefix. An empty
// Method matches any method.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}

// Group prefixes its Routes and every descendant group with Prefix.
type Group struct {
	Prefix   string
	Routes   []Route
	Children []Group
}

// Register installs every route of groups on mux.
func Register(mux *http.ServeMux, groups ...Group) {
	for _, g := range groups {
		g.walk("", func(pattern string, h http.HandlerFunc) {
			mux.HandleFunc(pattern, h)
		})
	}
}

func (g Group) walk(parent string, visit func(pattern string, h http.HandlerFunc)) {
	prefix := parent + g.Prefix
	for _, r := range g.Routes {
		visit(r.pattern(prefix), r.Handler)
	}
	for _, child := range g.Children {
		child.walk(prefix, visit)
	}
}

func (r Route) pattern(prefix string) string {
	path := prefix + r.Pattern
	if r.Method == "" {
		return path
	}
	return r.Method + " " + path
}
