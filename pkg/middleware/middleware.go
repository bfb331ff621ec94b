// Package middleware provides HTTP middleware for CORS and request logging.
package middleware

import (
	"net/http"
	"slices"
)

// Func wraps a handler with cross-cutting behavior.
type Func func(http.Handler) http.Handler

// Chain is an ordered middleware stack. The first Func added is the
// outermost wrapper, so it sees the request first.
type Chain struct {
	layers []Func
}

func (c *Chain) Use(fns ...Func) {
	c.layers = append(c.layers, fns...)
}

func (c *Chain) Len() int {
	return len(c.layers)
}

// Then wraps h with every layer in the chain.
func (c *Chain) Then(h http.Handler) http.Handler {
	for _, fn := range slices.Backward(c.layers) {
		h = fn(h)
	}
	return h
}
