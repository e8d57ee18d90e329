// Package mediator provides a small chain-of-responsibility request
// pipeline: a typed handler wrapped by cross-cutting behaviors composed at
// wiring time. No reflection, no global dispatch table; each operation owns
// its pipeline.
package mediator

import "context"

// Handler processes one request type.
type Handler[Req, Res any] func(ctx context.Context, req Req) (Res, error)

// Behavior wraps a handler with cross-cutting logic. Behaviors run in the
// order given to Chain, outermost first.
type Behavior[Req, Res any] func(next Handler[Req, Res]) Handler[Req, Res]

// Chain composes behaviors around a handler. Chain(h, a, b) runs a, then b,
// then h.
func Chain[Req, Res any](handler Handler[Req, Res], behaviors ...Behavior[Req, Res]) Handler[Req, Res] {
	for i := len(behaviors) - 1; i >= 0; i-- {
		handler = behaviors[i](handler)
	}
	return handler
}
