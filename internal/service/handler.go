// Package service defines the request handler contract shared by the base
// handler and every decorator layered on top of it.
//
// A decorator is itself a Handler that owns an inner Handler. Decorators only
// depend on the contract below, never on a concrete inner type, so they
// compose in any order:
//
//	h := service.Stack(base,
//		logging.WithConnection(id, logger),
//		request.WithTimeout(30*time.Second),
//	)
package service

import (
	"context"
)

// Handler processes requests.
//
// Ready blocks until the handler can accept another call or ctx is done.
// Callers must observe a nil Ready before each Call. Call blocks until the
// request has been processed and returns either a response or an error,
// never both.
type Handler interface {
	Ready(ctx context.Context) error
	Call(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts an ordinary function into an always-ready Handler.
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)

// Ready reports whether ctx is still live.
func (f HandlerFunc) Ready(ctx context.Context) error {
	return ctx.Err()
}

// Call calls f(ctx, req).
func (f HandlerFunc) Call(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Layer wraps a Handler in a decorator.
type Layer func(Handler) Handler

// Stack wraps base in layers. The first layer listed becomes the outermost,
// so it sees the request first and the outcome last.
func Stack(base Handler, layers ...Layer) Handler {
	h := base
	for i := len(layers) - 1; i >= 0; i-- {
		if layers[i] == nil {
			continue
		}
		h = layers[i](h)
	}
	return h
}
