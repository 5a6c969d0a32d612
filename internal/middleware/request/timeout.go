package request

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/mcncl/webserver/internal/errors"
	"github.com/mcncl/webserver/internal/logging"
	"github.com/mcncl/webserver/internal/service"
)

type outcome struct {
	resp *service.Response
	err  error
}

// Timeout bounds the duration of each call to an inner handler.
type Timeout struct {
	inner   service.Handler
	timeout time.Duration
}

// NewTimeout wraps inner so that each call resolves within d. A non-positive
// d disables the guard.
func NewTimeout(inner service.Handler, d time.Duration) *Timeout {
	return &Timeout{inner: inner, timeout: d}
}

// WithTimeout returns a layer applying NewTimeout with d.
func WithTimeout(d time.Duration) service.Layer {
	return func(inner service.Handler) service.Handler {
		return NewTimeout(inner, d)
	}
}

// Ready delegates to the inner handler.
func (t *Timeout) Ready(ctx context.Context) error {
	return t.inner.Ready(ctx)
}

// Call races the inner call against the deadline.
//
// If the inner call has produced a result by the time the deadline fires, that
// result is returned. Otherwise the inner context is cancelled and a timeout
// error is returned; whatever the inner call produces afterwards is dropped.
// Inner errors and panics are returned as handler errors. If the caller's
// context ends first, its error is returned.
func (t *Timeout) Call(ctx context.Context, req *service.Request) (*service.Response, error) {
	if t.timeout <= 0 {
		out := t.call(ctx, req)
		return out.resp, errors.NewHandlerError(out.err)
	}

	innerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// buffered so a late inner call never blocks on send
	done := make(chan outcome, 1)
	go func() {
		done <- t.call(innerCtx, req)
	}()

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	return t.await(ctx, done, timer.C)
}

// await returns the first of: the inner outcome, the deadline, or the end of
// ctx. An outcome already waiting in done beats both of the others.
func (t *Timeout) await(ctx context.Context, done <-chan outcome, fired <-chan time.Time) (*service.Response, error) {
	select {
	case out := <-done:
		return out.resp, errors.NewHandlerError(out.err)
	case <-fired:
	case <-ctx.Done():
	}

	select {
	case out := <-done:
		return out.resp, errors.NewHandlerError(out.err)
	default:
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, errors.NewTimeoutError(t.timeout)
}

// call runs the inner handler, turning a panic into an error.
func (t *Timeout) call(ctx context.Context, req *service.Request) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx).ErrorContext(ctx, "handler panic",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			out = outcome{err: fmt.Errorf("handler panic: %v", r)}
		}
	}()

	resp, err := t.inner.Call(ctx, req)
	return outcome{resp: resp, err: err}
}
