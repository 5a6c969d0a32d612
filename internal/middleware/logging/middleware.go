// Package logging provides the lifecycle logging decorator.
package logging

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/mcncl/webserver/internal/errors"
	"github.com/mcncl/webserver/internal/filter"
	"github.com/mcncl/webserver/internal/logging"
	"github.com/mcncl/webserver/internal/middleware/request"
	"github.com/mcncl/webserver/internal/service"
)

// Logging emits a "processing" event before each call to its inner handler
// and a "completed" event after it, both tagged with the connection id.
type Logging struct {
	inner  service.Handler
	connID uint64
	logger *slog.Logger
}

// New wraps inner. A nil logger discards all events.
func New(inner service.Handler, connID uint64, logger *slog.Logger) *Logging {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Logging{
		inner:  inner,
		connID: connID,
		logger: logger.With("conn", connID),
	}
}

// WithConnection returns a layer applying New for one connection.
func WithConnection(connID uint64, logger *slog.Logger) service.Layer {
	return func(inner service.Handler) service.Handler {
		return New(inner, connID, logger)
	}
}

// Ready delegates to the inner handler.
func (l *Logging) Ready(ctx context.Context) error {
	return l.inner.Ready(ctx)
}

// Call logs around the inner call and returns its outcome untouched.
func (l *Logging) Call(ctx context.Context, req *service.Request) (*service.Response, error) {
	hostField := filter.Lookup(req.Header, "Host")
	if !hostField.Found {
		l.logger.DebugContext(ctx, "field missing",
			"err", errors.NewFieldMissingError("Host").Error(),
			"default", filter.Unknown,
		)
	}
	host := hostField.Or(filter.Unknown)
	attrs := []any{
		"method", req.Method,
		"route", req.Path,
		"host", host,
	}
	if id, ok := request.IDFromContext(ctx); ok {
		attrs = append(attrs, "request_id", id)
	}
	logger := l.logger.With(attrs...)

	logger.DebugContext(ctx, "processing")

	start := time.Now()
	resp, err := l.inner.Call(logging.NewContext(ctx, logger), req)
	elapsed := time.Since(start)

	status := http.StatusInternalServerError
	if err == nil && resp != nil {
		status = resp.Status
	}

	fields := []any{
		"status", status,
		"duration", elapsed,
		"duration_ms", elapsed.Milliseconds(),
	}
	if err != nil {
		fields = append(fields, "err", err.Error(), "err_class", errors.Classify(err))
	}
	logger.DebugContext(ctx, "completed", fields...)

	return resp, err
}
