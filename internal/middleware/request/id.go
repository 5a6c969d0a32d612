package request

import (
	"context"

	"github.com/google/uuid"

	"github.com/mcncl/webserver/internal/filter"
	"github.com/mcncl/webserver/internal/service"
)

// RequestIDHeader is the header used for request ID propagation
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// IDFromContext returns the request ID stored in ctx, if any.
func IDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

// NewContext returns a copy of ctx carrying the request ID.
func NewContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

type requestID struct {
	inner service.Handler
}

// WithRequestID tags every call with a request ID, reusing the inbound
// X-Request-ID when present. The ID is stored in the call context and echoed
// on successful responses.
func WithRequestID() service.Layer {
	return func(inner service.Handler) service.Handler {
		return &requestID{inner: inner}
	}
}

func (h *requestID) Ready(ctx context.Context) error {
	return h.inner.Ready(ctx)
}

func (h *requestID) Call(ctx context.Context, req *service.Request) (*service.Response, error) {
	id := filter.Lookup(req.Header, RequestIDHeader).Value
	if id == "" {
		id = newID()
	}

	resp, err := h.inner.Call(NewContext(ctx, id), req)
	if resp != nil {
		if resp.Header == nil {
			resp.Header = service.NewFieldMap()
		}
		resp.Header.Set(RequestIDHeader, id)
	}
	return resp, err
}
