package request

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcncl/webserver/internal/service"
)

func TestWithRequestID(t *testing.T) {
	tests := []struct {
		name       string
		providedID string
	}{
		{
			name:       "adds request ID when none provided",
			providedID: "",
		},
		{
			name:       "uses provided request ID",
			providedID: "test-id-123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			inner := service.HandlerFunc(func(ctx context.Context, req *service.Request) (*service.Response, error) {
				id, ok := IDFromContext(ctx)
				require.True(t, ok, "requestID not found in context")
				seen = id
				return service.Text("ok"), nil
			})

			req := service.NewRequest(http.MethodGet, "/test")
			if tt.providedID != "" {
				req.Header.Set(RequestIDHeader, tt.providedID)
			}

			resp, err := service.Stack(inner, WithRequestID()).Call(context.Background(), req)
			require.NoError(t, err)

			assert.Equal(t, []string{seen}, resp.Header.Values(RequestIDHeader))
			if tt.providedID != "" {
				assert.Equal(t, tt.providedID, seen)
				return
			}

			parsed, err := uuid.Parse(seen)
			require.NoError(t, err)
			assert.Equal(t, uuid.Version(7), parsed.Version())
		})
	}
}

func TestWithRequestIDOnError(t *testing.T) {
	failing := service.HandlerFunc(func(ctx context.Context, req *service.Request) (*service.Response, error) {
		return nil, fmt.Errorf("boom")
	})

	resp, err := service.Stack(failing, WithRequestID()).Call(context.Background(), service.NewRequest(http.MethodGet, "/"))
	assert.Nil(t, resp)
	assert.EqualError(t, err, "boom")
}

func TestIDFromContextEmpty(t *testing.T) {
	_, ok := IDFromContext(context.Background())
	assert.False(t, ok)

	_, ok = IDFromContext(NewContext(context.Background(), ""))
	assert.False(t, ok)
}
