package errors

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/bassosimone/errclass"
)

func TestErrorTypes(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		expectedMessage string
		isFieldMissing  bool
		isHandler       bool
		isTimeout       bool
		isRateLimit     bool
	}{
		{
			name:            "field missing error",
			err:             NewFieldMissingError("host"),
			expectedMessage: `field missing: host - details: {"field":"host"}`,
			isFieldMissing:  true,
		},
		{
			name:            "handler error",
			err:             NewHandlerError(fmt.Errorf("boom")),
			expectedMessage: "handler error - caused by: boom",
			isHandler:       true,
		},
		{
			name:            "timeout error",
			err:             NewTimeoutError(50 * time.Millisecond),
			expectedMessage: `timed out: no response after 50ms - details: {"timeout_ms":50}`,
			isTimeout:       true,
		},
		{
			name:            "rate limit error",
			err:             NewRateLimitError("too many requests", nil),
			expectedMessage: "rate limit error: too many requests",
			isRateLimit:     true,
		},
		{
			name:            "validation error",
			err:             NewValidationError("missing required field"),
			expectedMessage: "validation error: missing required field",
		},
		{
			name:            "internal error",
			err:             NewInternalError("unexpected error"),
			expectedMessage: "internal error: unexpected error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expectedMessage {
				t.Errorf("expected message %q, got %q", tt.expectedMessage, tt.err.Error())
			}

			if IsFieldMissingError(tt.err) != tt.isFieldMissing {
				t.Errorf("IsFieldMissingError(%v) = %v, want %v", tt.err, IsFieldMissingError(tt.err), tt.isFieldMissing)
			}

			if IsHandlerError(tt.err) != tt.isHandler {
				t.Errorf("IsHandlerError(%v) = %v, want %v", tt.err, IsHandlerError(tt.err), tt.isHandler)
			}

			if IsTimeoutError(tt.err) != tt.isTimeout {
				t.Errorf("IsTimeoutError(%v) = %v, want %v", tt.err, IsTimeoutError(tt.err), tt.isTimeout)
			}

			if IsRateLimitError(tt.err) != tt.isRateLimit {
				t.Errorf("IsRateLimitError(%v) = %v, want %v", tt.err, IsRateLimitError(tt.err), tt.isRateLimit)
			}
		})
	}
}

func TestHandlerErrorPreservesCause(t *testing.T) {
	cause := fmt.Errorf("database unavailable")
	err := NewHandlerError(cause)

	if Unwrap(err) != cause {
		t.Errorf("Unwrap() = %v, want %v", Unwrap(err), cause)
	}

	// Re-wrapping an already wrapped failure must not nest it again
	if again := NewHandlerError(err); again != err {
		t.Errorf("NewHandlerError(handler error) = %v, want the same value", again)
	}

	if NewHandlerError(nil) != nil {
		t.Error("NewHandlerError(nil) should return nil")
	}

	// A timeout surfacing from a nested guard stays detectable as a timeout
	nested := NewHandlerError(NewTimeoutError(time.Second))
	if !IsTimeoutError(nested) {
		t.Error("nested timeout not detectable after re-wrapping")
	}
}

func TestErrorWrapping(t *testing.T) {
	originalErr := fmt.Errorf("original error")
	wrappedErr := Wrap(originalErr, "additional context")

	if !strings.Contains(wrappedErr.Error(), "original error") {
		t.Errorf("wrapped error %q does not contain original error message", wrappedErr.Error())
	}

	if !strings.Contains(wrappedErr.Error(), "additional context") {
		t.Errorf("wrapped error %q does not contain context message", wrappedErr.Error())
	}

	if !IsInternalError(wrappedErr) {
		t.Errorf("wrapped standard error should be classified as internal")
	}

	// Wrapping a typed error keeps its type
	typed := Wrap(NewValidationError("bad port"), "loading config")
	if !IsValidationError(typed) {
		t.Errorf("Wrap lost the validation type: %v", typed)
	}
	if typed.Error() != "validation error: loading config: bad port" {
		t.Errorf("unexpected message %q", typed.Error())
	}

	if Wrap(nil, "context for nil") != nil {
		t.Error("Wrap(nil, ...) should return nil")
	}
}

func TestErrorWithDetails(t *testing.T) {
	details := map[string]interface{}{
		"field": "port",
		"code":  123,
	}

	err := WithDetails(NewValidationError("invalid input"), details)

	if detailedErr, ok := err.(ErrorWithDetails); !ok {
		t.Error("Error should implement ErrorWithDetails")
	} else if !reflect.DeepEqual(detailedErr.Details(), details) {
		t.Errorf("Details() = %v, want %v", detailedErr.Details(), details)
	}

	if got := GetDetails(fmt.Errorf("outer: %w", err)); !reflect.DeepEqual(got, details) {
		t.Errorf("GetDetails() through %%w = %v, want %v", got, details)
	}

	if GetDetails(nil) != nil {
		t.Error("GetDetails(nil) should return nil")
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: http.StatusOK},
		{name: "timeout", err: NewTimeoutError(time.Second), want: http.StatusGatewayTimeout},
		{name: "rate limit", err: NewRateLimitError("slow down", nil), want: http.StatusServiceUnavailable},
		{name: "validation", err: NewValidationError("bad"), want: http.StatusBadRequest},
		{name: "forbidden", err: NewForbiddenError("not allowed"), want: http.StatusForbidden},
		{name: "handler", err: NewHandlerError(fmt.Errorf("boom")), want: http.StatusInternalServerError},
		{name: "plain", err: fmt.Errorf("plain"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusCode(tt.err); got != tt.want {
				t.Errorf("StatusCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestToErrorResponse(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType string
	}{
		{name: "timeout error", err: NewTimeoutError(time.Second), wantType: "timeout"},
		{name: "handler error", err: NewHandlerError(fmt.Errorf("boom")), wantType: "handler"},
		{name: "rate limit error", err: NewRateLimitError("too many requests", nil), wantType: "rate_limit"},
		{name: "transport error", err: NewTransportError("read failed", fmt.Errorf("reset")), wantType: "transport"},
		{name: "field missing error", err: NewFieldMissingError("host"), wantType: "field_missing"},
		{name: "forbidden error", err: NewForbiddenError("client not allowed"), wantType: "forbidden"},
		{name: "plain error", err: fmt.Errorf("plain"), wantType: "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ToErrorResponse(tt.err)

			if resp.ErrorType != tt.wantType {
				t.Errorf("ErrorType = %v, want %v", resp.ErrorType, tt.wantType)
			}

			if resp.Message == "" {
				t.Error("Message should not be empty")
			}
		})
	}

	resp := ToErrorResponse(nil)
	if resp.Status != "error" || resp.Message == "" {
		t.Errorf("ToErrorResponse(nil) should return default error response")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "timeout", err: NewTimeoutError(time.Second), want: errclass.ETIMEDOUT},
		{name: "wrapped timeout", err: NewHandlerError(NewTimeoutError(time.Second)), want: errclass.ETIMEDOUT},
		{name: "deadline", err: context.DeadlineExceeded, want: errclass.ETIMEDOUT},
		{name: "generic", err: fmt.Errorf("boom"), want: errclass.EGENERIC},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
