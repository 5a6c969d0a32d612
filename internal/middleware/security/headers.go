package security

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/mcncl/webserver/internal/filter"
	"github.com/mcncl/webserver/internal/service"
)

// SecurityConfig defines the configuration for security headers and CORS
type SecurityConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int // in seconds
}

// DefaultConfig returns a default security configuration
func DefaultConfig() SecurityConfig {
	return SecurityConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			"Content-Length",
			"Accept-Encoding",
			"Authorization",
			"X-Request-ID",
		},
		MaxAge: 3600,
	}
}

type securityHeaders struct {
	inner  service.Handler
	config SecurityConfig
}

// WithSecurityHeaders adds security headers to successful responses and
// answers CORS preflight requests without calling the inner handler.
func WithSecurityHeaders(config SecurityConfig) service.Layer {
	return func(inner service.Handler) service.Handler {
		return &securityHeaders{inner: inner, config: config}
	}
}

func (h *securityHeaders) Ready(ctx context.Context) error {
	return h.inner.Ready(ctx)
}

func (h *securityHeaders) Call(ctx context.Context, req *service.Request) (*service.Response, error) {
	cors := service.NewFieldMap()
	if handleCORS(cors, req, h.config) && req.Method == http.MethodOptions {
		resp := service.NewResponse(http.StatusOK, nil)
		resp.Header = cors
		setSecurityHeaders(resp.Header)
		return resp, nil
	}

	resp, err := h.inner.Call(ctx, req)
	if err != nil || resp == nil {
		return resp, err
	}

	if resp.Header == nil {
		resp.Header = service.NewFieldMap()
	}
	setSecurityHeaders(resp.Header)
	for _, key := range cors.Keys() {
		for _, v := range cors.Values(key) {
			resp.Header.Set(key, v)
		}
	}
	return resp, nil
}

func setSecurityHeaders(h *service.FieldMap) {
	// Basic security headers
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-XSS-Protection", "1; mode=block")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

	// Content Security Policy
	h.Set("Content-Security-Policy", strings.Join([]string{
		"default-src 'none'",
		"frame-ancestors 'none'",
		"base-uri 'none'",
		"form-action 'none'",
	}, "; "))
}

func handleCORS(h *service.FieldMap, req *service.Request, config SecurityConfig) bool {
	origin := filter.Lookup(req.Header, "Origin").Value
	if origin == "" {
		return false
	}

	// Check if origin is allowed
	allowed := false
	for _, allowedOrigin := range config.AllowedOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			allowed = true
			break
		}
	}

	if !allowed {
		return false
	}

	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Methods", strings.Join(config.AllowedMethods, ", "))
	h.Set("Access-Control-Allow-Headers", strings.Join(config.AllowedHeaders, ", "))
	h.Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
	h.Set("Access-Control-Allow-Credentials", "true")

	return true
}
