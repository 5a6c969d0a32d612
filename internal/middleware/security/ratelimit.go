package security

import (
	"context"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/mcncl/webserver/internal/errors"
	"github.com/mcncl/webserver/internal/filter"
	"github.com/mcncl/webserver/internal/service"
)

func newLimiter(requestsPerMinute, burst int) *rate.Limiter {
	if burst <= 0 {
		burst = requestsPerMinute
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), burst)
}

// RateLimiter provides global rate limiting through readiness: Ready blocks
// until a token is available, which is how backpressure reaches the driver.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a new rate limiter with specified requests per minute.
// A non-positive burst defaults to requestsPerMinute.
func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	return &RateLimiter{limiter: newLimiter(requestsPerMinute, burst)}
}

// Wait blocks until a token is available or ctx is done.
func (l *RateLimiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return errors.NewRateLimitError("not ready", err)
	}
	return nil
}

type rateLimited struct {
	inner   service.Handler
	limiter *RateLimiter
}

// WithRateLimit applies global rate limiting. The limiter is shared by every
// handler the layer wraps, so one layer value limits all connections.
// A non-positive requestsPerMinute disables the layer.
func WithRateLimit(requestsPerMinute, burst int) service.Layer {
	if requestsPerMinute <= 0 {
		return nil
	}
	limiter := NewRateLimiter(requestsPerMinute, burst)

	return func(inner service.Handler) service.Handler {
		return &rateLimited{inner: inner, limiter: limiter}
	}
}

func (h *rateLimited) Ready(ctx context.Context) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}
	return h.inner.Ready(ctx)
}

func (h *rateLimited) Call(ctx context.Context, req *service.Request) (*service.Response, error) {
	return h.inner.Call(ctx, req)
}

// IPRateLimiter provides per-IP rate limiting
type IPRateLimiter struct {
	ips         sync.Map // map[string]*rate.Limiter
	rateFunc    func() *rate.Limiter
	lastCleanup atomic.Int64 // unix nanos
}

const cleanupInterval = time.Minute

// NewIPRateLimiter creates a new IP-based rate limiter
func NewIPRateLimiter(requestsPerMinute, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		rateFunc: func() *rate.Limiter {
			return newLimiter(requestsPerMinute, burst)
		},
	}
}

// GetLimiter returns the rate limiter for a specific IP
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	if limiter, ok := i.ips.Load(ip); ok {
		return limiter.(*rate.Limiter)
	}
	limiter, _ := i.ips.LoadOrStore(ip, i.rateFunc())
	return limiter.(*rate.Limiter)
}

// CleanupExpired removes limiters whose bucket has refilled completely.
func (i *IPRateLimiter) CleanupExpired() {
	i.ips.Range(func(key, value interface{}) bool {
		limiter := value.(*rate.Limiter)
		if limiter.Tokens() >= float64(limiter.Burst()) {
			i.ips.Delete(key)
		}
		return true
	})
}

// cleanupIfDue runs CleanupExpired at most once per cleanupInterval.
func (i *IPRateLimiter) cleanupIfDue(now time.Time) {
	last := i.lastCleanup.Load()
	if now.UnixNano()-last < int64(cleanupInterval) {
		return
	}
	if i.lastCleanup.CompareAndSwap(last, now.UnixNano()) {
		i.CleanupExpired()
	}
}

type ipRateLimited struct {
	inner   service.Handler
	limiter *IPRateLimiter
}

// WithIPRateLimit rejects calls from a client that exceeded its own budget.
// Unlike WithRateLimit it cannot hold back readiness, since the client is only
// known once the request has arrived. A non-positive requestsPerMinute
// disables the layer.
func WithIPRateLimit(requestsPerMinute, burst int) service.Layer {
	if requestsPerMinute <= 0 {
		return nil
	}
	limiter := NewIPRateLimiter(requestsPerMinute, burst)

	return func(inner service.Handler) service.Handler {
		return &ipRateLimited{inner: inner, limiter: limiter}
	}
}

func (h *ipRateLimited) Ready(ctx context.Context) error {
	return h.inner.Ready(ctx)
}

func (h *ipRateLimited) Call(ctx context.Context, req *service.Request) (*service.Response, error) {
	h.limiter.cleanupIfDue(time.Now())

	ip := getIP(req)
	if !h.limiter.GetLimiter(ip).Allow() {
		return nil, errors.WithDetails(
			errors.NewRateLimitError("too many requests", nil),
			map[string]interface{}{"client": ip},
		)
	}
	return h.inner.Call(ctx, req)
}

// getIP extracts the client IP from the request
func getIP(req *service.Request) string {
	if ip := filter.Lookup(req.Header, "X-Forwarded-For"); ip.Found && ip.Value != "" {
		// Take the first IP if multiple are present
		v := ip.Value
		if i := strings.Index(v, ","); i > -1 {
			v = v[:i]
		}
		return strings.TrimSpace(v)
	}

	ip, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return ip
}
