package security

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/mcncl/webserver/internal/errors"
	"github.com/mcncl/webserver/internal/service"
)

// IPAllowList admits clients whose address matches one of its prefixes.
// Entries may be single addresses or CIDR ranges.
type IPAllowList struct {
	mu         sync.RWMutex
	prefixes   []netip.Prefix
	lastUpdate time.Time
}

func NewIPAllowList(entries []string) (*IPAllowList, error) {
	wl := &IPAllowList{}
	if err := wl.Reload(entries); err != nil {
		return nil, err
	}
	return wl, nil
}

// Reload replaces the allowed prefixes. On error the previous set is kept.
func (wl *IPAllowList) Reload(entries []string) error {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		p, err := parsePrefix(entry)
		if err != nil {
			return errors.NewValidationError(fmt.Sprintf("allow list entry %q: %v", entry, err))
		}
		prefixes = append(prefixes, p)
	}

	wl.mu.Lock()
	wl.prefixes = prefixes
	wl.lastUpdate = time.Now()
	wl.mu.Unlock()

	return nil
}

func parsePrefix(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		p, err := netip.ParsePrefix(entry)
		return p.Masked(), err
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()), nil
}

// Allowed reports whether ip falls inside any allowed prefix.
func (wl *IPAllowList) Allowed(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	wl.mu.RLock()
	defer wl.mu.RUnlock()
	for _, p := range wl.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// LastUpdate returns when the prefixes were last replaced.
func (wl *IPAllowList) LastUpdate() time.Time {
	wl.mu.RLock()
	defer wl.mu.RUnlock()
	return wl.lastUpdate
}

type allowListed struct {
	inner service.Handler
	list  *IPAllowList
}

// WithAllowList rejects calls from clients outside list with a forbidden
// error. A nil list disables the layer.
func WithAllowList(list *IPAllowList) service.Layer {
	if list == nil {
		return nil
	}
	return func(inner service.Handler) service.Handler {
		return &allowListed{inner: inner, list: list}
	}
}

func (h *allowListed) Ready(ctx context.Context) error {
	return h.inner.Ready(ctx)
}

func (h *allowListed) Call(ctx context.Context, req *service.Request) (*service.Response, error) {
	ip := getIP(req)
	if !h.list.Allowed(ip) {
		return nil, errors.WithDetails(
			errors.NewForbiddenError("client not in allow list"),
			map[string]interface{}{"client": ip},
		)
	}
	return h.inner.Call(ctx, req)
}
