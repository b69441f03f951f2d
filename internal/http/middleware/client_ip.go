package middleware

import (
	"context"
	"net/http"
	"net/netip"
	"strings"

	"github.com/diagnosis/signnatural-api/pkg/logger"
)

type clientIPKey struct{}

// ClientIP resolves the caller address once per request for rate limiting.
// X-Forwarded-For and X-Real-IP are only read when the direct peer matches
// one of trusted (IPs or CIDRs). The forwarded chain is walked from the right
// and the first hop that is not itself a trusted proxy wins, so a client
// cannot choose its own key by prepending entries.
func ClientIP(trusted []string) func(http.Handler) http.Handler {
	proxies := parseProxies(trusted)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, proxies)
			ctx := context.WithValue(r.Context(), clientIPKey{}, ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseProxies(entries []string) []netip.Prefix {
	var out []netip.Prefix
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if p, err := netip.ParsePrefix(e); err == nil {
			out = append(out, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(e); err == nil {
			out = append(out, netip.PrefixFrom(a.Unmap(), a.Unmap().BitLen()))
			continue
		}
		logger.Warn("ignoring invalid trusted proxy", "entry", e)
	}
	return out
}

func isTrusted(ip string, proxies []netip.Prefix) bool {
	a, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, p := range proxies {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

func resolveClientIP(r *http.Request, proxies []netip.Prefix) string {
	peer := remoteIP(r)
	if len(proxies) == 0 || !isTrusted(peer, proxies) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if _, err := netip.ParseAddr(hop); err != nil {
				// Anything left of a malformed hop is untrustworthy.
				return peer
			}
			if !isTrusted(hop, proxies) {
				return hop
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
	}
	return peer
}
