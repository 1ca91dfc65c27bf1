package form_mailer

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// Any host containing one of these passes the origin check.
var loopbackMarkers = []string{"localhost", "127.0.0.1", "::1"}

// OriginGuard checks the page a submission claims to come from against a
// fixed host allow-list.
type OriginGuard struct {
	hosts map[string]struct{}
}

func NewOriginGuard(hosts []string) *OriginGuard {
	g := &OriginGuard{hosts: make(map[string]struct{}, len(hosts))}
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			g.hosts[h] = struct{}{}
		}
	}
	return g
}

// Allow reports whether a declared origin (a Referer or Origin header value)
// is acceptable. An empty value passes: non-browser and privacy-stripped
// clients send none.
func (g *OriginGuard) Allow(declared string) bool {
	declared = strings.TrimSpace(declared)
	if declared == "" || declared == "null" {
		return true
	}
	host := hostOf(declared)
	if _, ok := g.hosts[host]; ok {
		return true
	}
	for _, marker := range loopbackMarkers {
		if strings.Contains(host, marker) {
			return true
		}
	}
	return false
}

// declaredOrigin prefers Referer and falls back to Origin.
func declaredOrigin(r *http.Request) string {
	if ref := r.Header.Get("Referer"); ref != "" {
		return ref
	}
	return r.Header.Get("Origin")
}

// hostOf extracts the lowercased host, without port, from a URL or a bare
// host string.
func hostOf(v string) string {
	if u, err := url.Parse(v); err == nil && u.Host != "" {
		return strings.ToLower(u.Hostname())
	}
	if i := strings.IndexAny(v, "/?#"); i >= 0 {
		v = v[:i]
	}
	if h, _, err := net.SplitHostPort(v); err == nil {
		v = h
	}
	return strings.ToLower(strings.Trim(v, "[]"))
}
