package realtime

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// sameOriginOrLoopback accepts requests without an Origin header, requests whose
// Origin host matches the Host header, and local development origins.
func sameOriginOrLoopback(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	host := bareHost(origin)
	if host == bareHost(r.Host) {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}

func bareHost(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "://") {
		if u, err := url.Parse(raw); err == nil {
			raw = u.Host
		}
	}
	if h, _, err := net.SplitHostPort(raw); err == nil {
		return h
	}
	return raw
}

func canonicalStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}

func dedupeStreams(streams []string) []string {
	seen := make(map[string]struct{}, len(streams))
	out := make([]string, 0, len(streams))
	for _, raw := range streams {
		stream := canonicalStream(raw)
		if stream == "" {
			continue
		}
		if _, dup := seen[stream]; dup {
			continue
		}
		seen[stream] = struct{}{}
		out = append(out, stream)
	}
	return out
}
