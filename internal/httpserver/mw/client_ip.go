package mw

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller. With trustProxy the right-most X-Forwarded-For entry, the one
// appended by the trusted proxy, then X-Real-IP, wins over RemoteAddr. Entries to its left are
// client controlled.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := lastForwarded(r.Header.Values("X-Forwarded-For")); ip != "" {
			return ip
		}
		if ip := hostNoPort(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != "" {
			return ip
		}
	}
	return hostNoPort(r.RemoteAddr)
}

func lastForwarded(headers []string) string {
	for i := len(headers) - 1; i >= 0; i-- {
		entries := strings.Split(headers[i], ",")
		for j := len(entries) - 1; j >= 0; j-- {
			if ip := hostNoPort(strings.TrimSpace(entries[j])); ip != "" {
				return ip
			}
		}
	}
	return ""
}

func hostNoPort(s string) string {
	if h, _, err := net.SplitHostPort(s); err == nil {
		return h
	}
	return s
}
