package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientMeta is the caller context recorded with each audited attempt.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// NewClientMeta extracts the client IP (without port) and User-Agent from r.
func NewClientMeta(r *http.Request) ClientMeta {
	return ClientMeta{
		IP:        stripPort(GetClientIP(r)),
		UserAgent: r.Header.Get("User-Agent"),
	}
}

// GetClientIP extracts the client address, preferring proxy headers:
//  1. X-Forwarded-For (first entry)
//  2. X-Real-IP
//  3. RemoteAddr
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return r.RemoteAddr
}

func stripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
