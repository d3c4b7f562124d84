package observability

import (
	"net"
	"net/http"
	"strings"
)

// Identity is the caller fingerprint attached to websocket events.
type Identity struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
	IP       string `json:"ip"`
}

// IdentityFromRequest collects the device id and client address for userID.
func IdentityFromRequest(r *http.Request, userID string) Identity {
	return Identity{
		UserID:   userID,
		DeviceID: r.Header.Get("X-Device-Id"),
		IP:       IPFromRequest(r),
	}
}

func RequestIDFromRequest(r *http.Request) string {
	return r.Header.Get("X-Request-Id")
}

func IPFromRequest(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := r.Header.Get("X-Real-Ip"); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
