package utils

import (
	"net/http"
	"strings"
)

// ParseRemoteAddr prefers the first X-Forwarded-For hop so proxied
// requests log the originating client.
func ParseRemoteAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); len(fwd) > 0 {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return r.RemoteAddr
}
