package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS only when TLS terminates in front of this process for every
	// request. Never sent over plain HTTP.
	EnableHSTS bool
	HSTSMaxAge time.Duration // default 180 days

	// NoStorePrefixes lists path prefixes whose responses carry client PII
	// (operator listings, exports, login) and must not be cached.
	NoStorePrefixes []string
}

// exposedHeaders are response headers the booking page needs to read from JS.
var exposedHeaders = []string{requestIDHeader, HeaderIdempotencyReplayed, "Retry-After", "Content-Disposition"}

// SecurityHeaders sets baseline hardening headers for the JSON API.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = 180 * 24 * time.Hour
	}
	hsts := "max-age=" + strconv.FormatInt(int64(maxAge.Seconds()), 10) + "; includeSubDomains"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")

		if noStore(c.Request.URL.Path, opt.NoStorePrefixes) {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		exposeHeaders(h)

		c.Next()
	}
}

func noStore(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// exposeHeaders appends to Access-Control-Expose-Headers without dropping
// whatever the CORS layer already put there.
func exposeHeaders(h http.Header) {
	const name = "Access-Control-Expose-Headers"
	cur := h.Get(name)
	for _, e := range exposedHeaders {
		if strings.Contains(strings.ToLower(cur), strings.ToLower(e)) {
			continue
		}
		if cur == "" {
			cur = e
		} else {
			cur += ", " + e
		}
	}
	h.Set(name, cur)
}

// isHTTPS trusts X-Forwarded-Proto because the service runs behind a proxy.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
