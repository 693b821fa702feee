package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// RedactOptions adds header names whose values are replaced wholesale.
// Authorization, Cookie and Set-Cookie are always masked.
type RedactOptions struct {
	MaskHeaders []string
}

const redactedValue = "[REDACTED]"

// Client WhatsApp numbers are the main PII this API handles. They show up in
// query strings (operator searches) and sometimes in forwarded headers.
// UUIDs go first so their hyphenated hex groups are not taken for phones.
var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`(?:\+?\b\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\b\d{3,4}[ .-]?\d{4}\b`)
	digitRE = regexp.MustCompile(`\b\d{8,20}\b`)
)

func redactPII(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	s = phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
	return digitRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// RedactingLogger is Logger with PII scrubbed from the query string and
// request headers. Bodies are never logged. The request-scoped logger it
// stores for LoggerFrom carries the same redacted fields.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	masked := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := masked[strings.ToLower(k)]; ok {
				headers[k] = redactedValue
				continue
			}
			headers[k] = redactPII(strings.Join(vv, ", "))
		}

		l := requestLogger(c).With().
			Str("query", redactPII(truncate(c.Request.URL.RawQuery, maxQueryLogLength))).
			Interface("headers", headers).
			Logger()
		c.Set(loggerKey, &l)

		c.Next()

		emitAccess(c, l, start)
	}
}
