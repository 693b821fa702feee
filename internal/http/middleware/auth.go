package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const roleKey = "role"

// Operator is the identity RequireAdmin extracts from a bearer token.
type Operator struct {
	Username string
	Role     string
}

// TokenVerifier validates a bearer token and returns the operator behind it.
type TokenVerifier func(ctx context.Context, token string) (*Operator, error)

// RequireAdmin rejects requests without a valid operator bearer token and
// exposes the operator name under "userID" for logging and rate limiting.
func RequireAdmin(verify TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c, "missing bearer token")
			return
		}
		op, err := verify(c.Request.Context(), token)
		if err != nil || op == nil {
			unauthorized(c, "invalid or expired token")
			return
		}
		c.Set(userIDKey, op.Username)
		c.Set(roleKey, op.Role)
		c.Next()
	}
}

// OperatorFrom returns the identity stored by RequireAdmin.
func OperatorFrom(c *gin.Context) (Operator, bool) {
	name := asString(c.Value(userIDKey))
	if name == "" {
		return Operator{}, false
	}
	return Operator{Username: name, Role: asString(c.Value(roleKey))}, true
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="turnos"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       "unauthorized",
		"message":    msg,
	})
}
