// Operator auth handlers.
//
//   - POST /auth/login   (username/password -> bearer token)
//   - GET  /auth/verify  (echo the token's identity)
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/turnos-backend/internal/http/middleware"
	"github.com/tbourn/turnos-backend/internal/services"
)

// LoginRequest carries operator credentials.
type LoginRequest struct {
	Username string `json:"username" binding:"required" example:"admin"`
	Password string `json:"password" binding:"required" example:"s3cret"`
}

// VerifyResponse is the identity behind a valid token.
type VerifyResponse struct {
	Username string `json:"username" example:"admin"`
	Role     string `json:"role"     example:"admin"`
}

// Login godoc
// @ID          login
// @Summary     Operator login
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.LoginRequest  true  "Credentials"
// @Success     200  {object}  services.Session
// @Failure     400  {object}  handlers.ErrorResponse  "Missing fields"
// @Failure     401  {object}  handlers.ErrorResponse  "Wrong credentials"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "username and password are required")
		return
	}
	sess, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		middleware.LoggerFrom(c).Warn().Str("username", req.Username).Msg("login rejected")
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid username or password")
		return
	case err != nil:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
		return
	}
	ok(c, http.StatusOK, sess)
}

// Verify godoc
// @ID          verify
// @Summary     Check an operator token
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.VerifyResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Router      /auth/verify [get]
func (h *Handlers) Verify(c *gin.Context) {
	token, found := middleware.BearerToken(c.GetHeader("Authorization"))
	if !found {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing bearer token")
		return
	}
	claims, err := h.auth.Verify(c.Request.Context(), token)
	if err != nil {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid or expired token")
		return
	}
	ok(c, http.StatusOK, VerifyResponse{Username: claims.Username, Role: claims.Role})
}

// TokenVerifier adapts the auth service to middleware.RequireAdmin.
func (h *Handlers) TokenVerifier() middleware.TokenVerifier {
	return func(ctx context.Context, token string) (*middleware.Operator, error) {
		claims, err := h.auth.Verify(ctx, token)
		if err != nil {
			return nil, err
		}
		return &middleware.Operator{Username: claims.Username, Role: claims.Role}, nil
	}
}
