// Package services – AuthService
//
// AuthService authenticates the single operator account and issues HS256
// bearer tokens. Passwords are compared with bcrypt; a plain ADMIN_PASSWORD
// is hashed once at construction so the comparison path is the same either way.
package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/turnos-backend/internal/config"
)

// RoleAdmin is the only role the service issues.
const RoleAdmin = "admin"

const tokenIssuer = "turnos-backend"

// Claims are the JWT claims carried by operator tokens.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwtv5.RegisteredClaims
}

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthService validates operator credentials and tokens.
type AuthService struct {
	username string
	hash     []byte
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

// NewAuthService builds the service from cfg. ADMIN_PASSWORD_HASH wins over
// a plain ADMIN_PASSWORD.
func NewAuthService(cfg config.AuthConfig) (*AuthService, error) {
	hash := []byte(cfg.PasswordHash)
	if len(hash) == 0 {
		if cfg.Password == "" {
			return nil, errors.New("operator password not configured")
		}
		h, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash operator password: %w", err)
		}
		hash = h
	} else if _, err := bcrypt.Cost(hash); err != nil {
		return nil, fmt.Errorf("ADMIN_PASSWORD_HASH: %w", err)
	}
	ttl := cfg.JWTTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &AuthService{
		username: cfg.Username,
		hash:     hash,
		secret:   []byte(cfg.JWTSecret),
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// Login checks the credentials and returns a signed session token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*Session, error) {
	_, span := otel.Tracer("services/AuthService").Start(ctx, "Login",
		trace.WithAttributes(attribute.String("auth.username", username)),
	)
	defer span.End()

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	// Always run bcrypt so a wrong username costs the same as a wrong password.
	passOK := bcrypt.CompareHashAndPassword(s.hash, []byte(password)) == nil
	if !userOK || !passOK {
		span.SetAttributes(attribute.Bool("auth.ok", false))
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	exp := now.Add(s.ttl)
	claims := Claims{
		Username: s.username,
		Role:     RoleAdmin,
		RegisteredClaims: jwtv5.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   s.username,
			Issuer:    tokenIssuer,
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(exp),
		},
	}
	token, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("auth.ok", true))
	return &Session{Token: token, Username: s.username, Role: RoleAdmin, ExpiresAt: exp.UTC()}, nil
}

// Verify parses and validates a token issued by Login.
func (s *AuthService) Verify(ctx context.Context, token string) (*Claims, error) {
	_, span := otel.Tracer("services/AuthService").Start(ctx, "Verify")
	defer span.End()

	claims := &Claims{}
	tok, err := jwtv5.ParseWithClaims(token, claims, func(t *jwtv5.Token) (any, error) {
		if _, ok := t.Method.(*jwtv5.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	},
		jwtv5.WithIssuer(tokenIssuer),
		jwtv5.WithExpirationRequired(),
		jwtv5.WithTimeFunc(s.now),
	)
	if err != nil || !tok.Valid || claims.Role != RoleAdmin {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
