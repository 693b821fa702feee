package services

import (
	"context"
	"errors"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/tbourn/turnos-backend/internal/config"
)

const testSecret = "0123456789abcdef-secret"

func newAuth(t *testing.T, cfg config.AuthConfig) *AuthService {
	t.Helper()
	if cfg.Username == "" {
		cfg.Username = "admin"
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = testSecret
	}
	s, err := NewAuthService(cfg)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	return s
}

func TestAuth_LoginAndVerify(t *testing.T) {
	s := newAuth(t, config.AuthConfig{Password: "s3cret", JWTTTL: time.Hour})
	ctx := context.Background()

	sess, err := s.Login(ctx, "admin", "s3cret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sess.Token == "" || sess.Username != "admin" || sess.Role != RoleAdmin {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if d := time.Until(sess.ExpiresAt); d <= 50*time.Minute || d > time.Hour+time.Minute {
		t.Fatalf("expiry should follow JWT_TTL, got %v", d)
	}

	claims, err := s.Verify(ctx, sess.Token)
	if err != nil || claims.Username != "admin" || claims.Role != RoleAdmin {
		t.Fatalf("verify: %+v %v", claims, err)
	}
}

func TestAuth_LoginRejectsBadCredentials(t *testing.T) {
	s := newAuth(t, config.AuthConfig{Password: "s3cret"})
	for _, c := range [][2]string{{"admin", "nope"}, {"root", "s3cret"}, {"", ""}} {
		if _, err := s.Login(context.Background(), c[0], c[1]); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("Login(%q, %q) = %v; want ErrInvalidCredentials", c[0], c[1], err)
		}
	}
}

func TestAuth_PasswordHashWins(t *testing.T) {
	h, err := bcrypt.GenerateFromPassword([]byte("from-hash"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	s := newAuth(t, config.AuthConfig{Password: "plain", PasswordHash: string(h)})
	if _, err := s.Login(context.Background(), "admin", "from-hash"); err != nil {
		t.Fatalf("hash password should work: %v", err)
	}
	if _, err := s.Login(context.Background(), "admin", "plain"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("plain password should be ignored when a hash is set, got %v", err)
	}
}

func TestNewAuthService_ConfigErrors(t *testing.T) {
	if _, err := NewAuthService(config.AuthConfig{Username: "admin", JWTSecret: testSecret}); err == nil {
		t.Fatalf("expected error without a password")
	}
	if _, err := NewAuthService(config.AuthConfig{Username: "admin", PasswordHash: "not-bcrypt", JWTSecret: testSecret}); err == nil {
		t.Fatalf("expected error for a malformed hash")
	}
}

func TestAuth_VerifyRejects(t *testing.T) {
	s := newAuth(t, config.AuthConfig{Password: "pw", JWTTTL: time.Hour})
	ctx := context.Background()

	// Expired: issue in the past.
	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := s.Login(ctx, "admin", "pw")
	if err != nil {
		t.Fatal(err)
	}
	s.now = time.Now
	if _, err := s.Verify(ctx, old.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token: %v", err)
	}

	// Signed with another secret.
	other := newAuth(t, config.AuthConfig{Password: "pw", JWTSecret: "another-secret-0123456"})
	foreign, _ := other.Login(ctx, "admin", "pw")
	if _, err := s.Verify(ctx, foreign.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign token: %v", err)
	}

	// Wrong algorithm.
	none, _ := jwtv5.NewWithClaims(jwtv5.SigningMethodNone, Claims{Role: RoleAdmin}).SignedString(jwtv5.UnsafeAllowNoneSignatureType)
	if _, err := s.Verify(ctx, none); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("alg none: %v", err)
	}

	// Right key, wrong role.
	claims := Claims{Username: "x", Role: "viewer", RegisteredClaims: jwtv5.RegisteredClaims{
		Issuer:    tokenIssuer,
		ExpiresAt: jwtv5.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	viewer, _ := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if _, err := s.Verify(ctx, viewer); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("non-admin role: %v", err)
	}

	if _, err := s.Verify(ctx, "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage: %v", err)
	}
}

func TestValidationError_Matching(t *testing.T) {
	err := invalid(ErrClosedDay)
	if !errors.Is(err, ErrValidation) || !errors.Is(err, ErrClosedDay) || errors.Is(err, ErrHourOutOfRange) {
		t.Fatalf("unexpected matching for %v", err)
	}
	if err.Error() != ErrClosedDay.Error() {
		t.Fatalf("message = %q", err.Error())
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Err != ErrClosedDay {
		t.Fatalf("errors.As failed")
	}
}
