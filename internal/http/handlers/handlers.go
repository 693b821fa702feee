package handlers

import (
	"bytes"
	"context"
	"time"

	"github.com/tbourn/turnos-backend/internal/domain"
	"github.com/tbourn/turnos-backend/internal/events"
	"github.com/tbourn/turnos-backend/internal/services"
)

// BookingService is the appointment use-case surface the handlers need.
// Implementations must be safe for concurrent use and honor ctx.
type BookingService interface {
	Slots(ctx context.Context, date string) (*services.Slots, error)
	Book(ctx context.Context, in services.BookingInput) (*domain.Appointment, error)
	ListRange(ctx context.Context, from, to string) ([]domain.Appointment, error)
	ListAll(ctx context.Context) ([]domain.Appointment, error)
	Stats(ctx context.Context) (domain.Counts, error)
	UpdateStatus(ctx context.Context, id uint64, status string) (*domain.Appointment, error)
	Delete(ctx context.Context, id uint64) error
	Export(ctx context.Context) (*bytes.Buffer, string, error)

	// Replay and Remember back the Idempotency-Key contract of Book.
	Replay(ctx context.Context, clientKey, key string) (*domain.Appointment, bool)
	Remember(ctx context.Context, clientKey, key string, appointmentID uint64, status int)
}

// AuthService issues and checks operator tokens.
type AuthService interface {
	Login(ctx context.Context, username, password string) (*services.Session, error)
	Verify(ctx context.Context, token string) (*services.Claims, error)
}

// EventSource hands out live calendar subscriptions.
type EventSource interface {
	Subscribe() *events.Subscription
	Unsubscribe(s *events.Subscription)
}

// Handlers groups the API endpoints.
type Handlers struct {
	booking   BookingService
	auth      AuthService
	events    EventSource
	heartbeat time.Duration
}

// Option tweaks Handlers at construction.
type Option func(*Handlers)

// WithHeartbeat sets the SSE comment interval. Non-positive values keep the
// default of 25s.
func WithHeartbeat(d time.Duration) Option {
	return func(h *Handlers) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// New wires the handlers to their services.
func New(booking BookingService, auth AuthService, src EventSource, opts ...Option) *Handlers {
	h := &Handlers{booking: booking, auth: auth, events: src, heartbeat: 25 * time.Second}
	for _, o := range opts {
		o(h)
	}
	return h
}
