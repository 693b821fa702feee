// Package notify delivers best-effort messages after a booking commits.
//
// The Dispatcher runs every configured Sender once, in a detached goroutine,
// each under its own deadline. Failures are logged and counted and never
// reach the booking caller; nothing is retried.
package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/turnos-backend/internal/domain"
)

// Sender delivers one notification for a freshly booked appointment.
type Sender interface {
	Name() string
	Send(ctx context.Context, a domain.Appointment) error
}

var notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "notifications_total",
	Help: "Post-booking notifications attempted, by sender and outcome.",
}, []string{"sender", "outcome"})

func init() {
	prometheus.MustRegister(notificationsTotal)
}

// Dispatcher fans a booked appointment out to its senders.
type Dispatcher struct {
	senders []Sender
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher returns a dispatcher bounded by timeout per send. A
// dispatcher without senders is valid and does nothing.
func NewDispatcher(timeout time.Duration, senders ...Sender) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{senders: senders, timeout: timeout}
}

// Senders returns the configured sender names, for startup logging.
func (d *Dispatcher) Senders() []string {
	out := make([]string, 0, len(d.senders))
	for _, s := range d.senders {
		out = append(out, s.Name())
	}
	return out
}

// Dispatch schedules delivery and returns immediately.
func (d *Dispatcher) Dispatch(a domain.Appointment) {
	if len(d.senders) == 0 {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for _, s := range d.senders {
			d.send(s, a)
		}
	}()
}

func (d *Dispatcher) send(s Sender, a domain.Appointment) {
	logger := log.With().
		Str("component", "notify").
		Str("sender", s.Name()).
		Uint64("appointment_id", a.ID).
		Logger()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	err := safeSend(ctx, s, a)
	if err != nil {
		notificationsTotal.WithLabelValues(s.Name(), "error").Inc()
		logger.Warn().Err(err).Msg("notification failed")
		return
	}
	notificationsTotal.WithLabelValues(s.Name(), "ok").Inc()
	logger.Debug().Msg("notification sent")
}

func safeSend(ctx context.Context, s Sender, a domain.Appointment) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Send(ctx, a)
}

// Wait blocks until in-flight dispatches finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close waits for in-flight dispatches and releases senders that hold
// connections.
func (d *Dispatcher) Close(ctx context.Context) error {
	werr := d.Wait(ctx)
	for _, s := range d.senders {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				log.Warn().Err(err).Str("component", "notify").Str("sender", s.Name()).Msg("close sender")
			}
		}
	}
	return werr
}
