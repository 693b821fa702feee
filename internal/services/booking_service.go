// Package services – BookingService
//
// BookingService owns every appointment use case: slot availability, the
// booking transaction, operator status changes and deletion, the calendar
// range view, the admin listing, and dashboard counters.
//
// The booking transaction validates input against the business calendar and
// then performs a single atomic insert. It never pre-checks availability: the
// store's unique slot index is the only serialization point, and a violation
// surfaces as ErrSlotTaken. After commit, the change is published to live
// viewers and notifications are handed to a detached dispatcher whose outcome
// is never awaited.
//
// Observability: public methods open OpenTelemetry spans; booking outcomes are
// counted in bookings_total.
package services

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/turnos-backend/internal/availability"
	"github.com/tbourn/turnos-backend/internal/calendar"
	"github.com/tbourn/turnos-backend/internal/domain"
	"github.com/tbourn/turnos-backend/internal/events"
	"github.com/tbourn/turnos-backend/internal/export"
	"github.com/tbourn/turnos-backend/internal/repo"
)

const (
	maxNameRunes    = 100
	maxContactDigit = 20

	// IdempotencyScope tags idempotency records created by Book.
	IdempotencyScope = "appointments.create"
)

var bookingsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "bookings_total",
	Help: "Booking attempts by outcome (booked, invalid, slot_taken, error).",
}, []string{"outcome"})

func init() {
	prometheus.MustRegister(bookingsTotal)
}

// Notifier receives appointments after they are committed. Dispatch must not
// block.
type Notifier interface {
	Dispatch(a domain.Appointment)
}

// BookingInput is the raw booking request. Hour is kept as text so the
// service owns its parsing and range check.
type BookingInput struct {
	Name    string
	Contact string
	Date    string
	Hour    string
}

// Slots is the availability answer for one date.
type Slots struct {
	Date string `json:"date"`
	availability.Result
}

// BookingService implements the appointment use cases.
type BookingService struct {
	DB        *gorm.DB
	Rules     calendar.Rules
	Clock     calendar.Clock
	Publisher events.Publisher
	Notifier  Notifier

	// IdempotencyTTL bounds how long a booking can be replayed by key.
	IdempotencyTTL time.Duration

	// RejectPast makes Book refuse hours that have already started. When
	// false, the past only affects the slot grid.
	RejectPast bool
}

// NewBookingService wires a service with the system clock. pub and n may be
// nil, in which case publishing or notifying is skipped.
func NewBookingService(db *gorm.DB, rules calendar.Rules, pub events.Publisher, n Notifier) *BookingService {
	return &BookingService{
		DB:             db,
		Rules:          rules,
		Clock:          calendar.SystemClock{},
		Publisher:      pub,
		Notifier:       n,
		IdempotencyTTL: 24 * time.Hour,
	}
}

func (s *BookingService) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s *BookingService) publish(ev events.Event) {
	if s.Publisher != nil {
		s.Publisher.Publish(ev)
	}
}

func tracer() trace.Tracer { return otel.Tracer("services/BookingService") }

// Slots resolves the bookable hours of date.
func (s *BookingService) Slots(ctx context.Context, date string) (*Slots, error) {
	ctx, span := tracer().Start(ctx, "Slots", trace.WithAttributes(attribute.String("appointment.date", date)))
	defer span.End()

	d, err := calendar.ParseDate(date)
	if err != nil {
		return nil, invalid(ErrInvalidDate)
	}
	now := s.now()
	if !s.Rules.IsBusinessDay(d) {
		return &Slots{Date: date, Result: availability.Resolve(s.Rules, d, nil, now)}, nil
	}
	hours, err := repo.ConfirmedHours(ctx, s.DB, date)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &Slots{Date: date, Result: availability.Resolve(s.Rules, d, hours, now)}, nil
}

// Book validates in and inserts a confirmed appointment. Validation failures
// match ErrValidation; an occupied slot yields ErrSlotTaken.
func (s *BookingService) Book(ctx context.Context, in BookingInput) (*domain.Appointment, error) {
	ctx, span := tracer().Start(ctx, "Book",
		trace.WithAttributes(
			attribute.String("appointment.date", in.Date),
			attribute.String("appointment.hour", in.Hour),
		),
	)
	defer span.End()

	name, contact, date, hour, err := s.validate(in)
	if err != nil {
		bookingsTotal.WithLabelValues("invalid").Inc()
		span.SetAttributes(attribute.String("booking.outcome", "invalid"))
		return nil, err
	}

	a, err := repo.CreateAppointment(ctx, s.DB, name, contact, date, hour)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			bookingsTotal.WithLabelValues("slot_taken").Inc()
			span.SetAttributes(attribute.String("booking.outcome", "slot_taken"))
			return nil, ErrSlotTaken
		}
		bookingsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return nil, err
	}

	bookingsTotal.WithLabelValues("booked").Inc()
	span.SetAttributes(attribute.String("booking.outcome", "booked"), attribute.Int64("appointment.id", int64(a.ID)))

	s.publish(events.NewAppointment(*a))
	if s.Notifier != nil {
		s.Notifier.Dispatch(*a)
	}
	return a, nil
}

// validate applies the booking checks in order; the first failure wins.
func (s *BookingService) validate(in BookingInput) (name, contact, date string, hour int, err error) {
	name = strings.TrimSpace(in.Name)
	rawContact := strings.TrimSpace(in.Contact)
	date = strings.TrimSpace(in.Date)
	rawHour := strings.TrimSpace(in.Hour)
	if name == "" || rawContact == "" || date == "" || rawHour == "" {
		return "", "", "", 0, invalid(ErrMissingFields)
	}

	d, perr := calendar.ParseDate(date)
	if perr != nil {
		return "", "", "", 0, invalid(ErrInvalidDate)
	}
	if !s.Rules.IsBusinessDay(d) {
		return "", "", "", 0, invalid(ErrClosedDay)
	}

	hour, perr = strconv.Atoi(rawHour)
	if perr != nil || !calendar.ValidHour(hour) {
		return "", "", "", 0, invalid(ErrHourOutOfRange)
	}

	contact = digitsOnly(rawContact)
	if contact == "" || len(contact) > maxContactDigit {
		return "", "", "", 0, invalid(ErrInvalidContact)
	}

	name = normalizeName(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameRunes {
		return "", "", "", 0, invalid(ErrInvalidName)
	}

	if s.RejectPast && s.Rules.IsPast(d, hour, s.now()) {
		return "", "", "", 0, invalid(ErrSlotInPast)
	}
	return name, contact, date, hour, nil
}

// normalizeName collapses whitespace and composes accents (NFC) so the same
// name typed on different keyboards is stored identically. Casing is kept.
func normalizeName(n string) string {
	return norm.NFC.String(strings.Join(strings.Fields(n), " "))
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// UpdateStatus moves an appointment to status. Any transition between the
// three statuses is allowed. Restoring onto a slot that was rebooked yields
// ErrSlotTaken.
func (s *BookingService) UpdateStatus(ctx context.Context, id uint64, status string) (*domain.Appointment, error) {
	ctx, span := tracer().Start(ctx, "UpdateStatus",
		trace.WithAttributes(attribute.Int64("appointment.id", int64(id)), attribute.String("appointment.status", status)),
	)
	defer span.End()

	st := domain.Status(strings.ToLower(strings.TrimSpace(status)))
	if !st.Valid() {
		return nil, invalid(ErrInvalidStatus)
	}
	a, err := repo.UpdateAppointmentStatus(ctx, s.DB, id, st)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return nil, ErrAppointmentNotFound
	case errors.Is(err, repo.ErrDuplicate):
		return nil, ErrSlotTaken
	case err != nil:
		span.RecordError(err)
		return nil, err
	}
	s.publish(events.StatusChanged(*a))
	return a, nil
}

// Delete removes an appointment permanently and frees its slot.
func (s *BookingService) Delete(ctx context.Context, id uint64) error {
	ctx, span := tracer().Start(ctx, "Delete", trace.WithAttributes(attribute.Int64("appointment.id", int64(id))))
	defer span.End()

	if err := repo.DeleteAppointment(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrAppointmentNotFound
		}
		span.RecordError(err)
		return err
	}
	s.publish(events.Deleted(id))
	return nil
}

// Get returns one appointment.
func (s *BookingService) Get(ctx context.Context, id uint64) (*domain.Appointment, error) {
	a, err := repo.GetAppointment(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrAppointmentNotFound
	}
	return a, err
}

// ListRange returns confirmed appointments with from <= date <= to. Either
// bound may be empty.
func (s *BookingService) ListRange(ctx context.Context, from, to string) ([]domain.Appointment, error) {
	ctx, span := tracer().Start(ctx, "ListRange",
		trace.WithAttributes(attribute.String("range.from", from), attribute.String("range.to", to)),
	)
	defer span.End()

	for _, b := range []string{from, to} {
		if b == "" {
			continue
		}
		if _, err := calendar.ParseDate(b); err != nil {
			return nil, invalid(ErrInvalidRange)
		}
	}
	if from != "" && to != "" && from > to {
		return nil, invalid(ErrInvalidRange)
	}
	return repo.ListConfirmedInRange(ctx, s.DB, from, to)
}

// ListAll returns every appointment for the operator view.
func (s *BookingService) ListAll(ctx context.Context) ([]domain.Appointment, error) {
	ctx, span := tracer().Start(ctx, "ListAll")
	defer span.End()
	return repo.ListAppointments(ctx, s.DB)
}

// Stats returns the dashboard counters, with "today" taken in the business
// timezone.
func (s *BookingService) Stats(ctx context.Context) (domain.Counts, error) {
	ctx, span := tracer().Start(ctx, "Stats")
	defer span.End()
	return repo.AppointmentCounts(ctx, s.DB, s.Rules.Today(s.now()))
}

// Export renders every appointment as an XLSX workbook and suggests a file
// name stamped with the business date.
func (s *BookingService) Export(ctx context.Context) (*bytes.Buffer, string, error) {
	ctx, span := tracer().Start(ctx, "Export")
	defer span.End()

	items, err := repo.ListAppointments(ctx, s.DB)
	if err != nil {
		span.RecordError(err)
		return nil, "", err
	}
	buf, err := export.Appointments(items, s.Rules.Location)
	if err != nil {
		span.RecordError(err)
		return nil, "", err
	}
	span.SetAttributes(attribute.Int("export.rows", len(items)))
	return buf, export.Filename(s.Rules.Today(s.now())), nil
}

// Replay returns the appointment previously booked by (clientKey, key), if
// the record is still within its TTL.
func (s *BookingService) Replay(ctx context.Context, clientKey, key string) (*domain.Appointment, bool) {
	rec, err := repo.GetIdempotency(ctx, s.DB, clientKey, IdempotencyScope, key, time.Now().UTC())
	if err != nil || rec == nil {
		return nil, false
	}
	a, err := repo.GetAppointment(ctx, s.DB, rec.AppointmentID)
	if err != nil {
		return nil, false
	}
	return a, true
}

// Remember records a successful booking under (clientKey, key). Best effort.
func (s *BookingService) Remember(ctx context.Context, clientKey, key string, appointmentID uint64, status int) {
	ttl := s.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	_, _ = repo.CreateIdempotency(ctx, s.DB, clientKey, IdempotencyScope, key, appointmentID, status, ttl)
}
