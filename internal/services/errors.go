// Package services defines the business logic of the booking service. This
// file centralizes the service-level error values so callers can branch on
// them with errors.Is; translation into HTTP status codes happens in the
// handler layer.
package services

import "errors"

// ErrValidation is matched by every input-validation failure.
var ErrValidation = errors.New("validation failed")

// ValidationError is a specific input rejection. errors.Is matches both
// ErrValidation and the specific sentinel it wraps.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }

// Unwrap exposes the specific sentinel.
func (e *ValidationError) Unwrap() error { return e.Err }

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(err error) error { return &ValidationError{Err: err} }

// Booking validation failures, in the order they are checked.
var (
	// ErrMissingFields is returned when name, contact, date or hour is absent.
	ErrMissingFields = errors.New("name, whatsapp, date and hour are required")

	// ErrInvalidDate is returned for anything that is not a real YYYY-MM-DD date.
	ErrInvalidDate = errors.New("date must be a valid YYYY-MM-DD calendar date")

	// ErrClosedDay is returned when the date falls on the weekly closure day.
	ErrClosedDay = errors.New("the business is closed on that day")

	// ErrHourOutOfRange is returned when the hour is not an integer in [8, 20).
	ErrHourOutOfRange = errors.New("hour must be an integer between 8 and 19")

	// ErrInvalidContact is returned when the contact has no digits or too many.
	ErrInvalidContact = errors.New("whatsapp must contain between 1 and 20 digits")

	// ErrInvalidName is returned when the normalized name is empty or too long.
	ErrInvalidName = errors.New("name must be between 1 and 100 characters")

	// ErrSlotInPast is returned when booking an hour that has already started.
	ErrSlotInPast = errors.New("that slot is in the past")

	// ErrInvalidStatus is returned for a status outside confirmed|cancelled|completed.
	ErrInvalidStatus = errors.New("status must be one of: confirmed, cancelled, completed")

	// ErrInvalidRange is returned when a list range bound is malformed or inverted.
	ErrInvalidRange = errors.New("from/to must be YYYY-MM-DD with from <= to")
)

// Store and auth outcomes.
var (
	// ErrSlotTaken indicates the (date, hour) already holds a confirmed appointment.
	ErrSlotTaken = errors.New("slot already taken")

	// ErrAppointmentNotFound indicates the appointment id does not exist.
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrInvalidCredentials is returned by Login for a wrong username or password.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrInvalidToken is returned for a malformed, expired or foreign token.
	ErrInvalidToken = errors.New("invalid or expired token")
)
