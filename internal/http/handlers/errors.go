// Package handlers defines the stable error codes returned in the API error
// envelope. Clients branch on the code; the message is for display only.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "slot_taken",
//	  "message": "that slot was just booked, pick another one"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	// Booking:
	ErrCodeValidation = "validation_failed"
	ErrCodeSlotTaken  = "slot_taken"
	ErrCodeExport     = "export_failed"
)
