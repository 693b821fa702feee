// Appointment HTTP handlers.
//
//   - GET    /appointments/slots/{date}  (public slot grid)
//   - POST   /appointments               (book a slot, Idempotency-Key aware)
//   - GET    /appointments               (public calendar, confirmed only)
//   - GET    /appointments/all           (operator)
//   - GET    /appointments/stats         (operator)
//   - GET    /appointments/export        (operator, XLSX)
//   - PATCH  /appointments/{id}/status   (operator)
//   - DELETE /appointments/{id}          (operator)
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/turnos-backend/internal/domain"
	"github.com/tbourn/turnos-backend/internal/export"
	"github.com/tbourn/turnos-backend/internal/http/middleware"
	"github.com/tbourn/turnos-backend/internal/services"
)

//
// DTOs
//

// flexString accepts a JSON string or number. Booking forms send the hour
// either way.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// CreateAppointmentRequest is the booking form payload.
type CreateAppointmentRequest struct {
	Name            string     `json:"name"             example:"Ana Pérez"`
	WhatsApp        string     `json:"whatsapp"         example:"+54 9 11 2233-4455"`
	AppointmentDate string     `json:"appointment_date" example:"2025-03-10"`
	AppointmentHour flexString `json:"appointment_hour" swaggertype:"integer" example:"10"`
}

// UpdateStatusRequest changes an appointment's lifecycle state.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required" example:"cancelled" enums:"confirmed,cancelled,completed"`
}

// PublicAppointment is the calendar view of a booking; it never carries the
// client's WhatsApp number.
type PublicAppointment struct {
	ID              uint64        `json:"id"               example:"42"`
	Name            string        `json:"name"             example:"Ana Pérez"`
	AppointmentDate string        `json:"appointment_date" example:"2025-03-10"`
	AppointmentHour int           `json:"appointment_hour" example:"10"`
	Status          domain.Status `json:"status"           example:"confirmed"`
}

// ListPublicResponse wraps the public calendar.
type ListPublicResponse struct {
	Appointments []PublicAppointment `json:"appointments"`
}

// ListAllResponse wraps the operator listing.
type ListAllResponse struct {
	Appointments []domain.Appointment `json:"appointments"`
}

func toPublic(items []domain.Appointment) []PublicAppointment {
	out := make([]PublicAppointment, 0, len(items))
	for _, a := range items {
		out = append(out, PublicAppointment{
			ID:              a.ID,
			Name:            a.Name,
			AppointmentDate: a.AppointmentDate,
			AppointmentHour: a.AppointmentHour,
			Status:          a.Status,
		})
	}
	return out
}

// bookingFail maps service errors onto the envelope. Store errors never leak
// their text.
func bookingFail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, services.ErrSlotTaken):
		fail(c, http.StatusConflict, ErrCodeSlotTaken, "that slot was just booked, pick another one")
	case errors.Is(err, services.ErrAppointmentNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "appointment not found")
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}

func parseID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

//
// Handlers
//

// GetSlots godoc
// @ID          getSlots
// @Summary     Slot grid for a date
// @Description Lists the bookable hours of a date. Closed days return closed=true and no slots;
// @Description hours already past in the business timezone are omitted.
// @Tags        Appointments
// @Produce     json
// @Param       date  path  string  true  "Civil date (YYYY-MM-DD)"  example(2025-03-10)
// @Success     200  {object}  services.Slots
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed date"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /appointments/slots/{date} [get]
func (h *Handlers) GetSlots(c *gin.Context) {
	res, err := h.booking.Slots(c.Request.Context(), c.Param("date"))
	if err != nil {
		bookingFail(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// CreateAppointment godoc
// @ID          createAppointment
// @Summary     Book a slot
// @Description Validates the booking and reserves the slot atomically. A concurrent booking of the
// @Description same slot yields 409 slot_taken. Retries with the same Idempotency-Key return the
// @Description original appointment with Idempotency-Replayed: true.
// @Tags        Appointments
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string                              false  "Key for safe retries"
// @Param       body             body    handlers.CreateAppointmentRequest  true   "Booking"
// @Success     201  {object}  domain.Appointment
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     409  {object}  handlers.ErrorResponse  "Slot taken"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /appointments [post]
func (h *Handlers) CreateAppointment(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	clientKey := middleware.ClientKey(c)
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" {
		if prev, found := h.booking.Replay(ctx, clientKey, idemKey); found {
			c.Header(middleware.HeaderIdempotencyReplayed, "true")
			ok(c, http.StatusCreated, prev)
			return
		}
	}

	a, err := h.booking.Book(ctx, services.BookingInput{
		Name:    req.Name,
		Contact: req.WhatsApp,
		Date:    req.AppointmentDate,
		Hour:    string(req.AppointmentHour),
	})
	if err != nil {
		bookingFail(c, err)
		return
	}

	if idemKey != "" {
		h.booking.Remember(ctx, clientKey, idemKey, a.ID, http.StatusCreated)
	}
	ok(c, http.StatusCreated, a)
}

// ListAppointments godoc
// @ID          listAppointments
// @Summary     Public calendar
// @Description Confirmed appointments between from and to (inclusive), ordered by date and hour.
// @Description Either bound may be omitted. Contact numbers are never included.
// @Tags        Appointments
// @Produce     json
// @Param       from  query  string  false  "First date (YYYY-MM-DD)"
// @Param       to    query  string  false  "Last date (YYYY-MM-DD)"
// @Success     200  {object}  handlers.ListPublicResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad range"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /appointments [get]
func (h *Handlers) ListAppointments(c *gin.Context) {
	items, err := h.booking.ListRange(c.Request.Context(), c.Query("from"), c.Query("to"))
	if err != nil {
		bookingFail(c, err)
		return
	}
	ok(c, http.StatusOK, ListPublicResponse{Appointments: toPublic(items)})
}

// ListAllAppointments godoc
// @ID          listAllAppointments
// @Summary     All appointments (operator)
// @Tags        Operator
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.ListAllResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /appointments/all [get]
func (h *Handlers) ListAllAppointments(c *gin.Context) {
	items, err := h.booking.ListAll(c.Request.Context())
	if err != nil {
		bookingFail(c, err)
		return
	}
	if items == nil {
		items = []domain.Appointment{}
	}
	ok(c, http.StatusOK, ListAllResponse{Appointments: items})
}

// GetStats godoc
// @ID          getStats
// @Summary     Dashboard counters (operator)
// @Tags        Operator
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.Counts
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /appointments/stats [get]
func (h *Handlers) GetStats(c *gin.Context) {
	counts, err := h.booking.Stats(c.Request.Context())
	if err != nil {
		bookingFail(c, err)
		return
	}
	ok(c, http.StatusOK, counts)
}

// ExportAppointments godoc
// @ID          exportAppointments
// @Summary     Download all appointments as XLSX (operator)
// @Tags        Operator
// @Produce     application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security    BearerAuth
// @Success     200  {file}    file
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /appointments/export [get]
func (h *Handlers) ExportAppointments(c *gin.Context) {
	buf, name, err := h.booking.Export(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeExport, "could not build export")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}

// UpdateAppointmentStatus godoc
// @ID          updateAppointmentStatus
// @Summary     Change an appointment's status (operator)
// @Description Any status may move to any other. Cancelling or completing frees the slot;
// @Description restoring to confirmed fails with 409 when the slot was re-booked meanwhile.
// @Tags        Operator
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  int                             true  "Appointment ID"
// @Param       body  body  handlers.UpdateStatusRequest  true  "New status"
// @Success     200  {object}  domain.Appointment
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid status"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Slot taken"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /appointments/{id}/status [patch]
func (h *Handlers) UpdateAppointmentStatus(c *gin.Context) {
	id, good := parseID(c)
	if !good {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}
	a, err := h.booking.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		bookingFail(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

// DeleteAppointment godoc
// @ID          deleteAppointment
// @Summary     Delete an appointment (operator)
// @Tags        Operator
// @Security    BearerAuth
// @Param       id  path  int  true  "Appointment ID"
// @Success     204  "Deleted"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad id"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /appointments/{id} [delete]
func (h *Handlers) DeleteAppointment(c *gin.Context) {
	id, good := parseID(c)
	if !good {
		return
	}
	if err := h.booking.Delete(c.Request.Context(), id); err != nil {
		bookingFail(c, err)
		return
	}
	noContent(c)
}
