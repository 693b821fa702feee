// Package domain defines the persistence models and small value types of the
// booking service. Appointment is mapped with GORM and is the only durable
// business entity; slot candidates and counters are computed per request.
package domain

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Appointment is a reservation of one (date, hour) slot by a client.
//
// Fields:
//   - ID: store-assigned, strictly increasing.
//   - Name / Contact: client display name and WhatsApp number (digits only).
//   - AppointmentDate: civil date "YYYY-MM-DD" in the business timezone.
//   - AppointmentHour: integer hour in [8, 19].
//   - Status: confirmed | cancelled | completed.
//   - SlotKey: "<date>#<hour>" while confirmed, NULL otherwise. The unique
//     index on it is what guarantees one confirmed appointment per slot;
//     NULLs never collide on sqlite, postgres or mysql.
type Appointment struct {
	ID              uint64    `json:"id"               gorm:"primaryKey;autoIncrement"`
	Name            string    `json:"name"             gorm:"type:varchar(100);not null"`
	Contact         string    `json:"whatsapp"         gorm:"column:whatsapp;type:varchar(20);not null"`
	AppointmentDate string    `json:"appointment_date" gorm:"type:varchar(10);not null;index:idx_appointments_date_hour,priority:1"`
	AppointmentHour int       `json:"appointment_hour" gorm:"not null;check:chk_appointments_hour,appointment_hour BETWEEN 8 AND 19;index:idx_appointments_date_hour,priority:2"`
	Status          Status    `json:"status"           gorm:"type:varchar(16);not null;default:confirmed;index;check:chk_appointments_status,status IN ('confirmed','cancelled','completed')"`
	SlotKey         *string   `json:"-"                gorm:"type:varchar(16);uniqueIndex:ux_appointments_confirmed_slot"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName returns the database table name for Appointment.
func (Appointment) TableName() string { return "appointments" }

// BeforeCreate keeps SlotKey consistent with Status on insert.
func (a *Appointment) BeforeCreate(*gorm.DB) error {
	if a.Status == "" {
		a.Status = StatusConfirmed
	}
	a.SlotKey = SlotKeyFor(a.Status, a.AppointmentDate, a.AppointmentHour)
	return nil
}

// SlotKeyFor returns the occupancy key for a row in the given status, or nil
// when the status does not occupy its slot.
func SlotKeyFor(status Status, date string, hour int) *string {
	if status != StatusConfirmed {
		return nil
	}
	k := fmt.Sprintf("%s#%02d", date, hour)
	return &k
}

// SlotCandidate is one bookable hour of a day as shown to clients.
type SlotCandidate struct {
	Hour      int    `json:"hour"      example:"10"`
	Label     string `json:"label"     example:"10:00"`
	Available bool   `json:"available" example:"true"`
}

// Counts is the operator dashboard snapshot.
type Counts struct {
	TodayConfirmed int64 `json:"today_confirmed"`
	Upcoming       int64 `json:"upcoming"`
	TotalCompleted int64 `json:"total_completed"`
}
