// Package repo implements the reservation store on top of GORM.
//
// All functions are context-aware and accept a *gorm.DB handle, so they can be
// used inside transactions. They follow the "thin repository" approach: no
// business rules, only persistence and query composition.
//
// Error semantics:
//   - Missing rows yield ErrNotFound (alias of gorm.ErrRecordNotFound).
//   - A second confirmed appointment on an occupied (date, hour) yields
//     ErrDuplicate. The check is the unique index on slot_key, evaluated by
//     the database inside the INSERT/UPDATE itself, never a read-then-write.
//   - Any other DB failure is propagated unchanged.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/turnos-backend/internal/domain"
)

// CreateAppointment inserts a confirmed appointment for (date, hour).
func CreateAppointment(ctx context.Context, db *gorm.DB, name, contact, date string, hour int) (*domain.Appointment, error) {
	a := &domain.Appointment{
		Name:            name,
		Contact:         contact,
		AppointmentDate: date,
		AppointmentHour: hour,
		Status:          domain.StatusConfirmed,
		CreatedAt:       time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return a, nil
}

// GetAppointment fetches one appointment by id.
func GetAppointment(ctx context.Context, db *gorm.DB, id uint64) (*domain.Appointment, error) {
	var a domain.Appointment
	if err := db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateAppointmentStatus sets the status of an appointment and keeps its
// slot occupancy in sync. Restoring a cancelled appointment whose slot has
// been taken meanwhile fails with ErrDuplicate.
func UpdateAppointmentStatus(ctx context.Context, db *gorm.DB, id uint64, status domain.Status) (*domain.Appointment, error) {
	var out domain.Appointment
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&out, id).Error; err != nil {
			return err
		}
		res := tx.Model(&domain.Appointment{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"status":   status,
				"slot_key": domain.SlotKeyFor(status, out.AppointmentDate, out.AppointmentHour),
			})
		if err := res.Error; err != nil {
			return err
		}
		return tx.First(&out, id).Error
	})
	if err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return &out, nil
}

// DeleteAppointment removes an appointment permanently, freeing its slot.
func DeleteAppointment(ctx context.Context, db *gorm.DB, id uint64) error {
	res := db.WithContext(ctx).Delete(&domain.Appointment{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListConfirmedInRange returns confirmed appointments with from <= date <= to,
// ordered by (date, hour). An empty bound is open.
func ListConfirmedInRange(ctx context.Context, db *gorm.DB, from, to string) ([]domain.Appointment, error) {
	q := db.WithContext(ctx).Where("status = ?", domain.StatusConfirmed)
	if from != "" {
		q = q.Where("appointment_date >= ?", from)
	}
	if to != "" {
		q = q.Where("appointment_date <= ?", to)
	}
	out := []domain.Appointment{}
	err := q.Order("appointment_date asc").Order("appointment_hour asc").Find(&out).Error
	return out, err
}

// ListAppointments returns every appointment regardless of status, ordered
// by (date, hour, id).
func ListAppointments(ctx context.Context, db *gorm.DB) ([]domain.Appointment, error) {
	out := []domain.Appointment{}
	err := db.WithContext(ctx).
		Order("appointment_date asc").
		Order("appointment_hour asc").
		Order("id asc").
		Find(&out).Error
	return out, err
}

// ConfirmedHours returns the hours of date held by confirmed appointments.
func ConfirmedHours(ctx context.Context, db *gorm.DB, date string) ([]int, error) {
	hours := []int{}
	err := db.WithContext(ctx).
		Model(&domain.Appointment{}).
		Where("appointment_date = ? AND status = ?", date, domain.StatusConfirmed).
		Order("appointment_hour asc").
		Pluck("appointment_hour", &hours).Error
	return hours, err
}

// AppointmentCounts computes the dashboard counters. today is the business
// civil date, supplied by the caller so the DB session timezone never matters.
func AppointmentCounts(ctx context.Context, db *gorm.DB, today string) (domain.Counts, error) {
	var c domain.Counts
	if today == "" {
		return c, errors.New("today must not be empty")
	}
	err := db.WithContext(ctx).Raw(`
		SELECT
			COUNT(CASE WHEN status = ? AND appointment_date = ? THEN 1 END) AS today_confirmed,
			COUNT(CASE WHEN status = ? AND appointment_date > ? THEN 1 END) AS upcoming,
			COUNT(CASE WHEN status = ? THEN 1 END) AS total_completed
		FROM appointments`,
		domain.StatusConfirmed, today,
		domain.StatusConfirmed, today,
		domain.StatusCompleted,
	).Scan(&c).Error
	return c, err
}
