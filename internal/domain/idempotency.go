package domain

import "time"

// Idempotency records the outcome of a previously processed booking request,
// keyed by (client, scope, key). A retry carrying the same Idempotency-Key is
// answered with the stored appointment instead of attempting a second insert.
type Idempotency struct {
	ID            string    `gorm:"type:varchar(36);primaryKey"`
	ClientKey     string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_idem_client_scope_key,priority:1"`
	Scope         string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_idem_client_scope_key,priority:2"`
	Key           string    `gorm:"column:idem_key;type:varchar(200);not null;uniqueIndex:ux_idem_client_scope_key,priority:3"`
	AppointmentID uint64    `gorm:"not null"`
	Status        int       `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt     time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
