// Package availability resolves which hours of a day can still be booked.
package availability

import (
	"time"

	"github.com/tbourn/turnos-backend/internal/calendar"
	"github.com/tbourn/turnos-backend/internal/domain"
)

// Result is the slot list for one date. Slots is never nil.
type Result struct {
	Closed bool                   `json:"closed"`
	Slots  []domain.SlotCandidate `json:"slots"`
}

// Resolve computes the day's candidates from the hours already taken by
// confirmed appointments. Closed days yield no slots; hours already past at
// now are omitted; the rest are listed ascending with Available set when the
// hour is free. Duplicate entries in confirmedHours are harmless.
func Resolve(rules calendar.Rules, date time.Time, confirmedHours []int, now time.Time) Result {
	if !rules.IsBusinessDay(date) {
		return Result{Closed: true, Slots: []domain.SlotCandidate{}}
	}

	taken := make(map[int]struct{}, len(confirmedHours))
	for _, h := range confirmedHours {
		taken[h] = struct{}{}
	}

	hours := calendar.BusinessHours()
	slots := make([]domain.SlotCandidate, 0, len(hours))
	for _, h := range hours {
		if rules.IsPast(date, h, now) {
			continue
		}
		_, busy := taken[h]
		slots = append(slots, domain.SlotCandidate{
			Hour:      h,
			Label:     calendar.Label(h),
			Available: !busy,
		})
	}
	return Result{Slots: slots}
}
