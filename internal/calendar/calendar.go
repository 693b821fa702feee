// Package calendar holds the business calendar: which days open, which hours
// are bookable, and whether a slot already lies in the past. Everything here is
// pure; the current instant is always passed in (see Clock).
package calendar

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

const (
	// OpenHour is the first bookable hour.
	OpenHour = 8
	// CloseHour is exclusive: the last bookable hour is CloseHour-1.
	CloseHour = 20
	// DateLayout is the wire and storage format of civil dates.
	DateLayout = "2006-01-02"
)

// ErrInvalidDate is returned by ParseDate for anything that is not a real
// YYYY-MM-DD calendar date.
var ErrInvalidDate = errors.New("invalid date")

var dateRE = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Clock abstracts the wall clock so "now" can be injected in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns T.
type FixedClock struct{ T time.Time }

// Now implements Clock.
func (c FixedClock) Now() time.Time { return c.T }

// Rules describes one business: its timezone and weekly closure day.
type Rules struct {
	Location  *time.Location
	ClosedDay time.Weekday
}

// New returns Rules for loc with Sunday closed. A nil loc means UTC.
func New(loc *time.Location) Rules {
	if loc == nil {
		loc = time.UTC
	}
	return Rules{Location: loc, ClosedDay: time.Sunday}
}

func (r Rules) loc() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

// ParseDate parses a strict YYYY-MM-DD civil date. The result is midnight UTC
// and only its Y/M/D are meaningful.
func ParseDate(s string) (time.Time, error) {
	if !dateRE.MatchString(s) {
		return time.Time{}, ErrInvalidDate
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return d, nil
}

// IsBusinessDay reports whether date is open for bookings.
func (r Rules) IsBusinessDay(date time.Time) bool {
	return date.Weekday() != r.ClosedDay
}

// BusinessHours lists the bookable hours in ascending order.
func BusinessHours() []int {
	hours := make([]int, 0, CloseHour-OpenHour)
	for h := OpenHour; h < CloseHour; h++ {
		hours = append(hours, h)
	}
	return hours
}

// ValidHour reports whether h is a bookable hour.
func ValidHour(h int) bool { return h >= OpenHour && h < CloseHour }

// Label renders an hour as "HH:00".
func Label(hour int) string { return fmt.Sprintf("%02d:00", hour) }

// Today returns the business-local civil date of now.
func (r Rules) Today(now time.Time) string {
	return now.In(r.loc()).Format(DateLayout)
}

// IsPast reports whether (date, hour) can no longer be booked at now. now is
// normalized to the business timezone first; on the current day an hour
// counts as past once the clock has reached it (hour <= current hour).
func (r Rules) IsPast(date time.Time, hour int, now time.Time) bool {
	local := now.In(r.loc())
	ds := date.Format(DateLayout)
	ts := local.Format(DateLayout)
	switch {
	case ds < ts:
		return true
	case ds > ts:
		return false
	default:
		return hour <= local.Hour()
	}
}
