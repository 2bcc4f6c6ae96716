package schedule

import (
	"errors"
	"fmt"
	"time"
)

// SlotMinutes is the fixed duration of every published availability slot.
const SlotMinutes = 30

var (
	ErrInvalidDate = errors.New("invalid date format")
	ErrInvalidTime = errors.New("invalid time format")
	ErrOffCatalog  = errors.New("time is not a bookable slot")
)

// Catalog is the set of half-hour marks a doctor can publish. Mornings run
// 09:00-12:30, afternoons 14:00-17:00.
var Catalog = []string{
	"09:00", "09:30", "10:00", "10:30", "11:00", "11:30", "12:00", "12:30",
	"14:00", "14:30", "15:00", "15:30", "16:00", "16:30", "17:00",
}

func InCatalog(timeStr string) bool {
	for _, s := range Catalog {
		if s == timeStr {
			return true
		}
	}
	return false
}

func ParseDate(dateStr string, loc *time.Location) (time.Time, error) {
	date, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return date, nil
}

// SlotStart resolves a calendar date plus an "HH:mm" label to the slot's
// start instant in loc.
func SlotStart(dateStr, timeStr string, loc *time.Location) (time.Time, error) {
	if _, err := time.Parse("15:04", timeStr); err != nil {
		return time.Time{}, ErrInvalidTime
	}
	if _, err := ParseDate(dateStr, loc); err != nil {
		return time.Time{}, err
	}

	parsed, err := time.ParseInLocation("2006-01-02 15:04", dateStr+" "+timeStr, loc)
	if err != nil {
		return time.Time{}, ErrInvalidTime
	}

	return parsed, nil
}

func ParseClockToMinutes(timeStr string) (int, error) {
	tm, err := time.Parse("15:04", timeStr)
	if err != nil {
		return 0, ErrInvalidTime
	}
	return tm.Hour()*60 + tm.Minute(), nil
}

func MinutesToClock(minutes int) string {
	h := minutes / 60
	m := minutes % 60
	return fmt.Sprintf("%02d:%02d", h, m)
}

// EndTime returns the "HH:mm" label SlotMinutes after start.
func EndTime(startStr string) (string, error) {
	start, err := ParseClockToMinutes(startStr)
	if err != nil {
		return "", err
	}
	return MinutesToClock(start + SlotMinutes), nil
}

// DateKey renders the calendar date of t in loc, the grouping key for all
// by-date views.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

func IsDatePast(dateStr string, loc *time.Location, now time.Time) (bool, error) {
	date, err := ParseDate(dateStr, loc)
	if err != nil {
		return false, err
	}
	n := now.In(loc)
	startToday := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
	return date.Before(startToday), nil
}
