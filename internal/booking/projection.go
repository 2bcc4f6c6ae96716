package booking

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/medibook/booking-backend/internal/schedule"
)

// Read projections are recomputed from store state on every read; nothing
// here is cached or incrementally maintained. Each function takes the
// evaluation instant explicitly so results are a pure function of
// (records, now).

// UpcomingAppointments keeps booked appointments at or after now, soonest
// first.
func UpcomingAppointments(appts []Appointment, now time.Time) []Appointment {
	var result []Appointment
	for _, a := range appts {
		if a.Status == StatusBooked && !a.AppointmentAt.Before(now) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AppointmentAt.Before(result[j].AppointmentAt)
	})
	return result
}

// HistoryAppointments is the complement of UpcomingAppointments: everything
// cancelled, completed, or in the past, newest first.
func HistoryAppointments(appts []Appointment, now time.Time) []Appointment {
	var result []Appointment
	for _, a := range appts {
		if a.Status != StatusBooked || a.AppointmentAt.Before(now) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AppointmentAt.After(result[j].AppointmentAt)
	})
	return result
}

// GroupAppointmentsByDate partitions appointments by calendar date in loc.
// Within a day, entries run in start order.
func GroupAppointmentsByDate(appts []Appointment, loc *time.Location) map[string][]Appointment {
	sorted := make([]Appointment, len(appts))
	copy(sorted, appts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].AppointmentAt.Before(sorted[j].AppointmentAt)
	})

	groups := make(map[string][]Appointment)
	for _, a := range sorted {
		key := schedule.DateKey(a.AppointmentAt, loc)
		groups[key] = append(groups[key], a)
	}
	return groups
}

// GroupSlotsByDate partitions slots by calendar date in loc, start order
// within a day.
func GroupSlotsByDate(slots []AvailabilitySlot, loc *time.Location) map[string][]AvailabilitySlot {
	sorted := make([]AvailabilitySlot, len(slots))
	copy(sorted, slots)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].StartAt.Equal(sorted[j].StartAt) {
			return sorted[i].StartTime < sorted[j].StartTime
		}
		return sorted[i].StartAt.Before(sorted[j].StartAt)
	})

	groups := make(map[string][]AvailabilitySlot)
	for _, s := range sorted {
		key := schedule.DateKey(s.StartAt, loc)
		groups[key] = append(groups[key], s)
	}
	return groups
}

// OpenSlots keeps unbooked future slots, sorted by start instant then label.
// This drives the patient-side booking calendar.
func OpenSlots(slots []AvailabilitySlot, now time.Time) []AvailabilitySlot {
	var result []AvailabilitySlot
	for _, s := range slots {
		if !s.IsBooked && s.StartAt.After(now) {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartAt.Equal(result[j].StartAt) {
			return result[i].StartTime < result[j].StartTime
		}
		return result[i].StartAt.Before(result[j].StartAt)
	})
	return result
}

// RosterEntry is one distinct patient appearing in a doctor's appointments.
// FirstSeen is the earliest appointment instant with that patient; the
// name/email come from the booking-time snapshot of that earliest record.
type RosterEntry struct {
	PatientID uuid.UUID
	Name      string
	Email     string
	FirstSeen time.Time
}

// Roster derives the doctor-side patient list by scanning the full
// appointment set; it is never maintained incrementally.
func Roster(appts []Appointment) []RosterEntry {
	byPatient := make(map[uuid.UUID]RosterEntry)
	for _, a := range appts {
		existing, ok := byPatient[a.PatientID]
		if !ok || a.AppointmentAt.Before(existing.FirstSeen) {
			byPatient[a.PatientID] = RosterEntry{
				PatientID: a.PatientID,
				Name:      a.PatientName,
				Email:     a.PatientEmail,
				FirstSeen: a.AppointmentAt,
			}
		}
	}

	result := make([]RosterEntry, 0, len(byPatient))
	for _, e := range byPatient {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}
