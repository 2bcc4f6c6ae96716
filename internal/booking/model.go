package booking

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusBooked    AppointmentStatus = "booked"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

type AppointmentType string

const (
	TypeOnline   AppointmentType = "Online"
	TypeInPerson AppointmentType = "In-Person"
)

func ValidType(t AppointmentType) bool {
	return t == TypeOnline || t == TypeInPerson
}

type DoctorProfile struct {
	ID              uuid.UUID
	Name            string
	Specialty       string
	ConsultationFee int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type PatientProfile struct {
	ID          uuid.UUID
	DisplayName string
	Email       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AvailabilitySlot is a doctor-published unit of bookable time. StartAt is
// the absolute start instant; StartTime/EndTime carry the "HH:mm" labels
// shown on booking calendars. IsBooked is true exactly when
// BookedByPatientID is set.
type AvailabilitySlot struct {
	ID               uuid.UUID
	DoctorID         uuid.UUID
	StartAt          time.Time
	StartTime        string
	EndTime          string
	IsBooked         bool
	BookedByPatientID *uuid.UUID
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Appointment links one patient, one doctor and (usually) one slot.
// PatientName and PatientEmail are snapshots taken at booking time and are
// never re-synced when the profile changes.
type Appointment struct {
	ID                 uuid.UUID
	PatientID          uuid.UUID
	DoctorID           uuid.UUID
	AvailabilitySlotID *uuid.UUID
	AppointmentAt      time.Time
	Type               AppointmentType
	Status             AppointmentStatus
	ReasonForVisit     string
	PatientName        string
	PatientEmail       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type BookingEvent struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
