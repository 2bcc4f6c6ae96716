package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotUnavailable means the slot was already booked, or vanished,
	// between selection and commit. Expected under concurrency; the caller
	// picks another time.
	ErrSlotUnavailable = errors.New("slot is no longer available")

	// ErrSlotInUse rejects deleting a slot that holds a live booking.
	ErrSlotInUse = errors.New("slot has a booking and cannot be removed")

	// ErrAppointmentFinal means the appointment already left booked status,
	// so neither cancel nor complete may apply again.
	ErrAppointmentFinal = errors.New("appointment is no longer in booked status")
)

// Repository contains all store interactions needed by the engine. The three
// mutating calls ReserveSlot, ReleaseSlot and CompleteAppointment are each a
// single atomic transaction: their writes land together or not at all.
type Repository interface {
	GetDoctorProfile(ctx context.Context, id uuid.UUID) (*DoctorProfile, error)
	GetPatientProfile(ctx context.Context, id uuid.UUID) (*PatientProfile, error)

	GetSlotByID(ctx context.Context, id uuid.UUID) (*AvailabilitySlot, error)
	CreateSlot(ctx context.Context, slot *AvailabilitySlot) error
	// DeleteOpenSlot removes a slot only while it is unbooked and owned by
	// doctorID. Returns ErrSlotInUse for booked slots, ErrSlotNotFound
	// otherwise.
	DeleteOpenSlot(ctx context.Context, id, doctorID uuid.UUID) error
	ListSlotsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]AvailabilitySlot, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error)

	// ReserveSlot marks the slot booked by appt.PatientID and inserts appt in
	// the same transaction. Fails with ErrSlotUnavailable unless the slot
	// exists with is_booked=false at commit time.
	ReserveSlot(ctx context.Context, slotID uuid.UUID, appt *Appointment) error

	// ReleaseSlot cancels the appointment and frees its slot in the same
	// transaction. Fails with ErrSlotNotFound when the slot no longer exists
	// (the appointment is left untouched), and ErrAppointmentFinal when the
	// appointment already left booked status.
	ReleaseSlot(ctx context.Context, appointmentID, slotID uuid.UUID) (*Appointment, error)

	// CompleteAppointment transitions booked -> completed without touching
	// the slot. Fails with ErrAppointmentFinal when the appointment already
	// left booked status.
	CompleteAppointment(ctx context.Context, appointmentID uuid.UUID) (*Appointment, error)

	InsertEvent(ctx context.Context, ev BookingEvent) error
}
