package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/medibook/booking-backend/internal/redis"
	"github.com/medibook/booking-backend/internal/schedule"
)

const (
	EventBookingConfirmed     = "BOOKING_CONFIRMED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
)

var (
	// ErrValidation covers bad input caught before any transaction starts.
	ErrValidation = errors.New("validation error")

	// ErrMissingSlotReference means a cancellation has no slot to release.
	ErrMissingSlotReference = errors.New("appointment has no availability slot reference")

	// ErrAppointmentUpcoming rejects completing an appointment whose time
	// has not passed yet.
	ErrAppointmentUpcoming = errors.New("appointment has not taken place yet")

	// ErrPartialPublish reports that only part of an availability batch was
	// written. Created slots stay; there is no rollback.
	ErrPartialPublish = errors.New("some availability slots could not be published")
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	tz     *time.Location
	now    func() time.Time
	log    zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, tz *time.Location, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		tz:     tz,
		now:    time.Now,
		log:    log,
	}
}

// WithClock swaps the wall-clock source. Tests use this to evaluate
// time-dependent behavior deterministically.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// BookingRequest carries everything the reserve operation needs. The
// patient's display fields are resolved from the profile store and copied
// onto the appointment as a booking-time snapshot.
type BookingRequest struct {
	PatientID      uuid.UUID
	SlotID         uuid.UUID
	ReasonForVisit string
	Type           AppointmentType
}

// ConfirmBooking reserves the slot and creates the appointment atomically.
// It is the single entry point the payment gate calls after a successful
// charge. Two concurrent calls for the same slot: exactly one commits, the
// other gets ErrSlotUnavailable and leaves no appointment behind.
func (s *Service) ConfirmBooking(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if req.ReasonForVisit == "" {
		return nil, fmt.Errorf("%w: reason for visit is required", ErrValidation)
	}
	if !ValidType(req.Type) {
		return nil, fmt.Errorf("%w: unknown appointment type %q", ErrValidation, req.Type)
	}

	patient, err := s.repo.GetPatientProfile(ctx, req.PatientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	slot, err := s.repo.GetSlotByID(ctx, req.SlotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			// A vanished slot reads the same as a taken one to the patient.
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if slot.IsBooked {
		return nil, ErrSlotUnavailable
	}

	slotID := req.SlotID
	appt := &Appointment{
		ID:                 uuid.New(),
		PatientID:          req.PatientID,
		DoctorID:           slot.DoctorID,
		AvailabilitySlotID: &slotID,
		AppointmentAt:      slot.StartAt,
		Type:               req.Type,
		Status:             StatusBooked,
		ReasonForVisit:     req.ReasonForVisit,
		PatientName:        patient.DisplayName,
		PatientEmail:       patient.Email,
	}

	err = s.locker.WithSlotLock(ctx, req.SlotID, func(lockCtx context.Context) error {
		return s.repo.ReserveSlot(lockCtx, req.SlotID, appt)
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			// Someone else is mid-reserve on this slot; to the caller that is
			// the same lost race as a committed booking.
			return nil, ErrSlotUnavailable
		}
		if errors.Is(err, ErrSlotUnavailable) {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("reserve slot: %w", err)
	}

	s.logEvent(ctx, appt.ID, EventBookingConfirmed, map[string]any{
		"slot_id":    req.SlotID.String(),
		"patient_id": req.PatientID.String(),
		"doctor_id":  slot.DoctorID.String(),
	})
	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("slot_id", req.SlotID.String()).
		Msg("booking confirmed")

	return appt, nil
}

// CancelAppointment releases a booked appointment and frees its slot. The
// repository re-checks the appointment's status inside the transaction, so a
// concurrent cancel or complete loses cleanly with ErrAppointmentFinal.
// When the slot has been independently deleted the whole cancellation
// aborts and the appointment stays booked.
func (s *Service) CancelAppointment(ctx context.Context, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusBooked {
		return nil, ErrAppointmentFinal
	}
	if appt.AvailabilitySlotID == nil {
		return nil, ErrMissingSlotReference
	}

	cancelled, err := s.repo.ReleaseSlot(ctx, appointmentID, *appt.AvailabilitySlotID)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, cancelled.ID, EventAppointmentCancelled, map[string]any{
		"slot_id": appt.AvailabilitySlotID.String(),
	})
	s.log.Info().
		Str("appointment_id", cancelled.ID.String()).
		Msg("appointment cancelled")

	return cancelled, nil
}

// CompleteAppointment marks a past booked appointment as concluded. The slot
// keeps its booked state permanently; only cancellation frees slots.
func (s *Service) CompleteAppointment(ctx context.Context, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusBooked {
		return nil, ErrAppointmentFinal
	}
	if !appt.AppointmentAt.Before(s.now()) {
		return nil, ErrAppointmentUpcoming
	}

	completed, err := s.repo.CompleteAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, completed.ID, EventAppointmentCompleted, map[string]any{})
	s.log.Info().
		Str("appointment_id", completed.ID.String()).
		Msg("appointment completed")

	return completed, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

// Quote resolves the slot's doctor and fee so the payment gate can price a
// booking before the reserve transaction runs.
type Quote struct {
	SlotID          uuid.UUID
	DoctorID        uuid.UUID
	DoctorName      string
	Specialty       string
	ConsultationFee int
	StartAt         time.Time
}

func (s *Service) QuoteSlot(ctx context.Context, slotID uuid.UUID) (*Quote, error) {
	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if slot.IsBooked {
		return nil, ErrSlotUnavailable
	}

	doctor, err := s.repo.GetDoctorProfile(ctx, slot.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	return &Quote{
		SlotID:          slot.ID,
		DoctorID:        doctor.ID,
		DoctorName:      doctor.Name,
		Specialty:       doctor.Specialty,
		ConsultationFee: doctor.ConsultationFee,
		StartAt:         slot.StartAt,
	}, nil
}

// PublishResult reports how an availability batch fared. Creates are
// independent writes: a failure partway leaves earlier slots in place.
type PublishResult struct {
	Created []AvailabilitySlot
	Failed  int
}

// PublishAvailability creates one slot per (date x time) pair. Dates are
// "2006-01-02" strings, times are "HH:mm" labels from the catalog; each
// slot runs 30 minutes.
func (s *Service) PublishAvailability(ctx context.Context, doctorID uuid.UUID, dates, times []string) (PublishResult, error) {
	if len(dates) == 0 || len(times) == 0 {
		return PublishResult{}, fmt.Errorf("%w: select at least one date and one time slot", ErrValidation)
	}
	for _, d := range dates {
		if _, err := schedule.ParseDate(d, s.tz); err != nil {
			return PublishResult{}, fmt.Errorf("%w: bad date %q", ErrValidation, d)
		}
	}
	for _, t := range times {
		if !schedule.InCatalog(t) {
			return PublishResult{}, fmt.Errorf("%w: %q is not a bookable time", ErrValidation, t)
		}
	}

	if _, err := s.repo.GetDoctorProfile(ctx, doctorID); err != nil {
		return PublishResult{}, err
	}

	var result PublishResult
	for _, d := range dates {
		for _, t := range times {
			startAt, err := schedule.SlotStart(d, t, s.tz)
			if err != nil {
				return result, fmt.Errorf("%w: %v", ErrValidation, err)
			}
			endTime, err := schedule.EndTime(t)
			if err != nil {
				return result, fmt.Errorf("%w: %v", ErrValidation, err)
			}

			slot := AvailabilitySlot{
				ID:        uuid.New(),
				DoctorID:  doctorID,
				StartAt:   startAt,
				StartTime: t,
				EndTime:   endTime,
			}
			if err := s.repo.CreateSlot(ctx, &slot); err != nil {
				s.log.Warn().
					Str("doctor_id", doctorID.String()).
					Str("date", d).
					Str("start_time", t).
					Err(err).
					Msg("slot create failed")
				result.Failed++
				continue
			}
			result.Created = append(result.Created, slot)
		}
	}

	if result.Failed > 0 {
		return result, ErrPartialPublish
	}
	return result, nil
}

// RemoveSlot deletes one of the doctor's unbooked slots. Booked slots are
// protected: freeing them goes through cancellation only.
func (s *Service) RemoveSlot(ctx context.Context, doctorID, slotID uuid.UUID) error {
	return s.repo.DeleteOpenSlot(ctx, slotID, doctorID)
}

// PatientSchedule is the patient-side appointments view: upcoming bookings
// and everything else as history.
type PatientSchedule struct {
	Upcoming []Appointment
	History  []Appointment
}

func (s *Service) PatientSchedule(ctx context.Context, patientID uuid.UUID) (*PatientSchedule, error) {
	appts, err := s.repo.ListAppointmentsByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	now := s.now()
	return &PatientSchedule{
		Upcoming: UpcomingAppointments(appts, now),
		History:  HistoryAppointments(appts, now),
	}, nil
}

// DoctorSchedule is the doctor-side view: appointments grouped by calendar
// date plus the upcoming queue.
type DoctorSchedule struct {
	ByDate   map[string][]Appointment
	Upcoming []Appointment
}

func (s *Service) DoctorSchedule(ctx context.Context, doctorID uuid.UUID) (*DoctorSchedule, error) {
	appts, err := s.repo.ListAppointmentsByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	return &DoctorSchedule{
		ByDate:   GroupAppointmentsByDate(appts, s.tz),
		Upcoming: UpcomingAppointments(appts, s.now()),
	}, nil
}

func (s *Service) DoctorRoster(ctx context.Context, doctorID uuid.UUID) ([]RosterEntry, error) {
	appts, err := s.repo.ListAppointmentsByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return Roster(appts), nil
}

// DoctorAvailability lists all of the doctor's slots grouped by date, for
// the availability management view.
func (s *Service) DoctorAvailability(ctx context.Context, doctorID uuid.UUID) (map[string][]AvailabilitySlot, error) {
	slots, err := s.repo.ListSlotsByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return GroupSlotsByDate(slots, s.tz), nil
}

// OpenSlotsForBooking is the patient-side bookable view: unbooked future
// slots grouped by date.
func (s *Service) OpenSlotsForBooking(ctx context.Context, doctorID uuid.UUID) (map[string][]AvailabilitySlot, error) {
	slots, err := s.repo.ListSlotsByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return GroupSlotsByDate(OpenSlots(slots, s.now()), s.tz), nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Str("event", eventType).Err(err).Msg("marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := BookingEvent{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn().
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Err(err).
			Msg("insert booking event")
	}
}
