package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanDoctor(row pgx.Row) (*DoctorProfile, error) {
	var d DoctorProfile

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialty,
		&d.ConsultationFee,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	return &d, nil
}

func scanPatient(row pgx.Row) (*PatientProfile, error) {
	var p PatientProfile

	err := row.Scan(
		&p.ID,
		&p.DisplayName,
		&p.Email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanSlot(row pgx.Row) (*AvailabilitySlot, error) {
	var s AvailabilitySlot
	var bookedBy *uuid.UUID

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.StartAt,
		&s.StartTime,
		&s.EndTime,
		&s.IsBooked,
		&bookedBy,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.BookedByPatientID = bookedBy
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var slotID *uuid.UUID

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&slotID,
		&a.AppointmentAt,
		&a.Type,
		&a.Status,
		&a.ReasonForVisit,
		&a.PatientName,
		&a.PatientEmail,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.AvailabilitySlotID = slotID
	return &a, nil
}

const appointmentCols = `id, patient_id, doctor_id, availability_slot_id, appointment_at,
	type, status, reason_for_visit, patient_name, patient_email, created_at, updated_at`

const slotCols = `id, doctor_id, start_at, start_time, end_time, is_booked,
	booked_by_patient_id, created_at, updated_at`

// Interface methods

func (r *PgRepository) GetDoctorProfile(ctx context.Context, id uuid.UUID) (*DoctorProfile, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, consultation_fee, created_at, updated_at
		FROM doctor_profiles
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientProfile(ctx context.Context, id uuid.UUID) (*PatientProfile, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, display_name, email, created_at, updated_at
		FROM patient_profiles
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*AvailabilitySlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotCols+`
		FROM availability_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) CreateSlot(ctx context.Context, slot *AvailabilitySlot) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability_slots
			(id, doctor_id, start_at, start_time, end_time, is_booked, booked_by_patient_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, false, NULL, now(), now())
		RETURNING created_at, updated_at
	`, slot.ID, slot.DoctorID, slot.StartAt, slot.StartTime, slot.EndTime)

	if err := row.Scan(&slot.CreatedAt, &slot.UpdatedAt); err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

func (r *PgRepository) DeleteOpenSlot(ctx context.Context, id, doctorID uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `
		DELETE FROM availability_slots
		WHERE id = $1 AND doctor_id = $2 AND is_booked = false
	`, id, doctorID)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if ct.RowsAffected() > 0 {
		return nil
	}

	// Deleted nothing: work out whether the slot is booked, foreign, or gone.
	var booked bool
	err = r.pool.QueryRow(ctx, `
		SELECT is_booked FROM availability_slots
		WHERE id = $1 AND doctor_id = $2
	`, id, doctorID).Scan(&booked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSlotNotFound
		}
		return err
	}
	if booked {
		return ErrSlotInUse
	}
	return ErrSlotNotFound
}

func (r *PgRepository) ListSlotsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]AvailabilitySlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotCols+`
		FROM availability_slots
		WHERE doctor_id = $1
		ORDER BY start_at ASC, start_time ASC
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilitySlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	return result, rows.Err()
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	return r.listAppointments(ctx, `patient_id`, patientID)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	return r.listAppointments(ctx, `doctor_id`, doctorID)
}

func (r *PgRepository) listAppointments(ctx context.Context, col string, id uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE `+col+` = $1
		ORDER BY appointment_at ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	return result, rows.Err()
}

// ReserveSlot claims the slot and creates the appointment in one
// transaction. The conditional UPDATE is the mutual-exclusion point: of two
// concurrent reservations, exactly one sees is_booked=false and commits.
func (r *PgRepository) ReserveSlot(ctx context.Context, slotID uuid.UUID, appt *Appointment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reserve: %w", err)
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `
		UPDATE availability_slots
		SET is_booked = true,
		    booked_by_patient_id = $2,
		    updated_at = now()
		WHERE id = $1
		  AND is_booked = false
	`, slotID, appt.PatientID)
	if err != nil {
		return fmt.Errorf("claim slot: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrSlotUnavailable
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, patient_id, doctor_id, availability_slot_id, appointment_at,
			 type, status, reason_for_visit, patient_name, patient_email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'booked', $7, $8, $9, now(), now())
		RETURNING created_at, updated_at
	`, appt.ID, appt.PatientID, appt.DoctorID, appt.AvailabilitySlotID, appt.AppointmentAt,
		appt.Type, appt.ReasonForVisit, appt.PatientName, appt.PatientEmail)

	if err := row.Scan(&appt.CreatedAt, &appt.UpdatedAt); err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	appt.Status = StatusBooked

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reserve: %w", err)
	}
	return nil
}

// ReleaseSlot cancels the appointment and frees the slot together. The slot
// row is locked first so a concurrent reserve on the freed slot serializes
// behind the cancellation.
func (r *PgRepository) ReleaseSlot(ctx context.Context, appointmentID, slotID uuid.UUID) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin release: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM availability_slots
		WHERE id = $1
		FOR UPDATE
	`, slotID).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("lock slot: %w", err)
	}

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'booked'
		RETURNING `+appointmentCols+`
	`, appointmentID)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, r.classifyMissedTransition(ctx, tx, appointmentID)
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE availability_slots
		SET is_booked = false,
		    booked_by_patient_id = NULL,
		    updated_at = now()
		WHERE id = $1
	`, slotID)
	if err != nil {
		return nil, fmt.Errorf("free slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit release: %w", err)
	}
	return appt, nil
}

func (r *PgRepository) CompleteAppointment(ctx context.Context, appointmentID uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'completed',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'booked'
		RETURNING `+appointmentCols+`
	`, appointmentID)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, r.classifyMissedTransition(ctx, r.pool, appointmentID)
		}
		return nil, fmt.Errorf("complete appointment: %w", err)
	}
	return appt, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// classifyMissedTransition distinguishes a lost booked->X race from a bad
// appointment id after a conditional status update matched zero rows.
func (r *PgRepository) classifyMissedTransition(ctx context.Context, q queryRower, appointmentID uuid.UUID) error {
	var status AppointmentStatus
	err := q.QueryRow(ctx, `
		SELECT status FROM appointments WHERE id = $1
	`, appointmentID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAppointmentNotFound
		}
		return err
	}
	return ErrAppointmentFinal
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev BookingEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO booking_events (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert booking event: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
