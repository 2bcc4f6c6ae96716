package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is applied idempotently on startup. The CHECK constraint on
// availability_slots is the database-level half of the booking invariant:
// is_booked is true exactly when booked_by_patient_id is set.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS doctor_profiles (
		id               uuid PRIMARY KEY,
		name             text NOT NULL,
		specialty        text NOT NULL,
		consultation_fee integer NOT NULL DEFAULT 0,
		created_at       timestamptz NOT NULL DEFAULT now(),
		updated_at       timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS patient_profiles (
		id           uuid PRIMARY KEY,
		display_name text NOT NULL,
		email        text NOT NULL,
		created_at   timestamptz NOT NULL DEFAULT now(),
		updated_at   timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS availability_slots (
		id                   uuid PRIMARY KEY,
		doctor_id            uuid NOT NULL REFERENCES doctor_profiles(id),
		start_at             timestamptz NOT NULL,
		start_time           text NOT NULL,
		end_time             text NOT NULL,
		is_booked            boolean NOT NULL DEFAULT false,
		booked_by_patient_id uuid,
		created_at           timestamptz NOT NULL DEFAULT now(),
		updated_at           timestamptz NOT NULL DEFAULT now(),
		CONSTRAINT slot_booking_consistent
			CHECK (is_booked = (booked_by_patient_id IS NOT NULL))
	)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id                   uuid PRIMARY KEY,
		patient_id           uuid NOT NULL,
		doctor_id            uuid NOT NULL,
		availability_slot_id uuid,
		appointment_at       timestamptz NOT NULL,
		type                 text NOT NULL,
		status               text NOT NULL,
		reason_for_visit     text NOT NULL,
		patient_name         text NOT NULL,
		patient_email        text NOT NULL,
		created_at           timestamptz NOT NULL DEFAULT now(),
		updated_at           timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS booking_events (
		id             bigserial PRIMARY KEY,
		event_type     text NOT NULL,
		appointment_id uuid,
		payload        jsonb,
		created_at     timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_slots_doctor_start ON availability_slots (doctor_id, start_at)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_patient ON appointments (patient_id)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_doctor ON appointments (doctor_id)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_slot ON appointments (availability_slot_id)`,
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
