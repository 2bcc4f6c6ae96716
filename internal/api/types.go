package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medibook/booking-backend/internal/booking"
)

type CardDetails struct {
	Number string `json:"number" validate:"required"`
	Expiry string `json:"expiry" validate:"required"`
	CVC    string `json:"cvc" validate:"required"`
}

type CreateBookingRequest struct {
	SlotID         string      `json:"slot_id" validate:"required,uuid4"`
	ReasonForVisit string      `json:"reason_for_visit" validate:"required"`
	Type           string      `json:"type" validate:"required,oneof=Online In-Person"`
	Card           CardDetails `json:"card" validate:"required"`
}

type PublishAvailabilityRequest struct {
	Dates []string `json:"dates" validate:"required,min=1,dive,date"`
	Times []string `json:"times" validate:"required,min=1,dive,clock"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID  `json:"id"`
	PatientID          uuid.UUID  `json:"patient_id"`
	DoctorID           uuid.UUID  `json:"doctor_id"`
	AvailabilitySlotID *uuid.UUID `json:"availability_slot_id,omitempty"`
	AppointmentAt      time.Time  `json:"appointment_at"`
	Type               string     `json:"type"`
	Status             string     `json:"status"`
	ReasonForVisit     string     `json:"reason_for_visit"`
	PatientName        string     `json:"patient_name"`
	PatientEmail       string     `json:"patient_email"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		PatientID:          a.PatientID,
		DoctorID:           a.DoctorID,
		AvailabilitySlotID: a.AvailabilitySlotID,
		AppointmentAt:      a.AppointmentAt,
		Type:               string(a.Type),
		Status:             string(a.Status),
		ReasonForVisit:     a.ReasonForVisit,
		PatientName:        a.PatientName,
		PatientEmail:       a.PatientEmail,
	}
}

type SlotResponse struct {
	ID                uuid.UUID  `json:"id"`
	DoctorID          uuid.UUID  `json:"doctor_id"`
	StartAt           time.Time  `json:"start_at"`
	StartTime         string     `json:"start_time"`
	EndTime           string     `json:"end_time"`
	IsBooked          bool       `json:"is_booked"`
	BookedByPatientID *uuid.UUID `json:"booked_by_patient_id,omitempty"`
}

func toSlotResponse(s booking.AvailabilitySlot) SlotResponse {
	return SlotResponse{
		ID:                s.ID,
		DoctorID:          s.DoctorID,
		StartAt:           s.StartAt,
		StartTime:         s.StartTime,
		EndTime:           s.EndTime,
		IsBooked:          s.IsBooked,
		BookedByPatientID: s.BookedByPatientID,
	}
}

func toSlotGroups(groups map[string][]booking.AvailabilitySlot) map[string][]SlotResponse {
	out := make(map[string][]SlotResponse, len(groups))
	for date, slots := range groups {
		rs := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			rs = append(rs, toSlotResponse(s))
		}
		out[date] = rs
	}
	return out
}

func toAppointmentList(appts []booking.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	return out
}

type BookingConfirmedResponse struct {
	Appointment AppointmentResponse `json:"appointment"`
	PaymentRef  uuid.UUID           `json:"payment_ref"`
	AmountPaid  int                 `json:"amount_paid"`
}

type PublishAvailabilityResponse struct {
	Created []SlotResponse `json:"created"`
	Failed  int            `json:"failed"`
}

type PatientScheduleResponse struct {
	Upcoming []AppointmentResponse `json:"upcoming"`
	History  []AppointmentResponse `json:"history"`
}

type DoctorScheduleResponse struct {
	ByDate   map[string][]AppointmentResponse `json:"by_date"`
	Upcoming []AppointmentResponse            `json:"upcoming"`
}

type RosterEntryResponse struct {
	PatientID uuid.UUID `json:"patient_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	FirstSeen time.Time `json:"first_seen"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
