package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medibook/booking-backend/internal/booking"
	"github.com/medibook/booking-backend/internal/payment"
	"github.com/medibook/booking-backend/internal/validation"
)

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
)

type Server struct {
	svc      *booking.Service
	payments payment.Processor
	val      *validation.Validator
	log      zerolog.Logger
}

func NewServer(svc *booking.Service, payments payment.Processor, log zerolog.Logger) *Server {
	return &Server{
		svc:      svc,
		payments: payments,
		val:      validation.New(),
		log:      log,
	}
}

// actor reads the authenticated identity the session collaborator forwards
// on every request. Authentication itself happens upstream.
func actor(r *http.Request) (uuid.UUID, string, bool) {
	id, err := uuid.Parse(r.Header.Get("X-Actor-ID"))
	if err != nil {
		return uuid.Nil, "", false
	}
	role := r.Header.Get("X-Actor-Role")
	if role != RolePatient && role != RoleDoctor {
		return uuid.Nil, "", false
	}
	return id, role, true
}

// createBooking runs the full patient flow: validate, charge the simulated
// payment, then confirm the booking. The charge is a gate in front of the
// reserve transaction, not part of it; a failed charge writes nothing.
func (s *Server) createBooking(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := actor(r)
	if !ok || role != RolePatient {
		writeError(w, http.StatusForbidden, "forbidden", "a patient identity is required")
		return
	}

	var req CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	if err := s.val.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	slotID, err := uuid.Parse(req.SlotID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
		return
	}

	quote, err := s.svc.QuoteSlot(r.Context(), slotID)
	if err != nil {
		s.handleBookingError(w, err)
		return
	}

	receipt, err := s.payments.Charge(r.Context(), quote.ConsultationFee, payment.Card{
		Number: req.Card.Number,
		Expiry: req.Card.Expiry,
		CVC:    req.Card.CVC,
	})
	if err != nil {
		s.handlePaymentError(w, err)
		return
	}

	appt, err := s.svc.ConfirmBooking(r.Context(), booking.BookingRequest{
		PatientID:      actorID,
		SlotID:         slotID,
		ReasonForVisit: req.ReasonForVisit,
		Type:           booking.AppointmentType(req.Type),
	})
	if err != nil {
		s.handleBookingError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, BookingConfirmedResponse{
		Appointment: toAppointmentResponse(appt),
		PaymentRef:  receipt.ID,
		AmountPaid:  receipt.Amount,
	})
}

func (s *Server) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	appt, ok := s.ownedAppointment(w, r)
	if !ok {
		return
	}

	cancelled, err := s.svc.CancelAppointment(r.Context(), appt.ID)
	if err != nil {
		s.handleLifecycleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(cancelled))
}

func (s *Server) completeAppointment(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := actor(r)
	if !ok || role != RoleDoctor {
		writeError(w, http.StatusForbidden, "forbidden", "a doctor identity is required")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return
	}

	appt, err := s.svc.GetAppointment(r.Context(), id)
	if err != nil {
		s.handleLifecycleError(w, err)
		return
	}
	if appt.DoctorID != actorID {
		writeError(w, http.StatusForbidden, "forbidden", "appointment belongs to another doctor")
		return
	}

	completed, err := s.svc.CompleteAppointment(r.Context(), id)
	if err != nil {
		s.handleLifecycleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(completed))
}

// ownedAppointment parses the path id and enforces the ownership check for
// cancellation: the caller must be the appointment's patient or doctor.
func (s *Server) ownedAppointment(w http.ResponseWriter, r *http.Request) (*booking.Appointment, bool) {
	actorID, role, ok := actor(r)
	if !ok {
		writeError(w, http.StatusForbidden, "forbidden", "an authenticated identity is required")
		return nil, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return nil, false
	}

	appt, err := s.svc.GetAppointment(r.Context(), id)
	if err != nil {
		s.handleLifecycleError(w, err)
		return nil, false
	}

	owns := (role == RolePatient && appt.PatientID == actorID) ||
		(role == RoleDoctor && appt.DoctorID == actorID)
	if !owns {
		writeError(w, http.StatusForbidden, "forbidden", "appointment belongs to someone else")
		return nil, false
	}
	return appt, true
}

func (s *Server) publishAvailability(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := actor(r)
	if !ok || role != RoleDoctor {
		writeError(w, http.StatusForbidden, "forbidden", "a doctor identity is required")
		return
	}

	var req PublishAvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	if err := s.val.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	result, err := s.svc.PublishAvailability(r.Context(), actorID, req.Dates, req.Times)
	if err != nil && !errors.Is(err, booking.ErrPartialPublish) {
		s.handleBookingError(w, err)
		return
	}

	resp := PublishAvailabilityResponse{Failed: result.Failed}
	for _, slot := range result.Created {
		resp.Created = append(resp.Created, toSlotResponse(slot))
	}

	// Partial batches keep the created subset; the caller sees how many
	// writes were lost.
	status := http.StatusCreated
	if errors.Is(err, booking.ErrPartialPublish) {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, resp)
}

func (s *Server) deleteSlot(w http.ResponseWriter, r *http.Request) {
	actorID, role, ok := actor(r)
	if !ok || role != RoleDoctor {
		writeError(w, http.StatusForbidden, "forbidden", "a doctor identity is required")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
		return
	}

	if err := s.svc.RemoveSlot(r.Context(), actorID, id); err != nil {
		switch {
		case errors.Is(err, booking.ErrSlotInUse):
			writeError(w, http.StatusConflict, "slot_in_use", "slot has a booking and cannot be removed")
		case errors.Is(err, booking.ErrSlotNotFound):
			writeError(w, http.StatusNotFound, "slot_not_found", "slot does not exist")
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getAvailability(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(r.URL.Query().Get("doctor_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
		return
	}

	groups, err := s.svc.DoctorAvailability(r.Context(), doctorID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toSlotGroups(groups))
}

func (s *Server) getOpenAvailability(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(r.URL.Query().Get("doctor_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
		return
	}

	groups, err := s.svc.OpenSlotsForBooking(r.Context(), doctorID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toSlotGroups(groups))
}

func (s *Server) listAppointments(w http.ResponseWriter, r *http.Request) {
	if v := r.URL.Query().Get("patient_id"); v != "" {
		patientID, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		sched, err := s.svc.PatientSchedule(r.Context(), patientID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, PatientScheduleResponse{
			Upcoming: toAppointmentList(sched.Upcoming),
			History:  toAppointmentList(sched.History),
		})
		return
	}

	if v := r.URL.Query().Get("doctor_id"); v != "" {
		doctorID, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		sched, err := s.svc.DoctorSchedule(r.Context(), doctorID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		byDate := make(map[string][]AppointmentResponse, len(sched.ByDate))
		for date, appts := range sched.ByDate {
			byDate[date] = toAppointmentList(appts)
		}
		writeJSON(w, http.StatusOK, DoctorScheduleResponse{
			ByDate:   byDate,
			Upcoming: toAppointmentList(sched.Upcoming),
		})
		return
	}

	writeError(w, http.StatusBadRequest, "missing_filter", "patient_id or doctor_id is required")
}

func (s *Server) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return
	}

	appt, err := s.svc.GetAppointment(r.Context(), id)
	if err != nil {
		s.handleLifecycleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (s *Server) getRoster(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
		return
	}

	roster, err := s.svc.DoctorRoster(r.Context(), doctorID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	resp := make([]RosterEntryResponse, 0, len(roster))
	for _, e := range roster {
		resp = append(resp, RosterEntryResponse{
			PatientID: e.PatientID,
			Name:      e.Name,
			Email:     e.Email,
			FirstSeen: e.FirstSeen,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, booking.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, booking.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "this slot is no longer available, please pick another time")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (s *Server) handlePaymentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, payment.ErrIncompleteCard), errors.Is(err, payment.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "payment_invalid", err.Error())
	default:
		writeError(w, http.StatusBadGateway, "payment_failed", err.Error())
	}
}

func (s *Server) handleLifecycleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotNotFound):
		writeError(w, http.StatusConflict, "slot_not_found", "the availability slot may have been deleted")
	case errors.Is(err, booking.ErrMissingSlotReference):
		writeError(w, http.StatusConflict, "missing_slot_reference", err.Error())
	case errors.Is(err, booking.ErrAppointmentFinal):
		writeError(w, http.StatusConflict, "appointment_final", err.Error())
	case errors.Is(err, booking.ErrAppointmentUpcoming):
		writeError(w, http.StatusConflict, "appointment_not_past", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
