package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/medibook/booking-backend/internal/redis"
)

// passthroughLocker runs the critical section without any coordination, so
// tests exercise the repository's conditional writes directly.
type passthroughLocker struct{}

func (passthroughLocker) WithSlotLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// deniedLocker simulates a contended lock.
type deniedLocker struct{}

func (deniedLocker) WithSlotLock(_ context.Context, _ uuid.UUID, _ func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

var testNow = time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)

func newTestService(repo Repository) *Service {
	svc := NewService(repo, passthroughLocker{}, time.UTC, zerolog.Nop())
	return svc.WithClock(func() time.Time { return testNow })
}

func seedDoctorAndPatient(repo *MemoryRepository) (DoctorProfile, PatientProfile) {
	doctor := DoctorProfile{
		ID:              uuid.New(),
		Name:            "Dr. Asha Rao",
		Specialty:       "Cardiology",
		ConsultationFee: 150,
	}
	patient := PatientProfile{
		ID:          uuid.New(),
		DisplayName: "Jordan Miles",
		Email:       "jordan@example.com",
	}
	repo.PutDoctor(doctor)
	repo.PutPatient(patient)
	return doctor, patient
}

func seedOpenSlot(t *testing.T, repo *MemoryRepository, doctorID uuid.UUID, startAt time.Time, startTime string) AvailabilitySlot {
	t.Helper()
	slot := AvailabilitySlot{
		ID:        uuid.New(),
		DoctorID:  doctorID,
		StartAt:   startAt,
		StartTime: startTime,
		EndTime:   startTime, // label only, not used by the engine
	}
	require.NoError(t, repo.CreateSlot(context.Background(), &slot))
	return slot
}

func TestConfirmBooking(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	doctor, patient := seedDoctorAndPatient(repo)
	slot := seedOpenSlot(t, repo, doctor.ID, testNow.Add(48*time.Hour), "09:00")
	svc := newTestService(repo)

	appt, err := svc.ConfirmBooking(ctx, BookingRequest{
		PatientID:      patient.ID,
		SlotID:         slot.ID,
		ReasonForVisit: "annual checkup",
		Type:           TypeOnline,
	})
	require.NoError(t, err)
	require.NotNil(t, appt)

	assert.Equal(t, StatusBooked, appt.Status)
	assert.Equal(t, doctor.ID, appt.DoctorID)
	assert.Equal(t, patient.ID, appt.PatientID)
	assert.Equal(t, slot.StartAt, appt.AppointmentAt)
	assert.Equal(t, patient.DisplayName, appt.PatientName)
	assert.Equal(t, patient.Email, appt.PatientEmail)
	require.NotNil(t, appt.AvailabilitySlotID)
	assert.Equal(t, slot.ID, *appt.AvailabilitySlotID)

	stored, err := repo.GetSlotByID(ctx, slot.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsBooked)
	require.NotNil(t, stored.BookedByPatientID)
	assert.Equal(t, patient.ID, *stored.BookedByPatientID)
}

func TestConfirmBookingValidation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	doctor, patient := seedDoctorAndPatient(repo)
	slot := seedOpenSlot(t, repo, doctor.ID, testNow.Add(24*time.Hour), "10:00")
	svc := newTestService(repo)

	_, err := svc.ConfirmBooking(ctx, BookingRequest{
		PatientID: patient.ID,
		SlotID:    slot.ID,
		Type:      TypeOnline,
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.ConfirmBooking(ctx, BookingRequest{
		PatientID:      patient.ID,
		SlotID:         slot.ID,
		ReasonForVisit: "checkup",
		Type:           AppointmentType("Telepathic"),
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.ConfirmBooking(ctx, BookingRequest{
		PatientID:      uuid.New(),
		SlotID:         slot.ID,
		ReasonForVisit: "checkup",
		Type:           TypeOnline,
	})
	assert.ErrorIs(t, err, ErrPatientNotFound)

	_, err = svc.ConfirmBooking(ctx, BookingRequest{
		PatientID:      patient.ID,
		SlotID:         uuid.New(),
		ReasonForVisit: "checkup",
		Type:           TypeOnline,
	})
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestConfirmBookingLockContention(t *testing.T) {
	repo := NewMemoryRepository()
	doctor, patient := seedDoctorAndPatient(repo)
	slot := seedOpenSlot(t, repo, doctor.ID, testNow.Add(24*time.Hour), "10:00")

	svc := NewService(repo, deniedLocker{}, time.UTC, zerolog.Nop()).
		WithClock(func() time.Time { return testNow })

	_, err := svc.ConfirmBooking(context.Background(), BookingRequest{
		PatientID:      patient.ID,
		SlotID:         slot.ID,
		ReasonForVisit: "checkup",
		Type:           TypeInPerson,
	})
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestConcurrentBookingSameSlot(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	doctor, _ := seedDoctorAndPatient(repo)
	slot := seedOpenSlot(t, repo, doctor.ID, testNow.Add(24*time.Hour), "11:00")
	svc := newTestService(repo)

	const contenders = 32
	patients := make([]uuid.UUID, contenders)
	for i := range patients {
		p := PatientProfile{ID: uuid.New(), DisplayName: "Patient", Email: "p@example.com"}
		repo.PutPatient(p)
		patients[i] = p.ID
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  []uuid.UUID
		rejected int
	)
	start := make(chan struct{})

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(patientID uuid.UUID) {
			defer wg.Done()
			<-start
			appt, err := svc.ConfirmBooking(ctx, BookingRequest{
				PatientID:      patientID,
				SlotID:         slot.ID,
				ReasonForVisit: "contested slot",
				Type:           TypeOnline,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, appt.PatientID)
			case assert.ErrorIs(t, err, ErrSlotUnavailable):
				rejected++
			}
		}(patients[i])
	}

	close(start)
	wg.Wait()

	require.Len(t, winners, 1, "exactly one booking must win the slot")
	assert.Equal(t, contenders-1, rejected)

	stored, err := repo.GetSlotByID(ctx, slot.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsBooked)
	require.NotNil(t, stored.BookedByPatientID)
	assert.Equal(t, winners[0], *stored.BookedByPatientID)
}

func TestCancelFreesSlotForRebooking(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	doctor, patient := seedDoctorAndPatient(repo)
	slot := seedOpenSlot(t, repo, doctor.ID, testNow.Add(24*time.Hour), "14:00")
	svc := newTestService(repo)

	appt, err := svc.ConfirmBooking(ctx, BookingRequest{
		PatientID:      patient.ID,
		SlotID:         slot.ID,
		ReasonForVisit: "checkup",
		Type:           TypeOnline,
	})
	require.NoError(t, err)

	cancelled, err := svc.CancelAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	stored, err := repo.GetSlotByID(ctx, slot.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsBooked)
	assert.Nil(t, stored.BookedByPatientID)

	other := PatientProfile{ID: uuid.New(), DisplayName: "Sam Reyes", Email: "sam@example.com"}
	repo.PutPatient(other)

	rebooked, err := svc.ConfirmBooking(ctx, BookingRequest{
		PatientID:      other.ID,
		SlotID:         slot.ID,
		ReasonForVisit: "follow-up",
		Type:           TypeInPerson,
	})
	require.NoError(t, err)
	assert.Equal(t, other.ID, rebooked.PatientID)

	stored, err = repo.GetSlotByID(ctx, slot.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.BookedByPatientID)
	assert.Equal(t, other.ID, *stored.BookedByPatientID)
}

func TestCancelIsTerminal(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	doctor, patient := seedDoctorAndPatient(repo)
	slot := seedOpenSlot(t, repo, doctor.ID, testNow.Add(24*time.Hour), "09:30")
	svc := newTestService(repo)

	appt, err := svc.ConfirmBooking(ctx, BookingRequest{
		PatientID:      patient.ID,
		SlotID:         slot.ID,
		ReasonForVisit: "checkup",
		Type:           TypeOnline,
	})
	require.NoError(t, err)

	_, err = svc.CancelAppointment(ctx, appt.ID)
	require.NoError(t, err)

	_, err = svc.CancelAppointment(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrAppointmentFinal)

	_, err = svc.CompleteAppointment(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrAppointmentFinal)
}

func TestCancelWithDeletedSlotLeavesAppointmentBooked(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	doctor, patient := seedDoctorAndPatient(repo)
	svc := newTestService(repo)

	// An appointment whose slot record no longer exists: the release must
	// abort whole rather than cancel without freeing anything.
	slotID := uuid.New()
	appt := Appointment{
		ID:                 uuid.New(),
		PatientID:          patient.ID,
		DoctorID:           doctor.ID,
		AvailabilitySlotID: &slotID,
		AppointmentAt:      testNow.Add(24 * time.Hour),
		Type:               TypeOnline,
		Status:             StatusBooked,
		ReasonForVisit:     "checkup",
	}
	repo.PutAppointment(appt)

	_, err := svc.CancelAppointment(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrSlotNotFound)

	stored, err := repo.GetAppointmentByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusBooked, stored.Status)
}

func TestCancelWithoutSlotReference(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	doctor, patient := seedDoctorAndPatient(repo)
	svc := newTestService(repo)

	appt := Appointment{
		ID:             uuid.New(),
		PatientID:      patient.ID,
		DoctorID:       doctor.ID,
		AppointmentAt:  testNow.Add(24 * time.Hour),
		Type:           TypeOnline,
		Status:         StatusBooked,
		ReasonForVisit: "checkup",
	}
	repo.PutAppointment(appt)

	_, err := svc.CancelAppointment(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrMissingSlotReference)
}

func TestCompleteAppointment(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	doctor, patient := seedDoctorAndPatient(repo)
	slot := seedOpenSlot(t, repo, doctor.ID, testNow.Add(-2*time.Hour), "09:00")
	svc := newTestService(repo)

	appt, err := svc.ConfirmBooking(ctx, BookingRequest{
		PatientID:      patient.ID,
		SlotID:         slot.ID,
		ReasonForVisit: "checkup",
		Type:           TypeInPerson,
	})
	require.NoError(t, err)

	completed, err := svc.CompleteAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)

	// Completion never frees the slot.
	stored, err := repo.GetSlotByID(ctx, slot.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsBooked)

	_, err = svc.CancelAppointment(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrAppointmentFinal)
}

func TestCompleteRejectsUpcomingAppointment(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	doctor, patient := seedDoctorAndPatient(repo)
	slot := seedOpenSlot(t, repo, doctor.ID, testNow.Add(2*time.Hour), "15:00")
	svc := newTestService(repo)

	appt, err := svc.ConfirmBooking(ctx, BookingRequest{
		PatientID:      patient.ID,
		SlotID:         slot.ID,
		ReasonForVisit: "checkup",
		Type:           TypeOnline,
	})
	require.NoError(t, err)

	_, err = svc.CompleteAppointment(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrAppointmentUpcoming)
}

func TestQuoteSlot(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	doctor, patient := seedDoctorAndPatient(repo)
	slot := seedOpenSlot(t, repo, doctor.ID, testNow.Add(24*time.Hour), "10:30")
	svc := newTestService(repo)

	quote, err := svc.QuoteSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, doctor.ID, quote.DoctorID)
	assert.Equal(t, doctor.Name, quote.DoctorName)
	assert.Equal(t, doctor.ConsultationFee, quote.ConsultationFee)
	assert.Equal(t, slot.StartAt, quote.StartAt)

	_, err = svc.QuoteSlot(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	_, err = svc.ConfirmBooking(ctx, BookingRequest{
		PatientID:      patient.ID,
		SlotID:         slot.ID,
		ReasonForVisit: "checkup",
		Type:           TypeOnline,
	})
	require.NoError(t, err)

	_, err = svc.QuoteSlot(ctx, slot.ID)
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestPublishAvailability(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	doctor, _ := seedDoctorAndPatient(repo)
	svc := newTestService(repo)

	result, err := svc.PublishAvailability(ctx, doctor.ID,
		[]string{"2024-07-12", "2024-07-13"},
		[]string{"09:00", "09:30", "14:00"},
	)
	require.NoError(t, err)
	assert.Len(t, result.Created, 6)
	assert.Zero(t, result.Failed)

	byDate, err := svc.DoctorAvailability(ctx, doctor.ID)
	require.NoError(t, err)
	assert.Len(t, byDate["2024-07-12"], 3)
	assert.Len(t, byDate["2024-07-13"], 3)
	assert.Equal(t, "09:00", byDate["2024-07-12"][0].StartTime)
	assert.Equal(t, "14:00", byDate["2024-07-12"][2].StartTime)
}

func TestPublishAvailabilityValidation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	doctor, _ := seedDoctorAndPatient(repo)
	svc := newTestService(repo)

	_, err := svc.PublishAvailability(ctx, doctor.ID, nil, []string{"09:00"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.PublishAvailability(ctx, doctor.ID, []string{"12/07/2024"}, []string{"09:00"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.PublishAvailability(ctx, doctor.ID, []string{"2024-07-12"}, []string{"13:00"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.PublishAvailability(ctx, uuid.New(), []string{"2024-07-12"}, []string{"09:00"})
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestPublishAvailabilityPartialBatch(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	doctor, _ := seedDoctorAndPatient(repo)
	repo.FailCreateSlotAfter(2)
	svc := newTestService(repo)

	result, err := svc.PublishAvailability(ctx, doctor.ID,
		[]string{"2024-07-12"},
		[]string{"09:00", "09:30", "10:00", "10:30"},
	)
	assert.ErrorIs(t, err, ErrPartialPublish)
	assert.Len(t, result.Created, 2)
	assert.Equal(t, 2, result.Failed)

	// The slots written before the failure stay behind; there is no rollback.
	slots, listErr := repo.ListSlotsByDoctor(ctx, doctor.ID)
	require.NoError(t, listErr)
	assert.Len(t, slots, 2)
}

func TestRemoveSlot(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	doctor, patient := seedDoctorAndPatient(repo)
	open := seedOpenSlot(t, repo, doctor.ID, testNow.Add(24*time.Hour), "09:00")
	booked := seedOpenSlot(t, repo, doctor.ID, testNow.Add(24*time.Hour), "09:30")
	svc := newTestService(repo)

	_, err := svc.ConfirmBooking(ctx, BookingRequest{
		PatientID:      patient.ID,
		SlotID:         booked.ID,
		ReasonForVisit: "checkup",
		Type:           TypeOnline,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.RemoveSlot(ctx, doctor.ID, booked.ID), ErrSlotInUse)
	assert.ErrorIs(t, svc.RemoveSlot(ctx, uuid.New(), open.ID), ErrSlotNotFound)

	require.NoError(t, svc.RemoveSlot(ctx, doctor.ID, open.ID))
	_, err = repo.GetSlotByID(ctx, open.ID)
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestPatientScheduleSplitsUpcomingAndHistory(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	doctor, patient := seedDoctorAndPatient(repo)
	svc := newTestService(repo)

	past := seedOpenSlot(t, repo, doctor.ID, testNow.Add(-24*time.Hour), "09:00")
	future := seedOpenSlot(t, repo, doctor.ID, testNow.Add(24*time.Hour), "09:00")

	for _, slotID := range []uuid.UUID{past.ID, future.ID} {
		_, err := svc.ConfirmBooking(ctx, BookingRequest{
			PatientID:      patient.ID,
			SlotID:         slotID,
			ReasonForVisit: "checkup",
			Type:           TypeOnline,
		})
		require.NoError(t, err)
	}

	sched, err := svc.PatientSchedule(ctx, patient.ID)
	require.NoError(t, err)
	require.Len(t, sched.Upcoming, 1)
	require.Len(t, sched.History, 1)
	assert.Equal(t, future.StartAt, sched.Upcoming[0].AppointmentAt)
	assert.Equal(t, past.StartAt, sched.History[0].AppointmentAt)
}

func TestEndToEndBookingDay(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	doctor, patient := seedDoctorAndPatient(repo)
	svc := newTestService(repo)

	published, err := svc.PublishAvailability(ctx, doctor.ID,
		[]string{"2024-07-12"},
		[]string{"09:00", "09:30"},
	)
	require.NoError(t, err)
	require.Len(t, published.Created, 2)

	open, err := svc.OpenSlotsForBooking(ctx, doctor.ID)
	require.NoError(t, err)
	require.Len(t, open["2024-07-12"], 2)

	nineAM := open["2024-07-12"][0]
	require.Equal(t, "09:00", nineAM.StartTime)

	appt, err := svc.ConfirmBooking(ctx, BookingRequest{
		PatientID:      patient.ID,
		SlotID:         nineAM.ID,
		ReasonForVisit: "chest pain follow-up",
		Type:           TypeInPerson,
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 7, 12, 9, 0, 0, 0, time.UTC), appt.AppointmentAt)

	open, err = svc.OpenSlotsForBooking(ctx, doctor.ID)
	require.NoError(t, err)
	require.Len(t, open["2024-07-12"], 1)
	assert.Equal(t, "09:30", open["2024-07-12"][0].StartTime)

	roster, err := svc.DoctorRoster(ctx, doctor.ID)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, patient.ID, roster[0].PatientID)
	assert.Equal(t, patient.DisplayName, roster[0].Name)

	_, err = svc.CancelAppointment(ctx, appt.ID)
	require.NoError(t, err)

	open, err = svc.OpenSlotsForBooking(ctx, doctor.ID)
	require.NoError(t, err)
	assert.Len(t, open["2024-07-12"], 2)
}
