package booking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a mutex-guarded implementation of Repository with the
// same conditional-write semantics as the Postgres one. It backs the test
// suites, where transactional behavior has to be observable without a
// database.
type MemoryRepository struct {
	mu sync.Mutex

	doctors      map[uuid.UUID]DoctorProfile
	patients     map[uuid.UUID]PatientProfile
	slots        map[uuid.UUID]AvailabilitySlot
	appointments map[uuid.UUID]Appointment
	events       []BookingEvent

	failCreateSlotAfter int // when > 0, CreateSlot fails once this many creates have happened
	createCount         int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		doctors:      make(map[uuid.UUID]DoctorProfile),
		patients:     make(map[uuid.UUID]PatientProfile),
		slots:        make(map[uuid.UUID]AvailabilitySlot),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

func (m *MemoryRepository) PutDoctor(d DoctorProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doctors[d.ID] = d
}

func (m *MemoryRepository) PutPatient(p PatientProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patients[p.ID] = p
}

func (m *MemoryRepository) PutAppointment(a Appointment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appointments[a.ID] = a
}

// FailCreateSlotAfter makes the n+1th CreateSlot call fail. Exercises the
// publisher's partial-batch behavior.
func (m *MemoryRepository) FailCreateSlotAfter(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCreateSlotAfter = n
}

func (m *MemoryRepository) GetDoctorProfile(_ context.Context, id uuid.UUID) (*DoctorProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (m *MemoryRepository) GetPatientProfile(_ context.Context, id uuid.UUID) (*PatientProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (m *MemoryRepository) GetSlotByID(_ context.Context, id uuid.UUID) (*AvailabilitySlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &s, nil
}

func (m *MemoryRepository) CreateSlot(_ context.Context, slot *AvailabilitySlot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failCreateSlotAfter > 0 && m.createCount >= m.failCreateSlotAfter {
		return context.DeadlineExceeded
	}
	m.createCount++

	now := time.Now()
	slot.CreatedAt = now
	slot.UpdatedAt = now
	m.slots[slot.ID] = *slot
	return nil
}

func (m *MemoryRepository) DeleteOpenSlot(_ context.Context, id, doctorID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok || s.DoctorID != doctorID {
		return ErrSlotNotFound
	}
	if s.IsBooked {
		return ErrSlotInUse
	}
	delete(m.slots, id)
	return nil
}

func (m *MemoryRepository) ListSlotsByDoctor(_ context.Context, doctorID uuid.UUID) ([]AvailabilitySlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []AvailabilitySlot
	for _, s := range m.slots {
		if s.DoctorID == doctorID {
			result = append(result, s)
		}
	}
	return result, nil
}

func (m *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *MemoryRepository) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Appointment
	for _, a := range m.appointments {
		if a.PatientID == patientID {
			result = append(result, a)
		}
	}
	return result, nil
}

func (m *MemoryRepository) ListAppointmentsByDoctor(_ context.Context, doctorID uuid.UUID) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Appointment
	for _, a := range m.appointments {
		if a.DoctorID == doctorID {
			result = append(result, a)
		}
	}
	return result, nil
}

func (m *MemoryRepository) ReserveSlot(_ context.Context, slotID uuid.UUID, appt *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[slotID]
	if !ok || s.IsBooked {
		return ErrSlotUnavailable
	}

	now := time.Now()
	patientID := appt.PatientID
	s.IsBooked = true
	s.BookedByPatientID = &patientID
	s.UpdatedAt = now
	m.slots[slotID] = s

	appt.Status = StatusBooked
	appt.CreatedAt = now
	appt.UpdatedAt = now
	m.appointments[appt.ID] = *appt
	return nil
}

func (m *MemoryRepository) ReleaseSlot(_ context.Context, appointmentID, slotID uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.slots[slotID]; !ok {
		return nil, ErrSlotNotFound
	}

	a, ok := m.appointments[appointmentID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != StatusBooked {
		return nil, ErrAppointmentFinal
	}

	now := time.Now()
	a.Status = StatusCancelled
	a.UpdatedAt = now
	m.appointments[appointmentID] = a

	s := m.slots[slotID]
	s.IsBooked = false
	s.BookedByPatientID = nil
	s.UpdatedAt = now
	m.slots[slotID] = s

	return &a, nil
}

func (m *MemoryRepository) CompleteAppointment(_ context.Context, appointmentID uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[appointmentID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != StatusBooked {
		return nil, ErrAppointmentFinal
	}

	a.Status = StatusCompleted
	a.UpdatedAt = time.Now()
	m.appointments[appointmentID] = a
	return &a, nil
}

func (m *MemoryRepository) InsertEvent(_ context.Context, ev BookingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = int64(len(m.events) + 1)
	m.events = append(m.events, ev)
	return nil
}
