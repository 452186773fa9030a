package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is the in-memory Store used for tests and single-node runs.
// All methods hold the mutex, so the check inside Create and the insert are
// one critical section: I1 holds without any external lock.
type MemStore struct {
	mu           sync.RWMutex
	appointments map[uuid.UUID]*Appointment
	doctors      map[uuid.UUID]*Doctor
	patients     map[uuid.UUID]*Patient
	events       []Event
	nextEventID  int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		appointments: make(map[uuid.UUID]*Appointment),
		doctors:      make(map[uuid.UUID]*Doctor),
		patients:     make(map[uuid.UUID]*Patient),
		nextEventID:  1,
	}
}

// AddDoctor registers a doctor reference record.
func (s *MemStore) AddDoctor(d Doctor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doctors[d.ID] = &d
}

// AddPatient registers a patient reference record.
func (s *MemStore) AddPatient(p Patient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[p.ID] = &p
}

// Events returns a copy of the recorded audit events.
func (s *MemStore) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *MemStore) Create(ctx context.Context, a *Appointment) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.appointments {
		if existing.DoctorID == a.DoctorID && existing.Date == a.Date &&
			existing.Time == a.Time && existing.Status.IsActive() {
			return nil, ErrSlotTaken
		}
	}

	stored := *a
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.appointments[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (s *MemStore) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := *a
	return &out, nil
}

func matches(a *Appointment, f Filter) bool {
	if f.PatientID != nil && a.PatientID != *f.PatientID {
		return false
	}
	if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, st := range f.Statuses {
			if a.Status == st {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	// YYYY-MM-DD strings compare correctly lexicographically.
	if f.DateFrom != "" && a.Date < f.DateFrom {
		return false
	}
	if f.DateTo != "" && a.Date > f.DateTo {
		return false
	}
	return true
}

func (s *MemStore) List(ctx context.Context, q Query) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Appointment
	for _, a := range s.appointments {
		if matches(a, q.Filter) {
			result = append(result, *a)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if q.Sort == SortDateTimeAsc {
			if a.Date != b.Date {
				return a.Date < b.Date
			}
			return a.Time < b.Time
		}
		if a.Date != b.Date {
			return a.Date > b.Date
		}
		return a.Time > b.Time
	})

	if q.Offset > 0 {
		if q.Offset >= len(result) {
			return nil, nil
		}
		result = result[q.Offset:]
	}
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

func (s *MemStore) Count(ctx context.Context, f Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, a := range s.appointments {
		if matches(a, f) {
			n++
		}
	}
	return n, nil
}

func applyUpdate(a *Appointment, upd Update) {
	if upd.Status != nil {
		a.Status = *upd.Status
	}
	if upd.Notes != nil {
		a.Notes = *upd.Notes
	}
	if upd.DoctorNotes != nil {
		a.DoctorNotes = *upd.DoctorNotes
	}
	if upd.Prescription != nil {
		p := *upd.Prescription
		a.Prescription = &p
	}
	if upd.PaymentStatus != nil {
		a.Payment.Status = *upd.PaymentStatus
	}
	if upd.CancelledBy != nil {
		v := *upd.CancelledBy
		a.CancelledBy = &v
	}
	if upd.CancelledAt != nil {
		v := *upd.CancelledAt
		a.CancelledAt = &v
	}
	if upd.CancellationReason != nil {
		a.CancellationReason = *upd.CancellationReason
	}
	if upd.CompletedAt != nil {
		v := *upd.CompletedAt
		a.CompletedAt = &v
	}
	if upd.Rating != nil {
		v := *upd.Rating
		a.Rating = &v
	}
	if upd.Review != nil {
		a.Review = *upd.Review
	}
	a.UpdatedAt = time.Now()
}

func (s *MemStore) UpdateFields(ctx context.Context, id uuid.UUID, upd Update) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	applyUpdate(a, upd)
	out := *a
	return &out, nil
}

func (s *MemStore) TransitionStatus(ctx context.Context, id uuid.UUID, from []Status, to Status, upd Update) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}

	eligible := false
	for _, st := range from {
		if a.Status == st {
			eligible = true
			break
		}
	}
	if !eligible {
		return nil, ErrAppointmentNotFound
	}

	upd.Status = &to
	applyUpdate(a, upd)
	out := *a
	return &out, nil
}

func (s *MemStore) SlotTaken(ctx context.Context, doctorID uuid.UUID, date, tm string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.appointments {
		if a.DoctorID == doctorID && a.Date == date && a.Time == tm && a.Status.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) BookedTimes(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var times []string
	for _, a := range s.appointments {
		if a.DoctorID == doctorID && a.Date == date && a.Status.IsActive() {
			times = append(times, a.Time)
		}
	}
	sort.Strings(times)
	return times, nil
}

func (s *MemStore) FindOverdueActive(ctx context.Context, now time.Time) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Appointment
	for _, a := range s.appointments {
		if !a.Status.IsActive() {
			continue
		}
		start, err := a.StartTime()
		if err != nil {
			continue
		}
		if start.Before(now) {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (s *MemStore) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	out := *d
	return &out, nil
}

func (s *MemStore) ListDoctors(ctx context.Context) ([]Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doctors := make([]Doctor, 0, len(s.doctors))
	for _, d := range s.doctors {
		doctors = append(doctors, *d)
	}
	sort.Slice(doctors, func(i, j int) bool { return doctors[i].Name < doctors[j].Name })
	return doctors, nil
}

func (s *MemStore) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	out := *p
	return &out, nil
}

func (s *MemStore) InsertEvent(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev.ID = s.nextEventID
	s.nextEventID++
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	s.events = append(s.events, ev)
	return nil
}
