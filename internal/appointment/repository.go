package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type SortOrder int

const (
	// SortDateTimeDesc orders most recent appointment first (date, then time).
	SortDateTimeDesc SortOrder = iota
	SortDateTimeAsc
)

// Filter narrows a listing or count. Zero values mean "no constraint".
// DateFrom/DateTo are inclusive calendar-day bounds in YYYY-MM-DD form.
type Filter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Statuses  []Status
	DateFrom  string
	DateTo    string
}

// Query is the single explicit query parameter object consumed by List.
type Query struct {
	Filter Filter
	Sort   SortOrder
	Limit  int
	Offset int
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Normalize clamps pagination to the supported range, so callers and the
// service agree on the effective page size.
func (q Query) Normalize() Query {
	if q.Limit <= 0 {
		q.Limit = DefaultListLimit
	}
	if q.Limit > MaxListLimit {
		q.Limit = MaxListLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// Update is a partial patch; nil fields are left untouched.
type Update struct {
	Status             *Status
	Notes              *string
	DoctorNotes        *string
	Prescription       *Prescription
	PaymentStatus      *PaymentStatus
	CancelledBy        *uuid.UUID
	CancelledAt        *time.Time
	CancellationReason *string
	CompletedAt        *time.Time
	Rating             *int
	Review             *string
}

// Store is the persistence boundary for the scheduling core. The backend is
// chosen once at process start and injected; components never reach for a
// global. Two implementations exist: PgStore (durable) and MemStore
// (in-memory, single node and tests).
type Store interface {
	Create(ctx context.Context, a *Appointment) (*Appointment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, q Query) ([]Appointment, error)
	Count(ctx context.Context, f Filter) (int, error)
	UpdateFields(ctx context.Context, id uuid.UUID, upd Update) (*Appointment, error)

	// TransitionStatus is a compare-and-set: the row is updated only while
	// its status is one of `from`. ErrAppointmentNotFound is returned when
	// no row matches, which makes concurrent sweeps idempotent.
	TransitionStatus(ctx context.Context, id uuid.UUID, from []Status, to Status, upd Update) (*Appointment, error)

	// Conflict reads.
	SlotTaken(ctx context.Context, doctorID uuid.UUID, date, tm string) (bool, error)
	BookedTimes(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error)

	// FindOverdueActive returns active appointments whose composed
	// date-time is strictly before now; input to the completion sweep.
	FindOverdueActive(ctx context.Context, now time.Time) ([]Appointment, error)

	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context) ([]Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	InsertEvent(ctx context.Context, ev Event) error
}
