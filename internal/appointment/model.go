package appointment

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no-show"
)

// IsActive reports whether a status counts toward conflict detection.
func (s Status) IsActive() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// ActiveStatuses are the statuses that occupy a slot.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed}

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

const (
	// DateLayout is the calendar-day form used throughout the system.
	DateLayout = "2006-01-02"
	// TimeLayout is the 24h wall-clock form used for slot times.
	TimeLayout = "15:04"

	DefaultDurationMinutes = 30

	maxReasonLen      = 500
	maxNotesLen       = 1000
	maxDoctorNotesLen = 1000
	maxReviewLen      = 500
)

type Medication struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration"`
	Instructions string `json:"instructions"`
}

type Prescription struct {
	Medications   []Medication `json:"medications"`
	FollowUpDate  *string      `json:"followUpDate,omitempty"`
	FollowUpNotes string       `json:"followUpNotes,omitempty"`
}

type Payment struct {
	Amount        float64       `json:"amount"`
	Status        PaymentStatus `json:"status"`
	Method        string        `json:"method,omitempty"`
	TransactionID string        `json:"transactionId,omitempty"`
	PaidAt        *time.Time    `json:"paidAt,omitempty"`
}

type ReminderChannel struct {
	Enabled bool       `json:"enabled"`
	Sent    bool       `json:"sent"`
	SentAt  *time.Time `json:"sentAt,omitempty"`
}

type Reminders struct {
	Email ReminderChannel `json:"email"`
	SMS   ReminderChannel `json:"sms"`
}

// DefaultReminders mirrors the defaults applied on booking: email on, sms off.
func DefaultReminders() Reminders {
	return Reminders{
		Email: ReminderChannel{Enabled: true},
		SMS:   ReminderChannel{Enabled: false},
	}
}

// Appointment is the central scheduling record. Date and Time are kept in
// their wire forms (YYYY-MM-DD, HH:MM); all schedule times are clinic-local.
type Appointment struct {
	ID                 uuid.UUID     `json:"id"`
	PatientID          uuid.UUID     `json:"patient_id"`
	DoctorID           uuid.UUID     `json:"doctor_id"`
	Date               string        `json:"date"`
	Time               string        `json:"time"`
	DurationMinutes    int           `json:"duration_minutes"`
	Status             Status        `json:"status"`
	Reason             string        `json:"reason"`
	Notes              string        `json:"notes,omitempty"`
	DoctorNotes        string        `json:"doctor_notes,omitempty"`
	Prescription       *Prescription `json:"prescription,omitempty"`
	Payment            Payment       `json:"payment"`
	Reminders          Reminders     `json:"reminders"`
	CancelledBy        *uuid.UUID    `json:"cancelled_by,omitempty"`
	CancelledAt        *time.Time    `json:"cancelled_at,omitempty"`
	CancellationReason string        `json:"cancellation_reason,omitempty"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty"`
	Rating             *int          `json:"rating,omitempty"`
	Review             string        `json:"review,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// StartTime combines Date and Time into a single clinic-local instant.
func (a *Appointment) StartTime() (time.Time, error) {
	return ComposeDateTime(a.Date, a.Time)
}

// ComposeDateTime parses a YYYY-MM-DD date and HH:MM time into one instant
// in the server's local zone. The schedule carries no explicit zone; the
// convention is that every date and time is clinic-local.
func ComposeDateTime(date, tm string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+tm, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("compose date-time %q %q: %w", date, tm, err)
	}
	return t, nil
}

// TimeRange is one availability interval within a weekday, e.g. 09:00-12:00.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// WeeklyAvailability maps weekdays to a doctor's configured intervals.
// It marshals to the lowercase weekday-name object used on the wire and
// in the doctors table.
type WeeklyAvailability map[time.Weekday][]TimeRange

var weekdayNames = map[time.Weekday]string{
	time.Sunday:    "sunday",
	time.Monday:    "monday",
	time.Tuesday:   "tuesday",
	time.Wednesday: "wednesday",
	time.Thursday:  "thursday",
	time.Friday:    "friday",
	time.Saturday:  "saturday",
}

func (w WeeklyAvailability) MarshalJSON() ([]byte, error) {
	out := make(map[string][]TimeRange, len(w))
	for day, ranges := range w {
		out[weekdayNames[day]] = ranges
	}
	return json.Marshal(out)
}

func (w *WeeklyAvailability) UnmarshalJSON(data []byte) error {
	var raw map[string][]TimeRange
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed := make(WeeklyAvailability, len(raw))
	for name, ranges := range raw {
		found := false
		for day, n := range weekdayNames {
			if n == name {
				parsed[day] = ranges
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown weekday %q in availability", name)
		}
	}
	*w = parsed
	return nil
}

// Doctor is a reference entity owned by the user service; only the fields
// the scheduling core reads are modeled here.
type Doctor struct {
	ID              uuid.UUID          `json:"id"`
	Name            string             `json:"name"`
	Specialization  string             `json:"specialization"`
	ConsultationFee float64            `json:"consultation_fee"`
	Active          bool               `json:"active"`
	Availability    WeeklyAvailability `json:"availability"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

type Patient struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Event is one audit-trail row written after a mutating operation.
type Event struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	ActorID       *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
