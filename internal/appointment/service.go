package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/clinicore/clinic-scheduling/internal/redis"
)

const (
	EventAppointmentBooked        = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled     = "APPOINTMENT_CANCELLED"
	EventAppointmentUpdated       = "APPOINTMENT_UPDATED"
	EventAppointmentRescheduled   = "APPOINTMENT_RESCHEDULED"
	EventAppointmentAutoCompleted = "APPOINTMENT_AUTO_COMPLETED"
)

// Service orchestrates booking, cancellation, updates, availability
// resolution and the status sweep. All mutation of the appointment
// collection flows through here (or the sweep), so the lifecycle table is
// the sole mutation gate.
type Service struct {
	store  Store
	locker redisclient.Locker
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(store Store, locker redisclient.Locker, log zerolog.Logger) *Service {
	return &Service{
		store:  store,
		locker: locker,
		log:    log,
		now:    time.Now,
	}
}

// WithClock overrides the service clock; used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type BookRequest struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Date      string
	Time      string
	Reason    string
	Notes     string
}

// Book reserves a slot for a patient. The conflict check and the insert run
// inside a per-booking-key lock so concurrent requests for the same
// (doctor, date, time) cannot both succeed; the store's uniqueness
// constraint is the durable backstop.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if err := validateBooking(req); err != nil {
		return nil, err
	}

	if _, err := s.store.GetPatientByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	doctor, err := s.store.GetDoctorByID(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if !doctor.Active {
		return nil, ErrDoctorNotFound
	}

	start, err := ComposeDateTime(req.Date, req.Time)
	if err != nil {
		return nil, ErrBadTime
	}
	if !start.After(s.now()) {
		return nil, ErrPastDateTime
	}

	var created *Appointment

	err = s.locker.WithBookingLock(ctx, req.DoctorID, req.Date, req.Time, func(lockCtx context.Context) error {
		taken, err := s.store.SlotTaken(lockCtx, req.DoctorID, req.Date, req.Time)
		if err != nil {
			return fmt.Errorf("check slot conflict: %w", err)
		}
		if taken {
			return ErrSlotTaken
		}

		appt, err := s.store.Create(lockCtx, &Appointment{
			PatientID:       req.PatientID,
			DoctorID:        req.DoctorID,
			Date:            req.Date,
			Time:            req.Time,
			DurationMinutes: DefaultDurationMinutes,
			Status:          StatusScheduled,
			Reason:          req.Reason,
			Notes:           req.Notes,
			Payment: Payment{
				Amount: doctor.ConsultationFee,
				Status: PaymentPending,
			},
			Reminders: DefaultReminders(),
		})
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.logEvent(ctx, created.ID, req.PatientID, EventAppointmentBooked, map[string]any{
		"doctor_id": req.DoctorID.String(),
		"date":      req.Date,
		"time":      req.Time,
	})

	return created, nil
}

// Cancel moves an active appointment to cancelled if the 2-hour window has
// not closed yet.
func (s *Service) Cancel(ctx context.Context, id, actorID uuid.UUID, role Role, reason string) (*Appointment, error) {
	appt, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwnership(appt, actorID, role); err != nil {
		return nil, err
	}

	now := s.now()
	if !CanCancel(appt, now) {
		if !appt.Status.IsActive() {
			return nil, ErrInvalidTransition
		}
		return nil, ErrCancelWindowClosed
	}

	updated, err := s.store.TransitionStatus(ctx, id, ActiveStatuses, StatusCancelled, Update{
		CancelledBy:        &actorID,
		CancelledAt:        &now,
		CancellationReason: &reason,
	})
	if err != nil {
		// The row was just read, so a no-match here means the compare-and-set
		// lost to a concurrent transition, not that the row vanished.
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrStatusChanged
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.logEvent(ctx, id, actorID, EventAppointmentCancelled, map[string]any{
		"reason": reason,
	})

	return updated, nil
}

// Reschedule is cancel-and-rebook: the new slot is booked first, then the
// old appointment is cancelled. Only allowed more than 24 hours ahead.
func (s *Service) Reschedule(ctx context.Context, id, actorID uuid.UUID, role Role, newDate, newTime string) (*Appointment, error) {
	appt, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwnership(appt, actorID, role); err != nil {
		return nil, err
	}

	if !CanReschedule(appt, s.now()) {
		if !appt.Status.IsActive() {
			return nil, ErrInvalidTransition
		}
		return nil, ErrRescheduleWindowClosed
	}

	rebooked, err := s.Book(ctx, BookRequest{
		PatientID: appt.PatientID,
		DoctorID:  appt.DoctorID,
		Date:      newDate,
		Time:      newTime,
		Reason:    appt.Reason,
		Notes:     appt.Notes,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	reason := "rescheduled to " + newDate + " " + newTime
	if _, err := s.store.TransitionStatus(ctx, id, ActiveStatuses, StatusCancelled, Update{
		CancelledBy:        &actorID,
		CancelledAt:        &now,
		CancellationReason: &reason,
	}); err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrStatusChanged
		}
		return nil, fmt.Errorf("cancel rescheduled appointment: %w", err)
	}

	s.logEvent(ctx, rebooked.ID, actorID, EventAppointmentRescheduled, map[string]any{
		"previous_appointment_id": id.String(),
		"date":                    newDate,
		"time":                    newTime,
	})

	return rebooked, nil
}

type UpdateRequest struct {
	Status             *Status
	Notes              *string
	DoctorNotes        *string
	Prescription       *Prescription
	Rating             *int
	Review             *string
	PaymentStatus      *PaymentStatus
	CancellationReason string
}

// Update applies the subset of fields the actor's role may touch. Status
// changes run through the lifecycle table.
func (s *Service) Update(ctx context.Context, id, actorID uuid.UUID, role Role, req UpdateRequest) (*Appointment, error) {
	appt, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwnership(appt, actorID, role); err != nil {
		return nil, err
	}

	upd, err := s.buildUpdate(appt, actorID, role, req)
	if err != nil {
		return nil, err
	}

	var updated *Appointment
	if upd.Status != nil {
		to := *upd.Status
		updated, err = s.store.TransitionStatus(ctx, id, []Status{appt.Status}, to, upd)
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrStatusChanged
		}
	} else {
		updated, err = s.store.UpdateFields(ctx, id, upd)
	}
	if err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	s.logEvent(ctx, id, actorID, EventAppointmentUpdated, map[string]any{
		"role": string(role),
	})

	return updated, nil
}

func (s *Service) buildUpdate(appt *Appointment, actorID uuid.UUID, role Role, req UpdateRequest) (Update, error) {
	var upd Update

	switch role {
	case RolePatient:
		if req.DoctorNotes != nil || req.Prescription != nil || req.PaymentStatus != nil {
			return Update{}, ErrPermissionDenied
		}
		if req.Status != nil && *req.Status != StatusCancelled {
			return Update{}, ErrPermissionDenied
		}
	case RoleDoctor:
		if req.Rating != nil || req.Review != nil || req.PaymentStatus != nil {
			return Update{}, ErrPermissionDenied
		}
	case RoleAdmin:
		// any field
	default:
		return Update{}, ErrPermissionDenied
	}

	if req.Notes != nil {
		if len(*req.Notes) > maxNotesLen {
			return Update{}, fmt.Errorf("%w: notes over %d characters", ErrFieldTooLong, maxNotesLen)
		}
		upd.Notes = req.Notes
	}
	if req.DoctorNotes != nil {
		if len(*req.DoctorNotes) > maxDoctorNotesLen {
			return Update{}, fmt.Errorf("%w: doctor notes over %d characters", ErrFieldTooLong, maxDoctorNotesLen)
		}
		upd.DoctorNotes = req.DoctorNotes
	}
	if req.Prescription != nil {
		upd.Prescription = req.Prescription
	}
	if req.PaymentStatus != nil {
		upd.PaymentStatus = req.PaymentStatus
	}
	if req.Rating != nil {
		if appt.Status != StatusCompleted {
			return Update{}, ErrInvalidTransition
		}
		if *req.Rating < 1 || *req.Rating > 5 {
			return Update{}, ErrBadRating
		}
		upd.Rating = req.Rating
	}
	if req.Review != nil {
		if len(*req.Review) > maxReviewLen {
			return Update{}, fmt.Errorf("%w: review over %d characters", ErrFieldTooLong, maxReviewLen)
		}
		upd.Review = req.Review
	}

	if req.Status != nil {
		to := *req.Status
		if !to.Valid() {
			return Update{}, ErrBadStatus
		}
		if err := CanTransition(appt.Status, to, role); err != nil {
			return Update{}, err
		}

		now := s.now()
		switch to {
		case StatusCancelled:
			if !CanCancel(appt, now) {
				return Update{}, ErrCancelWindowClosed
			}
			upd.CancelledBy = &actorID
			upd.CancelledAt = &now
			upd.CancellationReason = &req.CancellationReason
		case StatusCompleted:
			upd.CompletedAt = &now
		}
		upd.Status = &to
	}

	return upd, nil
}

// Get returns one appointment, refreshing stale statuses first so a past
// appointment never reads as still scheduled.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	if _, err := s.RefreshStatuses(ctx, s.now()); err != nil {
		s.log.Warn().Err(err).Msg("lazy status refresh failed")
	}
	return s.store.GetByID(ctx, id)
}

// List returns appointments matching the query plus the unpaginated total.
// Statuses are refreshed lazily first.
func (s *Service) List(ctx context.Context, q Query) ([]Appointment, int, error) {
	if _, err := s.RefreshStatuses(ctx, s.now()); err != nil {
		s.log.Warn().Err(err).Msg("lazy status refresh failed")
	}

	q = q.Normalize()

	appts, err := s.store.List(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	total, err := s.store.Count(ctx, q.Filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}
	return appts, total, nil
}

// AvailableSlots resolves the free 30-minute slots for a doctor on a date.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	doctor, err := s.store.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.Active {
		return nil, ErrDoctorNotFound
	}

	booked, err := s.store.BookedTimes(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("load booked times: %w", err)
	}

	return FreeSlots(doctor.Availability, date, booked, s.now())
}

// RefreshStatuses applies the automatic completed transition to every
// active appointment whose start is before now and returns how many rows
// changed. A failure on one appointment never aborts the sweep; the
// compare-and-set in TransitionStatus makes concurrent sweeps converge.
func (s *Service) RefreshStatuses(ctx context.Context, now time.Time) (int, error) {
	overdue, err := s.store.FindOverdueActive(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("find overdue appointments: %w", err)
	}

	mutated := 0
	for i := range overdue {
		appt := &overdue[i]
		if !DueForAutoCompletion(appt, now) {
			continue
		}

		_, err := s.store.TransitionStatus(ctx, appt.ID, ActiveStatuses, StatusCompleted, Update{
			CompletedAt: &now,
		})
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				// Another sweep got there first.
				continue
			}
			s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("auto-completion failed")
			continue
		}

		mutated++
		s.logEvent(ctx, appt.ID, uuid.Nil, EventAppointmentAutoCompleted, map[string]any{
			"date": appt.Date,
			"time": appt.Time,
		})
	}

	return mutated, nil
}

func validateBooking(req BookRequest) error {
	if _, err := time.Parse(DateLayout, req.Date); err != nil {
		return ErrBadDate
	}
	if _, err := time.Parse(TimeLayout, req.Time); err != nil {
		return ErrBadTime
	}
	if req.Reason == "" {
		return ErrMissingReason
	}
	if len(req.Reason) > maxReasonLen {
		return fmt.Errorf("%w: reason over %d characters", ErrFieldTooLong, maxReasonLen)
	}
	if len(req.Notes) > maxNotesLen {
		return fmt.Errorf("%w: notes over %d characters", ErrFieldTooLong, maxNotesLen)
	}
	return nil
}

func checkOwnership(a *Appointment, actorID uuid.UUID, role Role) error {
	switch role {
	case RolePatient:
		if a.PatientID != actorID {
			return ErrPermissionDenied
		}
	case RoleDoctor:
		if a.DoctorID != actorID {
			return ErrPermissionDenied
		}
	case RoleAdmin:
		// unrestricted
	default:
		return ErrPermissionDenied
	}
	return nil
}

// logEvent records an audit row; failures are logged, never surfaced.
func (s *Service) logEvent(ctx context.Context, appointmentID, actorID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}

	ev := Event{
		EventType:     eventType,
		AppointmentID: &appointmentID,
		CreatedAt:     time.Now(),
		Payload:       data,
	}
	if actorID != uuid.Nil {
		ev.ActorID = &actorID
	}

	if err := s.store.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event", eventType).Str("appointment_id", appointmentID.String()).Msg("insert event")
	}
}
