package appointment

import "time"

const (
	// CancelWindow is how far before the start an explicit cancellation is
	// still allowed.
	CancelWindow = 2 * time.Hour
	// RescheduleWindow is the corresponding bound for rescheduling, which
	// is modeled as cancel-and-rebook at the service layer.
	RescheduleWindow = 24 * time.Hour
)

// CanCancel reports whether an appointment may still be cancelled at `now`:
// it must be active and start more than CancelWindow from now.
func CanCancel(a *Appointment, now time.Time) bool {
	if !a.Status.IsActive() {
		return false
	}
	start, err := a.StartTime()
	if err != nil {
		return false
	}
	return now.Before(start.Add(-CancelWindow))
}

// CanReschedule reports whether an appointment may still be rescheduled at
// `now`: active, and starting more than RescheduleWindow from now.
func CanReschedule(a *Appointment, now time.Time) bool {
	if !a.Status.IsActive() {
		return false
	}
	start, err := a.StartTime()
	if err != nil {
		return false
	}
	return now.Before(start.Add(-RescheduleWindow))
}

// DueForAutoCompletion reports whether the automatic completed transition is
// due: the appointment is still active and its start is strictly in the
// past. The check is pure, so calling it from the lazy read path and the
// periodic sweep at the same time converges to the same state.
func DueForAutoCompletion(a *Appointment, now time.Time) bool {
	if !a.Status.IsActive() {
		return false
	}
	start, err := a.StartTime()
	if err != nil {
		return false
	}
	return start.Before(now)
}

// CanTransition validates an explicit status change against the lifecycle
// table. Time-based guards (the cancellation window) are checked separately
// by the service; this covers edges and actor roles only.
func CanTransition(from, to Status, actor Role) error {
	if from == to {
		return ErrInvalidTransition
	}
	switch to {
	case StatusConfirmed:
		if from != StatusScheduled {
			return ErrInvalidTransition
		}
		if actor != RoleDoctor && actor != RoleAdmin {
			return ErrPermissionDenied
		}
	case StatusCancelled:
		if !from.IsActive() {
			return ErrInvalidTransition
		}
	case StatusCompleted:
		if !from.IsActive() {
			return ErrInvalidTransition
		}
		if actor != RoleDoctor && actor != RoleAdmin {
			return ErrPermissionDenied
		}
	case StatusNoShow:
		if !from.IsActive() {
			return ErrInvalidTransition
		}
		if actor != RoleDoctor && actor != RoleAdmin {
			return ErrPermissionDenied
		}
	case StatusScheduled:
		// Nothing transitions back to scheduled.
		return ErrInvalidTransition
	default:
		return ErrBadStatus
	}
	return nil
}
