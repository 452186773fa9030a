package appointment

import "errors"

// All failures in the scheduling core are terminal and synchronous; none is
// retried internally. The groups below are what the API layer switches on.
var (
	// Validation: caller sent something malformed or logically invalid.
	ErrMissingReason = errors.New("reason for appointment is required")
	ErrPastDateTime  = errors.New("appointment must be scheduled for a future date and time")
	ErrBadDate       = errors.New("date must be in YYYY-MM-DD format")
	ErrBadTime       = errors.New("time must be in HH:MM 24-hour format")
	ErrFieldTooLong  = errors.New("field exceeds maximum length")
	ErrBadRating     = errors.New("rating must be between 1 and 5")
	ErrBadStatus     = errors.New("unknown appointment status")

	// Conflict: the requested slot is occupied or contended.
	ErrSlotTaken       = errors.New("this time slot is already booked")
	ErrSlotBeingBooked = errors.New("slot is currently being booked, please retry")

	// Not found.
	ErrDoctorNotFound      = errors.New("doctor not found or inactive")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// Permission: actor role lacks rights for the requested field or action.
	ErrPermissionDenied = errors.New("access denied for this role")

	// State: the requested transition is not in the lifecycle table, or an
	// eligibility window has closed.
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrStatusChanged          = errors.New("appointment status changed concurrently, please retry")
	ErrCancelWindowClosed     = errors.New("appointments can only be cancelled more than 2 hours in advance")
	ErrRescheduleWindowClosed = errors.New("appointments can only be rescheduled more than 24 hours in advance")
)
