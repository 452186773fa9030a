package api

import (
	"encoding/json"
	"net/http"

	"github.com/clinicore/clinic-scheduling/internal/appointment"
)

type BookAppointmentRequest struct {
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Reason    string `json:"reason"`
	Notes     string `json:"notes,omitempty"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason,omitempty"`
}

type RescheduleAppointmentRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type UpdateAppointmentRequest struct {
	Status        *string                   `json:"status,omitempty"`
	Notes         *string                   `json:"notes,omitempty"`
	DoctorNotes   *string                   `json:"doctor_notes,omitempty"`
	Prescription  *appointment.Prescription `json:"prescription,omitempty"`
	PaymentStatus *string                   `json:"payment_status,omitempty"`
	Rating        *int                      `json:"rating,omitempty"`
	Review        *string                   `json:"review,omitempty"`
}

type AppointmentListResponse struct {
	Appointments []appointment.Appointment `json:"appointments"`
	Total        int                       `json:"total"`
	Limit        int                       `json:"limit"`
	Offset       int                       `json:"offset"`
}

type AvailabilityResponse struct {
	DoctorID string   `json:"doctor_id"`
	Date     string   `json:"date"`
	Slots    []string `json:"slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
