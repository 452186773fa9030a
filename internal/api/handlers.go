package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicore/clinic-scheduling/internal/appointment"
	redisclient "github.com/clinicore/clinic-scheduling/internal/redis"
)

// actorFrom reads the caller identity from the X-Actor-ID / X-Actor-Role
// headers. Authentication happens upstream; this layer only needs to
// know who is acting for ownership and role checks.
func actorFrom(r *http.Request) (uuid.UUID, appointment.Role, error) {
	id, err := uuid.Parse(r.Header.Get("X-Actor-ID"))
	if err != nil {
		return uuid.Nil, "", errors.New("X-Actor-ID must be a valid UUID")
	}
	role := appointment.Role(r.Header.Get("X-Actor-Role"))
	if !role.Valid() {
		return uuid.Nil, "", errors.New("X-Actor-Role must be patient, doctor or admin")
	}
	return id, role, nil
}

func bookAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}

		appt, err := svc.Book(r.Context(), appointment.BookRequest{
			PatientID: patientID,
			DoctorID:  doctorID,
			Date:      req.Date,
			Time:      req.Time,
			Reason:    req.Reason,
			Notes:     req.Notes,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, appt)
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parseListQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}

		// Patients and doctors are scoped to their own records; admins
		// keep whatever filters they asked for.
		if r.Header.Get("X-Actor-ID") != "" {
			actorID, role, err := actorFrom(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_actor", err.Error())
				return
			}
			switch role {
			case appointment.RolePatient:
				q.Filter.PatientID = &actorID
			case appointment.RoleDoctor:
				q.Filter.DoctorID = &actorID
			}
		}

		q = q.Normalize()
		appts, total, err := svc.List(r.Context(), q)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if appts == nil {
			appts = []appointment.Appointment{}
		}
		writeJSON(w, http.StatusOK, AppointmentListResponse{
			Appointments: appts,
			Total:        total,
			Limit:        q.Limit,
			Offset:       q.Offset,
		})
	}
}

func parseListQuery(r *http.Request) (appointment.Query, error) {
	var q appointment.Query
	qs := r.URL.Query()

	if v := qs.Get("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return q, errors.New("patient_id must be a valid UUID")
		}
		q.Filter.PatientID = &id
	}
	if v := qs.Get("doctor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return q, errors.New("doctor_id must be a valid UUID")
		}
		q.Filter.DoctorID = &id
	}
	if v := qs.Get("status"); v != "" {
		st := appointment.Status(v)
		if !st.Valid() {
			return q, errors.New("unknown status filter")
		}
		q.Filter.Statuses = []appointment.Status{st}
	}
	q.Filter.DateFrom = qs.Get("date_from")
	q.Filter.DateTo = qs.Get("date_to")

	if v := qs.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return q, errors.New("limit must be a non-negative integer")
		}
		q.Limit = n
	}
	if v := qs.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return q, errors.New("offset must be a non-negative integer")
		}
		q.Offset = n
	}
	if qs.Get("sort") == "asc" {
		q.Sort = appointment.SortDateTimeAsc
	}
	return q, nil
}

func updateAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}
		actorID, role, err := actorFrom(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_actor", err.Error())
			return
		}

		var req UpdateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		upd := appointment.UpdateRequest{
			Notes:        req.Notes,
			DoctorNotes:  req.DoctorNotes,
			Prescription: req.Prescription,
			Rating:       req.Rating,
			Review:       req.Review,
		}
		if req.Status != nil {
			st := appointment.Status(*req.Status)
			upd.Status = &st
		}
		if req.PaymentStatus != nil {
			ps := appointment.PaymentStatus(*req.PaymentStatus)
			upd.PaymentStatus = &ps
		}

		appt, err := svc.Update(r.Context(), id, actorID, role, upd)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}
		actorID, role, err := actorFrom(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_actor", err.Error())
			return
		}

		var req CancelAppointmentRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
		}

		appt, err := svc.Cancel(r.Context(), id, actorID, role, req.Reason)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func rescheduleAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}
		actorID, role, err := actorFrom(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_actor", err.Error())
			return
		}

		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, actorID, role, req.Date, req.Time)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func availabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}
		date := r.URL.Query().Get("date")
		if date == "" {
			writeError(w, http.StatusBadRequest, "missing_date", "date query parameter is required")
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), doctorID, date)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, AvailabilityResponse{
			DoctorID: doctorID.String(),
			Date:     date,
			Slots:    slots,
		})
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", err.Error())
	case errors.Is(err, appointment.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, appointment.ErrStatusChanged):
		writeError(w, http.StatusConflict, "status_changed", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition),
		errors.Is(err, appointment.ErrCancelWindowClosed),
		errors.Is(err, appointment.ErrRescheduleWindowClosed):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, appointment.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "permission_denied", err.Error())
	case errors.Is(err, appointment.ErrMissingReason),
		errors.Is(err, appointment.ErrPastDateTime),
		errors.Is(err, appointment.ErrBadDate),
		errors.Is(err, appointment.ErrBadTime),
		errors.Is(err, appointment.ErrFieldTooLong),
		errors.Is(err, appointment.ErrBadRating),
		errors.Is(err, appointment.ErrBadStatus):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
