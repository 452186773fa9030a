package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/clinic-scheduling/internal/appointment"
	redisclient "github.com/clinicore/clinic-scheduling/internal/redis"
	"github.com/clinicore/clinic-scheduling/internal/report"
)

type testServer struct {
	srv      *httptest.Server
	store    *appointment.MemStore
	doctorID uuid.UUID
	patient  uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := appointment.NewMemStore()
	svc := appointment.NewService(store, redisclient.NewLocalBookingLocker(), zerolog.Nop())
	eng := report.NewEngine(store, zerolog.Nop())

	ts := &testServer{
		store:    store,
		doctorID: uuid.New(),
		patient:  uuid.New(),
	}
	store.AddDoctor(appointment.Doctor{
		ID:              ts.doctorID,
		Name:            "Dr. Asha Rao",
		Specialization:  "Cardiology",
		ConsultationFee: 150,
		Active:          true,
		Availability: appointment.WeeklyAvailability{
			time.Monday: {{Start: "09:00", End: "12:00"}},
		},
	})
	store.AddPatient(appointment.Patient{ID: ts.patient, Name: "Jonas Weber"})

	ts.srv = httptest.NewServer(NewRouter(RouterConfig{
		Service: svc,
		Reports: eng,
		Log:     zerolog.Nop(),
		Env:     "test",
		Version: "test",
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, actorID uuid.UUID, role string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	if actorID != uuid.Nil {
		req.Header.Set("X-Actor-ID", actorID.String())
		req.Header.Set("X-Actor-Role", role)
	}

	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (ts *testServer) book(t *testing.T, offset time.Duration) appointment.Appointment {
	t.Helper()

	at := time.Now().Add(offset)
	resp := ts.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		PatientID: ts.patient.String(),
		DoctorID:  ts.doctorID.String(),
		Date:      at.Format(appointment.DateLayout),
		Time:      at.Format(appointment.TimeLayout),
		Reason:    "check-up",
	}, uuid.Nil, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[appointment.Appointment](t, resp)
}

func TestBookEndpoint(t *testing.T) {
	ts := newTestServer(t)

	appt := ts.book(t, 48*time.Hour)
	assert.Equal(t, appointment.StatusScheduled, appt.Status)
	assert.Equal(t, ts.patient, appt.PatientID)

	// Same slot again conflicts.
	resp := ts.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		PatientID: ts.patient.String(),
		DoctorID:  ts.doctorID.String(),
		Date:      appt.Date,
		Time:      appt.Time,
		Reason:    "duplicate",
	}, uuid.Nil, "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	errResp := decode[ErrorResponse](t, resp)
	assert.Equal(t, "slot_taken", errResp.Error)
}

func TestBookEndpointValidation(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		PatientID: "not-a-uuid",
		DoctorID:  ts.doctorID.String(),
		Date:      "2026-09-07",
		Time:      "09:00",
		Reason:    "x",
	}, uuid.Nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		PatientID: ts.patient.String(),
		DoctorID:  ts.doctorID.String(),
		Date:      "2026-09-07",
		Time:      "09:00",
	}, uuid.Nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errResp := decode[ErrorResponse](t, resp)
	assert.Equal(t, "invalid_request", errResp.Error)
}

func TestGetAndListEndpoints(t *testing.T) {
	ts := newTestServer(t)
	appt := ts.book(t, 48*time.Hour)

	resp := ts.do(t, http.MethodGet, "/appointments/"+appt.ID.String(), nil, uuid.Nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[appointment.Appointment](t, resp)
	assert.Equal(t, appt.ID, got.ID)

	resp = ts.do(t, http.MethodGet, "/appointments/"+uuid.New().String(), nil, uuid.Nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/appointments?patient_id="+ts.patient.String(), nil, uuid.Nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[AppointmentListResponse](t, resp)
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Appointments, 1)
	// An omitted limit is echoed as the effective default page size.
	assert.Equal(t, appointment.DefaultListLimit, list.Limit)

	resp = ts.do(t, http.MethodGet, "/appointments?limit=500", nil, uuid.Nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list = decode[AppointmentListResponse](t, resp)
	assert.Equal(t, appointment.MaxListLimit, list.Limit)
}

func TestListScopedToActor(t *testing.T) {
	ts := newTestServer(t)
	ts.book(t, 48*time.Hour)

	// A patient only ever sees their own appointments, even when they
	// ask for someone else's.
	resp := ts.do(t, http.MethodGet, "/appointments?patient_id="+ts.patient.String(), nil, uuid.New(), "patient")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[AppointmentListResponse](t, resp)
	assert.Equal(t, 0, list.Total)

	resp = ts.do(t, http.MethodGet, "/appointments", nil, ts.patient, "patient")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list = decode[AppointmentListResponse](t, resp)
	assert.Equal(t, 1, list.Total)

	// A doctor is scoped to their own schedule.
	resp = ts.do(t, http.MethodGet, "/appointments", nil, ts.doctorID, "doctor")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list = decode[AppointmentListResponse](t, resp)
	assert.Equal(t, 1, list.Total)
}

func TestCancelEndpointEnforcesRole(t *testing.T) {
	ts := newTestServer(t)
	appt := ts.book(t, 48*time.Hour)
	path := "/appointments/" + appt.ID.String() + "/cancel"

	// Missing actor headers.
	resp := ts.do(t, http.MethodPost, path, CancelAppointmentRequest{Reason: "x"}, uuid.Nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// A stranger may not cancel someone else's appointment.
	resp = ts.do(t, http.MethodPost, path, CancelAppointmentRequest{Reason: "x"}, uuid.New(), "patient")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, path, CancelAppointmentRequest{Reason: "conflict"}, ts.patient, "patient")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[appointment.Appointment](t, resp)
	assert.Equal(t, appointment.StatusCancelled, got.Status)
}

func TestCancelInsideWindowConflicts(t *testing.T) {
	ts := newTestServer(t)
	appt := ts.book(t, 90*time.Minute)

	resp := ts.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel",
		CancelAppointmentRequest{Reason: "x"}, ts.patient, "patient")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	errResp := decode[ErrorResponse](t, resp)
	assert.Equal(t, "invalid_state", errResp.Error)
}

func TestUpdateEndpoint(t *testing.T) {
	ts := newTestServer(t)
	appt := ts.book(t, 48*time.Hour)
	path := "/appointments/" + appt.ID.String()

	confirmed := "confirmed"
	resp := ts.do(t, http.MethodPatch, path, UpdateAppointmentRequest{Status: &confirmed}, ts.patient, "patient")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, http.MethodPatch, path, UpdateAppointmentRequest{Status: &confirmed}, ts.doctorID, "doctor")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[appointment.Appointment](t, resp)
	assert.Equal(t, appointment.StatusConfirmed, got.Status)
}

func TestRescheduleEndpoint(t *testing.T) {
	ts := newTestServer(t)
	appt := ts.book(t, 48*time.Hour)

	at := time.Now().Add(72 * time.Hour)
	resp := ts.do(t, http.MethodPost, "/appointments/"+appt.ID.String()+"/reschedule",
		RescheduleAppointmentRequest{
			Date: at.Format(appointment.DateLayout),
			Time: at.Format(appointment.TimeLayout),
		}, ts.patient, "patient")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[appointment.Appointment](t, resp)
	assert.Equal(t, appointment.StatusScheduled, got.Status)
	assert.NotEqual(t, appt.ID, got.ID)
}

func TestAvailabilityEndpoint(t *testing.T) {
	ts := newTestServer(t)

	// Next Monday, at least a week out so open slots remain bookable.
	day := time.Now().AddDate(0, 0, 7)
	for day.Weekday() != time.Monday {
		day = day.AddDate(0, 0, 1)
	}
	date := day.Format(appointment.DateLayout)

	resp := ts.do(t, http.MethodGet,
		fmt.Sprintf("/doctors/%s/availability?date=%s", ts.doctorID, date), nil, uuid.Nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	avail := decode[AvailabilityResponse](t, resp)
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30"}, avail.Slots)

	resp = ts.do(t, http.MethodGet,
		fmt.Sprintf("/doctors/%s/availability", ts.doctorID), nil, uuid.Nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReportEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.book(t, 48*time.Hour)
	ts.book(t, 72*time.Hour)

	resp := ts.do(t, http.MethodGet, "/reports/status-distribution", nil, uuid.Nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dist := decode[[]report.StatusCount](t, resp)
	require.Len(t, dist, 1)
	assert.Equal(t, "scheduled", dist[0].Status)
	assert.Equal(t, 2, dist[0].Count)

	resp = ts.do(t, http.MethodGet, "/reports/doctors", nil, uuid.Nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	docs := decode[[]report.DoctorOption](t, resp)
	require.Len(t, docs, 1)
	assert.Equal(t, ts.doctorID, docs[0].ID)
	assert.NotEmpty(t, docs[0].Name)

	resp = ts.do(t, http.MethodGet, "/reports/trends?period=year", nil, uuid.Nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/reports/dashboard", nil, uuid.Nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dash := decode[report.Dashboard](t, resp)
	assert.Equal(t, 2, dash.TotalAppointments)
}

func TestCSVExportEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.book(t, 48*time.Hour)

	resp := ts.do(t, http.MethodGet, "/reports/status-distribution/export.csv", nil, uuid.Nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "status-distribution_")

	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "status,count,totalRevenue", lines[0])

	resp = ts.do(t, http.MethodGet, "/reports/unknown/export.csv", nil, uuid.Nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthLive(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/health/live", nil, uuid.Nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	live := decode[LivenessResponse](t, resp)
	assert.Equal(t, "ok", live.Status)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
