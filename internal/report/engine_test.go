package report

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/clinic-scheduling/internal/appointment"
)

type fixture struct {
	engine  *Engine
	store   *appointment.MemStore
	doctorA uuid.UUID
	doctorB uuid.UUID
	patient uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := appointment.NewMemStore()
	f := &fixture{
		engine:  NewEngine(store, zerolog.Nop()),
		store:   store,
		doctorA: uuid.New(),
		doctorB: uuid.New(),
		patient: uuid.New(),
	}
	store.AddDoctor(appointment.Doctor{ID: f.doctorA, Name: "Dr. Asha Rao", Specialization: "Cardiology", Active: true})
	store.AddDoctor(appointment.Doctor{ID: f.doctorB, Name: "Dr. Tom Becker", Specialization: "Dermatology", Active: true})
	store.AddPatient(appointment.Patient{ID: f.patient, Name: "Jonas Weber", Email: "jonas@example.com"})
	return f
}

func (f *fixture) add(t *testing.T, doctorID uuid.UUID, date string, status appointment.Status, amount float64, paid bool, rating int) {
	t.Helper()

	payStatus := appointment.PaymentPending
	if paid {
		payStatus = appointment.PaymentPaid
	}
	a := &appointment.Appointment{
		PatientID: f.patient,
		DoctorID:  doctorID,
		Date:      date,
		Time:      "09:00",
		Status:    status,
		Reason:    "visit",
		Payment:   appointment.Payment{Amount: amount, Status: payStatus},
	}
	if rating > 0 {
		a.Rating = &rating
	}
	// Cancelled rows never collide with the active-slot constraint, and
	// fixtures spread active rows over distinct dates.
	_, err := f.store.Create(context.Background(), a)
	require.NoError(t, err)
}

func TestDoctorsForFiltering(t *testing.T) {
	f := newFixture(t)

	docs, err := f.engine.Doctors(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Dr. Asha Rao", docs[0].Name)
	assert.Equal(t, "Cardiology", docs[0].Specialization)
	assert.Equal(t, f.doctorA, docs[0].ID)
	assert.Equal(t, "Dr. Tom Becker", docs[1].Name)
}

func TestStatusDistribution(t *testing.T) {
	f := newFixture(t)
	f.add(t, f.doctorA, "2026-03-02", appointment.StatusConfirmed, 100, true, 0)
	f.add(t, f.doctorA, "2026-03-03", appointment.StatusConfirmed, 100, true, 0)
	f.add(t, f.doctorA, "2026-03-04", appointment.StatusCancelled, 100, false, 0)

	dist, err := f.engine.StatusDistribution(context.Background(), Filters{})
	require.NoError(t, err)

	require.Len(t, dist, 2)
	assert.Equal(t, StatusCount{Status: "confirmed", Count: 2, TotalRevenue: 200}, dist[0])
	assert.Equal(t, StatusCount{Status: "cancelled", Count: 1, TotalRevenue: 100}, dist[1])
}

func TestDoctorPerformanceRates(t *testing.T) {
	f := newFixture(t)
	f.add(t, f.doctorA, "2026-03-02", appointment.StatusConfirmed, 100, true, 0)
	f.add(t, f.doctorA, "2026-03-03", appointment.StatusConfirmed, 100, false, 0)
	f.add(t, f.doctorA, "2026-03-04", appointment.StatusCancelled, 100, false, 0)

	perf, err := f.engine.DoctorPerformance(context.Background(), Filters{})
	require.NoError(t, err)
	require.Len(t, perf, 1)

	got := perf[0]
	assert.Equal(t, "Dr. Asha Rao", got.DoctorName)
	assert.Equal(t, 3, got.TotalAppointments)
	assert.Equal(t, 2, got.ConfirmedAppointments)
	assert.Equal(t, 1, got.CancelledAppointments)
	assert.Equal(t, 66.67, got.ConfirmationRate)
	assert.Equal(t, 0.0, got.CompletionRate)
	// Only the paid appointment counts toward revenue.
	assert.Equal(t, 100.0, got.TotalRevenue)
}

func TestDoctorPerformanceAverageRating(t *testing.T) {
	f := newFixture(t)
	f.add(t, f.doctorA, "2026-03-02", appointment.StatusCompleted, 100, true, 4)
	f.add(t, f.doctorA, "2026-03-03", appointment.StatusCompleted, 100, true, 5)
	f.add(t, f.doctorA, "2026-03-04", appointment.StatusCompleted, 100, true, 0) // unrated

	perf, err := f.engine.DoctorPerformance(context.Background(), Filters{})
	require.NoError(t, err)
	require.Len(t, perf, 1)
	assert.Equal(t, 4.5, perf[0].AverageRating)
	assert.Equal(t, 100.0, perf[0].CompletionRate)
}

func TestDoctorPerformanceSortsByVolume(t *testing.T) {
	f := newFixture(t)
	f.add(t, f.doctorA, "2026-03-02", appointment.StatusConfirmed, 100, false, 0)
	f.add(t, f.doctorB, "2026-03-02", appointment.StatusConfirmed, 100, false, 0)
	f.add(t, f.doctorB, "2026-03-03", appointment.StatusConfirmed, 100, false, 0)

	perf, err := f.engine.DoctorPerformance(context.Background(), Filters{})
	require.NoError(t, err)
	require.Len(t, perf, 2)
	assert.Equal(t, "Dr. Tom Becker", perf[0].DoctorName)
	assert.Equal(t, "Dr. Asha Rao", perf[1].DoctorName)
}

func TestPatientReportTotals(t *testing.T) {
	f := newFixture(t)
	other := uuid.New()
	f.store.AddPatient(appointment.Patient{ID: other, Name: "Mira Chen", Email: "mira@example.com"})

	f.add(t, f.doctorA, "2026-03-02", appointment.StatusCompleted, 100, true, 0)
	f.add(t, f.doctorA, "2026-03-10", appointment.StatusCompleted, 150, true, 0)
	_, err := f.store.Create(context.Background(), &appointment.Appointment{
		PatientID: other,
		DoctorID:  f.doctorB,
		Date:      "2026-03-05",
		Time:      "09:00",
		Status:    appointment.StatusCompleted,
		Reason:    "visit",
		Payment:   appointment.Payment{Amount: 80, Status: appointment.PaymentPaid},
	})
	require.NoError(t, err)

	report, err := f.engine.PatientReport(context.Background(), Filters{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalPatients)
	assert.Equal(t, 3, report.TotalAppointments)
	assert.Equal(t, 330.0, report.TotalRevenue)

	require.Len(t, report.Patients, 2)
	top := report.Patients[0]
	assert.Equal(t, "Jonas Weber", top.PatientName)
	assert.Equal(t, 2, top.AppointmentCount)
	assert.Equal(t, 250.0, top.TotalSpent)
	assert.Equal(t, "2026-03-10", top.LastAppointment)
}

func TestTrendsBuckets(t *testing.T) {
	f := newFixture(t)
	// 2026-03-02 is a Monday in ISO week 10; 2026-03-09 opens week 11.
	f.add(t, f.doctorA, "2026-03-02", appointment.StatusConfirmed, 100, false, 0)
	f.add(t, f.doctorA, "2026-03-03", appointment.StatusCancelled, 100, false, 0)
	f.add(t, f.doctorA, "2026-03-09", appointment.StatusCompleted, 100, false, 0)
	f.add(t, f.doctorA, "2026-04-01", appointment.StatusConfirmed, 100, false, 0)

	tests := []struct {
		period  Period
		buckets []string
	}{
		{PeriodDay, []string{"2026-03-02", "2026-03-03", "2026-03-09", "2026-04-01"}},
		{PeriodWeek, []string{"2026-W10", "2026-W11", "2026-W14"}},
		{PeriodMonth, []string{"2026-03", "2026-04"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.period), func(t *testing.T) {
			trends, err := f.engine.Trends(context.Background(), tt.period, Filters{})
			require.NoError(t, err)

			got := make([]string, len(trends))
			for i, tp := range trends {
				got[i] = tp.Bucket
			}
			assert.Equal(t, tt.buckets, got)
		})
	}

	trends, err := f.engine.Trends(context.Background(), PeriodMonth, Filters{})
	require.NoError(t, err)
	march := trends[0]
	assert.Equal(t, 3, march.Total)
	assert.Equal(t, 1, march.Confirmed)
	assert.Equal(t, 1, march.Cancelled)
	assert.Equal(t, 1, march.Completed)

	_, err = f.engine.Trends(context.Background(), Period("year"), Filters{})
	assert.Error(t, err)
}

func TestMonthlyRevenue(t *testing.T) {
	f := newFixture(t)
	f.add(t, f.doctorA, "2026-03-02", appointment.StatusCompleted, 100, true, 0)
	f.add(t, f.doctorA, "2026-03-10", appointment.StatusCompleted, 101, true, 0)
	f.add(t, f.doctorA, "2026-04-01", appointment.StatusCompleted, 50, true, 0)

	months, err := f.engine.MonthlyRevenue(context.Background(), Filters{})
	require.NoError(t, err)
	require.Len(t, months, 2)

	assert.Equal(t, 2026, months[0].Year)
	assert.Equal(t, 3, months[0].Month)
	assert.Equal(t, "March", months[0].MonthName)
	assert.Equal(t, 201.0, months[0].TotalRevenue)
	assert.Equal(t, 100.5, months[0].AvgRevenue)

	assert.Equal(t, "April", months[1].MonthName)
	assert.Equal(t, 50.0, months[1].TotalRevenue)
}

func TestFiltersNarrowInput(t *testing.T) {
	f := newFixture(t)
	f.add(t, f.doctorA, "2026-03-02", appointment.StatusConfirmed, 100, false, 0)
	f.add(t, f.doctorB, "2026-03-03", appointment.StatusConfirmed, 100, false, 0)
	f.add(t, f.doctorA, "2026-05-01", appointment.StatusConfirmed, 100, false, 0)

	dist, err := f.engine.StatusDistribution(context.Background(), Filters{
		DoctorID: &f.doctorA,
		EndDate:  "2026-03-31",
	})
	require.NoError(t, err)
	require.Len(t, dist, 1)
	assert.Equal(t, 1, dist[0].Count)
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.Local)

	f.add(t, f.doctorA, "2026-03-02", appointment.StatusCompleted, 100, true, 0)
	f.add(t, f.doctorA, "2026-03-10", appointment.StatusConfirmed, 200, true, 0)
	f.add(t, f.doctorB, "2026-03-11", appointment.StatusCancelled, 100, false, 0)
	// Outside the 30-day daily window, still in the totals.
	f.add(t, f.doctorB, "2026-01-05", appointment.StatusCompleted, 100, false, 0)

	dash, err := f.engine.Dashboard(context.Background(), now, Filters{})
	require.NoError(t, err)

	assert.Equal(t, 4, dash.TotalAppointments)
	assert.Len(t, dash.TopDoctors, 2)
	assert.Len(t, dash.PerDay, 3)
	assert.Equal(t, 300.0, dash.Revenue.TotalRevenue)
	assert.Equal(t, 150.0, dash.Revenue.AverageRevenue)
}
