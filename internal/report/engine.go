// Package report computes grouped statistics over the appointment
// collection: status distribution, per-doctor performance, per-patient
// summaries, time-bucketed trends and monthly revenue. All reports load
// through the appointment store's read path and group in memory, so the
// same engine serves both store backends.
package report

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinic-scheduling/internal/appointment"
)

type Engine struct {
	store appointment.Store
	log   zerolog.Logger
}

func NewEngine(store appointment.Store, log zerolog.Logger) *Engine {
	return &Engine{
		store: store,
		log:   log.With().Str("component", "report-engine").Logger(),
	}
}

// Filters narrow a report's input set before grouping. StartDate and
// EndDate are inclusive "YYYY-MM-DD" bounds; empty means unbounded.
type Filters struct {
	StartDate string
	EndDate   string
	DoctorID  *uuid.UUID
	Status    *appointment.Status
}

func (f Filters) toStoreFilter() appointment.Filter {
	sf := appointment.Filter{
		DoctorID: f.DoctorID,
		DateFrom: f.StartDate,
		DateTo:   f.EndDate,
	}
	if f.Status != nil {
		sf.Statuses = []appointment.Status{*f.Status}
	}
	return sf
}

func (e *Engine) load(ctx context.Context, f Filters) ([]appointment.Appointment, error) {
	appts, err := e.store.List(ctx, appointment.Query{
		Filter: f.toStoreFilter(),
		Sort:   appointment.SortDateTimeAsc,
	})
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	return appts, nil
}

type StatusCount struct {
	Status       string  `json:"status"`
	Count        int     `json:"count"`
	TotalRevenue float64 `json:"totalRevenue"`
}

// StatusDistribution counts appointments per status, most frequent first.
func (e *Engine) StatusDistribution(ctx context.Context, f Filters) ([]StatusCount, error) {
	appts, err := e.load(ctx, f)
	if err != nil {
		return nil, err
	}

	byStatus := make(map[string]*StatusCount)
	for _, a := range appts {
		sc, ok := byStatus[string(a.Status)]
		if !ok {
			sc = &StatusCount{Status: string(a.Status)}
			byStatus[string(a.Status)] = sc
		}
		sc.Count++
		sc.TotalRevenue += a.Payment.Amount
	}

	out := make([]StatusCount, 0, len(byStatus))
	for _, sc := range byStatus {
		out = append(out, *sc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Status < out[j].Status
	})
	return out, nil
}

type DoctorPerformance struct {
	DoctorID              uuid.UUID `json:"doctorId"`
	DoctorName            string    `json:"doctorName"`
	Specialization        string    `json:"specialization"`
	TotalAppointments     int       `json:"totalAppointments"`
	ConfirmedAppointments int       `json:"confirmedAppointments"`
	CancelledAppointments int       `json:"cancelledAppointments"`
	CompletedAppointments int       `json:"completedAppointments"`
	TotalRevenue          float64   `json:"totalRevenue"`
	AverageRating         float64   `json:"averageRating"`
	ConfirmationRate      float64   `json:"confirmationRate"`
	CompletionRate        float64   `json:"completionRate"`
}

// DoctorPerformance aggregates per-doctor counts, paid revenue, average
// rating and derived rates. A doctor with zero appointments in range
// reports 0 rates rather than NaN.
func (e *Engine) DoctorPerformance(ctx context.Context, f Filters) ([]DoctorPerformance, error) {
	appts, err := e.load(ctx, f)
	if err != nil {
		return nil, err
	}

	type acc struct {
		perf        DoctorPerformance
		ratingSum   int
		ratingCount int
	}
	byDoctor := make(map[uuid.UUID]*acc)

	for _, a := range appts {
		d, ok := byDoctor[a.DoctorID]
		if !ok {
			d = &acc{perf: DoctorPerformance{DoctorID: a.DoctorID}}
			byDoctor[a.DoctorID] = d
		}
		d.perf.TotalAppointments++
		switch a.Status {
		case appointment.StatusConfirmed:
			d.perf.ConfirmedAppointments++
		case appointment.StatusCancelled:
			d.perf.CancelledAppointments++
		case appointment.StatusCompleted:
			d.perf.CompletedAppointments++
		}
		if a.Payment.Status == appointment.PaymentPaid {
			d.perf.TotalRevenue += a.Payment.Amount
		}
		if a.Rating != nil {
			d.ratingSum += *a.Rating
			d.ratingCount++
		}
	}

	out := make([]DoctorPerformance, 0, len(byDoctor))
	for id, d := range byDoctor {
		if doc, err := e.store.GetDoctorByID(ctx, id); err == nil {
			d.perf.DoctorName = doc.Name
			d.perf.Specialization = doc.Specialization
		} else {
			e.log.Warn().Err(err).Str("doctor_id", id.String()).Msg("doctor lookup failed for report row")
		}
		if d.ratingCount > 0 {
			d.perf.AverageRating = round2(float64(d.ratingSum) / float64(d.ratingCount))
		}
		d.perf.ConfirmationRate = rate(d.perf.ConfirmedAppointments, d.perf.TotalAppointments)
		d.perf.CompletionRate = rate(d.perf.CompletedAppointments, d.perf.TotalAppointments)
		out = append(out, d.perf)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalAppointments != out[j].TotalAppointments {
			return out[i].TotalAppointments > out[j].TotalAppointments
		}
		return out[i].DoctorName < out[j].DoctorName
	})
	return out, nil
}

// DoctorOption is one entry in the doctor filter list served alongside the
// reports, enough for a dropdown.
type DoctorOption struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Specialization string    `json:"specialization"`
}

// Doctors lists every doctor for report filtering, sorted by name.
func (e *Engine) Doctors(ctx context.Context) ([]DoctorOption, error) {
	docs, err := e.store.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	out := make([]DoctorOption, 0, len(docs))
	for _, d := range docs {
		out = append(out, DoctorOption{
			ID:             d.ID,
			Name:           d.Name,
			Specialization: d.Specialization,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type PatientSummary struct {
	PatientID        uuid.UUID `json:"patientId"`
	PatientName      string    `json:"patientName"`
	PatientEmail     string    `json:"patientEmail"`
	AppointmentCount int       `json:"appointmentCount"`
	TotalSpent       float64   `json:"totalSpent"`
	LastAppointment  string    `json:"lastAppointment"`
}

type PatientReport struct {
	TotalPatients     int              `json:"totalPatients"`
	Patients          []PatientSummary `json:"patients"`
	TotalAppointments int              `json:"totalAppointments"`
	TotalRevenue      float64          `json:"totalRevenue"`
}

// PatientReport summarizes activity per patient plus collection totals.
func (e *Engine) PatientReport(ctx context.Context, f Filters) (*PatientReport, error) {
	appts, err := e.load(ctx, f)
	if err != nil {
		return nil, err
	}

	byPatient := make(map[uuid.UUID]*PatientSummary)
	for _, a := range appts {
		p, ok := byPatient[a.PatientID]
		if !ok {
			p = &PatientSummary{PatientID: a.PatientID}
			byPatient[a.PatientID] = p
		}
		p.AppointmentCount++
		p.TotalSpent += a.Payment.Amount
		if a.Date > p.LastAppointment {
			p.LastAppointment = a.Date
		}
	}

	report := &PatientReport{
		TotalPatients: len(byPatient),
		Patients:      make([]PatientSummary, 0, len(byPatient)),
	}
	for id, p := range byPatient {
		if pat, err := e.store.GetPatientByID(ctx, id); err == nil {
			p.PatientName = pat.Name
			p.PatientEmail = pat.Email
		} else {
			e.log.Warn().Err(err).Str("patient_id", id.String()).Msg("patient lookup failed for report row")
		}
		report.Patients = append(report.Patients, *p)
		report.TotalAppointments += p.AppointmentCount
		report.TotalRevenue += p.TotalSpent
	}
	sort.Slice(report.Patients, func(i, j int) bool {
		if report.Patients[i].AppointmentCount != report.Patients[j].AppointmentCount {
			return report.Patients[i].AppointmentCount > report.Patients[j].AppointmentCount
		}
		return report.Patients[i].PatientName < report.Patients[j].PatientName
	})
	return report, nil
}

// Period selects the trend bucket width.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

func (p Period) Valid() bool {
	switch p {
	case PeriodDay, PeriodWeek, PeriodMonth:
		return true
	}
	return false
}

type TrendPoint struct {
	Bucket    string `json:"bucket"`
	Total     int    `json:"total"`
	Confirmed int    `json:"confirmed"`
	Cancelled int    `json:"cancelled"`
	Completed int    `json:"completed"`
}

// Trends buckets appointments by day ("2026-01-02"), ISO week
// ("2026-W01") or month ("2026-01"), ascending by bucket key.
func (e *Engine) Trends(ctx context.Context, period Period, f Filters) ([]TrendPoint, error) {
	if !period.Valid() {
		return nil, fmt.Errorf("%w: trend period %q", appointment.ErrBadDate, period)
	}

	appts, err := e.load(ctx, f)
	if err != nil {
		return nil, err
	}

	buckets := make(map[string]*TrendPoint)
	for _, a := range appts {
		day, err := time.Parse(appointment.DateLayout, a.Date)
		if err != nil {
			e.log.Warn().Str("date", a.Date).Msg("skipping appointment with unparseable date")
			continue
		}
		key := bucketKey(period, day)

		tp, ok := buckets[key]
		if !ok {
			tp = &TrendPoint{Bucket: key}
			buckets[key] = tp
		}
		tp.Total++
		switch a.Status {
		case appointment.StatusConfirmed:
			tp.Confirmed++
		case appointment.StatusCancelled:
			tp.Cancelled++
		case appointment.StatusCompleted:
			tp.Completed++
		}
	}

	out := make([]TrendPoint, 0, len(buckets))
	for _, tp := range buckets {
		out = append(out, *tp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket < out[j].Bucket })
	return out, nil
}

func bucketKey(period Period, day time.Time) string {
	switch period {
	case PeriodDay:
		return day.Format(appointment.DateLayout)
	case PeriodWeek:
		year, week := day.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	default:
		return day.Format("2006-01")
	}
}

type MonthRevenue struct {
	Year             int     `json:"year"`
	Month            int     `json:"month"`
	MonthName        string  `json:"monthName"`
	AppointmentCount int     `json:"appointmentCount"`
	TotalRevenue     float64 `json:"totalRevenue"`
	AvgRevenue       float64 `json:"avgRevenue"`
}

// MonthlyRevenue groups payment amounts by calendar month, chronological.
func (e *Engine) MonthlyRevenue(ctx context.Context, f Filters) ([]MonthRevenue, error) {
	appts, err := e.load(ctx, f)
	if err != nil {
		return nil, err
	}

	type ym struct{ year, month int }
	byMonth := make(map[ym]*MonthRevenue)
	for _, a := range appts {
		day, err := time.Parse(appointment.DateLayout, a.Date)
		if err != nil {
			continue
		}
		key := ym{day.Year(), int(day.Month())}
		mr, ok := byMonth[key]
		if !ok {
			mr = &MonthRevenue{
				Year:      key.year,
				Month:     key.month,
				MonthName: day.Month().String(),
			}
			byMonth[key] = mr
		}
		mr.AppointmentCount++
		mr.TotalRevenue += a.Payment.Amount
	}

	out := make([]MonthRevenue, 0, len(byMonth))
	for _, mr := range byMonth {
		if mr.AppointmentCount > 0 {
			mr.AvgRevenue = round2(mr.TotalRevenue / float64(mr.AppointmentCount))
		}
		out = append(out, *mr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out, nil
}

type DoctorLoad struct {
	DoctorName     string `json:"doctorName"`
	Specialization string `json:"specialization"`
	Count          int    `json:"count"`
}

type RevenueSummary struct {
	TotalRevenue   float64 `json:"totalRevenue"`
	AverageRevenue float64 `json:"averageRevenue"`
}

type Dashboard struct {
	TotalAppointments int            `json:"totalAppointments"`
	ByStatus          []StatusCount  `json:"appointmentsByStatus"`
	TopDoctors        []DoctorLoad   `json:"appointmentsByDoctor"`
	PerDay            []TrendPoint   `json:"appointmentsPerDay"`
	Revenue           RevenueSummary `json:"revenue"`
}

// Dashboard assembles the admin landing-page composite: totals, status
// breakdown, the ten busiest doctors, a 30-day daily series, and paid
// revenue.
func (e *Engine) Dashboard(ctx context.Context, now time.Time, f Filters) (*Dashboard, error) {
	byStatus, err := e.StatusDistribution(ctx, f)
	if err != nil {
		return nil, err
	}

	dash := &Dashboard{ByStatus: byStatus}
	for _, sc := range byStatus {
		dash.TotalAppointments += sc.Count
	}

	perf, err := e.DoctorPerformance(ctx, f)
	if err != nil {
		return nil, err
	}
	for i, p := range perf {
		if i == 10 {
			break
		}
		dash.TopDoctors = append(dash.TopDoctors, DoctorLoad{
			DoctorName:     p.DoctorName,
			Specialization: p.Specialization,
			Count:          p.TotalAppointments,
		})
	}

	dayFilters := f
	cutoff := now.AddDate(0, 0, -30).Format(appointment.DateLayout)
	if dayFilters.StartDate == "" || dayFilters.StartDate < cutoff {
		dayFilters.StartDate = cutoff
	}
	perDay, err := e.Trends(ctx, PeriodDay, dayFilters)
	if err != nil {
		return nil, err
	}
	dash.PerDay = perDay

	paidCount := 0
	appts, err := e.load(ctx, f)
	if err != nil {
		return nil, err
	}
	for _, a := range appts {
		if a.Payment.Status == appointment.PaymentPaid {
			dash.Revenue.TotalRevenue += a.Payment.Amount
			paidCount++
		}
	}
	if paidCount > 0 {
		dash.Revenue.AverageRevenue = round2(dash.Revenue.TotalRevenue / float64(paidCount))
	}

	return dash, nil
}

// rate is pct = part/total*100 rounded to two decimals, 0 when total is 0.
func rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
