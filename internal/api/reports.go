package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicore/clinic-scheduling/internal/appointment"
	"github.com/clinicore/clinic-scheduling/internal/report"
)

func reportFilters(r *http.Request) (report.Filters, error) {
	qs := r.URL.Query()
	f := report.Filters{
		StartDate: qs.Get("start_date"),
		EndDate:   qs.Get("end_date"),
	}
	if v := qs.Get("doctor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, fmt.Errorf("doctor_id must be a valid UUID")
		}
		f.DoctorID = &id
	}
	// An unknown status value matches nothing rather than erroring,
	// same as the original filters.
	if v := qs.Get("status"); v != "" {
		st := appointment.Status(v)
		f.Status = &st
	}
	return f, nil
}

func statusDistributionHandler(eng *report.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := reportFilters(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}
		data, err := eng.StatusDistribution(r.Context(), f)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, data)
	}
}

func reportDoctorsHandler(eng *report.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := eng.Doctors(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, data)
	}
}

func doctorPerformanceHandler(eng *report.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := reportFilters(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}
		data, err := eng.DoctorPerformance(r.Context(), f)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, data)
	}
}

func patientReportHandler(eng *report.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := reportFilters(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}
		data, err := eng.PatientReport(r.Context(), f)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, data)
	}
}

func trendsHandler(eng *report.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := reportFilters(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}
		period := report.Period(r.URL.Query().Get("period"))
		if period == "" {
			period = report.PeriodMonth
		}
		if !period.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_period", "period must be day, week or month")
			return
		}
		data, err := eng.Trends(r.Context(), period, f)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, data)
	}
}

func monthlyRevenueHandler(eng *report.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := reportFilters(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}
		data, err := eng.MonthlyRevenue(r.Context(), f)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, data)
	}
}

func dashboardHandler(eng *report.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := reportFilters(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}
		data, err := eng.Dashboard(r.Context(), time.Now(), f)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, data)
	}
}

func exportCSVHandler(eng *report.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := reportFilters(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}

		reportType := chi.URLParam(r, "type")
		var rows any
		switch reportType {
		case "status-distribution":
			rows, err = eng.StatusDistribution(r.Context(), f)
		case "doctor-performance":
			rows, err = eng.DoctorPerformance(r.Context(), f)
		case "patients":
			var pr *report.PatientReport
			pr, err = eng.PatientReport(r.Context(), f)
			if err == nil {
				rows = pr.Patients
			}
		case "trends":
			period := report.Period(r.URL.Query().Get("period"))
			if period == "" {
				period = report.PeriodMonth
			}
			rows, err = eng.Trends(r.Context(), period, f)
		case "monthly-revenue":
			rows, err = eng.MonthlyRevenue(r.Context(), f)
		default:
			writeError(w, http.StatusBadRequest, "invalid_report_type", "unknown report type "+reportType)
			return
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}

		csv, err := report.MarshalCSV(rows)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		filename := fmt.Sprintf("%s_%s.csv", reportType, time.Now().Format("2006-01-02"))
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		_, _ = w.Write([]byte(csv))
	}
}
