package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinic-scheduling/internal/appointment"
	"github.com/clinicore/clinic-scheduling/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctors, err := seedDoctors(context.Background(), pool, 20)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	patients, err := seedPatients(context.Background(), pool, 500)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := seedAppointments(context.Background(), pool, doctors, patients, 2000); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

// weekdayTemplates are realistic working-hour shapes; each doctor gets one.
var weekdayTemplates = []appointment.WeeklyAvailability{
	{
		time.Monday:    {{Start: "09:00", End: "13:00"}, {Start: "14:00", End: "17:00"}},
		time.Tuesday:   {{Start: "09:00", End: "13:00"}, {Start: "14:00", End: "17:00"}},
		time.Wednesday: {{Start: "09:00", End: "13:00"}},
		time.Thursday:  {{Start: "09:00", End: "13:00"}, {Start: "14:00", End: "17:00"}},
		time.Friday:    {{Start: "09:00", End: "15:00"}},
	},
	{
		time.Monday:    {{Start: "08:00", End: "12:00"}},
		time.Tuesday:   {{Start: "08:00", End: "12:00"}},
		time.Wednesday: {{Start: "08:00", End: "12:00"}},
		time.Thursday:  {{Start: "08:00", End: "12:00"}},
		time.Friday:    {{Start: "08:00", End: "12:00"}},
		time.Saturday:  {{Start: "10:00", End: "13:00"}},
	},
	{
		time.Tuesday:  {{Start: "12:00", End: "20:00"}},
		time.Thursday: {{Start: "12:00", End: "20:00"}},
		time.Saturday: {{Start: "09:00", End: "14:00"}},
	},
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		availability, err := json.Marshal(weekdayTemplates[gofakeit.Number(0, len(weekdayTemplates)-1)])
		if err != nil {
			return nil, err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialization, consultation_fee, active, availability, created_at, updated_at)
			VALUES ($1, $2, $3, $4, true, $5, now(), now())
		`, id, "Dr. "+gofakeit.Name(),
			specialties[gofakeit.Number(0, len(specialties)-1)],
			float64(gofakeit.Number(50, 300)), availability)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	log.Println("doctors seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d patients", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO patients (id, name, email, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, gofakeit.Name(), gofakeit.Email())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	log.Println("patients seeded")
	return ids, nil
}

func seedAppointments(ctx context.Context, pool *pgxpool.Pool, doctors, patients []uuid.UUID, count int) error {
	log.Printf("seeding %d appointments", count)

	reasons := []string{
		"annual check-up", "follow-up visit", "persistent headache",
		"back pain", "skin rash", "blood pressure review",
		"vaccination", "lab results discussion",
	}
	used := make(map[string]struct{})

	const batchSize = 500
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			doctorID := doctors[gofakeit.Number(0, len(doctors)-1)]
			patientID := patients[gofakeit.Number(0, len(patients)-1)]

			// Spread over the last 90 and next 30 days, 30-minute grid.
			day := time.Now().AddDate(0, 0, gofakeit.Number(-90, 30))
			slot := time.Date(day.Year(), day.Month(), day.Day(),
				gofakeit.Number(8, 17), 30*gofakeit.Number(0, 1), 0, 0, time.Local)
			date := slot.Format(appointment.DateLayout)
			tm := slot.Format(appointment.TimeLayout)

			// Skip grid collisions instead of fighting the unique index.
			key := fmt.Sprintf("%s|%s|%s", doctorID, date, tm)
			if _, taken := used[key]; taken {
				continue
			}
			used[key] = struct{}{}

			status := pickStatus(slot)
			payment := appointment.Payment{Amount: float64(gofakeit.Number(50, 300))}
			payment.Status = appointment.PaymentPending
			if status == appointment.StatusCompleted || gofakeit.Bool() {
				payment.Status = appointment.PaymentPaid
			}
			paymentJSON, err := json.Marshal(payment)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
			remindersJSON, err := json.Marshal(appointment.DefaultReminders())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}

			var rating *int
			var completedAt *time.Time
			if status == appointment.StatusCompleted {
				completedAt = &slot
				if gofakeit.Bool() {
					r := gofakeit.Number(1, 5)
					rating = &r
				}
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO appointments (
					id, patient_id, doctor_id, date, time, duration_minutes,
					status, reason, payment, reminders, completed_at, rating,
					created_at, updated_at
				)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
			`, uuid.New(), patientID, doctorID, date, tm, appointment.DefaultDurationMinutes,
				status, reasons[gofakeit.Number(0, len(reasons)-1)],
				paymentJSON, remindersJSON, completedAt, rating)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
		log.Printf("appointments seeded: %d/%d", end, count)
	}

	log.Println("appointments seeded")
	return nil
}

// pickStatus keeps the data plausible: past slots are completed,
// cancelled or no-show; future slots are scheduled or confirmed.
func pickStatus(slot time.Time) appointment.Status {
	if slot.Before(time.Now()) {
		switch gofakeit.Number(0, 9) {
		case 0:
			return appointment.StatusNoShow
		case 1, 2:
			return appointment.StatusCancelled
		default:
			return appointment.StatusCompleted
		}
	}
	if gofakeit.Bool() {
		return appointment.StatusConfirmed
	}
	return appointment.StatusScheduled
}
