// Booking-race simulator: a pool of workers repeatedly tries to book the
// same small set of slots through the HTTP API and reports how many
// bookings won versus hit a conflict. Run it against a seeded server to
// demonstrate that a slot is never double-booked.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinic-scheduling/internal/appointment"
	"github.com/clinicore/clinic-scheduling/internal/db"
)

type simConfig struct {
	apiBaseURL string
	workers    int
	attempts   int
	slots      int
}

type metrics struct {
	success  int64
	conflict int64
	errors   int64
}

func main() {
	log.SetFlags(log.LstdFlags)

	cfg := simConfig{}
	flag.StringVar(&cfg.apiBaseURL, "api", "http://localhost:8080", "API base URL")
	flag.IntVar(&cfg.workers, "workers", 16, "concurrent workers")
	flag.IntVar(&cfg.attempts, "attempts", 200, "booking attempts per worker")
	flag.IntVar(&cfg.slots, "slots", 10, "distinct slots to fight over")
	flag.Parse()

	doctors, patients, err := loadIDs(context.Background())
	if err != nil {
		log.Fatalf("load ids: %v", err)
	}
	if len(doctors) == 0 || len(patients) == 0 {
		log.Fatal("no seeded doctors/patients found, run cmd/seed first")
	}

	// A deliberately tiny slot set so workers collide constantly.
	type slot struct {
		doctorID uuid.UUID
		date     string
		time     string
	}
	slots := make([]slot, cfg.slots)
	base := time.Now().AddDate(0, 0, 60)
	for i := range slots {
		at := base.Add(time.Duration(i) * 30 * time.Minute)
		slots[i] = slot{
			doctorID: doctors[i%len(doctors)],
			date:     at.Format(appointment.DateLayout),
			time:     at.Format(appointment.TimeLayout),
		}
	}

	log.Printf("starting: workers=%d attempts=%d slots=%d api=%s",
		cfg.workers, cfg.attempts, cfg.slots, cfg.apiBaseURL)

	var m metrics
	client := &http.Client{Timeout: 10 * time.Second}

	var wg sync.WaitGroup
	start := time.Now()
	for w := 0; w < cfg.workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))

			for i := 0; i < cfg.attempts; i++ {
				s := slots[rng.Intn(len(slots))]
				patient := patients[rng.Intn(len(patients))]

				body, _ := json.Marshal(map[string]string{
					"patient_id": patient.String(),
					"doctor_id":  s.doctorID.String(),
					"date":       s.date,
					"time":       s.time,
					"reason":     "simulated booking",
				})
				resp, err := client.Post(cfg.apiBaseURL+"/appointments", "application/json", bytes.NewReader(body))
				if err != nil {
					atomic.AddInt64(&m.errors, 1)
					continue
				}
				_ = resp.Body.Close()

				switch resp.StatusCode {
				case http.StatusCreated:
					atomic.AddInt64(&m.success, 1)
				case http.StatusConflict:
					atomic.AddInt64(&m.conflict, 1)
				default:
					atomic.AddInt64(&m.errors, 1)
				}
			}
		}(int64(w) + time.Now().UnixNano())
	}
	wg.Wait()

	total := m.success + m.conflict + m.errors
	fmt.Printf("\n=== booking race results ===\n")
	fmt.Printf("duration:  %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("attempts:  %d\n", total)
	fmt.Printf("booked:    %d\n", m.success)
	fmt.Printf("conflicts: %d\n", m.conflict)
	fmt.Printf("errors:    %d\n", m.errors)

	if m.success > int64(cfg.slots) {
		fmt.Printf("\nFAIL: %d bookings won for only %d slots: a slot was double-booked\n", m.success, cfg.slots)
		os.Exit(1)
	}
	fmt.Printf("\nOK: at most one booking per slot\n")
}

// loadIDs pulls seeded doctor and patient IDs straight from Postgres; the
// simulator exercises the API for bookings only.
func loadIDs(ctx context.Context) ([]uuid.UUID, []uuid.UUID, error) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		return nil, nil, fmt.Errorf("POSTGRES_DSN is required")
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := db.ConnectPostgres(connCtx, dsn)
	if err != nil {
		return nil, nil, err
	}
	defer pool.Close()

	doctors, err := selectIDs(ctx, pool, `SELECT id FROM doctors WHERE active LIMIT 10`)
	if err != nil {
		return nil, nil, err
	}
	patients, err := selectIDs(ctx, pool, `SELECT id FROM patients LIMIT 200`)
	if err != nil {
		return nil, nil, err
	}
	return doctors, patients, nil
}

func selectIDs(ctx context.Context, pool *pgxpool.Pool, sql string) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
