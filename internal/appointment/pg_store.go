package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the slice of pgxpool.Pool the store needs; narrowed so tests can
// inject a pgxmock pool.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStore is the durable Store backed by Postgres. Invariant I1 (no double
// booking) is enforced here by a partial unique index on
// (doctor_id, date, time) over active statuses; see schema.sql.
type PgStore struct {
	db DB
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{db: pool}
}

// NewPgStoreWithDB allows injecting a mock database for testing.
func NewPgStoreWithDB(db DB) *PgStore {
	return &PgStore{db: db}
}

const appointmentColumns = `
	id, patient_id, doctor_id, to_char(date, 'YYYY-MM-DD'), time,
	duration_minutes, status, reason, notes, doctor_notes,
	prescription, payment, reminders,
	cancelled_by, cancelled_at, cancellation_reason,
	completed_at, rating, review, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a                Appointment
		prescriptionJSON []byte
		paymentJSON      []byte
		remindersJSON    []byte
	)

	err := row.Scan(
		&a.ID, &a.PatientID, &a.DoctorID, &a.Date, &a.Time,
		&a.DurationMinutes, &a.Status, &a.Reason, &a.Notes, &a.DoctorNotes,
		&prescriptionJSON, &paymentJSON, &remindersJSON,
		&a.CancelledBy, &a.CancelledAt, &a.CancellationReason,
		&a.CompletedAt, &a.Rating, &a.Review, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if len(prescriptionJSON) > 0 {
		var p Prescription
		if err := json.Unmarshal(prescriptionJSON, &p); err != nil {
			return nil, fmt.Errorf("decode prescription: %w", err)
		}
		a.Prescription = &p
	}
	if err := json.Unmarshal(paymentJSON, &a.Payment); err != nil {
		return nil, fmt.Errorf("decode payment: %w", err)
	}
	if err := json.Unmarshal(remindersJSON, &a.Reminders); err != nil {
		return nil, fmt.Errorf("decode reminders: %w", err)
	}

	return &a, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var (
		d                Doctor
		availabilityJSON []byte
	)

	err := row.Scan(
		&d.ID, &d.Name, &d.Specialization, &d.ConsultationFee, &d.Active,
		&availabilityJSON, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	if len(availabilityJSON) > 0 {
		if err := json.Unmarshal(availabilityJSON, &d.Availability); err != nil {
			return nil, fmt.Errorf("decode availability: %w", err)
		}
	}

	return &d, nil
}

func (s *PgStore) Create(ctx context.Context, a *Appointment) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	prescriptionJSON, err := marshalNilable(a.Prescription)
	if err != nil {
		return nil, fmt.Errorf("encode prescription: %w", err)
	}
	paymentJSON, err := json.Marshal(a.Payment)
	if err != nil {
		return nil, fmt.Errorf("encode payment: %w", err)
	}
	remindersJSON, err := json.Marshal(a.Reminders)
	if err != nil {
		return nil, fmt.Errorf("encode reminders: %w", err)
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO appointments (
			id, patient_id, doctor_id, date, time, duration_minutes,
			status, reason, notes, prescription, payment, reminders,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING`+appointmentColumns,
		a.ID, a.PatientID, a.DoctorID, a.Date, a.Time, a.DurationMinutes,
		a.Status, a.Reason, a.Notes, prescriptionJSON, paymentJSON, remindersJSON,
	)

	created, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// The active-slot unique index fired: lost the booking race.
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return created, nil
}

func (s *PgStore) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `SELECT`+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func buildWhere(f Filter, args []any) (string, []any) {
	var conds []string

	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		conds = append(conds, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if f.DoctorID != nil {
		args = append(args, *f.DoctorID)
		conds = append(conds, fmt.Sprintf("doctor_id = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		args = append(args, statusStrings(f.Statuses))
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if f.DateFrom != "" {
		args = append(args, f.DateFrom)
		conds = append(conds, fmt.Sprintf("date >= $%d", len(args)))
	}
	if f.DateTo != "" {
		args = append(args, f.DateTo)
		conds = append(conds, fmt.Sprintf("date <= $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *PgStore) List(ctx context.Context, q Query) ([]Appointment, error) {
	where, args := buildWhere(q.Filter, nil)

	order := " ORDER BY date DESC, time DESC"
	if q.Sort == SortDateTimeAsc {
		order = " ORDER BY date ASC, time ASC"
	}

	sql := `SELECT` + appointmentColumns + ` FROM appointments` + where + order
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		sql += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (s *PgStore) Count(ctx context.Context, f Filter) (int, error) {
	where, args := buildWhere(f, nil)

	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+where, args...).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func buildSet(upd Update, args []any) ([]string, []any, error) {
	var sets []string

	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.Notes != nil {
		add("notes", *upd.Notes)
	}
	if upd.DoctorNotes != nil {
		add("doctor_notes", *upd.DoctorNotes)
	}
	if upd.Prescription != nil {
		data, err := json.Marshal(upd.Prescription)
		if err != nil {
			return nil, nil, fmt.Errorf("encode prescription: %w", err)
		}
		add("prescription", data)
	}
	if upd.PaymentStatus != nil {
		args = append(args, string(*upd.PaymentStatus))
		sets = append(sets, fmt.Sprintf("payment = jsonb_set(payment, '{status}', to_jsonb($%d::text))", len(args)))
	}
	if upd.CancelledBy != nil {
		add("cancelled_by", *upd.CancelledBy)
	}
	if upd.CancelledAt != nil {
		add("cancelled_at", *upd.CancelledAt)
	}
	if upd.CancellationReason != nil {
		add("cancellation_reason", *upd.CancellationReason)
	}
	if upd.CompletedAt != nil {
		add("completed_at", *upd.CompletedAt)
	}
	if upd.Rating != nil {
		add("rating", *upd.Rating)
	}
	if upd.Review != nil {
		add("review", *upd.Review)
	}

	sets = append(sets, "updated_at = now()")
	return sets, args, nil
}

func (s *PgStore) UpdateFields(ctx context.Context, id uuid.UUID, upd Update) (*Appointment, error) {
	args := []any{id}
	sets, args, err := buildSet(upd, args)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRow(ctx, `
		UPDATE appointments SET `+strings.Join(sets, ", ")+`
		WHERE id = $1
		RETURNING`+appointmentColumns, args...)
	return scanAppointment(row)
}

func (s *PgStore) TransitionStatus(ctx context.Context, id uuid.UUID, from []Status, to Status, upd Update) (*Appointment, error) {
	upd.Status = &to

	args := []any{id}
	sets, args, err := buildSet(upd, args)
	if err != nil {
		return nil, err
	}

	args = append(args, statusStrings(from))
	row := s.db.QueryRow(ctx, `
		UPDATE appointments SET `+strings.Join(sets, ", ")+`
		WHERE id = $1 AND status = ANY($`+fmt.Sprint(len(args))+`)
		RETURNING`+appointmentColumns, args...)
	return scanAppointment(row)
}

func (s *PgStore) SlotTaken(ctx context.Context, doctorID uuid.UUID, date, tm string) (bool, error) {
	var taken bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND date = $2 AND time = $3
			  AND status IN ('scheduled', 'confirmed')
		)
	`, doctorID, date, tm).Scan(&taken)
	if err != nil {
		return false, err
	}
	return taken, nil
}

func (s *PgStore) BookedTimes(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT time FROM appointments
		WHERE doctor_id = $1 AND date = $2
		  AND status IN ('scheduled', 'confirmed')
		ORDER BY time
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var times []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

func (s *PgStore) FindOverdueActive(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT`+appointmentColumns+` FROM appointments
		WHERE status IN ('scheduled', 'confirmed')
		  AND date + time::time < $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (s *PgStore) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, specialization, consultation_fee, active,
		       availability, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (s *PgStore) ListDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, specialization, consultation_fee, active,
		       availability, created_at, updated_at
		FROM doctors
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var doctors []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		doctors = append(doctors, *d)
	}
	return doctors, rows.Err()
}

func (s *PgStore) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := s.db.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *PgStore) InsertEvent(ctx context.Context, ev Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO appointment_events (event_type, appointment_id, actor_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, ev.ActorID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert appointment event: %w", err)
	}
	return nil
}

func marshalNilable(p *Prescription) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
