package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/lifecycle"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentStore {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const appointmentSelect = `SELECT a.id, a.patient_id, p.full_name, a.doctor_id, d.full_name, a.scheduled_at,
	a.status, a.notes, a.reminder_sent, a.lifecycle, a.created_at, a.updated_at
	FROM appointments a
	JOIN patients p ON p.id = a.patient_id
	JOIN doctors d ON d.id = a.doctor_id`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.PatientName, &a.DoctorID, &a.DoctorName, &a.ScheduledAt,
		&a.Status, &a.Notes, &a.ReminderSent, &a.Lifecycle, &a.CreatedAt, &a.UpdatedAt)
	a.StatusLabel = StatusLabel(a.Status)
	return &a, err
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.Lifecycle = lifecycle.Active
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, scheduled_at, status, notes, lifecycle)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.ScheduledAt, a.Status, a.Notes, a.Lifecycle).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx,
		appointmentSelect+` WHERE a.id = $1 AND a.lifecycle = 'active'`, id))
}

// Update only touches a Scheduled appointment. reminder_sent is reset when the
// time moves so the new slot gets its own reminder.
func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET patient_id = $2, doctor_id = $3,
			reminder_sent = reminder_sent AND scheduled_at = $4,
			scheduled_at = $4, notes = $5, updated_at = NOW()
		WHERE id = $1 AND lifecycle = 'active' AND status = $6
		RETURNING reminder_sent, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.ScheduledAt, a.Notes, StatusScheduled).Scan(&a.ReminderSent, &a.UpdatedAt)
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointments SET status = $3, updated_at = NOW()
		WHERE id = $1 AND lifecycle = 'active' AND status = $2`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *appointmentRepoPG) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointments SET lifecycle = $2, updated_at = NOW() WHERE id = $1 AND lifecycle = 'active'`,
		id, lifecycle.Deleted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *appointmentRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE a.lifecycle = 'active'`
	var args []interface{}
	idx := 1

	if p, ok := params["doctor_id"]; ok {
		where += fmt.Sprintf(` AND a.doctor_id = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["patient_id"]; ok {
		where += fmt.Sprintf(` AND a.patient_id = $%d`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["date"]; ok {
		where += fmt.Sprintf(` AND a.scheduled_at::date = $%d::date`, idx)
		args = append(args, p)
		idx++
	}
	if p, ok := params["status"]; ok {
		where += fmt.Sprintf(` AND a.status = $%d`, idx)
		args = append(args, p)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments a`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := appointmentSelect + where + fmt.Sprintf(` ORDER BY a.scheduled_at LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *appointmentRepoPG) LockDoctor(ctx context.Context, doctorID uuid.UUID) error {
	return db.LockKey(ctx, "doctor:"+doctorID.String())
}

func (r *appointmentRepoPG) HasConflict(ctx context.Context, doctorID uuid.UUID, at time.Time, window time.Duration, exclude *uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1
			  AND status = 'scheduled'
			  AND lifecycle = 'active'
			  AND scheduled_at BETWEEN $2 AND $3
			  AND ($4::uuid IS NULL OR id <> $4::uuid)
		)`, doctorID, at.Add(-window), at.Add(window), exclude).Scan(&exists)
	return exists, err
}

func (r *appointmentRepoPG) DueForReminder(ctx context.Context, from, to time.Time) ([]*ReminderCandidate, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT a.id, a.scheduled_at, p.full_name, p.email, d.full_name
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		JOIN doctors d ON d.id = a.doctor_id
		WHERE a.status = 'scheduled'
		  AND a.reminder_sent = FALSE
		  AND a.lifecycle = 'active'
		  AND a.scheduled_at BETWEEN $1 AND $2
		ORDER BY a.scheduled_at`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ReminderCandidate
	for rows.Next() {
		var c ReminderCandidate
		if err := rows.Scan(&c.AppointmentID, &c.ScheduledAt, &c.PatientName, &c.PatientEmail, &c.DoctorName); err != nil {
			return nil, err
		}
		items = append(items, &c)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointments SET reminder_sent = TRUE, updated_at = NOW() WHERE id = $1`, id)
	return err
}

// -- Directory --

type directoryPG struct{ pool *pgxpool.Pool }

func NewDirectoryPG(pool *pgxpool.Pool) Directory { return &directoryPG{pool: pool} }

func (r *directoryPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *directoryPG) exists(ctx context.Context, table string, id uuid.UUID) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1 AND lifecycle = 'active')`, id).Scan(&ok)
	return ok, err
}

func (r *directoryPG) PatientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.exists(ctx, "patients", id)
}

func (r *directoryPG) DoctorExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.exists(ctx, "doctors", id)
}

func (r *directoryPG) DoctorIDForAccount(ctx context.Context, accountID uuid.UUID) (*uuid.UUID, error) {
	var id uuid.UUID
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id FROM doctors WHERE account_id = $1 AND lifecycle = 'active'`, accountID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}
