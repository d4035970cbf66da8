package scheduling

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const appointmentCols = `id, patient_id, doctor_name, scheduled_at, duration_minutes, status, reason, fee,
	bill_id, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorName, &a.ScheduledAt, &a.DurationMinutes, &a.Status, &a.Reason, &a.Fee,
		&a.BillID, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_name, scheduled_at, duration_minutes, status, reason, fee)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.PatientID, a.DoctorName, a.ScheduledAt, a.DurationMinutes, a.Status, a.Reason, a.Fee)
	return err
}

func (r *repoPG) HasOverlap(ctx context.Context, doctorName string, start, end time.Time) (bool, error) {
	var exists bool
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_name = $1
			  AND status IN ('scheduled', 'checked_in')
			  AND scheduled_at < $3
			  AND scheduled_at + make_interval(mins => duration_minutes) > $2
		)`, doctorName, start, end).Scan(&exists)
	return exists, err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+appointmentCols+` FROM appointments WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, filter Filter, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	n := 0
	if filter.PatientID != nil {
		n++
		where += ` AND patient_id = $` + strconv.Itoa(n)
		args = append(args, *filter.PatientID)
	}
	if filter.Status != nil {
		n++
		where += ` AND status = $` + strconv.Itoa(n)
		args = append(args, *filter.Status)
	}
	if filter.Day != nil {
		n++
		where += ` AND scheduled_at::date = $` + strconv.Itoa(n) + `::date`
		args = append(args, *filter.Day)
	}

	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+appointmentCols+` FROM appointments`+where+
			` ORDER BY scheduled_at ASC LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var appointments []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		appointments = append(appointments, a)
	}
	return appointments, total, rows.Err()
}

func (r *repoPG) SetStatus(ctx context.Context, id uuid.UUID, status Status, billID *uuid.UUID) (*Appointment, error) {
	return scanAppointment(conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointments SET status = $2, bill_id = COALESCE($3, bill_id), updated_at = NOW()
		WHERE id = $1
		RETURNING `+appointmentCols,
		id, status, billID))
}
