package admission

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

const admissionCols = `id, patient_id, ward, reason, status, admitted_at, discharged_at,
	billed_at, created_at, updated_at`

func scanAdmission(row pgx.Row) (*Admission, error) {
	var a Admission
	err := row.Scan(&a.ID, &a.PatientID, &a.Ward, &a.Reason, &a.Status, &a.AdmittedAt, &a.DischargedAt,
		&a.BilledAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Admission) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO admissions (id, patient_id, ward, reason, status, admitted_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		a.ID, a.PatientID, a.Ward, a.Reason, a.Status, a.AdmittedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Admission, error) {
	return scanAdmission(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+admissionCols+` FROM admissions WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, filter Filter, limit, offset int) ([]*Admission, int, error) {
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

	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM admissions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+admissionCols+` FROM admissions`+where+
			` ORDER BY admitted_at DESC LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var admissions []*Admission
	for rows.Next() {
		a, err := scanAdmission(rows)
		if err != nil {
			return nil, 0, err
		}
		admissions = append(admissions, a)
	}
	return admissions, total, rows.Err()
}

func (r *repoPG) SetDischarged(ctx context.Context, id uuid.UUID, at time.Time) (*Admission, error) {
	return scanAdmission(conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE admissions SET status = $2, discharged_at = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+admissionCols,
		id, StatusDischarged, at))
}

func (r *repoPG) SetBilled(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE admissions SET billed_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type serviceRepoPG struct{ pool *pgxpool.Pool }

func NewServiceRepoPG(pool *pgxpool.Pool) ServiceRepository { return &serviceRepoPG{pool: pool} }

func (r *serviceRepoPG) Add(ctx context.Context, s *InpatientService) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO inpatient_services (id, admission_id, name, quantity, unit_price, total_price, recorded_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		s.ID, s.AdmissionID, s.Name, s.Quantity, s.UnitPrice, s.TotalPrice, s.RecordedBy)
	return err
}

func (r *serviceRepoPG) ListByAdmission(ctx context.Context, admissionID uuid.UUID) ([]*InpatientService, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, admission_id, name, quantity, unit_price, total_price, recorded_by, created_at
		FROM inpatient_services WHERE admission_id = $1 ORDER BY created_at ASC`, admissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []*InpatientService
	for rows.Next() {
		var s InpatientService
		if err := rows.Scan(&s.ID, &s.AdmissionID, &s.Name, &s.Quantity, &s.UnitPrice, &s.TotalPrice,
			&s.RecordedBy, &s.CreatedAt); err != nil {
			return nil, err
		}
		services = append(services, &s)
	}
	return services, rows.Err()
}

type medicationRepoPG struct{ pool *pgxpool.Pool }

func NewMedicationRepoPG(pool *pgxpool.Pool) MedicationRepository {
	return &medicationRepoPG{pool: pool}
}

func (r *medicationRepoPG) Add(ctx context.Context, m *InpatientMedication) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO inpatient_medications (id, admission_id, medication_id, name, quantity, unit_price, administered_by, administered_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.ID, m.AdmissionID, m.MedicationID, m.Name, m.Quantity, m.UnitPrice, m.AdministeredBy, m.AdministeredAt)
	return err
}

func (r *medicationRepoPG) ListByAdmission(ctx context.Context, admissionID uuid.UUID) ([]*InpatientMedication, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, admission_id, medication_id, name, quantity, unit_price, administered_by, administered_at
		FROM inpatient_medications WHERE admission_id = $1 ORDER BY administered_at ASC`, admissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var medications []*InpatientMedication
	for rows.Next() {
		var m InpatientMedication
		if err := rows.Scan(&m.ID, &m.AdmissionID, &m.MedicationID, &m.Name, &m.Quantity, &m.UnitPrice,
			&m.AdministeredBy, &m.AdministeredAt); err != nil {
			return nil, err
		}
		medications = append(medications, &m)
	}
	return medications, rows.Err()
}
