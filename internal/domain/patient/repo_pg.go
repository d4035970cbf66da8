package patient

import (
	"context"
	"errors"
	"strconv"

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

const patientCols = `id, mrn, first_name, last_name, gender, date_of_birth, phone,
	email, address, blood_group, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.MRN, &p.FirstName, &p.LastName, &p.Gender, &p.DateOfBirth, &p.Phone,
		&p.Email, &p.Address, &p.BloodGroup, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO patients (id, mrn, first_name, last_name, gender, date_of_birth, phone, email, address, blood_group)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.MRN, p.FirstName, p.LastName, p.Gender, p.DateOfBirth, p.Phone, p.Email, p.Address, p.BloodGroup)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE patients SET first_name = $2, last_name = $3, gender = $4, date_of_birth = $5,
			phone = $6, email = $7, address = $8, blood_group = $9, updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.Gender, p.DateOfBirth, p.Phone, p.Email, p.Address, p.BloodGroup)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Search(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error) {
	where := ``
	args := []interface{}{}
	if query != "" {
		where = ` WHERE first_name ILIKE $1 OR last_name ILIKE $1 OR phone ILIKE $1 OR mrn ILIKE $1`
		args = append(args, "%"+query+"%")
	}

	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM patients`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+patientCols+` FROM patients`+where+
			` ORDER BY created_at DESC LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		patients = append(patients, p)
	}
	return patients, total, rows.Err()
}
