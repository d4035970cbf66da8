package pharmacy

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

const medicationCols = `id, name, category, unit_price, stock_quantity, reorder_level,
	expiry_date, created_at, updated_at`

func scanMedication(row pgx.Row) (*Medication, error) {
	var m Medication
	err := row.Scan(&m.ID, &m.Name, &m.Category, &m.UnitPrice, &m.StockQuantity, &m.ReorderLevel,
		&m.ExpiryDate, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &m, err
}

func (r *repoPG) Create(ctx context.Context, m *Medication) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO medications (id, name, category, unit_price, stock_quantity, reorder_level, expiry_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		m.ID, m.Name, m.Category, m.UnitPrice, m.StockQuantity, m.ReorderLevel, m.ExpiryDate)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medication, error) {
	return scanMedication(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+medicationCols+` FROM medications WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, m *Medication) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE medications SET name = $2, category = $3, unit_price = $4,
			reorder_level = $5, expiry_date = $6, updated_at = NOW()
		WHERE id = $1`,
		m.ID, m.Name, m.Category, m.UnitPrice, m.ReorderLevel, m.ExpiryDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Search(ctx context.Context, query string, limit, offset int) ([]*Medication, int, error) {
	where := ``
	args := []interface{}{}
	if query != "" {
		where = ` WHERE name ILIKE $1 OR category ILIKE $1`
		args = append(args, "%"+query+"%")
	}

	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM medications`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+medicationCols+` FROM medications`+where+
			` ORDER BY name ASC LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectMedications(rows, total)
}

func (r *repoPG) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*Medication, error) {
	m, err := scanMedication(conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE medications SET stock_quantity = stock_quantity + $2, updated_at = NOW()
		WHERE id = $1 AND stock_quantity + $2 >= 0
		RETURNING `+medicationCols,
		id, delta))
	if errors.Is(err, ErrNotFound) {
		// Distinguish a missing row from a guarded underflow.
		if _, getErr := r.GetByID(ctx, id); getErr == nil {
			return nil, ErrInsufficientStock
		}
		return nil, ErrNotFound
	}
	return m, err
}

func (r *repoPG) LowStock(ctx context.Context) ([]*Medication, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+medicationCols+` FROM medications WHERE stock_quantity <= reorder_level ORDER BY stock_quantity ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	meds, _, err := collectMedications(rows, 0)
	return meds, err
}

func (r *repoPG) NearExpiry(ctx context.Context, within time.Duration) ([]*Medication, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+medicationCols+` FROM medications
		 WHERE expiry_date IS NOT NULL AND expiry_date <= $1 ORDER BY expiry_date ASC`,
		time.Now().Add(within))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	meds, _, err := collectMedications(rows, 0)
	return meds, err
}

func collectMedications(rows pgx.Rows, total int) ([]*Medication, int, error) {
	var meds []*Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, 0, err
		}
		meds = append(meds, m)
	}
	return meds, total, rows.Err()
}
