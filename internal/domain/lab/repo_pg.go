package lab

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

type testRepoPG struct{ pool *pgxpool.Pool }

func NewTestRepoPG(pool *pgxpool.Pool) TestRepository { return &testRepoPG{pool: pool} }

const testCols = `id, name, category, price, active, created_at, updated_at`

func scanTest(row pgx.Row) (*LabTest, error) {
	var t LabTest
	err := row.Scan(&t.ID, &t.Name, &t.Category, &t.Price, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTestNotFound
	}
	return &t, err
}

func (r *testRepoPG) Create(ctx context.Context, t *LabTest) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO lab_tests (id, name, category, price, active)
		VALUES ($1,$2,$3,$4,$5)`,
		t.ID, t.Name, t.Category, t.Price, t.Active)
	return err
}

func (r *testRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*LabTest, error) {
	return scanTest(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+testCols+` FROM lab_tests WHERE id = $1`, id))
}

func (r *testRepoPG) Update(ctx context.Context, t *LabTest) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE lab_tests SET name = $2, category = $3, price = $4, active = $5, updated_at = NOW()
		WHERE id = $1`,
		t.ID, t.Name, t.Category, t.Price, t.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTestNotFound
	}
	return nil
}

func (r *testRepoPG) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*LabTest, int, error) {
	where := ``
	if activeOnly {
		where = ` WHERE active`
	}

	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM lab_tests`+where).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+testCols+` FROM lab_tests`+where+` ORDER BY name ASC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tests []*LabTest
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, 0, err
		}
		tests = append(tests, t)
	}
	return tests, total, rows.Err()
}

type orderRepoPG struct{ pool *pgxpool.Pool }

func NewOrderRepoPG(pool *pgxpool.Pool) OrderRepository { return &orderRepoPG{pool: pool} }

const orderCols = `id, patient_id, test_id, test_name, status, result, bill_id, ordered_by,
	created_at, updated_at`

func scanOrder(row pgx.Row) (*LabOrder, error) {
	var o LabOrder
	err := row.Scan(&o.ID, &o.PatientID, &o.TestID, &o.TestName, &o.Status, &o.Result, &o.BillID,
		&o.OrderedBy, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	return &o, err
}

func (r *orderRepoPG) Create(ctx context.Context, o *LabOrder) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO lab_orders (id, patient_id, test_id, test_name, status, bill_id, ordered_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		o.ID, o.PatientID, o.TestID, o.TestName, o.Status, o.BillID, o.OrderedBy)
	return err
}

func (r *orderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*LabOrder, error) {
	return scanOrder(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+orderCols+` FROM lab_orders WHERE id = $1`, id))
}

func (r *orderRepoPG) List(ctx context.Context, filter OrderFilter, limit, offset int) ([]*LabOrder, int, error) {
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
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM lab_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+orderCols+` FROM lab_orders`+where+
			` ORDER BY created_at DESC LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []*LabOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

func (r *orderRepoPG) SetStatus(ctx context.Context, id uuid.UUID, status OrderStatus, result *string) (*LabOrder, error) {
	return scanOrder(conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE lab_orders SET status = $2, result = COALESCE($3, result), updated_at = NOW()
		WHERE id = $1
		RETURNING `+orderCols,
		id, status, result))
}
