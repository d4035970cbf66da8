package billing

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

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

// =========== Bill Repository ===========

type billRepoPG struct{ pool *pgxpool.Pool }

func NewBillRepoPG(pool *pgxpool.Pool) BillRepository { return &billRepoPG{pool: pool} }

const billCols = `id, patient_id, admission_id, amount, amount_paid, is_paid,
	description, bill_type, created_by, paid_by, payment_method, paid_at,
	created_at, updated_at`

func scanBill(row pgx.Row) (*Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.PatientID, &b.AdmissionID, &b.Amount, &b.AmountPaid, &b.IsPaid,
		&b.Description, &b.BillType, &b.CreatedBy, &b.PaidBy, &b.PaymentMethod, &b.PaidAt,
		&b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &b, err
}

func (r *billRepoPG) Create(ctx context.Context, b *Bill) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO bills (id, patient_id, admission_id, amount, amount_paid, is_paid,
			description, bill_type, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		b.ID, b.PatientID, b.AdmissionID, b.Amount, b.AmountPaid, b.IsPaid,
		b.Description, b.BillType, b.CreatedBy)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return ErrDuplicateBill
	}
	return err
}

func (r *billRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return scanBill(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+billCols+` FROM bills WHERE id = $1`, id))
}

func (r *billRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return scanBill(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+billCols+` FROM bills WHERE id = $1 FOR UPDATE`, id))
}

func (r *billRepoPG) List(ctx context.Context, filter BillFilter, limit, offset int) ([]*Bill, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	n := 0
	if filter.PatientID != nil {
		n++
		where += ` AND patient_id = $` + strconv.Itoa(n)
		args = append(args, *filter.PatientID)
	}
	if filter.BillType != nil {
		n++
		where += ` AND bill_type = $` + strconv.Itoa(n)
		args = append(args, *filter.BillType)
	}
	if filter.Unpaid {
		where += ` AND NOT is_paid`
	}

	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM bills`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+billCols+` FROM bills`+where+` ORDER BY created_at DESC LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var bills []*Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, 0, err
		}
		bills = append(bills, b)
	}
	return bills, total, rows.Err()
}

func (r *billRepoPG) ApplyPayment(ctx context.Context, id uuid.UUID, amount decimal.Decimal, method string, paidBy *string, at time.Time) (*Bill, error) {
	return scanBill(conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE bills SET
			amount_paid = amount_paid + $2,
			is_paid = amount_paid + $2 >= amount,
			payment_method = $3,
			paid_by = COALESCE($4, paid_by),
			paid_at = CASE WHEN amount_paid + $2 >= amount THEN $5 ELSE paid_at END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+billCols,
		id, amount, method, paidBy, at))
}

func (r *billRepoPG) SetAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal, markPaid bool) (*Bill, error) {
	return scanBill(conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE bills SET
			amount = $2,
			is_paid = CASE WHEN $3 THEN TRUE ELSE is_paid END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+billCols,
		id, amount, markPaid))
}

func (r *billRepoPG) Summary(ctx context.Context, now time.Time) (*Summary, error) {
	var s Summary
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE NOT is_paid),
			COUNT(*) FILTER (WHERE NOT is_paid AND amount_paid > 0),
			COALESCE(SUM(amount - amount_paid) FILTER (WHERE NOT is_paid), 0)
		FROM bills`).Scan(&s.PendingBills, &s.PartiallyPaid, &s.OutstandingAmount)
	if err != nil {
		return nil, err
	}

	// Midnight in the server's own day, not the UTC day.
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	err = conn(ctx, r.pool).QueryRow(ctx, `
		SELECT COALESCE(SUM(payment_amount), 0)
		FROM payment_history
		WHERE payment_date >= $1 AND payment_date < $1 + INTERVAL '1 day'`,
		today).Scan(&s.TodaysRevenue)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// =========== Bill Item Repository ===========

type billItemRepoPG struct{ pool *pgxpool.Pool }

func NewBillItemRepoPG(pool *pgxpool.Pool) BillItemRepository { return &billItemRepoPG{pool: pool} }

func (r *billItemRepoPG) CreateBatch(ctx context.Context, items []*BillItem) error {
	for _, item := range items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		_, err := conn(ctx, r.pool).Exec(ctx, `
			INSERT INTO bill_items (id, bill_id, service_id, medication_id, description, quantity, unit_price, total_price)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			item.ID, item.BillID, item.ServiceID, item.MedicationID, item.Description,
			item.Quantity, item.UnitPrice, item.TotalPrice)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *billItemRepoPG) ListByBill(ctx context.Context, billID uuid.UUID) ([]*BillItem, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, bill_id, service_id, medication_id, description, quantity, unit_price, total_price
		FROM bill_items WHERE bill_id = $1 ORDER BY description`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*BillItem
	for rows.Next() {
		var it BillItem
		if err := rows.Scan(&it.ID, &it.BillID, &it.ServiceID, &it.MedicationID, &it.Description,
			&it.Quantity, &it.UnitPrice, &it.TotalPrice); err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

// =========== Adjustment Repository ===========

type adjustmentRepoPG struct{ pool *pgxpool.Pool }

func NewAdjustmentRepoPG(pool *pgxpool.Pool) AdjustmentRepository {
	return &adjustmentRepoPG{pool: pool}
}

func (r *adjustmentRepoPG) Create(ctx context.Context, a *BillAdjustment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO bill_adjustments (id, bill_id, original_amount, new_amount, adjustment_reason, adjustment_type, adjusted_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		a.ID, a.BillID, a.OriginalAmount, a.NewAmount, a.Reason, a.Type, a.AdjustedBy).Scan(&a.CreatedAt)
}

func (r *adjustmentRepoPG) ListByBill(ctx context.Context, billID uuid.UUID) ([]*BillAdjustment, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, bill_id, original_amount, new_amount, adjustment_reason, adjustment_type, adjusted_by, created_at
		FROM bill_adjustments WHERE bill_id = $1 ORDER BY created_at DESC`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var adjustments []*BillAdjustment
	for rows.Next() {
		var a BillAdjustment
		if err := rows.Scan(&a.ID, &a.BillID, &a.OriginalAmount, &a.NewAmount, &a.Reason, &a.Type, &a.AdjustedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		adjustments = append(adjustments, &a)
	}
	return adjustments, rows.Err()
}

// =========== Payment Repository ===========

type paymentRepoPG struct{ pool *pgxpool.Pool }

func NewPaymentRepoPG(pool *pgxpool.Pool) PaymentRepository { return &paymentRepoPG{pool: pool} }

func (r *paymentRepoPG) Create(ctx context.Context, p *PaymentHistory) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO payment_history (id, bill_id, payment_amount, payment_method, paid_by, payment_date)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		p.ID, p.BillID, p.PaymentAmount, p.PaymentMethod, p.PaidBy, p.PaymentDate)
	return err
}

func (r *paymentRepoPG) ListByBill(ctx context.Context, billID uuid.UUID) ([]*PaymentHistory, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, bill_id, payment_amount, payment_method, paid_by, payment_date
		FROM payment_history WHERE bill_id = $1 ORDER BY payment_date DESC`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*PaymentHistory
	for rows.Next() {
		var p PaymentHistory
		if err := rows.Scan(&p.ID, &p.BillID, &p.PaymentAmount, &p.PaymentMethod, &p.PaidBy, &p.PaymentDate); err != nil {
			return nil, err
		}
		payments = append(payments, &p)
	}
	return payments, rows.Err()
}
