package finance

import (
	"context"
	"time"

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

func (r *repoPG) Overview(ctx context.Context, now time.Time) (*Overview, error) {
	var o Overview
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE NOT is_paid),
			COALESCE(SUM(amount - amount_paid) FILTER (WHERE NOT is_paid), 0)
		FROM bills`).Scan(&o.TotalBills, &o.UnpaidBills, &o.OutstandingAmount)
	if err != nil {
		return nil, err
	}

	today := startOfDay(now)
	err = conn(ctx, r.pool).QueryRow(ctx, `
		SELECT
			COALESCE(SUM(payment_amount), 0),
			COALESCE(SUM(payment_amount) FILTER (WHERE payment_date >= $1 AND payment_date < $1 + INTERVAL '1 day'), 0)
		FROM payment_history`, today).Scan(&o.TotalRevenue, &o.RevenueToday)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repoPG) RevenueByDay(ctx context.Context, from, to time.Time) ([]DailyRevenue, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT payment_date::date AS day, SUM(payment_amount)
		FROM payment_history
		WHERE payment_date >= $1 AND payment_date < $2
		GROUP BY day
		ORDER BY day ASC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyRevenue
	for rows.Next() {
		var d DailyRevenue
		if err := rows.Scan(&d.Date, &d.Amount); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *repoPG) RevenueByMethod(ctx context.Context, from, to time.Time) ([]MethodRevenue, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT payment_method, SUM(payment_amount), COUNT(*)
		FROM payment_history
		WHERE payment_date >= $1 AND payment_date < $2
		GROUP BY payment_method
		ORDER BY SUM(payment_amount) DESC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MethodRevenue
	for rows.Next() {
		var m MethodRevenue
		if err := rows.Scan(&m.Method, &m.Amount, &m.Payments); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repoPG) OutstandingBills(ctx context.Context) ([]OutstandingRow, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT b.id, p.first_name || ' ' || p.last_name, b.description, b.bill_type,
			b.amount, b.amount_paid, b.amount - b.amount_paid, b.created_at
		FROM bills b
		JOIN patients p ON p.id = b.patient_id
		WHERE NOT b.is_paid
		ORDER BY b.created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutstandingRow
	for rows.Next() {
		var row OutstandingRow
		if err := rows.Scan(&row.BillID, &row.PatientName, &row.Description, &row.BillType,
			&row.Amount, &row.AmountPaid, &row.Outstanding, &row.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
