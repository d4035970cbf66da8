package finance

import (
	"context"
	"time"
)

type Repository interface {
	Overview(ctx context.Context, now time.Time) (*Overview, error)
	// RevenueByDay returns collected payments bucketed by calendar day for
	// [from, to). Days with no payments are absent; the service fills them.
	RevenueByDay(ctx context.Context, from, to time.Time) ([]DailyRevenue, error)
	// RevenueByMethod groups collected payments by payment method for
	// [from, to), largest share first.
	RevenueByMethod(ctx context.Context, from, to time.Time) ([]MethodRevenue, error)
	OutstandingBills(ctx context.Context) ([]OutstandingRow, error)
}
