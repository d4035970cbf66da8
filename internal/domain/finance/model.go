package finance

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Overview holds the finance dashboard cards, recomputed from stored rows on
// every fetch.
type Overview struct {
	TotalRevenue      decimal.Decimal `json:"total_revenue"`
	RevenueToday      decimal.Decimal `json:"revenue_today"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
	TotalBills        int             `json:"total_bills"`
	UnpaidBills       int             `json:"unpaid_bills"`
}

// DailyRevenue is one day's collected payments.
type DailyRevenue struct {
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// TrendPoint is one day in a revenue trend, with the running total up to and
// including that day.
type TrendPoint struct {
	Date       string          `json:"date"`
	Amount     decimal.Decimal `json:"amount"`
	Cumulative decimal.Decimal `json:"cumulative"`
}

// MethodRevenue is collected revenue for one payment method over a window.
type MethodRevenue struct {
	Method   string          `json:"method"`
	Amount   decimal.Decimal `json:"amount"`
	Payments int             `json:"payments"`
}

// Trend is a revenue series over a trailing window. Days with no payments
// appear as zero points so the series is dense. GrowthRate compares the
// average of the last seven days against the first seven, in percent; it is
// zero when the window has no starting revenue to compare against.
type Trend struct {
	Days         int             `json:"days"`
	Points       []TrendPoint    `json:"points"`
	Methods      []MethodRevenue `json:"methods"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	GrowthRate   float64         `json:"growth_rate"`
}

// OutstandingRow is one unpaid or partially paid bill in the outstanding
// report.
type OutstandingRow struct {
	BillID      uuid.UUID       `json:"bill_id"`
	PatientName string          `json:"patient_name"`
	Description string          `json:"description"`
	BillType    string          `json:"bill_type"`
	Amount      decimal.Decimal `json:"amount"`
	AmountPaid  decimal.Decimal `json:"amount_paid"`
	Outstanding decimal.Decimal `json:"outstanding"`
	CreatedAt   time.Time       `json:"created_at"`
}
