package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Trend windows offered by the API.
var allowedWindows = map[int]bool{7: true, 30: true, 90: true}

type Service struct {
	repo     Repository
	currency string
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, currency string, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		currency: currency,
		logger:   logger.With().Str("component", "finance").Logger(),
		now:      time.Now,
	}
}

func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	return s.repo.Overview(ctx, s.now())
}

// startOfDay truncates to midnight in t's own location. Truncate would cut
// to the UTC day and misbucket late-evening payments in non-UTC deployments.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Trend builds a dense daily revenue series over the trailing window,
// including today.
func (s *Service) Trend(ctx context.Context, days int) (*Trend, error) {
	if !allowedWindows[days] {
		return nil, fmt.Errorf("trend window must be 7, 30 or 90 days")
	}

	today := startOfDay(s.now())
	from := today.AddDate(0, 0, -(days - 1))
	to := today.AddDate(0, 0, 1)

	raw, err := s.repo.RevenueByDay(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load revenue series: %w", err)
	}
	methods, err := s.repo.RevenueByMethod(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load method distribution: %w", err)
	}
	byDay := make(map[string]decimal.Decimal, len(raw))
	for _, d := range raw {
		byDay[d.Date.Format("2006-01-02")] = d.Amount
	}

	trend := &Trend{
		Days:         days,
		Points:       make([]TrendPoint, 0, days),
		Methods:      methods,
		TotalRevenue: decimal.Zero,
	}
	cumulative := decimal.Zero
	for i := 0; i < days; i++ {
		day := from.AddDate(0, 0, i).Format("2006-01-02")
		amount, ok := byDay[day]
		if !ok {
			amount = decimal.Zero
		}
		cumulative = cumulative.Add(amount)
		trend.Points = append(trend.Points, TrendPoint{
			Date:       day,
			Amount:     amount,
			Cumulative: cumulative,
		})
	}
	trend.TotalRevenue = cumulative
	trend.GrowthRate = growthRate(trend.Points)
	return trend, nil
}

// growthRate compares the average of the last seven days against the first
// seven, in percent. It returns zero when the opening stretch collected
// nothing, since there is no base to grow from.
func growthRate(points []TrendPoint) float64 {
	if len(points) < 14 {
		return 0
	}
	head := decimal.Zero
	tail := decimal.Zero
	for i := 0; i < 7; i++ {
		head = head.Add(points[i].Amount)
		tail = tail.Add(points[len(points)-7+i].Amount)
	}
	if head.IsZero() {
		return 0
	}
	rate, _ := tail.Sub(head).Div(head).Mul(decimal.NewFromInt(100)).Float64()
	return rate
}

func (s *Service) OutstandingBills(ctx context.Context) ([]OutstandingRow, error) {
	return s.repo.OutstandingBills(ctx)
}

// RevenueReportPDF renders the trend for the window as a printable report.
func (s *Service) RevenueReportPDF(ctx context.Context, days int) ([]byte, error) {
	trend, err := s.Trend(ctx, days)
	if err != nil {
		return nil, err
	}
	return renderRevenuePDF(trend, s.currency, s.now())
}

// OutstandingReportPDF renders every open bill with its balance.
func (s *Service) OutstandingReportPDF(ctx context.Context) ([]byte, error) {
	rows, err := s.repo.OutstandingBills(ctx)
	if err != nil {
		return nil, err
	}
	return renderOutstandingPDF(rows, s.currency, s.now())
}
