package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillFilter narrows bill listings.
type BillFilter struct {
	PatientID *uuid.UUID
	BillType  *BillType
	Unpaid    bool
}

type BillRepository interface {
	Create(ctx context.Context, b *Bill) error
	GetByID(ctx context.Context, id uuid.UUID) (*Bill, error)
	// GetForUpdate locks the bill row for the duration of the surrounding
	// transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Bill, error)
	List(ctx context.Context, filter BillFilter, limit, offset int) ([]*Bill, int, error)
	// ApplyPayment increments amount_paid atomically in SQL and recomputes
	// is_paid/paid_at in the same statement, so concurrent payments never
	// overwrite each other. Returns the updated row.
	ApplyPayment(ctx context.Context, id uuid.UUID, amount decimal.Decimal, method string, paidBy *string, at time.Time) (*Bill, error)
	// SetAmount rewrites the bill's amount. When markPaid is true is_paid is
	// forced true (void); otherwise is_paid is left untouched.
	SetAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal, markPaid bool) (*Bill, error)
	Summary(ctx context.Context, now time.Time) (*Summary, error)
}

type BillItemRepository interface {
	CreateBatch(ctx context.Context, items []*BillItem) error
	ListByBill(ctx context.Context, billID uuid.UUID) ([]*BillItem, error)
}

type AdjustmentRepository interface {
	Create(ctx context.Context, a *BillAdjustment) error
	ListByBill(ctx context.Context, billID uuid.UUID) ([]*BillAdjustment, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, p *PaymentHistory) error
	ListByBill(ctx context.Context, billID uuid.UUID) ([]*PaymentHistory, error)
}

// ServiceLine is a billable service recorded during an admission.
type ServiceLine struct {
	ServiceID  uuid.UUID
	Name       string
	Quantity   int
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
}

// MedicationLine is a medication administered during an admission.
// UnitPrice is nil when the administration was recorded without a price;
// the aggregator then falls back to the configured flat default.
type MedicationLine struct {
	MedicationID uuid.UUID
	Name         string
	Quantity     int
	UnitPrice    *decimal.Decimal
}

// AdmissionSource supplies the aggregator with an admission's billable
// lines. Implemented in the composition root over the admission domain to
// avoid a package cycle.
type AdmissionSource interface {
	AdmissionPatient(ctx context.Context, admissionID uuid.UUID) (uuid.UUID, error)
	ServiceLines(ctx context.Context, admissionID uuid.UUID) ([]ServiceLine, error)
	MedicationLines(ctx context.Context, admissionID uuid.UUID) ([]MedicationLine, error)
	AcknowledgeBilling(ctx context.Context, admissionID uuid.UUID) error
}

// TxRunner runs fn within a storage transaction; every repository call made
// with the ctx passed to fn joins that transaction.
type TxRunner interface {
	RunTx(ctx context.Context, fn func(ctx context.Context) error) error
}
