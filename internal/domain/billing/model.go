package billing

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a bill does not exist.
	ErrNotFound = errors.New("bill not found")
	// ErrDuplicateBill is returned when an admission has already been
	// finalized into a bill. The unique index on bills(admission_id) is the
	// sole source of truth for duplicate detection.
	ErrDuplicateBill = errors.New("admission already finalized")
)

// BillType classifies the origin of a bill.
type BillType string

const (
	BillTypeMedicalService BillType = "medical_service"
	BillTypeInpatient      BillType = "inpatient"
	BillTypeLabTest        BillType = "lab_test"
)

// PaymentStatus is derived from amounts, never stored.
type PaymentStatus string

const (
	StatusUnpaid        PaymentStatus = "unpaid"
	StatusPartiallyPaid PaymentStatus = "partially_paid"
	StatusFullyPaid     PaymentStatus = "fully_paid"
)

// AdjustmentType distinguishes amount corrections from full voids.
type AdjustmentType string

const (
	AdjustmentAdjust AdjustmentType = "adjust"
	AdjustmentVoid   AdjustmentType = "void"
)

// Bill maps to the bills table. AmountPaid accumulates across payments;
// IsPaid reflects amount_paid >= amount as of the last write.
type Bill struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	PatientID     uuid.UUID       `db:"patient_id" json:"patient_id"`
	AdmissionID   *uuid.UUID      `db:"admission_id" json:"admission_id,omitempty"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	AmountPaid    decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	IsPaid        bool            `db:"is_paid" json:"is_paid"`
	Description   string          `db:"description" json:"description"`
	BillType      BillType        `db:"bill_type" json:"bill_type"`
	CreatedBy     *string         `db:"created_by" json:"created_by,omitempty"`
	PaidBy        *string         `db:"paid_by" json:"paid_by,omitempty"`
	PaymentMethod *string         `db:"payment_method" json:"payment_method,omitempty"`
	PaidAt        *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// PaymentStatus derives the display status from the amounts.
func (b *Bill) PaymentStatus() PaymentStatus {
	switch {
	case b.AmountPaid.IsZero():
		return StatusUnpaid
	case b.AmountPaid.GreaterThanOrEqual(b.Amount):
		return StatusFullyPaid
	default:
		return StatusPartiallyPaid
	}
}

// Outstanding returns amount - amount_paid, never negative.
func (b *Bill) Outstanding() decimal.Decimal {
	out := b.Amount.Sub(b.AmountPaid)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// BillItem is one priced line composing a bill. Exactly one of ServiceID
// and MedicationID is set; the bill_items check constraint enforces it.
type BillItem struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	BillID       uuid.UUID       `db:"bill_id" json:"bill_id"`
	ServiceID    *uuid.UUID      `db:"service_id" json:"service_id,omitempty"`
	MedicationID *uuid.UUID      `db:"medication_id" json:"medication_id,omitempty"`
	Description  string          `db:"description" json:"description"`
	Quantity     int             `db:"quantity" json:"quantity"`
	UnitPrice    decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalPrice   decimal.Decimal `db:"total_price" json:"total_price"`
}

// BillAdjustment is an append-only audit record of an amount correction.
type BillAdjustment struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	BillID         uuid.UUID       `db:"bill_id" json:"bill_id"`
	OriginalAmount decimal.Decimal `db:"original_amount" json:"original_amount"`
	NewAmount      decimal.Decimal `db:"new_amount" json:"new_amount"`
	Reason         string          `db:"adjustment_reason" json:"adjustment_reason"`
	Type           AdjustmentType  `db:"adjustment_type" json:"adjustment_type"`
	AdjustedBy     string          `db:"adjusted_by" json:"adjusted_by"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// PaymentHistory is the append-only ledger of individual payments, one row
// per transaction regardless of the bill's cumulative amount_paid.
type PaymentHistory struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	BillID        uuid.UUID       `db:"bill_id" json:"bill_id"`
	PaymentAmount decimal.Decimal `db:"payment_amount" json:"payment_amount"`
	PaymentMethod string          `db:"payment_method" json:"payment_method"`
	PaidBy        *string         `db:"paid_by" json:"paid_by,omitempty"`
	PaymentDate   time.Time       `db:"payment_date" json:"payment_date"`
}

// Summary holds the dashboard aggregates recomputed on every fetch.
type Summary struct {
	PendingBills      int             `json:"pending_bills"`
	PartiallyPaid     int             `json:"partially_paid"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
	TodaysRevenue     decimal.Decimal `json:"todays_revenue"`
}

// LineItem is a virtual line of a proposed inpatient bill.
type LineItem struct {
	ServiceID    *uuid.UUID      `json:"service_id,omitempty"`
	MedicationID *uuid.UUID      `json:"medication_id,omitempty"`
	Description  string          `json:"description"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	TotalPrice   decimal.Decimal `json:"total_price"`
}

// ProposedBill is the client-reviewable aggregation of an admission's
// services and medications before finalization.
type ProposedBill struct {
	AdmissionID uuid.UUID       `json:"admission_id"`
	PatientID   uuid.UUID       `json:"patient_id"`
	Items       []LineItem      `json:"items"`
	Total       decimal.Decimal `json:"total"`
}
