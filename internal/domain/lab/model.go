package lab

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrTestNotFound  = errors.New("lab test not found")
	ErrOrderNotFound = errors.New("lab order not found")
	ErrBadTransition = errors.New("invalid lab order status transition")
)

// LabTest is a catalog entry. Price is copied onto the bill when a test is
// ordered, so catalog edits never touch existing bills.
type LabTest struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Category  string          `db:"category" json:"category"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Active    bool            `db:"active" json:"active"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

type OrderStatus string

const (
	OrderStatusOrdered    OrderStatus = "ordered"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// LabOrder is one requested test. BillID links the lab_test bill created in
// the same transaction as the order.
type LabOrder struct {
	ID        uuid.UUID   `db:"id" json:"id"`
	PatientID uuid.UUID   `db:"patient_id" json:"patient_id"`
	TestID    uuid.UUID   `db:"test_id" json:"test_id"`
	TestName  string      `db:"test_name" json:"test_name"`
	Status    OrderStatus `db:"status" json:"status"`
	Result    *string     `db:"result" json:"result,omitempty"`
	BillID    uuid.UUID   `db:"bill_id" json:"bill_id"`
	OrderedBy *string     `db:"ordered_by" json:"ordered_by,omitempty"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}
