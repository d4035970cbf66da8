package lab

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TestRepository interface {
	Create(ctx context.Context, t *LabTest) error
	GetByID(ctx context.Context, id uuid.UUID) (*LabTest, error)
	Update(ctx context.Context, t *LabTest) error
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*LabTest, int, error)
}

type OrderFilter struct {
	PatientID *uuid.UUID
	Status    *OrderStatus
}

type OrderRepository interface {
	Create(ctx context.Context, o *LabOrder) error
	GetByID(ctx context.Context, id uuid.UUID) (*LabOrder, error)
	List(ctx context.Context, filter OrderFilter, limit, offset int) ([]*LabOrder, int, error)
	// SetStatus writes the new status and, for completions, the result text.
	SetStatus(ctx context.Context, id uuid.UUID, status OrderStatus, result *string) (*LabOrder, error)
}

// Biller raises the lab_test bill inside the order transaction. Implemented
// in the composition root over the billing service.
type Biller interface {
	CreateLabBill(ctx context.Context, patientID uuid.UUID, amount decimal.Decimal, description string, createdBy *string) (uuid.UUID, error)
}

type TxRunner interface {
	RunTx(ctx context.Context, fn func(ctx context.Context) error) error
}
