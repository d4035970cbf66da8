package admission

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Filter struct {
	PatientID *uuid.UUID
	Status    *Status
}

type Repository interface {
	Create(ctx context.Context, a *Admission) error
	GetByID(ctx context.Context, id uuid.UUID) (*Admission, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Admission, int, error)
	SetDischarged(ctx context.Context, id uuid.UUID, at time.Time) (*Admission, error)
	SetBilled(ctx context.Context, id uuid.UUID, at time.Time) error
}

type ServiceRepository interface {
	Add(ctx context.Context, s *InpatientService) error
	ListByAdmission(ctx context.Context, admissionID uuid.UUID) ([]*InpatientService, error)
}

type MedicationRepository interface {
	Add(ctx context.Context, m *InpatientMedication) error
	ListByAdmission(ctx context.Context, admissionID uuid.UUID) ([]*InpatientMedication, error)
}

// StockDispenser removes dispensed units from the pharmacy inventory and
// reports the name and current unit price of the medication. Implemented in
// the composition root over the pharmacy service.
type StockDispenser interface {
	Dispense(ctx context.Context, medicationID uuid.UUID, quantity int) (name string, unitPrice decimal.Decimal, err error)
}

type TxRunner interface {
	RunTx(ctx context.Context, fn func(ctx context.Context) error) error
}
