package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Filter struct {
	PatientID *uuid.UUID
	Status    *Status
	// Day narrows to appointments scheduled on that calendar day.
	Day *time.Time
}

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Appointment, int, error)
	// SetStatus writes the new status and, when billID is non-nil, links the
	// bill created on completion.
	SetStatus(ctx context.Context, id uuid.UUID, status Status, billID *uuid.UUID) (*Appointment, error)
	// HasOverlap reports whether the doctor holds a scheduled or checked-in
	// appointment overlapping [start, end).
	HasOverlap(ctx context.Context, doctorName string, start, end time.Time) (bool, error)
}

// Biller creates the consultation bill when an appointment completes.
// Implemented in the composition root over the billing service.
type Biller interface {
	CreateServiceBill(ctx context.Context, patientID uuid.UUID, amount decimal.Decimal, description string, createdBy *string) (uuid.UUID, error)
}

type TxRunner interface {
	RunTx(ctx context.Context, fn func(ctx context.Context) error) error
}
