package pharmacy

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, m *Medication) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medication, error)
	Update(ctx context.Context, m *Medication) error
	Search(ctx context.Context, query string, limit, offset int) ([]*Medication, int, error)
	// AdjustStock adds delta to the stock level in one guarded statement.
	// A negative delta that would underflow returns ErrInsufficientStock.
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*Medication, error)
	LowStock(ctx context.Context) ([]*Medication, error)
	NearExpiry(ctx context.Context, within time.Duration) ([]*Medication, error)
}
