package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	// Search matches the query against name and phone. An empty query lists
	// everyone, newest first.
	Search(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error)
}
