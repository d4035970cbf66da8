package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolRunner runs functions inside pool-backed transactions. Domain services
// depend on the interface shape only, so tests can substitute a pass-through.
type PoolRunner struct {
	pool *pgxpool.Pool
}

func NewPoolRunner(pool *pgxpool.Pool) *PoolRunner {
	return &PoolRunner{pool: pool}
}

func (r *PoolRunner) RunTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return WithTx(ctx, r.pool, fn)
}
