package pharmacy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/realtime"
)

// NearExpiryWindow is how far ahead the expiry report looks.
const NearExpiryWindow = 30 * 24 * time.Hour

type Service struct {
	repo      Repository
	publisher realtime.Publisher
	logger    zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "pharmacy").Logger(),
	}
}

// SetPublisher attaches a change publisher. Without one, writes proceed
// silently.
func (s *Service) SetPublisher(p realtime.Publisher) {
	s.publisher = p
}

func (s *Service) publish(ctx context.Context, op realtime.Op, id uuid.UUID) {
	if s.publisher == nil {
		return
	}
	// Dispensing can run inside another domain's transaction; that caller
	// announces the stock change after commit.
	if db.TxFromContext(ctx) != nil {
		return
	}
	s.publisher.Publish(ctx, realtime.ChangeEvent{Table: "medications", Op: op, RowID: id.String()})
}

type AddMedicationInput struct {
	Name          string
	Category      string
	UnitPrice     decimal.Decimal
	StockQuantity int
	ReorderLevel  int
	ExpiryDate    *time.Time
}

func (s *Service) AddMedication(ctx context.Context, in AddMedicationInput) (*Medication, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if in.UnitPrice.IsNegative() {
		return nil, fmt.Errorf("unit price cannot be negative")
	}
	if in.StockQuantity < 0 || in.ReorderLevel < 0 {
		return nil, fmt.Errorf("stock and reorder level cannot be negative")
	}

	m := &Medication{
		ID:            uuid.New(),
		Name:          in.Name,
		Category:      in.Category,
		UnitPrice:     in.UnitPrice,
		StockQuantity: in.StockQuantity,
		ReorderLevel:  in.ReorderLevel,
		ExpiryDate:    in.ExpiryDate,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("add medication: %w", err)
	}
	s.logger.Info().Str("medication_id", m.ID.String()).Str("name", m.Name).Msg("medication added")
	s.publish(ctx, realtime.OpInsert, m.ID)
	return m, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Medication, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Search(ctx context.Context, query string, limit, offset int) ([]*Medication, int, error) {
	return s.repo.Search(ctx, query, limit, offset)
}

func (s *Service) UpdateDetails(ctx context.Context, m *Medication) error {
	if m.UnitPrice.IsNegative() {
		return fmt.Errorf("unit price cannot be negative")
	}
	if err := s.repo.Update(ctx, m); err != nil {
		return err
	}
	s.publish(ctx, realtime.OpUpdate, m.ID)
	return nil
}

// Restock adds quantity to the stock level.
func (s *Service) Restock(ctx context.Context, id uuid.UUID, quantity int) (*Medication, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("restock quantity must be positive")
	}
	m, err := s.repo.AdjustStock(ctx, id, quantity)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("medication_id", id.String()).Int("quantity", quantity).Msg("medication restocked")
	s.publish(ctx, realtime.OpUpdate, id)
	return m, nil
}

// Dispense removes quantity from stock and returns the medication with its
// current unit price, which callers record on the administration row.
func (s *Service) Dispense(ctx context.Context, id uuid.UUID, quantity int) (*Medication, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("dispense quantity must be positive")
	}
	m, err := s.repo.AdjustStock(ctx, id, -quantity)
	if err != nil {
		return nil, err
	}
	if m.LowStock() {
		s.logger.Warn().
			Str("medication_id", id.String()).
			Str("name", m.Name).
			Int("stock", m.StockQuantity).
			Int("reorder_level", m.ReorderLevel).
			Msg("medication at or below reorder level")
	}
	s.publish(ctx, realtime.OpUpdate, id)
	return m, nil
}

func (s *Service) LowStock(ctx context.Context) ([]*Medication, error) {
	return s.repo.LowStock(ctx)
}

func (s *Service) NearExpiry(ctx context.Context) ([]*Medication, error) {
	return s.repo.NearExpiry(ctx, NearExpiryWindow)
}
