package pharmacy

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("medication not found")
	// ErrInsufficientStock is returned when a dispense would take the stock
	// level below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Medication is one inventory line. StockQuantity only changes through
// atomic adjustments so concurrent dispenses cannot oversell.
type Medication struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	Category      string          `db:"category" json:"category"`
	UnitPrice     decimal.Decimal `db:"unit_price" json:"unit_price"`
	StockQuantity int             `db:"stock_quantity" json:"stock_quantity"`
	ReorderLevel  int             `db:"reorder_level" json:"reorder_level"`
	ExpiryDate    *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

func (m *Medication) LowStock() bool {
	return m.StockQuantity <= m.ReorderLevel
}
