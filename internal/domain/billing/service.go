package billing

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

var validBillTypes = map[BillType]bool{
	BillTypeMedicalService: true,
	BillTypeInpatient:      true,
	BillTypeLabTest:        true,
}

var validPaymentMethods = map[string]bool{
	"cash":     true,
	"card":     true,
	"transfer": true,
	"pos":      true,
}

// Service implements bill lifecycle operations. All multi-step writes run
// inside a single storage transaction supplied by the TxRunner.
type Service struct {
	bills       BillRepository
	items       BillItemRepository
	adjustments AdjustmentRepository
	payments    PaymentRepository
	tx          TxRunner
	publisher   realtime.Publisher
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(bills BillRepository, items BillItemRepository, adjustments AdjustmentRepository, payments PaymentRepository, tx TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		bills:       bills,
		items:       items,
		adjustments: adjustments,
		payments:    payments,
		tx:          tx,
		logger:      logger.With().Str("component", "billing").Logger(),
		now:         time.Now,
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
	// Inside a caller's transaction the row is not visible yet and the
	// write may still roll back; the caller announces it after commit.
	if db.TxFromContext(ctx) != nil {
		return
	}
	s.publisher.Publish(ctx, realtime.ChangeEvent{
		Table:     "bills",
		Op:        op,
		RowID:     id.String(),
		Timestamp: s.now().UTC(),
	})
}

// CreateBillInput carries the fields callers supply for a standalone bill.
type CreateBillInput struct {
	PatientID   uuid.UUID
	Amount      decimal.Decimal
	Description string
	BillType    BillType
	CreatedBy   *string
}

// CreateBill records a new unpaid bill.
func (s *Service) CreateBill(ctx context.Context, in CreateBillInput) (*Bill, error) {
	if in.PatientID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}
	if in.Amount.IsNegative() {
		return nil, fmt.Errorf("amount cannot be negative")
	}
	if !validBillTypes[in.BillType] {
		return nil, fmt.Errorf("invalid bill type: %s", in.BillType)
	}

	b := &Bill{
		ID:          uuid.New(),
		PatientID:   in.PatientID,
		Amount:      in.Amount,
		AmountPaid:  decimal.Zero,
		Description: in.Description,
		BillType:    in.BillType,
		CreatedBy:   in.CreatedBy,
	}
	if err := s.bills.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("create bill: %w", err)
	}

	s.logger.Info().
		Str("bill_id", b.ID.String()).
		Str("patient_id", b.PatientID.String()).
		Str("bill_type", string(b.BillType)).
		Str("amount", b.Amount.String()).
		Msg("bill created")
	s.publish(ctx, realtime.OpInsert, b.ID)
	return b, nil
}

// GetBill returns a bill by id.
func (s *Service) GetBill(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return s.bills.GetByID(ctx, id)
}

// ListBills returns bills matching the filter, newest first.
func (s *Service) ListBills(ctx context.Context, filter BillFilter, limit, offset int) ([]*Bill, int, error) {
	return s.bills.List(ctx, filter, limit, offset)
}

// BillItems returns the line items of a bill.
func (s *Service) BillItems(ctx context.Context, billID uuid.UUID) ([]*BillItem, error) {
	if _, err := s.bills.GetByID(ctx, billID); err != nil {
		return nil, err
	}
	return s.items.ListByBill(ctx, billID)
}

// Payments returns the payment ledger of a bill, newest first.
func (s *Service) Payments(ctx context.Context, billID uuid.UUID) ([]*PaymentHistory, error) {
	if _, err := s.bills.GetByID(ctx, billID); err != nil {
		return nil, err
	}
	return s.payments.ListByBill(ctx, billID)
}

// Adjustments returns the adjustment audit trail of a bill, newest first.
func (s *Service) Adjustments(ctx context.Context, billID uuid.UUID) ([]*BillAdjustment, error) {
	if _, err := s.bills.GetByID(ctx, billID); err != nil {
		return nil, err
	}
	return s.adjustments.ListByBill(ctx, billID)
}

// RecordPaymentInput carries one payment against a bill.
type RecordPaymentInput struct {
	BillID uuid.UUID
	Amount decimal.Decimal
	Method string
	PaidBy *string
}

// RecordPayment applies a payment to a bill. The increment and the paid-state
// recomputation happen in one storage statement, and the ledger row is written
// in the same transaction, so concurrent payments against the same bill both
// land and neither is lost. Payments above the outstanding balance are
// accepted as-is; amount_paid may exceed amount.
func (s *Service) RecordPayment(ctx context.Context, in RecordPaymentInput) (*Bill, error) {
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("payment amount must be positive")
	}
	if !validPaymentMethods[in.Method] {
		return nil, fmt.Errorf("invalid payment method: %s", in.Method)
	}

	at := s.now()
	var updated *Bill
	err := s.tx.RunTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.bills.ApplyPayment(ctx, in.BillID, in.Amount, in.Method, in.PaidBy, at)
		if err != nil {
			return err
		}
		return s.payments.Create(ctx, &PaymentHistory{
			ID:            uuid.New(),
			BillID:        in.BillID,
			PaymentAmount: in.Amount,
			PaymentMethod: in.Method,
			PaidBy:        in.PaidBy,
			PaymentDate:   at,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}

	s.logger.Info().
		Str("bill_id", in.BillID.String()).
		Str("amount", in.Amount.String()).
		Str("method", in.Method).
		Str("status", string(updated.PaymentStatus())).
		Msg("payment recorded")
	s.publish(ctx, realtime.OpUpdate, in.BillID)
	return updated, nil
}

// AdjustBillInput carries an amount correction or a void.
type AdjustBillInput struct {
	BillID     uuid.UUID
	Type       AdjustmentType
	NewAmount  decimal.Decimal
	Reason     string
	AdjustedBy string
}

// AdjustBill corrects a bill's amount or voids it entirely. The bill row is
// locked, the audit record written, and the amount rewritten in one
// transaction. Voiding zeroes the amount and marks the bill paid so it drops
// out of every outstanding view; payments already recorded stay in the ledger.
func (s *Service) AdjustBill(ctx context.Context, in AdjustBillInput) (*Bill, error) {
	if in.Reason == "" {
		return nil, fmt.Errorf("adjustment reason is required")
	}
	if in.AdjustedBy == "" {
		return nil, fmt.Errorf("adjusted_by is required")
	}
	switch in.Type {
	case AdjustmentAdjust:
		if in.NewAmount.IsNegative() {
			return nil, fmt.Errorf("adjusted amount cannot be negative")
		}
	case AdjustmentVoid:
		in.NewAmount = decimal.Zero
	default:
		return nil, fmt.Errorf("invalid adjustment type: %s", in.Type)
	}

	var updated *Bill
	err := s.tx.RunTx(ctx, func(ctx context.Context) error {
		bill, err := s.bills.GetForUpdate(ctx, in.BillID)
		if err != nil {
			return err
		}
		if err := s.adjustments.Create(ctx, &BillAdjustment{
			ID:             uuid.New(),
			BillID:         bill.ID,
			OriginalAmount: bill.Amount,
			NewAmount:      in.NewAmount,
			Reason:         in.Reason,
			Type:           in.Type,
			AdjustedBy:     in.AdjustedBy,
		}); err != nil {
			return err
		}
		updated, err = s.bills.SetAmount(ctx, bill.ID, in.NewAmount, in.Type == AdjustmentVoid)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("adjust bill: %w", err)
	}

	s.logger.Info().
		Str("bill_id", in.BillID.String()).
		Str("type", string(in.Type)).
		Str("new_amount", in.NewAmount.String()).
		Str("adjusted_by", in.AdjustedBy).
		Msg("bill adjusted")
	s.publish(ctx, realtime.OpUpdate, in.BillID)
	return updated, nil
}

// Summary recomputes the dashboard aggregates from stored rows.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	return s.bills.Summary(ctx, s.now())
}
