package lab

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hms/hms/internal/platform/realtime"
)

var orderTransitions = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusOrdered:    {OrderStatusInProgress: true, OrderStatusCompleted: true, OrderStatusCancelled: true},
	OrderStatusInProgress: {OrderStatusCompleted: true, OrderStatusCancelled: true},
}

type Service struct {
	tests     TestRepository
	orders    OrderRepository
	biller    Biller
	tx        TxRunner
	publisher realtime.Publisher
	logger    zerolog.Logger
}

// SetPublisher attaches a change publisher. Without one, writes proceed
// silently.
func (s *Service) SetPublisher(p realtime.Publisher) {
	s.publisher = p
}

func (s *Service) publish(ctx context.Context, table string, op realtime.Op, id uuid.UUID) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, realtime.ChangeEvent{Table: table, Op: op, RowID: id.String()})
}

func NewService(tests TestRepository, orders OrderRepository, biller Biller, tx TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		tests:  tests,
		orders: orders,
		biller: biller,
		tx:     tx,
		logger: logger.With().Str("component", "lab").Logger(),
	}
}

type CreateTestInput struct {
	Name     string
	Category string
	Price    decimal.Decimal
}

func (s *Service) CreateTest(ctx context.Context, in CreateTestInput) (*LabTest, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("test name is required")
	}
	if in.Price.IsNegative() {
		return nil, fmt.Errorf("price cannot be negative")
	}

	t := &LabTest{
		ID:       uuid.New(),
		Name:     in.Name,
		Category: in.Category,
		Price:    in.Price,
		Active:   true,
	}
	if err := s.tests.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create lab test: %w", err)
	}
	s.publish(ctx, "lab_tests", realtime.OpInsert, t.ID)
	return t, nil
}

func (s *Service) UpdateTest(ctx context.Context, t *LabTest) error {
	if t.Price.IsNegative() {
		return fmt.Errorf("price cannot be negative")
	}
	if err := s.tests.Update(ctx, t); err != nil {
		return err
	}
	s.publish(ctx, "lab_tests", realtime.OpUpdate, t.ID)
	return nil
}

func (s *Service) GetTest(ctx context.Context, id uuid.UUID) (*LabTest, error) {
	return s.tests.GetByID(ctx, id)
}

func (s *Service) ListTests(ctx context.Context, activeOnly bool, limit, offset int) ([]*LabTest, int, error) {
	return s.tests.List(ctx, activeOnly, limit, offset)
}

type OrderInput struct {
	PatientID uuid.UUID
	TestID    uuid.UUID
	OrderedBy *string
}

// Order requests a test and raises the lab_test bill in the same
// transaction. The catalog price at order time is what gets billed.
func (s *Service) Order(ctx context.Context, in OrderInput) (*LabOrder, error) {
	if in.PatientID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}
	t, err := s.tests.GetByID(ctx, in.TestID)
	if err != nil {
		return nil, err
	}
	if !t.Active {
		return nil, fmt.Errorf("lab test %q is no longer offered", t.Name)
	}

	order := &LabOrder{
		ID:        uuid.New(),
		PatientID: in.PatientID,
		TestID:    t.ID,
		TestName:  t.Name,
		Status:    OrderStatusOrdered,
		OrderedBy: in.OrderedBy,
	}
	err = s.tx.RunTx(ctx, func(ctx context.Context) error {
		billID, err := s.biller.CreateLabBill(ctx, in.PatientID, t.Price, "Lab test: "+t.Name, in.OrderedBy)
		if err != nil {
			return err
		}
		order.BillID = billID
		return s.orders.Create(ctx, order)
	})
	if err != nil {
		return nil, fmt.Errorf("order lab test: %w", err)
	}

	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("test", t.Name).
		Str("bill_id", order.BillID.String()).
		Msg("lab test ordered")
	s.publish(ctx, "lab_orders", realtime.OpInsert, order.ID)
	// The bill row only exists once the transaction above commits, so its
	// event is announced here rather than inside CreateBill.
	s.publish(ctx, "bills", realtime.OpInsert, order.BillID)
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*LabOrder, error) {
	return s.orders.GetByID(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, filter OrderFilter, limit, offset int) ([]*LabOrder, int, error) {
	return s.orders.List(ctx, filter, limit, offset)
}

// UpdateOrderStatus moves an order through its lifecycle. Completion
// requires a result.
func (s *Service) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status OrderStatus, result *string) (*LabOrder, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !orderTransitions[o.Status][status] {
		return nil, fmt.Errorf("%w: %s -> %s", ErrBadTransition, o.Status, status)
	}
	if status == OrderStatusCompleted && (result == nil || *result == "") {
		return nil, fmt.Errorf("a result is required to complete an order")
	}
	updated, err := s.orders.SetStatus(ctx, id, status, result)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, "lab_orders", realtime.OpUpdate, id)
	return updated, nil
}
