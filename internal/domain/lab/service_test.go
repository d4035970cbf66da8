package lab

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hms/hms/internal/platform/realtime"
)

type mockTestRepo struct {
	mu    sync.Mutex
	tests map[uuid.UUID]*LabTest
}

func newMockTestRepo() *mockTestRepo {
	return &mockTestRepo{tests: make(map[uuid.UUID]*LabTest)}
}

func (m *mockTestRepo) Create(_ context.Context, t *LabTest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tests[t.ID] = &cp
	return nil
}

func (m *mockTestRepo) GetByID(_ context.Context, id uuid.UUID) (*LabTest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tests[id]
	if !ok {
		return nil, ErrTestNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockTestRepo) Update(_ context.Context, t *LabTest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tests[t.ID]; !ok {
		return ErrTestNotFound
	}
	cp := *t
	m.tests[t.ID] = &cp
	return nil
}

func (m *mockTestRepo) List(_ context.Context, activeOnly bool, limit, offset int) ([]*LabTest, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*LabTest
	for _, t := range m.tests {
		if activeOnly && !t.Active {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, len(out), nil
}

type mockOrderRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*LabOrder
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{orders: make(map[uuid.UUID]*LabOrder)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *LabOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*LabOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) List(_ context.Context, filter OrderFilter, limit, offset int) ([]*LabOrder, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*LabOrder
	for _, o := range m.orders {
		if filter.PatientID != nil && o.PatientID != *filter.PatientID {
			continue
		}
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *mockOrderRepo) SetStatus(_ context.Context, id uuid.UUID, status OrderStatus, result *string) (*LabOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	o.Status = status
	if result != nil {
		o.Result = result
	}
	cp := *o
	return &cp, nil
}

type mockBiller struct {
	mu      sync.Mutex
	fail    bool
	amounts []decimal.Decimal
}

func (m *mockBiller) CreateLabBill(_ context.Context, _ uuid.UUID, amount decimal.Decimal, _ string, _ *string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return uuid.Nil, errors.New("billing unavailable")
	}
	m.amounts = append(m.amounts, amount)
	return uuid.New(), nil
}

type passthroughTx struct{}

func (passthroughTx) RunTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockPublisher struct {
	mu     sync.Mutex
	events []realtime.ChangeEvent
}

func (m *mockPublisher) Publish(_ context.Context, ev realtime.ChangeEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *mockPublisher) byTable(table string) []realtime.ChangeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []realtime.ChangeEvent
	for _, ev := range m.events {
		if ev.Table == table {
			out = append(out, ev)
		}
	}
	return out
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func newTestService() (*Service, *mockTestRepo, *mockOrderRepo, *mockBiller) {
	tests := newMockTestRepo()
	orders := newMockOrderRepo()
	biller := &mockBiller{}
	svc := NewService(tests, orders, biller, passthroughTx{}, zerolog.Nop())
	return svc, tests, orders, biller
}

func createTest(t *testing.T, svc *Service, price string) *LabTest {
	t.Helper()
	lt, err := svc.CreateTest(context.Background(), CreateTestInput{
		Name:     "Full Blood Count",
		Category: "haematology",
		Price:    dec(price),
	})
	if err != nil {
		t.Fatalf("CreateTest: %v", err)
	}
	return lt
}

func TestOrderCreatesBill(t *testing.T) {
	svc, _, _, biller := newTestService()
	lt := createTest(t, svc, "3000")

	o, err := svc.Order(context.Background(), OrderInput{
		PatientID: uuid.New(),
		TestID:    lt.ID,
	})
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if o.BillID == uuid.Nil {
		t.Error("expected bill link")
	}
	if len(biller.amounts) != 1 || !biller.amounts[0].Equal(dec("3000")) {
		t.Errorf("billed amounts = %v", biller.amounts)
	}
}

func TestOrderPublishesBillEvent(t *testing.T) {
	svc, _, _, _ := newTestService()
	pub := &mockPublisher{}
	svc.SetPublisher(pub)
	lt := createTest(t, svc, "3000")

	o, err := svc.Order(context.Background(), OrderInput{
		PatientID: uuid.New(),
		TestID:    lt.ID,
	})
	if err != nil {
		t.Fatalf("Order: %v", err)
	}

	bills := pub.byTable("bills")
	if len(bills) != 1 || bills[0].Op != realtime.OpInsert {
		t.Fatalf("bills events = %v", bills)
	}
	if bills[0].RowID != o.BillID.String() {
		t.Errorf("RowID = %s, want %s", bills[0].RowID, o.BillID)
	}
	if orders := pub.byTable("lab_orders"); len(orders) != 1 {
		t.Errorf("lab_orders events = %v", orders)
	}
}

func TestOrderBillingFailurePublishesNothing(t *testing.T) {
	svc, _, _, biller := newTestService()
	pub := &mockPublisher{}
	svc.SetPublisher(pub)
	lt := createTest(t, svc, "3000")
	biller.fail = true

	if _, err := svc.Order(context.Background(), OrderInput{
		PatientID: uuid.New(),
		TestID:    lt.ID,
	}); err == nil {
		t.Fatal("expected error")
	}
	if bills := pub.byTable("bills"); len(bills) != 0 {
		t.Errorf("bill events after rollback: %v", bills)
	}
	if orders := pub.byTable("lab_orders"); len(orders) != 0 {
		t.Errorf("order events after rollback: %v", orders)
	}
}

func TestOrderBillingFailureCreatesNoOrder(t *testing.T) {
	svc, _, orders, biller := newTestService()
	biller.fail = true
	lt := createTest(t, svc, "3000")

	_, err := svc.Order(context.Background(), OrderInput{
		PatientID: uuid.New(),
		TestID:    lt.ID,
	})
	if err == nil {
		t.Fatal("expected error")
	}
	all, _, _ := orders.List(context.Background(), OrderFilter{}, 100, 0)
	if len(all) != 0 {
		t.Errorf("orders = %d, want 0", len(all))
	}
}

func TestOrderInactiveTest(t *testing.T) {
	svc, _, _, _ := newTestService()
	lt := createTest(t, svc, "3000")
	lt.Active = false
	if err := svc.UpdateTest(context.Background(), lt); err != nil {
		t.Fatalf("UpdateTest: %v", err)
	}

	_, err := svc.Order(context.Background(), OrderInput{PatientID: uuid.New(), TestID: lt.ID})
	if err == nil {
		t.Error("expected error for inactive test")
	}
}

func TestOrderBillsCatalogPriceAtOrderTime(t *testing.T) {
	svc, _, _, biller := newTestService()
	lt := createTest(t, svc, "3000")

	if _, err := svc.Order(context.Background(), OrderInput{PatientID: uuid.New(), TestID: lt.ID}); err != nil {
		t.Fatalf("Order: %v", err)
	}

	lt.Price = dec("4500")
	if err := svc.UpdateTest(context.Background(), lt); err != nil {
		t.Fatalf("UpdateTest: %v", err)
	}
	if _, err := svc.Order(context.Background(), OrderInput{PatientID: uuid.New(), TestID: lt.ID}); err != nil {
		t.Fatalf("Order: %v", err)
	}

	if len(biller.amounts) != 2 {
		t.Fatalf("billed amounts = %v", biller.amounts)
	}
	if !biller.amounts[0].Equal(dec("3000")) || !biller.amounts[1].Equal(dec("4500")) {
		t.Errorf("billed amounts = %v", biller.amounts)
	}
}

func TestOrderStatusLifecycle(t *testing.T) {
	svc, _, _, _ := newTestService()
	lt := createTest(t, svc, "3000")

	o, err := svc.Order(context.Background(), OrderInput{PatientID: uuid.New(), TestID: lt.ID})
	if err != nil {
		t.Fatalf("Order: %v", err)
	}

	if _, err := svc.UpdateOrderStatus(context.Background(), o.ID, OrderStatusCompleted, nil); err == nil {
		t.Error("completion without result should fail")
	}

	result := "WBC 6.2, RBC 4.9"
	done, err := svc.UpdateOrderStatus(context.Background(), o.ID, OrderStatusCompleted, &result)
	if err != nil {
		t.Fatalf("UpdateOrderStatus: %v", err)
	}
	if done.Status != OrderStatusCompleted || done.Result == nil {
		t.Errorf("order = %+v", done)
	}

	if _, err := svc.UpdateOrderStatus(context.Background(), o.ID, OrderStatusCancelled, nil); !errors.Is(err, ErrBadTransition) {
		t.Errorf("err = %v, want ErrBadTransition", err)
	}
}
