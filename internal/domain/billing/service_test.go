package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- mocks ----

type mockBillRepo struct {
	mu    sync.Mutex
	bills map[uuid.UUID]*Bill
	// byAdmission mirrors the unique index on bills(admission_id).
	byAdmission map[uuid.UUID]uuid.UUID
}

func newMockBillRepo() *mockBillRepo {
	return &mockBillRepo{
		bills:       make(map[uuid.UUID]*Bill),
		byAdmission: make(map[uuid.UUID]uuid.UUID),
	}
}

func (m *mockBillRepo) Create(_ context.Context, b *Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.AdmissionID != nil {
		if _, exists := m.byAdmission[*b.AdmissionID]; exists {
			return ErrDuplicateBill
		}
		m.byAdmission[*b.AdmissionID] = b.ID
	}
	cp := *b
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.bills[b.ID] = &cp
	return nil
}

func (m *mockBillRepo) GetByID(_ context.Context, id uuid.UUID) (*Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bills[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *mockBillRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return m.GetByID(ctx, id)
}

func (m *mockBillRepo) List(_ context.Context, filter BillFilter, limit, offset int) ([]*Bill, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Bill
	for _, b := range m.bills {
		if filter.PatientID != nil && b.PatientID != *filter.PatientID {
			continue
		}
		if filter.BillType != nil && b.BillType != *filter.BillType {
			continue
		}
		if filter.Unpaid && b.IsPaid {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *mockBillRepo) ApplyPayment(_ context.Context, id uuid.UUID, amount decimal.Decimal, method string, paidBy *string, at time.Time) (*Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bills[id]
	if !ok {
		return nil, ErrNotFound
	}
	b.AmountPaid = b.AmountPaid.Add(amount)
	b.PaymentMethod = &method
	if paidBy != nil {
		b.PaidBy = paidBy
	}
	if b.AmountPaid.GreaterThanOrEqual(b.Amount) {
		b.IsPaid = true
		b.PaidAt = &at
	}
	b.UpdatedAt = at
	cp := *b
	return &cp, nil
}

func (m *mockBillRepo) SetAmount(_ context.Context, id uuid.UUID, amount decimal.Decimal, markPaid bool) (*Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bills[id]
	if !ok {
		return nil, ErrNotFound
	}
	b.Amount = amount
	if markPaid {
		b.IsPaid = true
	}
	b.UpdatedAt = time.Now()
	cp := *b
	return &cp, nil
}

func (m *mockBillRepo) Summary(_ context.Context, _ time.Time) (*Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &Summary{OutstandingAmount: decimal.Zero, TodaysRevenue: decimal.Zero}
	for _, b := range m.bills {
		if b.IsPaid {
			continue
		}
		s.PendingBills++
		if b.AmountPaid.IsPositive() {
			s.PartiallyPaid++
		}
		s.OutstandingAmount = s.OutstandingAmount.Add(b.Amount.Sub(b.AmountPaid))
	}
	return s, nil
}

type mockItemRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID][]*BillItem
}

func newMockItemRepo() *mockItemRepo {
	return &mockItemRepo{items: make(map[uuid.UUID][]*BillItem)}
}

func (m *mockItemRepo) CreateBatch(_ context.Context, items []*BillItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		cp := *it
		m.items[it.BillID] = append(m.items[it.BillID], &cp)
	}
	return nil
}

func (m *mockItemRepo) ListByBill(_ context.Context, billID uuid.UUID) ([]*BillItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[billID], nil
}

type mockAdjustmentRepo struct {
	mu          sync.Mutex
	adjustments map[uuid.UUID][]*BillAdjustment
}

func newMockAdjustmentRepo() *mockAdjustmentRepo {
	return &mockAdjustmentRepo{adjustments: make(map[uuid.UUID][]*BillAdjustment)}
}

func (m *mockAdjustmentRepo) Create(_ context.Context, a *BillAdjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	cp.CreatedAt = time.Now()
	m.adjustments[a.BillID] = append(m.adjustments[a.BillID], &cp)
	return nil
}

func (m *mockAdjustmentRepo) ListByBill(_ context.Context, billID uuid.UUID) ([]*BillAdjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adjustments[billID], nil
}

type mockPaymentRepo struct {
	mu       sync.Mutex
	payments map[uuid.UUID][]*PaymentHistory
}

func newMockPaymentRepo() *mockPaymentRepo {
	return &mockPaymentRepo{payments: make(map[uuid.UUID][]*PaymentHistory)}
}

func (m *mockPaymentRepo) Create(_ context.Context, p *PaymentHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments[p.BillID] = append(m.payments[p.BillID], &cp)
	return nil
}

func (m *mockPaymentRepo) ListByBill(_ context.Context, billID uuid.UUID) ([]*PaymentHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[billID], nil
}

// passthroughTx runs the function directly. The mock repos are their own
// source of atomicity.
type passthroughTx struct{}

func (passthroughTx) RunTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestService() (*Service, *mockBillRepo, *mockPaymentRepo, *mockAdjustmentRepo) {
	bills := newMockBillRepo()
	items := newMockItemRepo()
	adjustments := newMockAdjustmentRepo()
	payments := newMockPaymentRepo()
	svc := NewService(bills, items, adjustments, payments, passthroughTx{}, zerolog.Nop())
	return svc, bills, payments, adjustments
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ---- tests ----

func TestCreateBill(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	bill, err := svc.CreateBill(ctx, CreateBillInput{
		PatientID:   uuid.New(),
		Amount:      dec("5000"),
		Description: "Consultation",
		BillType:    BillTypeMedicalService,
	})
	require.NoError(t, err)
	assert.True(t, bill.AmountPaid.IsZero())
	assert.False(t, bill.IsPaid)
	assert.Equal(t, StatusUnpaid, bill.PaymentStatus())
	assert.True(t, bill.Outstanding().Equal(dec("5000")))
}

func TestCreateBillValidation(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateBillInput
	}{
		{"missing patient", CreateBillInput{Amount: dec("100"), BillType: BillTypeLabTest}},
		{"negative amount", CreateBillInput{PatientID: uuid.New(), Amount: dec("-1"), BillType: BillTypeLabTest}},
		{"bad type", CreateBillInput{PatientID: uuid.New(), Amount: dec("100"), BillType: "consultation"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateBill(ctx, tt.in)
			assert.Error(t, err)
		})
	}
}

func TestRecordPaymentPartialThenFull(t *testing.T) {
	svc, _, payments, _ := newTestService()
	ctx := context.Background()

	bill, err := svc.CreateBill(ctx, CreateBillInput{
		PatientID: uuid.New(),
		Amount:    dec("5000"),
		BillType:  BillTypeMedicalService,
	})
	require.NoError(t, err)

	after, err := svc.RecordPayment(ctx, RecordPaymentInput{
		BillID: bill.ID,
		Amount: dec("2000"),
		Method: "cash",
	})
	require.NoError(t, err)
	assert.True(t, after.AmountPaid.Equal(dec("2000")))
	assert.False(t, after.IsPaid)
	assert.Equal(t, StatusPartiallyPaid, after.PaymentStatus())
	assert.True(t, after.Outstanding().Equal(dec("3000")))

	after, err = svc.RecordPayment(ctx, RecordPaymentInput{
		BillID: bill.ID,
		Amount: dec("3000"),
		Method: "card",
	})
	require.NoError(t, err)
	assert.True(t, after.IsPaid)
	assert.Equal(t, StatusFullyPaid, after.PaymentStatus())
	assert.True(t, after.Outstanding().IsZero())
	require.NotNil(t, after.PaidAt)

	ledger, err := payments.ListByBill(ctx, bill.ID)
	require.NoError(t, err)
	assert.Len(t, ledger, 2)
}

func TestRecordPaymentRejections(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	bill, err := svc.CreateBill(ctx, CreateBillInput{
		PatientID: uuid.New(),
		Amount:    dec("1000"),
		BillType:  BillTypeLabTest,
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		amount decimal.Decimal
		method string
	}{
		{"zero amount", decimal.Zero, "cash"},
		{"negative amount", dec("-50"), "cash"},
		{"bad method", dec("100"), "cheque"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordPayment(ctx, RecordPaymentInput{
				BillID: bill.ID,
				Amount: tt.amount,
				Method: tt.method,
			})
			assert.Error(t, err)
		})
	}
}

func TestRecordPaymentOverpaymentLands(t *testing.T) {
	svc, _, payments, _ := newTestService()
	ctx := context.Background()

	bill, err := svc.CreateBill(ctx, CreateBillInput{
		PatientID: uuid.New(),
		Amount:    dec("5000"),
		BillType:  BillTypeMedicalService,
	})
	require.NoError(t, err)

	// A payment above the outstanding balance is accepted as-is.
	after, err := svc.RecordPayment(ctx, RecordPaymentInput{BillID: bill.ID, Amount: dec("6000"), Method: "cash"})
	require.NoError(t, err)
	assert.True(t, after.AmountPaid.Equal(dec("6000")))
	assert.True(t, after.IsPaid)
	assert.Equal(t, StatusFullyPaid, after.PaymentStatus())

	// So is a further payment on a bill already settled.
	after, err = svc.RecordPayment(ctx, RecordPaymentInput{BillID: bill.ID, Amount: dec("1000"), Method: "card"})
	require.NoError(t, err)
	assert.True(t, after.AmountPaid.Equal(dec("7000")))
	assert.True(t, after.IsPaid)

	ledger, err := payments.ListByBill(ctx, bill.ID)
	require.NoError(t, err)
	assert.Len(t, ledger, 2)
}

func TestRecordPaymentMissingBill(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.RecordPayment(context.Background(), RecordPaymentInput{
		BillID: uuid.New(),
		Amount: dec("100"),
		Method: "cash",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdjustBill(t *testing.T) {
	svc, _, _, adjustments := newTestService()
	ctx := context.Background()

	bill, err := svc.CreateBill(ctx, CreateBillInput{
		PatientID: uuid.New(),
		Amount:    dec("10000"),
		BillType:  BillTypeMedicalService,
	})
	require.NoError(t, err)

	after, err := svc.AdjustBill(ctx, AdjustBillInput{
		BillID:     bill.ID,
		Type:       AdjustmentAdjust,
		NewAmount:  dec("7500"),
		Reason:     "discounted per management approval",
		AdjustedBy: "Jane Finance",
	})
	require.NoError(t, err)
	assert.True(t, after.Amount.Equal(dec("7500")))
	assert.False(t, after.IsPaid)

	trail, err := adjustments.ListByBill(ctx, bill.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.True(t, trail[0].OriginalAmount.Equal(dec("10000")))
	assert.True(t, trail[0].NewAmount.Equal(dec("7500")))
}

func TestVoidBill(t *testing.T) {
	svc, _, _, adjustments := newTestService()
	ctx := context.Background()

	bill, err := svc.CreateBill(ctx, CreateBillInput{
		PatientID: uuid.New(),
		Amount:    dec("10000"),
		BillType:  BillTypeMedicalService,
	})
	require.NoError(t, err)

	after, err := svc.AdjustBill(ctx, AdjustBillInput{
		BillID:     bill.ID,
		Type:       AdjustmentVoid,
		Reason:     "duplicate charge",
		AdjustedBy: "Jane Finance",
	})
	require.NoError(t, err)
	assert.True(t, after.Amount.IsZero())
	assert.True(t, after.IsPaid)

	trail, err := adjustments.ListByBill(ctx, bill.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, AdjustmentVoid, trail[0].Type)
	assert.True(t, trail[0].NewAmount.IsZero())

	s, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, s.PendingBills)
	assert.True(t, s.OutstandingAmount.IsZero())
}

func TestAdjustBillValidation(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	bill, err := svc.CreateBill(ctx, CreateBillInput{
		PatientID: uuid.New(),
		Amount:    dec("100"),
		BillType:  BillTypeLabTest,
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		in   AdjustBillInput
	}{
		{"missing reason", AdjustBillInput{BillID: bill.ID, Type: AdjustmentAdjust, NewAmount: dec("50"), AdjustedBy: "x"}},
		{"missing actor", AdjustBillInput{BillID: bill.ID, Type: AdjustmentAdjust, NewAmount: dec("50"), Reason: "r"}},
		{"negative amount", AdjustBillInput{BillID: bill.ID, Type: AdjustmentAdjust, NewAmount: dec("-5"), Reason: "r", AdjustedBy: "x"}},
		{"bad type", AdjustBillInput{BillID: bill.ID, Type: "refund", NewAmount: dec("50"), Reason: "r", AdjustedBy: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AdjustBill(ctx, tt.in)
			assert.Error(t, err)
		})
	}
}

func TestSummaryCounts(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	b1, err := svc.CreateBill(ctx, CreateBillInput{PatientID: uuid.New(), Amount: dec("5000"), BillType: BillTypeMedicalService})
	require.NoError(t, err)
	_, err = svc.CreateBill(ctx, CreateBillInput{PatientID: uuid.New(), Amount: dec("3000"), BillType: BillTypeLabTest})
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, RecordPaymentInput{BillID: b1.ID, Amount: dec("2000"), Method: "cash"})
	require.NoError(t, err)

	s, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, s.PendingBills)
	assert.Equal(t, 1, s.PartiallyPaid)
	assert.True(t, s.OutstandingAmount.Equal(dec("6000")))
}

func TestConcurrentPaymentsBothLand(t *testing.T) {
	svc, _, payments, _ := newTestService()
	ctx := context.Background()

	bill, err := svc.CreateBill(ctx, CreateBillInput{
		PatientID: uuid.New(),
		Amount:    dec("5000"),
		BillType:  BillTypeMedicalService,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordPayment(ctx, RecordPaymentInput{
				BillID: bill.ID,
				Amount: dec("1000"),
				Method: "cash",
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	after, err := svc.GetBill(ctx, bill.ID)
	require.NoError(t, err)
	assert.True(t, after.AmountPaid.Equal(dec("2000")))

	ledger, err := payments.ListByBill(ctx, bill.ID)
	require.NoError(t, err)
	assert.Len(t, ledger, 2)
}
