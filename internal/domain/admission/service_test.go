package admission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type mockRepo struct {
	mu         sync.Mutex
	admissions map[uuid.UUID]*Admission
}

func newMockRepo() *mockRepo {
	return &mockRepo{admissions: make(map[uuid.UUID]*Admission)}
}

func (m *mockRepo) Create(_ context.Context, a *Admission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.admissions[a.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Admission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.admissions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) List(_ context.Context, filter Filter, limit, offset int) ([]*Admission, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Admission
	for _, a := range m.admissions {
		if filter.PatientID != nil && a.PatientID != *filter.PatientID {
			continue
		}
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (m *mockRepo) SetDischarged(_ context.Context, id uuid.UUID, at time.Time) (*Admission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.admissions[id]
	if !ok {
		return nil, ErrNotFound
	}
	a.Status = StatusDischarged
	a.DischargedAt = &at
	cp := *a
	return &cp, nil
}

func (m *mockRepo) SetBilled(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.admissions[id]
	if !ok {
		return ErrNotFound
	}
	a.BilledAt = &at
	return nil
}

type mockServiceRepo struct {
	mu       sync.Mutex
	services map[uuid.UUID][]*InpatientService
}

func newMockServiceRepo() *mockServiceRepo {
	return &mockServiceRepo{services: make(map[uuid.UUID][]*InpatientService)}
}

func (m *mockServiceRepo) Add(_ context.Context, s *InpatientService) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.services[s.AdmissionID] = append(m.services[s.AdmissionID], &cp)
	return nil
}

func (m *mockServiceRepo) ListByAdmission(_ context.Context, admissionID uuid.UUID) ([]*InpatientService, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.services[admissionID], nil
}

type mockMedicationRepo struct {
	mu          sync.Mutex
	medications map[uuid.UUID][]*InpatientMedication
}

func newMockMedicationRepo() *mockMedicationRepo {
	return &mockMedicationRepo{medications: make(map[uuid.UUID][]*InpatientMedication)}
}

func (m *mockMedicationRepo) Add(_ context.Context, rec *InpatientMedication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.medications[rec.AdmissionID] = append(m.medications[rec.AdmissionID], &cp)
	return nil
}

func (m *mockMedicationRepo) ListByAdmission(_ context.Context, admissionID uuid.UUID) ([]*InpatientMedication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.medications[admissionID], nil
}

type mockDispenser struct {
	mu        sync.Mutex
	stock     int
	unitPrice decimal.Decimal
	dispensed int
}

func (m *mockDispenser) Dispense(_ context.Context, _ uuid.UUID, quantity int) (string, decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if quantity > m.stock {
		return "", decimal.Zero, errors.New("insufficient stock")
	}
	m.stock -= quantity
	m.dispensed += quantity
	return "Paracetamol 500mg", m.unitPrice, nil
}

type passthroughTx struct{}

func (passthroughTx) RunTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func newTestService(stock int) (*Service, *mockRepo, *mockMedicationRepo, *mockDispenser) {
	repo := newMockRepo()
	medRepo := newMockMedicationRepo()
	dispenser := &mockDispenser{stock: stock, unitPrice: dec("150")}
	svc := NewService(repo, newMockServiceRepo(), medRepo, dispenser, passthroughTx{}, zerolog.Nop())
	return svc, repo, medRepo, dispenser
}

func admit(t *testing.T, svc *Service) *Admission {
	t.Helper()
	a, err := svc.Admit(context.Background(), AdmitInput{
		PatientID: uuid.New(),
		Ward:      "Ward B",
		Reason:    "observation",
	})
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	return a
}

func TestAdmit(t *testing.T) {
	svc, _, _, _ := newTestService(0)
	a := admit(t, svc)
	if a.Status != StatusAdmitted {
		t.Errorf("Status = %s", a.Status)
	}
}

func TestAddServicePricesAtRecordTime(t *testing.T) {
	svc, _, _, _ := newTestService(0)
	a := admit(t, svc)

	rec, err := svc.AddService(context.Background(), AddServiceInput{
		AdmissionID: a.ID,
		Name:        "Wound dressing",
		Quantity:    3,
		UnitPrice:   dec("500"),
	})
	if err != nil {
		t.Fatalf("AddService: %v", err)
	}
	if !rec.TotalPrice.Equal(dec("1500")) {
		t.Errorf("TotalPrice = %s, want 1500", rec.TotalPrice)
	}
}

func TestAdministerMedicationRecordsPrice(t *testing.T) {
	svc, _, medRepo, dispenser := newTestService(10)
	a := admit(t, svc)

	rec, err := svc.AdministerMedication(context.Background(), AdministerInput{
		AdmissionID:  a.ID,
		MedicationID: uuid.New(),
		Quantity:     2,
	})
	if err != nil {
		t.Fatalf("AdministerMedication: %v", err)
	}
	if rec.UnitPrice == nil || !rec.UnitPrice.Equal(dec("150")) {
		t.Errorf("UnitPrice = %v, want 150", rec.UnitPrice)
	}
	if dispenser.stock != 8 {
		t.Errorf("stock = %d, want 8", dispenser.stock)
	}
	recs, _ := medRepo.ListByAdmission(context.Background(), a.ID)
	if len(recs) != 1 {
		t.Errorf("recorded administrations = %d", len(recs))
	}
}

func TestAdministerInsufficientStockRecordsNothing(t *testing.T) {
	svc, _, medRepo, _ := newTestService(1)
	a := admit(t, svc)

	_, err := svc.AdministerMedication(context.Background(), AdministerInput{
		AdmissionID:  a.ID,
		MedicationID: uuid.New(),
		Quantity:     5,
	})
	if err == nil {
		t.Fatal("expected error")
	}
	recs, _ := medRepo.ListByAdmission(context.Background(), a.ID)
	if len(recs) != 0 {
		t.Errorf("recorded administrations = %d, want 0", len(recs))
	}
}

func TestDischargeBlocksFurtherWrites(t *testing.T) {
	svc, _, _, _ := newTestService(10)
	a := admit(t, svc)

	if _, err := svc.Discharge(context.Background(), a.ID); err != nil {
		t.Fatalf("Discharge: %v", err)
	}
	if _, err := svc.Discharge(context.Background(), a.ID); !errors.Is(err, ErrDischarged) {
		t.Errorf("second discharge err = %v", err)
	}
	_, err := svc.AddService(context.Background(), AddServiceInput{
		AdmissionID: a.ID, Name: "x", Quantity: 1, UnitPrice: dec("1"),
	})
	if !errors.Is(err, ErrDischarged) {
		t.Errorf("AddService after discharge err = %v", err)
	}
	_, err = svc.AdministerMedication(context.Background(), AdministerInput{
		AdmissionID: a.ID, MedicationID: uuid.New(), Quantity: 1,
	})
	if !errors.Is(err, ErrDischarged) {
		t.Errorf("AdministerMedication after discharge err = %v", err)
	}
}

func TestTimeline(t *testing.T) {
	svc, _, _, _ := newTestService(10)
	a := admit(t, svc)

	if _, err := svc.AddService(context.Background(), AddServiceInput{
		AdmissionID: a.ID, Name: "Ward round", Quantity: 1, UnitPrice: dec("1000"),
	}); err != nil {
		t.Fatalf("AddService: %v", err)
	}
	if _, err := svc.AdministerMedication(context.Background(), AdministerInput{
		AdmissionID: a.ID, MedicationID: uuid.New(), Quantity: 1,
	}); err != nil {
		t.Fatalf("AdministerMedication: %v", err)
	}

	tl, err := svc.GetTimeline(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("GetTimeline: %v", err)
	}
	if len(tl.Services) != 1 || len(tl.Medications) != 1 {
		t.Errorf("services = %d, medications = %d", len(tl.Services), len(tl.Medications))
	}
}
