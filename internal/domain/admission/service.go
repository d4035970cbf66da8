package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hms/hms/internal/platform/realtime"
)

type Service struct {
	admissions  Repository
	services    ServiceRepository
	medications MedicationRepository
	dispenser   StockDispenser
	tx          TxRunner
	publisher   realtime.Publisher
	logger      zerolog.Logger
	now         func() time.Time
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

func NewService(admissions Repository, services ServiceRepository, medications MedicationRepository, dispenser StockDispenser, tx TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		admissions:  admissions,
		services:    services,
		medications: medications,
		dispenser:   dispenser,
		tx:          tx,
		logger:      logger.With().Str("component", "admission").Logger(),
		now:         time.Now,
	}
}

type AdmitInput struct {
	PatientID uuid.UUID
	Ward      string
	Reason    string
}

func (s *Service) Admit(ctx context.Context, in AdmitInput) (*Admission, error) {
	if in.PatientID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}
	if in.Ward == "" {
		return nil, fmt.Errorf("ward is required")
	}

	a := &Admission{
		ID:         uuid.New(),
		PatientID:  in.PatientID,
		Ward:       in.Ward,
		Reason:     in.Reason,
		Status:     StatusAdmitted,
		AdmittedAt: s.now(),
	}
	if err := s.admissions.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("admit patient: %w", err)
	}
	s.logger.Info().
		Str("admission_id", a.ID.String()).
		Str("patient_id", a.PatientID.String()).
		Str("ward", a.Ward).
		Msg("patient admitted")
	s.publish(ctx, "admissions", realtime.OpInsert, a.ID)
	return a, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Admission, error) {
	return s.admissions.GetByID(ctx, id)
}

// GetTimeline returns the admission with every service and medication
// recorded during the stay.
func (s *Service) GetTimeline(ctx context.Context, id uuid.UUID) (*Timeline, error) {
	a, err := s.admissions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	services, err := s.services.ListByAdmission(ctx, id)
	if err != nil {
		return nil, err
	}
	medications, err := s.medications.ListByAdmission(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Timeline{Admission: a, Services: services, Medications: medications}, nil
}

func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) ([]*Admission, int, error) {
	return s.admissions.List(ctx, filter, limit, offset)
}

type AddServiceInput struct {
	AdmissionID uuid.UUID
	Name        string
	Quantity    int
	UnitPrice   decimal.Decimal
	RecordedBy  *string
}

// AddService records a billable service against an active admission at the
// price in force now. Later price changes do not reprice recorded rows.
func (s *Service) AddService(ctx context.Context, in AddServiceInput) (*InpatientService, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("service name is required")
	}
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}
	if in.UnitPrice.IsNegative() {
		return nil, fmt.Errorf("unit price cannot be negative")
	}

	a, err := s.admissions.GetByID(ctx, in.AdmissionID)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusDischarged {
		return nil, ErrDischarged
	}

	svc := &InpatientService{
		ID:          uuid.New(),
		AdmissionID: in.AdmissionID,
		Name:        in.Name,
		Quantity:    in.Quantity,
		UnitPrice:   in.UnitPrice,
		TotalPrice:  in.UnitPrice.Mul(decimal.NewFromInt(int64(in.Quantity))),
		RecordedBy:  in.RecordedBy,
	}
	if err := s.services.Add(ctx, svc); err != nil {
		return nil, fmt.Errorf("add service: %w", err)
	}
	s.publish(ctx, "inpatient_services", realtime.OpInsert, svc.ID)
	return svc, nil
}

type AdministerInput struct {
	AdmissionID    uuid.UUID
	MedicationID   uuid.UUID
	Quantity       int
	AdministeredBy *string
}

// AdministerMedication dispenses stock and records the administration in one
// transaction. The inventory's current unit price is copied onto the row so
// the eventual bill reflects what the dose cost when given.
func (s *Service) AdministerMedication(ctx context.Context, in AdministerInput) (*InpatientMedication, error) {
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}

	a, err := s.admissions.GetByID(ctx, in.AdmissionID)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusDischarged {
		return nil, ErrDischarged
	}

	var rec *InpatientMedication
	err = s.tx.RunTx(ctx, func(ctx context.Context) error {
		name, unitPrice, err := s.dispenser.Dispense(ctx, in.MedicationID, in.Quantity)
		if err != nil {
			return err
		}
		rec = &InpatientMedication{
			ID:             uuid.New(),
			AdmissionID:    in.AdmissionID,
			MedicationID:   in.MedicationID,
			Name:           name,
			Quantity:       in.Quantity,
			UnitPrice:      &unitPrice,
			AdministeredBy: in.AdministeredBy,
			AdministeredAt: s.now(),
		}
		return s.medications.Add(ctx, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("administer medication: %w", err)
	}

	s.logger.Info().
		Str("admission_id", in.AdmissionID.String()).
		Str("medication_id", in.MedicationID.String()).
		Int("quantity", in.Quantity).
		Msg("medication administered")
	s.publish(ctx, "inpatient_medications", realtime.OpInsert, rec.ID)
	// The dispense commits with this transaction, so the stock change is
	// announced here rather than by the pharmacy service.
	s.publish(ctx, "medications", realtime.OpUpdate, in.MedicationID)
	return rec, nil
}

// MarkBilled stamps the admission once its final bill has been raised.
func (s *Service) MarkBilled(ctx context.Context, id uuid.UUID) error {
	return s.admissions.SetBilled(ctx, id, s.now())
}

func (s *Service) Discharge(ctx context.Context, id uuid.UUID) (*Admission, error) {
	a, err := s.admissions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusDischarged {
		return nil, ErrDischarged
	}

	updated, err := s.admissions.SetDischarged(ctx, id, s.now())
	if err != nil {
		return nil, fmt.Errorf("discharge: %w", err)
	}
	s.logger.Info().Str("admission_id", id.String()).Msg("patient discharged")
	s.publish(ctx, "admissions", realtime.OpUpdate, id)
	return updated, nil
}
