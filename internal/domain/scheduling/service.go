package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hms/hms/internal/platform/realtime"
)

// DefaultDurationMinutes is the slot length used when the caller does not
// specify one.
const DefaultDurationMinutes = 30

// allowedTransitions maps a current status to the statuses it may move to.
var allowedTransitions = map[Status]map[Status]bool{
	StatusScheduled: {StatusCheckedIn: true, StatusCompleted: true, StatusCancelled: true, StatusNoShow: true},
	StatusCheckedIn: {StatusCompleted: true, StatusCancelled: true},
}

type Service struct {
	repo      Repository
	biller    Biller
	tx        TxRunner
	publisher realtime.Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, biller Biller, tx TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		biller: biller,
		tx:     tx,
		logger: logger.With().Str("component", "scheduling").Logger(),
		now:    time.Now,
	}
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
	s.publisher.Publish(ctx, realtime.ChangeEvent{
		Table:     table,
		Op:        op,
		RowID:     id.String(),
		Timestamp: s.now().UTC(),
	})
}

type ScheduleInput struct {
	PatientID       uuid.UUID
	DoctorName      string
	ScheduledAt     time.Time
	DurationMinutes int
	Reason          string
	Fee             decimal.Decimal
}

// Schedule books a slot. The doctor's calendar is checked for overlap and
// the row inserted in the same transaction; a taken slot returns ErrConflict.
func (s *Service) Schedule(ctx context.Context, in ScheduleInput) (*Appointment, error) {
	if in.PatientID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}
	if in.DoctorName == "" {
		return nil, fmt.Errorf("doctor_name is required")
	}
	if in.ScheduledAt.Before(s.now()) {
		return nil, fmt.Errorf("appointment time is in the past")
	}
	if in.DurationMinutes == 0 {
		in.DurationMinutes = DefaultDurationMinutes
	}
	if in.DurationMinutes < 0 {
		return nil, fmt.Errorf("duration cannot be negative")
	}
	if in.Fee.IsNegative() {
		return nil, fmt.Errorf("fee cannot be negative")
	}

	a := &Appointment{
		ID:              uuid.New(),
		PatientID:       in.PatientID,
		DoctorName:      in.DoctorName,
		ScheduledAt:     in.ScheduledAt,
		DurationMinutes: in.DurationMinutes,
		Status:          StatusScheduled,
		Reason:          in.Reason,
		Fee:             in.Fee,
	}
	err := s.tx.RunTx(ctx, func(ctx context.Context) error {
		busy, err := s.repo.HasOverlap(ctx, in.DoctorName, a.ScheduledAt, a.End())
		if err != nil {
			return err
		}
		if busy {
			return ErrConflict
		}
		return s.repo.Create(ctx, a)
	})
	if errors.Is(err, ErrConflict) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("schedule appointment: %w", err)
	}
	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("patient_id", a.PatientID.String()).
		Time("scheduled_at", a.ScheduledAt).
		Int("duration_minutes", a.DurationMinutes).
		Msg("appointment scheduled")
	s.publish(ctx, "appointments", realtime.OpInsert, a.ID)
	return a, nil
}

// CheckIn records the patient's arrival.
func (s *Service) CheckIn(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !allowedTransitions[a.Status][StatusCheckedIn] {
		return nil, fmt.Errorf("%w: %s -> %s", ErrBadTransition, a.Status, StatusCheckedIn)
	}
	updated, err := s.repo.SetStatus(ctx, id, StatusCheckedIn, nil)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, "appointments", realtime.OpUpdate, id)
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.List(ctx, filter, limit, offset)
}

// Complete marks the appointment done and raises the consultation bill in the
// same transaction. A zero fee completes without billing.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, completedBy *string) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !allowedTransitions[a.Status][StatusCompleted] {
		return nil, fmt.Errorf("%w: %s -> %s", ErrBadTransition, a.Status, StatusCompleted)
	}

	var updated *Appointment
	err = s.tx.RunTx(ctx, func(ctx context.Context) error {
		var billID *uuid.UUID
		if a.Fee.IsPositive() {
			desc := fmt.Sprintf("Consultation with %s", a.DoctorName)
			id, err := s.biller.CreateServiceBill(ctx, a.PatientID, a.Fee, desc, completedBy)
			if err != nil {
				return err
			}
			billID = &id
		}
		updated, err = s.repo.SetStatus(ctx, a.ID, StatusCompleted, billID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("complete appointment: %w", err)
	}

	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Bool("billed", updated.BillID != nil).
		Msg("appointment completed")
	s.publish(ctx, "appointments", realtime.OpUpdate, a.ID)
	// The bill row only exists once the transaction above commits, so its
	// event is announced here rather than inside CreateBill.
	if updated.BillID != nil {
		s.publish(ctx, "bills", realtime.OpInsert, *updated.BillID)
	}
	return updated, nil
}

// Cancel moves a scheduled appointment to cancelled or no_show.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, status Status) (*Appointment, error) {
	if status != StatusCancelled && status != StatusNoShow {
		return nil, fmt.Errorf("invalid cancellation status: %s", status)
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !allowedTransitions[a.Status][status] {
		return nil, fmt.Errorf("%w: %s -> %s", ErrBadTransition, a.Status, status)
	}
	updated, err := s.repo.SetStatus(ctx, id, status, nil)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, "appointments", realtime.OpUpdate, id)
	return updated, nil
}
