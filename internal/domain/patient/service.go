package patient

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/realtime"
)

var validGenders = map[string]bool{
	"male":   true,
	"female": true,
	"other":  true,
}

// newMRN derives the medical record number from the patient id so it is
// stable and collision-free without a counter table. The unique index on
// patients.mrn backs it up.
func newMRN(id uuid.UUID) string {
	return "MRN-" + strings.ToUpper(hex.EncodeToString(id[:5]))
}

type Service struct {
	repo      Repository
	publisher realtime.Publisher
	logger    zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "patient").Logger(),
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
	s.publisher.Publish(ctx, realtime.ChangeEvent{Table: "patients", Op: op, RowID: id.String()})
}

type RegisterInput struct {
	FirstName   string
	LastName    string
	Gender      string
	DateOfBirth *time.Time
	Phone       string
	Email       *string
	Address     *string
	BloodGroup  *string
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*Patient, error) {
	if in.FirstName == "" || in.LastName == "" {
		return nil, fmt.Errorf("first and last name are required")
	}
	if !validGenders[in.Gender] {
		return nil, fmt.Errorf("invalid gender: %s", in.Gender)
	}
	if in.Phone == "" {
		return nil, fmt.Errorf("phone is required")
	}
	if in.DateOfBirth != nil && in.DateOfBirth.After(time.Now()) {
		return nil, fmt.Errorf("date of birth cannot be in the future")
	}

	id := uuid.New()
	p := &Patient{
		ID:          id,
		MRN:         newMRN(id),
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Gender:      in.Gender,
		DateOfBirth: in.DateOfBirth,
		Phone:       in.Phone,
		Email:       in.Email,
		Address:     in.Address,
		BloodGroup:  in.BloodGroup,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("register patient: %w", err)
	}
	s.logger.Info().Str("patient_id", p.ID.String()).Str("mrn", p.MRN).Msg("patient registered")
	s.publish(ctx, realtime.OpInsert, p.ID)
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in RegisterInput) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.FirstName != "" {
		p.FirstName = in.FirstName
	}
	if in.LastName != "" {
		p.LastName = in.LastName
	}
	if in.Gender != "" {
		if !validGenders[in.Gender] {
			return nil, fmt.Errorf("invalid gender: %s", in.Gender)
		}
		p.Gender = in.Gender
	}
	if in.Phone != "" {
		p.Phone = in.Phone
	}
	if in.DateOfBirth != nil {
		p.DateOfBirth = in.DateOfBirth
	}
	if in.Email != nil {
		p.Email = in.Email
	}
	if in.Address != nil {
		p.Address = in.Address
	}
	if in.BloodGroup != nil {
		p.BloodGroup = in.BloodGroup
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update patient: %w", err)
	}
	s.publish(ctx, realtime.OpUpdate, p.ID)
	return p, nil
}

func (s *Service) Search(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error) {
	return s.repo.Search(ctx, query, limit, offset)
}
