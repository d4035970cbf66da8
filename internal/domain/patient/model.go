package patient

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("patient not found")

type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	MRN         string     `db:"mrn" json:"mrn"`
	FirstName   string     `db:"first_name" json:"first_name"`
	LastName    string     `db:"last_name" json:"last_name"`
	Gender      string     `db:"gender" json:"gender"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Phone       string     `db:"phone" json:"phone"`
	Email       *string    `db:"email" json:"email,omitempty"`
	Address     *string    `db:"address" json:"address,omitempty"`
	BloodGroup  *string    `db:"blood_group" json:"blood_group,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}
