package admission

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("admission not found")
	// ErrDischarged is returned when writes are attempted against an
	// admission that has already been discharged.
	ErrDischarged = errors.New("admission already discharged")
)

type Status string

const (
	StatusAdmitted   Status = "admitted"
	StatusDischarged Status = "discharged"
)

// Admission is one inpatient stay. BilledAt is set once when the final bill
// is raised; the bills table's uniqueness on admission_id is the guard, this
// column is display state.
type Admission struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	Ward         string     `db:"ward" json:"ward"`
	Reason       string     `db:"reason" json:"reason"`
	Status       Status     `db:"status" json:"status"`
	AdmittedAt   time.Time  `db:"admitted_at" json:"admitted_at"`
	DischargedAt *time.Time `db:"discharged_at" json:"discharged_at,omitempty"`
	BilledAt     *time.Time `db:"billed_at" json:"billed_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// InpatientService is a billable service rendered during the stay, priced at
// the rate in force when it was recorded.
type InpatientService struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	AdmissionID uuid.UUID       `db:"admission_id" json:"admission_id"`
	Name        string          `db:"name" json:"name"`
	Quantity    int             `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalPrice  decimal.Decimal `db:"total_price" json:"total_price"`
	RecordedBy  *string         `db:"recorded_by" json:"recorded_by,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// InpatientMedication is one administration. UnitPrice is copied from the
// inventory at dispense time; rows recorded before pricing was tracked carry
// a null and are billed at the configured flat default.
type InpatientMedication struct {
	ID             uuid.UUID        `db:"id" json:"id"`
	AdmissionID    uuid.UUID        `db:"admission_id" json:"admission_id"`
	MedicationID   uuid.UUID        `db:"medication_id" json:"medication_id"`
	Name           string           `db:"name" json:"name"`
	Quantity       int              `db:"quantity" json:"quantity"`
	UnitPrice      *decimal.Decimal `db:"unit_price" json:"unit_price,omitempty"`
	AdministeredBy *string          `db:"administered_by" json:"administered_by,omitempty"`
	AdministeredAt time.Time        `db:"administered_at" json:"administered_at"`
}

// Timeline is an admission with everything recorded during the stay.
type Timeline struct {
	Admission   *Admission             `json:"admission"`
	Services    []*InpatientService    `json:"services"`
	Medications []*InpatientMedication `json:"medications"`
}
