package scheduling

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("appointment not found")
	// ErrBadTransition is returned for moves the appointment lifecycle does
	// not allow, such as completing a cancelled appointment.
	ErrBadTransition = errors.New("invalid appointment status transition")
	// ErrConflict is returned when the doctor already has an appointment
	// overlapping the requested slot.
	ErrConflict = errors.New("doctor is already booked for this slot")
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCheckedIn Status = "checked_in"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// Appointment is a scheduled consultation. Fee is charged to the patient as
// a medical service bill when the appointment completes.
type Appointment struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	PatientID       uuid.UUID       `db:"patient_id" json:"patient_id"`
	DoctorName      string          `db:"doctor_name" json:"doctor_name"`
	ScheduledAt     time.Time       `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes int             `db:"duration_minutes" json:"duration_minutes"`
	Status          Status          `db:"status" json:"status"`
	Reason          string          `db:"reason" json:"reason"`
	Fee             decimal.Decimal `db:"fee" json:"fee"`
	BillID          *uuid.UUID      `db:"bill_id" json:"bill_id,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// End is the moment the booked slot frees up.
func (a *Appointment) End() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}
