package visit

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/api/internal/domain/appointment"
	"github.com/clinicore/api/internal/domain/identity"
	"github.com/clinicore/api/pkg/money"
)

type VisitID struct{ uuid.UUID }

type ProcedureID struct{ uuid.UUID }

func NewVisitID() VisitID         { return VisitID{uuid.New()} }
func NewProcedureID() ProcedureID { return ProcedureID{uuid.New()} }

func ParseVisitID(s string) (VisitID, error) {
	id, err := uuid.Parse(s)
	return VisitID{id}, err
}

func ParseProcedureID(s string) (ProcedureID, error) {
	id, err := uuid.Parse(s)
	return ProcedureID{id}, err
}

// Status is the visit lifecycle state. COMPLETED is terminal and freezes
// the visit and everything attached to it.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// ProcedureStatus tracks a single procedure within a visit.
type ProcedureStatus string

const (
	ProcedurePlanned   ProcedureStatus = "PLANNED"
	ProcedureCompleted ProcedureStatus = "COMPLETED"
	ProcedureCancelled ProcedureStatus = "CANCELLED"
)

// Visit maps to the visits table. TotalCost and CompletedAt are set once,
// at completion.
type Visit struct {
	ID            VisitID                    `db:"id" json:"id"`
	PatientID     identity.PatientID         `db:"patient_id" json:"patient_id"`
	DoctorID      identity.DoctorID          `db:"doctor_id" json:"doctor_id"`
	AppointmentID *appointment.AppointmentID `db:"appointment_id" json:"appointment_id,omitempty"`
	Status        Status                     `db:"status" json:"status"`
	VisitDate     time.Time                  `db:"visit_date" json:"visit_date"`
	Notes         *string                    `db:"notes" json:"notes,omitempty"`
	TotalCost     *money.Money               `json:"total_cost,omitempty"`
	CompletedAt   *time.Time                 `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt     time.Time                  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time                  `db:"updated_at" json:"updated_at"`
}

// Procedure maps to the procedures table. Cost is stored in minor units.
type Procedure struct {
	ID        ProcedureID        `db:"id" json:"id"`
	VisitID   VisitID            `db:"visit_id" json:"visit_id"`
	PatientID identity.PatientID `db:"patient_id" json:"patient_id"`
	DoctorID  identity.DoctorID  `db:"doctor_id" json:"doctor_id"`
	Name      string             `db:"name" json:"name"`
	Cost      money.Money        `json:"cost"`
	Status    ProcedureStatus    `db:"status" json:"status"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt time.Time          `db:"updated_at" json:"updated_at"`
}

// TotalCost sums procedure costs in a single currency. Procedures priced
// in different currencies are a configuration error and are rejected.
func TotalCost(procedures []*Procedure, fallbackCurrency string) (money.Money, error) {
	amounts := make([]money.Money, 0, len(procedures))
	for _, p := range procedures {
		if p.Status == ProcedureCancelled {
			continue
		}
		amounts = append(amounts, p.Cost)
	}
	currency := fallbackCurrency
	if len(amounts) > 0 {
		currency = amounts[0].Currency
	}
	total, err := money.Sum(currency, amounts...)
	if err != nil {
		if errors.Is(err, money.ErrOverflow) {
			return money.Money{}, ErrCostTooLarge
		}
		return money.Money{}, ErrMixedCurrency
	}
	return total, nil
}
