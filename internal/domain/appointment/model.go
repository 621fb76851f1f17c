package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/api/internal/domain/identity"
)

type AppointmentID struct{ uuid.UUID }

func NewAppointmentID() AppointmentID { return AppointmentID{uuid.New()} }

func ParseAppointmentID(s string) (AppointmentID, error) {
	id, err := uuid.Parse(s)
	return AppointmentID{id}, err
}

// Status is the appointment lifecycle state.
type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusScheduled Status = "SCHEDULED"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusNoShow    Status = "NO_SHOW"
)

// transitions is the complete lifecycle table. Cancellation goes through
// the same table as every other change; terminal states have no successors.
var transitions = map[Status][]Status{
	StatusRequested: {StatusScheduled, StatusCancelled},
	StatusScheduled: {StatusConfirmed, StatusCancelled, StatusNoShow},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
	StatusCompleted: {},
	StatusCancelled: {},
	StatusNoShow:    {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// CanTransitionTo reports whether s -> next is in the lifecycle table.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Appointment maps to the appointments table. ScheduledTime stays null
// until the front desk schedules the request.
type Appointment struct {
	ID            AppointmentID      `db:"id" json:"id"`
	PatientID     identity.PatientID `db:"patient_id" json:"patient_id"`
	DoctorID      identity.DoctorID  `db:"doctor_id" json:"doctor_id"`
	Status        Status             `db:"status" json:"status"`
	ScheduledTime *time.Time         `db:"scheduled_time" json:"scheduled_time,omitempty"`
	Reason        *string            `db:"reason" json:"reason,omitempty"`
	Notes         *string            `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `db:"updated_at" json:"updated_at"`
}
