package visit

import (
	"github.com/google/uuid"

	"github.com/clinicore/api/pkg/money"
)

// EventCompleted is the bus name of CompletedEvent.
const EventCompleted = "visit.completed"

// CompletedEvent fires exactly once per visit, when it transitions to
// COMPLETED. Billing subscribes to draft an invoice from it.
type CompletedEvent struct {
	VisitID     uuid.UUID
	PatientID   uuid.UUID
	DoctorID    uuid.UUID
	TotalCost   money.Money
	CompletedBy uuid.UUID
}

func (CompletedEvent) Name() string { return EventCompleted }
