package appointment

import (
	"context"

	"github.com/clinicore/api/internal/domain/identity"
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id AppointmentID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	List(ctx context.Context, limit, offset int) ([]*Appointment, int, error)
	ListByPatient(ctx context.Context, patientID identity.PatientID, limit, offset int) ([]*Appointment, int, error)
	ListByDoctor(ctx context.Context, doctorID identity.DoctorID, limit, offset int) ([]*Appointment, int, error)
}
