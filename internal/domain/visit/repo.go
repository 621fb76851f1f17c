package visit

import (
	"context"

	"github.com/clinicore/api/internal/domain/identity"
)

type Repository interface {
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id VisitID) (*Visit, error)
	// GetByIDForUpdate locks the row for the rest of the surrounding
	// transaction so concurrent completions serialize.
	GetByIDForUpdate(ctx context.Context, id VisitID) (*Visit, error)
	Update(ctx context.Context, v *Visit) error
	List(ctx context.Context, limit, offset int) ([]*Visit, int, error)
	ListByPatient(ctx context.Context, patientID identity.PatientID, limit, offset int) ([]*Visit, int, error)
	ListByDoctor(ctx context.Context, doctorID identity.DoctorID, limit, offset int) ([]*Visit, int, error)

	AddProcedure(ctx context.Context, p *Procedure) error
	GetProcedures(ctx context.Context, visitID VisitID) ([]*Procedure, error)
	UpdateProcedure(ctx context.Context, p *Procedure) error
}
