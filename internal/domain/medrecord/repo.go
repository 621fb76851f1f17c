package medrecord

import (
	"context"

	"github.com/clinicore/api/internal/domain/identity"
)

type Repository interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id RecordID) (*Record, error)
	Update(ctx context.Context, r *Record) error
	List(ctx context.Context, limit, offset int) ([]*Record, int, error)
	// ListByPatient hides confidential records unless includeConfidential
	// is set. Patients never see confidential entries about themselves.
	ListByPatient(ctx context.Context, patientID identity.PatientID, includeConfidential bool, limit, offset int) ([]*Record, int, error)
	ListByDoctor(ctx context.Context, doctorID identity.DoctorID, limit, offset int) ([]*Record, int, error)
}
