package medrecord

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicore/api/internal/domain/authz"
	"github.com/clinicore/api/internal/domain/identity"
	"github.com/clinicore/api/internal/domain/visit"
	"github.com/clinicore/api/internal/platform/auth"
)

// VisitLookup is the slice of the visit store this service needs to link
// records to visits and to freeze them with completed visits.
type VisitLookup interface {
	GetByID(ctx context.Context, id visit.VisitID) (*visit.Visit, error)
}

type Auditor interface {
	Record(ctx context.Context, userID uuid.UUID, action, resource string, resourceID uuid.UUID, summary string)
}

type Service struct {
	repo   Repository
	visits VisitLookup
	policy *authz.Policy
	audit  Auditor
}

func NewService(repo Repository, visits VisitLookup, policy *authz.Policy, audit Auditor) *Service {
	return &Service{repo: repo, visits: visits, policy: policy, audit: audit}
}

type CreateInput struct {
	PatientID    identity.PatientID `json:"patient_id"`
	VisitID      *visit.VisitID     `json:"visit_id,omitempty"`
	Type         RecordType         `json:"record_type"`
	Title        string             `json:"title"`
	Content      string             `json:"content"`
	Confidential bool               `json:"confidential"`
}

// Create writes a new clinical entry. Only doctors author records, always
// under their own profile, and only for patients they have treated. A
// record linked to a visit must reference one of the doctor's own open
// visits with that patient.
func (s *Service) Create(ctx context.Context, actor authz.Actor, in CreateInput) (*Record, error) {
	switch actor.Role {
	case auth.RoleDoctor, auth.RoleAdmin:
	default:
		return nil, authz.Denied(authz.ReasonRoleNotPermitted).Err()
	}
	if in.PatientID.UUID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}
	if in.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if in.Type == "" {
		in.Type = TypeGeneralNote
	}
	if !in.Type.Valid() {
		return nil, ErrUnknownType
	}

	doctorID := identity.DoctorID{UUID: actor.DoctorID}
	if in.VisitID != nil {
		v, err := s.visits.GetByID(ctx, *in.VisitID)
		if err != nil {
			return nil, err
		}
		if v.PatientID != in.PatientID {
			return nil, fmt.Errorf("visit does not belong to the patient")
		}
		if actor.Role == auth.RoleAdmin {
			doctorID = v.DoctorID
		} else if v.DoctorID != doctorID {
			return nil, authz.Denied(authz.ReasonNotOwner).Err()
		}
		if v.Status == visit.StatusCompleted {
			return nil, ErrRecordFrozen
		}
	} else if actor.Role == auth.RoleDoctor {
		decision, err := s.policy.CanAccessPatient(ctx, actor, in.PatientID.UUID, authz.ActionWrite)
		if err != nil {
			return nil, err
		}
		if err := decision.Err(); err != nil {
			return nil, err
		}
	}

	rec := &Record{
		ID:           NewRecordID(),
		PatientID:    in.PatientID,
		DoctorID:     doctorID,
		VisitID:      in.VisitID,
		Type:         in.Type,
		Title:        in.Title,
		Content:      in.Content,
		Confidential: in.Confidential,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actor.UserID, "CREATE", "MedicalRecord", rec.ID.UUID,
		fmt.Sprintf("%s %q", rec.Type, rec.Title))
	return rec, nil
}

// Get returns a single record. Patients read their own non-confidential
// entries; the authoring doctor and admins read everything.
func (s *Service) Get(ctx context.Context, actor authz.Actor, id RecordID) (*Record, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CanAccessMedicalRecord(actor, rec.PatientID.UUID, rec.DoctorID.UUID, authz.ActionRead).Err(); err != nil {
		return nil, err
	}
	if rec.Confidential && actor.Role == auth.RolePatient {
		return nil, authz.Denied(authz.ReasonRoleNotPermitted).Err()
	}
	return rec, nil
}

type UpdateInput struct {
	Title        *string     `json:"title"`
	Content      *string     `json:"content"`
	Type         *RecordType `json:"record_type"`
	Confidential *bool       `json:"confidential"`
}

// Update edits a record. Records linked to a completed visit are frozen
// with the visit.
func (s *Service) Update(ctx context.Context, actor authz.Actor, id RecordID, in UpdateInput) (*Record, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CanAccessMedicalRecord(actor, rec.PatientID.UUID, rec.DoctorID.UUID, authz.ActionWrite).Err(); err != nil {
		return nil, err
	}
	if rec.VisitID != nil {
		v, err := s.visits.GetByID(ctx, *rec.VisitID)
		if err != nil {
			return nil, err
		}
		if v.Status == visit.StatusCompleted {
			return nil, ErrRecordFrozen
		}
	}

	if in.Title != nil {
		if *in.Title == "" {
			return nil, fmt.Errorf("title must not be empty")
		}
		rec.Title = *in.Title
	}
	if in.Content != nil {
		rec.Content = *in.Content
	}
	if in.Type != nil {
		if !in.Type.Valid() {
			return nil, ErrUnknownType
		}
		rec.Type = *in.Type
	}
	if in.Confidential != nil {
		rec.Confidential = *in.Confidential
	}
	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actor.UserID, "UPDATE", "MedicalRecord", rec.ID.UUID, "record edited")
	return rec, nil
}

// List returns the records the actor may see: admins everything, doctors
// their own entries, patients their own non-confidential entries.
func (s *Service) List(ctx context.Context, actor authz.Actor, limit, offset int) ([]*Record, int, error) {
	switch actor.Role {
	case auth.RoleAdmin:
		return s.repo.List(ctx, limit, offset)
	case auth.RoleDoctor:
		return s.repo.ListByDoctor(ctx, identity.DoctorID{UUID: actor.DoctorID}, limit, offset)
	case auth.RolePatient:
		return s.repo.ListByPatient(ctx, identity.PatientID{UUID: actor.PatientID}, false, limit, offset)
	default:
		return nil, 0, authz.Denied(authz.ReasonRoleNotPermitted).Err()
	}
}

// ListForPatient returns one patient's chart. Doctors need a treatment
// relationship with the patient; the front desk has no clinical access
// even though it manages the demographic record.
func (s *Service) ListForPatient(ctx context.Context, actor authz.Actor, patientID identity.PatientID, limit, offset int) ([]*Record, int, error) {
	if actor.Role == auth.RoleFrontdesk {
		return nil, 0, authz.Denied(authz.ReasonRoleNotPermitted).Err()
	}
	decision, err := s.policy.CanAccessPatient(ctx, actor, patientID.UUID, authz.ActionRead)
	if err != nil {
		return nil, 0, err
	}
	if err := decision.Err(); err != nil {
		return nil, 0, err
	}
	includeConfidential := actor.Role != auth.RolePatient
	return s.repo.ListByPatient(ctx, patientID, includeConfidential, limit, offset)
}
