package visit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/api/internal/domain/appointment"
	"github.com/clinicore/api/internal/domain/authz"
	"github.com/clinicore/api/internal/domain/identity"
	"github.com/clinicore/api/internal/platform/auth"
	"github.com/clinicore/api/internal/platform/db"
	"github.com/clinicore/api/internal/platform/events"
	"github.com/clinicore/api/pkg/money"
)

// PatientDirectory and DoctorDirectory are the slices of the identity
// store this service needs for reference checks.
type PatientDirectory interface {
	GetByID(ctx context.Context, id identity.PatientID) (*identity.Patient, error)
}

type DoctorDirectory interface {
	GetByID(ctx context.Context, id identity.DoctorID) (*identity.Doctor, error)
}

type Auditor interface {
	Record(ctx context.Context, userID uuid.UUID, action, resource string, resourceID uuid.UUID, summary string)
}

// Publisher decouples the service from the concrete bus.
type Publisher interface {
	Publish(ctx context.Context, evt events.Event)
}

type Service struct {
	repo            Repository
	patients        PatientDirectory
	doctors         DoctorDirectory
	policy          *authz.Policy
	bus             Publisher
	audit           Auditor
	tx              db.Runner
	defaultCurrency string
	maxCost         int64
}

// NewService wires the visit service. maxCost bounds a single procedure's
// cost; it shares the invoice maximum so a completed visit's total stays
// billable.
func NewService(repo Repository, patients PatientDirectory, doctors DoctorDirectory,
	policy *authz.Policy, bus Publisher, audit Auditor, tx db.Runner, defaultCurrency string, maxCost int64) *Service {
	return &Service{
		repo:            repo,
		patients:        patients,
		doctors:         doctors,
		policy:          policy,
		bus:             bus,
		audit:           audit,
		tx:              tx,
		defaultCurrency: defaultCurrency,
		maxCost:         maxCost,
	}
}

type CreateInput struct {
	PatientID     identity.PatientID         `json:"patient_id"`
	DoctorID      identity.DoctorID          `json:"doctor_id"`
	AppointmentID *appointment.AppointmentID `json:"appointment_id,omitempty"`
	VisitDate     *time.Time                 `json:"visit_date"`
	Notes         *string                    `json:"notes"`
}

// Create opens a new visit in SCHEDULED state. Doctors open visits for
// themselves; only admins may open a visit on another doctor's behalf.
func (s *Service) Create(ctx context.Context, actor authz.Actor, in CreateInput) (*Visit, error) {
	if actor.Role == auth.RoleDoctor {
		in.DoctorID = identity.DoctorID{UUID: actor.DoctorID}
	}
	if in.PatientID.UUID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}
	if in.DoctorID.UUID == uuid.Nil {
		return nil, fmt.Errorf("doctor_id is required")
	}

	if err := s.policy.CanModifyVisit(actor, in.DoctorID.UUID).Err(); err != nil {
		return nil, err
	}
	if _, err := s.patients.GetByID(ctx, in.PatientID); err != nil {
		return nil, err
	}
	if _, err := s.doctors.GetByID(ctx, in.DoctorID); err != nil {
		return nil, err
	}

	v := &Visit{
		ID:        NewVisitID(),
		PatientID: in.PatientID,
		DoctorID:  in.DoctorID,
		Status:    StatusScheduled,
		VisitDate: time.Now().UTC(),
		Notes:     in.Notes,
	}
	if in.VisitDate != nil && !in.VisitDate.IsZero() {
		v.VisitDate = *in.VisitDate
	}
	if in.AppointmentID != nil {
		v.AppointmentID = in.AppointmentID
	}
	if err := s.repo.Create(ctx, v); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actor.UserID, "CREATE", "Visit", v.ID.UUID, "visit opened")
	return v, nil
}

// Get returns a visit and its procedures. Patients see their own visits
// read-only; front desk staff never see clinical data.
func (s *Service) Get(ctx context.Context, actor authz.Actor, id VisitID) (*Visit, []*Procedure, error) {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := s.policy.CanAccessVisit(actor, v.PatientID.UUID, v.DoctorID.UUID, authz.ActionRead).Err(); err != nil {
		return nil, nil, err
	}
	procedures, err := s.repo.GetProcedures(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return v, procedures, nil
}

type ProcedureInput struct {
	Name      string `json:"name"`
	CostCents int64  `json:"cost_cents"`
	Currency  string `json:"currency"`
}

// AddProcedure attaches a planned procedure to an open visit. Completed
// and cancelled visits are frozen.
func (s *Service) AddProcedure(ctx context.Context, actor authz.Actor, visitID VisitID, in ProcedureInput) (*Procedure, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if in.CostCents < 0 {
		return nil, fmt.Errorf("cost_cents must not be negative")
	}
	if in.CostCents > s.maxCost {
		return nil, ErrCostTooLarge
	}
	if in.Currency == "" {
		in.Currency = s.defaultCurrency
	}

	v, err := s.repo.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CanModifyVisit(actor, v.DoctorID.UUID).Err(); err != nil {
		return nil, err
	}
	if v.Status != StatusScheduled {
		return nil, ErrNotModifiable
	}

	p := &Procedure{
		ID:        NewProcedureID(),
		VisitID:   visitID,
		PatientID: v.PatientID,
		DoctorID:  v.DoctorID,
		Name:      in.Name,
		Cost:      money.New(in.CostCents, in.Currency),
		Status:    ProcedurePlanned,
	}
	if err := s.repo.AddProcedure(ctx, p); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actor.UserID, "CREATE", "Procedure", p.ID.UUID,
		fmt.Sprintf("procedure %q at %s", p.Name, p.Cost))
	return p, nil
}

// Complete closes the visit: it freezes the record, stamps the completion
// time, aggregates the procedure costs into TotalCost and publishes a
// completion event exactly once. Completing an already completed visit
// always fails and never republishes.
func (s *Service) Complete(ctx context.Context, actor authz.Actor, id VisitID, notes *string) (*Visit, error) {
	var v *Visit
	err := s.tx(ctx, func(ctx context.Context) error {
		var err error
		v, err = s.repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.policy.CanModifyVisit(actor, v.DoctorID.UUID).Err(); err != nil {
			return err
		}
		switch v.Status {
		case StatusCompleted:
			return ErrAlreadyCompleted
		case StatusCancelled:
			return ErrNotModifiable
		}

		procedures, err := s.repo.GetProcedures(ctx, id)
		if err != nil {
			return err
		}
		total, err := TotalCost(procedures, s.defaultCurrency)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		v.Status = StatusCompleted
		v.CompletedAt = &now
		v.TotalCost = &total
		if notes != nil {
			v.Notes = notes
		}
		if err := s.repo.Update(ctx, v); err != nil {
			return err
		}
		for _, p := range procedures {
			if p.Status != ProcedurePlanned {
				continue
			}
			p.Status = ProcedureCompleted
			if err := s.repo.UpdateProcedure(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, CompletedEvent{
		VisitID:     v.ID.UUID,
		PatientID:   v.PatientID.UUID,
		DoctorID:    v.DoctorID.UUID,
		TotalCost:   *v.TotalCost,
		CompletedBy: actor.UserID,
	})
	s.audit.Record(ctx, actor.UserID, "UPDATE", "Visit", v.ID.UUID,
		"completed at total "+v.TotalCost.String())
	return v, nil
}

// Cancel abandons an open visit. Planned procedures on it are cancelled
// with it so they never enter a cost aggregate.
func (s *Service) Cancel(ctx context.Context, actor authz.Actor, id VisitID, notes *string) (*Visit, error) {
	var v *Visit
	err := s.tx(ctx, func(ctx context.Context) error {
		var err error
		v, err = s.repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.policy.CanModifyVisit(actor, v.DoctorID.UUID).Err(); err != nil {
			return err
		}
		switch v.Status {
		case StatusCompleted:
			return ErrAlreadyCompleted
		case StatusCancelled:
			return ErrNotModifiable
		}

		v.Status = StatusCancelled
		if notes != nil {
			v.Notes = notes
		}
		if err := s.repo.Update(ctx, v); err != nil {
			return err
		}

		procedures, err := s.repo.GetProcedures(ctx, id)
		if err != nil {
			return err
		}
		for _, p := range procedures {
			if p.Status != ProcedurePlanned {
				continue
			}
			p.Status = ProcedureCancelled
			if err := s.repo.UpdateProcedure(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actor.UserID, "UPDATE", "Visit", v.ID.UUID, "visit cancelled")
	return v, nil
}

// List returns the visits the actor is entitled to see: admins see
// everything, patients and doctors see their own. Front desk staff have
// no clinical access at all.
func (s *Service) List(ctx context.Context, actor authz.Actor, limit, offset int) ([]*Visit, int, error) {
	switch actor.Role {
	case auth.RoleAdmin:
		return s.repo.List(ctx, limit, offset)
	case auth.RolePatient:
		return s.repo.ListByPatient(ctx, identity.PatientID{UUID: actor.PatientID}, limit, offset)
	case auth.RoleDoctor:
		return s.repo.ListByDoctor(ctx, identity.DoctorID{UUID: actor.DoctorID}, limit, offset)
	default:
		return nil, 0, authz.Denied(authz.ReasonRoleNotPermitted).Err()
	}
}
