package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/api/internal/domain/authz"
	"github.com/clinicore/api/internal/domain/identity"
	"github.com/clinicore/api/internal/platform/auth"
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

type Service struct {
	repo     Repository
	patients PatientDirectory
	doctors  DoctorDirectory
	policy   *authz.Policy
	audit    Auditor
}

func NewService(repo Repository, patients PatientDirectory, doctors DoctorDirectory,
	policy *authz.Policy, audit Auditor) *Service {
	return &Service{repo: repo, patients: patients, doctors: doctors, policy: policy, audit: audit}
}

type CreateInput struct {
	PatientID identity.PatientID `json:"patient_id"`
	DoctorID  identity.DoctorID  `json:"doctor_id"`
	Reason    *string            `json:"reason"`
}

// Create starts a new appointment request in REQUESTED state. Both the
// patient and the doctor must exist; patients may only request for
// themselves.
func (s *Service) Create(ctx context.Context, actor authz.Actor, in CreateInput) (*Appointment, error) {
	if actor.Role == auth.RolePatient {
		in.PatientID = identity.PatientID{UUID: actor.PatientID}
	}
	if in.PatientID.UUID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}
	if in.DoctorID.UUID == uuid.Nil {
		return nil, fmt.Errorf("doctor_id is required")
	}

	if err := s.policy.CanAccessAppointment(actor, in.PatientID.UUID, in.DoctorID.UUID, authz.ActionWrite).Err(); err != nil {
		return nil, err
	}
	if _, err := s.patients.GetByID(ctx, in.PatientID); err != nil {
		return nil, err
	}
	if _, err := s.doctors.GetByID(ctx, in.DoctorID); err != nil {
		return nil, err
	}

	appt := &Appointment{
		ID:        NewAppointmentID(),
		PatientID: in.PatientID,
		DoctorID:  in.DoctorID,
		Status:    StatusRequested,
		Reason:    in.Reason,
	}
	if err := s.repo.Create(ctx, appt); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actor.UserID, "CREATE", "Appointment", appt.ID.UUID, "requested appointment")
	return appt, nil
}

func (s *Service) Get(ctx context.Context, actor authz.Actor, id AppointmentID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CanAccessAppointment(actor, appt.PatientID.UUID, appt.DoctorID.UUID, authz.ActionRead).Err(); err != nil {
		return nil, err
	}
	return appt, nil
}

// Schedule performs the REQUESTED -> SCHEDULED transition. The scheduled
// time must be supplied atomically with the transition.
func (s *Service) Schedule(ctx context.Context, actor authz.Actor, id AppointmentID, scheduledTime *time.Time, notes *string) (*Appointment, error) {
	if scheduledTime == nil || scheduledTime.IsZero() {
		return nil, ErrScheduledTimeMiss
	}

	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CanAccessAppointment(actor, appt.PatientID.UUID, appt.DoctorID.UUID, authz.ActionWrite).Err(); err != nil {
		return nil, err
	}
	if !appt.Status.CanTransitionTo(StatusScheduled) {
		return nil, &InvalidTransitionError{Current: appt.Status, Requested: StatusScheduled}
	}

	appt.Status = StatusScheduled
	appt.ScheduledTime = scheduledTime
	if notes != nil {
		appt.Notes = notes
	}
	if err := s.repo.Update(ctx, appt); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actor.UserID, "UPDATE", "Appointment", appt.ID.UUID,
		"scheduled for "+scheduledTime.Format(time.RFC3339))
	return appt, nil
}

// Transition moves an appointment to the requested status if the lifecycle
// table allows it. Scheduling must go through Schedule so the time is set.
func (s *Service) Transition(ctx context.Context, actor authz.Actor, id AppointmentID, next Status, notes *string) (*Appointment, error) {
	if !next.Valid() {
		return nil, ErrUnknownStatus
	}
	if next == StatusScheduled {
		return nil, ErrScheduledTimeMiss
	}

	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CanAccessAppointment(actor, appt.PatientID.UUID, appt.DoctorID.UUID, authz.ActionWrite).Err(); err != nil {
		return nil, err
	}
	if !appt.Status.CanTransitionTo(next) {
		return nil, &InvalidTransitionError{Current: appt.Status, Requested: next}
	}

	prev := appt.Status
	appt.Status = next
	if notes != nil {
		appt.Notes = notes
	}
	if err := s.repo.Update(ctx, appt); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actor.UserID, "UPDATE", "Appointment", appt.ID.UUID,
		fmt.Sprintf("status %s -> %s", prev, next))
	return appt, nil
}

// List returns the appointments the actor is entitled to see: staff see
// everything, patients and doctors see their own.
func (s *Service) List(ctx context.Context, actor authz.Actor, limit, offset int) ([]*Appointment, int, error) {
	switch actor.Role {
	case auth.RoleAdmin, auth.RoleFrontdesk:
		return s.repo.List(ctx, limit, offset)
	case auth.RolePatient:
		return s.repo.ListByPatient(ctx, identity.PatientID{UUID: actor.PatientID}, limit, offset)
	case auth.RoleDoctor:
		return s.repo.ListByDoctor(ctx, identity.DoctorID{UUID: actor.DoctorID}, limit, offset)
	default:
		return nil, 0, authz.Denied(authz.ReasonRoleNotPermitted).Err()
	}
}
