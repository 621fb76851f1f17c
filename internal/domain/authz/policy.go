package authz

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicore/api/internal/platform/auth"
)

// Action distinguishes read from write access in policy checks.
type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

// Reason is the internal denial code. It is logged, never returned verbatim
// to the caller, so a denial does not leak whether the resource exists.
type Reason string

const (
	ReasonNotOwner         Reason = "NOT_OWNER"
	ReasonNoTreatment      Reason = "NO_TREATMENT_RELATIONSHIP"
	ReasonRoleNotPermitted Reason = "ROLE_NOT_PERMITTED"
)

// Actor is the authenticated caller. PatientID and DoctorID are the caller's
// profile ids when the account has one, uuid.Nil otherwise.
type Actor struct {
	UserID    uuid.UUID
	Role      string
	PatientID uuid.UUID
	DoctorID  uuid.UUID
}

// Decision is the outcome of a policy check.
type Decision struct {
	Allowed bool
	Reason  Reason
}

func Granted() Decision             { return Decision{Allowed: true} }
func Denied(reason Reason) Decision { return Decision{Reason: reason} }

// Err converts a denial into an error carrying the internal reason.
// Granted decisions return nil.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Reason: d.Reason}
}

// DeniedError is returned by services when a policy check fails.
type DeniedError struct {
	Reason Reason
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Reason)
}

// TreatmentChecker reports whether a doctor has at least one visit with a
// patient. The visit store implements it.
type TreatmentChecker interface {
	HasTreatmentRelationship(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error)
}

// Policy is the role-based access matrix. All checks are flat table
// lookups; the only one that touches storage is the doctor-to-patient
// treatment relationship.
type Policy struct {
	treatments TreatmentChecker
}

func NewPolicy(treatments TreatmentChecker) *Policy {
	return &Policy{treatments: treatments}
}

// CanAccessPatient decides access to a patient's demographic record.
// Patients see their own record, staff see all, a doctor needs at least one
// visit with the patient.
func (p *Policy) CanAccessPatient(ctx context.Context, actor Actor, patientID uuid.UUID, action Action) (Decision, error) {
	switch actor.Role {
	case auth.RoleAdmin, auth.RoleFrontdesk:
		return Granted(), nil
	case auth.RolePatient:
		if actor.PatientID == patientID {
			return Granted(), nil
		}
		return Denied(ReasonNotOwner), nil
	case auth.RoleDoctor:
		if actor.DoctorID == uuid.Nil {
			return Denied(ReasonNoTreatment), nil
		}
		treated, err := p.treatments.HasTreatmentRelationship(ctx, actor.DoctorID, patientID)
		if err != nil {
			return Decision{}, fmt.Errorf("treatment relationship lookup: %w", err)
		}
		if treated {
			return Granted(), nil
		}
		return Denied(ReasonNoTreatment), nil
	default:
		return Denied(ReasonRoleNotPermitted), nil
	}
}

// CanAccessDoctor decides access to a doctor's profile. Profiles are
// readable by any authenticated user; writes are restricted to the owning
// doctor and admins.
func (p *Policy) CanAccessDoctor(actor Actor, doctorID uuid.UUID, action Action) Decision {
	if action == ActionRead {
		return Granted()
	}
	switch actor.Role {
	case auth.RoleAdmin:
		return Granted()
	case auth.RoleDoctor:
		if actor.DoctorID == doctorID {
			return Granted()
		}
		return Denied(ReasonNotOwner)
	default:
		return Denied(ReasonRoleNotPermitted)
	}
}

// CanAccessAppointment decides access to an appointment. The front desk
// manages the schedule, patients and doctors act on their own appointments.
func (p *Policy) CanAccessAppointment(actor Actor, patientID, doctorID uuid.UUID, action Action) Decision {
	switch actor.Role {
	case auth.RoleAdmin, auth.RoleFrontdesk:
		return Granted()
	case auth.RolePatient:
		if actor.PatientID == patientID {
			return Granted()
		}
		return Denied(ReasonNotOwner)
	case auth.RoleDoctor:
		if actor.DoctorID == doctorID {
			return Granted()
		}
		return Denied(ReasonNotOwner)
	default:
		return Denied(ReasonRoleNotPermitted)
	}
}

// CanAccessVisit decides access to a visit and its procedures. Visits are
// clinical data: the front desk has no access, patients may only read their
// own.
func (p *Policy) CanAccessVisit(actor Actor, patientID, doctorID uuid.UUID, action Action) Decision {
	switch actor.Role {
	case auth.RoleAdmin:
		return Granted()
	case auth.RoleDoctor:
		if actor.DoctorID == doctorID {
			return Granted()
		}
		return Denied(ReasonNotOwner)
	case auth.RolePatient:
		if action != ActionRead {
			return Denied(ReasonRoleNotPermitted)
		}
		if actor.PatientID == patientID {
			return Granted()
		}
		return Denied(ReasonNotOwner)
	default:
		return Denied(ReasonRoleNotPermitted)
	}
}

// CanModifyVisit gates visit completion and other visit mutations. Only the
// owning doctor or an admin may mutate a visit.
func (p *Policy) CanModifyVisit(actor Actor, doctorID uuid.UUID) Decision {
	switch actor.Role {
	case auth.RoleAdmin:
		return Granted()
	case auth.RoleDoctor:
		if actor.DoctorID == doctorID {
			return Granted()
		}
		return Denied(ReasonNotOwner)
	default:
		return Denied(ReasonRoleNotPermitted)
	}
}

// CanAccessMedicalRecord decides access to a medical record. The authoring
// doctor has full access, the patient may read records about themselves.
func (p *Policy) CanAccessMedicalRecord(actor Actor, patientID, doctorID uuid.UUID, action Action) Decision {
	switch actor.Role {
	case auth.RoleAdmin:
		return Granted()
	case auth.RoleDoctor:
		if actor.DoctorID == doctorID {
			return Granted()
		}
		return Denied(ReasonNotOwner)
	case auth.RolePatient:
		if action != ActionRead {
			return Denied(ReasonRoleNotPermitted)
		}
		if actor.PatientID == patientID {
			return Granted()
		}
		return Denied(ReasonNotOwner)
	default:
		return Denied(ReasonRoleNotPermitted)
	}
}

// CanAccessInvoice decides access to an invoice. The front desk reads every
// invoice, patients read their own, doctors have no billing access.
func (p *Policy) CanAccessInvoice(actor Actor, patientID uuid.UUID, action Action) Decision {
	switch actor.Role {
	case auth.RoleAdmin:
		return Granted()
	case auth.RoleFrontdesk:
		if action == ActionRead {
			return Granted()
		}
		return Denied(ReasonRoleNotPermitted)
	case auth.RolePatient:
		if action != ActionRead {
			return Denied(ReasonRoleNotPermitted)
		}
		if actor.PatientID == patientID {
			return Granted()
		}
		return Denied(ReasonNotOwner)
	default:
		return Denied(ReasonRoleNotPermitted)
	}
}

// CanPayInvoice gates payment submission. Patients pay their own invoices;
// admins may record payments on behalf of anyone.
func (p *Policy) CanPayInvoice(actor Actor, patientID uuid.UUID) Decision {
	switch actor.Role {
	case auth.RoleAdmin:
		return Granted()
	case auth.RolePatient:
		if actor.PatientID == patientID {
			return Granted()
		}
		return Denied(ReasonNotOwner)
	default:
		return Denied(ReasonRoleNotPermitted)
	}
}
