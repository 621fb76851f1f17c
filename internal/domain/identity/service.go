package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicore/api/internal/domain/authz"
	"github.com/clinicore/api/internal/platform/auth"
	"github.com/clinicore/api/internal/platform/db"
)

// Auditor is the append-only action log. Recording is fire-and-forget;
// implementations must not fail the calling operation.
type Auditor interface {
	Record(ctx context.Context, userID uuid.UUID, action, resource string, resourceID uuid.UUID, summary string)
}

type Service struct {
	users    UserRepository
	patients PatientRepository
	doctors  DoctorRepository
	policy   *authz.Policy
	tokens   *auth.TokenIssuer
	tx       db.Runner
	audit    Auditor
}

func NewService(users UserRepository, patients PatientRepository, doctors DoctorRepository,
	policy *authz.Policy, tokens *auth.TokenIssuer, tx db.Runner, audit Auditor) *Service {
	return &Service{
		users:    users,
		patients: patients,
		doctors:  doctors,
		policy:   policy,
		tokens:   tokens,
		tx:       tx,
		audit:    audit,
	}
}

var validRoles = map[string]bool{
	auth.RolePatient: true, auth.RoleDoctor: true, auth.RoleFrontdesk: true, auth.RoleAdmin: true,
}

type RegisterInput struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	Role           string `json:"role"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Specialization string `json:"specialization"`
	LicenseNumber  string `json:"license_number"`
}

// Register creates a user account and, for patient and doctor roles, the
// matching profile row in the same transaction.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if in.Email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if len(in.Password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}
	if in.Role == "" {
		in.Role = auth.RolePatient
	}
	if !validRoles[in.Role] {
		return nil, ErrInvalidRole
	}
	if in.FirstName == "" || in.LastName == "" {
		if in.Role == auth.RolePatient || in.Role == auth.RoleDoctor {
			return nil, fmt.Errorf("first_name and last_name are required")
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &User{
		ID:           NewUserID(),
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         in.Role,
		Active:       true,
	}

	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, user); err != nil {
			return err
		}
		switch in.Role {
		case auth.RolePatient:
			return s.patients.Create(ctx, &Patient{
				ID:        NewPatientID(),
				UserID:    user.ID,
				FirstName: in.FirstName,
				LastName:  in.LastName,
			})
		case auth.RoleDoctor:
			return s.doctors.Create(ctx, &Doctor{
				ID:             NewDoctorID(),
				UserID:         user.ID,
				FirstName:      in.FirstName,
				LastName:       in.LastName,
				Specialization: in.Specialization,
				LicenseNumber:  in.LicenseNumber,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, user.ID.UUID, "CREATE", "User", user.ID.UUID, "registered "+user.Role)
	return user, nil
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (*User, string, time.Time, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, "", time.Time{}, ErrInvalidCredentials
		}
		return nil, "", time.Time{}, err
	}
	if !user.Active {
		return nil, "", time.Time{}, ErrUserInactive
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}

	token, expiry, err := s.tokens.Sign(user.ID.String(), user.Role)
	if err != nil {
		return nil, "", time.Time{}, err
	}

	s.audit.Record(ctx, user.ID.UUID, "LOGIN", "User", user.ID.UUID, "logged in")
	return user, token, expiry, nil
}

func (s *Service) GetUser(ctx context.Context, id UserID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// ResolveActor builds the policy actor for an authenticated user, attaching
// the patient or doctor profile id when one exists.
func (s *Service) ResolveActor(ctx context.Context, userID, role string) (authz.Actor, error) {
	uid, err := ParseUserID(userID)
	if err != nil {
		return authz.Actor{}, fmt.Errorf("parse user id: %w", err)
	}
	actor := authz.Actor{UserID: uid.UUID, Role: role}

	switch role {
	case auth.RolePatient:
		p, err := s.patients.GetByUserID(ctx, uid)
		if err != nil && !errors.Is(err, ErrPatientNotFound) {
			return authz.Actor{}, err
		}
		if p != nil {
			actor.PatientID = p.ID.UUID
		}
	case auth.RoleDoctor:
		d, err := s.doctors.GetByUserID(ctx, uid)
		if err != nil && !errors.Is(err, ErrDoctorNotFound) {
			return authz.Actor{}, err
		}
		if d != nil {
			actor.DoctorID = d.ID.UUID
		}
	}
	return actor, nil
}

// -- Patients --

func (s *Service) GetPatient(ctx context.Context, actor authz.Actor, id PatientID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d, err := s.policy.CanAccessPatient(ctx, actor, p.ID.UUID, authz.ActionRead)
	if err != nil {
		return nil, err
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

type UpdatePatientInput struct {
	FirstName   *string    `json:"first_name"`
	LastName    *string    `json:"last_name"`
	DateOfBirth *time.Time `json:"date_of_birth"`
	Gender      *string    `json:"gender"`
	Phone       *string    `json:"phone"`
	Address     *string    `json:"address"`
}

func (s *Service) UpdatePatient(ctx context.Context, actor authz.Actor, id PatientID, in UpdatePatientInput) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d, err := s.policy.CanAccessPatient(ctx, actor, p.ID.UUID, authz.ActionWrite)
	if err != nil {
		return nil, err
	}
	if err := d.Err(); err != nil {
		return nil, err
	}

	if in.FirstName != nil {
		p.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		p.LastName = *in.LastName
	}
	if in.DateOfBirth != nil {
		p.DateOfBirth = in.DateOfBirth
	}
	if in.Gender != nil {
		p.Gender = in.Gender
	}
	if in.Phone != nil {
		p.Phone = in.Phone
	}
	if in.Address != nil {
		p.Address = in.Address
	}

	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, actor.UserID, "UPDATE", "Patient", p.ID.UUID, "updated demographics")
	return p, nil
}

// DeletePatient soft-deletes a patient record. Admin only (route-gated).
func (s *Service) DeletePatient(ctx context.Context, actor authz.Actor, id PatientID) error {
	if err := s.patients.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, actor.UserID, "DELETE", "Patient", id.UUID, "soft-deleted patient")
	return nil
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

// -- Doctors --

func (s *Service) GetDoctor(ctx context.Context, id DoctorID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, limit, offset)
}

type UpdateDoctorInput struct {
	FirstName      *string `json:"first_name"`
	LastName       *string `json:"last_name"`
	Specialization *string `json:"specialization"`
	LicenseNumber  *string `json:"license_number"`
}

func (s *Service) UpdateDoctor(ctx context.Context, actor authz.Actor, id DoctorID, in UpdateDoctorInput) (*Doctor, error) {
	doc, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CanAccessDoctor(actor, doc.ID.UUID, authz.ActionWrite).Err(); err != nil {
		return nil, err
	}

	if in.FirstName != nil {
		doc.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		doc.LastName = *in.LastName
	}
	if in.Specialization != nil {
		doc.Specialization = *in.Specialization
	}
	if in.LicenseNumber != nil {
		doc.LicenseNumber = *in.LicenseNumber
	}

	if err := s.doctors.Update(ctx, doc); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, actor.UserID, "UPDATE", "Doctor", doc.ID.UUID, "updated profile")
	return doc, nil
}

// DeleteDoctor soft-deletes a doctor record. Admin only (route-gated).
func (s *Service) DeleteDoctor(ctx context.Context, actor authz.Actor, id DoctorID) error {
	if err := s.doctors.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, actor.UserID, "DELETE", "Doctor", id.UUID, "soft-deleted doctor")
	return nil
}
