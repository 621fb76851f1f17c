package identity

import (
	"time"

	"github.com/google/uuid"
)

// Distinct identifier types so a PatientID cannot be passed where a
// DoctorID is expected. The embedded uuid gives pgx and JSON support.

type UserID struct{ uuid.UUID }

type PatientID struct{ uuid.UUID }

type DoctorID struct{ uuid.UUID }

func NewUserID() UserID       { return UserID{uuid.New()} }
func NewPatientID() PatientID { return PatientID{uuid.New()} }
func NewDoctorID() DoctorID   { return DoctorID{uuid.New()} }

func ParseUserID(s string) (UserID, error) {
	id, err := uuid.Parse(s)
	return UserID{id}, err
}

func ParsePatientID(s string) (PatientID, error) {
	id, err := uuid.Parse(s)
	return PatientID{id}, err
}

func ParseDoctorID(s string) (DoctorID, error) {
	id, err := uuid.Parse(s)
	return DoctorID{id}, err
}

// User maps to the users table. The password hash never serializes.
type User struct {
	ID           UserID    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Patient maps to the patients table. Soft-deleted rows keep their history
// via deleted_at.
type Patient struct {
	ID          PatientID  `db:"id" json:"id"`
	UserID      UserID     `db:"user_id" json:"user_id"`
	FirstName   string     `db:"first_name" json:"first_name"`
	LastName    string     `db:"last_name" json:"last_name"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender      *string    `db:"gender" json:"gender,omitempty"`
	Phone       *string    `db:"phone" json:"phone,omitempty"`
	Address     *string    `db:"address" json:"address,omitempty"`
	DeletedAt   *time.Time `db:"deleted_at" json:"-"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Doctor maps to the doctors table.
type Doctor struct {
	ID             DoctorID   `db:"id" json:"id"`
	UserID         UserID     `db:"user_id" json:"user_id"`
	FirstName      string     `db:"first_name" json:"first_name"`
	LastName       string     `db:"last_name" json:"last_name"`
	Specialization string     `db:"specialization" json:"specialization"`
	LicenseNumber  string     `db:"license_number" json:"license_number"`
	DeletedAt      *time.Time `db:"deleted_at" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
