package identity

import "context"

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id UserID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	Deactivate(ctx context.Context, id UserID) error
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id PatientID) (*Patient, error)
	GetByUserID(ctx context.Context, userID UserID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	SoftDelete(ctx context.Context, id PatientID) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id DoctorID) (*Doctor, error)
	GetByUserID(ctx context.Context, userID UserID) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	SoftDelete(ctx context.Context, id DoctorID) error
	List(ctx context.Context, limit, offset int) ([]*Doctor, int, error)
}
