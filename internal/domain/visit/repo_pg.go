package visit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/api/internal/domain/identity"
	"github.com/clinicore/api/internal/platform/db"
	"github.com/clinicore/api/pkg/money"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns the postgres-backed visit store. It also serves as the
// treatment-relationship oracle for the authorization policy.
func NewRepoPG(pool *pgxpool.Pool) *RepoPG { return &RepoPG{repoPG{pool: pool}} }

// RepoPG is exported so callers can hand the same instance to both the
// visit service (as Repository) and the policy (as TreatmentChecker).
type RepoPG struct{ repoPG }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const visitCols = `id, patient_id, doctor_id, appointment_id, status, visit_date, notes,
	total_cost_cents, currency, completed_at, created_at, updated_at`

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	var costCents *int64
	var currency *string
	err := row.Scan(&v.ID, &v.PatientID, &v.DoctorID, &v.AppointmentID, &v.Status, &v.VisitDate,
		&v.Notes, &costCents, &currency, &v.CompletedAt, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if costCents != nil && currency != nil {
		total := money.New(*costCents, *currency)
		v.TotalCost = &total
	}
	return &v, nil
}

func (r *repoPG) Create(ctx context.Context, v *Visit) error {
	if v.ID.UUID == uuid.Nil {
		v.ID = NewVisitID()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO visits (id, patient_id, doctor_id, appointment_id, status, visit_date, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		v.ID, v.PatientID, v.DoctorID, v.AppointmentID, v.Status, v.VisitDate, v.Notes)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id VisitID) (*Visit, error) {
	return scanVisit(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM visits WHERE id = $1`, id))
}

func (r *repoPG) GetByIDForUpdate(ctx context.Context, id VisitID) (*Visit, error) {
	return scanVisit(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM visits WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) Update(ctx context.Context, v *Visit) error {
	var costCents *int64
	var currency *string
	if v.TotalCost != nil {
		costCents = &v.TotalCost.Amount
		currency = &v.TotalCost.Currency
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE visits SET status=$2, notes=$3, total_cost_cents=$4, currency=$5, completed_at=$6, updated_at=NOW()
		WHERE id = $1`,
		v.ID, v.Status, v.Notes, costCents, currency, v.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Visit, int, error) {
	return r.list(ctx, `WHERE 1=1`, nil, limit, offset)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID identity.PatientID, limit, offset int) ([]*Visit, int, error) {
	return r.list(ctx, `WHERE patient_id = $1`, []interface{}{patientID}, limit, offset)
}

func (r *repoPG) ListByDoctor(ctx context.Context, doctorID identity.DoctorID, limit, offset int) ([]*Visit, int, error) {
	return r.list(ctx, `WHERE doctor_id = $1`, []interface{}{doctorID}, limit, offset)
}

func (r *repoPG) list(ctx context.Context, where string, args []interface{}, limit, offset int) ([]*Visit, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM visits `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT `+visitCols+` FROM visits %s ORDER BY visit_date DESC LIMIT $%d OFFSET $%d`,
		where, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
	}
	return items, total, rows.Err()
}

// -- Procedures --

const procCols = `id, visit_id, patient_id, doctor_id, name, cost_cents, currency, status, created_at, updated_at`

func scanProcedure(row pgx.Row) (*Procedure, error) {
	var p Procedure
	err := row.Scan(&p.ID, &p.VisitID, &p.PatientID, &p.DoctorID, &p.Name,
		&p.Cost.Amount, &p.Cost.Currency, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProcedureNotFound
	}
	return &p, err
}

func (r *repoPG) AddProcedure(ctx context.Context, p *Procedure) error {
	if p.ID.UUID == uuid.Nil {
		p.ID = NewProcedureID()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO procedures (id, visit_id, patient_id, doctor_id, name, cost_cents, currency, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.VisitID, p.PatientID, p.DoctorID, p.Name, p.Cost.Amount, p.Cost.Currency, p.Status)
	return err
}

func (r *repoPG) GetProcedures(ctx context.Context, visitID VisitID) ([]*Procedure, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+procCols+` FROM procedures WHERE visit_id = $1 ORDER BY created_at`, visitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Procedure
	for rows.Next() {
		p, err := scanProcedure(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *repoPG) UpdateProcedure(ctx context.Context, p *Procedure) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE procedures SET name=$2, cost_cents=$3, currency=$4, status=$5, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Name, p.Cost.Amount, p.Cost.Currency, p.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProcedureNotFound
	}
	return nil
}

// HasTreatmentRelationship reports whether the doctor has at least one
// visit with the patient. Used by the authorization policy.
func (r *RepoPG) HasTreatmentRelationship(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM visits WHERE doctor_id = $1 AND patient_id = $2)`,
		doctorID, patientID).Scan(&exists)
	return exists, err
}
