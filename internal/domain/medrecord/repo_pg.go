package medrecord

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
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const recordCols = `id, patient_id, doctor_id, visit_id, record_type, title, content, confidential, created_at, updated_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.PatientID, &rec.DoctorID, &rec.VisitID, &rec.Type,
		&rec.Title, &rec.Content, &rec.Confidential, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &rec, err
}

func (r *repoPG) Create(ctx context.Context, rec *Record) error {
	if rec.ID.UUID == uuid.Nil {
		rec.ID = NewRecordID()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medical_records (id, patient_id, doctor_id, visit_id, record_type, title, content, confidential)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.ID, rec.PatientID, rec.DoctorID, rec.VisitID, rec.Type, rec.Title, rec.Content, rec.Confidential)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id RecordID) (*Record, error) {
	return scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordCols+` FROM medical_records WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, rec *Record) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medical_records SET record_type=$2, title=$3, content=$4, confidential=$5, updated_at=NOW()
		WHERE id = $1`,
		rec.ID, rec.Type, rec.Title, rec.Content, rec.Confidential)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Record, int, error) {
	return r.list(ctx, `WHERE 1=1`, nil, limit, offset)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID identity.PatientID, includeConfidential bool, limit, offset int) ([]*Record, int, error) {
	where := `WHERE patient_id = $1`
	if !includeConfidential {
		where += ` AND confidential = FALSE`
	}
	return r.list(ctx, where, []interface{}{patientID}, limit, offset)
}

func (r *repoPG) ListByDoctor(ctx context.Context, doctorID identity.DoctorID, limit, offset int) ([]*Record, int, error) {
	return r.list(ctx, `WHERE doctor_id = $1`, []interface{}{doctorID}, limit, offset)
}

func (r *repoPG) list(ctx context.Context, where string, args []interface{}, limit, offset int) ([]*Record, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medical_records `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT `+recordCols+` FROM medical_records %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}
