package admin

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/api/internal/platform/db"
	"github.com/clinicore/api/pkg/money"
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

func (r *repoPG) RevenueBetween(ctx context.Context, from, to time.Time, currency string) (money.Money, error) {
	var cents int64
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM payments
		WHERE created_at >= $1 AND created_at < $2`,
		from, to).Scan(&cents)
	if err != nil {
		return money.Money{}, err
	}
	return money.New(cents, currency), nil
}

func (r *repoPG) UpcomingAppointments(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE scheduled_time >= $1 AND scheduled_time < $2
		  AND status IN ('SCHEDULED', 'CONFIRMED')`,
		from, to).Scan(&n)
	return n, err
}

func (r *repoPG) NewPatientsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM patients
		WHERE created_at >= $1 AND deleted_at IS NULL`,
		since).Scan(&n)
	return n, err
}

func (r *repoPG) OutstandingTotal(ctx context.Context, currency string) (money.Money, error) {
	var cents int64
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(total_cents - paid_cents), 0) FROM invoices
		WHERE status IN ('ISSUED', 'OVERDUE', 'PARTIALLY_PAID')
		  AND deleted_at IS NULL`).Scan(&cents)
	if err != nil {
		return money.Money{}, err
	}
	return money.New(cents, currency), nil
}
