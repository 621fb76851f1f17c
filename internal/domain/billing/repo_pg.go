package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

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

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const invoiceCols = `id, patient_id, visit_id, status, total_cents, paid_cents, currency, notes, issued_at, due_date, deleted_at, created_at, updated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var totalCents, paidCents int64
	var currency string
	err := row.Scan(&inv.ID, &inv.PatientID, &inv.VisitID, &inv.Status, &totalCents, &paidCents,
		&currency, &inv.Notes, &inv.IssuedAt, &inv.DueDate, &inv.DeletedAt, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	inv.Total = money.New(totalCents, currency)
	inv.Paid = money.New(paidCents, currency)
	return &inv, nil
}

func (r *repoPG) CreateInvoice(ctx context.Context, inv *Invoice) error {
	if inv.ID.UUID == uuid.Nil {
		inv.ID = NewInvoiceID()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO invoices (id, patient_id, visit_id, status, total_cents, paid_cents, currency, notes, issued_at, due_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		inv.ID, inv.PatientID, inv.VisitID, inv.Status, inv.Total.Amount, inv.Paid.Amount,
		inv.Total.Currency, inv.Notes, inv.IssuedAt, inv.DueDate)
	return err
}

func (r *repoPG) GetInvoice(ctx context.Context, id InvoiceID) (*Invoice, error) {
	return scanInvoice(r.conn(ctx).QueryRow(ctx,
		`SELECT `+invoiceCols+` FROM invoices WHERE id = $1 AND deleted_at IS NULL`, id))
}

func (r *repoPG) GetInvoiceForUpdate(ctx context.Context, id InvoiceID) (*Invoice, error) {
	return scanInvoice(r.conn(ctx).QueryRow(ctx,
		`SELECT `+invoiceCols+` FROM invoices WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id))
}

func (r *repoPG) UpdateInvoice(ctx context.Context, inv *Invoice) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE invoices SET status=$2, total_cents=$3, paid_cents=$4, notes=$5, issued_at=$6, due_date=$7, updated_at=NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		inv.ID, inv.Status, inv.Total.Amount, inv.Paid.Amount, inv.Notes, inv.IssuedAt, inv.DueDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *repoPG) SoftDeleteInvoice(ctx context.Context, id InvoiceID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE invoices SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *repoPG) ListInvoices(ctx context.Context, limit, offset int) ([]*Invoice, int, error) {
	return r.list(ctx, `WHERE deleted_at IS NULL`, nil, limit, offset)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID identity.PatientID, limit, offset int) ([]*Invoice, int, error) {
	return r.list(ctx, `WHERE deleted_at IS NULL AND patient_id = $1`, []interface{}{patientID}, limit, offset)
}

func (r *repoPG) list(ctx context.Context, where string, args []interface{}, limit, offset int) ([]*Invoice, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM invoices `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT `+invoiceCols+` FROM invoices %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, inv)
	}
	return items, total, rows.Err()
}

func (r *repoPG) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE invoices SET status = 'OVERDUE', updated_at = NOW()
		WHERE status = 'ISSUED' AND due_date < $1 AND deleted_at IS NULL`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) AddPayment(ctx context.Context, p *Payment) error {
	if p.ID.UUID == uuid.Nil {
		p.ID = NewPaymentID()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO payments (id, invoice_id, amount_cents, currency, method, reference, received_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.InvoiceID, p.Amount.Amount, p.Amount.Currency, p.Method, p.Reference, p.ReceivedBy)
	return err
}

func (r *repoPG) GetPayments(ctx context.Context, invoiceID InvoiceID) ([]*Payment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, invoice_id, amount_cents, currency, method, reference, received_by, created_at
		FROM payments WHERE invoice_id = $1 ORDER BY created_at`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Payment
	for rows.Next() {
		var p Payment
		var amountCents int64
		var currency string
		if err := rows.Scan(&p.ID, &p.InvoiceID, &amountCents, &currency, &p.Method,
			&p.Reference, &p.ReceivedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Amount = money.New(amountCents, currency)
		items = append(items, &p)
	}
	return items, rows.Err()
}

func (r *repoPG) Report(ctx context.Context, start, end time.Time, currency string) (*FinancialReport, error) {
	var count int
	var totalCents, paidCents int64
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_cents), 0), COALESCE(SUM(paid_cents), 0)
		FROM invoices
		WHERE deleted_at IS NULL AND status <> 'DRAFT' AND created_at >= $1 AND created_at < $2`,
		start, end).Scan(&count, &totalCents, &paidCents)
	if err != nil {
		return nil, err
	}
	return &FinancialReport{
		Start:             start,
		End:               end,
		TotalInvoices:     count,
		TotalAmount:       money.New(totalCents, currency),
		PaidAmount:        money.New(paidCents, currency),
		OutstandingAmount: money.New(totalCents-paidCents, currency),
	}, nil
}
