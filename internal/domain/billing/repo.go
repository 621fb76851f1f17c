package billing

import (
	"context"
	"time"

	"github.com/clinicore/api/internal/domain/identity"
)

type Repository interface {
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, id InvoiceID) (*Invoice, error)
	// GetInvoiceForUpdate locks the row for the rest of the surrounding
	// transaction so concurrent payments serialize.
	GetInvoiceForUpdate(ctx context.Context, id InvoiceID) (*Invoice, error)
	UpdateInvoice(ctx context.Context, inv *Invoice) error
	SoftDeleteInvoice(ctx context.Context, id InvoiceID) error
	ListInvoices(ctx context.Context, limit, offset int) ([]*Invoice, int, error)
	ListByPatient(ctx context.Context, patientID identity.PatientID, limit, offset int) ([]*Invoice, int, error)
	// MarkOverdue flips every ISSUED invoice whose due date has passed and
	// returns how many rows changed.
	MarkOverdue(ctx context.Context, now time.Time) (int, error)

	AddPayment(ctx context.Context, p *Payment) error
	GetPayments(ctx context.Context, invoiceID InvoiceID) ([]*Payment, error)

	// Report aggregates non-draft, non-deleted invoices created inside the
	// window. Amounts are reported in the ledger currency.
	Report(ctx context.Context, start, end time.Time, currency string) (*FinancialReport, error)
}
