package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/api/internal/domain/identity"
	"github.com/clinicore/api/internal/domain/visit"
	"github.com/clinicore/api/pkg/money"
)

type InvoiceID struct{ uuid.UUID }

type PaymentID struct{ uuid.UUID }

func NewInvoiceID() InvoiceID { return InvoiceID{uuid.New()} }
func NewPaymentID() PaymentID { return PaymentID{uuid.New()} }

func ParseInvoiceID(s string) (InvoiceID, error) {
	id, err := uuid.Parse(s)
	return InvoiceID{id}, err
}

// InvoiceStatus is derived from the payment ledger, never set directly by
// a caller. DRAFT invoices are the only mutable ones.
type InvoiceStatus string

const (
	StatusDraft         InvoiceStatus = "DRAFT"
	StatusIssued        InvoiceStatus = "ISSUED"
	StatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	StatusPaid          InvoiceStatus = "PAID"
	StatusOverdue       InvoiceStatus = "OVERDUE"
	StatusCancelled     InvoiceStatus = "CANCELLED"
)

// Payable reports whether the invoice can accept a payment.
func (s InvoiceStatus) Payable() bool {
	switch s {
	case StatusIssued, StatusPartiallyPaid, StatusOverdue:
		return true
	}
	return false
}

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "CASH"
	MethodCard         PaymentMethod = "CARD"
	MethodInsurance    PaymentMethod = "INSURANCE"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodInsurance, MethodBankTransfer:
		return true
	}
	return false
}

// Invoice maps to the invoices table. Paid is the sum of the payment
// ledger, maintained under the same row lock as the status.
type Invoice struct {
	ID        InvoiceID          `db:"id" json:"id"`
	PatientID identity.PatientID `db:"patient_id" json:"patient_id"`
	VisitID   *visit.VisitID     `db:"visit_id" json:"visit_id,omitempty"`
	Status    InvoiceStatus      `db:"status" json:"status"`
	Total     money.Money        `json:"total"`
	Paid      money.Money        `json:"paid"`
	Notes     *string            `db:"notes" json:"notes,omitempty"`
	IssuedAt  *time.Time         `db:"issued_at" json:"issued_at,omitempty"`
	DueDate   *time.Time         `db:"due_date" json:"due_date,omitempty"`
	DeletedAt *time.Time         `db:"deleted_at" json:"-"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt time.Time          `db:"updated_at" json:"updated_at"`
}

// Outstanding is the unpaid remainder.
func (i *Invoice) Outstanding() money.Money {
	return money.New(i.Total.Amount-i.Paid.Amount, i.Total.Currency)
}

// deriveStatus maps the paid amount onto the invoice lifecycle. Overdue is
// a flavour of unpaid: the first payment moves it forward like ISSUED.
func (i *Invoice) deriveStatus() InvoiceStatus {
	switch {
	case i.Paid.Amount >= i.Total.Amount:
		return StatusPaid
	case i.Paid.Amount > 0:
		return StatusPartiallyPaid
	default:
		return i.Status
	}
}

// Payment maps to the payments table. Payments are append-only; a
// correction is a new negative-free entry on a fresh invoice, never an
// edit.
type Payment struct {
	ID         PaymentID     `db:"id" json:"id"`
	InvoiceID  InvoiceID     `db:"invoice_id" json:"invoice_id"`
	Amount     money.Money   `json:"amount"`
	Method     PaymentMethod `db:"method" json:"method"`
	Reference  *string       `db:"reference" json:"reference,omitempty"`
	ReceivedBy uuid.UUID     `db:"received_by" json:"received_by"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
}

// FinancialReport aggregates issued invoices over a reporting window.
// Draft and deleted invoices never count.
type FinancialReport struct {
	Start             time.Time   `json:"start"`
	End               time.Time   `json:"end"`
	TotalInvoices     int         `json:"total_invoices"`
	TotalAmount       money.Money `json:"total_amount"`
	PaidAmount        money.Money `json:"paid_amount"`
	OutstandingAmount money.Money `json:"outstanding_amount"`
}
