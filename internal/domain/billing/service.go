package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/api/internal/domain/authz"
	"github.com/clinicore/api/internal/domain/identity"
	"github.com/clinicore/api/internal/domain/visit"
	"github.com/clinicore/api/internal/platform/auth"
	"github.com/clinicore/api/internal/platform/db"
	"github.com/clinicore/api/internal/platform/events"
	"github.com/clinicore/api/pkg/money"
)

// defaultPaymentTerm is how long an issued invoice stays open before it
// counts as overdue.
const defaultPaymentTerm = 30 * 24 * time.Hour

// PatientDirectory is the slice of the identity store this service needs
// for reference checks.
type PatientDirectory interface {
	GetByID(ctx context.Context, id identity.PatientID) (*identity.Patient, error)
}

type Auditor interface {
	Record(ctx context.Context, userID uuid.UUID, action, resource string, resourceID uuid.UUID, summary string)
}

type Service struct {
	repo            Repository
	patients        PatientDirectory
	policy          *authz.Policy
	audit           Auditor
	tx              db.Runner
	defaultCurrency string
	maxAmount       int64
}

func NewService(repo Repository, patients PatientDirectory, policy *authz.Policy,
	audit Auditor, tx db.Runner, defaultCurrency string, maxAmount int64) *Service {
	return &Service{
		repo:            repo,
		patients:        patients,
		policy:          policy,
		audit:           audit,
		tx:              tx,
		defaultCurrency: defaultCurrency,
		maxAmount:       maxAmount,
	}
}

type CreateInvoiceInput struct {
	PatientID  identity.PatientID `json:"patient_id"`
	VisitID    *visit.VisitID     `json:"visit_id,omitempty"`
	TotalCents int64              `json:"total_cents"`
	Currency   string             `json:"currency"`
	Notes      *string            `json:"notes"`
}

// CreateInvoice opens a draft. Billing writes are an admin concern; the
// front desk only reads.
func (s *Service) CreateInvoice(ctx context.Context, actor authz.Actor, in CreateInvoiceInput) (*Invoice, error) {
	if err := s.policy.CanAccessInvoice(actor, in.PatientID.UUID, authz.ActionWrite).Err(); err != nil {
		return nil, err
	}
	if in.PatientID.UUID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}
	if in.TotalCents <= 0 {
		return nil, ErrNonPositiveAmount
	}
	if in.TotalCents > s.maxAmount {
		return nil, ErrAmountTooLarge
	}
	if in.Currency == "" {
		in.Currency = s.defaultCurrency
	}
	if _, err := s.patients.GetByID(ctx, in.PatientID); err != nil {
		return nil, err
	}

	inv := &Invoice{
		ID:        NewInvoiceID(),
		PatientID: in.PatientID,
		VisitID:   in.VisitID,
		Status:    StatusDraft,
		Total:     money.New(in.TotalCents, in.Currency),
		Paid:      money.Zero(in.Currency),
		Notes:     in.Notes,
	}
	if err := s.repo.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actor.UserID, "CREATE", "Invoice", inv.ID.UUID,
		"draft invoice for "+inv.Total.String())
	return inv, nil
}

// Issue moves a draft into circulation and starts the payment term.
func (s *Service) Issue(ctx context.Context, actor authz.Actor, id InvoiceID) (*Invoice, error) {
	var inv *Invoice
	err := s.tx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.policy.CanAccessInvoice(actor, inv.PatientID.UUID, authz.ActionWrite).Err(); err != nil {
			return err
		}
		if inv.Status != StatusDraft {
			return ErrNotDraft
		}

		now := time.Now().UTC()
		due := now.Add(defaultPaymentTerm)
		inv.Status = StatusIssued
		inv.IssuedAt = &now
		inv.DueDate = &due
		return s.repo.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actor.UserID, "UPDATE", "Invoice", inv.ID.UUID,
		"issued at "+inv.Total.String())
	return inv, nil
}

type PaymentInput struct {
	AmountCents int64         `json:"amount_cents"`
	Currency    string        `json:"currency"`
	Method      PaymentMethod `json:"method"`
	Reference   *string       `json:"reference"`
}

// RecordPayment appends a payment and re-derives the invoice status under
// a row lock. Overpayment is rejected outright: the ledger never holds
// more than the invoice total.
func (s *Service) RecordPayment(ctx context.Context, actor authz.Actor, id InvoiceID, in PaymentInput) (*Invoice, *Payment, error) {
	if in.AmountCents <= 0 {
		return nil, nil, ErrNonPositiveAmount
	}
	if !in.Method.Valid() {
		return nil, nil, ErrUnknownMethod
	}

	var inv *Invoice
	var p *Payment
	err := s.tx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.policy.CanPayInvoice(actor, inv.PatientID.UUID).Err(); err != nil {
			return err
		}
		if !inv.Status.Payable() {
			return ErrNotPayable
		}
		if in.Currency == "" {
			in.Currency = inv.Total.Currency
		}
		if in.Currency != inv.Total.Currency {
			return ErrCurrencyMismatch
		}
		// Compare against the outstanding remainder instead of summing:
		// paid never exceeds total, so the subtraction cannot overflow,
		// while paid+amount can wrap for an absurd amount.
		if in.AmountCents > inv.Total.Amount-inv.Paid.Amount {
			return ErrOverpayment
		}

		p = &Payment{
			ID:         NewPaymentID(),
			InvoiceID:  inv.ID,
			Amount:     money.New(in.AmountCents, in.Currency),
			Method:     in.Method,
			Reference:  in.Reference,
			ReceivedBy: actor.UserID,
		}
		if err := s.repo.AddPayment(ctx, p); err != nil {
			return err
		}

		inv.Paid = money.New(inv.Paid.Amount+in.AmountCents, inv.Total.Currency)
		inv.Status = inv.deriveStatus()
		return s.repo.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return nil, nil, err
	}

	s.audit.Record(ctx, actor.UserID, "CREATE", "Payment", p.ID.UUID,
		fmt.Sprintf("%s by %s, invoice now %s", p.Amount, p.Method, inv.Status))
	return inv, p, nil
}

// Cancel writes off an open invoice. PAID and CANCELLED are terminal and
// stay as they are; the invoice and its ledger remain on the books.
func (s *Service) Cancel(ctx context.Context, actor authz.Actor, id InvoiceID) (*Invoice, error) {
	var inv *Invoice
	err := s.tx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.GetInvoiceForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.policy.CanAccessInvoice(actor, inv.PatientID.UUID, authz.ActionWrite).Err(); err != nil {
			return err
		}
		if inv.Status == StatusPaid || inv.Status == StatusCancelled {
			return ErrNotCancellable
		}

		inv.Status = StatusCancelled
		return s.repo.UpdateInvoice(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actor.UserID, "UPDATE", "Invoice", inv.ID.UUID,
		"written off with "+inv.Outstanding().String()+" outstanding")
	return inv, nil
}

// Get returns an invoice with its payment ledger.
func (s *Service) Get(ctx context.Context, actor authz.Actor, id InvoiceID) (*Invoice, []*Payment, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := s.policy.CanAccessInvoice(actor, inv.PatientID.UUID, authz.ActionRead).Err(); err != nil {
		return nil, nil, err
	}
	payments, err := s.repo.GetPayments(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return inv, payments, nil
}

// List returns the invoices the actor may see: staff all, patients their
// own. Doctors have no billing access.
func (s *Service) List(ctx context.Context, actor authz.Actor, limit, offset int) ([]*Invoice, int, error) {
	switch actor.Role {
	case auth.RoleAdmin, auth.RoleFrontdesk:
		return s.repo.ListInvoices(ctx, limit, offset)
	case auth.RolePatient:
		return s.repo.ListByPatient(ctx, identity.PatientID{UUID: actor.PatientID}, limit, offset)
	default:
		return nil, 0, authz.Denied(authz.ReasonRoleNotPermitted).Err()
	}
}

// Delete removes a draft. Anything past DRAFT is part of the financial
// record and stays.
func (s *Service) Delete(ctx context.Context, actor authz.Actor, id InvoiceID) error {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policy.CanAccessInvoice(actor, inv.PatientID.UUID, authz.ActionWrite).Err(); err != nil {
		return err
	}
	if inv.Status != StatusDraft {
		return ErrNotDraft
	}
	if err := s.repo.SoftDeleteInvoice(ctx, id); err != nil {
		return err
	}

	s.audit.Record(ctx, actor.UserID, "DELETE", "Invoice", inv.ID.UUID, "draft discarded")
	return nil
}

// Report aggregates the books over a window. Staff only.
func (s *Service) Report(ctx context.Context, actor authz.Actor, start, end time.Time) (*FinancialReport, error) {
	switch actor.Role {
	case auth.RoleAdmin, auth.RoleFrontdesk:
	default:
		return nil, authz.Denied(authz.ReasonRoleNotPermitted).Err()
	}
	if !end.After(start) {
		return nil, fmt.Errorf("end must be after start")
	}
	return s.repo.Report(ctx, start, end, s.defaultCurrency)
}

// SweepOverdue flips issued invoices past their due date. Called from a
// background ticker.
func (s *Service) SweepOverdue(ctx context.Context) (int, error) {
	return s.repo.MarkOverdue(ctx, time.Now().UTC())
}

// HandleVisitCompleted drafts an invoice from a completed visit with a
// positive total. It runs on the in-process bus; a failure here is logged
// by the bus and never fails the visit.
func (s *Service) HandleVisitCompleted(ctx context.Context, evt events.Event) error {
	completed, ok := evt.(visit.CompletedEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", evt)
	}
	if !completed.TotalCost.IsPositive() {
		return nil
	}
	// The same sanity bound CreateInvoice applies; an auto-drafted invoice
	// is not a way around it.
	if completed.TotalCost.Amount > s.maxAmount {
		return fmt.Errorf("visit %s total %s exceeds the invoice maximum: %w",
			completed.VisitID, completed.TotalCost, ErrAmountTooLarge)
	}

	inv := &Invoice{
		ID:        NewInvoiceID(),
		PatientID: identity.PatientID{UUID: completed.PatientID},
		VisitID:   &visit.VisitID{UUID: completed.VisitID},
		Status:    StatusDraft,
		Total:     completed.TotalCost,
		Paid:      money.Zero(completed.TotalCost.Currency),
	}
	if err := s.repo.CreateInvoice(ctx, inv); err != nil {
		return fmt.Errorf("drafting invoice from visit %s: %w", completed.VisitID, err)
	}

	s.audit.Record(ctx, completed.CompletedBy, "CREATE", "Invoice", inv.ID.UUID,
		"auto-drafted from visit, total "+inv.Total.String())
	return nil
}
