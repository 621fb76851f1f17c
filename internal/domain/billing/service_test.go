package billing

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/api/internal/domain/authz"
	"github.com/clinicore/api/internal/domain/identity"
	"github.com/clinicore/api/internal/domain/visit"
	"github.com/clinicore/api/internal/platform/auth"
	"github.com/clinicore/api/pkg/money"
)

type mockRepo struct {
	invoices map[InvoiceID]*Invoice
	payments map[InvoiceID][]*Payment
}

func newMockRepo() *mockRepo {
	return &mockRepo{invoices: map[InvoiceID]*Invoice{}, payments: map[InvoiceID][]*Payment{}}
}

func (m *mockRepo) CreateInvoice(_ context.Context, inv *Invoice) error {
	copied := *inv
	copied.CreatedAt = time.Now().UTC()
	m.invoices[inv.ID] = &copied
	return nil
}

func (m *mockRepo) GetInvoice(_ context.Context, id InvoiceID) (*Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok || inv.DeletedAt != nil {
		return nil, ErrInvoiceNotFound
	}
	copied := *inv
	return &copied, nil
}

func (m *mockRepo) GetInvoiceForUpdate(ctx context.Context, id InvoiceID) (*Invoice, error) {
	return m.GetInvoice(ctx, id)
}

func (m *mockRepo) UpdateInvoice(_ context.Context, inv *Invoice) error {
	existing, ok := m.invoices[inv.ID]
	if !ok || existing.DeletedAt != nil {
		return ErrInvoiceNotFound
	}
	copied := *inv
	copied.CreatedAt = existing.CreatedAt
	m.invoices[inv.ID] = &copied
	return nil
}

func (m *mockRepo) SoftDeleteInvoice(_ context.Context, id InvoiceID) error {
	inv, ok := m.invoices[id]
	if !ok || inv.DeletedAt != nil {
		return ErrInvoiceNotFound
	}
	now := time.Now().UTC()
	inv.DeletedAt = &now
	return nil
}

func (m *mockRepo) ListInvoices(_ context.Context, limit, offset int) ([]*Invoice, int, error) {
	var items []*Invoice
	for _, inv := range m.invoices {
		if inv.DeletedAt == nil {
			items = append(items, inv)
		}
	}
	return items, len(items), nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID identity.PatientID, limit, offset int) ([]*Invoice, int, error) {
	var items []*Invoice
	for _, inv := range m.invoices {
		if inv.DeletedAt == nil && inv.PatientID == patientID {
			items = append(items, inv)
		}
	}
	return items, len(items), nil
}

func (m *mockRepo) MarkOverdue(_ context.Context, now time.Time) (int, error) {
	n := 0
	for _, inv := range m.invoices {
		if inv.DeletedAt == nil && inv.Status == StatusIssued && inv.DueDate != nil && inv.DueDate.Before(now) {
			inv.Status = StatusOverdue
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) AddPayment(_ context.Context, p *Payment) error {
	copied := *p
	m.payments[p.InvoiceID] = append(m.payments[p.InvoiceID], &copied)
	return nil
}

func (m *mockRepo) GetPayments(_ context.Context, invoiceID InvoiceID) ([]*Payment, error) {
	return m.payments[invoiceID], nil
}

func (m *mockRepo) Report(_ context.Context, start, end time.Time, currency string) (*FinancialReport, error) {
	report := &FinancialReport{
		Start:             start,
		End:               end,
		TotalAmount:       money.Zero(currency),
		PaidAmount:        money.Zero(currency),
		OutstandingAmount: money.Zero(currency),
	}
	for _, inv := range m.invoices {
		if inv.DeletedAt != nil || inv.Status == StatusDraft {
			continue
		}
		if inv.CreatedAt.Before(start) || !inv.CreatedAt.Before(end) {
			continue
		}
		report.TotalInvoices++
		report.TotalAmount.Amount += inv.Total.Amount
		report.PaidAmount.Amount += inv.Paid.Amount
	}
	report.OutstandingAmount.Amount = report.TotalAmount.Amount - report.PaidAmount.Amount
	return report, nil
}

type mockPatients struct{ known map[identity.PatientID]bool }

func (m *mockPatients) GetByID(_ context.Context, id identity.PatientID) (*identity.Patient, error) {
	if !m.known[id] {
		return nil, identity.ErrPatientNotFound
	}
	return &identity.Patient{ID: id}, nil
}

type noopAuditor struct{}

func (noopAuditor) Record(context.Context, uuid.UUID, string, string, uuid.UUID, string) {}

type noTreatments struct{}

func (noTreatments) HasTreatmentRelationship(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return false, nil
}

func passthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var testPatient = identity.PatientID{UUID: uuid.New()}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	patients := &mockPatients{known: map[identity.PatientID]bool{testPatient: true}}
	policy := authz.NewPolicy(noTreatments{})
	svc := NewService(repo, patients, policy, noopAuditor{}, passthroughTx, "KES", 999999999)
	return svc, repo
}

func adminActor() authz.Actor {
	return authz.Actor{UserID: uuid.New(), Role: auth.RoleAdmin}
}

func patientActor() authz.Actor {
	return authz.Actor{UserID: uuid.New(), Role: auth.RolePatient, PatientID: testPatient.UUID}
}

func issuedInvoice(t *testing.T, svc *Service, totalCents int64) *Invoice {
	t.Helper()
	ctx := context.Background()
	inv, err := svc.CreateInvoice(ctx, adminActor(), CreateInvoiceInput{
		PatientID:  testPatient,
		TotalCents: totalCents,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	issued, err := svc.Issue(ctx, adminActor(), inv.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return issued
}

func TestCreateInvoice_Bounds(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.CreateInvoice(ctx, adminActor(), CreateInvoiceInput{PatientID: testPatient}); !errors.Is(err, ErrNonPositiveAmount) {
		t.Errorf("zero total: expected ErrNonPositiveAmount, got %v", err)
	}
	if _, err := svc.CreateInvoice(ctx, adminActor(), CreateInvoiceInput{PatientID: testPatient, TotalCents: -100}); !errors.Is(err, ErrNonPositiveAmount) {
		t.Errorf("negative total: expected ErrNonPositiveAmount, got %v", err)
	}
	if _, err := svc.CreateInvoice(ctx, adminActor(), CreateInvoiceInput{PatientID: testPatient, TotalCents: 1000000000}); !errors.Is(err, ErrAmountTooLarge) {
		t.Errorf("huge total: expected ErrAmountTooLarge, got %v", err)
	}

	inv, err := svc.CreateInvoice(ctx, adminActor(), CreateInvoiceInput{PatientID: testPatient, TotalCents: 4500})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Status != StatusDraft {
		t.Errorf("status = %s, want DRAFT", inv.Status)
	}
	if inv.Total != money.New(4500, "KES") {
		t.Errorf("total = %s, want the default currency applied", inv.Total)
	}
}

func TestCreateInvoice_FrontdeskReadOnly(t *testing.T) {
	svc, _ := newTestService()

	desk := authz.Actor{UserID: uuid.New(), Role: auth.RoleFrontdesk}
	_, err := svc.CreateInvoice(context.Background(), desk, CreateInvoiceInput{
		PatientID:  testPatient,
		TotalCents: 1000,
	})
	var denied *authz.DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if denied.Reason != authz.ReasonRoleNotPermitted {
		t.Errorf("reason = %q, want ROLE_NOT_PERMITTED", denied.Reason)
	}
}

func TestIssue(t *testing.T) {
	svc, _ := newTestService()
	inv := issuedInvoice(t, svc, 4500)

	if inv.Status != StatusIssued {
		t.Errorf("status = %s, want ISSUED", inv.Status)
	}
	if inv.IssuedAt == nil || inv.DueDate == nil {
		t.Error("issue must stamp issued_at and due_date")
	}

	// Issuing twice is rejected.
	if _, err := svc.Issue(context.Background(), adminActor(), inv.ID); !errors.Is(err, ErrNotDraft) {
		t.Errorf("expected ErrNotDraft, got %v", err)
	}
}

// Status derivation over the paid amount: zero keeps ISSUED, one cent
// short keeps PARTIALLY_PAID, the exact total flips to PAID.
func TestRecordPayment_StatusDerivation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	inv := issuedInvoice(t, svc, 4500)

	if inv.Paid.Amount != 0 || inv.Status != StatusIssued {
		t.Fatalf("fresh invoice: paid %d status %s", inv.Paid.Amount, inv.Status)
	}

	after, _, err := svc.RecordPayment(ctx, adminActor(), inv.ID, PaymentInput{AmountCents: 4499, Method: MethodCash})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after.Status != StatusPartiallyPaid {
		t.Errorf("one cent short: status = %s, want PARTIALLY_PAID", after.Status)
	}

	after, _, err = svc.RecordPayment(ctx, adminActor(), inv.ID, PaymentInput{AmountCents: 1, Method: MethodCash})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after.Status != StatusPaid {
		t.Errorf("exact total: status = %s, want PAID", after.Status)
	}
	if after.Outstanding().Amount != 0 {
		t.Errorf("outstanding = %d, want 0", after.Outstanding().Amount)
	}
}

func TestRecordPayment_OverpaymentRejected(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	inv := issuedInvoice(t, svc, 4500)

	if _, _, err := svc.RecordPayment(ctx, adminActor(), inv.ID, PaymentInput{AmountCents: 4501, Method: MethodCard}); !errors.Is(err, ErrOverpayment) {
		t.Fatalf("expected ErrOverpayment, got %v", err)
	}

	// Partial, then a second payment that would tip over.
	if _, _, err := svc.RecordPayment(ctx, adminActor(), inv.ID, PaymentInput{AmountCents: 2000, Method: MethodCard}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := svc.RecordPayment(ctx, adminActor(), inv.ID, PaymentInput{AmountCents: 2501, Method: MethodCard}); !errors.Is(err, ErrOverpayment) {
		t.Fatalf("expected ErrOverpayment, got %v", err)
	}

	// The rejected payments left no trace in the ledger.
	payments, _ := repo.GetPayments(ctx, inv.ID)
	if len(payments) != 1 {
		t.Errorf("ledger holds %d payments, want 1", len(payments))
	}
	stored, _ := repo.GetInvoice(ctx, inv.ID)
	if stored.Paid.Amount != 2000 {
		t.Errorf("paid = %d, want 2000", stored.Paid.Amount)
	}
}

// An absurd amount must not wrap the running total past MaxInt64 and
// sneak through the overpayment guard.
func TestRecordPayment_HugeAmountCannotWrapTotal(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	inv := issuedInvoice(t, svc, 4500)

	if _, _, err := svc.RecordPayment(ctx, adminActor(), inv.ID, PaymentInput{AmountCents: 2000, Method: MethodCash}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := svc.RecordPayment(ctx, adminActor(), inv.ID, PaymentInput{AmountCents: math.MaxInt64, Method: MethodCash}); !errors.Is(err, ErrOverpayment) {
		t.Fatalf("expected ErrOverpayment, got %v", err)
	}

	payments, _ := repo.GetPayments(ctx, inv.ID)
	if len(payments) != 1 {
		t.Errorf("ledger holds %d payments, want 1", len(payments))
	}
	stored, _ := repo.GetInvoice(ctx, inv.ID)
	if stored.Paid.Amount != 2000 || stored.Status != StatusPartiallyPaid {
		t.Errorf("invoice paid=%d status=%s after rejected payment, want 2000/PARTIALLY_PAID",
			stored.Paid.Amount, stored.Status)
	}
}

func TestRecordPayment_Validation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	inv := issuedInvoice(t, svc, 4500)

	if _, _, err := svc.RecordPayment(ctx, adminActor(), inv.ID, PaymentInput{AmountCents: 0, Method: MethodCash}); !errors.Is(err, ErrNonPositiveAmount) {
		t.Errorf("expected ErrNonPositiveAmount, got %v", err)
	}
	if _, _, err := svc.RecordPayment(ctx, adminActor(), inv.ID, PaymentInput{AmountCents: 100, Method: PaymentMethod("IOU")}); !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("expected ErrUnknownMethod, got %v", err)
	}
	if _, _, err := svc.RecordPayment(ctx, adminActor(), inv.ID, PaymentInput{AmountCents: 100, Currency: "USD", Method: MethodCash}); !errors.Is(err, ErrCurrencyMismatch) {
		t.Errorf("expected ErrCurrencyMismatch, got %v", err)
	}
}

func TestRecordPayment_DraftNotPayable(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	inv, err := svc.CreateInvoice(ctx, adminActor(), CreateInvoiceInput{PatientID: testPatient, TotalCents: 4500})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := svc.RecordPayment(ctx, adminActor(), inv.ID, PaymentInput{AmountCents: 100, Method: MethodCash}); !errors.Is(err, ErrNotPayable) {
		t.Errorf("expected ErrNotPayable, got %v", err)
	}
}

func TestRecordPayment_PatientPaysOwnOnly(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	inv := issuedInvoice(t, svc, 4500)

	if _, _, err := svc.RecordPayment(ctx, patientActor(), inv.ID, PaymentInput{AmountCents: 1000, Method: MethodCard}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stranger := authz.Actor{UserID: uuid.New(), Role: auth.RolePatient, PatientID: uuid.New()}
	_, _, err := svc.RecordPayment(ctx, stranger, inv.ID, PaymentInput{AmountCents: 1000, Method: MethodCard})
	var denied *authz.DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if denied.Reason != authz.ReasonNotOwner {
		t.Errorf("reason = %q, want NOT_OWNER", denied.Reason)
	}

	// Doctors have no billing access at all.
	doctor := authz.Actor{UserID: uuid.New(), Role: auth.RoleDoctor, DoctorID: uuid.New()}
	_, _, err = svc.RecordPayment(ctx, doctor, inv.ID, PaymentInput{AmountCents: 1000, Method: MethodCard})
	if !errors.As(err, &denied) || denied.Reason != authz.ReasonRoleNotPermitted {
		t.Errorf("expected ROLE_NOT_PERMITTED for doctor, got %v", err)
	}
}

func TestDelete_DraftOnly(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	draft, err := svc.CreateInvoice(ctx, adminActor(), CreateInvoiceInput{PatientID: testPatient, TotalCents: 4500})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Delete(ctx, adminActor(), draft.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := svc.Get(ctx, adminActor(), draft.ID); !errors.Is(err, ErrInvoiceNotFound) {
		t.Errorf("deleted draft still readable: %v", err)
	}

	issued := issuedInvoice(t, svc, 4500)
	if err := svc.Delete(ctx, adminActor(), issued.ID); !errors.Is(err, ErrNotDraft) {
		t.Errorf("expected ErrNotDraft, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	inv := issuedInvoice(t, svc, 4500)

	if _, _, err := svc.RecordPayment(ctx, adminActor(), inv.ID, PaymentInput{AmountCents: 2000, Method: MethodCash}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancelled, err := svc.Cancel(ctx, adminActor(), inv.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", cancelled.Status)
	}

	// Terminal: no further payments, no second cancel.
	if _, _, err := svc.RecordPayment(ctx, adminActor(), inv.ID, PaymentInput{AmountCents: 100, Method: MethodCash}); !errors.Is(err, ErrNotPayable) {
		t.Errorf("expected ErrNotPayable, got %v", err)
	}
	if _, err := svc.Cancel(ctx, adminActor(), inv.ID); !errors.Is(err, ErrNotCancellable) {
		t.Errorf("expected ErrNotCancellable, got %v", err)
	}

	// The ledger survives the write-off.
	if payments, _ := repo.GetPayments(ctx, inv.ID); len(payments) != 1 {
		t.Errorf("ledger holds %d payments, want 1", len(payments))
	}
}

func TestCancel_PaidIsFinal(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	inv := issuedInvoice(t, svc, 4500)

	if _, _, err := svc.RecordPayment(ctx, adminActor(), inv.ID, PaymentInput{AmountCents: 4500, Method: MethodCard}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Cancel(ctx, adminActor(), inv.ID); !errors.Is(err, ErrNotCancellable) {
		t.Errorf("expected ErrNotCancellable for a paid invoice, got %v", err)
	}
}

func TestCancel_AdminOnly(t *testing.T) {
	svc, _ := newTestService()
	inv := issuedInvoice(t, svc, 4500)

	_, err := svc.Cancel(context.Background(), patientActor(), inv.ID)
	var denied *authz.DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if denied.Reason != authz.ReasonRoleNotPermitted {
		t.Errorf("reason = %q, want ROLE_NOT_PERMITTED", denied.Reason)
	}
}

func TestSweepOverdue(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	inv := issuedInvoice(t, svc, 4500)

	past := time.Now().Add(-time.Hour)
	stored := repo.invoices[inv.ID]
	stored.DueDate = &past

	n, err := svc.SweepOverdue(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("swept %d invoices, want 1", n)
	}
	if repo.invoices[inv.ID].Status != StatusOverdue {
		t.Errorf("status = %s, want OVERDUE", repo.invoices[inv.ID].Status)
	}

	// An overdue invoice still accepts payment and settles.
	after, _, err := svc.RecordPayment(ctx, adminActor(), inv.ID, PaymentInput{AmountCents: 4500, Method: MethodBankTransfer})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after.Status != StatusPaid {
		t.Errorf("status = %s, want PAID", after.Status)
	}
}

func TestHandleVisitCompleted_DraftsInvoice(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	evt := visit.CompletedEvent{
		VisitID:     uuid.New(),
		PatientID:   testPatient.UUID,
		DoctorID:    uuid.New(),
		TotalCost:   money.New(4500, "KES"),
		CompletedBy: uuid.New(),
	}
	if err := svc.HandleVisitCompleted(ctx, evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	invoices, _, _ := repo.ListInvoices(ctx, 20, 0)
	if len(invoices) != 1 {
		t.Fatalf("%d invoices drafted, want 1", len(invoices))
	}
	inv := invoices[0]
	if inv.Status != StatusDraft {
		t.Errorf("status = %s, want DRAFT", inv.Status)
	}
	if inv.Total != money.New(4500, "KES") {
		t.Errorf("total = %s, want the visit total", inv.Total)
	}
	if inv.VisitID == nil || inv.VisitID.UUID != evt.VisitID {
		t.Error("invoice not linked to the visit")
	}
}

func TestHandleVisitCompleted_SkipsZeroCost(t *testing.T) {
	svc, repo := newTestService()

	evt := visit.CompletedEvent{
		VisitID:   uuid.New(),
		PatientID: testPatient.UUID,
		TotalCost: money.Zero("KES"),
	}
	if err := svc.HandleVisitCompleted(context.Background(), evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if invoices, _, _ := repo.ListInvoices(context.Background(), 20, 0); len(invoices) != 0 {
		t.Errorf("%d invoices drafted from a free visit, want 0", len(invoices))
	}
}

func TestHandleVisitCompleted_RespectsMaximum(t *testing.T) {
	svc, repo := newTestService()

	evt := visit.CompletedEvent{
		VisitID:   uuid.New(),
		PatientID: testPatient.UUID,
		TotalCost: money.New(1000000000, "KES"),
	}
	if err := svc.HandleVisitCompleted(context.Background(), evt); !errors.Is(err, ErrAmountTooLarge) {
		t.Fatalf("expected ErrAmountTooLarge, got %v", err)
	}
	if invoices, _, _ := repo.ListInvoices(context.Background(), 20, 0); len(invoices) != 0 {
		t.Errorf("%d invoices drafted past the maximum, want 0", len(invoices))
	}
}

func TestReport(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	draft, err := svc.CreateInvoice(ctx, adminActor(), CreateInvoiceInput{PatientID: testPatient, TotalCents: 9999})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = draft // drafts never count

	inv := issuedInvoice(t, svc, 4500)
	if _, _, err := svc.RecordPayment(ctx, adminActor(), inv.ID, PaymentInput{AmountCents: 2000, Method: MethodCash}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)
	report, err := svc.Report(ctx, adminActor(), start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.TotalInvoices != 1 {
		t.Errorf("total invoices = %d, want 1", report.TotalInvoices)
	}
	if report.TotalAmount.Amount != 4500 || report.PaidAmount.Amount != 2000 || report.OutstandingAmount.Amount != 2500 {
		t.Errorf("report %d/%d/%d, want 4500/2000/2500",
			report.TotalAmount.Amount, report.PaidAmount.Amount, report.OutstandingAmount.Amount)
	}

	if _, err := svc.Report(ctx, patientActor(), start, end); err == nil {
		t.Error("patients must not pull financial reports")
	}
	if _, err := svc.Report(ctx, adminActor(), end, start); err == nil {
		t.Error("inverted window must be rejected")
	}
}
