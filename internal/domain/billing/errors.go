package billing

import "errors"

var (
	ErrInvoiceNotFound   = errors.New("invoice not found")
	ErrNotDraft          = errors.New("only draft invoices can be changed or deleted")
	ErrNotPayable        = errors.New("invoice is not open for payment")
	ErrNotCancellable    = errors.New("paid or cancelled invoices cannot be cancelled")
	ErrOverpayment       = errors.New("payment exceeds the outstanding balance")
	ErrNonPositiveAmount = errors.New("amount must be positive")
	ErrAmountTooLarge    = errors.New("amount exceeds the configured maximum")
	ErrCurrencyMismatch  = errors.New("payment currency does not match the invoice")
	ErrUnknownMethod     = errors.New("unknown payment method")
)
