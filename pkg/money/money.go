package money

import (
	"errors"
	"fmt"
)

// ErrOverflow reports that an arithmetic result does not fit in int64
// minor units.
var ErrOverflow = errors.New("amount overflows int64 minor units")

// Money is a fixed-point monetary amount expressed in minor units (cents)
// with an ISO 4217 currency code. All arithmetic is exact integer math;
// amounts never pass through floating point.
type Money struct {
	Amount   int64  `db:"amount" json:"amount"`
	Currency string `db:"currency" json:"currency"`
}

// New returns a Money value of amount minor units in the given currency.
func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// Zero returns a zero amount in the given currency.
func Zero(currency string) Money {
	return Money{Amount: 0, Currency: currency}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// IsNegative reports whether the amount is strictly less than zero.
func (m Money) IsNegative() bool { return m.Amount < 0 }

// SameCurrency reports whether both values share a currency code.
func (m Money) SameCurrency(other Money) bool { return m.Currency == other.Currency }

// Add returns m + other. It fails if the currency codes differ or the
// sum does not fit in int64.
func (m Money) Add(other Money) (Money, error) {
	if !m.SameCurrency(other) {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	sum := m.Amount + other.Amount
	if (other.Amount > 0 && sum < m.Amount) || (other.Amount < 0 && sum > m.Amount) {
		return Money{}, ErrOverflow
	}
	return Money{Amount: sum, Currency: m.Currency}, nil
}

// Sub returns m - other. It fails if the currency codes differ or the
// difference does not fit in int64.
func (m Money) Sub(other Money) (Money, error) {
	if !m.SameCurrency(other) {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	diff := m.Amount - other.Amount
	if (other.Amount > 0 && diff > m.Amount) || (other.Amount < 0 && diff < m.Amount) {
		return Money{}, ErrOverflow
	}
	return Money{Amount: diff, Currency: m.Currency}, nil
}

// Cmp compares m against other: -1 if m < other, 0 if equal, +1 if m > other.
// It fails if the currency codes differ.
func (m Money) Cmp(other Money) (int, error) {
	if !m.SameCurrency(other) {
		return 0, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	switch {
	case m.Amount < other.Amount:
		return -1, nil
	case m.Amount > other.Amount:
		return 1, nil
	}
	return 0, nil
}

// Sum adds all values, which must share one currency. An empty slice sums
// to zero in the given fallback currency.
func Sum(currency string, values ...Money) (Money, error) {
	total := Zero(currency)
	for _, v := range values {
		t, err := total.Add(v)
		if err != nil {
			return Money{}, err
		}
		total = t
	}
	return total, nil
}

// String renders the amount as major.minor units, e.g. "4500.00 KES".
// Display only; never parse this back.
func (m Money) String() string {
	sign := ""
	a := m.Amount
	if a < 0 {
		sign = "-"
		a = -a
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, a/100, a%100, m.Currency)
}
