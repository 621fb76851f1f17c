package admin

import (
	"context"
	"time"

	"github.com/clinicore/api/pkg/money"
)

// Repository exposes the cross-table aggregations behind the dashboard.
// All windows are half-open: [from, to).
type Repository interface {
	RevenueBetween(ctx context.Context, from, to time.Time, currency string) (money.Money, error)
	UpcomingAppointments(ctx context.Context, from, to time.Time) (int, error)
	NewPatientsSince(ctx context.Context, since time.Time) (int, error)
	OutstandingTotal(ctx context.Context, currency string) (money.Money, error)
}
