package admin

import (
	"time"

	"github.com/clinicore/api/pkg/money"
)

// DashboardMetrics is the practice-at-a-glance summary the admin UI polls.
// Revenue sums the payment ledger, not invoice totals, so it reflects cash
// actually received.
type DashboardMetrics struct {
	GeneratedAt         time.Time   `json:"generated_at"`
	TodayRevenue        money.Money `json:"today_revenue"`
	MonthRevenue        money.Money `json:"month_revenue"`
	TodayAppointments   int         `json:"today_appointments"`
	WeekAppointments    int         `json:"week_appointments"`
	NewPatientsThisWeek int         `json:"new_patients_this_week"`
	OutstandingAmount   money.Money `json:"outstanding_amount"`
}
