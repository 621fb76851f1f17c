package admin

import (
	"context"
	"time"

	"github.com/clinicore/api/internal/domain/authz"
	"github.com/clinicore/api/internal/platform/auth"
)

type Service struct {
	repo            Repository
	defaultCurrency string
	now             func() time.Time
}

func NewService(repo Repository, defaultCurrency string) *Service {
	return &Service{repo: repo, defaultCurrency: defaultCurrency, now: time.Now}
}

// Dashboard assembles the admin metrics. Today is the current UTC calendar
// day, the week windows are seven days forward for appointments and seven
// days back for new patients, matching how the front desk reads them.
func (s *Service) Dashboard(ctx context.Context, actor authz.Actor) (*DashboardMetrics, error) {
	if actor.Role != auth.RoleAdmin {
		return nil, authz.Denied(authz.ReasonRoleNotPermitted).Err()
	}

	now := s.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	todayRevenue, err := s.repo.RevenueBetween(ctx, dayStart, dayStart.AddDate(0, 0, 1), s.defaultCurrency)
	if err != nil {
		return nil, err
	}
	monthRevenue, err := s.repo.RevenueBetween(ctx, monthStart, monthStart.AddDate(0, 1, 0), s.defaultCurrency)
	if err != nil {
		return nil, err
	}
	todayAppts, err := s.repo.UpcomingAppointments(ctx, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	weekAppts, err := s.repo.UpcomingAppointments(ctx, dayStart, dayStart.AddDate(0, 0, 7))
	if err != nil {
		return nil, err
	}
	newPatients, err := s.repo.NewPatientsSince(ctx, now.AddDate(0, 0, -7))
	if err != nil {
		return nil, err
	}
	outstanding, err := s.repo.OutstandingTotal(ctx, s.defaultCurrency)
	if err != nil {
		return nil, err
	}

	return &DashboardMetrics{
		GeneratedAt:         now,
		TodayRevenue:        todayRevenue,
		MonthRevenue:        monthRevenue,
		TodayAppointments:   todayAppts,
		WeekAppointments:    weekAppts,
		NewPatientsThisWeek: newPatients,
		OutstandingAmount:   outstanding,
	}, nil
}
