package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/clinicore/api/internal/domain/admin"
	"github.com/clinicore/api/internal/domain/appointment"
	"github.com/clinicore/api/internal/domain/audit"
	"github.com/clinicore/api/internal/domain/authz"
	"github.com/clinicore/api/internal/domain/billing"
	"github.com/clinicore/api/internal/domain/identity"
	"github.com/clinicore/api/internal/domain/medrecord"
	"github.com/clinicore/api/internal/domain/visit"
	"github.com/clinicore/api/internal/platform/auth"
	"github.com/clinicore/api/internal/platform/db"
	"github.com/clinicore/api/internal/platform/events"
)

// globalPool is the shared database connection, initialized once in TestMain.
var globalPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	connStr, cleanup, err := startPostgresContainer(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}

	migrator := db.NewMigrator(pool, findMigrationsDir())
	if _, err := migrator.Up(ctx); err != nil {
		pool.Close()
		cleanup()
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		os.Exit(1)
	}

	globalPool = pool
	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

// findMigrationsDir locates the migrations directory relative to this test file.
func findMigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	// test/integration -> repo root
	return filepath.Join(dir, "..", "..", "migrations")
}

// testEnv wires the full service graph against the shared database, the way
// the server entrypoint does.
type testEnv struct {
	Identity     *identity.Service
	Appointments *appointment.Service
	Visits       *visit.Service
	Records      *medrecord.Service
	Billing      *billing.Service
	Audit        *audit.Service
	Admin        *admin.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	pool := globalPool
	runner := db.NewRunner(pool)
	logger := zerolog.Nop()

	userRepo := identity.NewUserRepoPG(pool)
	patientRepo := identity.NewPatientRepoPG(pool)
	doctorRepo := identity.NewDoctorRepoPG(pool)
	visitRepo := visit.NewRepoPG(pool)

	policy := authz.NewPolicy(visitRepo)
	auditSvc := audit.NewService(audit.NewRepoPG(pool), logger)
	tokens := auth.NewTokenIssuer([]byte("integration-test-secret"), "clinicore", time.Hour)
	bus := events.NewBus(logger)

	billingSvc := billing.NewService(billing.NewRepoPG(pool), patientRepo, policy, auditSvc, runner, "KES", 100_000_000)
	bus.Subscribe(visit.EventCompleted, billingSvc.HandleVisitCompleted)

	return &testEnv{
		Identity:     identity.NewService(userRepo, patientRepo, doctorRepo, policy, tokens, runner, auditSvc),
		Appointments: appointment.NewService(appointment.NewRepoPG(pool), patientRepo, doctorRepo, policy, auditSvc),
		Visits:       visit.NewService(visitRepo, patientRepo, doctorRepo, policy, bus, auditSvc, runner, "KES", 100_000_000),
		Records:      medrecord.NewService(medrecord.NewRepoPG(pool), visitRepo, policy, auditSvc),
		Billing:      billingSvc,
		Audit:        auditSvc,
		Admin:        admin.NewService(admin.NewRepoPG(pool), "KES"),
	}
}

// registerActor creates a user with the given role and resolves it into a
// policy actor. Patient and doctor roles get a profile row too.
func (env *testEnv) registerActor(t *testing.T, ctx context.Context, role, firstName, lastName string) authz.Actor {
	t.Helper()
	user, err := env.Identity.Register(ctx, identity.RegisterInput{
		Email:     fmt.Sprintf("%s-%s@clinic.test", firstName, uuid.New().String()[:8]),
		Password:  "correct horse battery",
		Role:      role,
		FirstName: firstName,
		LastName:  lastName,
	})
	if err != nil {
		t.Fatalf("register %s: %v", role, err)
	}
	actor, err := env.Identity.ResolveActor(ctx, user.ID.String(), user.Role)
	if err != nil {
		t.Fatalf("resolve actor for %s: %v", role, err)
	}
	return actor
}
