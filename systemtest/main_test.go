package systemtest

import (
	"context"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	internalhttp "github.com/matross-gh/platform-engineering-copilot-sub003/internal/api/http"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/auth"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/db"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/environment"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/notify"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/onboarding"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/orchestrator"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/template"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/users"
	"github.com/matross-gh/platform-engineering-copilot-sub003/systemtest/postgres"
	"github.com/matross-gh/platform-engineering-copilot-sub003/systemtest/tests"
)

const (
	jwtSecret = "systemtest-secret"
	opsAPIKey = "systemtest-ops-key"
)

func TestSystemIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping system test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.StartPostgres(ctx, "onboarding", "onboarding", "onboarding")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = postgres.TerminatePostgres(context.Background(), container)
	})

	dbURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, db.RunMigrations(dbURL, "public"))

	pool, err := db.InitDB(ctx, dbURL, "public")
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	requestStore := onboarding.NewPostgresStore(pool)
	jobStore := orchestrator.NewPostgresJobStore(pool)
	userStore := users.NewPostgresStore(pool)

	dispatcher := notify.Log{}
	orchestratorSvc := orchestrator.NewService(requestStore, jobStore,
		template.NewBicepEngine(), environment.NewDryRun(), dispatcher)
	orchestratorSvc.Start(ctx)
	t.Cleanup(orchestratorSvc.Stop)

	lifecycleSvc := onboarding.NewService(requestStore, onboarding.NewValidator(), orchestratorSvc, dispatcher)
	authSvc := auth.NewService(userStore, auth.JWTConfig{Secret: jwtSecret, ExpiryHours: 1})

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	internalhttp.SetupRoute(engine, &internalhttp.Services{
		Lifecycle:    lifecycleSvc,
		Orchestrator: orchestratorSvc,
		Auth:         authSvc,
		JWTSecret:    jwtSecret,
		OpsAPIKey:    opsAPIKey,
	})

	t.Run("Register", func(t *testing.T) { tests.TestRegister(t, engine, jwtSecret) })
	t.Run("Login", func(t *testing.T) { tests.TestLogin(t, engine, jwtSecret) })
	t.Run("OnboardingLifecycle", func(t *testing.T) { tests.TestOnboardingLifecycle(t, engine) })
	t.Run("RejectFlow", func(t *testing.T) { tests.TestRejectFlow(t, engine) })
	t.Run("CancelFlow", func(t *testing.T) { tests.TestCancelFlow(t, engine) })
	t.Run("Stats", func(t *testing.T) { tests.TestStats(t, engine, opsAPIKey) })
}
