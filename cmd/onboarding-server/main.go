package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	internalhttp "github.com/matross-gh/platform-engineering-copilot-sub003/internal/api/http"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/auth"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/db"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/environment"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/notify"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/onboarding"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/orchestrator"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/template"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/users"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Mission Onboarding Server", "version", AppVersion)

	ctx := context.Background()

	var (
		requestStore onboarding.Store
		jobStore     orchestrator.JobStore
		userStore    users.Store
	)
	if config.Db.Url != "" {
		if err := db.RunMigrations(config.Db.Url, config.Db.Schema); err != nil {
			slog.Error("Failed to run migrations", "error", err)
			os.Exit(1)
		}
		pool, err := db.InitDB(ctx, config.Db.Url, config.Db.Schema)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		requestStore = onboarding.NewPostgresStore(pool)
		jobStore = orchestrator.NewPostgresJobStore(pool)
		userStore = users.NewPostgresStore(pool)
	} else {
		slog.Warn("No database configured, using in-memory stores")
		requestStore = onboarding.NewMemStore()
		jobStore = orchestrator.NewMemJobStore()
		userStore = users.NewMemStore()
	}

	var dispatcher notify.Dispatcher = notify.Log{}
	if config.Notify.SlackWebhookURL != "" {
		dispatcher = notify.Multi{
			notify.Log{},
			notify.NewSlackWebhook(config.Notify.SlackWebhookURL, config.Notify.SlackChannel),
		}
	}

	orchestratorSvc := orchestrator.NewService(
		requestStore,
		jobStore,
		template.NewBicepEngine(),
		environment.NewDryRun(),
		dispatcher,
	)
	lifecycleSvc := onboarding.NewService(requestStore, onboarding.NewValidator(), orchestratorSvc, dispatcher)
	authSvc := auth.NewService(userStore, config.Jwt)

	orchestratorSvc.Start(ctx)
	if err := orchestratorSvc.Recover(ctx); err != nil {
		slog.Error("Failed to recover interrupted provisioning jobs", "error", err)
	}

	services := &internalhttp.Services{
		Lifecycle:    lifecycleSvc,
		Orchestrator: orchestratorSvc,
		Auth:         authSvc,
		JWTSecret:    config.Jwt.Secret,
		OpsAPIKey:    config.Http.OpsAPIKey,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"PUT", "PATCH", "GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(gin.Recovery())
	internalhttp.SetupRoute(engine, services)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Http.Port),
		Handler: engine,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down...")

	var wg sync.WaitGroup
	shutdownTimeout := 10 * time.Second

	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		} else {
			slog.Info("HTTP server stopped")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		orchestratorSvc.Stop()
		slog.Info("Provisioning workers stopped")
	}()

	wg.Wait()
	slog.Info("Shutdown complete")
}
