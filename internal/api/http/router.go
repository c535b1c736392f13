package http

import (
	"github.com/gin-gonic/gin"

	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/api/http/handler"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/api/http/middleware"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/auth"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/onboarding"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/orchestrator"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/users"
)

type Services struct {
	Lifecycle    *onboarding.Service
	Orchestrator *orchestrator.Service
	Auth         *auth.Service
	JWTSecret    string
	OpsAPIKey    string
}

func SetupRoute(engine *gin.Engine, srvs *Services) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler()
	engine.GET("/health", healthHandler.Check)

	authHandler := handler.NewAuthHandler(srvs.Auth)
	engine.POST("/auth/register", authHandler.Register)
	engine.POST("/auth/login", authHandler.Login)

	requestsHandler := handler.NewRequestsHandler(srvs.Lifecycle)
	jobsHandler := handler.NewJobsHandler(srvs.Orchestrator)

	authed := engine.Group("/", middleware.JWTAuth(srvs.JWTSecret))

	requests := authed.Group("/requests")
	requests.POST("", requestsHandler.Create)
	requests.GET("", requestsHandler.List)
	requests.GET("/:id", requestsHandler.Get)
	requests.PATCH("/:id", requestsHandler.Update)
	requests.POST("/:id/submit", requestsHandler.Submit)
	requests.POST("/:id/cancel", requestsHandler.Cancel)
	requests.GET("/:id/progress", requestsHandler.Progress)
	requests.GET("/:id/history", requestsHandler.History)

	// Review decisions are reserved for reviewer accounts.
	review := requests.Group("", middleware.RequireRole(users.RoleReviewer))
	review.POST("/:id/review", requestsHandler.BeginReview)
	review.POST("/:id/approve", requestsHandler.Approve)
	review.POST("/:id/reject", requestsHandler.Reject)

	authed.GET("/jobs/:id", jobsHandler.Status)

	engine.GET("/stats", middleware.APIKeyAuth(srvs.OpsAPIKey), requestsHandler.Stats)
}
