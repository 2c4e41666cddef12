package router

import (
	"context"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exprep-backend/internal/config"
	"github.com/stemsi/exprep-backend/internal/handler"
	"github.com/stemsi/exprep-backend/internal/middleware"
	"github.com/stemsi/exprep-backend/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Study  *handler.StudySessionHandler
	Test   *handler.TestSessionHandler
	WS     *handler.WSHandler
	System *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds background work owned by middlewares.
func SetupRouter(ctx context.Context, handlers *Handlers, cfg *config.Config, log zerolog.Logger) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-Request-ID", middleware.HeaderUserID}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID first so the access log and every envelope carry it.
	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.RequestLogger(log))

	// xlsx exports are already zip compressed.
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		MinLength: middleware.DefaultBrotliConfig.MinLength,
		Skipper: func(c *gin.Context) bool {
			return strings.HasSuffix(c.Request.URL.Path, "/export")
		},
	}))

	router.GET("/health", handlers.System.Health)

	limiter := middleware.NewRateLimiter(ctx, cfg.RateLimitPerMinute, time.Minute)

	// ─── 1. API Group (Caller identity + rate limit) ───────────────────
	api := router.Group("/api/v1")
	api.Use(middleware.RequireUser(), limiter.Middleware(), middleware.NoStore())
	{
		api.GET("/system/stats", handlers.System.Stats)

		study := api.Group("/study-sessions")
		{
			study.POST("", handlers.Study.CreateStudySession)
			study.GET("/active", handlers.Study.GetActiveStudySession)
			study.GET("/:id", handlers.Study.GetStudySession)
			study.GET("/:id/questions", handlers.Study.GetStudyQuestions)
			study.PATCH("/:id/progress", handlers.Study.UpdateStudyProgress)
			study.POST("/:id/answers", handlers.Study.RecordStudyAnswer)
			study.POST("/:id/complete", handlers.Study.CompleteStudySession)
			study.POST("/:id/abandon", handlers.Study.AbandonStudySession)
			study.POST("/:id/pause", handlers.Study.PauseStudySession)
			study.POST("/:id/resume", handlers.Study.ResumeStudySession)
		}

		test := api.Group("/test-sessions")
		{
			test.POST("", handlers.Test.CreateTestSession)
			test.GET("/history", handlers.Test.GetTestHistory)
			test.GET("/history/export", handlers.Test.ExportTestHistory)
			test.GET("/:id", handlers.Test.GetTestSession)
			test.GET("/:id/questions", handlers.Test.GetTestQuestions)
			test.GET("/:id/results", handlers.Test.GetTestResults)
			test.PATCH("/:id/progress", handlers.Test.UpdateTestProgress)
			test.PUT("/:id/answers", handlers.Test.SaveTestAnswer)
			test.POST("/:id/submit", handlers.Test.SubmitTestSession)
			test.POST("/:id/pause", handlers.Test.PauseTestSession)
			test.POST("/:id/resume", handlers.Test.ResumeTestSession)
			test.POST("/:id/abandon", handlers.Test.AbandonTestSession)
		}
	}

	// ─── 2. WebSocket Group (Caller identity) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireUser())
	{
		ws.GET("/test-sessions/:id/stream", handlers.WS.TestSessionStream)
	}

	return router
}
