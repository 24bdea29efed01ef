package router

import (
	"time"

	"github.com/VishnuKaranth/Dubbing-Software/internal/config"
	"github.com/VishnuKaranth/Dubbing-Software/internal/database"
	"github.com/VishnuKaranth/Dubbing-Software/internal/handlers"
	"github.com/VishnuKaranth/Dubbing-Software/internal/orchestrator"
	"github.com/VishnuKaranth/Dubbing-Software/internal/queue"
	"github.com/VishnuKaranth/Dubbing-Software/internal/quota"
	"github.com/VishnuKaranth/Dubbing-Software/internal/service"
	"github.com/VishnuKaranth/Dubbing-Software/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// New creates a new router with all routes configured.
func New(db *database.DB, store *storage.Service, publisher *queue.Publisher, cfg *config.Config, logger *zap.Logger) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// Middleware
	r.Use(ginLogger(logger))
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	quotaService, err := quota.NewService(db.DB, cfg.Quota.DailyLimit, cfg.Quota.Timezone, logger)
	if err != nil {
		return nil, err
	}

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobRepo := orchestrator.NewDBJobRepository(db)
		jobOrchestrator := orchestrator.NewJobOrchestrator(publisher, jobRepo)
		jobService := service.NewJobService(db, store, jobOrchestrator, quotaService, cfg.Pipeline.Languages)
		jobHandler := handlers.NewJobHandler(jobService, logger)

		jobs := v1.Group("/jobs")
		{
			jobs.POST("", jobHandler.CreateJob)
			jobs.GET("", jobHandler.ListJobs)
			jobs.GET("/:job_id", jobHandler.GetJob)
			jobs.GET("/:job_id/artifacts", jobHandler.GetJobArtifacts)
			jobs.POST("/:job_id/cancel", jobHandler.CancelJob)
			jobs.DELETE("/:job_id", jobHandler.DeleteJob)
		}
	}

	return r, nil
}

// ginLogger is a custom logger middleware.
func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		clientIP := c.ClientIP()
		method := c.Request.Method
		statusCode := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", statusCode),
			zap.Duration("latency", latency),
			zap.String("client_ip", clientIP),
		)
	}
}

// corsMiddleware adds CORS headers.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, X-Client-ID, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
