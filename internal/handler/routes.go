package handler

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"academy/internal/auth"
	"academy/internal/httpmiddleware"
	"academy/internal/metrics"
)

// RouterConfig carries the cross-cutting middleware settings.
type RouterConfig struct {
	CORSOrigins []string
	RateLimiter *httpmiddleware.TokenBucket // nil disables limiting
	Metrics     *metrics.Metrics            // nil disables /metrics
}

// Router builds the gin engine with every route registered.
func (h *Handler) Router(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(securityHeaders())
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.GinMiddleware())
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	r.GET("/healthz", h.Healthz)

	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.GinMiddleware())
	}

	api := r.Group("/api")
	api.POST("/send-alimtalk", h.SendAlimTalk)
	api.GET("/report/:studentId/:entryId", h.Report)
	api.POST("/visits", h.RecordVisit)

	v1 := api.Group("/v1", auth.StaffAuth(h.verifier))
	v1.GET("/me", h.Me)
	v1.GET("/visits/today", h.VisitsToday)

	students := v1.Group("/students")
	students.GET("", h.ListStudents)
	students.GET("/stream", h.StreamStudents)
	students.GET("/:id", h.GetStudent)
	students.GET("/:id/entries", h.ListEntries)
	students.GET("/:id/entries/stream", h.StreamEntries)
	students.POST("/:id/entries", h.CreateEntry)
	students.DELETE("/:id/entries/:entryId", h.DeleteEntry)

	admin := v1.Group("", auth.RequireAdmin())
	admin.POST("/students", h.CreateStudent)
	admin.PATCH("/students/:id", h.UpdateStudent)
	admin.DELETE("/students/:id", h.DeleteStudent)

	admin.GET("/staff", h.ListStaff)
	admin.GET("/staff/stream", h.StreamStaff)
	admin.GET("/staff/:id", h.GetStaff)
	admin.POST("/staff", h.CreateStaff)
	admin.PATCH("/staff/:id", h.UpdateStaff)
	admin.DELETE("/staff/:id", h.DeleteStaff)

	admin.GET("/calendar", h.Calendar)
	admin.GET("/calendar/days/:date", h.DailyRoster)

	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       24 * time.Hour,
	}
	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
