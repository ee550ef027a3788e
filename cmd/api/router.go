package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rm-3284/mle-bench-hpc/internal/handlers"
	"github.com/rm-3284/mle-bench-hpc/internal/metrics"
)

func setupRouter(h *handlers.Handler, m *metrics.Metrics) *gin.Engine {
	router := gin.Default()

	// Middleware CORS
	router.Use(corsMiddleware())

	router.GET("/health", h.HealthCheck)
	router.POST("/validate", h.Validate)

	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	// API v1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/stats", h.GetStats)

		validations := v1.Group("/validations")
		{
			validations.GET("", h.GetValidations)
			validations.GET("/:id", h.GetValidation)
		}
	}

	return router
}

// corsMiddleware añade headers CORS para desarrollo
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Expose-Headers", handlers.HeaderValidationID)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
