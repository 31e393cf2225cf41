package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.CORS.AllowedOrigins,
		AllowMethods:     s.config.CORS.AllowedMethods,
		AllowHeaders:     s.config.CORS.AllowedHeaders,
		AllowCredentials: s.config.CORS.AllowCredentials,
		MaxAge:           time.Duration(s.config.CORS.MaxAge) * time.Second,
	}))

	r.GET("/health", s.healthHandler)
	r.GET("/ready", s.readyHandler)

	batch := r.Group("/integrations/payable")
	{
		batch.POST("/batch", s.createBatchHandler)
		batch.GET("/batch/:batchJobId", s.getBatchStatusHandler)
		batch.GET("/batch/:batchJobId/dead-letters", s.listDeadLettersHandler)
		batch.POST("/batch/:batchJobId/items/:batchItemId/retry", s.retryBatchItemHandler)
	}

	return r
}
