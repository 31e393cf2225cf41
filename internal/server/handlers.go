package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// healthHandler is the liveness probe
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"app":    s.config.AppName,
	})
}

// readyHandler checks every downstream dependency. File storage being down
// degrades audit copies but does not block batch intake, so it only reports.
func (s *Server) readyHandler(c *gin.Context) {
	dbErr := s.db.Health()
	cacheErr := s.cache.Ping(c.Request.Context())
	rabbitErr := s.rabbit.Health()
	filesErr := s.files.TestConnection()

	res := gin.H{
		"database":     dbErr == nil,
		"cache":        cacheErr == nil,
		"rabbit":       rabbitErr == nil,
		"file_service": filesErr == nil,
	}

	if dbErr != nil || rabbitErr != nil {
		c.JSON(http.StatusServiceUnavailable, res)
		return
	}

	c.JSON(http.StatusOK, res)
}
