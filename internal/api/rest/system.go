package rest

import (
	"context"
	"net/http"

	"github.com/KevinKickass/eposio/internal/epos/input"
	"github.com/gin-gonic/gin"
)

// GET /api/v1/system/status
func (s *Server) getSystemStatus(c *gin.Context) {
	status := s.lm.GetCurrentStatus()
	c.JSON(http.StatusOK, status)
}

// POST /api/v1/system/shutdown
func (s *Server) shutdown(c *gin.Context) {
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Shutdown initiated",
	})

	// Request context endet mit der Antwort
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.lm.Config().Server.ShutdownTimeout)
		defer cancel()
		s.lm.Shutdown(ctx)
	}()
}

// GET /api/v1/errors
func (s *Server) listErrorCodes(c *gin.Context) {
	messages := input.ErrorMessages()

	codes := make([]gin.H, 0, len(messages))
	for code, message := range messages {
		codes = append(codes, gin.H{
			"code":    code,
			"message": message,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"errors": codes,
		"count":  len(codes),
	})
}
