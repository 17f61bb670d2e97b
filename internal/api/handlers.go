package api

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/dispatchware/mailsync/internal/store"
)

// handleBulkSync runs the scheduled pass over every account and
// responds with the aggregate count of newly ingested messages.
// Per-account failures are logged server-side, not reported here.
func (s *Server) handleBulkSync(c *gin.Context) {
	ingested, err := s.syncer.SyncAll(c.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("bulk sync failed")
		c.JSON(500, gin.H{"error": "sync failed"})
		return
	}

	c.JSON(200, gin.H{"ingested": ingested})
}

type accountSyncRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// handleAccountSync runs the per-account algorithm for one user and
// surfaces that account's failure directly to the caller.
func (s *Server) handleAccountSync(c *gin.Context) {
	var req accountSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "user_id is required"})
		return
	}

	ingested, err := s.syncer.SyncAccount(c.Request.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			c.JSON(404, gin.H{"error": "no account for user"})
			return
		}
		s.log.Error().Err(err).Str("user_id", req.UserID).Msg("account sync failed")
		c.JSON(502, gin.H{"error": err.Error()})
		return
	}

	c.JSON(200, gin.H{"ingested": ingested})
}
