package api

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"
)

// sharedSecretHeader carries the scheduler's pre-agreed token.
const sharedSecretHeader = "X-Sync-Secret"

// requireSharedSecret rejects the request with 401 before any work is
// done unless the shared-secret header matches the configured value.
func (s *Server) requireSharedSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		supplied := c.GetHeader(sharedSecretHeader)

		if supplied == "" || subtle.ConstantTimeCompare([]byte(supplied), []byte(s.secret)) != 1 {
			s.log.Warn().Str("remote", c.ClientIP()).Msg("bulk sync trigger rejected")
			c.JSON(401, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		c.Next()
	}
}
