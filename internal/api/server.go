// Package api exposes the sync engine's two trigger paths over HTTP:
// a scheduler-driven bulk pass guarded by a shared secret, and an
// on-demand pass for one user (whose caller is authorized upstream).
package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Syncer is the engine surface the handlers drive.
type Syncer interface {
	SyncAll(ctx context.Context) (int, error)
	SyncAccount(ctx context.Context, userID string) (int, error)
}

// Server holds the handlers' dependencies.
type Server struct {
	syncer Syncer
	secret string
	log    zerolog.Logger
}

// NewServer creates a Server. secret is the shared value the bulk
// trigger's X-Sync-Secret header must match.
func NewServer(syncer Syncer, secret string, log zerolog.Logger) *Server {
	return &Server{syncer: syncer, secret: secret, log: log}
}

// SetupRouter wires every HTTP endpoint onto a gin engine.
func SetupRouter(s *Server) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	sync := r.Group("/api/sync")
	{
		sync.POST("/run", s.requireSharedSecret(), func(c *gin.Context) { s.handleBulkSync(c) })
		sync.POST("/account", func(c *gin.Context) { s.handleAccountSync(c) })
	}

	return r
}
