// Package status exposes liveness and a runtime snapshot over HTTP.
package status

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roombot/internal/bot"
)

// NewServer builds the operational HTTP server.
func NewServer(addr string, b *bot.Bot, logger *zerolog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, b.Status())
	})

	if logger != nil {
		logger.Info().Str("addr", addr).Msg("status server configured")
	}

	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
