package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"

	"github.com/alkime/echopost/internal/config"
)

// tokenHeader carries the shared ingest secret on upload requests.
const tokenHeader = "X-Echopost-Token"

// setupSecurityMiddleware configures and applies security middleware to the router
func setupSecurityMiddleware(router *gin.Engine, cfg *config.Config, logger *slog.Logger) {
	// Configure HSTS for production only
	stsSeconds := int64(0)
	if cfg.Env == config.EnvProduction {
		stsSeconds = int64(cfg.HSTSMaxAge)
	}

	// Create and apply security middleware
	secureMiddleware := secure.New(secure.Config{
		STSSeconds:            stsSeconds,
		STSIncludeSubdomains:  true,
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: config.BuildCSP(cfg.CSPMode),
	})
	router.Use(secureMiddleware)

	logger.Debug("Configured security middleware",
		"hsts_enabled", cfg.Env == config.EnvProduction,
		"csp_mode", cfg.CSPMode,
	)
}

// requireIngestToken gates the upload API behind the shared secret. The
// comparison is constant-time so the token cannot be probed byte by
// byte. An unset token disables ingest entirely rather than leaving the
// endpoint open.
func (s *Server) requireIngestToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.config.IngestToken == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "ingest is not configured on this server",
			})
			return
		}

		provided := c.GetHeader(tokenHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.config.IngestToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid ingest token",
			})
			return
		}

		c.Next()
	}
}
