// Package server implements the HTTP ingest surface: an authenticated
// upload endpoint that feeds recordings into the queue, a health check,
// and static serving of published media.
package server

import (
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/alkime/echopost/internal/config"
	"github.com/alkime/echopost/internal/queue"
)

// maxUploadBytes bounds a single recording upload.
const maxUploadBytes = 64 << 20

// Server represents the HTTP server
type Server struct {
	config *config.Config
	queue  *queue.Queue
	logger *slog.Logger
	router *gin.Engine
}

// New creates a new Server instance over an opened queue
func New(cfg *config.Config, q *queue.Queue, logger *slog.Logger) *Server {
	// Set Gin mode based on environment
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create router
	router := gin.Default()

	// Configure proxy trust for production (Fly.io)
	if cfg.Env == config.EnvProduction {
		router.TrustedPlatform = gin.PlatformFlyIO
		logger.Debug("Configured trusted platform", "platform", "fly.io")
	}
	// Development: no reverse proxy, uses direct client IP

	server := &Server{
		config: cfg,
		queue:  q,
		logger: logger,
		router: router,
	}

	// Setup middleware and routes
	setupSecurityMiddleware(router, cfg, logger)
	server.setupRoutes()

	return server
}

// Router exposes the underlying engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the HTTP server
func Run(s *Server) error {
	s.logger.Info("Server listening", "port", s.config.Port)
	return s.router.Run(":" + s.config.Port)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.GET("/health", s.handleHealth)

	// Ingest API, gated behind the shared token
	api := s.router.Group("/api/v1")
	api.Use(s.requireIngestToken())
	api.POST("/recordings", s.handleUpload)

	// Published media artifacts (banner images, audio files)
	s.router.Use(static.Serve("/media", static.LocalFile(s.config.MediaDir, false)))
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "echopost",
	})
}

// handleUpload accepts one multipart recording and places it in the
// incoming queue directory. The response is 202: queued, not processed.
func (s *Server) handleUpload(c *gin.Context) {
	requestID := uuid.NewString()
	logger := s.logger.With("requestId", requestID)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	file, err := c.FormFile("file")
	if err != nil {
		logger.Warn("Upload rejected", "reason", "missing file field", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "multipart field 'file' is required",
			"requestId": requestID,
		})
		return
	}

	name := sanitizeFilename(file.Filename)
	if !queue.IsSupportedAudio(name) {
		logger.Warn("Upload rejected", "reason", "unsupported extension", "filename", name)
		c.JSON(http.StatusUnsupportedMediaType, gin.H{
			"error":     fmt.Sprintf("unsupported audio format: %s", filepath.Ext(name)),
			"requestId": requestID,
		})
		return
	}

	queued, err := s.receive(file, name)
	if err != nil {
		logger.Error("Upload failed", "filename", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "failed to queue recording",
			"requestId": requestID,
		})
		return
	}

	logger.Info("Recording queued", "item", queued, "bytes", file.Size)
	c.JSON(http.StatusAccepted, gin.H{
		"status":    "queued",
		"item":      queued,
		"requestId": requestID,
	})
}

// receive stages the upload in a temp file under the queue root, then
// renames it into incoming. The watcher only ever observes complete
// files this way; a name collision gets a numeric suffix rather than
// clobbering a recording already queued.
func (s *Server) receive(file *multipart.FileHeader, name string) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(s.queue.Root(), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create upload staging file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to finish upload: %w", err)
	}

	queued := s.availableName(name)
	if err := os.Rename(tmpPath, filepath.Join(s.queue.Dir(queue.StateIncoming), queued)); err != nil {
		return "", fmt.Errorf("failed to move upload into queue: %w", err)
	}

	return queued, nil
}

// availableName appends -2, -3, ... before the extension until the name
// is free in the incoming directory.
func (s *Server) availableName(name string) string {
	dir := s.queue.Dir(queue.StateIncoming)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := name
	for n := 2; ; n++ {
		if _, err := os.Stat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d%s", stem, n, ext)
	}
}

// sanitizeFilename reduces a client-supplied filename to a bare name so
// an upload cannot address anything outside the incoming directory.
func sanitizeFilename(name string) string {
	name = filepath.Base(filepath.Clean(name))
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "/" {
		return "recording"
	}
	return name
}
