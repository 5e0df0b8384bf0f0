package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/elena/assistant/domain"
	"github.com/satriahrh/elena/assistant/internal/auth"
	"github.com/satriahrh/elena/assistant/internal/metrics"
	"github.com/satriahrh/elena/assistant/internal/websocket"
	"github.com/satriahrh/elena/assistant/usecase"
)

const claimsKey = "claims"

// Assistant is the part of the pipeline the monitor API exposes
type Assistant interface {
	Status() usecase.PipelineStatus
	SynthesizeToFile(ctx context.Context, text, path string) error
}

// RouteConfig contains monitor API settings
type RouteConfig struct {
	// ArchiveDir receives files written by the synthesize endpoint
	ArchiveDir string
	// Tokens protects every route except /health and /metrics. Nil disables auth.
	Tokens *auth.TokenService
}

// InitRoutes initializes all monitor API routes
func InitRoutes(e *echo.Echo, assistant Assistant, hub *websocket.Hub, m *metrics.Metrics, config RouteConfig, logger *zap.Logger) {
	e.Use(requestMetrics(m))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "elena-assistant",
		})
	})
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	authenticated := requireToken(config.Tokens, logger)

	// API v1 routes
	v1 := e.Group("/api/v1", authenticated)
	v1.GET("/status", func(c echo.Context) error {
		return c.JSON(http.StatusOK, StatusResponse{
			Pipeline:       assistant.Status(),
			MonitorClients: hub.ClientCount(),
		})
	})
	v1.POST("/synthesize", func(c echo.Context) error {
		return synthesize(c, assistant, config.ArchiveDir, logger)
	})

	// WebSocket event stream
	e.GET("/ws", func(c echo.Context) error {
		return websocket.HandleWebSocket(hub, c, logger)
	}, authenticated)
}

func synthesize(c echo.Context, assistant Assistant, archiveDir string, logger *zap.Logger) error {
	var req SynthesizeRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind synthesize request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if strings.TrimSpace(req.Text) == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Text is required",
		})
	}

	name, err := archiveFileName(req.File)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_file",
			Message: err.Error(),
		})
	}

	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		logger.Error("Failed to create archive directory", zap.String("dir", archiveDir), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Archive directory is not writable",
		})
	}

	path := filepath.Join(archiveDir, name)
	if err := assistant.SynthesizeToFile(c.Request().Context(), req.Text, path); err != nil {
		logger.Warn("Synthesis to file failed", zap.String("path", path), zap.Error(err))
		status, code := synthesisErrorStatus(err)
		return c.JSON(status, ErrorResponse{
			Error:   code,
			Message: err.Error(),
		})
	}

	logger.Info("Speech archived", zap.String("path", path))
	return c.JSON(http.StatusOK, SynthesizeResponse{Path: path})
}

// archiveFileName accepts a bare .wav file name, generating one when name is empty
func archiveFileName(name string) (string, error) {
	if name == "" {
		return uuid.NewString() + ".wav", nil
	}
	if name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", errors.New("file must be a plain file name")
	}
	if !strings.EqualFold(filepath.Ext(name), ".wav") {
		name += ".wav"
	}
	return name, nil
}

func synthesisErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, usecase.ErrSpeechUnavailable):
		return http.StatusServiceUnavailable, "speech_unavailable"
	case errors.Is(err, domain.ErrTTSConfig):
		return http.StatusInternalServerError, "tts_config"
	case errors.Is(err, domain.ErrTTSService):
		return http.StatusBadGateway, "tts_service"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// requireToken validates the bearer token. Browsers cannot set headers on WebSocket
// handshakes, so the token query parameter is accepted as well.
func requireToken(tokens *auth.TokenService, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if tokens == nil {
				return next(c)
			}

			var token string
			authHeader := c.Request().Header.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				token = strings.TrimPrefix(authHeader, "Bearer ")
			} else {
				token = c.QueryParam("token")
			}

			if token == "" {
				logger.Warn("Request rejected: missing token", zap.String("path", c.Path()))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "missing_token",
					Message: "JWT token is required in Authorization header",
				})
			}

			claims, err := tokens.ValidateToken(token)
			if err != nil {
				logger.Warn("Request rejected: invalid token", zap.String("path", c.Path()), zap.Error(err))
				if errors.Is(err, auth.ErrInvalidRole) {
					return c.JSON(http.StatusForbidden, ErrorResponse{
						Error:   "invalid_role",
						Message: "Only monitor tokens are allowed",
					})
				}
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "invalid_token",
					Message: "Invalid or expired JWT token",
				})
			}

			c.Set(claimsKey, claims)
			return next(c)
		}
	}
}

func requestMetrics(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			m.HTTPRequests.WithLabelValues(c.Request().Method, path, strconv.Itoa(status)).Inc()
			return err
		}
	}
}
