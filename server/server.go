// Package server owns the echo HTTP server and its lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/lunalab/luna/internal/profile"
	apiv1 "github.com/lunalab/luna/server/router/api/v1"
)

type Server struct {
	e *echo.Echo

	Profile *profile.Profile
	apiV1   *apiv1.APIV1Service
}

// NewServer wires middleware and routes. The rate limiter and the chat
// concurrency semaphore (inside apiV1) together bound load per the
// configured request ceiling.
func NewServer(_ context.Context, instanceProfile *profile.Profile, apiV1Service *apiv1.APIV1Service) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(requestLogger())
	e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(instanceProfile.MaxConcurrentRequests),
			Burst:     instanceProfile.MaxConcurrentRequests * 2,
			ExpiresIn: 3 * time.Minute,
		}),
	}))

	s := &Server{
		e:       e,
		Profile: instanceProfile,
		apiV1:   apiV1Service,
	}

	e.GET("/healthz", s.healthz)
	apiV1Service.Register(e)

	return s, nil
}

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "luna",
		"version": s.Profile.Version,
	})
}

// Start begins serving in the background; startup failures other than a
// clean close are logged, not returned.
func (s *Server) Start(_ context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	go func() {
		if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server stopped unexpectedly", "error", err)
		}
	}()
	return nil
}

// Shutdown drains in-flight requests with a deadline.
func (s *Server) Shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	slog.Info("server shutdown complete")
}

// requestLogger tags every request with a short id and logs its outcome.
func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := uuid.NewString()[:8]
			c.Set("request_id", requestID)
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			slog.Info("http request",
				"request_id", requestID,
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return err
		}
	}
}
