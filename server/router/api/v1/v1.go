// Package v1 exposes the chat, prompt and memory HTTP surface.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/semaphore"

	"github.com/lunalab/luna/ai/chat"
	"github.com/lunalab/luna/ai/memory"
	"github.com/lunalab/luna/ai/metrics"
	"github.com/lunalab/luna/internal/profile"
)

type APIV1Service struct {
	Profile *profile.Profile
	Memory  *memory.Manager
	Chat    *chat.Service
	Metrics *metrics.PrometheusExporter

	llmEnabled    bool
	chatSemaphore *semaphore.Weighted
}

func NewAPIV1Service(instanceProfile *profile.Profile, manager *memory.Manager, chatService *chat.Service, exporter *metrics.PrometheusExporter) *APIV1Service {
	return &APIV1Service{
		Profile:       instanceProfile,
		Memory:        manager,
		Chat:          chatService,
		Metrics:       exporter,
		llmEnabled:    instanceProfile.IsLLMEnabled(),
		chatSemaphore: semaphore.NewWeighted(int64(instanceProfile.MaxConcurrentRequests)),
	}
}

// Register attaches all routes to the echo instance.
func (s *APIV1Service) Register(echoServer *echo.Echo) {
	echoServer.POST("/v1/chat/completions", s.ChatCompletion)

	apiGroup := echoServer.Group("/api/v1")
	apiGroup.POST("/prompt", s.GeneratePrompt)
	apiGroup.POST("/memory", s.SaveMemory)
	apiGroup.GET("/context", s.GetContext)
	apiGroup.GET("/stats", s.GetStats)
	apiGroup.POST("/memories/cleanup", s.CleanupMemories)

	if s.Metrics != nil {
		echoServer.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))
	}
}

// GetStats reports aggregate memory counters.
func (s *APIV1Service) GetStats(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":       "success",
		"memory_stats": s.Memory.Stats(),
		"service":      "luna",
	})
}

// CleanupMemories prunes expired long-term memories for every user.
func (s *APIV1Service) CleanupMemories(c echo.Context) error {
	s.Memory.CleanupAllMemories()
	if s.Metrics != nil {
		s.Metrics.RecordMemoryOp("cleanup")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "success",
		"message": "메모리 정리가 완료되었습니다.",
	})
}
