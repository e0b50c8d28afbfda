package v1

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v4"

	"github.com/lunalab/luna/ai/chat"
	"github.com/lunalab/luna/ai/llm"
	"github.com/lunalab/luna/ai/memory"
	"github.com/lunalab/luna/ai/prompt"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionRequest struct {
	Messages       []ChatMessage   `json:"messages"`
	Model          string          `json:"model"`
	Temperature    float32         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	AISettings     *prompt.Persona `json:"aiSettings"`
	ConversationID string          `json:"conversation_id"`
	UserID         string          `json:"user_id"`
}

type ChatChoice struct {
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
	Index        int         `json:"index"`
}

type ChatCompletionResponse struct {
	Choices        []ChatChoice   `json:"choices"`
	Model          string         `json:"model"`
	Usage          *llm.CallStats `json:"usage,omitempty"`
	ConversationID string         `json:"conversation_id"`
	MemoryUpdated  bool           `json:"memory_updated"`
}

func validRole(role string) bool {
	return role == "user" || role == "assistant" || role == "system"
}

// ChatCompletion runs a full personalized chat turn. Concurrency is bounded
// by the chat semaphore; requests beyond the ceiling fail fast with 429
// rather than queueing.
func (s *APIV1Service) ChatCompletion(c echo.Context) error {
	request := &ChatCompletionRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed chat request").SetInternal(err)
	}
	if len(request.Messages) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "messages must not be empty")
	}
	for _, msg := range request.Messages {
		if !validRole(msg.Role) {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid message role: "+msg.Role)
		}
	}
	if request.AISettings != nil {
		if err := request.AISettings.Validate(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	if !s.llmEnabled {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "LLM provider is not configured")
	}

	if !s.chatSemaphore.TryAcquire(1) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many concurrent chat requests")
	}
	defer s.chatSemaphore.Release(1)

	userID := request.UserID
	if userID == "" {
		userID = userIDFromRequest(c)
	}
	conversationID := request.ConversationID
	if conversationID == "" {
		conversationID = shortuuid.New()
	}

	messages := make([]memory.Message, len(request.Messages))
	for i, msg := range request.Messages {
		messages[i] = memory.Message{Role: msg.Role, Content: msg.Content}
	}

	start := time.Now()
	response, err := s.Chat.GenerateResponse(c.Request().Context(), &chat.Request{
		Messages:       messages,
		Model:          request.Model,
		Temperature:    request.Temperature,
		MaxTokens:      request.MaxTokens,
		Persona:        request.AISettings,
		ConversationID: conversationID,
		UserID:         userID,
	})
	if s.Metrics != nil {
		s.Metrics.RecordChatRequest(request.Model, time.Since(start), err == nil)
	}
	if err != nil {
		slog.Error("chat completion failed", "user_id", userID, "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, "LLM 호출에 실패했습니다").SetInternal(err)
	}

	if s.Metrics != nil && response.Stats != nil {
		s.Metrics.RecordLLMTokens(request.Model, "prompt", response.Stats.PromptTokens)
		s.Metrics.RecordLLMTokens(request.Model, "completion", response.Stats.CompletionTokens)
	}

	return c.JSON(http.StatusOK, &ChatCompletionResponse{
		Choices: []ChatChoice{{
			Message:      ChatMessage{Role: "assistant", Content: response.Content},
			FinishReason: "stop",
			Index:        0,
		}},
		Model:          response.Model,
		Usage:          response.Stats,
		ConversationID: response.ConversationID,
		MemoryUpdated:  response.MemoryUpdated,
	})
}
