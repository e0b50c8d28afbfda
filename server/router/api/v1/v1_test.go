package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunalab/luna/ai/chat"
	"github.com/lunalab/luna/ai/llm"
	"github.com/lunalab/luna/ai/memory"
	"github.com/lunalab/luna/ai/prompt"
	"github.com/lunalab/luna/internal/profile"
)

type stubLLM struct {
	content string
	err     error
}

func (s *stubLLM) Chat(_ context.Context, _ []llm.Message, _ *llm.CallOptions) (string, *llm.CallStats, error) {
	if s.err != nil {
		return "", nil, s.err
	}
	return s.content, &llm.CallStats{PromptTokens: 12, CompletionTokens: 8, TotalTokens: 20}, nil
}

func (s *stubLLM) Warmup(_ context.Context) {}

func newTestService(t *testing.T, llmService llm.Service) *APIV1Service {
	t.Helper()
	instanceProfile := &profile.Profile{
		MaxConcurrentRequests: 4,
		MaxContextMessages:    6,
	}
	if llmService != nil {
		instanceProfile.LLMAPIKey = "test-key"
	}
	manager := memory.NewManager(memory.Config{})
	chatService := chat.NewService(llmService, manager, prompt.NewBuilder())
	return NewAPIV1Service(instanceProfile, manager, chatService, nil)
}

func newJSONContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	return httpErr.Code
}

func TestUserIDFromHeader(t *testing.T) {
	c, _ := newJSONContext(http.MethodGet, "/", "")
	c.Request().Header.Set("User-ID", "user-7")
	assert.Equal(t, "user-7", userIDFromRequest(c))
}

func TestUserIDFromJWTSubject(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-42"}).
		SignedString([]byte("irrelevant"))
	require.NoError(t, err)

	c, _ := newJSONContext(http.MethodGet, "/", "")
	c.Request().Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	assert.Equal(t, "user-42", userIDFromRequest(c))
}

func TestUserIDFromOpaqueToken(t *testing.T) {
	c, _ := newJSONContext(http.MethodGet, "/", "")
	c.Request().Header.Set(echo.HeaderAuthorization, "Bearer opaque-token-value")
	assert.Equal(t, "opaque-t", userIDFromRequest(c))
}

func TestUserIDMissing(t *testing.T) {
	c, _ := newJSONContext(http.MethodGet, "/", "")
	assert.Equal(t, "", userIDFromRequest(c))
}

func TestSaveMemoryShortTermOnly(t *testing.T) {
	s := newTestService(t, nil)
	c, rec := newJSONContext(http.MethodPost, "/api/v1/memory",
		`{"userId":"user-1","userMessage":"안녕","assistantMessage":"안녕! 반가워"}`)

	require.NoError(t, s.SaveMemory(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SaveMemoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "short_term", resp.MemoryID)
	assert.True(t, resp.Stored)
	assert.Equal(t, 3, resp.Importance)

	shortTerm, longTerm := s.Memory.GetUserMemory("user-1").Counts()
	assert.Equal(t, 2, shortTerm)
	assert.Equal(t, 0, longTerm)
}

func TestSaveMemoryPromotesImportant(t *testing.T) {
	s := newTestService(t, nil)
	c, rec := newJSONContext(http.MethodPost, "/api/v1/memory",
		`{"userId":"user-1","userMessage":"내 생일은 3월 5일이야","assistantMessage":"기억할게!","importance":8}`)

	require.NoError(t, s.SaveMemory(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SaveMemoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEqual(t, "short_term", resp.MemoryID)
	assert.NotEmpty(t, resp.MemoryID)

	memories := s.Memory.GetUserMemory("user-1").GetRelevantMemories("", 5)
	require.Len(t, memories, 1)
	assert.Equal(t, "사용자: 내 생일은 3월 5일이야\nAI: 기억할게!", memories[0])
}

func TestSaveMemoryExtendsContext(t *testing.T) {
	s := newTestService(t, nil)

	for _, body := range []string{
		`{"userId":"user-1","conversationId":"conv-1","userMessage":"첫 질문","assistantMessage":"첫 답변"}`,
		`{"userId":"user-1","conversationId":"conv-1","userMessage":"둘째 질문","assistantMessage":"둘째 답변"}`,
	} {
		c, rec := newJSONContext(http.MethodPost, "/api/v1/memory", body)
		require.NoError(t, s.SaveMemory(c))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	context := s.Memory.GetUserMemory("user-1").GetConversationContext("conv-1")
	require.Len(t, context, 4)
	assert.Equal(t, "첫 질문", context[0].Content)
	assert.Equal(t, "둘째 답변", context[3].Content)
}

func TestSaveMemoryRejectsMissingUser(t *testing.T) {
	s := newTestService(t, nil)
	c, _ := newJSONContext(http.MethodPost, "/api/v1/memory",
		`{"userMessage":"안녕","assistantMessage":"안녕!"}`)

	err := s.SaveMemory(c)
	assert.Equal(t, http.StatusBadRequest, httpCode(t, err))
}

func TestSaveMemoryRejectsImportanceOutOfRange(t *testing.T) {
	s := newTestService(t, nil)
	c, _ := newJSONContext(http.MethodPost, "/api/v1/memory",
		`{"userId":"user-1","userMessage":"안녕","assistantMessage":"안녕!","importance":11}`)

	err := s.SaveMemory(c)
	assert.Equal(t, http.StatusBadRequest, httpCode(t, err))
}

func TestGetContextByConversation(t *testing.T) {
	s := newTestService(t, nil)
	userMemory := s.Memory.GetUserMemory("user-1")
	userMemory.UpdateConversationContext("conv-1", []memory.Message{
		{Role: "user", Content: "하나"},
		{Role: "assistant", Content: "둘"},
		{Role: "user", Content: "셋"},
	})

	c, rec := newJSONContext(http.MethodGet, "/api/v1/context?userId=user-1&conversationId=conv-1&limit=2", "")
	require.NoError(t, s.GetContext(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ContextResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Context, 2)
	assert.Equal(t, "둘", resp.Context[0].Content)
	assert.Equal(t, "셋", resp.Context[1].Content)
	assert.Equal(t, 3, resp.ContextLength)
	assert.Equal(t, "저장된 중요한 기억이 없습니다.", resp.MemorySummary)
}

func TestGetContextFallsBackToShortTerm(t *testing.T) {
	s := newTestService(t, nil)
	userMemory := s.Memory.GetUserMemory("user-1")
	userMemory.AddShortTermMemory(memory.Message{Role: "user", Content: "최근 대화"}, 2)

	c, rec := newJSONContext(http.MethodGet, "/api/v1/context?userId=user-1", "")
	require.NoError(t, s.GetContext(c))

	var resp ContextResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Context, 1)
	assert.Equal(t, "최근 대화", resp.Context[0].Content)
	assert.Equal(t, 1, resp.ContextLength)
}

func TestGetContextRequiresUser(t *testing.T) {
	s := newTestService(t, nil)
	c, _ := newJSONContext(http.MethodGet, "/api/v1/context", "")

	err := s.GetContext(c)
	assert.Equal(t, http.StatusBadRequest, httpCode(t, err))
}

func TestGeneratePrompt(t *testing.T) {
	s := newTestService(t, nil)
	userMemory := s.Memory.GetUserMemory("user-1")
	userMemory.UpdateConversationContext("conv-1", []memory.Message{
		{Role: "user", Content: "어제 이야기"},
		{Role: "assistant", Content: "그랬지"},
	})

	c, rec := newJSONContext(http.MethodPost, "/api/v1/prompt",
		`{"userId":"user-1","conversationId":"conv-1","message":"오늘은 뭐하지?","aiSettings":{"personalityType":"친근함","speechStyle":"반말","emojiUsage":3,"empathyLevel":3}}`)
	require.NoError(t, s.GeneratePrompt(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp GeneratePromptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.SystemPrompt, "루나")
	require.NotEmpty(t, resp.Messages)
	assert.Equal(t, "system", resp.Messages[0].Role)
	last := resp.Messages[len(resp.Messages)-1]
	assert.Equal(t, "user", last.Role)
	assert.Equal(t, "오늘은 뭐하지?", last.Content)
	assert.Equal(t, 2, resp.ContextLength)
	assert.True(t, resp.MemoryIncluded)
}

func TestGeneratePromptDefaultsPersona(t *testing.T) {
	s := newTestService(t, nil)
	c, rec := newJSONContext(http.MethodPost, "/api/v1/prompt",
		`{"userId":"user-1","message":"안녕"}`)

	require.NoError(t, s.GeneratePrompt(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp GeneratePromptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.SystemPrompt, "반말")
}

func TestGeneratePromptUsesConfiguredContextWindow(t *testing.T) {
	instanceProfile := &profile.Profile{
		MaxConcurrentRequests: 4,
		MaxContextMessages:    2,
	}
	manager := memory.NewManager(memory.Config{})
	chatService := chat.NewService(nil, manager, prompt.NewBuilder())
	s := NewAPIV1Service(instanceProfile, manager, chatService, nil)

	manager.GetUserMemory("user-1").UpdateConversationContext("conv-1", []memory.Message{
		{Role: "user", Content: "하나"},
		{Role: "assistant", Content: "둘"},
		{Role: "user", Content: "셋"},
		{Role: "assistant", Content: "넷"},
		{Role: "user", Content: "다섯"},
	})

	c, rec := newJSONContext(http.MethodPost, "/api/v1/prompt",
		`{"userId":"user-1","conversationId":"conv-1","message":"이어서 이야기하자"}`)
	require.NoError(t, s.GeneratePrompt(c))

	var resp GeneratePromptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.ContextLength)
	require.Len(t, resp.Messages, 4)
	assert.Equal(t, "넷", resp.Messages[1].Content)
	assert.Equal(t, "다섯", resp.Messages[2].Content)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGeneratePromptRejectsInvalidPersona(t *testing.T) {
	s := newTestService(t, nil)
	c, _ := newJSONContext(http.MethodPost, "/api/v1/prompt",
		`{"userId":"user-1","message":"안녕","aiSettings":{"personalityType":"친근함","speechStyle":"반말","emojiUsage":99,"empathyLevel":3}}`)

	err := s.GeneratePrompt(c)
	assert.Equal(t, http.StatusBadRequest, httpCode(t, err))
}

func TestChatCompletion(t *testing.T) {
	s := newTestService(t, &stubLLM{content: "반가워! 오늘 하루 어땠어?"})
	c, rec := newJSONContext(http.MethodPost, "/v1/chat/completions",
		`{"messages":[{"role":"user","content":"안녕 루나"}],"model":"gpt-4o","user_id":"user-1"}`)

	require.NoError(t, s.ChatCompletion(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatCompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "assistant", resp.Choices[0].Message.Role)
	assert.Equal(t, "반가워! 오늘 하루 어땠어?", resp.Choices[0].Message.Content)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	assert.Equal(t, "gpt-4o", resp.Model)
	assert.NotEmpty(t, resp.ConversationID)
	assert.True(t, resp.MemoryUpdated)

	shortTerm, _ := s.Memory.GetUserMemory("user-1").Counts()
	assert.Equal(t, 2, shortTerm)
}

func TestChatCompletionRejectsEmptyMessages(t *testing.T) {
	s := newTestService(t, &stubLLM{content: "ok"})
	c, _ := newJSONContext(http.MethodPost, "/v1/chat/completions", `{"messages":[]}`)

	err := s.ChatCompletion(c)
	assert.Equal(t, http.StatusBadRequest, httpCode(t, err))
}

func TestChatCompletionRejectsInvalidRole(t *testing.T) {
	s := newTestService(t, &stubLLM{content: "ok"})
	c, _ := newJSONContext(http.MethodPost, "/v1/chat/completions",
		`{"messages":[{"role":"tool","content":"안녕"}]}`)

	err := s.ChatCompletion(c)
	assert.Equal(t, http.StatusBadRequest, httpCode(t, err))
}

func TestChatCompletionWithoutProvider(t *testing.T) {
	s := newTestService(t, nil)
	c, _ := newJSONContext(http.MethodPost, "/v1/chat/completions",
		`{"messages":[{"role":"user","content":"안녕"}]}`)

	err := s.ChatCompletion(c)
	assert.Equal(t, http.StatusServiceUnavailable, httpCode(t, err))
}

func TestChatCompletionModelFailure(t *testing.T) {
	s := newTestService(t, &stubLLM{err: assert.AnError})
	c, _ := newJSONContext(http.MethodPost, "/v1/chat/completions",
		`{"messages":[{"role":"user","content":"안녕"}],"user_id":"user-1"}`)

	err := s.ChatCompletion(c)
	assert.Equal(t, http.StatusBadGateway, httpCode(t, err))

	shortTerm, longTerm := s.Memory.GetUserMemory("user-1").Counts()
	assert.Equal(t, 0, shortTerm)
	assert.Equal(t, 0, longTerm)
}

func TestChatCompletionKeepsConversationID(t *testing.T) {
	s := newTestService(t, &stubLLM{content: "응답"})
	c, rec := newJSONContext(http.MethodPost, "/v1/chat/completions",
		`{"messages":[{"role":"user","content":"안녕"}],"conversation_id":"conv-9","user_id":"user-1"}`)

	require.NoError(t, s.ChatCompletion(c))

	var resp ChatCompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "conv-9", resp.ConversationID)

	context := s.Memory.GetUserMemory("user-1").GetConversationContext("conv-9")
	assert.Len(t, context, 1)
}
