// Package chat orchestrates a personalization turn: memory lookup, prompt
// assembly, model invocation, and memory writeback.
package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/lunalab/luna/ai/llm"
	"github.com/lunalab/luna/ai/memory"
	"github.com/lunalab/luna/ai/prompt"
)

// defaultSystemPrompt is used when a request carries no persona settings.
const defaultSystemPrompt = "당신은 도움이 되는 AI 친구 루나입니다."

// Request is one chat turn.
type Request struct {
	Messages       []memory.Message
	Model          string
	Temperature    float32
	MaxTokens      int
	Persona        *prompt.Persona
	ConversationID string
	UserID         string
}

// Response is the generated turn plus memory bookkeeping outcome.
type Response struct {
	Content        string
	Model          string
	Stats          *llm.CallStats
	ConversationID string
	MemoryUpdated  bool
}

// Service wires the model boundary to the memory and prompt subsystems.
type Service struct {
	llm     llm.Service
	memory  *memory.Manager
	builder *prompt.Builder
}

// NewService creates a chat service. llmService may be nil when the server
// runs without model credentials; only GenerateResponse requires it.
func NewService(llmService llm.Service, manager *memory.Manager, builder *prompt.Builder) *Service {
	return &Service{
		llm:     llmService,
		memory:  manager,
		builder: builder,
	}
}

// GenerateResponse runs a full chat turn. Memory is written back only after
// the model call succeeds; a writeback failure is reported through
// MemoryUpdated, never as a turn failure.
func (s *Service) GenerateResponse(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	var userMemory *memory.ConversationMemory
	if req.UserID != "" {
		userMemory = s.memory.GetUserMemory(req.UserID)
	}

	conversationContext := s.prepareConversationContext(req, userMemory)
	systemPrompt := s.systemPrompt(req, userMemory, conversationContext)
	messages := assembleModelMessages(systemPrompt, req.Messages)

	var opts *llm.CallOptions
	if req.Temperature > 0 || req.MaxTokens > 0 {
		opts = &llm.CallOptions{Temperature: req.Temperature, MaxTokens: req.MaxTokens}
	}

	content, stats, err := s.llm.Chat(ctx, messages, opts)
	if err != nil {
		slog.Error("chat turn failed",
			"user_id", req.UserID,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return nil, err
	}

	memoryUpdated := s.updateMemory(req, content, userMemory)

	slog.Info("chat turn completed",
		"user_id", req.UserID,
		"model", req.Model,
		"duration_ms", time.Since(start).Milliseconds(),
		"memory_updated", memoryUpdated,
	)

	return &Response{
		Content:        content,
		Model:          req.Model,
		Stats:          stats,
		ConversationID: req.ConversationID,
		MemoryUpdated:  memoryUpdated,
	}, nil
}

// prepareConversationContext merges the stored context with the incoming
// turns and persists the merge. Without a user memory or conversation id,
// the request messages stand alone.
func (s *Service) prepareConversationContext(req *Request, userMemory *memory.ConversationMemory) []memory.Message {
	if userMemory == nil || req.ConversationID == "" {
		return req.Messages
	}
	existing := userMemory.GetConversationContext(req.ConversationID)
	all := make([]memory.Message, 0, len(existing)+len(req.Messages))
	all = append(all, existing...)
	all = append(all, req.Messages...)
	userMemory.UpdateConversationContext(req.ConversationID, all)
	return all
}

func (s *Service) systemPrompt(req *Request, userMemory *memory.ConversationMemory, conversationContext []memory.Message) string {
	if req.Persona != nil {
		return s.builder.CreatePersonalizedSystemPrompt(*req.Persona, userMemory, conversationContext)
	}
	return defaultSystemPrompt
}

// assembleModelMessages builds the wire message list: system prompt first,
// then the request turns with system-role entries dropped.
func assembleModelMessages(systemPrompt string, messages []memory.Message) []llm.Message {
	out := make([]llm.Message, 0, len(messages)+1)
	out = append(out, llm.SystemPrompt(systemPrompt))
	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}
		out = append(out, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	return out
}

// updateMemory records the finished turn. Failures here must not fail the
// turn; the outcome is reported to the caller instead.
func (s *Service) updateMemory(req *Request, responseContent string, userMemory *memory.ConversationMemory) bool {
	if userMemory == nil {
		return false
	}

	for _, msg := range req.Messages {
		if msg.Role != "user" {
			continue
		}
		userMemory.AddShortTermMemory(msg, EvaluateImportance(msg.Content))
	}

	userMemory.AddShortTermMemory(memory.Message{
		Role:      "assistant",
		Content:   responseContent,
		Timestamp: time.Now(),
	}, 2)

	if info := ExtractImportantInfo(req.Messages); info != "" {
		userMemory.AddLongTermMemory(info, 7, memory.TypeConversation, nil)
	}

	slog.Debug("memory updated after turn", "user_id", req.UserID)
	return true
}
