package chat

import (
	"log/slog"

	"github.com/lunalab/luna/ai/memory"
	"github.com/lunalab/luna/ai/prompt"
)

// PromptRequest asks for a ready-to-send message list without invoking the
// model, so callers can run the completion themselves.
type PromptRequest struct {
	UserID             string
	ConversationID     string
	Message            string
	Persona            prompt.Persona
	MaxContextMessages int // default 6
}

// RoleContent is one wire-format message.
type RoleContent struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PromptResult is the assembled prompt: the system prompt, the full message
// array (system + bounded context + current user message), and the
// memories relevant to the current message.
type PromptResult struct {
	SystemPrompt     string
	Messages         []RoleContent
	ContextLength    int
	MemoryIncluded   bool
	RelevantMemories []string
}

// BuildPrompt assembles a personalized prompt for the user's current
// message. The message array always starts with the system prompt and ends
// with the current user turn; between them sit at most MaxContextMessages
// non-system turns from the stored conversation context.
func (s *Service) BuildPrompt(req *PromptRequest) *PromptResult {
	maxContext := req.MaxContextMessages
	if maxContext <= 0 {
		maxContext = 6
	}

	userMemory := s.memory.GetUserMemory(req.UserID)

	var conversationContext []memory.Message
	if req.ConversationID != "" {
		conversationContext = userMemory.GetConversationContext(req.ConversationID)
	}

	systemPrompt := s.builder.CreatePersonalizedSystemPrompt(req.Persona, userMemory, conversationContext)
	relevantMemories := userMemory.GetRelevantMemories(req.Message, 3)

	messages := []RoleContent{{Role: "system", Content: systemPrompt}}
	if len(conversationContext) > 0 {
		recent := conversationContext
		if len(recent) > maxContext {
			recent = recent[len(recent)-maxContext:]
		}
		for _, msg := range recent {
			if msg.Role == "system" {
				continue
			}
			messages = append(messages, RoleContent{Role: msg.Role, Content: msg.Content})
		}
	}
	messages = append(messages, RoleContent{Role: "user", Content: req.Message})

	result := &PromptResult{
		SystemPrompt:     systemPrompt,
		Messages:         messages,
		ContextLength:    len(messages) - 2, // minus system and current user turn
		MemoryIncluded:   true,
		RelevantMemories: relevantMemories,
	}

	slog.Debug("prompt assembled",
		"user_id", req.UserID,
		"messages", len(messages),
		"context_length", result.ContextLength,
	)
	return result
}
