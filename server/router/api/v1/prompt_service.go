package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lunalab/luna/ai/chat"
	"github.com/lunalab/luna/ai/prompt"
)

type GeneratePromptRequest struct {
	UserID             string         `json:"userId"`
	ConversationID     string         `json:"conversationId"`
	Message            string         `json:"message"`
	AISettings         prompt.Persona `json:"aiSettings"`
	MaxContextMessages int            `json:"maxContextMessages"`
}

type GeneratePromptResponse struct {
	SystemPrompt     string             `json:"systemPrompt"`
	Messages         []chat.RoleContent `json:"messages"`
	ContextLength    int                `json:"contextLength"`
	MemoryIncluded   bool               `json:"memoryIncluded"`
	RelevantMemories []string           `json:"relevantMemories"`
}

// GeneratePrompt assembles a ready-to-send personalized prompt without
// invoking the model, so callers can run the completion themselves. Persona
// fields left at their zero value fall back to the defaults before
// validation.
func (s *APIV1Service) GeneratePrompt(c echo.Context) error {
	request := &GeneratePromptRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed prompt request").SetInternal(err)
	}
	if request.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "userId is required")
	}
	if request.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	persona := normalizePersona(request.AISettings)
	if err := persona.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	maxContextMessages := request.MaxContextMessages
	if maxContextMessages <= 0 {
		maxContextMessages = s.Profile.MaxContextMessages
	}

	result := s.Chat.BuildPrompt(&chat.PromptRequest{
		UserID:             request.UserID,
		ConversationID:     request.ConversationID,
		Message:            request.Message,
		Persona:            persona,
		MaxContextMessages: maxContextMessages,
	})

	if s.Metrics != nil {
		s.Metrics.RecordMemoryOp("prompt")
	}

	return c.JSON(http.StatusOK, &GeneratePromptResponse{
		SystemPrompt:     result.SystemPrompt,
		Messages:         result.Messages,
		ContextLength:    result.ContextLength,
		MemoryIncluded:   result.MemoryIncluded,
		RelevantMemories: result.RelevantMemories,
	})
}

// normalizePersona fills omitted persona fields with the defaults.
func normalizePersona(p prompt.Persona) prompt.Persona {
	defaults := prompt.DefaultPersona()
	if p.PersonalityType == "" {
		p.PersonalityType = defaults.PersonalityType
	}
	if p.SpeechStyle == "" {
		p.SpeechStyle = defaults.SpeechStyle
	}
	if p.EmojiUsage == 0 {
		p.EmojiUsage = defaults.EmojiUsage
	}
	if p.EmpathyLevel == 0 {
		p.EmpathyLevel = defaults.EmpathyLevel
	}
	return p
}
