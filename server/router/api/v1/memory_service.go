package v1

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lunalab/luna/ai/memory"
)

type SaveMemoryRequest struct {
	UserID           string `json:"userId"`
	ConversationID   string `json:"conversationId"`
	UserMessage      string `json:"userMessage"`
	AssistantMessage string `json:"assistantMessage"`
	Importance       int    `json:"importance"`
	MemoryType       string `json:"memoryType"`
}

type SaveMemoryResponse struct {
	MemoryID   string `json:"memoryId"`
	Stored     bool   `json:"stored"`
	MemoryType string `json:"memoryType"`
	Importance int    `json:"importance"`
}

type ContextResponse struct {
	Context          []memory.ItemRecord `json:"context"`
	MemorySummary    string              `json:"memorySummary"`
	RelevantMemories []string            `json:"relevantMemories"`
	ContextLength    int                 `json:"contextLength"`
}

// SaveMemory records one finished exchange. Both turns land in short-term
// memory; when importance reaches 7 the combined exchange is promoted to
// long-term memory, and the conversation context is extended when a
// conversation id is supplied.
func (s *APIV1Service) SaveMemory(c echo.Context) error {
	request := &SaveMemoryRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed memory request").SetInternal(err)
	}
	if request.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "userId is required")
	}
	if request.Importance == 0 {
		request.Importance = 3
	}
	if request.Importance < 1 || request.Importance > 10 {
		return echo.NewHTTPError(http.StatusBadRequest, "importance must be between 1 and 10")
	}
	if request.MemoryType == "" {
		request.MemoryType = memory.TypeConversation
	}

	userMemory := s.Memory.GetUserMemory(request.UserID)
	now := time.Now()

	userMsg := memory.Message{Role: "user", Content: request.UserMessage, Timestamp: now}
	assistantMsg := memory.Message{Role: "assistant", Content: request.AssistantMessage, Timestamp: now}
	userMemory.AddShortTermMemory(userMsg, request.Importance)
	userMemory.AddShortTermMemory(assistantMsg, request.Importance)

	memoryID := ""
	if request.Importance >= 7 {
		combined := fmt.Sprintf("사용자: %s\nAI: %s", request.UserMessage, request.AssistantMessage)
		memoryID = userMemory.AddLongTermMemory(combined, request.Importance, request.MemoryType, nil)
	}

	if request.ConversationID != "" {
		existing := userMemory.GetConversationContext(request.ConversationID)
		userMemory.UpdateConversationContext(request.ConversationID, append(existing, userMsg, assistantMsg))
	}

	if s.Metrics != nil {
		s.Metrics.RecordMemoryOp("save")
		shortTerm, longTerm := userMemory.Counts()
		s.Metrics.SetMemoryItems("short_term", shortTerm)
		s.Metrics.SetMemoryItems("long_term", longTerm)
	}

	if memoryID == "" {
		memoryID = "short_term"
	}
	return c.JSON(http.StatusOK, &SaveMemoryResponse{
		MemoryID:   memoryID,
		Stored:     true,
		MemoryType: request.MemoryType,
		Importance: request.Importance,
	})
}

// GetContext returns recent conversation messages plus a memory digest. With
// a conversation id the named context is used; otherwise the short-term
// buffer stands in for it.
func (s *APIV1Service) GetContext(c echo.Context) error {
	userID := c.QueryParam("userId")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "userId is required")
	}
	conversationID := c.QueryParam("conversationId")

	limit := 6
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer").SetInternal(err)
		}
		limit = parsed
	}
	if limit < 1 {
		limit = 1
	} else if limit > 50 {
		limit = 50
	}

	userMemory := s.Memory.GetUserMemory(userID)

	var records []memory.ItemRecord
	if conversationID != "" {
		for _, msg := range userMemory.GetConversationContext(conversationID) {
			rec := memory.ItemRecord{
				Content:    msg.Content,
				MemoryType: memory.TypeConversation,
				Metadata:   map[string]string{"role": msg.Role},
			}
			if !msg.Timestamp.IsZero() {
				rec.CreatedAt = msg.Timestamp.Format(time.RFC3339Nano)
			}
			records = append(records, rec)
		}
	} else {
		records = userMemory.ShortTermRecords()
	}

	contextLength := len(records)
	if len(records) > limit {
		records = records[len(records)-limit:]
	}
	if records == nil {
		records = []memory.ItemRecord{}
	}

	if s.Metrics != nil {
		s.Metrics.RecordMemoryOp("context")
	}

	return c.JSON(http.StatusOK, &ContextResponse{
		Context:          records,
		MemorySummary:    userMemory.MemorySummary(),
		RelevantMemories: userMemory.GetRelevantMemories("", 5),
		ContextLength:    contextLength,
	})
}
