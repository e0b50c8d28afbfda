// Package prompt renders persona-driven Korean system prompts for the chat
// model. The builder combines four blocks in a fixed order: base persona
// instruction, user info, relevant memories, and recent conversation
// context. Optional blocks are silently omitted; rendering never fails.
package prompt

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/lunalab/luna/ai/memory"
)

// Speech registers.
const (
	SpeechCasual = "반말"
	SpeechFormal = "존댓말"
)

// Recognized personality tags.
const (
	PersonalityFriendly = "친근함"
	PersonalityCalm     = "차분함"
	PersonalityLively   = "활발함"
	PersonalityWarm     = "따뜻함"
)

var personalityInstructions = map[string]string{
	PersonalityFriendly: "매우 친근하고 편안한 톤으로, 마치 오랜 친구와 대화하듯이",
	PersonalityCalm:     "차분하고 안정적인 톤으로, 신중하게",
	PersonalityLively:   "밝고 에너지 넘치는 톤으로, 긍정적이고 활기차게",
	PersonalityWarm:     "따뜻하고 포근한 톤으로, 위로가 되도록",
}

var empathyInstructions = map[int]string{
	1: "기본적인 공감을 표현하세요.",
	2: "적당한 공감과 관심을 보이세요.",
	3: "따뜻한 공감과 위로를 제공하세요.",
	4: "깊은 공감과 정서적 지지를 제공하세요.",
	5: "매우 깊은 공감과 치유적인 대화를 제공하세요.",
}

// Persona configures the assistant's voice for one user.
type Persona struct {
	PersonalityType  string            `json:"personalityType"`
	SpeechStyle      string            `json:"speechStyle"`
	EmojiUsage       int               `json:"emojiUsage"`
	EmpathyLevel     int               `json:"empathyLevel"`
	Nickname         string            `json:"nickname,omitempty"`
	MemoryPriorities map[string]int    `json:"memoryPriorities,omitempty"`
	UserProfile      map[string]string `json:"userProfile,omitempty"`
	AvoidTopics      []string          `json:"avoidTopics,omitempty"`
}

// DefaultPersona is the voice used when a request carries no settings.
func DefaultPersona() Persona {
	return Persona{
		PersonalityType: PersonalityFriendly,
		SpeechStyle:     SpeechCasual,
		EmojiUsage:      3,
		EmpathyLevel:    3,
	}
}

// Validate rejects settings outside the accepted domain. The builder itself
// tolerates anything; callers validate at the request boundary.
func (p Persona) Validate() error {
	switch p.PersonalityType {
	case PersonalityFriendly, PersonalityCalm, PersonalityLively, PersonalityWarm:
	default:
		return errors.Errorf("invalid personality type: %s", p.PersonalityType)
	}
	if p.SpeechStyle != SpeechCasual && p.SpeechStyle != SpeechFormal {
		return errors.Errorf("invalid speech style: %s", p.SpeechStyle)
	}
	if p.EmojiUsage < 1 || p.EmojiUsage > 5 {
		return errors.Errorf("emoji usage out of range: %d", p.EmojiUsage)
	}
	if p.EmpathyLevel < 1 || p.EmpathyLevel > 5 {
		return errors.Errorf("empathy level out of range: %d", p.EmpathyLevel)
	}
	return nil
}

// Builder assembles system prompts. Stateless and safe for concurrent use.
type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

// CreatePersonalizedSystemPrompt renders the full system prompt. userMemory
// and conversationContext are optional; blocks depending on them are
// skipped when absent.
func (b *Builder) CreatePersonalizedSystemPrompt(persona Persona, userMemory *memory.ConversationMemory, conversationContext []memory.Message) string {
	parts := []string{b.basePersonalityPrompt(persona)}

	if userMemory != nil {
		if userInfo := b.userInfoPrompt(userMemory); userInfo != "" {
			parts = append(parts, userInfo)
		}
	}
	if userMemory != nil && len(conversationContext) > 0 {
		if memoryBlock := b.memoryPrompt(userMemory, conversationContext); memoryBlock != "" {
			parts = append(parts, memoryBlock)
		}
	}
	if len(conversationContext) > 0 {
		parts = append(parts, b.contextPrompt(conversationContext))
	}

	result := strings.Join(parts, "\n\n")
	slog.Debug("personalized prompt built", "length", len(result), "blocks", len(parts))
	return result
}

func (b *Builder) basePersonalityPrompt(persona Persona) string {
	nickname := persona.Nickname
	if nickname == "" {
		nickname = "친구"
	}

	avoidTopics := ""
	if len(persona.AvoidTopics) > 0 {
		avoidTopics = fmt.Sprintf("\n\n🚫 피해야 할 주제: %s", strings.Join(persona.AvoidTopics, ", "))
	}

	return fmt.Sprintf(`당신은 '%s'의 AI 친구 '루나'입니다.

%s

🎭 성격: %s 대화하세요.

😊 이모티콘: %s

💕 공감: %s
%s
💬 대화 예시:
사용자: "오늘 힘든 일이 있었어"
%s 응답: "%s"

⚠️ 절대 지켜야 할 규칙:
1. %s을 절대 바꾸지 마세요
2. %s 성격을 일관되게 유지하세요
3. 진짜 친구처럼 개인적이고 따뜻하게 대화하세요
4. 단답형보다는 관심을 보이며 대화를 이어가세요
5. 사용자의 감정에 공감하고 적절한 위로를 제공하세요

지금부터 %s와 %s로 %s 성격으로 대화를 시작합니다!`,
		nickname,
		speechInstruction(persona.SpeechStyle),
		personalityInstruction(persona.PersonalityType),
		emojiInstruction(persona.EmojiUsage),
		empathyInstruction(persona.EmpathyLevel),
		avoidTopics,
		persona.SpeechStyle,
		exampleResponse(persona.SpeechStyle),
		persona.SpeechStyle,
		persona.PersonalityType,
		nickname,
		persona.SpeechStyle,
		persona.PersonalityType,
	)
}

// speechInstruction forces the register with contrastive examples. The
// model drifts back to formal endings without them.
func speechInstruction(speechStyle string) string {
	if speechStyle == SpeechCasual {
		return `⚠️ 중요: 반드시 반말로만 대화하세요!
- "안녕하세요" ❌ → "안녕!" ✅
- "어떻게 지내시나요?" ❌ → "어떻게 지내?" ✅
- "도움이 되었기를 바랍니다" ❌ → "도움이 됐으면 좋겠어" ✅
- "감사합니다" ❌ → "고마워" ✅`
	}
	return `⚠️ 중요: 반드시 격식체(존댓말)로만 대화하세요!
- "안녕!" ❌ → "안녕하세요" ✅
- "어떻게 지내?" ❌ → "어떻게 지내시나요?" ✅`
}

func personalityInstruction(personality string) string {
	if instruction, ok := personalityInstructions[personality]; ok {
		return instruction
	}
	return "친근하고 따뜻하게"
}

func emojiInstruction(emojiUsage int) string {
	switch {
	case emojiUsage >= 4:
		return "이모티콘을 자주 사용해서 감정을 풍부하게 표현하세요. (예: 😊, 😢, 🎉, 💕, 👍 등)"
	case emojiUsage >= 3:
		return "이모티콘을 적당히 사용해서 감정을 표현하세요."
	default:
		return "이모티콘 사용을 최소화하세요."
	}
}

func empathyInstruction(empathyLevel int) string {
	if instruction, ok := empathyInstructions[empathyLevel]; ok {
		return instruction
	}
	return empathyInstructions[2]
}

func exampleResponse(speechStyle string) string {
	if speechStyle == SpeechCasual {
		return "어떤 일이었어? 힘들었구나 😢 이야기 들어줄게"
	}
	return "어떤 일이 있으셨나요? 힘드셨겠어요 😢 이야기 들어드릴게요"
}

// userInfoKeys are the preference keys surfaced in the prompt, with their
// Korean labels, in render order.
var userInfoKeys = []struct {
	key   string
	label string
}{
	{"interests", "관심사"},
	{"current_goals", "현재 목표"},
	{"preferred_topics", "선호 주제"},
}

func (b *Builder) userInfoPrompt(userMemory *memory.ConversationMemory) string {
	preferences := userMemory.UserPreferences()
	if len(preferences) == 0 {
		return ""
	}

	var lines []string
	for _, entry := range userInfoKeys {
		if values := preferences[entry.key]; len(values) > 0 {
			lines = append(lines, fmt.Sprintf("- %s: %s", entry.label, strings.Join(values, ", ")))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "📋 사용자 정보:\n" + strings.Join(lines, "\n")
}

func (b *Builder) memoryPrompt(userMemory *memory.ConversationMemory, conversationContext []memory.Message) string {
	current := conversationContext[len(conversationContext)-1].Content

	relevant := userMemory.RetrieveRelevantMemories(current, 3, []string{
		memory.TypeConversation, memory.TypeUserInfo, memory.TypePreference,
	})
	if len(relevant) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("🧠 관련 기억:\n")
	for i, item := range relevant {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, item.Content))
	}
	sb.WriteString("\n위 기억들을 참고하여 일관성 있는 대화를 이어가세요.")
	return sb.String()
}

func (b *Builder) contextPrompt(conversationContext []memory.Message) string {
	recent := conversationContext
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}

	var sb strings.Builder
	sb.WriteString("💬 최근 대화 맥락:\n")
	for _, msg := range recent {
		marker := "🤖"
		if msg.Role == "user" {
			marker = "👤"
		}
		sb.WriteString(fmt.Sprintf("%s %s\n", marker, msg.Content))
	}
	sb.WriteString("\n위 맥락을 고려하여 자연스럽게 대화를 이어가세요.")
	return sb.String()
}
