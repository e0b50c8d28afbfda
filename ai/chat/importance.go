package chat

import (
	"strings"
	"unicode/utf8"

	"github.com/lunalab/luna/ai/memory"
)

// importantKeywords mark emotionally or personally significant turns.
// Each hit adds 2 to the base importance of 1.
var importantKeywords = []string{
	"사랑", "결혼", "이별", "죽음", "병", "취업", "면접", "시험", "합격", "실패",
	"목표", "꿈", "희망", "절망", "스트레스", "우울", "기쁨", "행복", "가족",
	"친구", "관계", "갈등", "화해", "용서", "감사", "미안", "축하",
}

// personalPatterns signal self-disclosure worth keeping long-term.
var personalPatterns = []string{
	"내 이름은", "저는", "제가", "나는", "저희", "우리",
	"좋아하는", "싫어하는", "관심있는", "하고 싶은",
	"힘들어", "기뻐", "슬퍼", "화나", "걱정", "스트레스",
}

// EvaluateImportance scores a user turn from 1 to 10: +2 per keyword hit,
// +1 for content longer than 100 characters, capped at 10.
func EvaluateImportance(content string) int {
	lower := strings.ToLower(content)
	importance := 1
	for _, keyword := range importantKeywords {
		if strings.Contains(lower, keyword) {
			importance += 2
		}
	}
	if utf8.RuneCountInString(content) > 100 {
		importance++
	}
	if importance > 10 {
		importance = 10
	}
	return importance
}

// ExtractImportantInfo returns the first user turn that matches a personal
// pattern, prefixed for long-term storage, or "" when nothing qualifies.
func ExtractImportantInfo(messages []memory.Message) string {
	for _, msg := range messages {
		if msg.Role != "user" {
			continue
		}
		for _, pattern := range personalPatterns {
			if strings.Contains(msg.Content, pattern) {
				return "사용자 정보: " + msg.Content
			}
		}
	}
	return ""
}
