package memory

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Message is a single conversation turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Config bounds a single user's memory store.
type Config struct {
	// ShortTermSize caps the short-term FIFO buffer. Default 10.
	ShortTermSize int
	// MaxConversationHistory caps each named conversation context. Default 50.
	MaxConversationHistory int
	// RetentionDays is the age after which low-importance long-term items
	// are pruned. Default 30.
	RetentionDays int
	// MaxLongTerm softly caps the long-term store; 0 means unbounded.
	// When exceeded on insert, the oldest lowest-importance entry is evicted.
	MaxLongTerm int
}

func (c Config) normalized() Config {
	if c.ShortTermSize <= 0 {
		c.ShortTermSize = 10
	}
	if c.MaxConversationHistory <= 0 {
		c.MaxConversationHistory = 50
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 30
	}
	if c.MaxLongTerm < 0 {
		c.MaxLongTerm = 0
	}
	return c
}

// ConversationMemory is one user's memory store. A single mutex serializes
// every operation, including retrievals that touch access bookkeeping.
// Stores for different users share nothing and never block each other.
type ConversationMemory struct {
	userID string
	cfg    Config

	mu          sync.Mutex
	shortTerm   []*Item // oldest first, capped at cfg.ShortTermSize
	longTerm    map[string]*Item
	longTermIDs []string // insertion order, keeps retrieval tie-breaks stable
	contexts    map[string][]Message
	preferences map[string][]string
}

// New creates an empty memory store for userID.
func New(userID string, cfg Config) *ConversationMemory {
	m := &ConversationMemory{
		userID:      userID,
		cfg:         cfg.normalized(),
		longTerm:    make(map[string]*Item),
		contexts:    make(map[string][]Message),
		preferences: make(map[string][]string),
	}
	slog.Debug("memory store initialized", "user_id", userID)
	return m
}

func (m *ConversationMemory) UserID() string {
	return m.userID
}

// AddShortTermMemory appends a conversation turn to the short-term buffer,
// evicting the oldest entry when the buffer is full. Eviction is strict
// FIFO regardless of importance.
func (m *ConversationMemory) AddShortTermMemory(msg Message, importance int) {
	metadata := map[string]string{"role": msg.Role}
	if !msg.Timestamp.IsZero() {
		metadata["timestamp"] = msg.Timestamp.Format(time.RFC3339Nano)
	}
	item := newItem(msg.Content, importance, TypeConversation, metadata)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.shortTerm = append(m.shortTerm, item)
	if len(m.shortTerm) > m.cfg.ShortTermSize {
		m.shortTerm = m.shortTerm[len(m.shortTerm)-m.cfg.ShortTermSize:]
	}
	slog.Debug("short-term memory added", "user_id", m.userID, "size", len(m.shortTerm))
}

// AddLongTermMemory stores content in the long-term map and returns its id.
// The id hashes content, type, user and the current nanosecond clock; a
// collision silently overwrites the older entry.
func (m *ConversationMemory) AddLongTermMemory(content string, importance int, memoryType string, metadata map[string]string) string {
	id := memoryID(content, memoryType, m.userID)
	item := newItem(content, importance, memoryType, metadata)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.longTerm[id]; !exists {
		m.longTermIDs = append(m.longTermIDs, id)
	}
	m.longTerm[id] = item
	m.evictOverCapLocked()
	slog.Info("long-term memory added", "user_id", m.userID, "memory_id", id, "importance", importance)
	return id
}

// evictOverCapLocked enforces the soft long-term cap. Caller holds mu.
func (m *ConversationMemory) evictOverCapLocked() {
	if m.cfg.MaxLongTerm <= 0 {
		return
	}
	for len(m.longTerm) > m.cfg.MaxLongTerm {
		victim := ""
		victimImportance := 0
		for _, id := range m.longTermIDs {
			item := m.longTerm[id]
			if victim == "" || item.Importance < victimImportance {
				victim = id
				victimImportance = item.Importance
			}
		}
		m.deleteLongTermLocked(victim)
		slog.Debug("long-term memory evicted", "user_id", m.userID, "memory_id", victim)
	}
}

func (m *ConversationMemory) deleteLongTermLocked(id string) {
	delete(m.longTerm, id)
	for i, existing := range m.longTermIDs {
		if existing == id {
			m.longTermIDs = append(m.longTermIDs[:i], m.longTermIDs[i+1:]...)
			break
		}
	}
}

// RetrieveRelevantMemories scans both stores for items of the requested
// types whose relevance to context exceeds 0.3, bumps access bookkeeping on
// every match, and returns them sorted by descending relevance, truncated
// to limit. Ties keep scan order: short-term first, then long-term in
// insertion order. A nil types slice means conversation, user_info and
// preference.
func (m *ConversationMemory) RetrieveRelevantMemories(context string, limit int, types []string) []*Item {
	if types == nil {
		types = []string{TypeConversation, TypeUserInfo, TypePreference}
	}
	wanted := make(map[string]struct{}, len(types))
	for _, t := range types {
		wanted[t] = struct{}{}
	}

	type scored struct {
		item  *Item
		score float64
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var matches []scored
	consider := func(item *Item) {
		if _, ok := wanted[item.Type]; !ok {
			return
		}
		score := Relevance(context, item.Content)
		if score > 0.3 {
			item.AccessCount++
			item.LastAccessed = now
			matches = append(matches, scored{item: item, score: score})
		}
	}
	for _, item := range m.shortTerm {
		consider(item)
	}
	for _, id := range m.longTermIDs {
		consider(m.longTerm[id])
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	if limit >= 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	result := make([]*Item, len(matches))
	for i, s := range matches {
		result[i] = s.item
	}
	slog.Debug("relevant memories retrieved", "user_id", m.userID, "count", len(result))
	return result
}

// GetRelevantMemories is the query-oriented retrieval path used by prompt
// building. A blank query returns the top-limit long-term items by
// importance alone. Otherwise long-term items with relevance above 0.1 are
// ranked by 0.7*(importance/10) + 0.3*relevance and, when fewer than limit
// qualify, short-term items containing the query as a substring fill the
// remainder. A non-positive limit yields an empty result. Unlike
// RetrieveRelevantMemories this path never mutates access bookkeeping.
func (m *ConversationMemory) GetRelevantMemories(query string, limit int) []string {
	if limit <= 0 {
		return []string{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if strings.TrimSpace(query) == "" {
		return m.topLongTermByImportanceLocked(limit)
	}

	type scored struct {
		content string
		score   float64
	}
	var matches []scored
	for _, id := range m.longTermIDs {
		item := m.longTerm[id]
		relevance := Relevance(query, item.Content)
		if relevance > 0.1 {
			combined := 0.7*(float64(item.Importance)/10.0) + 0.3*relevance
			matches = append(matches, scored{content: item.Content, score: combined})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	contents := make([]string, 0, limit)
	for _, s := range matches {
		contents = append(contents, s.content)
	}

	// Back-fill from short-term using plain substring containment.
	if len(contents) < limit {
		needle := strings.ToLower(query)
		for _, item := range m.shortTerm {
			if len(contents) >= limit {
				break
			}
			if strings.Contains(strings.ToLower(item.Content), needle) {
				contents = append(contents, item.Content)
			}
		}
	}
	return contents
}

// topLongTermByImportanceLocked returns up to limit long-term contents by
// descending importance. Ties keep insertion order. Caller holds mu.
func (m *ConversationMemory) topLongTermByImportanceLocked(limit int) []string {
	items := make([]*Item, 0, len(m.longTermIDs))
	for _, id := range m.longTermIDs {
		items = append(items, m.longTerm[id])
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Importance > items[j].Importance
	})
	if len(items) > limit {
		items = items[:limit]
	}
	contents := make([]string, len(items))
	for i, item := range items {
		contents[i] = item.Content
	}
	return contents
}

// GetConversationContext returns a copy of the named conversation context.
// Unknown ids yield an empty slice, never an error.
func (m *ConversationMemory) GetConversationContext(conversationID string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	context := m.contexts[conversationID]
	out := make([]Message, len(context))
	copy(out, context)
	return out
}

// UpdateConversationContext replaces the named context wholesale, keeping
// only the most recent MaxConversationHistory messages.
func (m *ConversationMemory) UpdateConversationContext(conversationID string, messages []Message) {
	if len(messages) > m.cfg.MaxConversationHistory {
		messages = messages[len(messages)-m.cfg.MaxConversationHistory:]
	}
	stored := make([]Message, len(messages))
	copy(stored, messages)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.contexts[conversationID] = stored
	slog.Debug("conversation context updated",
		"user_id", m.userID,
		"conversation_id", conversationID,
		"messages", len(stored),
	)
}

// AddUserPreference sets one preference key. Values replace any previous
// ones for the key.
func (m *ConversationMemory) AddUserPreference(key string, values ...string) {
	stored := make([]string, len(values))
	copy(stored, values)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.preferences[key] = stored
	slog.Info("user preference set", "user_id", m.userID, "key", key)
}

// UserPreferences returns a copy of the preference bag.
func (m *ConversationMemory) UserPreferences() map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]string, len(m.preferences))
	for k, v := range m.preferences {
		values := make([]string, len(v))
		copy(values, v)
		out[k] = values
	}
	return out
}

// CleanupOldMemories prunes long-term items older than the retention window.
// Items with importance >= 7 are exempt regardless of age. Returns the
// number of pruned items.
func (m *ConversationMemory) CleanupOldMemories() int {
	cutoff := time.Now().AddDate(0, 0, -m.cfg.RetentionDays)

	m.mu.Lock()
	defer m.mu.Unlock()

	var old []string
	for _, id := range m.longTermIDs {
		item := m.longTerm[id]
		if item.CreatedAt.Before(cutoff) && item.Importance < 7 {
			old = append(old, id)
		}
	}
	for _, id := range old {
		m.deleteLongTermLocked(id)
	}
	if len(old) > 0 {
		slog.Info("old memories pruned", "user_id", m.userID, "count", len(old))
	}
	return len(old)
}

// noMemoriesSummary is returned when no long-term item qualifies.
const noMemoriesSummary = "저장된 중요한 기억이 없습니다."

// MemorySummary renders the top 3 long-term items with importance >= 7 as a
// bullet list, truncating each content to 50 characters.
func (m *ConversationMemory) MemorySummary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := make([]*Item, 0, len(m.longTermIDs))
	for _, id := range m.longTermIDs {
		item := m.longTerm[id]
		if item.Importance >= 7 {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return noMemoriesSummary
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Importance > items[j].Importance
	})
	if len(items) > 3 {
		items = items[:3]
	}

	var b strings.Builder
	b.WriteString("중요한 기억:\n")
	for _, item := range items {
		content := []rune(item.Content)
		if len(content) > 50 {
			b.WriteString("- " + string(content[:50]) + "...\n")
		} else {
			b.WriteString("- " + string(content) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Counts returns the current short-term and long-term sizes.
func (m *ConversationMemory) Counts() (shortTerm, longTerm int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.shortTerm), len(m.longTerm)
}

// ShortTermRecords returns the short-term buffer as serialized records,
// oldest first.
func (m *ConversationMemory) ShortTermRecords() []ItemRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := make([]ItemRecord, len(m.shortTerm))
	for i, item := range m.shortTerm {
		records[i] = item.Record()
	}
	return records
}

func memoryID(content, memoryType, userID string) string {
	unique := fmt.Sprintf("%s:%s:%s:%d", content, memoryType, userID, time.Now().UnixNano())
	sum := md5.Sum([]byte(unique))
	return hex.EncodeToString(sum[:])
}
