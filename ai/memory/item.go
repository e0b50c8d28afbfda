// Package memory implements per-user conversational memory: a bounded
// short-term turn buffer, an importance-tagged long-term store with lexical
// retrieval, named conversation contexts, and a user preference bag.
//
// All state is in-process. Persistence, when enabled, goes through the
// State/Restore surface (see store/snapshot).
package memory

import (
	"time"

	"github.com/pkg/errors"
)

// Memory type tags. The set is open-ended: unknown tags are stored as-is
// and only act as a coarse retrieval filter.
const (
	TypeConversation = "conversation"
	TypeUserInfo     = "user_info"
	TypePreference   = "preference"
)

// Item is a single remembered fact or conversational turn. Importance is
// fixed at creation; only the access bookkeeping fields mutate, and only as
// a side effect of a retrieval match.
type Item struct {
	Content      string
	Importance   int // 1-10, drives retention and ranking weight
	Type         string
	Metadata     map[string]string
	CreatedAt    time.Time
	LastAccessed time.Time
	AccessCount  int
}

func newItem(content string, importance int, memoryType string, metadata map[string]string) *Item {
	now := time.Now()
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &Item{
		Content:      content,
		Importance:   importance,
		Type:         memoryType,
		Metadata:     metadata,
		CreatedAt:    now,
		LastAccessed: now,
	}
}

// ItemRecord is the serialized form of an Item. Timestamps are RFC 3339.
type ItemRecord struct {
	Content      string            `json:"content"`
	Importance   int               `json:"importance"`
	MemoryType   string            `json:"memory_type"`
	Metadata     map[string]string `json:"metadata"`
	CreatedAt    string            `json:"created_at"`
	LastAccessed string            `json:"last_accessed"`
	AccessCount  int               `json:"access_count"`
}

// Record returns the serializable view of the item.
func (i *Item) Record() ItemRecord {
	metadata := make(map[string]string, len(i.Metadata))
	for k, v := range i.Metadata {
		metadata[k] = v
	}
	return ItemRecord{
		Content:      i.Content,
		Importance:   i.Importance,
		MemoryType:   i.Type,
		Metadata:     metadata,
		CreatedAt:    i.CreatedAt.Format(time.RFC3339Nano),
		LastAccessed: i.LastAccessed.Format(time.RFC3339Nano),
		AccessCount:  i.AccessCount,
	}
}

// ItemFromRecord rebuilds an Item from its serialized form. Malformed
// timestamps fail here so that a corrupt record never enters a store.
func ItemFromRecord(rec ItemRecord) (*Item, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, rec.CreatedAt)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid created_at %q", rec.CreatedAt)
	}
	lastAccessed, err := time.Parse(time.RFC3339Nano, rec.LastAccessed)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid last_accessed %q", rec.LastAccessed)
	}
	metadata := rec.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	return &Item{
		Content:      rec.Content,
		Importance:   rec.Importance,
		Type:         rec.MemoryType,
		Metadata:     metadata,
		CreatedAt:    createdAt,
		LastAccessed: lastAccessed,
		AccessCount:  rec.AccessCount,
	}, nil
}
