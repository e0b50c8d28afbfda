package memory

import (
	"github.com/pkg/errors"
)

// State is the complete serialized form of one user's memory store.
// LongTermOrder preserves insertion order, which JSON maps would lose.
type State struct {
	UserID        string                `json:"user_id"`
	ShortTerm     []ItemRecord          `json:"short_term_memory"`
	LongTerm      map[string]ItemRecord `json:"long_term_memory"`
	LongTermOrder []string              `json:"long_term_order,omitempty"`
	Preferences   map[string][]string   `json:"user_preferences"`
	Contexts      map[string][]Message  `json:"conversation_contexts"`
}

// State exports a deep copy of the store.
func (m *ConversationMemory) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := State{
		UserID:      m.userID,
		ShortTerm:   make([]ItemRecord, len(m.shortTerm)),
		LongTerm:    make(map[string]ItemRecord, len(m.longTerm)),
		Preferences: make(map[string][]string, len(m.preferences)),
		Contexts:    make(map[string][]Message, len(m.contexts)),
	}
	for i, item := range m.shortTerm {
		state.ShortTerm[i] = item.Record()
	}
	state.LongTermOrder = append([]string(nil), m.longTermIDs...)
	for id, item := range m.longTerm {
		state.LongTerm[id] = item.Record()
	}
	for key, values := range m.preferences {
		state.Preferences[key] = append([]string(nil), values...)
	}
	for id, messages := range m.contexts {
		state.Contexts[id] = append([]Message(nil), messages...)
	}
	return state
}

// Restore rebuilds a store from a previously exported state. The short-term
// capacity of cfg is re-applied, dropping the oldest entries if the state
// holds more than fit. A corrupt item record is skipped without touching
// the records loaded around it; the first such failure is reported alongside
// the (still usable) store.
func Restore(state State, cfg Config) (*ConversationMemory, error) {
	m := New(state.UserID, cfg)
	var firstErr error

	for _, rec := range state.ShortTerm {
		item, err := ItemFromRecord(rec)
		if err != nil {
			if firstErr == nil {
				firstErr = errors.Wrap(err, "restore short-term record")
			}
			continue
		}
		m.shortTerm = append(m.shortTerm, item)
	}
	if len(m.shortTerm) > m.cfg.ShortTermSize {
		m.shortTerm = m.shortTerm[len(m.shortTerm)-m.cfg.ShortTermSize:]
	}

	for _, id := range longTermOrder(state) {
		rec, ok := state.LongTerm[id]
		if !ok {
			continue
		}
		item, err := ItemFromRecord(rec)
		if err != nil {
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "restore long-term record %s", id)
			}
			continue
		}
		m.longTerm[id] = item
		m.longTermIDs = append(m.longTermIDs, id)
	}

	for key, values := range state.Preferences {
		m.preferences[key] = append([]string(nil), values...)
	}
	for id, messages := range state.Contexts {
		m.contexts[id] = append([]Message(nil), messages...)
	}
	return m, firstErr
}

// longTermOrder returns the recorded insertion order, falling back to the
// map keys for states written without one.
func longTermOrder(state State) []string {
	if len(state.LongTermOrder) > 0 {
		return state.LongTermOrder
	}
	ids := make([]string, 0, len(state.LongTerm))
	for id := range state.LongTerm {
		ids = append(ids, id)
	}
	return ids
}
