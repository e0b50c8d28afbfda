package memory

import (
	"log/slog"
	"sync"
)

// Manager is the process-wide registry of per-user memory stores.
type Manager struct {
	cfg Config

	mu    sync.RWMutex
	users map[string]*ConversationMemory
}

// NewManager creates an empty registry. Every store it creates shares cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:   cfg.normalized(),
		users: make(map[string]*ConversationMemory),
	}
}

// GetUserMemory returns the store for userID, creating it on first access.
// At most one store is ever constructed per user id, even when many
// goroutines race on the first call.
func (mgr *Manager) GetUserMemory(userID string) *ConversationMemory {
	mgr.mu.RLock()
	m, ok := mgr.users[userID]
	mgr.mu.RUnlock()
	if ok {
		return m
	}

	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if m, ok := mgr.users[userID]; ok {
		return m
	}
	m = New(userID, mgr.cfg)
	mgr.users[userID] = m
	slog.Info("user memory created", "user_id", userID)
	return m
}

// CleanupAllMemories prunes expired long-term items for every registered
// user. Each user is cleaned independently; one user's store never blocks
// or aborts another's cleanup.
func (mgr *Manager) CleanupAllMemories() {
	mgr.mu.RLock()
	stores := make([]*ConversationMemory, 0, len(mgr.users))
	for _, m := range mgr.users {
		stores = append(stores, m)
	}
	mgr.mu.RUnlock()

	total := 0
	for _, m := range stores {
		total += m.CleanupOldMemories()
	}
	slog.Info("memory cleanup finished", "users", len(stores), "pruned", total)
}

// Stats is an aggregate snapshot over every registered store.
type Stats struct {
	TotalUsers             int `json:"total_users"`
	TotalLongTermMemories  int `json:"total_long_term_memories"`
	TotalShortTermMemories int `json:"total_short_term_memories"`
}

// Stats recomputes the aggregate counts from live stores.
func (mgr *Manager) Stats() Stats {
	mgr.mu.RLock()
	stores := make([]*ConversationMemory, 0, len(mgr.users))
	for _, m := range mgr.users {
		stores = append(stores, m)
	}
	mgr.mu.RUnlock()

	stats := Stats{TotalUsers: len(stores)}
	for _, m := range stores {
		shortTerm, longTerm := m.Counts()
		stats.TotalShortTermMemories += shortTerm
		stats.TotalLongTermMemories += longTerm
	}
	return stats
}

// ExportStates serializes every registered store, for snapshotting.
func (mgr *Manager) ExportStates() []State {
	mgr.mu.RLock()
	stores := make([]*ConversationMemory, 0, len(mgr.users))
	for _, m := range mgr.users {
		stores = append(stores, m)
	}
	mgr.mu.RUnlock()

	states := make([]State, 0, len(stores))
	for _, m := range stores {
		states = append(states, m.State())
	}
	return states
}

// RestoreState installs a previously exported state, replacing any store
// already registered for that user. A partially corrupt state still
// installs its intact records; the first record error is returned.
func (mgr *Manager) RestoreState(state State) error {
	m, err := Restore(state, mgr.cfg)

	mgr.mu.Lock()
	mgr.users[state.UserID] = m
	mgr.mu.Unlock()

	if err != nil {
		slog.Warn("memory state restored with skipped records", "user_id", state.UserID, "error", err)
		return err
	}
	return nil
}
