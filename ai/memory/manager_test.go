package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerLazySingleCreation(t *testing.T) {
	mgr := NewManager(testConfig())

	const goroutines = 100
	results := make([]*ConversationMemory, goroutines)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = mgr.GetUserMemory("racer")
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, 1, mgr.Stats().TotalUsers)
}

func TestManagerIsolatesUsers(t *testing.T) {
	mgr := NewManager(testConfig())
	a := mgr.GetUserMemory("user-a")
	b := mgr.GetUserMemory("user-b")
	require.NotSame(t, a, b)

	a.AddLongTermMemory("user-a 전용 기억", 7, TypeConversation, nil)
	assert.Empty(t, b.GetRelevantMemories("", 5))
}

func TestManagerStats(t *testing.T) {
	mgr := NewManager(testConfig())
	a := mgr.GetUserMemory("user-a")
	b := mgr.GetUserMemory("user-b")

	a.AddShortTermMemory(Message{Role: "user", Content: "안녕"}, 1)
	a.AddLongTermMemory("기억 하나", 5, TypeConversation, nil)
	b.AddLongTermMemory("기억 둘", 5, TypeConversation, nil)

	stats := mgr.Stats()
	assert.Equal(t, 2, stats.TotalUsers)
	assert.Equal(t, 1, stats.TotalShortTermMemories)
	assert.Equal(t, 2, stats.TotalLongTermMemories)

	// Fresh aggregation, not a cached value.
	b.AddShortTermMemory(Message{Role: "user", Content: "또 안녕"}, 1)
	assert.Equal(t, 2, mgr.Stats().TotalShortTermMemories)
}

func TestManagerCleanupAllMemories(t *testing.T) {
	mgr := NewManager(testConfig())
	for i := 0; i < 3; i++ {
		m := mgr.GetUserMemory(fmt.Sprintf("user-%d", i))
		id := m.AddLongTermMemory("오래된 기억", 3, TypeConversation, nil)
		m.mu.Lock()
		m.longTerm[id].CreatedAt = m.longTerm[id].CreatedAt.AddDate(0, 0, -60)
		m.mu.Unlock()
	}

	mgr.CleanupAllMemories()
	assert.Equal(t, 0, mgr.Stats().TotalLongTermMemories)
}

func TestManagerExportRestore(t *testing.T) {
	mgr := NewManager(testConfig())
	m := mgr.GetUserMemory("user-a")
	m.AddLongTermMemory("스냅샷 대상 기억", 8, TypeConversation, nil)

	states := mgr.ExportStates()
	require.Len(t, states, 1)

	fresh := NewManager(testConfig())
	require.NoError(t, fresh.RestoreState(states[0]))

	restored := fresh.GetUserMemory("user-a")
	assert.Equal(t, []string{"스냅샷 대상 기억"}, restored.GetRelevantMemories("", 5))
}
