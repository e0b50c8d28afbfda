package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "openai", p.LLMProvider)
	assert.Equal(t, "https://api.openai.com/v1", p.LLMBaseURL)
	assert.Equal(t, "gpt-4o", p.LLMModel)
	assert.Equal(t, 120, p.LLMTimeout)
	assert.Equal(t, 0.7, p.LLMTemperature)
	assert.Equal(t, 1000, p.LLMMaxTokens)
	assert.Equal(t, 10, p.ShortTermMemorySize)
	assert.Equal(t, 50, p.MaxConversationHistory)
	assert.Equal(t, 30, p.MemoryRetentionDays)
	assert.Equal(t, 0, p.MaxLongTermMemories)
	assert.Equal(t, 100, p.MaxConcurrentRequests)
	assert.Equal(t, 6, p.MaxContextMessages)
	assert.False(t, p.SnapshotEnabled)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("LUNA_LLM_PROVIDER", "deepseek")
	t.Setenv("LUNA_LLM_API_KEY", "sk-test")
	t.Setenv("LUNA_MEMORY_SHORT_TERM_SIZE", "20")
	t.Setenv("LUNA_SNAPSHOT_ENABLED", "true")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "deepseek", p.LLMProvider)
	assert.Equal(t, "https://api.deepseek.com", p.LLMBaseURL)
	assert.Equal(t, "deepseek-chat", p.LLMModel)
	assert.True(t, p.IsLLMEnabled())
	assert.Equal(t, 20, p.ShortTermMemorySize)
	assert.True(t, p.SnapshotEnabled)
}

func TestValidateClampsValues(t *testing.T) {
	p := &Profile{
		Mode:                  "staging",
		ShortTermMemorySize:   -1,
		MaxConcurrentRequests: 0,
		LLMTemperature:        5.0,
	}
	require.NoError(t, p.Validate())

	assert.Equal(t, "demo", p.Mode)
	assert.Equal(t, 10, p.ShortTermMemorySize)
	assert.Equal(t, 100, p.MaxConcurrentRequests)
	assert.Equal(t, 0.7, p.LLMTemperature)
}

func TestValidateSnapshotDataDir(t *testing.T) {
	p := &Profile{Mode: "dev", SnapshotEnabled: true, Data: t.TempDir()}
	require.NoError(t, p.Validate())
	assert.NotEmpty(t, p.SnapshotDSN())

	p = &Profile{Mode: "dev", SnapshotEnabled: true, Data: "/does/not/exist"}
	assert.Error(t, p.Validate())
}

func TestIsDev(t *testing.T) {
	assert.True(t, (&Profile{Mode: "dev"}).IsDev())
	assert.True(t, (&Profile{Mode: "demo"}).IsDev())
	assert.False(t, (&Profile{Mode: "prod"}).IsDev())
}
