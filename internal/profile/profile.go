// Package profile carries the resolved server configuration.
package profile

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// LLM configuration (OpenAI-compatible protocol)
	LLMProvider    string // openai, deepseek, zai, ollama, or any compatible provider
	LLMAPIKey      string
	LLMBaseURL     string // optional, has a default per provider
	LLMModel       string
	LLMTimeout     int     // request timeout in seconds (default: 120)
	LLMTemperature float64 // default sampling temperature (default: 0.7)
	LLMMaxTokens   int     // default completion budget (default: 1000)

	// Memory configuration
	ShortTermMemorySize    int // short-term FIFO capacity (default: 10)
	MaxConversationHistory int // per-conversation context cap (default: 50)
	MemoryRetentionDays    int // long-term retention window (default: 30)
	MaxLongTermMemories    int // soft cap on long-term entries, 0 = unbounded

	// Request handling
	MaxConcurrentRequests int // chat concurrency ceiling (default: 100)
	MaxContextMessages    int // prompt assembly context window (default: 6)

	Mode    string // "prod", "dev" or "demo"
	Addr    string
	Port    int
	Data    string // data directory, required when snapshots are on
	Version string

	// SnapshotEnabled persists memory states to sqlite across restarts.
	SnapshotEnabled bool
}

// Provider default configurations for LLM.
// Used when LUNA_LLM_BASE_URL is not explicitly set.
var llmProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o",
	},
	"deepseek": {
		BaseURL: "https://api.deepseek.com",
		Model:   "deepseek-chat",
	},
	"zai": {
		BaseURL: "https://open.bigmodel.cn/api/paas/v4",
		Model:   "glm-4.7",
	},
	"ollama": {
		BaseURL: "http://localhost:11434",
		Model:   "llama3.1",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsLLMEnabled returns true if an API key is configured.
func (p *Profile) IsLLMEnabled() bool {
	return p.LLMAPIKey != ""
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvOrDefaultFloat returns environment variable value as float or default value.
func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.LLMProvider = getEnvOrDefault("LUNA_LLM_PROVIDER", "openai")
	p.LLMAPIKey = getEnvOrDefault("LUNA_LLM_API_KEY", "")
	p.LLMBaseURL = getEnvOrDefault("LUNA_LLM_BASE_URL", "")
	p.LLMModel = getEnvOrDefault("LUNA_LLM_MODEL", "")
	p.LLMTimeout = getEnvOrDefaultInt("LUNA_LLM_TIMEOUT_SECONDS", 120)
	p.LLMTemperature = getEnvOrDefaultFloat("LUNA_LLM_TEMPERATURE", 0.7)
	p.LLMMaxTokens = getEnvOrDefaultInt("LUNA_LLM_MAX_TOKENS", 1000)

	if p.LLMProvider != "" {
		if _, ok := llmProviderDefaults[p.LLMProvider]; !ok {
			slog.Warn("Unknown LLM provider, using OpenAI-compatible generic config", "provider", p.LLMProvider)
		}
	}
	if defaults, ok := llmProviderDefaults[p.LLMProvider]; ok {
		if p.LLMBaseURL == "" {
			p.LLMBaseURL = defaults.BaseURL
		}
		if p.LLMModel == "" {
			p.LLMModel = defaults.Model
		}
	}

	p.ShortTermMemorySize = getEnvOrDefaultInt("LUNA_MEMORY_SHORT_TERM_SIZE", 10)
	p.MaxConversationHistory = getEnvOrDefaultInt("LUNA_MEMORY_MAX_HISTORY", 50)
	p.MemoryRetentionDays = getEnvOrDefaultInt("LUNA_MEMORY_RETENTION_DAYS", 30)
	p.MaxLongTermMemories = getEnvOrDefaultInt("LUNA_MEMORY_MAX_LONG_TERM", 0)

	p.MaxConcurrentRequests = getEnvOrDefaultInt("LUNA_MAX_CONCURRENT_REQUESTS", 100)
	p.MaxContextMessages = getEnvOrDefaultInt("LUNA_MAX_CONTEXT_MESSAGES", 6)

	p.SnapshotEnabled = getEnvOrDefault("LUNA_SNAPSHOT_ENABLED", "false") == "true"
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate clamps out-of-range values to their defaults and checks the data
// directory when snapshots are enabled.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.ShortTermMemorySize <= 0 {
		p.ShortTermMemorySize = 10
	}
	if p.MaxConversationHistory <= 0 {
		p.MaxConversationHistory = 50
	}
	if p.MemoryRetentionDays <= 0 {
		p.MemoryRetentionDays = 30
	}
	if p.MaxLongTermMemories < 0 {
		p.MaxLongTermMemories = 0
	}
	if p.MaxConcurrentRequests <= 0 {
		p.MaxConcurrentRequests = 100
	}
	if p.MaxContextMessages <= 0 {
		p.MaxContextMessages = 6
	}
	if p.LLMTemperature <= 0 || p.LLMTemperature > 2 {
		p.LLMTemperature = 0.7
	}
	if p.LLMMaxTokens <= 0 {
		p.LLMMaxTokens = 1000
	}

	if p.SnapshotEnabled {
		dataDir, err := checkDataDir(p.Data)
		if err != nil {
			slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
			return err
		}
		p.Data = dataDir
	}

	return nil
}

// SnapshotDSN returns the sqlite path for memory snapshots.
func (p *Profile) SnapshotDSN() string {
	return filepath.Join(p.Data, "luna_"+p.Mode+".db")
}
