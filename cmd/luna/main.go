package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lunalab/luna/ai/chat"
	"github.com/lunalab/luna/ai/llm"
	"github.com/lunalab/luna/ai/memory"
	"github.com/lunalab/luna/ai/metrics"
	"github.com/lunalab/luna/ai/prompt"
	"github.com/lunalab/luna/internal/profile"
	"github.com/lunalab/luna/internal/version"
	"github.com/lunalab/luna/server"
	apiv1 "github.com/lunalab/luna/server/router/api/v1"
	"github.com/lunalab/luna/store/snapshot"
)

var rootCmd = &cobra.Command{
	Use:   "luna",
	Short: `A personalization layer in front of LLM chat providers: per-user memory, persona-driven Korean prompts, and an OpenAI-compatible chat API.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Load .env from the current directory; a missing file is fine.
		_ = godotenv.Load()
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Data:    viper.GetString("data"),
			Version: version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			panic(err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		memoryManager := memory.NewManager(memory.Config{
			ShortTermSize:          instanceProfile.ShortTermMemorySize,
			MaxConversationHistory: instanceProfile.MaxConversationHistory,
			RetentionDays:          instanceProfile.MemoryRetentionDays,
			MaxLongTerm:            instanceProfile.MaxLongTermMemories,
		})

		var snapshotStore *snapshot.Store
		if instanceProfile.SnapshotEnabled {
			store, err := snapshot.NewStore(instanceProfile.SnapshotDSN())
			if err != nil {
				slog.Error("failed to open snapshot store", "error", err)
				return
			}
			snapshotStore = store
			restoreSnapshots(ctx, snapshotStore, memoryManager)
		}

		var llmService llm.Service
		if instanceProfile.IsLLMEnabled() {
			service, err := llm.NewService(&llm.Config{
				Provider:    instanceProfile.LLMProvider,
				Model:       instanceProfile.LLMModel,
				APIKey:      instanceProfile.LLMAPIKey,
				BaseURL:     instanceProfile.LLMBaseURL,
				MaxTokens:   instanceProfile.LLMMaxTokens,
				Temperature: float32(instanceProfile.LLMTemperature),
				Timeout:     instanceProfile.LLMTimeout,
			})
			if err != nil {
				slog.Error("failed to create LLM service", "error", err)
				return
			}
			llmService = service
			go llmService.Warmup(ctx)
		} else {
			slog.Warn("no LLM API key configured, chat completions are disabled")
		}

		chatService := chat.NewService(llmService, memoryManager, prompt.NewBuilder())
		exporter := metrics.NewPrometheusExporter(metrics.DefaultConfig())
		apiV1Service := apiv1.NewAPIV1Service(instanceProfile, memoryManager, chatService, exporter)

		s, err := server.NewServer(ctx, instanceProfile, apiV1Service)
		if err != nil {
			slog.Error("failed to create server", "error", err)
			return
		}

		c := make(chan os.Signal, 1)
		// SIGTERM is the conventional graceful shutdown signal under
		// Kubernetes and most process supervisors.
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)

		if err := s.Start(ctx); err != nil {
			slog.Error("failed to start server", "error", err)
			return
		}

		printGreetings(instanceProfile)

		go func() {
			<-c
			s.Shutdown(ctx)
			memoryManager.CleanupAllMemories()
			if snapshotStore != nil {
				saveSnapshots(snapshotStore, memoryManager)
				if err := snapshotStore.Close(); err != nil {
					slog.Error("failed to close snapshot store", "error", err)
				}
			}
			cancel()
		}()

		<-ctx.Done()
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("port", 28091)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28091, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory for memory snapshots")

	for _, flag := range []string{"mode", "addr", "port", "data"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("luna")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// restoreSnapshots rebuilds the in-memory stores from the last persisted
// states. A partially corrupt snapshot restores what it can.
func restoreSnapshots(ctx context.Context, store *snapshot.Store, manager *memory.Manager) {
	states, err := store.LoadAll(ctx)
	if err != nil {
		slog.Error("failed to load memory snapshots", "error", err)
		return
	}
	for _, state := range states {
		// RestoreState logs skipped records itself; a partial restore is
		// still worth installing.
		_ = manager.RestoreState(state)
	}
	if len(states) > 0 {
		slog.Info("memory snapshots restored", "users", len(states))
	}
}

func saveSnapshots(store *snapshot.Store, manager *memory.Manager) {
	ctx := context.Background()
	if err := store.SaveAll(ctx, manager.ExportStates()); err != nil {
		slog.Error("failed to save memory snapshots", "error", err)
		return
	}
	slog.Info("memory snapshots saved")
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("Luna %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
	}
	fmt.Printf("Mode: %s\n", profile.Mode)
	if profile.IsLLMEnabled() {
		fmt.Printf("LLM provider: %s (%s)\n", profile.LLMProvider, profile.LLMModel)
	} else {
		fmt.Println("LLM provider: disabled (set LUNA_LLM_API_KEY to enable chat)")
	}
	if profile.SnapshotEnabled {
		fmt.Printf("Memory snapshots: %s\n", profile.SnapshotDSN())
	}

	if len(profile.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", profile.Port)
		fmt.Printf("Access Luna at: http://localhost:%d\n", profile.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
		fmt.Printf("Access Luna at: http://%s:%d\n", profile.Addr, profile.Port)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
