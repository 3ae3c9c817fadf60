// Package main provides the CLI entry point for the turn-execution engine.
//
// # Basic Usage
//
// Run a single turn against a config, streaming events to stdout as JSON
// lines:
//
//	turnengine run --config turnengine.yaml --turn-id t-1 --message "hello"
//
// # Environment Variables
//
//   - TURNENGINE_CONFIG: path to the configuration file (default: turnengine.yaml)
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/turnengine/engine/internal/config"
	"github.com/turnengine/engine/internal/gateway"
	"github.com/turnengine/engine/internal/graph"
	"github.com/turnengine/engine/internal/history"
	"github.com/turnengine/engine/internal/llm"
	"github.com/turnengine/engine/internal/maintenance"
	"github.com/turnengine/engine/internal/mcp"
	"github.com/turnengine/engine/internal/observability"
	"github.com/turnengine/engine/internal/runner"
	"github.com/turnengine/engine/internal/toolkit"
	"github.com/turnengine/engine/internal/wiring"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "turnengine",
		Short:        "turnengine - a single-turn, node-graph LLM execution engine",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildRunCmd(), buildDoctorCmd(), buildServeCmd())
	return rootCmd
}

func buildRunCmd() *cobra.Command {
	var configPath, turnID, message, tz string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single turn and stream its events to stdout as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = os.Getenv("TURNENGINE_CONFIG")
			}
			if configPath == "" {
				configPath = "turnengine.yaml"
			}
			if turnID == "" {
				turnID = uuid.NewString()
			}
			if message == "" {
				return fmt.Errorf("run: --message is required")
			}
			if tz == "" {
				tz = "UTC"
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("run: load config: %w", err)
			}

			deps, svc, g, err := wireEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			nowISO := time.Now().UTC().Format(time.RFC3339)
			events, outcome := runner.Run(cmd.Context(), turnID, message, nowISO, tz, deps, svc, g)

			w := bufio.NewWriter(os.Stdout)
			enc := json.NewEncoder(w)
			for ev := range events {
				if err := enc.Encode(ev); err != nil {
					return fmt.Errorf("run: encode event: %w", err)
				}
			}
			_ = w.Flush()

			out := <-outcome
			if out.Err != nil {
				return fmt.Errorf("run: turn failed: %w", out.Err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the engine config (default: $TURNENGINE_CONFIG or turnengine.yaml)")
	cmd.Flags().StringVar(&turnID, "turn-id", "", "turn id (default: a generated uuid)")
	cmd.Flags().StringVar(&message, "message", "", "the user's message for this turn")
	cmd.Flags().StringVar(&tz, "tz", "", "IANA timezone for this turn (default: UTC)")
	return cmd
}

func buildDoctorCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and confirm the provider and MCP server are reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = os.Getenv("TURNENGINE_CONFIG")
			}
			if configPath == "" {
				configPath = "turnengine.yaml"
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("doctor: load config: %w", err)
			}
			fmt.Printf("config OK: provider.kind=%s roles=%d\n", providerKindOrDefault(cfg.Provider.Kind), len(cfg.Roles))

			provider, err := llm.NewProvider(cmd.Context(), cfg.Provider.Kind, llm.ProviderConfig{
				BaseURL:         cfg.Provider.BaseURL,
				APIKey:          cfg.Provider.APIKey,
				DefaultModel:    cfg.Provider.DefaultModel,
				Timeout:         10 * time.Second,
				Region:          cfg.Provider.Region,
				AccessKeyID:     cfg.Provider.AccessKeyID,
				SecretAccessKey: cfg.Provider.SecretAccessKey,
				SessionToken:    cfg.Provider.SessionToken,
			})
			if err != nil {
				return fmt.Errorf("doctor: provider %s: %w", providerKindOrDefault(cfg.Provider.Kind), err)
			}
			fmt.Printf("provider OK: %s\n", provider.Name())

			if cfg.Provider.Kind == "bedrock" {
				if err := llm.VerifyBedrockModel(cmd.Context(), llm.BedrockConfig{
					Region:          cfg.Provider.Region,
					AccessKeyID:     cfg.Provider.AccessKeyID,
					SecretAccessKey: cfg.Provider.SecretAccessKey,
					SessionToken:    cfg.Provider.SessionToken,
					DefaultModel:    cfg.Provider.DefaultModel,
				}, cfg.Provider.DefaultModel); err != nil {
					return fmt.Errorf("doctor: bedrock model %q: %w", cfg.Provider.DefaultModel, err)
				}
				fmt.Printf("bedrock model OK: %s\n", cfg.Provider.DefaultModel)
			}

			if cfg.MCP.URL == "" {
				fmt.Println("mcp: not configured, skipping reachability check")
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			client := mcp.NewClient(mcpServerConfig(cfg.MCP), slog.Default())
			if err := client.Connect(ctx); err != nil {
				return fmt.Errorf("doctor: mcp server %s unreachable: %w", cfg.MCP.ServerID, err)
			}
			defer client.Close()
			fmt.Printf("mcp OK: %s (%s)\n", cfg.MCP.ServerID, cfg.MCP.URL)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the engine config")
	return cmd
}

func providerKindOrDefault(kind string) string {
	if kind == "" {
		return "ollama"
	}
	return kind
}

// buildServeCmd starts the Event Stream Gateway (§4.19) alongside the
// optional config/prompt hot-reload watcher (§4.20) and maintenance
// scheduler (§4.21), all sharing the Deps/Services/Graph triple wireEngine
// builds for the run command.
func buildServeCmd() *cobra.Command {
	var configPath, addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the event-stream gateway over HTTP+WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = os.Getenv("TURNENGINE_CONFIG")
			}
			if configPath == "" {
				configPath = "turnengine.yaml"
			}
			if addr == "" {
				addr = ":8080"
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("serve: load config: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			deps, svc, g, err := wireEngine(ctx, cfg)
			if err != nil {
				return err
			}

			logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
			metrics := observability.NewMetrics()
			srv := gateway.New(deps, svc, g, metrics, logger)

			var watcher *config.Watcher
			if cfg.Watch.Enabled {
				debounce := time.Duration(cfg.Watch.DebounceMillis) * time.Millisecond
				watcher, err = config.NewWatcher(config.WatchConfig{
					ConfigPath: configPath,
					PromptDir:  cfg.Paths.Prompts,
					Debounce:   debounce,
					OnConfigChange: func(next *config.Config) {
						// TODO: swap deps.Roles/Provider from next once wiring.Deps
						// supports atomic replacement; today a config edit is
						// picked up only on the next process restart.
						logger.Info(ctx, "config change validated, restart to apply", "path", configPath)
						cfg = next
					},
					OnPromptChange: func(path string) {
						logger.Info(ctx, "prompt template changed", "path", path)
					},
				})
				if err != nil {
					return fmt.Errorf("serve: start config watcher: %w", err)
				}
				defer watcher.Close()
			}

			sched, err := buildScheduler(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			if sched != nil {
				sched.Start()
				defer sched.Stop()
			}

			logger.Info(ctx, "serve: listening", "addr", addr)
			if err := srv.ListenAndServe(ctx, addr); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the engine config (default: $TURNENGINE_CONFIG or turnengine.yaml)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: :8080)")
	return cmd
}

// buildScheduler builds the maintenance scheduler (§4.21) when at least one
// cron expression is configured, wiring it to a history.Store (file-backed
// unless store.driver names a SQL dialect, §4.17) and, when a snapshot
// bucket is configured, an S3 Snapshotter over the world-state path.
func buildScheduler(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*maintenance.Scheduler, error) {
	if cfg.Maintenance.HistoryTrimCron == "" && cfg.Maintenance.WorldSnapshotCron == "" {
		return nil, nil
	}

	var snap *maintenance.Snapshotter
	if cfg.Maintenance.WorldSnapshotCron != "" {
		var err error
		snap, err = maintenance.NewSnapshotter(ctx, maintenance.SnapshotConfig{
			Bucket:          cfg.Maintenance.Snapshot.Bucket,
			Region:          cfg.Maintenance.Snapshot.Region,
			Endpoint:        cfg.Maintenance.Snapshot.Endpoint,
			Prefix:          cfg.Maintenance.Snapshot.Prefix,
			AccessKeyID:     cfg.Maintenance.Snapshot.AccessKeyID,
			SecretAccessKey: cfg.Maintenance.Snapshot.SecretAccessKey,
			UsePathStyle:    cfg.Maintenance.Snapshot.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("build snapshotter: %w", err)
		}
	}

	hist, err := buildHistoryStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build history store: %w", err)
	}
	return maintenance.NewScheduler(maintenance.SchedulerConfig{
		HistoryTrimCron:   cfg.Maintenance.HistoryTrimCron,
		HistoryMaxTurns:   cfg.History.MaxTurns,
		WorldSnapshotCron: cfg.Maintenance.WorldSnapshotCron,
		WorldStatePath:    cfg.Paths.WorldState,
	}, hist, snap, logger)
}

// buildHistoryStore selects the history.Store backing the maintenance
// scheduler's trim job (§4.17, §4.21): an empty driver keeps the existing
// JSONL file; any other value ("postgres", "sqlite3") is handed to
// database/sql as the driver name and opened over the configured DSN.
func buildHistoryStore(ctx context.Context, cfg *config.Config) (history.Store, error) {
	driver := cfg.Store.Driver
	if driver == "" {
		return history.NewFileStore(cfg.Paths.ChatHistory), nil
	}
	sqlCfg := history.DefaultSQLConfig()
	sqlCfg.Driver = driver
	sqlCfg.DSN = cfg.Store.DSN
	if cfg.Store.MaxOpenConns > 0 {
		sqlCfg.MaxOpenConns = cfg.Store.MaxOpenConns
	}
	if cfg.Store.MaxIdleConns > 0 {
		sqlCfg.MaxIdleConns = cfg.Store.MaxIdleConns
	}
	if cfg.Store.ConnMaxLifetime > 0 {
		sqlCfg.ConnMaxLifetime = time.Duration(cfg.Store.ConnMaxLifetime) * time.Second
	}
	return history.NewSQLStore(ctx, sqlCfg)
}

// mcpServerConfig translates a config.MCPConfig into an mcp.ServerConfig,
// threading the static api_key header and the optional jwt/oauth2 auth mode
// (§4.22) the same way for both the run/serve wiring path and doctor's
// reachability check.
func mcpServerConfig(cfg config.MCPConfig) *mcp.ServerConfig {
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}
	var auth *mcp.AuthConfig
	if cfg.Auth.Mode != "" {
		auth = &mcp.AuthConfig{
			Mode:              mcp.AuthMode(cfg.Auth.Mode),
			JWTSecret:         cfg.Auth.JWTSecret,
			JWTSubject:        cfg.Auth.JWTSubject,
			JWTExpiry:         time.Duration(cfg.Auth.JWTExpirySeconds) * time.Second,
			OAuthClientID:     cfg.Auth.OAuthClientID,
			OAuthClientSecret: cfg.Auth.OAuthClientSecret,
			OAuthTokenURL:     cfg.Auth.OAuthTokenURL,
			OAuthScopes:       cfg.Auth.OAuthScopes,
		}
	}
	return &mcp.ServerConfig{
		ID:              cfg.ServerID,
		URL:             cfg.URL,
		Headers:         headers,
		ProtocolVersion: cfg.ProtocolVersion,
		Auth:            auth,
	}
}

// wireEngine builds the Deps/Services/Graph triple a turn run needs from a
// loaded Config (§6, §4.15).
func wireEngine(ctx context.Context, cfg *config.Config) (*wiring.Deps, *wiring.Services, *graph.Graph, error) {
	provider, err := llm.NewProvider(ctx, cfg.Provider.Kind, llm.ProviderConfig{
		BaseURL:         cfg.Provider.BaseURL,
		APIKey:          cfg.Provider.APIKey,
		DefaultModel:    cfg.Provider.DefaultModel,
		Timeout:         60 * time.Second,
		Region:          cfg.Provider.Region,
		AccessKeyID:     cfg.Provider.AccessKeyID,
		SecretAccessKey: cfg.Provider.SecretAccessKey,
		SessionToken:    cfg.Provider.SessionToken,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("wire engine: %w", err)
	}

	roles := make(map[string]wiring.RoleConfig, len(cfg.Roles))
	for name, rc := range cfg.Roles {
		roles[name] = wiring.RoleConfig{
			Model:          rc.Model,
			Params:         llm.Params(rc.Params),
			ResponseFormat: llm.ResponseFormat(rc.ResponseFormat),
		}
	}

	deps := &wiring.Deps{
		Provider:    provider,
		PromptDir:   cfg.Paths.Prompts,
		Roles:       roles,
		ToolStepCap: cfg.Tools.StepLimit,
	}

	hist := history.New(cfg.Paths.ChatHistory)

	var memoryClient *mcp.Client
	if cfg.MCP.URL != "" {
		memoryClient = mcp.NewClient(mcpServerConfig(cfg.MCP), slog.Default())
	}

	reg := toolkit.NewRegistry()
	toolkit.RegisterCoreTools(reg, &toolkit.Resources{
		History:      hist,
		WorldPath:    cfg.Paths.WorldState,
		MemoryClient: memoryClient,
		MemoryServer: cfg.MCP.ServerID,
	})

	enabledSkills := []string{toolkit.SkillCoreContext, toolkit.SkillCoreWorld}
	if memoryClient != nil {
		enabledSkills = append(enabledSkills, toolkit.SkillMCPMemoryR, toolkit.SkillMCPMemoryW)
	}
	fw := toolkit.NewFirewall(reg, toolkit.DefaultSkills(), toolkit.DefaultPolicy(), enabledSkills)

	svc := &wiring.Services{
		Registry:  reg,
		Firewall:  fw,
		WorldPath: cfg.Paths.WorldState,
		MemoryMCP: memoryClient,
	}

	return deps, svc, graph.New(deps, svc), nil
}
