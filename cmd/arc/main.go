// Package main provides the CLI entry point for arc, a server-side
// ReAct agent execution framework: policy guards, tool-calling loop,
// retries, circuit breakers, fallback models, and response caching
// wrapped around an LLM.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/StarkFactory/arc-reactor-sub012/internal/config"
	"github.com/StarkFactory/arc-reactor-sub012/internal/server"
	"github.com/StarkFactory/arc-reactor-sub012/internal/tracing"
	"github.com/StarkFactory/arc-reactor-sub012/pkg/arc"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
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
		Use:          "arc",
		Short:        "arc - a server-side ReAct agent execution framework",
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd(), buildRunCmd(), buildConfigCmd())
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	var configPath string
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the arc engine server",
		Long: `Start the arc engine server.

Loads configuration, wires the reliable model chain (retry + circuit
breaker + fallbacks), guard pipelines, hooks, and response cache into one
Agent Run Lifecycle, then serves health, metrics, and (if enabled) the
remote approval endpoint until SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
			}
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file (default: $ARC_CONFIG or arc.yaml)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	shutdownTracing, err := tracing.Install(ctx, cfg.Observability.Tracing)
	if err != nil {
		return fmt.Errorf("installing tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	srv, err := server.Build(cfg, defaultTools())
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting arc engine", "version", version, "commit", commit, "http_port", cfg.Server.HTTPPort)
	return srv.ListenAndServe(ctx)
}

func buildRunCmd() *cobra.Command {
	var configPath string
	var systemPrompt string
	var userID string

	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Run a single agent command against stdin/args and print the result",
		Long:  "Run one batch AgentCommand through the lifecycle and print the result as JSON. Reads the prompt from the positional argument, or from stdin if omitted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := resolvePrompt(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			srv, err := server.Build(cfg, defaultTools())
			if err != nil {
				return fmt.Errorf("building server: %w", err)
			}

			result := srv.Lifecycle().Execute(cmd.Context(), &arc.AgentCommand{
				SystemPrompt: systemPrompt,
				UserPrompt:   prompt,
				Mode:         arc.ModeReAct,
				UserID:       userID,
			})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file (default: $ARC_CONFIG or arc.yaml)")
	cmd.Flags().StringVar(&systemPrompt, "system", "", "System prompt")
	cmd.Flags().StringVar(&userID, "user", "cli", "User ID attached to the run")
	return cmd
}

func resolvePrompt(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	scanner := bufio.NewScanner(stdin)
	if !scanner.Scan() {
		return "", fmt.Errorf("no prompt provided: pass it as an argument or via stdin")
	}
	return scanner.Text(), nil
}

func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Inspect and validate configuration"}
	cmd.AddCommand(buildConfigValidateCmd(), buildConfigSchemaCmd())
	return cmd
}

func buildConfigValidateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration valid: default provider %q, %d fallback(s)\n",
				cfg.Providers.Default, len(cfg.Providers.Fallbacks))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file (default: $ARC_CONFIG or arc.yaml)")
	return cmd
}

func buildConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration file's JSON Schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := config.JSONSchema()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(schema, '\n'))
			return err
		},
	}
}

// defaultTools returns the built-in tool registry available to every run.
// A deployment extends this by constructing its own map[string]arc.ToolCallback
// and calling server.Build directly rather than through this CLI.
func defaultTools() map[string]arc.ToolCallback {
	return map[string]arc.ToolCallback{}
}
