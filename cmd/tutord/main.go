// Tutord is a conversational tutoring backend.
//
// It exposes an HTTP API for conversations, turn execution, learner
// memories, and gamification stats. Configuration is loaded from a
// single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	tutord serve             Start the API server
//	tutord init [dir]        Initialize a working directory with defaults
//	tutord version           Print version and build information
//	tutord -o json version   Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sahayak/tutor-agent/examples"
	"github.com/sahayak/tutor-agent/internal/agent"
	"github.com/sahayak/tutor-agent/internal/api"
	"github.com/sahayak/tutor-agent/internal/buildinfo"
	"github.com/sahayak/tutor-agent/internal/config"
	"github.com/sahayak/tutor-agent/internal/embeddings"
	"github.com/sahayak/tutor-agent/internal/llm"
	"github.com/sahayak/tutor-agent/internal/memory"
	"github.com/sahayak/tutor-agent/internal/search"
	"github.com/sahayak/tutor-agent/internal/store"
	"github.com/sahayak/tutor-agent/internal/tools"
)

// main constructs the OS-level environment (context, stdio, argv) and
// delegates immediately to [run]. This keeps os.Exit, os.Stdout, and
// os.Args out of the application logic so the full startup-to-shutdown
// lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the tutord command. Arguments are
// parsed by hand: the flag package relies on package-level globals
// (flag.CommandLine), which makes it impossible to call run()
// concurrently from tests, and our argument surface is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Tutord - Conversational Tutoring Backend")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: tutord [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  init [dir]   Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/tutord/config.yaml, /etc/tutord/config.yaml")
	return nil
}

// runInit writes the example config file into dir, refusing to
// overwrite an existing one.
func runInit(stdout io.Writer, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("refusing to overwrite existing %s", path)
	}
	if err := os.WriteFile(path, examples.ConfigYAML, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Fprintf(stdout, "Wrote %s\n", path)
	fmt.Fprintln(stdout, "Edit it (or export ANTHROPIC_API_KEY) and run: tutord serve")
	return nil
}

// runServe is the primary operating mode: loads config, opens the
// database, wires the provider resolver, tool registry, and agent, then
// serves HTTP until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting tutord", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	// Reconfigure the logger now that the desired level is known. The
	// initial Info-level logger only covers the startup banner.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level)
	}
	logger.Info("config loaded", "path", cfgPath, "port", cfg.Listen.Port, "provider", cfg.Provider.Default)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	// --- Conversation store ---
	// SQLite database holding learners, conversations, messages, and
	// per-learner model settings.
	dbPath := filepath.Join(cfg.DataDir, "tutord.db")
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database %s: %w", dbPath, err)
	}
	defer st.Close()
	logger.Info("database opened", "path", dbPath)

	// --- Memory store ---
	// Long-term learner memory with vector embeddings, sharing the same
	// database file.
	embClient := embeddings.New(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
	})
	memories, err := memory.NewStore(st.DB(), embClient)
	if err != nil {
		return fmt.Errorf("create memory store: %w", err)
	}
	logger.Info("memory store initialized", "embedding_model", cfg.Embeddings.Model)

	// --- Model backends ---
	// The resolver picks per turn: a learner's persisted override when
	// present, the configured default otherwise.
	resolver := llm.NewResolver(llm.ResolverConfig{
		Default:         cfg.Provider.Default,
		AnthropicAPIKey: cfg.Provider.Anthropic.APIKey,
		AnthropicModel:  cfg.Provider.Anthropic.Model,
		GroqAPIKey:      cfg.Provider.Groq.APIKey,
		GroqModel:       cfg.Provider.Groq.Model,
		OllamaBaseURL:   cfg.Provider.Ollama.BaseURL,
		OllamaModel:     cfg.Provider.Ollama.Model,
	}, st, logger)

	// --- Web search ---
	// Optional. Without a configured provider the search tools degrade
	// to a "not configured" message instead of failing turns.
	searcher := search.NewManager(cfg.Search.Primary)
	if cfg.Search.SearXNG.URL != "" {
		searcher.Register(search.NewSearXNG(cfg.Search.SearXNG.URL))
	}
	if cfg.Search.Brave.APIKey != "" {
		searcher.Register(search.NewBrave(cfg.Search.Brave.APIKey))
	}
	if searcher.Configured() {
		logger.Info("web search enabled", "primary", cfg.Search.Primary)
	} else {
		logger.Warn("web search disabled (no providers configured)")
	}

	// --- Tool registry ---
	registry, err := tools.NewTutorRegistry(memories, st, searcher)
	if err != nil {
		return fmt.Errorf("build tool registry: %w", err)
	}

	// --- Turn orchestrator ---
	ag := agent.New(st, memories, resolver, registry, agent.Config{
		MaxToolIterations:   cfg.Agent.MaxToolIterations,
		RolloverThreshold:   cfg.Agent.RolloverThreshold,
		MinSubstantiveChars: cfg.Agent.MinSubstantiveChars,
	}, logger)

	// --- API server and graceful shutdown ---
	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, ag, st, memories, logger)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		_ = server.Shutdown(context.Background())
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("tutord stopped")
	return nil
}

// newLogger creates a structured text logger writing to w. All log
// output in tutord goes through slog; this helper standardizes handler
// configuration.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}
