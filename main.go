// tenantchat - A terminal client for multi-tenant chat backends.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/tenantchat/internal/cli"
	"github.com/jeranaias/tenantchat/internal/config"
	"github.com/jeranaias/tenantchat/internal/gateway"
	"github.com/jeranaias/tenantchat/internal/model"
	"github.com/jeranaias/tenantchat/internal/orchestrator"
	"github.com/jeranaias/tenantchat/internal/store"
	"github.com/jeranaias/tenantchat/internal/transport"
	"github.com/jeranaias/tenantchat/internal/ui/chat"
	"github.com/jeranaias/tenantchat/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// boolFlags never take a value.
var boolFlags = []string{"plain", "json", "no-cache", "help", "h", "version"}

const usage = `tenantchat - chat with a multi-tenant assistant backend

Usage:
  tenantchat [flags]            start a conversation
  tenantchat threads [--json]   list cached conversations
  tenantchat export <id|N> [--format md|json|html] [--out DIR|-]
                                export a cached conversation
  tenantchat version            print version information

Flags:
  --config PATH     config file (default ~/.tenantchat/config.toml)
  --base-url URL    backend URL (overrides server.base_url)
  --tenant ID       tenant id (overrides server.tenant_id)
  --model KEY       model to start with
  --plain           line-based mode instead of the full-screen UI
  --no-cache        do not load or save conversations locally
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(raw []string) int {
	args := cli.NewArgParser(raw, boolFlags...)

	if args.BoolFlag("help") || args.BoolFlag("h") {
		fmt.Print(usage)
		return 0
	}
	if args.BoolFlag("version") {
		printVersion()
		return 0
	}

	switch args.Subcommand() {
	case "version":
		printVersion()
		return 0
	case "help":
		fmt.Print(usage)
		return 0
	}

	cfg, err := loadConfig(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	switch args.Subcommand() {
	case "threads":
		err = runThreads(cfg, args.BoolFlag("json"))
	case "export":
		err = runExport(cfg, args)
	case "", "chat":
		err = runChat(cfg, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n%s", args.Subcommand(), usage)
		return 2
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printVersion() {
	fmt.Printf("tenantchat %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
}

// =============================================================================
// CONFIG AND LOGGING
// =============================================================================

// loadConfig loads the config file and applies command-line overrides,
// which win over both the file and the environment.
func loadConfig(args *cli.ArgParser) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := args.Flag("config"); path != "" {
		cfg, err = config.LoadFromPath(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	applyFlags(cfg, args)
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config, args *cli.ArgParser) {
	if v := args.Flag("base-url"); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := args.Flag("tenant"); v != "" {
		cfg.Server.TenantID = v
	}
	if v := args.Flag("model"); v != "" {
		cfg.Models.Default = v
	}
	if args.BoolFlag("plain") {
		cfg.UI.Plain = true
	}
	if args.BoolFlag("no-cache") {
		cfg.Storage.Disabled = true
	}
}

// configPath returns the file to watch for changes, or "" when the
// config came from defaults only.
func configPath(args *cli.ArgParser) string {
	if p := args.Flag("config"); p != "" {
		return p
	}
	for _, fn := range []func() (string, error){config.ConfigPathTOML, config.ConfigPathJSON} {
		if p, err := fn(); err == nil {
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	return ""
}

// openLog opens ~/.tenantchat/tenantchat.log. Logging goes to a file so it
// never draws over the UI.
func openLog() (*log.Logger, io.Closer, error) {
	if err := config.EnsureConfigDir(); err != nil {
		return nil, nil, err
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "tenantchat.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log: %w", err)
	}
	return log.New(f, "", log.LstdFlags|log.Lmicroseconds), f, nil
}

// =============================================================================
// THREADS COMMAND
// =============================================================================

func runThreads(cfg *config.Config, asJSON bool) error {
	cache, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer cache.Close()

	return cli.ListThreads(context.Background(), cache, os.Stdout, asJSON, cli.GetTerminalWidth())
}

func runExport(cfg *config.Config, args *cli.ArgParser) error {
	cache, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer cache.Close()

	return cli.ExportCached(context.Background(), cache, args.Positional(1),
		args.FlagOrDefault("format", "md"), args.FlagOrDefault("out", "."), os.Stdout)
}

func openCache(cfg *config.Config) (*store.Cache, error) {
	path, err := cfg.CachePath()
	if err != nil {
		return nil, err
	}
	return store.OpenCache(path, cfg.Storage.MaxThreads)
}

// =============================================================================
// CHAT
// =============================================================================

func runChat(cfg *config.Config, args *cli.ArgParser) error {
	logger, logFile, err := openLog()
	if err != nil {
		logger = log.New(io.Discard, "", 0)
	} else {
		defer logFile.Close()
	}
	logger.Printf("STARTUP | version=%s config=%s", Version, cfg)

	registry, err := cfg.Registry()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	// Thread store, optionally backed by the sqlite cache
	mem, flush, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer flush()

	streamer := transport.NewClient(cfg.Server.BaseURL).
		WithAPIKey(cfg.Server.APIKey).
		WithTenant(cfg.Server.TenantID).
		WithLogger(logger)

	gw := gateway.NewClient(cfg.Server.BaseURL).
		WithAPIKey(cfg.Server.APIKey).
		WithTenant(cfg.Server.TenantID).
		WithTimeout(cfg.Server.Timeout()).
		WithRateLimit(cfg.Server.RatePerSec, cfg.Server.Burst).
		WithLogger(logger)

	modelKey := registry.Lookup(cfg.Models.Default).Key

	if cli.UseFullScreen(cfg.UI.Plain) {
		bridge := chat.NewBridge()
		orch := orchestrator.New(mem, streamer, gw, registry, bridge).WithLogger(logger)
		orch.OnStateChange(bridge.StateChanged)
		watchConfig(ctx, args, orch, logger)

		m := chat.New(orch, mem, bridge, chat.Options{
			Theme:    styles.NewTheme(cfg.UI.Theme),
			ModelKey: modelKey,
			WordWrap: cfg.UI.WordWrap,
		})
		defer m.Close()

		p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("run UI: %w", err)
		}
		orch.Abort()
		return nil
	}

	repl := cli.NewREPL(mem, os.Stdout, modelKey)
	orch := orchestrator.New(mem, streamer, gw, registry, repl).WithLogger(logger)
	repl.SetOrchestrator(orch)
	watchConfig(ctx, args, orch, logger)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	hist := cli.OpenHistory(dir)
	defer hist.Close()

	err = repl.Run(ctx, hist)
	orch.Abort()
	return err
}

// openStore creates the in-memory thread store. Unless the cache is
// disabled it is seeded from sqlite and written back through a
// Persister; flush waits for the final save.
func openStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (*store.Memory, func(), error) {
	if cfg.Storage.Disabled {
		return store.NewMemory(nil), func() {}, nil
	}

	path, err := cfg.CachePath()
	if err != nil {
		return nil, nil, err
	}
	cache, err := store.OpenCache(path, cfg.Storage.MaxThreads)
	if err != nil {
		return nil, nil, fmt.Errorf("open thread cache: %w", err)
	}

	initial, err := cache.Load(ctx)
	if err != nil {
		logger.Printf("CACHE_LOAD_FAILED | path=%s error=%v", path, err)
		initial = model.Threads{}
	}
	logger.Printf("CACHE_LOADED | path=%s threads=%d", path, len(initial))

	mem := store.NewMemory(initial)
	persister := store.NewPersister(mem, cache, 0).WithLogger(logger)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		persister.Run(runCtx)
	}()

	return mem, func() {
		cancel()
		<-done
		cache.Close()
	}, nil
}

// watchConfig hot-reloads the model registry when the config file changes.
func watchConfig(ctx context.Context, args *cli.ArgParser, orch *orchestrator.Orchestrator, logger *log.Logger) {
	path := configPath(args)
	if path == "" {
		return
	}
	w, err := config.NewWatcher(path, config.DefaultWatchDebounce)
	if err != nil {
		logger.Printf("CONFIG_WATCH_FAILED | path=%s error=%v", path, err)
		return
	}
	w.WithLogger(logger)

	go w.Run(ctx, func(cfg *config.Config) {
		reg, err := cfg.Registry()
		if err != nil {
			logger.Printf("CONFIG_REGISTRY_INVALID | error=%v", err)
			return
		}
		orch.SetRegistry(reg)
		logger.Printf("REGISTRY_RELOADED | default=%s streaming=%s", reg.DefaultKey(), reg.StreamingKey())
	})
}
