package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/soocke/worktimer-go/app"
	"github.com/soocke/worktimer-go/catalog"
	"github.com/soocke/worktimer-go/config"
	"github.com/soocke/worktimer-go/domain/capture"
)

var (
	title = color.New(color.FgCyan, color.Bold).SprintfFunc()
	ok    = color.New(color.FgGreen).SprintfFunc()
	warn  = color.New(color.FgYellow).SprintfFunc()
)

func main() {
	fs := flag.NewFlagSet("worktimer", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath(), "config file (.toml or .json)")
	addr := fs.String("addr", "", "bridge listen address (overrides config)")
	debugFlag := fs.Bool("debug", false, "log runtime metrics")
	fs.Usage = printUsage
	_ = fs.Parse(os.Args[1:])

	// Base config from file, then environment, then flags
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, warn("config %s: %v (using defaults)", *cfgPath, err))
	}
	config.LoadFromEnv(cfg)
	if *addr != "" {
		cfg.BridgeAddr = *addr
	}
	if *debugFlag {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
	_ = cfg.Validate()

	logger, logCloser := NewLogger(cfg.LogLevel, cfg.LogDir)

	code := 0
	switch fs.Arg(0) {
	case "", "run":
		code = run(cfg, logger, *cfgPath)
	case "displays":
		code = listDisplays(logger)
	case "projects":
		code = listProjects(cfg, logger)
	case "help":
		printUsage()
	default:
		fmt.Fprintln(os.Stderr, warn("unknown command: %s", fs.Arg(0)))
		printUsage()
		code = 1
	}
	_ = logCloser.Close()
	os.Exit(code)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `%s

Usage:
  worktimer [-config path] [-addr host:port] [-debug] [command]

Commands:
  run        Run the coordinator until interrupted (default)
  displays   List displays available for capture
  projects   List projects from the catalog service
  help       Show this help message
`, title("worktimer - session timer with activity capture"))
}

func run(cfg *config.Config, logger *slog.Logger, cfgPath string) int {
	watchPath := cfgPath
	if _, err := os.Stat(cfgPath); err != nil {
		watchPath = ""
	}
	a, err := app.NewApp(cfg, logger, watchPath, app.Deps{})
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println(title("worktimer running"), ok("bridge ws://%s/ws", cfg.BridgeAddr))
	if err := a.Run(ctx); err != nil {
		logger.Error("coordinator exited", "error", err)
		return 1
	}
	return 0
}

func listDisplays(logger *slog.Logger) int {
	displays, err := capture.NewPlatformDisplays(logger).Enumerate()
	if err != nil {
		fmt.Fprintln(os.Stderr, warn("enumerate displays: %v", err))
		return 1
	}
	fmt.Println(title("Displays"))
	for _, d := range displays {
		fmt.Printf("  [%d] %-24s %dx%d at (%d,%d)\n", d.Index, d.Name, d.Width, d.Height, d.X, d.Y)
	}
	return 0
}

func listProjects(cfg *config.Config, logger *slog.Logger) int {
	client, err := catalog.NewClient(logger, cfg.CatalogURL, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, warn("%v", err))
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	projects, err := client.Projects(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, warn("fetch projects: %v", err))
		return 1
	}
	fmt.Println(title("Projects (%d)", len(projects)))
	for _, p := range projects {
		fmt.Printf("  %s  %s\n", ok("%s", p.ID), p.Name)
	}
	return 0
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "worktimer.toml"
	}
	return filepath.Join(dir, "worktimer", "worktimer.toml")
}
