// Command grove is a terminal client for euphoria-protocol chat rooms.
// It keeps every room it has ever joined in a local SQLite database and
// can be pointed at any number of servers via its config file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/groverooms/grove/internal/chatui"
	"github.com/groverooms/grove/internal/config"
	"github.com/groverooms/grove/internal/logging"
	"github.com/groverooms/grove/internal/room"
	"github.com/groverooms/grove/internal/store"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	fs := flag.NewFlagSet("grove", flag.ContinueOnError)
	dataDir := fs.String("data", defaultDataDir(), "directory for the local database and cookie jar")
	configPath := fs.String("config", defaultConfigPath(), "path to config.yaml")
	verbose := fs.Bool("verbose", false, "enable debug-level logging")
	ephemeral := fs.Bool("ephemeral", false, "do not backfill older history for rooms joined this run")
	offline := fs.Bool("offline", false, "skip autojoin; start with no rooms connected")
	if err := fs.Parse(argv); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "grove: %v\n", err)
		return 1
	}
	if cfg.DataDir == "" {
		cfg.DataDir = *dataDir
	}

	log, err := logging.Init(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "grove: %v\n", err)
		return 1
	}
	defer logging.FlushErrors()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Error("create data dir", zap.Error(err))
		return 1
	}

	dbPath := filepath.Join(cfg.DataDir, "grove.db")
	db, err := store.Open(context.Background(), dbPath, log)
	if err != nil {
		log.Error("open store", zap.Error(err))
		return 1
	}
	defer db.Close()

	cmd := "run"
	args := fs.Args()
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	switch cmd {
	case "run":
		return runUI(db, cfg, log, *ephemeral, *offline)
	case "gc":
		return runGC(db, log)
	case "clear-cookies":
		return runClearCookies(db, log, args)
	default:
		fmt.Fprintf(os.Stderr, "grove: unknown subcommand %q (want run, gc, clear-cookies)\n", cmd)
		return 2
	}
}

func runUI(db *store.DB, cfg config.Config, log *zap.Logger, ephemeral, offline bool) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup := room.NewSupervisor(db, cfg, log)
	if !offline {
		sup.StartAutojoin(ctx, ephemeral)
	}

	var initial store.RoomID
	for _, srv := range cfg.Servers {
		if len(srv.Autojoin) > 0 {
			initial = store.RoomID{Domain: srv.Domain, Name: srv.Autojoin[0]}
			break
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info("shutting down")
		cancel()
	}()

	m := chatui.New(sup, db, log, initial, cfg.UI.Scrolloff)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		log.Error("program exited with error", zap.Error(err))
		return 1
	}
	return 0
}

func runGC(db *store.DB, log *zap.Logger) int {
	if err := db.Compact(context.Background()); err != nil {
		log.Error("compact", zap.Error(err))
		return 1
	}
	return 0
}

func runClearCookies(db *store.DB, log *zap.Logger, args []string) int {
	domain := ""
	if len(args) > 0 {
		domain = strings.TrimSpace(args[0])
	}
	if err := db.ClearCookies(context.Background(), domain); err != nil {
		log.Error("clear cookies", zap.Error(err))
		return 1
	}
	return 0
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "grove")
	}
	return "./data"
}

func defaultConfigPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "grove", "config.yaml")
	}
	return "./config.yaml"
}
