// CLAUDE:SUMMARY Entry point for the development collector: chi API over SQLite and a screenshot directory.
// Command screenright-collector serves a local collector so explorations
// can be recorded and inspected without the hosted service.
//
// Usage:
//
//	screenright-collector -config collector.yaml
//	screenright-collector -addr :8787 -data ./shots
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/screenright/collector"
	"github.com/hazyhaar/screenright/dbopen"
)

func main() {
	configPath := flag.String("config", "", "path to collector.yaml")
	addr := flag.String("addr", "", "listen address (overrides config)")
	dataDir := flag.String("data", "", "screenshot directory (overrides config)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *addr, *dataDir); err != nil {
		logger.Error("collector: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, addr, dataDir string) error {
	cfg, err := collector.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	db, err := dbopen.Open(cfg.DB, dbopen.WithMkdirAll(), dbopen.WithSchema(collector.Schema))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	srv, err := collector.New(db, *cfg, collector.WithLogger(logger))
	if err != nil {
		return err
	}
	return srv.Serve(ctx, cfg.Addr)
}
