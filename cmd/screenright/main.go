// CLAUDE:SUMMARY CLI entry point for screenright: run a YAML exploration scenario or serve the capture tools over MCP stdio.
// Command screenright records screen captures into a collector deployment.
//
// Usage:
//
//	screenright -scenario explore.yaml               # run a scripted exploration
//	screenright -mcp                                 # MCP server on stdio
//	screenright -journal                             # list recent journal sessions
//
// Credentials come from -config and the SCREENRIGHT_* environment variables.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/screenright/capture"
	"github.com/hazyhaar/screenright/dbopen"
	"github.com/hazyhaar/screenright/internal/browser"
	"github.com/hazyhaar/screenright/journal"
	"github.com/hazyhaar/screenright/scenario"
)

var version = "dev"

var errUsage = errors.New("usage: screenright [-config <file>] -scenario <file> | -mcp | -journal")

func main() {
	configPath := flag.String("config", "", "path to screenright.yaml config file")
	scenarioPath := flag.String("scenario", "", "run the exploration scenario in this YAML file")
	mcpMode := flag.Bool("mcp", false, "serve screenright tools over MCP stdio")
	listJournal := flag.Bool("journal", false, "print recent journal sessions and exit")
	diagramID := flag.String("diagram", "", "diagram ID (overrides config and scenario)")
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

	err := run(ctx, logger, *configPath, *scenarioPath, *diagramID, *mcpMode, *listJournal)
	switch {
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	case err != nil:
		logger.Error("screenright: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, scenarioPath, diagramID string, mcpMode, listJournal bool) error {
	if scenarioPath == "" && !mcpMode && !listJournal {
		return errUsage
	}
	cfg, err := capture.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var j *journal.Journal
	if cfg.JournalDB != "" {
		db, err := dbopen.Open(cfg.JournalDB, dbopen.WithMkdirAll(), dbopen.WithSchema(journal.Schema))
		if err != nil {
			return fmt.Errorf("journal db: %w", err)
		}
		defer db.Close()
		j = journal.New(db, journal.WithLogger(logger))
	}

	if listJournal {
		if j == nil {
			return fmt.Errorf("journal_db is not configured")
		}
		return printJournal(ctx, j)
	}

	rec := capture.New(cfg, capture.WithJournal(j), capture.WithLogger(logger))

	mgr, err := newBrowser(cfg.Browser, logger)
	if err != nil {
		return err
	}
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("browser start: %w", err)
	}
	defer mgr.Close()

	page, err := mgr.NewPage(ctx)
	if err != nil {
		return err
	}
	defer page.Close()

	if mcpMode {
		return serveMCP(ctx, logger, rec, page)
	}
	return runScenario(ctx, logger, rec, page, scenarioPath, diagramID)
}

func newBrowser(bc capture.BrowserConfig, logger *slog.Logger) (*browser.Manager, error) {
	level, err := browser.ParseLevel(bc.Stealth)
	if err != nil {
		return nil, err
	}
	return browser.NewManager(browser.Config{
		RemoteURL:         bc.Remote,
		ResourceBlocking:  bc.ResourceBlocking,
		Stealth:           level,
		NavigationTimeout: bc.NavigationTimeout,
		ViewportWidth:     bc.Viewport.Width,
		ViewportHeight:    bc.Viewport.Height,
		Logger:            logger,
	}), nil
}

func runScenario(ctx context.Context, logger *slog.Logger, rec *capture.Recorder, page *browser.Page, path, diagramID string) error {
	sc, err := scenario.Load(path)
	if err != nil {
		return err
	}
	if diagramID != "" {
		sc.DiagramID = diagramID
	}

	rep, runErr := scenario.Run(ctx, rec, page, sc, logger)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return err
	}
	if runErr != nil {
		// The exploration itself completed; the collector side did not.
		logger.Warn("screenright: session incomplete", "error", runErr)
	}
	return nil
}

func serveMCP(ctx context.Context, logger *slog.Logger, rec *capture.Recorder, page *browser.Page) error {
	host := capture.NewHost(rec, page)
	srv := mcp.NewServer(&mcp.Implementation{Name: "screenright", Version: version}, nil)
	host.RegisterMCP(srv)

	logger.Info("screenright: MCP server on stdio")
	err := srv.Run(ctx, &mcp.StdioTransport{})

	if cerr := host.Shutdown(context.WithoutCancel(ctx)); cerr != nil {
		logger.Warn("screenright: close on shutdown", "error", cerr)
	}
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func printJournal(ctx context.Context, j *journal.Journal) error {
	sessions, err := j.Sessions(ctx, 20)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		caps, err := j.Captures(ctx, s.ID)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %-8s  diagram=%s deployment=%s captures=%d %s\n",
			s.OpenedAt.Format("2006-01-02 15:04:05"), s.State, s.DiagramID, s.DeploymentID, len(caps), s.Error)
	}
	return nil
}
