package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/pulseward/pulseward/internal/analytics"
	"github.com/pulseward/pulseward/internal/config"
	"github.com/pulseward/pulseward/internal/dispatcher"
	"github.com/pulseward/pulseward/internal/store"
	"github.com/pulseward/pulseward/internal/ticker"
)

func defaultRand() float64 { return rand.Float64() }

// buildVersion is injected by release workflows via -ldflags.
var buildVersion = "dev"

type commandContext struct {
	stdout io.Writer
	stderr io.Writer
}

func writef(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

func writeln(w io.Writer, args ...any) {
	_, _ = fmt.Fprintln(w, args...)
}

func currentVersion() string {
	return buildVersion
}

func runCLI(args []string, stdout, stderr io.Writer) int {
	ctx := commandContext{stdout: stdout, stderr: stderr}

	if len(args) == 0 {
		printRootHelp(stderr)
		return 2
	}

	switch args[0] {
	case "-v", "--version", "version":
		writef(stdout, "pulseward version %s\n", currentVersion())
		return 0
	case "ticker":
		return runTickerCommand(ctx, args[1:])
	case "dispatcher":
		return runDispatcherCommand(ctx, args[1:])
	case "help", "-h", "--help":
		printRootHelp(stdout)
		return 0
	default:
		writef(stderr, "unknown command: %s\n\n", args[0])
		printRootHelp(stderr)
		return 2
	}
}

func printRootHelp(w io.Writer) {
	writeln(w, "pulseward — multi-tenant HTTP health monitoring")
	writeln(w, "")
	writeln(w, "Usage:")
	writeln(w, "  pulseward <command> [flags]")
	writeln(w, "")
	writeln(w, "Commands:")
	writeln(w, "  ticker       run the per-tenant scheduler role")
	writeln(w, "  dispatcher   run the stateless probe engine role")
	writeln(w, "  version      print the build version")
	writeln(w, "  help         show this help")
}

func runTickerCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("ticker", flag.ContinueOnError)
	fs.SetOutput(ctx.stderr)
	help := fs.Bool("help", false, "show help")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *help {
		writeln(ctx.stdout, "pulseward ticker: runs the per-tenant scheduler RPC surface")
		writeln(ctx.stdout, "Configured entirely via config.toml / environment (see internal/config).")
		return 0
	}
	if fs.NArg() > 0 {
		writef(ctx.stderr, "unexpected argument(s): %s\n", strings.Join(fs.Args(), " "))
		return 2
	}
	return serveTicker()
}

func runDispatcherCommand(ctx commandContext, args []string) int {
	fs := flag.NewFlagSet("dispatcher", flag.ContinueOnError)
	fs.SetOutput(ctx.stderr)
	help := fs.Bool("help", false, "show help")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *help {
		writeln(ctx.stdout, "pulseward dispatcher: runs the stateless probe RPC surface")
		writeln(ctx.stdout, "Configured entirely via config.toml / environment (see internal/config).")
		return 0
	}
	if fs.NArg() > 0 {
		writef(ctx.stderr, "unexpected argument(s): %s\n", strings.Join(fs.Args(), " "))
		return 2
	}
	return serveDispatcher()
}

func serveTicker() int {
	cfg := config.Load()
	initLogger(cfg.LogLevel)

	if cfg.DispatchToken == "" {
		slog.Warn("dispatch_token is empty; the dispatcher will reject every dispatch call")
	}

	st, err := store.New(context.Background(), filepath.Join(cfg.DataDir, "pulseward.db"))
	if err != nil {
		slog.Error("store init failed", "err", err)
		return 1
	}
	defer func() { _ = st.Close() }()

	if cfg.DispatcherURL == "" {
		slog.Warn("dispatcher_url is empty; dispatch requests will fail")
	}
	dispatchClient := ticker.NewClient(cfg.DispatcherURL, cfg.DispatchToken)
	registry := ticker.NewRegistry(st, dispatchClient, cfg)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		registry.Shutdown(shutdownCtx)
	}()

	mux := http.NewServeMux()
	ticker.NewHandler(registry).Register(mux)

	return run(cfg.ListenAddr, mux, "ticker")
}

func serveDispatcher() int {
	cfg := config.Load()
	initLogger(cfg.LogLevel)

	if cfg.DispatchToken == "" {
		slog.Warn("dispatch_token is empty; every dispatch call will be rejected with 401")
	}

	st, err := store.New(context.Background(), filepath.Join(cfg.DataDir, "pulseward.db"))
	if err != nil {
		slog.Error("store init failed", "err", err)
		return 1
	}
	defer func() { _ = st.Close() }()

	sink, err := newAnalyticsSink(context.Background(), st, cfg.Analytics)
	if err != nil {
		slog.Error("analytics sink init failed", "err", err)
		return 1
	}
	defer func() { _ = sink.Close() }()

	probe := dispatcher.NewProber(cfg.Region, cfg.Colo)
	gate := analytics.NewGate(defaultRand)
	remediator := dispatcher.NewRemediator(0)
	svc := dispatcher.NewService(st, probe, sink, gate, remediator, cfg.Colo)

	mux := http.NewServeMux()
	dispatcher.NewHandler(svc, cfg.DispatchToken).Register(mux)

	return run(cfg.ListenAddr, mux, "dispatcher")
}

func newAnalyticsSink(ctx context.Context, st *store.Store, cfg config.AnalyticsConfig) (analytics.Sink, error) {
	if !cfg.Enabled() {
		slog.Info("analytics: using local sqlite fallback sink")
		return analytics.NewSQLiteSink(st), nil
	}
	slog.Info("analytics: using clickhouse sink", "addr", cfg.ClickHouseAddr, "db", cfg.ClickHouseDB)
	return analytics.NewClickHouseSink(ctx, analytics.ClickHouseConfig{
		Addr:     cfg.ClickHouseAddr,
		Database: cfg.ClickHouseDB,
		User:     cfg.ClickHouseUser,
		Password: cfg.ClickHousePass,
	})
}
