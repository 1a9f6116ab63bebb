// CLAUDE:SUMMARY Entry point for matrixcalc: HTTP calculator API with SQLite history and saved pages, or MCP over stdio.
// Command matrixcalc serves the matrix calculator API.
//
// Usage:
//
//	matrixcalc                              # :5000, ./matrix_history.db, ./saved_pages
//	matrixcalc -config matrixcalc.yaml      # run with config file
//	matrixcalc -addr :8080 -db /tmp/h.db    # override address and database
//	matrixcalc -mcp                         # serve MCP tools on stdin/stdout
//
// Environment: ADDR, DB_PATH, PAGES_DIR, LOG_LEVEL, CORS_ORIGINS override the
// config file; flags override both.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/matrixcalc/calc"
	"github.com/hazyhaar/matrixcalc/dbopen"
	"github.com/hazyhaar/matrixcalc/history"
	"github.com/hazyhaar/matrixcalc/shield"
	"github.com/hazyhaar/matrixcalc/snapshot"
	"github.com/hazyhaar/matrixcalc/trace"
)

const version = "0.1.0"

type flags struct {
	config   string
	addr     string
	db       string
	pages    string
	logLevel string
	sqlTrace bool
	mcp      bool
}

func main() {
	var f flags
	flag.StringVar(&f.config, "config", "", "path to matrixcalc.yaml config file")
	flag.StringVar(&f.addr, "addr", "", "listen address (default :5000)")
	flag.StringVar(&f.db, "db", "", "path to SQLite history database")
	flag.StringVar(&f.pages, "pages", "", "directory for saved pages")
	flag.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flag.BoolVar(&f.sqlTrace, "sql-trace", false, "log every SQL statement through the tracing driver")
	flag.BoolVar(&f.mcp, "mcp", false, "serve MCP tools over stdio instead of HTTP")
	flag.Parse()

	cfg, err := resolveConfig(f, os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "matrixcalc:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, f.mcp); err != nil {
		logger.Error("matrixcalc: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *calc.Config, stdio bool) error {
	svc, closeFn, err := buildService(cfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	if stdio {
		srv := mcp.NewServer(&mcp.Implementation{Name: "matrixcalc", Version: version}, nil)
		svc.RegisterMCP(srv)
		logger.Info("matrixcalc: serving MCP on stdio", "db", cfg.DBPath)
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp: %w", err)
		}
		return nil
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(svc, cfg),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Addr, "db", cfg.DBPath, "pages", cfg.PagesDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

func buildService(cfg *calc.Config, logger *slog.Logger) (*calc.Service, func(), error) {
	var dbOpts []dbopen.Option
	if cfg.SQLTrace {
		trace.SetSlowThreshold(50 * time.Millisecond)
		dbOpts = append(dbOpts, dbopen.WithTrace())
	}
	store, err := history.Open(cfg.DBPath, history.WithDBOptions(dbOpts...))
	if err != nil {
		return nil, nil, fmt.Errorf("open history: %w", err)
	}
	renderer, err := snapshot.New(cfg.PagesDir, snapshot.WithLabeler(calc.Label), snapshot.WithLogger(logger))
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	svc, err := calc.NewService(store, renderer,
		calc.WithLogger(logger),
		calc.WithHistoryLimits(cfg.HistoryLimit, cfg.HistoryMax),
	)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return svc, func() { store.Close() }, nil
}

func newRouter(svc *calc.Service, cfg *calc.Config) http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(cfg.CORSOrigins) {
		r.Use(mw)
	}
	calc.Mount(r, svc)
	return r
}

// resolveConfig layers the config file, then environment, then flags.
func resolveConfig(f flags, getenv func(string) string) (*calc.Config, error) {
	cfg := &calc.Config{}
	if f.config != "" {
		loaded, err := calc.LoadConfigFile(f.config)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		cfg = loaded
	}

	set := func(dst *string, vals ...string) {
		for _, v := range vals {
			if v != "" {
				*dst = v
			}
		}
	}
	set(&cfg.Addr, getenv("ADDR"), f.addr)
	set(&cfg.DBPath, getenv("DB_PATH"), f.db)
	set(&cfg.PagesDir, getenv("PAGES_DIR"), f.pages)
	set(&cfg.LogLevel, getenv("LOG_LEVEL"), f.logLevel)
	if origins := shield.ParseOrigins(getenv("CORS_ORIGINS")); len(origins) > 0 {
		cfg.CORSOrigins = origins
	}
	if f.sqlTrace {
		cfg.SQLTrace = true
	}
	cfg.Defaults()
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
