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
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Ghersi75/SnakeAI/logging"
)

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	listen := fs.String("listen", "127.0.0.1:8080", "HTTP listen address")
	dataDirs := fs.String("data-dirs", filepath.Join("data", "episodes"), "Comma-separated executor out-dirs (each holding turns/ and episodes/)")
	staticDir := fs.String("static-dir", "", "Optional directory to serve as SPA static (e.g. viewer/web/dist)")
	refresh := fs.Duration("refresh", 30*time.Second, "How often to rescan the data dirs for new batches")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn, error")
	logPretty := fs.Bool("log-pretty", false, "Indent JSON logs")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	logger, err := logging.New(os.Stderr, *logLevel, *logPretty)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	roots := parseDataRoots(*dataDirs)
	logger.Info("viewer data roots", "roots", strings.Join(roots, ","))

	cache := NewDBCache(roots, *refresh, logger)
	defer cache.Close()
	if err := cache.Refresh(); err != nil {
		logger.Error("open duckdb", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	NewServer(cache, logger).RegisterRoutes(mux)
	if strings.TrimSpace(*staticDir) != "" {
		mux.Handle("/", spaHandler{staticPath: *staticDir, indexPath: filepath.Join(*staticDir, "index.html")})
		logger.Info("serving SPA", "dir", *staticDir)
	}

	srv := &http.Server{
		Addr:              *listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("viewer API listening", "url", "http://"+*listen)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", "error", err)
		}
		logger.Info("viewer stopped")
	}
}
