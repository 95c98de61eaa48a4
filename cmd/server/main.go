// Command happycat-server runs the happycat HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/happycat/internal/api"
	"github.com/charlesng35/happycat/internal/app"
	"github.com/charlesng35/happycat/internal/database"
	"github.com/charlesng35/happycat/pkg/logger"
)

const (
	defaultShutdownTimeout = 15 * time.Second
	readHeaderTimeout      = 10 * time.Second
)

type options struct {
	configPath  string
	migrateOnly bool
}

func parseOptions(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("happycat-server", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "configuration directory or config.yaml path")
	fs.BoolVar(&opts.migrateOnly, "migrate", false, "apply migrations and seed data, then exit")
	return opts, fs.Parse(args)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, err := parseOptions(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err == nil {
		err = run(ctx, opts)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "happycat-server:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := loadApplicationConfig(opts.configPath)
	if err != nil {
		return err
	}
	generated, err := app.ApplyRuntimeDefaults(cfg)
	if err != nil {
		return err
	}
	if err := app.ConfigureLogging(cfg.Server); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.WithModule("bootstrap")
	for key := range generated {
		log.Warn("no secret configured, generated an ephemeral one", zap.String("key", key))
	}
	if err := ensureSecretsPresent(cfg); err != nil {
		return err
	}

	if opts.migrateOnly {
		db, err := initialiseDatabase(ctx, cfg, log)
		if err != nil {
			return err
		}
		log.Info("migrations applied")
		return database.Close(db)
	}

	rt, err := bootstrapRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
		defer cancel()
		rt.Shutdown(stopCtx)
	}()

	router, err := api.NewRouter(rt.router)
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Server.Port)),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return serve(ctx, srv, shutdownTimeout(cfg), log)
}

// serve runs srv until ctx is cancelled, then drains in-flight requests for
// at most grace.
func serve(ctx context.Context, srv *http.Server, grace time.Duration, log *zap.Logger) error {
	failed := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()

	select {
	case err := <-failed:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down", zap.Duration("grace", grace))
	drainCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// loadApplicationConfig accepts either a directory holding config.yaml or
// the file itself.
func loadApplicationConfig(path string) (*app.Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return app.LoadConfig()
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("config path %q does not exist", path)
	case err != nil:
		return nil, fmt.Errorf("stat config path: %w", err)
	case info.IsDir():
		return app.LoadConfig(path)
	default:
		return app.LoadConfig(filepath.Dir(path))
	}
}

func shutdownTimeout(cfg *app.Config) time.Duration {
	if cfg.Server.ShutdownTimeout > 0 {
		return cfg.Server.ShutdownTimeout
	}
	return defaultShutdownTimeout
}
