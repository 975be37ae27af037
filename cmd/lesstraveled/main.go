package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lesstraveled/internal/api"
	"lesstraveled/pkg/config"
	"lesstraveled/pkg/coverage"
	"lesstraveled/pkg/importer"
	"lesstraveled/pkg/logging"
	"lesstraveled/pkg/probe"
	"lesstraveled/pkg/sensor/mocksensor"
	"lesstraveled/pkg/session"
	"lesstraveled/pkg/store"
	"lesstraveled/pkg/version"
	"lesstraveled/pkg/visited"
)

const defaultConfigPath = "configs/lesstraveled.yaml"

var (
	configPath  = flag.String("config", defaultConfigPath, "Path to the YAML config file")
	initConfig  = flag.Bool("init-config", false, "Generate default config file and exit")
	importPath  = flag.String("import", "", "Append the drives of a history document or CSV file to the store and exit")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Handle --init-config flag
	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	if err := config.LoadEnvFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	if *importPath != "" {
		err = runImport(ctx, *configPath, *importPath)
	} else {
		err = run(ctx, *configPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

// setup loads config, starts logging and opens the history store.
func setup(configPath string) (*config.Config, store.HistoryStore, func(), error) {
	appCfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	results := probe.Run(context.Background(), []probe.Probe{
		{Name: "Data directory", Check: probe.DirWritable(appCfg.Store.DataDir), Critical: true},
	})
	if err := probe.AnalyzeResults(results); err != nil {
		cleanupLogs()
		return nil, nil, nil, fmt.Errorf("startup checks failed: %w", err)
	}

	st, closeStore, err := store.Open(appCfg.Store, appCfg.Segment.Gap)
	if err != nil {
		cleanupLogs()
		return nil, nil, nil, err
	}

	cleanup := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := closeStore(closeCtx); err != nil {
			slog.Error("Failed to close history store", "error", err)
		}
		cleanupLogs()
	}
	return appCfg, st, cleanup, nil
}

func runImport(ctx context.Context, configPath, path string) error {
	appCfg, st, cleanup, err := setup(configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := importer.ImportFile(ctx, st, path, appCfg.Segment.Gap.Std())
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	fmt.Printf("Imported %d samples in %d drives (%d duplicates, %d invalid)\n", res.Added, res.Drives, res.Duplicates, res.Invalid)
	return nil
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, st, cleanup, err := setup(configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	slog.Info("Less Traveled started", "version", version.Version, "data_dir", appCfg.Store.DataDir, "backend", appCfg.Store.Backend)

	sess := session.New(ctx, st, visited.New(appCfg.Matcher.Radius.Meters()))
	if err := sess.LoadError(); err != nil {
		slog.Warn("History could not be read; recording continues in memory", "error", err)
	}
	sess.Subscribe(coverageLogger(sess, appCfg.Coverage.Resolution))
	// The current drive is finalized on every exit path.
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := sess.Stop(stopCtx); err != nil {
			slog.Error("Failed to persist final drive", "error", err)
		}
	}()

	if appCfg.Sensor.Provider == "mock" {
		sensor := mocksensor.NewClient(mockConfig(appCfg.Sensor.Mock), sess)
		sensor.Run(ctx)
		defer sensor.Close()
		slog.Info("Mock sensor running", "interval", appCfg.Sensor.Mock.Interval.Std())
	}

	if !appCfg.Server.Enabled {
		<-ctx.Done()
		slog.Info("Context cancelled, shutting down...")
		return nil
	}
	return runServer(ctx, appCfg, sess)
}

func mockConfig(c config.MockSensorConfig) mocksensor.Config {
	return mocksensor.Config{
		StartLat:      c.StartLat,
		StartLon:      c.StartLon,
		StartAlt:      c.StartAlt,
		StartHeading:  c.StartHeading,
		SpeedKmh:      c.SpeedKmh,
		Interval:      c.Interval.Std(),
		TurnEvery:     c.TurnEvery.Std(),
		DriveDuration: c.DriveDuration.Std(),
		PauseDuration: c.PauseDuration.Std(),
		Seed:          time.Now().UnixNano(),
	}
}

// coverageLogger logs the explored-cell count whenever a drive finishes.
func coverageLogger(sess *session.Session, resolution int) session.Listener {
	return func(ev session.Event) {
		if ev.Type != session.EventDriveFinished {
			return
		}
		// Listeners run outside the session lock, so reading drives is safe here.
		report, err := coverage.Compute(sess.Drives(), resolution, 0)
		if err != nil {
			slog.Warn("Coverage unavailable", "error", err)
			return
		}
		slog.Info("Coverage updated", "cells", report.Cells, "regions", report.Regions, "area_km2", report.AreaKm2)
	}
}

func runServer(ctx context.Context, cfg *config.Config, sess *session.Session) error {
	quit := make(chan os.Signal, 1)
	shutdownFunc := shutdownTrigger(quit)

	hub := api.NewHub()
	sess.Subscribe(hub.Publish)

	srv := api.NewServer(cfg.Server.Address,
		api.NewSessionHandler(sess),
		api.NewDrivesHandler(sess, cfg.Coverage.Resolution),
		api.NewConfigHandler(cfg),
		hub,
		shutdownFunc,
	)
	srv.Handler = loggingMiddleware(srv.Handler)

	ln, err := api.Listen(cfg.Server.Address, cfg.Server.MaxConnections)
	if err != nil {
		return err
	}
	return runServerLifecycle(ctx, srv, ln, quit)
}

// shutdownTrigger returns a func that requests shutdown once. Repeated calls
// while a request is pending are dropped.
func shutdownTrigger(quit chan<- os.Signal) func() {
	return func() {
		select {
		case quit <- syscall.SIGTERM:
		default:
		}
	}
}

func runServerLifecycle(ctx context.Context, srv *http.Server, ln net.Listener, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", ln.Addr().String())
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.Trace(slog.Default(), "Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
