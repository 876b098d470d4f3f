package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/blochq/bloc/config"
	"github.com/blochq/bloc/engine"
	"github.com/blochq/bloc/handlers"
	"github.com/blochq/bloc/logger"
	"github.com/blochq/bloc/metrics"
	"github.com/blochq/bloc/realtime"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultListenAddr = "0.0.0.0:8080"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	listenFlag := flag.String("listen", defaultListenAddr, "Address to listen on for the API")
	metricsAddrFlag := flag.String("metrics-addr", "", "Address to listen on for prometheus metrics (empty disables)")
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before serving (or set DATABASE_RUN_MIGRATIONS=true)")
	timezoneFlag := flag.String("business-timezone", "", "Time zone used to bucket daily caller quotas (defaults to local)")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 30*time.Second, "Maximum time to wait for in-flight requests during graceful shutdown")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if *migrateFlag || os.Getenv("DATABASE_RUN_MIGRATIONS") == "true" {
		log.Info("running database migrations")
		if err := config.RunMigrations(cfg.DatabaseURL); err != nil {
			return err
		}
	}

	ctx := context.Background()
	if err := config.LoadPostgres(ctx, cfg.DatabaseURL); err != nil {
		return err
	}
	defer config.ClosePostgres()
	log.Info("connected to postgres")

	var loc *time.Location
	if *timezoneFlag != "" {
		loc, err = time.LoadLocation(*timezoneFlag)
		if err != nil {
			return fmt.Errorf("invalid business timezone %q: %w", *timezoneFlag, err)
		}
	}

	eng, err := engine.New(engine.Config{Logger: log, Location: loc})
	if err != nil {
		return err
	}
	rt := realtime.NewConnectionManager(log, 5*time.Second)
	h := handlers.New(log, config.PgPool, eng, rt, cfg.WebhookSecret, cfg.CORSOrigins)

	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("failed to start prometheus metrics listener", "error", err)
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, mux); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:         *listenFlag,
		Handler:      h.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket connections stay open
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server listening", "address", *listenFlag, "version", version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-shutdown:
		log.Info("received signal, shutting down gracefully", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeoutFlag)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}
