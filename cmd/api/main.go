package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chandanyadavsde/vms-v2/internal/app"
	"github.com/chandanyadavsde/vms-v2/internal/config"
	"github.com/chandanyadavsde/vms-v2/internal/handlers"
	"github.com/sirupsen/logrus"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := config.NewLogger(cfg)

	// 2. Connect database, redis and NetSuite, migrate schema
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	a, err := app.New(ctx, cfg, log, app.Options{Realtime: true})
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	// 3. Live events for dashboards
	go a.Hub.Run(ctx)

	// 4. Background harvest, when SYNC_INTERVAL or SYNC_ON_STARTUP is set
	a.Sync.Start(ctx)

	// 5. HTTP router
	router := handlers.NewRouter(handlers.Deps{
		Sync:      a.Sync,
		Linker:    a.Linker,
		Reader:    a.Reader,
		Hub:       a.Hub,
		Log:       logrus.NewEntry(log),
		JWTSecret: cfg.JWTSecret,
		Ping:      a.Ping,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.WithField("port", cfg.Port).Info("VMS server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	sig := <-shutdown
	log.WithField("signal", sig.String()).Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown error")
	}

	// Stop the scheduler and the hub, then close connections
	stop()
	a.Sync.Stop()
	a.Close()

	log.Info("shutdown complete")
}
