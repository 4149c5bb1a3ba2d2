// cmd/server is the application entry point. It wires together all layers
// and starts the HTTP server and the lifecycle promotion sweep.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/meetflow/meetflow/internal/cache"
	"github.com/meetflow/meetflow/internal/config"
	"github.com/meetflow/meetflow/internal/handler"
	"github.com/meetflow/meetflow/internal/notify"
	"github.com/meetflow/meetflow/internal/service"
	"github.com/meetflow/meetflow/internal/store"
	"github.com/meetflow/meetflow/internal/store/memory"
	"github.com/meetflow/meetflow/internal/store/postgres"
)

func main() {
	log := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	configureLogger(log, cfg.Log)

	ctx := context.Background()

	// ── 1. Storage ────────────────────────────────────────────────────────
	var (
		events store.EventStore
		regs   store.RegistrationStore
	)
	switch cfg.Storage.Driver {
	case "memory":
		mem := memory.New()
		events, regs = mem.Events(), mem.Registrations()
		log.Info("using in-memory storage")
	default:
		pool, err := postgres.NewPool(ctx, cfg.Storage.Postgres)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer pool.Close()
		events = postgres.NewEventStore(pool)
		regs = postgres.NewRegistrationStore(pool)
		log.Info("connected to PostgreSQL")
	}

	// ── 2. Optional snapshot cache ────────────────────────────────────────
	var eventCache *cache.EventCache
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := client.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("redis unavailable, cache disabled")
		} else {
			eventCache = cache.New(client, cfg.Redis.CacheTTL)
			log.Info("event snapshot cache enabled")
		}
	}

	// ── 3. Wire up layers ─────────────────────────────────────────────────
	dispatcher := notify.NewDispatcher(&notify.LogSink{Log: log}, log)
	defer dispatcher.Close()

	lifecycle := service.NewLifecycleService(events, dispatcher, log)
	workflow := service.NewRegistrationService(events, regs, dispatcher, log)
	approvals := service.NewApprovalService(events, regs, dispatcher, log)
	attendance := service.NewAttendanceService(events, regs, dispatcher, log)

	h := handler.New(lifecycle, workflow, approvals, attendance, events, regs, eventCache, log)

	// ── 4. Lifecycle promotion sweep ──────────────────────────────────────
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go runSweep(sweepCtx, lifecycle, cfg.Server.PromoteInterval, log)

	// ── 5. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      h.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Infof("server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
	log.Info("server stopped")
}

// runSweep is the time-driven trigger for automatic event transitions.
func runSweep(ctx context.Context, lifecycle *service.LifecycleService, interval time.Duration, log *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := lifecycle.PromoteDueEvents(ctx, now.UTC()); err != nil {
				log.WithError(err).Warn("promotion sweep failed")
			}
		}
	}
}

func configureLogger(log *logrus.Logger, cfg config.LogConfig) {
	if cfg.Format == "json" {
		log.SetFormatter(new(logrus.JSONFormatter))
	}
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		log.SetLevel(level)
	}
}
