package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/danielvass/outbound-messaging/internal/api"
	"github.com/danielvass/outbound-messaging/internal/cache"
	"github.com/danielvass/outbound-messaging/internal/config"
	"github.com/danielvass/outbound-messaging/internal/dispatch"
	"github.com/danielvass/outbound-messaging/internal/scheduler"
	"github.com/danielvass/outbound-messaging/internal/service"
	"github.com/danielvass/outbound-messaging/internal/store"
	"github.com/danielvass/outbound-messaging/internal/transport"
)

func main() {
	_ = godotenv.Load()

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadAll()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	client := transport.NewWebhookClient(cfg.Webhook.URL)
	dispatcher := dispatch.New(st, client, dispatch.Config{
		Spacing:     cfg.Dispatch.Spacing,
		ContentMax:  cfg.Dispatch.ContentMax,
		SendTimeout: cfg.Dispatch.SendTimeout,
		Retry:       dispatch.RetryPolicy{MaxAttempts: cfg.Dispatch.RetryMax},
	})

	var msgCache cache.MessageCache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		defer rdb.Close()

		rc := cache.NewRedisCache(rdb, cfg.Redis.TTL)
		msgCache = rc
		dispatcher = dispatcher.WithSentHook(rc.StoreSent)
		slog.Info("redis connected", "addr", cfg.Redis.Address)
	}

	svc := service.NewMessaging(st, dispatcher, msgCache)

	sched, err := scheduler.New(cfg.Scheduler.Interval, svc.PromoteDue)
	if err != nil {
		return err
	}
	sched.Start()

	h := api.NewHandler(sched, svc, st)
	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: loggingMiddleware(api.Router(h)),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		sched.Stop()
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}
	sched.Stop()

	slog.Info("stopped cleanly")
	return nil
}

// openStore picks the record store backend: Postgres when POSTGRES_URL
// is set, in-memory otherwise.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	if cfg.Database.PostgresURL == "" {
		slog.Info("POSTGRES_URL not set, using in-memory store")
		return store.NewMemory(), func() {}, nil
	}

	pool, err := store.NewPool(ctx, cfg.Database.PostgresURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres connect: %w", err)
	}
	pg := store.NewPostgres(pool)
	if err := pg.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres schema: %w", err)
	}
	slog.Info("postgres connected")
	return pg, pool.Close, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
