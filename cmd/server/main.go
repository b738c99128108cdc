package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/transact-messaging/internal/api"
	"github.com/ignite/transact-messaging/internal/clock"
	"github.com/ignite/transact-messaging/internal/config"
	"github.com/ignite/transact-messaging/internal/consent"
	"github.com/ignite/transact-messaging/internal/domain"
	"github.com/ignite/transact-messaging/internal/lock"
	"github.com/ignite/transact-messaging/internal/orchestrator"
	"github.com/ignite/transact-messaging/internal/pkg/logger"
	"github.com/ignite/transact-messaging/internal/provider"
	"github.com/ignite/transact-messaging/internal/ratelimit"
	"github.com/ignite/transact-messaging/internal/scheduler"
	"github.com/ignite/transact-messaging/internal/segment"
	"github.com/ignite/transact-messaging/internal/store"
	"github.com/ignite/transact-messaging/internal/webhook"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Store.DSN)
	if err != nil {
		log.Fatalf("store: open: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancel()
		log.Fatalf("store: ping: %v", err)
	}
	cancel()
	logger.Info("server: connected to store")

	var redisClient *redis.Client
	var limiter ratelimit.Limiter
	var lockFactory orchestrator.LockFactory
	if cfg.RateLimiter.Backend == "redis" {
		redisClient = redis.NewClient(&redis.Options{Addr: redisAddr()})
		limiter = ratelimit.NewRedisLimiter(redisClient)
		lockFactory = func(key string) lock.DistLock { return lock.NewRedisLock(redisClient, key, 30*time.Second) }
	} else {
		limiter = ratelimit.NewMemoryLimiter()
		lockFactory = func(key string) lock.DistLock { return lock.NewPGAdvisoryLock(db, key) }
	}

	s := store.New(db)
	consentSvc := consent.NewService(s)
	eval := segment.NewEvaluator(db)
	providerCli := newProviderClient(cfg.Provider)
	clk := clock.SystemClock{}

	sched := scheduler.NewInProcessScheduler(clk, s, 5*time.Second)

	orch := orchestrator.New(s, eval, consentSvc, limiter, providerCli, sched, clk, lockFactory)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := sched.Restore(ctx, retryRestoreHandler(s, orch)); err != nil {
		logger.Warn("server: scheduler restore failed", "error", err.Error())
	}
	sched.Start(ctx)
	defer sched.Stop()

	ingestor := webhook.New(s, consentSvc, clk)
	handlers := api.NewHandlers(s, orch)
	health := api.NewHealthChecker(db, redisClient)
	srv := api.NewServer(handlers, health, ingestor)

	go func() {
		addr := ":" + port()
		logger.Info("server: listening", "addr", addr)
		if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	workerID := uuid.NewString()
	go heartbeat(ctx, s, workerID)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server: shutting down")
	stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Shutdown.GraceSeconds)*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server: shutdown error", "error", err.Error())
	}
}

// retryRestoreHandler resolves a reloaded delayed task (keyed "message:<id>"
// by internal/orchestrator) back to its owning campaign and re-triggers it.
// Trigger's own compare-and-set transitions make this safe even if the
// message has since moved past the state that armed the original delay.
func retryRestoreHandler(s *store.Store, orch *orchestrator.Orchestrator) scheduler.Handler {
	return func(ctx context.Context, key string) {
		messageID, ok := strings.CutPrefix(key, "message:")
		if !ok {
			logger.Warn("server: restored task has unrecognized key shape", "key", key)
			return
		}
		msg, err := s.GetMessage(ctx, messageID)
		if err != nil {
			logger.Warn("server: restored task's message not found", "message_id", messageID, "error", err.Error())
			return
		}
		if err := orch.Trigger(ctx, msg.CampaignID); err != nil {
			logger.Warn("server: restored task trigger failed", "campaign_id", msg.CampaignID, "error", err.Error())
		}
	}
}

func newProviderClient(cfg config.ProviderConfig) provider.Client {
	accountSid, authToken, ok := strings.Cut(cfg.Credentials, ":")
	if !ok {
		logger.Warn("server: provider.credentials malformed, using fake client")
		return provider.NewFakeClient()
	}
	return provider.NewTwilioClient(accountSid, authToken, cfg.SenderID)
}

func heartbeat(ctx context.Context, s *store.Store, workerID string) {
	hostname, _ := os.Hostname()
	started := time.Now()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb := domain.WorkerHeartbeat{
				WorkerID: workerID, Hostname: hostname, Status: "alive", StartedAt: started,
			}
			if err := s.UpsertWorkerHeartbeat(ctx, hb); err != nil {
				logger.Warn("server: heartbeat failed", "error", err.Error())
			}
		}
	}
}

func port() string {
	if p := os.Getenv("PORT"); p != "" {
		return p
	}
	return "8080"
}

func redisAddr() string {
	if a := os.Getenv("REDIS_ADDR"); a != "" {
		return a
	}
	return "localhost:6379"
}
