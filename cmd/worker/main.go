package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

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
)

// pollInterval bounds how often the worker re-lists due campaigns, grounded
// on the teacher's campaign_scheduler.go poll loop.
const pollInterval = 5 * time.Second

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

	var limiter ratelimit.Limiter
	var lockFactory orchestrator.LockFactory
	if cfg.RateLimiter.Backend == "redis" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisAddr()})
		limiter = ratelimit.NewRedisLimiter(redisClient)
		lockFactory = func(key string) lock.DistLock { return lock.NewRedisLock(redisClient, key, 30*time.Second) }
	} else {
		limiter = ratelimit.NewMemoryLimiter()
		lockFactory = func(key string) lock.DistLock { return lock.NewPGAdvisoryLock(db, key) }
	}

	s := store.New(db)
	clk := clock.SystemClock{}
	sched := scheduler.NewInProcessScheduler(clk, s, pollInterval)
	orch := orchestrator.New(
		s,
		segment.NewEvaluator(db),
		consent.NewService(s),
		limiter,
		newProviderClient(cfg.Provider),
		sched,
		clk,
		lockFactory,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := sched.Restore(ctx, restoreHandler(s, orch)); err != nil {
		logger.Warn("worker: scheduler restore failed", "error", err.Error())
	}
	sched.Start(ctx)
	defer sched.Stop()

	jobs := make(chan string, cfg.Workers.Count*4)
	for i := 0; i < cfg.Workers.Count; i++ {
		go runWorker(ctx, orch, jobs)
	}
	go pollLoop(ctx, s, jobs)

	workerID := uuid.NewString()
	go heartbeatLoop(ctx, s, workerID)

	logger.Info("worker: started", "pool_size", cfg.Workers.Count)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("worker: shutting down")
	stop()
	time.Sleep(time.Duration(cfg.Shutdown.GraceSeconds) * time.Second / 4)
}

// pollLoop lists due campaigns every pollInterval and fans them onto jobs.
// A campaign already in flight simply loses the race on its DistLock inside
// Trigger, so re-listing a still-running campaign is harmless.
func pollLoop(ctx context.Context, s *store.Store, jobs chan<- string) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := s.ListDueCampaigns(ctx)
			if err != nil {
				logger.Warn("worker: list due campaigns failed", "error", err.Error())
				continue
			}
			for _, id := range ids {
				select {
				case jobs <- id:
				default:
					logger.Warn("worker: job queue full, dropping this cycle", "campaign_id", id)
				}
			}
		}
	}
}

func runWorker(ctx context.Context, orch *orchestrator.Orchestrator, jobs <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-jobs:
			if err := orch.Trigger(ctx, id); err != nil {
				logger.Warn("worker: trigger failed", "campaign_id", id, "error", err.Error())
			}
		}
	}
}

func heartbeatLoop(ctx context.Context, s *store.Store, workerID string) {
	hostname, _ := os.Hostname()
	started := time.Now()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb := domain.WorkerHeartbeat{WorkerID: workerID, Hostname: hostname, Status: "alive", StartedAt: started}
			if err := s.UpsertWorkerHeartbeat(ctx, hb); err != nil {
				logger.Warn("worker: heartbeat failed", "error", err.Error())
			}
		}
	}
}

// restoreHandler mirrors cmd/server's: resolve a reloaded "message:<id>"
// key back to its campaign and re-trigger it.
func restoreHandler(s *store.Store, orch *orchestrator.Orchestrator) scheduler.Handler {
	return func(ctx context.Context, key string) {
		messageID, ok := strings.CutPrefix(key, "message:")
		if !ok {
			logger.Warn("worker: restored task has unrecognized key shape", "key", key)
			return
		}
		msg, err := s.GetMessage(ctx, messageID)
		if err != nil {
			logger.Warn("worker: restored task's message not found", "message_id", messageID, "error", err.Error())
			return
		}
		if err := orch.Trigger(ctx, msg.CampaignID); err != nil {
			logger.Warn("worker: restored task trigger failed", "campaign_id", msg.CampaignID, "error", err.Error())
		}
	}
}

func newProviderClient(cfg config.ProviderConfig) provider.Client {
	accountSid, authToken, ok := strings.Cut(cfg.Credentials, ":")
	if !ok {
		logger.Warn("worker: provider.credentials malformed, using fake client")
		return provider.NewFakeClient()
	}
	return provider.NewTwilioClient(accountSid, authToken, cfg.SenderID)
}

func redisAddr() string {
	if a := os.Getenv("REDIS_ADDR"); a != "" {
		return a
	}
	return "localhost:6379"
}
