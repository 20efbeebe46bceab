package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/parking-10easy/ParkEZ-sub002/internal/arbiter"
	"github.com/parking-10easy/ParkEZ-sub002/internal/clock"
	"github.com/parking-10easy/ParkEZ-sub002/internal/config"
	"github.com/parking-10easy/ParkEZ-sub002/internal/database"
	"github.com/parking-10easy/ParkEZ-sub002/internal/handler"
	"github.com/parking-10easy/ParkEZ-sub002/internal/lock"
	"github.com/parking-10easy/ParkEZ-sub002/internal/queue"
	"github.com/parking-10easy/ParkEZ-sub002/internal/repository"
	"github.com/parking-10easy/ParkEZ-sub002/internal/router"
	queue_publisher "github.com/parking-10easy/ParkEZ-sub002/internal/service"
	"github.com/parking-10easy/ParkEZ-sub002/internal/sweeper"
	"github.com/parking-10easy/ParkEZ-sub002/internal/waitqueue"
)

func main() {
	// .env is a local development convenience; in deployed environments the
	// variables come from the process environment and the file is absent.
	_ = godotenv.Load()

	cfg := config.Load()
	lockCfg := config.LoadLockConfig()
	sweepCfg := config.LoadSweeperConfig()
	rateCfg := config.LoadRateLimitConfig()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient() // nil when REDIS_ADDR is unset or unreachable

	// The lock coordinator and the waiting queue degrade together: without
	// Redis the queue falls back to process memory, which is only correct
	// for a single instance.
	var locks lock.Coordinator
	switch lockCfg.Strategy {
	case config.LockStrategyRedis:
		if rdb == nil {
			log.Println("[main] LOCK_STRATEGY=redis but Redis unavailable, using in-process locks")
			locks = lock.NewMemory()
		} else {
			locks = lock.NewRedis(rdb)
		}
	case config.LockStrategyDB:
		locks = lock.NewDB(db)
	case config.LockStrategyMemory:
		locks = lock.NewMemory()
	default:
		log.Fatalf("unknown LOCK_STRATEGY %q", lockCfg.Strategy)
	}

	var waits waitqueue.Queue
	if rdb != nil {
		waits = waitqueue.NewRedis(rdb)
	} else {
		log.Println("[main] Redis unavailable, waiting queue held in process memory")
		waits = waitqueue.NewMemory()
	}

	zoneRepo := repository.NewZoneRepo(db)
	resvRepo := repository.NewReservationRepo(db)

	arb := arbiter.New(resvRepo, locks, waits, queue_publisher.Sink{}, clock.NewSystem(),
		arbiter.WithAcquireWait(lockCfg.AcquireWait),
		arbiter.WithLease(lockCfg.Lease),
		arbiter.WithMaxDuration(sweepCfg.MaxDuration),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sw := sweeper.New(resvRepo, arb, waits, locks, clock.NewSystem(), sweepCfg)
	sw.Start(ctx)
	defer sw.Stop()

	go func() {
		if err := queue.StartReservationConsumer(); err != nil {
			log.Printf("[main] reservation consumer disabled: %v", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	router.Register(e, router.Deps{
		Cfg:     cfg,
		RateCfg: rateCfg,
		Redis:   rdb,
		Zones:   handler.NewZoneHandler(zoneRepo, resvRepo),
		Resv:    handler.NewReservationHandler(arb, resvRepo, waits),
	})

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutCtx); err != nil {
			log.Printf("[main] shutdown: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s, lock=%s)", addr, cfg.Env, lockCfg.Strategy)
	if err := e.Start(addr); err != nil {
		log.Printf("[main] server stopped: %v", err)
	}
}
