package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"reward_engine/internal/config"
	"reward_engine/internal/db"
	httpServer "reward_engine/internal/http"
	"reward_engine/internal/http/handlers"
	"reward_engine/internal/http/middleware"
	"reward_engine/internal/logger"
	"reward_engine/internal/repository"
	"reward_engine/internal/scheduler"
	"reward_engine/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var version = "dev"

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)

	dbPool := db.Connect(cfg.DatabaseURL, cfg.DBMaxConns)
	defer dbPool.Close()

	redisClient := middleware.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// storage
	tx := repository.NewTransactor(dbPool)
	quotas := repository.NewQuotaRepository(dbPool)
	boxes := repository.NewTreasureBoxRepository(dbPool)
	users := repository.NewUserRepository(dbPool)
	adViews := repository.NewAdViewRepository(dbPool)

	// engine
	clock := service.SystemClock{}
	issuer := service.NewRewardIssuer(tx, boxes, users, clock, service.MathRNG{}, cfg.Reward, cfg.TxMaxAttempts)
	ledger := service.NewQuotaLedger(tx, quotas, boxes, issuer, adViews, service.LedgerConfig{
		Policy:      cfg.Quota,
		Retention:   cfg.BoxRetention,
		MaxAttempts: cfg.TxMaxAttempts,
	})
	rewards := service.NewRewardService(ledger, issuer, cfg.RequestTimeout)

	var catalog scheduler.TimezoneCatalog
	if len(cfg.ResetZones) == 0 {
		catalog = scheduler.SelectCatalog(scheduler.NewZoneinfoCatalog(), users)
	} else {
		static, err := scheduler.LoadStaticCatalog(cfg.ResetZones)
		if err != nil {
			logger.Fatal("invalid RESET_ZONES", "error", err)
		}
		catalog = static
	}

	resets, err := scheduler.NewResetScheduler(clock, catalog, users, ledger, scheduler.Config{
		Spec:          cfg.ResetCron,
		Window:        cfg.ResetWindow,
		BatchSize:     cfg.ResetBatchSize,
		Workers:       cfg.ResetWorkers,
		TaskTimeout:   cfg.ResetTaskTimeout,
		SkipIfRunning: cfg.ResetSkipIfRunning,
	})
	if err != nil {
		logger.Fatal("failed to create reset scheduler", "error", err)
	}
	resets.Start()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	httpServer.RegisterRoutes(
		r,
		handlers.NewHandler(rewards),
		handlers.NewHealthHandler(dbPool, redisClient, resets.LastTick, version),
		middleware.NewRateLimiter(redisClient),
		cfg,
	)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	// let a running reset tick finish its batch
	if err := resets.Stop(ctx); err != nil {
		logger.Error("reset scheduler did not stop in time", "error", err)
	}
	ledger.Close()

	logger.Info("server exited")
}
