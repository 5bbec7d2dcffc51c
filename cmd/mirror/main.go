package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"oraclex/internal/chain"
	"oraclex/internal/config"
	cronrunner "oraclex/internal/cron"
	"oraclex/internal/db"
	"oraclex/internal/feed"
	"oraclex/internal/handler"
	"oraclex/internal/logger"
	gormrepository "oraclex/internal/repository/gorm"
	eventsync "oraclex/internal/sync"

	_ "oraclex/docs"
)

func main() {
	cfgPath := os.Getenv("ORACLEX_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("ORACLEX_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	// A missing contract address is a configuration gap, not a fatal error:
	// the read API keeps serving mirrored data with sync disabled.
	chainClient, err := chain.New(cfg.Chain, logger)
	if err != nil {
		if errors.Is(err, chain.ErrMissingContract) {
			logger.Warn("event sync disabled", zap.Error(err))
			chainClient = nil
		} else {
			logger.Fatal("chain client init failed", zap.Error(err))
		}
	}

	var hub *feed.Hub
	if cfg.Feed.Enabled {
		hub = feed.NewHub(cfg.Feed.SubscriberBuf, logger)
	}
	var publisher eventsync.Publisher
	if hub != nil {
		publisher = hub
	}
	syncService := eventsync.NewService(cfg, chainClient, store, publisher, logger)

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	marketsHandler := &handler.MarketsHandler{Store: store, Logger: logger}
	marketsHandler.Register(engine)
	usersHandler := &handler.UsersHandler{Store: store, Logger: logger}
	usersHandler.Register(engine)
	statsHandler := &handler.StatsHandler{Store: store, Logger: logger}
	statsHandler.Register(engine)
	syncHandler := &handler.SyncHandler{Service: syncService, Store: store, Logger: logger}
	syncHandler.Register(engine)
	if hub != nil {
		wsHandler := feed.NewWSHandler(hub, logger)
		wsHandler.Register(engine)
	}

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := syncService.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("event sync stopped", zap.Error(err))
		}
	}()

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger, ctx)
		_, err = cronRunner.Add(cfg.Cron.StateSnapshot, func(ctx context.Context) {
			if err := syncService.SnapshotState(ctx); err != nil {
				logger.Warn("sync state snapshot failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register state snapshot failed", zap.Error(err))
		}
		_, err = cronRunner.Add(cfg.Cron.HeadLagProbe, func(ctx context.Context) {
			syncService.ProbeHeadLag(ctx)
		})
		if err != nil {
			logger.Warn("cron register head lag probe failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
