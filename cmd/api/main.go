package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LJTian/ThreatHub/internal/aggregator"
	"github.com/LJTian/ThreatHub/internal/api"
	"github.com/LJTian/ThreatHub/internal/collector"
	"github.com/LJTian/ThreatHub/internal/config"
	"github.com/LJTian/ThreatHub/internal/logging"
	"github.com/LJTian/ThreatHub/internal/scheduler"
	"github.com/LJTian/ThreatHub/internal/storage"
	"github.com/LJTian/ThreatHub/internal/summarizer"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	// Redis / Postgres 都是可选的，未配置时列表接口每次实时聚合
	store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr, logger)
	if err != nil {
		logger.Fatal("init store failed", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	fetcher := collector.NewCollyFetcher(cfg.Fetch.UserAgent, cfg.Fetch.Timeout)
	agg := aggregator.New(
		collector.DefaultRegistry(),
		fetcher,
		summarizer.NewChatClient(cfg.AI),
		cfg.Fetch.EnrichConcurrency,
		logger,
	)

	// 快照与运行日志都不可用时定时聚合没有意义
	if store.Enabled() {
		s, err := scheduler.New(cfg.CronSpec, agg, store, logger)
		if err != nil {
			logger.Fatal("init scheduler failed", zap.Error(err))
		}
		s.Start()
		defer s.Stop()
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	apiServer := api.NewServer(agg, store, logger)
	apiServer.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}
	go func() {
		logger.Info("starting api server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server exit", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// requestLogger 用 zap 记录每个请求
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}
