package main

import (
	"log"
	"os"

	"github.com/LJTian/ThreatHub/internal/aggregator"
	"github.com/LJTian/ThreatHub/internal/collector"
	"github.com/LJTian/ThreatHub/internal/config"
	"github.com/LJTian/ThreatHub/internal/logging"
	"github.com/LJTian/ThreatHub/internal/summarizer"
)

var (
	version = "0.1.0"
)

// 仅执行一轮聚合的命令行入口：打印列表或导出报表
func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	agg := aggregator.New(
		collector.DefaultRegistry(),
		collector.NewCollyFetcher(cfg.Fetch.UserAgent, cfg.Fetch.Timeout),
		summarizer.NewChatClient(cfg.AI),
		cfg.Fetch.EnrichConcurrency,
		logger,
	)

	ac := AppConfig{
		Runner: agg,
		Logger: logger,
		Out:    os.Stdout,
		Now:    config.Now,
	}
	if err := ac.NewApp(version).Run(os.Args); err != nil {
		log.Fatalf("%+v", err)
	}
}
