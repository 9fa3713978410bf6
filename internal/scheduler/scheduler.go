package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/LJTian/ThreatHub/internal/aggregator"
	"github.com/LJTian/ThreatHub/internal/processor"
	"github.com/LJTian/ThreatHub/internal/storage"
)

// Runner 单轮聚合
type Runner interface {
	Latest(ctx context.Context) aggregator.Result
}

// Sink 聚合结果的去处
type Sink interface {
	SaveSnapshot(ctx context.Context, key string, items []processor.ThreatItem) error
	SaveRun(ctx context.Context, res aggregator.Result) error
}

type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	sink    Sink
	logger  *zap.Logger
	timeout time.Duration

	// 延迟执行首轮聚合，避免与服务启动后的首个请求争抢上游
	startDelay time.Duration
	timer      *time.Timer
	jobs       sync.WaitGroup

	// 同一时间只跑一轮，上一轮未结束时跳过
	mu      sync.Mutex
	running bool
	stopped bool
}

const (
	// 单轮聚合的上限时间，防止某个源拖住后续所有任务
	jobTimeout   = 10 * time.Minute
	startupDelay = 15 * time.Second
)

func New(spec string, runner Runner, sink Sink, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cron.New()

	s := &Scheduler{
		cron:    c,
		runner:  runner,
		sink:    sink,
		logger:  logger.With(zap.String("component", "scheduler")),
		timeout:    jobTimeout,
		startDelay: startupDelay,
	}

	_, err := c.AddFunc(spec, func() { s.runOnce(context.Background()) })
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.mu.Lock()
	s.timer = time.AfterFunc(s.startDelay, s.startupRun)
	s.mu.Unlock()
}

func (s *Scheduler) startupRun() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.jobs.Add(1)
	s.mu.Unlock()
	defer s.jobs.Done()

	s.runOnce(context.Background())
}

// Stop 停止调度，取消尚未触发的首轮聚合，并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.jobs.Wait()
}

// RunOnce 对外暴露的单次执行入口，方便手动触发；返回是否真正执行
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	return s.runOnce(ctx)
}

func (s *Scheduler) runOnce(ctx context.Context) bool {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Info("previous job still running, skip")
		return false
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.logger.Info("start aggregation job")
	res := s.runner.Latest(ctx)

	if res.Failed() {
		// 不用空结果覆盖仍然有效的快照
		s.logger.Warn("aggregation produced no items")
	} else if err := s.sink.SaveSnapshot(ctx, storage.LatestKey, res.Items); err != nil && !errors.Is(err, storage.ErrDisabled) {
		s.logger.Warn("save snapshot", zap.Error(err))
	}

	if err := s.sink.SaveRun(ctx, res); err != nil && !errors.Is(err, storage.ErrDisabled) {
		s.logger.Warn("save run", zap.Error(err))
	}

	s.logger.Info("aggregation job done",
		zap.String("run", res.ID),
		zap.Int("items", len(res.Items)),
		zap.Duration("took", res.FinishedAt.Sub(res.StartedAt)))
	return true
}
