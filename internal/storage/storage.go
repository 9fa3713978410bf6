package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/LJTian/ThreatHub/internal/aggregator"
	"github.com/LJTian/ThreatHub/internal/processor"
)

const (
	// LatestKey 列表接口快照使用的 key
	LatestKey = "threats:latest"
	// 快照只是为了减轻上游压力，过期后重新聚合
	snapshotTTL = 5 * time.Minute
)

// ErrDisabled 对应的存储未配置
var ErrDisabled = errors.New("storage disabled")

// AggregationRun 每轮聚合的运行记录，只保存元数据，不保存条目本身
type AggregationRun struct {
	ID            string            `gorm:"primaryKey;size:40" json:"id"`
	StartedAt     time.Time         `gorm:"index" json:"startedAt"`
	FinishedAt    time.Time         `json:"finishedAt"`
	ItemCount     int               `json:"itemCount"`
	FailedSources int               `json:"failedSources"`
	Sources       datatypes.JSONMap `gorm:"type:jsonb" json:"sources"`

	CreatedAt time.Time `json:"createdAt"`
}

// Store Redis 快照 + Postgres 运行记录，两者都可选；为 nil 或未配置时方法直接降级
type Store struct {
	DB     *gorm.DB
	Redis  *redis.Client
	logger *zap.Logger
}

func NewStore(dsn, redisAddr string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{logger: logger.With(zap.String("component", "storage"))}

	if dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.AutoMigrate(&AggregationRun{}); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		s.DB = db
	}

	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr: redisAddr,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			s.logger.Warn("redis ping failed", zap.String("addr", redisAddr), zap.Error(err))
		}
		s.Redis = rdb
	}

	return s, nil
}

func (s *Store) SnapshotEnabled() bool { return s != nil && s.Redis != nil }
func (s *Store) RunsEnabled() bool     { return s != nil && s.DB != nil }

// Enabled 任一后端可用即为 true：只配 Postgres 时也要记录运行日志
func (s *Store) Enabled() bool { return s.SnapshotEnabled() || s.RunsEnabled() }

// SaveSnapshot 缓存一次列表结果（5 分钟）
func (s *Store) SaveSnapshot(ctx context.Context, key string, items []processor.ThreatItem) error {
	if !s.SnapshotEnabled() {
		return ErrDisabled
	}
	bs, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.Redis.Set(ctx, key, bs, snapshotTTL).Err()
}

// LoadSnapshot 读取快照；不存在、过期或解析失败都视为未命中
func (s *Store) LoadSnapshot(ctx context.Context, key string) ([]processor.ThreatItem, bool) {
	if !s.SnapshotEnabled() {
		return nil, false
	}
	bs, err := s.Redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("load snapshot", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var items []processor.ThreatItem
	if err := json.Unmarshal(bs, &items); err != nil || len(items) == 0 {
		return nil, false
	}
	return items, true
}

// NewRun 由聚合结果生成运行记录
func NewRun(res aggregator.Result) AggregationRun {
	run := AggregationRun{
		ID:         res.ID,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		ItemCount:  len(res.Items),
		Sources:    datatypes.JSONMap{},
	}
	for _, st := range res.Sources {
		stat := map[string]interface{}{
			"entries":    st.Entries,
			"items":      st.Items,
			"durationMs": st.Duration.Milliseconds(),
		}
		if st.Error != "" {
			stat["error"] = st.Error
			run.FailedSources++
		}
		run.Sources[st.Name] = stat
	}
	return run
}

func (s *Store) SaveRun(ctx context.Context, res aggregator.Result) error {
	if !s.RunsEnabled() {
		return ErrDisabled
	}
	run := NewRun(res)
	return s.DB.WithContext(ctx).Create(&run).Error
}

// ListRuns 最近的运行记录，按开始时间倒序
func (s *Store) ListRuns(ctx context.Context, limit int) ([]AggregationRun, error) {
	if !s.RunsEnabled() {
		return nil, ErrDisabled
	}
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	var runs []AggregationRun
	if err := s.DB.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// Close 释放连接
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
