package storage

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/LJTian/ThreatHub/internal/aggregator"
	"github.com/LJTian/ThreatHub/internal/processor"
)

func TestDisabledStoreDegrades(t *testing.T) {
	ctx := context.Background()

	s, err := NewStore("", "", nil)
	require.NoError(t, err)
	assert.False(t, s.SnapshotEnabled())
	assert.False(t, s.RunsEnabled())
	assert.False(t, s.Enabled())

	assert.ErrorIs(t, s.SaveSnapshot(ctx, LatestKey, []processor.ThreatItem{{Title: "x"}}), ErrDisabled)
	items, ok := s.LoadSnapshot(ctx, LatestKey)
	assert.False(t, ok)
	assert.Nil(t, items)

	assert.ErrorIs(t, s.SaveRun(ctx, aggregator.Result{}), ErrDisabled)
	_, err = s.ListRuns(ctx, 10)
	assert.ErrorIs(t, err, ErrDisabled)
	assert.NoError(t, s.Close())

	// nil Store 同样可用
	var nilStore *Store
	assert.False(t, nilStore.SnapshotEnabled())
	assert.False(t, nilStore.Enabled())
	assert.NoError(t, nilStore.Close())
}

func TestEnabledWithSingleBackend(t *testing.T) {
	// 只配 Postgres 时调度器仍需启动以写入运行日志
	dbOnly := &Store{DB: &gorm.DB{}}
	assert.True(t, dbOnly.RunsEnabled())
	assert.False(t, dbOnly.SnapshotEnabled())
	assert.True(t, dbOnly.Enabled())

	redisOnly := &Store{Redis: redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})}
	defer redisOnly.Redis.Close()
	assert.True(t, redisOnly.Enabled())
}

func TestNewRun(t *testing.T) {
	start := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	res := aggregator.Result{
		ID:         "run-1",
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
		Items:      make([]processor.ThreatItem, 3),
		Sources: []aggregator.SourceStat{
			{Name: "The Hacker News", Entries: 4, Items: 3, Duration: 1500 * time.Millisecond},
			{Name: "BleepingComputer", Error: "timeout"},
		},
	}

	run := NewRun(res)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, 3, run.ItemCount)
	assert.Equal(t, 1, run.FailedSources)
	require.Len(t, run.Sources, 2)

	thn := run.Sources["The Hacker News"].(map[string]interface{})
	assert.Equal(t, 4, thn["entries"])
	assert.Equal(t, int64(1500), thn["durationMs"])
	assert.NotContains(t, thn, "error")

	bc := run.Sources["BleepingComputer"].(map[string]interface{})
	assert.Equal(t, "timeout", bc["error"])
}
