package summarizer

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache 单次聚合内的摘要缓存，按文章 URL 记忆结果。
// 同一 key 的并发请求合并为一次后端调用；失败结果也会被记住，
// 避免同一篇文章在一轮里反复请求。每轮聚合新建一个，用完丢弃。
type Cache struct {
	backend Summarizer
	group   singleflight.Group
	entries sync.Map // key -> Result
}

func NewCache(backend Summarizer) *Cache {
	return &Cache{backend: backend}
}

// Summarize 按 key 查缓存，未命中时调用后端；空文本不会发给后端
func (c *Cache) Summarize(ctx context.Context, key, text string) Result {
	if v, ok := c.entries.Load(key); ok {
		return v.(Result)
	}

	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.entries.Load(key); ok {
			return v, nil
		}
		var res Result
		if text == "" {
			res = Result{Err: ErrEmptyInput}
		} else {
			res = c.backend.Summarize(ctx, text)
		}
		c.entries.Store(key, res)
		return res, nil
	})
	return v.(Result)
}

// Len 已缓存的 key 数量
func (c *Cache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
