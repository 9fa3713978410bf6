package aggregator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LJTian/ThreatHub/internal/collector"
	"github.com/LJTian/ThreatHub/internal/processor"
	"github.com/LJTian/ThreatHub/internal/summarizer"
)

// ListingLimit 对外列表接口最多返回的条数
const ListingLimit = 40

// SourceStat 单个数据源在一轮聚合中的情况
type SourceStat struct {
	Name     string        `json:"name"`
	Entries  int           `json:"entries"`
	Items    int           `json:"items"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Result 一轮聚合的结果
type Result struct {
	ID         string                 `json:"id"`
	StartedAt  time.Time              `json:"startedAt"`
	FinishedAt time.Time              `json:"finishedAt"`
	Items      []processor.ThreatItem `json:"items"`
	Sources    []SourceStat           `json:"sources"`
}

// Failed 所有数据源都没有产出条目
func (r Result) Failed() bool {
	return len(r.Items) == 0
}

type Aggregator struct {
	sources     []collector.Source
	fetcher     collector.Fetcher
	summarizer  summarizer.Summarizer
	concurrency int
	logger      *zap.Logger
	now         func() time.Time
}

func New(sources []collector.Source, fetcher collector.Fetcher, s summarizer.Summarizer, concurrency int, logger *zap.Logger) *Aggregator {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		sources:     sources,
		fetcher:     fetcher,
		summarizer:  s,
		concurrency: concurrency,
		logger:      logger.With(zap.String("component", "aggregator")),
		now:         time.Now,
	}
}

// Latest 对外列表使用，最多 40 条
func (a *Aggregator) Latest(ctx context.Context) Result {
	return a.Run(ctx, ListingLimit)
}

// All 报表使用，不截断
func (a *Aggregator) All(ctx context.Context) Result {
	return a.Run(ctx, 0)
}

// Run 按注册顺序逐个处理数据源；单个源失败只记录并跳过。
// limit <= 0 表示不截断。
func (a *Aggregator) Run(ctx context.Context, limit int) Result {
	res := Result{ID: uuid.NewString(), StartedAt: a.now()}
	// 摘要缓存只在本轮有效
	cache := summarizer.NewCache(a.summarizer)

	var items []processor.ThreatItem
	for _, src := range a.sources {
		if ctx.Err() != nil {
			a.logger.Warn("aggregation canceled", zap.Error(ctx.Err()))
			break
		}

		start := time.Now()
		stat := SourceStat{Name: src.Name()}
		entries, err := src.Collect(ctx, a.fetcher)
		if err != nil {
			stat.Error = err.Error()
			stat.Duration = time.Since(start)
			res.Sources = append(res.Sources, stat)
			a.logger.Warn("skip source",
				zap.String("source", src.Name()),
				zap.String("url", src.URL()),
				zap.Error(err))
			continue
		}

		// 按源先清洗一遍，统计的是最终能返回的条数
		enriched := processor.Finalize(a.enrichAll(ctx, src, entries, cache), a.now())
		stat.Entries = len(entries)
		stat.Items = len(enriched)
		stat.Duration = time.Since(start)
		res.Sources = append(res.Sources, stat)
		items = append(items, enriched...)

		a.logger.Info("source done",
			zap.String("source", src.Name()),
			zap.Int("entries", stat.Entries),
			zap.Int("items", stat.Items),
			zap.Duration("took", stat.Duration))
	}

	items = processor.Finalize(items, a.now())
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	res.Items = items
	res.FinishedAt = a.now()

	a.logger.Info("aggregation done",
		zap.String("run", res.ID),
		zap.Int("items", len(items)),
		zap.Int("sources", len(a.sources)))
	return res
}

// enrichAll 并发补全一个源的所有条目，结果保持列表页顺序
func (a *Aggregator) enrichAll(ctx context.Context, src collector.Source, entries []collector.RawEntry, cache *summarizer.Cache) []processor.ThreatItem {
	out := make([]processor.ThreatItem, len(entries))

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			out[i] = a.enrich(ctx, src, e, cache)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (a *Aggregator) enrich(ctx context.Context, src collector.Source, e collector.RawEntry, cache *summarizer.Cache) processor.ThreatItem {
	log := a.logger.With(zap.String("source", src.Name()), zap.String("url", e.URL))

	var articleText string
	if article := a.fetcher.Text(ctx, e.URL, src.BodySelector()); article.OK() {
		articleText = article.Text
	} else {
		log.Debug("article fetch failed, fall back to excerpt", zap.Error(article.Err))
	}

	input := articleText
	if input == "" {
		input = e.Excerpt
	}
	aiSummary := e.Excerpt
	if sum := cache.Summarize(ctx, e.URL, input); sum.OK() {
		aiSummary = sum.Text
	} else if !errors.Is(sum.Err, summarizer.ErrNotConfigured) {
		log.Warn("summarize failed", zap.Error(sum.Err))
	}

	published := e.Published
	if published.IsZero() {
		published = processor.ParsePublished(e.DateHint, a.now())
	}

	return processor.ThreatItem{
		ID:               e.URL,
		Title:            e.Title,
		Description:      processor.EnsureLongDescription(articleText, e.Excerpt),
		Severity:         processor.ClassifySeverity(strings.Join([]string{e.Title, e.Excerpt, aiSummary}, " ")),
		AISummary:        aiSummary,
		DatePublished:    published,
		Source:           src.Name(),
		URL:              e.URL,
		CVSSScore:        processor.ExtractCVSS(strings.Join([]string{articleText, aiSummary, e.Excerpt}, "\n")),
		AffectedProducts: []string{},
	}
}
