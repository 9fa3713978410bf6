package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LJTian/ThreatHub/internal/aggregator"
	"github.com/LJTian/ThreatHub/internal/processor"
	"github.com/LJTian/ThreatHub/internal/report"
	"github.com/LJTian/ThreatHub/internal/storage"
)

// Aggregator 列表与报表所需的聚合能力
type Aggregator interface {
	Latest(ctx context.Context) aggregator.Result
	All(ctx context.Context) aggregator.Result
}

// Store 可选的快照与运行记录；方法在未启用时返回 storage.ErrDisabled
type Store interface {
	LoadSnapshot(ctx context.Context, key string) ([]processor.ThreatItem, bool)
	SaveSnapshot(ctx context.Context, key string, items []processor.ThreatItem) error
	ListRuns(ctx context.Context, limit int) ([]storage.AggregationRun, error)
}

type Server struct {
	agg    Aggregator
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewServer(agg Aggregator, store Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		agg:    agg,
		store:  store,
		logger: logger.With(zap.String("component", "api")),
		now:    time.Now,
	}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/threats", s.listThreats)
		v1.GET("/reports/weekly", s.reportHandler(report.Weekly))
		v1.GET("/reports/monthly", s.reportHandler(report.Monthly))
		v1.GET("/runs", s.listRuns)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}

// listThreats 优先返回未过期的快照；refresh=true 时强制重新聚合
func (s *Server) listThreats(c *gin.Context) {
	ctx := c.Request.Context()

	if c.Query("refresh") != "true" && s.store != nil {
		if items, ok := s.store.LoadSnapshot(ctx, storage.LatestKey); ok {
			if len(items) > aggregator.ListingLimit {
				items = items[:aggregator.ListingLimit]
			}
			c.JSON(http.StatusOK, gin.H{
				"code":    "ok",
				"message": "success",
				"data":    items,
			})
			return
		}
	}

	res := s.agg.Latest(ctx)
	if res.Failed() {
		s.logger.Error("aggregation failed", zap.String("run", res.ID), zap.Any("sources", res.Sources))
		fail(c, http.StatusInternalServerError, "aggregation_failed", "failed to aggregate threat items from any source")
		return
	}

	if s.store != nil {
		if err := s.store.SaveSnapshot(ctx, storage.LatestKey, res.Items); err != nil && !errors.Is(err, storage.ErrDisabled) {
			s.logger.Warn("save snapshot", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    res.Items,
	})
}

// reportHandler 生成报表文件；format=pdf（默认）或 docx
func (s *Server) reportHandler(kind report.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		renderer, ok := report.RendererFor(c.Query("format"))
		if !ok {
			fail(c, http.StatusBadRequest, "invalid_format", "format must be pdf or docx")
			return
		}

		res := s.agg.All(c.Request.Context())
		doc, err := kind.Build(res.Items, s.now())
		if errors.Is(err, report.ErrEmptyReport) {
			fail(c, http.StatusNotFound, "empty_report", "no threats found for the "+kind.Name+" report")
			return
		}
		if err != nil {
			fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}

		var buf bytes.Buffer
		if err := renderer.Render(&buf, doc); err != nil {
			s.logger.Error("render report", zap.String("kind", kind.Name), zap.Error(err))
			fail(c, http.StatusInternalServerError, "render_failed", "failed to render report")
			return
		}

		filename := report.Filename(doc.Title, renderer.Ext())
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Data(http.StatusOK, renderer.ContentType(), buf.Bytes())
	}
}

func (s *Server) listRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	if s.store == nil {
		fail(c, http.StatusNotFound, "runs_disabled", "run log is not configured")
		return
	}

	runs, err := s.store.ListRuns(c.Request.Context(), limit)
	if errors.Is(err, storage.ErrDisabled) {
		fail(c, http.StatusNotFound, "runs_disabled", "run log is not configured")
		return
	}
	if err != nil {
		s.logger.Error("list runs", zap.Error(err))
		fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    runs,
	})
}
