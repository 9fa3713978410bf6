package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LJTian/ThreatHub/internal/aggregator"
	"github.com/LJTian/ThreatHub/internal/processor"
	"github.com/LJTian/ThreatHub/internal/storage"
)

var fixedNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

type fakeAggregator struct {
	items []processor.ThreatItem
	calls int
}

func (f *fakeAggregator) Latest(ctx context.Context) aggregator.Result {
	f.calls++
	items := f.items
	if len(items) > aggregator.ListingLimit {
		items = items[:aggregator.ListingLimit]
	}
	return aggregator.Result{ID: "run", Items: items}
}

func (f *fakeAggregator) All(ctx context.Context) aggregator.Result {
	f.calls++
	return aggregator.Result{ID: "run", Items: f.items}
}

type fakeStore struct {
	snapshot []processor.ThreatItem
	saved    []processor.ThreatItem
	runs     []storage.AggregationRun
	runsErr  error
}

func (f *fakeStore) LoadSnapshot(context.Context, string) ([]processor.ThreatItem, bool) {
	return f.snapshot, len(f.snapshot) > 0
}

func (f *fakeStore) SaveSnapshot(_ context.Context, _ string, items []processor.ThreatItem) error {
	f.saved = items
	return nil
}

func (f *fakeStore) ListRuns(context.Context, int) ([]storage.AggregationRun, error) {
	return f.runs, f.runsErr
}

func threat(i int, sev processor.Severity, age time.Duration) processor.ThreatItem {
	return processor.ThreatItem{
		ID:               fmt.Sprintf("https://example.com/%d", i),
		Title:            fmt.Sprintf("Threat %d", i),
		Description:      "Something happened.",
		Severity:         sev,
		DatePublished:    fixedNow.Add(-age),
		Source:           "Example",
		URL:              fmt.Sprintf("https://example.com/%d", i),
		AffectedProducts: []string{},
	}
}

func newRouter(agg Aggregator, store Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	s := NewServer(agg, store, nil)
	s.now = func() time.Time { return fixedNow }
	s.RegisterRoutes(r)
	return r
}

func do(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Data    []processor.ThreatItem `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestHealth(t *testing.T) {
	w := do(newRouter(&fakeAggregator{}, nil), "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestListThreatsCapsAt40(t *testing.T) {
	var items []processor.ThreatItem
	for i := 0; i < 55; i++ {
		items = append(items, threat(i, processor.SeverityHigh, time.Hour))
	}
	store := &fakeStore{}
	w := do(newRouter(&fakeAggregator{items: items}, store), "/api/v1/threats")

	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.Equal(t, "ok", env.Code)
	assert.Len(t, env.Data, 40)
	assert.Len(t, store.saved, 40)
}

func TestListThreatsAggregationFailed(t *testing.T) {
	w := do(newRouter(&fakeAggregator{}, nil), "/api/v1/threats")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	env := decode(t, w)
	assert.Equal(t, "aggregation_failed", env.Code)
	assert.NotEmpty(t, env.Message)
}

func TestListThreatsServesSnapshot(t *testing.T) {
	agg := &fakeAggregator{items: []processor.ThreatItem{threat(1, processor.SeverityLow, 0)}}
	store := &fakeStore{snapshot: []processor.ThreatItem{threat(9, processor.SeverityHigh, 0)}}
	r := newRouter(agg, store)

	env := decode(t, do(r, "/api/v1/threats"))
	require.Len(t, env.Data, 1)
	assert.Equal(t, "Threat 9", env.Data[0].Title)
	assert.Zero(t, agg.calls)

	env = decode(t, do(r, "/api/v1/threats?refresh=true"))
	require.Len(t, env.Data, 1)
	assert.Equal(t, "Threat 1", env.Data[0].Title)
	assert.Equal(t, 1, agg.calls)
}

func TestWeeklyReportPDF(t *testing.T) {
	items := []processor.ThreatItem{
		threat(1, processor.SeverityLow, 0),
		threat(2, processor.SeverityMedium, 3*24*time.Hour),
		threat(3, processor.SeverityCritical, 10*24*time.Hour),
	}
	w := do(newRouter(&fakeAggregator{items: items}, nil), "/api/v1/reports/weekly")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="weekly_threat_report.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-", w.Body.String()[:5])
}

func TestMonthlyReportDOCX(t *testing.T) {
	items := []processor.ThreatItem{threat(1, processor.SeverityCritical, 5*24*time.Hour)}
	w := do(newRouter(&fakeAggregator{items: items}, nil), "/api/v1/reports/monthly?format=docx")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "wordprocessingml")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "monthly_critical_threat_report.docx")
}

func TestReportEmptyWindow(t *testing.T) {
	items := []processor.ThreatItem{
		threat(1, processor.SeverityLow, 5*24*time.Hour),
		threat(2, processor.SeverityHigh, 40*24*time.Hour),
	}
	w := do(newRouter(&fakeAggregator{items: items}, nil), "/api/v1/reports/monthly")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "empty_report", decode(t, w).Code)
}

func TestReportInvalidFormat(t *testing.T) {
	w := do(newRouter(&fakeAggregator{}, nil), "/api/v1/reports/weekly?format=html")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRuns(t *testing.T) {
	w := do(newRouter(&fakeAggregator{}, nil), "/api/v1/runs")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(newRouter(&fakeAggregator{}, &fakeStore{runsErr: storage.ErrDisabled}), "/api/v1/runs")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(newRouter(&fakeAggregator{}, &fakeStore{runsErr: errors.New("db down")}), "/api/v1/runs")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	store := &fakeStore{runs: []storage.AggregationRun{{ID: "r1", ItemCount: 12}}}
	w = do(newRouter(&fakeAggregator{}, store), "/api/v1/runs?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"itemCount":12`)
}
