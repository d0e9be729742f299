package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"SpikeWatch/internal/domain/models"
	"SpikeWatch/internal/service/metrics"
	"SpikeWatch/internal/service/ratelimit"
	applogger "SpikeWatch/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	historyInstrument string
	historyLimit      int
}

func (f *fakeSource) Status() models.StatusReport {
	return models.StatusReport{At: epoch, Watchlist: 1, OpenTrades: 2, QueueDepth: 3}
}

func (f *fakeSource) Watchlist() []models.WatchlistEntry {
	return []models.WatchlistEntry{{AnomalyRecord: models.AnomalyRecord{Instrument: "ETH/USDT"}, State: models.WatchArmed}}
}

func (f *fakeSource) Trades() []models.Trade {
	return []models.Trade{{ID: "t1", Instrument: "BTC/USDT"}, {ID: "t2", Instrument: "SOL/USDT"}}
}

func (f *fakeSource) History(instrument string, limit int) []models.Trade {
	f.historyInstrument, f.historyLimit = instrument, limit
	return []models.Trade{{ID: "h1", Instrument: instrument}}
}

func (f *fakeSource) Cooldowns() map[string]time.Time {
	return map[string]time.Time{"B": epoch.Add(2 * time.Hour), "A": epoch.Add(time.Hour)}
}

func (f *fakeSource) Excluded() []string { return nil }

func newServer(src StatusSource, limiter *ratelimit.Limiter) *echo.Echo {
	e := echo.New()
	NewStatusHandler(src, limiter, metrics.NewAPI(prometheus.NewRegistry()), applogger.Nop()).RegisterRoutes(e)
	return e
}

func get(t *testing.T, e *echo.Echo, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealth(t *testing.T) {
	rec, body := get(t, newServer(&fakeSource{}, nil), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestStatus(t *testing.T) {
	rec, body := get(t, newServer(&fakeSource{}, nil), "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, 2.0, data["open_trades"])
	assert.Equal(t, 3.0, data["queue_depth"])
}

func TestTradesList(t *testing.T) {
	rec, body := get(t, newServer(&fakeSource{}, nil), "/api/trades")
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, 2.0, data["total"])
	assert.Len(t, data["rows"], 2)
}

func TestHistoryQuery(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		code       int
		instrument string
		limit      int
	}{
		{"defaults", "/api/trades/history", http.StatusOK, "", 50},
		{"filtered", "/api/trades/history?instrument=BTC/USDT&limit=5", http.StatusOK, "BTC/USDT", 5},
		{"limit too large", "/api/trades/history?limit=1000", http.StatusBadRequest, "", 0},
		{"limit negative", "/api/trades/history?limit=-1", http.StatusBadRequest, "", 0},
		{"limit not a number", "/api/trades/history?limit=abc", http.StatusBadRequest, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{}
			rec, _ := get(t, newServer(src, nil), tt.target)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.instrument, src.historyInstrument)
			assert.Equal(t, tt.limit, src.historyLimit)
		})
	}
}

func TestCooldownsSorted(t *testing.T) {
	rec, body := get(t, newServer(&fakeSource{}, nil), "/api/cooldowns")
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	items := data["cooldowns"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "A", items[0].(map[string]any)["instrument"])
	assert.Equal(t, []any{}, data["excluded"])
}

func TestThrottle(t *testing.T) {
	e := newServer(&fakeSource{}, ratelimit.New(2, 0.001))

	for i := 0; i < 2; i++ {
		rec, _ := get(t, e, "/api/status")
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec, body := get(t, e, "/api/status")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 429.0, body["status"])

	// health checks are never throttled
	rec, _ = get(t, e, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}
