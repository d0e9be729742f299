package api

import (
	"net/http"
	"sort"
	"time"

	"SpikeWatch/internal/domain/models"
	"SpikeWatch/internal/service/metrics"
	"SpikeWatch/internal/service/ratelimit"
	xhttp "SpikeWatch/pkg/http"
	applogger "SpikeWatch/pkg/logger"

	"github.com/labstack/echo/v4"
)

// StatusSource is the read side of the trading core.
type StatusSource interface {
	Status() models.StatusReport
	Watchlist() []models.WatchlistEntry
	Trades() []models.Trade
	History(instrument string, limit int) []models.Trade
	Cooldowns() map[string]time.Time
	Excluded() []string
}

// HistoryQuery filters closed trades.
type HistoryQuery struct {
	Instrument string `query:"instrument"`
	Limit      int    `query:"limit" default:"50" validate:"gte=1,lte=500"`
}

type cooldownItem struct {
	Instrument string    `json:"instrument"`
	Until      time.Time `json:"until"`
}

// CooldownsResponse lists suppressed and excluded instruments.
type CooldownsResponse struct {
	Cooldowns []cooldownItem `json:"cooldowns"`
	Excluded  []string       `json:"excluded"`
}

// StatusHandler serves read-only snapshots of the core.
type StatusHandler struct {
	src     StatusSource
	limiter *ratelimit.Limiter
	metrics *metrics.API
	l       *applogger.Logger
}

func NewStatusHandler(src StatusSource, limiter *ratelimit.Limiter, m *metrics.API, l *applogger.Logger) *StatusHandler {
	return &StatusHandler{src: src, limiter: limiter, metrics: m, l: l.Component("status_api")}
}

func (h *StatusHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api", h.throttle)
	g.GET("/status", h.Status)
	g.GET("/watchlist", h.Watchlist)
	g.GET("/trades", h.Trades)
	g.GET("/trades/history", h.History)
	g.GET("/cooldowns", h.Cooldowns)
}

// throttle refuses clients that exceed their token bucket.
func (h *StatusHandler) throttle(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.limiter != nil && !h.limiter.Allow(c.RealIP()) {
			h.metrics.Throttled.WithLabelValues(c.Path()).Inc()
			h.l.Debug("request throttled", applogger.String("remote", c.RealIP()), applogger.String("route", c.Path()))
			return xhttp.Fail(c, xhttp.Throttled())
		}
		return next(c)
	}
}

func (h *StatusHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *StatusHandler) Status(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.OK(c, h.src.Status())
}

func (h *StatusHandler) Watchlist(c echo.Context) error {
	rows := h.src.Watchlist()
	return xhttp.List(c, rows)
}

func (h *StatusHandler) Trades(c echo.Context) error {
	rows := h.src.Trades()
	return xhttp.List(c, rows)
}

func (h *StatusHandler) History(c echo.Context) error {
	q := &HistoryQuery{}
	if verr := xhttp.BindQuery(c, q); verr != nil {
		h.metrics.Errors.WithLabelValues("history").Inc()
		return xhttp.Invalid(c, verr)
	}
	rows := h.src.History(q.Instrument, q.Limit)
	return xhttp.List(c, rows)
}

func (h *StatusHandler) Cooldowns(c echo.Context) error {
	active := h.src.Cooldowns()
	items := make([]cooldownItem, 0, len(active))
	for inst, until := range active {
		items = append(items, cooldownItem{Instrument: inst, Until: until})
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].Until.Equal(items[j].Until) {
			return items[i].Until.Before(items[j].Until)
		}
		return items[i].Instrument < items[j].Instrument
	})
	excluded := h.src.Excluded()
	if excluded == nil {
		excluded = []string{}
	}
	return xhttp.OK(c, CooldownsResponse{Cooldowns: items, Excluded: excluded})
}
