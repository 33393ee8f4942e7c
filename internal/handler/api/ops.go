package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/usecase"
	pkgcache "MarketPulse/pkg/cache"
	xhttp "MarketPulse/pkg/http"
	xlogger "MarketPulse/pkg/logger"
	xutil "MarketPulse/pkg/util"
)

// OpsHandler exposes the operational read surface: cycle status, recent
// alerts, and collected metric values.
type OpsHandler struct {
	logger    *xlogger.Logger
	store     drepo.Store
	scheduler *usecase.Scheduler
	collector *usecase.TickCollector // may be nil when the stream is disabled
	cache     *pkgcache.LayeredCache // may be nil
}

func NewOpsHandler(logger *xlogger.Logger, store drepo.Store, scheduler *usecase.Scheduler, collector *usecase.TickCollector, cache *pkgcache.LayeredCache) *OpsHandler {
	return &OpsHandler{logger: logger, store: store, scheduler: scheduler, collector: collector, cache: cache}
}

func (h *OpsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Healthz)

	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.GET("/alerts", h.Alerts)
	g.GET("/narratives", h.Narratives)
	g.GET("/metrics/latest", h.Latest)
	g.GET("/metrics/series", h.Series)
}

// Healthz checks storage connectivity.
func (h *OpsHandler) Healthz(c echo.Context) error {
	if err := h.store.Health(c.Request().Context()); err != nil {
		h.logger.Error("health check failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// Status reports the last collection cycle and stream connectivity.
func (h *OpsHandler) Status(c echo.Context) error {
	resp := map[string]interface{}{
		"streamConnected": h.collector != nil && h.collector.IsConnected(),
	}
	if last := h.scheduler.LastResult(); last != nil {
		resp["lastCycle"] = map[string]interface{}{
			"id":        last.CycleID,
			"kind":      string(last.Kind),
			"startedAt": last.StartedAt,
			"duration":  last.Duration.String(),
			"ok":        last.Count(models.MetricOK),
			"fallback":  last.Count(models.MetricUsedFallback),
			"cached":    last.Count(models.MetricUsedCache),
			"failed":    last.Count(models.MetricFailed),
			"perMetric": last.PerMetric,
		}
	}
	return xhttp.SuccessResponse(c, resp)
}

func (h *OpsHandler) Alerts(c echo.Context) error {
	req := &models.AlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	cacheKey := pkgcache.GenerateKeyWithParams("ops:alerts", req.Limit)
	if h.cache != nil && req.Limit == 50 {
		var cached []*models.AlertRecord
		if err := h.cache.Get(c.Request().Context(), cacheKey, &cached); err == nil {
			return xhttp.SuccessResponse(c, cached)
		}
	}

	alerts, err := h.store.RecentAlerts(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("recent alerts query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if h.cache != nil && req.Limit == 50 {
		_ = h.cache.Set(c.Request().Context(), cacheKey, alerts, 30*time.Second)
	}
	return xhttp.SuccessResponse(c, alerts)
}

// Narratives returns the latest classification snapshot, strongest money
// flow first.
func (h *OpsHandler) Narratives(c echo.Context) error {
	groups, err := h.store.LatestNarrativeGroups(c.Request().Context())
	if err != nil {
		h.logger.Error("narrative groups query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, groups)
}

func (h *OpsHandler) Latest(c echo.Context) error {
	req := &models.LatestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	key := models.MetricKey{DataType: models.DataType(req.Type), Symbol: req.Symbol}

	o, err := h.store.Latest(c.Request().Context(), key)
	if err != nil {
		h.logger.Error("latest query failed",
			xlogger.String("metric", key.String()),
			xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if o == nil {
		return xhttp.NotFoundResponse(c, "no observation for "+key.String())
	}
	return xhttp.SuccessResponse(c, o)
}

func (h *OpsHandler) Series(c echo.Context) error {
	req := &models.SeriesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	key := models.MetricKey{DataType: models.DataType(req.Type), Symbol: req.Symbol}

	series, err := h.store.Series(c.Request().Context(), key, req.Limit)
	if err != nil {
		h.logger.Error("series query failed",
			xlogger.String("metric", key.String()),
			xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	// optional lower bound, RFC3339 or unix seconds
	since := xutil.ParseTimeDefault(c.QueryParam("since"), time.Time{})
	if !since.IsZero() {
		filtered := series[:0]
		for _, o := range series {
			if !o.Ts.Before(since) {
				filtered = append(filtered, o)
			}
		}
		series = filtered
	}
	return xhttp.SuccessResponse(c, series)
}
