package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tibcore/internal/alert"
	"tibcore/internal/model"
	"tibcore/internal/supervisor"
)

const requestIDHeader = "X-Request-ID"

// Core is the analysis surface the API serves. Implemented by the
// supervisor.
type Core interface {
	Instruments() []string
	Snapshot(instrument string) (*supervisor.Snapshot, bool)
	ApplyRules(cfgs []alert.RuleConfig) error
	ApplyAnalysis(cfg supervisor.AnalysisConfig) error
	Rules() *alert.RuleSet
}

// RuleSaver persists the applied rule payload so it survives a restart.
type RuleSaver interface {
	Save(ctx context.Context, payload []byte) error
}

// AlertLog serves historical alert events. Implemented by the sqlite
// journal.
type AlertLog interface {
	RecentEvents(ctx context.Context, instrument string, limit int) ([]model.AlertEvent, error)
}

// API handles the HTTP surface using Gin.
type API struct {
	core      Core
	hub       *Hub
	ruleStore RuleSaver // nil when persistence is disabled
	alertLog  AlertLog  // nil when the journal is disabled
	log       zerolog.Logger
	srv       *http.Server
}

// NewAPI creates the HTTP API over the given core and streaming hub.
func NewAPI(core Core, hub *Hub, ruleStore RuleSaver, alertLog AlertLog, log zerolog.Logger) *API {
	return &API{
		core:      core,
		hub:       hub,
		ruleStore: ruleStore,
		alertLog:  alertLog,
		log:       log,
	}
}

// Routes configures the Gin router.
func (a *API) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(a.requestIDMiddleware())
	router.Use(a.loggerMiddleware())
	router.Use(gin.Recovery())

	v1 := router.Group("/api/v1")
	{
		v1.GET("/instruments", a.getInstruments)
		v1.GET("/snapshot/:instrument", a.getSnapshot)
		v1.GET("/alerts/:instrument", a.getAlerts)
		v1.PUT("/rules", a.putRules)
		v1.PUT("/analysis", a.putAnalysis)
	}
	router.GET("/ws", func(c *gin.Context) {
		a.hub.HandleWS(c.Writer, c.Request)
	})
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, okResponse{Status: "ok"})
	})

	return router
}

// Start runs the HTTP server in a goroutine.
func (a *API) Start(addr string) {
	a.srv = &http.Server{Addr: addr, Handler: a.Routes()}
	go func() {
		a.log.Info().Str("addr", addr).Msg("api server listening")
		if err := a.srv.ListenAndServe(); err != http.ErrServerClosed {
			a.log.Error().Err(err).Msg("api server")
		}
	}()
}

// Stop gracefully shuts down the server.
func (a *API) Stop(ctx context.Context) {
	if a.srv != nil {
		a.srv.Shutdown(ctx)
	}
}

func (a *API) getInstruments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"instruments": a.core.Instruments()})
}

// getSnapshot serves the last published snapshot. The read is an atomic
// pointer load; an ingestion stall can never be caused by readers.
func (a *API) getSnapshot(c *gin.Context) {
	instrument := c.Param("instrument")
	snap, ok := a.core.Snapshot(instrument)
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: fmt.Sprintf("unknown instrument %q", instrument)})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// getAlerts serves the journaled alert history for an instrument, newest
// first.
func (a *API) getAlerts(c *gin.Context) {
	if a.alertLog == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "alert journal disabled"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid limit %q", raw)})
			return
		}
		if n > 500 {
			n = 500
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	events, err := a.alertLog.RecentEvents(ctx, c.Param("instrument"), limit)
	if err != nil {
		a.log.Error().Err(err).Msg("alert history query failed")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "alert history unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": events, "count": len(events)})
}

// putRules validates and atomically replaces the alert rule set. A bad
// payload leaves the previous rule set active.
func (a *API) putRules(c *gin.Context) {
	var payload rulesPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := a.core.ApplyRules(payload.Rules); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if a.ruleStore != nil {
		raw, err := json.Marshal(payload.Rules)
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
			defer cancel()
			if err := a.ruleStore.Save(ctx, raw); err != nil {
				// The swap already happened; persistence failure only
				// affects the next restart.
				a.log.Error().Err(err).Msg("rule persistence failed")
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "rules": len(payload.Rules)})
}

// putAnalysis validates and installs a new analysis configuration,
// restarting every pipeline. A bad payload leaves the current one running.
func (a *API) putAnalysis(c *gin.Context) {
	var payload analysisPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	cfg, err := payload.toConfig()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := a.core.ApplyAnalysis(cfg); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, okResponse{Status: "ok"})
}

func (a *API) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(requestIDHeader, requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

func (a *API) loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("request_id", c.GetString("request_id")).
			Msg("http request")
	}
}
