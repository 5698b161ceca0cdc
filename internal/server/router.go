package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brewkit/brewmon/internal/machine"
	"github.com/brewkit/brewmon/internal/metrics"
	"github.com/brewkit/brewmon/internal/monitor"
	"github.com/brewkit/brewmon/internal/store"
)

// MachineController is the slice of the machine API the HTTP layer needs.
type MachineController interface {
	Connect() error
	Disconnect() error
	Connected() bool
	Info() (machine.Info, error)
	GroupsStatus() (map[int]machine.GroupStatus, error)
	HealthCheck() machine.Health
	DeliverCoffee(group int, ct machine.CoffeeType) error
	StopDelivery(group int) error
	StartPurge(group int) error
}

// MonitorController exposes the poll-loop switches.
type MonitorController interface {
	Start()
	Stop()
	Status() monitor.Status
}

// Router provides embeddable HTTP handlers for the machine and the
// delivery record store.
// Endpoints (relative to basePath):
//
//	POST /monitor/start
//	POST /monitor/stop
//	GET  /monitor/status
//	GET  /machine/info
//	GET  /machine/status
//	GET  /machine/health
//	POST /machine/connect
//	POST /machine/disconnect
//	POST /deliveries          body: {"coffee_type": "...", "group": n}
//	POST /deliveries/stop     body: {"group": n}
//	POST /purge               body: {"group": n}
//	GET  /deliveries          query: trigger=...&group=n&limit=n
//	GET  /maintenance         query: limit=n
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	machine  MachineController
	mon      MonitorController
	store    store.Store
	basePath string
	logger   *slog.Logger
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/deliveries, /api/purge, etc.
func NewRouter(mc MachineController, mon MonitorController, st store.Store, basePath string, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{machine: mc, mon: mon, store: st, basePath: sanitizeBase(basePath), logger: logger}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/monitor/start", r.handleMonitorStart)
	group.POST("/monitor/stop", r.handleMonitorStop)
	group.GET("/monitor/status", r.handleMonitorStatus)
	group.GET("/machine/info", r.handleMachineInfo)
	group.GET("/machine/status", r.handleMachineStatus)
	group.GET("/machine/health", r.handleMachineHealth)
	group.POST("/machine/connect", r.handleConnect)
	group.POST("/machine/disconnect", r.handleDisconnect)
	group.POST("/deliveries", r.handleDeliver)
	group.POST("/deliveries/stop", r.handleStopDelivery)
	group.POST("/purge", r.handlePurge)
	group.GET("/deliveries", r.handleHistory)
	group.GET("/maintenance", r.handleMaintenance)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, r *Router) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleMonitorStart(c *gin.Context) {
	r.mon.Start()
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleMonitorStop(c *gin.Context) {
	r.mon.Stop()
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleMonitorStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.mon.Status())
}

func (r *Router) handleMachineInfo(c *gin.Context) {
	info, err := r.machine.Info()
	if err != nil {
		writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, info)
}

func (r *Router) handleMachineStatus(c *gin.Context) {
	sts, err := r.machine.GroupsStatus()
	if err != nil {
		writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, sts)
}

func (r *Router) handleMachineHealth(c *gin.Context) {
	h := r.machine.HealthCheck()
	code := http.StatusOK
	if h.Overall != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(c, code, h)
}

func (r *Router) handleConnect(c *gin.Context) {
	if err := r.machine.Connect(); err != nil {
		writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleDisconnect(c *gin.Context) {
	if err := r.machine.Disconnect(); err != nil {
		writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

type deliverReq struct {
	CoffeeType string `json:"coffee_type"`
	Group      int    `json:"group"`
}

// handleDeliver runs an API-triggered delivery. The record is created
// before the hardware command so a command failure leaves a failed record
// rather than no trace.
func (r *Router) handleDeliver(c *gin.Context) {
	var req deliverReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.CoffeeType == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "coffee_type required"})
		return
	}

	ctx := c.Request.Context()
	rec, err := r.store.Create(ctx, store.Record{
		CoffeeType:  req.CoffeeType,
		GroupNumber: req.Group,
		Status:      store.StatusStarted,
		TriggerType: store.TriggerAPI,
		StartedAt:   time.Now(),
	})
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}

	if err := r.machine.DeliverCoffee(req.Group, machine.CoffeeType(req.CoffeeType)); err != nil {
		if serr := r.store.MarkFailed(ctx, rec.ID, err.Error()); serr != nil {
			r.logger.Warn("mark failed after command error", "id", rec.ID, "error", serr)
		}
		code := http.StatusBadRequest
		switch {
		case errors.Is(err, machine.ErrGroupBusy):
			code = http.StatusConflict
		case errors.Is(err, machine.ErrUnavailable):
			code = http.StatusBadGateway
		}
		writeJSON(c, code, errorResp{Error: err.Error()})
		return
	}

	if err := r.store.MarkInProgress(ctx, rec.ID); err != nil {
		r.logger.Warn("mark in progress failed", "id", rec.ID, "error", err)
	}
	if err := r.store.AppendMaintenance(ctx, store.MaintenanceEntry{
		LogType:     store.LogManualDelivery,
		GroupNumber: req.Group,
		Message:     "delivery " + req.CoffeeType + " requested via API",
		Timestamp:   time.Now(),
	}); err != nil {
		r.logger.Warn("maintenance log write failed", "error", err)
	}
	metrics.IncDeliveryStarted(string(store.TriggerAPI))
	rec.Status = store.StatusInProgress
	writeJSON(c, http.StatusOK, rec)
}

type groupReq struct {
	Group int `json:"group"`
}

func (r *Router) handleStopDelivery(c *gin.Context) {
	var req groupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := r.machine.StopDelivery(req.Group); err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, machine.ErrUnavailable) {
			code = http.StatusBadGateway
		}
		writeJSON(c, code, errorResp{Error: err.Error()})
		return
	}

	ctx := c.Request.Context()
	now := time.Now()
	// a stopped delivery still counts as delivered
	if open, err := r.store.FindOpen(ctx, req.Group); err == nil && open != nil {
		if err := r.store.MarkCompleted(ctx, open.ID, now); err != nil {
			r.logger.Warn("mark completed after stop failed", "id", open.ID, "error", err)
		} else {
			metrics.IncDeliveryCompleted(string(open.TriggerType))
			metrics.SetOpenDelivery(req.Group, false)
		}
	}
	if err := r.store.AppendMaintenance(ctx, store.MaintenanceEntry{
		LogType:     store.LogManualStop,
		GroupNumber: req.Group,
		Message:     "delivery stopped via API",
		Timestamp:   now,
	}); err != nil {
		r.logger.Warn("maintenance log write failed", "error", err)
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handlePurge(c *gin.Context) {
	var req groupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := r.machine.StartPurge(req.Group); err != nil {
		code := http.StatusBadRequest
		switch {
		case errors.Is(err, machine.ErrGroupBusy):
			code = http.StatusConflict
		case errors.Is(err, machine.ErrUnavailable):
			code = http.StatusBadGateway
		}
		writeJSON(c, code, errorResp{Error: err.Error()})
		return
	}
	if err := r.store.AppendMaintenance(c.Request.Context(), store.MaintenanceEntry{
		LogType:     store.LogPurge,
		GroupNumber: req.Group,
		Message:     "purge started via API",
		Timestamp:   time.Now(),
	}); err != nil {
		r.logger.Warn("maintenance log write failed", "error", err)
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

type historyResp struct {
	Records []store.Record `json:"records"`
	Count   int            `json:"count"`
}

func (r *Router) handleHistory(c *gin.Context) {
	q := store.HistoryQuery{Trigger: store.Trigger(c.Query("trigger"))}
	if g := c.Query("group"); g != "" {
		n, err := strconv.Atoi(g)
		if err != nil || n < 1 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid group"})
			return
		}
		q.Group = n
	}
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid limit"})
			return
		}
		q.Limit = n
	}

	ctx := c.Request.Context()
	recs, err := r.store.History(ctx, q)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	resp := historyResp{Records: recs, Count: len(recs)}
	if q.Trigger != "" {
		if n, err := r.store.CountByTrigger(ctx, q.Trigger); err == nil {
			resp.Count = n
		}
	}
	if resp.Records == nil {
		resp.Records = []store.Record{}
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleMaintenance(c *gin.Context) {
	limit := 0
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid limit"})
			return
		}
		limit = n
	}
	entries, err := r.store.Maintenance(c.Request.Context(), limit)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if entries == nil {
		entries = []store.MaintenanceEntry{}
	}
	writeJSON(c, http.StatusOK, entries)
}
