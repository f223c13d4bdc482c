package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cardwatch/internal/catalog"
	"cardwatch/internal/models"
	"cardwatch/internal/monitor"
	"cardwatch/internal/obs"
	"cardwatch/internal/report"
	"cardwatch/internal/store"

	"github.com/gin-gonic/gin"
)

// Engine is the part of monitor.Engine the API drives.
type Engine interface {
	RunCycle(ctx context.Context) (*monitor.CycleReport, error)
	Start(ctx context.Context) error
	Sync(ctx context.Context) (*monitor.CycleReport, error)
	Status() monitor.Status
	Subscribe() (<-chan monitor.Event, func())
}

type APIHandler struct {
	store   store.Store
	engine  Engine
	catalog *catalog.Catalog
	// background cycles started by POST /check outlive the request
	baseCtx context.Context
}

// SetupRoutes mounts the operator API on r. cat may be nil.
func SetupRoutes(ctx context.Context, r *gin.RouterGroup, st store.Store, eng Engine, cat *catalog.Catalog) *APIHandler {
	handler := &APIHandler{
		store:   st,
		engine:  eng,
		catalog: cat,
		baseCtx: ctx,
	}

	watchlist := r.Group("/watchlist")
	{
		watchlist.GET("", handler.ListWatchlist)
		watchlist.POST("", handler.AddWatchItem)
	}
	r.GET("/status", handler.GetStatus)
	r.POST("/check", handler.TriggerCheck)
	r.POST("/sync", handler.SyncTargets)
	r.GET("/report.xlsx", handler.DownloadReport)

	return handler
}

func (h *APIHandler) ListWatchlist(c *gin.Context) {
	items, err := h.store.Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if items == nil {
		items = []models.WatchItem{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(items), "items": items})
}

func (h *APIHandler) AddWatchItem(c *gin.Context) {
	var item models.WatchItem
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	if item.BlueprintID == 0 && h.catalog != nil {
		if id, err := h.catalog.Blueprint(item); err == nil {
			item.BlueprintID = id
		}
	}

	err := h.store.Add(c.Request.Context(), item)
	var verr *store.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
		return
	case errors.Is(err, store.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "already on the watch-list", "key": item.Key()})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	obs.Logger.Info("watch item added", "item", item.Key().String(), "target", item.TargetPrice.StringFixed(2))
	c.JSON(http.StatusCreated, gin.H{"item": item})
}

func (h *APIHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Status())
}

// TriggerCheck starts a cycle in the background, or runs it inline and
// returns its report with ?wait=true.
func (h *APIHandler) TriggerCheck(c *gin.Context) {
	if c.Query("wait") == "true" {
		rep, err := h.engine.RunCycle(c.Request.Context())
		switch {
		case errors.Is(err, monitor.ErrCycleInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "status": h.engine.Status()})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "report": rep})
		default:
			c.JSON(http.StatusOK, gin.H{"report": rep})
		}
		return
	}

	if err := h.engine.Start(h.baseCtx); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "status": h.engine.Status()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"msg": "started"})
}

// SyncTargets resets every target to its current quoted price.
func (h *APIHandler) SyncTargets(c *gin.Context) {
	rep, err := h.engine.Sync(c.Request.Context())
	switch {
	case errors.Is(err, monitor.ErrCycleInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "status": h.engine.Status()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "report": rep})
	default:
		c.JSON(http.StatusOK, gin.H{"report": rep})
	}
}

func (h *APIHandler) DownloadReport(c *gin.Context) {
	items, err := h.store.Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	name := "cardwatch-" + time.Now().Format("20060102-150405") + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Status(http.StatusOK)
	if err := report.Write(c.Writer, items, h.engine.Status().Last); err != nil {
		obs.Logger.Error("write report", "error", err)
	}
}
