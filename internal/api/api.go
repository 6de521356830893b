// Package api serves the redaction settings surface and the host's erasure hooks over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/celerix-dev/celerix-redact/pkg/catalog"
	"github.com/celerix-dev/celerix-redact/pkg/policy"
	"github.com/celerix-dev/celerix-redact/pkg/redact"
	"github.com/celerix-dev/celerix-redact/pkg/schema"
	"github.com/celerix-dev/celerix-redact/pkg/sweep"
)

// Sweeper is the part of the sweep the API drives.
type Sweeper interface {
	Run(ctx context.Context) (schema.SweepReport, error)
	Count(ctx context.Context) (int, error)
}

type Handler struct {
	Catalog *catalog.Catalog
	Toggles *policy.Store
	Hooks   map[string]redact.Transform
	Sweeper Sweeper
}

type fieldView struct {
	catalog.FieldDefinition
	Erase bool `json:"erase"`
}

type sectionView struct {
	RecordType catalog.RecordType `json:"record_type"`
	Title      string             `json:"title"`
	Fields     []fieldView        `json:"fields"`
}

type settingsView struct {
	SweepEnabled bool          `json:"sweep_enabled"`
	Sections     []sectionView `json:"sections"`
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/fields", h.GetFields)
	r.GET("/toggles/:key", h.GetToggle)
	r.PUT("/toggles/:key", h.SetToggle)
	r.GET("/saved-addresses/count", h.CountSavedAddresses)
	r.POST("/hooks/:hook", h.RunHook)
	r.POST("/sweep", h.RunSweep)
}

// Metrics exposes the default Prometheus registry.
func Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// GetFields lists the settings groups, or only one when ?record_type= is given.
func (h *Handler) GetFields(c *gin.Context) {
	types := catalog.RecordTypes
	if q := c.Query("record_type"); q != "" {
		rt, err := catalog.ParseRecordType(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		types = []catalog.RecordType{rt}
	}

	sweepOn, err := h.Toggles.SweepEnabled()
	if err != nil {
		storeError(c, err)
		return
	}

	view := settingsView{SweepEnabled: sweepOn}
	for _, rt := range types {
		sec := sectionView{RecordType: rt, Title: rt.Title()}
		if rt == catalog.CustomerProp && !sweepOn {
			sec.Title += " [Currently not enabled]"
		}
		for _, fd := range h.Catalog.ListFields(rt) {
			erase, err := h.Toggles.EraseField(fd.ToggleKey)
			if err != nil {
				storeError(c, err)
				return
			}
			sec.Fields = append(sec.Fields, fieldView{FieldDefinition: fd, Erase: erase})
		}
		view.Sections = append(view.Sections, sec)
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) toggleDefault(key catalog.ToggleKey) bool {
	return key != catalog.SweepToggleKey
}

func (h *Handler) GetToggle(c *gin.Context) {
	key := catalog.ToggleKey(c.Param("key"))
	if !h.Catalog.Known(key) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown toggle"})
		return
	}
	enabled, err := h.Toggles.Toggle(key, h.toggleDefault(key))
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "enabled": enabled})
}

func (h *Handler) SetToggle(c *gin.Context) {
	key := catalog.ToggleKey(c.Param("key"))
	if !h.Catalog.Known(key) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown toggle"})
		return
	}

	var input struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Toggles.SetToggle(key, *input.Enabled); err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "enabled": *input.Enabled})
}

func (h *Handler) CountSavedAddresses(c *gin.Context) {
	n, err := h.Sweeper.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *Handler) RunHook(c *gin.Context) {
	transform, ok := h.Hooks[c.Param("hook")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown hook"})
		return
	}

	var candidates redact.CandidateSet
	if err := c.ShouldBindJSON(&candidates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := transform(c.Request.Context(), candidates)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) RunSweep(c *gin.Context) {
	report, err := h.Sweeper.Run(c.Request.Context())
	switch {
	case errors.Is(err, sweep.ErrSweepInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "run_id": report.RunID})
	default:
		c.JSON(http.StatusOK, report)
	}
}

func storeError(c *gin.Context, err error) {
	if errors.Is(err, policy.ErrStoreUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// CORS allows the admin UI to be served from another origin.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
