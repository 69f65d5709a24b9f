package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/polaris-class/clubhouse/internal/engine"
	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/samber/lo"
)

// hiddenColumns are never exported.
var hiddenColumns = []string{"password_hash"}

// ExportHandler serves the read-only API used by external tools such as
// school reporting scripts. It is protected by the API key.
type ExportHandler struct {
	engine *engine.Engine
}

func NewExport(e *engine.Engine) *ExportHandler {
	return &ExportHandler{
		engine: e,
	}
}

// Health reports that the API is reachable.
func (h *ExportHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Tables lists the exportable table names.
func (h *ExportHandler) Tables(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"tables":  h.engine.Store().Tables(),
	})
}

// ExportTable returns every row of a table as JSON objects.
func (h *ExportHandler) ExportTable(c *gin.Context) {
	t, err := h.engine.Store().Load(c.Request.Context(), c.Param("table"))
	if errors.Is(err, store.ErrUnknownTable) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	if err != nil {
		respondError(c, err, "export table")
		return
	}

	rows := lo.Map(t.Rows, func(r store.Record, _ int) map[string]string {
		return lo.OmitByKeys(r, hiddenColumns)
	})
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"table":   t.Name,
		"columns": lo.Without(t.Header, hiddenColumns...),
		"rows":    rows,
	})
}

// ExportSummary returns the attendance summary and game profile of a user.
func (h *ExportHandler) ExportSummary(c *gin.Context) {
	username := c.Param("username")
	ctx := c.Request.Context()

	users, err := h.engine.Store().Load(ctx, store.Users)
	if err != nil {
		respondError(c, err, "load user")
		return
	}
	if _, ok := users.Find("username", username); !ok {
		respondError(c, store.ErrNotFound, "load user")
		return
	}
	summary, err := h.engine.Attendance.Summary(ctx, username)
	if err != nil {
		respondError(c, err, "load summary")
		return
	}
	profile, err := h.engine.Gamification.Profile(ctx, username)
	if err != nil {
		respondError(c, err, "load profile")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"username":   username,
		"attendance": summary,
		"profile":    profile,
	})
}
