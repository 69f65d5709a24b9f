package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/polaris-class/clubhouse/internal/api/auth"
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/polaris-class/clubhouse/internal/schedule"
	"github.com/samber/lo"
)

// UpcomingSchedule returns schedule items from the from query date, today by default.
func (h *Handler) UpcomingSchedule(c *gin.Context) {
	var from time.Time
	if v := c.Query("from"); v != "" {
		t, ok := models.ParseDate(v, h.loc)
		if !ok {
			badRequest(c, "Invalid from date")
			return
		}
		from = t
	}
	items, err := h.engine.Schedule.Upcoming(c.Request.Context(), auth.ActorOf(c), c.Query("club"), from)
	if err != nil {
		respondError(c, err, "load schedule")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"items":   lo.Ternary(items == nil, []models.ScheduleItem{}, items),
	})
}

// CreateSchedule stores a schedule item.
func (h *Handler) CreateSchedule(c *gin.Context) {
	var in schedule.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid schedule item")
		return
	}
	item, err := h.engine.Schedule.Create(c.Request.Context(), auth.ActorOf(c), in)
	if err != nil {
		respondError(c, err, "create schedule item")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"item":    item,
	})
}

// DeleteSchedule removes a schedule item.
func (h *Handler) DeleteSchedule(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.engine.Schedule.Delete(c.Request.Context(), auth.ActorOf(c), id); err != nil {
		respondError(c, err, "delete schedule item")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Schedule item deleted",
	})
}

// StartScheduleAttendance marks every member of the item's club present.
func (h *Handler) StartScheduleAttendance(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	res, err := h.engine.Schedule.StartAttendance(c.Request.Context(), auth.ActorOf(c), id)
	if err != nil {
		respondError(c, err, "start attendance")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  res,
	})
}
