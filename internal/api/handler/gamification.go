package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/polaris-class/clubhouse/internal/api/auth"
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/samber/lo"
)

// MyProfile returns the user's points, level, streak and badges.
func (h *Handler) MyProfile(c *gin.Context) {
	p, err := h.engine.Gamification.Profile(c.Request.Context(), auth.ActorOf(c).Username)
	if err != nil {
		respondError(c, err, "load profile")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"profile": p,
	})
}

// Leaderboard ranks users by points.
func (h *Handler) Leaderboard(c *gin.Context) {
	entries, err := h.engine.Gamification.Leaderboard(c.Request.Context(), intQuery(c, "limit", 10, 100))
	if err != nil {
		respondError(c, err, "load leaderboard")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"leaderboard": lo.Ternary(entries == nil, []models.LeaderboardEntry{}, entries),
	})
}
