package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/polaris-class/clubhouse/internal/api/auth"
	"github.com/polaris-class/clubhouse/internal/vote"
)

// ListVotes returns every visible vote with its tally.
func (h *Handler) ListVotes(c *gin.Context) {
	votes, err := h.engine.Votes.List(c.Request.Context(), auth.ActorOf(c))
	if err != nil {
		respondError(c, err, "load votes")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"votes":   votes,
	})
}

// CreateVote stores a vote.
func (h *Handler) CreateVote(c *gin.Context) {
	var in vote.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid vote")
		return
	}
	v, err := h.engine.Votes.Create(c.Request.Context(), auth.ActorOf(c), in)
	if err != nil {
		respondError(c, err, "create vote")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"vote":    v,
		"options": v.OptionList(),
	})
}

// GetVote returns the tally of one vote.
func (h *Handler) GetVote(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	t, err := h.engine.Votes.Tally(c.Request.Context(), auth.ActorOf(c), id)
	if err != nil {
		respondError(c, err, "load vote")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"tally":   t,
		"winners": t.Winners(),
	})
}

// CastVote records the user's ballot.
func (h *Handler) CastVote(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Option string `json:"option"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Option == "" {
		badRequest(c, "option is required")
		return
	}
	ballot, err := h.engine.Votes.Cast(c.Request.Context(), auth.ActorOf(c), id, req.Option)
	if err != nil {
		respondError(c, err, "cast vote")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"ballot":  ballot,
	})
}

// DeleteVote removes a vote and its ballots.
func (h *Handler) DeleteVote(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.engine.Votes.Delete(c.Request.Context(), auth.ActorOf(c), id); err != nil {
		respondError(c, err, "delete vote")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Vote deleted",
	})
}
