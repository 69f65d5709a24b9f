package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/polaris-class/clubhouse/internal/api/auth"
	"github.com/polaris-class/clubhouse/internal/search"
	"github.com/samber/lo"
)

// Search runs a full-text search over the records visible to the user.
func (h *Handler) Search(c *gin.Context) {
	var q search.Query
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "Invalid search query")
		return
	}
	res, err := h.engine.Search.Search(c.Request.Context(), auth.ActorOf(c), q)
	if err != nil {
		respondError(c, err, "search")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"results": res,
	})
}

// RecentSearches returns the user's recent queries.
func (h *Handler) RecentSearches(c *gin.Context) {
	recent, err := h.engine.Search.Recent(c.Request.Context(), auth.ActorOf(c).Username)
	if err != nil {
		respondError(c, err, "load recent searches")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"recent":  lo.Ternary(recent == nil, []string{}, recent),
	})
}

// ClearRecentSearches forgets the user's recent queries.
func (h *Handler) ClearRecentSearches(c *gin.Context) {
	if err := h.engine.Search.ClearRecent(c.Request.Context(), auth.ActorOf(c).Username); err != nil {
		respondError(c, err, "clear recent searches")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Recent searches cleared",
	})
}

// SearchSuggestions returns quick links for the empty search page.
func (h *Handler) SearchSuggestions(c *gin.Context) {
	s, err := h.engine.Search.Suggest(c.Request.Context(), auth.ActorOf(c))
	if err != nil {
		respondError(c, err, "load suggestions")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"suggestions": s,
	})
}
