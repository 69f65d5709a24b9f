package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/polaris-class/clubhouse/internal/api/auth"
	"github.com/polaris-class/clubhouse/internal/assignment"
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/samber/lo"
)

// ListAssignments returns the assignments visible to the user, optionally of one club.
func (h *Handler) ListAssignments(c *gin.Context) {
	list, err := h.engine.Assignments.List(c.Request.Context(), auth.ActorOf(c), c.Query("club"))
	if err != nil {
		respondError(c, err, "load assignments")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"assignments": lo.Ternary(list == nil, []assignment.Overview{}, list),
	})
}

// CreateAssignment stores an assignment.
func (h *Handler) CreateAssignment(c *gin.Context) {
	var in assignment.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid assignment")
		return
	}
	a, err := h.engine.Assignments.Create(c.Request.Context(), auth.ActorOf(c), in)
	if err != nil {
		respondError(c, err, "create assignment")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"assignment": a,
	})
}

// SubmitAssignment stores or replaces the user's submission.
func (h *Handler) SubmitAssignment(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid submission")
		return
	}
	sub, err := h.engine.Assignments.Submit(c.Request.Context(), auth.ActorOf(c), id, req.Content)
	if err != nil {
		respondError(c, err, "submit assignment")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"submission": sub,
	})
}

// ListSubmissions returns the submissions of an assignment.
func (h *Handler) ListSubmissions(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	subs, err := h.engine.Assignments.Submissions(c.Request.Context(), auth.ActorOf(c), id)
	if err != nil {
		respondError(c, err, "load submissions")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"submissions": lo.Ternary(subs == nil, []models.Submission{}, subs),
	})
}

// GradeSubmission records a grade.
func (h *Handler) GradeSubmission(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Grade    string `json:"grade"`
		Feedback string `json:"feedback"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid grade")
		return
	}
	if err := h.engine.Assignments.Grade(c.Request.Context(), auth.ActorOf(c), id, req.Grade, req.Feedback); err != nil {
		respondError(c, err, "grade submission")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Submission graded",
	})
}

// CloseAssignment stops accepting submissions.
func (h *Handler) CloseAssignment(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.engine.Assignments.Close(c.Request.Context(), auth.ActorOf(c), id); err != nil {
		respondError(c, err, "close assignment")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Assignment closed",
	})
}

// DeleteAssignment removes an assignment and its submissions.
func (h *Handler) DeleteAssignment(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.engine.Assignments.Delete(c.Request.Context(), auth.ActorOf(c), id); err != nil {
		respondError(c, err, "delete assignment")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Assignment deleted",
	})
}
