package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/polaris-class/clubhouse/internal/api/auth"
	"github.com/polaris-class/clubhouse/internal/quiz"
	"github.com/samber/lo"
)

// quizStartKey is the session key holding the start time of an attempt.
func quizStartKey(id int) string {
	return "quiz_started_" + strconv.Itoa(id)
}

// ListQuizzes returns the quizzes visible to the user.
func (h *Handler) ListQuizzes(c *gin.Context) {
	quizzes, err := h.engine.Quiz.List(c.Request.Context(), auth.ActorOf(c))
	if err != nil {
		respondError(c, err, "load quizzes")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"quizzes": lo.Ternary(quizzes == nil, []quiz.Overview{}, quizzes),
	})
}

// CreateQuiz stores a quiz.
func (h *Handler) CreateQuiz(c *gin.Context) {
	var in quiz.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid quiz")
		return
	}
	q, err := h.engine.Quiz.Create(c.Request.Context(), auth.ActorOf(c), in)
	if err != nil {
		respondError(c, err, "create quiz")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"quiz":    q,
	})
}

// StartQuiz begins an attempt. The start time is kept in the session so the
// time limit is enforced on submit.
func (h *Handler) StartQuiz(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	attempt, err := h.engine.Quiz.Start(c.Request.Context(), auth.ActorOf(c), id)
	if err != nil {
		respondError(c, err, "start quiz")
		return
	}

	session := sessions.Default(c)
	session.Set(quizStartKey(id), attempt.StartedAt.Unix())
	if err := session.Save(); err != nil {
		log.Error("Failed to save session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to start quiz",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"attempt": attempt,
	})
}

// SubmitQuiz grades the answers of a started attempt.
func (h *Handler) SubmitQuiz(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Answers []string `json:"answers"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid answers")
		return
	}

	session := sessions.Default(c)
	started, ok := session.Get(quizStartKey(id)).(int64)
	if !ok {
		badRequest(c, "Quiz was not started")
		return
	}

	res, err := h.engine.Quiz.Submit(c.Request.Context(), auth.ActorOf(c), id, req.Answers, time.Unix(started, 0))
	if err != nil {
		respondError(c, err, "submit quiz")
		return
	}

	session.Delete(quizStartKey(id))
	if err := session.Save(); err != nil {
		log.Warn("Failed to clear quiz attempt from session", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  res,
	})
}

// SetQuizStatus activates or deactivates a quiz.
func (h *Handler) SetQuizStatus(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid status")
		return
	}
	if err := h.engine.Quiz.SetStatus(c.Request.Context(), auth.ActorOf(c), id, req.Status); err != nil {
		respondError(c, err, "update quiz")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Quiz status updated",
	})
}

// DeleteQuiz removes a quiz and its responses.
func (h *Handler) DeleteQuiz(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.engine.Quiz.Delete(c.Request.Context(), auth.ActorOf(c), id); err != nil {
		respondError(c, err, "delete quiz")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Quiz deleted",
	})
}

// QuizAnalytics returns score statistics of a quiz.
func (h *Handler) QuizAnalytics(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	a, err := h.engine.Quiz.Analytics(c.Request.Context(), auth.ActorOf(c), id)
	if err != nil {
		respondError(c, err, "load quiz analytics")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"analytics": a,
	})
}

// MyQuizScores returns the user's quiz history.
func (h *Handler) MyQuizScores(c *gin.Context) {
	scores, err := h.engine.Quiz.MyScores(c.Request.Context(), auth.ActorOf(c).Username)
	if err != nil {
		respondError(c, err, "load quiz scores")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"scores":  scores,
	})
}
