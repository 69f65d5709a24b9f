package handler

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/ccoveille/go-safecast"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/polaris-class/clubhouse/internal/admin"
	"github.com/polaris-class/clubhouse/internal/api/auth"
	"github.com/polaris-class/clubhouse/internal/api/models"
	"github.com/polaris-class/clubhouse/internal/assignment"
	"github.com/polaris-class/clubhouse/internal/attendance"
	"github.com/polaris-class/clubhouse/internal/backup"
	"github.com/polaris-class/clubhouse/internal/board"
	"github.com/polaris-class/clubhouse/internal/chat"
	"github.com/polaris-class/clubhouse/internal/engine"
	"github.com/polaris-class/clubhouse/internal/notification"
	"github.com/polaris-class/clubhouse/internal/password"
	"github.com/polaris-class/clubhouse/internal/quiz"
	"github.com/polaris-class/clubhouse/internal/schedule"
	"github.com/polaris-class/clubhouse/internal/scheduler"
	"github.com/polaris-class/clubhouse/internal/search"
	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/polaris-class/clubhouse/internal/vote"
)

// Handler serves the JSON API of the signed-in user.
type Handler struct {
	engine *engine.Engine
	loc    *time.Location
}

func New(eng *engine.Engine, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{
		engine: eng,
		loc:    loc,
	}
}

func (h *Handler) now() time.Time {
	return time.Now().In(h.loc)
}

var (
	forbiddenErrors = []error{
		attendance.ErrForbidden, attendance.ErrNotMember,
		board.ErrForbidden, quiz.ErrForbidden, chat.ErrForbidden,
		assignment.ErrForbidden, schedule.ErrForbidden, vote.ErrForbidden,
		admin.ErrForbidden, notification.ErrForbidden,
	}
	conflictErrors = []error{
		vote.ErrAlreadyVoted, admin.ErrExists, quiz.ErrNoAttemptsLeft,
	}
	badRequestErrors = []error{
		attendance.ErrInvalidStatus, attendance.ErrInvalidDate, attendance.ErrInvalidCode,
		board.ErrInvalidInput,
		quiz.ErrTimeExpired, quiz.ErrInactive, quiz.ErrInvalidQuiz,
		search.ErrEmptyQuery, chat.ErrEmptyMessage,
		assignment.ErrInvalidInput, assignment.ErrClosed, assignment.ErrPastDue,
		schedule.ErrInvalidInput,
		vote.ErrClosed, vote.ErrInvalidVote,
		admin.ErrInvalidInput, backup.ErrInvalidName, password.ErrTooShort,
	}
)

func matches(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// statusOf maps a service error to an HTTP status code.
func statusOf(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, os.ErrNotExist), errors.Is(err, scheduler.ErrJobNotFound):
		return http.StatusNotFound
	case matches(err, forbiddenErrors):
		return http.StatusForbidden
	case matches(err, conflictErrors):
		return http.StatusConflict
	case matches(err, badRequestErrors):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the JSON error response for err. Internal errors are
// logged and not shown to the client.
func respondError(c *gin.Context, err error, what string) {
	status := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("Failed to "+what, "error", err, "path", c.FullPath())
		msg = "Failed to " + what
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   msg,
	})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   msg,
	})
}

func parseUintParam(param string) (uint, error) {
	var id uint64
	var err error
	if id, err = strconv.ParseUint(param, 10, 0); err != nil {
		return 0, err
	}
	return uint(id), nil
}

// idParam reads a positive integer path parameter.
func idParam(c *gin.Context, name string) (int, bool) {
	v, err := parseUintParam(c.Param(name))
	if err != nil || v == 0 {
		badRequest(c, "Invalid "+name)
		return 0, false
	}
	id, err := safecast.ToInt(v)
	if err != nil {
		badRequest(c, "Invalid "+name)
		return 0, false
	}
	return id, true
}

// intQuery reads an optional positive integer query parameter, falling back to def
// when absent or invalid and capping at limit.
func intQuery(c *gin.Context, name string, def, limit int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := parseUintParam(raw)
	if err != nil || v == 0 {
		return def
	}
	n, err := safecast.ToInt(v)
	if err != nil {
		return def
	}
	if limit > 0 && n > limit {
		return limit
	}
	return n
}

// Me returns the current user's information.
func (h *Handler) Me(c *gin.Context) {
	actor := auth.ActorOf(c)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    models.ToUserInfo(actor),
	})
}

// Dashboard returns the landing page overview.
func (h *Handler) Dashboard(c *gin.Context) {
	actor := auth.ActorOf(c)
	d, err := h.engine.Dashboard.For(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err, "load dashboard")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"dashboard": d,
	})
}

// Clubs lists every club with its member count.
func (h *Handler) Clubs(c *gin.Context) {
	clubs, err := h.engine.Admin.Clubs(c.Request.Context())
	if err != nil {
		respondError(c, err, "load clubs")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"clubs":   clubs,
	})
}
