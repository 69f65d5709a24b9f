package handler

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/polaris-class/clubhouse/internal/admin"
	"github.com/polaris-class/clubhouse/internal/api/auth"
	"github.com/polaris-class/clubhouse/internal/backup"
	"github.com/polaris-class/clubhouse/internal/engine"
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/samber/lo"
)

// AdminHandler serves the teacher-only management API.
type AdminHandler struct {
	engine *engine.Engine
	// retention is the number of backups kept after a manual backup.
	retention int
}

func NewAdmin(eng *engine.Engine, retention int) *AdminHandler {
	return &AdminHandler{
		engine:    eng,
		retention: retention,
	}
}

// ListUsers returns every account.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.engine.Admin.Users(c.Request.Context(), auth.ActorOf(c))
	if err != nil {
		respondError(c, err, "load users")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"users":   lo.Ternary(users == nil, []admin.Account{}, users),
	})
}

// CreateUser adds an account.
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var in admin.UserInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid user")
		return
	}
	acc, err := h.engine.Admin.CreateUser(c.Request.Context(), auth.ActorOf(c), in)
	if err != nil {
		respondError(c, err, "create user")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"user":    acc,
	})
}

// UpdateUser applies a partial update to an account.
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	var p admin.UserPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, "Invalid user")
		return
	}
	acc, err := h.engine.Admin.UpdateUser(c.Request.Context(), auth.ActorOf(c), c.Param("username"), p)
	if err != nil {
		respondError(c, err, "update user")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    acc,
	})
}

// DeleteUser removes an account.
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	if err := h.engine.Admin.DeleteUser(c.Request.Context(), auth.ActorOf(c), c.Param("username")); err != nil {
		respondError(c, err, "delete user")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "User deleted",
	})
}

// CreateClub adds a club.
func (h *AdminHandler) CreateClub(c *gin.Context) {
	var club models.Club
	if err := c.ShouldBindJSON(&club); err != nil {
		badRequest(c, "Invalid club")
		return
	}
	created, err := h.engine.Admin.CreateClub(c.Request.Context(), auth.ActorOf(c), club)
	if err != nil {
		respondError(c, err, "create club")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"club":    created,
	})
}

// UpdateClub applies a partial update to a club.
func (h *AdminHandler) UpdateClub(c *gin.Context) {
	var p admin.ClubPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, "Invalid club")
		return
	}
	if err := h.engine.Admin.UpdateClub(c.Request.Context(), auth.ActorOf(c), c.Param("name"), p); err != nil {
		respondError(c, err, "update club")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Club updated",
	})
}

// DeleteClub removes a club and its memberships.
func (h *AdminHandler) DeleteClub(c *gin.Context) {
	if err := h.engine.Admin.DeleteClub(c.Request.Context(), auth.ActorOf(c), c.Param("name")); err != nil {
		respondError(c, err, "delete club")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Club deleted",
	})
}

// Status returns disk usage, row counts, cache statistics and job states.
func (h *AdminHandler) Status(c *gin.Context) {
	st, err := h.engine.Admin.Status(c.Request.Context(), auth.ActorOf(c))
	if err != nil {
		respondError(c, err, "load status")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  st,
	})
}

// RunJob triggers a scheduled job now.
func (h *AdminHandler) RunJob(c *gin.Context) {
	id := c.Param("id")
	if err := h.engine.Admin.RunJob(c.Request.Context(), auth.ActorOf(c), id); err != nil {
		respondError(c, err, "run job")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Job " + id + " triggered",
	})
}

// ClearCache drops every cached statistic.
func (h *AdminHandler) ClearCache(c *gin.Context) {
	if err := h.engine.Admin.ClearCache(c.Request.Context(), auth.ActorOf(c)); err != nil {
		respondError(c, err, "clear cache")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Cache cleared successfully",
	})
}

// AuditLog returns a page of the change log.
func (h *AdminHandler) AuditLog(c *gin.Context) {
	page, err := h.engine.Admin.AuditLog(c.Request.Context(), auth.ActorOf(c), c.Query("table"),
		intQuery(c, "page", 1, 0), intQuery(c, "pageSize", 50, 200))
	if err != nil {
		respondError(c, err, "load audit log")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    page,
	})
}

// ListBackups returns the backup archives, newest first.
func (h *AdminHandler) ListBackups(c *gin.Context) {
	list, err := h.engine.Backup.List()
	if err != nil {
		respondError(c, err, "list backups")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"backups": lo.Ternary(list == nil, []backup.Info{}, list),
	})
}

// CreateBackup writes a backup now and prunes old archives.
func (h *AdminHandler) CreateBackup(c *gin.Context) {
	info, err := h.engine.Backup.Create(c.Request.Context())
	if err != nil {
		respondError(c, err, "create backup")
		return
	}
	if _, err := h.engine.Backup.Prune(h.retention); err != nil {
		log.Warn("Failed to prune backups", "error", err)
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"backup":  info,
	})
}

// DownloadBackup sends an archive as an attachment.
func (h *AdminHandler) DownloadBackup(c *gin.Context) {
	path, err := h.engine.Backup.Path(c.Param("name"))
	if err != nil {
		respondError(c, err, "download backup")
		return
	}
	c.FileAttachment(path, c.Param("name"))
}
