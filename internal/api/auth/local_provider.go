package auth

import (
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/polaris-class/clubhouse/internal/password"
)

// LoginRequest is a password login.
type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// Login checks a username and password against users.csv and starts a session.
func (p *Provider) Login(c *gin.Context) {
	if !p.HasLocal() {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "password login is disabled"})
		return
	}

	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid login request"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "username and password are required"})
		return
	}

	hash, _, err := passwordHash(c.Request.Context(), p.store, req.Username)
	if err != nil {
		log.Error("failed to load users", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to check credentials"})
		return
	}
	if !password.Check(hash, req.Password) {
		log.Info("failed login", "username", req.Username)
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid credentials"})
		return
	}

	p.startSession(c, req.Username)
}

// DemoLogin signs in as the configured demo user without a password.
func (p *Provider) DemoLogin(c *gin.Context) {
	if !p.Methods().Demo {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "demo login is disabled"})
		return
	}
	p.startSession(c, p.cfg.Local.DemoUser)
}

func (p *Provider) startSession(c *gin.Context, username string) {
	actor, err := LoadActor(c.Request.Context(), p.store, username)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid credentials"})
		return
	}

	session := sessions.Default(c)
	session.Clear()
	session.Set(sessionUsername, actor.Username)
	session.Set(sessionName, actor.Name)
	session.Set(sessionEmail, actor.Email)
	if err := session.Save(); err != nil {
		log.Error("Failed to save session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to save session"})
		return
	}

	log.Info("user logged in", "username", actor.Username)
	c.JSON(http.StatusOK, gin.H{"success": true, "redirect": "/"})
}

// Logout ends the session.
func (p *Provider) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		log.Error("Failed to clear session", "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "redirect": "/login"})
}
