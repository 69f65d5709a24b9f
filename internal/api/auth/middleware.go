package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/polaris-class/clubhouse/internal/store"
)

const actorKey = "actor"

// RequireAuth loads the signed-in user from users.csv on every request so role
// and membership changes apply immediately.
func (p *Provider) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		username := getSessionString(session, sessionUsername)
		if username == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "login required"})
			return
		}

		actor, err := LoadActor(c.Request.Context(), p.store, username)
		switch {
		case errors.Is(err, store.ErrNotFound) && getSessionBool(session, sessionOIDCTeacher):
			actor = &models.Actor{
				Username: username,
				Name:     getSessionString(session, sessionName),
				Email:    getSessionString(session, sessionEmail),
				Role:     models.RoleTeacher,
			}
		case errors.Is(err, store.ErrNotFound):
			session.Clear()
			_ = session.Save()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "account no longer exists"})
			return
		case err != nil:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to load user"})
			return
		}

		if getSessionBool(session, sessionOIDCTeacher) {
			actor.Role = models.RoleTeacher
		}
		if actor.Email == "" {
			actor.Email = getSessionString(session, sessionEmail)
		}
		actor.GravatarURL = p.gravatar.URL(actor.Email)

		SetActor(c, actor)
		c.Next()
	}
}

// RequireTeacher aborts unless the actor is a teacher.
func RequireTeacher() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor := ActorOf(c); actor == nil || !actor.IsTeacher() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "forbidden"})
			return
		}
		c.Next()
	}
}

// RequireLeader aborts unless the actor leads a club or is a teacher.
func RequireLeader() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor := ActorOf(c); actor == nil || !actor.IsLeader() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "forbidden"})
			return
		}
		c.Next()
	}
}

// RequireAPIKey guards the read-only export API. An empty key disables it.
func RequireAPIKey(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"success": false, "error": "API access is disabled"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(c.GetHeader("X-API-Key")), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid API key"})
			return
		}
		c.Next()
	}
}

// ActorOf returns the actor set by RequireAuth.
func ActorOf(c *gin.Context) *models.Actor {
	v, ok := c.Get(actorKey)
	if !ok {
		return nil
	}
	actor, _ := v.(*models.Actor)
	return actor
}

// SetActor stores actor on the gin context and tags the request context for the audit log.
func SetActor(c *gin.Context, actor *models.Actor) {
	c.Set(actorKey, actor)
	c.Request = c.Request.WithContext(store.WithActor(c.Request.Context(), actor.Username))
}

// Helper functions to safely get session values.
func getSessionString(session sessions.Session, key string) string {
	if val := session.Get(key); val != nil {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getSessionBool(session sessions.Session, key string) bool {
	if val := session.Get(key); val != nil {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}
