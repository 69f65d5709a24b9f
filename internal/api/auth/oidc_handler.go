package auth

import (
	"errors"
	"net/http"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/polaris-class/clubhouse/internal/store"
)

func (p *OIDCProvider) Login(c *gin.Context) {
	state := uuid.New().String()
	session := sessions.Default(c)
	session.Set(sessionOAuthState, state)
	if err := session.Save(); err != nil {
		c.AbortWithError(http.StatusInternalServerError, err) //nolint:errcheck
		return
	}
	url := p.config.AuthCodeURL(state)
	c.Redirect(http.StatusFound, url)
}

func (p *OIDCProvider) Callback(c *gin.Context) {
	ctx := c.Request.Context()
	session := sessions.Default(c)

	if want := getSessionString(session, sessionOAuthState); want == "" || c.Query("state") != want {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid oauth state"})
		return
	}
	session.Delete(sessionOAuthState)

	oauth2Token, err := p.config.Exchange(ctx, c.Query("code"))
	if err != nil {
		c.AbortWithError(http.StatusUnauthorized, err) //nolint:errcheck
		return
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		c.AbortWithError(http.StatusInternalServerError, errors.New("id_token missing from token response")) //nolint:errcheck
		return
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		c.AbortWithError(http.StatusUnauthorized, err) //nolint:errcheck
		return
	}

	var claims struct {
		Email             string   `json:"email"`
		Name              string   `json:"name"`
		PreferredUsername string   `json:"preferred_username"`
		Sub               string   `json:"sub"`
		Groups            []string `json:"groups"`
	}
	if err := idToken.Claims(&claims); err != nil {
		c.AbortWithError(http.StatusInternalServerError, err) //nolint:errcheck
		return
	}

	isTeacher := p.cfg.TeacherGroup != "" && slices.Contains(claims.Groups, p.cfg.TeacherGroup)

	if _, err := LoadActor(ctx, p.store, claims.PreferredUsername); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.AbortWithError(http.StatusInternalServerError, err) //nolint:errcheck
			return
		}
		if !isTeacher {
			log.Warn("OIDC login for unknown user", "username", claims.PreferredUsername)
			c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "account is not registered"})
			return
		}
	}

	session.Set(sessionUsername, claims.PreferredUsername)
	session.Set(sessionName, claims.Name)
	session.Set(sessionEmail, claims.Email) // required for gravatar
	session.Set(sessionOIDCTeacher, isTeacher)

	if err := session.Save(); err != nil {
		c.AbortWithError(http.StatusInternalServerError, err) //nolint:errcheck
		return
	}

	c.Redirect(http.StatusFound, "/")
}
