package auth

import (
	"context"

	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/polaris-class/clubhouse/internal/store"
)

// LoadActor builds the actor of username from its rows in users.csv. It returns
// store.ErrNotFound when the user has no row. The user is a teacher when any of
// their rows carries the teacher role.
func LoadActor(ctx context.Context, s *store.Store, username string) (*models.Actor, error) {
	t, err := s.Load(ctx, store.Users)
	if err != nil {
		return nil, err
	}
	rows := models.DecodeAll[models.User](t.Where(func(r store.Record) bool { return r["username"] == username }))
	if len(rows) == 0 || username == "" {
		return nil, store.ErrNotFound
	}

	actor := &models.Actor{
		Username: username,
		Name:     rows[0].Name,
		Role:     models.RoleMember,
		Email:    rows[0].Email,
	}
	for _, u := range rows {
		if u.Role == models.RoleTeacher {
			actor.Role = models.RoleTeacher
		}
		if u.ClubName != "" {
			actor.Clubs = append(actor.Clubs, store.Membership{Club: u.ClubName, Role: string(u.ClubRole)})
		}
	}
	return actor, nil
}

// passwordHash returns the first non-empty password hash of username.
func passwordHash(ctx context.Context, s *store.Store, username string) (string, bool, error) {
	t, err := s.Load(ctx, store.Users)
	if err != nil {
		return "", false, err
	}
	found := false
	for _, r := range t.Rows {
		if r["username"] != username {
			continue
		}
		found = true
		if h := r["password_hash"]; h != "" {
			return h, true, nil
		}
	}
	return "", found, nil
}
