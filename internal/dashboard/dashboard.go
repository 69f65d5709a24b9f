// Package dashboard assembles the home screen of a signed-in user.
package dashboard

import (
	"context"

	"github.com/polaris-class/clubhouse/internal/gamification"
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// RecentLimit is the number of notifications shown on the dashboard.
const RecentLimit = 5

// Notifications reads a user's notifications.
type Notifications interface {
	UnreadCount(ctx context.Context, username string) (int, error)
	Recent(ctx context.Context, username string, limit int) ([]models.Notification, error)
}

// Assignments counts open assignments.
type Assignments interface {
	OpenCount(ctx context.Context, actor *models.Actor) (int, error)
}

// Profiles returns gamification profiles.
type Profiles interface {
	Profile(ctx context.Context, username string) (gamification.Profile, error)
}

// ClubCard is one of the user's clubs with their role in it.
type ClubCard struct {
	models.Club
	Role string `json:"role"`
}

// Dashboard is the home screen.
type Dashboard struct {
	ClubCount           int                   `json:"clubCount"`
	OpenAssignments     int                   `json:"openAssignments"`
	UnreadNotifications int                   `json:"unreadNotifications"`
	BadgeCount          int                   `json:"badgeCount"`
	Clubs               []ClubCard            `json:"clubs"`
	RecentNotifications []models.Notification `json:"recentNotifications"`
	Profile             gamification.Profile  `json:"profile"`
}

// Service builds dashboards.
type Service struct {
	store         *store.Store
	notifications Notifications
	assignments   Assignments
	profiles      Profiles
}

// New creates a dashboard service.
func New(s *store.Store, n Notifications, a Assignments, p Profiles) *Service {
	return &Service{store: s, notifications: n, assignments: a, profiles: p}
}

// For builds the dashboard of actor. The parts are loaded concurrently.
func (s *Service) For(ctx context.Context, actor *models.Actor) (Dashboard, error) {
	out := Dashboard{ClubCount: len(actor.Clubs)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.assignments.OpenCount(gctx, actor)
		out.OpenAssignments = n
		return err
	})
	g.Go(func() error {
		n, err := s.notifications.UnreadCount(gctx, actor.Username)
		out.UnreadNotifications = n
		return err
	})
	g.Go(func() error {
		recent, err := s.notifications.Recent(gctx, actor.Username, RecentLimit)
		out.RecentNotifications = recent
		return err
	})
	g.Go(func() error {
		p, err := s.profiles.Profile(gctx, actor.Username)
		out.Profile = p
		out.BadgeCount = len(p.Badges)
		return err
	})
	g.Go(func() error {
		cards, err := s.clubCards(gctx, actor)
		out.Clubs = cards
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return out, nil
}

func (s *Service) clubCards(ctx context.Context, actor *models.Actor) ([]ClubCard, error) {
	t, err := s.store.Load(ctx, store.Clubs)
	if err != nil {
		return nil, err
	}
	clubs := lo.KeyBy(models.DecodeAll[models.Club](t.Rows), func(c models.Club) string { return c.Name })
	cards := make([]ClubCard, 0, len(actor.Clubs))
	for _, m := range actor.Clubs {
		c, ok := clubs[m.Club]
		if !ok {
			continue
		}
		cards = append(cards, ClubCard{Club: c, Role: m.Role})
	}
	return cards, nil
}
