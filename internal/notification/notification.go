// Package notification stores in-app notifications and fans them out to
// the configured delivery channels.
package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// Notification types.
const (
	TypeInfo       = "info"
	TypeSuccess    = "success"
	TypeWarning    = "warning"
	TypeNotice     = "notice"
	TypeAssignment = "assignment"
	TypeSchedule   = "schedule"
	TypeBadge      = "badge"
)

// Icon returns the emoji shown next to a notification type.
func Icon(kind string) string {
	switch kind {
	case TypeSuccess:
		return "✅"
	case TypeWarning:
		return "⚠️"
	case TypeNotice:
		return "📢"
	case TypeAssignment:
		return "📝"
	case TypeSchedule:
		return "📅"
	case TypeBadge:
		return "🏆"
	default:
		return "ℹ️"
	}
}

// ErrForbidden is returned when marking another user's notification.
var ErrForbidden = errors.New("notification belongs to another user")

// Delivery is a stored notification on its way to an external channel.
type Delivery struct {
	models.Notification
	// Email and Name are resolved from users.csv for direct notifications.
	Email string
	Name  string
	Link  string
}

// Broadcast reports whether the notification addresses everyone.
func (d Delivery) Broadcast() bool {
	return d.Username == models.AllClubs
}

// Channel delivers notifications outside the app.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, d Delivery) error
}

// Service manages notifications.
type Service struct {
	store     *store.Store
	channels  []Channel
	serverURL string
}

// New creates a notification service.
func New(s *store.Store, serverURL string, channels ...Channel) *Service {
	return &Service{
		store:     s,
		channels:  lo.Filter(channels, func(c Channel, _ int) bool { return c != nil }),
		serverURL: serverURL,
	}
}

// Add stores a notification for username (or "all") and fans it out.
// Channel failures are logged and never fail the call.
func (s *Service) Add(ctx context.Context, title, kind, username, message string) (models.Notification, error) {
	if title == "" {
		return models.Notification{}, fmt.Errorf("title is required")
	}
	if username == "" {
		username = models.AllClubs
	}
	if kind == "" {
		kind = TypeInfo
	}

	rec, err := s.store.Add(ctx, store.Notifications, models.MustEncode(models.Notification{
		Username: username,
		Title:    title,
		Message:  message,
		Type:     kind,
		Read:     false,
	}))
	if err != nil {
		return models.Notification{}, fmt.Errorf("failed to add notification: %w", err)
	}
	n, err := models.Decode[models.Notification](rec)
	if err != nil {
		return models.Notification{}, err
	}

	s.fanOut(ctx, n)
	return n, nil
}

func (s *Service) fanOut(ctx context.Context, n models.Notification) {
	if len(s.channels) == 0 {
		return
	}

	d := Delivery{Notification: n, Link: s.serverURL}
	if !d.Broadcast() {
		if u, ok := s.lookupUser(ctx, n.Username); ok {
			d.Email = u.Email
			d.Name = u.Name
		}
	}

	var g errgroup.Group
	for _, c := range s.channels {
		g.Go(func() error {
			if err := c.Deliver(ctx, d); err != nil {
				log.Warn("failed to deliver notification", "channel", c.Name(), "user", n.Username, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) lookupUser(ctx context.Context, username string) (models.User, bool) {
	users, err := s.store.Load(ctx, store.Users)
	if err != nil {
		log.Warn("failed to load users for notification", "error", err)
		return models.User{}, false
	}
	rec, ok := users.Find("username", username)
	if !ok {
		return models.User{}, false
	}
	u, err := models.Decode[models.User](rec)
	return u, err == nil
}

// ForUser returns the user's own and broadcast notifications, newest first.
func (s *Service) ForUser(ctx context.Context, username string) ([]models.Notification, error) {
	t, err := s.store.Load(ctx, store.Notifications)
	if err != nil {
		return nil, err
	}
	rows := t.Where(func(r store.Record) bool {
		return r["username"] == username || r["username"] == models.AllClubs
	})
	out := models.DecodeAll[models.Notification](rows)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedDate != out[j].CreatedDate {
			return out[i].CreatedDate > out[j].CreatedDate
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// UnreadCount returns the number of unread notifications visible to username.
func (s *Service) UnreadCount(ctx context.Context, username string) (int, error) {
	all, err := s.ForUser(ctx, username)
	if err != nil {
		return 0, err
	}
	return lo.CountBy(all, func(n models.Notification) bool { return !n.Read }), nil
}

// MarkRead marks one notification as read. Broadcast notifications share one read flag.
func (s *Service) MarkRead(ctx context.Context, id int, username string) error {
	t, err := s.store.Load(ctx, store.Notifications)
	if err != nil {
		return err
	}
	rec, ok := t.Find("id", strconv.Itoa(id))
	if !ok {
		return store.ErrNotFound
	}
	if owner := rec["username"]; owner != username && owner != models.AllClubs {
		return ErrForbidden
	}
	return s.store.Update(ctx, store.Notifications, strconv.Itoa(id), store.Record{"read": "true"})
}

// MarkAllRead marks every notification visible to username as read.
func (s *Service) MarkAllRead(ctx context.Context, username string) (int, error) {
	changed := 0
	err := s.store.Mutate(ctx, store.Notifications, func(t *store.Table) error {
		for _, r := range t.Rows {
			if r["username"] != username && r["username"] != models.AllClubs {
				continue
			}
			if r.Bool("read") {
				continue
			}
			r["read"] = "true"
			changed++
		}
		return nil
	})
	return changed, err
}

// Recent returns the newest limit notifications of username.
func (s *Service) Recent(ctx context.Context, username string, limit int) ([]models.Notification, error) {
	all, err := s.ForUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Prune deletes read notifications created before cutoff.
func (s *Service) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	limit := cutoff.Format(models.DateTimeLayout)
	err := s.store.Mutate(ctx, store.Notifications, func(t *store.Table) error {
		kept := t.Rows[:0]
		for _, r := range t.Rows {
			if r.Bool("read") && r["created_date"] != "" && r["created_date"] < limit {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		t.Rows = kept
		return nil
	})
	return removed, err
}
