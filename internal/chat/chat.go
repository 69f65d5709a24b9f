// Package chat implements per-club chat rooms.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/samber/lo"
)

// DefaultHistory is the number of messages returned when no limit is given.
const DefaultHistory = 50

// MaxMessageLength caps a single message, in characters.
const MaxMessageLength = 1000

var (
	ErrForbidden    = errors.New("not allowed in this chat room")
	ErrEmptyMessage = errors.New("message is empty")
)

// Service reads and writes chat_logs.
type Service struct {
	store *store.Store
	loc   *time.Location
	now   func() time.Time
}

// New creates a chat service.
func New(s *store.Store, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{store: s, loc: loc, now: time.Now}
}

// Send posts a message to club.
func (s *Service) Send(ctx context.Context, actor *models.Actor, club, message string) (models.ChatMessage, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return models.ChatMessage{}, ErrEmptyMessage
	}
	if !actor.CanSee(club) {
		return models.ChatMessage{}, ErrForbidden
	}
	if r := []rune(message); len(r) > MaxMessageLength {
		message = string(r[:MaxMessageLength])
	}

	rec, err := s.store.Add(ctx, store.ChatLogs, models.MustEncode(models.ChatMessage{
		Username:  actor.Username,
		Club:      club,
		Message:   message,
		Timestamp: s.now().In(s.loc).Format(models.DateTimeLayout),
	}))
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("failed to send message: %w", err)
	}
	return models.Decode[models.ChatMessage](rec)
}

// History returns the last limit non-deleted messages of club in chronological order.
func (s *Service) History(ctx context.Context, actor *models.Actor, club string, limit int) ([]models.ChatMessage, error) {
	if !actor.CanSee(club) {
		return nil, ErrForbidden
	}
	if limit <= 0 {
		limit = DefaultHistory
	}
	t, err := s.store.Load(ctx, store.ChatLogs)
	if err != nil {
		return nil, err
	}
	msgs := lo.Filter(models.DecodeAll[models.ChatMessage](t.Rows), func(m models.ChatMessage, _ int) bool {
		return m.Club == club && !m.Deleted
	})
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp < msgs[j].Timestamp })
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// Delete soft-deletes a message. Only its author or a teacher may delete it.
func (s *Service) Delete(ctx context.Context, actor *models.Actor, id int) error {
	t, err := s.store.Load(ctx, store.ChatLogs)
	if err != nil {
		return err
	}
	rec, ok := t.Find("id", strconv.Itoa(id))
	if !ok {
		return store.ErrNotFound
	}
	if rec["username"] != actor.Username && !actor.IsTeacher() {
		return ErrForbidden
	}
	return s.store.Update(ctx, store.ChatLogs, strconv.Itoa(id), store.Record{"deleted": "true"})
}

// Rooms returns the chat rooms available to actor: "all" followed by their clubs.
func Rooms(actor *models.Actor) []string {
	return lo.Uniq(append([]string{models.AllClubs}, actor.ClubNames()...))
}
