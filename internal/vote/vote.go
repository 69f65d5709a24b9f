// Package vote implements club polls with one ballot per member.
package vote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/polaris-class/clubhouse/internal/notification"
	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/samber/lo"
)

var (
	ErrAlreadyVoted = errors.New("already voted")
	ErrClosed       = errors.New("vote has ended")
	ErrForbidden    = errors.New("not allowed to vote here")
	ErrInvalidVote  = errors.New("invalid vote")
)

// Notifier announces new votes.
type Notifier interface {
	Add(ctx context.Context, title, kind, username, message string) (models.Notification, error)
}

// Service manages votes and ballots.
type Service struct {
	store    *store.Store
	notifier Notifier
	loc      *time.Location
	now      func() time.Time
}

// New creates a vote service.
func New(s *store.Store, n Notifier, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{store: s, notifier: n, loc: loc, now: time.Now}
}

// Input is a new vote.
type Input struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Club        string   `json:"club"`
	Options     []string `json:"options"`
	EndDate     string   `json:"endDate"`
}

// Create stores a vote. Options are trimmed and deduplicated; at least two are required.
func (s *Service) Create(ctx context.Context, actor *models.Actor, in Input) (models.Vote, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.EndDate = strings.TrimSpace(in.EndDate)
	opts := lo.Uniq(lo.Compact(lo.Map(in.Options, func(o string, _ int) string {
		return strings.TrimSpace(strings.ReplaceAll(o, models.OptionSeparator, " "))
	})))
	if in.Title == "" || in.Club == "" {
		return models.Vote{}, fmt.Errorf("%w: title and club are required", ErrInvalidVote)
	}
	if len(opts) < 2 {
		return models.Vote{}, fmt.Errorf("%w: at least two options are required", ErrInvalidVote)
	}
	if in.EndDate != "" {
		if _, ok := models.ParseDate(in.EndDate, s.loc); !ok {
			return models.Vote{}, fmt.Errorf("%w: end date %q", ErrInvalidVote, in.EndDate)
		}
	}
	if !actor.CanSee(in.Club) || (in.Club == models.AllClubs && !actor.IsTeacher()) {
		return models.Vote{}, ErrForbidden
	}

	rec, err := s.store.Add(ctx, store.Votes, models.MustEncode(models.Vote{
		Title:       in.Title,
		Description: strings.TrimSpace(in.Description),
		Options:     strings.Join(opts, models.OptionSeparator),
		Club:        in.Club,
		Creator:     actor.Username,
		EndDate:     in.EndDate,
	}))
	if err != nil {
		return models.Vote{}, fmt.Errorf("failed to create vote: %w", err)
	}
	v, err := models.Decode[models.Vote](rec)
	if err != nil {
		return models.Vote{}, err
	}

	if s.notifier != nil {
		msg := fmt.Sprintf("%s님이 새 투표를 시작했습니다.", actor.Name)
		if _, err := s.notifier.Add(ctx, "새 투표: "+v.Title, notification.TypeNotice, models.AllClubs, msg); err != nil {
			log.Warn("failed to announce vote", "vote", v.ID, "error", err)
		}
	}
	return v, nil
}

func (s *Service) get(ctx context.Context, id int) (models.Vote, error) {
	t, err := s.store.Load(ctx, store.Votes)
	if err != nil {
		return models.Vote{}, err
	}
	rec, ok := t.Find("id", strconv.Itoa(id))
	if !ok {
		return models.Vote{}, store.ErrNotFound
	}
	return models.Decode[models.Vote](rec)
}

// closed reports whether the vote's end date has passed. The end date itself is
// still open.
func (s *Service) closed(v models.Vote) bool {
	if v.EndDate == "" {
		return false
	}
	end, ok := models.ParseDate(v.EndDate, s.loc)
	if !ok {
		return false
	}
	return !s.now().In(s.loc).Before(end.AddDate(0, 0, 1))
}

// Cast records actor's ballot. Each user votes once per vote.
func (s *Service) Cast(ctx context.Context, actor *models.Actor, id int, option string) (models.Ballot, error) {
	v, err := s.get(ctx, id)
	if err != nil {
		return models.Ballot{}, err
	}
	if !actor.CanSee(v.Club) {
		return models.Ballot{}, ErrForbidden
	}
	if s.closed(v) {
		return models.Ballot{}, ErrClosed
	}
	option = strings.TrimSpace(option)
	if !lo.Contains(v.OptionList(), option) {
		return models.Ballot{}, fmt.Errorf("%w: unknown option %q", ErrInvalidVote, option)
	}

	var ballot store.Record
	err = s.store.Mutate(ctx, store.VoteBallots, func(t *store.Table) error {
		for _, r := range t.Rows {
			if r.Int("vote_id") == id && r["username"] == actor.Username {
				return ErrAlreadyVoted
			}
		}
		ballot = models.MustEncode(models.Ballot{VoteID: id, Username: actor.Username, Option: option})
		t.Rows = append(t.Rows, ballot)
		return nil
	})
	if err != nil {
		return models.Ballot{}, err
	}
	return models.Decode[models.Ballot](ballot)
}

// OptionCount is the number of ballots for one option.
type OptionCount struct {
	Option  string  `json:"option"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Tally is the result of a vote.
type Tally struct {
	Vote    models.Vote   `json:"vote"`
	Options []OptionCount `json:"options"`
	Total   int           `json:"total"`
	Closed  bool          `json:"closed"`
	// MyOption is the option the requesting user voted for, if any.
	MyOption string `json:"myOption,omitempty"`
}

// Winners returns the options with the most ballots.
func (t Tally) Winners() []string {
	if t.Total == 0 {
		return nil
	}
	top := lo.MaxBy(t.Options, func(a, b OptionCount) bool { return a.Count > b.Count }).Count
	return lo.FilterMap(t.Options, func(o OptionCount, _ int) (string, bool) { return o.Option, o.Count == top })
}

// Tally counts the ballots of a vote in option order.
func (s *Service) Tally(ctx context.Context, actor *models.Actor, id int) (Tally, error) {
	v, err := s.get(ctx, id)
	if err != nil {
		return Tally{}, err
	}
	if !actor.CanSee(v.Club) {
		return Tally{}, ErrForbidden
	}
	t, err := s.store.Load(ctx, store.VoteBallots)
	if err != nil {
		return Tally{}, err
	}
	ballots := lo.Filter(models.DecodeAll[models.Ballot](t.Rows), func(b models.Ballot, _ int) bool { return b.VoteID == id })
	counts := lo.CountValuesBy(ballots, func(b models.Ballot) string { return b.Option })

	out := Tally{Vote: v, Total: len(ballots), Closed: s.closed(v)}
	for _, o := range v.OptionList() {
		oc := OptionCount{Option: o, Count: counts[o]}
		if out.Total > 0 {
			oc.Percent = float64(int(float64(oc.Count)/float64(out.Total)*1000+0.5)) / 10
		}
		out.Options = append(out.Options, oc)
	}
	if mine, ok := lo.Find(ballots, func(b models.Ballot) bool { return b.Username == actor.Username }); ok {
		out.MyOption = mine.Option
	}
	return out, nil
}

// List returns the votes visible to actor, open votes first, newest first within each group.
func (s *Service) List(ctx context.Context, actor *models.Actor) ([]Tally, error) {
	t, err := s.store.Load(ctx, store.Votes)
	if err != nil {
		return nil, err
	}
	votes := lo.Filter(models.DecodeAll[models.Vote](t.Rows), func(v models.Vote, _ int) bool { return actor.CanSee(v.Club) })

	out := make([]Tally, 0, len(votes))
	for _, v := range votes {
		tally, err := s.Tally(ctx, actor, v.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, tally)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Closed != out[j].Closed {
			return !out[i].Closed
		}
		return out[i].Vote.CreatedDate > out[j].Vote.CreatedDate
	})
	return out, nil
}

// Delete removes a vote and its ballots. Its creator or a teacher may delete it.
func (s *Service) Delete(ctx context.Context, actor *models.Actor, id int) error {
	v, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if v.Creator != actor.Username && !actor.IsTeacher() {
		return ErrForbidden
	}
	if err := s.store.Delete(ctx, store.Votes, strconv.Itoa(id)); err != nil {
		return err
	}
	return s.store.Mutate(ctx, store.VoteBallots, func(t *store.Table) error {
		t.Rows = lo.Reject(t.Rows, func(r store.Record, _ int) bool { return r.Int("vote_id") == id })
		return nil
	})
}
