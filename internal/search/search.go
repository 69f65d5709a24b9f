// Package search runs cross-table text searches.
package search

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/polaris-class/clubhouse/internal/database"
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// Result types.
const (
	TypePosts       = "posts"
	TypeChats       = "chats"
	TypeAssignments = "assignments"
	TypeSchedules   = "schedules"
	TypeVotes       = "votes"
	TypeUsers       = "users"
)

// Types lists every searchable type.
var Types = []string{TypePosts, TypeChats, TypeAssignments, TypeSchedules, TypeVotes, TypeUsers}

// Date ranges.
const (
	RangeToday   = "today"
	RangeWeek    = "week"
	RangeMonth   = "month"
	RangeQuarter = "quarter"
	RangeAll     = "all"
)

const (
	contentLimit  = 200
	recentKeep    = 10
	suggestLimit  = 5
	minQueryRunes = 1
)

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("search query is empty")

// Query is a search request.
type Query struct {
	Text  string   `form:"q" json:"q"`
	Types []string `form:"types" json:"types"`
	Club  string   `form:"club" json:"club"`
	Range string   `form:"range" json:"range"`
}

// Result is one hit.
type Result struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	Author      string `json:"author"`
	Club        string `json:"club"`
	CreatedDate string `json:"createdDate"`
	ExtraInfo   string `json:"extraInfo,omitempty"`
}

// Results groups hits by type.
type Results struct {
	Query   string              `json:"query"`
	Total   int                 `json:"total"`
	ByType  map[string][]Result `json:"byType"`
	Elapsed time.Duration       `json:"elapsed"`
}

// Service searches the record store.
type Service struct {
	store  *store.Store
	recent database.SearchDB
	loc    *time.Location
	now    func() time.Time
}

// New creates a search service. recent may be nil to disable search history.
func New(s *store.Store, recent database.SearchDB, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{store: s, recent: recent, loc: loc, now: time.Now}
}

// RangeStart returns the earliest created_date included by a date range, or the
// zero time for "all".
func RangeStart(r string, now time.Time) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch r {
	case RangeToday:
		return midnight
	case RangeWeek:
		return now.AddDate(0, 0, -7)
	case RangeMonth:
		return midnight.AddDate(0, 0, 1-now.Day())
	case RangeQuarter:
		return now.AddDate(0, 0, -90)
	default:
		return time.Time{}
	}
}

// Truncate shortens text to 200 characters followed by "...".
func Truncate(text string) string {
	r := []rune(text)
	if len(r) <= contentLimit {
		return text
	}
	return string(r[:contentLimit]) + "..."
}

// Highlight HTML-escapes text and wraps case-insensitive matches of query in <mark>.
func Highlight(text, query string) string {
	escaped := html.EscapeString(text)
	query = strings.TrimSpace(query)
	if query == "" {
		return escaped
	}
	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(html.EscapeString(query)))
	if err != nil {
		return escaped
	}
	return re.ReplaceAllString(escaped, "<mark>$0</mark>")
}

type matcher struct {
	actor *models.Actor
	query string
	club  string
	start string
}

func (m matcher) contains(fields ...string) bool {
	return lo.SomeBy(fields, func(f string) bool { return strings.Contains(strings.ToLower(f), m.query) })
}

// visible applies the club filter and the non-teacher club restriction. Content
// addressed to "all" is visible to everyone when allowAll is set.
func (m matcher) visible(club string, allowAll bool) bool {
	if m.club != "" && m.club != models.AllClubs && club != m.club {
		return false
	}
	if m.actor.IsTeacher() {
		return true
	}
	return (allowAll && club == models.AllClubs) || m.actor.InClub(club)
}

func (m matcher) after(date string) bool {
	return m.start == "" || date >= m.start
}

// Search runs q for actor. The per-type searches run concurrently.
func (s *Service) Search(ctx context.Context, actor *models.Actor, q Query) (Results, error) {
	text := strings.TrimSpace(q.Text)
	if len([]rune(text)) < minQueryRunes {
		return Results{}, ErrEmptyQuery
	}
	began := time.Now()

	m := matcher{actor: actor, query: strings.ToLower(text), club: q.Club}
	if start := RangeStart(q.Range, s.now().In(s.loc)); !start.IsZero() {
		m.start = start.Format(models.DateTimeLayout)
	}

	types := Types
	if len(q.Types) > 0 {
		types = lo.Filter(Types, func(t string, _ int) bool { return lo.Contains(q.Types, t) })
	}

	searchers := map[string]func(context.Context, matcher) ([]Result, error){
		TypePosts:       s.searchPosts,
		TypeChats:       s.searchChats,
		TypeAssignments: s.searchAssignments,
		TypeSchedules:   s.searchSchedules,
		TypeVotes:       s.searchVotes,
		TypeUsers:       s.searchUsers,
	}

	found := make([][]Result, len(types))
	g, gctx := errgroup.WithContext(ctx)
	for i, typ := range types {
		g.Go(func() error {
			rs, err := searchers[typ](gctx, m)
			if err != nil {
				return fmt.Errorf("failed to search %s: %w", typ, err)
			}
			found[i] = rs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Results{}, err
	}

	out := Results{Query: text, ByType: make(map[string][]Result, len(types))}
	for i, typ := range types {
		out.ByType[typ] = found[i]
		out.Total += len(found[i])
	}
	out.Elapsed = time.Since(began)

	s.remember(ctx, actor.Username, text, types)
	return out, nil
}

func (s *Service) remember(ctx context.Context, username, text string, types []string) {
	if s.recent == nil || username == "" {
		return
	}
	err := s.recent.AddRecentSearch(ctx, database.RecentSearch{
		Username: username,
		Query:    text,
		Types:    strings.Join(types, ","),
	}, recentKeep)
	if err != nil {
		log.Warn("failed to store recent search", "user", username, "error", err)
	}
}

// Recent returns the user's recent queries, newest first.
func (s *Service) Recent(ctx context.Context, username string) ([]string, error) {
	if s.recent == nil {
		return nil, nil
	}
	rs, err := s.recent.GetRecentSearches(ctx, username, recentKeep)
	if err != nil {
		return nil, err
	}
	return lo.Map(rs, func(r database.RecentSearch, _ int) string { return r.Query }), nil
}

// ClearRecent forgets the user's search history.
func (s *Service) ClearRecent(ctx context.Context, username string) error {
	if s.recent == nil {
		return nil
	}
	return s.recent.ClearRecentSearches(ctx, username)
}

func newestFirst(rs []Result) []Result {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].CreatedDate > rs[j].CreatedDate })
	return rs
}

func (s *Service) load(ctx context.Context, table string) ([]store.Record, error) {
	t, err := s.store.Load(ctx, table)
	if err != nil {
		return nil, err
	}
	return t.Rows, nil
}

func (s *Service) searchPosts(ctx context.Context, m matcher) ([]Result, error) {
	rows, err := s.load(ctx, store.Posts)
	if err != nil {
		return nil, err
	}
	var out []Result
	for _, p := range models.DecodeAll[models.Post](rows) {
		if !m.visible(p.Club, true) || !m.after(p.CreatedDate) || !m.contains(p.Title, p.Content, p.Author, p.Tags) {
			continue
		}
		out = append(out, Result{
			Type:        TypePosts,
			ID:          fmt.Sprint(p.ID),
			Title:       p.Title,
			Content:     Truncate(p.Content),
			Author:      p.Author,
			Club:        p.Club,
			CreatedDate: p.CreatedDate,
			ExtraInfo:   fmt.Sprintf("❤️ %d 💬 %d", p.Likes, p.Comments),
		})
	}
	return newestFirst(out), nil
}

func (s *Service) searchChats(ctx context.Context, m matcher) ([]Result, error) {
	rows, err := s.load(ctx, store.ChatLogs)
	if err != nil {
		return nil, err
	}
	var out []Result
	for _, c := range models.DecodeAll[models.ChatMessage](rows) {
		if c.Deleted || !m.visible(c.Club, true) || !m.after(c.Timestamp) || !m.contains(c.Message, c.Username) {
			continue
		}
		out = append(out, Result{
			Type:        TypeChats,
			ID:          fmt.Sprint(c.ID),
			Title:       fmt.Sprintf("💬 %s의 메시지", c.Username),
			Content:     Truncate(c.Message),
			Author:      c.Username,
			Club:        c.Club,
			CreatedDate: c.Timestamp,
			ExtraInfo:   "채팅방: " + c.Club,
		})
	}
	return newestFirst(out), nil
}

func (s *Service) searchAssignments(ctx context.Context, m matcher) ([]Result, error) {
	rows, err := s.load(ctx, store.Assignments)
	if err != nil {
		return nil, err
	}
	var out []Result
	for _, a := range models.DecodeAll[models.Assignment](rows) {
		if !m.visible(a.Club, true) || !m.after(a.CreatedDate) || !m.contains(a.Title, a.Description, a.Creator) {
			continue
		}
		out = append(out, Result{
			Type:        TypeAssignments,
			ID:          fmt.Sprint(a.ID),
			Title:       a.Title,
			Content:     Truncate(a.Description),
			Author:      a.Creator,
			Club:        a.Club,
			CreatedDate: a.CreatedDate,
			ExtraInfo:   fmt.Sprintf("마감일: %s | 상태: %s", dateOnly(a.DueDate), a.Status),
		})
	}
	return newestFirst(out), nil
}

func (s *Service) searchSchedules(ctx context.Context, m matcher) ([]Result, error) {
	rows, err := s.load(ctx, store.Schedule)
	if err != nil {
		return nil, err
	}
	var out []Result
	for _, it := range models.DecodeAll[models.ScheduleItem](rows) {
		if !m.visible(it.Club, true) || !m.after(it.CreatedDate) || !m.contains(it.Title, it.Description, it.Location, it.Creator) {
			continue
		}
		out = append(out, Result{
			Type:        TypeSchedules,
			ID:          fmt.Sprint(it.ID),
			Title:       it.Title,
			Content:     Truncate(it.Description),
			Author:      it.Creator,
			Club:        it.Club,
			CreatedDate: it.CreatedDate,
			ExtraInfo:   fmt.Sprintf("📅 %s ⏰ %s 📍 %s", it.Date, it.Time, it.Location),
		})
	}
	return newestFirst(out), nil
}

func (s *Service) searchVotes(ctx context.Context, m matcher) ([]Result, error) {
	rows, err := s.load(ctx, store.Votes)
	if err != nil {
		return nil, err
	}
	today := s.now().In(s.loc).Format(models.DateLayout)
	var out []Result
	for _, v := range models.DecodeAll[models.Vote](rows) {
		if !m.visible(v.Club, true) || !m.after(v.CreatedDate) || !m.contains(v.Title, v.Description, v.Creator) {
			continue
		}
		state := "진행중"
		if v.EndDate != "" && dateOnly(v.EndDate) < today {
			state = "마감"
		}
		out = append(out, Result{
			Type:        TypeVotes,
			ID:          fmt.Sprint(v.ID),
			Title:       v.Title,
			Content:     Truncate(v.Description),
			Author:      v.Creator,
			Club:        v.Club,
			CreatedDate: v.CreatedDate,
			ExtraInfo:   fmt.Sprintf("마감일: %s | 상태: %s", dateOnly(v.EndDate), state),
		})
	}
	return newestFirst(out), nil
}

func (s *Service) searchUsers(ctx context.Context, m matcher) ([]Result, error) {
	rows, err := s.load(ctx, store.Users)
	if err != nil {
		return nil, err
	}
	var out []Result
	for _, u := range models.DecodeAll[models.User](rows) {
		if !m.visible(u.ClubName, false) || !m.contains(u.Name, u.Username, string(u.Role)) {
			continue
		}
		out = append(out, Result{
			Type:        TypeUsers,
			ID:          u.Username,
			Title:       "👤 " + u.Name,
			Content:     fmt.Sprintf("사용자명: %s | 역할: %s", u.Username, u.Role),
			Author:      u.Username,
			Club:        u.ClubName,
			CreatedDate: u.CreatedDate,
			ExtraInfo:   fmt.Sprintf("동아리: %s | 역할: %s", u.ClubName, u.ClubRole),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func dateOnly(v string) string {
	if len(v) > len(models.DateLayout) {
		return v[:len(models.DateLayout)]
	}
	return v
}

// Suggestions are quick links shown before a query is typed.
type Suggestions struct {
	Recent      []string `json:"recent"`
	Posts       []Result `json:"posts"`
	Assignments []Result `json:"assignments"`
	Schedules   []Result `json:"schedules"`
}

// Suggest returns the actor's recent queries, the newest posts, open assignments
// that are not past due, and upcoming schedule items.
func (s *Service) Suggest(ctx context.Context, actor *models.Actor) (Suggestions, error) {
	m := matcher{actor: actor}
	today := s.now().In(s.loc).Format(models.DateLayout)
	var out Suggestions

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rs, err := s.Recent(gctx, actor.Username)
		out.Recent = rs
		return err
	})
	g.Go(func() error {
		rs, err := s.searchPosts(gctx, m)
		out.Posts = lo.Slice(rs, 0, suggestLimit)
		return err
	})
	g.Go(func() error {
		rs, err := s.load(gctx, store.Assignments)
		if err != nil {
			return err
		}
		open := lo.Filter(models.DecodeAll[models.Assignment](rs), func(a models.Assignment, _ int) bool {
			return m.visible(a.Club, true) && a.Status != models.AssignmentClosed && dateOnly(a.DueDate) >= today
		})
		sort.SliceStable(open, func(i, j int) bool { return open[i].DueDate < open[j].DueDate })
		out.Assignments = lo.Map(lo.Slice(open, 0, suggestLimit), func(a models.Assignment, _ int) Result {
			return Result{Type: TypeAssignments, ID: fmt.Sprint(a.ID), Title: a.Title, Club: a.Club, ExtraInfo: "마감일: " + dateOnly(a.DueDate)}
		})
		return nil
	})
	g.Go(func() error {
		rs, err := s.load(gctx, store.Schedule)
		if err != nil {
			return err
		}
		upcoming := lo.Filter(models.DecodeAll[models.ScheduleItem](rs), func(it models.ScheduleItem, _ int) bool {
			return m.visible(it.Club, true) && dateOnly(it.Date) >= today
		})
		sort.SliceStable(upcoming, func(i, j int) bool { return upcoming[i].Date < upcoming[j].Date })
		out.Schedules = lo.Map(lo.Slice(upcoming, 0, suggestLimit), func(it models.ScheduleItem, _ int) Result {
			return Result{Type: TypeSchedules, ID: fmt.Sprint(it.ID), Title: it.Title, Club: it.Club, ExtraInfo: fmt.Sprintf("📅 %s ⏰ %s", it.Date, it.Time)}
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return Suggestions{}, err
	}
	return out, nil
}
