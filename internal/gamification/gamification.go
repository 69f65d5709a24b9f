// Package gamification derives points, levels and badges from attendance.
package gamification

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/polaris-class/clubhouse/internal/attendance"
	"github.com/polaris-class/clubhouse/internal/cache"
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/polaris-class/clubhouse/internal/notification"
	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/samber/lo"
)

// Point bonuses.
const (
	StreakBonus       = 50
	PerfectMonthBonus = 200

	streakBadgeDays      = 7
	topLearnerRate       = 90
	topLearnerMinRecords = 10
	pointsPerLevel       = 100
	maxLevel             = 20
	defaultLeaderboard   = 10
)

// AwardedBy is written to badges awarded automatically.
const AwardedBy = "System"

// BadgeDef describes an automatically awarded badge.
type BadgeDef struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
}

var (
	FirstAttendance = BadgeDef{Key: "first_attendance", Name: "첫 걸음", Icon: "🎯", Description: "첫 출석 완료"}
	WeekChampion    = BadgeDef{Key: "week_champion", Name: "일주일 챔피언", Icon: "🏆", Description: "7일 연속 출석"}
	PerfectMonth    = BadgeDef{Key: "perfect_month", Name: "완벽한 한 달", Icon: "🌟", Description: "한 달 완벽 출석"}
	TimeMaster      = BadgeDef{Key: "time_master", Name: "타임 마스터", Icon: "⏰", Description: "한 달간 지각 없음"}
	TopLearner      = BadgeDef{Key: "top_learner", Name: "우수 학습자", Icon: "📚", Description: "출석률 90% 달성"}
	QuizMaster      = BadgeDef{Key: "quiz_master", Name: "퀴즈 마스터", Icon: "🏆", Description: "만점 달성"}
)

// Badges lists every badge definition.
var Badges = []BadgeDef{FirstAttendance, WeekChampion, PerfectMonth, TimeMaster, TopLearner, QuizMaster}

// Notifier announces awarded badges.
type Notifier interface {
	Add(ctx context.Context, title, kind, username, message string) (models.Notification, error)
}

// Service computes points and awards badges.
type Service struct {
	store    *store.Store
	cache    *cache.EngineCache
	notifier Notifier
	loc      *time.Location
	now      func() time.Time
}

// New creates a gamification service. c and n may be nil.
func New(s *store.Store, c *cache.EngineCache, n Notifier, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{store: s, cache: c, notifier: n, loc: loc, now: time.Now}
}

func (s *Service) currentMonth() string {
	return s.now().In(s.loc).Format("2006-01")
}

func (s *Service) previousMonth() string {
	n := s.now().In(s.loc)
	first := time.Date(n.Year(), n.Month(), 1, 0, 0, 0, 0, s.loc)
	return first.AddDate(0, -1, 0).Format("2006-01")
}

func (s *Service) attendance(ctx context.Context) ([]models.AttendanceRecord, error) {
	t, err := s.store.Load(ctx, store.Attendance)
	if err != nil {
		return nil, err
	}
	return models.DecodeAll[models.AttendanceRecord](t.Rows), nil
}

// monthPerfect reports whether month has records and all of them are present.
func monthPerfect(records []models.AttendanceRecord, month string) bool {
	inMonth := attendance.InMonth(records, month)
	return len(inMonth) > 0 && attendance.Rate(inMonth) == 100
}

// monthPunctual reports whether month has records and none of them is late.
func monthPunctual(records []models.AttendanceRecord, month string) bool {
	inMonth := attendance.InMonth(records, month)
	return len(inMonth) > 0 && !lo.SomeBy(inMonth, func(r models.AttendanceRecord) bool {
		return r.Status == models.StatusLate
	})
}

// pointsOf computes the points of one user's records relative to month.
func pointsOf(records []models.AttendanceRecord, month string) int {
	total := lo.SumBy(records, func(r models.AttendanceRecord) int { return r.Status.Points() })
	if attendance.Streak(records) >= streakBadgeDays {
		total += StreakBonus
	}
	if monthPerfect(records, month) {
		total += PerfectMonthBonus
	}
	return total
}

// Points returns the total points of username.
func (s *Service) Points(ctx context.Context, username string) (int, error) {
	var c *cache.PrefixedCache[int]
	if s.cache != nil {
		c = s.cache.PointsCache
	}
	return cache.GetOrLoad(ctx, s.cache, c, username, func() (int, error) {
		all, err := s.attendance(ctx)
		if err != nil {
			return 0, err
		}
		mine := lo.Filter(all, func(r models.AttendanceRecord, _ int) bool { return r.Username == username })
		return pointsOf(mine, s.currentMonth()), nil
	})
}

// Level returns the level reached with points, from 1 to 20.
func Level(points int) int {
	return min(points/pointsPerLevel+1, maxLevel)
}

// Progress is the way to the next level.
type Progress struct {
	Points   int     `json:"points"`
	Current  int     `json:"current"`
	Next     int     `json:"next"`
	Fraction float64 `json:"fraction"`
}

// ProgressFor returns the progress from the current level threshold to the next.
func ProgressFor(points int) Progress {
	current := points / pointsPerLevel * pointsPerLevel
	return Progress{
		Points:   points,
		Current:  current,
		Next:     current + pointsPerLevel,
		Fraction: float64(points-current) / pointsPerLevel,
	}
}

// Profile is the gamification state of one user.
type Profile struct {
	Username string         `json:"username"`
	Points   int            `json:"points"`
	Level    int            `json:"level"`
	Progress Progress       `json:"progress"`
	Streak   int            `json:"streak"`
	Badges   []models.Badge `json:"badges"`
}

// Profile returns points, level, streak and badges of username.
func (s *Service) Profile(ctx context.Context, username string) (Profile, error) {
	points, err := s.Points(ctx, username)
	if err != nil {
		return Profile{}, err
	}
	all, err := s.attendance(ctx)
	if err != nil {
		return Profile{}, err
	}
	badges, err := s.BadgesOf(ctx, username)
	if err != nil {
		return Profile{}, err
	}
	mine := lo.Filter(all, func(r models.AttendanceRecord, _ int) bool { return r.Username == username })
	return Profile{
		Username: username,
		Points:   points,
		Level:    Level(points),
		Progress: ProgressFor(points),
		Streak:   attendance.Streak(mine),
		Badges:   badges,
	}, nil
}

// BadgesOf returns the badges of username, newest first.
func (s *Service) BadgesOf(ctx context.Context, username string) ([]models.Badge, error) {
	t, err := s.store.Load(ctx, store.Badges)
	if err != nil {
		return nil, err
	}
	out := models.DecodeAll[models.Badge](t.Where(func(r store.Record) bool { return r["username"] == username }))
	sort.SliceStable(out, func(i, j int) bool { return out[i].AwardedDate > out[j].AwardedDate })
	return out, nil
}

// earned returns the attendance badges a user's records qualify for.
func (s *Service) earned(records []models.AttendanceRecord) []BadgeDef {
	var out []BadgeDef
	if len(records) > 0 {
		out = append(out, FirstAttendance)
	}
	if attendance.Streak(records) >= streakBadgeDays {
		out = append(out, WeekChampion)
	}
	if monthPerfect(records, s.currentMonth()) {
		out = append(out, PerfectMonth)
	}
	if monthPunctual(records, s.previousMonth()) {
		out = append(out, TimeMaster)
	}
	if len(records) >= topLearnerMinRecords && attendance.Rate(records) >= topLearnerRate {
		out = append(out, TopLearner)
	}
	return out
}

// CheckAndAward awards every attendance badge username qualifies for and does
// not hold yet. It returns the newly awarded badges.
func (s *Service) CheckAndAward(ctx context.Context, username string) ([]models.Badge, error) {
	all, err := s.attendance(ctx)
	if err != nil {
		return nil, err
	}
	mine := lo.Filter(all, func(r models.AttendanceRecord, _ int) bool { return r.Username == username })
	defs := s.earned(mine)
	if len(defs) == 0 {
		return nil, nil
	}

	return s.award(ctx, username, lo.Map(defs, func(d BadgeDef, _ int) models.Badge {
		return s.newBadge(username, d.Name, d.Icon, d.Description)
	}), func(held models.Badge, b models.Badge) bool {
		return held.BadgeName == b.BadgeName
	})
}

// AwardQuizMaster awards the quiz master badge for a perfect score on quizTitle.
// A user receives it at most once per quiz title.
func (s *Service) AwardQuizMaster(ctx context.Context, username, quizTitle string) (*models.Badge, error) {
	b := s.newBadge(username, QuizMaster.Name, QuizMaster.Icon, fmt.Sprintf("%s %s", quizTitle, QuizMaster.Description))
	awarded, err := s.award(ctx, username, []models.Badge{b}, sameBadge)
	if err != nil || len(awarded) == 0 {
		return nil, err
	}
	return &awarded[0], nil
}

// MonthlyRewards awards perfect-month and time-master badges for the previous
// month. Each month is recognised once per user.
func (s *Service) MonthlyRewards(ctx context.Context) ([]models.Badge, error) {
	month := s.previousMonth()
	all, err := s.attendance(ctx)
	if err != nil {
		return nil, err
	}

	var awarded []models.Badge
	for username, records := range lo.GroupBy(all, func(r models.AttendanceRecord) string { return r.Username }) {
		var candidates []models.Badge
		if monthPerfect(records, month) {
			candidates = append(candidates, s.newBadge(username, PerfectMonth.Name, PerfectMonth.Icon, month+" "+PerfectMonth.Description))
		}
		if monthPunctual(records, month) {
			candidates = append(candidates, s.newBadge(username, TimeMaster.Name, TimeMaster.Icon, month+" "+TimeMaster.Description))
		}
		if len(candidates) == 0 {
			continue
		}
		got, err := s.award(ctx, username, candidates, sameBadge)
		if err != nil {
			return awarded, err
		}
		awarded = append(awarded, got...)
	}
	log.Info("awarded monthly rewards", "month", month, "badges", len(awarded))
	return awarded, nil
}

func sameBadge(held models.Badge, b models.Badge) bool {
	return held.BadgeName == b.BadgeName && held.Description == b.Description
}

func (s *Service) newBadge(username, name, icon, description string) models.Badge {
	return models.Badge{
		Username:    username,
		BadgeName:   name,
		BadgeIcon:   icon,
		Description: description,
		AwardedDate: s.now().In(s.loc).Format(models.DateTimeLayout),
		AwardedBy:   AwardedBy,
	}
}

// award appends the candidates username does not hold yet, judged by same,
// in one locked read-modify-write of the badges table.
func (s *Service) award(ctx context.Context, username string, candidates []models.Badge, same func(held, b models.Badge) bool) ([]models.Badge, error) {
	var awarded []models.Badge
	err := s.store.Mutate(ctx, store.Badges, func(t *store.Table) error {
		awarded = nil
		held := models.DecodeAll[models.Badge](t.Where(func(r store.Record) bool { return r["username"] == username }))
		for _, b := range candidates {
			if lo.ContainsBy(held, func(h models.Badge) bool { return same(h, b) }) {
				continue
			}
			t.Rows = append(t.Rows, models.MustEncode(b))
			held = append(held, b)
			awarded = append(awarded, b)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to award badges: %w", err)
	}

	for _, b := range awarded {
		log.Info("awarded badge", "user", username, "badge", b.BadgeName)
		if s.notifier == nil {
			continue
		}
		title := fmt.Sprintf("%s 새 뱃지: %s", b.BadgeIcon, b.BadgeName)
		if _, err := s.notifier.Add(ctx, title, notification.TypeBadge, username, b.Description); err != nil {
			log.Warn("failed to announce badge", "user", username, "error", err)
		}
	}
	return awarded, nil
}

// Leaderboard ranks every user by points. limit defaults to 10.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboard
	}
	var c *cache.PrefixedCache[[]models.LeaderboardEntry]
	if s.cache != nil {
		c = s.cache.LeaderboardCache
	}
	return cache.GetOrLoad(ctx, s.cache, c, "top-"+strconv.Itoa(limit), func() ([]models.LeaderboardEntry, error) {
		return s.buildLeaderboard(ctx, limit)
	})
}

func (s *Service) buildLeaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	users, err := s.store.Load(ctx, store.Users)
	if err != nil {
		return nil, err
	}
	all, err := s.attendance(ctx)
	if err != nil {
		return nil, err
	}
	byUser := lo.GroupBy(all, func(r models.AttendanceRecord) string { return r.Username })
	month := s.currentMonth()

	var order []string
	entries := map[string]*models.LeaderboardEntry{}
	clubs := map[string][]string{}
	for _, u := range models.DecodeAll[models.User](users.Rows) {
		if u.Username == "" {
			continue
		}
		if u.ClubName != "" && !lo.Contains(clubs[u.Username], u.ClubName) {
			clubs[u.Username] = append(clubs[u.Username], u.ClubName)
		}
		if _, ok := entries[u.Username]; ok {
			continue
		}
		points := pointsOf(byUser[u.Username], month)
		entries[u.Username] = &models.LeaderboardEntry{
			Username: u.Username,
			Name:     u.Name,
			Points:   points,
			Level:    Level(points),
		}
		order = append(order, u.Username)
	}

	out := make([]models.LeaderboardEntry, 0, len(order))
	for _, username := range order {
		e := entries[username]
		e.Club = strings.Join(clubs[username], ", ")
		out = append(out, *e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Points > out[j].Points })
	if len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}
