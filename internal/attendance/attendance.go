// Package attendance records club attendance and derives statistics from it.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/polaris-class/clubhouse/internal/cache"
	"github.com/polaris-class/clubhouse/internal/database"
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/samber/lo"
)

var (
	// ErrNotMember is returned when a user checks in to a club they do not belong to.
	ErrNotMember = errors.New("not a member of this club")
	// ErrForbidden is returned when a non-leader records attendance or issues codes.
	ErrForbidden = errors.New("only club leaders can manage attendance")
	// ErrInvalidStatus is returned for unknown attendance statuses.
	ErrInvalidStatus = errors.New("invalid attendance status")
	// ErrInvalidDate is returned for dates not in YYYY-MM-DD form.
	ErrInvalidDate = errors.New("invalid date")
	// ErrInvalidCode is returned when a check-in code is unknown.
	ErrInvalidCode = errors.New("invalid check-in code")
	// ErrCodeExpired is returned when a check-in code is past its expiry.
	ErrCodeExpired = fmt.Errorf("%w: expired", ErrInvalidCode)
)

// Notes written by automatic check-ins.
const (
	SelfCheckInNote = "자가 체크인"
	QRCheckInNote   = "QR 체크인"
)

const (
	defaultCodeValidity = time.Hour
	maxCodeValidity     = 24 * time.Hour
)

// BadgeChecker awards badges after attendance changes.
type BadgeChecker interface {
	CheckAndAward(ctx context.Context, username string) ([]models.Badge, error)
}

// Service records attendance.
type Service struct {
	store  *store.Store
	codes  database.CheckInDB
	badges BadgeChecker
	cache  *cache.EngineCache
	loc    *time.Location
	now    func() time.Time
}

// New creates an attendance service. codes, badges and c may be nil.
func New(s *store.Store, codes database.CheckInDB, badges BadgeChecker, c *cache.EngineCache, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		store:  s,
		codes:  codes,
		badges: badges,
		cache:  c,
		loc:    loc,
		now:    time.Now,
	}
}

// SetBadgeChecker wires the badge checker after construction.
func (s *Service) SetBadgeChecker(b BadgeChecker) {
	s.badges = b
}

// Today returns the current date in the service's time zone.
func (s *Service) Today() time.Time {
	n := s.now().In(s.loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, s.loc)
}

// CheckInResult is the outcome of a single check-in.
type CheckInResult struct {
	Record    models.AttendanceRecord `json:"record"`
	Points    int                     `json:"points"`
	NewBadges []models.Badge          `json:"newBadges,omitempty"`
}

// SelfCheckIn records today's attendance of the actor in club.
func (s *Service) SelfCheckIn(ctx context.Context, actor *models.Actor, club string, status models.Status, note string) (CheckInResult, error) {
	if !actor.IsTeacher() && !actor.InClub(club) {
		return CheckInResult{}, ErrNotMember
	}
	if !status.Valid() {
		return CheckInResult{}, ErrInvalidStatus
	}
	if strings.TrimSpace(note) == "" {
		note = SelfCheckInNote
	}
	return s.checkIn(ctx, actor, club, status, note)
}

func (s *Service) checkIn(ctx context.Context, actor *models.Actor, club string, status models.Status, note string) (CheckInResult, error) {
	rec, err := s.store.Add(ctx, store.Attendance, models.MustEncode(models.AttendanceRecord{
		Username:   actor.Username,
		Club:       club,
		Date:       s.Today().Format(models.DateLayout),
		Status:     status,
		Note:       note,
		RecordedBy: actor.Name,
		Timestamp:  s.now().In(s.loc).Format(models.DateTimeLayout),
	}))
	if err != nil {
		return CheckInResult{}, fmt.Errorf("failed to record attendance: %w", err)
	}
	r, err := models.Decode[models.AttendanceRecord](rec)
	if err != nil {
		return CheckInResult{}, err
	}

	return CheckInResult{
		Record:    r,
		Points:    status.Points(),
		NewBadges: s.checkBadges(ctx, actor.Username),
	}, nil
}

func (s *Service) checkBadges(ctx context.Context, username string) []models.Badge {
	if s.badges == nil {
		return nil
	}
	awarded, err := s.badges.CheckAndAward(ctx, username)
	if err != nil {
		log.Warn("failed to check badges", "user", username, "error", err)
		return nil
	}
	return awarded
}

// Entry is one member's status in a recording batch.
type Entry struct {
	Username string        `json:"username"`
	Status   models.Status `json:"status"`
	Note     string        `json:"note"`
}

// RecordResult counts the rows touched by Record.
type RecordResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
}

// Record stores the statuses of many members of club for date. An existing row
// for (username, club, date) is updated, otherwise a new row is added.
func (s *Service) Record(ctx context.Context, recorder *models.Actor, club, date string, entries []Entry) (RecordResult, error) {
	if !recorder.Leads(club) {
		return RecordResult{}, ErrForbidden
	}
	if _, ok := models.ParseDate(date, s.loc); !ok {
		return RecordResult{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	for _, e := range entries {
		if !e.Status.Valid() {
			return RecordResult{}, fmt.Errorf("%w: %q for %s", ErrInvalidStatus, e.Status, e.Username)
		}
	}
	members, err := s.Members(ctx, club)
	if err != nil {
		return RecordResult{}, err
	}
	for _, e := range entries {
		if !lo.Contains(members, e.Username) {
			return RecordResult{}, fmt.Errorf("%w: %s", ErrNotMember, e.Username)
		}
	}

	res, err := s.upsert(ctx, recorder.Name, club, date, entries)
	if err != nil {
		return res, err
	}

	for _, username := range lo.Uniq(lo.Map(entries, func(e Entry, _ int) string { return e.Username })) {
		s.checkBadges(ctx, username)
	}
	return res, nil
}

// BulkStatus applies one status to every listed member.
func (s *Service) BulkStatus(ctx context.Context, recorder *models.Actor, club, date string, usernames []string, status models.Status, note string) (RecordResult, error) {
	entries := lo.Map(usernames, func(u string, _ int) Entry {
		return Entry{Username: u, Status: status, Note: note}
	})
	return s.Record(ctx, recorder, club, date, entries)
}

func (s *Service) upsert(ctx context.Context, recordedBy, club, date string, entries []Entry) (RecordResult, error) {
	var res RecordResult
	timestamp := s.now().In(s.loc).Format(models.DateTimeLayout)

	err := s.store.Mutate(ctx, store.Attendance, func(t *store.Table) error {
		res = RecordResult{}
		for _, e := range entries {
			fields := store.Record{
				"status":      string(e.Status),
				"note":        e.Note,
				"recorded_by": recordedBy,
				"timestamp":   timestamp,
			}
			existing := t.Where(func(r store.Record) bool {
				return r["username"] == e.Username && r["club"] == club && dateOf(r["date"]) == date
			})
			if len(existing) > 0 {
				for _, r := range existing {
					for k, v := range fields {
						r[k] = v
					}
				}
				res.Updated++
				continue
			}

			row := fields.Clone()
			row["username"] = e.Username
			row["club"] = club
			row["date"] = date
			t.Rows = append(t.Rows, row)
			res.Added++
		}
		return nil
	})
	if err != nil {
		return RecordResult{}, fmt.Errorf("failed to record attendance: %w", err)
	}
	return res, nil
}

// Filter selects attendance records. Empty fields match everything.
type Filter struct {
	Username string        `form:"username"`
	Club     string        `form:"club"`
	Status   models.Status `form:"status"`
	From     string        `form:"from"`
	To       string        `form:"to"`
}

// Match reports whether r passes the filter.
func (f Filter) Match(r models.AttendanceRecord) bool {
	if f.Username != "" && r.Username != f.Username {
		return false
	}
	if f.Club != "" && f.Club != models.AllClubs && r.Club != f.Club {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	d := dateOf(r.Date)
	if f.From != "" && d < f.From {
		return false
	}
	if f.To != "" && d > f.To {
		return false
	}
	return true
}

// All returns every attendance record in file order.
func (s *Service) All(ctx context.Context) ([]models.AttendanceRecord, error) {
	t, err := s.store.Load(ctx, store.Attendance)
	if err != nil {
		return nil, err
	}
	return models.DecodeAll[models.AttendanceRecord](t.Rows), nil
}

// ForUser returns the records of one user in file order.
func (s *Service) ForUser(ctx context.Context, username string) ([]models.AttendanceRecord, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Filter(all, func(r models.AttendanceRecord, _ int) bool { return r.Username == username }), nil
}

// List returns the records visible to actor that pass f, newest first.
// Teachers see everything, others see their own records and those of the clubs they lead.
func (s *Service) List(ctx context.Context, actor *models.Actor, f Filter) ([]models.AttendanceRecord, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	out := lo.Filter(all, func(r models.AttendanceRecord, _ int) bool {
		if !f.Match(r) {
			return false
		}
		return actor.IsTeacher() || r.Username == actor.Username || actor.Leads(r.Club)
	})
	return SortByDateDesc(out), nil
}

// Summary returns the cached attendance summary of a user.
func (s *Service) Summary(ctx context.Context, username string) (models.AttendanceSummary, error) {
	var c *cache.PrefixedCache[models.AttendanceSummary]
	if s.cache != nil {
		c = s.cache.SummaryCache
	}
	return cache.GetOrLoad(ctx, s.cache, c, username, func() (models.AttendanceSummary, error) {
		records, err := s.ForUser(ctx, username)
		if err != nil {
			return models.AttendanceSummary{}, err
		}
		return Summarize(records), nil
	})
}

// Report is the statistics view for leaders.
type Report struct {
	From       string                   `json:"from"`
	To         string                   `json:"to"`
	Summary    models.AttendanceSummary `json:"summary"`
	Weekday    []models.RatePoint       `json:"weekday"`
	Clubs      []models.RatePoint       `json:"clubs"`
	Daily      []models.RatePoint       `json:"daily"`
	Monthly    []models.RatePoint       `json:"monthly"`
	Users      []UserRate               `json:"users"`
	Perfect    []string                 `json:"perfect"`
	Prediction *models.Prediction       `json:"prediction,omitempty"`
}

// Report builds attendance statistics for club over a preset range. Leaders
// without a teacher role only see clubs they lead.
func (s *Service) Report(ctx context.Context, actor *models.Actor, club, preset string) (Report, error) {
	if !actor.IsLeader() {
		return Report{}, ErrForbidden
	}
	if club != "" && club != models.AllClubs && !actor.Leads(club) {
		return Report{}, ErrForbidden
	}

	start, end := PresetRange(preset, s.Today())
	f := Filter{Club: club, From: start.Format(models.DateLayout), To: end.Format(models.DateLayout)}

	all, err := s.All(ctx)
	if err != nil {
		return Report{}, err
	}
	records := lo.Filter(all, func(r models.AttendanceRecord, _ int) bool {
		return f.Match(r) && actor.Leads(r.Club)
	})

	return Report{
		From:       f.From,
		To:         f.To,
		Summary:    Summarize(records),
		Weekday:    WeekdayPattern(records),
		Clubs:      ClubComparison(records),
		Daily:      DailyTrend(records),
		Monthly:    MonthlyTrend(records),
		Users:      UserRates(records),
		Perfect:    MonthlyPerfect(records, s.Today().Format("2006-01")),
		Prediction: Predict(records),
	}, nil
}

// Absentees are the absent and late records of one day.
type Absentees struct {
	Date   string                    `json:"date"`
	Absent []models.AttendanceRecord `json:"absent"`
	Late   []models.AttendanceRecord `json:"late"`
}

// Empty reports whether nobody was absent or late.
func (a Absentees) Empty() bool {
	return len(a.Absent) == 0 && len(a.Late) == 0
}

// Absentees returns the absent and late records of date, optionally restricted to club.
func (s *Service) Absentees(ctx context.Context, date, club string) (Absentees, error) {
	all, err := s.All(ctx)
	if err != nil {
		return Absentees{}, err
	}
	f := Filter{Club: club, From: date, To: date}
	out := Absentees{Date: date}
	for _, r := range all {
		if !f.Match(r) {
			continue
		}
		switch r.Status {
		case models.StatusAbsent:
			out.Absent = append(out.Absent, r)
		case models.StatusLate:
			out.Late = append(out.Late, r)
		}
	}
	return out, nil
}

// ScheduleNote is the note written by schedule-driven attendance.
func ScheduleNote(title string) string {
	return fmt.Sprintf("일정 '%s' 참석", title)
}

// Members returns the usernames of club members, sorted. Club "all" yields every user.
func (s *Service) Members(ctx context.Context, club string) ([]string, error) {
	users, err := s.store.Load(ctx, store.Users)
	if err != nil {
		return nil, err
	}
	rows := users.Rows
	if club != models.AllClubs {
		rows = users.Where(func(r store.Record) bool { return r["club_name"] == club })
	}
	names := lo.Uniq(lo.Map(rows, func(r store.Record, _ int) string { return r["username"] }))
	names = lo.Compact(names)
	sort.Strings(names)
	return names, nil
}

// StartFromSchedule marks every member of the item's club present for the item's date.
func (s *Service) StartFromSchedule(ctx context.Context, recorder *models.Actor, item models.ScheduleItem) (RecordResult, error) {
	if !recorder.Leads(item.Club) {
		return RecordResult{}, ErrForbidden
	}
	date := dateOf(item.Date)
	if _, ok := models.ParseDate(date, s.loc); !ok {
		return RecordResult{}, fmt.Errorf("%w: %q", ErrInvalidDate, item.Date)
	}
	members, err := s.Members(ctx, item.Club)
	if err != nil {
		return RecordResult{}, err
	}

	note := ScheduleNote(item.Title)
	entries := lo.Map(members, func(u string, _ int) Entry {
		return Entry{Username: u, Status: models.StatusPresent, Note: note}
	})
	res, err := s.upsert(ctx, recorder.Name, item.Club, date, entries)
	if err != nil {
		return res, err
	}
	for _, u := range members {
		s.checkBadges(ctx, u)
	}
	return res, nil
}

// IssueCode creates a QR check-in code for today's meeting of club.
// validFor defaults to one hour and is capped at one day.
func (s *Service) IssueCode(ctx context.Context, issuer *models.Actor, club string, validFor time.Duration) (*database.CheckInCode, error) {
	if s.codes == nil {
		return nil, errors.New("check-in codes are not available")
	}
	if !issuer.Leads(club) {
		return nil, ErrForbidden
	}
	if validFor <= 0 {
		validFor = defaultCodeValidity
	}
	validFor = min(validFor, maxCodeValidity)

	code, err := s.codes.CreateCheckInCode(ctx, database.CheckInCode{
		Code:      uuid.NewString(),
		Club:      club,
		Date:      s.Today().Format(models.DateLayout),
		IssuedBy:  issuer.Username,
		ExpiresAt: s.now().Add(validFor),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create check-in code: %w", err)
	}
	log.Info("issued check-in code", "club", club, "issuer", issuer.Username, "expires", code.ExpiresAt)
	return code, nil
}

// RedeemCode checks the actor in as present for the code's club. Redeeming twice
// on the same day updates the existing row.
func (s *Service) RedeemCode(ctx context.Context, actor *models.Actor, code string) (CheckInResult, error) {
	if s.codes == nil {
		return CheckInResult{}, ErrInvalidCode
	}
	c, err := s.codes.GetCheckInCode(ctx, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, database.ErrCodeNotFound) {
			return CheckInResult{}, ErrInvalidCode
		}
		return CheckInResult{}, err
	}
	if !s.now().Before(c.ExpiresAt) {
		return CheckInResult{}, ErrCodeExpired
	}
	if !actor.IsTeacher() && !actor.InClub(c.Club) {
		return CheckInResult{}, ErrNotMember
	}

	date := s.Today().Format(models.DateLayout)
	if _, err := s.upsert(ctx, actor.Name, c.Club, date, []Entry{
		{Username: actor.Username, Status: models.StatusPresent, Note: QRCheckInNote},
	}); err != nil {
		return CheckInResult{}, err
	}
	if err := s.codes.IncrementCheckInRedeemed(ctx, c.Code); err != nil {
		log.Warn("failed to count check-in code redemption", "error", err)
	}

	records, err := s.ForUser(ctx, actor.Username)
	if err != nil {
		return CheckInResult{}, err
	}
	rec, _ := lo.Find(records, func(r models.AttendanceRecord) bool {
		return r.Club == c.Club && dateOf(r.Date) == date
	})
	return CheckInResult{
		Record:    rec,
		Points:    models.StatusPresent.Points(),
		NewBadges: s.checkBadges(ctx, actor.Username),
	}, nil
}
