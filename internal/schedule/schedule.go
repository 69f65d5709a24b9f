// Package schedule manages club meetings and events.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/polaris-class/clubhouse/internal/attendance"
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/polaris-class/clubhouse/internal/notification"
	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/samber/lo"
)

const timeLayout = "15:04"

var (
	ErrForbidden    = errors.New("not allowed to manage this schedule")
	ErrInvalidInput = errors.New("invalid schedule item")
)

// Notifier announces new schedule items.
type Notifier interface {
	Add(ctx context.Context, title, kind, username, message string) (models.Notification, error)
}

// AttendanceStarter records attendance for a schedule item.
type AttendanceStarter interface {
	StartFromSchedule(ctx context.Context, recorder *models.Actor, item models.ScheduleItem) (attendance.RecordResult, error)
}

// Service manages schedule items.
type Service struct {
	store      *store.Store
	notifier   Notifier
	attendance AttendanceStarter
	loc        *time.Location
	now        func() time.Time
}

// New creates a schedule service.
func New(s *store.Store, n Notifier, a AttendanceStarter, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{store: s, notifier: n, attendance: a, loc: loc, now: time.Now}
}

// Input is a new schedule item.
type Input struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Club        string `json:"club"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Location    string `json:"location"`
}

func (in *Input) validate(loc *time.Location) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Date = strings.TrimSpace(in.Date)
	in.Time = strings.TrimSpace(in.Time)
	if in.Title == "" || in.Club == "" {
		return fmt.Errorf("%w: title and club are required", ErrInvalidInput)
	}
	if _, ok := models.ParseDate(in.Date, loc); !ok || len(in.Date) != len(models.DateLayout) {
		return fmt.Errorf("%w: date %q", ErrInvalidInput, in.Date)
	}
	if in.Time != "" {
		if _, err := time.Parse(timeLayout, in.Time); err != nil {
			return fmt.Errorf("%w: time %q", ErrInvalidInput, in.Time)
		}
	}
	return nil
}

func canManage(actor *models.Actor, club string) bool {
	if club == models.AllClubs {
		return actor.IsTeacher()
	}
	return actor.Leads(club)
}

// Create stores a schedule item and announces it.
func (s *Service) Create(ctx context.Context, actor *models.Actor, in Input) (models.ScheduleItem, error) {
	if err := in.validate(s.loc); err != nil {
		return models.ScheduleItem{}, err
	}
	if !canManage(actor, in.Club) {
		return models.ScheduleItem{}, ErrForbidden
	}

	rec, err := s.store.Add(ctx, store.Schedule, models.MustEncode(models.ScheduleItem{
		Title:       in.Title,
		Description: strings.TrimSpace(in.Description),
		Club:        in.Club,
		Date:        in.Date,
		Time:        in.Time,
		Location:    strings.TrimSpace(in.Location),
		Creator:     actor.Username,
	}))
	if err != nil {
		return models.ScheduleItem{}, fmt.Errorf("failed to create schedule item: %w", err)
	}
	item, err := models.Decode[models.ScheduleItem](rec)
	if err != nil {
		return models.ScheduleItem{}, err
	}

	if s.notifier != nil {
		msg := fmt.Sprintf("%s %s %s", item.Date, item.Time, item.Location)
		if _, err := s.notifier.Add(ctx, "새 일정: "+item.Title, notification.TypeSchedule, models.AllClubs, strings.TrimSpace(msg)); err != nil {
			log.Warn("failed to announce schedule item", "item", item.ID, "error", err)
		}
	}
	return item, nil
}

// Get returns one schedule item.
func (s *Service) Get(ctx context.Context, id int) (models.ScheduleItem, error) {
	t, err := s.store.Load(ctx, store.Schedule)
	if err != nil {
		return models.ScheduleItem{}, err
	}
	rec, ok := t.Find("id", strconv.Itoa(id))
	if !ok {
		return models.ScheduleItem{}, store.ErrNotFound
	}
	return models.Decode[models.ScheduleItem](rec)
}

// Upcoming returns the items visible to actor dated on or after from, soonest
// first. An empty club selects every visible club; a zero from means today.
func (s *Service) Upcoming(ctx context.Context, actor *models.Actor, club string, from time.Time) ([]models.ScheduleItem, error) {
	if from.IsZero() {
		from = s.now()
	}
	start := from.In(s.loc).Format(models.DateLayout)

	t, err := s.store.Load(ctx, store.Schedule)
	if err != nil {
		return nil, err
	}
	items := lo.Filter(models.DecodeAll[models.ScheduleItem](t.Rows), func(it models.ScheduleItem, _ int) bool {
		if !actor.CanSee(it.Club) {
			return false
		}
		if club != "" && it.Club != club && it.Club != models.AllClubs {
			return false
		}
		return it.Date >= start
	})
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Date != items[j].Date {
			return items[i].Date < items[j].Date
		}
		return items[i].Time < items[j].Time
	})
	return items, nil
}

// Delete removes an item. Its creator, club leaders and teachers may delete it.
func (s *Service) Delete(ctx context.Context, actor *models.Actor, id int) error {
	item, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if item.Creator != actor.Username && !canManage(actor, item.Club) {
		return ErrForbidden
	}
	return s.store.Delete(ctx, store.Schedule, strconv.Itoa(id))
}

// StartAttendance marks every member of the item's club present for the item's date.
func (s *Service) StartAttendance(ctx context.Context, actor *models.Actor, id int) (attendance.RecordResult, error) {
	if s.attendance == nil {
		return attendance.RecordResult{}, errors.New("attendance is not available")
	}
	item, err := s.Get(ctx, id)
	if err != nil {
		return attendance.RecordResult{}, err
	}
	res, err := s.attendance.StartFromSchedule(ctx, actor, item)
	if err != nil {
		return res, fmt.Errorf("failed to start attendance for %q: %w", item.Title, err)
	}
	log.Info("started attendance from schedule", "item", item.ID, "club", item.Club, "added", res.Added, "updated", res.Updated)
	return res, nil
}
