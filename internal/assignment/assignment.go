// Package assignment manages club assignments and their submissions.
package assignment

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
	ErrForbidden    = errors.New("not allowed to manage this assignment")
	ErrInvalidInput = errors.New("invalid assignment")
	ErrClosed       = errors.New("assignment is closed")
	ErrPastDue      = errors.New("assignment is past due")
)

// Notifier announces new assignments.
type Notifier interface {
	Add(ctx context.Context, title, kind, username, message string) (models.Notification, error)
}

// Service manages assignments.
type Service struct {
	store    *store.Store
	notifier Notifier
	loc      *time.Location
	now      func() time.Time
}

// New creates an assignment service.
func New(s *store.Store, n Notifier, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{store: s, notifier: n, loc: loc, now: time.Now}
}

// Input is a new assignment.
type Input struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Club        string `json:"club"`
	DueDate     string `json:"dueDate"`
}

// Create stores a new open assignment. Leaders of the club and teachers may create one.
func (s *Service) Create(ctx context.Context, actor *models.Actor, in Input) (models.Assignment, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.DueDate = strings.TrimSpace(in.DueDate)
	if in.Title == "" || in.Club == "" {
		return models.Assignment{}, fmt.Errorf("%w: title and club are required", ErrInvalidInput)
	}
	if _, ok := models.ParseDate(in.DueDate, s.loc); !ok {
		return models.Assignment{}, fmt.Errorf("%w: due date %q", ErrInvalidInput, in.DueDate)
	}
	if !canManage(actor, in.Club) {
		return models.Assignment{}, ErrForbidden
	}

	rec, err := s.store.Add(ctx, store.Assignments, models.MustEncode(models.Assignment{
		Title:       in.Title,
		Description: strings.TrimSpace(in.Description),
		Club:        in.Club,
		Creator:     actor.Username,
		DueDate:     in.DueDate[:len(models.DateLayout)],
		Status:      models.AssignmentOpen,
	}))
	if err != nil {
		return models.Assignment{}, fmt.Errorf("failed to create assignment: %w", err)
	}
	a, err := models.Decode[models.Assignment](rec)
	if err != nil {
		return models.Assignment{}, err
	}

	if s.notifier != nil {
		msg := fmt.Sprintf("%s 동아리에 새 과제가 등록되었습니다. 마감일: %s", a.Club, a.DueDate)
		if _, err := s.notifier.Add(ctx, "새 과제: "+a.Title, notification.TypeAssignment, models.AllClubs, msg); err != nil {
			log.Warn("failed to announce assignment", "assignment", a.ID, "error", err)
		}
	}
	return a, nil
}

func canManage(actor *models.Actor, club string) bool {
	if club == models.AllClubs {
		return actor.IsTeacher()
	}
	return actor.Leads(club)
}

// Overview is an assignment as seen by one user.
type Overview struct {
	models.Assignment
	Submitted   bool   `json:"submitted"`
	Grade       string `json:"grade,omitempty"`
	Submissions int    `json:"submissions"`
	Overdue     bool   `json:"overdue"`
}

// List returns the assignments of club visible to actor, nearest due date first.
// An empty club lists every visible assignment.
func (s *Service) List(ctx context.Context, actor *models.Actor, club string) ([]Overview, error) {
	at, err := s.store.Load(ctx, store.Assignments)
	if err != nil {
		return nil, err
	}
	st, err := s.store.Load(ctx, store.Submissions)
	if err != nil {
		return nil, err
	}
	subs := lo.GroupBy(models.DecodeAll[models.Submission](st.Rows), func(sub models.Submission) int { return sub.AssignmentID })
	today := s.now().In(s.loc).Format(models.DateLayout)

	var out []Overview
	for _, a := range models.DecodeAll[models.Assignment](at.Rows) {
		if !actor.CanSee(a.Club) || (club != "" && a.Club != club) {
			continue
		}
		o := Overview{
			Assignment:  a,
			Submissions: len(subs[a.ID]),
			Overdue:     a.Status == models.AssignmentOpen && a.DueDate < today,
		}
		if mine, ok := lo.Find(subs[a.ID], func(sub models.Submission) bool { return sub.Username == actor.Username }); ok {
			o.Submitted = true
			o.Grade = mine.Grade
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueDate < out[j].DueDate })
	return out, nil
}

func (s *Service) get(ctx context.Context, id int) (models.Assignment, error) {
	t, err := s.store.Load(ctx, store.Assignments)
	if err != nil {
		return models.Assignment{}, err
	}
	rec, ok := t.Find("id", strconv.Itoa(id))
	if !ok {
		return models.Assignment{}, store.ErrNotFound
	}
	return models.Decode[models.Assignment](rec)
}

// Submit stores or replaces actor's submission for an open assignment.
func (s *Service) Submit(ctx context.Context, actor *models.Actor, id int, content string) (models.Submission, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Submission{}, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	a, err := s.get(ctx, id)
	if err != nil {
		return models.Submission{}, err
	}
	if !actor.CanSee(a.Club) {
		return models.Submission{}, ErrForbidden
	}
	if a.Status == models.AssignmentClosed {
		return models.Submission{}, ErrClosed
	}
	now := s.now().In(s.loc)
	if a.DueDate < now.Format(models.DateLayout) {
		return models.Submission{}, ErrPastDue
	}

	submitted := now.Format(models.DateTimeLayout)
	var saved store.Record
	err = s.store.Mutate(ctx, store.Submissions, func(t *store.Table) error {
		for _, r := range t.Rows {
			if r.Int("assignment_id") == id && r["username"] == actor.Username {
				r["content"] = content
				r["submitted_date"] = submitted
				r["grade"] = ""
				r["feedback"] = ""
				saved = r
				return nil
			}
		}
		saved = models.MustEncode(models.Submission{
			AssignmentID:  id,
			Username:      actor.Username,
			Content:       content,
			SubmittedDate: submitted,
		})
		t.Rows = append(t.Rows, saved)
		return nil
	})
	if err != nil {
		return models.Submission{}, fmt.Errorf("failed to submit: %w", err)
	}
	return models.Decode[models.Submission](saved)
}

// Submissions returns the submissions of an assignment. Managers see all of
// them, everyone else only their own.
func (s *Service) Submissions(ctx context.Context, actor *models.Actor, id int) ([]models.Submission, error) {
	a, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanSee(a.Club) {
		return nil, ErrForbidden
	}
	t, err := s.store.Load(ctx, store.Submissions)
	if err != nil {
		return nil, err
	}
	manager := canManage(actor, a.Club) || a.Creator == actor.Username
	subs := lo.Filter(models.DecodeAll[models.Submission](t.Rows), func(sub models.Submission, _ int) bool {
		return sub.AssignmentID == id && (manager || sub.Username == actor.Username)
	})
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].SubmittedDate < subs[j].SubmittedDate })
	return subs, nil
}

// Grade records a grade and feedback on a submission.
func (s *Service) Grade(ctx context.Context, actor *models.Actor, submissionID int, grade, feedback string) error {
	t, err := s.store.Load(ctx, store.Submissions)
	if err != nil {
		return err
	}
	rec, ok := t.Find("id", strconv.Itoa(submissionID))
	if !ok {
		return store.ErrNotFound
	}
	a, err := s.get(ctx, rec.Int("assignment_id"))
	if err != nil {
		return err
	}
	if !canManage(actor, a.Club) && a.Creator != actor.Username {
		return ErrForbidden
	}
	grade = strings.TrimSpace(grade)
	if grade == "" {
		return fmt.Errorf("%w: grade is required", ErrInvalidInput)
	}

	err = s.store.Update(ctx, store.Submissions, strconv.Itoa(submissionID), store.Record{
		"grade":    grade,
		"feedback": strings.TrimSpace(feedback),
	})
	if err != nil {
		return fmt.Errorf("failed to grade submission: %w", err)
	}

	if s.notifier != nil {
		msg := fmt.Sprintf("'%s' 과제가 채점되었습니다: %s", a.Title, grade)
		if _, err := s.notifier.Add(ctx, "과제 채점 완료", notification.TypeAssignment, rec["username"], msg); err != nil {
			log.Warn("failed to notify graded submission", "submission", submissionID, "error", err)
		}
	}
	return nil
}

// Close stops accepting submissions.
func (s *Service) Close(ctx context.Context, actor *models.Actor, id int) error {
	a, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(actor, a.Club) && a.Creator != actor.Username {
		return ErrForbidden
	}
	return s.store.Update(ctx, store.Assignments, strconv.Itoa(id), store.Record{"status": models.AssignmentClosed})
}

// Delete removes an assignment and its submissions.
func (s *Service) Delete(ctx context.Context, actor *models.Actor, id int) error {
	a, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(actor, a.Club) && a.Creator != actor.Username {
		return ErrForbidden
	}
	if err := s.store.Delete(ctx, store.Assignments, strconv.Itoa(id)); err != nil {
		return err
	}
	return s.store.Mutate(ctx, store.Submissions, func(t *store.Table) error {
		t.Rows = lo.Reject(t.Rows, func(r store.Record, _ int) bool { return r.Int("assignment_id") == id })
		return nil
	})
}

// OpenCount returns the number of open assignments visible to actor.
func (s *Service) OpenCount(ctx context.Context, actor *models.Actor) (int, error) {
	t, err := s.store.Load(ctx, store.Assignments)
	if err != nil {
		return 0, err
	}
	return lo.CountBy(models.DecodeAll[models.Assignment](t.Rows), func(a models.Assignment) bool {
		return a.Status == models.AssignmentOpen && actor.CanSee(a.Club)
	}), nil
}
