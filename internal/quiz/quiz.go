// Package quiz runs timed multiple-choice quizzes.
package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
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
	ErrNoAttemptsLeft = errors.New("no attempts left")
	ErrTimeExpired    = errors.New("time limit expired")
	ErrInactive       = errors.New("quiz is not active")
	ErrForbidden      = errors.New("not allowed to manage this quiz")
	ErrInvalidQuiz    = errors.New("invalid quiz")
)

// Quiz states.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Limits.
const (
	MinTimeLimit   = 1
	MaxTimeLimit   = 60
	MinAttempts    = 1
	MaxAttempts    = 10
	MaxOptions     = 4
	minOptions     = 2
	defaultLimit   = 10
	defaultAttempt = 1
)

// Question is one multiple-choice question. Correct holds the text of the right option.
type Question struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Correct  string   `json:"correct"`
}

func (q *Question) normalize() error {
	q.Question = strings.TrimSpace(q.Question)
	if q.Question == "" {
		return fmt.Errorf("%w: question text is required", ErrInvalidQuiz)
	}
	q.Options = lo.Compact(lo.Map(q.Options, func(o string, _ int) string { return strings.TrimSpace(o) }))
	if len(q.Options) < minOptions || len(q.Options) > MaxOptions {
		return fmt.Errorf("%w: %q needs %d to %d options", ErrInvalidQuiz, q.Question, minOptions, MaxOptions)
	}
	q.Correct = strings.TrimSpace(q.Correct)
	if !lo.Contains(q.Options, q.Correct) {
		return fmt.Errorf("%w: the correct answer of %q is not an option", ErrInvalidQuiz, q.Question)
	}
	return nil
}

// Questions decodes the stored questions of a quiz.
func Questions(q models.Quiz) ([]Question, error) {
	var out []Question
	if strings.TrimSpace(q.Questions) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(q.Questions), &out); err != nil {
		return nil, fmt.Errorf("failed to decode questions of quiz %d: %w", q.ID, err)
	}
	return out, nil
}

// Score counts the answers equal to the correct option.
func Score(questions []Question, answers []string) int {
	score := 0
	for i, q := range questions {
		if i < len(answers) && answers[i] == q.Correct {
			score++
		}
	}
	return score
}

// BadgeAwarder awards the quiz master badge.
type BadgeAwarder interface {
	AwardQuizMaster(ctx context.Context, username, quizTitle string) (*models.Badge, error)
}

// Notifier announces new quizzes.
type Notifier interface {
	Add(ctx context.Context, title, kind, username, message string) (models.Notification, error)
}

// Service manages quizzes and responses.
type Service struct {
	store    *store.Store
	badges   BadgeAwarder
	notifier Notifier
	now      func() time.Time
}

// New creates a quiz service. b and n may be nil.
func New(s *store.Store, b BadgeAwarder, n Notifier) *Service {
	return &Service{store: s, badges: b, notifier: n, now: time.Now}
}

// Input is a new quiz.
type Input struct {
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Club            string     `json:"club"`
	TimeLimit       int        `json:"timeLimit"`
	AttemptsAllowed int        `json:"attemptsAllowed"`
	Status          string     `json:"status"`
	Questions       []Question `json:"questions"`
}

func canManage(actor *models.Actor, club string) bool {
	if club == models.AllClubs {
		return actor.IsTeacher()
	}
	return actor.Leads(club)
}

// Create stores a quiz. Teachers and club leaders may create quizzes.
func (s *Service) Create(ctx context.Context, creator *models.Actor, in Input) (models.Quiz, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || in.Club == "" {
		return models.Quiz{}, fmt.Errorf("%w: title and club are required", ErrInvalidQuiz)
	}
	if !canManage(creator, in.Club) {
		return models.Quiz{}, ErrForbidden
	}
	if in.TimeLimit == 0 {
		in.TimeLimit = defaultLimit
	}
	if in.TimeLimit < MinTimeLimit || in.TimeLimit > MaxTimeLimit {
		return models.Quiz{}, fmt.Errorf("%w: time limit must be %d-%d minutes", ErrInvalidQuiz, MinTimeLimit, MaxTimeLimit)
	}
	if in.AttemptsAllowed == 0 {
		in.AttemptsAllowed = defaultAttempt
	}
	if in.AttemptsAllowed < MinAttempts || in.AttemptsAllowed > MaxAttempts {
		return models.Quiz{}, fmt.Errorf("%w: attempts must be %d-%d", ErrInvalidQuiz, MinAttempts, MaxAttempts)
	}
	if in.Status == "" {
		in.Status = StatusActive
	}
	if in.Status != StatusActive && in.Status != StatusInactive {
		return models.Quiz{}, fmt.Errorf("%w: unknown status %q", ErrInvalidQuiz, in.Status)
	}
	if len(in.Questions) == 0 {
		return models.Quiz{}, fmt.Errorf("%w: at least one question is required", ErrInvalidQuiz)
	}
	for i := range in.Questions {
		if err := in.Questions[i].normalize(); err != nil {
			return models.Quiz{}, err
		}
	}
	questions, err := json.Marshal(in.Questions)
	if err != nil {
		return models.Quiz{}, err
	}

	rec, err := s.store.Add(ctx, store.Quizzes, models.MustEncode(models.Quiz{
		Title:           in.Title,
		Description:     strings.TrimSpace(in.Description),
		Club:            in.Club,
		Creator:         creator.Username,
		Questions:       string(questions),
		TimeLimit:       in.TimeLimit,
		AttemptsAllowed: in.AttemptsAllowed,
		Status:          in.Status,
	}))
	if err != nil {
		return models.Quiz{}, fmt.Errorf("failed to create quiz: %w", err)
	}
	q, err := models.Decode[models.Quiz](rec)
	if err != nil {
		return models.Quiz{}, err
	}

	if s.notifier != nil && q.Status == StatusActive {
		title := "새 퀴즈: " + q.Title
		message := creator.Name + "님이 새 퀴즈를 등록했습니다."
		if _, err := s.notifier.Add(ctx, title, notification.TypeInfo, models.AllClubs, message); err != nil {
			log.Warn("failed to announce quiz", "quiz", q.ID, "error", err)
		}
	}
	return q, nil
}

func (s *Service) load(ctx context.Context, id int) (models.Quiz, error) {
	t, err := s.store.Load(ctx, store.Quizzes)
	if err != nil {
		return models.Quiz{}, err
	}
	rec, ok := t.Find("id", strconv.Itoa(id))
	if !ok {
		return models.Quiz{}, store.ErrNotFound
	}
	return models.Decode[models.Quiz](rec)
}

// Get returns a quiz visible to actor.
func (s *Service) Get(ctx context.Context, actor *models.Actor, id int) (models.Quiz, error) {
	q, err := s.load(ctx, id)
	if err != nil {
		return models.Quiz{}, err
	}
	if !actor.CanSee(q.Club) {
		return models.Quiz{}, ErrForbidden
	}
	return q, nil
}

func (s *Service) responses(ctx context.Context) ([]models.QuizResponse, error) {
	t, err := s.store.Load(ctx, store.QuizResponses)
	if err != nil {
		return nil, err
	}
	return models.DecodeAll[models.QuizResponse](t.Rows), nil
}

func (s *Service) attemptsOf(ctx context.Context, quizID int, username string) ([]models.QuizResponse, error) {
	all, err := s.responses(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Filter(all, func(r models.QuizResponse, _ int) bool {
		return r.QuizID == quizID && r.Username == username
	}), nil
}

// Overview is a quiz as listed to one user.
type Overview struct {
	models.Quiz
	QuestionCount int  `json:"questionCount"`
	Attempts      int  `json:"attempts"`
	BestScore     int  `json:"bestScore"`
	CanAttempt    bool `json:"canAttempt"`
}

// List returns the quizzes visible to actor, newest first. Inactive quizzes are
// only listed to users who can manage them.
func (s *Service) List(ctx context.Context, actor *models.Actor) ([]Overview, error) {
	t, err := s.store.Load(ctx, store.Quizzes)
	if err != nil {
		return nil, err
	}
	responses, err := s.responses(ctx)
	if err != nil {
		return nil, err
	}
	mine := lo.GroupBy(lo.Filter(responses, func(r models.QuizResponse, _ int) bool {
		return r.Username == actor.Username
	}), func(r models.QuizResponse) int { return r.QuizID })

	var out []Overview
	for _, q := range models.DecodeAll[models.Quiz](t.Rows) {
		if !actor.CanSee(q.Club) {
			continue
		}
		if q.Status != StatusActive && !canManage(actor, q.Club) {
			continue
		}
		questions, err := Questions(q)
		if err != nil {
			log.Warn("skipping quiz with broken questions", "quiz", q.ID, "error", err)
			continue
		}
		attempts := mine[q.ID]
		out = append(out, Overview{
			Quiz:          q,
			QuestionCount: len(questions),
			Attempts:      len(attempts),
			BestScore:     lo.Max(lo.Map(attempts, func(r models.QuizResponse, _ int) int { return r.Score })),
			CanAttempt:    q.Status == StatusActive && len(attempts) < q.AttemptsAllowed,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedDate > out[j].CreatedDate })
	return out, nil
}

// Attempt is a started quiz. Questions are sent without their correct answers.
type Attempt struct {
	QuizID    int        `json:"quizId"`
	Title     string     `json:"title"`
	StartedAt time.Time  `json:"startedAt"`
	Deadline  time.Time  `json:"deadline"`
	Questions []Question `json:"questions"`
}

func (s *Service) checkAttempt(ctx context.Context, actor *models.Actor, id int) (models.Quiz, []Question, error) {
	q, err := s.Get(ctx, actor, id)
	if err != nil {
		return q, nil, err
	}
	if q.Status != StatusActive {
		return q, nil, ErrInactive
	}
	attempts, err := s.attemptsOf(ctx, id, actor.Username)
	if err != nil {
		return q, nil, err
	}
	if len(attempts) >= q.AttemptsAllowed {
		return q, nil, ErrNoAttemptsLeft
	}
	questions, err := Questions(q)
	return q, questions, err
}

// Start begins an attempt and returns its start time and deadline.
func (s *Service) Start(ctx context.Context, actor *models.Actor, id int) (Attempt, error) {
	q, questions, err := s.checkAttempt(ctx, actor, id)
	if err != nil {
		return Attempt{}, err
	}
	started := s.now()
	return Attempt{
		QuizID:    q.ID,
		Title:     q.Title,
		StartedAt: started,
		Deadline:  started.Add(time.Duration(q.TimeLimit) * time.Minute),
		Questions: lo.Map(questions, func(qu Question, _ int) Question {
			return Question{Question: qu.Question, Options: qu.Options}
		}),
	}, nil
}

// Result is a graded attempt.
type Result struct {
	Response models.QuizResponse `json:"response"`
	Perfect  bool                `json:"perfect"`
	Badge    *models.Badge       `json:"badge,omitempty"`
}

// Submit grades answers of an attempt started at startedAt and records the response.
// A perfect score awards the quiz master badge.
func (s *Service) Submit(ctx context.Context, actor *models.Actor, id int, answers []string, startedAt time.Time) (Result, error) {
	q, questions, err := s.checkAttempt(ctx, actor, id)
	if err != nil {
		return Result{}, err
	}
	now := s.now()
	elapsed := now.Sub(startedAt)
	if elapsed < 0 || elapsed > time.Duration(q.TimeLimit)*time.Minute {
		return Result{}, ErrTimeExpired
	}

	score := Score(questions, answers)
	encoded, err := json.Marshal(answers)
	if err != nil {
		return Result{}, err
	}
	rec := models.MustEncode(models.QuizResponse{
		QuizID:         q.ID,
		Username:       actor.Username,
		Answers:        string(encoded),
		Score:          score,
		TotalQuestions: len(questions),
		CompletedDate:  now.Format(models.DateTimeLayout),
		TimeTaken:      math.Round(elapsed.Minutes()*100) / 100,
	})
	// The attempt count is checked again under the table lock.
	err = s.store.Mutate(ctx, store.QuizResponses, func(t *store.Table) error {
		used := lo.CountBy(t.Rows, func(r store.Record) bool {
			return r.Int("quiz_id") == q.ID && r["username"] == actor.Username
		})
		if used >= q.AttemptsAllowed {
			return ErrNoAttemptsLeft
		}
		t.Rows = append(t.Rows, rec)
		return nil
	})
	if errors.Is(err, ErrNoAttemptsLeft) {
		return Result{}, err
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to record quiz response: %w", err)
	}
	resp, err := models.Decode[models.QuizResponse](rec)
	if err != nil {
		return Result{}, err
	}

	res := Result{Response: resp, Perfect: len(questions) > 0 && score == len(questions)}
	if res.Perfect && s.badges != nil {
		b, err := s.badges.AwardQuizMaster(ctx, actor.Username, q.Title)
		if err != nil {
			log.Warn("failed to award quiz master", "user", actor.Username, "quiz", q.ID, "error", err)
		}
		res.Badge = b
	}
	return res, nil
}

// SetStatus activates or deactivates a quiz.
func (s *Service) SetStatus(ctx context.Context, actor *models.Actor, id int, status string) error {
	if status != StatusActive && status != StatusInactive {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidQuiz, status)
	}
	q, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(actor, q.Club) {
		return ErrForbidden
	}
	return s.store.Update(ctx, store.Quizzes, strconv.Itoa(id), store.Record{"status": status})
}

// Delete removes a quiz and its responses.
func (s *Service) Delete(ctx context.Context, actor *models.Actor, id int) error {
	q, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !actor.IsTeacher() && actor.Username != q.Creator {
		return ErrForbidden
	}
	if err := s.store.Delete(ctx, store.Quizzes, strconv.Itoa(id)); err != nil {
		return err
	}
	quizID := strconv.Itoa(id)
	return s.store.Mutate(ctx, store.QuizResponses, func(t *store.Table) error {
		t.Rows = lo.Reject(t.Rows, func(r store.Record, _ int) bool { return r["quiz_id"] == quizID })
		return nil
	})
}

// Bucket counts the attempts that reached one score.
type Bucket struct {
	Score int `json:"score"`
	Count int `json:"count"`
}

// Analytics summarises the responses to one quiz.
type Analytics struct {
	QuizID       int       `json:"quizId"`
	Attempts     int       `json:"attempts"`
	Participants int       `json:"participants"`
	AverageScore float64   `json:"averageScore"`
	AverageTotal float64   `json:"averageTotal"`
	AverageTime  float64   `json:"averageTime"`
	Histogram    []Bucket  `json:"histogram"`
	Accuracy     []float64 `json:"accuracy"`
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Analytics returns attempt statistics of a quiz. Only users who can manage the quiz may see them.
func (s *Service) Analytics(ctx context.Context, actor *models.Actor, id int) (Analytics, error) {
	q, err := s.load(ctx, id)
	if err != nil {
		return Analytics{}, err
	}
	if !canManage(actor, q.Club) {
		return Analytics{}, ErrForbidden
	}
	questions, err := Questions(q)
	if err != nil {
		return Analytics{}, err
	}
	all, err := s.responses(ctx)
	if err != nil {
		return Analytics{}, err
	}
	rs := lo.Filter(all, func(r models.QuizResponse, _ int) bool { return r.QuizID == id })

	out := Analytics{QuizID: id, Attempts: len(rs), Accuracy: make([]float64, len(questions))}
	if len(rs) == 0 {
		return out, nil
	}
	n := float64(len(rs))
	out.Participants = len(lo.Uniq(lo.Map(rs, func(r models.QuizResponse, _ int) string { return r.Username })))
	out.AverageScore = round1(float64(lo.SumBy(rs, func(r models.QuizResponse) int { return r.Score })) / n)
	out.AverageTotal = round1(float64(lo.SumBy(rs, func(r models.QuizResponse) int { return r.TotalQuestions })) / n)
	out.AverageTime = round1(lo.SumBy(rs, func(r models.QuizResponse) float64 { return r.TimeTaken }) / n)

	counts := lo.CountValuesBy(rs, func(r models.QuizResponse) int { return r.Score })
	for score, c := range counts {
		out.Histogram = append(out.Histogram, Bucket{Score: score, Count: c})
	}
	sort.Slice(out.Histogram, func(i, j int) bool { return out.Histogram[i].Score < out.Histogram[j].Score })

	correct := make([]int, len(questions))
	for _, r := range rs {
		var answers []string
		if err := json.Unmarshal([]byte(r.Answers), &answers); err != nil {
			continue
		}
		for i, q := range questions {
			if i < len(answers) && answers[i] == q.Correct {
				correct[i]++
			}
		}
	}
	for i, c := range correct {
		out.Accuracy[i] = round1(float64(c) / n * 100)
	}
	return out, nil
}

// QuizScore is a user's best result on one quiz.
type QuizScore struct {
	QuizID    int     `json:"quizId"`
	Title     string  `json:"title"`
	BestScore int     `json:"bestScore"`
	Total     int     `json:"total"`
	Attempts  int     `json:"attempts"`
	BestTime  float64 `json:"bestTime"`
}

// MyScores summarises a user's quiz results.
type MyScores struct {
	TotalAttempts  int         `json:"totalAttempts"`
	AveragePercent float64     `json:"averagePercent"`
	Quizzes        []QuizScore `json:"quizzes"`
}

// MyScores returns the quiz results of username, best score per quiz.
func (s *Service) MyScores(ctx context.Context, username string) (MyScores, error) {
	all, err := s.responses(ctx)
	if err != nil {
		return MyScores{}, err
	}
	mine := lo.Filter(all, func(r models.QuizResponse, _ int) bool { return r.Username == username })
	out := MyScores{TotalAttempts: len(mine)}
	if len(mine) == 0 {
		return out, nil
	}

	t, err := s.store.Load(ctx, store.Quizzes)
	if err != nil {
		return MyScores{}, err
	}
	titles := map[int]string{}
	for _, q := range models.DecodeAll[models.Quiz](t.Rows) {
		titles[q.ID] = q.Title
	}

	percent := lo.SumBy(mine, func(r models.QuizResponse) float64 {
		if r.TotalQuestions == 0 {
			return 0
		}
		return float64(r.Score) / float64(r.TotalQuestions) * 100
	})
	out.AveragePercent = round1(percent / float64(len(mine)))

	for quizID, rs := range lo.GroupBy(mine, func(r models.QuizResponse) int { return r.QuizID }) {
		best := lo.MaxBy(rs, func(a, b models.QuizResponse) bool {
			return a.Score > b.Score || (a.Score == b.Score && a.TimeTaken < b.TimeTaken)
		})
		out.Quizzes = append(out.Quizzes, QuizScore{
			QuizID:    quizID,
			Title:     titles[quizID],
			BestScore: best.Score,
			Total:     best.TotalQuestions,
			Attempts:  len(rs),
			BestTime:  best.TimeTaken,
		})
	}
	sort.Slice(out.Quizzes, func(i, j int) bool { return out.Quizzes[i].QuizID < out.Quizzes[j].QuizID })
	return out, nil
}
