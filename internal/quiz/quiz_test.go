package quiz

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/polaris-class/clubhouse/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type badgeSpy struct {
	titles []string
}

func (b *badgeSpy) AwardQuizMaster(_ context.Context, username, quizTitle string) (*models.Badge, error) {
	b.titles = append(b.titles, quizTitle)
	return &models.Badge{Username: username, BadgeName: "퀴즈 마스터", Description: quizTitle + " 만점 달성"}, nil
}

type notifierSpy struct {
	titles []string
}

func (n *notifierSpy) Add(_ context.Context, title, kind, username, message string) (models.Notification, error) {
	n.titles = append(n.titles, title)
	return models.Notification{Title: title}, nil
}

var (
	teacher = &models.Actor{Username: "teacher", Name: "선생님", Role: models.RoleTeacher}
	leader  = &models.Actor{Username: "cho", Name: "조성우", Role: models.RoleMember,
		Clubs: []store.Membership{{Club: "코딩", Role: "president"}}}
	kim = &models.Actor{Username: "kim", Name: "김철수", Role: models.RoleMember,
		Clubs: []store.Membership{{Club: "코딩", Role: "member"}}}
	lee = &models.Actor{Username: "lee", Name: "이영희", Role: models.RoleMember,
		Clubs: []store.Membership{{Club: "댄스", Role: "member"}}}
)

func sampleInput() Input {
	return Input{
		Title:           "파이썬 기초",
		Club:            "코딩",
		TimeLimit:       5,
		AttemptsAllowed: 2,
		Questions: []Question{
			{Question: "1+1?", Options: []string{"1", "2", " ", "3"}, Correct: "2"},
			{Question: "print 함수는?", Options: []string{"출력", "입력"}, Correct: "출력"},
		},
	}
}

func newService(t *testing.T) (*Service, *store.Store, *badgeSpy, *notifierSpy) {
	t.Helper()
	s := storetest.New(t)
	badges := &badgeSpy{}
	notifier := &notifierSpy{}
	svc := New(s, badges, notifier)
	svc.now = func() time.Time { return storetest.Now }
	return svc, s, badges, notifier
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	svc, _, _, notifier := newService(t)

	q, err := svc.Create(ctx, leader, sampleInput())
	require.NoError(t, err)
	assert.Equal(t, 1, q.ID)
	assert.Equal(t, StatusActive, q.Status)
	assert.Equal(t, "cho", q.Creator)
	assert.Equal(t, []string{"새 퀴즈: 파이썬 기초"}, notifier.titles)

	questions, err := Questions(q)
	require.NoError(t, err)
	require.Len(t, questions, 2)
	assert.Equal(t, []string{"1", "2", "3"}, questions[0].Options, "blank options are dropped")
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newService(t)

	_, err := svc.Create(ctx, kim, sampleInput())
	assert.ErrorIs(t, err, ErrForbidden)

	in := sampleInput()
	in.Club = models.AllClubs
	_, err = svc.Create(ctx, leader, in)
	assert.ErrorIs(t, err, ErrForbidden, "only teachers address every club")

	tests := map[string]func(*Input){
		"time limit":     func(in *Input) { in.TimeLimit = 61 },
		"attempts":       func(in *Input) { in.AttemptsAllowed = 11 },
		"no questions":   func(in *Input) { in.Questions = nil },
		"one option":     func(in *Input) { in.Questions[0].Options = []string{"2", ""} },
		"five options":   func(in *Input) { in.Questions[0].Options = []string{"1", "2", "3", "4", "5"} },
		"wrong correct":  func(in *Input) { in.Questions[0].Correct = "42" },
		"blank question": func(in *Input) { in.Questions[1].Question = " " },
		"bad status":     func(in *Input) { in.Status = "draft" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			in := sampleInput()
			mutate(&in)
			_, err := svc.Create(ctx, teacher, in)
			assert.ErrorIs(t, err, ErrInvalidQuiz)
		})
	}
}

func TestScore(t *testing.T) {
	questions := sampleInput().Questions
	assert.Equal(t, 2, Score(questions, []string{"2", "출력"}))
	assert.Equal(t, 1, Score(questions, []string{"2", "입력"}))
	assert.Equal(t, 1, Score(questions, []string{"2"}))
	assert.Equal(t, 0, Score(questions, nil))
}

func TestStartAndSubmit(t *testing.T) {
	ctx := context.Background()
	svc, s, badges, _ := newService(t)
	q, err := svc.Create(ctx, leader, sampleInput())
	require.NoError(t, err)

	attempt, err := svc.Start(ctx, kim, q.ID)
	require.NoError(t, err)
	assert.Equal(t, storetest.Now.Add(5*time.Minute), attempt.Deadline)
	for _, qu := range attempt.Questions {
		assert.Empty(t, qu.Correct, "answers are not sent to the client")
	}

	startedAt := storetest.Now.Add(-90 * time.Second)
	res, err := svc.Submit(ctx, kim, q.ID, []string{"2", "입력"}, startedAt)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Response.Score)
	assert.Equal(t, 2, res.Response.TotalQuestions)
	assert.Equal(t, 1.5, res.Response.TimeTaken)
	assert.False(t, res.Perfect)
	assert.Nil(t, res.Badge)

	res, err = svc.Submit(ctx, kim, q.ID, []string{"2", "출력"}, startedAt)
	require.NoError(t, err)
	assert.True(t, res.Perfect)
	require.NotNil(t, res.Badge)
	assert.Equal(t, []string{"파이썬 기초"}, badges.titles)

	_, err = svc.Start(ctx, kim, q.ID)
	assert.ErrorIs(t, err, ErrNoAttemptsLeft)
	_, err = svc.Submit(ctx, kim, q.ID, []string{"2", "출력"}, startedAt)
	assert.ErrorIs(t, err, ErrNoAttemptsLeft)

	assert.Len(t, storetest.Rows(t, s, store.QuizResponses), 2)
}

func TestSubmit_ConcurrentAttempts(t *testing.T) {
	ctx := context.Background()
	svc, s, _, _ := newService(t)
	in := sampleInput()
	in.AttemptsAllowed = 1
	q, err := svc.Create(ctx, leader, in)
	require.NoError(t, err)

	const submits = 20
	startedAt := storetest.Now.Add(-time.Minute)
	errs := make([]error, submits)
	var wg sync.WaitGroup
	for i := range submits {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Submit(ctx, kim, q.ID, []string{"1", "입력"}, startedAt)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrNoAttemptsLeft)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, storetest.Rows(t, s, store.QuizResponses), 1)
}

func TestSubmit_TimeExpired(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newService(t)
	q, err := svc.Create(ctx, leader, sampleInput())
	require.NoError(t, err)

	_, err = svc.Submit(ctx, kim, q.ID, []string{"2", "출력"}, storetest.Now.Add(-6*time.Minute))
	assert.ErrorIs(t, err, ErrTimeExpired)

	_, err = svc.Submit(ctx, kim, q.ID, nil, storetest.Now.Add(time.Minute))
	assert.ErrorIs(t, err, ErrTimeExpired, "start times in the future are rejected")
}

func TestAccessAndStatus(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newService(t)
	q, err := svc.Create(ctx, leader, sampleInput())
	require.NoError(t, err)

	_, err = svc.Start(ctx, lee, q.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	assert.ErrorIs(t, svc.SetStatus(ctx, kim, q.ID, StatusInactive), ErrForbidden)
	require.NoError(t, svc.SetStatus(ctx, leader, q.ID, StatusInactive))

	_, err = svc.Start(ctx, kim, q.ID)
	assert.ErrorIs(t, err, ErrInactive)

	list, err := svc.List(ctx, kim)
	require.NoError(t, err)
	assert.Empty(t, list, "inactive quizzes are hidden from members")

	list, err = svc.List(ctx, leader)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].CanAttempt)
	assert.Equal(t, 2, list[0].QuestionCount)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newService(t)
	q, err := svc.Create(ctx, leader, sampleInput())
	require.NoError(t, err)
	_, err = svc.Submit(ctx, kim, q.ID, []string{"2", "입력"}, storetest.Now)
	require.NoError(t, err)

	list, err := svc.List(ctx, kim)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].Attempts)
	assert.Equal(t, 1, list[0].BestScore)
	assert.True(t, list[0].CanAttempt)

	list, err = svc.List(ctx, lee)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAnalyticsAndMyScores(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newService(t)
	q, err := svc.Create(ctx, leader, sampleInput())
	require.NoError(t, err)

	start := storetest.Now.Add(-2 * time.Minute)
	_, err = svc.Submit(ctx, kim, q.ID, []string{"1", "입력"}, start)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, kim, q.ID, []string{"2", "출력"}, start)
	require.NoError(t, err)
	_, err = svc.Submit(ctx, leader, q.ID, []string{"2", "입력"}, start)
	require.NoError(t, err)

	_, err = svc.Analytics(ctx, kim, q.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	a, err := svc.Analytics(ctx, leader, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, a.Attempts)
	assert.Equal(t, 2, a.Participants)
	assert.Equal(t, 1.0, a.AverageScore)
	assert.Equal(t, 2.0, a.AverageTotal)
	assert.Equal(t, 2.0, a.AverageTime)
	assert.Equal(t, []Bucket{{Score: 0, Count: 1}, {Score: 1, Count: 1}, {Score: 2, Count: 1}}, a.Histogram)
	assert.Equal(t, []float64{66.7, 33.3}, a.Accuracy)

	mine, err := svc.MyScores(ctx, "kim")
	require.NoError(t, err)
	assert.Equal(t, 2, mine.TotalAttempts)
	assert.Equal(t, 50.0, mine.AveragePercent)
	require.Len(t, mine.Quizzes, 1)
	assert.Equal(t, QuizScore{QuizID: q.ID, Title: "파이썬 기초", BestScore: 2, Total: 2, Attempts: 2, BestTime: 2}, mine.Quizzes[0])

	none, err := svc.MyScores(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, none.TotalAttempts)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc, s, _, _ := newService(t)
	q, err := svc.Create(ctx, leader, sampleInput())
	require.NoError(t, err)
	_, err = svc.Submit(ctx, kim, q.ID, []string{"2"}, storetest.Now)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, kim, q.ID), ErrForbidden)
	require.NoError(t, svc.Delete(ctx, leader, q.ID))
	assert.Empty(t, storetest.Rows(t, s, store.Quizzes))
	assert.Empty(t, storetest.Rows(t, s, store.QuizResponses))
}
