package assignment

import (
	"context"
	"testing"
	"time"

	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/polaris-class/clubhouse/internal/notification"
	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/polaris-class/clubhouse/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	title, kind, username string
}

type notifierSpy struct {
	sent []sent
}

func (n *notifierSpy) Add(_ context.Context, title, kind, username, message string) (models.Notification, error) {
	n.sent = append(n.sent, sent{title: title, kind: kind, username: username})
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

func newService(t *testing.T) (*Service, *store.Store, *notifierSpy) {
	t.Helper()
	s := storetest.New(t)
	n := &notifierSpy{}
	svc := New(s, n, time.UTC)
	svc.now = func() time.Time { return storetest.Now }
	return svc, s, n
}

func create(t *testing.T, svc *Service, title, due string) models.Assignment {
	t.Helper()
	a, err := svc.Create(context.Background(), leader, Input{Title: title, Description: "설명", Club: "코딩", DueDate: due})
	require.NoError(t, err)
	return a
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	svc, _, n := newService(t)

	a := create(t, svc, "반복문 연습", "2025-03-20")
	assert.Equal(t, 1, a.ID)
	assert.Equal(t, models.AssignmentOpen, a.Status)
	assert.Equal(t, "cho", a.Creator)
	require.Len(t, n.sent, 1)
	assert.Equal(t, sent{title: "새 과제: 반복문 연습", kind: notification.TypeAssignment, username: models.AllClubs}, n.sent[0])

	_, err := svc.Create(ctx, kim, Input{Title: "x", Club: "코딩", DueDate: "2025-03-20"})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Create(ctx, leader, Input{Title: "x", Club: models.AllClubs, DueDate: "2025-03-20"})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Create(ctx, leader, Input{Title: "x", Club: "코딩", DueDate: "next week"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Create(ctx, leader, Input{Title: " ", Club: "코딩", DueDate: "2025-03-20"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSubmitAndGrade(t *testing.T) {
	ctx := context.Background()
	svc, s, n := newService(t)
	a := create(t, svc, "반복문 연습", "2025-03-20")

	sub, err := svc.Submit(ctx, kim, a.ID, "첫 제출")
	require.NoError(t, err)
	assert.Equal(t, 1, sub.ID)
	assert.Equal(t, "2025-03-10 09:30:00", sub.SubmittedDate)

	sub, err = svc.Submit(ctx, kim, a.ID, "다시 제출")
	require.NoError(t, err)
	assert.Equal(t, 1, sub.ID, "resubmitting replaces the submission")
	assert.Len(t, storetest.Rows(t, s, store.Submissions), 1)

	_, err = svc.Submit(ctx, lee, a.ID, "몰래 제출")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Submit(ctx, kim, a.ID, "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.ErrorIs(t, svc.Grade(ctx, kim, sub.ID, "A", ""), ErrForbidden)
	require.NoError(t, svc.Grade(ctx, leader, sub.ID, "A", "잘했어요"))
	assert.Equal(t, "kim", n.sent[len(n.sent)-1].username)

	list, err := svc.List(ctx, kim, "코딩")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Submitted)
	assert.Equal(t, "A", list[0].Grade)
	assert.Equal(t, 1, list[0].Submissions)
}

func TestSubmit_ClosedOrPastDue(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	past := create(t, svc, "지난 과제", "2025-03-09")
	open := create(t, svc, "열린 과제", "2025-03-10")

	_, err := svc.Submit(ctx, kim, past.ID, "늦은 제출")
	assert.ErrorIs(t, err, ErrPastDue)

	_, err = svc.Submit(ctx, kim, open.ID, "마감일 당일 제출")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Close(ctx, kim, open.ID), ErrForbidden)
	require.NoError(t, svc.Close(ctx, leader, open.ID))
	_, err = svc.Submit(ctx, kim, open.ID, "닫힌 뒤 제출")
	assert.ErrorIs(t, err, ErrClosed)

	_, err = svc.Submit(ctx, kim, 99, "없는 과제")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListAndOpenCount(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	later := create(t, svc, "나중 과제", "2025-04-01")
	sooner := create(t, svc, "먼저 과제", "2025-03-01")
	require.NoError(t, svc.Close(ctx, leader, later.ID))

	list, err := svc.List(ctx, kim, "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, sooner.ID, list[0].ID)
	assert.True(t, list[0].Overdue)
	assert.False(t, list[1].Overdue, "closed assignments are never overdue")

	list, err = svc.List(ctx, lee, "")
	require.NoError(t, err)
	assert.Empty(t, list)

	count, err := svc.OpenCount(ctx, kim)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	count, err = svc.OpenCount(ctx, lee)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSubmissionsAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, s, _ := newService(t)
	a := create(t, svc, "반복문 연습", "2025-03-20")
	park := &models.Actor{Username: "park", Role: models.RoleMember,
		Clubs: []store.Membership{{Club: "코딩", Role: "member"}}}

	_, err := svc.Submit(ctx, kim, a.ID, "kim 제출")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, park, a.ID, "park 제출")
	require.NoError(t, err)

	subs, err := svc.Submissions(ctx, leader, a.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 2)

	subs, err = svc.Submissions(ctx, kim, a.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "kim", subs[0].Username)

	assert.ErrorIs(t, svc.Delete(ctx, kim, a.ID), ErrForbidden)
	require.NoError(t, svc.Delete(ctx, teacher, a.ID))
	assert.Empty(t, storetest.Rows(t, s, store.Assignments))
	assert.Empty(t, storetest.Rows(t, s, store.Submissions))
}
