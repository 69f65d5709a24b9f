package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/polaris-class/clubhouse/internal/attendance"
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/polaris-class/clubhouse/internal/notification"
	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/polaris-class/clubhouse/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notifierSpy struct {
	kinds []string
}

func (n *notifierSpy) Add(_ context.Context, title, kind, username, message string) (models.Notification, error) {
	n.kinds = append(n.kinds, kind)
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
	storetest.Seed(t, s, store.Users,
		storetest.User("cho", "조성우", "member", "코딩", "president"),
		storetest.User("kim", "김철수", "member", "코딩", "member"),
		storetest.User("lee", "이영희", "member", "댄스", "member"),
	)
	att := attendance.New(s, nil, nil, nil, time.UTC)
	n := &notifierSpy{}
	svc := New(s, n, att, time.UTC)
	svc.now = func() time.Time { return storetest.Now }
	return svc, s, n
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	svc, _, n := newService(t)

	item, err := svc.Create(ctx, leader, Input{Title: "정기 모임", Club: "코딩", Date: "2025-03-12", Time: "15:00", Location: "컴퓨터실"})
	require.NoError(t, err)
	assert.Equal(t, 1, item.ID)
	assert.Equal(t, "cho", item.Creator)
	assert.Equal(t, []string{notification.TypeSchedule}, n.kinds)

	tests := map[string]Input{
		"missing title": {Club: "코딩", Date: "2025-03-12"},
		"bad date":      {Title: "x", Club: "코딩", Date: "12/03/2025"},
		"datetime":      {Title: "x", Club: "코딩", Date: "2025-03-12 10:00:00"},
		"bad time":      {Title: "x", Club: "코딩", Date: "2025-03-12", Time: "3pm"},
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(ctx, teacher, in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	_, err = svc.Create(ctx, kim, Input{Title: "x", Club: "코딩", Date: "2025-03-12"})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Create(ctx, leader, Input{Title: "x", Club: models.AllClubs, Date: "2025-03-12"})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestUpcoming(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	for _, in := range []Input{
		{Title: "지난 모임", Club: "코딩", Date: "2025-03-09"},
		{Title: "오후 모임", Club: "코딩", Date: "2025-03-12", Time: "15:00"},
		{Title: "오전 모임", Club: "코딩", Date: "2025-03-12", Time: "09:00"},
		{Title: "전체 조회", Club: models.AllClubs, Date: "2025-03-11"},
		{Title: "댄스 연습", Club: "댄스", Date: "2025-03-11"},
	} {
		_, err := svc.Create(ctx, teacher, in)
		require.NoError(t, err)
	}

	items, err := svc.Upcoming(ctx, kim, "", time.Time{})
	require.NoError(t, err)
	titles := make([]string, 0, len(items))
	for _, it := range items {
		titles = append(titles, it.Title)
	}
	assert.Equal(t, []string{"전체 조회", "오전 모임", "오후 모임"}, titles)

	items, err = svc.Upcoming(ctx, teacher, "댄스", storetest.Now.AddDate(0, 0, -5))
	require.NoError(t, err)
	titles = titles[:0]
	for _, it := range items {
		titles = append(titles, it.Title)
	}
	assert.Equal(t, []string{"전체 조회", "댄스 연습"}, titles)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc, s, _ := newService(t)
	item, err := svc.Create(ctx, leader, Input{Title: "정기 모임", Club: "코딩", Date: "2025-03-12"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, kim, item.ID), ErrForbidden)
	require.NoError(t, svc.Delete(ctx, leader, item.ID))
	assert.Empty(t, storetest.Rows(t, s, store.Schedule))
	assert.ErrorIs(t, svc.Delete(ctx, leader, item.ID), store.ErrNotFound)
}

func TestStartAttendance(t *testing.T) {
	ctx := context.Background()
	svc, s, _ := newService(t)
	item, err := svc.Create(ctx, leader, Input{Title: "정기 모임", Club: "코딩", Date: "2025-03-12"})
	require.NoError(t, err)

	_, err = svc.StartAttendance(ctx, kim, item.ID)
	assert.ErrorIs(t, err, attendance.ErrForbidden)
	_, err = svc.StartAttendance(ctx, lee, item.ID)
	assert.ErrorIs(t, err, attendance.ErrForbidden)

	res, err := svc.StartAttendance(ctx, leader, item.ID)
	require.NoError(t, err)
	assert.Equal(t, attendance.RecordResult{Added: 2}, res)

	res, err = svc.StartAttendance(ctx, leader, item.ID)
	require.NoError(t, err)
	assert.Equal(t, attendance.RecordResult{Updated: 2}, res)

	rows := storetest.Rows(t, s, store.Attendance)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, "2025-03-12", r["date"])
		assert.Equal(t, "present", r["status"])
		assert.Equal(t, attendance.ScheduleNote("정기 모임"), r["note"])
	}
}
