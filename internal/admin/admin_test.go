package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/polaris-class/clubhouse/internal/cache"
	"github.com/polaris-class/clubhouse/internal/config"
	"github.com/polaris-class/clubhouse/internal/database"
	"github.com/polaris-class/clubhouse/internal/database/mock"
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/polaris-class/clubhouse/internal/password"
	"github.com/polaris-class/clubhouse/internal/scheduler"
	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/polaris-class/clubhouse/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJobs struct {
	ran []string
}

func (f *fakeJobs) GetJobs() []scheduler.JobInfo {
	return []scheduler.JobInfo{{ID: "backup", Name: "Backup", Status: scheduler.JobStatusScheduled}}
}

func (f *fakeJobs) RunJobNow(id string) error {
	if id != "backup" {
		return errors.New("job not found")
	}
	f.ran = append(f.ran, id)
	return nil
}

var (
	teacher = &models.Actor{Username: "teacher", Name: "선생님", Role: models.RoleTeacher}
	kim     = &models.Actor{Username: "kim", Name: "김철수", Role: models.RoleMember,
		Clubs: []store.Membership{{Club: "코딩", Role: "member"}}}
)

func newService(t *testing.T) (*Service, *store.Store, *fakeJobs, *mock.MockDB) {
	t.Helper()
	s := storetest.New(t)
	storetest.Seed(t, s, store.Users,
		storetest.User("teacher", "선생님", "teacher", "", ""),
		storetest.User("kim", "김철수", "member", "코딩", "member"),
		storetest.User("kim", "김철수", "member", "댄스", "treasurer"),
		storetest.User("lee", "이영희", "member", "댄스", "member"),
	)
	ec, err := cache.NewEngineCache(&config.CacheConfig{Type: config.CacheTypeMemory}, time.Minute)
	require.NoError(t, err)
	jobs := &fakeJobs{}
	db := mock.NewMockDB()
	return New(s, jobs, ec, db), s, jobs, db
}

func TestRequiresTeacher(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newService(t)

	_, err := svc.Users(ctx, kim)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.CreateUser(ctx, kim, UserInput{Username: "x", Name: "x", Password: "pass"})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Status(ctx, kim)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, svc.RunJob(ctx, kim, "backup"), ErrForbidden)
	assert.ErrorIs(t, svc.DeleteClub(ctx, kim, "코딩"), ErrForbidden)
}

func TestUsers(t *testing.T) {
	svc, _, _, _ := newService(t)

	accounts, err := svc.Users(context.Background(), teacher)
	require.NoError(t, err)
	require.Len(t, accounts, 3)
	assert.Equal(t, "kim", accounts[0].Username)
	assert.Equal(t, []store.Membership{{Club: "코딩", Role: "member"}, {Club: "댄스", Role: "treasurer"}}, accounts[0].Clubs)
	assert.Equal(t, "teacher", accounts[2].Username)
	assert.Empty(t, accounts[2].Clubs)
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	svc, s, _, _ := newService(t)

	acc, err := svc.CreateUser(ctx, teacher, UserInput{
		Username: "park",
		Name:     "박지민",
		Email:    "park@example.com",
		Password: "secret",
		Clubs:    []store.Membership{{Club: "코딩", Role: "president"}, {Club: "만들기", Role: "member"}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, acc.Role)
	assert.True(t, acc.HasPassword)
	assert.Len(t, acc.Clubs, 2)

	memberships, err := s.UserClubs(ctx, "park")
	require.NoError(t, err)
	assert.Len(t, memberships, 2)

	var hash string
	for _, r := range storetest.Rows(t, s, store.Users) {
		if r["username"] == "park" {
			hash = r["password_hash"]
		}
	}
	assert.True(t, password.Check(hash, "secret"))

	_, err = svc.CreateUser(ctx, teacher, UserInput{Username: "park", Name: "다른 박", Password: "secret"})
	assert.ErrorIs(t, err, ErrExists)

	tests := map[string]UserInput{
		"bad username":  {Username: "a b", Name: "x", Password: "secret"},
		"reserved name": {Username: "all", Name: "x", Password: "secret"},
		"no name":       {Username: "choi", Password: "secret"},
		"bad role":      {Username: "choi", Name: "x", Role: "admin", Password: "secret"},
		"short pass":    {Username: "choi", Name: "x", Password: "123"},
		"unknown club":  {Username: "choi", Name: "x", Password: "secret", Clubs: []store.Membership{{Club: "없는동아리", Role: "member"}}},
		"teacher role":  {Username: "choi", Name: "x", Password: "secret", Clubs: []store.Membership{{Club: "코딩", Role: "teacher"}}},
		"duplicate":     {Username: "choi", Name: "x", Password: "secret", Clubs: []store.Membership{{Club: "코딩", Role: "member"}, {Club: "코딩", Role: "president"}}},
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateUser(ctx, teacher, in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestUpdateUser(t *testing.T) {
	ctx := context.Background()
	svc, s, _, _ := newService(t)

	name := "김철수2"
	pass := "newpass"
	acc, err := svc.UpdateUser(ctx, teacher, "kim", UserPatch{Name: &name, Password: &pass})
	require.NoError(t, err)
	assert.Equal(t, "김철수2", acc.Name)
	assert.Len(t, acc.Clubs, 2, "memberships are kept")

	clubs := []store.Membership{{Club: "만들기", Role: "president"}}
	acc, err = svc.UpdateUser(ctx, teacher, "kim", UserPatch{Clubs: &clubs})
	require.NoError(t, err)
	assert.Equal(t, clubs, acc.Clubs)
	assert.Equal(t, "김철수2", acc.Name)

	var rows []store.Record
	for _, r := range storetest.Rows(t, s, store.Users) {
		if r["username"] == "kim" {
			rows = append(rows, r)
		}
	}
	require.Len(t, rows, 1)
	assert.True(t, password.Check(rows[0]["password_hash"], "newpass"))
	assert.Equal(t, "kim@example.com", rows[0]["email"])

	_, err = svc.UpdateUser(ctx, teacher, "nobody", UserPatch{Name: &name})
	assert.ErrorIs(t, err, store.ErrNotFound)
	bad := models.Role("admin")
	_, err = svc.UpdateUser(ctx, teacher, "kim", UserPatch{Role: &bad})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDeleteUser(t *testing.T) {
	ctx := context.Background()
	svc, s, _, _ := newService(t)

	assert.ErrorIs(t, svc.DeleteUser(ctx, teacher, "teacher"), ErrInvalidInput)
	require.NoError(t, svc.DeleteUser(ctx, teacher, "kim"))
	assert.Len(t, storetest.Rows(t, s, store.Users), 2)
	assert.ErrorIs(t, svc.DeleteUser(ctx, teacher, "kim"), store.ErrNotFound)
}

func TestClubs(t *testing.T) {
	ctx := context.Background()
	svc, s, _, _ := newService(t)

	clubs, err := svc.Clubs(ctx)
	require.NoError(t, err)
	require.Len(t, clubs, len(store.DefaultClubs))
	for _, c := range clubs {
		if c.Name == "댄스" {
			assert.Equal(t, 2, c.Members)
		}
	}

	c, err := svc.CreateClub(ctx, teacher, models.Club{Name: "로봇", Icon: "🤖"})
	require.NoError(t, err)
	assert.Equal(t, 20, c.MaxMembers)
	assert.NotEmpty(t, c.CreatedDate)
	_, err = svc.CreateClub(ctx, teacher, models.Club{Name: "로봇"})
	assert.ErrorIs(t, err, ErrExists)
	_, err = svc.CreateClub(ctx, teacher, models.Club{Name: "all"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	desc := "로봇을 만드는 동아리"
	maxMembers := 8
	require.NoError(t, svc.UpdateClub(ctx, teacher, "로봇", ClubPatch{Description: &desc, MaxMembers: &maxMembers}))
	zero := 0
	assert.ErrorIs(t, svc.UpdateClub(ctx, teacher, "로봇", ClubPatch{MaxMembers: &zero}), ErrInvalidInput)
	assert.ErrorIs(t, svc.UpdateClub(ctx, teacher, "없음", ClubPatch{Description: &desc}), store.ErrNotFound)

	clubs, err = svc.Clubs(ctx)
	require.NoError(t, err)
	last := clubs[len(clubs)-1]
	assert.Equal(t, desc, last.Description)
	assert.Equal(t, 8, last.MaxMembers)

	require.NoError(t, svc.DeleteClub(ctx, teacher, "댄스"))
	kimClubs, err := s.UserClubs(ctx, "kim")
	require.NoError(t, err)
	assert.Equal(t, []store.Membership{{Club: "코딩", Role: "member"}}, kimClubs)
	leeClubs, err := s.UserClubs(ctx, "lee")
	require.NoError(t, err)
	assert.Empty(t, leeClubs)
	assert.Len(t, storetest.Rows(t, s, store.Users), 3, "lee keeps a row without a club")
}

func TestStatusAndJobs(t *testing.T) {
	ctx := context.Background()
	svc, _, jobs, _ := newService(t)

	st, err := svc.Status(ctx, teacher)
	require.NoError(t, err)
	assert.NotNil(t, st.Disk)
	assert.Len(t, st.Cache, 3)
	require.Len(t, st.Jobs, 1)
	counts := map[string]int{}
	for _, tc := range st.Tables {
		counts[tc.Table] = tc.Rows
	}
	assert.Equal(t, 4, counts[store.Users])
	assert.Equal(t, len(store.DefaultClubs), counts[store.Clubs])
	assert.Zero(t, counts[store.Posts])

	require.NoError(t, svc.RunJob(ctx, teacher, "backup"))
	assert.Error(t, svc.RunJob(ctx, teacher, "nope"))
	assert.Equal(t, []string{"backup"}, jobs.ran)

	require.NoError(t, svc.ClearCache(ctx, teacher))
}

func TestAuditLog(t *testing.T) {
	ctx := context.Background()
	svc, _, _, db := newService(t)
	for i := range 5 {
		require.NoError(t, db.CreateAuditEvent(ctx, database.AuditEvent{
			Target:    store.Posts,
			Action:    "added",
			EventTime: time.Date(2025, 3, 10, 9, i, 0, 0, time.UTC),
		}))
	}

	page, err := svc.AuditLog(ctx, teacher, store.Posts, 2, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 5, page.Total)
	assert.Equal(t, 3, page.Pages)
	assert.Len(t, page.Events, 2)

	_, err = svc.AuditLog(ctx, kim, "", 1, 10)
	assert.ErrorIs(t, err, ErrForbidden)
}
