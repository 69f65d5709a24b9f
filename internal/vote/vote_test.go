package vote

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

var (
	teacher = &models.Actor{Username: "teacher", Name: "선생님", Role: models.RoleTeacher}
	kim     = &models.Actor{Username: "kim", Name: "김철수", Role: models.RoleMember,
		Clubs: []store.Membership{{Club: "코딩", Role: "member"}}}
	park = &models.Actor{Username: "park", Name: "박지민", Role: models.RoleMember,
		Clubs: []store.Membership{{Club: "코딩", Role: "member"}}}
	lee = &models.Actor{Username: "lee", Name: "이영희", Role: models.RoleMember,
		Clubs: []store.Membership{{Club: "댄스", Role: "member"}}}
)

func newService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	s := storetest.New(t)
	svc := New(s, nil, time.UTC)
	svc.now = func() time.Time { return storetest.Now }
	return svc, s
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	v, err := svc.Create(ctx, kim, Input{Title: "티셔츠 색상", Club: "코딩", Options: []string{" 빨강 ", "파랑", "", "파랑", "a|b"}, EndDate: "2025-03-15"})
	require.NoError(t, err)
	assert.Equal(t, "빨강|파랑|a b", v.Options)
	assert.Equal(t, []string{"빨강", "파랑", "a b"}, v.OptionList())

	_, err = svc.Create(ctx, kim, Input{Title: "x", Club: "코딩", Options: []string{"하나", " "}})
	assert.ErrorIs(t, err, ErrInvalidVote)
	_, err = svc.Create(ctx, kim, Input{Title: "x", Club: "코딩", Options: []string{"a", "b"}, EndDate: "soon"})
	assert.ErrorIs(t, err, ErrInvalidVote)
	_, err = svc.Create(ctx, kim, Input{Title: "x", Club: "댄스", Options: []string{"a", "b"}})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Create(ctx, kim, Input{Title: "x", Club: models.AllClubs, Options: []string{"a", "b"}})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCast_OneBallotPerUser(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	v, err := svc.Create(ctx, kim, Input{Title: "티셔츠 색상", Club: "코딩", Options: []string{"빨강", "파랑"}})
	require.NoError(t, err)

	b, err := svc.Cast(ctx, kim, v.ID, "빨강")
	require.NoError(t, err)
	assert.Equal(t, v.ID, b.VoteID)

	_, err = svc.Cast(ctx, kim, v.ID, "파랑")
	assert.ErrorIs(t, err, ErrAlreadyVoted)
	_, err = svc.Cast(ctx, park, v.ID, "초록")
	assert.ErrorIs(t, err, ErrInvalidVote)
	_, err = svc.Cast(ctx, lee, v.ID, "빨강")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Cast(ctx, kim, 99, "빨강")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.Len(t, storetest.Rows(t, s, store.VoteBallots), 1)
}

func TestCast_Concurrent(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	v, err := svc.Create(ctx, kim, Input{Title: "티셔츠 색상", Club: "코딩", Options: []string{"빨강", "파랑"}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Cast(ctx, kim, v.ID, "파랑")
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyVoted)
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, storetest.Rows(t, s, store.VoteBallots), 1)
}

func TestCast_AfterEndDate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	ended, err := svc.Create(ctx, kim, Input{Title: "지난 투표", Club: "코딩", Options: []string{"a", "b"}, EndDate: "2025-03-09"})
	require.NoError(t, err)
	today, err := svc.Create(ctx, kim, Input{Title: "오늘 마감", Club: "코딩", Options: []string{"a", "b"}, EndDate: "2025-03-10"})
	require.NoError(t, err)

	_, err = svc.Cast(ctx, kim, ended.ID, "a")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = svc.Cast(ctx, kim, today.ID, "a")
	assert.NoError(t, err, "the end date itself is still open")
}

func TestTallyAndList(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	v, err := svc.Create(ctx, teacher, Input{Title: "소풍 장소", Club: models.AllClubs, Options: []string{"산", "바다", "공원"}})
	require.NoError(t, err)
	old, err := svc.Create(ctx, kim, Input{Title: "지난 투표", Club: "코딩", Options: []string{"a", "b"}, EndDate: "2025-01-01"})
	require.NoError(t, err)

	for actor, opt := range map[*models.Actor]string{kim: "바다", park: "바다", lee: "산"} {
		_, err := svc.Cast(ctx, actor, v.ID, opt)
		require.NoError(t, err)
	}

	tally, err := svc.Tally(ctx, kim, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, tally.Total)
	assert.Equal(t, "바다", tally.MyOption)
	assert.Equal(t, []OptionCount{
		{Option: "산", Count: 1, Percent: 33.3},
		{Option: "바다", Count: 2, Percent: 66.7},
		{Option: "공원", Count: 0, Percent: 0},
	}, tally.Options)
	assert.Equal(t, []string{"바다"}, tally.Winners())

	list, err := svc.List(ctx, kim)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, v.ID, list[0].Vote.ID)
	assert.Equal(t, old.ID, list[1].Vote.ID)
	assert.True(t, list[1].Closed)
	assert.Nil(t, list[1].Winners())

	list, err = svc.List(ctx, lee)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	v, err := svc.Create(ctx, kim, Input{Title: "티셔츠 색상", Club: "코딩", Options: []string{"빨강", "파랑"}})
	require.NoError(t, err)
	_, err = svc.Cast(ctx, park, v.ID, "빨강")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, park, v.ID), ErrForbidden)
	require.NoError(t, svc.Delete(ctx, kim, v.ID))
	assert.Empty(t, storetest.Rows(t, s, store.Votes))
	assert.Empty(t, storetest.Rows(t, s, store.VoteBallots))
}
