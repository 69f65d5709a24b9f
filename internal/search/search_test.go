package search

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/polaris-class/clubhouse/internal/database/mock"
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
)

func newService(t *testing.T) (*Service, *mock.MockDB) {
	t.Helper()
	s := storetest.New(t)
	storetest.Seed(t, s, store.Users,
		storetest.User("kim", "김철수", "member", "코딩", "member"),
		storetest.User("lee", "이영희", "member", "댄스", "member"),
		storetest.User("park", "박코딩", "member", "코딩", "president"),
	)
	storetest.Seed(t, s, store.Posts,
		store.Record{"title": "코딩 대회 안내", "content": "파이썬 대회", "author": "park", "club": "코딩", "tags": "대회", "created_date": "2025-03-09 10:00:00"},
		store.Record{"title": "댄스 공연", "content": "코딩과 무관", "author": "lee", "club": "댄스", "created_date": "2025-03-09 11:00:00"},
		store.Record{"title": "전체 공지", "content": "코딩 동아리 모집", "author": "teacher", "club": "all", "created_date": "2025-01-02 10:00:00"},
	)
	storetest.Seed(t, s, store.ChatLogs,
		store.Record{"username": "kim", "club": "코딩", "message": "코딩 숙제 했어?", "timestamp": "2025-03-10 08:00:00", "deleted": "false"},
		store.Record{"username": "kim", "club": "코딩", "message": "코딩 삭제된 메시지", "timestamp": "2025-03-10 08:01:00", "deleted": "true"},
	)
	storetest.Seed(t, s, store.Assignments,
		store.Record{"title": "코딩 과제 1", "description": "반복문", "club": "코딩", "creator": "park", "due_date": "2025-03-20", "status": "open", "created_date": "2025-03-01 09:00:00"},
		store.Record{"title": "지난 과제", "description": "조건문", "club": "코딩", "creator": "park", "due_date": "2025-03-01", "status": "open", "created_date": "2025-02-01 09:00:00"},
	)
	storetest.Seed(t, s, store.Schedule,
		store.Record{"title": "정기 모임", "description": "코딩 실습", "club": "코딩", "date": "2025-03-12", "time": "15:00", "location": "컴퓨터실", "creator": "park", "created_date": "2025-03-05 09:00:00"},
	)
	storetest.Seed(t, s, store.Votes,
		store.Record{"title": "코딩 티셔츠", "description": "색상 투표", "options": "빨강|파랑", "club": "코딩", "creator": "park", "end_date": "2025-03-05", "created_date": "2025-03-01 09:00:00"},
	)

	db := mock.NewMockDB()
	svc := New(s, db, time.UTC)
	svc.now = func() time.Time { return storetest.Now }
	return svc, db
}

func TestSearch_TeacherSeesEverything(t *testing.T) {
	svc, _ := newService(t)

	res, err := svc.Search(context.Background(), teacher, Query{Text: "코딩"})
	require.NoError(t, err)
	assert.Len(t, res.ByType[TypePosts], 3)
	assert.Equal(t, "댄스 공연", res.ByType[TypePosts][0].Title, "newest first")
	assert.Len(t, res.ByType[TypeChats], 1, "deleted messages are skipped")
	assert.Len(t, res.ByType[TypeAssignments], 1)
	assert.Len(t, res.ByType[TypeSchedules], 1)
	require.Len(t, res.ByType[TypeVotes], 1)
	assert.Contains(t, res.ByType[TypeVotes][0].ExtraInfo, "마감")
	require.Len(t, res.ByType[TypeUsers], 1)
	assert.Equal(t, "👤 박코딩", res.ByType[TypeUsers][0].Title)
	assert.Equal(t, 8, res.Total)
}

func TestSearch_MembersAreRestrictedToTheirClubs(t *testing.T) {
	svc, _ := newService(t)

	res, err := svc.Search(context.Background(), kim, Query{Text: "코딩", Types: []string{TypePosts, TypeUsers}})
	require.NoError(t, err)
	require.Len(t, res.ByType, 2)
	titles := []string{}
	for _, r := range res.ByType[TypePosts] {
		titles = append(titles, r.Title)
	}
	assert.ElementsMatch(t, []string{"코딩 대회 안내", "전체 공지"}, titles)

	res, err = svc.Search(context.Background(), kim, Query{Text: "이영희", Types: []string{TypeUsers}})
	require.NoError(t, err)
	assert.Empty(t, res.ByType[TypeUsers], "users of other clubs are hidden")
}

func TestSearch_Filters(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	res, err := svc.Search(ctx, teacher, Query{Text: "코딩", Types: []string{TypePosts}, Club: "댄스"})
	require.NoError(t, err)
	require.Len(t, res.ByType[TypePosts], 1)
	assert.Equal(t, "댄스 공연", res.ByType[TypePosts][0].Title)

	res, err = svc.Search(ctx, teacher, Query{Text: "코딩", Types: []string{TypePosts}, Range: RangeMonth})
	require.NoError(t, err)
	assert.Len(t, res.ByType[TypePosts], 2, "January post is outside this month")

	res, err = svc.Search(ctx, teacher, Query{Text: "코딩", Types: []string{TypeChats}, Range: RangeToday})
	require.NoError(t, err)
	assert.Len(t, res.ByType[TypeChats], 1)

	res, err = svc.Search(ctx, teacher, Query{Text: "대회", Types: []string{TypePosts, "bogus"}})
	require.NoError(t, err)
	assert.Len(t, res.ByType, 1)
	assert.Len(t, res.ByType[TypePosts], 1, "tags are searched")

	_, err = svc.Search(ctx, teacher, Query{Text: "  "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestRecentSearches(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	for _, q := range []string{"코딩", "대회", "코딩"} {
		_, err := svc.Search(ctx, kim, Query{Text: q})
		require.NoError(t, err)
	}
	recent, err := svc.Recent(ctx, "kim")
	require.NoError(t, err)
	assert.Equal(t, []string{"코딩", "대회"}, recent)

	require.NoError(t, svc.ClearRecent(ctx, "kim"))
	recent, err = svc.Recent(ctx, "kim")
	require.NoError(t, err)
	assert.Empty(t, recent)

	db.AddRecentSearchError = errors.New("db down")
	_, err = svc.Search(ctx, kim, Query{Text: "코딩"})
	assert.NoError(t, err, "history failures do not fail the search")
}

func TestSuggest(t *testing.T) {
	svc, _ := newService(t)

	s, err := svc.Suggest(context.Background(), kim)
	require.NoError(t, err)
	assert.Len(t, s.Posts, 2)
	require.Len(t, s.Assignments, 1, "past-due assignments are not suggested")
	assert.Equal(t, "코딩 과제 1", s.Assignments[0].Title)
	require.Len(t, s.Schedules, 1)
	assert.Equal(t, "정기 모임", s.Schedules[0].Title)
}

func TestRangeStart(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), RangeStart(RangeToday, now))
	assert.Equal(t, time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC), RangeStart(RangeWeek, now))
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), RangeStart(RangeMonth, now))
	assert.Equal(t, time.Date(2024, 12, 10, 9, 30, 0, 0, time.UTC), RangeStart(RangeQuarter, now))
	assert.True(t, RangeStart(RangeAll, now).IsZero())
}

func TestTruncateAndHighlight(t *testing.T) {
	long := strings.Repeat("가", 250)
	assert.Equal(t, strings.Repeat("가", 200)+"...", Truncate(long))
	assert.Equal(t, "짧은 글", Truncate("짧은 글"))

	assert.Equal(t, "<mark>Go</mark> and <mark>go</mark>", Highlight("Go and go", "go"))
	assert.Equal(t, "&lt;b&gt;<mark>코딩</mark>", Highlight("<b>코딩", "코딩"))
	assert.Equal(t, "a.b", Highlight("a.b", " "))
	assert.Equal(t, "x<mark>.</mark>y", Highlight("x.y", "."))
}
