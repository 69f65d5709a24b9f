package attendance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/polaris-class/clubhouse/internal/database/mock"
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/polaris-class/clubhouse/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type badgeSpy struct {
	mu    sync.Mutex
	users []string
}

func (b *badgeSpy) CheckAndAward(_ context.Context, username string) ([]models.Badge, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users = append(b.users, username)
	return []models.Badge{{Username: username, BadgeName: "첫 걸음"}}, nil
}

var (
	teacher = &models.Actor{Username: "teacher", Name: "선생님", Role: models.RoleTeacher}
	leader  = &models.Actor{Username: "cho", Name: "조성우", Role: models.RoleMember,
		Clubs: []store.Membership{{Club: "코딩", Role: "president"}}}
	member = &models.Actor{Username: "kim", Name: "김철수", Role: models.RoleMember,
		Clubs: []store.Membership{{Club: "코딩", Role: "member"}}}
)

func newService(t *testing.T) (*Service, *store.Store, *mock.MockDB, *badgeSpy) {
	t.Helper()
	s := storetest.New(t)
	storetest.Seed(t, s, store.Users,
		storetest.User("cho", "조성우", "member", "코딩", "president"),
		storetest.User("kim", "김철수", "member", "코딩", "member"),
		storetest.User("lee", "이영희", "member", "댄스", "member"),
	)
	db := mock.NewMockDB()
	spy := &badgeSpy{}
	svc := New(s, db, spy, nil, time.UTC)
	svc.now = func() time.Time { return storetest.Now }
	return svc, s, db, spy
}

func TestSelfCheckIn(t *testing.T) {
	ctx := context.Background()
	svc, s, _, spy := newService(t)

	res, err := svc.SelfCheckIn(ctx, member, "코딩", models.StatusLate, " ")
	require.NoError(t, err)
	assert.Equal(t, 5, res.Points)
	assert.Equal(t, "2025-03-10", res.Record.Date)
	assert.Equal(t, SelfCheckInNote, res.Record.Note)
	assert.Equal(t, "김철수", res.Record.RecordedBy)
	assert.Equal(t, 1, res.Record.ID)
	assert.Len(t, res.NewBadges, 1)
	assert.Equal(t, []string{"kim"}, spy.users)

	_, err = svc.SelfCheckIn(ctx, member, "댄스", models.StatusPresent, "")
	assert.ErrorIs(t, err, ErrNotMember)

	_, err = svc.SelfCheckIn(ctx, member, "코딩", "sleeping", "")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	assert.Len(t, storetest.Rows(t, s, store.Attendance), 1)
}

func TestRecord_UpsertsPerUserClubAndDate(t *testing.T) {
	ctx := context.Background()
	svc, s, _, _ := newService(t)
	storetest.Seed(t, s, store.Attendance,
		storetest.Attendance("kim", "코딩", "2025-03-10", "absent"),
		storetest.Attendance("kim", "코딩", "2025-03-09", "present"),
	)

	res, err := svc.Record(ctx, leader, "코딩", "2025-03-10", []Entry{
		{Username: "kim", Status: models.StatusPresent},
		{Username: "cho", Status: models.StatusLate, Note: "버스"},
	})
	require.NoError(t, err)
	assert.Equal(t, RecordResult{Added: 1, Updated: 1}, res)

	rows := storetest.Rows(t, s, store.Attendance)
	require.Len(t, rows, 3)
	assert.Equal(t, "present", rows[0]["status"])
	assert.Equal(t, "조성우", rows[0]["recorded_by"])
	assert.Equal(t, "present", rows[1]["status"], "other dates are untouched")
	assert.Equal(t, "3", rows[2]["id"])
	assert.Equal(t, "late", rows[2]["status"])
	assert.Equal(t, "버스", rows[2]["note"])
}

func TestRecord_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newService(t)

	_, err := svc.Record(ctx, member, "코딩", "2025-03-10", nil)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Record(ctx, leader, "댄스", "2025-03-10", nil)
	assert.ErrorIs(t, err, ErrForbidden, "presidents only lead their own club")

	_, err = svc.Record(ctx, leader, "코딩", "10/03/2025", nil)
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = svc.Record(ctx, teacher, "댄스", "2025-03-10", []Entry{{Username: "lee", Status: "nap"}})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = svc.Record(ctx, leader, "코딩", "2025-03-10", []Entry{{Username: "lee", Status: models.StatusPresent}})
	assert.ErrorIs(t, err, ErrNotMember, "members of other clubs are rejected")

	_, err = svc.Record(ctx, teacher, "코딩", "2025-03-10", []Entry{
		{Username: "kim", Status: models.StatusPresent},
		{Username: "ghost", Status: models.StatusPresent},
	})
	assert.ErrorIs(t, err, ErrNotMember, "unknown users are rejected")

	_, err = svc.BulkStatus(ctx, leader, "코딩", "2025-03-10", []string{"kim", "nobody"}, models.StatusAbsent, "")
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestBulkStatus(t *testing.T) {
	ctx := context.Background()
	svc, s, _, spy := newService(t)

	res, err := svc.BulkStatus(ctx, teacher, "코딩", "2025-03-10", []string{"kim", "cho"}, models.StatusAbsent, "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
	assert.ElementsMatch(t, []string{"kim", "cho"}, spy.users)

	for _, r := range storetest.Rows(t, s, store.Attendance) {
		assert.Equal(t, "absent", r["status"])
	}
}

func TestList_Visibility(t *testing.T) {
	ctx := context.Background()
	svc, s, _, _ := newService(t)
	storetest.Seed(t, s, store.Attendance,
		storetest.Attendance("kim", "코딩", "2025-03-08", "present"),
		storetest.Attendance("cho", "코딩", "2025-03-09", "late"),
		storetest.Attendance("lee", "댄스", "2025-03-10", "absent"),
	)

	all, err := svc.List(ctx, teacher, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "lee", all[0].Username, "newest first")

	led, err := svc.List(ctx, leader, Filter{})
	require.NoError(t, err)
	assert.Len(t, led, 2)

	own, err := svc.List(ctx, member, Filter{})
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "kim", own[0].Username)

	late, err := svc.List(ctx, teacher, Filter{Status: models.StatusLate})
	require.NoError(t, err)
	assert.Len(t, late, 1)

	ranged, err := svc.List(ctx, teacher, Filter{From: "2025-03-09", To: "2025-03-09"})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "cho", ranged[0].Username)
}

func TestSummaryAndReport(t *testing.T) {
	ctx := context.Background()
	svc, s, _, _ := newService(t)
	storetest.Seed(t, s, store.Attendance,
		storetest.Attendance("kim", "코딩", "2025-03-03", "present"),
		storetest.Attendance("kim", "코딩", "2025-03-10", "present"),
		storetest.Attendance("cho", "코딩", "2025-03-10", "absent"),
		storetest.Attendance("lee", "댄스", "2025-03-10", "present"),
	)

	summary, err := svc.Summary(ctx, "kim")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 100.0, summary.Rate)
	assert.Equal(t, 2, summary.Streak)

	_, err = svc.Report(ctx, member, "", PresetThisMonth)
	assert.ErrorIs(t, err, ErrForbidden)

	report, err := svc.Report(ctx, leader, "", PresetThisMonth)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01", report.From)
	assert.Equal(t, "2025-03-31", report.To)
	assert.Equal(t, 3, report.Summary.Total, "only led clubs are reported")
	require.Len(t, report.Clubs, 1)
	assert.Equal(t, []string{"kim"}, report.Perfect)

	report, err = svc.Report(ctx, teacher, models.AllClubs, PresetToday)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Summary.Total)
	assert.Len(t, report.Clubs, 2)
}

func TestAbsentees(t *testing.T) {
	ctx := context.Background()
	svc, s, _, _ := newService(t)
	storetest.Seed(t, s, store.Attendance,
		storetest.Attendance("kim", "코딩", "2025-03-10", "absent"),
		storetest.Attendance("cho", "코딩", "2025-03-10", "late"),
		storetest.Attendance("lee", "댄스", "2025-03-10", "absent"),
		storetest.Attendance("kim", "코딩", "2025-03-09", "absent"),
	)

	a, err := svc.Absentees(ctx, "2025-03-10", "")
	require.NoError(t, err)
	assert.Len(t, a.Absent, 2)
	assert.Len(t, a.Late, 1)
	assert.False(t, a.Empty())

	a, err = svc.Absentees(ctx, "2025-03-10", "댄스")
	require.NoError(t, err)
	assert.Len(t, a.Absent, 1)
	assert.Empty(t, a.Late)

	a, err = svc.Absentees(ctx, "2025-03-11", "")
	require.NoError(t, err)
	assert.True(t, a.Empty())
}

func TestStartFromSchedule(t *testing.T) {
	ctx := context.Background()
	svc, s, _, _ := newService(t)
	item := models.ScheduleItem{ID: 1, Title: "정기 모임", Club: "코딩", Date: "2025-03-12"}

	_, err := svc.StartFromSchedule(ctx, member, item)
	assert.ErrorIs(t, err, ErrForbidden)

	res, err := svc.StartFromSchedule(ctx, leader, item)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)

	rows := storetest.Rows(t, s, store.Attendance)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, "present", r["status"])
		assert.Equal(t, "일정 '정기 모임' 참석", r["note"])
		assert.Equal(t, "2025-03-12", r["date"])
	}

	res, err = svc.StartFromSchedule(ctx, teacher, models.ScheduleItem{Title: "전체 조회", Club: models.AllClubs, Date: "2025-03-12"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Added, "club all covers every user")
}

func TestQRCheckIn(t *testing.T) {
	ctx := context.Background()
	svc, s, db, _ := newService(t)

	_, err := svc.IssueCode(ctx, member, "코딩", 0)
	assert.ErrorIs(t, err, ErrForbidden)

	code, err := svc.IssueCode(ctx, leader, "코딩", 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, storetest.Now.Add(24*time.Hour), code.ExpiresAt)
	assert.Equal(t, "2025-03-10", code.Date)

	res, err := svc.RedeemCode(ctx, member, code.Code)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPresent, res.Record.Status)
	assert.Equal(t, QRCheckInNote, res.Record.Note)
	assert.Equal(t, 10, res.Points)

	_, err = svc.RedeemCode(ctx, member, code.Code)
	require.NoError(t, err)
	assert.Len(t, storetest.Rows(t, s, store.Attendance), 1, "second redemption updates the same row")

	stored, err := db.GetCheckInCode(ctx, code.Code)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Redeemed)

	outsider := &models.Actor{Username: "lee", Name: "이영희", Clubs: []store.Membership{{Club: "댄스", Role: "member"}}}
	_, err = svc.RedeemCode(ctx, outsider, code.Code)
	assert.ErrorIs(t, err, ErrNotMember)

	_, err = svc.RedeemCode(ctx, member, "nope")
	assert.ErrorIs(t, err, ErrInvalidCode)

	svc.now = func() time.Time { return storetest.Now.Add(25 * time.Hour) }
	_, err = svc.RedeemCode(ctx, member, code.Code)
	assert.ErrorIs(t, err, ErrCodeExpired)
	assert.ErrorIs(t, err, ErrInvalidCode)
}
