package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/polaris-class/clubhouse/internal/config"
	"github.com/polaris-class/clubhouse/internal/database/mock"
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/polaris-class/clubhouse/internal/notification"
	"github.com/polaris-class/clubhouse/internal/scheduler"
	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/polaris-class/clubhouse/internal/store/storetest"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		ServerURL: "http://localhost:8501",
		DataDir:   filepath.Join(dir, "data"),
		Timezone:  "UTC",
		Cache:     &config.CacheConfig{Type: config.CacheTypeMemory, TTL: time.Minute},
		Backup: &config.BackupConfig{
			Enabled:   true,
			Schedule:  "0 3 * * *",
			Dir:       filepath.Join(dir, "backups"),
			Retention: 2,
		},
		Jobs: &config.JobsConfig{
			MonthlyRewardsSchedule: "10 0 1 * *",
			AbsenceDigestSchedule:  "0 18 * * 1-5",
		},
	}
}

func newEngine(t *testing.T) (*Engine, *mock.MockDB) {
	t.Helper()
	db := mock.NewMockDB()
	e, err := New(context.Background(), testConfig(t), db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e, db
}

func TestNew(t *testing.T) {
	e, _ := newEngine(t)

	ids := lo.Map(e.GetScheduler().GetJobs(), func(j scheduler.JobInfo, _ int) string { return j.ID })
	assert.ElementsMatch(t, []string{"backup", "monthly_rewards", "absence_digest", "clear_cache", "housekeeping"}, ids)

	clubs := storetest.Rows(t, e.Store(), store.Clubs)
	assert.Len(t, clubs, len(store.DefaultClubs))
	assert.Nil(t, e.WebPush())
	assert.False(t, e.Gravatar().Enabled())
}

func TestNew_BackupDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backup.Enabled = false
	cfg.Jobs = nil
	e, err := New(context.Background(), cfg, mock.NewMockDB())
	require.NoError(t, err)
	defer e.Close()

	_, ok := e.GetScheduler().GetJob("backup")
	assert.False(t, ok)
	_, ok = e.GetScheduler().GetJob("housekeeping")
	assert.True(t, ok)
}

func TestRecordAudit(t *testing.T) {
	e, db := newEngine(t)
	ctx := store.WithActor(context.Background(), "teacher")

	rec := storetest.User("kim", "김철수", "member", "코딩", "member")
	rec["password_hash"] = "secret-hash"
	_, err := e.Store().Add(ctx, store.Users, rec)
	require.NoError(t, err)
	require.NoError(t, e.Store().Delete(context.Background(), store.Users, "kim"))

	events := db.AuditEvents()
	require.Len(t, events, 2)
	assert.Equal(t, store.Users, events[0].Target)
	assert.Equal(t, "added", events[0].Action)
	assert.Equal(t, "kim", events[0].RecordKey)
	assert.Equal(t, "teacher", events[0].Actor)
	assert.Contains(t, events[0].Details, "김철수")
	assert.NotContains(t, events[0].Details, "secret-hash")
	assert.Equal(t, "deleted", events[1].Action)
	assert.Empty(t, events[1].Actor)
}

func TestAbsenceDigestJob(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	today := e.Attendance.Today().Format(models.DateLayout)

	storetest.Seed(t, e.Store(), store.Users,
		storetest.User("jo", "조성우", "member", "코딩", "president"),
		storetest.User("kim", "김철수", "member", "코딩", "member"),
		storetest.User("lee", "이영희", "member", "코딩", "member"),
	)
	storetest.Seed(t, e.Store(), store.Attendance,
		storetest.Attendance("kim", "코딩", today, "absent"),
		storetest.Attendance("lee", "코딩", today, "late"),
	)

	require.NoError(t, e.runAbsenceDigestJob(ctx))

	notes, err := e.Notifications.ForUser(ctx, "jo")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "코딩 결석/지각 알림", notes[0].Title)
	assert.Equal(t, notification.TypeWarning, notes[0].Type)
	assert.Contains(t, notes[0].Message, "김철수 (결석)")
	assert.Contains(t, notes[0].Message, "이영희 (지각)")

	kimNotes, err := e.Notifications.ForUser(ctx, "kim")
	require.NoError(t, err)
	assert.Empty(t, kimNotes)
}

func TestBackupAndHousekeepingJobs(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	require.NoError(t, e.runBackupJob(ctx))
	backups, err := e.Backup.List()
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	require.NoError(t, e.runHousekeepingJob(ctx))
	require.NoError(t, e.runMonthlyRewardsJob(ctx))
}
