package backup

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*Service, *time.Time) {
	t.Helper()
	data := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(data, "users.csv"), []byte("username,name\nkim,김철수\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(data, "clubs.csv"), []byte("name\n코딩\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(data, "clubhouse.db"), []byte("sqlite"), 0o644))

	clock := time.Date(2025, 3, 10, 3, 0, 0, 0, time.Local)
	svc := New(data, filepath.Join(t.TempDir(), "backups"))
	svc.now = func() time.Time { return clock }
	return svc, &clock
}

func TestCreate(t *testing.T) {
	svc, _ := newService(t)

	info, err := svc.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "backup_20250310_030000.zip", info.Name)
	assert.Positive(t, info.Size)
	assert.NotEmpty(t, info.SizeHuman)

	zr, err := zip.OpenReader(filepath.Join(svc.Dir(), info.Name))
	require.NoError(t, err)
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"clubs.csv", "users.csv"}, names, "only tables are archived")

	rc, err := zr.File[1].Open()
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "username,name\nkim,김철수\n", string(body))
}

func TestListAndPrune(t *testing.T) {
	ctx := context.Background()
	svc, clock := newService(t)

	list, err := svc.List()
	require.NoError(t, err)
	assert.Empty(t, list, "missing dir lists nothing")

	for range 4 {
		_, err := svc.Create(ctx)
		require.NoError(t, err)
		*clock = clock.Add(24 * time.Hour)
	}
	require.NoError(t, os.WriteFile(filepath.Join(svc.Dir(), "notes.txt"), []byte("x"), 0o644))

	list, err = svc.List()
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, "backup_20250313_030000.zip", list[0].Name)
	assert.Equal(t, "backup_20250310_030000.zip", list[3].Name)
	assert.NotEmpty(t, list[3].Age)

	removed, err := svc.Prune(0)
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = svc.Prune(2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	list, err = svc.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "backup_20250312_030000.zip", list[1].Name)
	assert.FileExists(t, filepath.Join(svc.Dir(), "notes.txt"))
}

func TestRun(t *testing.T) {
	svc, clock := newService(t)
	for range 3 {
		require.NoError(t, svc.Run(context.Background(), 1))
		*clock = clock.Add(time.Hour)
	}
	list, err := svc.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "backup_20250310_050000.zip", list[0].Name)
}

func TestPath(t *testing.T) {
	svc, _ := newService(t)
	info, err := svc.Create(context.Background())
	require.NoError(t, err)

	p, err := svc.Path(info.Name)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(svc.Dir(), info.Name), p)

	_, err = svc.Path("../users.csv")
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = svc.Path("notes.txt")
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = svc.Path("backup_20990101_000000.zip")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
