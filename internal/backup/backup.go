// Package backup archives the CSV tables into timestamped zip files.
package backup

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ccoveille/go-safecast"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/mergestat/timediff"
	"github.com/natefinch/atomic"
)

const (
	prefix     = "backup_"
	suffix     = ".zip"
	nameLayout = "20060102_150405"
)

// ErrInvalidName is returned for names that are not backup archives in the backup dir.
var ErrInvalidName = errors.New("invalid backup name")

// Info describes one archive.
type Info struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	SizeHuman string    `json:"sizeHuman"`
	CreatedAt time.Time `json:"createdAt"`
	Age       string    `json:"age"`
}

// Service creates and prunes backups.
type Service struct {
	dataDir string
	dir     string
	now     func() time.Time
}

// New creates a backup service archiving dataDir into dir.
func New(dataDir, dir string) *Service {
	return &Service{dataDir: dataDir, dir: dir, now: time.Now}
}

// Dir returns the backup directory.
func (s *Service) Dir() string {
	return s.dir
}

// Create writes backup_YYYYMMDD_HHMMSS.zip containing every *.csv of the data dir.
func (s *Service) Create(ctx context.Context) (Info, error) {
	files, err := filepath.Glob(filepath.Join(s.dataDir, "*.csv"))
	if err != nil {
		return Info{}, fmt.Errorf("failed to list tables: %w", err)
	}
	sort.Strings(files)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return Info{}, err
		}
		if err := addFile(zw, f); err != nil {
			return Info{}, err
		}
	}
	if err := zw.Close(); err != nil {
		return Info{}, fmt.Errorf("failed to finish archive: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Info{}, fmt.Errorf("failed to create backup dir: %w", err)
	}
	created := s.now()
	name := prefix + created.Format(nameLayout) + suffix
	path := filepath.Join(s.dir, name)
	size := int64(buf.Len())
	if err := atomic.WriteFile(path, &buf); err != nil {
		return Info{}, fmt.Errorf("failed to write backup: %w", err)
	}

	log.Info("created backup", "file", name, "tables", len(files), "size", humanBytes(size))
	return s.info(name, size, created), nil
}

func addFile(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(st)
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(path)
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to archive %s: %w", path, err)
	}
	return nil
}

func humanBytes(n int64) string {
	u, err := safecast.Convert[uint64](n)
	if err != nil {
		return "0 B"
	}
	return humanize.Bytes(u)
}

func (s *Service) info(name string, size int64, created time.Time) Info {
	return Info{
		Name:      name,
		Size:      size,
		SizeHuman: humanBytes(size),
		CreatedAt: created,
		Age:       timediff.TimeDiff(created, timediff.WithStartTime(s.now())),
	}
}

// parseName returns the creation time encoded in an archive name.
func parseName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return time.Time{}, false
	}
	ts := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
	t, err := time.ParseInLocation(nameLayout, ts, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// List returns the archives in the backup dir, newest first. A missing dir is empty.
func (s *Service) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup dir: %w", err)
	}

	var out []Info
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		created, ok := parseName(e.Name())
		if !ok {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			log.Warn("failed to stat backup", "file", e.Name(), "error", err)
			continue
		}
		out = append(out, s.info(e.Name(), fi.Size(), created))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out, nil
}

// Path returns the full path of a listed archive.
func (s *Service) Path(name string) (string, error) {
	if name != filepath.Base(name) {
		return "", ErrInvalidName
	}
	if _, ok := parseName(name); !ok {
		return "", ErrInvalidName
	}
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}

// Prune deletes all but the newest keep archives and returns how many were removed.
// keep <= 0 keeps everything.
func (s *Service) Prune(keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	all, err := s.List()
	if err != nil {
		return 0, err
	}
	if len(all) <= keep {
		return 0, nil
	}

	removed := 0
	var errs []error
	for _, b := range all[keep:] {
		if err := os.Remove(filepath.Join(s.dir, b.Name)); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Info("pruned old backups", "removed", removed, "kept", keep)
	}
	return removed, errors.Join(errs...)
}

// Run creates a backup and prunes to keep archives. It is the body of the
// scheduled backup job.
func (s *Service) Run(ctx context.Context, keep int) error {
	if _, err := s.Create(ctx); err != nil {
		return err
	}
	_, err := s.Prune(keep)
	return err
}
