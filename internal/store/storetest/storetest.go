// Package storetest provides record store fixtures for tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/stretchr/testify/require"
)

// Now is the fixed clock of stores created by New: Monday 2025-03-10 09:30:00 UTC.
var Now = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

// New creates an initialised store in a temp dir with the clock fixed at Now.
func New(t *testing.T) *store.Store {
	t.Helper()
	return NewAt(t, Now)
}

// NewAt creates an initialised store whose clock is fixed at now.
func NewAt(t *testing.T, now time.Time) *store.Store {
	t.Helper()
	s := store.New(t.TempDir(), store.WithClock(func() time.Time { return now }))
	require.NoError(t, s.Init(context.Background()))
	return s
}

// Seed appends rows to a table.
func Seed(t *testing.T, s *store.Store, table string, rows ...store.Record) {
	t.Helper()
	for _, r := range rows {
		_, err := s.Add(context.Background(), table, r)
		require.NoError(t, err)
	}
}

// User builds a users row.
func User(username, name, role, club, clubRole string) store.Record {
	return store.Record{
		"username":  username,
		"name":      name,
		"role":      role,
		"club_name": club,
		"club_role": clubRole,
		"email":     username + "@example.com",
	}
}

// Attendance builds an attendance row.
func Attendance(username, club, date, status string) store.Record {
	return store.Record{
		"username":    username,
		"club":        club,
		"date":        date,
		"status":      status,
		"recorded_by": "test",
	}
}

// Rows loads a table and returns its rows.
func Rows(t *testing.T, s *store.Store, table string) []store.Record {
	t.Helper()
	tbl, err := s.Load(context.Background(), table)
	require.NoError(t, err)
	return tbl.Rows
}
