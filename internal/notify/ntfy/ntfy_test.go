package ntfy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/polaris-class/clubhouse/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, status int, got *[]Message, auth *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg Message
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		*got = append(*got, msg)
		if auth != nil {
			*auth = r.Header.Get("Authorization")
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte("nope"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSendNotification(t *testing.T) {
	var got []Message
	var auth string
	srv := newTestServer(t, http.StatusOK, &got, &auth)

	c := NewClient(&config.NtfyConfig{ServerURL: srv.URL, Topic: "club", Token: "tok"})
	err := c.SendNotification(context.Background(), "📢", "공지", "내일 모임", "notice", "kim", "https://x/board")
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "club", got[0].Topic)
	assert.Equal(t, "📢 공지", got[0].Title)
	assert.Contains(t, got[0].Message, "**To:** kim")
	assert.Equal(t, 3, got[0].Priority)
	assert.Equal(t, "https://x/board", got[0].Click)
	assert.Equal(t, "Bearer tok", auth)
}

func TestSendMessage_ErrorStatus(t *testing.T) {
	var got []Message
	srv := newTestServer(t, http.StatusForbidden, &got, nil)

	c := NewClient(&config.NtfyConfig{ServerURL: srv.URL, Topic: "club"})
	err := c.SendMessage(context.Background(), Message{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403: nope")
}

func TestSendAbsenceDigest(t *testing.T) {
	var got []Message
	srv := newTestServer(t, http.StatusOK, &got, nil)
	c := NewClient(&config.NtfyConfig{ServerURL: srv.URL, Topic: "club"})

	require.NoError(t, c.SendAbsenceDigest(context.Background(), "2025-03-10", nil))
	assert.Empty(t, got)

	require.NoError(t, c.SendAbsenceDigest(context.Background(), "2025-03-10", []AbsenceEntry{
		{Name: "김철수", Club: "코딩", Status: "absent"},
		{Name: "이영희", Club: "코딩", Status: "late"},
		{Name: "박민수", Club: "미술", Status: "absent"},
	}))
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Message, "**코딩:** 2")
	assert.Contains(t, got[0].Message, "**미술:** 1")
	assert.Contains(t, got[0].Message, "이영희 (late)")
}
