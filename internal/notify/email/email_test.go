package email

import (
	"testing"
	"time"

	"github.com/polaris-class/clubhouse/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateEmailBody(t *testing.T) {
	n := New(&config.EmailConfig{Enabled: true, FromName: "Polaris"})

	body, err := n.generateEmailBody(Notification{
		To:      "kim@example.com",
		Name:    "김철수",
		Icon:    "📢",
		Title:   "새 공지",
		Message: "첫 줄\n<script>둘째 줄</script>",
		Link:    "https://club.example.com/board",
		Sent:    time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Contains(t, body, "김철수님")
	assert.Contains(t, body, "<p style=\"margin:0 0 8px 0;\">첫 줄</p>")
	assert.Contains(t, body, "&lt;script&gt;")
	assert.Contains(t, body, "https://club.example.com/board")
	assert.Contains(t, body, "2025-03-10 09:30 · Polaris")
}

func TestSendNotification_DisabledOrNoRecipient(t *testing.T) {
	disabled := New(&config.EmailConfig{Enabled: false})
	assert.False(t, disabled.Enabled())
	assert.NoError(t, disabled.SendNotification(Notification{To: "a@b.c", Title: "x"}))

	enabled := New(&config.EmailConfig{Enabled: true, SMTPHost: "localhost"})
	assert.NoError(t, enabled.SendNotification(Notification{Title: "no recipient"}))

	var nilService *NotificationService
	assert.False(t, nilService.Enabled())
}

func TestFromNameDefault(t *testing.T) {
	assert.Equal(t, "Clubhouse", New(&config.EmailConfig{}).fromName())
}
