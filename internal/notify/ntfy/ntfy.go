package ntfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/polaris-class/clubhouse/internal/config"
)

// Client represents a ntfy notification client.
type Client struct {
	serverURL  string
	topic      string
	username   string
	password   string
	token      string
	httpClient *http.Client
}

// Message represents a ntfy message.
type Message struct {
	Topic    string            `json:"topic"`
	Title    string            `json:"title"`
	Message  string            `json:"message"`
	Priority int               `json:"priority,omitempty"`
	Tags     []string          `json:"tags,omitempty"`
	Click    string            `json:"click,omitempty"`
	Actions  []Action          `json:"actions,omitempty"`
	Extras   map[string]string `json:"extras,omitempty"`
}

// Action represents a ntfy action button.
type Action struct {
	Action string `json:"action"`
	Label  string `json:"label"`
	URL    string `json:"url,omitempty"`
	Method string `json:"method,omitempty"`
}

// NewClient creates a new ntfy client.
func NewClient(cfg *config.NtfyConfig) *Client {
	if cfg.ServerURL != "" {
		if _, err := url.Parse(cfg.ServerURL); err != nil {
			log.Errorf("Invalid ntfy server URL: %v", err)
		}
	}

	return &Client{
		serverURL: cfg.ServerURL,
		topic:     cfg.Topic,
		username:  cfg.Username,
		password:  cfg.Password,
		token:     cfg.Token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SendMessage sends a message to ntfy.
func (c *Client) SendMessage(ctx context.Context, msg Message) error {
	if c.topic != "" {
		msg.Topic = c.topic
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Markdown", "yes")

	// token takes precedence over username/password
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		var errorMsg strings.Builder
		if b, _ := io.ReadAll(io.LimitReader(resp.Body, 256)); len(b) > 0 {
			errorMsg.WriteString(": ")
			errorMsg.Write(b)
		}
		return fmt.Errorf("ntfy server returned status %d%s", resp.StatusCode, errorMsg.String())
	}

	log.Debug("Sent ntfy notification", "topic", msg.Topic, "title", msg.Title)
	return nil
}

// priorityFor maps a notification type to a ntfy priority.
func priorityFor(kind string) int {
	switch kind {
	case "warning", "alert":
		return 4
	case "notice":
		return 3
	default:
		return 2
	}
}

// SendNotification publishes a club notification to the configured topic.
// link, when set, opens the app on click.
func (c *Client) SendNotification(ctx context.Context, icon, title, message, kind, recipient, link string) error {
	var b strings.Builder
	b.WriteString(message)
	if recipient != "" && recipient != "all" {
		fmt.Fprintf(&b, "\n\n👤 **To:** %s", recipient)
	}

	msg := Message{
		Title:    strings.TrimSpace(icon + " " + title),
		Message:  b.String(),
		Priority: priorityFor(kind),
		Tags:     []string{"clubhouse", kind},
		Click:    link,
	}
	return c.SendMessage(ctx, msg)
}

// AbsenceEntry is one member in the daily absence digest.
type AbsenceEntry struct {
	Name   string
	Club   string
	Status string
}

// SendAbsenceDigest sends the daily list of absent and late members.
func (c *Client) SendAbsenceDigest(ctx context.Context, date string, entries []AbsenceEntry) error {
	if len(entries) == 0 {
		log.Debug("No absences, skipping ntfy digest")
		return nil
	}

	byClub := make(map[string][]AbsenceEntry)
	var clubs []string
	for _, e := range entries {
		if _, ok := byClub[e.Club]; !ok {
			clubs = append(clubs, e.Club)
		}
		byClub[e.Club] = append(byClub[e.Club], e)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📅 **%s**\n", date)
	for _, club := range clubs {
		fmt.Fprintf(&b, "\n🏫 **%s:** %d\n", club, len(byClub[club]))
		for _, e := range byClub[club] {
			fmt.Fprintf(&b, "  • %s (%s)\n", e.Name, e.Status)
		}
	}

	return c.SendMessage(ctx, Message{
		Title:    "📋 Absence Digest",
		Message:  b.String(),
		Priority: 3,
		Tags:     []string{"clubhouse", "attendance"},
	})
}
