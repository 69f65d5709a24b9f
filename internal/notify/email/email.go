package email

import (
	"bytes"
	"crypto/tls"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/polaris-class/clubhouse/internal/config"
	mail "github.com/xhit/go-simple-mail/v2"
)

const defaultFromName = "Clubhouse"

// NotificationService delivers notifications by email.
type NotificationService struct {
	config *config.EmailConfig
}

// Notification is the content of one notification email.
type Notification struct {
	To      string
	Name    string
	Icon    string
	Title   string
	Message string
	Link    string
	Sent    time.Time
}

// templateData is what email.html renders.
type templateData struct {
	Notification
	Lines   []string
	AppName string
}

// New creates a new email notification service.
func New(cfg *config.EmailConfig) *NotificationService {
	return &NotificationService{
		config: cfg,
	}
}

// Enabled reports whether email delivery is configured.
func (n *NotificationService) Enabled() bool {
	return n != nil && n.config != nil && n.config.Enabled
}

// SendNotification sends one notification email.
func (n *NotificationService) SendNotification(notification Notification) error {
	if !n.Enabled() {
		log.Debug("Email notifications are disabled, skipping notification")
		return nil
	}

	if notification.To == "" {
		log.Warn("User email is empty, skipping notification", "user", notification.Name)
		return nil
	}

	body, err := n.generateEmailBody(notification)
	if err != nil {
		return fmt.Errorf("failed to generate email body: %w", err)
	}

	subject := fmt.Sprintf("[%s] %s", n.fromName(), notification.Title)
	return n.sendEmail(notification.To, subject, body)
}

//go:embed templates/*.html
var templatesFS embed.FS

// generateEmailBody creates the HTML email body.
func (n *NotificationService) generateEmailBody(notification Notification) (string, error) {
	t, err := template.New("").ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return "", err
	}

	if notification.Sent.IsZero() {
		notification.Sent = time.Now()
	}
	data := templateData{
		Notification: notification,
		Lines:        strings.Split(notification.Message, "\n"),
		AppName:      n.fromName(),
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "email.html", data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (n *NotificationService) fromName() string {
	if n.config == nil || n.config.FromName == "" {
		return defaultFromName
	}
	return n.config.FromName
}

// sendEmail sends an email using go-simple-mail library.
func (n *NotificationService) sendEmail(to, subject, body string) error {
	server := mail.NewSMTPClient()
	server.Host = n.config.SMTPHost
	server.Port = n.config.SMTPPort
	server.Username = n.config.Username
	server.Password = n.config.Password

	if n.config.UseSSL {
		server.Encryption = mail.EncryptionSSLTLS
	} else if n.config.UseTLS {
		server.Encryption = mail.EncryptionSTARTTLS
	} else {
		server.Encryption = mail.EncryptionNone
	}

	if n.config.InsecureSkipVerify {
		server.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	server.KeepAlive = false
	server.ConnectTimeout = 10 * time.Second
	server.SendTimeout = 10 * time.Second

	smtpClient, err := server.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func() {
		if closeErr := smtpClient.Close(); closeErr != nil {
			log.Warn("Failed to close SMTP client", "error", closeErr)
		}
	}()

	email := mail.NewMSG()
	email.SetFrom(fmt.Sprintf("%s <%s>", n.fromName(), n.config.FromEmail))
	email.AddTo(to)
	email.SetSubject(subject)
	email.SetBody(mail.TextHTML, body)

	if err := email.Send(smtpClient); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	log.Info("Email notification sent successfully", "to", to, "subject", subject)
	return nil
}
