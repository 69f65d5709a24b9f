package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type CacheType string

const (
	CacheTypeMemory CacheType = "memory"
	CacheTypeRedis  CacheType = "redis"
)

// Config holds the configuration for the clubhouse server and its dependencies.
type Config struct {
	// Listen is the address the server will listen on.
	Listen string `yaml:"listen" mapstructure:"listen"`
	// ServerURL is the public base URL of the server, used in notification links.
	ServerURL string `yaml:"server_url" mapstructure:"server_url"`
	// DataDir is the directory holding the CSV tables and uploads.
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`
	// Timezone is the IANA zone used to decide what "today" is.
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
	// SessionKey is the key used to sign session cookies.
	SessionKey string `yaml:"session_key" mapstructure:"session_key"`
	// SessionMaxAge is the maximum age of a session in seconds.
	SessionMaxAge int `yaml:"session_max_age" mapstructure:"session_max_age"`
	// APIKey grants read-only access to the export API. Empty disables it.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`

	// Auth holds the authentication configuration.
	Auth *AuthConfig `yaml:"auth" mapstructure:"auth"`
	// Database holds the side database configuration.
	Database *DatabaseConfig `yaml:"database" mapstructure:"database"`
	// Cache holds the cache engine configuration.
	Cache *CacheConfig `yaml:"cache" mapstructure:"cache"`
	// Backup holds the scheduled backup configuration.
	Backup *BackupConfig `yaml:"backup" mapstructure:"backup"`
	// Jobs holds the schedules of the background jobs.
	Jobs *JobsConfig `yaml:"jobs" mapstructure:"jobs"`
	// Email holds the email notification configuration.
	Email *EmailConfig `yaml:"email" mapstructure:"email"`
	// Ntfy holds the ntfy notification configuration.
	Ntfy *NtfyConfig `yaml:"ntfy" mapstructure:"ntfy"`
	// WebPush holds the webpush notification configuration.
	WebPush *WebPushConfig `yaml:"webpush" mapstructure:"webpush"`
	// Gravatar holds the configuration for Gravatar profile pictures.
	Gravatar *GravatarConfig `yaml:"gravatar" mapstructure:"gravatar"`
}

// AuthConfig holds the authentication configuration.
type AuthConfig struct {
	// Local enables username/password login against users.csv.
	Local *LocalAuthConfig `yaml:"local" mapstructure:"local"`
	// OIDC holds the OpenID Connect configuration.
	OIDC *OIDCConfig `yaml:"oidc" mapstructure:"oidc"`
}

// LocalAuthConfig holds the password login configuration.
type LocalAuthConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// DemoUser, when set, allows a one-click login as this username.
	DemoUser string `yaml:"demo_user" mapstructure:"demo_user"`
}

// OIDCConfig holds the OpenID Connect configuration.
type OIDCConfig struct {
	// Enabled indicates whether OIDC authentication is enabled.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Name is the display name for the OIDC provider.
	Name string `yaml:"name" mapstructure:"name"`
	// Issuer is the OIDC issuer URL.
	Issuer string `yaml:"issuer" mapstructure:"issuer"`
	// ClientID is the OIDC client ID.
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	// ClientSecret is the OIDC client secret.
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
	// RedirectURL is the redirect URL for the oidc flow.
	RedirectURL string `yaml:"redirect_url" mapstructure:"redirect_url"`
	// TeacherGroup members are treated as teachers regardless of users.csv.
	TeacherGroup string `yaml:"teacher_group" mapstructure:"teacher_group"`
}

// DatabaseConfig holds the side database configuration.
type DatabaseConfig struct {
	// Path is the path to the SQLite file.
	Path string `yaml:"path" mapstructure:"path"`
}

// CacheConfig holds the configuration for the cache engine.
type CacheConfig struct {
	// Type is the type of cache engine to use (e.g., "memory", "redis").
	Type CacheType `yaml:"type" mapstructure:"type"`
	// RedisURL is the address of the Redis server if using Redis.
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
	// TTL is how long computed statistics stay cached.
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// BackupConfig holds the scheduled backup configuration.
type BackupConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Schedule is a 5-field cron expression.
	Schedule string `yaml:"schedule" mapstructure:"schedule"`
	// Dir is where backup archives are written.
	Dir string `yaml:"dir" mapstructure:"dir"`
	// Retention is the number of archives to keep. 0 keeps everything.
	Retention int `yaml:"retention" mapstructure:"retention"`
}

// JobsConfig holds the cron schedules of the background jobs.
type JobsConfig struct {
	MonthlyRewardsSchedule string `yaml:"monthly_rewards_schedule" mapstructure:"monthly_rewards_schedule"`
	AbsenceDigestSchedule  string `yaml:"absence_digest_schedule" mapstructure:"absence_digest_schedule"`
}

// EmailConfig holds the email notification configuration.
type EmailConfig struct {
	// Enabled indicates whether email notifications are enabled.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// SMTPHost is the SMTP server host.
	SMTPHost string `yaml:"smtp_host" mapstructure:"smtp_host"`
	// SMTPPort is the SMTP server port.
	SMTPPort int `yaml:"smtp_port" mapstructure:"smtp_port"`
	// Username is the SMTP username.
	Username string `yaml:"username" mapstructure:"username"`
	// Password is the SMTP password.
	Password string `yaml:"password" mapstructure:"password"`
	// FromEmail is the email address from which notifications are sent.
	FromEmail string `yaml:"from_email" mapstructure:"from_email"`
	// FromName is the name from which notifications are sent.
	FromName string `yaml:"from_name" mapstructure:"from_name"`
	// UseTLS indicates whether to use STARTTLS for the SMTP connection.
	UseTLS bool `yaml:"use_tls" mapstructure:"use_tls"`
	// UseSSL indicates whether to use implicit TLS for the SMTP connection.
	UseSSL bool `yaml:"use_ssl" mapstructure:"use_ssl"`
	// InsecureSkipVerify indicates whether to skip TLS certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`
}

// NtfyConfig holds the ntfy notification configuration.
type NtfyConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	ServerURL string `yaml:"server_url" mapstructure:"server_url"`
	Topic     string `yaml:"topic" mapstructure:"topic"`
	Username  string `yaml:"username" mapstructure:"username"`
	Password  string `yaml:"password" mapstructure:"password"`
	Token     string `yaml:"token" mapstructure:"token"`
}

// WebPushConfig holds the webpush notification configuration.
type WebPushConfig struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	VAPIDEmail string `yaml:"vapid_email" mapstructure:"vapid_email"`
	PublicKey  string `yaml:"public_key" mapstructure:"public_key"`
	PrivateKey string `yaml:"private_key" mapstructure:"private_key"`
}

// GravatarConfig holds the configuration for Gravatar profile pictures.
type GravatarConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// DefaultImage is the image used when no Gravatar exists ("mp", "identicon", "robohash", ...).
	DefaultImage string `yaml:"default_image" mapstructure:"default_image"`
	// Rating is the maximum rating for Gravatar images ("g", "pg", "r", "x").
	Rating string `yaml:"rating" mapstructure:"rating"`
	// Size is the size of the Gravatar image in pixels (1-2048).
	Size int `yaml:"size" mapstructure:"size"`
}

// Load reads the configuration from the specified path and returns a Config struct.
// If path is empty, it searches the default locations. A missing file is not an
// error; defaults and CLUBHOUSE_ environment variables still apply.
func Load(path string) (*Config, error) {
	// a local .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("failed to load .env file", "error", err)
	}

	v := viper.New()

	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix("CLUBHOUSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.clubhouse")
		v.AddConfigPath("/etc/clubhouse")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Debug("no config file found, using defaults and environment")
	} else {
		log.Debug("Using config file", "file", v.ConfigFileUsed())
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	sanitizeConfig(&c)

	if err := validateConfig(&c); err != nil {
		return nil, err
	}

	return &c, nil
}

// setDefaults sets default values for the configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", "0.0.0.0:8501")
	v.SetDefault("server_url", "http://localhost:8501")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("timezone", "Asia/Seoul")
	v.SetDefault("session_key", "")
	v.SetDefault("session_max_age", 43200) // 12 hours
	v.SetDefault("api_key", "")

	v.SetDefault("auth.local.enabled", true)
	v.SetDefault("auth.local.demo_user", "")
	v.SetDefault("auth.oidc.enabled", false)
	v.SetDefault("auth.oidc.name", "OIDC")
	v.SetDefault("auth.oidc.issuer", "")
	v.SetDefault("auth.oidc.client_id", "")
	v.SetDefault("auth.oidc.client_secret", "")
	v.SetDefault("auth.oidc.redirect_url", "")
	v.SetDefault("auth.oidc.teacher_group", "")

	v.SetDefault("database.path", "./data/clubhouse.db")

	v.SetDefault("cache.type", CacheTypeMemory)
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", 10*time.Minute)

	v.SetDefault("backup.enabled", true)
	v.SetDefault("backup.schedule", "0 3 * * *") // every night at 03:00
	v.SetDefault("backup.dir", "./backups")
	v.SetDefault("backup.retention", 14)

	v.SetDefault("jobs.monthly_rewards_schedule", "10 0 1 * *")
	v.SetDefault("jobs.absence_digest_schedule", "0 18 * * 1-5")

	v.SetDefault("email.enabled", false)
	v.SetDefault("email.smtp_host", "")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.from_email", "")
	v.SetDefault("email.from_name", "Clubhouse")
	v.SetDefault("email.use_tls", true)
	v.SetDefault("email.use_ssl", false)
	v.SetDefault("email.insecure_skip_verify", false)

	v.SetDefault("ntfy.enabled", false)
	v.SetDefault("ntfy.server_url", "https://ntfy.sh")
	v.SetDefault("ntfy.topic", "clubhouse")
	v.SetDefault("ntfy.username", "")
	v.SetDefault("ntfy.password", "")
	v.SetDefault("ntfy.token", "")

	v.SetDefault("webpush.enabled", false)
	v.SetDefault("webpush.vapid_email", "")
	v.SetDefault("webpush.public_key", "")
	v.SetDefault("webpush.private_key", "")

	v.SetDefault("gravatar.enabled", false)
	v.SetDefault("gravatar.default_image", "identicon")
	v.SetDefault("gravatar.rating", "g")
	v.SetDefault("gravatar.size", 80)
}

// validateConfig validates the configuration.
func validateConfig(c *Config) error {
	if c == nil {
		return fmt.Errorf("missing clubhouse config")
	}

	if c.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}

	if c.SessionKey == "" {
		return fmt.Errorf("session key is required")
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	if c.Auth == nil {
		return fmt.Errorf("missing auth config")
	}

	authEnabled := c.Auth.Local != nil && c.Auth.Local.Enabled
	if c.Auth.OIDC != nil && c.Auth.OIDC.Enabled {
		authEnabled = true
		if c.Auth.OIDC.Issuer == "" {
			return fmt.Errorf("OIDC issuer is required when OIDC is enabled")
		}
		if c.Auth.OIDC.ClientID == "" {
			return fmt.Errorf("OIDC client ID is required when OIDC is enabled")
		}
		if c.Auth.OIDC.ClientSecret == "" {
			return fmt.Errorf("OIDC client secret is required when OIDC is enabled")
		}
		if c.Auth.OIDC.RedirectURL == "" {
			return fmt.Errorf("OIDC redirect URL is required when OIDC is enabled")
		}
	}
	if !authEnabled {
		return fmt.Errorf("at least one authentication method must be enabled")
	}

	if c.Cache != nil {
		if c.Cache.Type == "" {
			return fmt.Errorf("cache type is required when cache is enabled")
		}
		if c.Cache.Type == CacheTypeRedis && c.Cache.RedisURL == "" {
			return fmt.Errorf("Redis URL is required when Redis cache is enabled") //nolint:staticcheck
		}
	} else {
		c.Cache = &CacheConfig{Type: CacheTypeMemory, TTL: 10 * time.Minute}
	}

	if c.Backup != nil && c.Backup.Enabled {
		if err := validateCron("backup schedule", c.Backup.Schedule); err != nil {
			return err
		}
		if c.Backup.Dir == "" {
			return fmt.Errorf("backup dir is required when backups are enabled")
		}
		if c.Backup.Retention < 0 {
			return fmt.Errorf("backup retention must not be negative")
		}
	}

	if c.Jobs != nil {
		if err := validateCron("monthly rewards schedule", c.Jobs.MonthlyRewardsSchedule); err != nil {
			return err
		}
		if err := validateCron("absence digest schedule", c.Jobs.AbsenceDigestSchedule); err != nil {
			return err
		}
	}

	if c.Email != nil && c.Email.Enabled {
		if c.Email.SMTPHost == "" {
			return fmt.Errorf("SMTP host is required when email is enabled")
		}
		if c.Email.FromEmail == "" {
			return fmt.Errorf("from email is required when email is enabled")
		}
	}

	if c.WebPush != nil && c.WebPush.Enabled {
		if c.WebPush.PublicKey == "" || c.WebPush.PrivateKey == "" {
			return fmt.Errorf("VAPID keys are required when webpush is enabled")
		}
	}

	return nil
}

func validateCron(name, expr string) error {
	if expr == "" {
		return fmt.Errorf("%s is required", name)
	}
	if len(strings.Fields(expr)) != 5 {
		return fmt.Errorf("%s must be a valid cron expression with 5 fields (minute hour day month weekday)", name)
	}
	return nil
}

// sanitizeConfig sanitizes the configuration values.
func sanitizeConfig(c *Config) {
	if c == nil {
		return
	}

	c.Listen = urlSanitize(c.Listen)
	c.DataDir = strings.TrimSpace(c.DataDir)

	if c.ServerURL != "" {
		c.ServerURL = urlSanitize(c.ServerURL)
	}

	if c.Ntfy != nil {
		c.Ntfy.ServerURL = urlSanitize(c.Ntfy.ServerURL)
	}

	if c.Auth != nil && c.Auth.OIDC != nil {
		c.Auth.OIDC.Issuer = urlSanitize(c.Auth.OIDC.Issuer)
	}
}

func urlSanitize(url string) string {
	return strings.TrimSuffix(strings.TrimSpace(url), "/")
}

// Location returns the configured time zone, falling back to the local zone.
func (c *Config) Location() *time.Location {
	if c == nil || c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// SecureCookies reports whether session cookies must only travel over HTTPS,
// which is the case when the public server URL uses https.
func (c *Config) SecureCookies() bool {
	if c == nil {
		return false
	}
	return strings.HasPrefix(strings.ToLower(c.ServerURL), "https://")
}

// GetCacheTTL returns the statistics cache TTL with proper defaults.
func (c *Config) GetCacheTTL() time.Duration {
	if c == nil || c.Cache == nil || c.Cache.TTL <= 0 {
		return 10 * time.Minute
	}
	return c.Cache.TTL
}

// GetBackupRetention returns the number of backups to keep. 0 keeps everything.
func (c *Config) GetBackupRetention() int {
	if c == nil || c.Backup == nil || c.Backup.Retention < 0 {
		return 0
	}
	return c.Backup.Retention
}
