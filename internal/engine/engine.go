package engine

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/polaris-class/clubhouse/internal/admin"
	"github.com/polaris-class/clubhouse/internal/assignment"
	"github.com/polaris-class/clubhouse/internal/attendance"
	"github.com/polaris-class/clubhouse/internal/backup"
	"github.com/polaris-class/clubhouse/internal/board"
	"github.com/polaris-class/clubhouse/internal/cache"
	"github.com/polaris-class/clubhouse/internal/chat"
	"github.com/polaris-class/clubhouse/internal/config"
	"github.com/polaris-class/clubhouse/internal/dashboard"
	"github.com/polaris-class/clubhouse/internal/database"
	"github.com/polaris-class/clubhouse/internal/gamification"
	"github.com/polaris-class/clubhouse/internal/gravatar"
	"github.com/polaris-class/clubhouse/internal/notification"
	"github.com/polaris-class/clubhouse/internal/notify/email"
	"github.com/polaris-class/clubhouse/internal/notify/ntfy"
	"github.com/polaris-class/clubhouse/internal/notify/webpush"
	"github.com/polaris-class/clubhouse/internal/quiz"
	"github.com/polaris-class/clubhouse/internal/schedule"
	"github.com/polaris-class/clubhouse/internal/scheduler"
	"github.com/polaris-class/clubhouse/internal/search"
	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/polaris-class/clubhouse/internal/vote"
)

// Services are the domain services of the club app.
type Services struct {
	Notifications *notification.Service
	Attendance    *attendance.Service
	Gamification  *gamification.Service
	Board         *board.Service
	Quiz          *quiz.Service
	Search        *search.Service
	Chat          *chat.Service
	Assignments   *assignment.Service
	Schedule      *schedule.Service
	Votes         *vote.Service
	Backup        *backup.Service
	Admin         *admin.Service
	Dashboard     *dashboard.Service
}

// Engine owns the record store, the side database and every service built on them.
// It runs the background jobs.
type Engine struct {
	Services

	cfg       *config.Config
	store     *store.Store
	db        database.DB
	cache     *cache.EngineCache
	scheduler *scheduler.Scheduler
	ntfy      *ntfy.Client
	webpush   *webpush.Client
	gravatar  *gravatar.Resolver
}

// New creates a new Engine instance. The store is initialised on disk.
func New(ctx context.Context, cfg *config.Config, db database.DB) (*Engine, error) {
	loc := cfg.Location()

	sched, err := scheduler.New(loc)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	engineCache, err := cache.NewEngineCache(cfg.Cache, cfg.GetCacheTTL())
	if err != nil {
		return nil, fmt.Errorf("failed to create engine cache: %w", err)
	}

	s := store.New(cfg.DataDir)
	if err := s.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialise data dir: %w", err)
	}

	var emailService *email.NotificationService
	if cfg.Email != nil {
		emailService = email.New(cfg.Email)
	}

	var ntfyClient *ntfy.Client
	if cfg.Ntfy != nil && cfg.Ntfy.Enabled {
		ntfyClient = ntfy.NewClient(cfg.Ntfy)
	}

	var webpushClient *webpush.Client
	if cfg.WebPush != nil && cfg.WebPush.Enabled {
		webpushClient = webpush.NewClient(cfg.WebPush, db)
	}

	notes := notification.New(s, cfg.ServerURL,
		notification.NewEmailChannel(emailService),
		notification.NewNtfyChannel(ntfyClient),
		notification.NewWebPushChannel(webpushClient),
	)
	games := gamification.New(s, engineCache, notes, loc)
	att := attendance.New(s, db, games, engineCache, loc)
	assignments := assignment.New(s, notes, loc)

	backupDir := filepath.Join(cfg.DataDir, "backups")
	if cfg.Backup != nil && cfg.Backup.Dir != "" {
		backupDir = cfg.Backup.Dir
	}

	e := &Engine{
		Services: Services{
			Notifications: notes,
			Attendance:    att,
			Gamification:  games,
			Board:         board.New(s, notes, cfg.DataDir),
			Quiz:          quiz.New(s, games, notes),
			Search:        search.New(s, db, loc),
			Chat:          chat.New(s, loc),
			Assignments:   assignments,
			Schedule:      schedule.New(s, notes, att, loc),
			Votes:         vote.New(s, notes, loc),
			Backup:        backup.New(cfg.DataDir, backupDir),
			Admin:         admin.New(s, sched, engineCache, db),
			Dashboard:     dashboard.New(s, notes, assignments, games),
		},
		cfg:       cfg,
		store:     s,
		db:        db,
		cache:     engineCache,
		scheduler: sched,
		ntfy:      ntfyClient,
		webpush:   webpushClient,
		gravatar:  gravatar.New(cfg.Gravatar),
	}

	s.Observe(engineCache.Invalidate)
	s.Observe(e.recordAudit)

	if err := e.setupJobs(); err != nil {
		return nil, fmt.Errorf("failed to setup jobs: %w", err)
	}

	log.Info("engine ready", "dataDir", cfg.DataDir, "tables", len(s.Tables()))
	return e, nil
}

// Store returns the record store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// GetScheduler returns the scheduler instance for API access.
func (e *Engine) GetScheduler() *scheduler.Scheduler {
	return e.scheduler
}

// WebPush returns the web push client, nil when web push is disabled.
func (e *Engine) WebPush() *webpush.Client {
	return e.webpush
}

// Gravatar returns the avatar URL resolver.
func (e *Engine) Gravatar() *gravatar.Resolver {
	return e.gravatar
}

// Run starts the engine and all its background jobs.
func (e *Engine) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	e.scheduler.Start()

	<-ctx.Done()
	return nil
}

// Close stops the engine and cleans up resources.
func (e *Engine) Close() error {
	return e.scheduler.Stop()
}
