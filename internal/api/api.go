package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/polaris-class/clubhouse/internal/api/auth"
	"github.com/polaris-class/clubhouse/internal/api/handler"
	"github.com/polaris-class/clubhouse/internal/api/models"
	"github.com/polaris-class/clubhouse/internal/config"
	"github.com/polaris-class/clubhouse/internal/engine"
)

// defaultSessionMaxAge is used when the config leaves session_max_age unset.
const defaultSessionMaxAge = 8 * 3600

type Server struct {
	cfg          *config.Config
	ginEngine    *gin.Engine
	engine       *engine.Engine
	authProvider *auth.Provider
}

func New(ctx context.Context, cfg *config.Config, e *engine.Engine, debug bool) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if e == nil {
		return nil, fmt.Errorf("engine is required")
	}

	authProvider, err := auth.New(ctx, cfg.Auth, e.Store(), e.Gravatar())
	if err != nil {
		return nil, fmt.Errorf("failed to create auth provider: %w", err)
	}

	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:          cfg,
		ginEngine:    gin.New(),
		authProvider: authProvider,
		engine:       e,
	}
	s.ginEngine.Use(gin.Recovery(), requestLogger())
	s.setupRoutes()
	s.setupAdminRoutes()
	return s, nil
}

// requestLogger logs every request through the application logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client", c.ClientIP(),
		)
	}
}

func (s *Server) setupSession() {
	maxAge := s.cfg.SessionMaxAge
	if maxAge <= 0 {
		maxAge = defaultSessionMaxAge
	}
	store := cookie.NewStore([]byte(s.cfg.SessionKey))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
	s.ginEngine.Use(sessions.Sessions("clubhouse_session", store))
}

func (s *Server) setupRoutes() {
	s.setupSession()
	s.ginEngine.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{models.ImageRoute})))

	h := handler.New(s.engine, s.cfg.Location())
	push := handler.NewWebPushHandler(s.engine.WebPush())

	s.ginEngine.GET("/auth/methods", s.authMethods)
	if s.authProvider.HasLocal() {
		s.ginEngine.POST("/login", s.authProvider.Login)
		s.ginEngine.POST("/login/demo", s.authProvider.DemoLogin)
	}
	if s.authProvider.HasOIDC() {
		s.ginEngine.GET("/auth/oidc/login", s.authProvider.OIDC().Login)
		s.ginEngine.GET("/auth/oidc/callback", s.authProvider.OIDC().Callback)
	}
	s.ginEngine.GET("/api/push/vapid-key", push.GetVAPIDKey)

	protected := s.ginEngine.Group("/")
	protected.Use(s.authProvider.RequireAuth())
	protected.POST("/logout", s.authProvider.Logout)

	api := protected.Group("/api")
	api.GET("/me", h.Me)
	api.GET("/dashboard", h.Dashboard)
	api.GET("/clubs", h.Clubs)
	api.GET("/clubs/:name/members", h.ClubMembers)

	// Attendance
	api.POST("/attendance/checkin", h.CheckIn)
	api.POST("/attendance/checkin/code", h.RedeemCode)
	api.GET("/attendance", h.ListAttendance)
	api.GET("/attendance/summary", h.AttendanceSummary)
	leader := api.Group("/attendance", auth.RequireLeader())
	leader.POST("/record", h.RecordAttendance)
	leader.POST("/bulk", h.BulkStatus)
	leader.GET("/report", h.AttendanceReport)
	leader.GET("/absentees", h.Absentees)
	leader.POST("/codes", h.IssueCode)

	// Gamification
	api.GET("/profile", h.MyProfile)
	api.GET("/leaderboard", h.Leaderboard)

	// Board
	api.GET("/posts", h.ListPosts)
	api.POST("/posts", h.CreatePost)
	api.GET("/posts/:id", h.GetPost)
	api.PATCH("/posts/:id", h.EditPost)
	api.DELETE("/posts/:id", h.DeletePost)
	api.POST("/posts/:id/like", h.LikePost)
	api.POST("/posts/:id/comments", h.CommentPost)
	api.GET(strings.TrimPrefix(models.ImageRoute, "/api")+"*path", h.PostImage)

	// Quiz
	api.GET("/quizzes", h.ListQuizzes)
	api.POST("/quizzes", h.CreateQuiz)
	api.GET("/quizzes/scores", h.MyQuizScores)
	api.POST("/quizzes/:id/start", h.StartQuiz)
	api.POST("/quizzes/:id/submit", h.SubmitQuiz)
	api.PUT("/quizzes/:id/status", h.SetQuizStatus)
	api.GET("/quizzes/:id/analytics", h.QuizAnalytics)
	api.DELETE("/quizzes/:id", h.DeleteQuiz)

	// Search
	api.GET("/search", h.Search)
	api.GET("/search/recent", h.RecentSearches)
	api.DELETE("/search/recent", h.ClearRecentSearches)
	api.GET("/search/suggestions", h.SearchSuggestions)

	// Chat
	api.GET("/chat", h.ChatRooms)
	api.GET("/chat/:club", h.ChatHistory)
	api.POST("/chat/:club", h.SendChat)
	api.DELETE("/chat/messages/:id", h.DeleteChat)

	// Assignments
	api.GET("/assignments", h.ListAssignments)
	api.POST("/assignments", h.CreateAssignment)
	api.POST("/assignments/:id/submit", h.SubmitAssignment)
	api.GET("/assignments/:id/submissions", h.ListSubmissions)
	api.POST("/assignments/:id/close", h.CloseAssignment)
	api.DELETE("/assignments/:id", h.DeleteAssignment)
	api.PUT("/submissions/:id/grade", h.GradeSubmission)

	// Schedule
	api.GET("/schedule", h.UpcomingSchedule)
	api.POST("/schedule", h.CreateSchedule)
	api.DELETE("/schedule/:id", h.DeleteSchedule)
	api.POST("/schedule/:id/attendance", h.StartScheduleAttendance)

	// Votes
	api.GET("/votes", h.ListVotes)
	api.POST("/votes", h.CreateVote)
	api.GET("/votes/:id", h.GetVote)
	api.POST("/votes/:id/ballot", h.CastVote)
	api.DELETE("/votes/:id", h.DeleteVote)

	// Notifications
	api.GET("/notifications", h.ListNotifications)
	api.GET("/notifications/unread", h.UnreadNotifications)
	api.POST("/notifications/:id/read", h.MarkNotificationRead)
	api.POST("/notifications/read", h.MarkAllNotificationsRead)

	// Web push
	api.POST("/push/subscribe", push.Subscribe)
	api.POST("/push/unsubscribe", push.Unsubscribe)
	api.POST("/push/unsubscribe/endpoint", push.UnsubscribeByEndpoint)
	api.GET("/push/status", push.GetSubscriptionStatus)
	api.POST("/push/test", push.TestNotification)

	// Export API for external tools
	export := handler.NewExport(s.engine)
	v1 := s.ginEngine.Group("/api/v1")
	v1.GET("/health", export.Health)
	keyed := v1.Group("/", auth.RequireAPIKey(s.cfg.APIKey))
	keyed.GET("/tables", export.Tables)
	keyed.GET("/tables/:table", export.ExportTable)
	keyed.GET("/users/:username/summary", export.ExportSummary)
}

func (s *Server) setupAdminRoutes() {
	adminGroup := s.ginEngine.Group("/api/admin")
	h := handler.NewAdmin(s.engine, s.cfg.GetBackupRetention())
	adminGroup.Use(s.authProvider.RequireAuth(), auth.RequireTeacher())

	adminGroup.GET("/status", h.Status)
	adminGroup.GET("/audit", h.AuditLog)
	adminGroup.POST("/jobs/:id/run", h.RunJob)
	adminGroup.POST("/cache/clear", h.ClearCache)

	adminGroup.GET("/users", h.ListUsers)
	adminGroup.POST("/users", h.CreateUser)
	adminGroup.PUT("/users/:username", h.UpdateUser)
	adminGroup.DELETE("/users/:username", h.DeleteUser)

	adminGroup.POST("/clubs", h.CreateClub)
	adminGroup.PUT("/clubs/:name", h.UpdateClub)
	adminGroup.DELETE("/clubs/:name", h.DeleteClub)

	adminGroup.GET("/backups", h.ListBackups)
	adminGroup.POST("/backups", h.CreateBackup)
	adminGroup.GET("/backups/:name", h.DownloadBackup)
}

func (s *Server) authMethods(c *gin.Context) {
	c.JSON(http.StatusOK, s.authProvider.Methods())
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.ginEngine
}

func (s *Server) Run() error {
	return s.ginEngine.Run(s.cfg.Listen)
}
