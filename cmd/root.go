package cmd

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/polaris-class/clubhouse/internal/config"
	"github.com/polaris-class/clubhouse/internal/database"
	"github.com/polaris-class/clubhouse/internal/engine"
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/spf13/cobra"
)

var rootCmdPersistentFlags struct {
	LogFile    string
	ConfigFile string
	LogLevel   string
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootCmdPersistentFlags.LogFile, "log-file", "", "File to write logs to")
	rootCmd.PersistentFlags().StringVarP(&rootCmdPersistentFlags.ConfigFile, "config", "c", "", "Path to config file (default: search for config.yml in current dir, ~/.clubhouse, /etc/clubhouse)")
	rootCmd.PersistentFlags().StringVar(&rootCmdPersistentFlags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

var rootCmd = &cobra.Command{
	Use:   "clubhouse",
	Short: "Clubhouse runs the club activity platform of a school",
	Long:  `Clubhouse tracks club attendance, posts, quizzes, assignments, votes and chat for students and teachers. All records are kept in CSV files inside the data directory.`,
	Example: `clubhouse serve --config config.yml
  clubhouse init --teacher admin --password changeme
  clubhouse backup --prune`,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		setLogLevel(rootCmdPersistentFlags.LogLevel)
		logToFile()
	},
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info", "":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Warnf("unknown log level %s, defaulting to info", level)
		log.SetLevel(log.InfoLevel)
	}
}

func logToFile() {
	if rootCmdPersistentFlags.LogFile == "" {
		return
	}
	file, err := os.OpenFile(rootCmdPersistentFlags.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		log.Errorf("failed to open log file: %v", err)
		return
	}

	// Create a multi-writer that writes to both console and file
	multiWriter := io.MultiWriter(os.Stderr, file)
	log.SetOutput(multiWriter)
	log.Info("logging to both console and file", "file", rootCmdPersistentFlags.LogFile)
}

// systemActor performs maintenance commands with teacher rights.
var systemActor = &models.Actor{
	Username: "system",
	Name:     "System",
	Role:     models.RoleTeacher,
}

// openEngine loads the config and builds an engine for one-shot commands.
// The returned cleanup closes the engine and the database.
func openEngine(ctx context.Context) (*config.Config, *engine.Engine, func(), error) {
	cfg, err := config.Load(rootCmdPersistentFlags.ConfigFile)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return nil, nil, nil, err
	}
	e, err := engine.New(ctx, cfg, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	return cfg, e, func() {
		_ = e.Close()
		_ = db.Close()
	}, nil
}

func Execute() error {
	return fang.Execute(context.Background(), rootCmd)
}
