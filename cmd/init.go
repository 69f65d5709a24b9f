package cmd

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/polaris-class/clubhouse/internal/admin"
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/spf13/cobra"
)

var initCmdFlags struct {
	Teacher  string
	Name     string
	Email    string
	Password string
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the data directory and the first teacher account",
	Long: `Create the CSV tables with their headers, seed the default clubs and
optionally add a teacher account that can sign in with a password.`,
	Example: `clubhouse init
clubhouse init --teacher admin --name "Kim Teacher" --password changeme`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initCmdFlags.Teacher, "teacher", "", "Username of a teacher account to create")
	initCmd.Flags().StringVar(&initCmdFlags.Name, "name", "", "Display name of the teacher (default: the username)")
	initCmd.Flags().StringVar(&initCmdFlags.Email, "email", "", "Email of the teacher")
	initCmd.Flags().StringVar(&initCmdFlags.Password, "password", "", "Password of the teacher")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	cfg, e, cleanup, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	log.Info("data directory ready", "dir", cfg.DataDir)
	if initCmdFlags.Teacher == "" {
		return nil
	}

	name := initCmdFlags.Name
	if name == "" {
		name = initCmdFlags.Teacher
	}
	_, err = e.Admin.CreateUser(cmd.Context(), systemActor, admin.UserInput{
		Username: initCmdFlags.Teacher,
		Name:     name,
		Role:     models.RoleTeacher,
		Email:    initCmdFlags.Email,
		Password: initCmdFlags.Password,
	})
	if errors.Is(err, admin.ErrExists) {
		log.Warn("teacher account already exists", "username", initCmdFlags.Teacher)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create teacher: %w", err)
	}
	log.Info("teacher account created", "username", initCmdFlags.Teacher)
	return nil
}
