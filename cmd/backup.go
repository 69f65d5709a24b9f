package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var backupCmdFlags struct {
	Prune bool
	List  bool
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create a zip backup of the CSV tables",
	Long:  `Create a zip archive of every CSV table in the data directory. With --prune, old archives beyond the configured retention are removed.`,
	RunE:  runBackup,
}

func init() {
	backupCmd.Flags().BoolVar(&backupCmdFlags.Prune, "prune", false, "Remove archives beyond the configured retention")
	backupCmd.Flags().BoolVar(&backupCmdFlags.List, "list", false, "List existing archives instead of creating one")

	rootCmd.AddCommand(backupCmd)
}

func runBackup(cmd *cobra.Command, _ []string) error {
	cfg, e, cleanup, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	out := cmd.OutOrStdout()
	if backupCmdFlags.List {
		list, err := e.Backup.List()
		if err != nil {
			return fmt.Errorf("failed to list backups: %w", err)
		}
		if len(list) == 0 {
			fmt.Fprintln(out, "No backups found.")
		}
		for _, b := range list {
			fmt.Fprintf(out, "%s  %8s  %s\n", b.Name, b.SizeHuman, b.Age)
		}
		return nil
	}

	info, err := e.Backup.Create(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	fmt.Fprintf(out, "Created %s (%s) in %s\n", info.Name, info.SizeHuman, e.Backup.Dir())

	if backupCmdFlags.Prune {
		removed, err := e.Backup.Prune(cfg.GetBackupRetention())
		if err != nil {
			return fmt.Errorf("failed to prune backups: %w", err)
		}
		fmt.Fprintf(out, "Removed %d old backup(s)\n", removed)
	}
	return nil
}
