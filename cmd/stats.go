package cmd

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/spf13/cobra"
)

var statsCmdFlags struct {
	User   string
	Club   string
	Preset string
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show attendance statistics and record counts",
	Long: `Display attendance statistics of a user (--user) or a club (--club).
Without either flag, the row count of every CSV table and the disk usage of the
data directory are shown.`,
	Example: `clubhouse stats
clubhouse stats --user kim
clubhouse stats --club 코딩 --preset last_month`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsCmdFlags.User, "user", "", "Show the attendance summary of a user")
	statsCmd.Flags().StringVar(&statsCmdFlags.Club, "club", "", "Show the attendance report of a club")
	statsCmd.Flags().StringVar(&statsCmdFlags.Preset, "preset", "month", "Date range of the club report (today, this_week, this_month, last_week, last_month, month)")

	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	cfg, e, cleanup, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	switch {
	case statsCmdFlags.User != "":
		summary, err := e.Attendance.Summary(ctx, statsCmdFlags.User)
		if err != nil {
			return fmt.Errorf("failed to load summary: %w", err)
		}
		profile, err := e.Gamification.Profile(ctx, statsCmdFlags.User)
		if err != nil {
			return fmt.Errorf("failed to load profile: %w", err)
		}
		fmt.Fprintf(out, "User: %s\n", statsCmdFlags.User)
		printSummary(out, summary)
		fmt.Fprintf(out, "Points: %s (level %d), badges: %d\n", humanize.Comma(int64(profile.Points)), profile.Level, len(profile.Badges))
		return nil

	case statsCmdFlags.Club != "":
		report, err := e.Attendance.Report(ctx, systemActor, statsCmdFlags.Club, statsCmdFlags.Preset)
		if err != nil {
			return fmt.Errorf("failed to build report: %w", err)
		}
		fmt.Fprintf(out, "Club: %s (%s ~ %s)\n", statsCmdFlags.Club, report.From, report.To)
		printSummary(out, report.Summary)
		for _, u := range report.Users {
			fmt.Fprintf(out, "  %-12s %5.1f%%\n", u.Username, u.Rate)
		}
		if len(report.Perfect) > 0 {
			fmt.Fprintf(out, "Perfect attendance: %v\n", report.Perfect)
		}
		return nil
	}

	status, err := e.Admin.Status(ctx, systemActor)
	if err != nil {
		return fmt.Errorf("failed to collect stats: %w", err)
	}

	fmt.Fprintf(out, "Data directory: %s\n\n", cfg.DataDir)
	fmt.Fprintln(out, "Tables:")
	total := 0
	for _, t := range status.Tables {
		fmt.Fprintf(out, "  %-16s %8s\n", t.Table, humanize.Comma(int64(t.Rows)))
		total += t.Rows
	}
	fmt.Fprintf(out, "  %-16s %8s\n", "total", humanize.Comma(int64(total)))

	if d := status.Disk; d != nil {
		fmt.Fprintf(out, "\nDisk: %s used of %s (%.1f%%)\n", d.Used, d.Total, d.UsedPercent)
	}

	if backups, err := e.Backup.List(); err == nil {
		fmt.Fprintf(out, "Backups: %d\n", len(backups))
	}
	return nil
}

func printSummary(out io.Writer, s models.AttendanceSummary) {
	fmt.Fprintf(out, "Records: %d, rate: %.1f%% (grade %s), streak: %d\n", s.Total, s.Rate, s.Grade, s.Streak)
	for _, st := range []models.Status{models.StatusPresent, models.StatusLate, models.StatusEarlyLeave, models.StatusAbsent} {
		fmt.Fprintf(out, "  %s %-8s %d\n", st.Symbol(), st.Label(), s.Counts[st])
	}
}
