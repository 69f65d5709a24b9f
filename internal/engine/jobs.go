package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron/v2"
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/polaris-class/clubhouse/internal/notification"
	"github.com/polaris-class/clubhouse/internal/notify/ntfy"
	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/samber/lo"
)

// Retention of housekeeping data.
const (
	auditRetention        = 180 * 24 * time.Hour
	notificationRetention = 30 * 24 * time.Hour
)

// Fixed job schedules.
const (
	clearCacheSchedule   = "0 0 * * 0" // every Sunday at midnight
	housekeepingSchedule = "30 4 * * *"
)

// setupJobs configures all scheduled jobs.
func (e *Engine) setupJobs() error {
	if e.cfg.Backup != nil && e.cfg.Backup.Enabled {
		if err := e.scheduler.AddSingletonJob(
			"backup",
			"Data Backup",
			"Archives every CSV table into the backup dir",
			e.cfg.Backup.Schedule,
			gocron.CronJob(e.cfg.Backup.Schedule, false),
			e.runBackupJob,
			false,
		); err != nil {
			return fmt.Errorf("failed to add backup job: %w", err)
		}
	}

	if e.cfg.Jobs != nil {
		if err := e.scheduler.AddSingletonJob(
			"monthly_rewards",
			"Monthly Rewards",
			"Awards perfect month and time master badges for the previous month",
			e.cfg.Jobs.MonthlyRewardsSchedule,
			gocron.CronJob(e.cfg.Jobs.MonthlyRewardsSchedule, false),
			e.runMonthlyRewardsJob,
			false,
		); err != nil {
			return fmt.Errorf("failed to add monthly rewards job: %w", err)
		}

		if err := e.scheduler.AddSingletonJob(
			"absence_digest",
			"Absence Digest",
			"Notifies club leaders about today's absent and late members",
			e.cfg.Jobs.AbsenceDigestSchedule,
			gocron.CronJob(e.cfg.Jobs.AbsenceDigestSchedule, false),
			e.runAbsenceDigestJob,
			false,
		); err != nil {
			return fmt.Errorf("failed to add absence digest job: %w", err)
		}
	}

	if err := e.scheduler.AddJob(
		"clear_cache",
		"Clear Cache",
		"Clears the statistics cache",
		clearCacheSchedule,
		gocron.CronJob(clearCacheSchedule, false),
		func(ctx context.Context) error {
			e.cache.ClearAll(ctx)
			return nil
		},
		false,
	); err != nil {
		return fmt.Errorf("failed to add clear cache job: %w", err)
	}

	if err := e.scheduler.AddSingletonJob(
		"housekeeping",
		"Housekeeping",
		"Removes expired check-in codes, old audit events and old read notifications",
		housekeepingSchedule,
		gocron.CronJob(housekeepingSchedule, false),
		e.runHousekeepingJob,
		true,
	); err != nil {
		return fmt.Errorf("failed to add housekeeping job: %w", err)
	}

	log.Info("Scheduled jobs configured successfully")
	return nil
}

func (e *Engine) runBackupJob(ctx context.Context) error {
	return e.Backup.Run(ctx, e.cfg.GetBackupRetention())
}

func (e *Engine) runMonthlyRewardsJob(ctx context.Context) error {
	_, err := e.Gamification.MonthlyRewards(ctx)
	return err
}

// runAbsenceDigestJob notifies the leaders of every club with absent or late
// members today and publishes the digest to ntfy.
func (e *Engine) runAbsenceDigestJob(ctx context.Context) error {
	date := e.Attendance.Today().Format(models.DateLayout)
	absentees, err := e.Attendance.Absentees(ctx, date, "")
	if err != nil {
		return err
	}
	if absentees.Empty() {
		log.Debug("no absences today", "date", date)
		return nil
	}

	users, err := e.store.Load(ctx, store.Users)
	if err != nil {
		return err
	}
	all := models.DecodeAll[models.User](users.Rows)
	names := lo.SliceToMap(all, func(u models.User) (string, string) { return u.Username, u.Name })

	records := append(append([]models.AttendanceRecord{}, absentees.Absent...), absentees.Late...)
	byClub := lo.GroupBy(records, func(r models.AttendanceRecord) string { return r.Club })

	for club, recs := range byClub {
		msg := digestMessage(recs, names)
		leaders := lo.Uniq(lo.FilterMap(all, func(u models.User, _ int) (string, bool) {
			return u.Username, u.ClubName == club && u.ClubRole.IsLeader()
		}))
		for _, leader := range leaders {
			if _, err := e.Notifications.Add(ctx, fmt.Sprintf("%s 결석/지각 알림", club), notification.TypeWarning, leader, msg); err != nil {
				log.Warn("failed to notify club leader", "club", club, "leader", leader, "error", err)
			}
		}
	}

	if e.ntfy != nil {
		entries := lo.Map(records, func(r models.AttendanceRecord, _ int) ntfy.AbsenceEntry {
			return ntfy.AbsenceEntry{Name: displayName(r.Username, names), Club: r.Club, Status: r.Status.Label()}
		})
		if err := e.ntfy.SendAbsenceDigest(ctx, date, entries); err != nil {
			log.Warn("failed to send ntfy absence digest", "error", err)
		}
	}
	return nil
}

func displayName(username string, names map[string]string) string {
	if n := names[username]; n != "" {
		return n
	}
	return username
}

func digestMessage(records []models.AttendanceRecord, names map[string]string) string {
	lines := lo.Map(records, func(r models.AttendanceRecord, _ int) string {
		return fmt.Sprintf("%s %s (%s)", r.Status.Symbol(), displayName(r.Username, names), r.Status.Label())
	})
	return strings.Join(lines, "\n")
}

func (e *Engine) runHousekeepingJob(ctx context.Context) error {
	now := time.Now()

	if n, err := e.db.DeleteExpiredCheckInCodes(ctx, now); err != nil {
		log.Warn("failed to delete expired check-in codes", "error", err)
	} else if n > 0 {
		log.Info("deleted expired check-in codes", "count", n)
	}

	if n, err := e.db.PruneAuditEvents(ctx, now.Add(-auditRetention)); err != nil {
		log.Warn("failed to prune audit events", "error", err)
	} else if n > 0 {
		log.Info("pruned audit events", "count", n)
	}

	n, err := e.Notifications.Prune(ctx, now.Add(-notificationRetention))
	if err != nil {
		return err
	}
	if n > 0 {
		log.Info("pruned read notifications", "count", n)
	}
	return nil
}
