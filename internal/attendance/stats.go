package attendance

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/samber/lo"
)

// Prediction outlooks.
const (
	OutlookGood     = "good"
	OutlookWarning  = "warning"
	OutlookCritical = "critical"
)

const (
	patternLength = 5
	predictWindow = 5
)

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func presentCount(records []models.AttendanceRecord) int {
	return lo.CountBy(records, func(r models.AttendanceRecord) bool { return r.Status == models.StatusPresent })
}

// Rate returns the share of present records in percent, rounded to one decimal.
// An empty slice has a rate of 0.
func Rate(records []models.AttendanceRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	return round1(float64(presentCount(records)) / float64(len(records)) * 100)
}

// Grade maps an attendance rate to a letter grade.
func Grade(rate float64) string {
	switch {
	case rate >= 95:
		return "S"
	case rate >= 90:
		return "A"
	case rate >= 80:
		return "B"
	case rate >= 70:
		return "C"
	default:
		return "D"
	}
}

// SortByDateDesc returns a copy of records ordered newest first. Records of the
// same date keep their file order.
func SortByDateDesc(records []models.AttendanceRecord) []models.AttendanceRecord {
	out := append([]models.AttendanceRecord(nil), records...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}

// Streak counts the leading present records after sorting by date descending.
func Streak(records []models.AttendanceRecord) int {
	streak := 0
	for _, r := range SortByDateDesc(records) {
		if r.Status != models.StatusPresent {
			break
		}
		streak++
	}
	return streak
}

// RecentPattern returns the status symbols of the last five records in file order,
// or nil when there are fewer than five.
func RecentPattern(records []models.AttendanceRecord) []string {
	if len(records) < patternLength {
		return nil
	}
	return lo.Map(records[len(records)-patternLength:], func(r models.AttendanceRecord, _ int) string {
		return r.Status.Symbol()
	})
}

// Predict estimates the upcoming attendance rate from the five most recent records.
// It needs more than five records.
func Predict(records []models.AttendanceRecord) *models.Prediction {
	if len(records) <= predictWindow {
		return nil
	}
	rate := Rate(records[len(records)-predictWindow:])
	outlook := OutlookCritical
	switch {
	case rate > 80:
		outlook = OutlookGood
	case rate > 60:
		outlook = OutlookWarning
	}
	return &models.Prediction{Rate: rate, Outlook: outlook}
}

// Summarize aggregates records into counts, rate, grade, streak, pattern and prediction.
func Summarize(records []models.AttendanceRecord) models.AttendanceSummary {
	counts := make(map[models.Status]int, len(models.Statuses))
	for _, st := range models.Statuses {
		counts[st] = 0
	}
	for _, r := range records {
		counts[r.Status]++
	}
	rate := Rate(records)
	return models.AttendanceSummary{
		Total:      len(records),
		Counts:     counts,
		Rate:       rate,
		Grade:      Grade(rate),
		Streak:     Streak(records),
		Pattern:    RecentPattern(records),
		Prediction: Predict(records),
	}
}

// weekdayNames are Korean weekday labels, Monday first.
var weekdayNames = []string{"월", "화", "수", "목", "금", "토", "일"}

func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// WeekdayPattern returns the present rate per weekday, Monday first. Weekdays
// without records are left out. Records with unparseable dates are ignored.
func WeekdayPattern(records []models.AttendanceRecord) []models.RatePoint {
	buckets := make([][]models.AttendanceRecord, 7)
	for _, r := range records {
		d, ok := models.ParseDate(r.Date, time.UTC)
		if !ok {
			continue
		}
		i := mondayIndex(d.Weekday())
		buckets[i] = append(buckets[i], r)
	}

	var out []models.RatePoint
	for i, b := range buckets {
		if len(b) == 0 {
			continue
		}
		out = append(out, models.RatePoint{Label: weekdayNames[i], Rate: Rate(b), Total: len(b)})
	}
	return out
}

func groupRates(records []models.AttendanceRecord, key func(models.AttendanceRecord) string) []models.RatePoint {
	groups := lo.GroupBy(records, key)
	out := make([]models.RatePoint, 0, len(groups))
	for label, rs := range groups {
		out = append(out, models.RatePoint{Label: label, Rate: Rate(rs), Total: len(rs)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// ClubComparison returns the present rate per club, ordered by club name.
func ClubComparison(records []models.AttendanceRecord) []models.RatePoint {
	return groupRates(records, func(r models.AttendanceRecord) string { return r.Club })
}

// DailyTrend returns the present rate per date, oldest first.
func DailyTrend(records []models.AttendanceRecord) []models.RatePoint {
	return groupRates(records, func(r models.AttendanceRecord) string { return dateOf(r.Date) })
}

// MonthlyTrend returns the present rate per month (YYYY-MM), oldest first.
func MonthlyTrend(records []models.AttendanceRecord) []models.RatePoint {
	return groupRates(records, func(r models.AttendanceRecord) string { return monthOf(r.Date) })
}

func dateOf(v string) string {
	if len(v) >= len(models.DateLayout) {
		return v[:len(models.DateLayout)]
	}
	return v
}

func monthOf(v string) string {
	if len(v) >= len("2006-01") {
		return v[:len("2006-01")]
	}
	return v
}

// InMonth returns the records dated in month (YYYY-MM).
func InMonth(records []models.AttendanceRecord, month string) []models.AttendanceRecord {
	return lo.Filter(records, func(r models.AttendanceRecord, _ int) bool {
		return strings.HasPrefix(r.Date, month)
	})
}

// MonthlyPerfect returns the usernames whose every record in month is present,
// sorted. Users without records in the month are not included.
func MonthlyPerfect(records []models.AttendanceRecord, month string) []string {
	byUser := lo.GroupBy(InMonth(records, month), func(r models.AttendanceRecord) string { return r.Username })
	var out []string
	for username, rs := range byUser {
		if presentCount(rs) == len(rs) {
			out = append(out, username)
		}
	}
	sort.Strings(out)
	return out
}

// UserRate is the attendance of one user within a record set.
type UserRate struct {
	Username string  `json:"username"`
	Total    int     `json:"total"`
	Present  int     `json:"present"`
	Rate     float64 `json:"rate"`
	Grade    string  `json:"grade"`
}

// UserRates returns per-user rates, highest rate first and then by username.
func UserRates(records []models.AttendanceRecord) []UserRate {
	byUser := lo.GroupBy(records, func(r models.AttendanceRecord) string { return r.Username })
	out := make([]UserRate, 0, len(byUser))
	for username, rs := range byUser {
		rate := Rate(rs)
		out = append(out, UserRate{
			Username: username,
			Total:    len(rs),
			Present:  presentCount(rs),
			Rate:     rate,
			Grade:    Grade(rate),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rate != out[j].Rate {
			return out[i].Rate > out[j].Rate
		}
		return out[i].Username < out[j].Username
	})
	return out
}

// Date range presets.
const (
	PresetToday     = "today"
	PresetThisWeek  = "this_week"
	PresetThisMonth = "this_month"
	PresetLastWeek  = "last_week"
	PresetLastMonth = "last_month"
)

// PresetRange resolves a named range relative to today. Both ends are inclusive
// dates at midnight. Unknown presets cover the last 30 days.
func PresetRange(preset string, today time.Time) (time.Time, time.Time) {
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	switch preset {
	case PresetToday:
		return today, today
	case PresetThisWeek:
		start := today.AddDate(0, 0, -mondayIndex(today.Weekday()))
		return start, start.AddDate(0, 0, 6)
	case PresetThisMonth:
		start := today.AddDate(0, 0, 1-today.Day())
		return start, start.AddDate(0, 1, -1)
	case PresetLastWeek:
		end := today.AddDate(0, 0, -(mondayIndex(today.Weekday()) + 1))
		return end.AddDate(0, 0, -6), end
	case PresetLastMonth:
		end := today.AddDate(0, 0, -today.Day())
		return end.AddDate(0, 0, 1-end.Day()), end
	default:
		return today.AddDate(0, 0, -30), today
	}
}
