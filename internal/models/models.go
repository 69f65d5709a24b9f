package models

import (
	"slices"
	"strings"
	"time"

	"github.com/polaris-class/clubhouse/internal/store"
)

// Date layouts used in the CSV tables.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = store.DateTimeLayout
)

// AllClubs is the pseudo club that addresses everyone.
const AllClubs = "all"

// Role is a user's role, either globally or inside a club.
type Role string

const (
	RoleTeacher       Role = "teacher"
	RolePresident     Role = "president"
	RoleVicePresident Role = "vice_president"
	RoleTreasurer     Role = "treasurer"
	RoleMember        Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleTeacher, RolePresident, RoleVicePresident, RoleTreasurer, RoleMember:
		return true
	}
	return false
}

// IsLeader reports whether the role may record attendance and view reports.
func (r Role) IsLeader() bool {
	return r == RoleTeacher || r == RolePresident || r == RoleVicePresident
}

// Status is an attendance status.
type Status string

const (
	StatusPresent    Status = "present"
	StatusLate       Status = "late"
	StatusAbsent     Status = "absent"
	StatusEarlyLeave Status = "early_leave"
)

// Statuses lists every attendance status in display order.
var Statuses = []Status{StatusPresent, StatusLate, StatusAbsent, StatusEarlyLeave}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

// Symbol returns the short marker used in attendance patterns.
func (s Status) Symbol() string {
	switch s {
	case StatusPresent:
		return "✅"
	case StatusLate:
		return "🕐"
	case StatusAbsent:
		return "❌"
	case StatusEarlyLeave:
		return "🚪"
	}
	return "?"
}

// Label returns the Korean display name of the status.
func (s Status) Label() string {
	switch s {
	case StatusPresent:
		return "출석"
	case StatusLate:
		return "지각"
	case StatusAbsent:
		return "결석"
	case StatusEarlyLeave:
		return "조퇴"
	}
	return string(s)
}

// Points returns the gamification points one record of this status earns.
func (s Status) Points() int {
	switch s {
	case StatusPresent:
		return 10
	case StatusLate:
		return 5
	case StatusEarlyLeave:
		return 7
	}
	return 0
}

// Actor is the authenticated user performing an operation.
type Actor struct {
	Username    string             `json:"username"`
	Name        string             `json:"name"`
	Role        Role               `json:"role"`
	Email       string             `json:"email,omitempty"`
	Clubs       []store.Membership `json:"clubs"`
	GravatarURL string             `json:"gravatarUrl,omitempty"`
}

// IsTeacher reports whether the actor has full access.
func (a *Actor) IsTeacher() bool {
	return a != nil && a.Role == RoleTeacher
}

// InClub reports whether the actor is a member of club.
func (a *Actor) InClub(club string) bool {
	if a == nil {
		return false
	}
	return slices.ContainsFunc(a.Clubs, func(m store.Membership) bool { return m.Club == club })
}

// CanSee reports whether content of club is visible to the actor.
func (a *Actor) CanSee(club string) bool {
	return a.IsTeacher() || club == AllClubs || a.InClub(club)
}

// Leads reports whether the actor may manage attendance of club.
func (a *Actor) Leads(club string) bool {
	if a.IsTeacher() {
		return true
	}
	if a == nil {
		return false
	}
	for _, m := range a.Clubs {
		if m.Club != club {
			continue
		}
		if Role(m.Role).IsLeader() || a.Role.IsLeader() {
			return true
		}
	}
	return false
}

// IsLeader reports whether the actor leads any club.
func (a *Actor) IsLeader() bool {
	if a.IsTeacher() {
		return true
	}
	if a == nil {
		return false
	}
	if a.Role.IsLeader() {
		return true
	}
	return slices.ContainsFunc(a.Clubs, func(m store.Membership) bool { return Role(m.Role).IsLeader() })
}

// ClubNames returns the names of the actor's clubs.
func (a *Actor) ClubNames() []string {
	if a == nil {
		return nil
	}
	out := make([]string, 0, len(a.Clubs))
	for _, m := range a.Clubs {
		out = append(out, m.Club)
	}
	return out
}

// ParseDate parses a date column. Datetime values are accepted and truncated to the day.
func ParseDate(v string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	v = strings.TrimSpace(v)
	if len(v) >= len(DateLayout) {
		if t, err := time.ParseInLocation(DateLayout, v[:len(DateLayout)], loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDateTime parses a created_date style column.
func ParseDateTime(v string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	v = strings.TrimSpace(v)
	if t, err := time.ParseInLocation(DateTimeLayout, v, loc); err == nil {
		return t, true
	}
	return ParseDate(v, loc)
}
