// Package admin implements the teacher-only management features: accounts,
// clubs, system status and background jobs.
package admin

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/ccoveille/go-safecast"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/polaris-class/clubhouse/internal/cache"
	"github.com/polaris-class/clubhouse/internal/database"
	"github.com/polaris-class/clubhouse/internal/models"
	"github.com/polaris-class/clubhouse/internal/password"
	"github.com/polaris-class/clubhouse/internal/scheduler"
	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v3/disk"
)

var (
	ErrForbidden    = errors.New("teacher access required")
	ErrExists       = errors.New("already exists")
	ErrInvalidInput = errors.New("invalid input")
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{2,32}$`)

// JobRunner exposes the background jobs.
type JobRunner interface {
	GetJobs() []scheduler.JobInfo
	RunJobNow(id string) error
}

// Service implements the admin features. Every method requires a teacher.
type Service struct {
	store   *store.Store
	jobs    JobRunner
	cache   *cache.EngineCache
	audit   database.AuditDB
	dataDir string
}

// New creates an admin service. jobs, c and audit may be nil.
func New(s *store.Store, jobs JobRunner, c *cache.EngineCache, audit database.AuditDB) *Service {
	return &Service{store: s, jobs: jobs, cache: c, audit: audit, dataDir: s.Dir()}
}

func requireTeacher(actor *models.Actor) error {
	if !actor.IsTeacher() {
		return ErrForbidden
	}
	return nil
}

// Account is a user with all of their club memberships.
type Account struct {
	Username    string             `json:"username"`
	Name        string             `json:"name"`
	Role        models.Role        `json:"role"`
	Email       string             `json:"email,omitempty"`
	Clubs       []store.Membership `json:"clubs"`
	HasPassword bool               `json:"hasPassword"`
	CreatedDate string             `json:"createdDate"`
}

// Accounts folds users rows into one account per username, sorted by username.
func Accounts(users []models.User) []Account {
	byName := map[string]*Account{}
	var order []string
	for _, u := range users {
		a, ok := byName[u.Username]
		if !ok {
			a = &Account{
				Username:    u.Username,
				Name:        u.Name,
				Role:        u.Role,
				Email:       u.Email,
				CreatedDate: u.CreatedDate,
				Clubs:       []store.Membership{},
			}
			byName[u.Username] = a
			order = append(order, u.Username)
		}
		a.HasPassword = a.HasPassword || u.PasswordHash != ""
		if u.ClubName != "" {
			a.Clubs = append(a.Clubs, store.Membership{Club: u.ClubName, Role: string(u.ClubRole)})
		}
	}
	sort.Strings(order)
	return lo.Map(order, func(name string, _ int) Account { return *byName[name] })
}

// Users lists every account.
func (s *Service) Users(ctx context.Context, actor *models.Actor) ([]Account, error) {
	if err := requireTeacher(actor); err != nil {
		return nil, err
	}
	t, err := s.store.Load(ctx, store.Users)
	if err != nil {
		return nil, err
	}
	return Accounts(models.DecodeAll[models.User](t.Rows)), nil
}

// UserInput creates an account.
type UserInput struct {
	Username string             `json:"username"`
	Name     string             `json:"name"`
	Role     models.Role        `json:"role"`
	Email    string             `json:"email"`
	Password string             `json:"password"`
	Clubs    []store.Membership `json:"clubs"`
}

func (s *Service) validateClubs(ctx context.Context, clubs []store.Membership) error {
	t, err := s.store.Load(ctx, store.Clubs)
	if err != nil {
		return err
	}
	for _, m := range clubs {
		if _, ok := t.Find("name", m.Club); !ok {
			return fmt.Errorf("%w: unknown club %q", ErrInvalidInput, m.Club)
		}
		if !models.Role(m.Role).Valid() || models.Role(m.Role) == models.RoleTeacher {
			return fmt.Errorf("%w: club role %q", ErrInvalidInput, m.Role)
		}
	}
	if len(lo.UniqBy(clubs, func(m store.Membership) string { return m.Club })) != len(clubs) {
		return fmt.Errorf("%w: duplicate club membership", ErrInvalidInput)
	}
	return nil
}

// userRows builds one users row per membership, or a single row without a club.
func userRows(u models.User, clubs []store.Membership) []store.Record {
	if len(clubs) == 0 {
		u.ClubName, u.ClubRole = "", ""
		return []store.Record{models.MustEncode(u)}
	}
	return lo.Map(clubs, func(m store.Membership, _ int) store.Record {
		row := u
		row.ClubName = m.Club
		row.ClubRole = models.Role(m.Role)
		return models.MustEncode(row)
	})
}

// CreateUser adds an account.
func (s *Service) CreateUser(ctx context.Context, actor *models.Actor, in UserInput) (Account, error) {
	if err := requireTeacher(actor); err != nil {
		return Account{}, err
	}
	in.Username = strings.TrimSpace(in.Username)
	in.Name = strings.TrimSpace(in.Name)
	if !usernamePattern.MatchString(in.Username) || strings.EqualFold(in.Username, models.AllClubs) {
		return Account{}, fmt.Errorf("%w: username %q", ErrInvalidInput, in.Username)
	}
	if in.Name == "" {
		return Account{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.Role == "" {
		in.Role = models.RoleMember
	}
	if !in.Role.Valid() {
		return Account{}, fmt.Errorf("%w: role %q", ErrInvalidInput, in.Role)
	}
	if err := s.validateClubs(ctx, in.Clubs); err != nil {
		return Account{}, err
	}
	hash, err := password.Hash(in.Password)
	if err != nil {
		return Account{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	var rows []store.Record
	err = s.store.Mutate(ctx, store.Users, func(t *store.Table) error {
		if _, ok := t.Find("username", in.Username); ok {
			return fmt.Errorf("user %s: %w", in.Username, ErrExists)
		}
		rows = userRows(models.User{
			Username:     in.Username,
			Name:         in.Name,
			Role:         in.Role,
			Email:        strings.TrimSpace(in.Email),
			PasswordHash: hash,
		}, in.Clubs)
		t.Rows = append(t.Rows, rows...)
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	log.Info("created user", "user", in.Username, "by", actor.Username)
	return Accounts(models.DecodeAll[models.User](rows))[0], nil
}

// UserPatch changes an account. Nil fields are left unchanged; a non-nil Clubs
// replaces every membership.
type UserPatch struct {
	Name     *string             `json:"name"`
	Role     *models.Role        `json:"role"`
	Email    *string             `json:"email"`
	Password *string             `json:"password"`
	Clubs    *[]store.Membership `json:"clubs"`
}

// UpdateUser applies p to the account of username.
func (s *Service) UpdateUser(ctx context.Context, actor *models.Actor, username string, p UserPatch) (Account, error) {
	if err := requireTeacher(actor); err != nil {
		return Account{}, err
	}
	if p.Role != nil && !p.Role.Valid() {
		return Account{}, fmt.Errorf("%w: role %q", ErrInvalidInput, *p.Role)
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return Account{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if p.Clubs != nil {
		if err := s.validateClubs(ctx, *p.Clubs); err != nil {
			return Account{}, err
		}
	}
	var hash string
	if p.Password != nil {
		var err error
		if hash, err = password.Hash(*p.Password); err != nil {
			return Account{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}

	var updated []store.Record
	err := s.store.Mutate(ctx, store.Users, func(t *store.Table) error {
		current := t.Where(func(r store.Record) bool { return r["username"] == username })
		if len(current) == 0 {
			return fmt.Errorf("user %s: %w", username, store.ErrNotFound)
		}
		u, err := models.Decode[models.User](current[0])
		if err != nil {
			return err
		}
		clubs := lo.FilterMap(current, func(r store.Record, _ int) (store.Membership, bool) {
			return store.Membership{Club: r["club_name"], Role: r["club_role"]}, r["club_name"] != ""
		})

		if p.Name != nil {
			u.Name = strings.TrimSpace(*p.Name)
		}
		if p.Role != nil {
			u.Role = *p.Role
		}
		if p.Email != nil {
			u.Email = strings.TrimSpace(*p.Email)
		}
		if p.Password != nil {
			u.PasswordHash = hash
		}
		if p.Clubs != nil {
			clubs = *p.Clubs
		}
		updated = userRows(u, clubs)
		t.Rows = append(slices.DeleteFunc(t.Rows, func(r store.Record) bool { return r["username"] == username }), updated...)
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	log.Info("updated user", "user", username, "by", actor.Username)
	return Accounts(models.DecodeAll[models.User](updated))[0], nil
}

// DeleteUser removes every users row of username. Teachers cannot delete themselves.
func (s *Service) DeleteUser(ctx context.Context, actor *models.Actor, username string) error {
	if err := requireTeacher(actor); err != nil {
		return err
	}
	if username == actor.Username {
		return fmt.Errorf("%w: cannot delete your own account", ErrInvalidInput)
	}
	if err := s.store.Delete(ctx, store.Users, username); err != nil {
		return err
	}
	log.Info("deleted user", "user", username, "by", actor.Username)
	return nil
}

// ClubInfo is a club with its current member count.
type ClubInfo struct {
	models.Club
	Members int `json:"members"`
}

// Clubs lists every club. It is readable by everyone.
func (s *Service) Clubs(ctx context.Context) ([]ClubInfo, error) {
	ct, err := s.store.Load(ctx, store.Clubs)
	if err != nil {
		return nil, err
	}
	ut, err := s.store.Load(ctx, store.Users)
	if err != nil {
		return nil, err
	}
	counts := lo.CountValuesBy(ut.Rows, func(r store.Record) string { return r["club_name"] })
	return lo.Map(models.DecodeAll[models.Club](ct.Rows), func(c models.Club, _ int) ClubInfo {
		return ClubInfo{Club: c, Members: counts[c.Name]}
	}), nil
}

// CreateClub adds a club. MaxMembers defaults to 20.
func (s *Service) CreateClub(ctx context.Context, actor *models.Actor, c models.Club) (models.Club, error) {
	if err := requireTeacher(actor); err != nil {
		return models.Club{}, err
	}
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" || strings.EqualFold(c.Name, models.AllClubs) {
		return models.Club{}, fmt.Errorf("%w: club name %q", ErrInvalidInput, c.Name)
	}
	if c.MaxMembers <= 0 {
		c.MaxMembers = 20
	}
	c.CreatedDate = ""

	var rec store.Record
	err := s.store.Mutate(ctx, store.Clubs, func(t *store.Table) error {
		if _, ok := t.Find("name", c.Name); ok {
			return fmt.Errorf("club %s: %w", c.Name, ErrExists)
		}
		rec = models.MustEncode(c)
		t.Rows = append(t.Rows, rec)
		return nil
	})
	if err != nil {
		return models.Club{}, err
	}
	log.Info("created club", "club", c.Name, "by", actor.Username)
	return models.Decode[models.Club](rec)
}

// ClubPatch changes a club. Nil fields are left unchanged.
type ClubPatch struct {
	Icon        *string `json:"icon"`
	Description *string `json:"description"`
	President   *string `json:"president"`
	MaxMembers  *int    `json:"maxMembers"`
	MeetLink    *string `json:"meetLink"`
}

// UpdateClub applies p to the club called name.
func (s *Service) UpdateClub(ctx context.Context, actor *models.Actor, name string, p ClubPatch) error {
	if err := requireTeacher(actor); err != nil {
		return err
	}
	fields := store.Record{}
	set := func(col string, v *string) {
		if v != nil {
			fields[col] = strings.TrimSpace(*v)
		}
	}
	set("icon", p.Icon)
	set("description", p.Description)
	set("president", p.President)
	set("meet_link", p.MeetLink)
	if p.MaxMembers != nil {
		if *p.MaxMembers <= 0 {
			return fmt.Errorf("%w: max members must be positive", ErrInvalidInput)
		}
		fields["max_members"] = strconv.Itoa(*p.MaxMembers)
	}
	if len(fields) == 0 {
		return nil
	}
	return s.store.Update(ctx, store.Clubs, name, fields)
}

// DeleteClub removes a club and the memberships in it. Users whose only
// membership was this club keep a row without a club.
func (s *Service) DeleteClub(ctx context.Context, actor *models.Actor, name string) error {
	if err := requireTeacher(actor); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, store.Clubs, name); err != nil {
		return err
	}
	err := s.store.Mutate(ctx, store.Users, func(t *store.Table) error {
		rows := make([]store.Record, 0, len(t.Rows))
		for _, r := range t.Rows {
			if r["club_name"] != name {
				rows = append(rows, r)
				continue
			}
			others := lo.CountBy(t.Rows, func(o store.Record) bool { return o["username"] == r["username"] })
			if others > 1 {
				continue
			}
			r["club_name"] = ""
			r["club_role"] = ""
			rows = append(rows, r)
		}
		t.Rows = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove memberships of %s: %w", name, err)
	}
	log.Info("deleted club", "club", name, "by", actor.Username)
	return nil
}

// DiskUsage describes the file system holding the data dir.
type DiskUsage struct {
	Path        string  `json:"path"`
	Total       string  `json:"total"`
	Used        string  `json:"used"`
	Free        string  `json:"free"`
	UsedPercent float64 `json:"usedPercent"`
}

// TableCount is the number of rows of one table.
type TableCount struct {
	Table string `json:"table"`
	Rows  int    `json:"rows"`
}

// Status is a snapshot of the running system.
type Status struct {
	Disk   *DiskUsage          `json:"disk,omitempty"`
	Tables []TableCount        `json:"tables"`
	Cache  []*cache.Stats      `json:"cache,omitempty"`
	Jobs   []scheduler.JobInfo `json:"jobs,omitempty"`
}

// Status collects disk usage, row counts, cache statistics and job states.
// A failing disk probe is logged and left out.
func (s *Service) Status(ctx context.Context, actor *models.Actor) (Status, error) {
	if err := requireTeacher(actor); err != nil {
		return Status{}, err
	}

	var out Status
	if usage, err := disk.UsageWithContext(ctx, s.dataDir); err != nil {
		log.Warn("failed to get disk usage", "path", s.dataDir, "error", err)
	} else {
		out.Disk = &DiskUsage{
			Path:        usage.Path,
			Total:       humanize.Bytes(usage.Total),
			Used:        humanize.Bytes(usage.Used),
			Free:        humanize.Bytes(usage.Free),
			UsedPercent: float64(int(usage.UsedPercent*10+0.5)) / 10,
		}
	}

	for _, name := range s.store.Tables() {
		t, err := s.store.Load(ctx, name)
		if err != nil {
			return Status{}, err
		}
		out.Tables = append(out.Tables, TableCount{Table: name, Rows: t.Len()})
	}

	out.Cache = s.cache.GetStats()
	if s.jobs != nil {
		out.Jobs = s.jobs.GetJobs()
	}
	return out, nil
}

// RunJob triggers a background job immediately.
func (s *Service) RunJob(_ context.Context, actor *models.Actor, id string) error {
	if err := requireTeacher(actor); err != nil {
		return err
	}
	if s.jobs == nil {
		return errors.New("scheduler is not running")
	}
	return s.jobs.RunJobNow(id)
}

// ClearCache drops every cached statistic.
func (s *Service) ClearCache(ctx context.Context, actor *models.Actor) error {
	if err := requireTeacher(actor); err != nil {
		return err
	}
	s.cache.ClearAll(ctx)
	return nil
}

// AuditPage is one page of the audit log.
type AuditPage struct {
	Events   []database.AuditEvent `json:"events"`
	Total    int64                 `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"pageSize"`
	Pages    int                   `json:"pages"`
}

// AuditLog returns one page of the change log, optionally restricted to a table.
func (s *Service) AuditLog(ctx context.Context, actor *models.Actor, table string, page, pageSize int) (AuditPage, error) {
	if err := requireTeacher(actor); err != nil {
		return AuditPage{}, err
	}
	if s.audit == nil {
		return AuditPage{}, errors.New("audit log is not available")
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	events, total, err := s.audit.GetAuditEvents(ctx, table, page, pageSize)
	if err != nil {
		return AuditPage{}, err
	}
	totalInt, err := safecast.Convert[int](total)
	if err != nil {
		return AuditPage{}, err
	}
	return AuditPage{
		Events:   events,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Pages:    (totalInt + pageSize - 1) / pageSize,
	}, nil
}
