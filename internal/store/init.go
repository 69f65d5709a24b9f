package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
)

// DefaultClubs are seeded into an empty clubs table.
var DefaultClubs = []Record{
	{
		"name":         "코딩",
		"icon":         "💻",
		"description":  "프로그래밍과 컴퓨터 과학을 배우는 동아리",
		"president":    "조성우",
		"max_members":  "20",
		"created_date": "2024-01-15 09:00:00",
		"meet_link":    "https://meet.google.com/dbx-ozrs-bma",
	},
	{
		"name":         "댄스",
		"icon":         "💃",
		"description":  "다양한 춤을 배우고 공연하는 동아리",
		"president":    "백주아",
		"max_members":  "15",
		"created_date": "2024-01-15 09:00:00",
	},
	{
		"name":         "만들기",
		"icon":         "🔨",
		"description":  "손으로 만드는 모든 것을 탐구하는 동아리",
		"president":    "김보경",
		"max_members":  "12",
		"created_date": "2024-01-15 09:00:00",
	},
	{
		"name":         "미스테리탐구",
		"icon":         "🔍",
		"description":  "신비한 현상과 미스터리를 탐구하는 동아리",
		"president":    "오채윤",
		"max_members":  "10",
		"created_date": "2024-01-15 09:00:00",
	},
	{
		"name":         "줄넘기",
		"icon":         "🪢",
		"description":  "줄넘기 기술을 연마하고 체력을 기르는 동아리",
		"president":    "김제이",
		"max_members":  "25",
		"created_date": "2024-01-15 09:00:00",
	},
	{
		"name":         "풍선아트",
		"icon":         "🎈",
		"description":  "풍선으로 다양한 작품을 만드는 동아리",
		"president":    "최명준",
		"max_members":  "15",
		"created_date": "2024-01-15 09:00:00",
	},
}

// Init creates the data directory, writes a header for every missing table
// and seeds the default clubs when the clubs table is empty.
func (s *Store) Init(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	for _, name := range s.Tables() {
		_, err := os.Stat(s.Path(name))
		if err == nil {
			continue
		}
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to stat table %s: %w", name, err)
		}

		l := s.lock(name)
		l.Lock()
		err = s.write(&Table{Name: name, Header: schemas[name].Columns})
		l.Unlock()
		if err != nil {
			return err
		}
		log.Info("created table", "table", name)
	}

	clubs, err := s.Load(ctx, Clubs)
	if err != nil {
		return err
	}
	if clubs.Len() == 0 {
		if err := s.Save(ctx, Clubs, &Table{Rows: DefaultClubs}); err != nil {
			return fmt.Errorf("failed to seed clubs: %w", err)
		}
		log.Info("seeded default clubs", "count", len(DefaultClubs))
	}
	return nil
}

// Membership is a user's role inside one club.
type Membership struct {
	Club string `json:"club"`
	Role string `json:"role"`
}

// UserClubs returns the club memberships of a user, one per users row.
func (s *Store) UserClubs(ctx context.Context, username string) ([]Membership, error) {
	users, err := s.Load(ctx, Users)
	if err != nil {
		return nil, err
	}
	var out []Membership
	for _, r := range users.Where(func(r Record) bool { return r["username"] == username }) {
		if r["club_name"] == "" {
			continue
		}
		out = append(out, Membership{Club: r["club_name"], Role: r["club_role"]})
	}
	return out, nil
}
