package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type DatabaseTestSuite struct {
	suite.Suite
	db  *Client
	ctx context.Context
}

func (s *DatabaseTestSuite) SetupTest() {
	var err error
	s.ctx = context.Background()
	s.db, err = New(filepath.Join(s.T().TempDir(), "clubhouse.db"))
	s.Require().NoError(err)
}

func (s *DatabaseTestSuite) TearDownTest() {
	s.NoError(s.db.Close())
}

func (s *DatabaseTestSuite) TestPing() {
	s.NoError(s.db.Ping(s.ctx))
}

func (s *DatabaseTestSuite) TestAuditEvents() {
	old := time.Now().Add(-48 * time.Hour)
	s.Require().NoError(s.db.CreateAuditEvent(s.ctx, AuditEvent{Target: "posts", Action: "added", RecordKey: "1", EventTime: old}))
	s.Require().NoError(s.db.CreateAuditEvent(s.ctx, AuditEvent{Target: "posts", Action: "updated", RecordKey: "1"}))
	s.Require().NoError(s.db.CreateAuditEvent(s.ctx, AuditEvent{Target: "users", Action: "added", RecordKey: "kim"}))

	events, total, err := s.db.GetAuditEvents(s.ctx, "posts", 1, 10)
	s.Require().NoError(err)
	s.Equal(int64(2), total)
	s.Require().Len(events, 2)
	s.Equal("updated", events[0].Action)

	_, total, err = s.db.GetAuditEvents(s.ctx, "", 1, 10)
	s.Require().NoError(err)
	s.Equal(int64(3), total)

	pruned, err := s.db.PruneAuditEvents(s.ctx, time.Now().Add(-24*time.Hour))
	s.Require().NoError(err)
	s.Equal(int64(1), pruned)
}

func (s *DatabaseTestSuite) TestRecentSearches() {
	for _, q := range []string{"a", "b", "c", "a"} {
		s.Require().NoError(s.db.AddRecentSearch(s.ctx, RecentSearch{Username: "kim", Query: q}, 2))
	}
	s.Require().NoError(s.db.AddRecentSearch(s.ctx, RecentSearch{Username: "lee", Query: "x"}, 2))

	searches, err := s.db.GetRecentSearches(s.ctx, "kim", 10)
	s.Require().NoError(err)
	s.Require().Len(searches, 2)
	s.Equal("a", searches[0].Query)
	s.Equal("c", searches[1].Query)

	s.Require().NoError(s.db.ClearRecentSearches(s.ctx, "kim"))
	searches, err = s.db.GetRecentSearches(s.ctx, "kim", 10)
	s.Require().NoError(err)
	s.Empty(searches)

	searches, err = s.db.GetRecentSearches(s.ctx, "lee", 10)
	s.Require().NoError(err)
	s.Len(searches, 1)
}

func (s *DatabaseTestSuite) TestCheckInCodes() {
	now := time.Now()
	_, err := s.db.CreateCheckInCode(s.ctx, CheckInCode{Code: "abc", Club: "코딩", Date: "2025-03-10", IssuedBy: "t", ExpiresAt: now.Add(time.Hour)})
	s.Require().NoError(err)
	_, err = s.db.CreateCheckInCode(s.ctx, CheckInCode{Code: "old", Club: "코딩", Date: "2025-03-09", IssuedBy: "t", ExpiresAt: now.Add(-time.Hour)})
	s.Require().NoError(err)

	code, err := s.db.GetCheckInCode(s.ctx, "abc")
	s.Require().NoError(err)
	s.Equal("코딩", code.Club)

	s.Require().NoError(s.db.IncrementCheckInRedeemed(s.ctx, "abc"))
	code, err = s.db.GetCheckInCode(s.ctx, "abc")
	s.Require().NoError(err)
	s.Equal(1, code.Redeemed)

	_, err = s.db.GetCheckInCode(s.ctx, "missing")
	s.ErrorIs(err, ErrCodeNotFound)

	n, err := s.db.DeleteExpiredCheckInCodes(s.ctx, now)
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}

func (s *DatabaseTestSuite) TestPushSubscriptions() {
	sub := PushSubscription{SubscriptionID: "s1", Username: "kim", Endpoint: "https://push/1", P256dh: "p", Auth: "a"}
	s.Require().NoError(s.db.SavePushSubscription(s.ctx, sub))
	sub.Endpoint = "https://push/1b"
	s.Require().NoError(s.db.SavePushSubscription(s.ctx, sub))
	s.Require().NoError(s.db.SavePushSubscription(s.ctx, PushSubscription{SubscriptionID: "s2", Username: "lee", Endpoint: "https://push/2", P256dh: "p", Auth: "a"}))

	subs, err := s.db.GetPushSubscriptions(s.ctx, "kim")
	s.Require().NoError(err)
	s.Require().Len(subs, 1)
	s.Equal("https://push/1b", subs[0].Endpoint)

	users, err := s.db.GetPushSubscribers(s.ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"kim", "lee"}, users)

	s.Require().NoError(s.db.DeletePushSubscription(s.ctx, "s1"))
	n, err := s.db.CountPushSubscriptions(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	s.Require().NoError(s.db.DeleteUserPushSubscriptions(s.ctx, "lee"))
	n, err = s.db.CountPushSubscriptions(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(0), n)
}

func TestDatabaseTestSuite(t *testing.T) {
	suite.Run(t, new(DatabaseTestSuite))
}
