package mock

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/polaris-class/clubhouse/internal/database"
)

var _ database.DB = (*MockDB)(nil)

// MockDB is a mock implementation of database.DB for testing.
type MockDB struct {
	mu sync.RWMutex

	auditEvents []database.AuditEvent
	nextAuditID uint

	searches     []database.RecentSearch
	nextSearchID uint

	codes map[string]*database.CheckInCode

	subscriptions map[string]database.PushSubscription

	// Error simulation
	CreateAuditEventError       error
	GetAuditEventsError         error
	PruneAuditEventsError       error
	AddRecentSearchError        error
	GetRecentSearchesError      error
	CreateCheckInCodeError      error
	GetCheckInCodeError         error
	SavePushSubscriptionError   error
	GetPushSubscriptionsError   error
	DeletePushSubscriptionError error
	PingError                   error
}

// NewMockDB creates a new MockDB instance.
func NewMockDB() *MockDB {
	m := &MockDB{}
	m.Reset()
	return m
}

// Reset clears all data and errors from the mock database.
func (m *MockDB) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.auditEvents = nil
	m.nextAuditID = 1
	m.searches = nil
	m.nextSearchID = 1
	m.codes = make(map[string]*database.CheckInCode)
	m.subscriptions = make(map[string]database.PushSubscription)

	m.CreateAuditEventError = nil
	m.GetAuditEventsError = nil
	m.PruneAuditEventsError = nil
	m.AddRecentSearchError = nil
	m.GetRecentSearchesError = nil
	m.CreateCheckInCodeError = nil
	m.GetCheckInCodeError = nil
	m.SavePushSubscriptionError = nil
	m.GetPushSubscriptionsError = nil
	m.DeletePushSubscriptionError = nil
	m.PingError = nil
}

func (m *MockDB) Ping(ctx context.Context) error { return m.PingError }

func (m *MockDB) Close() error { return nil }

// Audit operations

func (m *MockDB) CreateAuditEvent(ctx context.Context, event database.AuditEvent) error {
	if m.CreateAuditEventError != nil {
		return m.CreateAuditEventError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if event.EventTime.IsZero() {
		event.EventTime = time.Now()
	}
	event.ID = m.nextAuditID
	m.nextAuditID++
	m.auditEvents = append(m.auditEvents, event)
	return nil
}

func (m *MockDB) GetAuditEvents(ctx context.Context, table string, page, pageSize int) ([]database.AuditEvent, int64, error) {
	if m.GetAuditEventsError != nil {
		return nil, 0, m.GetAuditEventsError
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []database.AuditEvent
	for _, e := range m.auditEvents {
		if table == "" || e.Target == table {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].EventTime.After(matched[j].EventTime)
	})

	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return []database.AuditEvent{}, total, nil
	}
	end := min(start+pageSize, len(matched))
	return matched[start:end], total, nil
}

func (m *MockDB) PruneAuditEvents(ctx context.Context, before time.Time) (int64, error) {
	if m.PruneAuditEventsError != nil {
		return 0, m.PruneAuditEventsError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.auditEvents)
	m.auditEvents = slices.DeleteFunc(m.auditEvents, func(e database.AuditEvent) bool {
		return e.EventTime.Before(before)
	})
	return int64(n - len(m.auditEvents)), nil
}

// Search operations

func (m *MockDB) AddRecentSearch(ctx context.Context, search database.RecentSearch, keep int) error {
	if m.AddRecentSearchError != nil {
		return m.AddRecentSearchError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.searches = slices.DeleteFunc(m.searches, func(s database.RecentSearch) bool {
		return s.Username == search.Username && s.Query == search.Query
	})
	search.ID = m.nextSearchID
	m.nextSearchID++
	m.searches = append(m.searches, search)

	if keep <= 0 {
		return nil
	}
	count := 0
	for i := len(m.searches) - 1; i >= 0; i-- {
		if m.searches[i].Username != search.Username {
			continue
		}
		count++
		if count > keep {
			m.searches = slices.Delete(m.searches, i, i+1)
		}
	}
	return nil
}

func (m *MockDB) GetRecentSearches(ctx context.Context, username string, limit int) ([]database.RecentSearch, error) {
	if m.GetRecentSearchesError != nil {
		return nil, m.GetRecentSearchesError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.RecentSearch
	for i := len(m.searches) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.searches[i].Username == username {
			out = append(out, m.searches[i])
		}
	}
	return out, nil
}

func (m *MockDB) ClearRecentSearches(ctx context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.searches = slices.DeleteFunc(m.searches, func(s database.RecentSearch) bool {
		return s.Username == username
	})
	return nil
}

// Check-in operations

func (m *MockDB) CreateCheckInCode(ctx context.Context, code database.CheckInCode) (*database.CheckInCode, error) {
	if m.CreateCheckInCodeError != nil {
		return nil, m.CreateCheckInCodeError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	code.ID = uint(len(m.codes) + 1)
	c := code
	m.codes[code.Code] = &c
	return &code, nil
}

func (m *MockDB) GetCheckInCode(ctx context.Context, code string) (*database.CheckInCode, error) {
	if m.GetCheckInCodeError != nil {
		return nil, m.GetCheckInCodeError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.codes[code]
	if !ok {
		return nil, database.ErrCodeNotFound
	}
	out := *c
	return &out, nil
}

func (m *MockDB) IncrementCheckInRedeemed(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.codes[code]
	if !ok {
		return database.ErrCodeNotFound
	}
	c.Redeemed++
	return nil
}

func (m *MockDB) DeleteExpiredCheckInCodes(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k, c := range m.codes {
		if c.ExpiresAt.Before(now) {
			delete(m.codes, k)
			n++
		}
	}
	return n, nil
}

// Subscription operations

func (m *MockDB) SavePushSubscription(ctx context.Context, sub database.PushSubscription) error {
	if m.SavePushSubscriptionError != nil {
		return m.SavePushSubscriptionError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.subscriptions[sub.SubscriptionID] = sub
	return nil
}

func (m *MockDB) GetPushSubscriptions(ctx context.Context, username string) ([]database.PushSubscription, error) {
	if m.GetPushSubscriptionsError != nil {
		return nil, m.GetPushSubscriptionsError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.PushSubscription
	for _, s := range m.subscriptions {
		if s.Username == username {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubscriptionID < out[j].SubscriptionID })
	return out, nil
}

func (m *MockDB) GetPushSubscribers(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var users []string
	for _, s := range m.subscriptions {
		if !slices.Contains(users, s.Username) {
			users = append(users, s.Username)
		}
	}
	sort.Strings(users)
	return users, nil
}

func (m *MockDB) DeletePushSubscription(ctx context.Context, subscriptionID string) error {
	if m.DeletePushSubscriptionError != nil {
		return m.DeletePushSubscriptionError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.subscriptions, subscriptionID)
	return nil
}

func (m *MockDB) DeleteUserPushSubscriptions(ctx context.Context, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.subscriptions {
		if s.Username == username {
			delete(m.subscriptions, id)
		}
	}
	return nil
}

func (m *MockDB) CountPushSubscriptions(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.subscriptions)), nil
}

// Helper methods for testing

// AuditEvents returns a copy of all recorded audit events.
func (m *MockDB) AuditEvents() []database.AuditEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.auditEvents)
}
