package account

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/account/entity"
	accountrepo "github.com/ovaphlow/pitchfork/service-identity-go/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-identity-go/internal/bus"
)

var errStoreDown = errors.New("connection refused")

// memAccounts mimics the partial unique index on (owner, type) where active.
type memAccounts struct {
	mu   sync.Mutex
	rows map[string]*entity.Account
	seq  int

	// conflicts makes the next N FindOrCreate calls report a lost race
	// after inserting the row, as a concurrent winner would have.
	conflicts int
	findErr   error
	getErr    error
	updateErr error
	updates   int
	inserts   int
}

func newMemAccounts() *memAccounts {
	return &memAccounts{rows: map[string]*entity.Account{}}
}

func (m *memAccounts) activeFor(owner string, t entity.AccountType) *entity.Account {
	for _, a := range m.rows {
		if a.OwnerUserID == owner && a.AccountType == t && a.IsActive {
			return a
		}
	}
	return nil
}

func (m *memAccounts) FindOrCreate(_ context.Context, id, owner string, t entity.AccountType, table, profileID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return "", false, m.findErr
	}
	if m.conflicts > 0 {
		m.conflicts--
		if m.activeFor(owner, t) == nil {
			m.insert("winner-"+id, owner, t, table, profileID)
		}
		return "", false, accountrepo.ErrConflict
	}
	if a := m.activeFor(owner, t); a != nil {
		return a.ID, false, nil
	}
	m.insert(id, owner, t, table, profileID)
	return id, true, nil
}

func (m *memAccounts) insert(id, owner string, t entity.AccountType, table, profileID string) {
	m.seq++
	now := time.Date(2026, 1, 1, 0, 0, m.seq, 0, time.UTC)
	m.rows[id] = &entity.Account{
		ID: id, OwnerUserID: owner, AccountType: t, ProfileTable: table, ProfileID: profileID,
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	m.inserts++
}

// put seeds a row directly.
func (m *memAccounts) put(a *entity.Account) *entity.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Date(2026, 1, 1, 0, 0, m.seq, 0, time.UTC)
	}
	m.rows[a.ID] = a
	return a
}

func (m *memAccounts) GetByID(_ context.Context, id string) (*entity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	a, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) GetActiveByOwnerType(_ context.Context, owner string, t entity.AccountType) (*entity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	a := m.activeFor(owner, t)
	if a == nil {
		return nil, sql.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) ListActiveByOwner(_ context.Context, owner string) ([]*entity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*entity.Account{}
	for _, a := range m.rows {
		if a.OwnerUserID == owner && a.IsActive {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memAccounts) UpdateDisplay(_ context.Context, id string, d entity.DisplayInfo) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return 0, m.updateErr
	}
	a, ok := m.rows[id]
	if !ok {
		return 0, nil
	}
	a.DisplayName, a.Username, a.AvatarURL, a.IsVerified = d.DisplayName, d.Username, d.AvatarURL, d.IsVerified
	m.updates++
	return 1, nil
}

func (m *memAccounts) Deactivate(_ context.Context, id, owner string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok || a.OwnerUserID != owner || !a.IsActive {
		return 0, nil
	}
	a.IsActive = false
	now := time.Now()
	a.DeactivatedAt = &now
	return 1, nil
}

func (m *memAccounts) RecomputeStats(_ context.Context, id string) (*entity.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	st := a.Stats
	return &st, nil
}

func (m *memAccounts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memProfiles struct {
	mu   sync.Mutex
	rows map[string]*entity.Profile // table/id
	err  error
}

func newMemProfiles() *memProfiles {
	return &memProfiles{rows: map[string]*entity.Profile{}}
}

func (m *memProfiles) put(table string, p *entity.Profile) *entity.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[table+"/"+p.ID] = p
	return p
}

func (m *memProfiles) Get(ctx context.Context, table, id string) (*entity.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.rows[table+"/"+id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (m *memProfiles) FindByOwner(_ context.Context, t entity.AccountType, userID string) (*entity.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	prefix := t.ProfileTable() + "/"
	var found *entity.Profile
	for k, p := range m.rows {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix && p.UserID == userID {
			if found == nil || p.CreatedAt.Before(found.CreatedAt) {
				found = p
			}
		}
	}
	if found == nil {
		return nil, sql.ErrNoRows
	}
	cp := *found
	return &cp, nil
}

type memSelections struct {
	mu       sync.Mutex
	rows     map[string]*entity.Selection
	accounts *memAccounts
	err      error
}

func newMemSelections(accounts *memAccounts) *memSelections {
	return &memSelections{rows: map[string]*entity.Selection{}, accounts: accounts}
}

func (m *memSelections) Get(_ context.Context, userID string) (*entity.Selection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (m *memSelections) Switch(_ context.Context, userID, accountID string) (*entity.Selection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.accounts.mu.Lock()
	a, ok := m.accounts.rows[accountID]
	valid := ok && a.OwnerUserID == userID && a.IsActive
	m.accounts.mu.Unlock()
	if !valid {
		return nil, sql.ErrNoRows
	}
	s, ok := m.rows[userID]
	if !ok {
		s = &entity.Selection{UserID: userID}
		m.rows[userID] = s
	}
	s.ActiveAccountID = accountID
	s.LastSwitchedAt = time.Now()
	s.Version++
	cp := *s
	return &cp, nil
}

func (m *memSelections) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, userID)
	return nil
}

type memCache struct {
	mu      sync.Mutex
	entries map[string]entity.DisplayInfo
	err     error
}

func newMemCache() *memCache { return &memCache{entries: map[string]entity.DisplayInfo{}} }

func (c *memCache) Get(_ context.Context, id string) (entity.DisplayInfo, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return entity.DisplayInfo{}, false, c.err
	}
	d, ok := c.entries[id]
	return d, ok, nil
}

func (c *memCache) Set(_ context.Context, id string, d entity.DisplayInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = d
	return nil
}

func (c *memCache) Invalidate(_ context.Context, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.entries, id)
	}
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []bus.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev bus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Name)
	}
	return out
}

func strPtr(s string) *string { return &s }

type fixture struct {
	accounts   *memAccounts
	profiles   *memProfiles
	selections *memSelections
	cache      *memCache
	pub        *recordingPublisher
	svc        *Service
}

func newFixture() *fixture {
	f := &fixture{
		accounts: newMemAccounts(),
		profiles: newMemProfiles(),
		cache:    newMemCache(),
		pub:      &recordingPublisher{},
	}
	f.selections = newMemSelections(f.accounts)
	f.svc = New(Deps{
		Accounts:   f.accounts,
		Profiles:   f.profiles,
		Selections: f.selections,
		Cache:      f.cache,
		Publisher:  f.pub,
	})
	return f
}
