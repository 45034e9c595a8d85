package authcache

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	entry     Entry
	expiresAt time.Time
}

// Memory is a process-local Cache. Expiry is checked on every read, so an
// expired entry is never returned even if the sweeper has not run.
//
// Invalidation times are kept for one ttl. Entries resolved longer ago than
// that are refused, so no Store can predate a forgotten invalidation.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu            sync.RWMutex
	entries       map[string]memEntry
	byAccount     map[string]map[string]struct{}
	invalidatedAt map[string]time.Time
	allClearedAt  time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		ttl:       ttl,
		now:       time.Now,
		entries:       map[string]memEntry{},
		byAccount:     map[string]map[string]struct{}{},
		invalidatedAt: map[string]time.Time{},
	}
}

func (m *Memory) Lookup(ctx context.Context, credential string) (Entry, bool) {
	key := Key(credential)
	now := m.now()

	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	if now.Before(e.expiresAt) {
		return e.entry, true
	}

	m.mu.Lock()
	if cur, ok := m.entries[key]; ok && !now.Before(cur.expiresAt) {
		m.removeLocked(key)
	}
	m.mu.Unlock()
	return Entry{}, false
}

func (m *Memory) Store(ctx context.Context, credential string, e Entry, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.ttl
	}
	key := Key(credential)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.staleLocked(e, now) {
		return
	}
	m.removeLocked(key)
	m.entries[key] = memEntry{entry: e, expiresAt: now.Add(ttl)}
	if id := e.Account.ID; id != "" {
		if m.byAccount[id] == nil {
			m.byAccount[id] = map[string]struct{}{}
		}
		m.byAccount[id][key] = struct{}{}
	}
}

func (m *Memory) Invalidate(ctx context.Context, credential string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(Key(credential))
}

func (m *Memory) InvalidateAccount(ctx context.Context, accountID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidatedAt[accountID] = m.now()
	for key := range m.byAccount[accountID] {
		delete(m.entries, key)
	}
	delete(m.byAccount, accountID)
}

func (m *Memory) InvalidateAll(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allClearedAt = m.now()
	m.entries = map[string]memEntry{}
	m.byAccount = map[string]map[string]struct{}{}
	m.invalidatedAt = map[string]time.Time{}
}

// Sweep drops expired entries and reports how many were removed.
// Invalidation times older than the ttl are forgotten too.
func (m *Memory) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, e := range m.entries {
		if !now.Before(e.expiresAt) {
			m.removeLocked(key)
			n++
		}
	}
	for id, at := range m.invalidatedAt {
		if now.Sub(at) >= m.ttl {
			delete(m.invalidatedAt, id)
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (m *Memory) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep()
		}
	}
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// staleLocked reports whether e was resolved before an invalidation that
// covers its account.
func (m *Memory) staleLocked(e Entry, now time.Time) bool {
	at := e.ResolvedAt
	if at.IsZero() {
		return false
	}
	if now.Sub(at) >= m.ttl || !m.allClearedAt.Before(at) {
		return true
	}
	inv, ok := m.invalidatedAt[e.Account.ID]
	return ok && !inv.Before(at)
}

func (m *Memory) removeLocked(key string) {
	e, ok := m.entries[key]
	if !ok {
		return
	}
	delete(m.entries, key)
	if id := e.entry.Account.ID; id != "" {
		if set := m.byAccount[id]; set != nil {
			delete(set, key)
			if len(set) == 0 {
				delete(m.byAccount, id)
			}
		}
	}
}
