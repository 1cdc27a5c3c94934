package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/c-pro/geche"
)

type MemoryPresence struct {
	mu    sync.Mutex
	users map[string]map[string]struct{}
	conns map[string]string
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{
		users: make(map[string]map[string]struct{}),
		conns: make(map[string]string),
	}
}

func (m *MemoryPresence) AddConnection(_ context.Context, userID, connID string) (AddResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res AddResult
	if prev, ok := m.conns[connID]; ok && prev != userID {
		res.Replaced = prev
		res.ReplacedLast = m.detach(prev, connID)
	}

	m.conns[connID] = userID
	set, ok := m.users[userID]
	if !ok {
		set = make(map[string]struct{})
		m.users[userID] = set
		res.First = true
	}
	set[connID] = struct{}{}

	return res, nil
}

func (m *MemoryPresence) RemoveConnection(_ context.Context, connID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID, ok := m.conns[connID]
	if !ok {
		return "", false, nil
	}
	delete(m.conns, connID)
	return userID, m.detach(userID, connID), nil
}

// detach drops connID from the user's set and reports whether the set emptied.
func (m *MemoryPresence) detach(userID, connID string) bool {
	set, ok := m.users[userID]
	if !ok {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(m.users, userID)
		return true
	}
	return false
}

func (m *MemoryPresence) OnlineUsers(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	users := make([]string, 0, len(m.users))
	for id := range m.users {
		users = append(users, id)
	}
	slices.Sort(users)
	return users, nil
}

func (m *MemoryPresence) IsOnline(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[userID]
	return ok, nil
}

// MemoryTyping keeps deadlines in a TTL cache. The cache evicts lazily, so
// reads compare against the stored deadline as well.
type MemoryTyping struct {
	ttl   time.Duration
	cache geche.Geche[string, time.Time]
	now   func() time.Time
}

func NewMemoryTyping(ctx context.Context, ttl time.Duration) *MemoryTyping {
	return &MemoryTyping{
		ttl:   ttl,
		cache: geche.NewMapTTLCache[string, time.Time](ctx, ttl, time.Second),
		now:   time.Now,
	}
}

func typingKey(channelID, userID string) string {
	return channelID + "\x00" + userID
}

func (m *MemoryTyping) SetTyping(_ context.Context, channelID, userID string) error {
	m.cache.Set(typingKey(channelID, userID), m.now().Add(m.ttl))
	return nil
}

func (m *MemoryTyping) ClearTyping(_ context.Context, channelID, userID string) error {
	_ = m.cache.Del(typingKey(channelID, userID))
	return nil
}

func (m *MemoryTyping) IsTyping(_ context.Context, channelID, userID string) (bool, error) {
	deadline, err := m.cache.Get(typingKey(channelID, userID))
	if err != nil {
		return false, nil
	}
	return m.now().Before(deadline), nil
}

type window struct {
	start time.Time
	count int64
}

// MemoryRateLimit is a fixed window counter. The Locker makes the
// read-modify-write of a key atomic.
type MemoryRateLimit struct {
	window   time.Duration
	counters *geche.Locker[string, window]
	now      func() time.Time
}

func NewMemoryRateLimit(ctx context.Context, w time.Duration) *MemoryRateLimit {
	return &MemoryRateLimit{
		window:   w,
		counters: geche.NewLocker[string, window](geche.NewMapTTLCache[string, window](ctx, w, w)),
		now:      time.Now,
	}
}

func (m *MemoryRateLimit) Increment(_ context.Context, key string) (int64, error) {
	now := m.now()

	tx := m.counters.Lock()
	defer tx.Unlock()

	w, err := tx.Get(key)
	if err != nil || now.Sub(w.start) >= m.window {
		w = window{start: now}
	}
	w.count++
	tx.Set(key, w)
	return w.count, nil
}
