package rooms

import (
	"context"
	"fmt"
	"slices"
	"socketd/internal/logging"
	"socketd/internal/models"
	"sync"
)

// Registry is the channel membership of the connections on this instance.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]map[string]struct{} // channel -> conns
	conns    map[string]map[string]struct{} // conn -> channels
}

func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]map[string]struct{}),
		conns:    make(map[string]map[string]struct{}),
	}
}

// Add subscribes connID to channelID. Adding twice is harmless.
func (r *Registry) Add(connID, channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.channels[channelID]
	if !ok {
		members = make(map[string]struct{})
		r.channels[channelID] = members
	}
	members[connID] = struct{}{}

	joined, ok := r.conns[connID]
	if !ok {
		joined = make(map[string]struct{})
		r.conns[connID] = joined
	}
	joined[channelID] = struct{}{}
}

// Remove reports whether connID was a member of channelID.
func (r *Registry) Remove(connID, channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remove(connID, channelID)
}

func (r *Registry) remove(connID, channelID string) bool {
	members, ok := r.channels[channelID]
	if !ok {
		return false
	}
	if _, ok := members[connID]; !ok {
		return false
	}

	delete(members, connID)
	if len(members) == 0 {
		delete(r.channels, channelID)
	}
	if joined, ok := r.conns[connID]; ok {
		delete(joined, channelID)
		if len(joined) == 0 {
			delete(r.conns, connID)
		}
	}
	return true
}

// RemoveAll drops connID from every channel and returns those channels.
func (r *Registry) RemoveAll(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []string
	for channelID := range r.conns[connID] {
		left = append(left, channelID)
	}
	for _, channelID := range left {
		r.remove(connID, channelID)
	}
	slices.Sort(left)
	return left
}

// Members returns the local connections subscribed to channelID.
func (r *Registry) Members(channelID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]string, 0, len(r.channels[channelID]))
	for connID := range r.channels[channelID] {
		members = append(members, connID)
	}
	return members
}

// Channels returns the channels connID is subscribed to.
func (r *Registry) Channels(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channels := make([]string, 0, len(r.conns[connID]))
	for channelID := range r.conns[connID] {
		channels = append(channels, channelID)
	}
	slices.Sort(channels)
	return channels
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

type Emitter interface {
	EmitChannel(ctx context.Context, channelID, event string, payload any, exceptConn string) error
}

// Manager joins and leaves channels on behalf of connections and tells the
// other members about it.
type Manager struct {
	registry *Registry
	emitter  Emitter
}

func NewManager(registry *Registry, emitter Emitter) *Manager {
	return &Manager{registry: registry, emitter: emitter}
}

// Join always notifies, duplicate joins included.
func (m *Manager) Join(ctx context.Context, connID, userID, channelID string) error {
	m.registry.Add(connID, channelID)
	logging.Debug().Str("conn_id", connID).Str("user_id", userID).Str("channel", channelID).Msg("joined channel")

	return m.emitter.EmitChannel(ctx, channelID, models.EventUserJoined, models.MembershipNotice{
		UserID:  userID,
		Message: fmt.Sprintf("%s joined the room", userID),
	}, connID)
}

// Leave is a no-op for channels the connection never joined.
func (m *Manager) Leave(ctx context.Context, connID, userID, channelID string) error {
	if !m.registry.Remove(connID, channelID) {
		return nil
	}
	logging.Debug().Str("conn_id", connID).Str("user_id", userID).Str("channel", channelID).Msg("left channel")

	return m.emitter.EmitChannel(ctx, channelID, models.EventUserLeft, models.MembershipNotice{
		UserID:  userID,
		Message: fmt.Sprintf("%s left the room", userID),
	}, connID)
}

// LeaveAll silently removes a disconnecting connection.
func (m *Manager) LeaveAll(connID string) []string {
	return m.registry.RemoveAll(connID)
}

func (m *Manager) Members(channelID string) []string {
	return m.registry.Members(channelID)
}
