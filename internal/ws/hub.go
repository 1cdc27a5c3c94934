package ws

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"socketd/internal/cluster"
	"socketd/internal/logging"
	"socketd/internal/metrics"
	"socketd/internal/models"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	sendQueueSize     = 256
	disconnectTimeout = 5 * time.Second
)

var ErrNoChannel = errors.New("channel id is required")

// Session is one client connection and the identity it speaks for.
type Session struct {
	ID            string
	UserID        string
	Authenticated bool
	RemoteAddr    string
	CreatedAt     time.Time

	// announced is the user given in userOnline; written by the
	// connection's own loop only.
	announced string
	// typists are the user ids this connection has sent typing events
	// under; same ownership as announced.
	typists []string
}

func (s *Session) noteTypist(userID string) {
	if !slices.Contains(s.typists, userID) {
		s.typists = append(s.typists, userID)
	}
}

// typingUsers is every id a disconnect has to clear typing state for.
func (s *Session) typingUsers() []string {
	if len(s.typists) == 0 {
		return []string{s.User()}
	}
	return s.typists
}

// User is the announced user, or the connection identity before userOnline.
func (s *Session) User() string {
	if s.announced != "" {
		return s.announced
	}
	return s.UserID
}

type memberLister interface {
	Members(channelID string) []string
}

type client struct {
	session *Session
	send    chan []byte
}

// Hub keeps the connections of this instance, delivers frames to them and
// bridges emissions to the other instances through the cluster bus.
type Hub struct {
	nodeID  string
	members memberLister
	bus     cluster.Bus
	svc     Services

	clients map[string]*client
	mu      sync.RWMutex
}

func NewHub(members memberLister, bus cluster.Bus) *Hub {
	return &Hub{
		nodeID:  uuid.NewString(),
		members: members,
		bus:     bus,
		clients: make(map[string]*client),
	}
}

// Attach wires the services that handle client events. It must be called
// before the hub accepts connections.
func (h *Hub) Attach(svc Services) {
	h.svc = svc
}

func (h *Hub) NodeID() string {
	return h.nodeID
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Join(s *Session) chan []byte {
	ch := make(chan []byte, sendQueueSize)

	h.mu.Lock()
	h.clients[s.ID] = &client{session: s, send: ch}
	h.mu.Unlock()

	metrics.ConnectionsActive.Inc()
	return ch
}

// Leave runs the disconnect path: rooms, typing, presence, then the
// connection is dropped from the registry and its queue closed.
func (h *Hub) Leave(ctx context.Context, s *Session) {
	ctx, cancel := context.WithTimeout(ctx, disconnectTimeout)
	defer cancel()

	if h.svc.Rooms != nil {
		channels := h.svc.Rooms.LeaveAll(s.ID)
		if h.svc.Typing != nil && len(channels) > 0 {
			for _, userID := range s.typingUsers() {
				h.svc.Typing.ClearConnection(ctx, s.ID, userID, channels)
			}
		}
	}
	if h.svc.Presence != nil {
		h.svc.Presence.HandleDisconnect(ctx, s.ID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[s.ID]; ok {
		close(c.send)
		delete(h.clients, s.ID)
		metrics.ConnectionsActive.Dec()
	}
}

// EmitAll sends an event to every connection of every instance.
func (h *Hub) EmitAll(ctx context.Context, event string, payload any) error {
	metrics.EventsEmitted.WithLabelValues("all").Inc()
	return h.emit(ctx, "", event, payload, "")
}

// EmitChannel sends an event to the members of a channel on every
// instance, except the given connection.
func (h *Hub) EmitChannel(ctx context.Context, channelID, event string, payload any, exceptConn string) error {
	if channelID == "" {
		return ErrNoChannel
	}
	metrics.EventsEmitted.WithLabelValues("channel").Inc()
	return h.emit(ctx, channelID, event, payload, exceptConn)
}

// EmitTo sends an event to a single local connection.
func (h *Hub) EmitTo(_ context.Context, connID, event string, payload any) error {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}
	metrics.EventsEmitted.WithLabelValues("connection").Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[connID]; ok {
		h.push(c, frame)
		return nil
	}
	return fmt.Errorf("connection %s: %w", connID, models.ErrNotFound)
}

func (h *Hub) emit(ctx context.Context, channelID, event string, payload any, except string) error {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}

	h.deliver(channelID, frame, except)

	err = h.bus.Publish(ctx, cluster.Envelope{
		Origin:  h.nodeID,
		Channel: channelID,
		Event:   event,
		Except:  except,
		Frame:   frame,
	})
	if err != nil {
		logging.Error().Err(err).Str("event", event).Str("channel", channelID).Msg("failed to publish to cluster")
		return fmt.Errorf("cluster publish: %w", err)
	}
	return nil
}

func (h *Hub) deliver(channelID string, frame []byte, except string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if channelID == "" {
		for id, c := range h.clients {
			if id != except {
				h.push(c, frame)
			}
		}
		return
	}

	for _, id := range h.members.Members(channelID) {
		if id == except {
			continue
		}
		if c, ok := h.clients[id]; ok {
			h.push(c, frame)
		}
	}
}

// push never blocks: a connection that cannot keep up loses the frame.
func (h *Hub) push(c *client, frame []byte) {
	select {
	case c.send <- frame:
	default:
		metrics.FramesDropped.Inc()
		logging.Warn().Str("conn_id", c.session.ID).Msg("send queue full, dropping frame")
	}
}

// receive delivers an envelope published by another instance.
func (h *Hub) receive(env cluster.Envelope) {
	if env.Origin == h.nodeID {
		return
	}
	metrics.ClusterReceived.WithLabelValues(h.bus.Name()).Inc()
	h.deliver(env.Channel, env.Frame, env.Except)
}

// Serve consumes the cluster bus until ctx is done. It is meant to run
// under a supervisor, which restarts it when the subscription fails.
func (h *Hub) Serve(ctx context.Context) error {
	logging.Info().Str("node_id", h.nodeID).Str("bus", h.bus.Name()).Msg("cluster subscription started")
	err := h.bus.Subscribe(ctx, h.receive)
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Warn().Err(err).Str("bus", h.bus.Name()).Msg("cluster subscription ended")
	}
	return err
}

func (h *Hub) String() string {
	return "cluster-bridge"
}

func encodeFrame(event string, payload any) ([]byte, error) {
	frame, err := models.NewFrame(event, payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(frame)
}
