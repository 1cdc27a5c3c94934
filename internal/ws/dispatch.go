package ws

import (
	"context"
	"errors"
	"socketd/internal/content"
	"socketd/internal/logging"
	"socketd/internal/metrics"
	"socketd/internal/models"
	"socketd/internal/relay"

	"github.com/goccy/go-json"
)

type PresenceService interface {
	MarkOnline(ctx context.Context, userID, connID string) ([]string, error)
	OnlineUsers(ctx context.Context) []string
	HandleDisconnect(ctx context.Context, connID string)
}

type RoomService interface {
	Join(ctx context.Context, connID, userID, channelID string) error
	Leave(ctx context.Context, connID, userID, channelID string) error
	LeaveAll(connID string) []string
}

type TypingService interface {
	SetTyping(ctx context.Context, connID, userID, channelID string, isTyping bool) error
	ClearConnection(ctx context.Context, connID, userID string, channels []string)
}

type MessageService interface {
	SendMessage(ctx context.Context, connID string, raw json.RawMessage) error
	SendRoomMessage(ctx context.Context, connID string, raw json.RawMessage) error
}

type Services struct {
	Presence PresenceService
	Rooms    RoomService
	Typing   TypingService
	Relay    MessageService
}

var errMalformedEvent = errors.New("malformed event payload")

// clientFault reports errors caused by what the client sent, as opposed to
// failures on our side.
func clientFault(err error) bool {
	for _, target := range []error{
		errMalformedEvent,
		models.ErrInvalidChannel,
		relay.ErrMalformedPayload,
		relay.ErrMissingChannel,
		relay.ErrMissingSender,
		content.ErrEmptyID,
		content.ErrLongID,
		content.ErrControlID,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Dispatch handles one client event. Events of a connection are dispatched
// one at a time, in the order they were read.
func (h *Hub) Dispatch(ctx context.Context, s *Session, frame models.Frame) {
	metrics.EventsReceived.WithLabelValues(eventLabel(frame.Event)).Inc()

	err := h.dispatch(ctx, s, frame)
	if err == nil {
		return
	}

	if !clientFault(err) {
		logging.Error().Err(err).Str("conn_id", s.ID).Str("event", frame.Event).Msg("failed to handle event")
		return
	}

	metrics.MalformedEvents.WithLabelValues(eventLabel(frame.Event)).Inc()
	logging.Warn().Err(err).Str("conn_id", s.ID).Str("user_id", s.User()).Str("event", frame.Event).Msg("rejected client event")
	if err := h.EmitTo(ctx, s.ID, models.EventError, models.ErrorEvent{
		Event:   frame.Event,
		Message: err.Error(),
	}); err != nil {
		logging.Debug().Err(err).Str("conn_id", s.ID).Msg("failed to report error to client")
	}
}

func (h *Hub) dispatch(ctx context.Context, s *Session, frame models.Frame) error {
	switch frame.Event {
	case models.EventUserOnline:
		userID := s.UserID
		if len(frame.Data) > 0 {
			id, err := models.UserID(frame.Data)
			if err != nil {
				return errMalformedEvent
			}
			userID = id
		}
		if err := content.ValidateID(userID); err != nil {
			return err
		}
		s.announced = userID
		online, err := h.svc.Presence.MarkOnline(ctx, userID, s.ID)
		if err != nil {
			return err
		}
		return h.EmitTo(ctx, s.ID, models.EventOnlineUsers, online)

	case models.EventGetOnlineUsers:
		return h.EmitTo(ctx, s.ID, models.EventOnlineUsers, h.svc.Presence.OnlineUsers(ctx))

	case models.EventJoinRoom, models.EventJoinChatRoom:
		channelID, err := channelOf(frame.Data)
		if err != nil {
			return err
		}
		return h.svc.Rooms.Join(ctx, s.ID, s.User(), channelID)

	case models.EventLeaveRoom, models.EventLeaveChatRoom:
		channelID, err := channelOf(frame.Data)
		if err != nil {
			return err
		}
		return h.svc.Rooms.Leave(ctx, s.ID, s.User(), channelID)

	case models.EventTyping:
		var p struct {
			UserID         string          `json:"userId"`
			ConversationID json.RawMessage `json:"conversationId"`
			IsTyping       bool            `json:"isTyping"`
		}
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return errMalformedEvent
		}
		channelID, err := channelOf(p.ConversationID)
		if err != nil {
			return err
		}
		userID := p.UserID
		if userID == "" {
			userID = s.User()
		}
		s.noteTypist(userID)
		return h.svc.Typing.SetTyping(ctx, s.ID, userID, channelID, p.IsTyping)

	case models.EventSendMessage:
		return h.svc.Relay.SendMessage(ctx, s.ID, frame.Data)

	case models.EventSendRoomMessage:
		return h.svc.Relay.SendRoomMessage(ctx, s.ID, frame.Data)

	case models.EventPing:
		return h.EmitTo(ctx, s.ID, models.EventPong, nil)
	}

	logging.Debug().Str("conn_id", s.ID).Str("event", frame.Event).Msg("ignoring unknown event")
	return nil
}

func channelOf(raw json.RawMessage) (string, error) {
	channelID, err := models.ChannelID(raw)
	if err != nil {
		return "", err
	}
	if err := content.ValidateID(channelID); err != nil {
		return "", err
	}
	return channelID, nil
}

var knownEvents = map[string]bool{
	models.EventUserOnline:      true,
	models.EventGetOnlineUsers:  true,
	models.EventJoinRoom:        true,
	models.EventJoinChatRoom:    true,
	models.EventLeaveRoom:       true,
	models.EventLeaveChatRoom:   true,
	models.EventTyping:          true,
	models.EventSendMessage:     true,
	models.EventSendRoomMessage: true,
	models.EventPing:            true,
}

// eventLabel keeps metric cardinality bounded.
func eventLabel(event string) string {
	if knownEvents[event] {
		return event
	}
	return "other"
}
