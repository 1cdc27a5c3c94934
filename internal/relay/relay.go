// Package relay fans chat messages out to channels, for client events and
// for events injected over HTTP.
package relay

import (
	"context"
	"fmt"
	"socketd/internal/logging"
	"socketd/internal/models"
	"time"

	"github.com/goccy/go-json"
)

type Emitter interface {
	EmitAll(ctx context.Context, event string, payload any) error
	EmitChannel(ctx context.Context, channelID, event string, payload any, exceptConn string) error
}

type TypingClearer interface {
	Clear(ctx context.Context, userID, channelID string)
}

type Config struct {
	// SanitizeText runs message text through the HTML policy.
	SanitizeText bool
}

type Relay struct {
	parser
	emitter Emitter
	typing  TypingClearer
}

func New(emitter Emitter, typing TypingClearer, cfg Config) *Relay {
	return &Relay{
		parser:  parser{sanitize: cfg.SanitizeText, now: time.Now},
		emitter: emitter,
		typing:  typing,
	}
}

// SendMessage delivers a one-to-one message to the whole conversation, the
// sender included, and stops the sender's typing indicator.
func (r *Relay) SendMessage(ctx context.Context, connID string, raw json.RawMessage) error {
	msg, err := r.ParseMessage(raw)
	if err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}

	r.typing.Clear(ctx, msg.SenderID, msg.ChannelID)
	logging.Debug().Str("conn_id", connID).Str("channel", msg.ChannelID).Str("user_id", msg.SenderID).Msg("relaying message")

	return r.emitter.EmitChannel(ctx, msg.ChannelID, models.EventNewMessage, msg, "")
}

// SendRoomMessage delivers a room message, the sender included.
func (r *Relay) SendRoomMessage(ctx context.Context, connID string, raw json.RawMessage) error {
	msg, err := r.ParseRoomMessage(raw)
	if err != nil {
		return fmt.Errorf("sendRoomMessage: %w", err)
	}

	logging.Debug().Str("conn_id", connID).Str("channel", msg.ChannelID).Msg("relaying room message")
	return r.emitter.EmitChannel(ctx, msg.ChannelID, models.EventNewRoomMessage, msg, "")
}

// Inject pushes an event from the HTTP side-channel. data.roomId scopes it
// to one channel, otherwise everyone receives it.
func (r *Relay) Inject(ctx context.Context, event string, data json.RawMessage) error {
	var scope struct {
		RoomID json.RawMessage `json:"roomId"`
	}
	if err := json.Unmarshal(data, &scope); err != nil {
		return fmt.Errorf("%s: %w", event, ErrMalformedPayload)
	}

	var payload any = data
	switch event {
	case models.EventNewMessage:
		msg, err := r.ParseMessage(data)
		if err != nil {
			return fmt.Errorf("%s: %w", event, err)
		}
		payload = msg
	case models.EventNewRoomMessage:
		msg, err := r.ParseRoomMessage(data)
		if err != nil {
			return fmt.Errorf("%s: %w", event, err)
		}
		payload = msg
	}

	if len(scope.RoomID) > 0 && !isBlank(scope.RoomID) {
		roomID, err := models.ChannelID(scope.RoomID)
		if err != nil {
			return fmt.Errorf("%s: %w", event, ErrMissingChannel)
		}
		logging.Debug().Str("event", event).Str("channel", roomID).Msg("injecting event")
		return r.emitter.EmitChannel(ctx, roomID, event, payload, "")
	}

	logging.Debug().Str("event", event).Msg("injecting event to everyone")
	return r.emitter.EmitAll(ctx, event, payload)
}
