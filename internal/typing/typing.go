package typing

import (
	"context"
	"socketd/internal/logging"
	"socketd/internal/models"
	"socketd/internal/store"
)

type Emitter interface {
	EmitChannel(ctx context.Context, channelID, event string, payload any, exceptConn string) error
}

type Tracker struct {
	store   store.TypingStore
	emitter Emitter
}

func New(s store.TypingStore, emitter Emitter) *Tracker {
	return &Tracker{store: s, emitter: emitter}
}

// SetTyping records the indicator and relays it to the rest of the channel.
// The relay happens even if the store update failed.
func (t *Tracker) SetTyping(ctx context.Context, connID, userID, channelID string, isTyping bool) error {
	var err error
	if isTyping {
		err = t.store.SetTyping(ctx, channelID, userID)
	} else {
		err = t.store.ClearTyping(ctx, channelID, userID)
	}
	if err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Str("channel", channelID).Msg("failed to update typing state")
	}

	return t.emitter.EmitChannel(ctx, channelID, models.EventUserTyping, models.TypingEvent{
		UserID:         userID,
		ConversationID: channelID,
		IsTyping:       isTyping,
	}, connID)
}

func (t *Tracker) IsTyping(ctx context.Context, userID, channelID string) bool {
	ok, err := t.store.IsTyping(ctx, channelID, userID)
	if err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Str("channel", channelID).Msg("failed to read typing state")
		return false
	}
	return ok
}

// Clear drops the indicator without telling anyone.
func (t *Tracker) Clear(ctx context.Context, userID, channelID string) {
	if err := t.store.ClearTyping(ctx, channelID, userID); err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Str("channel", channelID).Msg("failed to clear typing state")
	}
}

// ClearConnection runs on disconnect: the user stops typing in every
// channel the connection was in.
func (t *Tracker) ClearConnection(ctx context.Context, connID, userID string, channels []string) {
	for _, channelID := range channels {
		if err := t.SetTyping(ctx, connID, userID, channelID, false); err != nil {
			logging.Warn().Err(err).Str("conn_id", connID).Str("channel", channelID).Msg("failed to relay typing stop")
		}
	}
}
