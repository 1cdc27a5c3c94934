package presence

import (
	"context"
	"errors"
	"socketd/internal/logging"
	"socketd/internal/models"
	"socketd/internal/store"
	"time"
)

type Emitter interface {
	EmitAll(ctx context.Context, event string, payload any) error
}

// Ledger persists the last time a user went offline.
type Ledger interface {
	RecordLastSeen(userID string, at time.Time) error
	LastSeen(userID string) (int64, error)
}

type Tracker struct {
	store   store.PresenceStore
	emitter Emitter
	ledger  Ledger // optional
	now     func() time.Time
}

func New(s store.PresenceStore, emitter Emitter, ledger Ledger) *Tracker {
	return &Tracker{store: s, emitter: emitter, ledger: ledger, now: time.Now}
}

// MarkOnline registers connID for userID and returns the online snapshot
// for the caller. The first connection of a user is announced to everyone.
func (t *Tracker) MarkOnline(ctx context.Context, userID, connID string) ([]string, error) {
	res, err := t.store.AddConnection(ctx, userID, connID)
	if err != nil {
		return nil, err
	}

	if res.Replaced != "" && res.ReplacedLast {
		t.wentOffline(ctx, res.Replaced)
	}
	if res.First {
		logging.Info().Str("user_id", userID).Msg("user online")
		if err := t.emitter.EmitAll(ctx, models.EventUserStatusChange, models.StatusChange{
			UserID: userID,
			Status: models.UserStatusOnline,
		}); err != nil {
			logging.Warn().Err(err).Str("user_id", userID).Msg("failed to broadcast online status")
		}
	}

	return t.OnlineUsers(ctx), nil
}

// OnlineUsers is a sorted snapshot; store errors read as empty.
func (t *Tracker) OnlineUsers(ctx context.Context) []string {
	users, err := t.store.OnlineUsers(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("failed to list online users")
		return []string{}
	}
	if users == nil {
		users = []string{}
	}
	return users
}

// HandleDisconnect drops the connection and announces the user offline if
// it was the last one.
func (t *Tracker) HandleDisconnect(ctx context.Context, connID string) {
	userID, last, err := t.store.RemoveConnection(ctx, connID)
	if err != nil {
		logging.Warn().Err(err).Str("conn_id", connID).Msg("failed to remove connection from presence")
		return
	}
	if userID != "" && last {
		t.wentOffline(ctx, userID)
	}
}

func (t *Tracker) wentOffline(ctx context.Context, userID string) {
	now := t.now()
	if t.ledger != nil {
		if err := t.ledger.RecordLastSeen(userID, now); err != nil {
			logging.Warn().Err(err).Str("user_id", userID).Msg("failed to record last seen")
		}
	}

	logging.Info().Str("user_id", userID).Msg("user offline")
	if err := t.emitter.EmitAll(ctx, models.EventUserStatusChange, models.StatusChange{
		UserID:   userID,
		Status:   models.UserStatusOffline,
		LastSeen: now.UnixMilli(),
	}); err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Msg("failed to broadcast offline status")
	}
}

// Status reports a single user for the admin API.
func (t *Tracker) Status(ctx context.Context, userID string) (models.Presence, error) {
	online, err := t.store.IsOnline(ctx, userID)
	if err != nil {
		return models.Presence{}, err
	}
	p := models.Presence{UserID: userID, Online: online}
	if online || t.ledger == nil {
		return p, nil
	}

	p.LastSeen, err = t.ledger.LastSeen(userID)
	if errors.Is(err, models.ErrNotFound) {
		return p, nil
	}
	return p, err
}
