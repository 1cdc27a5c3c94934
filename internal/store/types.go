// Package store holds the shared state behind presence, typing and rate
// limiting. Every store has an in-process implementation and a Redis one;
// Resilient* wrappers put a circuit breaker in front of the Redis store and
// answer from the in-process store while it is unavailable.
package store

import "context"

// AddResult describes what registering a connection changed.
type AddResult struct {
	// First is set when the user had no live connection before.
	First bool
	// Replaced is the user the connection previously announced, if different.
	Replaced string
	// ReplacedLast is set when Replaced lost its last connection.
	ReplacedLast bool
}

type PresenceStore interface {
	AddConnection(ctx context.Context, userID, connID string) (AddResult, error)
	// RemoveConnection returns the user the connection belonged to ("" when
	// unknown) and whether it was the user's last connection.
	RemoveConnection(ctx context.Context, connID string) (userID string, last bool, err error)
	OnlineUsers(ctx context.Context) ([]string, error)
	IsOnline(ctx context.Context, userID string) (bool, error)
}

type TypingStore interface {
	SetTyping(ctx context.Context, channelID, userID string) error
	ClearTyping(ctx context.Context, channelID, userID string) error
	IsTyping(ctx context.Context, channelID, userID string) (bool, error)
}

type RateLimitStore interface {
	// Increment counts a hit for key in the current window and returns the
	// count so far.
	Increment(ctx context.Context, key string) (int64, error)
}
