package store

import (
	"context"
	"slices"
	"socketd/internal/logging"
	"socketd/internal/metrics"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

const (
	breakerFailures = 3
	breakerTimeout  = 10 * time.Second
)

// guard runs an operation against the shared store behind a circuit breaker
// and hands over to a fallback when the store fails or the breaker is open.
type guard struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]
}

func newGuard(name string) *guard {
	return &guard{
		name: name,
		cb: gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     breakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				metrics.BreakerState.WithLabelValues(name).Set(float64(to))
				logging.Warn().Str("store", name).Str("from", from.String()).Str("to", to.String()).
					Msg("store circuit breaker changed state")
			},
		}),
	}
}

func do[T any](g *guard, op string, primary func() (T, error), fallback func() (T, error)) (T, error) {
	res, err := g.cb.Execute(func() (any, error) {
		return primary()
	})
	if err == nil {
		v, _ := res.(T)
		return v, nil
	}

	logging.Warn().Err(err).Str("store", g.name).Str("op", op).Msg("shared store unavailable, using fallback")
	metrics.StoreFallbacks.WithLabelValues(g.name, op).Inc()
	return fallback()
}

// ResilientPresence serves presence from the primary store and keeps
// registrations made during an outage in the local store.
type ResilientPresence struct {
	primary  PresenceStore
	fallback PresenceStore
	guard    *guard
}

func NewResilientPresence(primary, fallback PresenceStore) *ResilientPresence {
	return &ResilientPresence{primary: primary, fallback: fallback, guard: newGuard("presence")}
}

func (r *ResilientPresence) AddConnection(ctx context.Context, userID, connID string) (AddResult, error) {
	return do(r.guard, "add",
		func() (AddResult, error) { return r.primary.AddConnection(ctx, userID, connID) },
		func() (AddResult, error) { return r.fallback.AddConnection(ctx, userID, connID) },
	)
}

func (r *ResilientPresence) RemoveConnection(ctx context.Context, connID string) (string, bool, error) {
	type removal struct {
		userID string
		last   bool
	}
	fromFallback := func() (removal, error) {
		u, last, err := r.fallback.RemoveConnection(ctx, connID)
		return removal{u, last}, err
	}

	res, err := do(r.guard, "remove",
		func() (removal, error) {
			u, last, err := r.primary.RemoveConnection(ctx, connID)
			return removal{u, last}, err
		},
		fromFallback,
	)
	if err == nil && res.userID == "" {
		// Registered while the shared store was down.
		res, err = fromFallback()
	}
	return res.userID, res.last, err
}

func (r *ResilientPresence) OnlineUsers(ctx context.Context) ([]string, error) {
	local, _ := r.fallback.OnlineUsers(ctx)
	return do(r.guard, "list",
		func() ([]string, error) {
			users, err := r.primary.OnlineUsers(ctx)
			if err != nil {
				return nil, err
			}
			for _, u := range local {
				if !slices.Contains(users, u) {
					users = append(users, u)
				}
			}
			slices.Sort(users)
			return users, nil
		},
		func() ([]string, error) { return local, nil },
	)
}

func (r *ResilientPresence) IsOnline(ctx context.Context, userID string) (bool, error) {
	if ok, _ := r.fallback.IsOnline(ctx, userID); ok {
		return true, nil
	}
	return do(r.guard, "check",
		func() (bool, error) { return r.primary.IsOnline(ctx, userID) },
		func() (bool, error) { return false, nil },
	)
}

type ResilientTyping struct {
	primary  TypingStore
	fallback TypingStore
	guard    *guard
}

func NewResilientTyping(primary, fallback TypingStore) *ResilientTyping {
	return &ResilientTyping{primary: primary, fallback: fallback, guard: newGuard("typing")}
}

func (r *ResilientTyping) SetTyping(ctx context.Context, channelID, userID string) error {
	_, err := do(r.guard, "set",
		func() (struct{}, error) { return struct{}{}, r.primary.SetTyping(ctx, channelID, userID) },
		func() (struct{}, error) { return struct{}{}, r.fallback.SetTyping(ctx, channelID, userID) },
	)
	return err
}

func (r *ResilientTyping) ClearTyping(ctx context.Context, channelID, userID string) error {
	_ = r.fallback.ClearTyping(ctx, channelID, userID)
	_, err := do(r.guard, "clear",
		func() (struct{}, error) { return struct{}{}, r.primary.ClearTyping(ctx, channelID, userID) },
		func() (struct{}, error) { return struct{}{}, nil },
	)
	return err
}

func (r *ResilientTyping) IsTyping(ctx context.Context, channelID, userID string) (bool, error) {
	if ok, _ := r.fallback.IsTyping(ctx, channelID, userID); ok {
		return true, nil
	}
	return do(r.guard, "check",
		func() (bool, error) { return r.primary.IsTyping(ctx, channelID, userID) },
		func() (bool, error) { return false, nil },
	)
}

// ResilientRateLimit fails open: while the store is unavailable every
// request counts as zero.
type ResilientRateLimit struct {
	primary RateLimitStore
	guard   *guard
}

func NewResilientRateLimit(primary RateLimitStore) *ResilientRateLimit {
	return &ResilientRateLimit{primary: primary, guard: newGuard("ratelimit")}
}

func (r *ResilientRateLimit) Increment(ctx context.Context, key string) (int64, error) {
	return do(r.guard, "incr",
		func() (int64, error) { return r.primary.Increment(ctx, key) },
		func() (int64, error) { return 0, nil },
	)
}
