package store

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPresenceConns  = "socketd:presence:conns"
	keyPresenceOnline = "socketd:presence:online"
	prefixPresence    = "socketd:presence:user:"
	prefixTyping      = "socketd:typing:"
	prefixRateLimit   = "socketd:ratelimit:"
)

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// KEYS[1] = conn -> user hash
// KEYS[2] = online users set
// ARGV[1] = per-user set prefix, ARGV[2] = user id, ARGV[3] = conn id
// Returns {first, replacedUser, replacedLast}.
var addConnScript = redis.NewScript(`
local prev = redis.call("HGET", KEYS[1], ARGV[3])
local replacedLast = 0
if prev and prev ~= ARGV[2] then
  local pk = ARGV[1] .. prev
  redis.call("SREM", pk, ARGV[3])
  if redis.call("SCARD", pk) == 0 then
    redis.call("DEL", pk)
    redis.call("SREM", KEYS[2], prev)
    replacedLast = 1
  end
else
  prev = ""
end
redis.call("HSET", KEYS[1], ARGV[3], ARGV[2])
redis.call("SADD", ARGV[1] .. ARGV[2], ARGV[3])
local first = redis.call("SADD", KEYS[2], ARGV[2])
return {first, prev, replacedLast}
`)

// KEYS[1] = conn -> user hash
// KEYS[2] = online users set
// ARGV[1] = per-user set prefix, ARGV[2] = conn id
// Returns {userId, last}; userId is "" for unknown connections.
var removeConnScript = redis.NewScript(`
local uid = redis.call("HGET", KEYS[1], ARGV[2])
if not uid then
  return {"", 0}
end
redis.call("HDEL", KEYS[1], ARGV[2])
local uk = ARGV[1] .. uid
redis.call("SREM", uk, ARGV[2])
if redis.call("SCARD", uk) == 0 then
  redis.call("DEL", uk)
  redis.call("SREM", KEYS[2], uid)
  return {uid, 1}
end
return {uid, 0}
`)

// KEYS[1] = counter, ARGV[1] = window in ms
var incrScript = redis.NewScript(`
local c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return c
`)

type RedisPresence struct {
	client redis.UniversalClient
}

func NewRedisPresence(client redis.UniversalClient) *RedisPresence {
	return &RedisPresence{client: client}
}

func (r *RedisPresence) AddConnection(ctx context.Context, userID, connID string) (AddResult, error) {
	vals, err := addConnScript.Run(ctx, r.client,
		[]string{keyPresenceConns, keyPresenceOnline},
		prefixPresence, userID, connID,
	).Slice()
	if err != nil {
		return AddResult{}, fmt.Errorf("presence add: %w", err)
	}
	if len(vals) != 3 {
		return AddResult{}, fmt.Errorf("presence add: unexpected reply %v", vals)
	}

	first, _ := vals[0].(int64)
	replaced, _ := vals[1].(string)
	replacedLast, _ := vals[2].(int64)
	return AddResult{First: first == 1, Replaced: replaced, ReplacedLast: replacedLast == 1}, nil
}

func (r *RedisPresence) RemoveConnection(ctx context.Context, connID string) (string, bool, error) {
	vals, err := removeConnScript.Run(ctx, r.client,
		[]string{keyPresenceConns, keyPresenceOnline},
		prefixPresence, connID,
	).Slice()
	if err != nil {
		return "", false, fmt.Errorf("presence remove: %w", err)
	}
	if len(vals) != 2 {
		return "", false, fmt.Errorf("presence remove: unexpected reply %v", vals)
	}

	userID, _ := vals[0].(string)
	last, _ := vals[1].(int64)
	return userID, last == 1, nil
}

func (r *RedisPresence) OnlineUsers(ctx context.Context) ([]string, error) {
	users, err := r.client.SMembers(ctx, keyPresenceOnline).Result()
	if err != nil {
		return nil, fmt.Errorf("presence list: %w", err)
	}
	slices.Sort(users)
	return users, nil
}

func (r *RedisPresence) IsOnline(ctx context.Context, userID string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, keyPresenceOnline, userID).Result()
	if err != nil {
		return false, fmt.Errorf("presence check: %w", err)
	}
	return ok, nil
}

type RedisTyping struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisTyping(client redis.UniversalClient, ttl time.Duration) *RedisTyping {
	return &RedisTyping{client: client, ttl: ttl}
}

func redisTypingKey(channelID, userID string) string {
	return prefixTyping + channelID + ":" + userID
}

func (r *RedisTyping) SetTyping(ctx context.Context, channelID, userID string) error {
	if err := r.client.Set(ctx, redisTypingKey(channelID, userID), "1", r.ttl).Err(); err != nil {
		return fmt.Errorf("typing set: %w", err)
	}
	return nil
}

func (r *RedisTyping) ClearTyping(ctx context.Context, channelID, userID string) error {
	if err := r.client.Del(ctx, redisTypingKey(channelID, userID)).Err(); err != nil {
		return fmt.Errorf("typing clear: %w", err)
	}
	return nil
}

func (r *RedisTyping) IsTyping(ctx context.Context, channelID, userID string) (bool, error) {
	n, err := r.client.Exists(ctx, redisTypingKey(channelID, userID)).Result()
	if err != nil {
		return false, fmt.Errorf("typing check: %w", err)
	}
	return n == 1, nil
}

type RedisRateLimit struct {
	client redis.UniversalClient
	window time.Duration
}

func NewRedisRateLimit(client redis.UniversalClient, window time.Duration) *RedisRateLimit {
	return &RedisRateLimit{client: client, window: window}
}

func (r *RedisRateLimit) Increment(ctx context.Context, key string) (int64, error) {
	n, err := incrScript.Run(ctx, r.client, []string{prefixRateLimit + key}, r.window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("rate limit incr: %w", err)
	}
	return n, nil
}
