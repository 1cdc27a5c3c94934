package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/c-pro/geche"
	"github.com/golang-jwt/jwt/v5"
)

const (
	AnonymousPrefix = "anon:"
	verifiedTTL     = time.Minute
)

var (
	ErrNoSecret     = errors.New("jwt secret is not configured")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the JWT payload accepted by the gateway. The user is taken
// from userId, then id, then sub.
type Claims struct {
	UserID string `json:"userId,omitempty"`
	ID     string `json:"id,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) subject() string {
	for _, v := range []string{c.UserID, c.ID, c.Subject} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Identity is who a connection speaks for.
type Identity struct {
	UserID        string
	Authenticated bool
	expiresAt     time.Time
}

// Anonymous builds the fallback identity for a connection.
func Anonymous(connID string) Identity {
	return Identity{UserID: AnonymousPrefix + connID}
}

type AuthService struct {
	secret []byte
	// Verified tokens, so that reconnect storms do not re-run HMAC checks.
	verified geche.Geche[string, Identity]
	now      func() time.Time
}

func NewAuthService(ctx context.Context, secret string) *AuthService {
	return &AuthService{
		secret:   []byte(secret),
		verified: geche.NewMapTTLCache[string, Identity](ctx, verifiedTTL, time.Minute),
		now:      time.Now,
	}
}

// Enabled reports whether tokens can be verified at all.
func (as *AuthService) Enabled() bool {
	return len(as.secret) > 0
}

// Verify checks an HS256 token and resolves the user it was issued for.
func (as *AuthService) Verify(token string) (Identity, error) {
	if !as.Enabled() {
		return Identity{}, ErrNoSecret
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}

	if id, err := as.verified.Get(token); err == nil {
		if id.expiresAt.IsZero() || as.now().Before(id.expiresAt) {
			return id, nil
		}
		_ = as.verified.Del(token)
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return as.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}), jwt.WithTimeFunc(as.now))
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID := claims.subject()
	if userID == "" {
		return Identity{}, fmt.Errorf("%w: no user claim", ErrInvalidToken)
	}

	id := Identity{UserID: userID, Authenticated: true}
	if claims.ExpiresAt != nil {
		id.expiresAt = claims.ExpiresAt.Time
	}
	as.verified.Set(token, id)
	return id, nil
}

// Identify never fails: anything that does not verify becomes anonymous.
func (as *AuthService) Identify(token, connID string) (Identity, error) {
	id, err := as.Verify(token)
	if err != nil {
		return Anonymous(connID), err
	}
	return id, nil
}

// Mint issues a token for userID. Used by the token tool and tests.
func (as *AuthService) Mint(userID string, ttl time.Duration) (string, error) {
	if !as.Enabled() {
		return "", ErrNoSecret
	}
	now := as.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(as.secret)
}

// BearerToken extracts the credential from a handshake request: the
// Authorization header, then the token query parameter, then a token header.
func BearerToken(authorization, query, header string) string {
	if v, ok := strings.CutPrefix(strings.TrimSpace(authorization), "Bearer "); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if q := strings.TrimSpace(query); q != "" {
		return q
	}
	return strings.TrimSpace(header)
}
