package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 24 * time.Hour

var (
	// ErrTokenExpired signals that the session token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the session token failed verification.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

type sessionClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HMAC-signed session tokens.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// TokenManagerOption customises TokenManager behaviour.
type TokenManagerOption func(*TokenManager)

// WithTokenTTL overrides the token lifetime.
func WithTokenTTL(ttl time.Duration) TokenManagerOption {
	return func(m *TokenManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithIssuer overrides the issuer claim stamped on tokens.
func WithIssuer(issuer string) TokenManagerOption {
	return func(m *TokenManager) {
		if trimmed := strings.TrimSpace(issuer); trimmed != "" {
			m.issuer = trimmed
		}
	}
}

// WithClock injects a custom clock, primarily for tests.
func WithClock(clock func() time.Time) TokenManagerOption {
	return func(m *TokenManager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// NewTokenManager constructs a TokenManager signing with the shared secret.
func NewTokenManager(secret string, opts ...TokenManagerOption) (*TokenManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: token secret is required")
	}
	m := &TokenManager{
		secret: []byte(secret),
		ttl:    defaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Issue mints a signed session token for the given principal.
func (m *TokenManager) Issue(identity Identity) (string, error) {
	if m == nil {
		return "", errors.New("auth: token manager not initialised")
	}
	uid := strings.TrimSpace(identity.UID)
	if uid == "" {
		return "", errors.New("auth: identity uid is required")
	}

	now := m.now().UTC()
	claims := sessionClaims{
		Email: strings.TrimSpace(identity.Email),
		Role:  strings.TrimSpace(identity.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses the token and returns the embedded identity.
func (m *TokenManager) Verify(tokenStr string) (*Identity, error) {
	if m == nil {
		return nil, ErrTokenInvalid
	}
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, ErrTokenInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)

	var claims sessionClaims
	_, err := parser.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if m.issuer != "" && claims.Issuer != m.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrTokenInvalid)
	}
	uid := strings.TrimSpace(claims.Subject)
	if uid == "" {
		return nil, fmt.Errorf("%w: subject missing", ErrTokenInvalid)
	}

	return &Identity{
		UID:   uid,
		Email: claims.Email,
		Role:  claims.Role,
	}, nil
}
