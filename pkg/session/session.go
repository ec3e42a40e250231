// Package session issues and validates signed session tokens, including admin impersonation sessions.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jakechorley/mentor-bridge/pkg/core/model"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrWeakSecret   = errors.New("session secret must be at least 32 bytes")
)

const issuer = "mentor-bridge"

// Claims represents the JWT claims of a session
type Claims struct {
	UserID         string       `json:"userId"`
	Roles          []model.Role `json:"roles"`
	ImpersonatorID string       `json:"impersonatorId,omitempty"`
	jwt.RegisteredClaims
}

// Impersonating reports whether an admin is acting as this session's user
func (c *Claims) Impersonating() bool {
	return c.ImpersonatorID != ""
}

// Manager handles session token operations
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a manager signing HS256 tokens with secret
func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	if len(secret) < 32 {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue creates a session token for user
func (m *Manager) Issue(user model.User) (string, time.Time, error) {
	return m.sign(user, "")
}

// IssueImpersonation creates a session acting as target, recording impersonatorID.
// Authorization of the impersonation is the caller's job.
func (m *Manager) IssueImpersonation(impersonatorID string, target model.User) (string, time.Time, error) {
	if impersonatorID == "" {
		return "", time.Time{}, errors.New("impersonator id is required")
	}
	return m.sign(target, impersonatorID)
}

func (m *Manager) sign(user model.User, impersonatorID string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)

	claims := &Claims{
		UserID:         user.ID,
		Roles:          user.EffectiveRoles(),
		ImpersonatorID: impersonatorID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses a token and returns its claims
func (m *Manager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
