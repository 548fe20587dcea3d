// Package auth issues and verifies the bearer credentials accepted by the
// session-sharing API. Tokens are HS256 JWTs carrying the user identity; a
// separate token_use claim keeps access and refresh tokens from being
// swapped for one another.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	useAccess  = "access"
	useRefresh = "refresh"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Identity is the authenticated principal extracted from a token.
type Identity struct {
	UserID string
	Email  string
}

// TokenPair is one issued access/refresh credential pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int // access token lifetime in seconds
}

type claims struct {
	jwt.RegisteredClaims
	Email    string `json:"email,omitempty"`
	TokenUse string `json:"token_use"`
}

// Manager mints and verifies token pairs.
type Manager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      clockwork.Clock
}

// NewManager creates a Manager. The clock is injected so expiry is testable.
func NewManager(secret string, accessTTL, refreshTTL time.Duration, clock clockwork.Clock) *Manager {
	return &Manager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		clock:      clock,
	}
}

// IssuePair mints a fresh access/refresh pair for the identity.
func (m *Manager) IssuePair(identity Identity) (*TokenPair, error) {
	access, err := m.sign(identity, useAccess, m.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, err := m.sign(identity, useRefresh, m.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(m.accessTTL.Seconds()),
	}, nil
}

// VerifyAccess validates an access token and returns its identity.
func (m *Manager) VerifyAccess(token string) (*Identity, error) {
	return m.verify(token, useAccess)
}

// VerifyRefresh validates a refresh token and returns its identity.
func (m *Manager) VerifyRefresh(token string) (*Identity, error) {
	return m.verify(token, useRefresh)
}

func (m *Manager) sign(identity Identity, use string, ttl time.Duration) (string, error) {
	now := m.clock.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:    identity.Email,
		TokenUse: use,
	})
	return token.SignedString(m.secret)
}

func (m *Manager) verify(token, use string) (*Identity, error) {
	var parsed claims
	_, err := jwt.ParseWithClaims(token, &parsed,
		func(t *jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(m.clock.Now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed.TokenUse != use || parsed.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &Identity{UserID: parsed.Subject, Email: parsed.Email}, nil
}
