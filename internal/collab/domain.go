// Package collab implements the authoritative session-sharing domain
// service: lifecycle rules, authorization, and lazy expiry. Persistence is
// delegated to a Repository implementation.
package collab

import (
	"context"
	"errors"
	"time"

	"github.com/pscheid92/sessionshare/sharing"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrInvitationNotFound  = errors.New("invitation not found")
)

// Session is the stored form of a shared session. The password hash never
// leaves this package.
type Session struct {
	ID                     string
	OwnerID                string
	ConversationID         string
	Title                  string
	Description            string
	Visibility             sharing.Visibility
	PasswordHash           string
	ExpiresAt              *time.Time
	IsActive               bool
	AllowViewerChat        bool
	ShowParticipantCursors bool
	MaxViewers             *int
	ViewCount              int
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Expired reports whether the session's expiry, if any, has passed. Expiry
// is evaluated lazily at read and join time; nothing deletes expired
// sessions in the background.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && s.ExpiresAt.Before(now)
}

// Participant is a stored session membership. Exactly one participant per
// session holds the owner role, set at creation and immutable here.
type Participant struct {
	ID        string
	SessionID string
	UserID    string
	Role      sharing.Role
	InvitedAt time.Time
	JoinedAt  *time.Time
	Online    bool
}

// Invitation is a stored pending membership, redeemed at most once.
type Invitation struct {
	ID        string
	SessionID string
	CreatedBy string
	Role      sharing.Role
	Email     string
	UserID    string
	Token     string
	ExpiresAt *time.Time
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Repository is the storage contract for sessions, participants, and
// invitations. Implementations return the package sentinel errors for
// missing rows.
type Repository interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	UpdateSession(ctx context.Context, session *Session) error
	// ListPublicSessions returns public, unexpired sessions ordered by
	// creation time descending, plus the total count before pagination.
	ListPublicSessions(ctx context.Context, limit, offset int, now time.Time) ([]*Session, int, error)
	IncrementViewCount(ctx context.Context, sessionID string) error

	AddParticipant(ctx context.Context, participant *Participant) error
	GetParticipant(ctx context.Context, sessionID, userID string) (*Participant, error)
	UpdateParticipant(ctx context.Context, participant *Participant) error
	ListParticipants(ctx context.Context, sessionID string) ([]*Participant, error)
	CountParticipantsByRole(ctx context.Context, sessionID string, role sharing.Role) (int, error)

	CreateInvitation(ctx context.Context, invitation *Invitation) error
	GetInvitationByToken(ctx context.Context, token string) (*Invitation, error)
	MarkInvitationUsed(ctx context.Context, id string, usedAt time.Time) error
}
