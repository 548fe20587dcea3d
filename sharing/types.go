// Package sharing defines the session-sharing domain types as they appear
// on the wire, and the client-side service that drives the remote API.
package sharing

import "time"

// Visibility controls who can discover and join a session.
type Visibility string

const (
	// VisibilityPrivate sessions admit invited participants only.
	VisibilityPrivate Visibility = "private"
	// VisibilityUnlisted sessions admit anyone with the link, optionally
	// gated by a password.
	VisibilityUnlisted Visibility = "unlisted"
	// VisibilityPublic sessions are listed in the public directory.
	VisibilityPublic Visibility = "public"
)

// Role is a participant's permission level within a session.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Rank orders roles for permission comparisons: viewer < editor < owner.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleEditor:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// Session is a shared conversation session as known remotely. Instances are
// value objects reconstructed from each response; nothing is cached
// client-side.
type Session struct {
	ID                     string     `json:"id"`
	OwnerID                string     `json:"owner_id"`
	ConversationID         string     `json:"conversation_id"`
	Title                  string     `json:"title"`
	Description            string     `json:"description"`
	Visibility             Visibility `json:"visibility"`
	ExpiresAt              *time.Time `json:"expires_at,omitempty"`
	IsActive               bool       `json:"is_active"`
	AllowViewerChat        bool       `json:"allow_viewer_chat"`
	ShowParticipantCursors bool       `json:"show_participant_cursors"`
	MaxViewers             *int       `json:"max_viewers,omitempty"`
	ViewCount              int        `json:"view_count"`
	ParticipantCount       int        `json:"participant_count"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// Participant is a user's membership in a session.
type Participant struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	UserID    string     `json:"user_id"`
	Role      Role       `json:"role"`
	InvitedAt time.Time  `json:"invited_at"`
	JoinedAt  *time.Time `json:"joined_at,omitempty"`
	Online    bool       `json:"online"`
}

// Invitation grants a pending membership. The token is delivered
// out-of-band to the invitee and redeemed on join.
type Invitation struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	CreatedBy string     `json:"created_by"`
	Role      Role       `json:"role"`
	Email     string     `json:"email,omitempty"`
	UserID    string     `json:"user_id,omitempty"`
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
