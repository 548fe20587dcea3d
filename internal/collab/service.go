package collab

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"

	"github.com/pscheid92/sessionshare/apierror"
	"github.com/pscheid92/sessionshare/sharing"
)

const (
	defaultPublicLimit = 20
	maxPublicLimit     = 100
)

// Service enforces the session-sharing rules regardless of which client
// issues the call. It performs no retries and owns no caches; freshness is
// always re-read from the repository.
type Service struct {
	repo  Repository
	clock clockwork.Clock
}

// NewService creates the domain service. The clock is injected so expiry
// checks are testable.
func NewService(repo Repository, clock clockwork.Clock) *Service {
	return &Service{repo: repo, clock: clock}
}

// CreateSessionInput carries the recognized share options. Zero values mean
// the documented defaults were applied by the transport layer.
type CreateSessionInput struct {
	Title                  string
	Description            string
	Visibility             sharing.Visibility
	Password               string
	ExpiresIn              time.Duration
	AllowViewerChat        bool
	ShowParticipantCursors bool
	MaxViewers             *int
}

// CreateSession creates a session and registers its owner as the sole
// owner-role participant.
func (s *Service) CreateSession(ctx context.Context, ownerID, conversationID string, in CreateSessionInput) (*Session, error) {
	if in.Title == "" {
		return nil, apierror.ValidationError("a session title is required")
	}
	if conversationID == "" {
		return nil, apierror.ValidationError("a conversation id is required")
	}
	visibility := in.Visibility
	if visibility == "" {
		visibility = sharing.VisibilityPrivate
	}
	if err := validateVisibility(visibility); err != nil {
		return nil, err
	}
	if visibility == sharing.VisibilityPublic && in.Password != "" {
		return nil, apierror.ValidationError("public sessions cannot be password protected")
	}
	if in.MaxViewers != nil && *in.MaxViewers <= 0 {
		return nil, apierror.ValidationError("max_viewers must be a positive integer")
	}

	passwordHash, err := hashPassword(in.Password)
	if err != nil {
		return nil, apierror.InternalError("failed to hash session password", err)
	}

	now := s.clock.Now().UTC()
	var expiresAt *time.Time
	if in.ExpiresIn > 0 {
		t := now.Add(in.ExpiresIn)
		expiresAt = &t
	}

	session := &Session{
		ID:                     uuid.NewString(),
		OwnerID:                ownerID,
		ConversationID:         conversationID,
		Title:                  in.Title,
		Description:            in.Description,
		Visibility:             visibility,
		PasswordHash:           passwordHash,
		ExpiresAt:              expiresAt,
		IsActive:               true,
		AllowViewerChat:        in.AllowViewerChat,
		ShowParticipantCursors: in.ShowParticipantCursors,
		MaxViewers:             in.MaxViewers,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, apierror.InternalError("failed to create session", err)
	}

	joined := now
	owner := &Participant{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		UserID:    ownerID,
		Role:      sharing.RoleOwner,
		InvitedAt: now,
		JoinedAt:  &joined,
		Online:    true,
	}
	if err := s.repo.AddParticipant(ctx, owner); err != nil {
		return nil, apierror.InternalError("failed to register session owner", err)
	}

	return session, nil
}

// GetSession returns the session by id.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, apierror.NotFoundError("session not found").WithContext("session_id", sessionID)
	}
	if err != nil {
		return nil, apierror.InternalError("failed to load session", err)
	}
	return session, nil
}

// JoinSession admits a user into a session. Checks run in order: existence,
// lazy expiry, viewer capacity, authorization (password or invitation). A
// valid invitation token bypasses the password gate and assigns the role
// recorded on the invitation; tokens are single-use.
func (s *Service) JoinSession(ctx context.Context, sessionID, userID, password, invitationToken string) (*Participant, *Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if !session.IsActive {
		return nil, nil, apierror.NotFoundError("session is no longer active").WithContext("session_id", sessionID)
	}

	now := s.clock.Now().UTC()
	if session.Expired(now) {
		return nil, nil, apierror.ExpiredError("session has expired").WithContext("session_id", sessionID)
	}

	// Re-joining is idempotent for existing participants, owner included.
	existing, err := s.repo.GetParticipant(ctx, sessionID, userID)
	if err != nil && !errors.Is(err, ErrParticipantNotFound) {
		return nil, nil, apierror.InternalError("failed to load participant", err)
	}
	if existing != nil {
		existing.Online = true
		if existing.JoinedAt == nil {
			existing.JoinedAt = &now
		}
		if err := s.repo.UpdateParticipant(ctx, existing); err != nil {
			return nil, nil, apierror.InternalError("failed to update participant", err)
		}
		return existing, session, nil
	}

	role := sharing.RoleViewer
	invitation, err := s.resolveInvitation(ctx, sessionID, userID, invitationToken, now)
	if err != nil {
		return nil, nil, err
	}
	if invitation != nil {
		role = invitation.Role
	}

	if role == sharing.RoleViewer && session.MaxViewers != nil {
		viewers, err := s.repo.CountParticipantsByRole(ctx, sessionID, sharing.RoleViewer)
		if err != nil {
			return nil, nil, apierror.InternalError("failed to count viewers", err)
		}
		if viewers >= *session.MaxViewers {
			return nil, nil, apierror.CapacityExceededError("session viewer limit reached").
				WithContext("max_viewers", *session.MaxViewers)
		}
	}

	if invitation == nil {
		switch session.Visibility {
		case sharing.VisibilityPrivate:
			return nil, nil, apierror.UnauthorizedError("an invitation is required to join a private session")
		case sharing.VisibilityUnlisted:
			if session.PasswordHash != "" && !checkPassword(password, session.PasswordHash) {
				return nil, nil, apierror.WrongPasswordError("incorrect session password")
			}
		case sharing.VisibilityPublic:
			// Open to everyone.
		}
	}

	participant := &Participant{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Role:      role,
		InvitedAt: now,
		JoinedAt:  &now,
		Online:    true,
	}
	if invitation != nil {
		participant.InvitedAt = invitation.CreatedAt
	}
	if err := s.repo.AddParticipant(ctx, participant); err != nil {
		return nil, nil, apierror.InternalError("failed to add participant", err)
	}

	if invitation != nil {
		if err := s.repo.MarkInvitationUsed(ctx, invitation.ID, now); err != nil {
			return nil, nil, apierror.InternalError("failed to consume invitation", err)
		}
	}

	if role == sharing.RoleViewer {
		if err := s.repo.IncrementViewCount(ctx, sessionID); err != nil {
			return nil, nil, apierror.InternalError("failed to count view", err)
		}
		session.ViewCount++
	}

	return participant, session, nil
}

// resolveInvitation looks up an invitation token. An expired invitation is
// a distinct failure; a missing, used, mismatched, or mistargeted token is
// treated as absent so the password gate still applies.
func (s *Service) resolveInvitation(ctx context.Context, sessionID, userID, token string, now time.Time) (*Invitation, error) {
	if token == "" {
		return nil, nil
	}

	invitation, err := s.repo.GetInvitationByToken(ctx, token)
	if errors.Is(err, ErrInvitationNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apierror.InternalError("failed to load invitation", err)
	}

	if invitation.SessionID != sessionID || invitation.Used {
		return nil, nil
	}
	if invitation.UserID != "" && invitation.UserID != userID {
		return nil, nil
	}
	if invitation.ExpiresAt != nil && invitation.ExpiresAt.Before(now) {
		return nil, apierror.ExpiredError("invitation has expired")
	}
	return invitation, nil
}

// InviteInput carries the recognized invitation options.
type InviteInput struct {
	Email     string
	UserID    string
	Role      sharing.Role
	ExpiresIn time.Duration
}

// CreateInvitation creates an invitation. The inviter must hold at least
// the editor role and cannot grant a role above their own.
func (s *Service) CreateInvitation(ctx context.Context, sessionID, inviterID string, in InviteInput) (*Invitation, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	inviter, err := s.repo.GetParticipant(ctx, sessionID, inviterID)
	if errors.Is(err, ErrParticipantNotFound) {
		return nil, apierror.UnauthorizedError("only session participants can invite users")
	}
	if err != nil {
		return nil, apierror.InternalError("failed to load participant", err)
	}

	role := in.Role
	if role == "" {
		role = sharing.RoleViewer
	}
	if err := validateRole(role); err != nil {
		return nil, err
	}
	if role == sharing.RoleOwner {
		return nil, apierror.ValidationError("a session has exactly one owner; the owner role cannot be granted")
	}
	if inviter.Role.Rank() < sharing.RoleEditor.Rank() {
		return nil, apierror.UnauthorizedError("viewers cannot invite users").
			WithContext("inviter_role", string(inviter.Role))
	}
	if role.Rank() > inviter.Role.Rank() {
		return nil, apierror.UnauthorizedError("invited role cannot exceed the inviter's role").
			WithContext("inviter_role", string(inviter.Role)).
			WithContext("requested_role", string(role))
	}
	if in.Email == "" && in.UserID == "" {
		return nil, apierror.ValidationError("an email or user id is required")
	}

	now := s.clock.Now().UTC()
	var expiresAt *time.Time
	if in.ExpiresIn > 0 {
		t := now.Add(in.ExpiresIn)
		expiresAt = &t
	}

	invitation := &Invitation{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		CreatedBy: inviterID,
		Role:      role,
		Email:     in.Email,
		UserID:    in.UserID,
		Token:     uuid.NewString(),
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := s.repo.CreateInvitation(ctx, invitation); err != nil {
		return nil, apierror.InternalError("failed to create invitation", err)
	}
	return invitation, nil
}

// UpdateVisibility changes a session's visibility. Moving to private or
// public clears any stored password; moving to unlisted requires a password
// (a new one, or an already stored one to keep).
func (s *Service) UpdateVisibility(ctx context.Context, sessionID, callerID string, visibility sharing.Visibility, password string) (*Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := validateVisibility(visibility); err != nil {
		return nil, err
	}

	caller, err := s.repo.GetParticipant(ctx, sessionID, callerID)
	if errors.Is(err, ErrParticipantNotFound) {
		return nil, apierror.UnauthorizedError("only the owner or an editor can change session visibility")
	}
	if err != nil {
		return nil, apierror.InternalError("failed to load participant", err)
	}
	if caller.Role.Rank() < sharing.RoleEditor.Rank() {
		return nil, apierror.UnauthorizedError("only the owner or an editor can change session visibility").
			WithContext("caller_role", string(caller.Role))
	}

	switch visibility {
	case sharing.VisibilityPublic:
		if password != "" {
			return nil, apierror.ValidationError("public sessions cannot be password protected")
		}
		session.PasswordHash = ""
	case sharing.VisibilityPrivate:
		// Private sessions gate on invitations, not passwords.
		session.PasswordHash = ""
	case sharing.VisibilityUnlisted:
		if password != "" {
			hash, err := hashPassword(password)
			if err != nil {
				return nil, apierror.InternalError("failed to hash session password", err)
			}
			session.PasswordHash = hash
		} else if session.PasswordHash == "" {
			return nil, apierror.ValidationError("a password is required for unlisted visibility")
		}
	}

	session.Visibility = visibility
	session.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.UpdateSession(ctx, session); err != nil {
		return nil, apierror.InternalError("failed to update session", err)
	}
	return session, nil
}

// PublicSessions lists public, unexpired sessions ordered by creation time
// descending, with the total count before pagination.
func (s *Service) PublicSessions(ctx context.Context, limit, offset int) ([]*Session, int, error) {
	if limit <= 0 {
		limit = defaultPublicLimit
	}
	if limit > maxPublicLimit {
		limit = maxPublicLimit
	}
	if offset < 0 {
		offset = 0
	}

	sessions, total, err := s.repo.ListPublicSessions(ctx, limit, offset, s.clock.Now().UTC())
	if err != nil {
		return nil, 0, apierror.InternalError("failed to list public sessions", err)
	}
	return sessions, total, nil
}

// SessionParticipants returns the participant list for an existing session.
func (s *Service) SessionParticipants(ctx context.Context, sessionID string) ([]*Participant, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	participants, err := s.repo.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, apierror.InternalError("failed to list participants", err)
	}
	return participants, nil
}

func validateVisibility(v sharing.Visibility) error {
	switch v {
	case sharing.VisibilityPrivate, sharing.VisibilityUnlisted, sharing.VisibilityPublic:
		return nil
	}
	return apierror.ValidationError(fmt.Sprintf("unknown visibility %q", v))
}

func validateRole(r sharing.Role) error {
	switch r {
	case sharing.RoleOwner, sharing.RoleEditor, sharing.RoleViewer:
		return nil
	}
	return apierror.ValidationError(fmt.Sprintf("unknown role %q", r))
}

func hashPassword(password string) (string, error) {
	if password == "" {
		return "", nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func checkPassword(password, hash string) bool {
	if password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
