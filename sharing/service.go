package sharing

import (
	"context"
	"fmt"
	"time"

	"github.com/pscheid92/sessionshare/client"
)

const (
	defaultPublicLimit = 20
	maxPublicLimit     = 100
)

// Service drives the session-sharing API. All operations route through the
// authenticated client and inherit its refresh/retry behavior; the service
// performs no retries of its own.
type Service struct {
	api *client.Client
}

// NewService creates a Service on top of an authenticated API client.
func NewService(api *client.Client) *Service {
	return &Service{api: api}
}

// ShareOptions configures ShareSession. Construct with NewShareOptions to
// get the documented defaults, then override fields as needed.
type ShareOptions struct {
	Description            string
	Visibility             Visibility
	Password               string
	ExpiresIn              time.Duration // 0 means no expiry
	AllowViewerChat        bool
	ShowParticipantCursors bool
	MaxViewers             *int // nil means unbounded
}

// NewShareOptions returns the defaults: private visibility, no password, no
// expiry, viewer chat and participant cursors enabled, unbounded viewers.
func NewShareOptions() ShareOptions {
	return ShareOptions{
		Visibility:             VisibilityPrivate,
		AllowViewerChat:        true,
		ShowParticipantCursors: true,
	}
}

// ShareSession publishes a conversation as a collaborative session and
// returns the created Session.
func (s *Service) ShareSession(ctx context.Context, conversationID, title string, opts ShareOptions) (*Session, error) {
	req := ShareRequest{
		ConversationID:         conversationID,
		Title:                  title,
		Description:            opts.Description,
		Visibility:             opts.Visibility,
		Password:               opts.Password,
		ExpiresIn:              int(opts.ExpiresIn.Seconds()),
		AllowViewerChat:        opts.AllowViewerChat,
		ShowParticipantCursors: opts.ShowParticipantCursors,
		MaxViewers:             opts.MaxViewers,
	}
	if req.Visibility == "" {
		req.Visibility = VisibilityPrivate
	}

	var session Session
	if err := s.api.Post(ctx, "/session-sharing/share", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession returns the session as currently known remotely.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var session Session
	if err := s.api.Get(ctx, "/session-sharing/sessions/"+sessionID, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// JoinOptions configures JoinSession. A valid invitation token bypasses the
// password check and assigns the role recorded on the invitation.
type JoinOptions struct {
	Password        string
	InvitationToken string
}

// JoinSession joins a session and returns the participant together with the
// current session snapshot.
func (s *Service) JoinSession(ctx context.Context, sessionID string, opts JoinOptions) (*Participant, *Session, error) {
	req := JoinRequest{Password: opts.Password, InvitationToken: opts.InvitationToken}

	var resp JoinResponse
	if err := s.api.Post(ctx, "/session-sharing/sessions/"+sessionID+"/join", req, &resp); err != nil {
		return nil, nil, err
	}
	return &resp.Participant, &resp.Session, nil
}

// InviteOptions configures InviteUser. Exactly one of Email or UserID
// identifies the invitee; Role defaults to viewer.
type InviteOptions struct {
	Email     string
	UserID    string
	Role      Role
	ExpiresIn time.Duration // 0 means the invitation never expires
}

// InviteUser creates an invitation and returns it, including the token to
// be delivered out-of-band to the invitee.
func (s *Service) InviteUser(ctx context.Context, sessionID string, opts InviteOptions) (*Invitation, error) {
	role := opts.Role
	if role == "" {
		role = RoleViewer
	}
	req := InviteRequest{
		Email:     opts.Email,
		UserID:    opts.UserID,
		Role:      role,
		ExpiresIn: int(opts.ExpiresIn.Seconds()),
	}

	var invitation Invitation
	if err := s.api.Post(ctx, "/session-sharing/sessions/"+sessionID+"/invite", req, &invitation); err != nil {
		return nil, err
	}
	return &invitation, nil
}

// UpdateSessionVisibility changes a session's visibility. Moving to a
// visibility that does not gate joins by password clears any stored
// password remotely.
func (s *Service) UpdateSessionVisibility(ctx context.Context, sessionID string, visibility Visibility, password string) (*Session, error) {
	req := VisibilityRequest{Visibility: visibility, Password: password}

	var session Session
	if err := s.api.Put(ctx, "/session-sharing/sessions/"+sessionID+"/visibility", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetPublicSessions lists public, unexpired sessions ordered by creation
// time descending. A limit of 0 applies the default of 20.
func (s *Service) GetPublicSessions(ctx context.Context, limit, offset int) ([]Session, int, error) {
	if limit <= 0 {
		limit = defaultPublicLimit
	}
	if limit > maxPublicLimit {
		limit = maxPublicLimit
	}
	if offset < 0 {
		offset = 0
	}

	var resp PublicSessionsResponse
	path := fmt.Sprintf("/session-sharing/public?limit=%d&offset=%d", limit, offset)
	if err := s.api.Get(ctx, path, &resp); err != nil {
		return nil, 0, err
	}
	return resp.Sessions, resp.Total, nil
}

// GetSessionParticipants returns the current participant list.
func (s *Service) GetSessionParticipants(ctx context.Context, sessionID string) ([]Participant, error) {
	var resp ParticipantsResponse
	if err := s.api.Get(ctx, "/session-sharing/sessions/"+sessionID+"/participants", &resp); err != nil {
		return nil, err
	}
	return resp.Participants, nil
}
