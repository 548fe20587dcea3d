package sharing

// Request and response bodies for the session-sharing endpoints. These are
// the single definition of the wire contract; the server decodes the same
// structs the client encodes.

// ShareRequest is the body of POST /session-sharing/share.
type ShareRequest struct {
	ConversationID         string     `json:"conversation_id"`
	Title                  string     `json:"title"`
	Description            string     `json:"description"`
	Visibility             Visibility `json:"visibility"`
	Password               string     `json:"password,omitempty"`
	ExpiresIn              int        `json:"expires_in,omitempty"`
	AllowViewerChat        bool       `json:"allow_viewer_chat"`
	ShowParticipantCursors bool       `json:"show_participant_cursors"`
	MaxViewers             *int       `json:"max_viewers,omitempty"`
}

// JoinRequest is the body of POST /session-sharing/sessions/{id}/join.
type JoinRequest struct {
	Password        string `json:"password,omitempty"`
	InvitationToken string `json:"invitation_token,omitempty"`
}

// JoinResponse pairs the created participant with the current session
// snapshot.
type JoinResponse struct {
	Participant Participant `json:"participant"`
	Session     Session     `json:"session"`
}

// InviteRequest is the body of POST /session-sharing/sessions/{id}/invite.
type InviteRequest struct {
	Email     string `json:"email,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Role      Role   `json:"role"`
	ExpiresIn int    `json:"expires_in,omitempty"`
}

// VisibilityRequest is the body of PUT /session-sharing/sessions/{id}/visibility.
type VisibilityRequest struct {
	Visibility Visibility `json:"visibility"`
	Password   string     `json:"password,omitempty"`
}

// PublicSessionsResponse is the body of GET /session-sharing/public.
type PublicSessionsResponse struct {
	Sessions []Session `json:"sessions"`
	Total    int       `json:"total"`
}

// ParticipantsResponse is the body of GET /session-sharing/sessions/{id}/participants.
type ParticipantsResponse struct {
	Participants []Participant `json:"participants"`
}
