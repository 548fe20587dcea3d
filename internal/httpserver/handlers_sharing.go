package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/sessionshare/apierror"
	"github.com/pscheid92/sessionshare/internal/collab"
	"github.com/pscheid92/sessionshare/sharing"
)

// shareRequestBody shadows sharing.ShareRequest with pointer booleans so the
// handler can tell an absent field from an explicit false. Viewer chat and
// cursor sharing default to on.
type shareRequestBody struct {
	ConversationID         string             `json:"conversation_id"`
	Title                  string             `json:"title"`
	Description            string             `json:"description"`
	Visibility             sharing.Visibility `json:"visibility"`
	Password               string             `json:"password"`
	ExpiresIn              int                `json:"expires_in"`
	AllowViewerChat        *bool              `json:"allow_viewer_chat"`
	ShowParticipantCursors *bool              `json:"show_participant_cursors"`
	MaxViewers             *int               `json:"max_viewers"`
}

func (s *Server) handleShareSession(c echo.Context) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return err
	}

	var req shareRequestBody
	if err := c.Bind(&req); err != nil {
		return apierror.ValidationError("invalid request body")
	}

	in := collab.CreateSessionInput{
		Title:                  req.Title,
		Description:            req.Description,
		Visibility:             req.Visibility,
		Password:               req.Password,
		ExpiresIn:              time.Duration(req.ExpiresIn) * time.Second,
		AllowViewerChat:        boolOrDefault(req.AllowViewerChat, true),
		ShowParticipantCursors: boolOrDefault(req.ShowParticipantCursors, true),
		MaxViewers:             req.MaxViewers,
	}

	session, err := s.collab.CreateSession(c.Request().Context(), userID, req.ConversationID, in)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusCreated, toWireSession(session, 1)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("id")

	session, err := s.collab.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	participants, err := s.collab.SessionParticipants(ctx, sessionID)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, toWireSession(session, len(participants))); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleJoinSession(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := s.currentUserID(c)
	if err != nil {
		return err
	}

	var req sharing.JoinRequest
	if err := c.Bind(&req); err != nil {
		return apierror.ValidationError("invalid request body")
	}

	participant, session, err := s.collab.JoinSession(ctx, c.Param("id"), userID, req.Password, req.InvitationToken)
	if err != nil {
		return err
	}
	participants, err := s.collab.SessionParticipants(ctx, session.ID)
	if err != nil {
		return err
	}

	resp := sharing.JoinResponse{
		Participant: toWireParticipant(participant),
		Session:     toWireSession(session, len(participants)),
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleInviteUser(c echo.Context) error {
	userID, err := s.currentUserID(c)
	if err != nil {
		return err
	}

	var req sharing.InviteRequest
	if err := c.Bind(&req); err != nil {
		return apierror.ValidationError("invalid request body")
	}

	invitation, err := s.collab.CreateInvitation(c.Request().Context(), c.Param("id"), userID, collab.InviteInput{
		Email:     req.Email,
		UserID:    req.UserID,
		Role:      req.Role,
		ExpiresIn: time.Duration(req.ExpiresIn) * time.Second,
	})
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusCreated, toWireInvitation(invitation)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleUpdateVisibility(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := s.currentUserID(c)
	if err != nil {
		return err
	}

	var req sharing.VisibilityRequest
	if err := c.Bind(&req); err != nil {
		return apierror.ValidationError("invalid request body")
	}

	session, err := s.collab.UpdateVisibility(ctx, c.Param("id"), userID, req.Visibility, req.Password)
	if err != nil {
		return err
	}
	participants, err := s.collab.SessionParticipants(ctx, session.ID)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, toWireSession(session, len(participants))); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handlePublicSessions(c echo.Context) error {
	limit := queryInt(c, "limit", 0)
	offset := queryInt(c, "offset", 0)

	sessions, total, err := s.collab.PublicSessions(c.Request().Context(), limit, offset)
	if err != nil {
		return err
	}

	resp := sharing.PublicSessionsResponse{
		Sessions: make([]sharing.Session, 0, len(sessions)),
		Total:    total,
	}
	for _, session := range sessions {
		resp.Sessions = append(resp.Sessions, toWireSession(session, 0))
	}

	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleSessionParticipants(c echo.Context) error {
	participants, err := s.collab.SessionParticipants(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	resp := sharing.ParticipantsResponse{
		Participants: make([]sharing.Participant, 0, len(participants)),
	}
	for _, p := range participants {
		resp.Participants = append(resp.Participants, toWireParticipant(p))
	}

	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

// toWireSession maps a stored session onto the wire shape. The password hash
// stays server-side.
func toWireSession(s *collab.Session, participantCount int) sharing.Session {
	return sharing.Session{
		ID:                     s.ID,
		OwnerID:                s.OwnerID,
		ConversationID:         s.ConversationID,
		Title:                  s.Title,
		Description:            s.Description,
		Visibility:             s.Visibility,
		ExpiresAt:              s.ExpiresAt,
		IsActive:               s.IsActive,
		AllowViewerChat:        s.AllowViewerChat,
		ShowParticipantCursors: s.ShowParticipantCursors,
		MaxViewers:             s.MaxViewers,
		ViewCount:              s.ViewCount,
		ParticipantCount:       participantCount,
		CreatedAt:              s.CreatedAt,
		UpdatedAt:              s.UpdatedAt,
	}
}

func toWireParticipant(p *collab.Participant) sharing.Participant {
	return sharing.Participant{
		ID:        p.ID,
		SessionID: p.SessionID,
		UserID:    p.UserID,
		Role:      p.Role,
		InvitedAt: p.InvitedAt,
		JoinedAt:  p.JoinedAt,
		Online:    p.Online,
	}
}

func toWireInvitation(i *collab.Invitation) sharing.Invitation {
	return sharing.Invitation{
		ID:        i.ID,
		SessionID: i.SessionID,
		CreatedBy: i.CreatedBy,
		Role:      i.Role,
		Email:     i.Email,
		UserID:    i.UserID,
		Token:     i.Token,
		ExpiresAt: i.ExpiresAt,
		CreatedAt: i.CreatedAt,
	}
}

func boolOrDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func queryInt(c echo.Context, name string, def int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
