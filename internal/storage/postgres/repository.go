package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pscheid92/sessionshare/internal/collab"
	"github.com/pscheid92/sessionshare/internal/metrics"
	"github.com/pscheid92/sessionshare/sharing"
)

const backend = "postgres"

// Repository implements collab.Repository on a pgx pool.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func record(op string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.StorageOpsTotal.WithLabelValues(backend, op, status).Inc()
}

const sessionColumns = `id, owner_id, conversation_id, title, description, visibility,
	password_hash, expires_at, is_active, allow_viewer_chat, show_participant_cursors,
	max_viewers, view_count, created_at, updated_at`

func scanSession(row pgx.Row) (*collab.Session, error) {
	var s collab.Session
	var visibility string
	err := row.Scan(&s.ID, &s.OwnerID, &s.ConversationID, &s.Title, &s.Description,
		&visibility, &s.PasswordHash, &s.ExpiresAt, &s.IsActive, &s.AllowViewerChat,
		&s.ShowParticipantCursors, &s.MaxViewers, &s.ViewCount, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Visibility = sharing.Visibility(visibility)
	return &s, nil
}

func (r *Repository) CreateSession(ctx context.Context, session *collab.Session) (err error) {
	defer func() { record("create_session", err) }()

	_, err = r.pool.Exec(ctx, `
		INSERT INTO sharing_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		session.ID, session.OwnerID, session.ConversationID, session.Title,
		session.Description, string(session.Visibility), session.PasswordHash,
		session.ExpiresAt, session.IsActive, session.AllowViewerChat,
		session.ShowParticipantCursors, session.MaxViewers, session.ViewCount,
		session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (r *Repository) GetSession(ctx context.Context, id string) (_ *collab.Session, err error) {
	defer func() {
		if !errors.Is(err, collab.ErrSessionNotFound) {
			record("get_session", err)
		}
	}()

	session, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sharing_sessions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, collab.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (r *Repository) UpdateSession(ctx context.Context, session *collab.Session) (err error) {
	defer func() { record("update_session", err) }()

	tag, err := r.pool.Exec(ctx, `
		UPDATE sharing_sessions
		SET title = $2, description = $3, visibility = $4, password_hash = $5,
			expires_at = $6, is_active = $7, allow_viewer_chat = $8,
			show_participant_cursors = $9, max_viewers = $10, updated_at = $11
		WHERE id = $1`,
		session.ID, session.Title, session.Description, string(session.Visibility),
		session.PasswordHash, session.ExpiresAt, session.IsActive,
		session.AllowViewerChat, session.ShowParticipantCursors, session.MaxViewers,
		session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return collab.ErrSessionNotFound
	}
	return nil
}

func (r *Repository) ListPublicSessions(ctx context.Context, limit, offset int, now time.Time) (_ []*collab.Session, _ int, err error) {
	defer func() { record("list_public_sessions", err) }()

	var total int
	err = r.pool.QueryRow(ctx, `
		SELECT count(*) FROM sharing_sessions
		WHERE visibility = 'public' AND is_active
		  AND (expires_at IS NULL OR expires_at > $1)`, now).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count public sessions: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM sharing_sessions
		WHERE visibility = 'public' AND is_active
		  AND (expires_at IS NULL OR expires_at > $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, now, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list public sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*collab.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate public sessions: %w", err)
	}
	return sessions, total, nil
}

func (r *Repository) IncrementViewCount(ctx context.Context, sessionID string) (err error) {
	defer func() { record("increment_view_count", err) }()

	tag, err := r.pool.Exec(ctx,
		`UPDATE sharing_sessions SET view_count = view_count + 1 WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to increment view count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return collab.ErrSessionNotFound
	}
	return nil
}

func (r *Repository) AddParticipant(ctx context.Context, participant *collab.Participant) (err error) {
	defer func() { record("add_participant", err) }()

	_, err = r.pool.Exec(ctx, `
		INSERT INTO sharing_participants (id, session_id, user_id, role, invited_at, joined_at, online)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		participant.ID, participant.SessionID, participant.UserID,
		string(participant.Role), participant.InvitedAt, participant.JoinedAt,
		participant.Online)
	if err != nil {
		return fmt.Errorf("failed to insert participant: %w", err)
	}
	return nil
}

func (r *Repository) GetParticipant(ctx context.Context, sessionID, userID string) (_ *collab.Participant, err error) {
	defer func() {
		if !errors.Is(err, collab.ErrParticipantNotFound) {
			record("get_participant", err)
		}
	}()

	participant, err := scanParticipant(r.pool.QueryRow(ctx, `
		SELECT id, session_id, user_id, role, invited_at, joined_at, online
		FROM sharing_participants WHERE session_id = $1 AND user_id = $2`,
		sessionID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, collab.ErrParticipantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return participant, nil
}

func (r *Repository) UpdateParticipant(ctx context.Context, participant *collab.Participant) (err error) {
	defer func() { record("update_participant", err) }()

	tag, err := r.pool.Exec(ctx, `
		UPDATE sharing_participants
		SET role = $3, joined_at = $4, online = $5
		WHERE session_id = $1 AND user_id = $2`,
		participant.SessionID, participant.UserID, string(participant.Role),
		participant.JoinedAt, participant.Online)
	if err != nil {
		return fmt.Errorf("failed to update participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return collab.ErrParticipantNotFound
	}
	return nil
}

func (r *Repository) ListParticipants(ctx context.Context, sessionID string) (_ []*collab.Participant, err error) {
	defer func() { record("list_participants", err) }()

	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, user_id, role, invited_at, joined_at, online
		FROM sharing_participants WHERE session_id = $1
		ORDER BY invited_at, user_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var participants []*collab.Participant
	for rows.Next() {
		participant, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, participant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}
	return participants, nil
}

func (r *Repository) CountParticipantsByRole(ctx context.Context, sessionID string, role sharing.Role) (_ int, err error) {
	defer func() { record("count_participants", err) }()

	var count int
	err = r.pool.QueryRow(ctx, `
		SELECT count(*) FROM sharing_participants
		WHERE session_id = $1 AND role = $2`, sessionID, string(role)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}
	return count, nil
}

func (r *Repository) CreateInvitation(ctx context.Context, invitation *collab.Invitation) (err error) {
	defer func() { record("create_invitation", err) }()

	_, err = r.pool.Exec(ctx, `
		INSERT INTO sharing_invitations (id, session_id, created_by, role, email, user_id, token, expires_at, used, used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		invitation.ID, invitation.SessionID, invitation.CreatedBy,
		string(invitation.Role), invitation.Email, invitation.UserID,
		invitation.Token, invitation.ExpiresAt, invitation.Used, invitation.UsedAt,
		invitation.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert invitation: %w", err)
	}
	return nil
}

func (r *Repository) GetInvitationByToken(ctx context.Context, token string) (_ *collab.Invitation, err error) {
	defer func() {
		if !errors.Is(err, collab.ErrInvitationNotFound) {
			record("get_invitation", err)
		}
	}()

	var inv collab.Invitation
	var role string
	err = r.pool.QueryRow(ctx, `
		SELECT id, session_id, created_by, role, email, user_id, token, expires_at, used, used_at, created_at
		FROM sharing_invitations WHERE token = $1`, token).
		Scan(&inv.ID, &inv.SessionID, &inv.CreatedBy, &role, &inv.Email,
			&inv.UserID, &inv.Token, &inv.ExpiresAt, &inv.Used, &inv.UsedAt, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, collab.ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	inv.Role = sharing.Role(role)
	return &inv, nil
}

func (r *Repository) MarkInvitationUsed(ctx context.Context, id string, usedAt time.Time) (err error) {
	defer func() { record("mark_invitation_used", err) }()

	tag, err := r.pool.Exec(ctx, `
		UPDATE sharing_invitations SET used = TRUE, used_at = $2 WHERE id = $1`,
		id, usedAt)
	if err != nil {
		return fmt.Errorf("failed to mark invitation used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return collab.ErrInvitationNotFound
	}
	return nil
}

func scanParticipant(row pgx.Row) (*collab.Participant, error) {
	var p collab.Participant
	var role string
	err := row.Scan(&p.ID, &p.SessionID, &p.UserID, &role, &p.InvitedAt, &p.JoinedAt, &p.Online)
	if err != nil {
		return nil, err
	}
	p.Role = sharing.Role(role)
	return &p, nil
}
