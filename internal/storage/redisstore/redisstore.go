// Package redisstore provides a Redis-backed Repository. Sessions and
// invitations are stored as JSON values, participants as per-session
// hashes, and the public directory as a sorted set scored by creation time.
// Expired sessions are filtered at read time, never deleted by TTL.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pscheid92/sessionshare/internal/collab"
	"github.com/pscheid92/sessionshare/internal/metrics"
	"github.com/pscheid92/sessionshare/sharing"
)

const backend = "redis"

// Repository implements collab.Repository on top of go-redis.
type Repository struct {
	rdb *redis.Client
}

// New creates a Repository from a Redis URL (e.g. "redis://localhost:6379").
func New(redisURL string) (*Repository, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return &Repository{rdb: redis.NewClient(opts)}, nil
}

// NewWithClient wraps an existing client, used by tests.
func NewWithClient(rdb *redis.Client) *Repository {
	return &Repository{rdb: rdb}
}

// Ping verifies the connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *Repository) Close() error {
	return r.rdb.Close()
}

func sessionKey(id string) string      { return "sharing:session:" + id }
func viewsKey(id string) string        { return "sharing:session:" + id + ":views" }
func participantsKey(id string) string { return "sharing:session:" + id + ":participants" }
func invitationKey(id string) string   { return "sharing:invitation:" + id }
func tokenKey(token string) string     { return "sharing:invitation_token:" + token }

const publicIndexKey = "sharing:public_sessions"

func record(op string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.StorageOpsTotal.WithLabelValues(backend, op, status).Inc()
}

func (r *Repository) CreateSession(ctx context.Context, session *collab.Session) (err error) {
	defer func() { record("create_session", err) }()

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), payload, 0)
	if session.Visibility == sharing.VisibilityPublic {
		pipe.ZAdd(ctx, publicIndexKey, redis.Z{
			Score:  float64(session.CreatedAt.UnixNano()),
			Member: session.ID,
		})
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Repository) GetSession(ctx context.Context, id string) (_ *collab.Session, err error) {
	defer func() {
		if !errors.Is(err, collab.ErrSessionNotFound) {
			record("get_session", err)
		}
	}()

	payload, err := r.rdb.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, collab.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session collab.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	views, err := r.rdb.Get(ctx, viewsKey(id)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get view count: %w", err)
	}
	session.ViewCount = views
	return &session, nil
}

func (r *Repository) UpdateSession(ctx context.Context, session *collab.Session) (err error) {
	defer func() { record("update_session", err) }()

	exists, err := r.rdb.Exists(ctx, sessionKey(session.ID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	if exists == 0 {
		return collab.ErrSessionNotFound
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), payload, 0)
	if session.Visibility == sharing.VisibilityPublic {
		pipe.ZAdd(ctx, publicIndexKey, redis.Z{
			Score:  float64(session.CreatedAt.UnixNano()),
			Member: session.ID,
		})
	} else {
		pipe.ZRem(ctx, publicIndexKey, session.ID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Repository) ListPublicSessions(ctx context.Context, limit, offset int, now time.Time) (_ []*collab.Session, _ int, err error) {
	defer func() { record("list_public_sessions", err) }()

	ids, err := r.rdb.ZRevRange(ctx, publicIndexKey, 0, -1).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read public index: %w", err)
	}
	if len(ids) == 0 {
		return nil, 0, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
	}
	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load public sessions: %w", err)
	}

	var matching []*collab.Session
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue // index entry without a session value
		}
		var session collab.Session
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			return nil, 0, fmt.Errorf("failed to decode session: %w", err)
		}
		if session.Visibility != sharing.VisibilityPublic || !session.IsActive || session.Expired(now) {
			continue
		}
		matching = append(matching, &session)
	}

	total := len(matching)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := matching[offset:end]

	for _, session := range page {
		views, err := r.rdb.Get(ctx, viewsKey(session.ID)).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, 0, fmt.Errorf("failed to get view count: %w", err)
		}
		session.ViewCount = views
	}
	return page, total, nil
}

func (r *Repository) IncrementViewCount(ctx context.Context, sessionID string) (err error) {
	defer func() { record("increment_view_count", err) }()
	return r.rdb.Incr(ctx, viewsKey(sessionID)).Err()
}

func (r *Repository) AddParticipant(ctx context.Context, participant *collab.Participant) (err error) {
	defer func() { record("add_participant", err) }()

	payload, err := json.Marshal(participant)
	if err != nil {
		return fmt.Errorf("failed to encode participant: %w", err)
	}
	return r.rdb.HSet(ctx, participantsKey(participant.SessionID), participant.UserID, payload).Err()
}

func (r *Repository) GetParticipant(ctx context.Context, sessionID, userID string) (_ *collab.Participant, err error) {
	defer func() {
		if !errors.Is(err, collab.ErrParticipantNotFound) {
			record("get_participant", err)
		}
	}()

	payload, err := r.rdb.HGet(ctx, participantsKey(sessionID), userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, collab.ErrParticipantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}

	var participant collab.Participant
	if err := json.Unmarshal(payload, &participant); err != nil {
		return nil, fmt.Errorf("failed to decode participant: %w", err)
	}
	return &participant, nil
}

func (r *Repository) UpdateParticipant(ctx context.Context, participant *collab.Participant) error {
	exists, err := r.rdb.HExists(ctx, participantsKey(participant.SessionID), participant.UserID).Result()
	if err != nil {
		return fmt.Errorf("failed to check participant: %w", err)
	}
	if !exists {
		return collab.ErrParticipantNotFound
	}
	return r.AddParticipant(context.WithoutCancel(ctx), participant)
}

func (r *Repository) ListParticipants(ctx context.Context, sessionID string) (_ []*collab.Participant, err error) {
	defer func() { record("list_participants", err) }()

	values, err := r.rdb.HGetAll(ctx, participantsKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}

	participants := make([]*collab.Participant, 0, len(values))
	for _, raw := range values {
		var participant collab.Participant
		if err := json.Unmarshal([]byte(raw), &participant); err != nil {
			return nil, fmt.Errorf("failed to decode participant: %w", err)
		}
		participants = append(participants, &participant)
	}
	sortParticipants(participants)
	return participants, nil
}

func (r *Repository) CountParticipantsByRole(ctx context.Context, sessionID string, role sharing.Role) (int, error) {
	participants, err := r.ListParticipants(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, participant := range participants {
		if participant.Role == role {
			count++
		}
	}
	return count, nil
}

func (r *Repository) CreateInvitation(ctx context.Context, invitation *collab.Invitation) (err error) {
	defer func() { record("create_invitation", err) }()

	payload, err := json.Marshal(invitation)
	if err != nil {
		return fmt.Errorf("failed to encode invitation: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, invitationKey(invitation.ID), payload, 0)
	pipe.Set(ctx, tokenKey(invitation.Token), invitation.ID, 0)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Repository) GetInvitationByToken(ctx context.Context, token string) (_ *collab.Invitation, err error) {
	defer func() {
		if !errors.Is(err, collab.ErrInvitationNotFound) {
			record("get_invitation", err)
		}
	}()

	id, err := r.rdb.Get(ctx, tokenKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, collab.ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve invitation token: %w", err)
	}

	payload, err := r.rdb.Get(ctx, invitationKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, collab.ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	var invitation collab.Invitation
	if err := json.Unmarshal(payload, &invitation); err != nil {
		return nil, fmt.Errorf("failed to decode invitation: %w", err)
	}
	return &invitation, nil
}

func (r *Repository) MarkInvitationUsed(ctx context.Context, id string, usedAt time.Time) (err error) {
	defer func() { record("mark_invitation_used", err) }()

	payload, err := r.rdb.Get(ctx, invitationKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return collab.ErrInvitationNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get invitation: %w", err)
	}

	var invitation collab.Invitation
	if err := json.Unmarshal(payload, &invitation); err != nil {
		return fmt.Errorf("failed to decode invitation: %w", err)
	}
	invitation.Used = true
	invitation.UsedAt = &usedAt

	updated, err := json.Marshal(&invitation)
	if err != nil {
		return fmt.Errorf("failed to encode invitation: %w", err)
	}
	return r.rdb.Set(ctx, invitationKey(id), updated, 0).Err()
}

func sortParticipants(participants []*collab.Participant) {
	sort.Slice(participants, func(i, j int) bool {
		if !participants[i].InvitedAt.Equal(participants[j].InvitedAt) {
			return participants[i].InvitedAt.Before(participants[j].InvitedAt)
		}
		return participants[i].UserID < participants[j].UserID
	})
}
