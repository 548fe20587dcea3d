// Package memory provides an in-process Repository used in tests and
// single-node development mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pscheid92/sessionshare/internal/collab"
	"github.com/pscheid92/sessionshare/sharing"
)

// Repository is a mutex-guarded, map-backed collab.Repository.
type Repository struct {
	mu           sync.RWMutex
	sessions     map[string]*collab.Session
	participants map[string]map[string]*collab.Participant // sessionID -> userID
	invitations  map[string]*collab.Invitation             // id
	byToken      map[string]string                         // token -> id
}

// New creates an empty Repository.
func New() *Repository {
	return &Repository{
		sessions:     make(map[string]*collab.Session),
		participants: make(map[string]map[string]*collab.Participant),
		invitations:  make(map[string]*collab.Invitation),
		byToken:      make(map[string]string),
	}
}

func (r *Repository) CreateSession(_ context.Context, session *collab.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *session
	r.sessions[session.ID] = &clone
	return nil
}

func (r *Repository) GetSession(_ context.Context, id string) (*collab.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, collab.ErrSessionNotFound
	}
	clone := *session
	return &clone, nil
}

func (r *Repository) UpdateSession(_ context.Context, session *collab.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID]; !ok {
		return collab.ErrSessionNotFound
	}
	clone := *session
	// View counts are owned by IncrementViewCount; keep the stored value.
	clone.ViewCount = r.sessions[session.ID].ViewCount
	r.sessions[session.ID] = &clone
	return nil
}

func (r *Repository) ListPublicSessions(_ context.Context, limit, offset int, now time.Time) ([]*collab.Session, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matching []*collab.Session
	for _, session := range r.sessions {
		if session.Visibility != sharing.VisibilityPublic || !session.IsActive || session.Expired(now) {
			continue
		}
		clone := *session
		matching = append(matching, &clone)
	}

	sort.Slice(matching, func(i, j int) bool {
		if !matching[i].CreatedAt.Equal(matching[j].CreatedAt) {
			return matching[i].CreatedAt.After(matching[j].CreatedAt)
		}
		return matching[i].ID < matching[j].ID
	})

	total := len(matching)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matching[offset:end], total, nil
}

func (r *Repository) IncrementViewCount(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return collab.ErrSessionNotFound
	}
	session.ViewCount++
	return nil
}

func (r *Repository) AddParticipant(_ context.Context, participant *collab.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byUser, ok := r.participants[participant.SessionID]
	if !ok {
		byUser = make(map[string]*collab.Participant)
		r.participants[participant.SessionID] = byUser
	}
	clone := *participant
	byUser[participant.UserID] = &clone
	return nil
}

func (r *Repository) GetParticipant(_ context.Context, sessionID, userID string) (*collab.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	participant, ok := r.participants[sessionID][userID]
	if !ok {
		return nil, collab.ErrParticipantNotFound
	}
	clone := *participant
	return &clone, nil
}

func (r *Repository) UpdateParticipant(_ context.Context, participant *collab.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[participant.SessionID][participant.UserID]; !ok {
		return collab.ErrParticipantNotFound
	}
	clone := *participant
	r.participants[participant.SessionID][participant.UserID] = &clone
	return nil
}

func (r *Repository) ListParticipants(_ context.Context, sessionID string) ([]*collab.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	participants := make([]*collab.Participant, 0, len(r.participants[sessionID]))
	for _, participant := range r.participants[sessionID] {
		clone := *participant
		participants = append(participants, &clone)
	}
	sort.Slice(participants, func(i, j int) bool {
		if !participants[i].InvitedAt.Equal(participants[j].InvitedAt) {
			return participants[i].InvitedAt.Before(participants[j].InvitedAt)
		}
		return participants[i].UserID < participants[j].UserID
	})
	return participants, nil
}

func (r *Repository) CountParticipantsByRole(_ context.Context, sessionID string, role sharing.Role) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, participant := range r.participants[sessionID] {
		if participant.Role == role {
			count++
		}
	}
	return count, nil
}

func (r *Repository) CreateInvitation(_ context.Context, invitation *collab.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *invitation
	r.invitations[invitation.ID] = &clone
	r.byToken[invitation.Token] = invitation.ID
	return nil
}

func (r *Repository) GetInvitationByToken(_ context.Context, token string) (*collab.Invitation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byToken[token]
	if !ok {
		return nil, collab.ErrInvitationNotFound
	}
	clone := *r.invitations[id]
	return &clone, nil
}

func (r *Repository) MarkInvitationUsed(_ context.Context, id string, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	invitation, ok := r.invitations[id]
	if !ok {
		return collab.ErrInvitationNotFound
	}
	invitation.Used = true
	invitation.UsedAt = &usedAt
	return nil
}
