package collab_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/sessionshare/apierror"
	"github.com/pscheid92/sessionshare/internal/collab"
	"github.com/pscheid92/sessionshare/internal/storage/memory"
	"github.com/pscheid92/sessionshare/sharing"
)

func newTestService(t *testing.T) (*collab.Service, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return collab.NewService(memory.New(), clock), clock
}

func shareSession(t *testing.T, svc *collab.Service, ownerID string, in collab.CreateSessionInput) *collab.Session {
	t.Helper()
	if in.Title == "" {
		in.Title = "Demo"
	}
	session, err := svc.CreateSession(context.Background(), ownerID, "c1", in)
	require.NoError(t, err)
	return session
}

func TestCreateSession_RegistersOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session := shareSession(t, svc, "alice", collab.CreateSessionInput{
		Visibility: sharing.VisibilityPublic,
	})

	assert.Equal(t, "alice", session.OwnerID)
	assert.True(t, session.IsActive)
	assert.Equal(t, 0, session.ViewCount)

	participants, err := svc.SessionParticipants(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.Equal(t, sharing.RoleOwner, participants[0].Role)
	assert.Equal(t, "alice", participants[0].UserID)
	require.NotNil(t, participants[0].JoinedAt)
}

func TestCreateSession_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, "alice", "c1", collab.CreateSessionInput{})
	assert.True(t, apierror.IsType(err, apierror.TypeValidation), "missing title")

	_, err = svc.CreateSession(ctx, "alice", "", collab.CreateSessionInput{Title: "Demo"})
	assert.True(t, apierror.IsType(err, apierror.TypeValidation), "missing conversation id")

	_, err = svc.CreateSession(ctx, "alice", "c1", collab.CreateSessionInput{
		Title: "Demo", Visibility: "martian",
	})
	assert.True(t, apierror.IsType(err, apierror.TypeValidation), "unknown visibility")

	_, err = svc.CreateSession(ctx, "alice", "c1", collab.CreateSessionInput{
		Title: "Demo", Visibility: sharing.VisibilityPublic, Password: "secret",
	})
	assert.True(t, apierror.IsType(err, apierror.TypeValidation), "public with password")

	zero := 0
	_, err = svc.CreateSession(ctx, "alice", "c1", collab.CreateSessionInput{
		Title: "Demo", MaxViewers: &zero,
	})
	assert.True(t, apierror.IsType(err, apierror.TypeValidation), "non-positive max_viewers")
}

func TestGetSession_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetSession(context.Background(), "missing")
	assert.True(t, apierror.IsNotFound(err))
}

func TestJoinSession_PublicIncrementsViews(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	session := shareSession(t, svc, "alice", collab.CreateSessionInput{Visibility: sharing.VisibilityPublic})

	participant, snapshot, err := svc.JoinSession(ctx, session.ID, "bob", "", "")

	require.NoError(t, err)
	assert.Equal(t, sharing.RoleViewer, participant.Role)
	assert.True(t, participant.Online)
	assert.Equal(t, 1, snapshot.ViewCount)

	// The stored session agrees with the returned snapshot.
	stored, err := svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ViewCount)
}

func TestJoinSession_RejoinIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	session := shareSession(t, svc, "alice", collab.CreateSessionInput{Visibility: sharing.VisibilityPublic})

	first, _, err := svc.JoinSession(ctx, session.ID, "bob", "", "")
	require.NoError(t, err)

	second, snapshot, err := svc.JoinSession(ctx, session.ID, "bob", "", "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, snapshot.ViewCount, "re-join must not count another view")

	participants, err := svc.SessionParticipants(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, participants, 2)
}

func TestJoinSession_OwnerRejoinKeepsRole(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	session := shareSession(t, svc, "alice", collab.CreateSessionInput{Visibility: sharing.VisibilityPrivate})

	participant, _, err := svc.JoinSession(ctx, session.ID, "alice", "", "")

	require.NoError(t, err)
	assert.Equal(t, sharing.RoleOwner, participant.Role)
}

func TestJoinSession_ExpiredFailsRegardlessOfPassword(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	session := shareSession(t, svc, "alice", collab.CreateSessionInput{
		Visibility: sharing.VisibilityUnlisted,
		Password:   "hunter2",
		ExpiresIn:  time.Hour,
	})

	clock.Advance(2 * time.Hour)

	_, _, err := svc.JoinSession(ctx, session.ID, "bob", "hunter2", "")
	assert.True(t, apierror.IsExpired(err))
}

func TestJoinSession_UnlistedPasswordGate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	session := shareSession(t, svc, "alice", collab.CreateSessionInput{
		Visibility: sharing.VisibilityUnlisted,
		Password:   "hunter2",
	})

	_, _, err := svc.JoinSession(ctx, session.ID, "bob", "wrong", "")
	assert.True(t, apierror.IsWrongPassword(err))

	_, _, err = svc.JoinSession(ctx, session.ID, "bob", "", "")
	assert.True(t, apierror.IsWrongPassword(err), "missing password is indistinguishable from a wrong one")

	participant, _, err := svc.JoinSession(ctx, session.ID, "bob", "hunter2", "")
	require.NoError(t, err)
	assert.Equal(t, sharing.RoleViewer, participant.Role)
}

func TestJoinSession_UnlistedWithoutPasswordIsOpen(t *testing.T) {
	svc, _ := newTestService(t)
	session := shareSession(t, svc, "alice", collab.CreateSessionInput{Visibility: sharing.VisibilityUnlisted})

	_, _, err := svc.JoinSession(context.Background(), session.ID, "bob", "", "")
	assert.NoError(t, err)
}

func TestJoinSession_PrivateRequiresInvitation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	session := shareSession(t, svc, "alice", collab.CreateSessionInput{Visibility: sharing.VisibilityPrivate})

	_, _, err := svc.JoinSession(ctx, session.ID, "bob", "", "")
	assert.True(t, apierror.IsUnauthorized(err))

	invitation, err := svc.CreateInvitation(ctx, session.ID, "alice", collab.InviteInput{
		UserID: "bob", Role: sharing.RoleEditor,
	})
	require.NoError(t, err)

	participant, _, err := svc.JoinSession(ctx, session.ID, "bob", "", invitation.Token)
	require.NoError(t, err)
	assert.Equal(t, sharing.RoleEditor, participant.Role)
}

func TestJoinSession_InvitationBypassesPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	session := shareSession(t, svc, "alice", collab.CreateSessionInput{
		Visibility: sharing.VisibilityUnlisted,
		Password:   "hunter2",
	})

	invitation, err := svc.CreateInvitation(ctx, session.ID, "alice", collab.InviteInput{UserID: "bob"})
	require.NoError(t, err)

	_, _, err = svc.JoinSession(ctx, session.ID, "bob", "", invitation.Token)
	assert.NoError(t, err, "a valid invitation must bypass the password gate")
}

func TestJoinSession_InvitationIsSingleUse(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	session := shareSession(t, svc, "alice", collab.CreateSessionInput{Visibility: sharing.VisibilityPrivate})

	invitation, err := svc.CreateInvitation(ctx, session.ID, "alice", collab.InviteInput{Email: "bob@example.com"})
	require.NoError(t, err)

	_, _, err = svc.JoinSession(ctx, session.ID, "bob", "", invitation.Token)
	require.NoError(t, err)

	// A used token no longer authorizes anyone else.
	_, _, err = svc.JoinSession(ctx, session.ID, "carol", "", invitation.Token)
	assert.True(t, apierror.IsUnauthorized(err))
}

func TestJoinSession_ExpiredInvitation(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	session := shareSession(t, svc, "alice", collab.CreateSessionInput{Visibility: sharing.VisibilityPrivate})

	invitation, err := svc.CreateInvitation(ctx, session.ID, "alice", collab.InviteInput{
		UserID: "bob", ExpiresIn: time.Hour,
	})
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	_, _, err = svc.JoinSession(ctx, session.ID, "bob", "", invitation.Token)
	assert.True(t, apierror.IsExpired(err))
}

func TestJoinSession_MistargetedInvitationIsIgnored(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	session := shareSession(t, svc, "alice", collab.CreateSessionInput{Visibility: sharing.VisibilityPrivate})

	invitation, err := svc.CreateInvitation(ctx, session.ID, "alice", collab.InviteInput{UserID: "bob"})
	require.NoError(t, err)

	// Carol holding Bob's token gets the no-invitation treatment.
	_, _, err = svc.JoinSession(ctx, session.ID, "carol", "", invitation.Token)
	assert.True(t, apierror.IsUnauthorized(err))
}

func TestJoinSession_ViewerCapacity(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	maxViewers := 2
	session := shareSession(t, svc, "alice", collab.CreateSessionInput{
		Visibility: sharing.VisibilityPublic,
		MaxViewers: &maxViewers,
	})

	_, _, err := svc.JoinSession(ctx, session.ID, "bob", "", "")
	require.NoError(t, err)
	_, _, err = svc.JoinSession(ctx, session.ID, "carol", "", "")
	require.NoError(t, err)

	_, _, err = svc.JoinSession(ctx, session.ID, "dave", "", "")
	assert.True(t, apierror.IsType(err, apierror.TypeCapacityExceeded))

	// Editors do not count against the viewer limit.
	invitation, err := svc.CreateInvitation(ctx, session.ID, "alice", collab.InviteInput{
		UserID: "erin", Role: sharing.RoleEditor,
	})
	require.NoError(t, err)
	_, _, err = svc.JoinSession(ctx, session.ID, "erin", "", invitation.Token)
	assert.NoError(t, err)
}

func TestCreateInvitation_Permissions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	session := shareSession(t, svc, "alice", collab.CreateSessionInput{Visibility: sharing.VisibilityPublic})

	// Non-participants cannot invite.
	_, err := svc.CreateInvitation(ctx, session.ID, "stranger", collab.InviteInput{Email: "x@example.com"})
	assert.True(t, apierror.IsUnauthorized(err))

	// Viewers cannot invite.
	_, _, err = svc.JoinSession(ctx, session.ID, "bob", "", "")
	require.NoError(t, err)
	_, err = svc.CreateInvitation(ctx, session.ID, "bob", collab.InviteInput{Email: "x@example.com"})
	assert.True(t, apierror.IsUnauthorized(err))

	// Editors cannot grant beyond their own role, and nobody grants owner.
	inv, err := svc.CreateInvitation(ctx, session.ID, "alice", collab.InviteInput{
		UserID: "erin", Role: sharing.RoleEditor,
	})
	require.NoError(t, err)
	_, _, err = svc.JoinSession(ctx, session.ID, "erin", "", inv.Token)
	require.NoError(t, err)

	_, err = svc.CreateInvitation(ctx, session.ID, "erin", collab.InviteInput{
		Email: "x@example.com", Role: sharing.RoleOwner,
	})
	assert.True(t, apierror.IsType(err, apierror.TypeValidation))

	_, err = svc.CreateInvitation(ctx, session.ID, "alice", collab.InviteInput{
		Email: "x@example.com", Role: sharing.RoleOwner,
	})
	assert.True(t, apierror.IsType(err, apierror.TypeValidation), "the owner role is never grantable")

	// An editor inviting a viewer is fine.
	_, err = svc.CreateInvitation(ctx, session.ID, "erin", collab.InviteInput{Email: "y@example.com"})
	assert.NoError(t, err)
}

func TestCreateInvitation_RequiresTarget(t *testing.T) {
	svc, _ := newTestService(t)
	session := shareSession(t, svc, "alice", collab.CreateSessionInput{Visibility: sharing.VisibilityPublic})

	_, err := svc.CreateInvitation(context.Background(), session.ID, "alice", collab.InviteInput{})
	assert.True(t, apierror.IsType(err, apierror.TypeValidation))
}

func TestUpdateVisibility_Permissions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	session := shareSession(t, svc, "alice", collab.CreateSessionInput{Visibility: sharing.VisibilityPublic})

	_, _, err := svc.JoinSession(ctx, session.ID, "bob", "", "")
	require.NoError(t, err)

	_, err = svc.UpdateVisibility(ctx, session.ID, "bob", sharing.VisibilityPrivate, "")
	assert.True(t, apierror.IsUnauthorized(err), "viewers cannot change visibility")

	_, err = svc.UpdateVisibility(ctx, session.ID, "stranger", sharing.VisibilityPrivate, "")
	assert.True(t, apierror.IsUnauthorized(err))

	updated, err := svc.UpdateVisibility(ctx, session.ID, "alice", sharing.VisibilityPrivate, "")
	require.NoError(t, err)
	assert.Equal(t, sharing.VisibilityPrivate, updated.Visibility)
}

func TestUpdateVisibility_PasswordRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	session := shareSession(t, svc, "alice", collab.CreateSessionInput{
		Visibility: sharing.VisibilityUnlisted,
		Password:   "hunter2",
	})

	// Public visibility refuses a password and drops the stored one.
	_, err := svc.UpdateVisibility(ctx, session.ID, "alice", sharing.VisibilityPublic, "secret")
	assert.True(t, apierror.IsType(err, apierror.TypeValidation))

	_, err = svc.UpdateVisibility(ctx, session.ID, "alice", sharing.VisibilityPublic, "")
	require.NoError(t, err)
	_, _, err = svc.JoinSession(ctx, session.ID, "bob", "", "")
	assert.NoError(t, err, "public session joins without password after the switch")

	// Back to unlisted requires a new password since the old hash is gone.
	_, err = svc.UpdateVisibility(ctx, session.ID, "alice", sharing.VisibilityUnlisted, "")
	assert.True(t, apierror.IsType(err, apierror.TypeValidation))

	_, err = svc.UpdateVisibility(ctx, session.ID, "alice", sharing.VisibilityUnlisted, "new-secret")
	require.NoError(t, err)
	_, _, err = svc.JoinSession(ctx, session.ID, "carol", "hunter2", "")
	assert.True(t, apierror.IsWrongPassword(err), "old password no longer valid")
	_, _, err = svc.JoinSession(ctx, session.ID, "carol", "new-secret", "")
	assert.NoError(t, err)
}

func TestUpdateVisibility_UnlistedKeepsExistingPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	session := shareSession(t, svc, "alice", collab.CreateSessionInput{
		Visibility: sharing.VisibilityUnlisted,
		Password:   "hunter2",
	})

	// No password supplied: the stored hash carries over.
	_, err := svc.UpdateVisibility(ctx, session.ID, "alice", sharing.VisibilityUnlisted, "")
	require.NoError(t, err)

	_, _, err = svc.JoinSession(ctx, session.ID, "bob", "hunter2", "")
	assert.NoError(t, err)
}

func TestPublicSessions_FiltersAndPaginates(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	shareSession(t, svc, "alice", collab.CreateSessionInput{Title: "private", Visibility: sharing.VisibilityPrivate})
	clock.Advance(time.Minute)
	expiring := shareSession(t, svc, "alice", collab.CreateSessionInput{
		Title: "expiring", Visibility: sharing.VisibilityPublic, ExpiresIn: time.Hour,
	})
	clock.Advance(time.Minute)
	older := shareSession(t, svc, "alice", collab.CreateSessionInput{Title: "older", Visibility: sharing.VisibilityPublic})
	clock.Advance(time.Minute)
	newest := shareSession(t, svc, "alice", collab.CreateSessionInput{Title: "newest", Visibility: sharing.VisibilityPublic})

	sessions, total, err := svc.PublicSessions(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, sessions, 3)
	assert.Equal(t, newest.ID, sessions[0].ID, "creation time descending")
	assert.Equal(t, older.ID, sessions[1].ID)
	assert.Equal(t, expiring.ID, sessions[2].ID)

	// Pagination.
	page, total, err := svc.PublicSessions(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, expiring.ID, page[0].ID)

	// Lazy expiry drops the expiring session without any cleanup pass.
	clock.Advance(2 * time.Hour)
	sessions, total, err = svc.PublicSessions(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	for _, s := range sessions {
		assert.NotEqual(t, expiring.ID, s.ID)
	}
}

func TestSessionParticipants_UnknownSession(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.SessionParticipants(context.Background(), "missing")
	assert.True(t, apierror.IsNotFound(err))
}
