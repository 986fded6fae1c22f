package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mhalloran/curbshare/internal/models"
	apperrors "github.com/mhalloran/curbshare/pkg/errors"
	"github.com/mhalloran/curbshare/pkg/mail"
)

func newInviteService(t *testing.T, db *gorm.DB, mailer mail.Mailer, clock func() time.Time) *InviteService {
	t.Helper()

	limits := mustLimitService(t, db, Limits{}, WithLimitClock(clock))
	svc, err := NewInviteService(db, mailer, limits, WithInviteClock(clock))
	require.NoError(t, err)
	return svc
}

func TestInviteIssueGuards(t *testing.T) {
	db := openServiceTestDB(t)
	current := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	owner := seedUser(t, db, "issuer@example.com")
	member := seedUser(t, db, "member@example.com")
	group := seedGroup(t, db, owner, "Elm Street")
	seedMember(t, db, group, member)

	svc := newInviteService(t, db, nil, clock)

	t.Run("only the owner may invite", func(t *testing.T) {
		_, _, err := svc.Issue(context.Background(), group.ID, "new@example.com", member.ID)
		require.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("malformed email rejected", func(t *testing.T) {
		_, _, err := svc.Issue(context.Background(), group.ID, "not-an-email", owner.ID)
		require.Error(t, err)
		require.Equal(t, "VALIDATION_ERROR", apperrors.FromError(err).Code)
	})

	t.Run("unknown group", func(t *testing.T) {
		_, _, err := svc.Issue(context.Background(), "missing-group", "new@example.com", owner.ID)
		require.ErrorIs(t, err, ErrGroupNotFound)
	})

	t.Run("success normalises the email and sets a 7 day expiry", func(t *testing.T) {
		invite, token, err := svc.Issue(context.Background(), group.ID, " New@Example.COM ", owner.ID)
		require.NoError(t, err)
		require.NotEmpty(t, token)
		require.Equal(t, "new@example.com", invite.Email)
		require.Equal(t, current.Add(7*24*time.Hour), invite.ExpiresAt)
		require.Nil(t, invite.UsedAt)
	})
}

func TestInviteDuplicatePrevention(t *testing.T) {
	db := openServiceTestDB(t)
	current := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	owner := seedUser(t, db, "dup-owner@example.com")
	group := seedGroup(t, db, owner, "Dup Street")

	svc := newInviteService(t, db, nil, clock)

	_, token, err := svc.Issue(context.Background(), group.ID, "dup@example.com", owner.ID)
	require.NoError(t, err)

	// second open invite for the same (group, email) pair is rejected
	_, _, err = svc.Issue(context.Background(), group.ID, "dup@example.com", owner.ID)
	require.ErrorIs(t, err, ErrDuplicateInvite)

	// once the first invite is consumed, the pair is free again
	joiner := seedUser(t, db, "dup-joiner@example.com")
	_, err = svc.Accept(context.Background(), token, joiner.ID)
	require.NoError(t, err)

	_, _, err = svc.Issue(context.Background(), group.ID, "dup@example.com", owner.ID)
	require.NoError(t, err)
}

func TestInviteDuplicateFreedByExpiry(t *testing.T) {
	db := openServiceTestDB(t)
	current := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	owner := seedUser(t, db, "exp-owner@example.com")
	group := seedGroup(t, db, owner, "Expiry Road")

	svc := newInviteService(t, db, nil, clock)

	_, _, err := svc.Issue(context.Background(), group.ID, "slow@example.com", owner.ID)
	require.NoError(t, err)

	_, _, err = svc.Issue(context.Background(), group.ID, "slow@example.com", owner.ID)
	require.ErrorIs(t, err, ErrDuplicateInvite)

	current = current.Add(7*24*time.Hour + time.Minute)

	_, _, err = svc.Issue(context.Background(), group.ID, "slow@example.com", owner.ID)
	require.NoError(t, err)
}

func TestInviteOpenInviteCeilingAcrossGroups(t *testing.T) {
	db := openServiceTestDB(t)
	current := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	owner := seedUser(t, db, "ceiling@example.com")
	first := seedGroup(t, db, owner, "First Group")
	second := seedGroup(t, db, owner, "Second Group")

	limits := mustLimitService(t, db, Limits{MaxOpenInvites: 3}, WithLimitClock(clock))
	svc, err := NewInviteService(db, nil, limits, WithInviteClock(clock))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, _, err := svc.Issue(context.Background(), first.ID, fmt.Sprintf("guest%d@example.com", i), owner.ID)
		require.NoError(t, err)
	}
	_, _, err = svc.Issue(context.Background(), second.ID, "guest2@example.com", owner.ID)
	require.NoError(t, err)

	// the ceiling counts open invites across all groups
	_, _, err = svc.Issue(context.Background(), second.ID, "guest3@example.com", owner.ID)
	require.ErrorIs(t, err, ErrInviteLimitExceeded)
}

func TestInviteValidate(t *testing.T) {
	db := openServiceTestDB(t)
	current := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	owner := seedUser(t, db, "val-owner@example.com")
	group := seedGroup(t, db, owner, "Validate Lane")

	svc := newInviteService(t, db, nil, clock)

	_, token, err := svc.Issue(context.Background(), group.ID, "val@example.com", owner.ID)
	require.NoError(t, err)

	invite, err := svc.Validate(context.Background(), token)
	require.NoError(t, err)
	require.Nil(t, invite.UsedAt)
	require.NotNil(t, invite.Group)
	require.Equal(t, group.ID, invite.Group.ID)

	// unknown and expired tokens are indistinguishable
	_, err = svc.Validate(context.Background(), "no-such-token")
	require.ErrorIs(t, err, ErrInviteNotFoundOrExpired)

	current = current.Add(7*24*time.Hour + time.Second)
	_, err = svc.Validate(context.Background(), token)
	require.ErrorIs(t, err, ErrInviteNotFoundOrExpired)
}

func TestInviteAcceptFlow(t *testing.T) {
	db := openServiceTestDB(t)
	current := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	owner := seedUser(t, db, "accept-owner@example.com")
	joiner := seedUser(t, db, "accept-joiner@example.com")
	group := seedGroup(t, db, owner, "Accept Street")

	svc := newInviteService(t, db, nil, clock)

	invite, token, err := svc.Issue(context.Background(), group.ID, "accept-joiner@example.com", owner.ID)
	require.NoError(t, err)

	joined, err := svc.Accept(context.Background(), token, joiner.ID)
	require.NoError(t, err)
	require.Equal(t, group.ID, joined.ID)

	// membership exists and the token is spent
	var membership models.Membership
	require.NoError(t, db.First(&membership, "group_id = ? AND user_id = ?", group.ID, joiner.ID).Error)
	require.WithinDuration(t, current, membership.JoinedAt, time.Second)

	var stored models.Invite
	require.NoError(t, db.First(&stored, "id = ?", invite.ID).Error)
	require.NotNil(t, stored.UsedAt)

	// a second accept fails and never duplicates the membership
	_, err = svc.Accept(context.Background(), token, joiner.ID)
	require.ErrorIs(t, err, ErrInviteNotFoundOrExpired)

	other := seedUser(t, db, "accept-other@example.com")
	_, err = svc.Accept(context.Background(), token, other.ID)
	require.ErrorIs(t, err, ErrInviteNotFoundOrExpired)

	var count int64
	require.NoError(t, db.Model(&models.Membership{}).
		Where("group_id = ? AND user_id = ?", group.ID, joiner.ID).
		Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestInviteAcceptRejectsExistingMember(t *testing.T) {
	db := openServiceTestDB(t)
	current := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	owner := seedUser(t, db, "am-owner@example.com")
	member := seedUser(t, db, "am-member@example.com")
	group := seedGroup(t, db, owner, "Member Street")
	seedMember(t, db, group, member)

	svc := newInviteService(t, db, nil, clock)

	_, token, err := svc.Issue(context.Background(), group.ID, "am-member@example.com", owner.ID)
	require.NoError(t, err)

	_, err = svc.Accept(context.Background(), token, member.ID)
	require.ErrorIs(t, err, ErrAlreadyMember)

	// the token survives a rejected accept
	_, err = svc.Validate(context.Background(), token)
	require.NoError(t, err)
}

func TestInviteAcceptAnyRegisteredUserMayUseToken(t *testing.T) {
	db := openServiceTestDB(t)
	current := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	owner := seedUser(t, db, "any-owner@example.com")
	group := seedGroup(t, db, owner, "Any Street")

	svc := newInviteService(t, db, nil, clock)

	// invited b@x.com, but token possession is the capability
	_, token, err := svc.Issue(context.Background(), group.ID, "b@x.com", owner.ID)
	require.NoError(t, err)

	someone := seedUser(t, db, "someone-else@example.com")
	joined, err := svc.Accept(context.Background(), token, someone.ID)
	require.NoError(t, err)
	require.Equal(t, group.ID, joined.ID)
}

type recordingMailer struct {
	sent chan mail.Message
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, msg mail.Message) error {
	m.sent <- msg
	return m.err
}

func TestInviteEmailDispatchedBestEffort(t *testing.T) {
	db := openServiceTestDB(t)
	current := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	owner := seedUser(t, db, "mail-owner@example.com")
	group := seedGroup(t, db, owner, "Mail Street")

	mailer := &recordingMailer{sent: make(chan mail.Message, 1)}
	limits := mustLimitService(t, db, Limits{}, WithLimitClock(clock))
	svc, err := NewInviteService(db, mailer, limits,
		WithInviteClock(clock),
		WithInviteBaseURL("https://curbshare.example/invites"))
	require.NoError(t, err)

	_, token, err := svc.Issue(context.Background(), group.ID, "mailme@example.com", owner.ID)
	require.NoError(t, err)

	select {
	case msg := <-mailer.sent:
		require.Equal(t, []string{"mailme@example.com"}, msg.To)
		require.Contains(t, msg.Body, token)
		require.Contains(t, msg.Body, "https://curbshare.example/invites?token=")
	case <-time.After(2 * time.Second):
		t.Fatal("invite email was not dispatched")
	}
}

func TestInviteEmailFailureDoesNotRollBackIssue(t *testing.T) {
	db := openServiceTestDB(t)
	current := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	owner := seedUser(t, db, "fail-owner@example.com")
	group := seedGroup(t, db, owner, "Fail Street")

	mailer := &recordingMailer{sent: make(chan mail.Message, 1), err: errors.New("smtp on fire")}
	limits := mustLimitService(t, db, Limits{}, WithLimitClock(clock))
	svc, err := NewInviteService(db, mailer, limits, WithInviteClock(clock))
	require.NoError(t, err)

	invite, token, err := svc.Issue(context.Background(), group.ID, "unlucky@example.com", owner.ID)
	require.NoError(t, err)

	select {
	case <-mailer.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("invite email was not attempted")
	}

	// the invite record is the source of truth and remains valid
	validated, err := svc.Validate(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, invite.ID, validated.ID)
}
