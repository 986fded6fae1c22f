package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRequestExpiredIsDerived(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	fresh := Request{NeededBy: now.Add(24 * time.Hour), Status: RequestStatusOpen}
	require.False(t, fresh.Expired(now))

	stale := Request{NeededBy: now.Add(-time.Minute), Status: RequestStatusOpen}
	require.True(t, stale.Expired(now))
	// status itself is untouched; expiry never becomes a persisted state
	require.Equal(t, RequestStatusOpen, stale.Status)
}

func TestInviteOpen(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	used := now.Add(-time.Hour)

	cases := []struct {
		name   string
		invite Invite
		open   bool
	}{
		{"unused and unexpired", Invite{ExpiresAt: now.Add(time.Hour)}, true},
		{"expires exactly now", Invite{ExpiresAt: now}, true},
		{"expired", Invite{ExpiresAt: now.Add(-time.Second)}, false},
		{"already used", Invite{ExpiresAt: now.Add(time.Hour), UsedAt: &used}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.open, tc.invite.Open(now))
		})
	}
}

func TestSessionActive(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	revoked := now.Add(-time.Minute)

	live := Session{ExpiresAt: now.Add(time.Hour)}
	require.True(t, live.Active(now))

	expired := Session{ExpiresAt: now.Add(-time.Second)}
	require.False(t, expired.Active(now))

	dead := Session{ExpiresAt: now.Add(time.Hour), RevokedAt: &revoked}
	require.False(t, dead.Active(now))
}
