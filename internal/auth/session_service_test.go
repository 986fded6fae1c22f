package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	testutil "github.com/mhalloran/curbshare/internal/database/testutil"
	"github.com/mhalloran/curbshare/internal/models"
	"github.com/mhalloran/curbshare/pkg/crypto"
)

func TestCreateSessionGeneratesTokens(t *testing.T) {
	db, svc, clock := setupSessionService(t)

	user := createTestUser(t, db, "create@example.com")

	tokens, session, err := svc.CreateSession(context.Background(), user.ID, SessionMetadata{
		IPAddress: "10.0.0.1 ",
		UserAgent: "unit-test",
	})
	require.NoError(t, err)

	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.RefreshToken)
	require.NotNil(t, session)
	require.Equal(t, user.ID, session.UserID)
	require.Equal(t, "10.0.0.1", session.IPAddress)
	require.Equal(t, "unit-test", session.UserAgent)

	var reloaded models.Session
	require.NoError(t, db.Take(&reloaded, "id = ?", session.ID).Error)
	require.Equal(t, tokens.RefreshToken, reloaded.RefreshToken)
	require.True(t, reloaded.ExpiresAt.After(clock.Now()))
	require.True(t, reloaded.Active(clock.Now()))
}

func TestRefreshSessionRotatesToken(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "refresh@example.com")

	tokens, session, err := svc.CreateSession(context.Background(), user.ID, SessionMetadata{})
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)

	newTokens, updatedSession, err := svc.RefreshSession(context.Background(), tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, tokens.RefreshToken, newTokens.RefreshToken)
	require.NotEqual(t, tokens.AccessToken, newTokens.AccessToken)

	require.Equal(t, session.ID, updatedSession.ID)
	require.Equal(t, newTokens.RefreshToken, updatedSession.RefreshToken)
	require.True(t, updatedSession.LastUsedAt.Equal(clock.Now()))

	// The old token is spent.
	_, _, err = svc.RefreshSession(context.Background(), tokens.RefreshToken)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRefreshSessionExpired(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "expired@example.com")

	tokens, session, err := svc.CreateSession(context.Background(), user.ID, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Session{}).
		Where("id = ?", session.ID).
		Update("expires_at", clock.Now().Add(-time.Minute)).Error)

	_, _, err = svc.RefreshSession(context.Background(), tokens.RefreshToken)
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestRevokeSessionPreventsRefresh(t *testing.T) {
	db, svc, _ := setupSessionService(t)

	user := createTestUser(t, db, "revoke@example.com")

	tokens, session, err := svc.CreateSession(context.Background(), user.ID, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeSession(context.Background(), session.ID))

	err = svc.RevokeSession(context.Background(), "non-existent")
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, _, err = svc.RefreshSession(context.Background(), tokens.RefreshToken)
	require.ErrorIs(t, err, ErrSessionRevoked)

	var stored models.Session
	require.NoError(t, db.Take(&stored, "id = ?", session.ID).Error)
	require.NotNil(t, stored.RevokedAt)
}

func TestRevokeUserSessions(t *testing.T) {
	db, svc, _ := setupSessionService(t)
	user := createTestUser(t, db, "revoke-all@example.com")

	first, _, err := svc.CreateSession(context.Background(), user.ID, SessionMetadata{})
	require.NoError(t, err)
	second, _, err := svc.CreateSession(context.Background(), user.ID, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeUserSessions(context.Background(), user.ID))

	_, _, err = svc.RefreshSession(context.Background(), first.RefreshToken)
	require.ErrorIs(t, err, ErrSessionRevoked)
	_, _, err = svc.RefreshSession(context.Background(), second.RefreshToken)
	require.ErrorIs(t, err, ErrSessionRevoked)
}

func TestCleanupExpiredSessions(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "cleanup@example.com")

	_, expired, err := svc.CreateSession(context.Background(), user.ID, SessionMetadata{})
	require.NoError(t, err)
	_, live, err := svc.CreateSession(context.Background(), user.ID, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Session{}).
		Where("id = ?", expired.ID).
		Update("expires_at", clock.Now().Add(-time.Hour)).Error)

	removed, err := svc.CleanupExpired(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	var remaining []models.Session
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, live.ID, remaining[0].ID)
}

func setupSessionService(t *testing.T) (*gorm.DB, *SessionService, *testClock) {
	t.Helper()

	db := testutil.MustOpenTestDB(t)

	clock := &testClock{current: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)}

	jwtService, err := NewJWTService(JWTConfig{
		Secret:         "session-secret",
		AccessTokenTTL: time.Hour,
		Clock:          clock.Now,
	})
	require.NoError(t, err)

	sessionService, err := NewSessionService(db, jwtService, SessionConfig{
		RefreshTokenTTL: 2 * time.Hour,
		RefreshLength:   24,
		Clock:           clock.Now,
	})
	require.NoError(t, err)

	return db, sessionService, clock
}

func createTestUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hashed, err := crypto.HashPassword("password")
	require.NoError(t, err)

	user := &models.User{
		Email:       email,
		Password:    hashed,
		DisplayName: email,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

type testClock struct {
	current time.Time
}

func (c *testClock) Now() time.Time {
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}
