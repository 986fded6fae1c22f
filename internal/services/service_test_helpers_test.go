package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	testutil "github.com/mhalloran/curbshare/internal/database/testutil"
	"github.com/mhalloran/curbshare/internal/models"
)

func seedUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	user := &models.User{
		Email:       email,
		Password:    "not-a-real-hash",
		DisplayName: email,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedGroup(t *testing.T, db *gorm.DB, owner *models.User, name string) *models.Group {
	t.Helper()

	group := &models.Group{Name: name, CreatedBy: owner.ID}
	require.NoError(t, db.Create(group).Error)
	seedMember(t, db, group, owner)
	return group
}

func seedMember(t *testing.T, db *gorm.DB, group *models.Group, user *models.User) {
	t.Helper()

	membership := &models.Membership{
		GroupID:  group.ID,
		UserID:   user.ID,
		JoinedAt: time.Now(),
	}
	require.NoError(t, db.Create(membership).Error)
}

func mustLimitService(t *testing.T, db *gorm.DB, limits Limits, opts ...LimitOption) *LimitService {
	t.Helper()

	svc, err := NewLimitService(db, limits, opts...)
	require.NoError(t, err)
	return svc
}

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t)
}
