package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"

	"github.com/mhalloran/curbshare/internal/models"
	apperrors "github.com/mhalloran/curbshare/pkg/errors"
)

var (
	// ErrGroupNotFound indicates the requested group does not exist.
	ErrGroupNotFound = apperrors.New("GROUP_NOT_FOUND", "Group not found", http.StatusNotFound)
	// ErrNotMember indicates the user holds no membership for the group.
	ErrNotMember = apperrors.New("NOT_MEMBER", "User is not a member of the group", http.StatusNotFound)
	// ErrOwnerCannotLeave signals a group owner attempting to leave their own group.
	ErrOwnerCannotLeave = apperrors.New("OWNER_CANNOT_LEAVE", "Group owners cannot leave their own group", http.StatusForbidden)
	// ErrGroupLimitExceeded signals the groups-created ceiling was reached.
	ErrGroupLimitExceeded = apperrors.New("LIMIT_EXCEEDED", "Group creation limit reached", http.StatusUnprocessableEntity)
)

// CreateGroupInput captures new group metadata.
type CreateGroupInput struct {
	Name    string
	OwnerID string
}

// GroupOption customises GroupService behaviour.
type GroupOption func(*GroupService)

// WithGroupClock injects a custom clock primarily for testing.
func WithGroupClock(clock func() time.Time) GroupOption {
	return func(s *GroupService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// GroupService handles group lifecycle and membership management.
type GroupService struct {
	db        *gorm.DB
	limits    *LimitService
	sanitizer *bluemonday.Policy
	now       func() time.Time
}

// NewGroupService constructs a GroupService instance.
func NewGroupService(db *gorm.DB, limits *LimitService, opts ...GroupOption) (*GroupService, error) {
	if db == nil {
		return nil, errors.New("group service: db is required")
	}
	if limits == nil {
		return nil, errors.New("group service: limit service is required")
	}

	service := &GroupService{
		db:        db,
		limits:    limits,
		sanitizer: bluemonday.StrictPolicy(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Create registers a new group and enrolls the owner as its first member.
// Both writes happen in one transaction so an owner without a membership can
// never be observed.
func (s *GroupService) Create(ctx context.Context, input CreateGroupInput) (*models.Group, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(s.sanitizer.Sanitize(input.Name))
	if len(name) < 2 || len(name) > 128 {
		return nil, apperrors.NewBadRequest("group name must be between 2 and 128 characters")
	}

	ownerID := strings.TrimSpace(input.OwnerID)
	if ownerID == "" {
		return nil, apperrors.NewBadRequest("owner id is required")
	}

	var owner models.User
	if err := s.db.WithContext(ctx).First(&owner, "id = ?", ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("group service: load owner: %w", err)
	}

	allowed, err := s.limits.CanCreateGroup(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrGroupLimitExceeded
	}

	group := &models.Group{
		Name:      name,
		CreatedBy: ownerID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(group).Error; err != nil {
			return fmt.Errorf("group service: create group: %w", err)
		}

		membership := &models.Membership{
			GroupID:  group.ID,
			UserID:   ownerID,
			JoinedAt: s.now(),
		}
		if err := tx.Create(membership).Error; err != nil {
			return fmt.Errorf("group service: enroll owner: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return group, nil
}

// GetByID loads a group. Only members may view it.
func (s *GroupService) GetByID(ctx context.Context, groupID, requesterID string) (*models.Group, error) {
	ctx = ensureContext(ctx)

	var group models.Group
	err := s.db.WithContext(ctx).First(&group, "id = ?", groupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("group service: load group: %w", err)
	}

	member, err := isGroupMember(ctx, s.db, group.ID, requesterID)
	if err != nil {
		return nil, fmt.Errorf("group service: %w", err)
	}
	if !member {
		return nil, apperrors.ErrForbidden
	}

	return &group, nil
}

// ListForUser returns the groups the user belongs to, oldest first.
func (s *GroupService) ListForUser(ctx context.Context, userID string) ([]models.Group, error) {
	ctx = ensureContext(ctx)

	var groups []models.Group
	err := s.db.WithContext(ctx).
		Joins("JOIN memberships ON memberships.group_id = groups.id").
		Where("memberships.user_id = ?", userID).
		Order("groups.created_at ASC").
		Find(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("group service: list groups: %w", err)
	}

	return groups, nil
}

// ListMembers returns the memberships of a group, visible to members only.
func (s *GroupService) ListMembers(ctx context.Context, groupID, requesterID string) ([]models.Membership, error) {
	ctx = ensureContext(ctx)

	if _, err := s.GetByID(ctx, groupID, requesterID); err != nil {
		return nil, err
	}

	var memberships []models.Membership
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("group_id = ?", groupID).
		Order("joined_at ASC").
		Find(&memberships).Error
	if err != nil {
		return nil, fmt.Errorf("group service: list members: %w", err)
	}

	return memberships, nil
}

// Leave removes the caller's own membership. Owners can never leave.
func (s *GroupService) Leave(ctx context.Context, groupID, userID string) error {
	ctx = ensureContext(ctx)

	var group models.Group
	err := s.db.WithContext(ctx).First(&group, "id = ?", groupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrGroupNotFound
	}
	if err != nil {
		return fmt.Errorf("group service: load group: %w", err)
	}

	if group.CreatedBy == userID {
		return ErrOwnerCannotLeave
	}

	result := s.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&models.Membership{})
	if result.Error != nil {
		return fmt.Errorf("group service: remove membership: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotMember
	}

	return nil
}

// RemoveMember lets the group owner remove another member. Owners cannot
// remove themselves.
func (s *GroupService) RemoveMember(ctx context.Context, groupID, requesterID, targetID string) error {
	ctx = ensureContext(ctx)

	var group models.Group
	err := s.db.WithContext(ctx).First(&group, "id = ?", groupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrGroupNotFound
	}
	if err != nil {
		return fmt.Errorf("group service: load group: %w", err)
	}

	if group.CreatedBy != requesterID {
		return apperrors.ErrForbidden
	}
	if targetID == requesterID {
		return ErrOwnerCannotLeave
	}

	result := s.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, targetID).
		Delete(&models.Membership{})
	if result.Error != nil {
		return fmt.Errorf("group service: remove member: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotMember
	}

	return nil
}
