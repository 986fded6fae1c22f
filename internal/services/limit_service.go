package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mhalloran/curbshare/internal/models"
)

// Limits holds the per-user ceilings enforced by the lifecycle services.
// InviteValidity is fixed; the rest are configurable.
type Limits struct {
	MaxOpenInvites   int
	MaxOpenRequests  int
	MaxGroupsCreated int
	MaxGroupsJoined  int
}

// InviteValidity is how long an issued invite can be accepted.
const InviteValidity = 7 * 24 * time.Hour

// DefaultLimits returns the standard ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxOpenInvites:   10,
		MaxOpenRequests:  20,
		MaxGroupsCreated: 5,
		MaxGroupsJoined:  20,
	}
}

func (l Limits) withDefaults() Limits {
	defaults := DefaultLimits()
	if l.MaxOpenInvites <= 0 {
		l.MaxOpenInvites = defaults.MaxOpenInvites
	}
	if l.MaxOpenRequests <= 0 {
		l.MaxOpenRequests = defaults.MaxOpenRequests
	}
	if l.MaxGroupsCreated <= 0 {
		l.MaxGroupsCreated = defaults.MaxGroupsCreated
	}
	if l.MaxGroupsJoined <= 0 {
		l.MaxGroupsJoined = defaults.MaxGroupsJoined
	}
	return l
}

// Usage is a snapshot of a user's consumption against the ceilings,
// suitable for pre-flight display ("7/10 invitations sent"). It is advisory:
// enforcement always happens inside the lifecycle services at mutation time.
type Usage struct {
	OpenRequests     int64 `json:"open_requests"`
	MaxOpenRequests  int   `json:"max_open_requests"`
	OpenInvites      int64 `json:"open_invites"`
	MaxOpenInvites   int   `json:"max_open_invites"`
	GroupsCreated    int64 `json:"groups_created"`
	MaxGroupsCreated int   `json:"max_groups_created"`
	GroupsJoined     int64 `json:"groups_joined"`
	MaxGroupsJoined  int   `json:"max_groups_joined"`
}

// LimitOption customises LimitService behaviour.
type LimitOption func(*LimitService)

// WithLimitClock injects a custom clock primarily for testing.
func WithLimitClock(clock func() time.Time) LimitOption {
	return func(s *LimitService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// LimitService computes per-user usage counts against configured ceilings.
// It performs reads only and never caches between calls.
type LimitService struct {
	db     *gorm.DB
	limits Limits
	now    func() time.Time
}

// NewLimitService constructs a LimitService with the provided ceilings.
func NewLimitService(db *gorm.DB, limits Limits, opts ...LimitOption) (*LimitService, error) {
	if db == nil {
		return nil, errors.New("limit service: db is required")
	}

	service := &LimitService{
		db:     db,
		limits: limits.withDefaults(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Limits returns the configured ceilings.
func (s *LimitService) Limits() Limits {
	return s.limits
}

// OpenRequestCount counts requests owned by the user that are not fulfilled.
func (s *LimitService) OpenRequestCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ensureContext(ctx)).
		Model(&models.Request{}).
		Where("owner_id = ? AND status <> ?", userID, models.RequestStatusFulfilled).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("limit service: count open requests: %w", err)
	}
	return count, nil
}

// OpenInviteCount counts unused, unexpired invites issued by the user across
// all groups.
func (s *LimitService) OpenInviteCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ensureContext(ctx)).
		Model(&models.Invite{}).
		Where("invited_by = ? AND used_at IS NULL AND expires_at > ?", userID, s.now()).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("limit service: count open invites: %w", err)
	}
	return count, nil
}

// GroupsCreatedCount counts groups owned by the user.
func (s *LimitService) GroupsCreatedCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ensureContext(ctx)).
		Model(&models.Group{}).
		Where("created_by = ?", userID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("limit service: count groups created: %w", err)
	}
	return count, nil
}

// GroupsJoinedCount counts the user's memberships.
func (s *LimitService) GroupsJoinedCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ensureContext(ctx)).
		Model(&models.Membership{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("limit service: count memberships: %w", err)
	}
	return count, nil
}

// CanCreateRequest reports whether the user is under the open-request ceiling.
func (s *LimitService) CanCreateRequest(ctx context.Context, userID string) (bool, error) {
	count, err := s.OpenRequestCount(ctx, userID)
	if err != nil {
		return false, err
	}
	return count < int64(s.limits.MaxOpenRequests), nil
}

// CanIssueInvite reports whether the user is under the open-invite ceiling.
func (s *LimitService) CanIssueInvite(ctx context.Context, userID string) (bool, error) {
	count, err := s.OpenInviteCount(ctx, userID)
	if err != nil {
		return false, err
	}
	return count < int64(s.limits.MaxOpenInvites), nil
}

// CanCreateGroup reports whether the user is under the groups-created ceiling.
func (s *LimitService) CanCreateGroup(ctx context.Context, userID string) (bool, error) {
	count, err := s.GroupsCreatedCount(ctx, userID)
	if err != nil {
		return false, err
	}
	return count < int64(s.limits.MaxGroupsCreated), nil
}

// CanJoinGroup reports whether the user is under the memberships ceiling.
func (s *LimitService) CanJoinGroup(ctx context.Context, userID string) (bool, error) {
	count, err := s.GroupsJoinedCount(ctx, userID)
	if err != nil {
		return false, err
	}
	return count < int64(s.limits.MaxGroupsJoined), nil
}

// Usage assembles the full usage snapshot for a user.
func (s *LimitService) Usage(ctx context.Context, userID string) (Usage, error) {
	ctx = ensureContext(ctx)

	openRequests, err := s.OpenRequestCount(ctx, userID)
	if err != nil {
		return Usage{}, err
	}
	openInvites, err := s.OpenInviteCount(ctx, userID)
	if err != nil {
		return Usage{}, err
	}
	created, err := s.GroupsCreatedCount(ctx, userID)
	if err != nil {
		return Usage{}, err
	}
	joined, err := s.GroupsJoinedCount(ctx, userID)
	if err != nil {
		return Usage{}, err
	}

	return Usage{
		OpenRequests:     openRequests,
		MaxOpenRequests:  s.limits.MaxOpenRequests,
		OpenInvites:      openInvites,
		MaxOpenInvites:   s.limits.MaxOpenInvites,
		GroupsCreated:    created,
		MaxGroupsCreated: s.limits.MaxGroupsCreated,
		GroupsJoined:     joined,
		MaxGroupsJoined:  s.limits.MaxGroupsJoined,
	}, nil
}
