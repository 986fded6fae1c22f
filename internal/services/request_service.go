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
	"github.com/mhalloran/curbshare/pkg/metrics"
)

const (
	minItemDescription = 3
	maxItemDescription = 500
)

var (
	// ErrRequestNotFound indicates the pickup request does not exist.
	ErrRequestNotFound = apperrors.New("REQUEST_NOT_FOUND", "Pickup request not found", http.StatusNotFound)
	// ErrRequestLimitExceeded signals the open-request ceiling was reached.
	ErrRequestLimitExceeded = apperrors.New("LIMIT_EXCEEDED", "Open request limit reached", http.StatusUnprocessableEntity)
)

// CreateRequestInput captures a new pickup request. NeededBy accepts RFC 3339
// or a bare 2006-01-02 date.
type CreateRequestInput struct {
	GroupID         string
	OwnerID         string
	ItemDescription string
	StorePreference string
	PickupNotes     string
	NeededBy        string
}

// RequestOption customises RequestService behaviour.
type RequestOption func(*RequestService)

// WithRequestClock injects a custom clock primarily for testing.
func WithRequestClock(clock func() time.Time) RequestOption {
	return func(s *RequestService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// RequestService enforces the pickup request state machine:
// open -> claimed -> fulfilled, with claimed -> open via unclaim.
//
// Every racy transition re-reads the row and then writes conditionally on
// the expected prior state; a write that matches zero rows means another
// actor got there first and surfaces as ErrConflict. This narrows the race
// window, it does not eliminate it for non-serializable stores.
type RequestService struct {
	db        *gorm.DB
	limits    *LimitService
	sanitizer *bluemonday.Policy
	now       func() time.Time
}

// NewRequestService constructs a RequestService instance.
func NewRequestService(db *gorm.DB, limits *LimitService, opts ...RequestOption) (*RequestService, error) {
	if db == nil {
		return nil, errors.New("request service: db is required")
	}
	if limits == nil {
		return nil, errors.New("request service: limit service is required")
	}

	service := &RequestService{
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

// Create validates and persists a new open request. The caller must be a
// member of the target group and NeededBy must be strictly in the future.
func (s *RequestService) Create(ctx context.Context, input CreateRequestInput) (*models.Request, error) {
	ctx = ensureContext(ctx)

	ownerID := strings.TrimSpace(input.OwnerID)
	groupID := strings.TrimSpace(input.GroupID)
	if ownerID == "" || groupID == "" {
		return nil, apperrors.NewBadRequest("group id and owner id are required")
	}

	member, err := isGroupMember(ctx, s.db, groupID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("request service: %w", err)
	}
	if !member {
		return nil, apperrors.ErrForbidden
	}

	description := strings.TrimSpace(s.sanitizer.Sanitize(input.ItemDescription))
	if len(description) < minItemDescription || len(description) > maxItemDescription {
		return nil, apperrors.NewBadRequest(fmt.Sprintf(
			"item description must be between %d and %d characters", minItemDescription, maxItemDescription))
	}

	neededBy, err := s.parseNeededBy(input.NeededBy)
	if err != nil {
		return nil, err
	}

	allowed, err := s.limits.CanCreateRequest(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrRequestLimitExceeded
	}

	request := &models.Request{
		OwnerID:         ownerID,
		GroupID:         groupID,
		ItemDescription: description,
		StorePreference: strings.TrimSpace(s.sanitizer.Sanitize(input.StorePreference)),
		PickupNotes:     strings.TrimSpace(s.sanitizer.Sanitize(input.PickupNotes)),
		NeededBy:        neededBy,
		Status:          models.RequestStatusOpen,
	}

	if err := s.db.WithContext(ctx).Create(request).Error; err != nil {
		return nil, fmt.Errorf("request service: create request: %w", err)
	}

	return request, nil
}

// Claim moves an open request to claimed on behalf of a group member who is
// not the owner. A request whose needed-by date has passed is still
// claimable; expiry is a display concern only.
func (s *RequestService) Claim(ctx context.Context, requestID, userID string) (*models.Request, error) {
	ctx = ensureContext(ctx)

	request, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if request.OwnerID == userID {
		return nil, apperrors.ErrForbidden
	}

	member, err := isGroupMember(ctx, s.db, request.GroupID, userID)
	if err != nil {
		return nil, fmt.Errorf("request service: %w", err)
	}
	if !member {
		return nil, apperrors.ErrForbidden
	}

	if request.Status != models.RequestStatusOpen {
		return nil, apperrors.ErrInvalidState
	}

	now := s.now()
	result := s.db.WithContext(ctx).
		Model(&models.Request{}).
		Where("id = ? AND status = ?", request.ID, models.RequestStatusOpen).
		Updates(map[string]any{
			"status":     models.RequestStatusClaimed,
			"claimed_by": userID,
			"claimed_at": now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("request service: claim request: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		metrics.ClaimConflicts.WithLabelValues("claim").Inc()
		return nil, apperrors.ErrConflict
	}

	return s.load(ctx, request.ID)
}

// Unclaim returns a claimed request to open. Only the current claimant may
// release it; membership is not re-validated.
func (s *RequestService) Unclaim(ctx context.Context, requestID, userID string) (*models.Request, error) {
	ctx = ensureContext(ctx)

	request, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if request.Status != models.RequestStatusClaimed {
		return nil, apperrors.ErrInvalidState
	}
	if request.ClaimedBy == nil || *request.ClaimedBy != userID {
		return nil, apperrors.ErrForbidden
	}

	result := s.db.WithContext(ctx).
		Model(&models.Request{}).
		Where("id = ? AND status = ? AND claimed_by = ?", request.ID, models.RequestStatusClaimed, userID).
		Updates(map[string]any{
			"status":     models.RequestStatusOpen,
			"claimed_by": nil,
			"claimed_at": nil,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("request service: unclaim request: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		metrics.ClaimConflicts.WithLabelValues("unclaim").Inc()
		return nil, apperrors.ErrConflict
	}

	return s.load(ctx, request.ID)
}

// Fulfill completes a claimed request. Only the claimant may fulfill.
func (s *RequestService) Fulfill(ctx context.Context, requestID, userID string) (*models.Request, error) {
	ctx = ensureContext(ctx)

	request, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if request.Status != models.RequestStatusClaimed {
		return nil, apperrors.ErrInvalidState
	}
	if request.ClaimedBy == nil || *request.ClaimedBy != userID {
		return nil, apperrors.ErrForbidden
	}

	now := s.now()
	result := s.db.WithContext(ctx).
		Model(&models.Request{}).
		Where("id = ? AND status = ? AND claimed_by = ?", request.ID, models.RequestStatusClaimed, userID).
		Updates(map[string]any{
			"status":       models.RequestStatusFulfilled,
			"fulfilled_at": now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("request service: fulfill request: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		metrics.ClaimConflicts.WithLabelValues("fulfill").Inc()
		return nil, apperrors.ErrConflict
	}

	return s.load(ctx, request.ID)
}

// Delete removes a request that has not been fulfilled. Only the owner may
// delete.
func (s *RequestService) Delete(ctx context.Context, requestID, userID string) error {
	ctx = ensureContext(ctx)

	request, err := s.load(ctx, requestID)
	if err != nil {
		return err
	}

	if request.OwnerID != userID {
		return apperrors.ErrForbidden
	}
	if request.Status == models.RequestStatusFulfilled {
		return apperrors.ErrInvalidState
	}

	result := s.db.WithContext(ctx).
		Where("id = ? AND status <> ?", request.ID, models.RequestStatusFulfilled).
		Delete(&models.Request{})
	if result.Error != nil {
		return fmt.Errorf("request service: delete request: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		metrics.ClaimConflicts.WithLabelValues("delete").Inc()
		return apperrors.ErrConflict
	}

	return nil
}

// GetByID loads a request, visible to group members only.
func (s *RequestService) GetByID(ctx context.Context, requestID, requesterID string) (*models.Request, error) {
	ctx = ensureContext(ctx)

	request, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}

	member, err := isGroupMember(ctx, s.db, request.GroupID, requesterID)
	if err != nil {
		return nil, fmt.Errorf("request service: %w", err)
	}
	if !member {
		return nil, apperrors.ErrForbidden
	}

	return request, nil
}

// ListByGroup returns a group's requests, newest first, to members only.
func (s *RequestService) ListByGroup(ctx context.Context, groupID, requesterID string) ([]models.Request, error) {
	ctx = ensureContext(ctx)

	member, err := isGroupMember(ctx, s.db, groupID, requesterID)
	if err != nil {
		return nil, fmt.Errorf("request service: %w", err)
	}
	if !member {
		return nil, apperrors.ErrForbidden
	}

	var requests []models.Request
	err = s.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at DESC").
		Find(&requests).Error
	if err != nil {
		return nil, fmt.Errorf("request service: list requests: %w", err)
	}

	return requests, nil
}

// ListMine returns requests the user owns or currently claims.
func (s *RequestService) ListMine(ctx context.Context, userID string) ([]models.Request, error) {
	ctx = ensureContext(ctx)

	var requests []models.Request
	err := s.db.WithContext(ctx).
		Where("owner_id = ? OR claimed_by = ?", userID, userID).
		Order("created_at DESC").
		Find(&requests).Error
	if err != nil {
		return nil, fmt.Errorf("request service: list own requests: %w", err)
	}

	return requests, nil
}

func (s *RequestService) load(ctx context.Context, requestID string) (*models.Request, error) {
	var request models.Request
	err := s.db.WithContext(ctx).First(&request, "id = ?", strings.TrimSpace(requestID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("request service: load request: %w", err)
	}
	return &request, nil
}

func (s *RequestService) parseNeededBy(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, apperrors.NewBadRequest("needed-by date is required")
	}

	neededBy, err := time.Parse(time.RFC3339, value)
	if err != nil {
		neededBy, err = time.Parse("2006-01-02", value)
		if err != nil {
			return time.Time{}, apperrors.NewBadRequest("needed-by date must be RFC 3339 or YYYY-MM-DD")
		}
		// a bare date means end of that day
		neededBy = neededBy.Add(24*time.Hour - time.Second)
	}

	if !neededBy.After(s.now()) {
		return time.Time{}, apperrors.NewBadRequest("needed-by date must be in the future")
	}

	return neededBy, nil
}
