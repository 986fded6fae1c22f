package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mhalloran/curbshare/internal/models"
	"github.com/mhalloran/curbshare/pkg/crypto"
	apperrors "github.com/mhalloran/curbshare/pkg/errors"
	"github.com/mhalloran/curbshare/pkg/logger"
	"github.com/mhalloran/curbshare/pkg/mail"
	"github.com/mhalloran/curbshare/pkg/metrics"
	"github.com/mhalloran/curbshare/pkg/validator"
)

const inviteTokenBytes = 32

var (
	// ErrInviteNotFoundOrExpired covers unknown, expired, and already used
	// tokens with a single message so callers cannot probe which it was.
	ErrInviteNotFoundOrExpired = apperrors.New("INVITE_NOT_FOUND_OR_EXPIRED", "Invite not found or expired", http.StatusNotFound)
	// ErrDuplicateInvite signals an open invite already exists for the
	// (group, email) pair.
	ErrDuplicateInvite = apperrors.New("DUPLICATE_INVITE", "An open invite already exists for this email", http.StatusConflict)
	// ErrInviteLimitExceeded signals the inviter's open-invite ceiling was reached.
	ErrInviteLimitExceeded = apperrors.New("LIMIT_EXCEEDED", "Invitation limit reached", http.StatusUnprocessableEntity)
	// ErrAlreadyMember signals the accepting user already belongs to the group.
	ErrAlreadyMember = apperrors.New("ALREADY_MEMBER", "User is already a member of the group", http.StatusConflict)
)

// InviteOption customises InviteService behaviour.
type InviteOption func(*InviteService)

// WithInviteBaseURL configures the base URL used to create invite hyperlinks.
func WithInviteBaseURL(url string) InviteOption {
	return func(s *InviteService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// WithInviteClock injects a custom clock primarily for testing.
func WithInviteClock(clock func() time.Time) InviteOption {
	return func(s *InviteService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// InviteService manages issuance, validation, and one-time consumption of
// group invite tokens.
type InviteService struct {
	db      *gorm.DB
	mailer  mail.Mailer
	limits  *LimitService
	baseURL string
	now     func() time.Time
	log     *zap.Logger
}

// NewInviteService constructs an InviteService with the provided dependencies.
// The mailer may be nil; invite records are the source of truth and email
// delivery is best-effort.
func NewInviteService(db *gorm.DB, mailer mail.Mailer, limits *LimitService, opts ...InviteOption) (*InviteService, error) {
	if db == nil {
		return nil, errors.New("invite service: db is required")
	}
	if limits == nil {
		return nil, errors.New("invite service: limit service is required")
	}

	service := &InviteService{
		db:     db,
		mailer: mailer,
		limits: limits,
		now:    time.Now,
		log:    logger.WithModule("invites"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Issue creates a new invite for the email address and dispatches the invite
// email asynchronously. Only the group owner may invite. The raw token is
// returned once and never stored.
func (s *InviteService) Issue(ctx context.Context, groupID, email, inviterID string) (*models.Invite, string, error) {
	ctx = ensureContext(ctx)

	email = normaliseEmail(email)
	if !validator.ValidateEmail(email) {
		return nil, "", apperrors.NewBadRequest("a valid email address is required")
	}

	var group models.Group
	err := s.db.WithContext(ctx).First(&group, "id = ?", strings.TrimSpace(groupID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", ErrGroupNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("invite service: load group: %w", err)
	}

	if group.CreatedBy != inviterID {
		return nil, "", apperrors.ErrForbidden
	}

	now := s.now()

	var open int64
	err = s.db.WithContext(ctx).
		Model(&models.Invite{}).
		Where("group_id = ? AND email = ? AND used_at IS NULL AND expires_at > ?", group.ID, email, now).
		Count(&open).Error
	if err != nil {
		return nil, "", fmt.Errorf("invite service: check duplicate invite: %w", err)
	}
	if open > 0 {
		return nil, "", ErrDuplicateInvite
	}

	allowed, err := s.limits.CanIssueInvite(ctx, inviterID)
	if err != nil {
		return nil, "", err
	}
	if !allowed {
		return nil, "", ErrInviteLimitExceeded
	}

	rawToken, err := crypto.GenerateToken(inviteTokenBytes)
	if err != nil {
		return nil, "", fmt.Errorf("invite service: generate token: %w", err)
	}

	invite := &models.Invite{
		GroupID:   group.ID,
		Email:     email,
		TokenHash: crypto.HashToken(rawToken),
		InvitedBy: inviterID,
		ExpiresAt: now.Add(InviteValidity),
	}

	if err := s.db.WithContext(ctx).Create(invite).Error; err != nil {
		return nil, "", fmt.Errorf("invite service: create invite: %w", err)
	}

	invite.Group = &group

	// The record is committed; delivery failure must not undo it.
	go s.deliver(invite, group.Name, rawToken)

	return invite, rawToken, nil
}

// Validate resolves a raw token to its invite and group without consuming
// it. Unknown, expired, and used tokens are indistinguishable to the caller.
func (s *InviteService) Validate(ctx context.Context, token string) (*models.Invite, error) {
	ctx = ensureContext(ctx)

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInviteNotFoundOrExpired
	}

	var invite models.Invite
	err := s.db.WithContext(ctx).
		Preload("Group").
		Where("token_hash = ?", crypto.HashToken(token)).
		First(&invite).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInviteNotFoundOrExpired
	}
	if err != nil {
		return nil, fmt.Errorf("invite service: find invite: %w", err)
	}

	if !invite.Open(s.now()) {
		return nil, ErrInviteNotFoundOrExpired
	}

	return &invite, nil
}

// Accept consumes the token and enrolls the user in the invite's group. The
// membership insert and the used-at marker are applied in one transaction;
// a concurrent accept of the same token loses on the conditional update and
// the whole transaction rolls back, so the token can never be spent twice.
func (s *InviteService) Accept(ctx context.Context, token, userID string) (*models.Group, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", strings.TrimSpace(userID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("invite service: load user: %w", err)
	}

	now := s.now()
	tokenHash := crypto.HashToken(strings.TrimSpace(token))

	var group models.Group
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invite models.Invite
		err := tx.Where("token_hash = ?", tokenHash).First(&invite).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInviteNotFoundOrExpired
		}
		if err != nil {
			return fmt.Errorf("invite service: find invite: %w", err)
		}

		if !invite.Open(now) {
			return ErrInviteNotFoundOrExpired
		}

		member, err := isGroupMember(ctx, tx, invite.GroupID, user.ID)
		if err != nil {
			return fmt.Errorf("invite service: %w", err)
		}
		if member {
			return ErrAlreadyMember
		}

		membership := &models.Membership{
			GroupID:  invite.GroupID,
			UserID:   user.ID,
			JoinedAt: now,
		}
		if err := tx.Create(membership).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrAlreadyMember
			}
			return fmt.Errorf("invite service: create membership: %w", err)
		}

		result := tx.Model(&models.Invite{}).
			Where("id = ? AND used_at IS NULL", invite.ID).
			Update("used_at", now)
		if result.Error != nil {
			return fmt.Errorf("invite service: mark used: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			metrics.ClaimConflicts.WithLabelValues("accept_invite").Inc()
			return ErrInviteNotFoundOrExpired
		}

		if err := tx.First(&group, "id = ?", invite.GroupID).Error; err != nil {
			return fmt.Errorf("invite service: load group: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &group, nil
}

// ListOpenByGroup returns the group's open invites, owner only.
func (s *InviteService) ListOpenByGroup(ctx context.Context, groupID, requesterID string) ([]models.Invite, error) {
	ctx = ensureContext(ctx)

	var group models.Group
	err := s.db.WithContext(ctx).First(&group, "id = ?", groupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("invite service: load group: %w", err)
	}
	if group.CreatedBy != requesterID {
		return nil, apperrors.ErrForbidden
	}

	var invites []models.Invite
	err = s.db.WithContext(ctx).
		Where("group_id = ? AND used_at IS NULL AND expires_at > ?", groupID, s.now()).
		Order("created_at ASC").
		Find(&invites).Error
	if err != nil {
		return nil, fmt.Errorf("invite service: list invites: %w", err)
	}

	return invites, nil
}

func (s *InviteService) deliver(invite *models.Invite, groupName, rawToken string) {
	if s.mailer == nil {
		metrics.InvitesIssued.WithLabelValues("disabled").Inc()
		return
	}

	message := mail.Message{
		To:      []string{invite.Email},
		Subject: fmt.Sprintf("You're invited to join %s on CurbShare", groupName),
		Body:    s.inviteBody(groupName, rawToken),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch err := s.mailer.Send(ctx, message); {
	case err == nil:
		metrics.InvitesIssued.WithLabelValues("sent").Inc()
	case errors.Is(err, mail.ErrSMTPDisabled):
		metrics.InvitesIssued.WithLabelValues("disabled").Inc()
	default:
		metrics.InvitesIssued.WithLabelValues("failed").Inc()
		s.log.Warn("invite email delivery failed",
			zap.String("invite_id", invite.ID),
			zap.String("group_id", invite.GroupID),
			zap.Error(err))
	}
}

func (s *InviteService) inviteLink(token string) string {
	if s.baseURL == "" {
		return token
	}
	return fmt.Sprintf("%s?token=%s", s.baseURL, token)
}

func (s *InviteService) inviteBody(groupName, token string) string {
	return fmt.Sprintf(
		"Hello,\n\nYou have been invited to join the group %q on CurbShare. Use the following link to accept the invite:\n%s\n\nThe invite expires in 7 days. If you did not expect this email, you can ignore it.\n",
		groupName, s.inviteLink(token))
}
