package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	iauth "github.com/mhalloran/curbshare/internal/auth"
	"github.com/mhalloran/curbshare/internal/models"
	"github.com/mhalloran/curbshare/pkg/logger"
)

const (
	defaultInviteRetentionDays = 30
	defaultSessionSpec         = "@hourly"
	defaultInviteSpec          = "@daily"
)

// Cleaner coordinates background maintenance tasks: purging expired sessions
// and removing dead invites once they are of no audit interest.
type Cleaner struct {
	db        *gorm.DB
	sessions  *iauth.SessionService
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	enabled   bool
	retention int

	sessionSchedule string
	inviteSchedule  string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for scheduling and cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithInviteRetentionDays adjusts how long used and expired invites are kept.
func WithInviteRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithSessionSchedule overrides the cron specification for session cleanup.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sessionSchedule = spec
		}
	}
}

// WithInviteSchedule overrides the cron specification for invite cleanup.
func WithInviteSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.inviteSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency
// results in the corresponding cleanup job being skipped.
func NewCleaner(db *gorm.DB, sessions *iauth.SessionService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:              db,
		sessions:        sessions,
		now:             time.Now,
		retention:       defaultInviteRetentionDays,
		sessionSchedule: defaultSessionSpec,
		inviteSchedule:  defaultInviteSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.sessions != nil || cleaner.db != nil

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at
// least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.sessions != nil {
		if _, err := c.cron.AddFunc(c.sessionSchedule, func() {
			if _, err := c.sessions.CleanupExpired(context.Background()); err != nil {
				c.log.Warn("session cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.db != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.inviteSchedule, func() {
			if _, err := CleanupInvites(context.Background(), c.db, c.now(), c.retention); err != nil {
				c.log.Warn("invite cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily
// used in tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.sessions != nil {
		if _, err := c.sessions.CleanupExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.db != nil && c.retention > 0 {
		if _, err := CleanupInvites(ctx, c.db, c.now(), c.retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// CleanupInvites deletes invites that have been dead (used or expired) for
// longer than the retention window. Open invites are never touched.
func CleanupInvites(ctx context.Context, db *gorm.DB, now time.Time, retentionDays int) (int64, error) {
	if db == nil {
		return 0, errors.New("cleanup invites: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cutoff := now.AddDate(0, 0, -retentionDays)

	result := db.WithContext(ctx).
		Where("used_at < ?", cutoff).
		Or("used_at IS NULL AND expires_at < ?", cutoff).
		Delete(&models.Invite{})
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup invites: %w", result.Error)
	}

	return result.RowsAffected, nil
}
