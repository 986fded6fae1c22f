package models

import "time"

// Session is an authenticated login, identified by an opaque refresh token.
type Session struct {
	BaseModel

	UserID       string `gorm:"type:uuid;not null;index" json:"user_id"`
	RefreshToken string `gorm:"uniqueIndex;not null" json:"-"`

	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	ExpiresAt  time.Time  `gorm:"index;not null" json:"expires_at"`
	LastUsedAt time.Time  `json:"last_used_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// Active reports whether the session can still authenticate calls.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
