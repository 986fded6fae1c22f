package models

import "time"

// Invite is a time-limited, single-use ticket into a group. The raw token is
// only ever held by the recipient; the database keeps its SHA-256 hash.
type Invite struct {
	BaseModel

	GroupID   string `gorm:"type:uuid;not null;index" json:"group_id"`
	Email     string `gorm:"not null;index" json:"email"`
	TokenHash string `gorm:"not null;uniqueIndex" json:"-"`
	InvitedBy string `gorm:"type:uuid;not null;index" json:"invited_by"`

	ExpiresAt time.Time  `gorm:"index;not null" json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`

	Group *Group `gorm:"constraint:OnDelete:CASCADE" json:"group,omitempty"`
}

// Open reports whether the invite is still consumable: unused and unexpired.
func (i *Invite) Open(now time.Time) bool {
	return i.UsedAt == nil && !now.After(i.ExpiresAt)
}
