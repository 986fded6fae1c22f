package models

import "time"

// Membership links a user to a group. One row per (group, user) pair.
type Membership struct {
	BaseModel

	GroupID string `gorm:"type:uuid;not null;uniqueIndex:idx_memberships_group_user" json:"group_id"`
	UserID  string `gorm:"type:uuid;not null;uniqueIndex:idx_memberships_group_user" json:"user_id"`

	JoinedAt time.Time `gorm:"not null" json:"joined_at"`

	User *User `gorm:"constraint:OnDelete:CASCADE" json:"user,omitempty"`
}
