package models

import "time"

// Request status values. "expired" is intentionally absent: it is a derived
// display state (NeededBy in the past), never persisted.
const (
	RequestStatusOpen      = "open"
	RequestStatusClaimed   = "claimed"
	RequestStatusFulfilled = "fulfilled"
)

// Request is a pickup request posted inside a group.
//
// Invariant: ClaimedBy is set iff Status is claimed or fulfilled, and
// ClaimedBy is never the owner.
type Request struct {
	BaseModel

	OwnerID string `gorm:"type:uuid;not null;index" json:"owner_id"`
	GroupID string `gorm:"type:uuid;not null;index" json:"group_id"`

	ItemDescription string `gorm:"not null" json:"item_description"`
	StorePreference string `json:"store_preference,omitempty"`
	PickupNotes     string `json:"pickup_notes,omitempty"`

	NeededBy time.Time `gorm:"not null" json:"needed_by"`

	Status      string     `gorm:"not null;default:open;index" json:"status"`
	ClaimedBy   *string    `gorm:"type:uuid" json:"claimed_by,omitempty"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	FulfilledAt *time.Time `json:"fulfilled_at,omitempty"`
}

// Expired reports whether the request's needed-by date has passed. Display
// only; an expired-but-open request can still be claimed.
func (r *Request) Expired(now time.Time) bool {
	return r.NeededBy.Before(now)
}
