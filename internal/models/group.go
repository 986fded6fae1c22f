package models

// Group is a small trust circle. CreatedBy is the owner and never changes;
// the owner always holds a membership and cannot leave.
type Group struct {
	BaseModel

	Name      string `gorm:"not null" json:"name"`
	CreatedBy string `gorm:"type:uuid;not null;index" json:"created_by"`

	Memberships []Membership `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"memberships,omitempty"`
}
