package models

import (
	"time"
)

// GroupEntry is one row of the group table: the membership of a single group
// in a single element type's table. A group with members in three element
// types occupies three rows sharing a group_id. The hard-delete semantics are
// deliberate: dropping a group must really remove its rows so group ids can
// disappear when their last member does.
type GroupEntry struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	NetworkID uint      `gorm:"not null;index;uniqueIndex:idx_net_group_type" json:"network_id"`
	GroupID   uint      `gorm:"not null;uniqueIndex:idx_net_group_type" json:"group_id"`
	Name      string    `gorm:"not null" json:"name"`

	// ElementType names which element table the members address, e.g. "load".
	ElementType string `gorm:"not null;uniqueIndex:idx_net_group_type" json:"element_type"`

	// Members is the ordered descriptor list. When ReferenceColumn is null the
	// descriptors are element ids; otherwise they are values of that column.
	Members MemberList `gorm:"type:text;not null" json:"members"`

	// ReferenceColumn selects attribute-addressed membership. All descriptors
	// of one entry share the one mode.
	ReferenceColumn *string `json:"reference_column"`
}

// ByColumn reports whether the entry is attribute-addressed.
func (e *GroupEntry) ByColumn() bool {
	return e.ReferenceColumn != nil && *e.ReferenceColumn != ""
}
