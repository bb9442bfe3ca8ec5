package models

import (
	"time"

	"gorm.io/gorm"
)

// Network represents one simulation session: a self-contained collection of
// element tables and the groups defined over them. Networks never share state.
type Network struct {
	ID          uint           `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	Name        string         `gorm:"not null" json:"name"`
	Slug        string         `gorm:"uniqueIndex;not null" json:"slug"`
	Frequency   float64        `gorm:"default:50" json:"frequency"`
	CreatedByID uint           `gorm:"not null" json:"created_by_id"`

	// Relationships
	CreatedBy User         `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
	Entries   []GroupEntry `gorm:"foreignKey:NetworkID" json:"entries,omitempty"`
}
