package models

import (
	"time"
)

// TableSchema declares an element table: which attribute columns its rows
// carry and which result fields the solver writes for it. Column existence
// checks (reference columns, bulk writes) run against this declaration, not
// against whatever keys happen to be present on individual rows.
type TableSchema struct {
	ID           uint       `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	NetworkID    uint       `gorm:"not null;uniqueIndex:idx_net_table" json:"network_id"`
	ElementType  string     `gorm:"not null;uniqueIndex:idx_net_table" json:"element_type"`
	Columns      StringList `gorm:"type:text;not null" json:"columns"`
	ResultFields StringList `gorm:"type:text" json:"result_fields"`
}

// ElementRow is one element of one table. EID is the row identifier the
// groups reference; it is unique per (network, type) but not stable under
// external renumbering, which is exactly why attribute-addressed groups and
// the auditor exist.
type ElementRow struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	NetworkID   uint      `gorm:"not null;uniqueIndex:idx_net_type_eid" json:"network_id"`
	ElementType string    `gorm:"not null;uniqueIndex:idx_net_type_eid" json:"element_type"`
	EID         int64     `gorm:"column:eid;not null;uniqueIndex:idx_net_type_eid" json:"eid"`
	Attrs       AttrMap   `gorm:"type:text;not null" json:"attrs"`
	Results     ResultMap `gorm:"type:text" json:"results"`
}
