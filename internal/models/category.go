package models

import "time"

// Category groups posts. Categories may nest through ParentID.
type Category struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:50;uniqueIndex;not null" json:"name"`
	Slug        string    `gorm:"size:60;uniqueIndex;not null" json:"slug"`
	Description string    `gorm:"size:500" json:"description,omitempty"`
	IsActive    bool      `gorm:"not null;default:true" json:"isActive"`
	ParentID    *uint     `gorm:"index" json:"parentId,omitempty"`
	Parent      *Category `gorm:"foreignKey:ParentID" json:"parent,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
