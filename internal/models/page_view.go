package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PageView attributes one page visit to whichever visitor identifier resolved
// for the request, anonymous or authenticated. Histories recorded under an
// anonymous identifier are not merged when the visitor later verifies.
type PageView struct {
	ID        string `gorm:"primaryKey;type:uuid" json:"id"`
	PageID    string `gorm:"type:uuid;not null;index" json:"page_id"`
	VisitorID string `gorm:"type:uuid;not null;index" json:"visitor_id"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (v *PageView) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}
