package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Page is one published changelog/roadmap site. Identity (slug or custom
// domain) is immutable once created; content management lives outside this
// service and only flips SubscriptionActive.
type Page struct {
	ID           string  `gorm:"primaryKey;type:uuid" json:"id"`
	Slug         string  `gorm:"uniqueIndex;not null" json:"slug"`
	CustomDomain *string `gorm:"uniqueIndex" json:"custom_domain,omitempty"`

	SubscriptionActive bool `gorm:"default:true" json:"subscription_active"`

	Settings *PageSettings `gorm:"foreignKey:PageID" json:"settings,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (p *Page) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// PageSettings holds the per-page presentation settings owned by the content
// management collaborator. A page without settings cannot be linked to.
type PageSettings struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	PageID string `gorm:"type:uuid;uniqueIndex;not null" json:"page_id"`

	Title       string `json:"title"`
	AccentColor string `json:"accent_color"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (s *PageSettings) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
