package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Visitor represents one end user of a published page. Identity is global,
// not tenant scoped: at most one record per verified email, and one per
// anonymous cookie identifier.
//
// The record starts anonymous (no email), gains a pending verification token
// when a magic link is requested, and becomes verified when the token is
// redeemed. Records are never hard-deleted by this service.
type Visitor struct {
	ID string `gorm:"primaryKey;type:uuid" json:"id"`

	Email         *string `gorm:"uniqueIndex" json:"email,omitempty"`
	EmailVerified bool    `gorm:"default:false" json:"email_verified"`

	// At most one pending token per visitor; consuming it clears both fields.
	VerificationToken     *string    `gorm:"uniqueIndex" json:"-"`
	VerificationExpiresAt *time.Time `json:"-"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (v *Visitor) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

// HasPendingVerification reports whether a magic link is currently outstanding.
func (v *Visitor) HasPendingVerification() bool {
	return v.VerificationToken != nil && v.VerificationExpiresAt != nil
}
