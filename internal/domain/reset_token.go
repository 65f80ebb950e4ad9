package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PasswordResetToken is a single-use, time-boxed reset token. Like refresh
// tokens only the SHA-256 hash of the raw value is persisted. A user may have
// several outstanding tokens; redeeming one does not touch the others.
type PasswordResetToken struct {
	ID     uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID uuid.UUID `json:"user_id" gorm:"type:uuid;index;not null"`

	TokenHash string `json:"-" gorm:"size:64;uniqueIndex;not null"`
	Email     string `json:"email" gorm:"size:255;index;not null"`

	ExpiresAt time.Time  `json:"expires_at" gorm:"not null"`
	Used      bool       `json:"used" gorm:"default:false"`
	UsedAt    *time.Time `json:"used_at"`

	IPAddress *string `json:"ip_address,omitempty" gorm:"size:45"`
	UserAgent *string `json:"user_agent,omitempty" gorm:"size:500"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PasswordResetToken) TableName() string { return "auth_password_reset_tokens" }

func (t *PasswordResetToken) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// IsValid compares in UTC so drivers that round-trip timestamps without zone
// info (sqlite) still compare correctly.
func (t *PasswordResetToken) IsValid(now time.Time) bool {
	return !t.Used && t.ExpiresAt.UTC().After(now.UTC())
}

func (t *PasswordResetToken) MarkUsed(now time.Time) {
	t.Used = true
	t.UsedAt = &now
}
