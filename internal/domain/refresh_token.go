package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RefreshToken stores long-lived tokens for "remember me" sessions.
//
// Security notes:
// - We never store the raw secret in DB, only its SHA-256 hash (TokenHash).
// - Tokens are revoked in place, never physically deleted, so the ledger
//   keeps history until the cleanup job purges expired rows.
type RefreshToken struct {
	ID     uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID uuid.UUID `json:"user_id" gorm:"type:uuid;index;not null"`

	TokenHash string `json:"-" gorm:"size:64;uniqueIndex;not null"`

	ExpiresAt time.Time  `json:"expires_at" gorm:"index;not null"`
	Revoked   bool       `json:"revoked" gorm:"default:false"`
	RevokedAt *time.Time `json:"revoked_at"`

	DeviceID  *string `json:"device_id,omitempty" gorm:"size:255"`
	UserAgent *string `json:"user_agent,omitempty" gorm:"size:500"`
	IPAddress *string `json:"ip_address,omitempty" gorm:"size:45"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (RefreshToken) TableName() string { return "auth_refresh_tokens" }

func (t *RefreshToken) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func (t *RefreshToken) IsValid(now time.Time) bool {
	return !t.Revoked && t.ExpiresAt.After(now)
}

func (t *RefreshToken) Revoke(now time.Time) {
	t.Revoked = true
	t.RevokedAt = &now
}
