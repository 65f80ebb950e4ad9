package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AttemptKind classifies rows in the auth event log. Registrations, logouts
// and password resets land in the same table as login attempts but carry
// their own kind instead of overloading failure_reason.
type AttemptKind string

const (
	KindLoginSuccess  AttemptKind = "login_success"
	KindLoginFailure  AttemptKind = "login_failure"
	KindRegistration  AttemptKind = "registration"
	KindLogout        AttemptKind = "logout"
	KindPasswordReset AttemptKind = "password_reset"
)

// LoginAttempt is an append-only audit row; never mutated after insert.
// The rate limiter counts kind=login_failure rows in a trailing window.
type LoginAttempt struct {
	ID    uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	Email string      `json:"email" gorm:"size:255;index;not null"`
	Kind  AttemptKind `json:"kind" gorm:"size:32;index;not null"`

	Successful    bool    `json:"successful" gorm:"default:false"`
	FailureReason *string `json:"failure_reason,omitempty" gorm:"size:255"`

	IPAddress *string `json:"ip_address,omitempty" gorm:"size:45;index"`
	UserAgent *string `json:"user_agent,omitempty" gorm:"size:500"`

	// Nullable: absent when the email never resolved to a user.
	UserID *uuid.UUID `json:"user_id,omitempty" gorm:"type:uuid"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (LoginAttempt) TableName() string { return "auth_login_attempts" }

func (a *LoginAttempt) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
