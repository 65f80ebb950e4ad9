package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Email          string    `json:"email" gorm:"uniqueIndex;not null" validate:"required,email"`
	HashedPassword string    `json:"-" gorm:"not null"`
	FullName       string    `json:"full_name,omitempty"`
	IsActive       bool      `json:"is_active" gorm:"default:true;index"`
	IsSuperuser    bool      `json:"is_superuser" gorm:"default:false"`
	CreatedAt      time.Time `json:"created_at" gorm:"index"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// UserSession is a server-side record of an authenticated context.
// Independent of refresh tokens: both are revocation surfaces and a full
// logout clears both.
type UserSession struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID `json:"user_id" gorm:"type:uuid;index;not null"`
	SessionToken string    `json:"-" gorm:"size:64;uniqueIndex;not null"`
	ExpiresAt    time.Time `json:"expires_at" gorm:"index;not null"`
	IsActive     bool      `json:"is_active" gorm:"default:true;index"`

	UserAgent *string `json:"user_agent,omitempty" gorm:"size:500"`
	IPAddress *string `json:"ip_address,omitempty" gorm:"size:45"`

	CreatedAt time.Time `json:"created_at" gorm:"index"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UserSession) TableName() string { return "user_sessions" }

func (s *UserSession) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (s *UserSession) IsValid(now time.Time) bool {
	return s.IsActive && s.ExpiresAt.After(now)
}
