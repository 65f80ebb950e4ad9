package auth

import (
	"context"
	"time"

	"authservice/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepositoryInterface — the credential store collaborator; only the
// methods the auth core uses.
type UserRepositoryInterface interface {
	Create(ctx context.Context, u *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	UpdatePasswordHash(ctx context.Context, userID uuid.UUID, newHash string) error
	DB() *gorm.DB // for multi-table transactions (reset, logout)
}

// RefreshTokenRepositoryInterface — storage for the refresh token ledger.
type RefreshTokenRepositoryInterface interface {
	Create(ctx context.Context, t *domain.RefreshToken) error
	GetByHash(ctx context.Context, hash string) (*domain.RefreshToken, error)
	Revoke(ctx context.Context, id uuid.UUID) error
	RevokeByUser(ctx context.Context, userID uuid.UUID) error
}

// ResetTokenRepositoryInterface — storage for the password reset ledger.
type ResetTokenRepositoryInterface interface {
	Create(ctx context.Context, t *domain.PasswordResetToken) error
	GetUnused(ctx context.Context, hash, email string) (*domain.PasswordResetToken, error)
	MarkUsed(ctx context.Context, id uuid.UUID) error
}

// LoginAttemptRepositoryInterface — append-only auth event log.
type LoginAttemptRepositoryInterface interface {
	Create(ctx context.Context, a *domain.LoginAttempt) error
	CountRecentFailuresByEmail(ctx context.Context, email string, since time.Time) (int64, error)
	CountRecentFailuresByIP(ctx context.Context, ip string, since time.Time) (int64, error)
}

// SessionRepositoryInterface — server-side session records.
type SessionRepositoryInterface interface {
	Create(ctx context.Context, s *domain.UserSession) error
	GetActiveByUser(ctx context.Context, userID uuid.UUID) ([]domain.UserSession, error)
	InvalidateByUser(ctx context.Context, userID uuid.UUID) error
}

// Mailer delivers notification emails. Calls are fire-and-forget: a delivery
// failure never fails the enclosing auth operation.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}
