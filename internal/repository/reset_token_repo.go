package repository

import (
	"context"
	"time"

	"authservice/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ResetTokenRepository provides DB access for the password reset ledger.
type ResetTokenRepository struct {
	db *gorm.DB
}

func NewResetTokenRepository(db *gorm.DB) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

func (r *ResetTokenRepository) Create(ctx context.Context, t *domain.PasswordResetToken) error {
	return r.db.WithContext(ctx).Create(t).Error
}

// GetUnused returns the unused row matching both hash and email, if any.
// Expiry is checked by the caller via IsValid.
func (r *ResetTokenRepository) GetUnused(ctx context.Context, hash, email string) (*domain.PasswordResetToken, error) {
	var t domain.PasswordResetToken
	err := r.db.WithContext(ctx).
		Where("token_hash = ? AND email = ? AND used = ?", hash, email, false).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *ResetTokenRepository) MarkUsed(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&domain.PasswordResetToken{}).
		Where("id = ? AND used = ?", id, false).
		Updates(map[string]any{"used": true, "used_at": now}).Error
}

func (r *ResetTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ? OR used = ?", before, true).
		Delete(&domain.PasswordResetToken{})
	return res.RowsAffected, res.Error
}
