package repository

import (
	"context"
	"time"

	"authservice/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionRepository provides DB access for server-side session records.
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.UserSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// GetActiveByUser returns non-expired active sessions, newest first.
func (r *SessionRepository) GetActiveByUser(ctx context.Context, userID uuid.UUID) ([]domain.UserSession, error) {
	var sessions []domain.UserSession
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ? AND expires_at > ?", userID, true, time.Now().UTC()).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}

func (r *SessionRepository) InvalidateByUser(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&domain.UserSession{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Update("is_active", false).Error
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&domain.UserSession{})
	return res.RowsAffected, res.Error
}
