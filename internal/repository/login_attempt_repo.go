package repository

import (
	"context"
	"time"

	"authservice/internal/domain"

	"gorm.io/gorm"
)

// LoginAttemptRepository provides DB access for the append-only auth event
// log. Rows are inserted and counted, never updated.
type LoginAttemptRepository struct {
	db *gorm.DB
}

func NewLoginAttemptRepository(db *gorm.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

func (r *LoginAttemptRepository) Create(ctx context.Context, a *domain.LoginAttempt) error {
	return r.db.WithContext(ctx).Create(a).Error
}

// CountRecentFailuresByEmail counts login failures for an email since the
// given instant. The rate limiter reads this before credentials are checked.
func (r *LoginAttemptRepository) CountRecentFailuresByEmail(ctx context.Context, email string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.LoginAttempt{}).
		Where("email = ? AND kind = ? AND created_at >= ?", NormalizeEmail(email), domain.KindLoginFailure, since).
		Count(&count).Error
	return count, err
}

// CountRecentFailuresByIP counts login failures from one address across all
// emails, an independent limit against spraying attacks.
func (r *LoginAttemptRepository) CountRecentFailuresByIP(ctx context.Context, ip string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.LoginAttempt{}).
		Where("ip_address = ? AND kind = ? AND created_at >= ?", ip, domain.KindLoginFailure, since).
		Count(&count).Error
	return count, err
}

func (r *LoginAttemptRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&domain.LoginAttempt{})
	return res.RowsAffected, res.Error
}
