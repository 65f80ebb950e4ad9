package repository

import (
	"context"
	"strings"
	"time"

	"authservice/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository is the credential-store collaborator: user records are
// owned by user management, the auth core only reads them and persists
// password-hash updates.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	u.Email = NormalizeEmail(u.Email)
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", NormalizeEmail(email)).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("LOWER(email) = ?", NormalizeEmail(email)).
		Count(&count).Error
	return count > 0, err
}

// UpdatePasswordHash persists a new credential hash, e.g. after a
// transparent hash upgrade on login.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, userID uuid.UUID, newHash string) error {
	return r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"hashed_password": newHash, "updated_at": time.Now().UTC()}).Error
}

func (r *UserRepository) DB() *gorm.DB { return r.db }

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
