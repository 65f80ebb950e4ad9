package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log"
	"strings"
	"time"

	"authservice/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type tokenCodec interface {
	IssueAccessToken(subject string, ttl time.Duration) (string, error)
	IssueResetToken(email string, ttl time.Duration) (string, error)
	VerifyResetToken(token string) string
}

type passwordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
	MaybeUpgrade(password, encoded string) (string, error)
}

// Limits bundles the time-based auth policy knobs.
type Limits struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ResetTokenTTL   time.Duration
	ThrottleWindow  time.Duration

	// Two independent failure limits, either one denies: per email and,
	// when the caller supplies an address, per IP across all emails.
	MaxFailedAttempts   int
	IPMaxFailedAttempts int
}

// Service contains all business logic for authentication. Each operation is
// synchronous within the request; the reset and logout flows run their
// multi-table mutations inside one transaction.
type Service struct {
	users    UserRepositoryInterface
	refresh  RefreshTokenRepositoryInterface
	resets   ResetTokenRepositoryInterface
	attempts LoginAttemptRepositoryInterface
	sessions SessionRepositoryInterface
	codec    tokenCodec
	hasher   passwordHasher
	mailer   Mailer
	limits   Limits
}

type LoginResult struct {
	User      *domain.User
	Tokens    TokenResponse
	SessionID uuid.UUID
}

func NewService(
	users UserRepositoryInterface,
	refresh RefreshTokenRepositoryInterface,
	resets ResetTokenRepositoryInterface,
	attempts LoginAttemptRepositoryInterface,
	sessions SessionRepositoryInterface,
	codec tokenCodec,
	hasher passwordHasher,
	mailer Mailer,
	limits Limits,
) *Service {
	return &Service{
		users:    users,
		refresh:  refresh,
		resets:   resets,
		attempts: attempts,
		sessions: sessions,
		codec:    codec,
		hasher:   hasher,
		mailer:   mailer,
		limits:   limits,
	}
}

// Login authenticates a credential pair. The throttle check runs before the
// credential store is touched, so throttled requests never pay for a hash
// computation.
func (s *Service) Login(ctx context.Context, req LoginRequest, ip, userAgent string) (*LoginResult, error) {
	email := normalizeEmail(req.Email)
	now := time.Now().UTC()

	if err := s.checkThrottle(ctx, email, ip, now); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := s.logFailure(ctx, email, nil, "unknown_email", ip, userAgent); err != nil {
				return nil, err
			}
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := s.hasher.Verify(req.Password, user.HashedPassword)
	if err != nil {
		// Malformed stored hash means corruption, not a bad password.
		return nil, err
	}
	if !ok {
		if err := s.logFailure(ctx, email, &user.ID, "wrong_password", ip, userAgent); err != nil {
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		if err := s.logFailure(ctx, email, &user.ID, "inactive_account", ip, userAgent); err != nil {
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}

	// Transparent hash upgrade: one successful login at a time migrates the
	// stored population to the configured algorithm/parameters.
	if newHash, err := s.hasher.MaybeUpgrade(req.Password, user.HashedPassword); err == nil && newHash != "" {
		if err := s.users.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
			return nil, err
		}
		user.HashedPassword = newHash
	}

	accessToken, err := s.codec.IssueAccessToken(user.ID.String(), s.limits.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	tokens := TokenResponse{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresIn:   int(s.limits.AccessTokenTTL.Seconds()),
	}

	if req.RememberMe {
		raw, err := s.issueRefreshToken(ctx, user.ID, req.DeviceID, ip, userAgent, now)
		if err != nil {
			return nil, err
		}
		tokens.RefreshToken = raw
	}

	session := &domain.UserSession{
		UserID:       user.ID,
		SessionToken: mustRandomToken(),
		ExpiresAt:    now.Add(s.limits.AccessTokenTTL),
		IsActive:     true,
		IPAddress:    nullableString(ip),
		UserAgent:    nullableString(userAgent),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	if err := s.logAttempt(ctx, email, domain.KindLoginSuccess, true, &user.ID, "", ip, userAgent); err != nil {
		return nil, err
	}

	return &LoginResult{User: user, Tokens: tokens, SessionID: session.ID}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token is deliberately not rotated: it stays valid until expiry or
// explicit revocation.
func (s *Service) Refresh(ctx context.Context, refreshRaw string) (*TokenResponse, error) {
	token, err := s.refresh.GetByHash(ctx, hashToken(refreshRaw))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !token.IsValid(time.Now().UTC()) {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInvalidToken
	}

	accessToken, err := s.codec.IssueAccessToken(user.ID.String(), s.limits.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresIn:   int(s.limits.AccessTokenTTL.Seconds()),
	}, nil
}

// Register creates a new user and records the event in the auth log with its
// own kind rather than as a pseudo login. The welcome email is best-effort.
func (s *Service) Register(ctx context.Context, req SignupRequest, ip, userAgent string) (*domain.User, error) {
	email := normalizeEmail(req.Email)

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailAlreadyExists
	}

	hashed, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Email:          email,
		HashedPassword: hashed,
		FullName:       strings.TrimSpace(req.FullName),
		IsActive:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if err := s.logAttempt(ctx, email, domain.KindRegistration, true, &user.ID, "", ip, userAgent); err != nil {
		return nil, err
	}

	subject, html := welcomeEmail(user.FullName)
	if err := s.mailer.Send(ctx, email, subject, html); err != nil {
		log.Printf("welcome email delivery failed email=%s err=%v", email, err)
	}

	return user, nil
}

// Logout revokes refresh tokens and invalidates server-side sessions in one
// transaction. Sessions and refresh tokens are independent revocation
// surfaces; a complete logout clears both.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID, refreshRaw string, allDevices bool) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	now := time.Now().UTC()
	err = s.users.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if allDevices {
			if err := tx.Model(&domain.RefreshToken{}).
				Where("user_id = ? AND revoked = ?", userID, false).
				Updates(map[string]any{"revoked": true, "revoked_at": now}).Error; err != nil {
				return err
			}
		} else if refreshRaw != "" {
			if err := tx.Model(&domain.RefreshToken{}).
				Where("token_hash = ? AND user_id = ? AND revoked = ?", hashToken(refreshRaw), userID, false).
				Updates(map[string]any{"revoked": true, "revoked_at": now}).Error; err != nil {
				return err
			}
		}

		return tx.Model(&domain.UserSession{}).
			Where("user_id = ? AND is_active = ?", userID, true).
			Update("is_active", false).Error
	})
	if err != nil {
		return err
	}

	return s.logAttempt(ctx, user.Email, domain.KindLogout, true, &userID, "", "", "")
}

// RequestPasswordReset issues a reset token for a known email. Unknown
// emails return ErrUserNotFound, which the handler swallows into the same
// generic response real users get.
func (s *Service) RequestPasswordReset(ctx context.Context, email, ip, userAgent string) (string, error) {
	email = normalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUserNotFound
		}
		return "", err
	}

	raw, err := s.codec.IssueResetToken(email, s.limits.ResetTokenTTL)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	row := &domain.PasswordResetToken{
		TokenHash: hashToken(raw),
		UserID:    user.ID,
		Email:     email,
		ExpiresAt: now.Add(s.limits.ResetTokenTTL),
		IPAddress: nullableString(ip),
		UserAgent: nullableString(userAgent),
	}
	if err := s.resets.Create(ctx, row); err != nil {
		return "", err
	}

	subject, html := passwordResetEmail(raw)
	if err := s.mailer.Send(ctx, email, subject, html); err != nil {
		log.Printf("reset email delivery failed email=%s err=%v", email, err)
	}

	return raw, nil
}

// ResetPassword redeems a reset token exactly once. Ordering inside the
// transaction: persist the new hash, then mark the token used, then revoke
// refresh tokens and sessions; all or nothing, so a token can never end up
// consumed without the password actually changing.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	email := s.codec.VerifyResetToken(rawToken)
	if email == "" {
		return ErrInvalidToken
	}

	row, err := s.resets.GetUnused(ctx, hashToken(rawToken), email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if !row.IsValid(time.Now().UTC()) {
		return ErrInvalidToken
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	err = s.users.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.User{}).
			Where("id = ?", row.UserID).
			Updates(map[string]any{"hashed_password": newHash, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidToken
		}

		// Guard on used=false: a concurrent redeem of the same token loses
		// here and rolls back.
		res = tx.Model(&domain.PasswordResetToken{}).
			Where("id = ? AND used = ?", row.ID, false).
			Updates(map[string]any{"used": true, "used_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidToken
		}

		// Compromise containment: a reset invalidates every outstanding
		// refresh token and session.
		if err := tx.Model(&domain.RefreshToken{}).
			Where("user_id = ? AND revoked = ?", row.UserID, false).
			Updates(map[string]any{"revoked": true, "revoked_at": now}).Error; err != nil {
			return err
		}
		return tx.Model(&domain.UserSession{}).
			Where("user_id = ? AND is_active = ?", row.UserID, true).
			Update("is_active", false).Error
	})
	if err != nil {
		return err
	}

	return s.logAttempt(ctx, email, domain.KindPasswordReset, true, &row.UserID, "", "", "")
}

// ChangePassword re-verifies the current password; no reset token needed
// since the caller is already authenticated.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	ok, err := s.hasher.Verify(currentPassword, user.HashedPassword)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	return s.users.UpdatePasswordHash(ctx, userID, newHash)
}

// AuthStatus reports the current session state. Permissions are derived from
// is_superuser only; there is no finer-grained RBAC here.
func (s *Service) AuthStatus(ctx context.Context, userID uuid.UUID) (*AuthStatusResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &AuthStatusResponse{Authenticated: false}, nil
		}
		return nil, err
	}

	permissions := []string{"user"}
	if user.IsSuperuser {
		permissions = append(permissions, "admin")
	}

	resp := &AuthStatusResponse{
		Authenticated: true,
		UserID:        &user.ID,
		Permissions:   permissions,
	}

	sessions, err := s.sessions.GetActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(sessions) > 0 {
		resp.SessionID = &sessions[0].ID
		resp.ExpiresAt = &sessions[0].ExpiresAt
	}

	return resp, nil
}

func (s *Service) GetCurrentUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// checkThrottle denies before any hash computation. The email limit and the
// IP limit are independent; exceeding either one denies the attempt.
func (s *Service) checkThrottle(ctx context.Context, email, ip string, now time.Time) error {
	since := now.Add(-s.limits.ThrottleWindow)

	count, err := s.attempts.CountRecentFailuresByEmail(ctx, email, since)
	if err != nil {
		return err
	}
	if count >= int64(s.limits.MaxFailedAttempts) {
		return ErrTooManyAttempts
	}

	if ip != "" {
		count, err = s.attempts.CountRecentFailuresByIP(ctx, ip, since)
		if err != nil {
			return err
		}
		if count >= int64(s.limits.IPMaxFailedAttempts) {
			return ErrTooManyAttempts
		}
	}

	return nil
}

func (s *Service) issueRefreshToken(ctx context.Context, userID uuid.UUID, deviceID, ip, userAgent string, now time.Time) (string, error) {
	raw, err := randomToken()
	if err != nil {
		return "", err
	}

	token := &domain.RefreshToken{
		UserID:    userID,
		TokenHash: hashToken(raw),
		ExpiresAt: now.Add(s.limits.RefreshTokenTTL),
		DeviceID:  nullableString(deviceID),
		IPAddress: nullableString(ip),
		UserAgent: nullableString(userAgent),
	}
	if err := s.refresh.Create(ctx, token); err != nil {
		return "", err
	}
	return raw, nil
}

func (s *Service) logFailure(ctx context.Context, email string, userID *uuid.UUID, reason, ip, userAgent string) error {
	return s.logAttempt(ctx, email, domain.KindLoginFailure, false, userID, reason, ip, userAgent)
}

func (s *Service) logAttempt(ctx context.Context, email string, kind domain.AttemptKind, successful bool, userID *uuid.UUID, reason, ip, userAgent string) error {
	return s.attempts.Create(ctx, &domain.LoginAttempt{
		Email:         email,
		Kind:          kind,
		Successful:    successful,
		FailureReason: nullableString(reason),
		UserID:        userID,
		IPAddress:     nullableString(ip),
		UserAgent:     nullableString(userAgent),
	})
}

// randomToken returns a URL-safe secret with 32 bytes of entropy.
func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func mustRandomToken() string {
	raw, err := randomToken()
	if err != nil {
		panic(err) // crypto/rand failure is unrecoverable
	}
	return raw
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nullableString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
