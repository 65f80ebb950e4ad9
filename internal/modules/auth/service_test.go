package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"authservice/internal/domain"
	"authservice/internal/pkg/password"

	"github.com/google/uuid"

	jwtsvc "authservice/internal/pkg/jwt"
)

// Mock repositories implementing the service interfaces

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) Create(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserRepo) UpdatePasswordHash(ctx context.Context, userID uuid.UUID, newHash string) error {
	args := m.Called(ctx, userID, newHash)
	return args.Error(0)
}

func (m *mockUserRepo) DB() *gorm.DB {
	return &gorm.DB{} // transactional flows are covered by the sqlite-backed tests
}

type mockRefreshTokenRepo struct {
	mock.Mock
}

func (m *mockRefreshTokenRepo) Create(ctx context.Context, t *domain.RefreshToken) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockRefreshTokenRepo) GetByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RefreshToken), args.Error(1)
}

func (m *mockRefreshTokenRepo) Revoke(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockRefreshTokenRepo) RevokeByUser(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type mockResetTokenRepo struct {
	mock.Mock
}

func (m *mockResetTokenRepo) Create(ctx context.Context, t *domain.PasswordResetToken) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockResetTokenRepo) GetUnused(ctx context.Context, hash, email string) (*domain.PasswordResetToken, error) {
	args := m.Called(ctx, hash, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PasswordResetToken), args.Error(1)
}

func (m *mockResetTokenRepo) MarkUsed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockAttemptRepo struct {
	mock.Mock
}

func (m *mockAttemptRepo) Create(ctx context.Context, a *domain.LoginAttempt) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *mockAttemptRepo) CountRecentFailuresByEmail(ctx context.Context, email string, since time.Time) (int64, error) {
	args := m.Called(ctx, email, since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockAttemptRepo) CountRecentFailuresByIP(ctx context.Context, ip string, since time.Time) (int64, error) {
	args := m.Called(ctx, ip, since)
	return args.Get(0).(int64), args.Error(1)
}

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) Create(ctx context.Context, s *domain.UserSession) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *mockSessionRepo) GetActiveByUser(ctx context.Context, userID uuid.UUID) ([]domain.UserSession, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.UserSession), args.Error(1)
}

func (m *mockSessionRepo) InvalidateByUser(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, to, subject, html string) error {
	args := m.Called(ctx, to, subject, html)
	return args.Error(0)
}

type testDeps struct {
	users    *mockUserRepo
	refresh  *mockRefreshTokenRepo
	resets   *mockResetTokenRepo
	attempts *mockAttemptRepo
	sessions *mockSessionRepo
	mailer   *mockMailer
	codec    *jwtsvc.Codec
	hasher   *password.Hasher
}

func newTestDeps() *testDeps {
	return &testDeps{
		users:    new(mockUserRepo),
		refresh:  new(mockRefreshTokenRepo),
		resets:   new(mockResetTokenRepo),
		attempts: new(mockAttemptRepo),
		sessions: new(mockSessionRepo),
		mailer:   new(mockMailer),
		codec:    jwtsvc.New("test-secret"),
		hasher:   password.New(password.AlgorithmBcrypt, bcrypt.MinCost, password.DefaultArgon2Params),
	}
}

func (d *testDeps) newService() *Service {
	return NewService(d.users, d.refresh, d.resets, d.attempts, d.sessions, d.codec, d.hasher, d.mailer, Limits{
		AccessTokenTTL:      30 * time.Minute,
		RefreshTokenTTL:     720 * time.Hour,
		ResetTokenTTL:       time.Hour,
		ThrottleWindow:      15 * time.Minute,
		MaxFailedAttempts:   5,
		IPMaxFailedAttempts: 20,
	})
}

func (d *testDeps) allowThrottleCounts(emailCount, ipCount int64) {
	d.attempts.On("CountRecentFailuresByEmail", mock.Anything, mock.Anything, mock.Anything).Return(emailCount, nil)
	d.attempts.On("CountRecentFailuresByIP", mock.Anything, mock.Anything, mock.Anything).Return(ipCount, nil)
}

func (d *testDeps) activeUser(t *testing.T, email, pass string) *domain.User {
	t.Helper()
	hashed, err := d.hasher.Hash(pass)
	require.NoError(t, err)
	return &domain.User{
		ID:             uuid.New(),
		Email:          email,
		HashedPassword: hashed,
		IsActive:       true,
	}
}

func TestService_Login_Success(t *testing.T) {
	d := newTestDeps()
	user := d.activeUser(t, "user@example.com", "password123")

	d.allowThrottleCounts(0, 0)
	d.users.On("GetByEmail", mock.Anything, "user@example.com").Return(user, nil)
	d.sessions.On("Create", mock.Anything, mock.Anything).Return(nil)
	d.attempts.On("Create", mock.Anything, mock.Anything).Return(nil)

	result, err := d.newService().Login(context.Background(), LoginRequest{
		Email:    "User@Example.COM",
		Password: "password123",
	}, "203.0.113.7", "go-test")

	require.NoError(t, err)
	assert.Equal(t, user.ID, result.User.ID)
	assert.Equal(t, "bearer", result.Tokens.TokenType)
	assert.Equal(t, int((30 * time.Minute).Seconds()), result.Tokens.ExpiresIn)

	// The access token must verify against the issuing codec and carry the
	// user id as subject.
	info := d.codec.VerifyAccessToken(result.Tokens.AccessToken)
	require.NotNil(t, info)
	assert.Equal(t, user.ID.String(), info.Subject)

	// Without remember_me there is no refresh token.
	assert.Empty(t, result.Tokens.RefreshToken)
	d.refresh.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)

	d.users.AssertExpectations(t)
	d.sessions.AssertExpectations(t)
}

func TestService_Login_RememberMe_IssuesRefreshToken(t *testing.T) {
	d := newTestDeps()
	user := d.activeUser(t, "user@example.com", "password123")

	var stored *domain.RefreshToken
	d.allowThrottleCounts(0, 0)
	d.users.On("GetByEmail", mock.Anything, "user@example.com").Return(user, nil)
	d.refresh.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(1).(*domain.RefreshToken)
	}).Return(nil)
	d.sessions.On("Create", mock.Anything, mock.Anything).Return(nil)
	d.attempts.On("Create", mock.Anything, mock.Anything).Return(nil)

	result, err := d.newService().Login(context.Background(), LoginRequest{
		Email:      "user@example.com",
		Password:   "password123",
		RememberMe: true,
		DeviceID:   "device-42",
	}, "203.0.113.7", "go-test")

	require.NoError(t, err)
	require.NotEmpty(t, result.Tokens.RefreshToken)
	assert.NotEqual(t, result.Tokens.AccessToken, result.Tokens.RefreshToken)

	// The ledger stores only the digest of the raw secret.
	require.NotNil(t, stored)
	assert.Equal(t, hashToken(result.Tokens.RefreshToken), stored.TokenHash)
	assert.NotContains(t, stored.TokenHash, result.Tokens.RefreshToken)
	assert.Equal(t, user.ID, stored.UserID)
	require.NotNil(t, stored.DeviceID)
	assert.Equal(t, "device-42", *stored.DeviceID)

	d.refresh.AssertExpectations(t)
}

func TestService_Login_UnknownEmail(t *testing.T) {
	d := newTestDeps()

	var logged *domain.LoginAttempt
	d.allowThrottleCounts(0, 0)
	d.users.On("GetByEmail", mock.Anything, "ghost@example.com").Return(nil, gorm.ErrRecordNotFound)
	d.attempts.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		logged = args.Get(1).(*domain.LoginAttempt)
	}).Return(nil)

	_, err := d.newService().Login(context.Background(), LoginRequest{
		Email:    "ghost@example.com",
		Password: "whatever",
	}, "203.0.113.7", "go-test")

	assert.ErrorIs(t, err, ErrInvalidCredentials)
	require.NotNil(t, logged)
	assert.Equal(t, domain.KindLoginFailure, logged.Kind)
	assert.False(t, logged.Successful)
	require.NotNil(t, logged.FailureReason)
	assert.Equal(t, "unknown_email", *logged.FailureReason)
	assert.Nil(t, logged.UserID)
}

func TestService_Login_WrongPassword(t *testing.T) {
	d := newTestDeps()
	user := d.activeUser(t, "user@example.com", "password123")

	var logged *domain.LoginAttempt
	d.allowThrottleCounts(0, 0)
	d.users.On("GetByEmail", mock.Anything, "user@example.com").Return(user, nil)
	d.attempts.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		logged = args.Get(1).(*domain.LoginAttempt)
	}).Return(nil)

	_, err := d.newService().Login(context.Background(), LoginRequest{
		Email:    "user@example.com",
		Password: "not-the-password",
	}, "203.0.113.7", "go-test")

	assert.ErrorIs(t, err, ErrInvalidCredentials)
	require.NotNil(t, logged)
	require.NotNil(t, logged.FailureReason)
	assert.Equal(t, "wrong_password", *logged.FailureReason)
	require.NotNil(t, logged.UserID)
	assert.Equal(t, user.ID, *logged.UserID)
}

func TestService_Login_InactiveAccount(t *testing.T) {
	d := newTestDeps()
	user := d.activeUser(t, "user@example.com", "password123")
	user.IsActive = false

	var logged *domain.LoginAttempt
	d.allowThrottleCounts(0, 0)
	d.users.On("GetByEmail", mock.Anything, "user@example.com").Return(user, nil)
	d.attempts.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		logged = args.Get(1).(*domain.LoginAttempt)
	}).Return(nil)

	// A disabled account with the right password is indistinguishable from a
	// wrong password for the caller.
	_, err := d.newService().Login(context.Background(), LoginRequest{
		Email:    "user@example.com",
		Password: "password123",
	}, "203.0.113.7", "go-test")

	assert.ErrorIs(t, err, ErrInvalidCredentials)
	require.NotNil(t, logged)
	require.NotNil(t, logged.FailureReason)
	assert.Equal(t, "inactive_account", *logged.FailureReason)
}

func TestService_Login_ThrottledByEmail(t *testing.T) {
	d := newTestDeps()
	d.attempts.On("CountRecentFailuresByEmail", mock.Anything, "user@example.com", mock.Anything).Return(int64(5), nil)

	_, err := d.newService().Login(context.Background(), LoginRequest{
		Email:    "user@example.com",
		Password: "password123",
	}, "203.0.113.7", "go-test")

	assert.ErrorIs(t, err, ErrTooManyAttempts)
	// Throttled requests never reach the credential store.
	d.users.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
}

func TestService_Login_ThrottledByIP(t *testing.T) {
	d := newTestDeps()
	d.attempts.On("CountRecentFailuresByEmail", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), nil)
	d.attempts.On("CountRecentFailuresByIP", mock.Anything, "203.0.113.7", mock.Anything).Return(int64(20), nil)

	_, err := d.newService().Login(context.Background(), LoginRequest{
		Email:    "fresh@example.com",
		Password: "password123",
	}, "203.0.113.7", "go-test")

	assert.ErrorIs(t, err, ErrTooManyAttempts)
	d.users.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
}

func TestService_Login_UpgradesLegacyHash(t *testing.T) {
	d := newTestDeps()
	// The stored hash is bcrypt while the configured algorithm is argon2id.
	user := d.activeUser(t, "user@example.com", "password123")
	d.hasher = password.New(password.AlgorithmArgon2id, bcrypt.MinCost, password.Argon2Params{
		Time: 1, Memory: 8 * 1024, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})

	var newHash string
	d.allowThrottleCounts(0, 0)
	d.users.On("GetByEmail", mock.Anything, "user@example.com").Return(user, nil)
	d.users.On("UpdatePasswordHash", mock.Anything, user.ID, mock.Anything).Run(func(args mock.Arguments) {
		newHash = args.String(2)
	}).Return(nil)
	d.sessions.On("Create", mock.Anything, mock.Anything).Return(nil)
	d.attempts.On("Create", mock.Anything, mock.Anything).Return(nil)

	_, err := d.newService().Login(context.Background(), LoginRequest{
		Email:    "user@example.com",
		Password: "password123",
	}, "203.0.113.7", "go-test")

	require.NoError(t, err)
	require.NotEmpty(t, newHash)
	assert.True(t, strings.HasPrefix(newHash, "$argon2id$"))
	d.users.AssertExpectations(t)
}

func TestService_Refresh_Success(t *testing.T) {
	d := newTestDeps()
	user := d.activeUser(t, "user@example.com", "password123")

	d.refresh.On("GetByHash", mock.Anything, hashToken("raw-refresh")).Return(&domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: hashToken("raw-refresh"),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}, nil)
	d.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)

	tokens, err := d.newService().Refresh(context.Background(), "raw-refresh")

	require.NoError(t, err)
	info := d.codec.VerifyAccessToken(tokens.AccessToken)
	require.NotNil(t, info)
	assert.Equal(t, user.ID.String(), info.Subject)
	// No rotation: the response carries no replacement refresh token.
	assert.Empty(t, tokens.RefreshToken)
}

func TestService_Refresh_RejectsBadTokens(t *testing.T) {
	d := newTestDeps()
	userID := uuid.New()
	now := time.Now().UTC()

	d.refresh.On("GetByHash", mock.Anything, hashToken("unknown")).Return(nil, gorm.ErrRecordNotFound)
	d.refresh.On("GetByHash", mock.Anything, hashToken("expired")).Return(&domain.RefreshToken{
		UserID: userID, ExpiresAt: now.Add(-time.Minute),
	}, nil)
	revokedAt := now.Add(-time.Minute)
	d.refresh.On("GetByHash", mock.Anything, hashToken("revoked")).Return(&domain.RefreshToken{
		UserID: userID, ExpiresAt: now.Add(time.Hour), Revoked: true, RevokedAt: &revokedAt,
	}, nil)

	svc := d.newService()
	for _, raw := range []string{"unknown", "expired", "revoked"} {
		_, err := svc.Refresh(context.Background(), raw)
		assert.ErrorIs(t, err, ErrInvalidToken, raw)
	}
	d.users.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestService_Refresh_InactiveUser(t *testing.T) {
	d := newTestDeps()
	user := d.activeUser(t, "user@example.com", "password123")
	user.IsActive = false

	d.refresh.On("GetByHash", mock.Anything, hashToken("raw-refresh")).Return(&domain.RefreshToken{
		UserID:    user.ID,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}, nil)
	d.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)

	_, err := d.newService().Refresh(context.Background(), "raw-refresh")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_Register_Success(t *testing.T) {
	d := newTestDeps()

	d.users.On("ExistsByEmail", mock.Anything, "new@example.com").Return(false, nil)
	d.users.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(*domain.User).ID = uuid.New()
	}).Return(nil)
	d.attempts.On("Create", mock.Anything, mock.Anything).Return(nil)
	d.mailer.On("Send", mock.Anything, "new@example.com", mock.Anything, mock.Anything).Return(nil)

	user, err := d.newService().Register(context.Background(), SignupRequest{
		Email:    "  New@Example.COM ",
		Password: "password123",
		FullName: "  New User ",
	}, "203.0.113.7", "go-test")

	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
	assert.Equal(t, "New User", user.FullName)
	assert.True(t, user.IsActive)
	assert.False(t, user.IsSuperuser)

	// The stored value is a hash, never the plaintext.
	assert.NotEqual(t, "password123", user.HashedPassword)
	ok, err := d.hasher.Verify("password123", user.HashedPassword)
	require.NoError(t, err)
	assert.True(t, ok)

	d.users.AssertExpectations(t)
	d.mailer.AssertExpectations(t)
}

func TestService_Register_DuplicateEmail(t *testing.T) {
	d := newTestDeps()
	d.users.On("ExistsByEmail", mock.Anything, "exists@example.com").Return(true, nil)

	_, err := d.newService().Register(context.Background(), SignupRequest{
		Email:    "exists@example.com",
		Password: "password123",
	}, "", "")

	assert.ErrorIs(t, err, ErrEmailAlreadyExists)
	d.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestService_RequestPasswordReset_Success(t *testing.T) {
	d := newTestDeps()
	user := d.activeUser(t, "user@example.com", "password123")

	var row *domain.PasswordResetToken
	d.users.On("GetByEmail", mock.Anything, "user@example.com").Return(user, nil)
	d.resets.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		row = args.Get(1).(*domain.PasswordResetToken)
	}).Return(nil)
	d.mailer.On("Send", mock.Anything, "user@example.com", mock.Anything, mock.Anything).Return(nil)

	raw, err := d.newService().RequestPasswordReset(context.Background(), "User@Example.com", "203.0.113.7", "go-test")

	require.NoError(t, err)
	require.NotEmpty(t, raw)
	assert.Equal(t, "user@example.com", d.codec.VerifyResetToken(raw))

	require.NotNil(t, row)
	assert.Equal(t, hashToken(raw), row.TokenHash)
	assert.Equal(t, user.ID, row.UserID)
	assert.Equal(t, "user@example.com", row.Email)
	assert.True(t, row.ExpiresAt.After(time.Now().UTC()))

	d.mailer.AssertExpectations(t)
}

func TestService_RequestPasswordReset_UnknownEmail(t *testing.T) {
	d := newTestDeps()
	d.users.On("GetByEmail", mock.Anything, "ghost@example.com").Return(nil, gorm.ErrRecordNotFound)

	_, err := d.newService().RequestPasswordReset(context.Background(), "ghost@example.com", "", "")

	assert.ErrorIs(t, err, ErrUserNotFound)
	d.resets.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	d.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_ResetPassword_BadSignature(t *testing.T) {
	d := newTestDeps()

	err := d.newService().ResetPassword(context.Background(), "not-a-signed-token", "newpassword1")

	assert.ErrorIs(t, err, ErrInvalidToken)
	d.resets.AssertNotCalled(t, "GetUnused", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_ChangePassword_WrongCurrent(t *testing.T) {
	d := newTestDeps()
	user := d.activeUser(t, "user@example.com", "password123")
	d.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)

	err := d.newService().ChangePassword(context.Background(), user.ID, "wrong-current", "newpassword1")

	assert.ErrorIs(t, err, ErrInvalidCredentials)
	d.users.AssertNotCalled(t, "UpdatePasswordHash", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_ChangePassword_Success(t *testing.T) {
	d := newTestDeps()
	user := d.activeUser(t, "user@example.com", "password123")

	var newHash string
	d.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	d.users.On("UpdatePasswordHash", mock.Anything, user.ID, mock.Anything).Run(func(args mock.Arguments) {
		newHash = args.String(2)
	}).Return(nil)

	err := d.newService().ChangePassword(context.Background(), user.ID, "password123", "newpassword1")

	require.NoError(t, err)
	ok, err := d.hasher.Verify("newpassword1", newHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestService_AuthStatus(t *testing.T) {
	d := newTestDeps()
	user := d.activeUser(t, "admin@example.com", "password123")
	user.IsSuperuser = true

	session := domain.UserSession{
		ID:        uuid.New(),
		UserID:    user.ID,
		ExpiresAt: time.Now().UTC().Add(30 * time.Minute),
		IsActive:  true,
	}
	d.users.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	d.sessions.On("GetActiveByUser", mock.Anything, user.ID).Return([]domain.UserSession{session}, nil)

	status, err := d.newService().AuthStatus(context.Background(), user.ID)

	require.NoError(t, err)
	assert.True(t, status.Authenticated)
	assert.Equal(t, []string{"user", "admin"}, status.Permissions)
	require.NotNil(t, status.SessionID)
	assert.Equal(t, session.ID, *status.SessionID)
	require.NotNil(t, status.ExpiresAt)
}

func TestService_AuthStatus_DeletedUser(t *testing.T) {
	d := newTestDeps()
	userID := uuid.New()
	d.users.On("GetByID", mock.Anything, userID).Return(nil, gorm.ErrRecordNotFound)

	status, err := d.newService().AuthStatus(context.Background(), userID)

	require.NoError(t, err)
	assert.False(t, status.Authenticated)
	assert.Nil(t, status.UserID)
}
