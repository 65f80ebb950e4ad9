package auth

import (
	"errors"
	"net/http"

	"authservice/internal/domain"
	"authservice/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Generic reset-request message returned regardless of whether the email
// exists, so the endpoint cannot be used as a user-existence oracle.
const resetRequestedMsg = "If the email exists, a reset link has been sent"

// Handler manages all HTTP interactions for authentication
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterPublicRoutes(v1 *gin.RouterGroup) {
	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/signup", h.Signup)
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)
		authGroup.POST("/password-reset/request", h.RequestPasswordReset)
		authGroup.POST("/password-reset/confirm", h.ConfirmPasswordReset)
	}
}

func (h *Handler) RegisterProtectedRoutes(protected *gin.RouterGroup) {
	authGroup := protected.Group("/auth")
	{
		authGroup.POST("/logout", h.Logout)
		authGroup.POST("/password", h.ChangePassword)
		authGroup.GET("/status", h.Status)
	}
	protected.GET("/users/me", h.GetMe)
}

// Signup registers a new account.
// @Summary		Register a new user
// @Tags		Authentication
// @Param		request	body	SignupRequest	true	"Signup data (email, password, full_name)"
// @Success		201	{object}	map[string]interface{}	"User created"
// @Failure		409	{object}	map[string]interface{}	"Email already registered"
// @Router		/auth/signup [POST]
func (h *Handler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	user, err := h.service.Register(c.Request.Context(), req, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		if errors.Is(err, ErrEmailAlreadyExists) {
			response.Error(c, http.StatusConflict, "EMAIL_EXISTS", "This email is already registered")
			return
		}
		response.Error(c, http.StatusInternalServerError, "SIGNUP_FAILED", "Failed to register user")
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"user": toUserPublic(user)})
}

// Login authenticates with email and password.
// @Summary		Log in
// @Description	Returns an access token, a session id, and (with remember_me) a refresh token.
// @Tags		Authentication
// @Param		request	body	LoginRequest	true	"Credentials (email, password, remember_me, device_id)"
// @Success		200	{object}	map[string]interface{}	"Tokens and user"
// @Failure		401	{object}	map[string]interface{}	"Invalid email or password"
// @Failure		429	{object}	map[string]interface{}	"Too many failed attempts"
// @Router		/auth/login [POST]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	result, err := h.service.Login(c.Request.Context(), req, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, ErrTooManyAttempts):
			response.Error(c, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS", "Too many failed login attempts. Please try again later")
		case errors.Is(err, ErrInvalidCredentials):
			response.Error(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Email or password is incorrect")
		default:
			response.Error(c, http.StatusInternalServerError, "LOGIN_FAILED", "Failed to login")
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"user":       toUserPublic(result.User),
		"tokens":     result.Tokens,
		"session_id": result.SessionID,
	})
}

// Refresh exchanges a refresh token for a new access token.
// @Summary		Refresh the access token
// @Tags		Authentication
// @Param		request	body	RefreshRequest	true	"Refresh token"
// @Success		200	{object}	map[string]interface{}	"New access token"
// @Failure		401	{object}	map[string]interface{}	"Invalid or expired token"
// @Router		/auth/refresh [POST]
func (h *Handler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	tokens, err := h.service.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			response.Error(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			return
		}
		response.Error(c, http.StatusInternalServerError, "REFRESH_FAILED", "Failed to refresh token")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"tokens": tokens})
}

// Logout revokes refresh tokens and server-side sessions.
// @Summary		Log out
// @Tags		Authentication
// @Security	BearerAuth
// @Param		request	body	LogoutRequest	false	"Logout options (refresh_token, all_devices)"
// @Success		200	{object}	map[string]interface{}	"Logged out"
// @Router		/auth/logout [POST]
func (h *Handler) Logout(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	var req LogoutRequest
	// Body is optional: an empty logout still invalidates sessions.
	_ = c.ShouldBindJSON(&req)

	if err := h.service.Logout(c.Request.Context(), userID, req.RefreshToken, req.AllDevices); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			response.Error(c, http.StatusNotFound, "NOT_FOUND", "User not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "LOGOUT_FAILED", "Failed to logout")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"logged_out": true})
}

// RequestPasswordReset starts the reset flow. The response is identical for
// known and unknown emails.
// @Summary		Request a password reset
// @Tags		Authentication
// @Param		request	body	PasswordResetRequest	true	"Account email"
// @Success		200	{object}	map[string]interface{}	"Generic confirmation"
// @Router		/auth/password-reset/request [POST]
func (h *Handler) RequestPasswordReset(c *gin.Context) {
	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	_, err := h.service.RequestPasswordReset(c.Request.Context(), req.Email, c.ClientIP(), c.Request.UserAgent())
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		// Internal failures also get the generic response; log server-side only.
		c.Error(err) //nolint:errcheck
	}

	response.Success(c, http.StatusOK, gin.H{"message": resetRequestedMsg})
}

// ConfirmPasswordReset redeems a reset token and sets a new password.
// @Summary		Confirm a password reset
// @Tags		Authentication
// @Param		request	body	PasswordResetConfirm	true	"Reset token and new password"
// @Success		200	{object}	map[string]interface{}	"Password changed"
// @Failure		401	{object}	map[string]interface{}	"Invalid or expired token"
// @Router		/auth/password-reset/confirm [POST]
func (h *Handler) ConfirmPasswordReset(c *gin.Context) {
	var req PasswordResetConfirm
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	if err := h.service.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		if errors.Is(err, ErrInvalidToken) {
			response.Error(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			return
		}
		response.Error(c, http.StatusInternalServerError, "RESET_FAILED", "Failed to reset password")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"password_reset": true})
}

// ChangePassword updates the password of the authenticated user.
// @Summary		Change password
// @Tags		Authentication
// @Security	BearerAuth
// @Param		request	body	ChangePasswordRequest	true	"Current and new password"
// @Success		200	{object}	map[string]interface{}	"Password changed"
// @Failure		401	{object}	map[string]interface{}	"Current password is incorrect"
// @Router		/auth/password [POST]
func (h *Handler) ChangePassword(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	err := h.service.ChangePassword(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			response.Error(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Current password is incorrect")
		case errors.Is(err, ErrUserNotFound):
			response.Error(c, http.StatusNotFound, "NOT_FOUND", "User not found")
		default:
			response.Error(c, http.StatusInternalServerError, "CHANGE_FAILED", "Failed to change password")
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"password_changed": true})
}

// Status reports the authentication state and permissions of the caller.
// @Summary		Authentication status
// @Tags		Authentication
// @Security	BearerAuth
// @Success		200	{object}	map[string]interface{}	"Session state and permissions"
// @Router		/auth/status [GET]
func (h *Handler) Status(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	status, err := h.service.AuthStatus(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "STATUS_FAILED", "Failed to read auth status")
		return
	}

	response.Success(c, http.StatusOK, status)
}

// GetMe returns the profile of the authenticated user.
// @Summary		Current user
// @Tags		Authentication
// @Security	BearerAuth
// @Success		200	{object}	map[string]interface{}	"User profile"
// @Router		/users/me [GET]
func (h *Handler) GetMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	user, err := h.service.GetCurrentUser(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": toUserPublic(user)})
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func toUserPublic(u *domain.User) UserPublic {
	return UserPublic{
		ID:          u.ID,
		Email:       u.Email,
		FullName:    u.FullName,
		IsActive:    u.IsActive,
		IsSuperuser: u.IsSuperuser,
		CreatedAt:   u.CreatedAt,
	}
}
