package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/mhalloran/curbshare/internal/auth"
	"github.com/mhalloran/curbshare/internal/middleware"
	"github.com/mhalloran/curbshare/internal/models"
	"github.com/mhalloran/curbshare/internal/services"
	appErrors "github.com/mhalloran/curbshare/pkg/errors"
	"github.com/mhalloran/curbshare/pkg/metrics"
	"github.com/mhalloran/curbshare/pkg/response"
)

type AuthHandler struct {
	users    *services.UserService
	sessions *iauth.SessionService
}

func NewAuthHandler(users *services.UserService, sessions *iauth.SessionService) *AuthHandler {
	return &AuthHandler{users: users, sessions: sessions}
}

type registerRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	DisplayName string `json:"display_name" validate:"omitempty,max=128"`
	Phone       string `json:"phone" validate:"omitempty,max=32"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type updateProfileRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,max=128"`
	Phone       *string `json:"phone" validate:"omitempty,max=32"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         *models.User `json:"user,omitempty"`
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Register(requestContext(c), services.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Phone:       req.Phone,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, user)
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)

	user, err := h.users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		response.Error(c, err)
		return
	}

	tokens, _, err := h.sessions.CreateSession(ctx, user.ID, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()

	response.Success(c, http.StatusOK, tokenResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		User:         user,
	})
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	tokens, _, err := h.sessions.RefreshSession(requestContext(c), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, iauth.ErrSessionNotFound),
			errors.Is(err, iauth.ErrSessionRevoked),
			errors.Is(err, iauth.ErrSessionExpired),
			errors.Is(err, iauth.ErrSessionInvalidToken):
			response.Error(c, appErrors.ErrUnauthorized)
		default:
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		}
		return
	}

	response.Success(c, http.StatusOK, tokenResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	})
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	sessionID := c.GetString(middleware.CtxSessionIDKey)
	if sessionID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.sessions.RevokeSession(requestContext(c), sessionID); err != nil &&
		!errors.Is(err, iauth.ErrSessionNotFound) {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"logged_out": true})
}

// GET /api/profile
func (h *AuthHandler) Me(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	user, err := h.users.GetByID(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

// PATCH /api/profile
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req updateProfileRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.UpdateProfile(requestContext(c), userID, services.UpdateProfileInput{
		DisplayName: req.DisplayName,
		Phone:       req.Phone,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}
