package handler

import (
	"net/http"

	"healthtrack-backend/internal/apps/auth/models"
	"healthtrack-backend/internal/apps/auth/service"
	"healthtrack-backend/internal/common/middleware"
	"healthtrack-backend/internal/common/response"
	"healthtrack-backend/pkg/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthHandler handles login, logout and account endpoints
type AuthHandler struct {
	service  service.AuthService
	sessions *session.Manager
	logger   *zap.Logger
}

// NewAuthHandler creates a new instance of AuthHandler
func NewAuthHandler(service service.AuthService, sessions *session.Manager, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{service: service, sessions: sessions, logger: logger}
}

// writeLogin sets the session cookie and renders the session payload
func (h *AuthHandler) writeLogin(c *gin.Context, status int, result *models.LoginResult) {
	h.sessions.SetCookie(c.Writer, result.Token, result.ExpiresAt)

	resp := models.SessionResponse{
		OK:        true,
		Created:   result.Created,
		ExpiresAt: result.ExpiresAt,
		User:      result.User.ToResponse(),
	}
	if result.User.Phone != nil {
		resp.Phone = *result.User.Phone
	}
	response.Data(c, status, resp)
}

// VerifyOTP handles POST /api/v1/auth/otp/verify
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req models.VerifyOTPLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, h.logger, err)
		return
	}

	result, err := h.service.LoginWithOTP(c.Request.Context(), req.Phone, req.Code)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	h.writeLogin(c, http.StatusOK, result)
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, h.logger, err)
		return
	}

	result, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	h.writeLogin(c, http.StatusCreated, result)
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, h.logger, err)
		return
	}

	result, err := h.service.LoginWithPassword(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	h.writeLogin(c, http.StatusOK, result)
}

// Logout handles POST /api/v1/auth/logout. The cookie is cleared whether or
// not the request was authenticated.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.sessions.Clear(c.Writer)

	if err := h.service.Logout(c.Request.Context(), middleware.CurrentSession(c)); err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.Data(c, http.StatusOK, gin.H{"ok": true})
}

// Session handles GET /api/v1/auth/session
func (h *AuthHandler) Session(c *gin.Context) {
	response.Data(c, http.StatusOK, middleware.CurrentSession(c))
}

// DeleteAccount handles DELETE /api/v1/auth/account
func (h *AuthHandler) DeleteAccount(c *gin.Context) {
	if err := h.service.DeleteAccount(c.Request.Context(), middleware.CurrentSession(c)); err != nil {
		response.Error(c, h.logger, err)
		return
	}
	h.sessions.Clear(c.Writer)
	response.Data(c, http.StatusOK, gin.H{"ok": true})
}
