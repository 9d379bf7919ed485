package handler

import (
	"net/http"

	"healthtrack-backend/internal/apps/user/models"
	"healthtrack-backend/internal/apps/user/service"
	"healthtrack-backend/internal/common/apperror"
	"healthtrack-backend/internal/common/middleware"
	"healthtrack-backend/internal/common/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserHandler handles HTTP requests for user operations
type UserHandler struct {
	service service.UserService
	logger  *zap.Logger
}

// NewUserHandler creates a new instance of UserHandler
func NewUserHandler(service service.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{service: service, logger: logger}
}

// currentUserID reads the user id from the session attached by RequireSession
func currentUserID(c *gin.Context) (uuid.UUID, error) {
	s := middleware.CurrentSession(c)
	if s == nil {
		return uuid.Nil, apperror.New(apperror.CodeUnauthorized, "authentication required")
	}
	id, err := uuid.Parse(s.UserID)
	if err != nil {
		return uuid.Nil, apperror.New(apperror.CodeUnauthorized, "authentication required")
	}
	return id, nil
}

// GetMe handles GET /api/v1/users/me
func (h *UserHandler) GetMe(c *gin.Context) {
	id, err := currentUserID(c)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}

	user, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.Data(c, http.StatusOK, user.ToResponse())
}

// UpdateMe handles PUT /api/v1/users/me
func (h *UserHandler) UpdateMe(c *gin.Context) {
	id, err := currentUserID(c)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}

	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, h.logger, err)
		return
	}

	user, err := h.service.UpdateProfile(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.Data(c, http.StatusOK, user.ToResponse())
}
