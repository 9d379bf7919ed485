package handler

import (
	"net/http"

	"healthtrack-backend/internal/apps/otp/models"
	"healthtrack-backend/internal/apps/otp/service"
	"healthtrack-backend/internal/common/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PhoneOTPHandler handles HTTP endpoints for Phone OTP
type PhoneOTPHandler struct {
	service    service.PhoneOTPService
	logger     *zap.Logger
	exposeCode bool
}

// NewPhoneOTPHandler creates a new instance of PhoneOTPHandler. exposeCode
// echoes the issued code in the response and must stay off in production.
func NewPhoneOTPHandler(service service.PhoneOTPService, logger *zap.Logger, exposeCode bool) *PhoneOTPHandler {
	return &PhoneOTPHandler{service: service, logger: logger, exposeCode: exposeCode}
}

// RequestOTP handles POST /api/v1/auth/otp/request
func (h *PhoneOTPHandler) RequestOTP(c *gin.Context) {
	var req models.RequestPhoneOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, h.logger, err)
		return
	}

	issued, err := h.service.RequestOTP(c.Request.Context(), req.Phone)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}

	resp := models.PhoneOTPResponse{
		Phone:     issued.Phone,
		ExpiresAt: issued.ExpiresAt,
		ResendAt:  issued.ResendAt,
	}
	if h.exposeCode {
		resp.Code = issued.Code
	}
	response.Data(c, http.StatusCreated, resp)
}
