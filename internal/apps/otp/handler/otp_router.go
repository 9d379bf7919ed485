package handler

import (
	"github.com/gin-gonic/gin"
)

// RegisterOTPRoutes registers all OTP routes. limit runs before the request
// handler and is expected to bucket by phone number.
func RegisterOTPRoutes(router *gin.RouterGroup, phoneOTPHandler *PhoneOTPHandler, limit gin.HandlerFunc) {
	otp := router.Group("/auth/otp")
	{
		otp.POST("/request", limit, phoneOTPHandler.RequestOTP)
	}
}
