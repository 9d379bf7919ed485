package models

import (
	"time"

	usermodels "healthtrack-backend/internal/apps/user/models"
)

// Login methods recorded in metrics and responses
const (
	MethodOTP      = "otp"
	MethodPassword = "password"
	MethodRegister = "register"
)

// VerifyOTPLoginRequest payload to log in with a phone OTP
type VerifyOTPLoginRequest struct {
	Phone string `json:"phone" binding:"required,max=32"`
	Code  string `json:"code" binding:"required,numeric,min=6,max=10"`
}

// RegisterRequest payload to create a password account
type RegisterRequest struct {
	Email       string  `json:"email" binding:"required,email,max=255"`
	Password    string  `json:"password" binding:"required,min=8,max=128"`
	DisplayName *string `json:"display_name" binding:"omitempty,max=255"`
}

// LoginRequest payload to log in with email and password
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,max=128"`
}

// LoginResult is what a successful login hands back to the HTTP layer. Token
// is written to the session cookie and never serialized.
type LoginResult struct {
	User      *usermodels.User
	Created   bool
	Method    string
	Token     string
	ExpiresAt time.Time
}

// SessionResponse is returned by every login endpoint. GET /auth/session
// returns the decoded session claims instead.
type SessionResponse struct {
	OK        bool                    `json:"ok"`
	Phone     string                  `json:"phone,omitempty"`
	Created   bool                    `json:"created,omitempty"`
	ExpiresAt time.Time               `json:"expires_at"`
	User      usermodels.UserResponse `json:"user"`
}
