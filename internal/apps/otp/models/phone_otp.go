package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PhoneOTP represents a one-time code issued to a normalized phone number
type PhoneOTP struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Phone      string     `gorm:"size:20;not null;index:idx_phone_otp_phone_created,priority:1" json:"phone"`
	Code       string     `gorm:"size:10;not null" json:"-"`
	Attempts   int        `gorm:"not null;default:0" json:"attempts"`
	ExpiresAt  time.Time  `gorm:"not null;index" json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	CreatedAt  time.Time  `gorm:"index:idx_phone_otp_phone_created,priority:2" json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName sets the table name to 'phone_otp'
func (PhoneOTP) TableName() string { return "phone_otp" }

// BeforeCreate hook to generate UUID before creating record
func (o *PhoneOTP) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// IsConsumed reports whether the code was already used
func (o *PhoneOTP) IsConsumed() bool {
	return o.ConsumedAt != nil
}

// IsExpired reports whether the code is past its expiry at now
func (o *PhoneOTP) IsExpired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// RequestPhoneOTPRequest payload to issue a phone OTP
type RequestPhoneOTPRequest struct {
	Phone string `json:"phone" binding:"required,max=32"`
}

// PhoneOTPResponse represents the response after issuing a phone OTP.
// Code is only populated when debug exposure is enabled outside production.
type PhoneOTPResponse struct {
	Phone     string    `json:"phone"`
	ExpiresAt time.Time `json:"expires_at"`
	ResendAt  time.Time `json:"resend_at"`
	Code      string    `json:"otp,omitempty"`
}

// VerifyPhoneOTPRequest payload to verify a phone OTP
type VerifyPhoneOTPRequest struct {
	Phone string `json:"phone" binding:"required,max=32"`
	Code  string `json:"code" binding:"required,numeric,min=6,max=10"`
}

// VerifyPhoneOTPResponse indicates a successful verification
type VerifyPhoneOTPResponse struct {
	OK    bool   `json:"ok"`
	Phone string `json:"phone"`
}
