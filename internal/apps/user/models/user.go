package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents an account that can log in by email/password or phone OTP.
// Email is stored lowercased, Phone in +84 E.164 form.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Email        *string   `gorm:"size:255;uniqueIndex" json:"email,omitempty"`
	Phone        *string   `gorm:"size:20;uniqueIndex" json:"phone,omitempty"`
	PasswordHash *string   `gorm:"size:255" json:"-"`
	DisplayName  *string   `gorm:"size:255" json:"display_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName sets the table name to 'users'
func (User) TableName() string { return "users" }

// BeforeCreate hook to generate UUID before creating record
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// HasPassword reports whether the user can log in with a password
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// UpdateProfileRequest represents the request body for PUT /users/me
type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name" binding:"omitempty,max=255"`
}

// UserResponse represents the response payload for user operations
type UserResponse struct {
	ID          uuid.UUID `json:"id"`
	Email       *string   `json:"email,omitempty"`
	Phone       *string   `json:"phone,omitempty"`
	DisplayName *string   `json:"display_name,omitempty"`
	HasPassword bool      `json:"has_password"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ToResponse converts User model to UserResponse
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		Phone:       u.Phone,
		DisplayName: u.DisplayName,
		HasPassword: u.HasPassword(),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}
