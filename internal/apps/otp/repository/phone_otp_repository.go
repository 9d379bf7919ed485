package repository

import (
	"context"
	"errors"
	"time"

	"healthtrack-backend/internal/apps/otp/models"
	"healthtrack-backend/internal/common/database"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PhoneOTPRepository defines data operations for Phone OTP. Methods called
// with a context produced by Transaction run inside that transaction.
type PhoneOTPRepository interface {
	database.Transactor
	LockPhone(ctx context.Context, phone string) error
	FindLatest(ctx context.Context, phone string) (*models.PhoneOTP, error)
	FindLatestActive(ctx context.Context, phone string, now time.Time) (*models.PhoneOTP, error)
	ExpireActive(ctx context.Context, phone string, now time.Time) error
	Create(ctx context.Context, otp *models.PhoneOTP) error
	IncrementAttempts(ctx context.Context, id uuid.UUID) error
	MarkConsumed(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

// phoneOTPRepository implements PhoneOTPRepository
type phoneOTPRepository struct {
	database.Transactor
	db *gorm.DB
}

// NewPhoneOTPRepository creates an instance of PhoneOTPRepository
func NewPhoneOTPRepository(db *gorm.DB) PhoneOTPRepository {
	return &phoneOTPRepository{
		Transactor: database.NewTransactor(db),
		db:         db,
	}
}

// LockPhone serializes issuance and verification for one phone until the
// surrounding transaction ends. It covers the first issuance too, when there
// is no row to lock yet.
func (r *phoneOTPRepository) LockPhone(ctx context.Context, phone string) error {
	return database.Conn(ctx, r.db).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", "phone_otp:"+phone).Error
}

// FindLatest retrieves the most recently issued OTP for a phone, consumed or not
func (r *phoneOTPRepository) FindLatest(ctx context.Context, phone string) (*models.PhoneOTP, error) {
	var otp models.PhoneOTP
	err := database.Conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("phone = ?", phone).
		Order("created_at DESC").
		First(&otp).Error
	if err != nil {
		return nil, err
	}
	return &otp, nil
}

// FindLatestActive retrieves the newest unconsumed, unexpired OTP, or nil
func (r *phoneOTPRepository) FindLatestActive(ctx context.Context, phone string, now time.Time) (*models.PhoneOTP, error) {
	var otp models.PhoneOTP
	err := database.Conn(ctx, r.db).
		Where("phone = ? AND consumed_at IS NULL AND expires_at > ?", phone, now).
		Order("created_at DESC").
		First(&otp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &otp, nil
}

// ExpireActive supersedes every outstanding code for a phone
func (r *phoneOTPRepository) ExpireActive(ctx context.Context, phone string, now time.Time) error {
	return database.Conn(ctx, r.db).
		Model(&models.PhoneOTP{}).
		Where("phone = ? AND consumed_at IS NULL AND expires_at > ?", phone, now).
		Updates(map[string]any{"expires_at": now, "updated_at": now}).Error
}

// Create persists a new OTP
func (r *phoneOTPRepository) Create(ctx context.Context, otp *models.PhoneOTP) error {
	return database.Conn(ctx, r.db).Create(otp).Error
}

// IncrementAttempts records a failed verification
func (r *phoneOTPRepository) IncrementAttempts(ctx context.Context, id uuid.UUID) error {
	return database.Conn(ctx, r.db).
		Model(&models.PhoneOTP{}).
		Where("id = ?", id).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
}

// MarkConsumed sets consumed_at only if the OTP is still unconsumed and
// reports whether this call won
func (r *phoneOTPRepository) MarkConsumed(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := database.Conn(ctx, r.db).
		Model(&models.PhoneOTP{}).
		Where("id = ? AND consumed_at IS NULL", id).
		Updates(map[string]any{"consumed_at": now, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteStale removes OTPs that expired or were consumed before the cutoff
func (r *phoneOTPRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	res := database.Conn(ctx, r.db).
		Where("expires_at < ? OR consumed_at < ?", before, before).
		Delete(&models.PhoneOTP{})
	return res.RowsAffected, res.Error
}
