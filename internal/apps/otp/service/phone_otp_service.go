package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"healthtrack-backend/internal/apps/otp/models"
	"healthtrack-backend/internal/apps/otp/repository"
	"healthtrack-backend/internal/common/apperror"
	"healthtrack-backend/internal/common/metrics"
	"healthtrack-backend/pkg/phone"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PhoneOTPService defines business logic for Phone OTP
type PhoneOTPService interface {
	RequestOTP(ctx context.Context, rawPhone string) (*Issued, error)
	VerifyOTP(ctx context.Context, rawPhone, code string) (*models.VerifyPhoneOTPResponse, error)
	VerifyOTPThen(ctx context.Context, rawPhone, code string, onVerified VerifiedFunc) (*models.VerifyPhoneOTPResponse, error)
	PurgeStale(ctx context.Context) (int64, error)
}

// VerifiedFunc runs inside the verification transaction after the code has
// been consumed. Returning an error rolls the consumption back.
type VerifiedFunc func(ctx context.Context, phone string) error

// Issued is the outcome of a successful issuance. Code must only leave the
// process through the SMS sender, or the debug response outside production.
type Issued struct {
	Phone     string
	Code      string
	ExpiresAt time.Time
	ResendAt  time.Time
}

// Config tunes issuance and verification
type Config struct {
	TTL            time.Duration
	ResendInterval time.Duration
	CodeLength     int
	MaxAttempts    int
	CleanupGrace   time.Duration
}

// Option customizes the service
type Option func(*phoneOTPService)

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *phoneOTPService) { s.now = now }
}

// WithCodeGenerator overrides RandomCode
func WithCodeGenerator(gen CodeGenerator) Option {
	return func(s *phoneOTPService) { s.generate = gen }
}

// WithQuota adds a per-phone issuance quota
func WithQuota(q IssueQuota) Option {
	return func(s *phoneOTPService) {
		if q != nil {
			s.quota = q
		}
	}
}

// phoneOTPService implements PhoneOTPService
type phoneOTPService struct {
	repo     repository.PhoneOTPRepository
	sender   SMSSender
	quota    IssueQuota
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
	generate CodeGenerator
}

var tracer = otel.Tracer("healthtrack-backend/otp")

// NewPhoneOTPService creates a new instance of PhoneOTPService
func NewPhoneOTPService(repo repository.PhoneOTPRepository, sender SMSSender, cfg Config, logger *zap.Logger, opts ...Option) PhoneOTPService {
	if cfg.CodeLength < 6 {
		cfg.CodeLength = 6
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &phoneOTPService{
		repo:     repo,
		sender:   sender,
		quota:    NewUnlimitedQuota(),
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		generate: RandomCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestOTP issues a new code for the phone, superseding any outstanding one
func (s *phoneOTPService) RequestOTP(ctx context.Context, rawPhone string) (issued *Issued, err error) {
	ctx, span := tracer.Start(ctx, "otp.request")
	defer func() {
		finishSpan(span, err)
		metrics.OTPIssued(resultLabel(err))
	}()

	normalized, ok := phone.Normalize(rawPhone)
	if !ok {
		return nil, apperror.New(apperror.CodeInvalidPhone, "phone number is not a valid Vietnamese mobile number")
	}
	span.SetAttributes(attribute.String("otp.phone", phone.Mask(normalized)))

	code, err := s.generate(s.cfg.CodeLength)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "internal error", err)
	}

	now := s.now()
	otp := &models.PhoneOTP{
		Phone:     normalized,
		Code:      code,
		ExpiresAt: now.Add(s.cfg.TTL),
		CreatedAt: now,
		UpdatedAt: now,
	}

	charged := false
	err = s.repo.Transaction(ctx, func(ctx context.Context) error {
		if err := s.repo.LockPhone(ctx, normalized); err != nil {
			return err
		}

		active, err := s.repo.FindLatestActive(ctx, normalized, now)
		if err != nil {
			return err
		}
		if active != nil {
			resendAt := active.CreatedAt.Add(s.cfg.ResendInterval)
			if now.Before(resendAt) {
				return apperror.RateLimited("a code was sent recently, wait before requesting another", resendAt.Sub(now))
			}
		}

		// the quota only counts requests past the resend interval
		charged, err = s.takeQuota(ctx, normalized)
		if err != nil {
			return err
		}

		if err := s.repo.ExpireActive(ctx, normalized, now); err != nil {
			return err
		}
		return s.repo.Create(ctx, otp)
	})
	if err != nil {
		if charged {
			if refundErr := s.quota.Refund(ctx, normalized); refundErr != nil {
				s.logger.Warn("otp quota refund failed", zap.String("phone", phone.Mask(normalized)), zap.Error(refundErr))
			}
		}
		if apperror.CodeOf(err) == apperror.CodeRateLimited {
			s.logger.Info("otp request rate limited", zap.String("phone", phone.Mask(normalized)))
		}
		return nil, apperror.FromDB(err)
	}

	if err := s.sender.SendOTP(ctx, normalized, code, s.cfg.TTL); err != nil {
		metrics.SMSFailed()
		s.logger.Warn("otp sms delivery failed",
			zap.String("phone", phone.Mask(normalized)),
			zap.String("otp_id", otp.ID.String()),
			zap.Error(err),
		)
	}

	return &Issued{
		Phone:     normalized,
		Code:      code,
		ExpiresAt: otp.ExpiresAt,
		ResendAt:  now.Add(s.cfg.ResendInterval),
	}, nil
}

// takeQuota charges the hourly quota and reports whether it was charged. A
// quota store outage is logged and ignored; the resend interval still applies.
func (s *phoneOTPService) takeQuota(ctx context.Context, normalized string) (bool, error) {
	wait, err := s.quota.Take(ctx, normalized)
	if err != nil {
		s.logger.Warn("otp quota unavailable", zap.String("phone", phone.Mask(normalized)), zap.Error(err))
		return false, nil
	}
	if wait > 0 {
		return false, apperror.RateLimited("too many codes requested for this phone, try again later", wait)
	}
	return true, nil
}

// VerifyOTP checks and consumes a code
func (s *phoneOTPService) VerifyOTP(ctx context.Context, rawPhone, code string) (*models.VerifyPhoneOTPResponse, error) {
	return s.VerifyOTPThen(ctx, rawPhone, code, nil)
}

// VerifyOTPThen checks and consumes a code, running onVerified in the same
// transaction so the caller's writes and the consumption commit together
func (s *phoneOTPService) VerifyOTPThen(ctx context.Context, rawPhone, code string, onVerified VerifiedFunc) (resp *models.VerifyPhoneOTPResponse, err error) {
	ctx, span := tracer.Start(ctx, "otp.verify")
	defer func() {
		finishSpan(span, err)
		metrics.OTPVerified(resultLabel(err))
	}()

	normalized, ok := phone.Normalize(rawPhone)
	if !ok {
		return nil, apperror.New(apperror.CodeInvalidPhone, "phone number is not a valid Vietnamese mobile number")
	}
	span.SetAttributes(attribute.String("otp.phone", phone.Mask(normalized)))

	now := s.now()
	mismatch := false

	err = s.repo.Transaction(ctx, func(ctx context.Context) error {
		if err := s.repo.LockPhone(ctx, normalized); err != nil {
			return err
		}

		otp, err := s.repo.FindLatest(ctx, normalized)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.New(apperror.CodeNotFound, "no code was requested for this phone")
		}
		if err != nil {
			return err
		}

		switch {
		case otp.IsConsumed():
			return apperror.New(apperror.CodeAlreadyConsumed, "this code was already used")
		case otp.IsExpired(now):
			return apperror.New(apperror.CodeExpired, "this code has expired, request a new one")
		case otp.Attempts >= s.cfg.MaxAttempts:
			return apperror.New(apperror.CodeRateLimited, "too many incorrect attempts, request a new code")
		}

		if !codesEqual(otp.Code, code) {
			mismatch = true
			// committed on purpose so failed attempts count towards MaxAttempts
			return s.repo.IncrementAttempts(ctx, otp.ID)
		}

		won, err := s.repo.MarkConsumed(ctx, otp.ID, now)
		if err != nil {
			return err
		}
		if !won {
			return apperror.New(apperror.CodeAlreadyConsumed, "this code was already used")
		}

		if onVerified != nil {
			return onVerified(ctx, normalized)
		}
		return nil
	})
	if err != nil {
		return nil, apperror.FromDB(err)
	}
	if mismatch {
		s.logger.Info("otp code mismatch", zap.String("phone", phone.Mask(normalized)))
		return nil, apperror.New(apperror.CodeCodeMismatch, "the code is incorrect")
	}

	return &models.VerifyPhoneOTPResponse{OK: true, Phone: normalized}, nil
}

// PurgeStale deletes codes that expired or were consumed longer than the
// cleanup grace period ago
func (s *phoneOTPService) PurgeStale(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.cfg.CleanupGrace)
	n, err := s.repo.DeleteStale(ctx, cutoff)
	if err != nil {
		return 0, apperror.FromDB(err)
	}
	metrics.OTPPurged(n)
	return n, nil
}

func codesEqual(stored, given string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(strings.TrimSpace(given))) == 1
}

func resultLabel(err error) string {
	if err == nil {
		return metrics.ResultOK
	}
	return strings.ToLower(string(apperror.CodeOf(err)))
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperror.CodeOf(err)))
	}
	span.End()
}
