package service

import (
	"context"

	"healthtrack-backend/internal/apps/auth/models"
	otpservice "healthtrack-backend/internal/apps/otp/service"
	usermodels "healthtrack-backend/internal/apps/user/models"
	userservice "healthtrack-backend/internal/apps/user/service"
	"healthtrack-backend/internal/common/apperror"
	"healthtrack-backend/internal/common/metrics"
	"healthtrack-backend/pkg/session"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuthService ties OTP verification and credentials to session issuance
type AuthService interface {
	LoginWithOTP(ctx context.Context, rawPhone, code string) (*models.LoginResult, error)
	LoginWithPassword(ctx context.Context, email, password string) (*models.LoginResult, error)
	Register(ctx context.Context, req models.RegisterRequest) (*models.LoginResult, error)
	Logout(ctx context.Context, s *session.Session) error
	DeleteAccount(ctx context.Context, s *session.Session) error
}

// authService implements AuthService
type authService struct {
	otp      otpservice.PhoneOTPService
	users    userservice.UserService
	sessions *session.Manager
	logger   *zap.Logger
}

// NewAuthService creates a new instance of AuthService
func NewAuthService(otp otpservice.PhoneOTPService, users userservice.UserService, sessions *session.Manager, logger *zap.Logger) AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &authService{otp: otp, users: users, sessions: sessions, logger: logger}
}

func principalFor(user *usermodels.User) session.Principal {
	p := session.Principal{UserID: user.ID.String()}
	if user.Email != nil {
		p.Email = *user.Email
	}
	if user.Phone != nil {
		p.Phone = *user.Phone
	}
	if user.DisplayName != nil {
		p.DisplayName = *user.DisplayName
	}
	return p
}

func (s *authService) sign(user *usermodels.User, method string) (*models.LoginResult, error) {
	token, expiresAt, err := s.sessions.Sign(principalFor(user))
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeInternal, "internal error", err)
	}
	return &models.LoginResult{User: user, Method: method, Token: token, ExpiresAt: expiresAt}, nil
}

// LoginWithOTP verifies the code and signs a session for the phone's user.
// Consumption, user creation and signing succeed or fail together.
func (s *authService) LoginWithOTP(ctx context.Context, rawPhone, code string) (*models.LoginResult, error) {
	var result *models.LoginResult

	_, err := s.otp.VerifyOTPThen(ctx, rawPhone, code, func(ctx context.Context, phone string) error {
		user, created, err := s.users.FindOrCreateByPhone(ctx, phone)
		if err != nil {
			return err
		}
		result, err = s.sign(user, models.MethodOTP)
		if err != nil {
			return err
		}
		result.Created = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.SessionIssued(models.MethodOTP)
	return result, nil
}

// LoginWithPassword authenticates email and password
func (s *authService) LoginWithPassword(ctx context.Context, email, password string) (*models.LoginResult, error) {
	user, err := s.users.Authenticate(ctx, email, password)
	if err != nil {
		if apperror.CodeOf(err) == apperror.CodeUnauthorized {
			s.logger.Info("password login rejected")
		}
		return nil, err
	}

	result, err := s.sign(user, models.MethodPassword)
	if err != nil {
		return nil, err
	}
	metrics.SessionIssued(models.MethodPassword)
	return result, nil
}

// Register creates a password account and logs it in
func (s *authService) Register(ctx context.Context, req models.RegisterRequest) (*models.LoginResult, error) {
	user, err := s.users.Register(ctx, req.Email, req.Password, req.DisplayName)
	if err != nil {
		return nil, err
	}

	result, err := s.sign(user, models.MethodRegister)
	if err != nil {
		return nil, err
	}
	result.Created = true
	metrics.SessionIssued(models.MethodRegister)
	return result, nil
}

// Logout revokes the session. A nil session is a no-op.
func (s *authService) Logout(ctx context.Context, sess *session.Session) error {
	if sess == nil {
		return nil
	}
	if err := s.sessions.Revoke(ctx, sess); err != nil {
		// the cookie is still cleared; the token lives until it expires
		s.logger.Warn("session revocation failed", zap.String("user_id", sess.UserID), zap.Error(err))
	}
	return nil
}

// DeleteAccount removes the session's user and revokes the session
func (s *authService) DeleteAccount(ctx context.Context, sess *session.Session) error {
	if sess == nil {
		return apperror.New(apperror.CodeUnauthorized, "authentication required")
	}
	id, err := uuid.Parse(sess.UserID)
	if err != nil {
		return apperror.New(apperror.CodeUnauthorized, "authentication required")
	}

	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("account deleted", zap.String("user_id", sess.UserID))
	return s.Logout(ctx, sess)
}
