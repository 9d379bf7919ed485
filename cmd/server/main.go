package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	authhandler "healthtrack-backend/internal/apps/auth/handler"
	authservice "healthtrack-backend/internal/apps/auth/service"
	otphandler "healthtrack-backend/internal/apps/otp/handler"
	otprepository "healthtrack-backend/internal/apps/otp/repository"
	otpservice "healthtrack-backend/internal/apps/otp/service"
	userhandler "healthtrack-backend/internal/apps/user/handler"
	userrepository "healthtrack-backend/internal/apps/user/repository"
	userservice "healthtrack-backend/internal/apps/user/service"
	"healthtrack-backend/internal/common/apperror"
	"healthtrack-backend/internal/common/cache"
	"healthtrack-backend/internal/common/config"
	"healthtrack-backend/internal/common/database"
	"healthtrack-backend/internal/common/logger"
	"healthtrack-backend/internal/common/metrics"
	"healthtrack-backend/internal/common/middleware"
	"healthtrack-backend/internal/common/response"
	"healthtrack-backend/internal/common/telemetry"
	"healthtrack-backend/pkg/session"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.IsProduction())
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
	zl.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, zl *zap.Logger) error {
	tracing, err := telemetry.New(ctx, cfg.ServiceName, cfg.TelemetryEndpoint, cfg.TelemetryInsecure, zl)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.Shutdown(shutdownCtx)
	}()

	// Connect to database
	db, err := database.NewConnection(cfg.DatabaseSettings())
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = database.Close(db) }()

	// Redis backs the hourly OTP quota and session revocation when configured
	redisClient, err := cache.NewClient(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	} else {
		zl.Warn("REDIS_ADDR not set, OTP hourly quota and session revocation are disabled")
	}

	sessions, err := newSessionManager(cfg, redisClient)
	if err != nil {
		return err
	}

	// Initialize OTP dependencies
	otpRepo := otprepository.NewPhoneOTPRepository(db)
	otpOpts := []otpservice.Option{}
	if redisClient != nil {
		otpOpts = append(otpOpts, otpservice.WithQuota(otpservice.NewRedisQuota(redisClient, cfg.OTP.HourlyQuota, time.Hour)))
	}
	phoneOTPService := otpservice.NewPhoneOTPService(otpRepo, newSMSSender(cfg, zl), otpservice.Config{
		TTL:            cfg.OTP.TTL,
		ResendInterval: cfg.OTP.ResendInterval,
		CodeLength:     cfg.OTP.CodeLength,
		MaxAttempts:    cfg.OTP.MaxAttempts,
		CleanupGrace:   cfg.OTP.CleanupGrace,
	}, zl, otpOpts...)
	phoneOTPHandler := otphandler.NewPhoneOTPHandler(phoneOTPService, zl, cfg.OTP.ExposeCode)

	// Initialize User dependencies
	userRepo := userrepository.NewUserRepository(db)
	userService := userservice.NewUserService(userRepo, zl)
	userHandler := userhandler.NewUserHandler(userService, zl)

	// Initialize Auth dependencies
	authService := authservice.NewAuthService(phoneOTPService, userService, sessions, zl)
	authHandler := authhandler.NewAuthHandler(authService, sessions, zl)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(
		gin.Recovery(),
		middleware.RequestLogger(zl),
		middleware.SetupCORS(cfg.AllowedOrigins()),
	)

	// Health check endpoint
	router.GET("/health", healthHandler(db, zl))
	router.GET("/metrics", metrics.Handler())

	// API v1 routes
	v1 := router.Group("/api/v1",
		middleware.NewRateLimiter(cfg.RateLimitRPM).Handler(),
		middleware.Timeout(cfg.RequestTimeout),
	)
	{
		otphandler.RegisterOTPRoutes(v1, phoneOTPHandler, middleware.NewRateLimiter(cfg.OTP.RequestRPM,
			middleware.WithKeyFunc(middleware.PhoneKey),
			middleware.WithMessage("too many code requests for this phone, slow down"),
		).Handler())
		authhandler.RegisterAuthRoutes(v1, authHandler, sessions)
		userhandler.RegisterUserRoutes(v1, userHandler, middleware.RequireSession(sessions))
	}

	zl.Info("server starting", zap.String("port", cfg.Port), zap.String("env", cfg.GoEnv))
	return serve(ctx, router, ":"+cfg.Port)
}

func newSessionManager(cfg config.Config, redisClient redis.UniversalClient) (*session.Manager, error) {
	var opts []session.Option
	if redisClient != nil {
		opts = append(opts, session.WithRevoker(session.NewRedisRevoker(redisClient)))
	}
	return session.NewManager(session.Config{
		Secret:     cfg.Session.Secret,
		CookieName: cfg.Session.CookieName,
		TTL:        cfg.Session.TTL,
		Issuer:     cfg.Session.Issuer,
		Secure:     cfg.IsProduction(),
		SameSite:   http.SameSiteLaxMode,
	}, opts...)
}

func newSMSSender(cfg config.Config, zl *zap.Logger) otpservice.SMSSender {
	if cfg.SMS.Provider == "http" {
		return otpservice.NewHTTPGatewaySender(cfg.SMS.GatewayURL, cfg.SMS.APIKey, cfg.SMS.BrandName, cfg.SMS.Timeout, zl)
	}
	return otpservice.NewNoOpSender(zl)
}

// healthHandler handles GET /health
func healthHandler(db *gorm.DB, zl *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := database.Ping(ctx, db); err != nil {
			response.Error(c, zl, apperror.Wrap(apperror.CodeDBUnavailable, "database unreachable", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Server is running",
		})
	}
}

// serve runs the HTTP server until ctx is done, then shuts it down gracefully
func serve(ctx context.Context, handler http.Handler, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
