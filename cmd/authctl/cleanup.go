package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	otprepository "healthtrack-backend/internal/apps/otp/repository"
	otpservice "healthtrack-backend/internal/apps/otp/service"
	"healthtrack-backend/internal/common/config"
	"healthtrack-backend/internal/common/database"
	"healthtrack-backend/internal/common/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// purger is the part of the OTP service the cleanup job needs
type purger interface {
	PurgeStale(ctx context.Context) (int64, error)
}

func newCleanupCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired and consumed phone OTPs",
		Long: `Delete phone OTP rows that expired or were consumed longer than
OTP_CLEANUP_GRACE ago. Runs once by default; with --interval it keeps
running until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadCleanup()
			if err != nil {
				return err
			}
			zl, err := logger.New(cfg.IsProduction())
			if err != nil {
				return err
			}
			defer func() { _ = zl.Sync() }()

			db, err := database.NewConnection(cfg.DatabaseSettings())
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer func() { _ = database.Close(db) }()

			svc := otpservice.NewPhoneOTPService(
				otprepository.NewPhoneOTPRepository(db),
				otpservice.NewNoOpSender(zl),
				otpservice.Config{CleanupGrace: cfg.OTP.CleanupGrace},
				zl,
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCleanup(ctx, svc, interval, zl)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Repeat the cleanup at this interval (0 runs once)")
	return cmd
}

// runCleanup purges once, or on every tick until ctx is done when interval > 0
func runCleanup(ctx context.Context, svc purger, interval time.Duration, zl *zap.Logger) error {
	purge := func() error {
		n, err := svc.PurgeStale(ctx)
		if err != nil {
			return err
		}
		zl.Info("otp cleanup finished", zap.Int64("deleted", n))
		return nil
	}

	if interval <= 0 {
		return purge()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if err := purge(); err != nil {
				// a failed pass is retried on the next tick
				zl.Warn("otp cleanup failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})
	return g.Wait()
}
