package service_test

import (
	"context"
	"testing"
	"time"

	"healthtrack-backend/internal/apps/otp/service"
	"healthtrack-backend/internal/common/apperror"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisQuotaBlocksAfterLimit(t *testing.T) {
	mr, client := newRedis(t)
	quota := service.NewRedisQuota(client, 2, time.Hour)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		wait, err := quota.Take(ctx, "+84912345678")
		require.NoError(t, err)
		require.Zero(t, wait)
	}

	wait, err := quota.Take(ctx, "+84912345678")
	require.NoError(t, err)
	require.Greater(t, wait, time.Duration(0))
	require.LessOrEqual(t, wait, time.Hour)

	wait, err = quota.Take(ctx, "+84987654321")
	require.NoError(t, err)
	require.Zero(t, wait, "quota is tracked per phone")

	mr.FastForward(time.Hour + time.Second)
	wait, err = quota.Take(ctx, "+84912345678")
	require.NoError(t, err)
	require.Zero(t, wait)
}

func TestRedisQuotaDisabledWhenLimitIsZero(t *testing.T) {
	_, client := newRedis(t)
	quota := service.NewRedisQuota(client, 0, time.Hour)

	for i := 0; i < 50; i++ {
		wait, err := quota.Take(context.Background(), "+84912345678")
		require.NoError(t, err)
		require.Zero(t, wait)
	}
}

func TestRedisQuotaReportsStoreFailure(t *testing.T) {
	mr, client := newRedis(t)
	quota := service.NewRedisQuota(client, 2, time.Hour)
	mr.Close()

	_, err := quota.Take(context.Background(), "+84912345678")
	require.Error(t, err)
}

func TestRedisQuotaRefund(t *testing.T) {
	mr, client := newRedis(t)
	quota := service.NewRedisQuota(client, 1, time.Hour)
	ctx := context.Background()

	_, err := quota.Take(ctx, "+84912345678")
	require.NoError(t, err)
	require.NoError(t, quota.Refund(ctx, "+84912345678"))

	wait, err := quota.Take(ctx, "+84912345678")
	require.NoError(t, err)
	require.Zero(t, wait, "a refunded request frees its slot")

	mr.FastForward(time.Hour + time.Second)
	require.NoError(t, quota.Refund(ctx, "+84912345678"))
	require.False(t, mr.Exists("otp:quota:+84912345678"), "refund after expiry leaves no counter behind")
}

func TestRequestOTPCooldownRejectionsDoNotUseQuota(t *testing.T) {
	mr, client := newRedis(t)
	f := newFixture(t, service.WithQuota(service.NewRedisQuota(client, 3, time.Hour)))
	ctx := context.Background()

	_, err := f.svc.RequestOTP(ctx, "0912345678")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		f.clock.Advance(5 * time.Second)
		_, err = f.svc.RequestOTP(ctx, "0912345678")
		require.Equal(t, apperror.CodeRateLimited, apperror.CodeOf(err))
	}

	f.clock.Advance(2 * time.Minute)
	issued, err := f.svc.RequestOTP(ctx, "0912345678")
	require.NoError(t, err)
	require.Equal(t, f.clock.Now().Add(testConfig.ResendInterval), issued.ResendAt)
	require.Len(t, f.sender.sent, 2)
	require.Len(t, f.repo.all(), 2)

	count, err := mr.Get("otp:quota:+84912345678")
	require.NoError(t, err)
	require.Equal(t, "2", count)
}

func TestRequestOTPRefundsQuotaWhenInsertFails(t *testing.T) {
	mr, client := newRedis(t)
	f := newFixture(t, service.WithQuota(service.NewRedisQuota(client, 1, time.Hour)))
	f.repo.createErr = context.DeadlineExceeded
	ctx := context.Background()

	_, err := f.svc.RequestOTP(ctx, "0912345678")
	require.Equal(t, apperror.CodeDBUnavailable, apperror.CodeOf(err))
	require.False(t, mr.Exists("otp:quota:+84912345678"))

	f.repo.createErr = nil
	_, err = f.svc.RequestOTP(ctx, "0912345678")
	require.NoError(t, err)
	require.Len(t, f.repo.all(), 1)
}

func TestRequestOTPRespectsQuota(t *testing.T) {
	_, client := newRedis(t)
	f := newFixture(t, service.WithQuota(service.NewRedisQuota(client, 1, time.Hour)))
	ctx := context.Background()

	_, err := f.svc.RequestOTP(ctx, "0912345678")
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	_, err = f.svc.RequestOTP(ctx, "0912345678")
	require.Error(t, err)
	require.Len(t, f.repo.all(), 1)
}

func TestRequestOTPIgnoresQuotaOutage(t *testing.T) {
	mr, client := newRedis(t)
	f := newFixture(t, service.WithQuota(service.NewRedisQuota(client, 1, time.Hour)))
	mr.Close()

	_, err := f.svc.RequestOTP(context.Background(), "0912345678")
	require.NoError(t, err)
}
