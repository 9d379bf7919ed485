package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"healthtrack-backend/pkg/password"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingPurger struct {
	calls atomic.Int32
	err   error
}

func (p *countingPurger) PurgeStale(context.Context) (int64, error) {
	p.calls.Add(1)
	return 3, p.err
}

func TestRunCleanupOnce(t *testing.T) {
	p := &countingPurger{}
	require.NoError(t, runCleanup(context.Background(), p, 0, zap.NewNop()))
	require.EqualValues(t, 1, p.calls.Load())

	p.err = errors.New("db down")
	require.Error(t, runCleanup(context.Background(), p, 0, zap.NewNop()))
}

func TestRunCleanupLoopStopsOnCancel(t *testing.T) {
	p := &countingPurger{err: errors.New("transient")}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- runCleanup(ctx, p, 10*time.Millisecond, zap.NewNop()) }()

	require.Eventually(t, func() bool { return p.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestHashPassword(t *testing.T) {
	cmd := newHashPasswordCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader("s3cret-pass\n"))
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	hash := strings.TrimSpace(out.String())
	require.True(t, strings.HasPrefix(hash, "$argon2id$"))
	require.True(t, password.Verify("s3cret-pass", hash))
}

func TestHashPasswordRequiresInput(t *testing.T) {
	cmd := newHashPasswordCmd()
	cmd.SetIn(strings.NewReader(""))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	require.Error(t, cmd.Execute())
}
