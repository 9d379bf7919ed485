package service_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"healthtrack-backend/internal/apps/otp/models"
	"healthtrack-backend/internal/apps/otp/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// memoryOTPRepo is a serialized in-memory PhoneOTPRepository. A transaction
// holds the mutex for its whole duration and restores a snapshot on error.
type memoryOTPRepo struct {
	mu        sync.Mutex
	rows      []models.PhoneOTP
	lockErr   error
	createErr error
}

var _ repository.PhoneOTPRepository = (*memoryOTPRepo)(nil)

func (m *memoryOTPRepo) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := append([]models.PhoneOTP(nil), m.rows...)
	err := fn(ctx)
	if err != nil {
		m.rows = snapshot
	}
	return err
}

func (m *memoryOTPRepo) LockPhone(context.Context, string) error {
	return m.lockErr
}

func (m *memoryOTPRepo) latest(phone string, keep func(models.PhoneOTP) bool) *models.PhoneOTP {
	idx := -1
	for i, row := range m.rows {
		if row.Phone != phone || !keep(row) {
			continue
		}
		if idx == -1 || !row.CreatedAt.Before(m.rows[idx].CreatedAt) {
			idx = i
		}
	}
	if idx == -1 {
		return nil
	}
	row := m.rows[idx]
	return &row
}

func (m *memoryOTPRepo) FindLatest(_ context.Context, phone string) (*models.PhoneOTP, error) {
	row := m.latest(phone, func(models.PhoneOTP) bool { return true })
	if row == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return row, nil
}

func (m *memoryOTPRepo) FindLatestActive(_ context.Context, phone string, now time.Time) (*models.PhoneOTP, error) {
	return m.latest(phone, func(row models.PhoneOTP) bool {
		return row.ConsumedAt == nil && row.ExpiresAt.After(now)
	}), nil
}

func (m *memoryOTPRepo) ExpireActive(_ context.Context, phone string, now time.Time) error {
	for i := range m.rows {
		row := &m.rows[i]
		if row.Phone == phone && row.ConsumedAt == nil && row.ExpiresAt.After(now) {
			row.ExpiresAt = now
			row.UpdatedAt = now
		}
	}
	return nil
}

func (m *memoryOTPRepo) Create(_ context.Context, otp *models.PhoneOTP) error {
	if m.createErr != nil {
		return m.createErr
	}
	if otp.ID == uuid.Nil {
		otp.ID = uuid.New()
	}
	m.rows = append(m.rows, *otp)
	return nil
}

func (m *memoryOTPRepo) IncrementAttempts(_ context.Context, id uuid.UUID) error {
	for i := range m.rows {
		if m.rows[i].ID == id {
			m.rows[i].Attempts++
		}
	}
	return nil
}

func (m *memoryOTPRepo) MarkConsumed(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	for i := range m.rows {
		if m.rows[i].ID == id && m.rows[i].ConsumedAt == nil {
			consumed := now
			m.rows[i].ConsumedAt = &consumed
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryOTPRepo) DeleteStale(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.rows[:0]
	var deleted int64
	for _, row := range m.rows {
		stale := row.ExpiresAt.Before(before) || (row.ConsumedAt != nil && row.ConsumedAt.Before(before))
		if stale {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	m.rows = kept
	return deleted, nil
}

// all returns a copy of the rows for assertions, newest first
func (m *memoryOTPRepo) all() []models.PhoneOTP {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := append([]models.PhoneOTP(nil), m.rows...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	return rows
}
