package testutils

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockLockStore satisfies refresh.LockStore.
type MockLockStore struct {
	mock.Mock
}

func (m *MockLockStore) TryAcquire(ctx context.Context, key string, grace time.Duration) (bool, error) {
	args := m.Called(ctx, key, grace)
	return args.Bool(0), args.Error(1)
}

func (m *MockLockStore) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
