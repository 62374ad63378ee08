package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"tabflow/internal/domain"
)

// MockSavedMappingRepo is a mock implementation of port.SavedMappingRepository.
type MockSavedMappingRepo struct {
	mock.Mock
}

func (m *MockSavedMappingRepo) Get(ctx context.Context, namespace, sheetSlug string) (*domain.SavedMapping, error) {
	args := m.Called(ctx, namespace, sheetSlug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SavedMapping), args.Error(1)
}

func (m *MockSavedMappingRepo) Upsert(ctx context.Context, sm *domain.SavedMapping) error {
	args := m.Called(ctx, sm)
	return args.Error(0)
}

func (m *MockSavedMappingRepo) Delete(ctx context.Context, namespace, sheetSlug string) error {
	args := m.Called(ctx, namespace, sheetSlug)
	return args.Error(0)
}
