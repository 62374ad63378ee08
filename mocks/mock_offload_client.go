package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"tabflow/internal/port"
)

// MockOffloadClient is a mock implementation of port.OffloadClient.
type MockOffloadClient struct {
	mock.Mock
}

func (m *MockOffloadClient) StartProcessing(ctx context.Context, req port.OffloadStartRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockOffloadClient) PollResult(ctx context.Context, jobID string) (*port.OffloadPollResult, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.OffloadPollResult), args.Error(1)
}

func (m *MockOffloadClient) WaitForResult(ctx context.Context, jobID string) (*port.OffloadPollResult, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.OffloadPollResult), args.Error(1)
}
