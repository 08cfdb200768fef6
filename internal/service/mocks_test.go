package service

import (
	"context"
	"encoding/json"

	"github.com/Rrens/policy-assistant/internal/aiclient"
	"github.com/Rrens/policy-assistant/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockSessionStore mocks the domain.SessionStore interface
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) Create(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockSessionStore) Validate(ctx context.Context, sessionID string) (bool, error) {
	args := m.Called(ctx, sessionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionStore) Touch(ctx context.Context, sessionID string, mutate func(*domain.Session)) (domain.TouchResult, error) {
	args := m.Called(ctx, sessionID, mutate)
	return args.Get(0).(domain.TouchResult), args.Error(1)
}

func (m *MockSessionStore) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionStore) CountActive(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSessionStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockAIService mocks aiclient.Service
type MockAIService struct {
	mock.Mock
}

func (m *MockAIService) Query(ctx context.Context, req aiclient.QueryRequest) (*aiclient.QueryResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*aiclient.QueryResponse), args.Error(1)
}

func (m *MockAIService) BatchQuery(ctx context.Context, req aiclient.BatchQueryRequest) (*aiclient.BatchQueryResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*aiclient.BatchQueryResponse), args.Error(1)
}

func (m *MockAIService) LoadDocuments(ctx context.Context) (json.RawMessage, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *MockAIService) Stats(ctx context.Context) (json.RawMessage, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *MockAIService) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
