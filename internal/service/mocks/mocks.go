package mocks

import (
	"context"
	"time"

	"referral_rewards/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) CreateAccount(ctx context.Context, a *model.Account, referralCode *string, reward int64) error {
	args := m.Called(ctx, a, referralCode, reward)
	return args.Error(0)
}

func (m *MockAccountRepository) GetAccountByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *MockAccountRepository) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *MockAccountRepository) ListAccounts(ctx context.Context) ([]*model.Account, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Account), args.Error(1)
}

type MockReferralRepository struct {
	mock.Mock
}

func (m *MockReferralRepository) CreateAccount(ctx context.Context, a *model.Account, referralCode *string, reward int64) error {
	args := m.Called(ctx, a, referralCode, reward)
	return args.Error(0)
}

func (m *MockReferralRepository) GetAccountByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *MockReferralRepository) SetReferralLink(ctx context.Context, id uuid.UUID, code string, expiry time.Time) error {
	args := m.Called(ctx, id, code, expiry)
	return args.Error(0)
}

func (m *MockReferralRepository) ClearReferralLink(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockReferralRepository) ClearReferralLinkByUsername(ctx context.Context, username string) error {
	args := m.Called(ctx, username)
	return args.Error(0)
}

type MockBalanceRepository struct {
	mock.Mock
}

func (m *MockBalanceRepository) AddBalance(ctx context.Context, username string, amount int64) (int64, error) {
	args := m.Called(ctx, username, amount)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBalanceRepository) SetBalance(ctx context.Context, id uuid.UUID, balance int64) error {
	args := m.Called(ctx, id, balance)
	return args.Error(0)
}

func (m *MockBalanceRepository) GetBalance(ctx context.Context, id uuid.UUID) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}
