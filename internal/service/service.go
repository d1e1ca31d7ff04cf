package service

import (
	"context"
	"errors"
	"time"

	"referral_rewards/internal/model"

	"github.com/google/uuid"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrLinkInactive       = errors.New("referral link is no longer valid")
	ErrInvalidCredentials = errors.New("invalid password")
)

type Service struct {
	*AccountService
	*ReferralService
	*BalanceService
}

func NewService(accountService *AccountService, referralService *ReferralService, balanceService *BalanceService) *Service {
	return &Service{
		AccountService:  accountService,
		ReferralService: referralService,
		BalanceService:  balanceService,
	}
}

type AccountServiceI interface {
	Register(ctx context.Context, username, password string) (*model.Account, error)
	Login(ctx context.Context, username, password string) (*model.Account, error)
	GetAccountByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]*model.Account, error)
}

type ReferralServiceI interface {
	RegisterWithReferral(ctx context.Context, username, password, code string) (*model.Account, error)
	IssueLink(ctx context.Context, accountID uuid.UUID) (string, error)
	Expire(ctx context.Context, username string) error
	ExpireAdmin(ctx context.Context, accountID uuid.UUID) error
}

type BalanceServiceI interface {
	Credit(ctx context.Context, username string, amount int64) (int64, error)
	Overwrite(ctx context.Context, accountID uuid.UUID, balance int64) error
	Get(ctx context.Context, accountID uuid.UUID) (int64, error)
}

type AccountRepository interface {
	CreateAccount(ctx context.Context, a *model.Account, referralCode *string, reward int64) error
	GetAccountByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]*model.Account, error)
}

type ReferralRepository interface {
	CreateAccount(ctx context.Context, a *model.Account, referralCode *string, reward int64) error
	GetAccountByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	SetReferralLink(ctx context.Context, id uuid.UUID, code string, expiry time.Time) error
	ClearReferralLink(ctx context.Context, id uuid.UUID) error
	ClearReferralLinkByUsername(ctx context.Context, username string) error
}

type BalanceRepository interface {
	AddBalance(ctx context.Context, username string, amount int64) (int64, error)
	SetBalance(ctx context.Context, id uuid.UUID, balance int64) error
	GetBalance(ctx context.Context, id uuid.UUID) (int64, error)
}
