package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"referral_rewards/internal/model"
	"referral_rewards/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type AccountService struct {
	repo AccountRepository
}

func NewAccountService(repo AccountRepository) *AccountService {
	return &AccountService{
		repo: repo,
	}
}

func (s *AccountService) Register(ctx context.Context, username, password string) (*model.Account, error) {
	account, err := newAccount(username, password)
	if err != nil {
		return nil, err
	}

	err = s.repo.CreateAccount(ctx, account, nil, 0)
	if err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	return account, nil
}

func (s *AccountService) Login(ctx context.Context, username, password string) (*model.Account, error) {
	account, err := s.repo.GetAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return account, nil
}

func (s *AccountService) GetAccountByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	account, err := s.repo.GetAccountByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by id: %w", err)
	}
	return account, nil
}

func (s *AccountService) ListAccounts(ctx context.Context) ([]*model.Account, error) {
	accounts, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// newAccount builds a fresh user-role account with a random id. The id is
// assigned here, not derived from existing records, so concurrent inserts
// cannot collide.
func newAccount(username, password string) (*model.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	return &model.Account{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		Balance:      0,
		Role:         model.RoleUser,
		CreatedAt:    time.Now().UTC(),
	}, nil
}
