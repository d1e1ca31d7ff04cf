package service

import (
	"context"
	"errors"
	"fmt"

	"referral_rewards/internal/repository"

	"github.com/google/uuid"
)

type BalanceService struct {
	repo BalanceRepository
}

func NewBalanceService(repo BalanceRepository) *BalanceService {
	return &BalanceService{
		repo: repo,
	}
}

// Credit adds amount to the account's balance and returns the new value.
// Negative amounts are allowed and the balance may go below zero.
func (s *BalanceService) Credit(ctx context.Context, username string, amount int64) (int64, error) {
	balance, err := s.repo.AddBalance(ctx, username, amount)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("failed to add balance: %w", err)
	}
	return balance, nil
}

// Overwrite replaces the balance with the given value, no bounds check.
func (s *BalanceService) Overwrite(ctx context.Context, accountID uuid.UUID, balance int64) error {
	err := s.repo.SetBalance(ctx, accountID, balance)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("failed to overwrite balance: %w", err)
	}
	return nil
}

func (s *BalanceService) Get(ctx context.Context, accountID uuid.UUID) (int64, error) {
	balance, err := s.repo.GetBalance(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}
