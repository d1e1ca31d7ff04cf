package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"referral_rewards/internal/model"
	"referral_rewards/internal/repository"

	"github.com/google/uuid"
)

// ReferralReward is credited to the referrer's balance per successful
// redemption of their link.
const ReferralReward int64 = 5000

const referralLinkTTL = 10 * 24 * time.Hour

const (
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	codeLength      = 8
	maxCodeAttempts = 3
)

type ReferralService struct {
	repo ReferralRepository
}

func NewReferralService(repo ReferralRepository) *ReferralService {
	return &ReferralService{
		repo: repo,
	}
}

// RegisterWithReferral creates the account and credits the referrer owning
// code in one step. When the code belongs to an exhausted or expired link
// the whole registration fails; when it belongs to nobody the account is
// still created, just without a reward.
func (s *ReferralService) RegisterWithReferral(ctx context.Context, username, password, code string) (*model.Account, error) {
	account, err := newAccount(username, password)
	if err != nil {
		return nil, err
	}

	err = s.repo.CreateAccount(ctx, account, &code, ReferralReward)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUsernameTaken):
			return nil, ErrUsernameTaken
		case errors.Is(err, repository.ErrLinkInactive):
			return nil, ErrLinkInactive
		}
		return nil, fmt.Errorf("failed to register with referral: %w", err)
	}

	return account, nil
}

// IssueLink generates a fresh code for the account and installs it with a
// zeroed redemption counter and a new expiry. Reissue from any prior state
// succeeds. A generated code that collides with another account's link is
// retried a bounded number of times.
func (s *ReferralService) IssueLink(ctx context.Context, accountID uuid.UUID) (string, error) {
	expiry := time.Now().UTC().Add(referralLinkTTL)

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateReferralCode()
		if err != nil {
			return "", fmt.Errorf("failed to generate referral code: %w", err)
		}

		err = s.repo.SetReferralLink(ctx, accountID, code, expiry)
		if err != nil {
			if errors.Is(err, repository.ErrCodeTaken) {
				continue
			}
			if errors.Is(err, repository.ErrNotFound) {
				return "", ErrAccountNotFound
			}
			return "", fmt.Errorf("failed to set referral link: %w", err)
		}

		return code, nil
	}

	return "", fmt.Errorf("failed to find a free referral code after %d attempts", maxCodeAttempts)
}

// Expire voids the link on the named account. The redemption counter and
// usage history are left intact.
func (s *ReferralService) Expire(ctx context.Context, username string) error {
	err := s.repo.ClearReferralLinkByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("failed to expire referral link: %w", err)
	}
	return nil
}

// ExpireAdmin is the same mutation as Expire, reached through the
// admin-only route and addressed by account id.
func (s *ReferralService) ExpireAdmin(ctx context.Context, accountID uuid.UUID) error {
	err := s.repo.ClearReferralLink(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("failed to expire referral link: %w", err)
	}
	return nil
}

func generateReferralCode() (string, error) {
	code := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}
