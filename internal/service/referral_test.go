package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"referral_rewards/internal/model"
	"referral_rewards/internal/repository"
	"referral_rewards/internal/service/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestReferralService_IssueLink(t *testing.T) {
	accountID := uuid.New()

	tests := []struct {
		name          string
		mockSetup     func(mockRepo *mocks.MockReferralRepository)
		expectedError error
		checkCode     func(t *testing.T, code string)
	}{
		{
			name: "Success",
			mockSetup: func(mockRepo *mocks.MockReferralRepository) {
				mockRepo.On("SetReferralLink", mock.Anything, accountID,
					mock.MatchedBy(func(code string) bool {
						return len(code) == codeLength
					}),
					mock.MatchedBy(func(expiry time.Time) bool {
						remaining := time.Until(expiry)
						return remaining > referralLinkTTL-time.Minute && remaining <= referralLinkTTL
					})).Return(nil).Once()
			},
			checkCode: func(t *testing.T, code string) {
				assert.Len(t, code, codeLength)
				for _, c := range code {
					assert.True(t, strings.ContainsRune(codeAlphabet, c))
				}
			},
		},
		{
			name: "Account not found",
			mockSetup: func(mockRepo *mocks.MockReferralRepository) {
				mockRepo.On("SetReferralLink", mock.Anything, accountID, mock.Anything, mock.Anything).
					Return(repository.ErrNotFound).Once()
			},
			expectedError: ErrAccountNotFound,
		},
		{
			name: "Retries on code collision",
			mockSetup: func(mockRepo *mocks.MockReferralRepository) {
				mockRepo.On("SetReferralLink", mock.Anything, accountID, mock.Anything, mock.Anything).
					Return(repository.ErrCodeTaken).Once()
				mockRepo.On("SetReferralLink", mock.Anything, accountID, mock.Anything, mock.Anything).
					Return(nil).Once()
			},
		},
		{
			name: "Gives up after repeated collisions",
			mockSetup: func(mockRepo *mocks.MockReferralRepository) {
				mockRepo.On("SetReferralLink", mock.Anything, accountID, mock.Anything, mock.Anything).
					Return(repository.ErrCodeTaken).Times(maxCodeAttempts)
			},
			expectedError: nil, // generic failure, checked below
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := &mocks.MockReferralRepository{}
			tt.mockSetup(mockRepo)
			svc := NewReferralService(mockRepo)

			code, err := svc.IssueLink(context.Background(), accountID)

			switch tt.name {
			case "Gives up after repeated collisions":
				assert.Error(t, err)
			default:
				if tt.expectedError != nil {
					assert.ErrorIs(t, err, tt.expectedError)
				} else {
					assert.NoError(t, err)
				}
			}

			if tt.checkCode != nil && err == nil {
				tt.checkCode(t, code)
			}

			mockRepo.AssertExpectations(t)
		})
	}
}

func TestReferralService_RegisterWithReferral(t *testing.T) {
	tests := []struct {
		name          string
		mockSetup     func(mockRepo *mocks.MockReferralRepository)
		expectedError error
	}{
		{
			name: "Success credits fixed reward",
			mockSetup: func(mockRepo *mocks.MockReferralRepository) {
				mockRepo.On("CreateAccount", mock.Anything,
					mock.MatchedBy(func(a *model.Account) bool {
						return a.Username == "newuser" &&
							a.Role == model.RoleUser &&
							a.Balance == 0 &&
							a.ID != uuid.Nil &&
							bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte("secret123")) == nil
					}),
					mock.MatchedBy(func(code *string) bool {
						return code != nil && *code == "CODE1234"
					}),
					ReferralReward).Return(nil)
			},
		},
		{
			name: "Ineligible link fails the whole registration",
			mockSetup: func(mockRepo *mocks.MockReferralRepository) {
				mockRepo.On("CreateAccount", mock.Anything, mock.Anything, mock.Anything, ReferralReward).
					Return(repository.ErrLinkInactive)
			},
			expectedError: ErrLinkInactive,
		},
		{
			name: "Username taken",
			mockSetup: func(mockRepo *mocks.MockReferralRepository) {
				mockRepo.On("CreateAccount", mock.Anything, mock.Anything, mock.Anything, ReferralReward).
					Return(repository.ErrUsernameTaken)
			},
			expectedError: ErrUsernameTaken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := &mocks.MockReferralRepository{}
			tt.mockSetup(mockRepo)
			svc := NewReferralService(mockRepo)

			account, err := svc.RegisterWithReferral(context.Background(), "newuser", "secret123", "CODE1234")

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, account)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, account)
			}

			mockRepo.AssertExpectations(t)
		})
	}
}

func TestReferralService_Expire(t *testing.T) {
	mockRepo := &mocks.MockReferralRepository{}
	svc := NewReferralService(mockRepo)

	mockRepo.On("ClearReferralLinkByUsername", mock.Anything, "alice").Return(nil).Once()
	assert.NoError(t, svc.Expire(context.Background(), "alice"))

	mockRepo.On("ClearReferralLinkByUsername", mock.Anything, "ghost").
		Return(repository.ErrNotFound).Once()
	assert.ErrorIs(t, svc.Expire(context.Background(), "ghost"), ErrAccountNotFound)

	mockRepo.AssertExpectations(t)
}

func TestReferralService_ExpireAdmin(t *testing.T) {
	mockRepo := &mocks.MockReferralRepository{}
	svc := NewReferralService(mockRepo)

	id := uuid.New()
	mockRepo.On("ClearReferralLink", mock.Anything, id).Return(nil).Once()
	assert.NoError(t, svc.ExpireAdmin(context.Background(), id))

	missing := uuid.New()
	mockRepo.On("ClearReferralLink", mock.Anything, missing).
		Return(repository.ErrNotFound).Once()
	assert.ErrorIs(t, svc.ExpireAdmin(context.Background(), missing), ErrAccountNotFound)

	mockRepo.AssertExpectations(t)
}

func TestGenerateReferralCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := generateReferralCode()
		require.NoError(t, err)
		require.Len(t, code, codeLength)
		for _, c := range code {
			require.True(t, strings.ContainsRune(codeAlphabet, c))
		}
		seen[code] = true
	}
	// 100 draws from 62^8 should never collide.
	assert.Len(t, seen, 100)
}

// fakeReferralStore mirrors the storage layer's conditional-update
// semantics behind a mutex so the redemption cap can be exercised under
// real goroutine concurrency.
type fakeReferralStore struct {
	mu sync.Mutex

	referrer *model.Account
	accounts map[string]bool
	history  []model.ReferralUsage
}

func newFakeReferralStore(referrer *model.Account) *fakeReferralStore {
	return &fakeReferralStore{
		referrer: referrer,
		accounts: map[string]bool{referrer.Username: true},
	}
}

func (f *fakeReferralStore) CreateAccount(ctx context.Context, a *model.Account, referralCode *string, reward int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.accounts[a.Username] {
		return repository.ErrUsernameTaken
	}

	if referralCode != nil {
		owned := f.referrer.ReferralLink != nil && *f.referrer.ReferralLink == *referralCode
		if owned {
			eligible := f.referrer.ReferralCount < model.ReferralCap &&
				(f.referrer.ReferralExpiry == nil || f.referrer.ReferralExpiry.After(time.Now()))
			if !eligible {
				return repository.ErrLinkInactive
			}
			f.referrer.Balance += reward
			f.referrer.ReferralCount++
			f.history = append(f.history, model.ReferralUsage{
				AccountID:    f.referrer.ID,
				ReferralLink: *referralCode,
				UsedAt:       time.Now(),
				RedeemedBy:   []string{a.Username},
			})
		}
	}

	f.accounts[a.Username] = true
	return nil
}

func (f *fakeReferralStore) GetAccountByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeReferralStore) SetReferralLink(ctx context.Context, id uuid.UUID, code string, expiry time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.referrer.ReferralLink = &code
	f.referrer.ReferralCount = 0
	f.referrer.ReferralExpiry = &expiry
	return nil
}

func (f *fakeReferralStore) ClearReferralLink(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.referrer.ReferralLink = nil
	f.referrer.ReferralExpiry = nil
	return nil
}

func (f *fakeReferralStore) ClearReferralLinkByUsername(ctx context.Context, username string) error {
	return f.ClearReferralLink(ctx, uuid.Nil)
}

func TestReferralService_ConcurrentRedemptions(t *testing.T) {
	code := "BURSTC0D"
	expiry := time.Now().Add(referralLinkTTL)
	referrer := &model.Account{
		ID:             uuid.New(),
		Username:       "referrer",
		Balance:        100,
		Role:           model.RoleUser,
		ReferralLink:   &code,
		ReferralCount:  0,
		ReferralExpiry: &expiry,
	}

	store := newFakeReferralStore(referrer)
	svc := NewReferralService(store)

	const redeemers = 20

	var wg sync.WaitGroup
	results := make(chan error, redeemers)
	for i := 0; i < redeemers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			username := "redeemer_" + string(rune('a'+n%26)) + string(rune('a'+n/26))
			_, err := svc.RegisterWithReferral(context.Background(), username, "secret123", code)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var succeeded, rejected int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrLinkInactive):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, model.ReferralCap, succeeded)
	assert.Equal(t, redeemers-model.ReferralCap, rejected)
	assert.Equal(t, model.ReferralCap, referrer.ReferralCount)
	assert.Equal(t, int64(100)+int64(model.ReferralCap)*ReferralReward, referrer.Balance)
	assert.Len(t, store.history, model.ReferralCap)
}

func TestReferralService_ReissueKeepsHistory(t *testing.T) {
	code := "FIRSTC0D"
	expiry := time.Now().Add(referralLinkTTL)
	referrer := &model.Account{
		ID:             uuid.New(),
		Username:       "referrer",
		ReferralLink:   &code,
		ReferralExpiry: &expiry,
	}

	store := newFakeReferralStore(referrer)
	svc := NewReferralService(store)

	for i := 0; i < 3; i++ {
		username := "friend_" + string(rune('a'+i))
		_, err := svc.RegisterWithReferral(context.Background(), username, "secret123", code)
		require.NoError(t, err)
	}
	require.Len(t, store.history, 3)
	require.Equal(t, 3, referrer.ReferralCount)

	_, err := svc.IssueLink(context.Background(), referrer.ID)
	require.NoError(t, err)
	_, err = svc.IssueLink(context.Background(), referrer.ID)
	require.NoError(t, err)

	assert.Len(t, store.history, 3)
	assert.Equal(t, 0, referrer.ReferralCount)
	assert.NotEqual(t, code, *referrer.ReferralLink)
}

func TestReferralService_ExpiredLinkRejectsEvenWhenUnused(t *testing.T) {
	code := "OLDC0DE1"
	past := time.Now().Add(-time.Hour)
	referrer := &model.Account{
		ID:             uuid.New(),
		Username:       "referrer",
		ReferralLink:   &code,
		ReferralCount:  0,
		ReferralExpiry: &past,
	}

	store := newFakeReferralStore(referrer)
	svc := NewReferralService(store)

	_, err := svc.RegisterWithReferral(context.Background(), "latecomer", "secret123", code)
	assert.ErrorIs(t, err, ErrLinkInactive)
	assert.Equal(t, 0, referrer.ReferralCount)
	assert.Equal(t, int64(0), referrer.Balance)
	assert.Empty(t, store.history)
}

func TestReferralService_ClearedLinkGrantsNoReward(t *testing.T) {
	code := "G0NEC0DE"
	expiry := time.Now().Add(referralLinkTTL)
	referrer := &model.Account{
		ID:             uuid.New(),
		Username:       "referrer",
		ReferralLink:   &code,
		ReferralExpiry: &expiry,
	}

	store := newFakeReferralStore(referrer)
	svc := NewReferralService(store)

	require.NoError(t, svc.ExpireAdmin(context.Background(), referrer.ID))

	// The old code no longer belongs to anyone, so a registration citing
	// it goes through without crediting the former owner.
	_, err := svc.RegisterWithReferral(context.Background(), "straggler", "secret123", code)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), referrer.Balance)
	assert.Equal(t, 0, referrer.ReferralCount)
	assert.Empty(t, store.history)
}

func TestReferralService_OrphanCodeRegistersWithoutReward(t *testing.T) {
	code := "REALC0DE"
	expiry := time.Now().Add(referralLinkTTL)
	referrer := &model.Account{
		ID:             uuid.New(),
		Username:       "referrer",
		ReferralLink:   &code,
		ReferralExpiry: &expiry,
	}

	store := newFakeReferralStore(referrer)
	svc := NewReferralService(store)

	account, err := svc.RegisterWithReferral(context.Background(), "wanderer", "secret123", "N0TAC0DE")
	assert.NoError(t, err)
	assert.NotNil(t, account)
	assert.True(t, store.accounts["wanderer"])
	assert.Equal(t, int64(0), referrer.Balance)
	assert.Equal(t, 0, referrer.ReferralCount)
	assert.Empty(t, store.history)
}
