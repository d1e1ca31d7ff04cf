package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"referral_rewards/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type account struct {
	ID             uuid.UUID  `db:"id"`
	Username       string     `db:"username"`
	PasswordHash   string     `db:"password_hash"`
	Balance        int64      `db:"balance"`
	Role           string     `db:"role"`
	ReferralLink   *string    `db:"referral_link"`
	ReferralCount  int        `db:"referral_count"`
	ReferralExpiry *time.Time `db:"referral_expiry"`
	CreatedAt      time.Time  `db:"created_at"`
}

type referralUsage struct {
	ID           uuid.UUID      `db:"id"`
	AccountID    uuid.UUID      `db:"account_id"`
	ReferralLink string         `db:"referral_link"`
	UsedAt       time.Time      `db:"used_at"`
	RedeemedBy   pq.StringArray `db:"redeemed_by"`
}

// CreateAccount inserts the account and, when referralCode is set, applies
// the referrer reward in the same transaction. An ineligible code rolls the
// whole insert back; a code owned by nobody is ignored and the account is
// created without a reward.
func (r *Repository) CreateAccount(ctx context.Context, a *model.Account, referralCode *string, reward int64) error {
	return r.Transaction(ctx, func(tx *sqlx.Tx) error {
		query, args, err := squirrel.
			Insert("accounts").
			SetMap(map[string]interface{}{
				"id":             a.ID,
				"username":       a.Username,
				"password_hash":  a.PasswordHash,
				"balance":        a.Balance,
				"role":           a.Role,
				"referral_count": 0,
				"created_at":     a.CreatedAt,
			}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build account insert query: %w", err)
		}

		_, err = tx.ExecContext(ctx, query, args...)
		if err != nil {
			if isUniqueViolation(err, "accounts_username_key") {
				return ErrUsernameTaken
			}
			return fmt.Errorf("failed to insert account: %w", err)
		}

		if referralCode != nil {
			if err := redeemReferralTx(ctx, tx, *referralCode, a.Username, reward); err != nil {
				return err
			}
		}

		return nil
	})
}

// redeemReferralTx credits the referrer behind code and records the
// redemption. Eligibility (count below cap, link not expired) and the
// balance/count increments are a single conditional UPDATE, so concurrent
// redemptions against the same code cannot overshoot the cap.
func redeemReferralTx(ctx context.Context, tx *sqlx.Tx, code, redeemer string, reward int64) error {
	query, args, err := squirrel.
		Update("accounts").
		Set("balance", squirrel.Expr("balance + ?", reward)).
		Set("referral_count", squirrel.Expr("referral_count + 1")).
		Where(squirrel.Eq{"referral_link": code}).
		Where(squirrel.Lt{"referral_count": model.ReferralCap}).
		Where(squirrel.Or{
			squirrel.Eq{"referral_expiry": nil},
			squirrel.Expr("referral_expiry > now()"),
		}).
		Suffix("RETURNING id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build redeem query: %w", err)
	}

	var referrerID uuid.UUID
	err = tx.GetContext(ctx, &referrerID, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return classifyFailedRedeem(ctx, tx, code)
		}
		return fmt.Errorf("failed to redeem referral: %w", err)
	}

	historyQuery, historyArgs, err := squirrel.
		Insert("referral_usage_history").
		SetMap(map[string]interface{}{
			"id":            uuid.New(),
			"account_id":    referrerID,
			"referral_link": code,
			"used_at":       time.Now().UTC(),
			"redeemed_by":   pq.StringArray{redeemer},
		}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build usage history insert query: %w", err)
	}

	_, err = tx.ExecContext(ctx, historyQuery, historyArgs...)
	if err != nil {
		return fmt.Errorf("failed to insert usage history: %w", err)
	}

	return nil
}

// classifyFailedRedeem separates a code nobody owns (not an error, the
// registration proceeds without a reward) from a code whose owner is
// exhausted or expired.
func classifyFailedRedeem(ctx context.Context, tx *sqlx.Tx, code string) error {
	query, args, err := squirrel.
		Select("1").
		From("accounts").
		Where(squirrel.Eq{"referral_link": code}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build owner lookup query: %w", err)
	}

	var one int
	err = tx.GetContext(ctx, &one, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("failed to look up code owner: %w", err)
	}

	return ErrLinkInactive
}

func (r *Repository) GetAccountByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	return r.getAccount(ctx, squirrel.Eq{"id": id})
}

func (r *Repository) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	return r.getAccount(ctx, squirrel.Eq{"username": username})
}

func (r *Repository) getAccount(ctx context.Context, where squirrel.Eq) (*model.Account, error) {
	var a account
	query, args, err := squirrel.
		Select("*").
		From("accounts").
		Where(where).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	err = r.db.GetContext(ctx, &a, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	history, err := r.getUsageHistory(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	out := toModel(a)
	out.UsageHistory = history
	return out, nil
}

func (r *Repository) getUsageHistory(ctx context.Context, accountID uuid.UUID) ([]model.ReferralUsage, error) {
	query, args, err := squirrel.
		Select("id", "account_id", "referral_link", "used_at", "redeemed_by").
		From("referral_usage_history").
		Where(squirrel.Eq{"account_id": accountID}).
		OrderBy("used_at ASC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []referralUsage
	err = r.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get usage history: %w", err)
	}

	history := make([]model.ReferralUsage, len(rows))
	for i, row := range rows {
		history[i] = model.ReferralUsage{
			ID:           row.ID,
			AccountID:    row.AccountID,
			ReferralLink: row.ReferralLink,
			UsedAt:       row.UsedAt,
			RedeemedBy:   row.RedeemedBy,
		}
	}

	return history, nil
}

func (r *Repository) ListAccounts(ctx context.Context) ([]*model.Account, error) {
	query, args, err := squirrel.
		Select("*").
		From("accounts").
		OrderBy("created_at ASC").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []account
	err = r.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	accounts := make([]*model.Account, len(rows))
	for i, row := range rows {
		accounts[i] = toModel(row)
	}

	return accounts, nil
}

func toModel(a account) *model.Account {
	return &model.Account{
		ID:             a.ID,
		Username:       a.Username,
		PasswordHash:   a.PasswordHash,
		Balance:        a.Balance,
		Role:           a.Role,
		ReferralLink:   a.ReferralLink,
		ReferralCount:  a.ReferralCount,
		ReferralExpiry: a.ReferralExpiry,
		CreatedAt:      a.CreatedAt,
	}
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}
