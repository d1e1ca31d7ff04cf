package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// SetReferralLink installs a fresh code on the account, resetting the
// redemption counter and expiry. Reissue over an existing link always
// succeeds; usage history is untouched.
func (r *Repository) SetReferralLink(ctx context.Context, id uuid.UUID, code string, expiry time.Time) error {
	query, args, err := squirrel.
		Update("accounts").
		Set("referral_link", code).
		Set("referral_count", 0).
		Set("referral_expiry", expiry).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build referral link update query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err, "accounts_referral_link_key") {
			return ErrCodeTaken
		}
		return fmt.Errorf("failed to set referral link: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ClearReferralLink voids the account's current link. The redemption
// counter and history are left as they are; only the link and its expiry
// are dropped.
func (r *Repository) ClearReferralLink(ctx context.Context, id uuid.UUID) error {
	return r.clearReferralLink(ctx, squirrel.Eq{"id": id})
}

func (r *Repository) ClearReferralLinkByUsername(ctx context.Context, username string) error {
	return r.clearReferralLink(ctx, squirrel.Eq{"username": username})
}

func (r *Repository) clearReferralLink(ctx context.Context, where squirrel.Eq) error {
	query, args, err := squirrel.
		Update("accounts").
		Set("referral_link", nil).
		Set("referral_expiry", nil).
		Where(where).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build referral link clear query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to clear referral link: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}
