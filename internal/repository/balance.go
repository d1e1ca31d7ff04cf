package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// AddBalance atomically adds amount to the account's balance and returns
// the new value. Amount may be negative; no floor is enforced.
func (r *Repository) AddBalance(ctx context.Context, username string, amount int64) (int64, error) {
	query, args, err := squirrel.
		Update("accounts").
		Set("balance", squirrel.Expr("balance + ?", amount)).
		Where(squirrel.Eq{"username": username}).
		Suffix("RETURNING balance").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build balance update query: %w", err)
	}

	var balance int64
	err = r.db.GetContext(ctx, &balance, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to add balance: %w", err)
	}

	return balance, nil
}

// SetBalance overwrites the balance outright. Admin use only; any integer
// is accepted, including negative values.
func (r *Repository) SetBalance(ctx context.Context, id uuid.UUID, balance int64) error {
	query, args, err := squirrel.
		Update("accounts").
		Set("balance", balance).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build balance overwrite query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to overwrite balance: %w", err)
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

func (r *Repository) GetBalance(ctx context.Context, id uuid.UUID) (int64, error) {
	query, args, err := squirrel.
		Select("balance").
		From("accounts").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, err
	}

	var balance int64
	err = r.db.GetContext(ctx, &balance, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}

	return balance, nil
}
