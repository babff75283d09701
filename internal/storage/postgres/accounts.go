package postgres

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"transferscope/internal/model"
)

const accountColumns = `address, total_volume, total_transactions, last_balance, first_seen, last_active`

// GetAccount returns the account for an address, or nil if absent.
func (s *Store) GetAccount(ctx context.Context, address string) (*model.Account, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE address = $1`, address)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

// GetOrCreateAccount fetches an account, inserting it with zeroed stats when
// create is true. Concurrent creation is safe: the insert is a no-op on
// conflict and the row is re-read.
func (s *Store) GetOrCreateAccount(ctx context.Context, address string, create bool, at time.Time) (*model.Account, error) {
	account, err := s.GetAccount(ctx, address)
	if err != nil || account != nil {
		return account, err
	}
	if !create {
		return nil, nil
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO accounts (address, total_volume, total_transactions, last_balance, first_seen, last_active)
		VALUES ($1, 0, 0, 0, $2, $2)
		ON CONFLICT (address) DO NOTHING
	`, address, at)
	if err != nil {
		return nil, err
	}
	return s.GetAccount(ctx, address)
}

// UpdateAccountStats applies one transfer to an existing account's
// aggregates. Missing accounts are a warned no-op, not an error.
func (s *Store) UpdateAccountStats(ctx context.Context, address string, amount float64, receiving bool, at time.Time) error {
	delta := amount
	if !receiving {
		delta = -amount
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts SET
			total_transactions = total_transactions + 1,
			total_volume = total_volume + $2,
			last_balance = last_balance + $3,
			last_active = $4
		WHERE address = $1
	`, address, math.Abs(amount), delta, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		s.logger.Warn("stats update for non-existent account skipped", zap.String("address", address))
	}
	return nil
}

// TopAccounts lists the top-N accounts by cumulative volume. Failures are
// logged and surfaced as an empty result; this is a read path.
func (s *Store) TopAccounts(ctx context.Context, limit int) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+accountColumns+` FROM accounts
		ORDER BY total_volume DESC
		LIMIT $1
	`, limit)
	if err != nil {
		s.logger.Warn("top accounts query failed", zap.Error(err))
		return []model.Account{}, nil
	}
	defer rows.Close()

	accounts := make([]model.Account, 0, limit)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			s.logger.Warn("top accounts scan failed", zap.Error(err))
			return []model.Account{}, nil
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("top accounts rows failed", zap.Error(err))
		return []model.Account{}, nil
	}
	return accounts, nil
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var account model.Account
	err := row.Scan(
		&account.Address,
		&account.TotalVolume,
		&account.TotalTransactions,
		&account.LastBalance,
		&account.FirstSeen,
		&account.LastActive,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}
