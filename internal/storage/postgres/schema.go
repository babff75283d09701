package postgres

import "context"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		address TEXT PRIMARY KEY,
		total_volume DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_transactions BIGINT NOT NULL DEFAULT 0,
		last_balance DOUBLE PRECISION NOT NULL DEFAULT 0,
		first_seen TIMESTAMPTZ NOT NULL,
		last_active TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		tx_hash TEXT PRIMARY KEY,
		block_number BIGINT NOT NULL,
		block_timestamp TIMESTAMPTZ NOT NULL,
		from_address TEXT NOT NULL,
		to_address TEXT NOT NULL,
		amount DOUBLE PRECISION NOT NULL,
		gas_used BIGINT NOT NULL DEFAULT 0,
		gas_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		is_error BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_block_timestamp ON transactions (block_timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_from_address ON transactions (from_address)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_to_address ON transactions (to_address)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_total_volume ON accounts (total_volume DESC)`,
}

// migrate applies the idempotent bootstrap DDL.
func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
