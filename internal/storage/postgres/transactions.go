package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"transferscope/internal/model"
)

const transactionColumns = `tx_hash, block_number, block_timestamp, from_address, to_address, amount, gas_used, gas_price, is_error`

// InsertTransaction writes one transaction row. Reprocessed batches replay
// the same hashes; the conflict clause makes the write idempotent and the
// returned flag tells the caller whether stats still need applying.
func (s *Store) InsertTransaction(ctx context.Context, tx model.Transaction) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tx_hash) DO NOTHING
	`,
		tx.TxHash,
		int64(tx.BlockNumber),
		tx.BlockTimestamp,
		tx.FromAddress,
		tx.ToAddress,
		tx.Amount,
		int64(tx.GasUsed),
		tx.GasPrice,
		tx.IsError,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// TransactionsByTimeRange lists transactions with block timestamp in
// [start, end), newest first, capped at limit rows.
func (s *Store) TransactionsByTimeRange(ctx context.Context, start, end time.Time, limit int) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE block_timestamp >= $1 AND block_timestamp < $2
		ORDER BY block_timestamp DESC
		LIMIT $3
	`, start, end, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// AccountTransactions lists an account's transactions as sender or
// recipient, newest first, capped at limit rows.
func (s *Store) AccountTransactions(ctx context.Context, address string, limit int) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE from_address = $1 OR to_address = $1
		ORDER BY block_timestamp DESC
		LIMIT $2
	`, address, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// VolumeInRange sums transaction amounts with block timestamp in
// [start, end). Failures are logged and surfaced as zero; this is a read
// path.
func (s *Store) VolumeInRange(ctx context.Context, start, end time.Time) (float64, error) {
	var volume float64
	row := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE block_timestamp >= $1 AND block_timestamp < $2
	`, start, end)
	if err := row.Scan(&volume); err != nil {
		s.logger.Warn("volume query failed", zap.Error(err))
		return 0, nil
	}
	return volume, nil
}

func collectTransactions(rows pgx.Rows) ([]model.Transaction, error) {
	transactions := make([]model.Transaction, 0)
	for rows.Next() {
		var tx model.Transaction
		var blockNumber, gasUsed int64
		err := rows.Scan(
			&tx.TxHash,
			&blockNumber,
			&tx.BlockTimestamp,
			&tx.FromAddress,
			&tx.ToAddress,
			&tx.Amount,
			&gasUsed,
			&tx.GasPrice,
			&tx.IsError,
		)
		if err != nil {
			return nil, err
		}
		tx.BlockNumber = uint64(blockNumber)
		tx.GasUsed = uint64(gasUsed)
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transactions, nil
}
