package storage

import (
	"context"
	"time"

	"transferscope/internal/model"
)

// Ledger is the relational repository for accounts and transactions. It is
// the ground truth: every cached aggregate must be reconstructible from it.
//
// Write operations propagate failures. Reads that legitimately find nothing
// return empty results, never an error.
type Ledger interface {
	// GetAccount returns the account for an address, or nil if absent.
	GetAccount(ctx context.Context, address string) (*model.Account, error)

	// GetOrCreateAccount fetches an account, creating it with zeroed stats
	// when create is true and it does not exist. With create false an
	// absent account yields (nil, nil).
	GetOrCreateAccount(ctx context.Context, address string, create bool, at time.Time) (*model.Account, error)

	// UpdateAccountStats applies one transfer to an existing account:
	// count+1, volume += |amount|, balance += amount (receiving) or
	// -= amount (sending), last_active = at. A missing account is a warned
	// no-op.
	UpdateAccountStats(ctx context.Context, address string, amount float64, receiving bool, at time.Time) error

	// InsertTransaction writes one immutable transaction row. Returns false
	// when the row already existed (duplicate tx hash from a reprocessed
	// batch), in which case nothing was written.
	InsertTransaction(ctx context.Context, tx model.Transaction) (bool, error)

	// TopAccounts lists the top-N accounts by cumulative volume descending.
	TopAccounts(ctx context.Context, limit int) ([]model.Account, error)

	// TransactionsByTimeRange lists transactions with block timestamp in
	// [start, end), newest first, capped at limit rows.
	TransactionsByTimeRange(ctx context.Context, start, end time.Time, limit int) ([]model.Transaction, error)

	// AccountTransactions lists an account's transactions as sender or
	// recipient, newest first, capped at limit rows.
	AccountTransactions(ctx context.Context, address string, limit int) ([]model.Transaction, error)

	// VolumeInRange sums transaction amounts with block timestamp in
	// [start, end).
	VolumeInRange(ctx context.Context, start, end time.Time) (float64, error)
}
