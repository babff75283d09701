package aggregate

import (
	"context"
	"errors"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"transferscope/internal/cache"
	"transferscope/internal/model"
	"transferscope/internal/storage"
)

// ErrUnknownTimeframe rejects distribution requests outside the
// configuration table.
var ErrUnknownTimeframe = errors.New("unknown timeframe")

const topAccountsLimit = 10

// Engine recomputes derived statistics from the ledger and refreshes the
// cache. Cached values are accelerators only: a miss or expiry falls
// through to the ledger, never to an error.
type Engine struct {
	ledger storage.Ledger
	cache  *cache.Store
	pool   pond.Pool
	logger *zap.Logger
}

func NewEngine(ledger storage.Ledger, cacheStore *cache.Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		ledger: ledger,
		cache:  cacheStore,
		pool:   pond.NewPool(8),
		logger: logger,
	}
}

// RefreshSnapshots recomputes the trailing-24h volume and top-accounts
// snapshots. The scheduler invokes it after each successful cycle.
func (e *Engine) RefreshSnapshots(ctx context.Context) error {
	now := time.Now().UTC()
	volume, err := e.ledger.VolumeInRange(ctx, now.Add(-24*time.Hour), now)
	if err != nil {
		return err
	}
	e.cache.SetVolume24h(ctx, volume)

	accounts, err := e.ledger.TopAccounts(ctx, topAccountsLimit)
	if err != nil {
		return err
	}
	e.cache.SetTopAccounts(ctx, accounts)
	return nil
}

// Volume24h serves the cached snapshot, recomputing on miss.
func (e *Engine) Volume24h(ctx context.Context) float64 {
	if volume, ok := e.cache.Volume24h(ctx); ok {
		return volume
	}
	now := time.Now().UTC()
	volume, err := e.ledger.VolumeInRange(ctx, now.Add(-24*time.Hour), now)
	if err != nil {
		e.logger.Warn("24h volume recompute failed", zap.Error(err))
		return 0
	}
	e.cache.SetVolume24h(ctx, volume)
	return volume
}

// TopAccounts serves the cached snapshot, recomputing on miss.
func (e *Engine) TopAccounts(ctx context.Context) []model.Account {
	if accounts, ok := e.cache.TopAccounts(ctx); ok {
		return accounts
	}
	accounts, err := e.ledger.TopAccounts(ctx, topAccountsLimit)
	if err != nil {
		e.logger.Warn("top accounts recompute failed", zap.Error(err))
		return []model.Account{}
	}
	e.cache.SetTopAccounts(ctx, accounts)
	return accounts
}

// Overview assembles the stats overview. The three reads are independent
// and mutate nothing, so they fan out concurrently.
func (e *Engine) Overview(ctx context.Context) model.Overview {
	var (
		volume float64
		top    []model.Account
		cursor uint64
	)

	group := e.pool.NewGroup()
	group.Submit(func() { volume = e.Volume24h(ctx) })
	group.Submit(func() { top = e.TopAccounts(ctx) })
	group.Submit(func() { cursor, _ = e.cache.Cursor(ctx) })
	_ = group.Wait()

	return model.Overview{
		Volume24h:   volume,
		TopAccounts: top,
		LatestBlock: cursor,
		Timestamp:   time.Now().UTC(),
	}
}

// AccountStats derives per-address stats by folding over the account's
// transaction history. Cached per address; the cache is invalidated when
// the address is touched by a new transaction.
func (e *Engine) AccountStats(ctx context.Context, address string, limit int) model.AccountStats {
	if stats, ok := e.cache.AccountStats(ctx, address); ok {
		if len(stats.Transactions) > limit {
			stats.Transactions = stats.Transactions[:limit]
		}
		return stats
	}

	history, err := e.ledger.AccountTransactions(ctx, address, limit)
	if err != nil {
		e.logger.Warn("account history fetch failed", zap.String("address", address), zap.Error(err))
		history = nil
	}

	stats := model.AccountStats{
		Address:               address,
		LastActivityTimestamp: time.Now().UTC(),
		Transactions:          make([]model.AccountTransfer, 0, len(history)),
	}
	for _, tx := range history {
		transfer := model.AccountTransfer{
			TxHash:       tx.TxHash,
			BlockNumber:  tx.BlockNumber,
			Timestamp:    tx.BlockTimestamp,
			Counterparty: tx.FromAddress,
			Amount:       tx.Amount,
			Direction:    "in",
			Fee:          float64(tx.GasUsed) * tx.GasPrice,
		}
		if tx.FromAddress == address {
			transfer.Counterparty = tx.ToAddress
			transfer.Direction = "out"
			stats.Balance -= tx.Amount
			stats.TotalSent += tx.Amount
		} else {
			stats.Balance += tx.Amount
			stats.TotalReceived += tx.Amount
		}
		stats.Transactions = append(stats.Transactions, transfer)
	}
	stats.TransactionCount = len(stats.Transactions)
	if len(history) > 0 {
		last := history[0].BlockTimestamp
		for _, tx := range history[1:] {
			if tx.BlockTimestamp.After(last) {
				last = tx.BlockTimestamp
			}
		}
		stats.LastActivityTimestamp = last
	}

	e.cache.SetAccountStats(ctx, address, stats)
	return stats
}

// TransfersByRange serves transfers in [start, end), newest first, cached
// by the exact (start, end, limit) triple.
func (e *Engine) TransfersByRange(ctx context.Context, start, end time.Time, limit int) []model.TransferRecord {
	if cached, ok := e.cache.Transfers(ctx, start, end, limit); ok {
		return cached
	}

	transactions, err := e.ledger.TransactionsByTimeRange(ctx, start, end, limit)
	if err != nil {
		e.logger.Warn("transfer range fetch failed", zap.Error(err))
		return []model.TransferRecord{}
	}

	records := make([]model.TransferRecord, 0, len(transactions))
	for _, tx := range transactions {
		records = append(records, model.TransferRecord{
			TxHash:      tx.TxHash,
			BlockNumber: tx.BlockNumber,
			Timestamp:   tx.BlockTimestamp,
			From:        tx.FromAddress,
			To:          tx.ToAddress,
			Amount:      tx.Amount,
			GasUsed:     tx.GasUsed,
			GasPrice:    tx.GasPrice,
			Fee:         float64(tx.GasUsed) * tx.GasPrice,
		})
	}

	e.cache.SetTransfers(ctx, start, end, limit, records)
	return records
}

// VolumeDistribution partitions the trailing window of a timeframe into
// fixed-width buckets, oldest first. Computed lazily per timeframe on cache
// miss, not proactively every cycle.
func (e *Engine) VolumeDistribution(ctx context.Context, timeframe string) ([]model.VolumeBucket, error) {
	tf, ok := LookupTimeframe(timeframe)
	if !ok {
		return nil, ErrUnknownTimeframe
	}

	if cached, ok := e.cache.VolumeDistribution(ctx, timeframe); ok {
		return cached, nil
	}

	buckets := e.computeDistribution(ctx, tf, time.Now().UTC())
	e.cache.SetVolumeDistribution(ctx, timeframe, buckets, tf.TTL)
	return buckets, nil
}

// computeDistribution sums per-bucket volume over [bucketStart, bucketEnd)
// for each bucket. The sums are independent reads and run concurrently.
func (e *Engine) computeDistribution(ctx context.Context, tf Timeframe, now time.Time) []model.VolumeBucket {
	buckets := make([]model.VolumeBucket, tf.Buckets)
	group := e.pool.NewGroup()
	for i := 0; i < tf.Buckets; i++ {
		i := i
		end := now.Add(-time.Duration(tf.Buckets-1-i) * tf.Width)
		start := end.Add(-tf.Width)
		group.Submit(func() {
			volume, err := e.ledger.VolumeInRange(ctx, start, end)
			if err != nil {
				e.logger.Warn("bucket volume fetch failed", zap.Time("start", start), zap.Error(err))
				volume = 0
			}
			buckets[i] = model.VolumeBucket{
				Period:    tf.Label(start),
				StartTime: start,
				EndTime:   end,
				Volume:    volume,
			}
		})
	}
	_ = group.Wait()
	return buckets
}
