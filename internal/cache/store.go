package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"transferscope/internal/model"
)

// Cache keys. The cursor key has no expiry: it is the durable record of the
// latest fully-processed block. Everything else is a reconstructible
// snapshot with its own TTL.
const (
	cursorKey      = "latest_block"
	topAccountsKey = "top_accounts"
	volume24hKey   = "24h_volume"
)

const (
	accountStatsTTL = 30 * time.Minute
	topAccountsTTL  = time.Hour
	volume24hTTL    = 5 * time.Minute
	transfersTTL    = 5 * time.Minute
)

func accountStatsKey(address string) string {
	return "account_stats:" + address
}

func transfersKey(start, end time.Time, limit int) string {
	return fmt.Sprintf("transfers:%s:%s:%d", start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339), limit)
}

func distributionKey(timeframe string) string {
	return "volume-distribution:" + timeframe
}

// Store is the typed cache layer. Values are never a correctness source:
// read errors are logged and reported as a miss so callers fall through to
// the ledger, and snapshot writes are best-effort. Only the cursor write
// surfaces its error, because cycle success depends on it.
type Store struct {
	kv     KV
	logger *zap.Logger
}

func NewStore(kv KV, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{kv: kv, logger: logger}
}

// Cursor returns the latest fully-processed block number, if present.
func (s *Store) Cursor(ctx context.Context) (uint64, bool) {
	raw, ok, err := s.kv.Get(ctx, cursorKey)
	if err != nil {
		s.logger.Warn("cursor read failed, treating as miss", zap.Error(err))
		return 0, false
	}
	if !ok {
		return 0, false
	}
	block, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		s.logger.Warn("cursor value malformed, treating as miss", zap.String("raw", raw), zap.Error(err))
		return 0, false
	}
	return block, true
}

// SetCursor records the latest fully-processed block number.
func (s *Store) SetCursor(ctx context.Context, block uint64) error {
	if err := s.kv.Set(ctx, cursorKey, strconv.FormatUint(block, 10), 0); err != nil {
		return fmt.Errorf("write cursor: %w", err)
	}
	return nil
}

// Volume24h returns the cached trailing-24h volume snapshot.
func (s *Store) Volume24h(ctx context.Context) (float64, bool) {
	var volume float64
	return volume, s.getJSON(ctx, volume24hKey, &volume)
}

func (s *Store) SetVolume24h(ctx context.Context, volume float64) {
	s.putJSON(ctx, volume24hKey, volume, volume24hTTL)
}

// TopAccounts returns the cached top-accounts snapshot.
func (s *Store) TopAccounts(ctx context.Context) ([]model.Account, bool) {
	var accounts []model.Account
	return accounts, s.getJSON(ctx, topAccountsKey, &accounts)
}

func (s *Store) SetTopAccounts(ctx context.Context, accounts []model.Account) {
	s.putJSON(ctx, topAccountsKey, accounts, topAccountsTTL)
}

// AccountStats returns the cached per-address stats snapshot.
func (s *Store) AccountStats(ctx context.Context, address string) (model.AccountStats, bool) {
	var stats model.AccountStats
	return stats, s.getJSON(ctx, accountStatsKey(address), &stats)
}

func (s *Store) SetAccountStats(ctx context.Context, address string, stats model.AccountStats) {
	s.putJSON(ctx, accountStatsKey(address), stats, accountStatsTTL)
}

// InvalidateAccount drops the per-address stats snapshot after the address
// is touched by a new transaction.
func (s *Store) InvalidateAccount(ctx context.Context, address string) {
	if err := s.kv.Delete(ctx, accountStatsKey(address)); err != nil {
		s.logger.Warn("account cache invalidation failed", zap.String("address", address), zap.Error(err))
	}
}

// Transfers returns a cached range query result keyed by (start, end, limit).
func (s *Store) Transfers(ctx context.Context, start, end time.Time, limit int) ([]model.TransferRecord, bool) {
	var transfers []model.TransferRecord
	return transfers, s.getJSON(ctx, transfersKey(start, end, limit), &transfers)
}

func (s *Store) SetTransfers(ctx context.Context, start, end time.Time, limit int, transfers []model.TransferRecord) {
	s.putJSON(ctx, transfersKey(start, end, limit), transfers, transfersTTL)
}

// VolumeDistribution returns the cached bucket list for a timeframe.
func (s *Store) VolumeDistribution(ctx context.Context, timeframe string) ([]model.VolumeBucket, bool) {
	var buckets []model.VolumeBucket
	return buckets, s.getJSON(ctx, distributionKey(timeframe), &buckets)
}

// SetVolumeDistribution caches buckets with the timeframe's own TTL: the
// shorter the window, the shorter the TTL.
func (s *Store) SetVolumeDistribution(ctx context.Context, timeframe string, buckets []model.VolumeBucket, ttl time.Duration) {
	s.putJSON(ctx, distributionKey(timeframe), buckets, ttl)
}

func (s *Store) getJSON(ctx context.Context, key string, dest any) bool {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed, treating as miss", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		s.logger.Warn("cache value malformed, treating as miss", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *Store) putJSON(ctx context.Context, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("cache marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.kv.Set(ctx, key, string(raw), ttl); err != nil {
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
