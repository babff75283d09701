package ingest

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"transferscope/internal/cache"
	"transferscope/internal/model"
)

type fakeChain struct {
	head    uint64
	headErr error
	events  []model.TransferEvent
	fetched [][2]uint64

	headStarted chan struct{}
	headRelease chan struct{}
}

func (f *fakeChain) LatestBlockNumber(context.Context) (uint64, error) {
	if f.headStarted != nil {
		close(f.headStarted)
		f.headStarted = nil
		<-f.headRelease
	}
	return f.head, f.headErr
}

func (f *fakeChain) TransferEvents(_ context.Context, from, to uint64) ([]model.TransferEvent, error) {
	f.fetched = append(f.fetched, [2]uint64{from, to})
	var out []model.TransferEvent
	for _, event := range f.events {
		if event.BlockNumber >= from && event.BlockNumber <= to {
			out = append(out, event)
		}
	}
	return out, nil
}

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) RefreshSnapshots(context.Context) error {
	f.calls++
	return f.err
}

type fakeLedger struct {
	accounts  map[string]*model.Account
	txs       map[string]model.Transaction
	insertErr error
	failAfter int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		accounts:  make(map[string]*model.Account),
		txs:       make(map[string]model.Transaction),
		failAfter: -1,
	}
}

func (f *fakeLedger) seed(address string) {
	f.accounts[address] = &model.Account{Address: address}
}

func (f *fakeLedger) GetAccount(_ context.Context, address string) (*model.Account, error) {
	return f.accounts[address], nil
}

func (f *fakeLedger) GetOrCreateAccount(_ context.Context, address string, create bool, at time.Time) (*model.Account, error) {
	if account, ok := f.accounts[address]; ok {
		return account, nil
	}
	if !create {
		return nil, nil
	}
	account := &model.Account{Address: address, FirstSeen: at, LastActive: at}
	f.accounts[address] = account
	return account, nil
}

func (f *fakeLedger) UpdateAccountStats(_ context.Context, address string, amount float64, receiving bool, at time.Time) error {
	account, ok := f.accounts[address]
	if !ok {
		return nil
	}
	account.TotalTransactions++
	account.TotalVolume += math.Abs(amount)
	if receiving {
		account.LastBalance += amount
	} else {
		account.LastBalance -= amount
	}
	account.LastActive = at
	return nil
}

func (f *fakeLedger) InsertTransaction(_ context.Context, tx model.Transaction) (bool, error) {
	if f.insertErr != nil && f.failAfter == len(f.txs) {
		return false, f.insertErr
	}
	if _, ok := f.txs[tx.TxHash]; ok {
		return false, nil
	}
	f.txs[tx.TxHash] = tx
	return true, nil
}

func (f *fakeLedger) TopAccounts(context.Context, int) ([]model.Account, error) {
	return nil, nil
}

func (f *fakeLedger) TransactionsByTimeRange(context.Context, time.Time, time.Time, int) ([]model.Transaction, error) {
	return nil, nil
}

func (f *fakeLedger) AccountTransactions(context.Context, string, int) ([]model.Transaction, error) {
	return nil, nil
}

func (f *fakeLedger) VolumeInRange(context.Context, time.Time, time.Time) (float64, error) {
	return 0, nil
}

type failingKV struct {
	*cache.MemoryKV
	setErr error
}

func (f *failingKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.MemoryKV.Set(ctx, key, value, ttl)
}

func event(hash string, block uint64, from, to string, amount int64) model.TransferEvent {
	return model.TransferEvent{
		TxHash:         hash,
		BlockNumber:    block,
		BlockTimestamp: 1700000000 + block,
		From:           from,
		To:             to,
		RawAmount:      big.NewInt(amount),
		GasUsed:        21000,
		GasPrice:       big.NewInt(25_000_000_000),
	}
}

func newTestScheduler(chainSrc *fakeChain, ledger *fakeLedger, kv cache.KV, refresher *fakeRefresher) (*Scheduler, *cache.Store) {
	store := cache.NewStore(kv, nil)
	scheduler := NewScheduler(Config{
		StartBlock:    11975000,
		BatchSize:     100,
		TokenDecimals: 0,
		Interval:      time.Second,
	}, chainSrc, ledger, store, refresher, nil)
	return scheduler, store
}

func TestRunCycleColdStart(t *testing.T) {
	chainSrc := &fakeChain{head: 11975050}
	refresher := &fakeRefresher{}
	scheduler, store := newTestScheduler(chainSrc, newFakeLedger(), cache.NewMemoryKV(), refresher)

	advanced, err := scheduler.RunCycle(context.Background())
	require.NoError(t, err)
	require.True(t, advanced)

	require.Equal(t, [][2]uint64{{11975000, 11975050}}, chainSrc.fetched)

	cursor, ok := store.Cursor(context.Background())
	require.True(t, ok)
	require.Equal(t, uint64(11975050), cursor)
	require.Equal(t, 1, refresher.calls)
}

func TestRunCycleBatchCap(t *testing.T) {
	chainSrc := &fakeChain{head: 11976000}
	scheduler, store := newTestScheduler(chainSrc, newFakeLedger(), cache.NewMemoryKV(), &fakeRefresher{})

	require.NoError(t, store.SetCursor(context.Background(), 11975199))

	advanced, err := scheduler.RunCycle(context.Background())
	require.NoError(t, err)
	require.True(t, advanced)
	require.Equal(t, [][2]uint64{{11975200, 11975299}}, chainSrc.fetched)
}

func TestRunCycleAccountFlow(t *testing.T) {
	ledger := newFakeLedger()
	ledger.seed("0xA")
	ledger.seed("0xB")

	chainSrc := &fakeChain{head: 11975001, events: []model.TransferEvent{
		event("0x1", 11975000, "0xA", "0xB", 10),
		event("0x2", 11975001, "0xB", "0xA", 4),
	}}
	scheduler, _ := newTestScheduler(chainSrc, ledger, cache.NewMemoryKV(), &fakeRefresher{})

	_, err := scheduler.RunCycle(context.Background())
	require.NoError(t, err)

	a := ledger.accounts["0xA"]
	require.Equal(t, int64(2), a.TotalTransactions)
	require.InDelta(t, 14, a.TotalVolume, 1e-9)
	require.InDelta(t, -6, a.LastBalance, 1e-9)

	b := ledger.accounts["0xB"]
	require.Equal(t, int64(2), b.TotalTransactions)
	require.InDelta(t, 14, b.TotalVolume, 1e-9)
	require.InDelta(t, 6, b.LastBalance, 1e-9)
}

func TestRunCycleCreatesRecipientOnly(t *testing.T) {
	ledger := newFakeLedger()
	chainSrc := &fakeChain{head: 11975000, events: []model.TransferEvent{
		event("0x1", 11975000, "0xSender", "0xRecipient", 5),
	}}
	scheduler, _ := newTestScheduler(chainSrc, ledger, cache.NewMemoryKV(), &fakeRefresher{})

	_, err := scheduler.RunCycle(context.Background())
	require.NoError(t, err)

	require.Contains(t, ledger.accounts, "0xRecipient")
	require.NotContains(t, ledger.accounts, "0xSender")

	recipient := ledger.accounts["0xRecipient"]
	require.Equal(t, int64(1), recipient.TotalTransactions)
	require.InDelta(t, 5, recipient.LastBalance, 1e-9)
}

func TestRunCycleDuplicateSkipsStats(t *testing.T) {
	ledger := newFakeLedger()
	ledger.seed("0xA")
	ledger.seed("0xB")
	ledger.txs["0x1"] = model.Transaction{TxHash: "0x1"}

	chainSrc := &fakeChain{head: 11975000, events: []model.TransferEvent{
		event("0x1", 11975000, "0xA", "0xB", 10),
	}}
	scheduler, _ := newTestScheduler(chainSrc, ledger, cache.NewMemoryKV(), &fakeRefresher{})

	advanced, err := scheduler.RunCycle(context.Background())
	require.NoError(t, err)
	require.True(t, advanced)

	require.Equal(t, int64(0), ledger.accounts["0xA"].TotalTransactions)
	require.Equal(t, int64(0), ledger.accounts["0xB"].TotalTransactions)
}

func TestRunCycleInsertFailureKeepsCursor(t *testing.T) {
	ledger := newFakeLedger()
	ledger.seed("0xA")
	ledger.seed("0xB")
	ledger.insertErr = errors.New("connection reset")
	ledger.failAfter = 1

	chainSrc := &fakeChain{head: 11975001, events: []model.TransferEvent{
		event("0x1", 11975000, "0xA", "0xB", 10),
		event("0x2", 11975001, "0xB", "0xA", 4),
	}}
	refresher := &fakeRefresher{}
	scheduler, store := newTestScheduler(chainSrc, ledger, cache.NewMemoryKV(), refresher)

	advanced, err := scheduler.RunCycle(context.Background())
	require.Error(t, err)
	require.False(t, advanced)

	_, ok := store.Cursor(context.Background())
	require.False(t, ok)
	require.Equal(t, 0, refresher.calls)

	// The failed range is retried verbatim and the surviving row is skipped
	// as a duplicate, so stats are applied exactly once per transaction.
	ledger.insertErr = nil
	advanced, err = scheduler.RunCycle(context.Background())
	require.NoError(t, err)
	require.True(t, advanced)
	require.Equal(t, int64(2), ledger.accounts["0xA"].TotalTransactions)
}

func TestRunCycleCursorWriteFailure(t *testing.T) {
	kv := &failingKV{MemoryKV: cache.NewMemoryKV(), setErr: errors.New("redis down")}
	refresher := &fakeRefresher{}
	chainSrc := &fakeChain{head: 11975000}
	scheduler, _ := newTestScheduler(chainSrc, newFakeLedger(), kv, refresher)

	advanced, err := scheduler.RunCycle(context.Background())
	require.Error(t, err)
	require.False(t, advanced)
	require.Equal(t, 0, refresher.calls)
}

func TestRunCycleNoNewBlocks(t *testing.T) {
	chainSrc := &fakeChain{head: 11975050}
	refresher := &fakeRefresher{}
	scheduler, store := newTestScheduler(chainSrc, newFakeLedger(), cache.NewMemoryKV(), refresher)

	require.NoError(t, store.SetCursor(context.Background(), 11975050))

	advanced, err := scheduler.RunCycle(context.Background())
	require.NoError(t, err)
	require.False(t, advanced)
	require.Empty(t, chainSrc.fetched)
	require.Equal(t, 0, refresher.calls)
}

func TestRunCycleBusyTickDropped(t *testing.T) {
	chainSrc := &fakeChain{
		head:        11975000,
		headStarted: make(chan struct{}),
		headRelease: make(chan struct{}),
	}
	started := chainSrc.headStarted
	scheduler, _ := newTestScheduler(chainSrc, newFakeLedger(), cache.NewMemoryKV(), &fakeRefresher{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = scheduler.RunCycle(context.Background())
	}()

	<-started
	require.Equal(t, "running", scheduler.State())

	advanced, err := scheduler.RunCycle(context.Background())
	require.NoError(t, err)
	require.False(t, advanced)

	close(chainSrc.headRelease)
	<-done
	require.Equal(t, "idle", scheduler.State())
}

func TestBackfillRunsToHead(t *testing.T) {
	chainSrc := &fakeChain{head: 11975250}
	refresher := &fakeRefresher{}
	scheduler, store := newTestScheduler(chainSrc, newFakeLedger(), cache.NewMemoryKV(), refresher)

	require.NoError(t, scheduler.Backfill(context.Background()))

	require.Equal(t, [][2]uint64{
		{11975000, 11975099},
		{11975100, 11975199},
		{11975200, 11975250},
	}, chainSrc.fetched)

	cursor, ok := store.Cursor(context.Background())
	require.True(t, ok)
	require.Equal(t, uint64(11975250), cursor)
	require.Equal(t, 3, refresher.calls)
}
