package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"transferscope/internal/aggregate"
	"transferscope/internal/cache"
	"transferscope/internal/model"
)

type fakeStats struct {
	overview  model.Overview
	account   model.AccountStats
	transfers []model.TransferRecord
}

func (f *fakeStats) Overview(context.Context) model.Overview {
	return f.overview
}

func (f *fakeStats) AccountStats(_ context.Context, address string, _ int) model.AccountStats {
	stats := f.account
	stats.Address = address
	return stats
}

func (f *fakeStats) TransfersByRange(context.Context, time.Time, time.Time, int) []model.TransferRecord {
	return f.transfers
}

func (f *fakeStats) VolumeDistribution(_ context.Context, timeframe string) ([]model.VolumeBucket, error) {
	if _, ok := aggregate.LookupTimeframe(timeframe); !ok {
		return nil, aggregate.ErrUnknownTimeframe
	}
	return []model.VolumeBucket{{Period: "15:00", Volume: 7}}, nil
}

type fakeHead struct {
	head uint64
	err  error
}

func (f *fakeHead) LatestBlockNumber(context.Context) (uint64, error) {
	return f.head, f.err
}

func newTestServer(t *testing.T, stats *fakeStats, head *fakeHead) (*Server, *cache.Store) {
	t.Helper()
	store := cache.NewStore(cache.NewMemoryKV(), nil)
	server := NewServer(ServerOpts{
		Stats:     stats,
		Head:      head,
		Cache:     store,
		Port:      3000,
		BlockTime: 2 * time.Second,
		Decimals:  6,
	})
	return server, store
}

func get(server *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestOverviewEndpoint(t *testing.T) {
	stats := &fakeStats{overview: model.Overview{
		Volume24h:   1234.5,
		TopAccounts: []model.Account{{Address: "0xA"}},
		LatestBlock: 11975050,
	}}
	server, _ := newTestServer(t, stats, &fakeHead{head: 11975060})

	rec := get(server, "/api/v1/stats/overview")
	require.Equal(t, http.StatusOK, rec.Code)

	var overview model.Overview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &overview))
	require.InDelta(t, 1234.5, overview.Volume24h, 1e-9)
	require.Equal(t, uint64(11975050), overview.LatestBlock)
	require.Len(t, overview.TopAccounts, 1)
}

func TestAccountEndpointRejectsBadAddress(t *testing.T) {
	server, _ := newTestServer(t, &fakeStats{}, &fakeHead{})

	rec := get(server, "/api/v1/account/not-an-address")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, http.StatusBadRequest, body.StatusCode)
	require.Equal(t, "/api/v1/account/not-an-address", body.Path)
	require.NotEmpty(t, body.Message)
	require.NotEmpty(t, body.Timestamp)
}

func TestAccountEndpointRejectsBadLimit(t *testing.T) {
	server, _ := newTestServer(t, &fakeStats{}, &fakeHead{})

	rec := get(server, "/api/v1/account/0x742d35Cc6634C0532925a3b844Bc454e4438f44e?limit=-5")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccountEndpointNormalizesAddress(t *testing.T) {
	server, _ := newTestServer(t, &fakeStats{}, &fakeHead{})

	rec := get(server, "/api/v1/account/0x742d35cc6634c0532925a3b844bc454e4438f44e")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats model.AccountStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, "0x742d35Cc6634C0532925a3b844Bc454e4438f44e", stats.Address)
}

func TestTransfersEndpointRejectsBadDates(t *testing.T) {
	server, _ := newTestServer(t, &fakeStats{}, &fakeHead{})

	rec := get(server, "/api/v1/transfers?startTime=yesterday&endTime=2026-01-10T00:00:00Z")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(server, "/api/v1/transfers?startTime=2026-01-10T00:00:00Z")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransfersEndpoint(t *testing.T) {
	stats := &fakeStats{transfers: []model.TransferRecord{{TxHash: "0x1", Amount: 2.5}}}
	server, _ := newTestServer(t, stats, &fakeHead{})

	rec := get(server, "/api/v1/transfers?startTime=2026-01-09T00:00:00Z&endTime=2026-01-10T00:00:00Z&limit=10")
	require.Equal(t, http.StatusOK, rec.Code)

	var transfers []model.TransferRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &transfers))
	require.Len(t, transfers, 1)
}

func TestVolumeDistributionEndpoint(t *testing.T) {
	server, _ := newTestServer(t, &fakeStats{}, &fakeHead{})

	rec := get(server, "/api/v1/analytics/volume-distribution?timeframe=hourly")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(server, "/api/v1/analytics/volume-distribution?timeframe=monthly")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	server, store := newTestServer(t, &fakeStats{}, &fakeHead{head: 11975100})
	require.NoError(t, store.SetCursor(context.Background(), 11975050))

	rec := get(server, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var health model.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	require.Equal(t, "healthy", health.Status)
	require.Equal(t, uint64(11975050), health.LatestBlock)
	require.Equal(t, uint64(11975100), health.SyncStatus.CurrentNetworkBlock)
	require.Equal(t, uint64(50), health.SyncStatus.BlocksRemaining)
	require.False(t, health.SyncStatus.IsSynced)
	require.InDelta(t, 100, health.SyncStatus.EstimatedTimeRemaining, 1e-9)
	require.True(t, health.RPCStatus.Connected)
}

func TestHealthEndpointReportsRPCOutage(t *testing.T) {
	server, _ := newTestServer(t, &fakeStats{}, &fakeHead{err: errors.New("dial tcp: refused")})

	rec := get(server, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var health model.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	require.False(t, health.RPCStatus.Connected)
	require.NotEmpty(t, health.RPCStatus.Error)
}
