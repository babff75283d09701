package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"transferscope/internal/aggregate"
	"transferscope/internal/model"
)

const defaultLimit = 100

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Stats.Overview(r.Context()))
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if !common.IsHexAddress(address) {
		writeError(w, r, http.StatusBadRequest, "invalid address")
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid limit")
		return
	}

	stats := s.opts.Stats.AccountStats(r.Context(), common.HexToAddress(address).Hex(), limit)
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	start, err := time.Parse(time.RFC3339, query.Get("startTime"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid date format")
		return
	}
	end, err := time.Parse(time.RFC3339, query.Get("endTime"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid date format")
		return
	}

	limit, err := parseLimit(query.Get("limit"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid limit")
		return
	}

	transfers := s.opts.Stats.TransfersByRange(r.Context(), start, end, limit)
	writeJSON(w, http.StatusOK, transfers)
}

func (s *Server) handleVolumeDistribution(w http.ResponseWriter, r *http.Request) {
	timeframe := r.URL.Query().Get("timeframe")
	buckets, err := s.opts.Stats.VolumeDistribution(r.Context(), timeframe)
	if err != nil {
		if errors.Is(err, aggregate.ErrUnknownTimeframe) {
			writeError(w, r, http.StatusBadRequest, "invalid timeframe, must be hourly, daily, or weekly")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "failed to compute volume distribution")
		return
	}
	writeJSON(w, http.StatusOK, buckets)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cursor, _ := s.opts.Cache.Cursor(ctx)

	started := time.Now()
	head, err := s.opts.Head.LatestBlockNumber(ctx)
	latency := time.Since(started)

	rpc := model.RPCStatus{Connected: err == nil}
	if err != nil {
		rpc.Error = err.Error()
	} else {
		rpc.Latency = strconv.FormatInt(latency.Milliseconds(), 10) + "ms"
	}

	var remaining uint64
	if head > cursor {
		remaining = head - cursor
	}
	var percentage float64
	if head > 0 && cursor > 0 {
		percentage = math.Min(100, float64(cursor)/float64(head)*100)
	}

	writeJSON(w, http.StatusOK, model.Health{
		Status:      "healthy",
		LatestBlock: cursor,
		SyncStatus: model.SyncStatus{
			LatestProcessedBlock:   cursor,
			CurrentNetworkBlock:    head,
			BlocksRemaining:        remaining,
			IsSynced:               remaining == 0,
			SyncPercentage:         math.Round(percentage*100) / 100,
			EstimatedTimeRemaining: float64(remaining) * s.opts.BlockTime.Seconds(),
		},
		RPCStatus: rpc,
		Timestamp: time.Now().UTC(),
	})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return limit, nil
}
