package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"transferscope/internal/model"
)

// TransferTopic is the topic0 hash of the ERC20 Transfer event.
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Gateway exposes token transfer queries over a Client. Every chain call is
// wrapped in a bounded retry with a fixed inter-attempt delay; exhausted
// retries propagate the last error to the caller.
type Gateway struct {
	client   *Client
	contract common.Address
	attempts int
	delay    time.Duration
	logger   *zap.Logger
}

// NewGateway builds a Gateway for one token contract.
func NewGateway(client *Client, contract common.Address, attempts int, delay time.Duration, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		client:   client,
		contract: contract,
		attempts: attempts,
		delay:    delay,
		logger:   logger,
	}
}

// LatestBlockNumber returns the current chain head height.
func (g *Gateway) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var height uint64
	err := withRetry(ctx, g.attempts, g.delay, func(ctx context.Context) error {
		var err error
		height, err = g.client.LatestBlockNumber(ctx)
		if err != nil {
			g.logger.Warn("latest block fetch failed", zap.Error(err))
		}
		return err
	})
	return height, err
}

// TransferEvents returns all transfer events in the inclusive block range,
// in ascending block/log order, with gas usage and price resolved from the
// transaction and its receipt.
func (g *Gateway) TransferEvents(ctx context.Context, fromBlock, toBlock uint64) ([]model.TransferEvent, error) {
	var logs []types.Log
	err := withRetry(ctx, g.attempts, g.delay, func(ctx context.Context) error {
		var err error
		logs, err = g.client.FilterLogs(ctx, fromBlock, toBlock, g.contract, TransferTopic)
		if err != nil {
			g.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs [%d,%d]: %w", fromBlock, toBlock, err)
	}

	events := make([]model.TransferEvent, 0, len(logs))
	for _, log := range logs {
		event, err := g.decodeLog(ctx, log)
		if err != nil {
			return nil, fmt.Errorf("decode log %s: %w", log.TxHash.Hex(), err)
		}
		events = append(events, event)
	}
	return events, nil
}

// RecentTransfers returns transfers over the trailing window of blocks,
// fetched independently of any ingestion cursor.
func (g *Gateway) RecentTransfers(ctx context.Context, window uint64) ([]model.TransferEvent, error) {
	head, err := g.LatestBlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	from := uint64(0)
	if head >= window {
		from = head - window + 1
	}
	return g.TransferEvents(ctx, from, head)
}

// SubscribeTransfers opens a live subscription and pushes decoded transfer
// events to out until the returned cancel func is called or ctx ends.
func (g *Gateway) SubscribeTransfers(ctx context.Context, out chan<- model.TransferEvent) (func(), error) {
	logs := make(chan types.Log, 128)
	sub, err := g.client.SubscribeFilterLogs(ctx, g.contract, TransferTopic, logs)
	if err != nil {
		return nil, fmt.Errorf("subscribe logs: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err != nil {
					g.logger.Error("log subscription failed", zap.Error(err))
				}
				return
			case log := <-logs:
				event, err := g.decodeLog(ctx, log)
				if err != nil {
					g.logger.Warn("skip undecodable live log", zap.String("tx_hash", log.TxHash.Hex()), zap.Error(err))
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return cancel, nil
}

// decodeLog turns a raw Transfer log into a typed event. Logs that do not
// carry the expected indexed topics are rejected here, not downstream.
func (g *Gateway) decodeLog(ctx context.Context, log types.Log) (model.TransferEvent, error) {
	if len(log.Topics) != 3 {
		return model.TransferEvent{}, fmt.Errorf("unexpected topic count %d", len(log.Topics))
	}

	ts, err := g.blockTimestamp(ctx, log.BlockNumber)
	if err != nil {
		return model.TransferEvent{}, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
	}

	var receipt *types.Receipt
	err = withRetry(ctx, g.attempts, g.delay, func(ctx context.Context) error {
		var err error
		receipt, err = g.client.TransactionReceipt(ctx, log.TxHash)
		if err != nil {
			g.logger.Warn("receipt fetch failed", zap.Error(err), zap.String("tx_hash", log.TxHash.Hex()))
		}
		return err
	})
	if err != nil {
		return model.TransferEvent{}, fmt.Errorf("receipt: %w", err)
	}

	var tx *types.Transaction
	err = withRetry(ctx, g.attempts, g.delay, func(ctx context.Context) error {
		var err error
		tx, _, err = g.client.TransactionByHash(ctx, log.TxHash)
		if err != nil {
			g.logger.Warn("transaction fetch failed", zap.Error(err), zap.String("tx_hash", log.TxHash.Hex()))
		}
		return err
	})
	if err != nil {
		return model.TransferEvent{}, fmt.Errorf("transaction: %w", err)
	}

	gasPrice := tx.GasPrice()
	if gasPrice == nil {
		gasPrice = big.NewInt(0)
	}

	return model.TransferEvent{
		TxHash:         log.TxHash.Hex(),
		BlockNumber:    log.BlockNumber,
		BlockTimestamp: ts,
		From:           common.BytesToAddress(log.Topics[1].Bytes()).Hex(),
		To:             common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
		RawAmount:      new(big.Int).SetBytes(log.Data),
		GasUsed:        receipt.GasUsed,
		GasPrice:       gasPrice,
	}, nil
}

func (g *Gateway) blockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	var ts uint64
	err := withRetry(ctx, g.attempts, g.delay, func(ctx context.Context) error {
		var err error
		ts, err = g.client.BlockTimestamp(ctx, number)
		if err != nil {
			g.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", number))
		}
		return err
	})
	return ts, err
}
