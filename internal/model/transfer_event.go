package model

import (
	"math/big"
	"time"
)

// TransferEvent is a decoded token transfer observed on chain. RawAmount and
// GasPrice stay in the token's and chain's smallest units; conversion to
// human units happens at the ingestion boundary.
type TransferEvent struct {
	TxHash         string   `json:"txHash"`
	BlockNumber    uint64   `json:"blockNumber"`
	BlockTimestamp uint64   `json:"blockTimestamp"`
	From           string   `json:"from"`
	To             string   `json:"to"`
	RawAmount      *big.Int `json:"rawAmount"`
	GasUsed        uint64   `json:"gasUsed"`
	GasPrice       *big.Int `json:"gasPrice"`
}

// Record converts the event to its wire shape in token units, with the gas
// price in gwei and fee = gasUsed × gasPrice.
func (e TransferEvent) Record(decimals uint8) TransferRecord {
	gasPrice := FormatTokenAmount(e.GasPrice, GweiDecimals)
	return TransferRecord{
		TxHash:      e.TxHash,
		BlockNumber: e.BlockNumber,
		Timestamp:   time.Unix(int64(e.BlockTimestamp), 0).UTC(),
		From:        e.From,
		To:          e.To,
		Amount:      FormatTokenAmount(e.RawAmount, decimals),
		GasUsed:     e.GasUsed,
		GasPrice:    gasPrice,
		Fee:         float64(e.GasUsed) * gasPrice,
	}
}
