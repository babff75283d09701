package model

import "time"

// Transaction is one transfer materialized into the ledger. Rows are
// immutable once written; tx hash is the primary key.
type Transaction struct {
	TxHash         string    `json:"txHash"`
	BlockNumber    uint64    `json:"blockNumber"`
	BlockTimestamp time.Time `json:"blockTimestamp"`
	FromAddress    string    `json:"from"`
	ToAddress      string    `json:"to"`
	Amount         float64   `json:"amount"`
	GasUsed        uint64    `json:"gasUsed"`
	GasPrice       float64   `json:"gasPrice"`
	IsError        bool      `json:"isError"`
}
