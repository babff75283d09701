package model

import "time"

// Overview is the aggregate snapshot served by the stats endpoint.
type Overview struct {
	Volume24h   float64   `json:"volume24h"`
	TopAccounts []Account `json:"topAccounts"`
	LatestBlock uint64    `json:"latestBlock"`
	Timestamp   time.Time `json:"timestamp"`
}

// AccountTransfer is one entry in an account's transaction history, seen
// from that account's perspective.
type AccountTransfer struct {
	TxHash       string    `json:"txHash"`
	BlockNumber  uint64    `json:"blockNumber"`
	Timestamp    time.Time `json:"timestamp"`
	Counterparty string    `json:"counterparty"`
	Amount       float64   `json:"amount"`
	Direction    string    `json:"direction"`
	Fee          float64   `json:"fee"`
}

// AccountStats is derived purely by folding over the account's transaction
// history; it is cached per address and invalidated when the address is
// touched by a new transaction.
type AccountStats struct {
	Address               string            `json:"address"`
	Balance               float64           `json:"balance"`
	TotalSent             float64           `json:"totalSent"`
	TotalReceived         float64           `json:"totalReceived"`
	TransactionCount      int               `json:"transactionCount"`
	LastActivityTimestamp time.Time         `json:"lastActivityTimestamp"`
	Transactions          []AccountTransfer `json:"transactions"`
}

// TransferRecord is the wire shape for range queries and the live feed.
type TransferRecord struct {
	TxHash      string    `json:"txHash"`
	BlockNumber uint64    `json:"blockNumber"`
	Timestamp   time.Time `json:"timestamp"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Amount      float64   `json:"amount"`
	GasUsed     uint64    `json:"gasUsed"`
	GasPrice    float64   `json:"gasPrice"`
	Fee         float64   `json:"fee"`
}

// VolumeBucket is one fixed-width slice of a volume distribution, labeled
// by its period (hour of day, weekday, or "Week of" date).
type VolumeBucket struct {
	Period    string    `json:"period"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Volume    float64   `json:"volume"`
}

// SyncStatus reports ingestion progress against the chain head.
type SyncStatus struct {
	LatestProcessedBlock   uint64  `json:"latestProcessedBlock"`
	CurrentNetworkBlock    uint64  `json:"currentNetworkBlock"`
	BlocksRemaining        uint64  `json:"blocksRemaining"`
	IsSynced               bool    `json:"isSynced"`
	SyncPercentage         float64 `json:"syncPercentage"`
	EstimatedTimeRemaining float64 `json:"estimatedTimeRemaining"`
}

// RPCStatus reports node reachability as measured by a head request.
type RPCStatus struct {
	Connected bool   `json:"connected"`
	Latency   string `json:"latency,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Health is the full health endpoint payload.
type Health struct {
	Status      string     `json:"status"`
	LatestBlock uint64     `json:"latestBlock"`
	SyncStatus  SyncStatus `json:"syncStatus"`
	RPCStatus   RPCStatus  `json:"rpcStatus"`
	Timestamp   time.Time  `json:"timestamp"`
}
