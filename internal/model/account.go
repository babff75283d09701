package model

import "time"

// Account is the per-address aggregate maintained by the ledger.
// LastBalance is the running signed sum of all transfer amounts applied to
// the address since the account was created; it can be negative when only
// partial history has been observed.
type Account struct {
	Address           string    `json:"address"`
	TotalVolume       float64   `json:"totalVolume"`
	TotalTransactions int64     `json:"totalTransactions"`
	LastBalance       float64   `json:"lastBalance"`
	FirstSeen         time.Time `json:"firstSeen"`
	LastActive        time.Time `json:"lastActive"`
}
