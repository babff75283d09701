package model

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatTokenAmount(t *testing.T) {
	tests := []struct {
		name     string
		value    *big.Int
		decimals uint8
		want     float64
	}{
		{"six decimals", big.NewInt(1_234_567), 6, 1.234567},
		{"whole units", big.NewInt(42), 0, 42},
		{"sub-unit dust", big.NewInt(1), 6, 0.000001},
		{"zero", big.NewInt(0), 6, 0},
		{"nil", nil, 6, 0},
		{"wei to gwei", big.NewInt(25_000_000_000), GweiDecimals, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, FormatTokenAmount(tt.value, tt.decimals), 1e-12)
		})
	}
}

func TestTransferEventRecord(t *testing.T) {
	event := TransferEvent{
		TxHash:         "0x1",
		BlockNumber:    11975000,
		BlockTimestamp: 1700000000,
		From:           "0xA",
		To:             "0xB",
		RawAmount:      big.NewInt(1_500_000),
		GasUsed:        21000,
		GasPrice:       big.NewInt(25_000_000_000),
	}

	record := event.Record(6)
	require.Equal(t, "0x1", record.TxHash)
	require.InDelta(t, 1.5, record.Amount, 1e-9)
	require.InDelta(t, 25, record.GasPrice, 1e-9)
	require.InDelta(t, 21000*25.0, record.Fee, 1e-9)
	require.Equal(t, int64(1700000000), record.Timestamp.Unix())
}
