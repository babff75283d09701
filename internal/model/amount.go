package model

import "math/big"

// FormatTokenAmount converts a raw integer amount in the token's smallest
// unit into token units by dividing by 10^decimals.
func FormatTokenAmount(value *big.Int, decimals uint8) float64 {
	if value == nil {
		return 0
	}
	rat := new(big.Rat).SetInt(value)
	if decimals > 0 {
		denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
		rat.Quo(rat, new(big.Rat).SetInt(denom))
	}
	f, _ := rat.Float64()
	return f
}

// GweiDecimals converts wei gas prices into gwei via FormatTokenAmount.
const GweiDecimals uint8 = 9
