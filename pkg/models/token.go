package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PaymentToken describes an asset a payment can be denominated in.
// Instances are created at configuration time and never mutated.
type PaymentToken struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
	ChainID  int
	IsNative bool
}

// NativeToken returns the descriptor for a chain's native asset.
// The address field is left as the zero sentinel.
func NativeToken(symbol string, decimals uint8, chainID int) PaymentToken {
	return PaymentToken{
		Symbol:   symbol,
		Decimals: decimals,
		ChainID:  chainID,
		IsNative: true,
	}
}

// ERC20Token returns the descriptor for a token contract.
func ERC20Token(address common.Address, symbol string, decimals uint8, chainID int) PaymentToken {
	return PaymentToken{
		Address:  address,
		Symbol:   symbol,
		Decimals: decimals,
		ChainID:  chainID,
	}
}

// FormatAmount renders an amount in the token's smallest unit as a
// human-readable decimal string, e.g. 1500000 USDC units -> "1.5".
func (t PaymentToken) FormatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(t.Decimals)).String()
}
