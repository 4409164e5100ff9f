package models

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ErrNotConfirmed is returned when a receipt is requested for a
// transaction that has not been mined yet.
var ErrNotConfirmed = fmt.Errorf("transaction is not confirmed")

// Receipt is the immutable summary of a mined payment.
type Receipt struct {
	TransactionID string
	OrderID       string
	TxHash        common.Hash
	Amount        string
	Symbol        string
	GasFee        string
	BlockNumber   uint64
	Confirmations uint64
	Status        Status
	GeneratedAt   time.Time
}

// BuildReceipt produces a receipt snapshot. Both the transaction hash and
// the block number must be set; anything earlier has nothing to prove.
func BuildReceipt(t *PaymentTransaction) (*Receipt, error) {
	if t.TxHash == (common.Hash{}) || t.BlockNumber == 0 {
		return nil, ErrNotConfirmed
	}

	gasFee := "0"
	if t.GasFee != nil {
		// Gas is always paid in the chain's native asset (18 decimals).
		gasFee = decimal.NewFromBigInt(t.GasFee, -18).String()
	}

	return &Receipt{
		TransactionID: t.ID,
		OrderID:       t.OrderID,
		TxHash:        t.TxHash,
		Amount:        t.Token.FormatAmount(t.Amount),
		Symbol:        t.Token.Symbol,
		GasFee:        gasFee,
		BlockNumber:   t.BlockNumber,
		Confirmations: t.Confirmations,
		Status:        t.Status,
		GeneratedAt:   time.Now(),
	}, nil
}
