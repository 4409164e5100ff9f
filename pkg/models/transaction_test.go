package models

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest() *PaymentRequest {
	return &PaymentRequest{
		OrderID:   "order-1",
		Amount:    big.NewInt(1000),
		Token:     NativeToken("ETH", 18, 1),
		Recipient: common.HexToAddress("0x1234567890123456789012345678901234567890"),
		ChainID:   1,
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"pending to confirming", StatusPending, StatusConfirming, true},
		{"pending to failed", StatusPending, StatusFailed, true},
		{"pending to cancelled", StatusPending, StatusCancelled, true},
		{"pending to confirmed", StatusPending, StatusConfirmed, false},
		{"confirming to confirmed", StatusConfirming, StatusConfirmed, true},
		{"confirming to failed", StatusConfirming, StatusFailed, true},
		{"confirming to pending", StatusConfirming, StatusPending, true},
		{"confirming to cancelled", StatusConfirming, StatusCancelled, true},
		{"failed to pending", StatusFailed, StatusPending, true},
		{"failed to cancelled", StatusFailed, StatusCancelled, true},
		{"failed to confirmed", StatusFailed, StatusConfirmed, false},
		{"confirmed is terminal", StatusConfirmed, StatusPending, false},
		{"confirmed cannot fail", StatusConfirmed, StatusFailed, false},
		{"cancelled is terminal", StatusCancelled, StatusPending, false},
		{"cancelled cannot confirm", StatusCancelled, StatusConfirmed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTransitionTo(t *testing.T) {
	tx := NewPaymentTransaction(testRequest(), common.Address{}, 3)
	require.Equal(t, StatusPending, tx.Status)

	before := tx.UpdatedAt
	time.Sleep(time.Millisecond)

	require.NoError(t, tx.TransitionTo(StatusConfirming))
	assert.Equal(t, StatusConfirming, tx.Status)
	assert.True(t, tx.UpdatedAt.After(before))

	err := tx.TransitionTo(StatusPending)
	require.NoError(t, err)

	// Invalid edge leaves the status untouched
	require.NoError(t, tx.TransitionTo(StatusFailed))
	err = tx.TransitionTo(StatusConfirmed)
	assert.Error(t, err)
	assert.Equal(t, StatusFailed, tx.Status)
}

func TestIsTerminal(t *testing.T) {
	tx := NewPaymentTransaction(testRequest(), common.Address{}, 3)
	assert.False(t, tx.IsTerminal())

	tx.Status = StatusConfirmed
	assert.True(t, tx.IsTerminal())

	tx.Status = StatusCancelled
	assert.True(t, tx.IsTerminal())

	tx.Status = StatusFailed
	assert.False(t, tx.IsTerminal(), "failed payments can still be retried")
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	tx := NewPaymentTransaction(testRequest(), common.Address{}, 3)
	tx.GasFee = big.NewInt(42)

	snap := tx.Snapshot()
	snap.Amount.SetInt64(999)
	snap.GasFee.SetInt64(999)
	snap.Status = StatusConfirmed

	assert.Equal(t, int64(1000), tx.Amount.Int64())
	assert.Equal(t, int64(42), tx.GasFee.Int64())
	assert.Equal(t, StatusPending, tx.Status)
}

func TestNewPaymentTransactionAssignsID(t *testing.T) {
	a := NewPaymentTransaction(testRequest(), common.Address{}, 3)
	b := NewPaymentTransaction(testRequest(), common.Address{}, 3)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 3, a.MaxRetries)
	assert.Zero(t, a.RetryCount)
}
