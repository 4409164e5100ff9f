package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazaarhq/paycore/pkg/models"
	"github.com/bazaarhq/paycore/pkg/payment"
	"github.com/bazaarhq/paycore/pkg/payment/mocks"
)

// fastConfig polls aggressively so monitor tests settle in milliseconds.
func fastConfig() payment.Config {
	return payment.Config{
		MonitorInterval:      5 * time.Millisecond,
		MonitorErrorInterval: 5 * time.Millisecond,
		MonitorTimeout:       time.Hour,
	}
}

func waitForStatus(t *testing.T, m *payment.Manager, id string, want models.Status) *models.PaymentTransaction {
	t.Helper()
	var got *models.PaymentTransaction
	require.Eventually(t, func() bool {
		tx, err := m.GetStatus(id)
		if err != nil {
			return false
		}
		got = tx
		return tx.Status == want
	}, 2*time.Second, 5*time.Millisecond, "payment never reached %s", want)
	return got
}

func TestMonitorConfirmsPayment(t *testing.T) {
	chain := mocks.NewMockChain()
	m := newManager(t, fastConfig(), newBackend(chain))

	tx, err := m.Submit(context.Background(), nativeRequest(oneEther))
	require.NoError(t, err)

	// Mined 10 blocks behind the head: well past the 2 required
	// confirmations.
	chain.SetReceipt(tx.TxHash, types.ReceiptStatusSuccessful, 990)

	confirmed := waitForStatus(t, m, tx.ID, models.StatusConfirmed)
	assert.Equal(t, uint64(990), confirmed.BlockNumber)
	assert.Equal(t, uint64(21000), confirmed.GasUsed)
	assert.GreaterOrEqual(t, confirmed.Confirmations, uint64(2))
	assert.Equal(t, 0, m.ActiveCount())

	t.Run("receipt is available", func(t *testing.T) {
		receipt, err := m.GenerateReceipt(tx.ID)
		require.NoError(t, err)
		assert.Equal(t, tx.ID, receipt.TransactionID)
		assert.Equal(t, "order-1", receipt.OrderID)
		assert.Equal(t, "1", receipt.Amount)
		assert.Equal(t, "ETH", receipt.Symbol)
		// 21000 gas at 2 Gwei.
		assert.Equal(t, "0.000042", receipt.GasFee)
		assert.Equal(t, models.StatusConfirmed, receipt.Status)
	})

	t.Run("confirmed payment cannot be cancelled", func(t *testing.T) {
		_, err := m.Cancel(tx.ID)
		assert.ErrorIs(t, err, payment.ErrAlreadyConfirmed)
	})

	t.Run("confirmed payment cannot be retried", func(t *testing.T) {
		_, err := m.Retry(context.Background(), tx.ID)
		assert.ErrorIs(t, err, payment.ErrAlreadyConfirmed)
	})
}

func TestMonitorWaitsForConfirmations(t *testing.T) {
	chain := mocks.NewMockChain()
	backend := newBackend(chain)
	backend.RequiredConfirmations = 5
	m := newManager(t, fastConfig(), backend)

	tx, err := m.Submit(context.Background(), nativeRequest(oneEther))
	require.NoError(t, err)

	// One confirmation at head 1000: not enough yet.
	chain.SetReceipt(tx.TxHash, types.ReceiptStatusSuccessful, 999)

	time.Sleep(50 * time.Millisecond)
	got, err := m.GetStatus(tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirming, got.Status)

	chain.SetHead(1010)
	waitForStatus(t, m, tx.ID, models.StatusConfirmed)
}

func TestMonitorDetectsRevert(t *testing.T) {
	chain := mocks.NewMockChain()
	m := newManager(t, fastConfig(), newBackend(chain))

	tx, err := m.Submit(context.Background(), nativeRequest(oneEther))
	require.NoError(t, err)

	chain.SetReceipt(tx.TxHash, types.ReceiptStatusFailed, 990)

	failed := waitForStatus(t, m, tx.ID, models.StatusFailed)
	assert.Equal(t, "Transaction reverted", failed.FailureReason)
	assert.Equal(t, uint64(990), failed.BlockNumber)
	assert.Equal(t, 0, m.ActiveCount())
}

func TestMonitorTimeoutReturnsToPending(t *testing.T) {
	chain := mocks.NewMockChain()

	cfg := fastConfig()
	cfg.MonitorTimeout = 30 * time.Millisecond
	m := newManager(t, cfg, newBackend(chain))

	// No receipt ever appears: the transaction is stuck in the mempool.
	tx, err := m.Submit(context.Background(), nativeRequest(oneEther))
	require.NoError(t, err)

	pending := waitForStatus(t, m, tx.ID, models.StatusPending)
	assert.Equal(t, "Monitoring timeout", pending.FailureReason)
	// The outcome is unknown, not failed: the payment stays active.
	assert.Equal(t, 1, m.ActiveCount())
}

func TestCancelStopsMonitoring(t *testing.T) {
	chain := mocks.NewMockChain()
	m := newManager(t, fastConfig(), newBackend(chain))

	tx, err := m.Submit(context.Background(), nativeRequest(oneEther))
	require.NoError(t, err)

	cancelled, err := m.Cancel(tx.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCancelled, cancelled.Status)

	// A receipt arriving after cancellation changes nothing.
	chain.SetReceipt(tx.TxHash, types.ReceiptStatusSuccessful, 990)
	time.Sleep(50 * time.Millisecond)

	got, err := m.GetStatus(tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
}

func confirmEscrowPayment(t *testing.T, m *payment.Manager, chain *mocks.MockChain, req *models.PaymentRequest) *models.PaymentTransaction {
	t.Helper()
	tx, err := m.Submit(context.Background(), req)
	require.NoError(t, err)
	chain.SetReceipt(tx.TxHash, types.ReceiptStatusSuccessful, 990)
	return waitForStatus(t, m, tx.ID, models.StatusConfirmed)
}

func TestReleaseEscrow(t *testing.T) {
	chain := mocks.NewMockChain()
	m := newManager(t, fastConfig(), newBackend(chain))

	tx := confirmEscrowPayment(t, m, chain, escrowRequest(nativeRequest(oneEther)))

	hash, err := m.ReleaseEscrow(context.Background(), tx.ID, "delivered")
	require.NoError(t, err)
	assert.NotZero(t, hash)
	assert.Contains(t, chain.CallSequence(), "ConfirmDelivery")
}

func TestRefundEscrow(t *testing.T) {
	chain := mocks.NewMockChain()
	m := newManager(t, fastConfig(), newBackend(chain))

	tx := confirmEscrowPayment(t, m, chain, escrowRequest(nativeRequest(oneEther)))

	hash, err := m.RefundEscrow(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.NotZero(t, hash)
	assert.Contains(t, chain.CallSequence(), "EmergencyRefund")
}

func TestEscrowOpsRequireConfirmedEscrow(t *testing.T) {
	chain := mocks.NewMockChain()
	m := newManager(t, quietConfig(), newBackend(chain))

	t.Run("unconfirmed escrow", func(t *testing.T) {
		tx, err := m.Submit(context.Background(), escrowRequest(nativeRequest(oneEther)))
		require.NoError(t, err)
		require.Equal(t, models.StatusConfirming, tx.Status)

		_, err = m.ReleaseEscrow(context.Background(), tx.ID, "")
		assert.ErrorIs(t, err, models.ErrNotConfirmed)

		_, err = m.RefundEscrow(context.Background(), tx.ID)
		assert.ErrorIs(t, err, models.ErrNotConfirmed)
	})

	t.Run("non-escrow payment", func(t *testing.T) {
		req := nativeRequest(oneEther)
		req.OrderID = "order-plain"
		tx, err := m.Submit(context.Background(), req)
		require.NoError(t, err)

		_, err = m.ReleaseEscrow(context.Background(), tx.ID, "")
		assert.Error(t, err)
	})

	t.Run("unknown payment", func(t *testing.T) {
		_, err := m.ReleaseEscrow(context.Background(), "no-such-id", "")
		assert.ErrorIs(t, err, payment.ErrNotFound)
	})
}
