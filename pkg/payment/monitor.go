package payment

import (
	"context"
	"errors"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bazaarhq/paycore/pkg/classifier"
	"github.com/bazaarhq/paycore/pkg/metrics"
	"github.com/bazaarhq/paycore/pkg/models"
)

const monitorTimeoutReason = "Monitoring timeout"

// startMonitor spawns the confirmation monitor for a CONFIRMING entry.
// The monitor context derives from the manager's root context and is
// additionally bounded by the monitor timeout. The entry lock is held
// by the caller.
func (m *Manager) startMonitor(e *entry, backend *Backend) {
	if e.cancelMonitor != nil {
		// A retry replaces any previous monitor; release its context.
		e.cancelMonitor()
	}
	mctx, cancel := context.WithTimeout(m.ctx, m.cfg.MonitorTimeout)
	e.cancelMonitor = cancel
	e.monitorCtx = mctx

	m.wg.Add(1)
	go func() {
		// Release the timeout timer once monitoring ends, however it
		// ends. Cancel and the monitor racing here is fine: CancelFunc
		// is idempotent.
		defer cancel()
		m.monitor(mctx, e, backend)
	}()
}

// monitor polls for the transaction receipt until the payment reaches a
// terminal state or the monitor context ends. A context deadline moves
// the payment back to PENDING: the transaction may still confirm later,
// so the outcome is reported as unknown rather than failed.
func (m *Manager) monitor(ctx context.Context, e *entry, backend *Backend) {
	defer m.wg.Done()

	e.mu.Lock()
	txHash := e.tx.TxHash
	chainID := e.tx.ChainID
	e.mu.Unlock()

	interval := m.cfg.MonitorInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.monitorStopped(ctx, e)
			return
		case <-timer.C:
		}

		receipt, err := backend.Chain.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil:
			done, wait := m.observeReceipt(ctx, e, backend, receipt)
			if done {
				return
			}
			interval = wait
		case errors.Is(err, ethereum.NotFound):
			interval = m.cfg.MonitorInterval
		case ctx.Err() != nil:
			m.monitorStopped(ctx, e)
			return
		default:
			m.logger.DebugWithChain(chainID, "Receipt poll failed for %s: %v", txHash.Hex(), err)
			interval = m.cfg.MonitorErrorInterval
		}

		timer.Reset(interval)
	}
}

// observeReceipt folds a mined receipt into the entry. It returns true
// when monitoring is finished, otherwise the next poll interval.
func (m *Manager) observeReceipt(ctx context.Context, e *entry, backend *Backend, receipt *types.Receipt) (bool, time.Duration) {
	head, err := backend.Chain.BlockNumber(ctx)
	if err != nil {
		m.logger.DebugWithChain(e.tx.ChainID, "Block number poll failed: %v", err)
		return false, m.cfg.MonitorErrorInterval
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Cancel won the race: stop quietly.
	if e.tx.Status != models.StatusConfirming {
		return true, 0
	}

	chainLabel := strconv.Itoa(e.tx.ChainID)

	if receipt.Status == types.ReceiptStatusFailed {
		perr := classifier.Describe(classifier.KindTransactionFailed, "execution reverted")
		if err := e.tx.TransitionTo(models.StatusFailed); err == nil {
			e.tx.FailureReason = "Transaction reverted"
			e.tx.BlockNumber = receipt.BlockNumber.Uint64()
			e.tx.GasUsed = receipt.GasUsed
			metrics.ActivePayments.Dec()
			metrics.PaymentsFailed.WithLabelValues(chainLabel, string(perr.Kind)).Inc()
		}
		if backend.Breaker != nil && backend.Breaker.RecordFailure() {
			metrics.CircuitBreakerTrips.WithLabelValues(chainLabel).Inc()
		}
		m.logger.ErrorWithChain(e.tx.ChainID, "Payment %s reverted in block %d", e.tx.ID, receipt.BlockNumber.Uint64())
		return true, 0
	}

	e.tx.BlockNumber = receipt.BlockNumber.Uint64()
	e.tx.GasUsed = receipt.GasUsed
	if receipt.EffectiveGasPrice != nil {
		e.tx.GasFee = new(big.Int).Mul(receipt.EffectiveGasPrice, new(big.Int).SetUint64(receipt.GasUsed))
	}

	// Confirmations only ever grow while the same receipt is observed.
	if head >= e.tx.BlockNumber {
		if conf := head - e.tx.BlockNumber; conf > e.tx.Confirmations {
			e.tx.Confirmations = conf
		}
	}

	if e.tx.Confirmations < backend.RequiredConfirmations {
		m.logger.DebugWithChain(e.tx.ChainID, "Payment %s: %d/%d confirmations",
			e.tx.ID, e.tx.Confirmations, backend.RequiredConfirmations)
		return false, m.cfg.MonitorInterval
	}

	if err := e.tx.TransitionTo(models.StatusConfirmed); err != nil {
		return true, 0
	}
	metrics.ActivePayments.Dec()
	metrics.PaymentsConfirmed.WithLabelValues(chainLabel).Inc()
	metrics.GasUsed.WithLabelValues(chainLabel).Observe(float64(receipt.GasUsed))
	if !e.submittedAt.IsZero() {
		metrics.ConfirmationTime.WithLabelValues(chainLabel).Observe(time.Since(e.submittedAt).Seconds())
	}
	if backend.Breaker != nil {
		backend.Breaker.RecordSuccess()
	}
	m.logger.InfoWithChain(e.tx.ChainID, "Payment %s confirmed in block %d with %d confirmations",
		e.tx.ID, e.tx.BlockNumber, e.tx.Confirmations)
	return true, 0
}

// monitorStopped handles monitor context termination. A deadline means
// the confirmation outcome is unknown: the payment drops back to
// PENDING for the caller to re-check or retry. Plain cancellation means
// the payment was cancelled and needs no bookkeeping here.
func (m *Manager) monitorStopped(ctx context.Context, e *entry) {
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tx.Status != models.StatusConfirming {
		return
	}
	if err := e.tx.TransitionTo(models.StatusPending); err != nil {
		return
	}
	e.tx.FailureReason = monitorTimeoutReason
	metrics.MonitorTimeouts.WithLabelValues(strconv.Itoa(e.tx.ChainID)).Inc()
	m.logger.NoticeWithChain(e.tx.ChainID, "Monitoring timed out for payment %s; outcome unknown", e.tx.ID)
}
