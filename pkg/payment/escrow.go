package payment

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bazaarhq/paycore/pkg/contracts"
	"github.com/bazaarhq/paycore/pkg/gasfee"
	"github.com/bazaarhq/paycore/pkg/metrics"
	"github.com/bazaarhq/paycore/pkg/models"
)

// ReleaseEscrow confirms delivery for a confirmed escrow payment,
// releasing the locked funds to the recipient. It blocks until the
// release transaction is mined.
func (m *Manager) ReleaseEscrow(ctx context.Context, id string, note string) (common.Hash, error) {
	e, backend, err := m.escrowEntry(id)
	if err != nil {
		return common.Hash{}, err
	}

	escrowID := EscrowID(e.req.OrderID)
	callData, err := contracts.PackConfirmDelivery(escrowID, note)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack confirmDelivery: %w", err)
	}

	return m.executeEscrowOp(ctx, e, backend, "release", callData, func(est *gasfee.Estimate) (common.Hash, error) {
		return backend.Chain.ConfirmDelivery(ctx, escrowID, note, est)
	})
}

// RefundEscrow triggers the emergency refund path for a confirmed
// escrow payment, returning the locked funds to the sender. It blocks
// until the refund transaction is mined.
func (m *Manager) RefundEscrow(ctx context.Context, id string) (common.Hash, error) {
	e, backend, err := m.escrowEntry(id)
	if err != nil {
		return common.Hash{}, err
	}

	escrowID := EscrowID(e.req.OrderID)
	callData, err := contracts.PackEmergencyRefund(escrowID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack refund: %w", err)
	}

	return m.executeEscrowOp(ctx, e, backend, "refund", callData, func(est *gasfee.Estimate) (common.Hash, error) {
		return backend.Chain.EmergencyRefund(ctx, escrowID, est)
	})
}

// escrowEntry resolves an escrow payment eligible for release or
// refund: it must exist, carry escrow parameters and be CONFIRMED.
func (m *Manager) escrowEntry(id string) (*entry, *Backend, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.req.Escrow == nil {
		return nil, nil, fmt.Errorf("payment %s is not an escrow payment", id)
	}
	if e.tx.Status != models.StatusConfirmed {
		return nil, nil, models.ErrNotConfirmed
	}

	backend, ok := m.backends[e.tx.ChainID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedChain, e.tx.ChainID)
	}
	if backend.Chain.EscrowAddress() == (common.Address{}) {
		return nil, nil, fmt.Errorf("%w: %d", ErrEscrowNotConfigured, e.tx.ChainID)
	}
	return e, backend, nil
}

// executeEscrowOp estimates, submits and waits out one escrow contract
// call, recording the per-operation metric.
func (m *Manager) executeEscrowOp(
	ctx context.Context,
	e *entry,
	backend *Backend,
	op string,
	callData []byte,
	send func(*gasfee.Estimate) (common.Hash, error),
) (common.Hash, error) {
	chainLabel := strconv.Itoa(e.tx.ChainID)
	escrowAddr := backend.Chain.EscrowAddress()

	est, err := backend.Estimator.Estimate(ctx, &escrowAddr, callData, nil, models.PriorityStandard)
	if err != nil {
		metrics.EscrowOperations.WithLabelValues(chainLabel, op, "error").Inc()
		return common.Hash{}, err
	}
	m.observeGasPrice(e.tx.ChainID, est)

	txHash, err := send(est)
	if err != nil {
		metrics.EscrowOperations.WithLabelValues(chainLabel, op, "error").Inc()
		return common.Hash{}, err
	}

	receipt, err := backend.Chain.WaitMined(ctx, txHash)
	if err != nil {
		metrics.EscrowOperations.WithLabelValues(chainLabel, op, "error").Inc()
		return txHash, fmt.Errorf("failed to wait for %s transaction: %w", op, err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		metrics.EscrowOperations.WithLabelValues(chainLabel, op, "reverted").Inc()
		return txHash, fmt.Errorf("%s transaction reverted", op)
	}

	metrics.EscrowOperations.WithLabelValues(chainLabel, op, "success").Inc()
	m.logger.InfoWithChain(e.tx.ChainID, "Escrow %s for payment %s mined: tx %s", op, e.tx.ID, txHash.Hex())
	return txHash, nil
}
