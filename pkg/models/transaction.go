package models

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Status is the lifecycle state of a payment transaction.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirming Status = "CONFIRMING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// validTransitions enumerates the edges of the status state machine.
// CONFIRMED and CANCELLED are terminal.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusConfirming, StatusFailed, StatusCancelled},
	StatusConfirming: {StatusConfirmed, StatusFailed, StatusPending, StatusCancelled},
	StatusFailed:     {StatusPending, StatusCancelled},
}

// CanTransition reports whether a status edge is permitted.
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentTransaction is the mutable record of an in-flight payment. It is
// owned by the lifecycle manager; callers only ever see snapshots.
type PaymentTransaction struct {
	ID            string
	OrderID       string
	Amount        *big.Int
	Token         PaymentToken
	Sender        common.Address
	Recipient     common.Address
	ChainID       int
	Status        Status
	TxHash        common.Hash
	BlockNumber   uint64
	GasUsed       uint64
	GasFee        *big.Int
	Confirmations uint64
	RetryCount    int
	MaxRetries    int
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewPaymentTransaction allocates a PENDING record for a validated request.
func NewPaymentTransaction(req *PaymentRequest, sender common.Address, maxRetries int) *PaymentTransaction {
	now := time.Now()
	return &PaymentTransaction{
		ID:         uuid.NewString(),
		OrderID:    req.OrderID,
		Amount:     new(big.Int).Set(req.Amount),
		Token:      req.Token,
		Sender:     sender,
		Recipient:  req.Recipient,
		ChainID:    req.ChainID,
		Status:     StatusPending,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// TransitionTo moves the transaction along a permitted status edge.
func (t *PaymentTransaction) TransitionTo(next Status) error {
	if !CanTransition(t.Status, next) {
		return fmt.Errorf("invalid status transition %s -> %s", t.Status, next)
	}
	t.Status = next
	t.UpdatedAt = time.Now()
	return nil
}

// IsTerminal reports whether the transaction reached a terminal status.
func (t *PaymentTransaction) IsTerminal() bool {
	return t.Status == StatusConfirmed || t.Status == StatusCancelled
}

// Snapshot returns a read-only copy safe to hand to callers.
func (t *PaymentTransaction) Snapshot() *PaymentTransaction {
	cp := *t
	if t.Amount != nil {
		cp.Amount = new(big.Int).Set(t.Amount)
	}
	if t.GasFee != nil {
		cp.GasFee = new(big.Int).Set(t.GasFee)
	}
	return &cp
}
