package models

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
)

// Priority selects how aggressively gas is priced for a payment.
type Priority string

const (
	PrioritySlow     Priority = "slow"
	PriorityStandard Priority = "standard"
	PriorityFast     Priority = "fast"
	PriorityInstant  Priority = "instant"
)

// ResolutionMethod selects how an escrow dispute is resolved.
type ResolutionMethod uint8

const (
	ResolutionMutual ResolutionMethod = iota
	ResolutionArbiter
	ResolutionTimeout
)

// EscrowParams carries the extra parameters for an escrow-routed payment.
type EscrowParams struct {
	DeliveryDeadline time.Time        `validate:"required"`
	Arbiter          common.Address   `validate:"-"`
	Resolution       ResolutionMethod `validate:"lte=2"`
}

// PaymentRequest is the immutable input for a payment submission.
// Amount is an unsigned integer in the token's smallest unit.
type PaymentRequest struct {
	OrderID   string         `validate:"required"`
	Amount    *big.Int       `validate:"required"`
	Token     PaymentToken   `validate:"required"`
	Recipient common.Address `validate:"required"`
	ChainID   int            `validate:"required,gt=0"`
	Priority  Priority       `validate:"omitempty,oneof=slow standard fast instant"`

	// Deadline is an optional unix-seconds expiry for the request.
	Deadline int64

	// Escrow, when set, routes the payment through the escrow contract.
	Escrow *EscrowParams
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	return v
}

// Validation errors surfaced to callers. These are hard errors and are
// never retried.
var (
	ErrInvalidAmount  = fmt.Errorf("amount must be greater than zero")
	ErrInvalidAddress = fmt.Errorf("recipient is not a valid address")
	ErrInvalidToken   = fmt.Errorf("token descriptor is invalid")
	ErrDeadlinePassed = fmt.Errorf("request deadline already passed")
)

// Validate checks the request before any network interaction.
func (r *PaymentRequest) Validate() error {
	// Amount checks come first so malformed amounts are reported before
	// anything else, and before any chain call is made.
	if r.Amount == nil || r.Amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if r.Recipient == (common.Address{}) {
		return ErrInvalidAddress
	}
	if !r.Token.IsNative && r.Token.Address == (common.Address{}) {
		return ErrInvalidToken
	}
	if r.Token.ChainID != 0 && r.Token.ChainID != r.ChainID {
		return fmt.Errorf("%w: token belongs to chain %d, request targets %d", ErrInvalidToken, r.Token.ChainID, r.ChainID)
	}
	if r.Deadline != 0 && time.Now().Unix() > r.Deadline {
		return ErrDeadlinePassed
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid payment request: %w", err)
	}
	if r.Escrow != nil {
		if r.Escrow.DeliveryDeadline.Before(time.Now()) {
			return fmt.Errorf("escrow delivery deadline already passed")
		}
		if r.Escrow.Resolution == ResolutionArbiter && r.Escrow.Arbiter == (common.Address{}) {
			return fmt.Errorf("arbiter resolution requires an arbiter address")
		}
	}
	return nil
}

// EffectivePriority returns the request priority, defaulting to standard.
func (r *PaymentRequest) EffectivePriority() Priority {
	if r.Priority == "" {
		return PriorityStandard
	}
	return r.Priority
}
