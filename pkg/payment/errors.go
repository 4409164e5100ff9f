package payment

import "fmt"

var (
	// ErrNotFound is returned when no payment with the given ID exists.
	ErrNotFound = fmt.Errorf("payment not found")

	// ErrUnsupportedChain is returned when a request names a chain the
	// manager has no backend for.
	ErrUnsupportedChain = fmt.Errorf("unsupported chain")

	// ErrRetriesExhausted is returned when a failed payment has no retry
	// budget left.
	ErrRetriesExhausted = fmt.Errorf("maximum retries exhausted")

	// ErrAlreadyConfirmed is returned when a cancel targets a confirmed
	// payment.
	ErrAlreadyConfirmed = fmt.Errorf("payment already confirmed")

	// ErrNotRetryable is returned when a retry targets a payment that is
	// not in the FAILED state.
	ErrNotRetryable = fmt.Errorf("payment is not in a retryable state")

	// ErrNotCancellable is returned when a cancel targets a payment in a
	// terminal state other than CONFIRMED.
	ErrNotCancellable = fmt.Errorf("payment is not in a cancellable state")

	// ErrCircuitOpen is returned when the chain's circuit breaker blocks
	// submission.
	ErrCircuitOpen = fmt.Errorf("chain circuit breaker is open")

	// ErrEscrowNotConfigured is returned when an escrow operation hits a
	// chain without an escrow deployment.
	ErrEscrowNotConfigured = fmt.Errorf("no escrow contract configured for chain")
)

// InsufficientBalanceError reports which asset the sender is short of.
type InsufficientBalanceError struct {
	Symbol string
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: %s", e.Symbol)
}
