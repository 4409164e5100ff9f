package classifier

import (
	"strings"
)

// Classify maps a raw failure onto the closed taxonomy. It is a total, pure
// function: every input (nil included) yields exactly one kind, and no I/O
// happens here.
//
// Match precedence matters: wallet connectivity before balance, balance
// before user rejection, rejection before generic network matches, network
// before provider-specific causes. A generic "network" substring must not
// mask a more specific cause.
func Classify(err error) *PaymentError {
	if err == nil {
		return Describe(KindUnknown, "no error provided")
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	// Wallet connectivity.
	case containsAny(lower,
		"wallet not connected",
		"no wallet",
		"not initialized",
		"client not connected",
		"account not found"):
		return Describe(KindWalletNotConnected, msg)

	// Balance, gas funds before generic balance wording.
	case containsAny(lower,
		"insufficient funds for gas",
		"insufficient gas"):
		return Describe(KindInsufficientGas, msg)
	case containsAny(lower,
		"insufficient balance",
		"insufficient funds",
		"exceeds balance",
		"transfer amount exceeds"):
		return Describe(KindInsufficientBalance, msg)

	// User declined in the wallet.
	case containsAny(lower,
		"user rejected",
		"user denied",
		"rejected by user",
		"action_rejected"):
		return Describe(KindTransactionRejected, msg)

	// Wrong chain selected.
	case containsAny(lower,
		"wrong network",
		"chain mismatch",
		"unsupported chain",
		"chain id mismatch"):
		return Describe(KindWrongNetwork, msg)

	// Rate limiting before generic network matches; 429 responses often
	// carry "too many requests" alongside connection wording.
	case containsAny(lower,
		"rate limit",
		"too many requests",
		"429"):
		return Describe(KindRateLimited, msg)

	// Transaction-level timeouts before generic network timeouts.
	case containsAny(lower,
		"transaction timeout",
		"monitoring timeout",
		"not mined within"):
		return Describe(KindTransactionTimeout, msg)

	// Network connectivity.
	case containsAny(lower,
		"connection refused",
		"timeout",
		"timed out",
		"context deadline exceeded",
		"no response",
		"network error",
		"eof",
		"no such host"):
		return Describe(KindNetworkError, msg)

	// Gas estimation.
	case containsAny(lower,
		"gas estimation failed",
		"gas required exceeds allowance",
		"cannot estimate gas",
		"intrinsic gas too low"):
		return Describe(KindGasEstimationFailed, msg)

	// Contract execution.
	case containsAny(lower,
		"execution reverted",
		"transaction reverted",
		"invalid opcode",
		"out of gas"):
		return Describe(KindTransactionFailed, msg)
	case containsAny(lower,
		"contract validation failed",
		"contract execution failed"):
		return Describe(KindContractExecutionFailed, msg)
	case containsAny(lower,
		"no contract code",
		"contract not found",
		"not a contract"):
		return Describe(KindContractNotFound, msg)

	// Fiat processor.
	case containsAny(lower,
		"card declined",
		"card_declined",
		"do not honor"):
		return Describe(KindCardDeclined, msg)
	case containsAny(lower,
		"processor error",
		"payment processor",
		"stripe"):
		return Describe(KindFiatProcessorError, msg)

	// Service availability.
	case containsAny(lower,
		"circuit breaker is open",
		"circuit open"):
		return Describe(KindCircuitBreakerOpen, msg)
	case containsAny(lower,
		"service unavailable",
		"503",
		"maintenance",
		"backend unavailable"):
		return Describe(KindBackendUnavailable, msg)

	// Provider-specific RPC failures.
	case containsAny(lower,
		"rpc error",
		"missing trie node",
		"header not found",
		"block not found",
		"internal json-rpc"):
		return Describe(KindRPCError, msg)

	// Validation echoes. These normally fail before submission, but a raw
	// provider can still surface them.
	case containsAny(lower,
		"invalid amount",
		"amount must be"):
		return Describe(KindInvalidAmount, msg)
	case containsAny(lower,
		"invalid address",
		"invalid recipient",
		"bad checksum"):
		return Describe(KindInvalidAddress, msg)
	case containsAny(lower,
		"invalid token",
		"unknown token",
		"token not found"):
		return Describe(KindInvalidToken, msg)
	}

	return Describe(KindUnknown, msg)
}

func containsAny(s string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
