package classifier

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyNil(t *testing.T) {
	perr := Classify(nil)
	require.NotNil(t, perr)
	assert.Equal(t, KindUnknown, perr.Kind)
}

func TestClassifyKinds(t *testing.T) {
	tests := []struct {
		raw  string
		want Kind
	}{
		// Wallet connectivity.
		{"wallet not connected", KindWalletNotConnected},
		{"MetaMask: no wallet found", KindWalletNotConnected},
		{"provider not initialized", KindWalletNotConnected},
		{"client not connected", KindWalletNotConnected},

		// Gas funds before generic balance wording.
		{"insufficient funds for gas * price + value", KindInsufficientGas},
		{"err: insufficient gas for intrinsic cost", KindInsufficientGas},
		{"insufficient balance for transfer", KindInsufficientBalance},
		{"ERC20: transfer amount exceeds balance", KindInsufficientBalance},
		{"insufficient funds", KindInsufficientBalance},

		// User rejection.
		{"user rejected transaction", KindTransactionRejected},
		{"MetaMask Tx Signature: User denied transaction signature.", KindTransactionRejected},
		{"ACTION_REJECTED", KindTransactionRejected},

		// Wrong network.
		{"wrong network selected", KindWrongNetwork},
		{"chain id mismatch: expected 1, got 137", KindWrongNetwork},

		// Rate limiting wins over generic network wording.
		{"429 Too Many Requests", KindRateLimited},
		{"rate limit exceeded, connection closed", KindRateLimited},

		// Transaction timeouts before generic timeouts.
		{"transaction timeout after 10m", KindTransactionTimeout},
		{"tx not mined within deadline", KindTransactionTimeout},

		// Network connectivity.
		{"dial tcp: connection refused", KindNetworkError},
		{"request timed out", KindNetworkError},
		{"context deadline exceeded", KindNetworkError},
		{"unexpected EOF", KindNetworkError},
		{"dial tcp: lookup rpc.example: no such host", KindNetworkError},

		// Gas estimation.
		{"gas estimation failed", KindGasEstimationFailed},
		{"gas required exceeds allowance (21000)", KindGasEstimationFailed},
		{"cannot estimate gas; transaction may fail", KindGasEstimationFailed},

		// Contract execution.
		{"execution reverted: ERC20: insufficient allowance", KindTransactionFailed},
		{"transaction reverted without a reason string", KindTransactionFailed},
		{"invalid opcode: INVALID", KindTransactionFailed},
		{"contract execution failed", KindContractExecutionFailed},
		{"no contract code at given address", KindContractNotFound},

		// Fiat processor.
		{"card declined: do not honor", KindCardDeclined},
		{"card_declined", KindCardDeclined},
		{"payment processor returned error", KindFiatProcessorError},
		{"stripe: api_connection_error", KindFiatProcessorError},

		// Service availability.
		{"circuit breaker is open for chain 137", KindCircuitBreakerOpen},
		{"503 Service Unavailable", KindBackendUnavailable},
		{"scheduled maintenance in progress", KindBackendUnavailable},

		// Provider-specific RPC failures.
		{"rpc error: code = Unavailable", KindRPCError},
		{"missing trie node", KindRPCError},
		{"internal json-rpc error", KindRPCError},

		// Validation echoes.
		{"invalid amount: must be positive", KindInvalidAmount},
		{"invalid recipient address", KindInvalidAddress},
		{"unknown token 0xdead", KindInvalidToken},

		// Anything else.
		{"some completely novel failure", KindUnknown},
		{"", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			perr := Classify(fmt.Errorf("%s", tt.raw))
			require.NotNil(t, perr)
			assert.Equal(t, tt.want, perr.Kind)
			assert.Equal(t, tt.raw, perr.Message)
		})
	}
}

func TestClassifyPrecedence(t *testing.T) {
	t.Run("gas funds beat balance", func(t *testing.T) {
		perr := Classify(fmt.Errorf("insufficient funds for gas"))
		assert.Equal(t, KindInsufficientGas, perr.Kind)
	})

	t.Run("rejection beats network wording", func(t *testing.T) {
		perr := Classify(fmt.Errorf("user rejected request over network"))
		assert.Equal(t, KindTransactionRejected, perr.Kind)
	})

	t.Run("rate limit beats connection wording", func(t *testing.T) {
		perr := Classify(fmt.Errorf("too many requests: connection refused"))
		assert.Equal(t, KindRateLimited, perr.Kind)
	})

	t.Run("wallet beats everything", func(t *testing.T) {
		perr := Classify(fmt.Errorf("wallet not connected: connection refused"))
		assert.Equal(t, KindWalletNotConnected, perr.Kind)
	})
}

func TestClassifyIsTotal(t *testing.T) {
	// Every classified error carries a populated template.
	inputs := []string{
		"user rejected", "execution reverted", "gibberish", "timeout",
		"card declined", "invalid token", "rate limit",
	}
	for _, raw := range inputs {
		perr := Classify(fmt.Errorf("%s", raw))
		require.NotNil(t, perr)
		assert.NotEmpty(t, perr.UserMessage, raw)
		assert.NotEmpty(t, perr.Kind, raw)
	}
}

func TestDescribeTemplates(t *testing.T) {
	t.Run("critical kinds", func(t *testing.T) {
		assert.Equal(t, SeverityCritical, Describe(KindContractExecutionFailed, "x").Severity)
		assert.Equal(t, SeverityCritical, Describe(KindContractNotFound, "x").Severity)
	})

	t.Run("rejection is low severity and retryable", func(t *testing.T) {
		perr := Describe(KindTransactionRejected, "x")
		assert.Equal(t, SeverityLow, perr.Severity)
		assert.True(t, perr.Retryable)
	})

	t.Run("temporary kinds are retryable", func(t *testing.T) {
		for _, kind := range []Kind{KindNetworkError, KindBackendUnavailable, KindRateLimited} {
			perr := Describe(kind, "x")
			assert.True(t, perr.Temporary, kind)
			assert.True(t, perr.Retryable, kind)
		}
	})

	t.Run("error interface", func(t *testing.T) {
		var err error = Describe(KindNetworkError, "dial tcp: connection refused")
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("unknown kind falls back", func(t *testing.T) {
		perr := Describe(Kind("never-heard-of-it"), "x")
		require.NotNil(t, perr)
		assert.NotEmpty(t, perr.UserMessage)
	})

	t.Run("rate limited carries no default retry hint", func(t *testing.T) {
		perr := Describe(KindRateLimited, "429")
		assert.GreaterOrEqual(t, perr.RetryAfter, time.Duration(0))
	})
}
