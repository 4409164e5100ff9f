package recovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazaarhq/paycore/pkg/classifier"
)

func allMethods() []Method {
	return []Method{
		{Kind: MethodCryptoNative, Label: "ETH", Available: true},
		{Kind: MethodCryptoToken, Label: "USDC", Available: true},
		{Kind: MethodEscrow, Label: "Escrow", Available: true},
		{Kind: MethodCard, Label: "Card", Available: true},
		{Kind: MethodBankTransfer, Label: "Bank transfer", Available: true},
	}
}

func TestSelectStrategy(t *testing.T) {
	tests := []struct {
		name string
		kind classifier.Kind
		ctx  Context
		want Strategy
	}{
		{"critical escalates", classifier.KindContractExecutionFailed, Context{}, StrategyEscalatedSupport},
		{"wallet disconnect is immediate", classifier.KindWalletNotConnected, Context{}, StrategyImmediateRecovery},
		{"gas estimation is immediate", classifier.KindGasEstimationFailed, Context{}, StrategyImmediateRecovery},
		{"rejection is immediate", classifier.KindTransactionRejected, Context{}, StrategyImmediateRecovery},
		{"balance is guided", classifier.KindInsufficientBalance, Context{}, StrategyGuidedRecovery},
		{"gas funds is guided", classifier.KindInsufficientGas, Context{}, StrategyGuidedRecovery},
		{"backend down prioritizes fallbacks", classifier.KindBackendUnavailable, Context{}, StrategyFallbackPriority},
		{"network error prioritizes fallbacks", classifier.KindNetworkError, Context{}, StrategyFallbackPriority},
		{"circuit open prioritizes fallbacks", classifier.KindCircuitBreakerOpen, Context{}, StrategyFallbackPriority},
		{"urgency promotes fallbacks", classifier.KindUnknown, Context{Urgency: UrgencyHigh}, StrategyFallbackPriority},
		{"default is generic", classifier.KindUnknown, Context{}, StrategyGenericRecovery},
		{"card declined is generic", classifier.KindCardDeclined, Context{}, StrategyGenericRecovery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := classifier.Describe(tt.kind, "x")
			assert.Equal(t, tt.want, selectStrategy(reason, tt.ctx))
		})
	}
}

func TestEscalationCarriesResolutionEstimate(t *testing.T) {
	o := NewOrchestrator(nil)

	critical := o.Handle(Method{Kind: MethodEscrow},
		classifier.Describe(classifier.KindContractExecutionFailed, "execution reverted"),
		Context{}, allMethods())
	require.Equal(t, StrategyEscalatedSupport, critical.Strategy)
	assert.Equal(t, 24*time.Hour, critical.EstimatedResolution)

	// Anything the user can recover from themselves carries no estimate.
	recoverable := o.Handle(Method{Kind: MethodCryptoNative},
		classifier.Describe(classifier.KindInsufficientBalance, "insufficient funds"),
		Context{}, allMethods())
	require.Equal(t, StrategyGuidedRecovery, recoverable.Strategy)
	assert.Zero(t, recoverable.EstimatedResolution)
}

func TestHandleNetworkErrorHighUrgencyPrefersOffChain(t *testing.T) {
	o := NewOrchestrator(nil)
	reason := classifier.Describe(classifier.KindNetworkError, "connection refused")
	ctx := Context{Urgency: UrgencyHigh}

	result := o.Handle(Method{Kind: MethodCryptoNative}, reason, ctx, allMethods())

	require.NotEmpty(t, result.Fallbacks)
	assert.Equal(t, StrategyFallbackPriority, result.Strategy)
	// Card: 70 base + 20 urgency + 30 off-chain = 120, ahead of every
	// on-chain method.
	assert.Equal(t, MethodCard, result.Fallbacks[0].Method.Kind)
	assert.Equal(t, 120, result.Fallbacks[0].Score)

	// Bank transfer is also off-chain and outranks all on-chain methods.
	var bankScore, nativeScore int
	for _, f := range result.Fallbacks {
		switch f.Method.Kind {
		case MethodBankTransfer:
			bankScore = f.Score
		case MethodCryptoNative:
			nativeScore = f.Score
		}
	}
	assert.Greater(t, bankScore, nativeScore)
}

func TestRankingIsDeterministic(t *testing.T) {
	o := NewOrchestrator(nil)
	reason := classifier.Describe(classifier.KindUnknown, "x")

	first := o.Handle(Method{Kind: MethodCard}, reason, Context{}, allMethods())
	for i := 0; i < 5; i++ {
		again := o.Handle(Method{Kind: MethodCard}, reason, Context{}, allMethods())
		require.Equal(t, len(first.Fallbacks), len(again.Fallbacks))
		for j := range first.Fallbacks {
			assert.Equal(t, first.Fallbacks[j].Method.Kind, again.Fallbacks[j].Method.Kind)
			assert.Equal(t, first.Fallbacks[j].Score, again.Fallbacks[j].Score)
		}
	}
}

func TestBaseScoresWithoutContext(t *testing.T) {
	o := NewOrchestrator(nil)
	reason := classifier.Describe(classifier.KindUnknown, "x")

	result := o.Handle(Method{Kind: MethodCard}, reason, Context{}, allMethods())

	wantOrder := []MethodKind{MethodCard, MethodCryptoNative, MethodCryptoToken, MethodEscrow, MethodBankTransfer}
	require.Len(t, result.Fallbacks, len(wantOrder))
	for i, kind := range wantOrder {
		assert.Equal(t, kind, result.Fallbacks[i].Method.Kind)
	}
}

func TestRetryBackoffGrowth(t *testing.T) {
	o := NewOrchestrator(nil)
	reason := classifier.Describe(classifier.KindNetworkError, "timeout")
	method := Method{Kind: MethodCryptoNative}

	// attempt 1: 10s * 2^1 = 20s
	first := o.Handle(method, reason, Context{}, nil)
	assert.Equal(t, 20*time.Second, first.Retry.RetryAfter)
	assert.Equal(t, 1, first.Retry.CurrentAttempt)
	assert.True(t, first.Retry.CanRetry)
	assert.True(t, first.Retry.AutoRetry)

	// attempt 2: 10s * 2^2 = 40s
	second := o.Handle(method, reason, Context{}, nil)
	assert.Equal(t, 40*time.Second, second.Retry.RetryAfter)

	// backoff is capped
	for i := 0; i < 10; i++ {
		o.Handle(method, reason, Context{}, nil)
	}
	capped := o.Handle(method, reason, Context{}, nil)
	assert.Equal(t, maxRetryAfter, capped.Retry.RetryAfter)
	assert.False(t, capped.Retry.CanRetry, "retry budget exhausted")
}

func TestRetryBackoffHalvedUnderUrgency(t *testing.T) {
	o := NewOrchestrator(nil)
	reason := classifier.Describe(classifier.KindNetworkError, "timeout")

	result := o.Handle(Method{Kind: MethodCryptoNative}, reason, Context{Urgency: UrgencyHigh}, nil)
	assert.Equal(t, 10*time.Second, result.Retry.RetryAfter, "20s halved")
}

func TestRateLimitedHonorsProviderHint(t *testing.T) {
	o := NewOrchestrator(nil)
	reason := classifier.Describe(classifier.KindRateLimited, "429")
	reason.RetryAfter = 42 * time.Second

	result := o.Handle(Method{Kind: MethodCryptoToken}, reason, Context{}, nil)
	// Constant interval: multiplier 1 keeps the provider hint as-is.
	assert.Equal(t, 42*time.Second, result.Retry.RetryAfter)
	assert.Equal(t, 2, result.Retry.MaxRetries)
}

func TestNonRetryableReasonBlocksRetry(t *testing.T) {
	o := NewOrchestrator(nil)
	reason := classifier.Describe(classifier.KindInsufficientBalance, "insufficient balance")

	result := o.Handle(Method{Kind: MethodCryptoNative}, reason, Context{}, nil)
	assert.False(t, result.Retry.CanRetry)
	assert.False(t, result.Retry.AutoRetry)
}

func TestRecordSuccessResetsAttempts(t *testing.T) {
	o := NewOrchestrator(nil)
	reason := classifier.Describe(classifier.KindNetworkError, "timeout")
	method := Method{Kind: MethodCryptoNative}

	o.Handle(method, reason, Context{}, nil)
	o.Handle(method, reason, Context{}, nil)
	o.RecordSuccess(MethodCryptoNative, classifier.KindNetworkError)

	result := o.Handle(method, reason, Context{}, nil)
	assert.Equal(t, 1, result.Retry.CurrentAttempt)
}

func TestFailureHistoryIsBounded(t *testing.T) {
	o := NewOrchestrator(nil)
	reason := classifier.Describe(classifier.KindNetworkError, "timeout")

	var last *HandlingResult
	for i := 0; i < historyCap+10; i++ {
		last = o.Handle(Method{Kind: MethodCryptoNative}, reason, Context{}, nil)
	}
	assert.Equal(t, historyCap, last.Diagnostic.RecentFailures)
	assert.Equal(t, historyCap, o.FailureCount(MethodCryptoNative, time.Hour))
}

func TestAlternatives(t *testing.T) {
	o := NewOrchestrator(nil)

	t.Run("temporary failure with fallbacks", func(t *testing.T) {
		reason := classifier.Describe(classifier.KindNetworkError, "timeout")
		result := o.Handle(Method{Kind: MethodCryptoNative}, reason, Context{}, allMethods())

		types := make([]string, 0, len(result.Alternatives))
		for _, alt := range result.Alternatives {
			types = append(types, alt.Type)
		}
		assert.Contains(t, types, "immediate_fallback")
		assert.Contains(t, types, "delayed_retry")
		assert.Contains(t, types, "network_switch")
		assert.True(t, result.CanProceedWithoutAction)

		// Sorted by descending estimated success rate.
		for i := 1; i < len(result.Alternatives); i++ {
			assert.GreaterOrEqual(t,
				result.Alternatives[i-1].EstimatedSuccessRate,
				result.Alternatives[i].EstimatedSuccessRate)
		}
	})

	t.Run("gas estimation suggests parameter adjustment", func(t *testing.T) {
		reason := classifier.Describe(classifier.KindGasEstimationFailed, "cannot estimate gas")
		result := o.Handle(Method{Kind: MethodCryptoToken}, reason, Context{}, nil)

		var found bool
		for _, alt := range result.Alternatives {
			if alt.Type == "parameter_adjustment" {
				found = true
			}
		}
		assert.True(t, found)
	})

	t.Run("rejection can proceed without fallbacks", func(t *testing.T) {
		reason := classifier.Describe(classifier.KindTransactionRejected, "user rejected")
		result := o.Handle(Method{Kind: MethodCryptoNative}, reason, Context{}, nil)
		assert.True(t, result.CanProceedWithoutAction)
	})

	t.Run("no options for hard failure without fallbacks", func(t *testing.T) {
		reason := classifier.Describe(classifier.KindInsufficientBalance, "insufficient balance")
		result := o.Handle(Method{Kind: MethodCryptoNative}, reason, Context{}, nil)
		assert.False(t, result.CanProceedWithoutAction)
	})
}

func TestGuidanceTemplates(t *testing.T) {
	for _, kind := range []classifier.Kind{
		classifier.KindWalletNotConnected,
		classifier.KindInsufficientBalance,
		classifier.KindNetworkError,
		classifier.KindCardDeclined,
	} {
		g := guidanceFor(kind)
		assert.NotEmpty(t, g.Recommendation, kind)
		assert.NotEmpty(t, g.Steps, kind)
	}

	generic := guidanceFor(classifier.KindUnknown)
	assert.Equal(t, genericGuidance.Recommendation, generic.Recommendation)
}

func TestCleanup(t *testing.T) {
	o := NewOrchestrator(nil)
	reason := classifier.Describe(classifier.KindNetworkError, "timeout")
	o.Handle(Method{Kind: MethodCryptoNative}, reason, Context{}, nil)

	require.Equal(t, 1, o.FailureCount(MethodCryptoNative, time.Hour))

	o.Cleanup(0)
	assert.Equal(t, 0, o.FailureCount(MethodCryptoNative, time.Hour))

	// Counters reset too: the next failure is attempt one again.
	result := o.Handle(Method{Kind: MethodCryptoNative}, reason, Context{}, nil)
	assert.Equal(t, 1, result.Retry.CurrentAttempt)
}

func TestMethodKindOnChain(t *testing.T) {
	assert.True(t, MethodCryptoNative.OnChain())
	assert.True(t, MethodCryptoToken.OnChain())
	assert.True(t, MethodEscrow.OnChain())
	assert.False(t, MethodCard.OnChain())
	assert.False(t, MethodBankTransfer.OnChain())
}
