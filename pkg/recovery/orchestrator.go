package recovery

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/bazaarhq/paycore/pkg/classifier"
	"github.com/bazaarhq/paycore/pkg/logger"
)

const (
	// historyCap bounds the per-method failure history.
	historyCap = 10

	// attemptsCap bounds the (method, kind) attempt counter map.
	attemptsCap = 256

	// maxRetryAfter caps any computed backoff.
	maxRetryAfter = 600 * time.Second

	// minUrgentRetryAfter is the floor applied when urgency halves the wait.
	minUrgentRetryAfter = 5 * time.Second

	// escalationResolution is the resolution time quoted to users when a
	// critical failure is escalated to support.
	escalationResolution = 24 * time.Hour
)

type failureRecord struct {
	kind     classifier.Kind
	severity classifier.Severity
	at       time.Time
}

type attemptKey struct {
	method MethodKind
	kind   classifier.Kind
}

type attemptState struct {
	count int
	last  time.Time
}

// Orchestrator selects handling strategies and recovery plans for failed
// payment methods. It is explicitly constructed and injected; the only
// state it owns are the bounded failure history and attempt counters.
type Orchestrator struct {
	mu       sync.Mutex
	history  map[MethodKind][]failureRecord
	attempts map[attemptKey]*attemptState
	logger   logger.Logger
}

// NewOrchestrator creates an orchestrator with empty state.
func NewOrchestrator(log logger.Logger) *Orchestrator {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Orchestrator{
		history:  make(map[MethodKind][]failureRecord),
		attempts: make(map[attemptKey]*attemptState),
		logger:   log,
	}
}

// Handle produces the full recovery plan for a failed method. The attempt
// counter for (method, reason kind) is incremented; everything else is a
// pure function of the inputs.
func (o *Orchestrator) Handle(method Method, reason *classifier.PaymentError, ctx Context, alternatives []Method) *HandlingResult {
	if reason == nil {
		reason = classifier.Describe(classifier.KindUnknown, "unspecified failure")
	}

	now := time.Now()
	attempt, recent := o.recordFailure(method.Kind, reason, now)

	fallbacks := rankFallbacks(reason, ctx, alternatives)
	usable := usableFallbacks(fallbacks)

	result := &HandlingResult{
		Strategy:     selectStrategy(reason, ctx),
		Fallbacks:    fallbacks,
		Retry:        buildRetryStrategy(reason, ctx, attempt),
		Alternatives: buildAlternatives(method, reason, usable),
		Guidance:     guidanceFor(reason.Kind),
		Diagnostic: DiagnosticInfo{
			Method:         method.Kind,
			Kind:           reason.Kind,
			Severity:       reason.Severity,
			RecentFailures: recent,
			OccurredAt:     now,
		},
		CanProceedWithoutAction: usable > 0 || reason.Kind == classifier.KindTransactionRejected,
	}
	if result.Strategy == StrategyEscalatedSupport {
		result.EstimatedResolution = escalationResolution
	}

	o.logger.Debug("Handled unavailable method %s (%s): strategy=%s fallbacks=%d attempt=%d",
		method.Kind, reason.Kind, result.Strategy, len(fallbacks), attempt)
	return result
}

// RecordSuccess resets the attempt counter for a (method, kind) pair.
func (o *Orchestrator) RecordSuccess(method MethodKind, kind classifier.Kind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.attempts, attemptKey{method: method, kind: kind})
}

// FailureCount returns how many failures a method accumulated inside the
// window.
func (o *Orchestrator) FailureCount(method MethodKind, window time.Duration) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	cutoff := time.Now().Add(-window)
	count := 0
	for _, rec := range o.history[method] {
		if rec.at.After(cutoff) {
			count++
		}
	}
	return count
}

// Cleanup drops attempt counters and history entries older than maxAge.
// Callers drive this periodically; the orchestrator owns no timers.
func (o *Orchestrator) Cleanup(maxAge time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for key, state := range o.attempts {
		if state.last.Before(cutoff) {
			delete(o.attempts, key)
		}
	}
	for method, records := range o.history {
		kept := records[:0]
		for _, rec := range records {
			if rec.at.After(cutoff) {
				kept = append(kept, rec)
			}
		}
		if len(kept) == 0 {
			delete(o.history, method)
		} else {
			o.history[method] = kept
		}
	}
}

// recordFailure appends to the bounded history and bumps the attempt
// counter, returning the attempt ordinal and recent failure count.
func (o *Orchestrator) recordFailure(method MethodKind, reason *classifier.PaymentError, now time.Time) (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	records := append(o.history[method], failureRecord{
		kind:     reason.Kind,
		severity: reason.Severity,
		at:       now,
	})
	if len(records) > historyCap {
		records = records[len(records)-historyCap:]
	}
	o.history[method] = records

	key := attemptKey{method: method, kind: reason.Kind}
	state, ok := o.attempts[key]
	if !ok {
		if len(o.attempts) >= attemptsCap {
			o.evictOldestAttemptLocked()
		}
		state = &attemptState{}
		o.attempts[key] = state
	}
	state.count++
	state.last = now

	return state.count, len(records)
}

func (o *Orchestrator) evictOldestAttemptLocked() {
	var oldestKey attemptKey
	var oldest time.Time
	first := true
	for key, state := range o.attempts {
		if first || state.last.Before(oldest) {
			oldestKey = key
			oldest = state.last
			first = false
		}
	}
	if !first {
		delete(o.attempts, oldestKey)
	}
}

// selectStrategy applies the fixed decision table. Order is significant:
// critical severity first, then narrow reason kinds, then urgency, else
// the generic default.
func selectStrategy(reason *classifier.PaymentError, ctx Context) Strategy {
	if reason.Severity == classifier.SeverityCritical {
		return StrategyEscalatedSupport
	}

	switch reason.Kind {
	case classifier.KindWalletNotConnected,
		classifier.KindGasEstimationFailed,
		classifier.KindTransactionRejected:
		return StrategyImmediateRecovery
	case classifier.KindInsufficientBalance,
		classifier.KindInsufficientGas,
		classifier.KindInvalidToken:
		return StrategyGuidedRecovery
	case classifier.KindBackendUnavailable,
		classifier.KindCircuitBreakerOpen,
		classifier.KindNetworkError,
		classifier.KindRPCError:
		return StrategyFallbackPriority
	}

	if ctx.Urgency == UrgencyHigh {
		return StrategyFallbackPriority
	}
	return StrategyGenericRecovery
}

// rankFallbacks scores every alternative with the additive function and
// sorts descending. The sort is stable, so ties keep input order and the
// ranking is deterministic.
func rankFallbacks(reason *classifier.PaymentError, ctx Context, alternatives []Method) []ScoredMethod {
	scored := make([]ScoredMethod, 0, len(alternatives))
	for _, alt := range alternatives {
		scored = append(scored, ScoredMethod{
			Method: alt,
			Score:  scoreMethod(alt, reason, ctx),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

func scoreMethod(method Method, reason *classifier.PaymentError, ctx Context) int {
	score := baseScore(method.Kind)

	if ctx.Urgency == UrgencyHigh && isFastest(method.Kind) {
		score += 20
	}
	if ctx.CostSensitivity == UrgencyHigh && isLowFee(method.Kind) {
		score += 15
	}

	switch reason.Kind {
	case classifier.KindNetworkError:
		if !method.Kind.OnChain() {
			score += 30
		}
	case classifier.KindGasEstimationFailed:
		if !method.Kind.OnChain() {
			score += 25
		}
	}

	if ctx.Experience == ExperienceBeginner && isSimplest(method.Kind) {
		score += 15
	}
	return score
}

// baseScore is the reliability ranking by method type.
func baseScore(kind MethodKind) int {
	switch kind {
	case MethodCard:
		return 70
	case MethodCryptoNative:
		return 65
	case MethodCryptoToken:
		return 60
	case MethodEscrow:
		return 55
	case MethodBankTransfer:
		return 45
	}
	return 0
}

func isFastest(kind MethodKind) bool {
	return kind == MethodCard
}

func isLowFee(kind MethodKind) bool {
	return kind == MethodBankTransfer || kind == MethodCryptoNative
}

func isSimplest(kind MethodKind) bool {
	return kind == MethodCard
}

func usableFallbacks(fallbacks []ScoredMethod) int {
	count := 0
	for _, f := range fallbacks {
		if f.Method.Available {
			count++
		}
	}
	return count
}

// retryRule is one row of the per-kind retry table.
type retryRule struct {
	maxRetries int
	base       time.Duration
	multiplier float64
	autoRetry  bool
}

var retryRules = map[classifier.Kind]retryRule{
	classifier.KindNetworkError:        {maxRetries: 5, base: 10 * time.Second, multiplier: 2, autoRetry: true},
	classifier.KindGasEstimationFailed: {maxRetries: 3, base: 5 * time.Second, multiplier: 2, autoRetry: true},
	classifier.KindBackendUnavailable:  {maxRetries: 3, base: 60 * time.Second, multiplier: 2},
	classifier.KindRateLimited:         {maxRetries: 2, base: 30 * time.Second, multiplier: 1},
	classifier.KindTransactionTimeout:  {maxRetries: 2, base: 15 * time.Second, multiplier: 2},
}

var defaultRetryRule = retryRule{maxRetries: 3, base: 30 * time.Second, multiplier: 2}

// buildRetryStrategy computes the retry plan for the current attempt.
// retryAfter = min(base * multiplier^attempt, 600s), halved (floor 5s)
// when urgency is high.
func buildRetryStrategy(reason *classifier.PaymentError, ctx Context, attempt int) RetryStrategy {
	rule, ok := retryRules[reason.Kind]
	if !ok {
		rule = defaultRetryRule
	}

	base := rule.base
	// Rate limiting honors the provider's own hint as a constant interval.
	if reason.Kind == classifier.KindRateLimited && reason.RetryAfter > 0 {
		base = reason.RetryAfter
	}

	backoff := time.Duration(float64(base) * math.Pow(rule.multiplier, float64(attempt)))
	if backoff > maxRetryAfter || backoff <= 0 {
		backoff = maxRetryAfter
	}
	if ctx.Urgency == UrgencyHigh {
		backoff /= 2
		if backoff < minUrgentRetryAfter {
			backoff = minUrgentRetryAfter
		}
	}

	return RetryStrategy{
		CanRetry:       reason.Retryable && attempt < rule.maxRetries,
		RetryAfter:     backoff,
		MaxRetries:     rule.maxRetries,
		CurrentAttempt: attempt,
		AutoRetry:      rule.autoRetry && reason.Retryable,
	}
}

// buildAlternatives produces the advisory strategies, already ordered by
// descending estimated success rate.
func buildAlternatives(method Method, reason *classifier.PaymentError, usable int) []AlternativeStrategy {
	var alts []AlternativeStrategy

	if usable > 0 {
		alts = append(alts, AlternativeStrategy{
			Type:                 "immediate_fallback",
			Description:          "Switch to the best available alternative payment method now.",
			EstimatedSuccessRate: 0.9,
		})
	}
	if reason.Temporary {
		alts = append(alts, AlternativeStrategy{
			Type:                 "delayed_retry",
			Description:          "Wait for the suggested interval and retry the same method.",
			EstimatedSuccessRate: 0.75,
		})
	}
	switch reason.Kind {
	case classifier.KindGasEstimationFailed, classifier.KindInsufficientGas:
		alts = append(alts, AlternativeStrategy{
			Type:                 "parameter_adjustment",
			Description:          "Adjust the gas settings or amount and retry.",
			EstimatedSuccessRate: 0.65,
		})
	case classifier.KindNetworkError:
		if method.Kind.OnChain() {
			alts = append(alts, AlternativeStrategy{
				Type:                 "network_switch",
				Description:          "Switch to another supported network and retry.",
				EstimatedSuccessRate: 0.6,
			})
		}
	}

	sort.SliceStable(alts, func(i, j int) bool {
		return alts[i].EstimatedSuccessRate > alts[j].EstimatedSuccessRate
	})
	return alts
}
