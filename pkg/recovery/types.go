package recovery

import (
	"time"

	"github.com/bazaarhq/paycore/pkg/classifier"
)

// MethodKind enumerates the payment methods the marketplace can offer.
// Adding a kind is a compile-time-checked change: every switch over
// MethodKind in this package enumerates all cases.
type MethodKind string

const (
	MethodCryptoNative MethodKind = "crypto_native"
	MethodCryptoToken  MethodKind = "crypto_token"
	MethodEscrow       MethodKind = "escrow"
	MethodCard         MethodKind = "card"
	MethodBankTransfer MethodKind = "bank_transfer"
)

// OnChain reports whether a method settles on a blockchain.
func (k MethodKind) OnChain() bool {
	switch k {
	case MethodCryptoNative, MethodCryptoToken, MethodEscrow:
		return true
	case MethodCard, MethodBankTransfer:
		return false
	}
	return false
}

// Method is a payment method offered as a fallback candidate.
type Method struct {
	Kind      MethodKind
	Label     string
	Available bool
}

// Urgency ranks how time-sensitive the payment is for the user.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Experience ranks how familiar the user is with crypto payments.
type Experience string

const (
	ExperienceBeginner     Experience = "beginner"
	ExperienceIntermediate Experience = "intermediate"
	ExperienceExpert       Experience = "expert"
)

// Context carries the runtime situation a failure happened in. All ranking
// and retry decisions are pure functions of it.
type Context struct {
	Urgency         Urgency
	CostSensitivity Urgency
	Experience      Experience
}

// Strategy is the coarse handling approach selected for a failure.
type Strategy string

const (
	StrategyEscalatedSupport  Strategy = "escalated_support"
	StrategyImmediateRecovery Strategy = "immediate_recovery"
	StrategyGuidedRecovery    Strategy = "guided_recovery"
	StrategyFallbackPriority  Strategy = "fallback_priority"
	StrategyGenericRecovery   Strategy = "generic_recovery"
)

// RetryStrategy is the computed retry plan for a failure.
type RetryStrategy struct {
	CanRetry       bool
	RetryAfter     time.Duration
	MaxRetries     int
	CurrentAttempt int
	AutoRetry      bool
}

// ScoredMethod is a fallback candidate with its computed score.
type ScoredMethod struct {
	Method Method
	Score  int
}

// AlternativeStrategy is one advisory path forward, ranked by how likely
// it is to succeed.
type AlternativeStrategy struct {
	Type                 string
	Description          string
	EstimatedSuccessRate float64
}

// UserGuidance is the plain-language help rendered next to a failure.
type UserGuidance struct {
	Recommendation  string
	Steps           []string
	Troubleshooting []string
	Prevention      []string
}

// DiagnosticInfo summarizes the failure for logs and support tickets.
type DiagnosticInfo struct {
	Method         MethodKind
	Kind           classifier.Kind
	Severity       classifier.Severity
	RecentFailures int
	OccurredAt     time.Time
}

// HandlingResult is everything a caller needs to render recovery UI.
// All fields except the attempt counters are pure functions of the inputs.
type HandlingResult struct {
	Strategy     Strategy
	Fallbacks    []ScoredMethod
	Retry        RetryStrategy
	Alternatives []AlternativeStrategy
	Guidance     UserGuidance
	Diagnostic   DiagnosticInfo

	// EstimatedResolution is how long an escalated failure is expected
	// to take to resolve. Zero for strategies the user can act on
	// themselves.
	EstimatedResolution     time.Duration
	CanProceedWithoutAction bool
}
