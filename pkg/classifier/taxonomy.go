package classifier

import "time"

// Kind is the closed taxonomy of payment failure causes. Raw failures are
// mapped onto exactly one Kind at the classification boundary; nothing past
// that boundary inspects raw error text.
type Kind string

const (
	KindWalletNotConnected      Kind = "wallet_not_connected"
	KindInsufficientBalance     Kind = "insufficient_balance"
	KindInsufficientGas         Kind = "insufficient_gas"
	KindNetworkError            Kind = "network_error"
	KindWrongNetwork            Kind = "wrong_network"
	KindRPCError                Kind = "rpc_error"
	KindTransactionFailed       Kind = "transaction_failed"
	KindTransactionRejected     Kind = "transaction_rejected"
	KindTransactionTimeout      Kind = "transaction_timeout"
	KindGasEstimationFailed     Kind = "gas_estimation_failed"
	KindContractExecutionFailed Kind = "contract_execution_failed"
	KindContractNotFound        Kind = "contract_not_found"
	KindFiatProcessorError      Kind = "fiat_processor_error"
	KindCardDeclined            Kind = "card_declined"
	KindBackendUnavailable      Kind = "backend_unavailable"
	KindCircuitBreakerOpen      Kind = "circuit_breaker_open"
	KindRateLimited             Kind = "rate_limited"
	KindInvalidAmount           Kind = "invalid_amount"
	KindInvalidAddress          Kind = "invalid_address"
	KindInvalidToken            Kind = "invalid_token"
	KindUnknown                 Kind = "unknown"
)

// Severity ranks how disruptive a failure is; it drives escalation policy
// and the UI treatment chosen by callers.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	}
	return "unknown"
}

// RecoveryOption is one action a user can take after a failure. Options are
// ordered; the first primary option is the UI's default action.
type RecoveryOption struct {
	Action  string
	Label   string
	Primary bool
}

// PaymentError is a classified failure. Message is technical, UserMessage
// is plain language; the two are always distinct surfaces.
type PaymentError struct {
	Kind        Kind
	Message     string
	UserMessage string
	Severity    Severity
	Temporary   bool
	Retryable   bool

	// RetryAfter is a provider-supplied backoff hint, only ever set for
	// rate limiting.
	RetryAfter time.Duration

	Recovery []RecoveryOption
}

func (e *PaymentError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// template is the static per-kind descriptor applied at classification.
type template struct {
	userMessage string
	severity    Severity
	temporary   bool
	retryable   bool
	recovery    []RecoveryOption
}

var templates = map[Kind]template{
	KindWalletNotConnected: {
		userMessage: "Your wallet is not connected. Reconnect it to continue.",
		severity:    SeverityMedium,
		temporary:   true,
		retryable:   true,
		recovery: []RecoveryOption{
			{Action: "reconnect_wallet", Label: "Reconnect wallet", Primary: true},
			{Action: "switch_method", Label: "Pay another way"},
		},
	},
	KindInsufficientBalance: {
		userMessage: "You don't have enough funds for this payment.",
		severity:    SeverityMedium,
		retryable:   false,
		recovery: []RecoveryOption{
			{Action: "add_funds", Label: "Add funds", Primary: true},
			{Action: "switch_method", Label: "Pay another way"},
		},
	},
	KindInsufficientGas: {
		userMessage: "You don't have enough of the network's gas token to cover fees.",
		severity:    SeverityMedium,
		retryable:   false,
		recovery: []RecoveryOption{
			{Action: "add_gas_funds", Label: "Top up gas", Primary: true},
			{Action: "switch_network", Label: "Use another network"},
		},
	},
	KindNetworkError: {
		userMessage: "We couldn't reach the network. This is usually temporary.",
		severity:    SeverityMedium,
		temporary:   true,
		retryable:   true,
		recovery: []RecoveryOption{
			{Action: "retry", Label: "Try again", Primary: true},
			{Action: "switch_method", Label: "Pay another way"},
		},
	},
	KindWrongNetwork: {
		userMessage: "Your wallet is on the wrong network for this payment.",
		severity:    SeverityMedium,
		retryable:   true,
		recovery: []RecoveryOption{
			{Action: "switch_network", Label: "Switch network", Primary: true},
		},
	},
	KindRPCError: {
		userMessage: "The network node returned an error. Trying again usually helps.",
		severity:    SeverityMedium,
		temporary:   true,
		retryable:   true,
		recovery: []RecoveryOption{
			{Action: "retry", Label: "Try again", Primary: true},
		},
	},
	KindTransactionFailed: {
		userMessage: "The transaction was rejected by the network and no funds moved.",
		severity:    SeverityHigh,
		retryable:   true,
		recovery: []RecoveryOption{
			{Action: "retry", Label: "Try again", Primary: true},
			{Action: "contact_support", Label: "Contact support"},
		},
	},
	KindTransactionRejected: {
		// User-initiated rejection is an outcome, not an error.
		userMessage: "You declined the transaction in your wallet.",
		severity:    SeverityLow,
		retryable:   true,
		recovery: []RecoveryOption{
			{Action: "retry", Label: "Try again", Primary: true},
			{Action: "cancel", Label: "Cancel payment"},
		},
	},
	KindTransactionTimeout: {
		userMessage: "The transaction is taking longer than expected. It may still go through.",
		severity:    SeverityMedium,
		temporary:   true,
		retryable:   true,
		recovery: []RecoveryOption{
			{Action: "wait", Label: "Keep waiting", Primary: true},
			{Action: "retry", Label: "Try again"},
		},
	},
	KindGasEstimationFailed: {
		userMessage: "We couldn't estimate the network fee. Trying again usually helps.",
		severity:    SeverityMedium,
		temporary:   true,
		retryable:   true,
		recovery: []RecoveryOption{
			{Action: "retry", Label: "Try again", Primary: true},
			{Action: "adjust_parameters", Label: "Adjust and retry"},
		},
	},
	KindContractExecutionFailed: {
		userMessage: "The payment contract rejected this transaction. Our team has been notified.",
		severity:    SeverityCritical,
		retryable:   false,
		recovery: []RecoveryOption{
			{Action: "contact_support", Label: "Contact support", Primary: true},
		},
	},
	KindContractNotFound: {
		userMessage: "The payment contract isn't available on this network.",
		severity:    SeverityCritical,
		retryable:   false,
		recovery: []RecoveryOption{
			{Action: "contact_support", Label: "Contact support", Primary: true},
			{Action: "switch_network", Label: "Use another network"},
		},
	},
	KindFiatProcessorError: {
		userMessage: "The card processor couldn't complete the payment.",
		severity:    SeverityMedium,
		temporary:   true,
		retryable:   true,
		recovery: []RecoveryOption{
			{Action: "retry", Label: "Try again", Primary: true},
			{Action: "switch_method", Label: "Pay with crypto"},
		},
	},
	KindCardDeclined: {
		userMessage: "Your card was declined. Check with your bank or use another method.",
		severity:    SeverityMedium,
		retryable:   false,
		recovery: []RecoveryOption{
			{Action: "use_other_card", Label: "Use another card", Primary: true},
			{Action: "switch_method", Label: "Pay with crypto"},
		},
	},
	KindBackendUnavailable: {
		userMessage: "The payment service is temporarily unavailable.",
		severity:    SeverityHigh,
		temporary:   true,
		retryable:   true,
		recovery: []RecoveryOption{
			{Action: "retry_later", Label: "Try again later", Primary: true},
			{Action: "switch_method", Label: "Pay another way"},
		},
	},
	KindCircuitBreakerOpen: {
		userMessage: "Payments on this network are paused after repeated failures. Please try again shortly.",
		severity:    SeverityHigh,
		temporary:   true,
		retryable:   true,
		recovery: []RecoveryOption{
			{Action: "retry_later", Label: "Try again later", Primary: true},
			{Action: "switch_method", Label: "Pay another way"},
		},
	},
	KindRateLimited: {
		userMessage: "Too many requests right now. Please wait a moment and try again.",
		severity:    SeverityLow,
		temporary:   true,
		retryable:   true,
		recovery: []RecoveryOption{
			{Action: "retry_later", Label: "Try again shortly", Primary: true},
		},
	},
	KindInvalidAmount: {
		userMessage: "The payment amount is invalid.",
		severity:    SeverityLow,
		retryable:   false,
		recovery: []RecoveryOption{
			{Action: "fix_amount", Label: "Correct the amount", Primary: true},
		},
	},
	KindInvalidAddress: {
		userMessage: "The recipient address is invalid.",
		severity:    SeverityLow,
		retryable:   false,
		recovery: []RecoveryOption{
			{Action: "fix_address", Label: "Correct the address", Primary: true},
		},
	},
	KindInvalidToken: {
		userMessage: "The selected token isn't supported for this payment.",
		severity:    SeverityLow,
		retryable:   false,
		recovery: []RecoveryOption{
			{Action: "switch_token", Label: "Choose another token", Primary: true},
		},
	},
	KindUnknown: {
		userMessage: "Something went wrong with the payment. Trying again usually helps.",
		severity:    SeverityMedium,
		temporary:   true,
		retryable:   true,
		recovery: []RecoveryOption{
			{Action: "retry", Label: "Try again", Primary: true},
			{Action: "contact_support", Label: "Contact support"},
		},
	},
}

// Describe builds a PaymentError for a known kind with the given technical
// message. It is the single place templates are instantiated.
func Describe(kind Kind, message string) *PaymentError {
	tmpl, ok := templates[kind]
	if !ok {
		tmpl = templates[KindUnknown]
		kind = KindUnknown
	}

	recovery := make([]RecoveryOption, len(tmpl.recovery))
	copy(recovery, tmpl.recovery)

	return &PaymentError{
		Kind:        kind,
		Message:     message,
		UserMessage: tmpl.userMessage,
		Severity:    tmpl.severity,
		Temporary:   tmpl.temporary,
		Retryable:   tmpl.retryable,
		Recovery:    recovery,
	}
}
