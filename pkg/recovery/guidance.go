package recovery

import "github.com/bazaarhq/paycore/pkg/classifier"

// guidanceTemplates holds the user-facing recovery walkthroughs per
// failure kind. Kinds without an entry fall back to genericGuidance.
var guidanceTemplates = map[classifier.Kind]UserGuidance{
	classifier.KindWalletNotConnected: {
		Recommendation: "Reconnect your wallet and try again.",
		Steps: []string{
			"Open your wallet extension or app",
			"Unlock the wallet if it is locked",
			"Approve the connection request from this site",
			"Retry the payment",
		},
		Troubleshooting: []string{
			"Refresh the page if the wallet popup does not appear",
			"Check that the wallet extension is enabled in your browser",
		},
		Prevention: []string{
			"Keep your wallet unlocked while completing a purchase",
		},
	},
	classifier.KindWrongNetwork: {
		Recommendation: "Switch your wallet to the network this payment uses.",
		Steps: []string{
			"Open the network selector in your wallet",
			"Select the network shown on the payment screen",
			"Retry the payment",
		},
		Prevention: []string{
			"Double-check the selected network before confirming a payment",
		},
	},
	classifier.KindInsufficientBalance: {
		Recommendation: "Add funds or choose a different payment method.",
		Steps: []string{
			"Check your wallet balance for the selected token",
			"Transfer or buy enough to cover the amount plus fees",
			"Retry the payment, or pick another method below",
		},
		Troubleshooting: []string{
			"Remember that gas fees are paid on top of the purchase amount",
		},
		Prevention: []string{
			"Keep a small buffer above the purchase price for fees",
		},
	},
	classifier.KindInsufficientGas: {
		Recommendation: "Top up the native token used for gas on this network.",
		Steps: []string{
			"Acquire a small amount of the network's native token",
			"Wait for the deposit to confirm",
			"Retry the payment",
		},
		Prevention: []string{
			"Keep a gas reserve in your wallet on every network you use",
		},
	},
	classifier.KindTransactionRejected: {
		Recommendation: "The transaction was cancelled in your wallet. Retry when ready.",
		Steps: []string{
			"Retry the payment",
			"Approve the transaction prompt in your wallet",
		},
	},
	classifier.KindGasEstimationFailed: {
		Recommendation: "Retry the payment; fees will be estimated again.",
		Steps: []string{
			"Wait a few seconds",
			"Retry the payment",
		},
		Troubleshooting: []string{
			"If this keeps happening, the network may be congested",
			"Try a different payment method below",
		},
	},
	classifier.KindNetworkError: {
		Recommendation: "Check your connection and retry, or use an off-chain method.",
		Steps: []string{
			"Check your internet connection",
			"Retry the payment",
		},
		Troubleshooting: []string{
			"Switch networks or RPC providers if the problem persists",
			"Card and bank transfer do not depend on the blockchain network",
		},
	},
	classifier.KindTransactionTimeout: {
		Recommendation: "The transaction is taking longer than expected.",
		Steps: []string{
			"Wait a few minutes; it may still confirm",
			"Check the transaction status before retrying",
		},
		Troubleshooting: []string{
			"Do not resubmit until the original transaction resolves",
		},
	},
	classifier.KindRateLimited: {
		Recommendation: "Too many requests. Wait before retrying.",
		Steps: []string{
			"Wait for the suggested interval",
			"Retry the payment",
		},
	},
	classifier.KindBackendUnavailable: {
		Recommendation: "The payment service is temporarily unavailable.",
		Steps: []string{
			"Wait a minute and retry",
			"Use an alternative payment method if available",
		},
	},
	classifier.KindCardDeclined: {
		Recommendation: "Your card was declined. Try another card or method.",
		Steps: []string{
			"Verify the card details are correct",
			"Contact your bank if the card should work",
			"Try a different card or payment method",
		},
	},
	classifier.KindContractExecutionFailed: {
		Recommendation: "The payment contract rejected the transaction. Contact support.",
		Steps: []string{
			"Do not retry with the same parameters",
			"Contact support with the order ID",
		},
	},
	classifier.KindInvalidAmount: {
		Recommendation: "The payment amount is not valid.",
		Steps: []string{
			"Check the amount is positive and within limits",
			"Retry with a corrected amount",
		},
	},
	classifier.KindInvalidToken: {
		Recommendation: "The selected token is not supported for this payment.",
		Steps: []string{
			"Pick one of the supported tokens",
			"Retry the payment",
		},
	},
}

var genericGuidance = UserGuidance{
	Recommendation: "Retry the payment or choose an alternative method.",
	Steps: []string{
		"Retry the payment",
		"If it fails again, pick an alternative payment method",
		"Contact support if no method works",
	},
}

func guidanceFor(kind classifier.Kind) UserGuidance {
	if g, ok := guidanceTemplates[kind]; ok {
		return g
	}
	return genericGuidance
}
