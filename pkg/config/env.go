package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bazaarhq/paycore/pkg/logger"
)

const (
	// DefaultMetricsPort defines the default port for the metrics and health server
	DefaultMetricsPort = "8080"

	// DefaultMaxRetries defines the maximum number of retries for failed payments
	DefaultMaxRetries = 3

	// DefaultCircuitBreakerEnabled defines whether the circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker in seconds
	DefaultCircuitBreakerWindow = 60

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker in seconds
	DefaultCircuitBreakerReset = 30

	// DefaultMonitorInterval defines the receipt polling interval in seconds
	DefaultMonitorInterval = 5

	// DefaultMonitorTimeout defines how long confirmation monitoring runs before
	// the outcome is reported as unknown, in seconds
	DefaultMonitorTimeout = 600

	// DefaultSecurityMaxGasLimit caps the gas limit of any payment regardless of
	// what the network would accept
	DefaultSecurityMaxGasLimit = 500000

	// DefaultGasBufferMultiplier is applied on top of simulated gas usage
	DefaultGasBufferMultiplier = 1.2

	// DefaultPriceCacheMaxAge defines how long USD prices are served from cache, in seconds
	DefaultPriceCacheMaxAge = 60
)

// chainDefaults carries the built-in parameters of one supported chain.
type chainDefaults struct {
	prefix                string
	rpcURL                string
	escrowAddress         string
	requiredConfirmations uint64
	networkMaxGasLimit    uint64
	nativeSymbol          string
	nativeDecimals        uint8
	nativeAssetID         string
}

// Supported chains. Escrow addresses default to unset: an escrow
// deployment is opt-in per chain.
var supportedChains = map[int]chainDefaults{
	1: {
		prefix:                "ETHEREUM",
		rpcURL:                "https://eth.llamarpc.com",
		requiredConfirmations: 12,
		networkMaxGasLimit:    30000000,
		nativeSymbol:          "ETH",
		nativeDecimals:        18,
		nativeAssetID:         "ethereum",
	},
	137: {
		prefix:                "POLYGON",
		rpcURL:                "https://polygon-rpc.com",
		requiredConfirmations: 30,
		networkMaxGasLimit:    30000000,
		nativeSymbol:          "POL",
		nativeDecimals:        18,
		nativeAssetID:         "matic-network",
	},
	42161: {
		prefix:                "ARBITRUM",
		rpcURL:                "https://arb1.arbitrum.io/rpc",
		requiredConfirmations: 12,
		networkMaxGasLimit:    32000000,
		nativeSymbol:          "ETH",
		nativeDecimals:        18,
		nativeAssetID:         "ethereum",
	},
	8453: {
		prefix:                "BASE",
		rpcURL:                "https://mainnet.base.org",
		requiredConfirmations: 12,
		networkMaxGasLimit:    30000000,
		nativeSymbol:          "ETH",
		nativeDecimals:        18,
		nativeAssetID:         "ethereum",
	},
}

// GetEnvMetricsPort returns the metrics server port from environment variables
func GetEnvMetricsPort() (string, error) {
	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		return DefaultMetricsPort, nil
	}

	if _, err := strconv.Atoi(metricsPort); err != nil {
		return "", fmt.Errorf("invalid METRICS_PORT value: %s, must be a valid integer", metricsPort)
	}
	return metricsPort, nil
}

// GetEnvMaxRetries returns the maximum number of retries from environment variables
func GetEnvMaxRetries() (int, error) {
	maxRetries := os.Getenv("MAX_RETRIES")
	if maxRetries == "" {
		return DefaultMaxRetries, nil
	}

	maxRetriesInt, err := strconv.Atoi(maxRetries)
	if err != nil {
		return 0, fmt.Errorf("invalid MAX_RETRIES value: %s, must be an integer", maxRetries)
	}
	if maxRetriesInt < 0 {
		return 0, fmt.Errorf("MAX_RETRIES must be greater than or equal to 0")
	}
	return maxRetriesInt, nil
}

// GetEnvCircuitBreakerEnabled returns whether the circuit breaker is enabled from environment variables
func GetEnvCircuitBreakerEnabled() (bool, error) {
	enabled := os.Getenv("CIRCUIT_BREAKER_ENABLED")
	if enabled == "" {
		return DefaultCircuitBreakerEnabled, nil
	}

	if enabled == "true" {
		return true, nil
	} else if enabled == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid CIRCUIT_BREAKER_ENABLED value: %s, must be 'true' or 'false'", enabled)
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker threshold from environment variables
func GetEnvCircuitBreakerThreshold() (int, error) {
	threshold := os.Getenv("CIRCUIT_BREAKER_THRESHOLD")
	if threshold == "" {
		return DefaultCircuitBreakerThreshold, nil
	}

	thresholdInt, err := strconv.Atoi(threshold)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_THRESHOLD value: %s, must be an integer", threshold)
	}
	if thresholdInt <= 0 {
		return 0, fmt.Errorf("CIRCUIT_BREAKER_THRESHOLD must be greater than 0")
	}
	return thresholdInt, nil
}

// GetEnvCircuitBreakerWindow returns the circuit breaker window duration from environment variables
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	return getEnvDuration("CIRCUIT_BREAKER_WINDOW", DefaultCircuitBreakerWindow*time.Second)
}

// GetEnvCircuitBreakerReset returns the circuit breaker reset timeout from environment variables
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	return getEnvDuration("CIRCUIT_BREAKER_RESET", DefaultCircuitBreakerReset*time.Second)
}

// GetEnvMonitorInterval returns the receipt polling interval from environment variables
func GetEnvMonitorInterval() (time.Duration, error) {
	return getEnvDuration("MONITOR_INTERVAL", DefaultMonitorInterval*time.Second)
}

// GetEnvMonitorTimeout returns the confirmation monitoring timeout from environment variables
func GetEnvMonitorTimeout() (time.Duration, error) {
	return getEnvDuration("MONITOR_TIMEOUT", DefaultMonitorTimeout*time.Second)
}

// GetEnvSecurityMaxGasLimit returns the service-wide gas limit cap from environment variables
func GetEnvSecurityMaxGasLimit() (uint64, error) {
	raw := os.Getenv("SECURITY_MAX_GAS_LIMIT")
	if raw == "" {
		return DefaultSecurityMaxGasLimit, nil
	}

	limit, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid SECURITY_MAX_GAS_LIMIT value: %s, must be an unsigned integer", raw)
	}
	if limit == 0 {
		return 0, fmt.Errorf("SECURITY_MAX_GAS_LIMIT must be greater than 0")
	}
	return limit, nil
}

// GetEnvGasBufferMultiplier returns the gas buffer multiplier from environment variables
func GetEnvGasBufferMultiplier() (float64, error) {
	raw := os.Getenv("GAS_BUFFER_MULTIPLIER")
	if raw == "" {
		return DefaultGasBufferMultiplier, nil
	}

	multiplier, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid GAS_BUFFER_MULTIPLIER value: %s, must be a number", raw)
	}
	if multiplier < 1 {
		return 0, fmt.Errorf("GAS_BUFFER_MULTIPLIER must be at least 1")
	}
	return multiplier, nil
}

// GetEnvPriceEndpoint returns the USD price oracle endpoint from environment variables
func GetEnvPriceEndpoint() (string, error) {
	endpoint := os.Getenv("PRICE_ENDPOINT")
	if endpoint == "" {
		return "", nil
	}

	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return "", fmt.Errorf("invalid PRICE_ENDPOINT value: %s, must be a valid URL", endpoint)
	}
	return endpoint, nil
}

// GetEnvPriceCacheMaxAge returns the USD price cache lifetime from environment variables
func GetEnvPriceCacheMaxAge() (time.Duration, error) {
	return getEnvDuration("PRICE_CACHE_MAX_AGE", DefaultPriceCacheMaxAge*time.Second)
}

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return logger.InfoLevel, nil
	}

	switch level {
	case "debug":
		return logger.DebugLevel, nil
	case "info":
		return logger.InfoLevel, nil
	case "notice":
		return logger.NoticeLevel, nil
	case "error":
		return logger.ErrorLevel, nil
	}
	return 0, fmt.Errorf("invalid LOG_LEVEL value: %s, must be one of debug, info, notice, error", level)
}

// GetEnvLogColoring returns whether log coloring is enabled from environment variables
func GetEnvLogColoring() (bool, error) {
	coloring := os.Getenv("LOG_COLORING")
	if coloring == "" {
		return true, nil
	}

	if coloring == "true" {
		return true, nil
	} else if coloring == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid LOG_COLORING value: %s, must be 'true' or 'false'", coloring)
}

// GetEnvChainConfigs returns the configuration of every supported chain,
// with environment overrides applied per chain prefix.
func GetEnvChainConfigs() (map[int]ChainConfig, error) {
	configs := make(map[int]ChainConfig, len(supportedChains))

	for chainID, defaults := range supportedChains {
		rpc := os.Getenv(defaults.prefix + "_RPC_URL")
		if rpc == "" {
			rpc = defaults.rpcURL
		}

		escrow := os.Getenv(defaults.prefix + "_ESCROW_ADDRESS")
		if escrow == "" {
			escrow = defaults.escrowAddress
		}
		if escrow != "" && !common.IsHexAddress(escrow) {
			return nil, fmt.Errorf("invalid %s_ESCROW_ADDRESS value: %s, must be a valid address", defaults.prefix, escrow)
		}

		confirmations := defaults.requiredConfirmations
		if raw := os.Getenv(defaults.prefix + "_CONFIRMATIONS"); raw != "" {
			parsed, err := strconv.ParseUint(raw, 10, 64)
			if err != nil || parsed == 0 {
				return nil, fmt.Errorf("invalid %s_CONFIRMATIONS value: %s, must be a positive integer", defaults.prefix, raw)
			}
			confirmations = parsed
		}

		maxGasLimit := defaults.networkMaxGasLimit
		if raw := os.Getenv(defaults.prefix + "_MAX_GAS_LIMIT"); raw != "" {
			parsed, err := strconv.ParseUint(raw, 10, 64)
			if err != nil || parsed == 0 {
				return nil, fmt.Errorf("invalid %s_MAX_GAS_LIMIT value: %s, must be a positive integer", defaults.prefix, raw)
			}
			maxGasLimit = parsed
		}

		configs[chainID] = ChainConfig{
			ChainID:               chainID,
			RPCURL:                rpc,
			EscrowAddress:         escrow,
			RequiredConfirmations: confirmations,
			NetworkMaxGasLimit:    maxGasLimit,
			NativeSymbol:          defaults.nativeSymbol,
			NativeDecimals:        defaults.nativeDecimals,
			NativeAssetID:         defaults.nativeAssetID,
		}
	}

	return configs, nil
}

func getEnvDuration(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be a valid duration string", name, raw)
	}
	return parsed, nil
}
