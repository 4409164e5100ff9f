package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/bazaarhq/paycore/pkg/logger"
)

// Config holds the configuration for the payment core service
type Config struct {
	PrivateKey     string
	Chains         map[int]ChainConfig
	MetricsPort    string
	MetricsAuthKey string
	MaxRetries     int
	CircuitBreaker CircuitBreakerConfig
	Gas            GasConfig
	Monitor        MonitorConfig
	PriceEndpoint  string
	PriceCacheAge  time.Duration
	LoggerConfig   LoggerConfig
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// GasConfig holds gas estimation configuration shared by all chains
type GasConfig struct {
	SecurityMaxGasLimit uint64
	BufferMultiplier    float64
}

// MonitorConfig holds confirmation monitoring configuration
type MonitorConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// ChainConfig holds the configuration for a specific blockchain
type ChainConfig struct {
	ChainID               int
	RPCURL                string
	EscrowAddress         string
	RequiredConfirmations uint64
	NetworkMaxGasLimit    uint64
	NativeSymbol          string
	NativeDecimals        uint8
	NativeAssetID         string
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	metricsPort, err := GetEnvMetricsPort()
	if err != nil {
		return nil, err
	}

	maxRetries, err := GetEnvMaxRetries()
	if err != nil {
		return nil, err
	}

	cbEnabled, err := GetEnvCircuitBreakerEnabled()
	if err != nil {
		return nil, err
	}

	cbThreshold, err := GetEnvCircuitBreakerThreshold()
	if err != nil {
		return nil, err
	}

	cbWindow, err := GetEnvCircuitBreakerWindow()
	if err != nil {
		return nil, err
	}

	cbReset, err := GetEnvCircuitBreakerReset()
	if err != nil {
		return nil, err
	}

	securityMaxGasLimit, err := GetEnvSecurityMaxGasLimit()
	if err != nil {
		return nil, err
	}

	gasBuffer, err := GetEnvGasBufferMultiplier()
	if err != nil {
		return nil, err
	}

	monitorInterval, err := GetEnvMonitorInterval()
	if err != nil {
		return nil, err
	}

	monitorTimeout, err := GetEnvMonitorTimeout()
	if err != nil {
		return nil, err
	}

	priceEndpoint, err := GetEnvPriceEndpoint()
	if err != nil {
		return nil, err
	}

	priceCacheAge, err := GetEnvPriceCacheMaxAge()
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	chainConfigs, err := GetEnvChainConfigs()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		PrivateKey:     os.Getenv("PRIVATE_KEY"),
		Chains:         chainConfigs,
		MetricsPort:    metricsPort,
		MetricsAuthKey: os.Getenv("METRICS_AUTH_KEY"),
		MaxRetries:     maxRetries,
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        cbEnabled,
			Threshold:      cbThreshold,
			WindowDuration: cbWindow,
			ResetTimeout:   cbReset,
		},
		Gas: GasConfig{
			SecurityMaxGasLimit: securityMaxGasLimit,
			BufferMultiplier:    gasBuffer,
		},
		Monitor: MonitorConfig{
			Interval: monitorInterval,
			Timeout:  monitorTimeout,
		},
		PriceEndpoint: priceEndpoint,
		PriceCacheAge: priceCacheAge,
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY environment variable is required")
	}
	if len(cfg.Chains) == 0 {
		return fmt.Errorf("at least one chain configuration is required")
	}
	for chainID, chainConfig := range cfg.Chains {
		if chainConfig.RPCURL == "" {
			return fmt.Errorf("RPC URL for chain %d is required", chainID)
		}
	}
	return nil
}
