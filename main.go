package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bazaarhq/paycore/pkg/chainclient"
	"github.com/bazaarhq/paycore/pkg/circuitbreaker"
	"github.com/bazaarhq/paycore/pkg/config"
	"github.com/bazaarhq/paycore/pkg/gasfee"
	"github.com/bazaarhq/paycore/pkg/health"
	"github.com/bazaarhq/paycore/pkg/logger"
	"github.com/bazaarhq/paycore/pkg/oracle"
	"github.com/bazaarhq/paycore/pkg/payment"
	"github.com/bazaarhq/paycore/pkg/recovery"
)

const cleanupInterval = 10 * time.Minute

func main() {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up context with cancellation on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stdLogger := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	prices := oracle.NewClient(cfg.PriceEndpoint, cfg.PriceCacheAge, stdLogger)

	// Connect chain backends
	clients := make(map[int]*chainclient.Client)
	breakers := make(map[int]*circuitbreaker.CircuitBreaker)
	backends := make(map[int]*payment.Backend)
	for chainID, chainCfg := range cfg.Chains {
		client, err := chainclient.New(ctx, chainID, chainCfg.RPCURL, chainCfg.EscrowAddress, cfg.PrivateKey)
		if err != nil {
			log.Fatalf("Failed to connect to chain %d: %v", chainID, err)
		}
		clients[chainID] = client

		breaker := circuitbreaker.NewCircuitBreaker(
			cfg.CircuitBreaker.Enabled,
			cfg.CircuitBreaker.Threshold,
			cfg.CircuitBreaker.WindowDuration,
			cfg.CircuitBreaker.ResetTimeout,
		)
		breakers[chainID] = breaker

		estimator := gasfee.NewEstimator(chainID, client, prices, gasfee.Config{
			SecurityMaxGasLimit: cfg.Gas.SecurityMaxGasLimit,
			NetworkMaxGasLimit:  chainCfg.NetworkMaxGasLimit,
			BufferMultiplier:    cfg.Gas.BufferMultiplier,
			NativeAssetID:       chainCfg.NativeAssetID,
		}, stdLogger)

		backends[chainID] = &payment.Backend{
			Chain:                 client,
			Estimator:             estimator,
			Breaker:               breaker,
			RequiredConfirmations: chainCfg.RequiredConfirmations,
		}
	}

	orchestrator := recovery.NewOrchestrator(stdLogger)
	manager := payment.NewManager(ctx, payment.Config{
		MaxRetries:      cfg.MaxRetries,
		MonitorInterval: cfg.Monitor.Interval,
		MonitorTimeout:  cfg.Monitor.Timeout,
	}, backends, orchestrator, stdLogger)

	// Start health monitoring server
	healthServer := health.NewServer(cfg.MetricsPort, clients, breakers, manager)
	go healthServer.Start()

	// Periodic cleanup of terminal payments, stale recovery state and
	// expired price cache entries
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				manager.Cleanup(24 * time.Hour)
				orchestrator.Cleanup(time.Hour)
				prices.Cleanup(cfg.PriceCacheAge)
			}
		}
	}()

	// Set up signal handling for graceful shutdown
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	stdLogger.Info("Payment core running on %d chains", len(backends))
	<-signalCh
	log.Println("Received termination signal, shutting down gracefully...")
	cancel()
	manager.Wait()
}
