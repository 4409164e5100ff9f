package gasfee

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strconv"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/bazaarhq/paycore/pkg/logger"
	"github.com/bazaarhq/paycore/pkg/metrics"
	"github.com/bazaarhq/paycore/pkg/models"
)

const (
	// DefaultTransferGas is the static fallback when simulation fails.
	DefaultTransferGas = 21000

	// DefaultBufferMultiplier pads simulated gas against state drift
	// between simulation and inclusion.
	DefaultBufferMultiplier = 1.2

	// defaultPriorityFeeWei is used when fee history is unavailable on an
	// EIP-1559 chain (1.5 gwei).
	defaultPriorityFeeWei = 1_500_000_000

	// defaultFeeHistoryBlocks is how many recent blocks feed the
	// priority-fee median.
	defaultFeeHistoryBlocks = 5
)

// ErrEstimationFailed is returned when neither the simulation nor the
// static fallback path could produce an estimate.
var ErrEstimationFailed = fmt.Errorf("gas estimation failed")

// ChainReader is the chain surface the estimator needs.
type ChainReader interface {
	EstimateGas(ctx context.Context, to *common.Address, data []byte, value *big.Int) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	// BaseFee returns the latest block's base fee, or nil on chains
	// without EIP-1559 pricing.
	BaseFee(ctx context.Context) (*big.Int, error)
	FeeHistory(ctx context.Context, blockCount uint64, percentiles []float64) (*ethereum.FeeHistory, error)
}

// PriceSource resolves an asset id to its USD price.
type PriceSource interface {
	USDPrice(ctx context.Context, assetID string) (float64, error)
}

// Estimate is the result of a gas fee estimation. It is never mutated after
// construction; TotalCost is always gasLimit times the effective price.
type Estimate struct {
	GasLimit uint64

	// Legacy pricing: GasPrice set, the 1559 fields nil.
	GasPrice *big.Int

	// EIP-1559 pricing: both fee caps set, GasPrice nil.
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int

	TotalCost *big.Int

	// TotalCostUSD is nil when the price lookup failed; a failed lookup
	// never fails the estimate.
	TotalCostUSD *decimal.Decimal
}

// EffectivePrice returns the per-unit price used for TotalCost.
func (e *Estimate) EffectivePrice() *big.Int {
	if e.GasPrice != nil {
		return e.GasPrice
	}
	return e.MaxFeePerGas
}

// Config bounds and tunes an estimator.
type Config struct {
	// SecurityMaxGasLimit is the module-wide gas limit ceiling.
	SecurityMaxGasLimit uint64
	// NetworkMaxGasLimit is the per-chain ceiling; the effective cap is
	// the smaller of the two.
	NetworkMaxGasLimit uint64
	BufferMultiplier   float64
	FeeHistoryBlocks   uint64
	// NativeAssetID is the oracle id of the chain's gas asset.
	NativeAssetID string
}

// Estimator computes gas limits and prices for prospective calls.
type Estimator struct {
	chainID int
	chain   ChainReader
	prices  PriceSource
	cfg     Config
	logger  logger.Logger
}

// NewEstimator creates an estimator for one chain. prices may be nil, in
// which case USD costs are never attached.
func NewEstimator(chainID int, chain ChainReader, prices PriceSource, cfg Config, log logger.Logger) *Estimator {
	if cfg.BufferMultiplier <= 0 {
		cfg.BufferMultiplier = DefaultBufferMultiplier
	}
	if cfg.FeeHistoryBlocks == 0 {
		cfg.FeeHistoryBlocks = defaultFeeHistoryBlocks
	}
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Estimator{
		chainID: chainID,
		chain:   chain,
		prices:  prices,
		cfg:     cfg,
		logger:  log,
	}
}

// GasLimitCap returns the effective ceiling every estimate is clamped to.
func (e *Estimator) GasLimitCap() uint64 {
	limit := e.cfg.SecurityMaxGasLimit
	if e.cfg.NetworkMaxGasLimit > 0 && e.cfg.NetworkMaxGasLimit < limit {
		limit = e.cfg.NetworkMaxGasLimit
	}
	return limit
}

// Estimate produces a capped gas estimate for a prospective call.
func (e *Estimator) Estimate(ctx context.Context, to *common.Address, callData []byte, value *big.Int, priority models.Priority) (*Estimate, error) {
	gasLimit := e.gasLimit(ctx, to, callData, value)

	est := &Estimate{GasLimit: gasLimit}
	if err := e.price(ctx, est, priority); err != nil {
		return nil, err
	}

	limit := new(big.Int).SetUint64(gasLimit)
	est.TotalCost = new(big.Int).Mul(limit, est.EffectivePrice())

	e.attachUSDCost(ctx, est)
	return est, nil
}

// gasLimit simulates the call and applies the buffer, clamping the result.
// Simulation failure degrades to the static transfer default rather than
// blocking the payment.
func (e *Estimator) gasLimit(ctx context.Context, to *common.Address, callData []byte, value *big.Int) uint64 {
	simulated, err := e.chain.EstimateGas(ctx, to, callData, value)
	if err != nil {
		e.logger.DebugWithChain(e.chainID, "Gas simulation failed, using transfer default: %v", err)
		simulated = DefaultTransferGas
	}

	buffered := uint64(float64(simulated) * e.cfg.BufferMultiplier)

	ceiling := e.GasLimitCap()
	if ceiling > 0 && buffered > ceiling {
		e.logger.NoticeWithChain(e.chainID, "Clamping gas limit %d to cap %d", buffered, ceiling)
		metrics.GasLimitClamped.WithLabelValues(strconv.Itoa(e.chainID)).Inc()
		buffered = ceiling
	}
	return buffered
}

// price fills the pricing fields, choosing EIP-1559 or legacy pricing based
// on whether the chain exposes a base fee.
func (e *Estimator) price(ctx context.Context, est *Estimate, priority models.Priority) error {
	baseFee, err := e.chain.BaseFee(ctx)
	if err != nil {
		// Base fee unreadable; legacy pricing is the fallback path.
		gasPrice, gpErr := e.chain.SuggestGasPrice(ctx)
		if gpErr != nil {
			return fmt.Errorf("%w: base fee: %v, gas price: %v", ErrEstimationFailed, err, gpErr)
		}
		est.GasPrice = applyMultiplier(gasPrice, priority)
		return nil
	}

	if baseFee == nil {
		gasPrice, gpErr := e.chain.SuggestGasPrice(ctx)
		if gpErr != nil {
			return fmt.Errorf("%w: gas price: %v", ErrEstimationFailed, gpErr)
		}
		est.GasPrice = applyMultiplier(gasPrice, priority)
		return nil
	}

	tip := applyMultiplier(e.medianPriorityFee(ctx), priority)

	// maxFee = 2*baseFee + tip, with the multiplier applied to the tip
	// rather than the base fee itself.
	maxFee := new(big.Int).Mul(baseFee, big.NewInt(2))
	maxFee.Add(maxFee, tip)

	est.MaxPriorityFeePerGas = tip
	est.MaxFeePerGas = maxFee
	return nil
}

// medianPriorityFee takes the median of recent 50th-percentile rewards.
func (e *Estimator) medianPriorityFee(ctx context.Context) *big.Int {
	history, err := e.chain.FeeHistory(ctx, e.cfg.FeeHistoryBlocks, []float64{50})
	if err != nil || history == nil || len(history.Reward) == 0 {
		return big.NewInt(defaultPriorityFeeWei)
	}

	fees := make([]*big.Int, 0, len(history.Reward))
	for _, rewards := range history.Reward {
		if len(rewards) > 0 && rewards[0] != nil {
			fees = append(fees, rewards[0])
		}
	}
	if len(fees) == 0 {
		return big.NewInt(defaultPriorityFeeWei)
	}

	sort.Slice(fees, func(i, j int) bool { return fees[i].Cmp(fees[j]) < 0 })
	return new(big.Int).Set(fees[len(fees)/2])
}

// attachUSDCost looks up the native asset price. Failures only omit the
// USD figure, they never fail the estimate.
func (e *Estimator) attachUSDCost(ctx context.Context, est *Estimate) {
	if e.prices == nil || e.cfg.NativeAssetID == "" {
		return
	}

	price, err := e.prices.USDPrice(ctx, e.cfg.NativeAssetID)
	if err != nil {
		e.logger.DebugWithChain(e.chainID, "Price lookup failed, omitting USD cost: %v", err)
		return
	}

	// TotalCost is in wei of the native asset (18 decimals).
	cost := decimal.NewFromBigInt(est.TotalCost, -18).Mul(decimal.NewFromFloat(price))
	est.TotalCostUSD = &cost
}

// applyMultiplier scales a price component by the priority tier.
func applyMultiplier(price *big.Int, priority models.Priority) *big.Int {
	var multiplier float64
	switch priority {
	case models.PrioritySlow:
		multiplier = 0.9
	case models.PriorityFast:
		multiplier = 1.25
	case models.PriorityInstant:
		multiplier = 1.5
	default:
		multiplier = 1.0
	}

	scaled := new(big.Float).Mul(new(big.Float).SetInt(price), big.NewFloat(multiplier))
	result := new(big.Int)
	scaled.Int(result)
	return result
}
