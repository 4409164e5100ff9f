package payment

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/bazaarhq/paycore/pkg/circuitbreaker"
	"github.com/bazaarhq/paycore/pkg/classifier"
	"github.com/bazaarhq/paycore/pkg/contracts"
	"github.com/bazaarhq/paycore/pkg/gasfee"
	"github.com/bazaarhq/paycore/pkg/logger"
	"github.com/bazaarhq/paycore/pkg/metrics"
	"github.com/bazaarhq/paycore/pkg/models"
	"github.com/bazaarhq/paycore/pkg/recovery"
)

// predefined approval amounts
var (
	ZeroApproval = big.NewInt(0)
	// MaxUint256 represents the maximum possible uint256 value (2^256 - 1)
	MaxUint256 = new(big.Int).Sub(new(big.Int).Exp(big.NewInt(2), big.NewInt(256), nil), big.NewInt(1))
)

// AllowanceCacheKey is used as a key for the allowance cache
type AllowanceCacheKey struct {
	ChainID     int
	TokenAddr   common.Address
	OwnerAddr   common.Address
	SpenderAddr common.Address
}

// AllowanceCacheEntry represents a cached allowance entry
type AllowanceCacheEntry struct {
	Allowance  *big.Int
	UpdatedAt  time.Time
	Expiration time.Time
}

// Backend bundles everything the manager needs to operate one chain.
type Backend struct {
	Chain                 Chain
	Estimator             Estimator
	Breaker               *circuitbreaker.CircuitBreaker
	RequiredConfirmations uint64
}

// Config carries the manager's tunables.
type Config struct {
	MaxRetries           int
	MonitorInterval      time.Duration
	MonitorErrorInterval time.Duration
	MonitorTimeout       time.Duration
	AllowanceTTL         time.Duration
}

const (
	DefaultMaxRetries           = 3
	DefaultMonitorInterval      = 5 * time.Second
	DefaultMonitorErrorInterval = 10 * time.Second
	DefaultMonitorTimeout       = 10 * time.Minute
	DefaultAllowanceTTL         = 5 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = DefaultMonitorInterval
	}
	if c.MonitorErrorInterval <= 0 {
		c.MonitorErrorInterval = DefaultMonitorErrorInterval
	}
	if c.MonitorTimeout <= 0 {
		c.MonitorTimeout = DefaultMonitorTimeout
	}
	if c.AllowanceTTL <= 0 {
		c.AllowanceTTL = DefaultAllowanceTTL
	}
	return c
}

// entry is the manager's record of one payment. The per-entry mutex
// serializes submission, retry, cancel and monitor updates for a single
// payment without blocking the rest.
type entry struct {
	mu            sync.Mutex
	tx            *models.PaymentTransaction
	req           models.PaymentRequest
	monitorCtx    context.Context
	cancelMonitor context.CancelFunc
	submittedAt   time.Time
}

// Manager drives payments through their lifecycle: validation,
// submission, confirmation monitoring, retries and cancellation.
type Manager struct {
	ctx          context.Context
	cfg          Config
	backends     map[int]*Backend
	orchestrator *recovery.Orchestrator
	logger       logger.Logger

	mu       sync.RWMutex
	payments map[string]*entry

	allowanceCache map[AllowanceCacheKey]AllowanceCacheEntry
	allowanceMu    sync.RWMutex

	wg sync.WaitGroup
}

// NewManager creates a lifecycle manager over the given chain backends.
// ctx bounds all monitor goroutines the manager spawns.
func NewManager(ctx context.Context, cfg Config, backends map[int]*Backend, orch *recovery.Orchestrator, log logger.Logger) *Manager {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	if orch == nil {
		orch = recovery.NewOrchestrator(log)
	}
	return &Manager{
		ctx:            ctx,
		cfg:            cfg.withDefaults(),
		backends:       backends,
		orchestrator:   orch,
		logger:         log,
		payments:       make(map[string]*entry),
		allowanceCache: make(map[AllowanceCacheKey]AllowanceCacheEntry),
	}
}

// Submit validates a request, submits it on-chain and starts
// confirmation monitoring. The returned transaction is a snapshot; on
// submission failure it is FAILED with a classified reason, alongside
// the error.
func (m *Manager) Submit(ctx context.Context, req *models.PaymentRequest) (*models.PaymentTransaction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	backend, ok := m.backends[req.ChainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChain, req.ChainID)
	}

	tx := models.NewPaymentTransaction(req, backend.Chain.Sender(), m.cfg.MaxRetries)
	e := &entry{tx: tx, req: *req}

	m.mu.Lock()
	m.payments[tx.ID] = e
	m.mu.Unlock()
	metrics.ActivePayments.Inc()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := m.process(ctx, e, backend); err != nil {
		return tx.Snapshot(), err
	}
	return tx.Snapshot(), nil
}

// Retry moves a FAILED payment back to PENDING and resubmits it.
func (m *Manager) Retry(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.tx.Status {
	case models.StatusFailed:
	case models.StatusConfirmed:
		return e.tx.Snapshot(), ErrAlreadyConfirmed
	default:
		return e.tx.Snapshot(), ErrNotRetryable
	}

	if e.tx.RetryCount >= e.tx.MaxRetries {
		chainLabel := strconv.Itoa(e.tx.ChainID)
		metrics.MaxRetriesReached.WithLabelValues(chainLabel, e.tx.FailureReason).Inc()
		return e.tx.Snapshot(), ErrRetriesExhausted
	}

	if err := e.tx.TransitionTo(models.StatusPending); err != nil {
		return e.tx.Snapshot(), err
	}
	e.tx.RetryCount++
	e.tx.FailureReason = ""
	e.tx.TxHash = common.Hash{}
	metrics.RetryCount.WithLabelValues(strconv.Itoa(e.tx.ChainID)).Inc()
	metrics.ActivePayments.Inc()

	backend := m.backends[e.tx.ChainID]
	if backend == nil {
		return e.tx.Snapshot(), fmt.Errorf("%w: %d", ErrUnsupportedChain, e.tx.ChainID)
	}

	m.logger.InfoWithChain(e.tx.ChainID, "Retrying payment %s (attempt %d/%d)", e.tx.ID, e.tx.RetryCount, e.tx.MaxRetries)
	if err := m.process(ctx, e, backend); err != nil {
		return e.tx.Snapshot(), err
	}
	return e.tx.Snapshot(), nil
}

// Cancel aborts a payment that has not reached a terminal state. A
// CONFIRMING payment stops being monitored; the on-chain transaction,
// if mined later, is no longer tracked.
func (m *Manager) Cancel(id string) (*models.PaymentTransaction, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.tx.Status {
	case models.StatusConfirmed:
		return e.tx.Snapshot(), ErrAlreadyConfirmed
	case models.StatusCancelled:
		return e.tx.Snapshot(), ErrNotCancellable
	}

	wasActive := e.tx.Status == models.StatusPending || e.tx.Status == models.StatusConfirming
	if err := e.tx.TransitionTo(models.StatusCancelled); err != nil {
		return e.tx.Snapshot(), err
	}
	if e.cancelMonitor != nil {
		e.cancelMonitor()
		e.cancelMonitor = nil
	}
	if wasActive {
		metrics.ActivePayments.Dec()
	}
	metrics.PaymentsCancelled.WithLabelValues(strconv.Itoa(e.tx.ChainID)).Inc()

	m.logger.InfoWithChain(e.tx.ChainID, "Cancelled payment %s", e.tx.ID)
	return e.tx.Snapshot(), nil
}

// GetStatus returns a snapshot of the payment's current state.
func (m *Manager) GetStatus(id string) (*models.PaymentTransaction, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tx.Snapshot(), nil
}

// GenerateReceipt builds a receipt for a confirmed payment.
func (m *Manager) GenerateReceipt(id string) (*models.Receipt, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return models.BuildReceipt(e.tx)
}

// HandleUnavailable classifies a raw failure and asks the orchestrator
// for the full recovery plan.
func (m *Manager) HandleUnavailable(method recovery.Method, cause error, rctx recovery.Context, alternatives []recovery.Method) *recovery.HandlingResult {
	perr := classifier.Classify(cause)
	return m.orchestrator.Handle(method, perr, rctx, alternatives)
}

// ActiveCount returns the number of payments in PENDING or CONFIRMING.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.payments))
	for _, e := range m.payments {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	count := 0
	for _, e := range entries {
		e.mu.Lock()
		if e.tx.Status == models.StatusPending || e.tx.Status == models.StatusConfirming {
			count++
		}
		e.mu.Unlock()
	}
	return count
}

// Cleanup drops terminal and failed payments older than maxAge, plus
// expired allowance cache entries. Failed payments are retryable until
// they age out; after that the record is gone and Retry returns
// ErrNotFound. Callers drive this periodically.
func (m *Manager) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	removed := 0
	for id, e := range m.payments {
		e.mu.Lock()
		done := e.tx.IsTerminal() || e.tx.Status == models.StatusFailed
		stale := done && e.tx.UpdatedAt.Before(cutoff)
		e.mu.Unlock()
		if stale {
			delete(m.payments, id)
			removed++
		}
	}
	m.mu.Unlock()

	now := time.Now()
	m.allowanceMu.Lock()
	for key, cached := range m.allowanceCache {
		if now.After(cached.Expiration) {
			delete(m.allowanceCache, key)
		}
	}
	m.allowanceMu.Unlock()

	return removed
}

// Wait blocks until all monitor goroutines have finished. Call after
// cancelling the manager's root context.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.payments[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// process runs the submission pipeline for a PENDING entry. The entry
// lock is held by the caller.
func (m *Manager) process(ctx context.Context, e *entry, backend *Backend) error {
	chainLabel := strconv.Itoa(e.tx.ChainID)

	if backend.Breaker != nil && backend.Breaker.IsOpen() {
		m.fail(e, backend, classifier.Describe(classifier.KindCircuitBreakerOpen, ErrCircuitOpen.Error()))
		return ErrCircuitOpen
	}

	if err := m.checkBalance(ctx, e, backend); err != nil {
		m.fail(e, backend, classifier.Classify(err))
		return err
	}

	txHash, err := m.submit(ctx, e, backend)
	if err != nil {
		perr := classifier.Classify(err)
		m.fail(e, backend, perr)
		return err
	}

	if err := e.tx.TransitionTo(models.StatusConfirming); err != nil {
		return err
	}
	e.tx.TxHash = txHash
	e.submittedAt = time.Now()

	method := "transfer"
	if e.req.Escrow != nil {
		method = "escrow"
	}
	metrics.PaymentsSubmitted.WithLabelValues(chainLabel, method).Inc()
	m.logger.InfoWithChain(e.tx.ChainID, "Submitted payment %s: tx %s", e.tx.ID, txHash.Hex())

	m.startMonitor(e, backend)
	return nil
}

// checkBalance verifies the sender can cover the payment amount before
// anything is signed.
func (m *Manager) checkBalance(ctx context.Context, e *entry, backend *Backend) error {
	sender := backend.Chain.Sender()

	if e.tx.Token.IsNative {
		balance, err := backend.Chain.Balance(ctx, sender)
		if err != nil {
			return fmt.Errorf("failed to check balance: %w", err)
		}
		if balance.Cmp(e.tx.Amount) < 0 {
			return &InsufficientBalanceError{Symbol: e.tx.Token.Symbol}
		}
		return nil
	}

	balance, err := backend.Chain.TokenBalance(ctx, e.tx.Token.Address, sender)
	if err != nil {
		return fmt.Errorf("failed to check token balance: %w", err)
	}
	if balance.Cmp(e.tx.Amount) < 0 {
		return &InsufficientBalanceError{Symbol: e.tx.Token.Symbol}
	}
	return nil
}

// submit estimates and sends the on-chain transaction for the entry,
// choosing the direct or escrow path.
func (m *Manager) submit(ctx context.Context, e *entry, backend *Backend) (common.Hash, error) {
	if e.req.Escrow != nil {
		return m.submitEscrow(ctx, e, backend)
	}
	return m.submitDirect(ctx, e, backend)
}

func (m *Manager) submitDirect(ctx context.Context, e *entry, backend *Backend) (common.Hash, error) {
	priority := e.req.EffectivePriority()

	if e.tx.Token.IsNative {
		to := e.tx.Recipient
		est, err := backend.Estimator.Estimate(ctx, &to, nil, e.tx.Amount, priority)
		if err != nil {
			return common.Hash{}, err
		}
		m.observeGasPrice(e.tx.ChainID, est)
		return backend.Chain.SendNative(ctx, to, e.tx.Amount, est)
	}

	tokenAddr := e.tx.Token.Address

	// With a payment contract deployed, token payments route through it:
	// the contract pulls approved tokens via transferFrom, so the
	// allowance has to cover the amount first.
	if contractAddr := backend.Chain.EscrowAddress(); contractAddr != (common.Address{}) {
		if err := m.ensureAllowance(ctx, e, backend, contractAddr); err != nil {
			return common.Hash{}, err
		}
		callData, err := contracts.PackPayToken(tokenAddr, e.tx.Recipient, e.tx.Amount)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to pack payToken: %w", err)
		}
		est, err := backend.Estimator.Estimate(ctx, &contractAddr, callData, nil, priority)
		if err != nil {
			return common.Hash{}, err
		}
		m.observeGasPrice(e.tx.ChainID, est)
		return backend.Chain.PayToken(ctx, tokenAddr, e.tx.Recipient, e.tx.Amount, est)
	}

	callData, err := contracts.PackTransfer(e.tx.Recipient, e.tx.Amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack transfer: %w", err)
	}
	est, err := backend.Estimator.Estimate(ctx, &tokenAddr, callData, nil, priority)
	if err != nil {
		return common.Hash{}, err
	}
	m.observeGasPrice(e.tx.ChainID, est)
	return backend.Chain.TransferToken(ctx, tokenAddr, e.tx.Recipient, e.tx.Amount, est)
}

func (m *Manager) submitEscrow(ctx context.Context, e *entry, backend *Backend) (common.Hash, error) {
	escrowAddr := backend.Chain.EscrowAddress()
	if escrowAddr == (common.Address{}) {
		return common.Hash{}, fmt.Errorf("%w: %d", ErrEscrowNotConfigured, e.tx.ChainID)
	}

	priority := e.req.EffectivePriority()
	chainLabel := strconv.Itoa(e.tx.ChainID)

	call := contracts.EscrowCall{
		OrderID:          EscrowID(e.tx.OrderID),
		Recipient:        e.tx.Recipient,
		Amount:           e.tx.Amount,
		DeliveryDeadline: big.NewInt(e.req.Escrow.DeliveryDeadline.Unix()),
		ResolutionMethod: uint8(e.req.Escrow.Resolution),
	}

	var value *big.Int
	if e.tx.Token.IsNative {
		value = e.tx.Amount
	} else {
		call.Token = e.tx.Token.Address
		if err := m.ensureAllowance(ctx, e, backend, escrowAddr); err != nil {
			return common.Hash{}, err
		}
	}

	callData, err := contracts.PackCreateEscrow(call)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack createEscrow: %w", err)
	}
	est, err := backend.Estimator.Estimate(ctx, &escrowAddr, callData, value, priority)
	if err != nil {
		return common.Hash{}, err
	}
	m.observeGasPrice(e.tx.ChainID, est)

	txHash, err := backend.Chain.CreateEscrow(ctx, call, value, est)
	if err != nil {
		metrics.EscrowOperations.WithLabelValues(chainLabel, "create", "error").Inc()
		return common.Hash{}, err
	}
	metrics.EscrowOperations.WithLabelValues(chainLabel, "create", "submitted").Inc()
	return txHash, nil
}

// ensureAllowance makes sure the escrow contract may pull the token
// amount, approving first when the cached or live allowance is short.
func (m *Manager) ensureAllowance(ctx context.Context, e *entry, backend *Backend, spender common.Address) error {
	owner := backend.Chain.Sender()
	key := AllowanceCacheKey{
		ChainID:     e.tx.ChainID,
		TokenAddr:   e.tx.Token.Address,
		OwnerAddr:   owner,
		SpenderAddr: spender,
	}

	m.allowanceMu.RLock()
	cached, exists := m.allowanceCache[key]
	m.allowanceMu.RUnlock()

	if exists && time.Now().Before(cached.Expiration) && cached.Allowance.Cmp(e.tx.Amount) >= 0 {
		m.logger.DebugWithChain(e.tx.ChainID, "Using cached allowance for token %s: %s",
			e.tx.Token.Symbol, cached.Allowance.String())
		return nil
	}

	allowance, err := backend.Chain.TokenAllowance(ctx, e.tx.Token.Address, owner, spender)
	if err != nil {
		return fmt.Errorf("failed to check allowance: %w", err)
	}

	if allowance.Cmp(e.tx.Amount) >= 0 {
		m.cacheAllowance(key, allowance)
		return nil
	}

	// Unlimited approval: one transaction covers every future payment
	// with this token.
	callData, err := contracts.PackApprove(spender, MaxUint256)
	if err != nil {
		return fmt.Errorf("failed to pack approve: %w", err)
	}
	tokenAddr := e.tx.Token.Address
	est, err := backend.Estimator.Estimate(ctx, &tokenAddr, callData, nil, e.req.EffectivePriority())
	if err != nil {
		return err
	}

	approveHash, err := backend.Chain.ApproveToken(ctx, tokenAddr, spender, MaxUint256, est)
	if err != nil {
		return fmt.Errorf("failed to approve token: %w", err)
	}

	receipt, err := backend.Chain.WaitMined(ctx, approveHash)
	if err != nil {
		return fmt.Errorf("failed to wait for approve transaction: %w", err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return fmt.Errorf("approve transaction failed")
	}

	m.logger.InfoWithChain(e.tx.ChainID, "Approved token %s for spender %s", e.tx.Token.Symbol, spender.Hex())
	m.cacheAllowance(key, new(big.Int).Set(MaxUint256))
	return nil
}

func (m *Manager) cacheAllowance(key AllowanceCacheKey, allowance *big.Int) {
	now := time.Now()
	m.allowanceMu.Lock()
	m.allowanceCache[key] = AllowanceCacheEntry{
		Allowance:  allowance,
		UpdatedAt:  now,
		Expiration: now.Add(m.cfg.AllowanceTTL),
	}
	m.allowanceMu.Unlock()
}

// fail moves the entry to FAILED with the classified reason and feeds
// the chain breaker. The entry lock is held by the caller.
func (m *Manager) fail(e *entry, backend *Backend, perr *classifier.PaymentError) {
	chainLabel := strconv.Itoa(e.tx.ChainID)
	metrics.ClassifiedErrors.WithLabelValues(chainLabel, string(perr.Kind)).Inc()

	if models.CanTransition(e.tx.Status, models.StatusFailed) {
		wasActive := e.tx.Status == models.StatusPending || e.tx.Status == models.StatusConfirming
		if err := e.tx.TransitionTo(models.StatusFailed); err == nil {
			e.tx.FailureReason = perr.UserMessage
			if wasActive {
				metrics.ActivePayments.Dec()
			}
			metrics.PaymentsFailed.WithLabelValues(chainLabel, string(perr.Kind)).Inc()
		}
	}

	if backend.Breaker != nil && perr.Kind != classifier.KindCircuitBreakerOpen {
		if backend.Breaker.RecordFailure() {
			metrics.CircuitBreakerTrips.WithLabelValues(chainLabel).Inc()
			m.logger.NoticeWithChain(e.tx.ChainID, "Circuit breaker open after failure: %s", perr.Kind)
		}
	}

	m.logger.ErrorWithChain(e.tx.ChainID, "Payment %s failed (%s): %s", e.tx.ID, perr.Kind, perr.Message)
}

func (m *Manager) observeGasPrice(chainID int, est *gasfee.Estimate) {
	price := est.EffectivePrice()
	if price == nil {
		return
	}
	gwei := new(big.Float).Quo(new(big.Float).SetInt(price), big.NewFloat(1e9))
	f, _ := gwei.Float64()
	metrics.GasPrice.WithLabelValues(strconv.Itoa(chainID)).Set(f)
}

// EscrowID derives the deterministic escrow identifier for an order.
func EscrowID(orderID string) [32]byte {
	return crypto.Keccak256Hash([]byte(orderID))
}
