package mocks

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bazaarhq/paycore/pkg/contracts"
	"github.com/bazaarhq/paycore/pkg/gasfee"
	"github.com/bazaarhq/paycore/pkg/models"
)

// MockChain is an in-memory chain backend for lifecycle tests. Every
// method appends its name to Calls, so tests can assert ordering such
// as approval before escrow creation.
type MockChain struct {
	mu    sync.Mutex
	Calls []string

	SenderAddr common.Address
	EscrowAddr common.Address

	NativeBalance *big.Int
	TokenBalances map[common.Address]*big.Int
	Allowances    map[common.Address]*big.Int

	Head     uint64
	Receipts map[common.Hash]*types.Receipt

	BalanceErr error
	SubmitErr  error

	hashCounter uint64
}

// NewMockChain creates a mock with a funded sender.
func NewMockChain() *MockChain {
	return &MockChain{
		SenderAddr:    common.HexToAddress("0x00000000000000000000000000000000000000AA"),
		EscrowAddr:    common.HexToAddress("0x00000000000000000000000000000000000000EE"),
		NativeBalance: big.NewInt(1000000000000000000), // 1 ETH
		TokenBalances: make(map[common.Address]*big.Int),
		Allowances:    make(map[common.Address]*big.Int),
		Head:          1000,
		Receipts:      make(map[common.Hash]*types.Receipt),
	}
}

func (c *MockChain) record(call string) {
	c.mu.Lock()
	c.Calls = append(c.Calls, call)
	c.mu.Unlock()
}

// CallSequence returns a copy of the recorded call names.
func (c *MockChain) CallSequence() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.Calls))
	copy(out, c.Calls)
	return out
}

func (c *MockChain) nextHash() common.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hashCounter++
	return common.BigToHash(new(big.Int).SetUint64(c.hashCounter))
}

// SetHead moves the chain head.
func (c *MockChain) SetHead(head uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Head = head
}

// SetReceipt installs the receipt returned for a hash.
func (c *MockChain) SetReceipt(txHash common.Hash, status uint64, blockNumber uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Receipts[txHash] = &types.Receipt{
		Status:            status,
		BlockNumber:       new(big.Int).SetUint64(blockNumber),
		GasUsed:           21000,
		EffectiveGasPrice: big.NewInt(2000000000),
		TxHash:            txHash,
	}
}

func (c *MockChain) Sender() common.Address        { return c.SenderAddr }
func (c *MockChain) EscrowAddress() common.Address { return c.EscrowAddr }

func (c *MockChain) BlockNumber(_ context.Context) (uint64, error) {
	c.record("BlockNumber")
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Head, nil
}

func (c *MockChain) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.record("TransactionReceipt")
	c.mu.Lock()
	defer c.mu.Unlock()
	receipt, ok := c.Receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (c *MockChain) Balance(_ context.Context, _ common.Address) (*big.Int, error) {
	c.record("Balance")
	if c.BalanceErr != nil {
		return nil, c.BalanceErr
	}
	return new(big.Int).Set(c.NativeBalance), nil
}

func (c *MockChain) TokenBalance(_ context.Context, token, _ common.Address) (*big.Int, error) {
	c.record("TokenBalance")
	if c.BalanceErr != nil {
		return nil, c.BalanceErr
	}
	balance, ok := c.TokenBalances[token]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(balance), nil
}

func (c *MockChain) TokenAllowance(_ context.Context, token, _, _ common.Address) (*big.Int, error) {
	c.record("TokenAllowance")
	allowance, ok := c.Allowances[token]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(allowance), nil
}

func (c *MockChain) SendNative(_ context.Context, _ common.Address, _ *big.Int, _ *gasfee.Estimate) (common.Hash, error) {
	c.record("SendNative")
	if c.SubmitErr != nil {
		return common.Hash{}, c.SubmitErr
	}
	return c.nextHash(), nil
}

func (c *MockChain) TransferToken(_ context.Context, _, _ common.Address, _ *big.Int, _ *gasfee.Estimate) (common.Hash, error) {
	c.record("TransferToken")
	if c.SubmitErr != nil {
		return common.Hash{}, c.SubmitErr
	}
	return c.nextHash(), nil
}

func (c *MockChain) ApproveToken(_ context.Context, token, _ common.Address, amount *big.Int, _ *gasfee.Estimate) (common.Hash, error) {
	c.record("ApproveToken")
	if c.SubmitErr != nil {
		return common.Hash{}, c.SubmitErr
	}
	c.mu.Lock()
	c.Allowances[token] = new(big.Int).Set(amount)
	c.mu.Unlock()
	txHash := c.nextHash()
	c.SetReceipt(txHash, types.ReceiptStatusSuccessful, c.Head)
	return txHash, nil
}

func (c *MockChain) PayToken(_ context.Context, _, _ common.Address, _ *big.Int, _ *gasfee.Estimate) (common.Hash, error) {
	c.record("PayToken")
	if c.SubmitErr != nil {
		return common.Hash{}, c.SubmitErr
	}
	return c.nextHash(), nil
}

func (c *MockChain) CreateEscrow(_ context.Context, _ contracts.EscrowCall, _ *big.Int, _ *gasfee.Estimate) (common.Hash, error) {
	c.record("CreateEscrow")
	if c.SubmitErr != nil {
		return common.Hash{}, c.SubmitErr
	}
	return c.nextHash(), nil
}

func (c *MockChain) ConfirmDelivery(_ context.Context, _ [32]byte, _ string, _ *gasfee.Estimate) (common.Hash, error) {
	c.record("ConfirmDelivery")
	if c.SubmitErr != nil {
		return common.Hash{}, c.SubmitErr
	}
	txHash := c.nextHash()
	c.SetReceipt(txHash, types.ReceiptStatusSuccessful, c.Head)
	return txHash, nil
}

func (c *MockChain) EmergencyRefund(_ context.Context, _ [32]byte, _ *gasfee.Estimate) (common.Hash, error) {
	c.record("EmergencyRefund")
	if c.SubmitErr != nil {
		return common.Hash{}, c.SubmitErr
	}
	txHash := c.nextHash()
	c.SetReceipt(txHash, types.ReceiptStatusSuccessful, c.Head)
	return txHash, nil
}

func (c *MockChain) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.record("WaitMined")
	c.mu.Lock()
	defer c.mu.Unlock()
	receipt, ok := c.Receipts[txHash]
	if !ok {
		return nil, fmt.Errorf("no receipt for %s", txHash.Hex())
	}
	return receipt, nil
}

// MockEstimator returns a fixed estimate, or Err when set.
type MockEstimator struct {
	Err      error
	GasLimit uint64
	GasPrice *big.Int
}

// NewMockEstimator creates an estimator with plain legacy pricing.
func NewMockEstimator() *MockEstimator {
	return &MockEstimator{
		GasLimit: 21000,
		GasPrice: big.NewInt(2000000000), // 2 Gwei
	}
}

func (e *MockEstimator) Estimate(_ context.Context, _ *common.Address, _ []byte, _ *big.Int, _ models.Priority) (*gasfee.Estimate, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	totalCost := new(big.Int).Mul(new(big.Int).SetUint64(e.GasLimit), e.GasPrice)
	return &gasfee.Estimate{
		GasLimit:  e.GasLimit,
		GasPrice:  new(big.Int).Set(e.GasPrice),
		TotalCost: totalCost,
	}, nil
}
