package payment

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bazaarhq/paycore/pkg/contracts"
	"github.com/bazaarhq/paycore/pkg/gasfee"
	"github.com/bazaarhq/paycore/pkg/models"
)

// Chain is the on-chain surface the lifecycle manager depends on.
// *chainclient.Client satisfies it; tests substitute mocks.
type Chain interface {
	Sender() common.Address
	EscrowAddress() common.Address

	BlockNumber(ctx context.Context) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	Balance(ctx context.Context, account common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error)
	TokenAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)

	SendNative(ctx context.Context, to common.Address, amount *big.Int, est *gasfee.Estimate) (common.Hash, error)
	TransferToken(ctx context.Context, token, to common.Address, amount *big.Int, est *gasfee.Estimate) (common.Hash, error)
	ApproveToken(ctx context.Context, token, spender common.Address, amount *big.Int, est *gasfee.Estimate) (common.Hash, error)
	PayToken(ctx context.Context, token, to common.Address, amount *big.Int, est *gasfee.Estimate) (common.Hash, error)

	CreateEscrow(ctx context.Context, call contracts.EscrowCall, value *big.Int, est *gasfee.Estimate) (common.Hash, error)
	ConfirmDelivery(ctx context.Context, escrowID [32]byte, note string, est *gasfee.Estimate) (common.Hash, error)
	EmergencyRefund(ctx context.Context, escrowID [32]byte, est *gasfee.Estimate) (common.Hash, error)

	WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Estimator produces gas and fee estimates for a pending call.
// *gasfee.Estimator satisfies it.
type Estimator interface {
	Estimate(ctx context.Context, to *common.Address, callData []byte, value *big.Int, priority models.Priority) (*gasfee.Estimate, error)
}
