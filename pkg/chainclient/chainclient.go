package chainclient

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/bazaarhq/paycore/pkg/contracts"
	"github.com/bazaarhq/paycore/pkg/gasfee"
)

const (
	rpcCallTimeout   = 10 * time.Second
	receiptPollEvery = 2 * time.Second
)

// Client contains the connection and signing state for a specific
// blockchain. It satisfies gasfee.ChainReader and the payment package's
// Chain interface.
type Client struct {
	ChainID        int
	RPCURL         string
	Client         *ethclient.Client
	EscrowContract *contracts.Escrow
	Auth           *bind.TransactOpts
}

// New connects to a chain and initializes the escrow binding and the
// transaction signer. escrowAddress may be empty when the chain is used
// for direct transfers only.
func New(ctx context.Context, chainID int, rpcURL string, escrowAddress string, privateKey string) (*Client, error) {
	c := &Client{
		ChainID: chainID,
		RPCURL:  rpcURL,
	}
	if err := c.connect(ctx, escrowAddress, privateKey); err != nil {
		return nil, fmt.Errorf("failed to connect to chain %d: %v", chainID, err)
	}
	return c, nil
}

// connect establishes the RPC connection and initializes signer and
// contract bindings.
func (c *Client) connect(ctx context.Context, escrowAddress string, privateKey string) error {
	client, err := ethclient.Dial(c.RPCURL)
	if err != nil {
		return fmt.Errorf("failed to connect to client: %v", err)
	}
	c.Client = client

	if privateKey != "" {
		auth, err := createAuthenticator(ctx, client, privateKey)
		if err != nil {
			return fmt.Errorf("failed to create authenticator: %v", err)
		}
		c.Auth = auth
	}

	if escrowAddress != "" {
		c.EscrowContract = contracts.NewEscrow(common.HexToAddress(escrowAddress), client)
	}

	return nil
}

// Helper function to create authenticator
func createAuthenticator(ctx context.Context, client *ethclient.Client, privateKeyHex string) (*bind.TransactOpts, error) {
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %v", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %v", err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(privateKey, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %v", err)
	}

	return auth, nil
}

// Sender returns the signing account's address.
func (c *Client) Sender() common.Address {
	if c.Auth == nil {
		return common.Address{}
	}
	return c.Auth.From
}

// EscrowAddress returns the escrow contract address, or the zero address
// if the chain has no escrow deployment.
func (c *Client) EscrowAddress() common.Address {
	if c.EscrowContract == nil {
		return common.Address{}
	}
	return c.EscrowContract.Address()
}

// BlockNumber gets the latest block number from the chain.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	if c.Client == nil {
		return 0, fmt.Errorf("client not connected")
	}
	return c.Client.BlockNumber(ctx)
}

// TransactionReceipt returns the receipt of a mined transaction, or
// ethereum.NotFound if it is not mined yet.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return c.Client.TransactionReceipt(ctx, txHash)
}

// Balance returns the native balance of an account.
func (c *Client) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()
	return c.Client.BalanceAt(timeoutCtx, account, nil)
}

// TokenBalance returns the ERC-20 balance of an account.
func (c *Client) TokenBalance(ctx context.Context, token, account common.Address) (*big.Int, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()
	erc20 := contracts.NewERC20(token, c.Client)
	return erc20.BalanceOf(&bind.CallOpts{Context: timeoutCtx}, account)
}

// TokenAllowance returns the amount a spender may move for an owner.
func (c *Client) TokenAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()
	erc20 := contracts.NewERC20(token, c.Client)
	return erc20.Allowance(&bind.CallOpts{Context: timeoutCtx}, owner, spender)
}

// EstimateGas simulates a call from the signing account.
func (c *Client) EstimateGas(ctx context.Context, to *common.Address, data []byte, value *big.Int) (uint64, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()

	msg := ethereum.CallMsg{
		From:  c.Sender(),
		To:    to,
		Data:  data,
		Value: value,
	}
	return c.Client.EstimateGas(timeoutCtx, msg)
}

// SuggestGasPrice returns the node's legacy gas price suggestion.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()
	return c.Client.SuggestGasPrice(timeoutCtx)
}

// BaseFee returns the latest block's base fee. A nil value means the
// chain does not use dynamic fees.
func (c *Client) BaseFee(ctx context.Context) (*big.Int, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()

	header, err := c.Client.HeaderByNumber(timeoutCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %v", err)
	}
	return header.BaseFee, nil
}

// FeeHistory returns recent fee history for priority fee sampling.
func (c *Client) FeeHistory(ctx context.Context, blockCount uint64, percentiles []float64) (*ethereum.FeeHistory, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()
	return c.Client.FeeHistory(timeoutCtx, blockCount, nil, percentiles)
}

// SendNative submits a native coin transfer priced by the estimate.
func (c *Client) SendNative(ctx context.Context, to common.Address, amount *big.Int, est *gasfee.Estimate) (common.Hash, error) {
	if c.Auth == nil {
		return common.Hash{}, fmt.Errorf("no signer configured for chain %d", c.ChainID)
	}

	nonce, err := c.Client.PendingNonceAt(ctx, c.Auth.From)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %v", err)
	}

	var tx *types.Transaction
	if est.MaxFeePerGas != nil {
		tx = types.NewTx(&types.DynamicFeeTx{
			Nonce:     nonce,
			To:        &to,
			Value:     amount,
			Gas:       est.GasLimit,
			GasFeeCap: est.MaxFeePerGas,
			GasTipCap: est.MaxPriorityFeePerGas,
		})
	} else {
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       &to,
			Value:    amount,
			Gas:      est.GasLimit,
			GasPrice: est.GasPrice,
		})
	}

	signedTx, err := c.Auth.Signer(c.Auth.From, tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %v", err)
	}

	if err := c.Client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %v", err)
	}
	return signedTx.Hash(), nil
}

// TransferToken submits an ERC-20 transfer priced by the estimate.
func (c *Client) TransferToken(ctx context.Context, token, to common.Address, amount *big.Int, est *gasfee.Estimate) (common.Hash, error) {
	opts, err := c.transactOpts(ctx, est)
	if err != nil {
		return common.Hash{}, err
	}

	erc20 := contracts.NewERC20(token, c.Client)
	tx, err := erc20.Transfer(opts, to, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to transfer token: %v", err)
	}
	return tx.Hash(), nil
}

// ApproveToken submits an ERC-20 approval priced by the estimate.
func (c *Client) ApproveToken(ctx context.Context, token, spender common.Address, amount *big.Int, est *gasfee.Estimate) (common.Hash, error) {
	opts, err := c.transactOpts(ctx, est)
	if err != nil {
		return common.Hash{}, err
	}

	erc20 := contracts.NewERC20(token, c.Client)
	tx, err := erc20.Approve(opts, spender, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to approve token: %v", err)
	}
	return tx.Hash(), nil
}

// PayToken routes an approved token payment through the payment
// contract, which pulls the tokens from the sender via transferFrom.
func (c *Client) PayToken(ctx context.Context, token, to common.Address, amount *big.Int, est *gasfee.Estimate) (common.Hash, error) {
	if c.EscrowContract == nil {
		return common.Hash{}, fmt.Errorf("no payment contract on chain %d", c.ChainID)
	}

	opts, err := c.transactOpts(ctx, est)
	if err != nil {
		return common.Hash{}, err
	}

	tx, err := c.EscrowContract.PayToken(opts, token, to, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pay token: %v", err)
	}
	return tx.Hash(), nil
}

// CreateEscrow locks funds in the escrow contract. value carries the
// native amount for native-coin escrows and must be zero for tokens.
func (c *Client) CreateEscrow(ctx context.Context, call contracts.EscrowCall, value *big.Int, est *gasfee.Estimate) (common.Hash, error) {
	if c.EscrowContract == nil {
		return common.Hash{}, fmt.Errorf("no escrow contract on chain %d", c.ChainID)
	}

	opts, err := c.transactOpts(ctx, est)
	if err != nil {
		return common.Hash{}, err
	}
	opts.Value = value

	tx, err := c.EscrowContract.CreateEscrow(opts, call)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to create escrow: %v", err)
	}
	return tx.Hash(), nil
}

// ConfirmDelivery releases escrowed funds to the recipient.
func (c *Client) ConfirmDelivery(ctx context.Context, escrowID [32]byte, note string, est *gasfee.Estimate) (common.Hash, error) {
	if c.EscrowContract == nil {
		return common.Hash{}, fmt.Errorf("no escrow contract on chain %d", c.ChainID)
	}

	opts, err := c.transactOpts(ctx, est)
	if err != nil {
		return common.Hash{}, err
	}

	tx, err := c.EscrowContract.ConfirmDelivery(opts, escrowID, note)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to confirm delivery: %v", err)
	}
	return tx.Hash(), nil
}

// EmergencyRefund returns escrowed funds to the sender.
func (c *Client) EmergencyRefund(ctx context.Context, escrowID [32]byte, est *gasfee.Estimate) (common.Hash, error) {
	if c.EscrowContract == nil {
		return common.Hash{}, fmt.Errorf("no escrow contract on chain %d", c.ChainID)
	}

	opts, err := c.transactOpts(ctx, est)
	if err != nil {
		return common.Hash{}, err
	}

	tx, err := c.EscrowContract.ExecuteEmergencyRefund(opts, escrowID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to execute refund: %v", err)
	}
	return tx.Hash(), nil
}

// WaitMined polls for the receipt of a transaction until the context is
// cancelled.
func (c *Client) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollEvery)
	defer ticker.Stop()

	for {
		receipt, err := c.Client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// transactOpts derives fresh transact options from the signer, priced
// by the estimate.
func (c *Client) transactOpts(ctx context.Context, est *gasfee.Estimate) (*bind.TransactOpts, error) {
	if c.Auth == nil {
		return nil, fmt.Errorf("no signer configured for chain %d", c.ChainID)
	}

	opts := &bind.TransactOpts{
		From:    c.Auth.From,
		Signer:  c.Auth.Signer,
		Context: ctx,
	}
	if est != nil {
		opts.GasLimit = est.GasLimit
		if est.MaxFeePerGas != nil {
			opts.GasFeeCap = est.MaxFeePerGas
			opts.GasTipCap = est.MaxPriorityFeePerGas
		} else {
			opts.GasPrice = est.GasPrice
		}
	}
	return opts, nil
}
