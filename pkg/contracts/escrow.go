package contracts

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EscrowABI is the ABI of the marketplace payment contract. Besides the
// escrow entry points it exposes payToken, which pulls approved tokens
// from the buyer and forwards them to the seller in one call.
const EscrowABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "token", "type": "address"},
			{"internalType": "address", "name": "recipient", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"}
		],
		"name": "payToken",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "bytes32", "name": "orderId", "type": "bytes32"},
			{"internalType": "address", "name": "recipient", "type": "address"},
			{"internalType": "address", "name": "token", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"},
			{"internalType": "uint256", "name": "deliveryDeadline", "type": "uint256"},
			{"internalType": "uint8", "name": "resolutionMethod", "type": "uint8"}
		],
		"name": "createEscrow",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "bytes32", "name": "escrowId", "type": "bytes32"},
			{"internalType": "string", "name": "note", "type": "string"}
		],
		"name": "confirmDelivery",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "bytes32", "name": "escrowId", "type": "bytes32"}
		],
		"name": "executeEmergencyRefund",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

var escrowABI = mustParseABI(EscrowABI)

// EscrowCall carries the arguments of a createEscrow invocation.
type EscrowCall struct {
	OrderID          [32]byte
	Recipient        common.Address
	Token            common.Address
	Amount           *big.Int
	DeliveryDeadline *big.Int
	ResolutionMethod uint8
}

// Escrow is a binding for the escrow contract.
type Escrow struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewEscrow creates a binding backed by the given contract backend.
func NewEscrow(address common.Address, backend bind.ContractBackend) *Escrow {
	return &Escrow{
		address:  address,
		contract: bind.NewBoundContract(address, escrowABI, backend, backend, backend),
	}
}

// Address returns the contract address.
func (e *Escrow) Address() common.Address {
	return e.address
}

// CreateEscrow locks funds for an order until release or refund.
func (e *Escrow) CreateEscrow(opts *bind.TransactOpts, call EscrowCall) (*types.Transaction, error) {
	return e.contract.Transact(opts, "createEscrow",
		call.OrderID, call.Recipient, call.Token, call.Amount, call.DeliveryDeadline, call.ResolutionMethod)
}

// PayToken moves approved tokens from the caller to the recipient.
func (e *Escrow) PayToken(opts *bind.TransactOpts, token, recipient common.Address, amount *big.Int) (*types.Transaction, error) {
	return e.contract.Transact(opts, "payToken", token, recipient, amount)
}

// ConfirmDelivery releases escrowed funds to the recipient.
func (e *Escrow) ConfirmDelivery(opts *bind.TransactOpts, escrowID [32]byte, note string) (*types.Transaction, error) {
	return e.contract.Transact(opts, "confirmDelivery", escrowID, note)
}

// ExecuteEmergencyRefund returns escrowed funds to the sender.
func (e *Escrow) ExecuteEmergencyRefund(opts *bind.TransactOpts, escrowID [32]byte) (*types.Transaction, error) {
	return e.contract.Transact(opts, "executeEmergencyRefund", escrowID)
}

// PackCreateEscrow returns createEscrow calldata for gas simulation.
func PackCreateEscrow(call EscrowCall) ([]byte, error) {
	return escrowABI.Pack("createEscrow",
		call.OrderID, call.Recipient, call.Token, call.Amount, call.DeliveryDeadline, call.ResolutionMethod)
}

// PackPayToken returns payToken calldata for gas simulation.
func PackPayToken(token, recipient common.Address, amount *big.Int) ([]byte, error) {
	return escrowABI.Pack("payToken", token, recipient, amount)
}

// PackConfirmDelivery returns confirmDelivery calldata for gas simulation.
func PackConfirmDelivery(escrowID [32]byte, note string) ([]byte, error) {
	return escrowABI.Pack("confirmDelivery", escrowID, note)
}

// PackEmergencyRefund returns executeEmergencyRefund calldata for gas simulation.
func PackEmergencyRefund(escrowID [32]byte) ([]byte, error) {
	return escrowABI.Pack("executeEmergencyRefund", escrowID)
}
