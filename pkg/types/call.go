package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// FlashLoanCall is the prepared transaction payload handed to the chain
// client for simulation and broadcast. It mirrors the on-chain contract's
// entry point: borrow Amount of Asset, walk Path across Venues, repay plus
// the flash-loan fee within the same transaction.
type FlashLoanCall struct {
	OpportunityID string           `json:"opportunityId"`
	Contract      common.Address   `json:"contract"`
	Asset         common.Address   `json:"asset"`
	Amount        *big.Int         `json:"amount"`
	Path          []common.Address `json:"path"`
	Venues        []string         `json:"venues"`
	SlippageBps   int64            `json:"slippageBps"`
	GasPrice      *big.Int         `json:"gasPrice"`
	GasLimit      uint64           `json:"gasLimit"`
	PreparedAt    time.Time        `json:"preparedAt"`
}

// GasCost returns the worst-case gas spend for the call in wei.
func (c *FlashLoanCall) GasCost() *big.Int {
	if c.GasPrice == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(c.GasPrice, new(big.Int).SetUint64(c.GasLimit))
}

// Receipt summarizes the on-chain outcome of a broadcast call.
// RealizedProfit is decoded from the contract's execution event and is nil
// when the log is absent (failed call, or a contract without the event).
type Receipt struct {
	TxHash         common.Hash `json:"txHash"`
	Success        bool        `json:"success"`
	GasUsed        uint64      `json:"gasUsed"`
	GasPrice       *big.Int    `json:"gasPrice"`
	Block          uint64      `json:"block"`
	RealizedProfit *big.Int    `json:"realizedProfit,omitempty"`
}

// GasSpent returns the realized gas spend in wei.
func (r *Receipt) GasSpent() *big.Int {
	if r.GasPrice == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(r.GasPrice, new(big.Int).SetUint64(r.GasUsed))
}
