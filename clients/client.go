// Package clients wraps per-chain JSON-RPC access behind a small interface
// so the resolver can be tested without live endpoints.
package clients

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TxInfo is the subset of a transaction the resolver needs.
type TxInfo struct {
	Hash    common.Hash
	To      *common.Address // nil for contract creation
	From    common.Address
	Value   *big.Int
	Pending bool
}

// Log is one receipt log entry.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// ReceiptInfo is the subset of a receipt the resolver needs.
type ReceiptInfo struct {
	Status      uint64
	BlockNumber uint64
	Logs        []Log
}

// ChainClient is the read-only view of one chain. Lookups for a missing
// transaction return ethereum.NotFound unwrapped so callers can tell
// "not here" from "endpoint broken".
type ChainClient interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*TxInfo, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*ReceiptInfo, error)
	BlockNumber(ctx context.Context) (uint64, error)

	// Token metadata via raw eth_call; implementations return defaults
	// rather than errors when a contract is nonstandard.
	TokenDecimals(ctx context.Context, token common.Address) uint8
	TokenSymbol(ctx context.Context, token common.Address) string

	Close()
}
