package clients

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

var _ ChainClient = (*EVMClient)(nil)

// Function selectors for the two ERC-20 metadata calls we make. Computed
// once; the ABI is fixed.
var (
	selectorDecimals = crypto.Keccak256([]byte("decimals()"))[:4]
	selectorSymbol   = crypto.Keccak256([]byte("symbol()"))[:4]
)

// TransferTopic is keccak256("Transfer(address,address,uint256)"), the
// topic[0] of every ERC-20 Transfer event.
var TransferTopic = common.BytesToHash(crypto.Keccak256([]byte("Transfer(address,address,uint256)")))

// Defaults used when a token contract does not answer metadata calls.
const (
	DefaultTokenDecimals uint8 = 18
	DefaultTokenSymbol         = "TOKEN"
)

// EVMClient talks to one EVM chain over JSON-RPC.
type EVMClient struct {
	chainID *big.Int
	rpcURL  string
	client  *ethclient.Client
}

// NewEVMClient dials the endpoint. chainID is the decimal chain id and is
// used to derive transaction senders locally instead of trusting the node.
func NewEVMClient(chainID *big.Int, rpcURL string) (*EVMClient, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to EVM RPC %s: %w", rpcURL, err)
	}
	return &EVMClient{
		chainID: chainID,
		rpcURL:  rpcURL,
		client:  client,
	}, nil
}

// Close releases the underlying RPC connection.
func (e *EVMClient) Close() {
	e.client.Close()
}

// TransactionByHash fetches the transaction and recovers the sender from
// the signature. A missing transaction surfaces as ethereum.NotFound.
func (e *EVMClient) TransactionByHash(ctx context.Context, hash common.Hash) (*TxInfo, error) {
	tx, pending, err := e.client.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, err
	}

	info := &TxInfo{
		Hash:    tx.Hash(),
		To:      tx.To(),
		Value:   tx.Value(),
		Pending: pending,
	}
	if from, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(e.chainID), tx); err == nil {
		info.From = from
	}
	return info, nil
}

// TransactionReceipt fetches the receipt. ethereum.NotFound means the
// transaction is still pending.
func (e *EVMClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*ReceiptInfo, error) {
	rcpt, err := e.client.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}

	info := &ReceiptInfo{
		Status: rcpt.Status,
		Logs:   make([]Log, 0, len(rcpt.Logs)),
	}
	if rcpt.BlockNumber != nil {
		info.BlockNumber = rcpt.BlockNumber.Uint64()
	}
	for _, lg := range rcpt.Logs {
		info.Logs = append(info.Logs, Log{
			Address: lg.Address,
			Topics:  lg.Topics,
			Data:    lg.Data,
		})
	}
	return info, nil
}

// BlockNumber returns the latest block height.
func (e *EVMClient) BlockNumber(ctx context.Context) (uint64, error) {
	return e.client.BlockNumber(ctx)
}

// TokenDecimals calls decimals() on the token, falling back to 18 when the
// contract is silent or nonstandard.
func (e *EVMClient) TokenDecimals(ctx context.Context, token common.Address) uint8 {
	out, err := e.call(ctx, token, selectorDecimals)
	if err != nil || len(out) == 0 {
		return DefaultTokenDecimals
	}
	d, err := DecodeUint8Return(out)
	if err != nil {
		return DefaultTokenDecimals
	}
	return d
}

// TokenSymbol calls symbol() on the token, falling back to "TOKEN".
func (e *EVMClient) TokenSymbol(ctx context.Context, token common.Address) string {
	out, err := e.call(ctx, token, selectorSymbol)
	if err != nil || len(out) == 0 {
		return DefaultTokenSymbol
	}
	s, err := DecodeStringReturn(out)
	if err != nil || s == "" {
		return DefaultTokenSymbol
	}
	return s
}

func (e *EVMClient) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{To: &to, Data: data}
	return e.client.CallContract(ctx, msg, nil)
}
