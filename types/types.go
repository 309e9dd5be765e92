// Package types defines the data model shared by the evmpay packages:
// chain configuration, located transactions, extracted transfers, price
// quotes and the public PaymentResolution result.
package types

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// ChainConfig describes one supported EVM network. Entries are immutable
// after the registry loads them and live for the process lifetime.
type ChainConfig struct {
	// ID is the hex-encoded chain id, e.g. "0x1" for Ethereum mainnet.
	ID string `json:"id" validate:"required,startswith=0x"`

	// Name is the human-readable network name used in reasons and logs.
	Name string `json:"name" validate:"required"`

	// RPCURL is the JSON-RPC endpoint queried for this chain.
	RPCURL string `json:"rpcUrl" validate:"required,url"`

	// NativeSymbol is the ticker of the chain's base currency.
	NativeSymbol string `json:"nativeSymbol" validate:"required"`

	// PriceNativeID is the price-index identifier of the native asset.
	PriceNativeID string `json:"priceNativeId" validate:"required"`

	// PricePlatformID is the price-index platform slug used for
	// contract-keyed token lookups on this chain.
	PricePlatformID string `json:"pricePlatformId" validate:"required"`

	// MinConfirmations is the block depth required before a payment on
	// this chain is considered final.
	MinConfirmations uint64 `json:"minConfirmations"`
}

// LocatedTransaction is the transaction-level view produced by the locator.
// It is created per resolution call and never persisted.
type LocatedTransaction struct {
	ChainID        string
	Hash           string
	To             string // empty for contract-creation transactions
	From           string
	RawNativeValue *big.Int
	BlockNumber    uint64 // 0 while the transaction is unmined
	Pending        bool
	ReceiptStatus  uint64 // meaningful only when HasReceipt
	HasReceipt     bool
	Confirmations  uint64
}

// TransferEvent is the single authoritative economic transfer extracted
// from a located transaction: either the native value or the first
// matching token Transfer log. Native transfers take precedence.
type TransferEvent struct {
	IsNative      bool
	TokenContract string // empty for native transfers
	Recipient     string
	RawAmount     *big.Int
	Decimals      uint8
	Symbol        string
}

// Amount returns the human-unit amount, shifting RawAmount by Decimals.
func (t *TransferEvent) Amount() decimal.Decimal {
	if t.RawAmount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(t.RawAmount, 0).Shift(-int32(t.Decimals))
}

// PriceQuote is a cached unit price in the reference currency (USD).
type PriceQuote struct {
	AssetKey  string
	PriceUSD  decimal.Decimal
	FetchedAt time.Time
	TTL       time.Duration

	// Degraded marks a quote served from the static fallback table after
	// the price index could not be reached.
	Degraded bool
}

// Expired reports whether the quote is past its TTL relative to now.
// An expired quote must never be served from cache.
func (q PriceQuote) Expired(now time.Time) bool {
	return now.Sub(q.FetchedAt) > q.TTL
}

// PaymentResolution is the public verdict for one transaction hash.
// The caller owns persistence and idempotent crediting; the engine holds
// no state about it beyond the call.
type PaymentResolution struct {
	// OK reports whether a qualifying payment to the receiving wallet
	// was verified.
	OK bool `json:"ok"`

	// Kind is a stable machine-readable outcome class (see reasons.go),
	// "ok" on success. Callers branch on Kind, never on Reason text.
	Kind string `json:"kind,omitempty"`

	// Reason is a human-readable explanation of the verdict.
	Reason string `json:"reason"`

	// ReferenceAmount is the verified payment value in USD. Only
	// meaningful when OK is true.
	ReferenceAmount float64 `json:"referenceAmount,omitempty"`

	ChainID       string `json:"chainId,omitempty"`
	TokenSymbol   string `json:"tokenSymbol,omitempty"`
	Confirmations uint64 `json:"confirmations"`

	// Details is an open map for downstream audit and logging: chain
	// name, raw amount, price used, degraded flag and similar. Consumers
	// must not assume a fixed schema beyond the documented fields.
	Details map[string]any `json:"details,omitempty"`
}
