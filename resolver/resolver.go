// Package resolver implements the payment resolution pipeline: locate a
// transaction across the configured chains, verify it pays the receiving
// wallet, extract the transferred amount, and convert it to USD.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/paywatch/evmpay/circuit"
	"github.com/paywatch/evmpay/clients"
	"github.com/paywatch/evmpay/logger"
	"github.com/paywatch/evmpay/metrics"
	"github.com/paywatch/evmpay/pricing"
	"github.com/paywatch/evmpay/ratelimit"
	"github.com/paywatch/evmpay/types"
	"github.com/paywatch/evmpay/utils"
)

// Quoter is the slice of the price oracle the resolver needs.
type Quoter interface {
	Quote(ctx context.Context, key pricing.AssetKey) (types.PriceQuote, error)
}

// nativeDecimals is the wei scale shared by every EVM chain.
const nativeDecimals uint8 = 18

// Default timeouts. The aggregate bound covers the whole scan; the RPC
// bound covers a single endpoint call so one dead node cannot eat the
// whole budget.
const (
	DefaultTimeout    = 45 * time.Second
	DefaultRPCTimeout = 8 * time.Second
)

// Resolver resolves transaction hashes into payment outcomes. Build it
// once and share it; all methods are safe for concurrent use.
type Resolver struct {
	wallet   common.Address
	chains   []types.ChainConfig
	clients  map[string]clients.ChainClient
	oracle   Quoter
	limiter  *ratelimit.Limiter
	breakers *circuit.Manager
	log      logger.Logger
	metrics  metrics.Recorder

	timeout    time.Duration
	rpcTimeout time.Duration
}

// Config carries the resolver's collaborators. Zero-value timeouts get
// the package defaults; nil Logger/Metrics get no-ops.
type Config struct {
	Wallet     common.Address
	Chains     []types.ChainConfig
	Clients    map[string]clients.ChainClient
	Oracle     Quoter
	Limiter    *ratelimit.Limiter
	Breakers   *circuit.Manager
	Logger     logger.Logger
	Metrics    metrics.Recorder
	Timeout    time.Duration
	RPCTimeout time.Duration
}

// New builds a Resolver from cfg.
func New(cfg Config) *Resolver {
	r := &Resolver{
		wallet:     cfg.Wallet,
		chains:     cfg.Chains,
		clients:    cfg.Clients,
		oracle:     cfg.Oracle,
		limiter:    cfg.Limiter,
		breakers:   cfg.Breakers,
		log:        cfg.Logger,
		metrics:    cfg.Metrics,
		timeout:    cfg.Timeout,
		rpcTimeout: cfg.RPCTimeout,
	}
	if r.log == nil {
		r.log = logger.NoopLogger{}
	}
	if r.metrics == nil {
		r.metrics = metrics.NoopRecorder{}
	}
	if r.limiter == nil {
		r.limiter = ratelimit.NewRPC()
	}
	if r.breakers == nil {
		r.breakers = circuit.NewManager()
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.rpcTimeout <= 0 {
		r.rpcTimeout = DefaultRPCTimeout
	}
	return r
}

// Resolve runs the full pipeline for rawHash. It always returns a
// resolution; failures are expressed through OK=false and Kind, never as
// an error the caller must interpret.
func (r *Resolver) Resolve(ctx context.Context, rawHash string) *types.PaymentResolution {
	started := time.Now()

	hash, err := utils.NormalizeTxHash(rawHash)
	if err != nil {
		return r.done(started, "", failure(types.KindNotFound, "Invalid transaction hash.", nil))
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	chain, client, tx, skip := r.locate(ctx, common.HexToHash(hash))
	if tx == nil {
		if ctx.Err() != nil {
			return r.done(started, "", failure(types.KindTimeout, "Resolution timed out while scanning chains.", nil))
		}
		return r.done(started, "", r.notFoundResolution(skip))
	}

	res := r.extract(ctx, chain, client, tx)
	return r.done(started, chain.ID, res)
}

// skipTally records why chains were passed over during location, so a
// fully skipped scan can be reported as pressure rather than absence.
type skipTally struct {
	rateLimited int
	circuitOpen int
	rpcErrors   int
	probed      int
}

// locate scans chains in registry order and returns the first one that
// knows the hash. A node answering "not found" is healthy; only transport
// and server errors count against its breaker.
func (r *Resolver) locate(ctx context.Context, hash common.Hash) (types.ChainConfig, clients.ChainClient, *clients.TxInfo, skipTally) {
	var tally skipTally

	for _, chain := range r.chains {
		if ctx.Err() != nil {
			break
		}
		client, ok := r.clients[chain.ID]
		if !ok {
			continue
		}

		key := "rpc:" + chain.ID
		if err := r.limiter.Acquire(ctx, key); err != nil {
			if errors.Is(err, ratelimit.ErrLimited) {
				tally.rateLimited++
				r.log.Warn("rate limit reached, skipping chain", map[string]any{
					"chain": chain.Name,
					"wait":  r.limiter.WaitTime(key).String(),
				})
				continue
			}
			break // context cancelled while queued
		}

		var tx *clients.TxInfo
		breaker := r.breakers.Get(key, circuit.RPCFailureThreshold, circuit.RPCRecoveryTimeout)
		err := breaker.Do(ctx, func() error {
			rpcCtx, cancel := context.WithTimeout(ctx, r.rpcTimeout)
			defer cancel()

			t, err := client.TransactionByHash(rpcCtx, hash)
			if errors.Is(err, ethereum.NotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			tx = t
			return nil
		})
		r.limiter.Release(key)

		switch {
		case err == nil && tx != nil:
			tally.probed++
			r.log.Info("transaction located", map[string]any{
				"chain": chain.Name,
				"hash":  hash.Hex(),
			})
			return chain, client, tx, tally
		case err == nil:
			tally.probed++
		case errors.Is(err, circuit.ErrOpen):
			tally.circuitOpen++
			r.log.Warn("circuit open, skipping chain", map[string]any{"chain": chain.Name})
		default:
			tally.rpcErrors++
			r.log.Warn("chain probe failed", map[string]any{
				"chain": chain.Name,
				"error": err.Error(),
			})
		}
	}
	return types.ChainConfig{}, nil, nil, tally
}

// notFoundResolution distinguishes "no chain has this hash" from "we
// could not ask anyone".
func (r *Resolver) notFoundResolution(tally skipTally) *types.PaymentResolution {
	if tally.probed == 0 && tally.circuitOpen > 0 {
		return failure(types.KindCircuitOpen, "All chain endpoints are temporarily unavailable.", nil)
	}
	if tally.probed == 0 && tally.rateLimited > 0 {
		return failure(types.KindRateLimited, "Chain lookups are rate limited, try again shortly.", nil)
	}
	return failure(types.KindNotFound, "Transaction not found on any configured chain.", nil)
}

// extract verifies the located transaction and converts the transferred
// amount to USD. Confirmation depth gates everything else: a pending or
// shallow transaction is retriable, so no later check may mask that.
func (r *Resolver) extract(ctx context.Context, chain types.ChainConfig, client clients.ChainClient, tx *clients.TxInfo) *types.PaymentResolution {
	receipt := r.receiptFor(ctx, client, tx.Hash)
	confirmations := r.confirmations(ctx, client, receipt)

	details := map[string]any{
		"chain_id":      chain.ID,
		"chain_name":    chain.Name,
		"hash":          tx.Hash.Hex(),
		"from":          tx.From.Hex(),
		"confirmations": confirmations,
	}

	// Depth gates everything else; a missing receipt reads as depth 0. A
	// zero minConfirmations chain may resolve from transaction-level data
	// alone.
	if confirmations < chain.MinConfirmations {
		res := failure(types.KindAwaitingConfirmations,
			fmt.Sprintf("Awaiting confirmations: %d/%d", confirmations, chain.MinConfirmations), details)
		res.ChainID = chain.ID
		res.Confirmations = confirmations
		return res
	}
	if receipt != nil && receipt.Status == 0 {
		res := failure(types.KindReverted, "Transaction reverted.", details)
		res.ChainID = chain.ID
		res.Confirmations = confirmations
		return res
	}

	event := r.matchTransfer(ctx, chain, client, tx, receipt)
	if event == nil {
		res := failure(types.KindNoMatchingTransfer, "No transfer to the receiving wallet.", details)
		res.ChainID = chain.ID
		res.Confirmations = confirmations
		return res
	}

	key := pricing.AssetKey{NativeID: chain.PriceNativeID}
	if !event.IsNative {
		key = pricing.AssetKey{
			NativeID: chain.PriceNativeID,
			Platform: chain.PricePlatformID,
			Contract: event.TokenContract,
		}
		details["token_address"] = event.TokenContract
	}
	details["type"] = transferType(event)
	details["token_symbol"] = event.Symbol
	details["amount_human"] = event.Amount().String()
	details["amount_raw"] = event.RawAmount.String()

	quote, err := r.oracle.Quote(ctx, key)
	if err != nil {
		r.log.Error("price lookup failed", map[string]any{
			"asset": key.String(),
			"error": err.Error(),
		})
		res := failure(types.KindPriceUnavailable,
			fmt.Sprintf("USD price unavailable (%s).", transferType(event)), details)
		res.ChainID = chain.ID
		res.TokenSymbol = event.Symbol
		res.Confirmations = confirmations
		return res
	}

	paid := event.Amount().Mul(quote.PriceUSD)
	paidUSD, _ := paid.Round(6).Float64()

	details["price_usd"] = quote.PriceUSD.String()
	details["paid_usd"] = paid.Round(6).String()
	details["degraded"] = quote.Degraded

	reason := fmt.Sprintf("%s native OK on %s: $%.2f", event.Symbol, chain.Name, paidUSD)
	if !event.IsNative {
		reason = fmt.Sprintf("Token %s OK on %s: $%.2f", event.Symbol, chain.Name, paidUSD)
	}

	return &types.PaymentResolution{
		OK:              true,
		Kind:            types.KindOK,
		Reason:          reason,
		ReferenceAmount: paidUSD,
		ChainID:         chain.ID,
		TokenSymbol:     event.Symbol,
		Confirmations:   confirmations,
		Details:         details,
	}
}

// receiptFor fetches the receipt, treating "not found" as still pending.
func (r *Resolver) receiptFor(ctx context.Context, client clients.ChainClient, hash common.Hash) *clients.ReceiptInfo {
	rpcCtx, cancel := context.WithTimeout(ctx, r.rpcTimeout)
	defer cancel()

	receipt, err := client.TransactionReceipt(rpcCtx, hash)
	if err != nil {
		if !errors.Is(err, ethereum.NotFound) {
			r.log.Warn("receipt lookup failed", map[string]any{"error": err.Error()})
		}
		return nil
	}
	return receipt
}

// confirmations computes latest − txBlock + 1, or 0 when either side is
// unknown. Unknown depth must read as "not confirmed", never as an error.
func (r *Resolver) confirmations(ctx context.Context, client clients.ChainClient, receipt *clients.ReceiptInfo) uint64 {
	if receipt == nil || receipt.BlockNumber == 0 {
		return 0
	}

	rpcCtx, cancel := context.WithTimeout(ctx, r.rpcTimeout)
	defer cancel()

	latest, err := client.BlockNumber(rpcCtx)
	if err != nil || latest < receipt.BlockNumber {
		return 0
	}
	return latest - receipt.BlockNumber + 1
}

// matchTransfer finds the payment to the wallet: a direct native transfer
// first, otherwise the first ERC-20 Transfer log crediting the wallet. Any
// transaction addressed to the wallet is a native payment, even a zero-value
// one; the amount decides the plan downstream, not the match.
func (r *Resolver) matchTransfer(ctx context.Context, chain types.ChainConfig, client clients.ChainClient, tx *clients.TxInfo, receipt *clients.ReceiptInfo) *types.TransferEvent {
	if tx.To != nil && *tx.To == r.wallet {
		value := tx.Value
		if value == nil {
			value = new(big.Int)
		}
		return &types.TransferEvent{
			IsNative:  true,
			Recipient: r.wallet.Hex(),
			RawAmount: value,
			Decimals:  nativeDecimals,
			Symbol:    chain.NativeSymbol,
		}
	}

	if receipt == nil {
		return nil
	}
	for _, lg := range receipt.Logs {
		if len(lg.Topics) < 3 || lg.Topics[0] != clients.TransferTopic {
			continue
		}
		// topics[2] is the 32-byte padded recipient address.
		if common.BytesToAddress(lg.Topics[2].Bytes()) != r.wallet {
			continue
		}

		rpcCtx, cancel := context.WithTimeout(ctx, r.rpcTimeout)
		decimals := client.TokenDecimals(rpcCtx, lg.Address)
		symbol := client.TokenSymbol(rpcCtx, lg.Address)
		cancel()

		return &types.TransferEvent{
			TokenContract: utils.NormalizeAddress(lg.Address.Hex()),
			Recipient:     r.wallet.Hex(),
			RawAmount:     clients.DecodeLogAmount(lg.Data),
			Decimals:      decimals,
			Symbol:        symbol,
		}
	}
	return nil
}

func (r *Resolver) done(started time.Time, chainID string, res *types.PaymentResolution) *types.PaymentResolution {
	r.metrics.IncCounter("resolutions_total", map[string]string{
		"chain": chainID,
		"kind":  res.Kind,
	})
	r.metrics.ObserveLatency("resolve_duration", time.Since(started), nil)
	return res
}

func transferType(event *types.TransferEvent) string {
	if event.IsNative {
		return "native"
	}
	return "token"
}

func failure(kind, reason string, details map[string]any) *types.PaymentResolution {
	if details == nil {
		details = map[string]any{}
	}
	return &types.PaymentResolution{
		OK:      false,
		Kind:    kind,
		Reason:  reason,
		Details: details,
	}
}
