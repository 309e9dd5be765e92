// Package evmpay resolves cryptocurrency payments across EVM chains: given
// a transaction hash it finds the chain, verifies the payment reached the
// configured wallet, converts the amount to USD, and maps it to a
// subscription plan.
package evmpay

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/paywatch/evmpay/circuit"
	"github.com/paywatch/evmpay/clients"
	"github.com/paywatch/evmpay/logger"
	"github.com/paywatch/evmpay/metrics"
	"github.com/paywatch/evmpay/plans"
	"github.com/paywatch/evmpay/pricing"
	"github.com/paywatch/evmpay/ratelimit"
	"github.com/paywatch/evmpay/registry"
	"github.com/paywatch/evmpay/resolver"
	"github.com/paywatch/evmpay/types"

	"github.com/ethereum/go-ethereum/common"
)

// Version of the library.
const Version = "1.0.0"

// EvmPay is the engine facade. Build one with New and share it; all
// methods are safe for concurrent use.
type EvmPay struct {
	cfg      *Config
	registry *registry.Registry
	clients  map[string]clients.ChainClient
	resolver *resolver.Resolver
	oracle   *pricing.Oracle
	breakers *circuit.Manager
	plans    *plans.Table

	log        logger.Logger
	metrics    metrics.Recorder
	timeout    time.Duration
	httpClient *http.Client
	clock      func() time.Time
}

// New wires the engine from cfg. Options override the ambient pieces
// (logger, metrics, timeouts); everything else comes from cfg or defaults.
func New(cfg *Config, opts ...Option) (*EvmPay, error) {
	if cfg == nil || cfg.WalletAddress == "" {
		return nil, fmt.Errorf("config with a wallet address is required")
	}
	if !common.IsHexAddress(cfg.WalletAddress) {
		return nil, fmt.Errorf("invalid wallet address %q", cfg.WalletAddress)
	}

	e := &EvmPay{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.NewZapLogger(cfg.LogLevel)
	}
	if e.metrics == nil {
		e.metrics = metrics.NoopRecorder{}
	}
	if e.timeout <= 0 {
		e.timeout = resolver.DefaultTimeout
	}

	chainList := cfg.Chains
	if len(chainList) == 0 {
		minConf := cfg.MinConfirmations
		if minConf == 0 {
			minConf = 1
		}
		chainList = registry.DefaultChains(minConf)
	}
	reg, err := registry.New(chainList)
	if err != nil {
		return nil, err
	}
	e.registry = reg

	e.clients = make(map[string]clients.ChainClient, reg.Len())
	for _, chain := range reg.Chains() {
		client, err := dialChain(chain)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.clients[chain.ID] = client
	}

	e.breakers = circuit.NewManager()
	priceBreaker := e.breakers.Get("price-index", circuit.PriceFailureThreshold, circuit.PriceRecoveryTimeout)

	source := pricing.NewHTTPSource(cfg.PriceAPIURL, cfg.PriceAPIKey, e.httpClient)
	e.oracle = pricing.NewOracle(source, ratelimit.NewPriceIndex(), priceBreaker, e.log)
	for contract, assetID := range cfg.PeggedAssets {
		e.oracle.AddPegged(contract, assetID)
	}
	if e.clock != nil {
		e.oracle.SetClock(e.clock)
	}

	e.plans = cfg.PlanTiers
	if e.plans == nil {
		e.plans = plans.DefaultTable()
	}

	e.resolver = resolver.New(resolver.Config{
		Wallet:   common.HexToAddress(cfg.WalletAddress),
		Chains:   reg.Chains(),
		Clients:  e.clients,
		Oracle:   e.oracle,
		Limiter:  ratelimit.NewRPC(),
		Breakers: e.breakers,
		Logger:   e.log,
		Metrics:  e.metrics,
		Timeout:  e.timeout,
	})

	e.log.Info("payment engine ready", map[string]any{
		"chains": reg.Len(),
		"wallet": cfg.WalletAddress,
	})
	return e, nil
}

// dialChain builds the RPC client for one chain, parsing its hex id.
func dialChain(chain types.ChainConfig) (clients.ChainClient, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(chain.ID, "0x"), 16, 64)
	if err != nil {
		return nil, fmt.Errorf("chain %s has invalid id %q: %w", chain.Name, chain.ID, err)
	}
	client, err := clients.NewEVMClient(new(big.Int).SetUint64(id), chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain %s: %w", chain.Name, err)
	}
	return client, nil
}

// ResolvePayment resolves a transaction hash into a payment outcome. It
// never returns an error: every failure mode is a resolution with OK=false
// and a stable Kind, and a panic anywhere downstream is converted to an
// upstream_protocol_error outcome.
func (e *EvmPay) ResolvePayment(ctx context.Context, txHash string) (res *types.PaymentResolution) {
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Error("panic during payment resolution", map[string]any{
				"hash":  txHash,
				"panic": fmt.Sprint(rec),
			})
			res = &types.PaymentResolution{
				OK:      false,
				Kind:    types.KindUpstreamProtocolError,
				Reason:  "Internal error during resolution.",
				Details: map[string]any{},
			}
		}
	}()
	return e.resolver.Resolve(ctx, txHash)
}

// SelectPlan maps a confirmed USD amount to a plan duration in days,
// 0 when the amount buys nothing.
func (e *EvmPay) SelectPlan(amountUSD float64) int {
	return e.plans.Select(amountUSD)
}

// ResolveAndCredit resolves the hash and, when the payment is good and
// buys a plan, credits it through crediter. The resolution is returned
// either way; days is 0 unless a plan was credited.
func (e *EvmPay) ResolveAndCredit(ctx context.Context, txHash, identity string, crediter plans.Crediter) (*types.PaymentResolution, int, error) {
	res := e.ResolvePayment(ctx, txHash)
	if !res.OK {
		return res, 0, nil
	}

	days := e.plans.Select(res.ReferenceAmount)
	if days == 0 {
		return res, 0, nil
	}
	if err := crediter.CreditPlan(ctx, identity, days); err != nil {
		return res, 0, fmt.Errorf("credit %d days to %s: %w", days, identity, err)
	}

	e.log.Info("plan credited", map[string]any{
		"identity": identity,
		"days":     days,
		"paid_usd": res.ReferenceAmount,
	})
	return res, days, nil
}

// Chains returns the configured chains in scan order.
func (e *EvmPay) Chains() []types.ChainConfig {
	return e.registry.Chains()
}

// BreakerStats reports the state of every circuit breaker, for health
// endpoints.
func (e *EvmPay) BreakerStats() []circuit.Stats {
	return e.breakers.Stats()
}

// Close releases all RPC connections.
func (e *EvmPay) Close() {
	for _, client := range e.clients {
		client.Close()
	}
}
