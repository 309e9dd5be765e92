package resolver

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paywatch/evmpay/clients"
	"github.com/paywatch/evmpay/plans"
	"github.com/paywatch/evmpay/pricing"
	"github.com/paywatch/evmpay/types"
)

var (
	wallet   = common.HexToAddress("0x00000000000000000000000000000000000000AA")
	sender   = common.HexToAddress("0x00000000000000000000000000000000000000BB")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000CC")
	usdt     = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")

	testHash = "0x" + "ab" + "cd" + "ef" + "0123456789abcdef0123456789abcdef0123456789abcdef0123456789"
)

// fakeClient is a scripted ChainClient.
type fakeClient struct {
	tx         *clients.TxInfo
	txErr      error
	receipt    *clients.ReceiptInfo
	receiptErr error
	latest     uint64
	decimals   uint8
	symbol     string

	txCalls int32
}

func (f *fakeClient) TransactionByHash(context.Context, common.Hash) (*clients.TxInfo, error) {
	atomic.AddInt32(&f.txCalls, 1)
	if f.txErr != nil {
		return nil, f.txErr
	}
	return f.tx, nil
}

func (f *fakeClient) TransactionReceipt(context.Context, common.Hash) (*clients.ReceiptInfo, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	return f.receipt, nil
}

func (f *fakeClient) BlockNumber(context.Context) (uint64, error) { return f.latest, nil }

func (f *fakeClient) TokenDecimals(context.Context, common.Address) uint8 {
	if f.decimals == 0 {
		return clients.DefaultTokenDecimals
	}
	return f.decimals
}

func (f *fakeClient) TokenSymbol(context.Context, common.Address) string {
	if f.symbol == "" {
		return clients.DefaultTokenSymbol
	}
	return f.symbol
}

func (f *fakeClient) Close() {}

// fakeQuoter serves fixed prices by asset key.
type fakeQuoter struct {
	quotes map[string]types.PriceQuote
	err    error
}

func (q *fakeQuoter) Quote(_ context.Context, key pricing.AssetKey) (types.PriceQuote, error) {
	if q.err != nil {
		return types.PriceQuote{}, q.err
	}
	quote, ok := q.quotes[key.String()]
	if !ok {
		return types.PriceQuote{}, pricing.ErrNoPrice
	}
	return quote, nil
}

func twoChains() []types.ChainConfig {
	return []types.ChainConfig{
		{ID: "0x1", Name: "Ethereum", RPCURL: "https://rpc.example/eth", NativeSymbol: "ETH",
			PriceNativeID: "ethereum", PricePlatformID: "ethereum", MinConfirmations: 1},
		{ID: "0x38", Name: "BNB Smart Chain", RPCURL: "https://rpc.example/bsc", NativeSymbol: "BNB",
			PriceNativeID: "binancecoin", PricePlatformID: "binance-smart-chain", MinConfirmations: 1},
	}
}

func padAddr(a common.Address) common.Hash { return common.BytesToHash(a.Bytes()) }

func abiAmount(v *big.Int) []byte {
	out := make([]byte, 32)
	v.FillBytes(out)
	return out
}

func nativeQuote(id string, usd int64) (string, types.PriceQuote) {
	key := pricing.AssetKey{NativeID: id}
	return key.String(), types.PriceQuote{AssetKey: key.String(), PriceUSD: decimal.NewFromInt(usd)}
}

func newResolver(t *testing.T, cl map[string]clients.ChainClient, oracle Quoter) *Resolver {
	t.Helper()
	return New(Config{
		Wallet:  wallet,
		Chains:  twoChains(),
		Clients: cl,
		Oracle:  oracle,
	})
}

func TestResolve_TokenTransfer(t *testing.T) {
	// 40 USDT (6 decimals) to the wallet on Ethereum.
	eth := &fakeClient{
		tx: &clients.TxInfo{
			Hash:  common.HexToHash(testHash),
			To:    &usdt,
			From:  sender,
			Value: big.NewInt(0),
		},
		receipt: &clients.ReceiptInfo{
			Status:      1,
			BlockNumber: 100,
			Logs: []clients.Log{
				{ // unrelated transfer first; must be skipped
					Address: usdt,
					Topics:  []common.Hash{clients.TransferTopic, padAddr(sender), padAddr(stranger)},
					Data:    abiAmount(big.NewInt(7_000_000)),
				},
				{
					Address: usdt,
					Topics:  []common.Hash{clients.TransferTopic, padAddr(sender), padAddr(wallet)},
					Data:    abiAmount(big.NewInt(40_000_000)),
				},
			},
		},
		latest:   105,
		decimals: 6,
		symbol:   "USDT",
	}

	tokenKey := pricing.AssetKey{NativeID: "ethereum", Platform: "ethereum", Contract: usdt.Hex()}
	oracle := &fakeQuoter{quotes: map[string]types.PriceQuote{
		tokenKey.String(): {PriceUSD: decimal.NewFromInt(1)},
	}}

	r := newResolver(t, map[string]clients.ChainClient{"0x1": eth}, oracle)
	res := r.Resolve(context.Background(), testHash)

	require.True(t, res.OK, res.Reason)
	assert.Equal(t, types.KindOK, res.Kind)
	assert.InDelta(t, 40.0, res.ReferenceAmount, 1e-9)
	assert.Equal(t, "0x1", res.ChainID)
	assert.Equal(t, "USDT", res.TokenSymbol)
	assert.Equal(t, uint64(6), res.Confirmations)
	assert.Equal(t, "token", res.Details["type"])
	assert.Equal(t, "40", res.Details["amount_human"])
	assert.Contains(t, res.Reason, "Token USDT OK on Ethereum")
}

func TestResolve_NativeTransfer_FirstChainWins(t *testing.T) {
	value, _ := new(big.Int).SetString("500000000000000000", 10) // 0.5 ETH
	eth := &fakeClient{
		tx: &clients.TxInfo{
			Hash:  common.HexToHash(testHash),
			To:    &wallet,
			From:  sender,
			Value: value,
		},
		receipt: &clients.ReceiptInfo{Status: 1, BlockNumber: 50},
		latest:  52,
	}
	bsc := &fakeClient{txErr: ethereum.NotFound}

	ethKey, ethQuote := nativeQuote("ethereum", 2000)
	oracle := &fakeQuoter{quotes: map[string]types.PriceQuote{ethKey: ethQuote}}

	r := newResolver(t, map[string]clients.ChainClient{"0x1": eth, "0x38": bsc}, oracle)
	res := r.Resolve(context.Background(), testHash)

	require.True(t, res.OK, res.Reason)
	assert.InDelta(t, 1000.0, res.ReferenceAmount, 1e-9)
	assert.Equal(t, "ETH", res.TokenSymbol)
	assert.Contains(t, res.Reason, "ETH native OK on Ethereum")

	// The scan stops at the first chain that knows the hash.
	assert.Equal(t, int32(0), atomic.LoadInt32(&bsc.txCalls))
}

func TestResolve_SecondChainLocated(t *testing.T) {
	value, _ := new(big.Int).SetString("1000000000000000000", 10) // 1 BNB
	eth := &fakeClient{txErr: ethereum.NotFound}
	bsc := &fakeClient{
		tx: &clients.TxInfo{
			Hash:  common.HexToHash(testHash),
			To:    &wallet,
			From:  sender,
			Value: value,
		},
		receipt: &clients.ReceiptInfo{Status: 1, BlockNumber: 9_000},
		latest:  9_010,
	}

	bnbKey, bnbQuote := nativeQuote("binancecoin", 600)
	oracle := &fakeQuoter{quotes: map[string]types.PriceQuote{bnbKey: bnbQuote}}

	r := newResolver(t, map[string]clients.ChainClient{"0x1": eth, "0x38": bsc}, oracle)
	res := r.Resolve(context.Background(), testHash)

	require.True(t, res.OK, res.Reason)
	assert.Equal(t, "0x38", res.ChainID)
	assert.InDelta(t, 600.0, res.ReferenceAmount, 1e-9)
	assert.Equal(t, int32(1), atomic.LoadInt32(&eth.txCalls), "Ethereum is probed first")
}

func TestResolve_FailedVerificationNeverFallsThrough(t *testing.T) {
	// The hash exists on Ethereum but the payment is reverted there. The
	// first chain that knows the hash is authoritative, so BSC must never
	// be probed even though verification failed.
	eth := &fakeClient{
		tx:      &clients.TxInfo{Hash: common.HexToHash(testHash), To: &wallet, From: sender, Value: big.NewInt(1)},
		receipt: &clients.ReceiptInfo{Status: 0, BlockNumber: 100},
		latest:  110,
	}
	bsc := &fakeClient{txErr: ethereum.NotFound}

	r := newResolver(t, map[string]clients.ChainClient{"0x1": eth, "0x38": bsc}, &fakeQuoter{})
	res := r.Resolve(context.Background(), testHash)

	require.False(t, res.OK)
	assert.Equal(t, types.KindReverted, res.Kind)
	assert.Equal(t, int32(0), atomic.LoadInt32(&bsc.txCalls))
}

func TestResolve_NativeAmountBuysTopPlan(t *testing.T) {
	// 0.02 ETH at $2000 is exactly $40.00, enough for the longest plan.
	value, _ := new(big.Int).SetString("20000000000000000", 10)
	eth := &fakeClient{
		tx:      &clients.TxInfo{Hash: common.HexToHash(testHash), To: &wallet, From: sender, Value: value},
		receipt: &clients.ReceiptInfo{Status: 1, BlockNumber: 100},
		latest:  110,
	}

	ethKey, ethQuote := nativeQuote("ethereum", 2000)
	oracle := &fakeQuoter{quotes: map[string]types.PriceQuote{ethKey: ethQuote}}

	r := newResolver(t, map[string]clients.ChainClient{"0x1": eth}, oracle)
	res := r.Resolve(context.Background(), testHash)

	require.True(t, res.OK, res.Reason)
	assert.InDelta(t, 40.0, res.ReferenceAmount, 1e-9)
	assert.Equal(t, 365, plans.DefaultTable().Select(res.ReferenceAmount))
}

func TestResolve_ZeroValueToWalletIsStillNative(t *testing.T) {
	// Being addressed to the wallet is what makes a payment native; a
	// zero-value transfer resolves with amount 0 and simply buys no plan.
	eth := &fakeClient{
		tx:      &clients.TxInfo{Hash: common.HexToHash(testHash), To: &wallet, From: sender, Value: big.NewInt(0)},
		receipt: &clients.ReceiptInfo{Status: 1, BlockNumber: 100},
		latest:  110,
	}

	ethKey, ethQuote := nativeQuote("ethereum", 2000)
	oracle := &fakeQuoter{quotes: map[string]types.PriceQuote{ethKey: ethQuote}}

	r := newResolver(t, map[string]clients.ChainClient{"0x1": eth}, oracle)
	res := r.Resolve(context.Background(), testHash)

	require.True(t, res.OK, res.Reason)
	assert.NotEqual(t, types.KindNoMatchingTransfer, res.Kind)
	assert.Equal(t, "native", res.Details["type"])
	assert.Zero(t, res.ReferenceAmount)
	assert.Zero(t, plans.DefaultTable().Select(res.ReferenceAmount))
}

func TestResolve_NotFoundAnywhere(t *testing.T) {
	eth := &fakeClient{txErr: ethereum.NotFound}
	bsc := &fakeClient{txErr: ethereum.NotFound}

	r := newResolver(t, map[string]clients.ChainClient{"0x1": eth, "0x38": bsc}, &fakeQuoter{})
	res := r.Resolve(context.Background(), testHash)

	require.False(t, res.OK)
	assert.Equal(t, types.KindNotFound, res.Kind)
	assert.Equal(t, "Transaction not found on any configured chain.", res.Reason)
}

func TestResolve_InvalidHash(t *testing.T) {
	r := newResolver(t, map[string]clients.ChainClient{}, &fakeQuoter{})
	res := r.Resolve(context.Background(), "0xnothex")

	require.False(t, res.OK)
	assert.Equal(t, types.KindNotFound, res.Kind)
	assert.Equal(t, "Invalid transaction hash.", res.Reason)
}

func TestResolve_AwaitingConfirmations_Pending(t *testing.T) {
	eth := &fakeClient{
		tx: &clients.TxInfo{
			Hash:    common.HexToHash(testHash),
			To:      &wallet,
			From:    sender,
			Value:   big.NewInt(1),
			Pending: true,
		},
		receiptErr: ethereum.NotFound,
	}

	r := newResolver(t, map[string]clients.ChainClient{"0x1": eth}, &fakeQuoter{})
	res := r.Resolve(context.Background(), testHash)

	require.False(t, res.OK)
	assert.Equal(t, types.KindAwaitingConfirmations, res.Kind)
	assert.Equal(t, "Awaiting confirmations: 0/1", res.Reason)
	assert.Equal(t, "0x1", res.ChainID)
}

func TestResolve_AwaitingConfirmations_Shallow(t *testing.T) {
	chains := twoChains()
	chains[0].MinConfirmations = 12

	value := big.NewInt(1)
	eth := &fakeClient{
		tx:      &clients.TxInfo{Hash: common.HexToHash(testHash), To: &wallet, From: sender, Value: value},
		receipt: &clients.ReceiptInfo{Status: 1, BlockNumber: 100},
		latest:  104, // 5 confirmations
	}

	r := New(Config{
		Wallet:  wallet,
		Chains:  chains,
		Clients: map[string]clients.ChainClient{"0x1": eth},
		Oracle:  &fakeQuoter{},
	})
	res := r.Resolve(context.Background(), testHash)

	require.False(t, res.OK)
	assert.Equal(t, types.KindAwaitingConfirmations, res.Kind)
	assert.Equal(t, "Awaiting confirmations: 5/12", res.Reason)
	assert.Equal(t, uint64(5), res.Confirmations)
}

func TestResolve_ZeroMinConf_NativeWithoutReceipt(t *testing.T) {
	// With no confirmation requirement, a native match resolves from
	// transaction-level data even before the receipt exists.
	chains := twoChains()
	chains[0].MinConfirmations = 0

	value, _ := new(big.Int).SetString("1000000000000000000", 10)
	eth := &fakeClient{
		tx:         &clients.TxInfo{Hash: common.HexToHash(testHash), To: &wallet, From: sender, Value: value, Pending: true},
		receiptErr: ethereum.NotFound,
	}

	ethKey, ethQuote := nativeQuote("ethereum", 2000)
	r := New(Config{
		Wallet:  wallet,
		Chains:  chains,
		Clients: map[string]clients.ChainClient{"0x1": eth},
		Oracle:  &fakeQuoter{quotes: map[string]types.PriceQuote{ethKey: ethQuote}},
	})
	res := r.Resolve(context.Background(), testHash)

	require.True(t, res.OK, res.Reason)
	assert.InDelta(t, 2000.0, res.ReferenceAmount, 1e-9)
	assert.Equal(t, uint64(0), res.Confirmations)
}

func TestResolve_ConfirmationGateBeforeRevertCheck(t *testing.T) {
	// A pending reverted-looking tx must read as awaiting, not reverted.
	eth := &fakeClient{
		tx:      &clients.TxInfo{Hash: common.HexToHash(testHash), To: &wallet, From: sender, Value: big.NewInt(1)},
		receipt: &clients.ReceiptInfo{Status: 0, BlockNumber: 0},
		latest:  100,
	}

	r := newResolver(t, map[string]clients.ChainClient{"0x1": eth}, &fakeQuoter{})
	res := r.Resolve(context.Background(), testHash)

	assert.Equal(t, types.KindAwaitingConfirmations, res.Kind)
}

func TestResolve_Reverted(t *testing.T) {
	eth := &fakeClient{
		tx:      &clients.TxInfo{Hash: common.HexToHash(testHash), To: &wallet, From: sender, Value: big.NewInt(1)},
		receipt: &clients.ReceiptInfo{Status: 0, BlockNumber: 100},
		latest:  110,
	}

	r := newResolver(t, map[string]clients.ChainClient{"0x1": eth}, &fakeQuoter{})
	res := r.Resolve(context.Background(), testHash)

	require.False(t, res.OK)
	assert.Equal(t, types.KindReverted, res.Kind)
	assert.Equal(t, "Transaction reverted.", res.Reason)
}

func TestResolve_NoMatchingTransfer(t *testing.T) {
	// Confirmed tx paying someone else, no logs crediting the wallet.
	eth := &fakeClient{
		tx: &clients.TxInfo{Hash: common.HexToHash(testHash), To: &stranger, From: sender, Value: big.NewInt(5)},
		receipt: &clients.ReceiptInfo{
			Status:      1,
			BlockNumber: 100,
			Logs: []clients.Log{{
				Address: usdt,
				Topics:  []common.Hash{clients.TransferTopic, padAddr(sender), padAddr(stranger)},
				Data:    abiAmount(big.NewInt(1_000_000)),
			}},
		},
		latest: 110,
	}

	r := newResolver(t, map[string]clients.ChainClient{"0x1": eth}, &fakeQuoter{})
	res := r.Resolve(context.Background(), testHash)

	require.False(t, res.OK)
	assert.Equal(t, types.KindNoMatchingTransfer, res.Kind)
	assert.Equal(t, "No transfer to the receiving wallet.", res.Reason)
}

func TestResolve_PriceUnavailable(t *testing.T) {
	eth := &fakeClient{
		tx:      &clients.TxInfo{Hash: common.HexToHash(testHash), To: &wallet, From: sender, Value: big.NewInt(1)},
		receipt: &clients.ReceiptInfo{Status: 1, BlockNumber: 100},
		latest:  110,
	}

	r := newResolver(t, map[string]clients.ChainClient{"0x1": eth},
		&fakeQuoter{err: errors.New("index down")})
	res := r.Resolve(context.Background(), testHash)

	require.False(t, res.OK)
	assert.Equal(t, types.KindPriceUnavailable, res.Kind)
	assert.Equal(t, "USD price unavailable (native).", res.Reason)
	assert.Equal(t, "ETH", res.TokenSymbol)
}

func TestResolve_DegradedQuoteStillResolves(t *testing.T) {
	value, _ := new(big.Int).SetString("1000000000000000000", 10) // 1 ETH
	eth := &fakeClient{
		tx:      &clients.TxInfo{Hash: common.HexToHash(testHash), To: &wallet, From: sender, Value: value},
		receipt: &clients.ReceiptInfo{Status: 1, BlockNumber: 100},
		latest:  110,
	}

	key := pricing.AssetKey{NativeID: "ethereum"}
	oracle := &fakeQuoter{quotes: map[string]types.PriceQuote{
		key.String(): {PriceUSD: decimal.NewFromInt(2000), Degraded: true},
	}}

	r := newResolver(t, map[string]clients.ChainClient{"0x1": eth}, oracle)
	res := r.Resolve(context.Background(), testHash)

	require.True(t, res.OK, res.Reason)
	assert.InDelta(t, 2000.0, res.ReferenceAmount, 1e-9)
	assert.Equal(t, true, res.Details["degraded"])
}

func TestResolve_RPCErrorOnOneChainContinues(t *testing.T) {
	value := big.NewInt(1)
	eth := &fakeClient{txErr: errors.New("connection refused")}
	bsc := &fakeClient{
		tx:      &clients.TxInfo{Hash: common.HexToHash(testHash), To: &wallet, From: sender, Value: value},
		receipt: &clients.ReceiptInfo{Status: 1, BlockNumber: 100},
		latest:  110,
	}

	bnbKey, bnbQuote := nativeQuote("binancecoin", 600)
	oracle := &fakeQuoter{quotes: map[string]types.PriceQuote{bnbKey: bnbQuote}}

	r := newResolver(t, map[string]clients.ChainClient{"0x1": eth, "0x38": bsc}, oracle)
	res := r.Resolve(context.Background(), testHash)

	require.True(t, res.OK, res.Reason)
	assert.Equal(t, "0x38", res.ChainID)
}

func TestResolve_TokenDefaultsWhenMetadataMissing(t *testing.T) {
	eth := &fakeClient{
		tx: &clients.TxInfo{Hash: common.HexToHash(testHash), To: &usdt, From: sender, Value: big.NewInt(0)},
		receipt: &clients.ReceiptInfo{
			Status:      1,
			BlockNumber: 100,
			Logs: []clients.Log{{
				Address: usdt,
				Topics:  []common.Hash{clients.TransferTopic, padAddr(sender), padAddr(wallet)},
				Data:    abiAmount(new(big.Int).SetUint64(2_000_000_000_000_000_000)), // 2 at 18 decimals
			}},
		},
		latest: 110,
		// decimals/symbol unset: fake falls back to client defaults
	}

	tokenKey := pricing.AssetKey{NativeID: "ethereum", Platform: "ethereum", Contract: usdt.Hex()}
	oracle := &fakeQuoter{quotes: map[string]types.PriceQuote{
		tokenKey.String(): {PriceUSD: decimal.NewFromInt(3)},
	}}

	r := newResolver(t, map[string]clients.ChainClient{"0x1": eth}, oracle)
	res := r.Resolve(context.Background(), testHash)

	require.True(t, res.OK, res.Reason)
	assert.Equal(t, clients.DefaultTokenSymbol, res.TokenSymbol)
	assert.InDelta(t, 6.0, res.ReferenceAmount, 1e-9)
}
