package evmpay

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/paywatch/evmpay/plans"
	"github.com/paywatch/evmpay/registry"
	"github.com/paywatch/evmpay/types"
)

// Config is the engine configuration. Zero values fall back to defaults
// during New; only WalletAddress is mandatory.
type Config struct {
	// WalletAddress is the receiving wallet payments are verified against.
	WalletAddress string

	// Chains overrides the built-in catalog. Order is scan priority.
	Chains []types.ChainConfig

	// MinConfirmations applies to chains that do not set their own.
	MinConfirmations uint64

	// PlanTiers overrides the default subscription schedule.
	PlanTiers *plans.Table

	// PriceAPIURL and PriceAPIKey configure the price index. Empty URL
	// means the public CoinGecko API.
	PriceAPIURL string
	PriceAPIKey string

	// PeggedAssets maps extra token contracts (lowercased) to the
	// fallback asset id used when the index cannot quote them, on top of
	// the built-in stablecoin table.
	PeggedAssets map[string]string

	// LogLevel selects the zap level when no logger option is given.
	LogLevel string
}

// LoadConfig reads configuration from the environment:
//
//	WALLET_ADDRESS        receiving wallet (required)
//	MIN_CONFIRMATIONS     default confirmation depth (default 1)
//	CHAINS                comma-separated chain names to enable, in scan
//	                      order (default: the full catalog)
//	<CHAIN>_RPC_URL       per-chain endpoint override, e.g. ETHEREUM_RPC_URL
//	<CHAIN>_MIN_CONFIRMATIONS  per-chain depth override
//	PLAN_TIERS_JSON       tier schedule, e.g. {"30":0.05,"365":2.0}
//	PRICE_API_URL         price index root
//	PRICE_API_KEY         price index API key
//	LOG_LEVEL             debug|info|warn|error
func LoadConfig() (*Config, error) {
	wallet := strings.TrimSpace(os.Getenv("WALLET_ADDRESS"))
	if wallet == "" {
		return nil, fmt.Errorf("WALLET_ADDRESS is not set")
	}

	minConf := uint64(1)
	if raw := os.Getenv("MIN_CONFIRMATIONS"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("MIN_CONFIRMATIONS: %w", err)
		}
		minConf = v
	}

	chains, err := chainsFromEnv(minConf)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		WalletAddress:    wallet,
		Chains:           chains,
		MinConfirmations: minConf,
		PriceAPIURL:      os.Getenv("PRICE_API_URL"),
		PriceAPIKey:      os.Getenv("PRICE_API_KEY"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}

	if raw := os.Getenv("PLAN_TIERS_JSON"); raw != "" {
		table, err := plans.ParseTable(raw)
		if err != nil {
			return nil, fmt.Errorf("PLAN_TIERS_JSON: %w", err)
		}
		cfg.PlanTiers = table
	}

	return cfg, nil
}

// chainsFromEnv selects and overrides chains from the built-in catalog.
func chainsFromEnv(minConf uint64) ([]types.ChainConfig, error) {
	catalog := registry.DefaultChains(minConf)

	selected := catalog
	if raw := os.Getenv("CHAINS"); raw != "" {
		selected = nil
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			chain, ok := findChain(catalog, name)
			if !ok {
				return nil, fmt.Errorf("unknown chain %q in CHAINS", name)
			}
			selected = append(selected, chain)
		}
	}

	for i := range selected {
		key := envKey(selected[i].Name)
		if url := os.Getenv(key + "_RPC_URL"); url != "" {
			selected[i].RPCURL = url
		}
		if raw := os.Getenv(key + "_MIN_CONFIRMATIONS"); raw != "" {
			v, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%s_MIN_CONFIRMATIONS: %w", key, err)
			}
			selected[i].MinConfirmations = v
		}
	}
	return selected, nil
}

func findChain(catalog []types.ChainConfig, name string) (types.ChainConfig, bool) {
	for _, c := range catalog {
		if strings.EqualFold(c.Name, name) || strings.EqualFold(envKey(c.Name), envKey(name)) {
			return c, true
		}
	}
	return types.ChainConfig{}, false
}

// envKey turns a chain name into its environment prefix:
// "BNB Smart Chain" -> "BNB_SMART_CHAIN".
func envKey(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
