// Package plans maps a confirmed USD payment amount to a subscription
// tier. Tiers are price thresholds: the largest tier whose price the
// payment covers (within a small epsilon for float drift) wins.
package plans

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

// epsilon absorbs rounding drift between the on-chain amount and the tier
// price, so a $0.999 payment still buys the $1.00 tier.
var epsilon = decimal.NewFromFloat(0.01)

type tier struct {
	days  int
	price decimal.Decimal
}

// Table is an immutable, validated set of tiers.
type Table struct {
	tiers []tier // ascending by price
}

// NewTable builds a table from days → USD price. Prices must be positive
// and strictly increasing with days.
func NewTable(prices map[int]float64) (*Table, error) {
	if len(prices) == 0 {
		return nil, fmt.Errorf("plan table is empty")
	}

	tiers := make([]tier, 0, len(prices))
	for days, usd := range prices {
		if days <= 0 {
			return nil, fmt.Errorf("invalid plan duration %d days", days)
		}
		if usd <= 0 {
			return nil, fmt.Errorf("invalid price %v for %d days", usd, days)
		}
		tiers = append(tiers, tier{days: days, price: decimal.NewFromFloat(usd)})
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].price.LessThan(tiers[j].price) })

	for i := 1; i < len(tiers); i++ {
		if tiers[i].days <= tiers[i-1].days {
			return nil, fmt.Errorf("plan table not monotonic: %d days at %s after %d days at %s",
				tiers[i].days, tiers[i].price, tiers[i-1].days, tiers[i-1].price)
		}
	}
	return &Table{tiers: tiers}, nil
}

// ParseTable decodes a JSON object of string day-counts to prices, e.g.
// {"30": 0.05, "365": 2.0}.
func ParseTable(raw string) (*Table, error) {
	var m map[string]float64
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("malformed plan table JSON: %w", err)
	}

	prices := make(map[int]float64, len(m))
	for k, v := range m {
		days, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("plan duration %q is not a number", k)
		}
		prices[days] = v
	}
	return NewTable(prices)
}

// DefaultTable returns the built-in tier schedule.
func DefaultTable() *Table {
	t, err := NewTable(map[int]float64{
		30:  0.05,
		60:  1.00,
		180: 1.50,
		365: 2.00,
	})
	if err != nil {
		panic(err) // static input
	}
	return t
}

// Select returns the duration in days of the most expensive tier covered
// by amountUSD, or 0 when the amount covers no tier.
func (t *Table) Select(amountUSD float64) int {
	amount := decimal.NewFromFloat(amountUSD).Add(epsilon)

	best := 0
	for _, tr := range t.tiers {
		if amount.GreaterThanOrEqual(tr.price) {
			best = tr.days
		}
	}
	return best
}

// Tiers returns the schedule as days → price, for display.
func (t *Table) Tiers() map[int]float64 {
	out := make(map[int]float64, len(t.tiers))
	for _, tr := range t.tiers {
		out[tr.days], _ = tr.price.Float64()
	}
	return out
}

// Crediter applies a granted plan to an account. Implementations live with
// the caller; the engine only decides what was bought.
type Crediter interface {
	CreditPlan(ctx context.Context, identity string, days int) error
}
