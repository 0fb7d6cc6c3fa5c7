// Package ledger accumulates per-asset balances and folds them into the published categories.
package ledger

import (
	"math"
	"sort"
	"strings"

	"github.com/coachpo/assetproof/internal/domain/schema"
)

// DefaultEpsilon is the minimum magnitude a published balance must exceed.
const DefaultEpsilon = 1e-11

// DefaultStablecoins lists the fiat-pegged symbols folded into the STABLECOIN bucket.
func DefaultStablecoins() []string {
	return []string{"USDT", "USDC", "FDUSD", "TUSD", "USDE", "XUSD", "USD1", "BFUSD", "USDP", "DAI", "USDF"}
}

// Ledger maps an uppercase asset symbol to its accumulated balance.
type Ledger map[string]float64

// New returns an empty ledger.
func New() Ledger { return Ledger{} }

// Add accumulates amount under asset.
func (l Ledger) Add(asset string, amount float64) {
	l[asset] += amount
}

// Posting is one balance contribution.
type Posting struct {
	Asset  string
	Amount float64
}

// Apply adds postings into l in order.
func (l Ledger) Apply(postings []Posting) {
	for _, p := range postings {
		l[p.Asset] += p.Amount
	}
}

// Assets returns the symbols in sorted order.
func (l Ledger) Assets() []string {
	out := make([]string, 0, len(l))
	for asset := range l {
		out = append(out, asset)
	}
	sort.Strings(out)
	return out
}

// StablecoinSet indexes a stablecoin list by symbol.
type StablecoinSet map[string]struct{}

// NewStablecoinSet builds a set from symbols, uppercasing them.
func NewStablecoinSet(symbols []string) StablecoinSet {
	set := make(StablecoinSet, len(symbols))
	for _, s := range symbols {
		set[strings.ToUpper(strings.TrimSpace(s))] = struct{}{}
	}
	return set
}

// Contains reports whether symbol is a stablecoin.
func (s StablecoinSet) Contains(symbol string) bool {
	_, ok := s[symbol]
	return ok
}

// Categorize sums stablecoin balances into schema.StablecoinKey and keeps the remaining assets
// whose magnitude exceeds epsilon. Stablecoins are summed in sorted symbol order.
func Categorize(l Ledger, stablecoins StablecoinSet, epsilon float64) map[string]float64 {
	out := make(map[string]float64, len(l))
	sum := 0.0
	for _, asset := range l.Assets() {
		v := l[asset]
		if stablecoins.Contains(asset) {
			sum += v
			continue
		}
		if math.Abs(v) > epsilon {
			out[asset] = v
		}
	}
	if math.Abs(sum) > epsilon {
		out[schema.StablecoinKey] = sum
	}
	return out
}
