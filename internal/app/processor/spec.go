// Package processor turns one verified product attestation into balance contributions.
//
// Every product is described by a Spec: the endpoints its requests must target and, per endpoint,
// a Step naming the fields to read. A single algorithm (Product.Run) interprets the table.
package processor

import (
	"sort"
	"strconv"
	"strings"
)

// Product keys accepted in the attestation map.
const (
	BinanceSpot       = "binanceSpot"
	BinanceUsdSFuture = "binanceUsdSFuture"
	BinanceUnified    = "binanceUnified"
	AsterSpot         = "asterSpot"
	AsterFuture       = "asterFuture"
)

// Exchange names used as asset_balance keys.
const (
	ExchangeBinance = "binance"
	ExchangeAster   = "aster"
)

// Default endpoint URLs.
const (
	BinanceSpotURL        = "https://api.binance.com/api/v3/account"
	BinanceUsdSFutureURL  = "https://fapi.binance.com/fapi/v3/balance"
	BinanceUnifiedRiskURL = "https://papi.binance.com/papi/v1/um/positionRisk"
	BinanceUnifiedBalURL  = "https://papi.binance.com/papi/v1/balance"
	AsterSpotURL          = "https://sapi.asterdex.com/api/v1/account"
	AsterFutureURL        = "https://fapi.asterdex.com/fapi/v2/balance"
)

// Cardinality constrains how many identity values a response may carry.
type Cardinality uint8

const (
	// IdentityNone reads no identity.
	IdentityNone Cardinality = iota
	// IdentityExactlyOne requires a single identity value.
	IdentityExactlyOne
	// IdentityAtLeastOne requires one or more values; a response with none is skipped entirely.
	IdentityAtLeastOne
)

// Row is one balance row read from a response.
type Row struct {
	Asset string
	A     float64
	B     float64
}

// KeyInput carries everything a key builder may use for one request.
type KeyInput struct {
	Identity []string
	Rows     []Row
	// Columns holds the key column values row by row.
	Columns [][]string
}

// KeyFunc derives the dedup key of one request. ok=false contributes no key.
type KeyFunc func(in KeyInput) (key string, ok bool)

// Step handles the requests matched to one endpoint.
type Step struct {
	IdentityPaths []string
	Cardinality   Cardinality
	// BalancePaths lists asset, first amount and second amount; empty for key-only steps.
	BalancePaths []string
	Combine      func(a, b float64) float64
	KeyColumns   []string
	Key          KeyFunc
}

// Spec describes one account product.
type Spec struct {
	Key       string
	Exchange  string
	Endpoints []string
	Steps     []Step
}

// Alternating reports whether requests must cycle through several endpoints.
func (s Spec) Alternating() bool { return len(s.Endpoints) > 1 }

// Sum adds both amounts.
func Sum(a, b float64) float64 { return a + b }

// DefaultSpecs returns the product table in processing order.
func DefaultSpecs() []Spec {
	return []Spec{
		{
			Key:       BinanceSpot,
			Exchange:  ExchangeBinance,
			Endpoints: []string{BinanceSpotURL},
			Steps: []Step{{
				IdentityPaths: []string{"$.uid"},
				Cardinality:   IdentityExactlyOne,
				BalancePaths:  []string{"$.balances[*].asset", "$.balances[*].free", "$.balances[*].locked"},
				Combine:       Sum,
				Key:           firstIdentity,
			}},
		},
		futuresSpec(BinanceUsdSFuture, ExchangeBinance, BinanceUsdSFutureURL),
		{
			Key:       BinanceUnified,
			Exchange:  ExchangeBinance,
			Endpoints: []string{BinanceUnifiedRiskURL, BinanceUnifiedBalURL},
			Steps: []Step{
				{
					KeyColumns: []string{"$.[*].symbol", "$.[*].entryPrice"},
					Key:        positionKey,
				},
				{
					BalancePaths: []string{"$.[*].asset", "$.[*].totalWalletBalance", "$.[*].umUnrealizedPNL"},
					Combine:      Sum,
				},
			},
		},
		{
			Key:       AsterSpot,
			Exchange:  ExchangeAster,
			Endpoints: []string{AsterSpotURL},
			Steps: []Step{{
				IdentityPaths: []string{"$.updateTime"},
				Cardinality:   IdentityExactlyOne,
				BalancePaths:  []string{"$.balances[*].asset", "$.balances[*].free", "$.balances[*].locked"},
				Combine:       Sum,
				Key:           snapshotKey,
			}},
		},
		futuresSpec(AsterFuture, ExchangeAster, AsterFutureURL),
	}
}

// Exchanges lists exchange names in the order their products appear in specs.
func Exchanges(specs []Spec) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, s := range specs {
		if _, ok := seen[s.Exchange]; ok {
			continue
		}
		seen[s.Exchange] = struct{}{}
		out = append(out, s.Exchange)
	}
	return out
}

// WithEndpoints returns a copy of specs whose endpoint lists are replaced where overrides name
// the product. An override must keep the number of endpoints.
func WithEndpoints(specs []Spec, overrides map[string][]string) []Spec {
	out := make([]Spec, len(specs))
	for i, s := range specs {
		out[i] = s
		if urls, ok := overrides[s.Key]; ok && len(urls) == len(s.Endpoints) {
			out[i].Endpoints = append([]string(nil), urls...)
		}
	}
	return out
}

func futuresSpec(key, exchange, url string) Spec {
	return Spec{
		Key:       key,
		Exchange:  exchange,
		Endpoints: []string{url},
		Steps: []Step{{
			IdentityPaths: []string{"$.[*].accountAlias"},
			Cardinality:   IdentityAtLeastOne,
			BalancePaths:  []string{"$.[*].asset", "$.[*].balance", "$.[*].crossUnPnl"},
			Combine:       Sum,
			Key:           firstIdentity,
		}},
	}
}

func firstIdentity(in KeyInput) (string, bool) {
	if len(in.Identity) == 0 {
		return "", false
	}
	return in.Identity[0], true
}

// positionKey fingerprints open positions as sorted SYMBOL:entryPrice pairs.
func positionKey(in KeyInput) (string, bool) {
	parts := make([]string, 0, len(in.Columns))
	for _, cols := range in.Columns {
		if len(cols) < 2 {
			continue
		}
		parts = append(parts, upperASCII(cols[0])+":"+cols[1])
	}
	if len(parts) == 0 {
		return "", false
	}
	sort.Strings(parts)
	return strings.Join(parts, ","), true
}

// snapshotKey fingerprints a spot account by update time and its sorted balance rows.
func snapshotKey(in KeyInput) (string, bool) {
	if len(in.Rows) == 0 || len(in.Identity) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(in.Rows))
	for _, r := range in.Rows {
		parts = append(parts, r.Asset+":"+formatAmount(r.A)+":"+formatAmount(r.B))
	}
	sort.Strings(parts)
	return in.Identity[0] + ":" + strings.Join(parts, ","), true
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
