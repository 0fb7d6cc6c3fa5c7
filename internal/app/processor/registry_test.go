package processor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryOrder(t *testing.T) {
	registry, err := NewDefaultRegistry(nil)
	require.NoError(t, err)

	require.Equal(t, []string{ExchangeBinance, ExchangeAster}, registry.Exchanges())

	keys := func(products []*Product) []string {
		out := make([]string, 0, len(products))
		for _, p := range products {
			out = append(out, p.Spec().Key)
		}
		return out
	}
	require.Equal(t, []string{BinanceSpot, BinanceUsdSFuture, BinanceUnified}, keys(registry.Products(ExchangeBinance)))
	require.Equal(t, []string{AsterSpot, AsterFuture}, keys(registry.Products(ExchangeAster)))
	require.Empty(t, registry.Products("okx"))
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	spec := DefaultSpecs()[0]
	require.NoError(t, registry.Register(spec))
	require.Error(t, registry.Register(spec))
}

func TestEndpointOverrides(t *testing.T) {
	registry, err := NewDefaultRegistry(map[string][]string{
		BinanceSpot:    {"https://testnet.binance.vision/api/v3/account"},
		BinanceUnified: {"https://only-one.example"},
	})
	require.NoError(t, err)

	spot, ok := registry.Lookup(BinanceSpot)
	require.True(t, ok)
	require.Equal(t, []string{"https://testnet.binance.vision/api/v3/account"}, spot.Spec().Endpoints)

	unified, ok := registry.Lookup(BinanceUnified)
	require.True(t, ok)
	require.Equal(t, []string{BinanceUnifiedRiskURL, BinanceUnifiedBalURL}, unified.Spec().Endpoints)

	// Overrides never leak into the shared table.
	require.Equal(t, []string{BinanceSpotURL}, DefaultSpecs()[0].Endpoints)
}
