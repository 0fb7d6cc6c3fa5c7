package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestInvocationAttributes(t *testing.T) {
	attrs := InvocationAttributes("production", 1011)
	require.Equal(t, []attribute.KeyValue{
		AttrEnvironment.String("production"),
		AttrStatus.String("1011"),
	}, attrs)
}

func TestProductAttributesOmitEmptyResult(t *testing.T) {
	attrs := ProductAttributes("dev", "binance", "binanceSpot", "")
	require.Len(t, attrs, 3)

	attrs = ProductAttributes("dev", "aster", "asterFuture", ResultOK)
	require.Len(t, attrs, 4)
	require.Equal(t, AttrResult.String("ok"), attrs[3])
}

func TestDisabledProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	cfg.Environment = "Staging"

	provider, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, provider.Meter("assetproof"))
	require.Equal(t, "staging", provider.Environment())
	require.NoError(t, provider.Shutdown(context.Background()))

	var nilProvider *Provider
	require.Equal(t, "development", nilProvider.Environment())
	require.NoError(t, nilProvider.Shutdown(context.Background()))
}

func TestStripScheme(t *testing.T) {
	require.Equal(t, "collector:4318", stripScheme("http://collector:4318"))
	require.Equal(t, "collector:4318", stripScheme("https://collector:4318"))
	require.Equal(t, "collector:4318", stripScheme("collector:4318"))
}
