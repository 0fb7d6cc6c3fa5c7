package telemetry

import (
	"strconv"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys attached to assetproof metrics.
const (
	// AttrEnvironment specifies the deployment environment (development/staging/production).
	AttrEnvironment = attribute.Key("environment")
	// AttrProduct identifies the account product key (binanceSpot, asterFuture, ...).
	AttrProduct = attribute.Key("product")
	// AttrExchange names the exchange a product belongs to.
	AttrExchange = attribute.Key("exchange")
	// AttrResult records the outcome of a product call: ok or the failure name.
	AttrResult = attribute.Key("result")
	// AttrStatus carries the numeric record status.
	AttrStatus = attribute.Key("status")
)

// ResultOK labels successful operations.
const ResultOK = "ok"

// InvocationAttributes labels invocation metrics.
func InvocationAttributes(environment string, status int16) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrStatus.String(strconv.Itoa(int(status))),
	}
}

// ProductAttributes labels per-product metrics. An empty result is omitted.
func ProductAttributes(environment, exchange, product, result string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrExchange.String(exchange),
		AttrProduct.String(product),
	}
	if result != "" {
		attrs = append(attrs, AttrResult.String(result))
	}
	return attrs
}
