// Package correlate pairs attested requests with the endpoint layout of a product.
package correlate

import (
	"strconv"
	"strings"

	"github.com/coachpo/assetproof/errs"
)

const timestampParam = "timestamp="

// Timestamp returns the value of the first timestamp query parameter of url.
func Timestamp(url string) (uint64, error) {
	_, rest, found := strings.Cut(url, timestampParam)
	if !found {
		return 0, errs.New(errs.CodeCannotFoundTimestamp, errs.WithMessage(url))
	}
	if end := strings.IndexByte(rest, '&'); end >= 0 {
		rest = rest[:end]
	}
	if rest == "" {
		return 0, errs.New(errs.CodeCannotFoundTimestamp, errs.WithMessage(url))
	}
	// A single leading plus sign is accepted; any other sign is malformed.
	ts, err := strconv.ParseUint(strings.TrimPrefix(rest, "+"), 10, 64)
	if err != nil {
		return 0, errs.New(errs.CodeParseTimestampFailed,
			errs.WithMessage("timestamp "+strconv.Quote(rest)),
			errs.WithCause(err))
	}
	return ts, nil
}

// Match resolves the endpoint serving the request at position i. Products with several
// endpoints alternate them, so the matched endpoint index must equal i modulo their count.
func Match(i int, url string, endpoints []string) (int, error) {
	matched := -1
	for j, endpoint := range endpoints {
		if strings.HasPrefix(url, endpoint) {
			matched = j
			break
		}
	}
	if matched < 0 {
		return 0, errs.New(errs.CodeInvalidRequestURL, errs.WithMessage(url))
	}
	if len(endpoints) > 1 && matched != i%len(endpoints) {
		return 0, errs.New(errs.CodeInvalidRequestOrder,
			errs.WithMessage("request "+strconv.Itoa(i)+" targets "+endpoints[matched]))
	}
	return matched, nil
}

// Window tracks the earliest timestamp seen across a product call.
type Window struct {
	min  uint64
	seen bool
}

// Observe folds ts into the window.
func (w *Window) Observe(ts uint64) {
	if !w.seen || ts < w.min {
		w.min = ts
		w.seen = true
	}
}

// Min returns the earliest observed timestamp, or zero when nothing was observed.
func (w Window) Min() uint64 {
	return w.min
}
