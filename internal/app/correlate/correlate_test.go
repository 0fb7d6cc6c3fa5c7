package correlate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/assetproof/errs"
)

const (
	riskURL    = "https://papi.binance.com/papi/v1/um/positionRisk"
	balanceURL = "https://papi.binance.com/papi/v1/balance"
)

func TestTimestamp(t *testing.T) {
	cases := []struct {
		name string
		url  string
		want uint64
		code errs.Code
	}{
		{name: "only param", url: "https://api.binance.com/api/v3/account?timestamp=1717000000000", want: 1717000000000},
		{name: "followed by params", url: "https://api.binance.com/api/v3/account?timestamp=42&recvWindow=5000&signature=ab", want: 42},
		{name: "first occurrence wins", url: "https://x/?timestamp=7&timestamp=3", want: 7},
		{name: "missing", url: "https://api.binance.com/api/v3/account?recvWindow=5000", code: errs.CodeCannotFoundTimestamp},
		{name: "empty", url: "https://api.binance.com/api/v3/account?timestamp=&recvWindow=1", code: errs.CodeCannotFoundTimestamp},
		{name: "non numeric", url: "https://api.binance.com/api/v3/account?timestamp=abc", code: errs.CodeParseTimestampFailed},
		{name: "plus sign", url: "https://api.binance.com/api/v3/account?timestamp=+123&recvWindow=1", want: 123},
		{name: "bare plus", url: "https://api.binance.com/api/v3/account?timestamp=+", code: errs.CodeParseTimestampFailed},
		{name: "double plus", url: "https://api.binance.com/api/v3/account?timestamp=++1", code: errs.CodeParseTimestampFailed},
		{name: "beyond 64 bits", url: "https://api.binance.com/api/v3/account?timestamp=18446744073709551616", code: errs.CodeParseTimestampFailed},
		{name: "negative", url: "https://api.binance.com/api/v3/account?timestamp=-5", code: errs.CodeParseTimestampFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Timestamp(tc.url)
			if tc.code != errs.OK {
				require.Error(t, err)
				require.Equal(t, tc.code, codeOf(err), err.Error())
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestWindowKeepsMinimum(t *testing.T) {
	var w Window
	require.Zero(t, w.Min())
	for _, ts := range []uint64{1000, 500, 1500} {
		w.Observe(ts)
	}
	require.Equal(t, uint64(500), w.Min())
}

func TestMatchSingleEndpoint(t *testing.T) {
	endpoints := []string{"https://api.binance.com/api/v3/account"}
	for i := 0; i < 3; i++ {
		idx, err := Match(i, endpoints[0]+"?timestamp=1", endpoints)
		require.NoError(t, err)
		require.Zero(t, idx)
	}

	_, err := Match(0, "https://evil.example/api/v3/account?timestamp=1", endpoints)
	require.Equal(t, errs.CodeInvalidRequestURL, codeOf(err))
}

func TestMatchAlternatingLayout(t *testing.T) {
	endpoints := []string{riskURL, balanceURL}

	idx, err := Match(0, riskURL+"?timestamp=1", endpoints)
	require.NoError(t, err)
	require.Equal(t, 0, idx)

	idx, err = Match(1, balanceURL+"?timestamp=1", endpoints)
	require.NoError(t, err)
	require.Equal(t, 1, idx)

	_, err = Match(0, balanceURL+"?timestamp=1", endpoints)
	require.Equal(t, errs.CodeInvalidRequestOrder, codeOf(err))

	_, err = Match(3, riskURL+"?timestamp=1", endpoints)
	require.Equal(t, errs.CodeInvalidRequestOrder, codeOf(err))

	_, err = Match(2, "https://papi.binance.com/papi/v1/account?timestamp=1", endpoints)
	require.Equal(t, errs.CodeInvalidRequestURL, codeOf(err))
}

func codeOf(err error) errs.Code {
	code, _ := errs.CodeOf(err)
	return code
}
