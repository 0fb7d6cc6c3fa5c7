package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/assetproof/errs"
)

const spotBody = `{
  "uid": 354937868,
  "updateTime": 1717000000000,
  "balances": [
    {"asset": "BTC", "free": "1.5", "locked": "0.5"},
    {"asset": "usdt", "free": "100", "locked": "0"}
  ]
}`

const futuresBody = `[
  {"accountAlias": "SgsR", "asset": "USDT", "balance": "10.5", "crossUnPnl": "-0.5"},
  {"accountAlias": "SgsR", "asset": "BNB", "balance": "1", "crossUnPnl": "0"}
]`

func TestExtractColumnsInPathOrder(t *testing.T) {
	paths, err := CompileAll("$.balances[*].asset", "$.balances[*].free", "$.balances[*].locked")
	require.NoError(t, err)

	values, err := Extract([]byte(spotBody), paths)
	require.NoError(t, err)
	require.Equal(t, []string{`"BTC"`, `"usdt"`, `"1.5"`, `"100"`, `"0.5"`, `"0"`}, values)
}

func TestExtractScalarKeepsRawText(t *testing.T) {
	values, err := Extract([]byte(`{"uid": 12345678901234567890}`), []Path{mustCompile("$.uid")})
	require.NoError(t, err)
	require.Equal(t, []string{"12345678901234567890"}, values)
}

func TestExtractRootArrayWithDotBracket(t *testing.T) {
	values, err := Extract([]byte(futuresBody), []Path{mustCompile("$.[*].accountAlias"), mustCompile("$[*].asset")})
	require.NoError(t, err)
	require.Equal(t, []string{`"SgsR"`, `"SgsR"`, `"USDT"`, `"BNB"`}, values)
}

func TestExtractMissingValues(t *testing.T) {
	values, err := Extract([]byte(`[]`), []Path{mustCompile("$.[*].accountAlias")})
	require.NoError(t, err)
	require.Empty(t, values)

	values, err = Extract([]byte(`{"balances": []}`), []Path{mustCompile("$.uid")})
	require.NoError(t, err)
	require.Empty(t, values)

	values, err = Extract([]byte(`[{"a": 1}, {"b": 2}, {"a": 3}]`), []Path{mustCompile("$[*].a")})
	require.NoError(t, err)
	require.Equal(t, []string{"1", "3"}, values)
}

func TestExtractTrailingWildcardAndIndex(t *testing.T) {
	body := []byte(`{"rows": [[1, 2], [3]], "list": ["x", "y"]}`)

	values, err := Extract(body, []Path{mustCompile("$.list[*]")})
	require.NoError(t, err)
	require.Equal(t, []string{`"x"`, `"y"`}, values)

	values, err = Extract(body, []Path{mustCompile("$.rows[*][*]")})
	require.NoError(t, err)
	require.Equal(t, []string{"1", "2", "3"}, values)

	values, err = Extract(body, []Path{mustCompile("$.list[1]")})
	require.NoError(t, err)
	require.Equal(t, []string{`"y"`}, values)
}

func TestExtractInvalidMessage(t *testing.T) {
	_, err := Extract([]byte(`{"uid":`), []Path{mustCompile("$.uid")})
	require.Error(t, err)
	require.Equal(t, errs.CodeGetJSONValueFail, codeOf(err))
}

func TestCompileRejectsInvalidExpressions(t *testing.T) {
	for _, expr := range []string{"uid", "$.", "$.balances[", "$.balances[?(@.free)]", ""} {
		_, err := Compile(expr)
		require.Error(t, err, expr)
		require.Equal(t, errs.CodeGetJSONValueFail, codeOf(err), expr)
	}
}

func TestUnquote(t *testing.T) {
	require.Equal(t, "BTC", Unquote(`"BTC"`))
	require.Equal(t, "12", Unquote("12"))
	require.Equal(t, "", Unquote(`""`))
}

func mustCompile(expr string) Path {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func codeOf(err error) errs.Code {
	code, _ := errs.CodeOf(err)
	return code
}
