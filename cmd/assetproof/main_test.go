package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/assetproof/internal/app/processor"
	"github.com/coachpo/assetproof/internal/domain/schema"
	"github.com/coachpo/assetproof/internal/infra/attestation"
	"github.com/coachpo/assetproof/internal/infra/config"
)

const spotBody = `{"uid": 354937868, "balances": [{"asset": "BTC", "free": "1.5", "locked": "0.5"}, {"asset": "usdt", "free": "100", "locked": "0"}]}`

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{config.EnvVarDatabaseDSN, config.EnvVarProjectID, config.EnvVarOTLPEnabled, config.EnvVarEnvironment} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func writeTemp(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// signedInvocation signs one Binance spot snapshot through the sign command and wraps it in an
// invocation trusting the signer.
func signedInvocation(t *testing.T, dir string) string {
	t.Helper()
	signer, err := attestation.GenerateSigner()
	require.NoError(t, err)

	url := processor.BinanceSpotURL + "?timestamp=1700000000000&signature=ff"
	unsigned, err := attestation.NewEnvelope("task-1", []string{url}, []string{spotBody}).Encode()
	require.NoError(t, err)
	envPath := writeTemp(t, dir, "envelope.json", string(unsigned))
	signedPath := filepath.Join(dir, "signed.json")

	_, _, err = execute(t, "", "sign", "--key", signer.KeyHex(), "--input", envPath, "--output", signedPath)
	require.NoError(t, err)
	signed, err := os.ReadFile(signedPath)
	require.NoError(t, err)

	cfg, err := json.Marshal(map[string]any{"attestor_addrs": []string{signer.Address()}, "url": []string{}})
	require.NoError(t, err)
	inv, err := json.Marshal(schema.Invocation{
		ConfigData: string(cfg),
		Attestations: map[string]string{
			processor.BinanceSpot: strings.TrimSpace(string(signed)),
			schema.MetaKey:        `{"projectId":"p-cli"}`,
		},
	})
	require.NoError(t, err)
	return string(inv)
}

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCmd()
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"run", "batch", "watch", "serve", "migrate", "sign"} {
		require.Contains(t, names, want)
	}
}

func TestSignAndRunJSON(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	inv := signedInvocation(t, dir)

	out, _, err := execute(t, inv, "run")
	require.NoError(t, err)
	record, err := schema.DecodePublicRecord([]byte(out))
	require.NoError(t, err)
	require.True(t, record.Succeeded(), "status %d", record.Status)
	require.Equal(t, "p-cli", record.ProjectID)
	require.Equal(t, map[string]float64{"BTC": 2, schema.StablecoinKey: 100}, record.AssetBalance["binance"])
	require.Len(t, record.AttestationMeta, 1)
	require.EqualValues(t, 1700000000000, record.AttestationMeta[0].Timestamp)
}

func TestRunTableToFile(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	inputPath := writeTemp(t, dir, "inv.json", signedInvocation(t, dir))
	outputPath := filepath.Join(dir, "record.txt")

	_, _, err := execute(t, "", "run", "--input", inputPath, "--output", outputPath, "--format", "TABLE")
	require.NoError(t, err)
	table, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	require.Contains(t, string(table), "p-cli")
	lines := strings.Split(strings.TrimSpace(string(table)), "\n")
	require.Equal(t, []string{"binance", "BTC", "2"}, strings.Fields(lines[len(lines)-2]))
	require.Equal(t, []string{"binance", "STABLECOIN", "100"}, strings.Fields(lines[len(lines)-1]))
}

func TestRunRejectsUnknownFormat(t *testing.T) {
	isolateEnv(t)
	_, _, err := execute(t, "{}", "run", "--format", "xml")
	require.ErrorContains(t, err, "unknown format")
}

func TestRunRejectsMalformedInvocation(t *testing.T) {
	isolateEnv(t)
	_, _, err := execute(t, "[", "run")
	require.ErrorContains(t, err, "decode invocation")
}

func TestSignGeneratesKeyWhenMissing(t *testing.T) {
	unsigned, err := attestation.NewEnvelope("task", []string{processor.BinanceSpotURL}, []string{spotBody}).Encode()
	require.NoError(t, err)

	out, errOut, err := execute(t, string(unsigned), "sign")
	require.NoError(t, err)
	require.Contains(t, errOut, "generated key")

	env, err := attestation.DecodeEnvelope([]byte(out))
	require.NoError(t, err)
	require.Len(t, env.PublicData, 1)
	require.NotEmpty(t, env.PublicData[0].Signature)
	require.True(t, strings.HasPrefix(env.PublicData[0].Attestor, "0x"))
}

func TestSignRejectsBadKey(t *testing.T) {
	_, _, err := execute(t, "{}", "sign", "--key", "zz")
	require.Error(t, err)
}

func TestBatchReportsFailures(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	out := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(in, 0o755))
	writeTemp(t, in, "good.json", signedInvocation(t, dir))
	writeTemp(t, in, "bad.json", "nope")

	stdout, _, err := execute(t, "", "batch", "--in", in, "--out", out, "--workers", "2")
	require.ErrorContains(t, err, "1 of 2 inputs failed")
	require.Contains(t, stdout, "status=0")

	written, err := os.ReadFile(filepath.Join(out, "good.json"))
	require.NoError(t, err)
	record, err := schema.DecodePublicRecord(written)
	require.NoError(t, err)
	require.Equal(t, "p-cli", record.ProjectID)
}

func TestWatchOnceArchivesInbox(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	inbox := filepath.Join(dir, "inbox")
	outbox := filepath.Join(dir, "records")
	require.NoError(t, os.MkdirAll(inbox, 0o755))
	writeTemp(t, inbox, "snapshot.json", signedInvocation(t, dir))
	cfgPath := writeTemp(t, dir, "app.yaml", fmt.Sprintf("logging:\n  level: error\nwatch:\n  inbox: %s\n  outbox: %s\n", inbox, outbox))

	_, _, err := execute(t, "", "--config", cfgPath, "watch", "--once")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(outbox, "snapshot.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(inbox, "done", "snapshot.json"))
	require.NoError(t, err)
}

func TestEnvFileSetsProjectID(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	envPath := writeTemp(t, dir, "test.env", config.EnvVarProjectID+"=p-env\n")

	out, _, err := execute(t, `{"configData":"{}","attestations":{}}`, "--env-file", envPath, "run")
	require.NoError(t, err)
	record, err := schema.DecodePublicRecord([]byte(out))
	require.NoError(t, err)
	require.Equal(t, "p-env", record.ProjectID)
}

func TestMigrateRequiresDSN(t *testing.T) {
	isolateEnv(t)
	_, _, err := execute(t, "", "migrate", "up")
	require.ErrorContains(t, err, "dsn required")

	_, _, err = execute(t, "", "migrate")
	require.Error(t, err)
}
