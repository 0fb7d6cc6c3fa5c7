package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/coachpo/assetproof/internal/app/ledger"
	"github.com/coachpo/assetproof/internal/app/processor"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error when config file missing")
	}
}

func TestLoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
environment: PROD
record:
  version: "0.2.0"
  projectId: " 2001569168033316864 "
aggregation:
  epsilon: 0.000001
  stablecoins: [usdt, " usdc ", USDT]
endpoints:
  binanceSpot: ["https://testnet.binance.vision/api/v3/account"]
logging:
  level: DEBUG
  format: console
telemetry:
  enabled: true
  otlpEndpoint: http://collector:4318
  serviceName: assetproof-prod
database:
  dsn: postgresql://localhost:5432/assetproof
  maxConns: 4
server:
  addr: ":9090"
  rateLimit: 5
watch:
  schedule: "@every 1h"
  inbox: /var/lib/assetproof/inbox
  outbox: /var/lib/assetproof/records
`)
	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Environment != EnvProd {
		t.Fatalf("expected prod environment, got %q", cfg.Environment)
	}
	if cfg.Record.Version != "0.2.0" || cfg.Record.ProjectID != "2001569168033316864" {
		t.Fatalf("unexpected record config: %+v", cfg.Record)
	}
	if cfg.Aggregation.Epsilon != 0.000001 {
		t.Fatalf("unexpected epsilon %v", cfg.Aggregation.Epsilon)
	}
	if !reflect.DeepEqual(cfg.Aggregation.Stablecoins, []string{"USDT", "USDC"}) {
		t.Fatalf("unexpected stablecoins %v", cfg.Aggregation.Stablecoins)
	}
	if got := cfg.Endpoints[processor.BinanceSpot]; len(got) != 1 || got[0] != "https://testnet.binance.vision/api/v3/account" {
		t.Fatalf("unexpected endpoint override %v", got)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Fatalf("unexpected logging config %+v", cfg.Logging)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.MetricInterval != 30*time.Second {
		t.Fatalf("unexpected telemetry config %+v", cfg.Telemetry)
	}
	if !cfg.Database.Enabled() || cfg.Database.MaxConns != 4 || cfg.Database.MinConns != 1 {
		t.Fatalf("unexpected database config %+v", cfg.Database)
	}
	if cfg.Server.Addr != ":9090" || cfg.Server.RateLimit != 5 || cfg.Server.RateBurst != 40 {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Watch.Schedule != "@every 1h" || cfg.Watch.Workers != 4 {
		t.Fatalf("unexpected watch config %+v", cfg.Watch)
	}
}

func TestDefaults(t *testing.T) {
	cfg := DefaultAppConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Aggregation.Epsilon != ledger.DefaultEpsilon {
		t.Fatalf("unexpected default epsilon %v", cfg.Aggregation.Epsilon)
	}
	if !reflect.DeepEqual(cfg.Aggregation.Stablecoins, ledger.DefaultStablecoins()) {
		t.Fatalf("unexpected default stablecoins %v", cfg.Aggregation.Stablecoins)
	}
	if cfg.Database.Enabled() {
		t.Fatalf("record store must be disabled without dsn")
	}
	if cfg.Watch.Schedule != "@every 30m" {
		t.Fatalf("unexpected default schedule %q", cfg.Watch.Schedule)
	}
}

func TestEmptyStablecoinListIsKept(t *testing.T) {
	cfg, err := Parse([]byte("aggregation:\n  stablecoins: []\n"))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if cfg.Aggregation.Stablecoins == nil || len(cfg.Aggregation.Stablecoins) != 0 {
		t.Fatalf("expected explicit empty stablecoin list, got %v", cfg.Aggregation.Stablecoins)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := map[string]string{
		"environment":      "environment: qa\n",
		"negative epsilon": "aggregation:\n  epsilon: -1\n",
		"unknown product":  "endpoints:\n  okxSpot: [\"https://okx.com\"]\n",
		"endpoint count":   "endpoints:\n  binanceUnified: [\"https://papi.binance.com\"]\n",
		"relative url":     "endpoints:\n  asterSpot: [\"sapi.asterdex.com\"]\n",
		"schedule":         "watch:\n  schedule: \"every now and then\"\n",
		"same directories": "watch:\n  inbox: data\n  outbox: ./data\n",
		"telemetry":        "telemetry:\n  enabled: true\n  otlpEndpoint: \" \"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(EnvVarOTLPURL, "")
			if _, err := Parse([]byte(body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvVarEnvironment, "STAGING")
	t.Setenv(EnvVarDatabaseDSN, "postgresql://db/assetproof")
	t.Setenv(EnvVarProjectID, "p-env")

	cfg, err := LoadOrDefault(context.Background(), "")
	if err != nil {
		t.Fatalf("LoadOrDefault returned error: %v", err)
	}
	if cfg.Environment != EnvStaging {
		t.Fatalf("expected staging, got %q", cfg.Environment)
	}
	if cfg.Database.DSN != "postgresql://db/assetproof" {
		t.Fatalf("unexpected dsn %q", cfg.Database.DSN)
	}
	if cfg.Record.ProjectID != "p-env" {
		t.Fatalf("unexpected project %q", cfg.Record.ProjectID)
	}
}

func TestAppConfigStoreReload(t *testing.T) {
	path := writeConfig(t, "aggregation:\n  stablecoins: [USDT]\n")
	initial, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	var applied []AppConfig
	store, err := NewAppConfigStore(initial, path, func(cfg AppConfig) error {
		applied = append(applied, cfg)
		return nil
	})
	if err != nil {
		t.Fatalf("NewAppConfigStore failed: %v", err)
	}

	changed, err := store.Reload(context.Background())
	if err != nil || changed {
		t.Fatalf("unchanged file must not trigger a change: changed=%v err=%v", changed, err)
	}

	if err := os.WriteFile(path, []byte("aggregation:\n  stablecoins: [USDT, DAI]\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	changed, err = store.Reload(context.Background())
	if err != nil || !changed {
		t.Fatalf("expected reload to apply: changed=%v err=%v", changed, err)
	}
	if len(applied) != 1 {
		t.Fatalf("expected one change notification, got %d", len(applied))
	}
	if got := store.Snapshot().Aggregation.Stablecoins; !reflect.DeepEqual(got, []string{"USDT", "DAI"}) {
		t.Fatalf("unexpected snapshot stablecoins %v", got)
	}

	if err := os.WriteFile(path, []byte("environment: nowhere\n"), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if _, err := store.Reload(context.Background()); err == nil || !strings.Contains(err.Error(), "environment") {
		t.Fatalf("expected invalid reload to fail, got %v", err)
	}
	if got := store.Snapshot().Aggregation.Stablecoins; len(got) != 2 {
		t.Fatalf("invalid reload must keep the previous snapshot, got %v", got)
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	store, err := NewAppConfigStore(DefaultAppConfig(), "", nil)
	if err != nil {
		t.Fatalf("NewAppConfigStore failed: %v", err)
	}
	snap := store.Snapshot()
	snap.Aggregation.Stablecoins[0] = "XXX"
	if store.Snapshot().Aggregation.Stablecoins[0] == "XXX" {
		t.Fatalf("snapshot mutation leaked into the store")
	}
	if changed, err := store.Reload(context.Background()); changed || err != nil {
		t.Fatalf("store without path must not reload: changed=%v err=%v", changed, err)
	}
}

func TestCloneKeepsEmptyStablecoinList(t *testing.T) {
	cfg, err := Parse([]byte("aggregation:\n  stablecoins: []\n"))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	clone := cfg.Clone()
	if clone.Aggregation.Stablecoins == nil || len(clone.Aggregation.Stablecoins) != 0 {
		t.Fatalf("clone must keep an explicit empty list, got %#v", clone.Aggregation.Stablecoins)
	}
}

func TestReplaceKeepsEmptyStablecoinList(t *testing.T) {
	cfg, err := Parse([]byte("aggregation:\n  stablecoins: []\n"))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	var applied []AppConfig
	store, err := NewAppConfigStore(cfg, "", func(next AppConfig) error {
		applied = append(applied, next)
		return nil
	})
	if err != nil {
		t.Fatalf("NewAppConfigStore failed: %v", err)
	}

	cfg.Record.Version = "0.2.0"
	changed, err := store.Replace(cfg)
	if err != nil || !changed {
		t.Fatalf("expected replace to apply: changed=%v err=%v", changed, err)
	}
	if len(applied) != 1 {
		t.Fatalf("expected one change notification, got %d", len(applied))
	}
	if got := applied[0].Aggregation.Stablecoins; got == nil || len(got) != 0 {
		t.Fatalf("change notification lost the empty stablecoin list: %#v", got)
	}
	if got := store.Snapshot().Aggregation.Stablecoins; got == nil || len(got) != 0 {
		t.Fatalf("snapshot lost the empty stablecoin list: %#v", got)
	}
}

func TestReplaceFillsDefaultStablecoinsWhenUnset(t *testing.T) {
	store, err := NewAppConfigStore(DefaultAppConfig(), "", nil)
	if err != nil {
		t.Fatalf("NewAppConfigStore failed: %v", err)
	}
	cfg := DefaultAppConfig()
	cfg.Aggregation.Stablecoins = nil
	if _, err := store.Replace(cfg); err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}
	if got := store.Snapshot().Aggregation.Stablecoins; !reflect.DeepEqual(got, ledger.DefaultStablecoins()) {
		t.Fatalf("unset stablecoins must mean the defaults, got %v", got)
	}
}
