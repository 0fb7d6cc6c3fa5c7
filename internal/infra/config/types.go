package config

import "strings"

// Environment identifies the runtime environment assetproof runs in.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// Environment variables consulted after the YAML file.
const (
	EnvVarEnvironment = "ASSETPROOF_ENV"
	EnvVarDatabaseDSN = "ASSETPROOF_DATABASE_DSN"
	EnvVarProjectID   = "ASSETPROOF_PROJECT_ID"
	EnvVarOTLPEnabled = "OTEL_ENABLED"
	EnvVarOTLPURL     = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

func normalizeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		upper := strings.ToUpper(strings.TrimSpace(s))
		if upper == "" {
			continue
		}
		if _, ok := seen[upper]; ok {
			continue
		}
		seen[upper] = struct{}{}
		out = append(out, upper)
	}
	return out
}
