// Package pipeline assembles the public record of one invocation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/coachpo/assetproof/errs"
	"github.com/coachpo/assetproof/internal/app/ledger"
	"github.com/coachpo/assetproof/internal/app/processor"
	"github.com/coachpo/assetproof/internal/domain/schema"
	"github.com/coachpo/assetproof/internal/infra/telemetry"
)

// DefaultVersion is the record version emitted when none is configured.
const DefaultVersion = "0.1.0"

// Options configures an Assembler. Zero fields take defaults.
type Options struct {
	Verifier    processor.Verifier
	Registry    *processor.Registry
	Logger      *zerolog.Logger
	Metrics     *Metrics
	Version     string
	ProjectID   string
	Stablecoins []string
	Epsilon     float64
}

// Assembler turns invocations into public records. It holds no per-invocation state and is
// safe for concurrent use.
type Assembler struct {
	verifier    processor.Verifier
	registry    *processor.Registry
	logger      zerolog.Logger
	metrics     *Metrics
	version     string
	projectID   string
	stablecoins ledger.StablecoinSet
	epsilon     float64
}

// New validates opts and returns an assembler.
func New(opts Options) (*Assembler, error) {
	if opts.Verifier == nil {
		return nil, errors.New("pipeline: verifier required")
	}
	registry := opts.Registry
	if registry == nil {
		var err error
		if registry, err = processor.NewDefaultRegistry(nil); err != nil {
			return nil, fmt.Errorf("pipeline: product table: %w", err)
		}
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	version := opts.Version
	if version == "" {
		version = DefaultVersion
	}
	stablecoins := opts.Stablecoins
	if stablecoins == nil {
		stablecoins = ledger.DefaultStablecoins()
	}
	epsilon := opts.Epsilon
	if epsilon == 0 {
		epsilon = ledger.DefaultEpsilon
	}
	if epsilon < 0 || math.IsNaN(epsilon) {
		return nil, fmt.Errorf("pipeline: epsilon must be positive, got %v", epsilon)
	}
	return &Assembler{
		verifier:    opts.Verifier,
		registry:    registry,
		logger:      logger.With().Str("component", "pipeline").Logger(),
		metrics:     opts.Metrics,
		version:     version,
		projectID:   opts.ProjectID,
		stablecoins: ledger.NewStablecoinSet(stablecoins),
		epsilon:     epsilon,
	}, nil
}

// Process decodes a host input document and runs it.
func (a *Assembler) Process(ctx context.Context, input []byte) (schema.PublicRecord, error) {
	inv, err := schema.DecodeInvocation(input)
	if err != nil {
		return schema.PublicRecord{}, err
	}
	return a.Run(ctx, inv), nil
}

// Run assembles the record of inv. Pipeline failures never escape: they are reported through the
// record status with empty metadata and balances.
func (a *Assembler) Run(ctx context.Context, inv schema.Invocation) schema.PublicRecord {
	start := time.Now()
	record := schema.NewPublicRecord(a.version, a.projectID)

	metas, balances, err := a.assemble(ctx, inv, &record)
	if err != nil {
		record.Status = a.fail(record.ProjectID, err)
	} else {
		record.AttestationMeta = metas
		record.AssetBalance = balances
		a.logger.Info().
			Str("project", record.ProjectID).
			Int("metas", len(metas)).
			Int("exchanges", len(balances)).
			Msg("record emitted")
	}
	a.metrics.recordInvocation(ctx, record.Status, time.Since(start))
	return record
}

func (a *Assembler) assemble(ctx context.Context, inv schema.Invocation, record *schema.PublicRecord) ([]schema.AttestationMeta, map[string]map[string]float64, error) {
	projectID, err := resolveProjectID(inv.Attestations, record.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	record.ProjectID = projectID

	cfg, err := schema.ParseVerificationConfig([]byte(inv.ConfigData))
	if err != nil {
		return nil, nil, errs.New(errs.CodeParseConfigData, errs.WithCause(err))
	}

	metas := []schema.AttestationMeta{}
	balances := make(map[string]map[string]float64)
	for _, exchange := range a.registry.Exchanges() {
		exchangeLedger := ledger.New()
		for _, product := range a.registry.Products(exchange) {
			key := product.Spec().Key
			blob, ok := inv.Attestations[key]
			if !ok {
				continue
			}
			res, err := product.Run(ctx, a.verifier, blob, cfg)
			if err != nil {
				a.metrics.recordProduct(ctx, exchange, key, resultName(err), 0)
				return nil, nil, err
			}
			a.metrics.recordProduct(ctx, exchange, key, telemetry.ResultOK, res.Requests)
			a.logger.Debug().
				Str("product", key).
				Int("requests", res.Requests).
				Int("skipped", res.Skipped).
				Uint64("timestamp", res.Meta.Timestamp).
				Msg("product verified")
			metas = append(metas, res.Meta)
			exchangeLedger.Apply(res.Postings)
		}
		balances[exchange] = ledger.Categorize(exchangeLedger, a.stablecoins, a.epsilon)
	}
	return metas, balances, nil
}

func (a *Assembler) fail(projectID string, err error) int16 {
	code, ok := errs.CodeOf(err)
	if !ok || !code.Valid() {
		// Only verifier-side errors can arrive without a code.
		code = errs.CodeVerifyAttestation
	}
	event := a.logger.Error().
		Int("code", int(code)).
		Str("kind", code.String()).
		Str("project", projectID)
	var e *errs.E
	if errors.As(err, &e) {
		event = event.Str("message", e.Message)
		if e.Product != "" {
			event = event.Str("product", e.Product)
		}
	} else {
		event = event.Str("message", err.Error())
	}
	event.Msg("record failed")
	return int16(code)
}

func resolveProjectID(attestations map[string]string, fallback string) (string, error) {
	raw, ok := attestations[schema.MetaKey]
	if !ok {
		return fallback, nil
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return fallback, errs.New(errs.CodeParseMetaData, errs.WithCause(err))
	}
	if meta == nil {
		return fallback, errs.New(errs.CodeParseMetaData, errs.WithMessage("meta must be an object"))
	}
	projectID, ok := meta[schema.MetaProjectID]
	if !ok {
		return fallback, errs.New(errs.CodeMissingProjectID)
	}
	return projectID, nil
}

func resultName(err error) string {
	if code, ok := errs.CodeOf(err); ok {
		return code.String()
	}
	return "error"
}
