package processor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/coachpo/assetproof/errs"
	"github.com/coachpo/assetproof/internal/app/correlate"
	"github.com/coachpo/assetproof/internal/app/dedup"
	"github.com/coachpo/assetproof/internal/app/extract"
	"github.com/coachpo/assetproof/internal/app/ledger"
	"github.com/coachpo/assetproof/internal/domain/schema"
)

const balanceColumns = 3

// Verifier checks an attestation blob against a configuration and returns the trusted
// request records with their response bodies.
type Verifier interface {
	Verify(ctx context.Context, blob string, cfg schema.VerificationConfig) (schema.VerifiedAttestation, []schema.Message, error)
}

// Result is the outcome of one successful product call.
type Result struct {
	Meta   schema.AttestationMeta
	Ledger ledger.Ledger
	// Postings lists the balance contributions in response order; replaying them keeps the
	// exchange totals in arrival order.
	Postings []ledger.Posting
	Requests int
	Skipped  int
}

type compiledStep struct {
	Step
	identity []extract.Path
	balance  []extract.Path
	columns  []extract.Path
}

// Product is a compiled Spec ready to process attestations.
type Product struct {
	spec  Spec
	steps []compiledStep
}

// Compile validates spec and compiles its path expressions.
func Compile(spec Spec) (*Product, error) {
	if spec.Key == "" || spec.Exchange == "" {
		return nil, fmt.Errorf("product spec requires key and exchange")
	}
	if len(spec.Endpoints) == 0 {
		return nil, fmt.Errorf("product %s: no endpoints", spec.Key)
	}
	if len(spec.Steps) != len(spec.Endpoints) {
		return nil, fmt.Errorf("product %s: %d steps for %d endpoints", spec.Key, len(spec.Steps), len(spec.Endpoints))
	}
	p := &Product{spec: spec, steps: make([]compiledStep, 0, len(spec.Steps))}
	for j, step := range spec.Steps {
		cs := compiledStep{Step: step}
		var err error
		if len(step.BalancePaths) != 0 && len(step.BalancePaths) != balanceColumns {
			return nil, fmt.Errorf("product %s step %d: balance needs %d paths", spec.Key, j, balanceColumns)
		}
		if len(step.BalancePaths) > 0 && step.Combine == nil {
			return nil, fmt.Errorf("product %s step %d: combine function required", spec.Key, j)
		}
		if step.Cardinality != IdentityNone && len(step.IdentityPaths) == 0 {
			return nil, fmt.Errorf("product %s step %d: identity paths required", spec.Key, j)
		}
		if cs.identity, err = extract.CompileAll(step.IdentityPaths...); err != nil {
			return nil, fmt.Errorf("product %s step %d identity: %w", spec.Key, j, err)
		}
		if cs.balance, err = extract.CompileAll(step.BalancePaths...); err != nil {
			return nil, fmt.Errorf("product %s step %d balance: %w", spec.Key, j, err)
		}
		if cs.columns, err = extract.CompileAll(step.KeyColumns...); err != nil {
			return nil, fmt.Errorf("product %s step %d key columns: %w", spec.Key, j, err)
		}
		p.steps = append(p.steps, cs)
	}
	return p, nil
}

// Spec returns the product description Compile was given.
func (p *Product) Spec() Spec { return p.spec }

// Run verifies blob and folds its responses into a fresh product ledger.
func (p *Product) Run(ctx context.Context, verifier Verifier, blob string, cfg schema.VerificationConfig) (Result, error) {
	res, err := p.run(ctx, verifier, blob, cfg)
	if err != nil {
		return Result{}, p.tag(err)
	}
	return res, nil
}

func (p *Product) run(ctx context.Context, verifier Verifier, blob string, cfg schema.VerificationConfig) (Result, error) {
	attestation, messages, err := verifier.Verify(ctx, blob, cfg.WithURLs(p.spec.Endpoints))
	if err != nil {
		return Result{}, errs.New(errs.CodeVerifyAttestation, errs.WithProduct(p.spec.Key), errs.WithCause(err))
	}
	if len(attestation.PublicData) == 0 {
		return Result{}, errs.New(errs.CodeVerifyAttestation, errs.WithProduct(p.spec.Key),
			errs.WithMessage("no attestation records"))
	}
	record := attestation.PublicData[0]
	res := Result{
		Meta: schema.AttestationMeta{
			TaskID:       record.TaskID,
			ReportTxHash: record.ReportTxHash,
			Attestor:     record.Attestor,
			BaseURLs:     append([]string(nil), p.spec.Endpoints...),
			Timestamp:    0,
		},
		Ledger:   ledger.New(),
		Postings: nil,
		Requests: len(record.Attestation.Request),
		Skipped:  0,
	}

	requests := record.Attestation.Request
	if p.spec.Alternating() && len(requests)%len(p.spec.Endpoints) != 0 {
		return Result{}, errs.New(errs.CodeInvalidRequestLength, errs.WithProduct(p.spec.Key),
			errs.WithMessage(strconv.Itoa(len(requests))+" requests"))
	}
	if len(requests) != len(messages) {
		return Result{}, errs.New(errs.CodeInvalidMessagesLength, errs.WithProduct(p.spec.Key),
			errs.WithMessage(fmt.Sprintf("%d requests, %d messages", len(requests), len(messages))))
	}

	var window correlate.Window
	var keys []string
	for i, req := range requests {
		ts, err := correlate.Timestamp(req.URL)
		if err != nil {
			return Result{}, err
		}
		window.Observe(ts)
		j, err := correlate.Match(i, req.URL, p.spec.Endpoints)
		if err != nil {
			return Result{}, err
		}
		key, ok, skipped, err := p.steps[j].apply(messages[i].Bytes(), &res)
		if err != nil {
			return Result{}, err
		}
		if skipped {
			res.Skipped++
			continue
		}
		if ok {
			keys = append(keys, key)
		}
	}
	if err := dedup.Check(keys); err != nil {
		return Result{}, err
	}
	res.Meta.Timestamp = window.Min()
	return res, nil
}

// apply reads one response. skipped reports a response without identity rows.
func (s compiledStep) apply(msg []byte, dst *Result) (key string, ok, skipped bool, err error) {
	in := KeyInput{}
	if s.Cardinality != IdentityNone {
		values, err := extract.Extract(msg, s.identity)
		if err != nil {
			return "", false, false, err
		}
		switch {
		case s.Cardinality == IdentityExactlyOne && len(values) != 1:
			return "", false, false, sizeError("identity", len(values))
		case s.Cardinality == IdentityAtLeastOne && len(values) == 0:
			return "", false, true, nil
		}
		in.Identity = unquoteAll(values)
	}

	if len(s.balance) > 0 {
		values, err := extract.Extract(msg, s.balance)
		if err != nil {
			return "", false, false, err
		}
		cols, err := columns(values, len(s.balance))
		if err != nil {
			return "", false, false, err
		}
		in.Rows = make([]Row, 0, len(cols))
		for _, c := range cols {
			row := Row{Asset: upperASCII(c[0]), A: parseAmount(c[1]), B: parseAmount(c[2])}
			posting := ledger.Posting{Asset: row.Asset, Amount: s.Combine(row.A, row.B)}
			dst.Ledger.Add(posting.Asset, posting.Amount)
			dst.Postings = append(dst.Postings, posting)
			in.Rows = append(in.Rows, row)
		}
	}

	if len(s.columns) > 0 {
		values, err := extract.Extract(msg, s.columns)
		if err != nil {
			return "", false, false, err
		}
		if in.Columns, err = columns(values, len(s.columns)); err != nil {
			return "", false, false, err
		}
	}

	if s.Key == nil {
		return "", false, false, nil
	}
	key, ok = s.Key(in)
	return key, ok, false, nil
}

// columns regroups the path-major values of width paths into unquoted rows.
func columns(values []string, width int) ([][]string, error) {
	if len(values)%width != 0 {
		return nil, sizeError("columns", len(values))
	}
	size := len(values) / width
	rows := make([][]string, size)
	for j := 0; j < size; j++ {
		row := make([]string, width)
		for c := 0; c < width; c++ {
			row[c] = extract.Unquote(values[c*size+j])
		}
		rows[j] = row
	}
	return rows, nil
}

func sizeError(what string, n int) error {
	return errs.New(errs.CodeInvalidJSONValueSize, errs.WithMessage(fmt.Sprintf("%s: %d values", what, n)))
}

func (p *Product) tag(err error) error {
	var e *errs.E
	if errors.As(err, &e) && e.Product == "" {
		e.Product = p.spec.Key
	}
	return err
}

// parseAmount reads a decimal amount. Anything unparsable or non-finite counts as zero.
func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}

func unquoteAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = extract.Unquote(v)
	}
	return out
}

func upperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'a' <= c && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}
