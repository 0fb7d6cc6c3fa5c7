// Package batch runs independent invocations read from a directory and writes one record per
// input.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/coachpo/assetproof/internal/domain/recordstore"
	"github.com/coachpo/assetproof/internal/domain/schema"
)

// DoneDir is the inbox subdirectory processed inputs are moved to when archiving.
const DoneDir = "done"

const inputExt = ".json"

// Processor turns one encoded invocation into a public record.
type Processor interface {
	Process(ctx context.Context, input []byte) (schema.PublicRecord, error)
}

// Options configures a Runner.
type Options struct {
	Processor Processor
	Store     recordstore.Store
	Logger    *zerolog.Logger
	Workers   int
	Archive   bool
}

// Result describes the outcome of one input file.
type Result struct {
	Input    string
	Output   string
	Status   int16
	RecordID string
	Err      error
}

// Summary collects the results of one run, sorted by input path.
type Summary struct {
	Results []Result
}

// Failed counts inputs that could not be turned into a record file.
func (s Summary) Failed() int {
	n := 0
	for _, r := range s.Results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// Runner processes directories of invocations with bounded parallelism.
type Runner struct {
	processor Processor
	store     recordstore.Store
	logger    zerolog.Logger
	workers   int
	archive   bool
}

// NewRunner validates opts.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Processor == nil {
		return nil, errors.New("batch: processor required")
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Runner{
		processor: opts.Processor,
		store:     opts.Store,
		logger:    logger.With().Str("component", "batch").Logger(),
		workers:   workers,
		archive:   opts.Archive,
	}, nil
}

// Run processes every *.json file directly under inDir and writes the records under outDir
// with the same base name. Per-file failures are reported in the summary; only setup failures
// are returned as errors.
func (r *Runner) Run(ctx context.Context, inDir, outDir string) (Summary, error) {
	inputs, err := listInputs(inDir)
	if err != nil {
		return Summary{}, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("create output directory: %w", err)
	}
	if r.archive && len(inputs) > 0 {
		if err := os.MkdirAll(filepath.Join(inDir, DoneDir), 0o755); err != nil {
			return Summary{}, fmt.Errorf("create archive directory: %w", err)
		}
	}

	p := pool.NewWithResults[Result]().WithMaxGoroutines(r.workers)
	for _, input := range inputs {
		path := input
		p.Go(func() Result {
			return r.processFile(ctx, inDir, outDir, path)
		})
	}
	results := p.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].Input < results[j].Input })

	summary := Summary{Results: results}
	r.logger.Info().
		Int("inputs", len(results)).
		Int("failed", summary.Failed()).
		Str("in", inDir).
		Msg("batch completed")
	return summary, nil
}

func (r *Runner) processFile(ctx context.Context, inDir, outDir, path string) Result {
	result := Result{Input: path}
	if err := ctx.Err(); err != nil {
		result.Err = err
		return result
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		result.Err = fmt.Errorf("read input: %w", err)
		return result
	}
	record, err := r.processor.Process(ctx, raw)
	if err != nil {
		result.Err = err
		r.logger.Warn().Err(err).Str("input", path).Msg("input rejected")
		r.archiveInput(inDir, path)
		return result
	}
	result.Status = record.Status

	encoded, err := record.Encode()
	if err != nil {
		result.Err = err
		return result
	}
	result.Output = filepath.Join(outDir, filepath.Base(path))
	if err := writeFileAtomic(result.Output, encoded); err != nil {
		result.Err = err
		return result
	}

	if r.store != nil {
		entry, err := r.store.Save(ctx, record)
		if err != nil {
			result.Err = fmt.Errorf("persist record: %w", err)
			return result
		}
		result.RecordID = entry.ID.String()
	}
	r.archiveInput(inDir, path)
	return result
}

func (r *Runner) archiveInput(inDir, path string) {
	if !r.archive {
		return
	}
	target := filepath.Join(inDir, DoneDir, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		r.logger.Warn().Err(err).Str("input", path).Msg("archive input")
	}
}

func listInputs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}
	inputs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), inputExt) {
			continue
		}
		inputs = append(inputs, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(inputs)
	return inputs, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".record-*")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close record: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish record: %w", err)
	}
	return nil
}
