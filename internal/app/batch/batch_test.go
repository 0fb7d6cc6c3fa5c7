package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/assetproof/internal/domain/recordstore"
	"github.com/coachpo/assetproof/internal/domain/schema"
)

type stubProcessor struct{}

func (stubProcessor) Process(_ context.Context, input []byte) (schema.PublicRecord, error) {
	inv, err := schema.DecodeInvocation(input)
	if err != nil {
		return schema.PublicRecord{}, err
	}
	record := schema.NewPublicRecord("0.1.0", inv.ConfigData)
	if inv.ConfigData == "broken" {
		record.Status = 1001
	}
	return record, nil
}

type countingStore struct {
	mu    sync.Mutex
	saved []schema.PublicRecord
}

func (c *countingStore) Save(_ context.Context, record schema.PublicRecord) (recordstore.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saved = append(c.saved, record)
	return recordstore.Entry{ID: uuid.New(), ProjectID: record.ProjectID, Record: record, CreatedAt: time.Now()}, nil
}

func (c *countingStore) Get(context.Context, uuid.UUID) (recordstore.Entry, error) {
	return recordstore.Entry{}, recordstore.ErrNotFound
}

func (c *countingStore) ListRecent(context.Context, int) ([]recordstore.Entry, error) {
	return nil, nil
}

func writeInput(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestRunnerProcessesDirectory(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "records")
	writeInput(t, in, "a.json", `{"configData":"p-a","attestations":{}}`)
	writeInput(t, in, "b.json", `not json`)
	writeInput(t, in, "c.JSON", `{"configData":"broken","attestations":{}}`)
	writeInput(t, in, "notes.txt", `ignored`)

	store := &countingStore{}
	runner, err := NewRunner(Options{Processor: stubProcessor{}, Store: store, Workers: 2, Archive: true})
	require.NoError(t, err)

	summary, err := runner.Run(context.Background(), in, out)
	require.NoError(t, err)
	require.Len(t, summary.Results, 3)
	require.Equal(t, 1, summary.Failed())

	first := summary.Results[0]
	require.Equal(t, filepath.Join(in, "a.json"), first.Input)
	require.NoError(t, first.Err)
	require.NotEmpty(t, first.RecordID)
	written, err := os.ReadFile(filepath.Join(out, "a.json"))
	require.NoError(t, err)
	record, err := schema.DecodePublicRecord(written)
	require.NoError(t, err)
	require.Equal(t, "p-a", record.ProjectID)

	require.Error(t, summary.Results[1].Err)
	require.Empty(t, summary.Results[1].Output)
	require.EqualValues(t, 1001, summary.Results[2].Status)
	require.NoError(t, summary.Results[2].Err)

	require.Len(t, store.saved, 2)

	for _, name := range []string{"a.json", "b.json", "c.JSON"} {
		_, err := os.Stat(filepath.Join(in, DoneDir, name))
		require.NoError(t, err, name)
		_, err = os.Stat(filepath.Join(in, name))
		require.True(t, errors.Is(err, os.ErrNotExist), name)
	}
	_, err = os.Stat(filepath.Join(in, "notes.txt"))
	require.NoError(t, err)
}

func TestRunnerWithoutArchiveLeavesInputs(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	writeInput(t, in, "a.json", `{"configData":"p-a","attestations":{}}`)

	runner, err := NewRunner(Options{Processor: stubProcessor{}})
	require.NoError(t, err)
	summary, err := runner.Run(context.Background(), in, out)
	require.NoError(t, err)
	require.Equal(t, 0, summary.Failed())

	_, err = os.Stat(filepath.Join(in, "a.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(in, DoneDir))
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRunnerEmptyDirectory(t *testing.T) {
	runner, err := NewRunner(Options{Processor: stubProcessor{}, Archive: true})
	require.NoError(t, err)
	summary, err := runner.Run(context.Background(), t.TempDir(), t.TempDir())
	require.NoError(t, err)
	require.Empty(t, summary.Results)
}

func TestRunnerCancelledContext(t *testing.T) {
	in := t.TempDir()
	writeInput(t, in, "a.json", `{"configData":"p-a","attestations":{}}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner, err := NewRunner(Options{Processor: stubProcessor{}})
	require.NoError(t, err)
	summary, err := runner.Run(ctx, in, t.TempDir())
	require.NoError(t, err)
	require.ErrorIs(t, summary.Results[0].Err, context.Canceled)
}

func TestRunnerSetupErrors(t *testing.T) {
	_, err := NewRunner(Options{})
	require.Error(t, err)

	runner, err := NewRunner(Options{Processor: stubProcessor{}})
	require.NoError(t, err)
	_, err = runner.Run(context.Background(), filepath.Join(t.TempDir(), "missing"), t.TempDir())
	require.Error(t, err)
}
