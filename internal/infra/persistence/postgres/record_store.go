package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/assetproof/internal/domain/recordstore"
	"github.com/coachpo/assetproof/internal/domain/schema"
)

const (
	defaultRecordLimit = 20
	maxRecordLimit     = 200
	defaultSaveTries   = 4
)

const (
	recordInsertSQL = `
INSERT INTO public_records (
    id,
    kind,
    version,
    project_id,
    status,
    record,
    digest
)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
RETURNING created_at;
`

	recordGetSQL = `
SELECT
    id,
    project_id,
    status,
    record,
    digest,
    created_at
FROM public_records
WHERE id = $1;
`

	recordListRecentSQL = `
SELECT
    id,
    project_id,
    status,
    record,
    digest,
    created_at
FROM public_records
ORDER BY created_at DESC, id DESC
LIMIT $1;
`
)

// RecordStore persists emitted public records.
type RecordStore struct {
	pool     *pgxpool.Pool
	attempts int
	newID    func() uuid.UUID
}

var _ recordstore.Store = (*RecordStore)(nil)

// NewRecordStore constructs a RecordStore backed by the provided pool.
func NewRecordStore(pool *pgxpool.Pool) *RecordStore {
	return &RecordStore{pool: pool, attempts: defaultSaveTries, newID: uuid.New}
}

// Save inserts record under a fresh id. Transient failures are retried with exponential backoff.
func (s *RecordStore) Save(ctx context.Context, record schema.PublicRecord) (recordstore.Entry, error) {
	if s.pool == nil {
		return recordstore.Entry{}, fmt.Errorf("record store: nil pool")
	}
	encoded, err := record.Encode()
	if err != nil {
		return recordstore.Entry{}, err
	}
	entry := recordstore.Entry{
		ID:        s.newID(),
		ProjectID: record.ProjectID,
		Status:    record.Status,
		Digest:    recordstore.Digest(encoded),
		Record:    record,
		CreatedAt: time.Time{},
	}

	err = withRetry(ctx, s.attempts, func(ctx context.Context) error {
		return s.pool.QueryRow(ctx, recordInsertSQL,
			entry.ID,
			record.Kind,
			record.Version,
			record.ProjectID,
			record.Status,
			string(encoded),
			entry.Digest,
		).Scan(&entry.CreatedAt)
	})
	if err != nil {
		return recordstore.Entry{}, fmt.Errorf("insert public record: %w", err)
	}
	return entry, nil
}

// Get loads one record by id.
func (s *RecordStore) Get(ctx context.Context, id uuid.UUID) (recordstore.Entry, error) {
	if s.pool == nil {
		return recordstore.Entry{}, fmt.Errorf("record store: nil pool")
	}
	entry, err := scanEntry(s.pool.QueryRow(ctx, recordGetSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return recordstore.Entry{}, recordstore.ErrNotFound
		}
		return recordstore.Entry{}, fmt.Errorf("get public record: %w", err)
	}
	return entry, nil
}

// ListRecent returns the newest records first.
func (s *RecordStore) ListRecent(ctx context.Context, limit int) ([]recordstore.Entry, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("record store: nil pool")
	}
	rows, err := s.pool.Query(ctx, recordListRecentSQL, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list public records: %w", err)
	}
	defer rows.Close()

	entries := make([]recordstore.Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan public record: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate public records: %w", err)
	}
	return entries, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultRecordLimit
	case limit > maxRecordLimit:
		return maxRecordLimit
	default:
		return limit
	}
}

func scanEntry(row pgx.Row) (recordstore.Entry, error) {
	var (
		entry recordstore.Entry
		raw   []byte
	)
	if err := row.Scan(&entry.ID, &entry.ProjectID, &entry.Status, &raw, &entry.Digest, &entry.CreatedAt); err != nil {
		return recordstore.Entry{}, err
	}
	record, err := schema.DecodePublicRecord(raw)
	if err != nil {
		return recordstore.Entry{}, err
	}
	entry.Record = record
	return entry, nil
}
