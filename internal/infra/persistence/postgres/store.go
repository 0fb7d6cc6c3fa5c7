package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/assetproof/internal/infra/persistence"
)

// Store exposes the PostgreSQL-backed repositories.
type Store struct {
	*persistence.Store
	records *RecordStore
}

// New constructs a PostgreSQL persistence store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{Store: persistence.NewStore(pool), records: NewRecordStore(pool)}
}

// Records returns the public record repository.
func (s *Store) Records() *RecordStore {
	if s == nil {
		return NewRecordStore(nil)
	}
	return s.records
}
