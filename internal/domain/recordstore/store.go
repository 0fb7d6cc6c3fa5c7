// Package recordstore defines persistence contracts for emitted public records.
package recordstore

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"github.com/coachpo/assetproof/internal/domain/schema"
)

// ErrNotFound is returned when a record id is unknown.
var ErrNotFound = errors.New("record not found")

// Entry captures a persisted record.
type Entry struct {
	ID        uuid.UUID
	ProjectID string
	Status    int16
	Digest    string
	Record    schema.PublicRecord
	CreatedAt time.Time
}

// Store abstracts persistence operations for public records.
type Store interface {
	Save(ctx context.Context, record schema.PublicRecord) (Entry, error)
	Get(ctx context.Context, id uuid.UUID) (Entry, error)
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
}

// Digest returns the 0x-prefixed Keccak-256 of an encoded record.
func Digest(encoded []byte) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(encoded)
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
