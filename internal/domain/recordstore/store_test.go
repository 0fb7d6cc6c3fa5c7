package recordstore

import (
	"strings"
	"testing"

	"github.com/coachpo/assetproof/internal/domain/schema"
)

func TestDigestIsStableAndKeccak(t *testing.T) {
	// Keccak-256 of the empty input.
	const empty = "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"
	if got := Digest(nil); got != empty {
		t.Fatalf("unexpected empty digest %s", got)
	}

	encoded, err := schema.NewPublicRecord("0.1.0", "p-1").Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	first := Digest(encoded)
	if first != Digest(encoded) {
		t.Fatalf("digest must be deterministic")
	}
	if !strings.HasPrefix(first, "0x") || len(first) != 66 {
		t.Fatalf("unexpected digest shape %s", first)
	}

	other, err := schema.NewPublicRecord("0.1.0", "p-2").Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if Digest(other) == first {
		t.Fatalf("different records must not share a digest")
	}
}
