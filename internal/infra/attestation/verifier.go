package attestation

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/coachpo/assetproof/internal/domain/schema"
)

const signatureLen = 65

var (
	// ErrNoRecords reports an envelope without public records.
	ErrNoRecords = errors.New("attestation: no public records")
	// ErrUntrustedAttestor reports an attestor missing from the allowlist.
	ErrUntrustedAttestor = errors.New("attestation: attestor not trusted")
	// ErrURLNotAllowed reports a request outside the accepted endpoints.
	ErrURLNotAllowed = errors.New("attestation: request url not allowed")
	// ErrBadSignature reports a signature that does not recover to the attestor.
	ErrBadSignature = errors.New("attestation: bad signature")
)

// Verifier checks envelopes against a verification configuration.
type Verifier struct{}

// NewVerifier returns a verifier.
func NewVerifier() *Verifier { return &Verifier{} }

// Verify decodes blob, checks every record and returns the trusted records with the messages.
func (v *Verifier) Verify(ctx context.Context, blob string, cfg schema.VerificationConfig) (schema.VerifiedAttestation, []schema.Message, error) {
	if err := ctx.Err(); err != nil {
		return schema.VerifiedAttestation{}, nil, err
	}
	env, err := DecodeEnvelope([]byte(blob))
	if err != nil {
		return schema.VerifiedAttestation{}, nil, err
	}
	if len(env.PublicData) == 0 {
		return schema.VerifiedAttestation{}, nil, ErrNoRecords
	}
	out := schema.VerifiedAttestation{PublicData: make([]schema.AttestationRecord, 0, len(env.PublicData))}
	for i, record := range env.PublicData {
		if err := checkRecord(record, env.PrivateData.Messages, cfg); err != nil {
			return schema.VerifiedAttestation{}, nil, fmt.Errorf("record %d (task %s): %w", i, record.TaskID, err)
		}
		out.PublicData = append(out.PublicData, record.Record())
	}
	messages := make([]schema.Message, 0, len(env.PrivateData.Messages))
	for _, m := range env.PrivateData.Messages {
		messages = append(messages, schema.Message(m))
	}
	return out, messages, nil
}

func checkRecord(record SignedRecord, messages []string, cfg schema.VerificationConfig) error {
	if !trusted(record.Attestor, cfg.AttestorAddrs) {
		return fmt.Errorf("%w: %s", ErrUntrustedAttestor, record.Attestor)
	}
	for _, req := range record.Attestation.Request {
		if !allowed(req.URL, cfg.URL) {
			return fmt.Errorf("%w: %s", ErrURLNotAllowed, req.URL)
		}
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(record.Signature, "0x"))
	if err != nil || len(sig) != signatureLen {
		return fmt.Errorf("%w: malformed signature", ErrBadSignature)
	}
	pub, _, err := ecdsa.RecoverCompact(sig, Digest(record, messages))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !sameAddress(Address(pub), record.Attestor) {
		return fmt.Errorf("%w: signer %s", ErrBadSignature, Address(pub))
	}
	return nil
}

func trusted(attestor string, allowlist []string) bool {
	for _, addr := range allowlist {
		if sameAddress(addr, attestor) {
			return true
		}
	}
	return false
}

func allowed(url string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(url, p) {
			return true
		}
	}
	return false
}
