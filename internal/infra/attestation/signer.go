package attestation

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Signer seals envelopes with one attestor key.
type Signer struct {
	key     *secp256k1.PrivateKey
	address string
}

// NewSigner wraps an existing key.
func NewSigner(key *secp256k1.PrivateKey) *Signer {
	return &Signer{key: key, address: Address(key.PubKey())}
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate attestor key: %w", err)
	}
	return NewSigner(key), nil
}

// ParseSigner builds a signer from a hex encoded 32 byte private key.
func ParseSigner(hexKey string) (*Signer, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode attestor key: %w", err)
	}
	if len(raw) != secp256k1.PrivKeyBytesLen {
		return nil, fmt.Errorf("attestor key must be %d bytes, got %d", secp256k1.PrivKeyBytesLen, len(raw))
	}
	return NewSigner(secp256k1.PrivKeyFromBytes(raw)), nil
}

// Address returns the attestor address of the signer.
func (s *Signer) Address() string { return s.address }

// KeyHex exports the private key.
func (s *Signer) KeyHex() string {
	return hex.EncodeToString(s.key.Serialize())
}

// Seal stamps the signer address on every record and signs it.
func (s *Signer) Seal(env Envelope) Envelope {
	sealed := Envelope{
		PublicData:  make([]SignedRecord, len(env.PublicData)),
		PrivateData: PrivateData{Messages: append([]string(nil), env.PrivateData.Messages...)},
	}
	for i, record := range env.PublicData {
		record.Attestor = s.address
		sig := ecdsa.SignCompact(s.key, Digest(record, sealed.PrivateData.Messages), false)
		record.Signature = "0x" + hex.EncodeToString(sig)
		sealed.PublicData[i] = record
	}
	return sealed
}

// SealBlob seals env and serializes it.
func (s *Signer) SealBlob(env Envelope) (string, error) {
	out, err := s.Seal(env).Encode()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
