// Package attestation verifies and produces signed attestation envelopes.
//
// An envelope carries one or more attested request records, each signed by its attestor with a
// compact secp256k1 signature over a Keccak-256 digest, plus the response bodies of the attested
// session. Attestors are identified by Ethereum-style addresses.
package attestation

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	json "github.com/goccy/go-json"
	"golang.org/x/crypto/sha3"

	"github.com/coachpo/assetproof/internal/domain/schema"
)

const digestDomain = "assetproof/attestation/v1"

// Envelope is the serialized attestation blob.
type Envelope struct {
	PublicData  []SignedRecord `json:"public_data"`
	PrivateData PrivateData    `json:"private_data"`
}

// SignedRecord is an attestation record with its attestor signature.
type SignedRecord struct {
	TaskID       string             `json:"taskId"`
	ReportTxHash string             `json:"reportTxHash"`
	Attestor     string             `json:"attestor"`
	Attestation  schema.Attestation `json:"attestation"`
	Signature    string             `json:"signature"`
}

// Record strips the signature.
func (r SignedRecord) Record() schema.AttestationRecord {
	return schema.AttestationRecord{
		TaskID:       r.TaskID,
		ReportTxHash: r.ReportTxHash,
		Attestor:     r.Attestor,
		Attestation:  r.Attestation,
	}
}

// PrivateData holds the attested response bodies, one per request and in request order.
type PrivateData struct {
	Messages []string `json:"messages"`
}

// NewEnvelope builds an unsigned single-record envelope of GET requests paired with messages.
func NewEnvelope(taskID string, urls, messages []string) Envelope {
	requests := make([]schema.Request, 0, len(urls))
	for _, u := range urls {
		requests = append(requests, schema.Request{URL: u, Method: "GET"})
	}
	report := sha3.NewLegacyKeccak256()
	report.Write([]byte(taskID))
	return Envelope{
		PublicData: []SignedRecord{{
			TaskID:       taskID,
			ReportTxHash: "0x" + hex.EncodeToString(report.Sum(nil)),
			Attestation:  schema.Attestation{Request: requests},
		}},
		PrivateData: PrivateData{Messages: append([]string(nil), messages...)},
	}
}

// DecodeEnvelope parses a blob.
func DecodeEnvelope(blob []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Encode serializes the envelope.
func (e Envelope) Encode() ([]byte, error) {
	out, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return out, nil
}

// Digest hashes the signed content of record together with the envelope messages.
func Digest(record SignedRecord, messages []string) []byte {
	h := sha3.NewLegacyKeccak256()
	write := func(s string) {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	write(digestDomain)
	write(record.TaskID)
	write(record.ReportTxHash)
	write(strings.ToLower(record.Attestor))
	write(fmt.Sprint(len(record.Attestation.Request)))
	for _, req := range record.Attestation.Request {
		write(req.Method)
		write(req.URL)
	}
	write(fmt.Sprint(len(messages)))
	for _, msg := range messages {
		write(msg)
	}
	return h.Sum(nil)
}

// Address derives the attestor address of a public key.
func Address(pub *secp256k1.PublicKey) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(pub.SerializeUncompressed()[1:])
	return "0x" + hex.EncodeToString(h.Sum(nil)[12:])
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
