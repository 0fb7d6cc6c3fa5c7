package schema

import (
	"fmt"

	json "github.com/goccy/go-json"
)

const (
	// RecordKind tags every emitted record.
	RecordKind = "asset-balance"
	// MetaKey is the reserved attestation map entry carrying invocation metadata.
	MetaKey = "__meta__"
	// MetaProjectID is the field read from the __meta__ entry.
	MetaProjectID = "projectId"
	// StablecoinKey is the reserved ledger key holding the summed stablecoin balance.
	StablecoinKey = "STABLECOIN"
)

// AttestationMeta summarises one successfully processed product call.
type AttestationMeta struct {
	TaskID       string   `json:"task_id"`
	ReportTxHash string   `json:"report_tx_hash"`
	Attestor     string   `json:"attestor"`
	BaseURLs     []string `json:"base_urls"`
	Timestamp    uint64   `json:"timestamp"`
}

// PublicRecord is the single output of an invocation.
type PublicRecord struct {
	Kind            string                        `json:"kind"`
	Version         string                        `json:"version"`
	ProjectID       string                        `json:"project_id"`
	AttestationMeta []AttestationMeta             `json:"attestation_meta"`
	AssetBalance    map[string]map[string]float64 `json:"asset_balance"`
	Status          int16                         `json:"status"`
}

// NewPublicRecord returns an empty record carrying the identity tags.
func NewPublicRecord(version, projectID string) PublicRecord {
	return PublicRecord{
		Kind:            RecordKind,
		Version:         version,
		ProjectID:       projectID,
		AttestationMeta: []AttestationMeta{},
		AssetBalance:    map[string]map[string]float64{},
		Status:          0,
	}
}

// Succeeded reports whether the record carries the success status.
func (r PublicRecord) Succeeded() bool { return r.Status == 0 }

// Encode renders the record as JSON. Map keys are emitted sorted, so equal records encode to
// identical bytes.
func (r PublicRecord) Encode() ([]byte, error) {
	out, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode public record: %w", err)
	}
	return out, nil
}

// DecodePublicRecord parses a previously encoded record.
func DecodePublicRecord(data []byte) (PublicRecord, error) {
	var r PublicRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return PublicRecord{}, fmt.Errorf("decode public record: %w", err)
	}
	return r, nil
}

// Invocation is the host input of one pipeline run: the shared verification configuration and
// the product key to attestation blob map (including the optional __meta__ entry).
type Invocation struct {
	ConfigData   string            `json:"configData"`
	Attestations map[string]string `json:"attestations"`
}

// DecodeInvocation parses a host input document.
func DecodeInvocation(data []byte) (Invocation, error) {
	var inv Invocation
	if err := json.Unmarshal(data, &inv); err != nil {
		return Invocation{}, fmt.Errorf("decode invocation: %w", err)
	}
	if inv.Attestations == nil {
		inv.Attestations = map[string]string{}
	}
	return inv, nil
}
