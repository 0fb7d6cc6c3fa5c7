// Package schema defines the attestation inputs and public record shapes shared across the pipeline.
package schema

import (
	"fmt"

	json "github.com/goccy/go-json"
)

const (
	configFieldAttestors = "attestor_addrs"
	configFieldURL       = "url"
)

// VerificationConfig is the configuration handed to the attestation verifier. Only the accepted
// endpoint list and the attestor allowlist are interpreted here; any other field survives a
// decode/encode round trip untouched.
type VerificationConfig struct {
	AttestorAddrs []string
	URL           []string

	extra map[string]json.RawMessage
}

// ParseVerificationConfig decodes the serialized configuration blob.
func ParseVerificationConfig(data []byte) (VerificationConfig, error) {
	var cfg VerificationConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return VerificationConfig{}, err
	}
	return cfg, nil
}

// UnmarshalJSON decodes known fields and retains the rest.
func (c *VerificationConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("verification config must be a JSON object")
	}
	var cfg VerificationConfig
	if field, ok := raw[configFieldAttestors]; ok {
		if err := json.Unmarshal(field, &cfg.AttestorAddrs); err != nil {
			return fmt.Errorf("%s: %w", configFieldAttestors, err)
		}
		delete(raw, configFieldAttestors)
	}
	if field, ok := raw[configFieldURL]; ok {
		if err := json.Unmarshal(field, &cfg.URL); err != nil {
			return fmt.Errorf("%s: %w", configFieldURL, err)
		}
		delete(raw, configFieldURL)
	}
	if len(raw) > 0 {
		cfg.extra = raw
	}
	*c = cfg
	return nil
}

// MarshalJSON re-emits known fields together with retained unknown ones.
func (c VerificationConfig) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.extra)+2)
	for k, v := range c.extra {
		out[k] = v
	}
	attestors := c.AttestorAddrs
	if attestors == nil {
		attestors = []string{}
	}
	urls := c.URL
	if urls == nil {
		urls = []string{}
	}
	out[configFieldAttestors] = attestors
	out[configFieldURL] = urls
	return json.Marshal(out)
}

// WithURLs returns a deep copy of the configuration whose accepted endpoint list is replaced.
func (c VerificationConfig) WithURLs(urls []string) VerificationConfig {
	clone := VerificationConfig{
		AttestorAddrs: append([]string(nil), c.AttestorAddrs...),
		URL:           append([]string(nil), urls...),
		extra:         nil,
	}
	if len(c.extra) > 0 {
		clone.extra = make(map[string]json.RawMessage, len(c.extra))
		for k, v := range c.extra {
			clone.extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return clone
}

// Request describes one attested HTTP call.
type Request struct {
	URL    string `json:"url"`
	Method string `json:"method,omitempty"`
}

// Attestation groups the attested requests of a record.
type Attestation struct {
	Request []Request `json:"request"`
}

// AttestationRecord is one trust-checked public entry produced by the verifier.
type AttestationRecord struct {
	TaskID       string      `json:"taskId"`
	ReportTxHash string      `json:"reportTxHash"`
	Attestor     string      `json:"attestor"`
	Attestation  Attestation `json:"attestation"`
}

// VerifiedAttestation is the verifier output consumed by the product processors.
type VerifiedAttestation struct {
	PublicData []AttestationRecord `json:"public_data"`
}

// Message is a verified response body paired positionally with a request.
type Message []byte

// Bytes exposes the raw body.
func (m Message) Bytes() []byte { return []byte(m) }
