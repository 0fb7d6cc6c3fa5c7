// Package errs provides the closed set of pipeline failure codes and the error envelope carrying them.
package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Code identifies a pipeline failure category. The numeric values are published in
// PublicRecord.status and must never be renumbered.
type Code int16

// OK is the success sentinel written to PublicRecord.status.
const OK Code = 0

const (
	// CodeParseConfigData indicates the verification configuration could not be decoded.
	CodeParseConfigData Code = 1001 + iota
	// CodeVerifyAttestation indicates the attestation verifier rejected the blob.
	CodeVerifyAttestation
	// CodeInvalidRequestLength indicates a request count the product layout cannot accept.
	CodeInvalidRequestLength
	// CodeInvalidMessagesLength indicates request and message counts differ.
	CodeInvalidMessagesLength
	// CodeGetJSONValueFail indicates a path query could not be evaluated.
	CodeGetJSONValueFail
	// CodeInvalidJSONValueSize indicates a path query returned an unexpected number of values.
	CodeInvalidJSONValueSize
	// CodeCannotFoundTimestamp indicates a request URL without a timestamp parameter.
	CodeCannotFoundTimestamp
	// CodeParseTimestampFailed indicates a non-numeric timestamp parameter.
	CodeParseTimestampFailed
	// CodeInvalidRequestOrder indicates endpoints appearing out of their alternating order.
	CodeInvalidRequestOrder
	// CodeInvalidRequestURL indicates a request URL matching none of the product endpoints.
	CodeInvalidRequestURL
	// CodeDuplicateAccount indicates two requests resolving to the same account key.
	CodeDuplicateAccount
	// CodeParseMetaData indicates a malformed __meta__ entry.
	CodeParseMetaData
	// CodeMissingProjectID indicates a __meta__ entry without projectId.
	CodeMissingProjectID
)

var codeNames = map[Code]string{
	OK:                        "OK",
	CodeParseConfigData:       "ParseConfigData",
	CodeVerifyAttestation:     "VerifyAttestation",
	CodeInvalidRequestLength:  "InvalidRequestLength",
	CodeInvalidMessagesLength: "InvalidMessagesLength",
	CodeGetJSONValueFail:      "GetJsonValueFail",
	CodeInvalidJSONValueSize:  "InvalidJsonValueSize",
	CodeCannotFoundTimestamp:  "CannotFoundTimestamp",
	CodeParseTimestampFailed:  "ParseTimestampFailed",
	CodeInvalidRequestOrder:   "InvalidRequestOrder",
	CodeInvalidRequestURL:     "InvalidRequestUrl",
	CodeDuplicateAccount:      "DuplicateAccount",
	CodeParseMetaData:         "ParseMetaData",
	CodeMissingProjectID:      "MissingProjectId",
}

// String returns the canonical failure name.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "Code(" + strconv.Itoa(int(c)) + ")"
}

// Valid reports whether the code belongs to the closed enumeration.
func (c Code) Valid() bool {
	_, ok := codeNames[c]
	return ok
}

// E captures a pipeline failure with its code and optional context.
type E struct {
	Code    Code
	Product string
	Message string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the code. Without WithMessage the code name doubles as message.
func New(code Code, opts ...Option) *E {
	e := &E{
		Code:    code,
		Product: "",
		Message: "",
		cause:   nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.Message == "" {
		e.Message = code.String()
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithProduct records the product key being processed when the failure occurred.
func WithProduct(product string) Option {
	trimmed := strings.TrimSpace(product)
	return func(e *E) {
		e.Product = trimmed
	}
}

// WithCause sets the underlying cause error. The cause text becomes the message when none is set.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
		if err != nil && e.Message == "" {
			e.Message = strings.TrimSpace(err.Error())
		}
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	parts := make([]string, 0, 4)
	parts = append(parts, "code="+strconv.Itoa(int(e.Code)), "kind="+e.Code.String())
	if e.Product != "" {
		parts = append(parts, "product="+e.Product)
	}
	if e.Message != "" && e.Message != e.Code.String() {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// CodeOf extracts the failure code carried by err. Nil maps to OK; errors without an envelope
// report ok=false.
func CodeOf(err error) (Code, bool) {
	if err == nil {
		return OK, true
	}
	var e *E
	if errors.As(err, &e) && e != nil {
		return e.Code, true
	}
	return OK, false
}
