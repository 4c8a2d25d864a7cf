// Package envelope validates the uniform response contract of the ledger API.
// Every endpoint replies with {"status": ..., "message": ..., "data": ...};
// the data payload carries the identifying field a workflow step extracts.
package envelope

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Errors returned by the envelope package. Together they form the validation
// family reported by IsValidationError.
var (
	// ErrStatusMismatch is returned when the HTTP status differs from the expected one.
	ErrStatusMismatch = errors.New("envelope: unexpected status code")
	// ErrMalformedBody is returned when the response body is not valid JSON.
	ErrMalformedBody = errors.New("envelope: malformed response body")
	// ErrMissingData is returned when the envelope carries no data field.
	ErrMissingData = errors.New("envelope: missing data field")
	// ErrMissingField is returned when the extract path yields no usable value.
	ErrMissingField = errors.New("envelope: missing extract field")
)

// maxDetailBytes caps how much of a response body lands in error messages.
const maxDetailBytes = 160

// Value is a field extracted from a validated envelope.
type Value struct {
	raw gjson.Result
}

// Exists reports whether the value was present in the envelope.
func (v Value) Exists() bool {
	return v.raw.Exists()
}

// String returns the value as a string.
func (v Value) String() string {
	return v.raw.String()
}

// Int returns the value as an int64.
func (v Value) Int() int64 {
	return v.raw.Int()
}

// IsNumber reports whether the value is a JSON number.
func (v Value) IsNumber() bool {
	return v.raw.Type == gjson.Number
}

// Any returns the value as a plain Go value. Whole JSON numbers come back
// as int64 so identifiers survive round trips without float formatting.
func (v Value) Any() any {
	if v.raw.Type == gjson.Number {
		if f := v.raw.Float(); f == float64(int64(f)) {
			return v.raw.Int()
		}
		return v.raw.Float()
	}
	return v.raw.Value()
}

// Validate checks a response against the envelope contract and extracts the
// field at extractPath. Both the HTTP status and the payload shape must
// agree; a correct status with a broken body fails, and vice versa.
//
// An empty extractPath checks the status code only; the body is not
// inspected. Absent, null, and empty-string fields count as missing.
func Validate(statusCode int, body []byte, expectedStatus int, extractPath string) (Value, error) {
	if statusCode != expectedStatus {
		return Value{}, fmt.Errorf("%w: want %d, got %d (%s)",
			ErrStatusMismatch, expectedStatus, statusCode, serverMessage(body))
	}

	if extractPath == "" {
		return Value{}, nil
	}

	if !gjson.ValidBytes(body) {
		return Value{}, fmt.Errorf("%w: %s", ErrMalformedBody, snippet(body))
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.Get("data").Exists() {
		return Value{}, fmt.Errorf("%w: %s", ErrMissingData, snippet(body))
	}

	field := parsed.Get(extractPath)
	switch {
	case !field.Exists(), field.Type == gjson.Null:
		return Value{}, fmt.Errorf("%w: %q not present in %s", ErrMissingField, extractPath, snippet(body))
	case field.Type == gjson.String && field.String() == "":
		return Value{}, fmt.Errorf("%w: %q is empty", ErrMissingField, extractPath)
	}

	return Value{raw: field}, nil
}

// IsValidationError reports whether err belongs to the envelope validation
// family.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrStatusMismatch) ||
		errors.Is(err, ErrMalformedBody) ||
		errors.Is(err, ErrMissingData) ||
		errors.Is(err, ErrMissingField)
}

// serverMessage pulls the envelope's message field for diagnostics, falling
// back to a body snippet when the body is not an envelope.
func serverMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "message"); msg.Exists() && msg.String() != "" {
			return msg.String()
		}
	}
	return snippet(body)
}

// snippet renders a truncated single-line view of a response body.
func snippet(body []byte) string {
	if len(body) == 0 {
		return "empty body"
	}
	if len(body) > maxDetailBytes {
		return string(body[:maxDetailBytes]) + "..."
	}
	return string(body)
}
