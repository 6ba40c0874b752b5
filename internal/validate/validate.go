// Package validate turns raw model output into a schema-conformant JSON
// document or a classified rejection.
//
// Validation is pure: no I/O, no clocks, no shared state. Repair of
// truncated output is strictly syntactic. It closes an unterminated string
// value and the open containers, and cuts back to the last complete element
// when input ends inside a key, after a colon or comma, or inside a number or
// literal. It never adds keys or values, so a document missing required
// fields after repair is rejected as truncated rather than accepted.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/phrazzld/genqueue/internal/domain"
)

// Result is a validated document.
type Result struct {
	// Value is the compacted JSON document.
	Value json.RawMessage
	// Repaired reports whether syntactic repair was needed.
	Repaired bool
}

// Error is a classified validation failure.
type Error struct {
	Code   domain.ErrorCode
	Detail string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// Reason is a short human readable form used in progress notes.
func (e *Error) Reason() string {
	switch e.Code {
	case domain.ErrorCodeTruncated:
		return "response truncated"
	case domain.ErrorCodeSchemaMismatch:
		return "response did not match schema"
	case domain.ErrorCodeUnparseable:
		return "response was not valid JSON"
	}
	return string(e.Code)
}

// CodeOf extracts the classification from err, or "" if err is not a
// validation Error.
func CodeOf(err error) domain.ErrorCode {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Code
	}
	return ""
}

func fail(code domain.ErrorCode, format string, args ...any) (*Result, error) {
	return nil, &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// Validate parses raw and checks it against schema.
//
// Direct parse is attempted first. A document that parses but violates
// the schema is a schema_mismatch. A document that ends inside an open
// structure is repaired and re-checked; if the repaired form still fails,
// the classification is truncated. Anything else is unparseable.
func Validate(raw string, schema *openapi3.Schema) (*Result, error) {
	text, sr, err := locate(raw)
	if err != nil {
		return fail(domain.ErrorCodeUnparseable, "%v", err)
	}

	if sr.complete {
		doc := text[:sr.end]
		value, err := decode(doc)
		if err != nil {
			return fail(domain.ErrorCodeUnparseable, "%v", err)
		}
		if err := conform(schema, value); err != nil {
			return fail(domain.ErrorCodeSchemaMismatch, "%v", err)
		}
		return &Result{Value: compact(doc)}, nil
	}

	if sr.repaired == "" {
		return fail(domain.ErrorCodeTruncated, "response ended before any complete element")
	}

	value, err := decode(sr.repaired)
	if err != nil {
		return fail(domain.ErrorCodeTruncated, "repair did not yield valid JSON: %v", err)
	}
	if err := conform(schema, value); err != nil {
		return fail(domain.ErrorCodeTruncated, "repaired response is incomplete: %v", err)
	}

	return &Result{Value: compact(sr.repaired), Repaired: true}, nil
}

// locate finds the document in raw, skipping any prose or code fence before
// it. Scanning starts at the first '{' or '['. When that candidate is
// malformed, scanning resumes at the next '{' or '[' past the error, so
// bracketed prose such as "plan [v2]:" does not hide the document after it.
// The first syntax error is reported when no candidate scans.
func locate(raw string) (string, scanResult, error) {
	text := strings.TrimSpace(raw)
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", scanResult{}, errors.New("no JSON object or array in response")
	}

	var firstErr error
	for {
		candidate := text[start:]
		sr := scan(candidate)
		if sr.syntaxErr == nil {
			return candidate, sr, nil
		}
		if firstErr == nil {
			firstErr = sr.syntaxErr
		}

		from := start + sr.errPos + 1
		if from >= len(text) {
			return "", scanResult{}, firstErr
		}
		next := strings.IndexAny(text[from:], "{[")
		if next < 0 {
			return "", scanResult{}, firstErr
		}
		start = from + next
	}
}

func decode(doc string) (any, error) {
	var value any
	if err := json.Unmarshal([]byte(doc), &value); err != nil {
		return nil, err
	}
	return value, nil
}

func conform(schema *openapi3.Schema, value any) error {
	if schema == nil {
		return nil
	}
	if err := schema.VisitJSON(value); err != nil {
		var serr *openapi3.SchemaError
		if errors.As(err, &serr) && serr.Reason != "" {
			if ptr := serr.JSONPointer(); len(ptr) > 0 {
				return fmt.Errorf("/%s: %s", strings.Join(ptr, "/"), serr.Reason)
			}
			return errors.New(serr.Reason)
		}
		return err
	}
	return nil
}

func compact(doc string) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(doc)); err != nil {
		return json.RawMessage(doc)
	}
	return json.RawMessage(buf.Bytes())
}
