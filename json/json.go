// Package json is the payload codec of the server: encoding through
// goccy/go-json and decoding followed by `validate` tag checks.
package json

import (
	"bytes"
	"errors"

	"github.com/freekieb7/jet/validation"
	gojson "github.com/goccy/go-json"
)

type Marshaler = gojson.Marshaler

type Unmarshaler = gojson.Unmarshaler

var ErrEmptyBody = errors.New("json: empty body")

// Marshal encodes v without escaping HTML characters.
func Marshal(v any) ([]byte, error) {
	return gojson.MarshalWithOption(v, gojson.DisableHTMLEscape())
}

// MarshalIndent is Marshal with indentation.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndentWithOption(v, prefix, indent, gojson.DisableHTMLEscape())
}

// MarshalAppend appends the encoding of v to buf.
func MarshalAppend(buf []byte, v any) ([]byte, error) {
	data, err := Marshal(v)
	if err != nil {
		return buf, err
	}
	return append(buf, data...), nil
}

// DecodeError reports a body that is not valid JSON for the target, or that
// decoded but broke the target's validation rules.
type DecodeError struct {
	Err        error
	Violations validation.Violations
}

func (e *DecodeError) Error() string {
	if !e.Violations.IsEmpty() {
		return "json: validation failed: " + e.Violations.Error()
	}
	return e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Unmarshal decodes data into v and then checks v's validation rules.
func Unmarshal(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return &DecodeError{Err: ErrEmptyBody}
	}
	if err := gojson.Unmarshal(data, v); err != nil {
		return &DecodeError{Err: err}
	}
	if violations := validation.Struct(v); !violations.IsEmpty() {
		return &DecodeError{Err: violations, Violations: violations}
	}
	return nil
}

// Codec is the server's default payload codec. In debug mode responses are
// indented and end with a newline.
type Codec struct {
	Debug bool
}

func (c Codec) Decode(data []byte, v any) error {
	return Unmarshal(data, v)
}

func (c Codec) Encode(v any) ([]byte, error) {
	if !c.Debug {
		return Marshal(v)
	}
	data, err := MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
