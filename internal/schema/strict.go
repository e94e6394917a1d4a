// Package schema defines the strict, unknown-field-rejecting JSON shapes for
// every doc-pack input, evidence, and derived file, plus the shared decode
// helper that produces typed errors citing the offending file and field.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Error is returned by every loader in this package. It names the file and,
// where the underlying decoder exposes one, the offending field, so the CLI
// can print a message a pack author can act on without reading Go stack
// traces.
type Error struct {
	Path  string
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: field %q: %v", e.Path, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Decode strictly unmarshals r into v, rejecting unknown fields.
func Decode(r io.Reader, v interface{}) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected trailing content after JSON value")
	}
	return nil
}

// LoadFile decodes the file at path into v using Decode, wrapping any error
// as *Error.
func LoadFile(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return &Error{Path: path, Err: err}
	}
	defer f.Close()

	if err := Decode(f, v); err != nil {
		return &Error{Path: path, Field: fieldFromError(err), Err: err}
	}
	return nil
}

// fieldFromError extracts the field name from a json.UnmarshalTypeError when
// available; encoding/json doesn't expose structured field info for unknown
// field errors, so those are left unparsed and the caller sees the raw
// message (still file-qualified by Error.Path).
func fieldFromError(err error) string {
	if te, ok := err.(*json.UnmarshalTypeError); ok {
		return te.Field
	}
	return ""
}

// Canonical marshals v as indented, newline-terminated JSON — the form every
// derived and workflow-state file is written in, so that re-encoding the
// decoded value of any file on disk reproduces it byte-for-byte (modulo
// fields the spec explicitly allows to change, like timestamps).
func Canonical(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes v to path in canonical form, creating or truncating the
// file. It does not create parent directories.
func WriteFile(path string, v interface{}) error {
	data, err := Canonical(v)
	if err != nil {
		return &Error{Path: path, Err: err}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &Error{Path: path, Err: err}
	}
	return nil
}
