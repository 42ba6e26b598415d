package ir

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 canonical JSON.
// CRITICAL: This is the ONLY serialization that should be used for
// digests and fingerprints.
//
// Differences from plain json.Marshal:
//  1. Object keys sorted by UTF-16 code units
//  2. No HTML escaping (< > & are NOT escaped)
//  3. Strings are NFC normalized
//  4. Numbers use the ECMAScript shortest round-trip form
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canonical: encode: %w", err)
	}

	// NFC normalize at the serialization boundary. The encoder writes
	// non-ASCII text as raw UTF-8, so normalizing the document normalizes
	// every string in it.
	normalized := norm.NFC.Bytes(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))

	out, err := jcs.Transform(normalized)
	if err != nil {
		return nil, fmt.Errorf("canonical: transform: %w", err)
	}
	return out, nil
}

// CanonicalizeJSON re-serializes an existing JSON document canonically.
func CanonicalizeJSON(data []byte) ([]byte, error) {
	out, err := jcs.Transform(norm.NFC.Bytes(data))
	if err != nil {
		return nil, fmt.Errorf("canonical: transform: %w", err)
	}
	return out, nil
}
