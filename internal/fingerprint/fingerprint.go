// Package fingerprint produces fast, non-cryptographic equality digests for
// audit records. It is not a tamper-evidence control.
package fingerprint

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/gowebpki/jcs"
)

// Canonical returns the RFC 8785 canonical form of JSON input.
func Canonical(raw []byte) ([]byte, error) {
	return jcs.Transform(raw)
}

// Bytes canonicalizes raw JSON and returns its xxhash64 as 16 hex digits.
func Bytes(raw []byte) (string, error) {
	canonical, err := Canonical(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}
	return format(xxhash.Sum64(canonical)), nil
}

// Of marshals v and fingerprints the result.
func Of(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	return Bytes(raw)
}

func format(sum uint64) string {
	s := strconv.FormatUint(sum, 16)
	for len(s) < 16 {
		s = "0" + s
	}
	return s
}
