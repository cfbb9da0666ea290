package internal

import (
	"crypto/rand"
	"encoding/base64"
	"io"
)

// OpaqueIDBytes is the entropy of challenge and assertion identifiers.
const OpaqueIDBytes = 32

// NewOpaqueID reads OpaqueIDBytes from r (crypto/rand when nil) and returns them
// base64url-encoded without padding.
func NewOpaqueID(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	var raw [OpaqueIDBytes]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// ValidOpaqueID reports whether id has the shape NewOpaqueID produces, so
// malformed input can be rejected before a store round trip.
func ValidOpaqueID(id string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(id)
	return err == nil && len(raw) == OpaqueIDBytes
}
