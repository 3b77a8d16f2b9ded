// Package pseudonym derives stable pseudonyms from hardware identifiers.
//
// A pseudonym is a keyed hash of the reported MAC address, truncated to a
// fixed length. The same MAC and session key always produce the same
// pseudonym; without the key the mapping cannot be reversed or recomputed.
//
// Known limitation: modern radio stacks rotate the hardware identifier for
// privacy, so one physical device may appear as several pseudonyms over time.
// No heuristic re-linking is attempted.
package pseudonym

import (
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// DefaultLength is the number of hex characters in a pseudonym.
const DefaultLength = 12

// Hasher derives pseudonyms with a fixed session key.
type Hasher struct {
	key    []byte
	length int
}

// NewHasher creates a Hasher. The key must be 1 to 64 bytes (the blake2b key
// limit); length is the hex length of produced pseudonyms and defaults to
// DefaultLength when zero.
func NewHasher(key string, length int) (*Hasher, error) {
	if key == "" {
		return nil, errors.New("pseudonym: session key must not be empty")
	}
	if len(key) > 64 {
		return nil, errors.New("pseudonym: session key exceeds 64 bytes")
	}
	if length == 0 {
		length = DefaultLength
	}
	if length < 8 || length > 2*blake2b.Size256 {
		return nil, fmt.Errorf("pseudonym: length %d out of range [8, %d]", length, 2*blake2b.Size256)
	}
	return &Hasher{key: []byte(key), length: length}, nil
}

// Derive returns the pseudonym for a MAC address.
func (h *Hasher) Derive(mac string) string {
	mh, _ := blake2b.New256(h.key)
	mh.Write([]byte(mac))
	return hex.EncodeToString(mh.Sum(nil))[:h.length]
}
