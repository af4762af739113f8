package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Key is the canonical cache identifier for one (input, configuration
// fingerprint) pair. Keys are plain values: two semantically identical
// requests always produce equal Keys.
//
// The codec never round-trips arbitrary objects; callers must stringify
// non-string inputs themselves, and correctness then depends on that
// string form being stable and unique per distinct semantic value.
type Key struct {
	Input       string
	Fingerprint string
}

// healthFingerprint is a reserved fingerprint namespace for health probes.
// Real fingerprints are derived from configuration text and never contain
// a NUL byte, so probe keys cannot collide with caller keys.
const healthFingerprint = "\x00quill/health"

// Encode builds the canonical Key for an input and a configuration
// fingerprint. It is pure and stable across process restarts.
func Encode(input, fingerprint string) Key {
	return Key{Input: input, Fingerprint: fingerprint}
}

// HealthKey returns the sentinel key used by health probes. It lives in a
// reserved namespace and must never be produced by Encode callers.
func HealthKey() Key {
	return Key{Input: "probe", Fingerprint: healthFingerprint}
}

// Digest returns a hex SHA-256 digest of the key. Components are
// length-prefixed before hashing so ("ab","c") and ("a","bc") hash
// differently.
func (k Key) Digest() string {
	h := sha256.New()
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(k.Input)))
	h.Write(n[:])
	h.Write([]byte(k.Input))
	binary.BigEndian.PutUint64(n[:], uint64(len(k.Fingerprint)))
	h.Write(n[:])
	h.Write([]byte(k.Fingerprint))
	return hex.EncodeToString(h.Sum(nil))
}
