package util

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// HashBytes returns the hex-encoded SHA-256 digest of the given bytes.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ContentHasher computes a SHA-256 digest of everything written through it.
// Used to fingerprint artifacts while they stream into the object store.
type ContentHasher struct {
	h hash.Hash
}

// NewContentHasher constructs a ContentHasher.
func NewContentHasher() *ContentHasher {
	return &ContentHasher{h: sha256.New()}
}

// Tee returns a reader that hashes everything read from r.
func (c *ContentHasher) Tee(r io.Reader) io.Reader {
	return io.TeeReader(r, c.h)
}

// Write implements io.Writer.
func (c *ContentHasher) Write(p []byte) (int, error) {
	return c.h.Write(p)
}

// Sum returns the hex-encoded digest of the bytes seen so far.
func (c *ContentHasher) Sum() string {
	return hex.EncodeToString(c.h.Sum(nil))
}
