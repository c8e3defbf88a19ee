// Package sha256 provides the SHA-256 digests used for job keys and page snapshots.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
)

// Hasher implements crawler.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// SnapshotPath returns the content digest of html and the blob path it is archived under,
// fanned out by the first two hex characters: snapshots/<d[:2]>/<d>.html.
func (h *Hasher) SnapshotPath(html []byte) (digest, objectPath string) {
	digest, _ = h.Hash(html)
	return digest, path.Join("snapshots", digest[:2], digest+".html")
}
