package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gorusys/indigo-proof-of-yield/internal/canonical"
	"github.com/gorusys/indigo-proof-of-yield/internal/model"
)

// Digest is the SHA-256 fingerprint of a canonical payload.
type Digest [sha256.Size]byte

// Fingerprint hashes canonical payload bytes.
func Fingerprint(canonicalPayload []byte) Digest {
	return Digest(sha256.Sum256(canonicalPayload))
}

func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

func (d Digest) String() string {
	return d.Hex()
}

// ParseDigest decodes a digest file body: lowercase hex, surrounding whitespace ignored.
func ParseDigest(text string) (Digest, error) {
	var d Digest
	text = strings.TrimSpace(text)
	if len(text) != hex.EncodedLen(sha256.Size) {
		return d, fmt.Errorf("digest must be %d hex characters, got %d", hex.EncodedLen(sha256.Size), len(text))
	}
	raw, err := hex.DecodeString(text)
	if err != nil {
		return d, fmt.Errorf("decode digest: %w", err)
	}
	copy(d[:], raw)
	return d, nil
}

// PayloadDigest canonicalizes a payload and fingerprints it.
func PayloadDigest(payload model.Payload) ([]byte, Digest, error) {
	data, err := canonical.Marshal(payload)
	if err != nil {
		return nil, Digest{}, fmt.Errorf("canonicalize payload: %w", err)
	}
	return data, Fingerprint(data), nil
}
