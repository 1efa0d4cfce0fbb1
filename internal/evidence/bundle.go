package evidence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gorusys/indigo-proof-of-yield/internal/canonical"
	"github.com/gorusys/indigo-proof-of-yield/internal/model"
)

const (
	BundleSuffix = ".bundle.json"
	DigestSuffix = ".sha256"
)

// Paths locates a bundle and its digest on disk.
type Paths struct {
	Bundle string
	Digest string
}

// PathsFor returns the bundle and digest paths for name inside dir.
func PathsFor(dir, name string) Paths {
	return Paths{
		Bundle: filepath.Join(dir, name+BundleSuffix),
		Digest: filepath.Join(dir, name+DigestSuffix),
	}
}

// EncodeBundle returns the on-disk bytes of a bundle and the digest of its payload.
func EncodeBundle(bundle model.Bundle) ([]byte, Digest, error) {
	if bundle.Schema == "" {
		bundle.Schema = model.BundleSchema
	}
	_, digest, err := PayloadDigest(bundle.Payload)
	if err != nil {
		return nil, Digest{}, err
	}
	data, err := canonical.Marshal(bundle)
	if err != nil {
		return nil, Digest{}, fmt.Errorf("canonicalize bundle: %w", err)
	}
	return append(data, '\n'), digest, nil
}

// WritePair writes the bundle and digest files atomically. If the digest cannot be
// put in place, the freshly written bundle is removed again.
func WritePair(dir, name string, bundle model.Bundle) (Paths, Digest, error) {
	paths := PathsFor(dir, name)
	data, digest, err := EncodeBundle(bundle)
	if err != nil {
		return paths, Digest{}, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return paths, Digest{}, fmt.Errorf("create output dir: %w", err)
	}

	bundleTmp, err := writeTemp(dir, name+BundleSuffix, data)
	if err != nil {
		return paths, Digest{}, err
	}
	digestTmp, err := writeTemp(dir, name+DigestSuffix, []byte(digest.Hex()+"\n"))
	if err != nil {
		_ = os.Remove(bundleTmp)
		return paths, Digest{}, err
	}

	previous, hadPrevious := readIfExists(paths.Bundle)
	if err := os.Rename(bundleTmp, paths.Bundle); err != nil {
		_ = os.Remove(bundleTmp)
		_ = os.Remove(digestTmp)
		return paths, Digest{}, fmt.Errorf("rename bundle: %w", err)
	}
	if err := os.Rename(digestTmp, paths.Digest); err != nil {
		_ = os.Remove(digestTmp)
		if hadPrevious {
			_ = os.WriteFile(paths.Bundle, previous, 0o644)
		} else {
			_ = os.Remove(paths.Bundle)
		}
		return paths, Digest{}, fmt.Errorf("rename digest: %w", err)
	}
	return paths, digest, nil
}

func writeTemp(dir, pattern string, data []byte) (string, error) {
	file, err := os.CreateTemp(dir, "."+pattern+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	name := file.Name()
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(name)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(name)
		return "", fmt.Errorf("sync temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("chmod temp file: %w", err)
	}
	return name, nil
}

func readIfExists(path string) ([]byte, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

// rawBundle keeps the payload bytes exactly as they appear on disk.
type rawBundle struct {
	Schema     string           `json:"schema"`
	Payload    json.RawMessage  `json:"payload"`
	Provenance model.Provenance `json:"provenance"`
}

// ReadBundle loads a bundle file and returns the decoded bundle and the raw payload bytes.
func ReadBundle(path string) (model.Bundle, json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Bundle{}, nil, fmt.Errorf("read bundle: %w", err)
	}
	var raw rawBundle
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.Bundle{}, nil, fmt.Errorf("parse bundle: %w", err)
	}
	if len(raw.Payload) == 0 {
		return model.Bundle{}, nil, errors.New("bundle has no payload")
	}
	var payload model.Payload
	if err := json.Unmarshal(raw.Payload, &payload); err != nil {
		return model.Bundle{}, raw.Payload, fmt.Errorf("parse payload: %w", err)
	}
	return model.Bundle{Schema: raw.Schema, Payload: payload, Provenance: raw.Provenance}, raw.Payload, nil
}
