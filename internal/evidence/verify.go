package evidence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gorusys/indigo-proof-of-yield/internal/canonical"
)

// Status is the outcome of a verification.
type Status string

const (
	Match    Status = "match"
	Mismatch Status = "mismatch"
)

// Result describes a verification outcome. A mismatch is a result, not an error.
type Result struct {
	Status    Status
	Expected  string
	Actual    string
	Canonical bool
	Reason    string
}

func (r Result) OK() bool {
	return r.Status == Match
}

// Verify re-canonicalizes the payload stored in bundlePath, fingerprints it and
// compares the digest with the one stored in digestPath. Errors are returned only
// when a file cannot be read.
func Verify(bundlePath, digestPath string) (Result, error) {
	bundleData, err := os.ReadFile(bundlePath)
	if err != nil {
		return Result{}, fmt.Errorf("read bundle: %w", err)
	}
	digestData, err := os.ReadFile(digestPath)
	if err != nil {
		return Result{}, fmt.Errorf("read digest: %w", err)
	}
	return VerifyBytes(bundleData, digestData), nil
}

// VerifyBytes is Verify over in-memory file contents.
func VerifyBytes(bundleData, digestData []byte) Result {
	expected, err := ParseDigest(string(digestData))
	if err != nil {
		return Result{Status: Mismatch, Reason: fmt.Sprintf("invalid digest file: %v", err)}
	}
	res := Result{Expected: expected.Hex()}

	var envelope struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(bundleData, &envelope); err != nil {
		res.Status = Mismatch
		res.Reason = fmt.Sprintf("unparseable bundle: %v", err)
		return res
	}
	if len(envelope.Payload) == 0 {
		res.Status = Mismatch
		res.Reason = "bundle has no payload"
		return res
	}

	canon, err := canonical.Canonicalize(envelope.Payload)
	if err != nil {
		res.Status = Mismatch
		res.Reason = fmt.Sprintf("payload cannot be canonicalized: %v", err)
		return res
	}
	res.Canonical = bytes.Equal(canon, envelope.Payload)

	actual := Fingerprint(canon)
	res.Actual = actual.Hex()
	if !bytes.Equal(actual[:], expected[:]) {
		res.Status = Mismatch
		res.Reason = "payload digest differs from digest file"
		return res
	}
	res.Status = Match
	return res
}
