package normalize

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// datumBody is a resolved datum, keyed by hash in a datumTable.
type datumBody struct {
	bytes string
	value json.RawMessage
}

// datumTable collects datum bodies seen anywhere in the record set. The first
// body registered for a hash wins.
type datumTable map[string]datumBody

// add registers a body for hash. When CBOR bytes are present they must hash to
// the datum hash; a mismatch is reported and the body is dropped.
func (t datumTable) add(hash, bytesHex string, value json.RawMessage) (ok bool, mismatch bool) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if hash == "" {
		return false, false
	}
	if bytesHex != "" && !datumHashMatches(hash, bytesHex) {
		return false, true
	}
	if bytesHex == "" && len(value) == 0 {
		return false, false
	}
	if existing, found := t[hash]; found {
		if existing.bytes == "" && bytesHex != "" {
			existing.bytes = bytesHex
		}
		if len(existing.value) == 0 && len(value) > 0 {
			existing.value = value
		}
		t[hash] = existing
		return true, false
	}
	t[hash] = datumBody{bytes: bytesHex, value: value}
	return true, false
}

func (t datumTable) lookup(hash string) (datumBody, bool) {
	body, ok := t[strings.ToLower(strings.TrimSpace(hash))]
	return body, ok
}

// datumHashMatches checks the ledger datum hash: blake2b-256 over the CBOR bytes.
func datumHashMatches(hash, bytesHex string) bool {
	raw, err := hex.DecodeString(strings.TrimSpace(bytesHex))
	if err != nil {
		return false
	}
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:]) == hash
}
