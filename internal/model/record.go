package model

import (
	"encoding/json"
	"sort"
)

// Remote endpoints understood by the fetcher and the normalizer.
const (
	EndpointAddressTxs      = "address_txs"
	EndpointAccountTxs      = "account_txs"
	EndpointAccountAddrs    = "account_addresses"
	EndpointTxInfo          = "tx_info"
	EndpointTxUtxos         = "tx_utxos"
	EndpointDatumInfo       = "datum_info"
	MethodGet               = "GET"
	MethodPost              = "POST"
	DefaultPageLimit        = 1000
	DefaultTxBatchSize      = 50
	DefaultDatumBatchSize   = 50
	DefaultAddressBatchSize = 50
)

// Query fully describes one remote request. Its canonical encoding is the cache discriminator.
type Query struct {
	Endpoint string            `json:"endpoint"`
	Method   string            `json:"method"`
	Params   map[string]string `json:"params,omitempty"`
	Body     json.RawMessage   `json:"body,omitempty"`
}

// ParamKeys returns the query parameter names in sorted order.
func (q Query) ParamKeys() []string {
	keys := make([]string, 0, len(q.Params))
	for k := range q.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RawRecord is an immutable remote response identified by its content hash.
type RawRecord struct {
	Hash     string          `json:"hash"`
	Endpoint string          `json:"endpoint"`
	Query    json.RawMessage `json:"query"`
	Payload  json.RawMessage `json:"payload"`
}

// CacheEntry is the persisted form of a RawRecord. Query and body are kept as
// strings so the stored bytes are exactly the hashed bytes.
type CacheEntry struct {
	Hash      string `json:"hash"`
	Endpoint  string `json:"endpoint"`
	Query     string `json:"query"`
	Body      string `json:"body"`
	FetchedAt string `json:"fetched_at"`
}

func (e CacheEntry) Record() RawRecord {
	return RawRecord{
		Hash:     e.Hash,
		Endpoint: e.Endpoint,
		Query:    json.RawMessage(e.Query),
		Payload:  json.RawMessage(e.Body),
	}
}

// SortRecords orders records by content hash, the order every downstream stage consumes.
func SortRecords(records []RawRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Hash < records[j].Hash
	})
}
