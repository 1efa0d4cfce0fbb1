package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gorusys/indigo-proof-of-yield/internal/cache"
	"github.com/gorusys/indigo-proof-of-yield/internal/ingest"
	"github.com/gorusys/indigo-proof-of-yield/internal/model"
	"github.com/gorusys/indigo-proof-of-yield/internal/pipeline"
	"github.com/gorusys/indigo-proof-of-yield/internal/storage"
)

// DemoName is the file stem of the demo artifacts.
const DemoName = "demo"

const (
	demoStake   = "stake1_demo"
	demoAddress = "addr1_demo"
)

var demoGeneratedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// demoTxs is a small canned ledger history: a stability pool deposit, a
// liquidation, a redemption order placed and filled, and a reward withdrawal.
var demoTxs = map[string]string{
	"d1": `{"tx_hash": "d1", "absolute_slot": 110000000, "tx_timestamp": 1701000000, "tx_block_index": 0,
  "inputs": [
    {"payment_addr": {"bech32": "addr1_sp", "cred": "5b"}, "stake_addr": "stake1_demo", "tx_hash": "c0", "tx_index": 0,
     "value": "2000000", "inline_datum": {"bytes": "d87980", "value": {"constructor": 0, "fields": []}},
     "asset_list": [{"policy_id": "aa11", "asset_name": "69555344", "quantity": "1000"}]},
    {"payment_addr": {"bech32": "addr1_demo"}, "stake_addr": "stake1_demo", "tx_hash": "c0", "tx_index": 1,
     "value": "5000000", "asset_list": [{"policy_id": "aa11", "asset_name": "69555344", "quantity": "200"}]}
  ],
  "outputs": [
    {"payment_addr": {"bech32": "addr1_sp", "cred": "5b"}, "stake_addr": "stake1_demo", "tx_hash": "d1", "tx_index": 0,
     "value": "2000000", "inline_datum": {"bytes": "d87980", "value": {"constructor": 0, "fields": []}},
     "asset_list": [{"policy_id": "aa11", "asset_name": "69555344", "quantity": "1200"}]},
    {"payment_addr": {"bech32": "addr1_demo"}, "stake_addr": "stake1_demo", "tx_hash": "d1", "tx_index": 1, "value": "4800000"}
  ]}`,
	"d2": `{"tx_hash": "d2", "absolute_slot": 110432000, "tx_timestamp": 1701432000, "tx_block_index": 3,
  "inputs": [
    {"payment_addr": {"bech32": "addr1_sp", "cred": "5b"}, "stake_addr": "stake1_demo", "tx_hash": "d1", "tx_index": 0,
     "value": "2000000", "inline_datum": {"bytes": "d87980", "value": {"constructor": 0, "fields": []}},
     "asset_list": [{"policy_id": "aa11", "asset_name": "69555344", "quantity": "1200"}]},
    {"payment_addr": {"bech32": "addr1_liquidator"}, "tx_hash": "c1", "tx_index": 0, "value": "60000000"}
  ],
  "outputs": [
    {"payment_addr": {"bech32": "addr1_sp", "cred": "5b"}, "stake_addr": "stake1_demo", "tx_hash": "d2", "tx_index": 0,
     "value": "51000000", "inline_datum": {"bytes": "d87980", "value": {"constructor": 0, "fields": []}},
     "asset_list": [{"policy_id": "aa11", "asset_name": "69555344", "quantity": "1100"}]},
    {"payment_addr": {"bech32": "addr1_liquidator"}, "tx_hash": "d2", "tx_index": 1, "value": "10800000"}
  ],
  "assets_minted": [{"policy_id": "aa11", "asset_name": "69555344", "quantity": "-100"}]}`,
	"d3": `{"tx_hash": "d3", "absolute_slot": 110864000, "tx_timestamp": 1701864000, "tx_block_index": 1,
  "inputs": [
    {"payment_addr": {"bech32": "addr1_demo"}, "stake_addr": "stake1_demo", "tx_hash": "c2", "tx_index": 0, "value": "100000000"}
  ],
  "outputs": [
    {"payment_addr": {"bech32": "addr1_rob", "cred": "70b"}, "stake_addr": "stake1_demo", "tx_hash": "d3", "tx_index": 0,
     "value": "80000000", "inline_datum": {"bytes": "d87980", "value": {"constructor": 0, "fields": []}}},
    {"payment_addr": {"bech32": "addr1_demo"}, "stake_addr": "stake1_demo", "tx_hash": "d3", "tx_index": 1, "value": "19800000"}
  ]}`,
	"d4": `{"tx_hash": "d4", "absolute_slot": 110950400, "tx_timestamp": 1701950400, "tx_block_index": 2,
  "inputs": [
    {"payment_addr": {"bech32": "addr1_rob", "cred": "70b"}, "stake_addr": "stake1_demo", "tx_hash": "d3", "tx_index": 0,
     "value": "80000000", "inline_datum": {"bytes": "d87980", "value": {"constructor": 0, "fields": []}}}
  ],
  "outputs": [
    {"payment_addr": {"bech32": "addr1_demo"}, "stake_addr": "stake1_demo", "tx_hash": "d4", "tx_index": 0,
     "value": "2000000", "asset_list": [{"policy_id": "aa11", "asset_name": "69555344", "quantity": "180"}]}
  ]}`,
	"d5": `{"tx_hash": "d5", "absolute_slot": 111728000, "tx_timestamp": 1702728000, "tx_block_index": 0,
  "inputs": [
    {"payment_addr": {"bech32": "addr1_demo"}, "stake_addr": "stake1_demo", "tx_hash": "d3", "tx_index": 1, "value": "19800000"}
  ],
  "outputs": [
    {"payment_addr": {"bech32": "addr1_demo"}, "stake_addr": "stake1_demo", "tx_hash": "d5", "tx_index": 0, "value": "21100000"}
  ],
  "withdrawals": [{"amount": "1500000", "stake_addr": "stake1_demo"}]}`,
}

// demoIndexer answers indexer queries from demoTxs.
type demoIndexer struct{}

func (demoIndexer) Fetch(_ context.Context, q model.Query) ([]byte, error) {
	first := q.Params["offset"] == "" || q.Params["offset"] == "0"
	switch q.Endpoint {
	case model.EndpointAccountAddrs:
		if !first {
			return []byte(`[]`), nil
		}
		return []byte(`[{"stake_address":"` + demoStake + `","addresses":["` + demoAddress + `"]}]`), nil
	case model.EndpointAccountTxs, model.EndpointAddressTxs:
		if !first {
			return []byte(`[]`), nil
		}
		rows := make([]string, 0, len(demoTxs))
		for _, hash := range demoHashes() {
			var tx model.KoiosTxInfo
			if err := json.Unmarshal([]byte(demoTxs[hash]), &tx); err != nil {
				return nil, err
			}
			rows = append(rows, fmt.Sprintf(`{"tx_hash":%q,"block_time":%d}`, hash, *tx.TxTimestamp))
		}
		return []byte("[" + strings.Join(rows, ",") + "]"), nil
	case model.EndpointTxInfo:
		var body struct {
			Hashes []string `json:"_tx_hashes"`
		}
		if err := json.Unmarshal(q.Body, &body); err != nil {
			return nil, err
		}
		rows := make([]string, 0, len(body.Hashes))
		for _, hash := range body.Hashes {
			if tx, ok := demoTxs[hash]; ok {
				rows = append(rows, tx)
			}
		}
		return []byte("[" + strings.Join(rows, ",") + "]"), nil
	case model.EndpointDatumInfo:
		return []byte(`[]`), nil
	}
	return nil, fmt.Errorf("demo indexer has no %s data", q.Endpoint)
}

func demoHashes() []string {
	return []string{"d1", "d2", "d3", "d4", "d5"}
}

// DemoProtocol runs in heuristic mode with fixed rates.
func DemoProtocol() model.Protocol {
	return model.Protocol{
		Network:    "mainnet",
		IndyPolicy: "bb22",
		Rates:      map[string]string{"aa11": "0.45", "bb22": "0.5"},
	}
}

// DemoBundle builds a sample bundle from canned records. The result, provenance
// included, is the same on every call.
func DemoBundle(ctx context.Context, logger *zap.Logger) (model.Bundle, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store := storage.NewMemoryStore()
	defer store.Close()

	c, err := cache.Open(store, demoIndexer{}, cache.Options{Now: func() time.Time { return demoGeneratedAt }}, logger.Named("cache"))
	if err != nil {
		return model.Bundle{}, err
	}
	scope := model.NewScope(nil, demoStake, model.Window{})
	protocol := DemoProtocol()

	res, err := ingest.NewRunner(ingest.RunConfig{
		Scope:   scope,
		Network: model.Network(protocol.Network),
		Workers: 2,
	}, c, nil, logger.Named("ingest")).Run(ctx)
	if err != nil {
		return model.Bundle{}, fmt.Errorf("demo ingest: %w", err)
	}

	p := pipeline.New(pipeline.Config{Scope: scope, Protocol: protocol}, nil, logger.Named("pipeline"))
	payload, stats := p.Compute(res.Records)
	prov := pipeline.NewProvenance(pipeline.ProvenanceInput{
		Records: stats.Records,
		Offline: true,
		Now:     demoGeneratedAt,
		RunID:   uuid.NewSHA1(uuid.NameSpaceURL, []byte("indigo-poy:demo")).String(),
	})
	return pipeline.NewBundle(payload, prov), nil
}
