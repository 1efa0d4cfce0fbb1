package chain

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/gorusys/indigo-proof-of-yield/internal/model"
)

// Query builders for the indexer endpoints. Every input that changes the response is
// part of the query so it lands in the cache key.

// Listing orders. Offset pages only stay stable under a total order.
const (
	txListOrder    = "block_height.asc,tx_hash.asc"
	stakeListOrder = "stake_address.asc"
)

func AddressTxsQuery(addresses []string, offset, limit int) model.Query {
	return model.Query{
		Endpoint: model.EndpointAddressTxs,
		Method:   model.MethodPost,
		Params:   pageParams(offset, limit, txListOrder),
		Body:     mustJSON(map[string]any{"_addresses": sortedCopy(addresses)}),
	}
}

func AccountTxsQuery(stakeAddress string, offset, limit int) model.Query {
	params := pageParams(offset, limit, txListOrder)
	params["_stake_address"] = stakeAddress
	return model.Query{
		Endpoint: model.EndpointAccountTxs,
		Method:   model.MethodGet,
		Params:   params,
	}
}

func AccountAddressesQuery(stakeAddress string, offset, limit int) model.Query {
	return model.Query{
		Endpoint: model.EndpointAccountAddrs,
		Method:   model.MethodPost,
		Params:   pageParams(offset, limit, stakeListOrder),
		Body:     mustJSON(map[string]any{"_stake_addresses": []string{stakeAddress}, "_first_only": false, "_empty": true}),
	}
}

func TxInfoQuery(txHashes []string) model.Query {
	return model.Query{
		Endpoint: model.EndpointTxInfo,
		Method:   model.MethodPost,
		Body: mustJSON(map[string]any{
			"_tx_hashes":   sortedCopy(txHashes),
			"_inputs":      true,
			"_metadata":    true,
			"_assets":      true,
			"_withdrawals": true,
			"_certs":       false,
			"_scripts":     true,
			"_bytecode":    false,
		}),
	}
}

func TxUtxosQuery(txHashes []string) model.Query {
	return model.Query{
		Endpoint: model.EndpointTxUtxos,
		Method:   model.MethodPost,
		Body:     mustJSON(map[string]any{"_tx_hashes": sortedCopy(txHashes)}),
	}
}

func DatumInfoQuery(datumHashes []string) model.Query {
	return model.Query{
		Endpoint: model.EndpointDatumInfo,
		Method:   model.MethodPost,
		Body:     mustJSON(map[string]any{"_datum_hashes": sortedCopy(datumHashes)}),
	}
}

func pageParams(offset, limit int, order string) map[string]string {
	if limit <= 0 {
		limit = model.DefaultPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return map[string]string{
		"offset": strconv.Itoa(offset),
		"limit":  strconv.Itoa(limit),
		"order":  order,
	}
}

func sortedCopy(values []string) []string {
	out := append([]string{}, values...)
	sort.Strings(out)
	return out
}

// mustJSON encodes maps of strings, bools and numbers; the error is always nil.
func mustJSON(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
