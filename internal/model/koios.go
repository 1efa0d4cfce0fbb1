package model

import "encoding/json"

// Wire shapes of the chain-indexing REST API. Quantities stay strings until normalized.

type KoiosTxListing struct {
	TxHash      string `json:"tx_hash"`
	EpochNo     *int64 `json:"epoch_no,omitempty"`
	BlockHeight *int64 `json:"block_height,omitempty"`
	BlockTime   *int64 `json:"block_time,omitempty"`
}

type KoiosPaymentAddr struct {
	Bech32 string `json:"bech32"`
	Cred   string `json:"cred"`
}

type KoiosAsset struct {
	PolicyID  string `json:"policy_id"`
	AssetName string `json:"asset_name"`
	Quantity  string `json:"quantity"`
}

type KoiosInlineDatum struct {
	Bytes string          `json:"bytes"`
	Value json.RawMessage `json:"value,omitempty"`
}

type KoiosUtxo struct {
	PaymentAddr KoiosPaymentAddr  `json:"payment_addr"`
	StakeAddr   *string           `json:"stake_addr,omitempty"`
	TxHash      string            `json:"tx_hash"`
	TxIndex     uint32            `json:"tx_index"`
	Value       string            `json:"value"`
	DatumHash   *string           `json:"datum_hash,omitempty"`
	InlineDatum *KoiosInlineDatum `json:"inline_datum,omitempty"`
	AssetList   []KoiosAsset      `json:"asset_list,omitempty"`
}

type KoiosWithdrawal struct {
	Amount    string `json:"amount"`
	StakeAddr string `json:"stake_addr"`
}

type KoiosDatum struct {
	Hash  string          `json:"hash"`
	Value json.RawMessage `json:"value,omitempty"`
}

type KoiosRedeemer struct {
	Purpose string      `json:"purpose"`
	Datum   *KoiosDatum `json:"datum,omitempty"`
}

type KoiosOutRef struct {
	TxHash  string `json:"tx_hash"`
	TxIndex uint32 `json:"tx_index"`
}

type KoiosContractInput struct {
	Redeemer *KoiosRedeemer `json:"redeemer,omitempty"`
	Datum    *KoiosDatum    `json:"datum,omitempty"`
}

type KoiosPlutusContract struct {
	Address     string              `json:"address"`
	ScriptHash  string              `json:"script_hash"`
	SpendsInput *KoiosOutRef        `json:"spends_input,omitempty"`
	Input       *KoiosContractInput `json:"input,omitempty"`
}

type KoiosTxInfo struct {
	TxHash          string                `json:"tx_hash"`
	BlockHeight     *int64                `json:"block_height,omitempty"`
	EpochNo         *int64                `json:"epoch_no,omitempty"`
	AbsoluteSlot    *uint64               `json:"absolute_slot,omitempty"`
	TxTimestamp     *int64                `json:"tx_timestamp,omitempty"`
	TxBlockIndex    *uint32               `json:"tx_block_index,omitempty"`
	Inputs          []KoiosUtxo           `json:"inputs"`
	Outputs         []KoiosUtxo           `json:"outputs"`
	Withdrawals     []KoiosWithdrawal     `json:"withdrawals,omitempty"`
	AssetsMinted    []KoiosAsset          `json:"assets_minted,omitempty"`
	Metadata        json.RawMessage       `json:"metadata,omitempty"`
	PlutusContracts []KoiosPlutusContract `json:"plutus_contracts,omitempty"`
}

type KoiosTxUtxos struct {
	TxHash  string      `json:"tx_hash"`
	Inputs  []KoiosUtxo `json:"inputs"`
	Outputs []KoiosUtxo `json:"outputs"`
}

type KoiosDatumInfo struct {
	DatumHash      string          `json:"datum_hash"`
	CreationTxHash string          `json:"creation_tx_hash,omitempty"`
	Value          json.RawMessage `json:"value,omitempty"`
	Bytes          string          `json:"bytes"`
}

type KoiosAccountAddresses struct {
	StakeAddress string   `json:"stake_address"`
	Addresses    []string `json:"addresses"`
}
