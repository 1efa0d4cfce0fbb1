package model

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// AssetAmount is a native-asset quantity. Negative quantities are burns when used as mint deltas.
type AssetAmount struct {
	PolicyID  string   `json:"policy_id"`
	AssetName string   `json:"asset_name"`
	Quantity  Quantity `json:"quantity"`
}

// Unit is the concatenated policy id and hex asset name.
func (a AssetAmount) Unit() string {
	return a.PolicyID + a.AssetName
}

// SortAssets orders assets by unit.
func SortAssets(assets []AssetAmount) {
	sort.SliceStable(assets, func(i, j int) bool {
		return assets[i].Unit() < assets[j].Unit()
	})
}

// DatumRef references a datum by hash, with the body once resolved.
type DatumRef struct {
	Hash     string          `json:"hash,omitempty"`
	Inline   bool            `json:"inline,omitempty"`
	Resolved bool            `json:"resolved"`
	Bytes    string          `json:"bytes,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
}

// UtxoView is one normalized transaction input or output.
type UtxoView struct {
	Ref          string        `json:"ref"`
	Address      string        `json:"address"`
	PaymentCred  string        `json:"payment_cred,omitempty"`
	StakeAddress string        `json:"stake_address,omitempty"`
	Lovelace     int64         `json:"lovelace"`
	Assets       []AssetAmount `json:"assets,omitempty"`
	Datum        *DatumRef     `json:"datum,omitempty"`
}

// OutRef formats a UTxO reference.
func OutRef(txHash string, index uint32) string {
	return fmt.Sprintf("%s#%d", txHash, index)
}

// AssetQuantity sums the quantity of a unit held by the UTxO.
func (u UtxoView) AssetQuantity(unit string) decimal.Decimal {
	total := decimal.Zero
	for _, a := range u.Assets {
		if a.Unit() == unit {
			total = total.Add(a.Quantity.Decimal())
		}
	}
	return total
}

// HasPolicy reports whether any asset of the UTxO is under policyID.
func (u UtxoView) HasPolicy(policyID string) bool {
	for _, a := range u.Assets {
		if a.PolicyID == policyID {
			return true
		}
	}
	return false
}

// Withdrawal is a ledger reward withdrawal.
type Withdrawal struct {
	StakeAddress string `json:"stake_address"`
	Lovelace     int64  `json:"lovelace"`
}

// Redeemer is a script execution attached to the transaction.
type Redeemer struct {
	Purpose     string          `json:"purpose"`
	ScriptHash  string          `json:"script_hash,omitempty"`
	Address     string          `json:"address,omitempty"`
	SpendsInput string          `json:"spends_input,omitempty"`
	DatumHash   string          `json:"datum_hash,omitempty"`
	Value       json.RawMessage `json:"value,omitempty"`
}

// TxView is the normalized view of one transaction, derived from raw records.
type TxView struct {
	TxHash      string          `json:"tx_hash"`
	Slot        uint64          `json:"slot"`
	Timestamp   int64           `json:"timestamp"`
	Epoch       *int64          `json:"epoch,omitempty"`
	BlockHeight *int64          `json:"block_height,omitempty"`
	TxIndex     uint32          `json:"tx_index"`
	Inputs      []UtxoView      `json:"inputs"`
	Outputs     []UtxoView      `json:"outputs"`
	Mint        []AssetAmount   `json:"mint,omitempty"`
	Withdrawals []Withdrawal    `json:"withdrawals,omitempty"`
	Redeemers   []Redeemer      `json:"redeemers,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Warnings    []Warning       `json:"warnings,omitempty"`
	Sources     []string        `json:"sources,omitempty"`
}

// MintedQuantity returns the signed mint delta for unit (negative for burns).
func (v TxView) MintedQuantity(unit string) decimal.Decimal {
	total := decimal.Zero
	for _, a := range v.Mint {
		if a.Unit() == unit {
			total = total.Add(a.Quantity.Decimal())
		}
	}
	return total
}

// RedeemerFor returns the redeemer spending the given input ref, if any.
func (v TxView) RedeemerFor(ref string) (Redeemer, bool) {
	for _, r := range v.Redeemers {
		if r.SpendsInput == ref {
			return r, true
		}
	}
	return Redeemer{}, false
}

// Complete reports whether the view carries full transaction detail.
func (v TxView) Complete() bool {
	return len(v.Inputs) > 0 || len(v.Outputs) > 0
}
