package model

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// DatumShape recognizes a Plutus datum by constructor index and minimum field count.
type DatumShape struct {
	Constructor int `mapstructure:"constructor" json:"constructor"`
	MinFields   int `mapstructure:"min_fields" json:"min_fields"`
}

// Protocol holds the on-chain identifiers used to recognize protocol activity.
// Empty identifier lists switch the matching predicates to heuristic mode.
type Protocol struct {
	Network                  string            `mapstructure:"network" json:"network"`
	StabilityPoolScripts     []string          `mapstructure:"stability_pool_scripts" json:"stability_pool_scripts"`
	StabilityPoolDatumHashes []string          `mapstructure:"stability_pool_datum_hashes" json:"stability_pool_datum_hashes"`
	StabilityPoolDatum       *DatumShape       `mapstructure:"stability_pool_datum" json:"stability_pool_datum,omitempty"`
	RobScripts               []string          `mapstructure:"rob_scripts" json:"rob_scripts"`
	RobDatumHashes           []string          `mapstructure:"rob_datum_hashes" json:"rob_datum_hashes"`
	RobDatum                 *DatumShape       `mapstructure:"rob_datum" json:"rob_datum,omitempty"`
	RobCancelRedeemer        *int              `mapstructure:"rob_cancel_redeemer" json:"rob_cancel_redeemer,omitempty"`
	StakingScripts           []string          `mapstructure:"staking_scripts" json:"staking_scripts"`
	IAssetPolicies           []string          `mapstructure:"iasset_policies" json:"iasset_policies"`
	IndyPolicy               string            `mapstructure:"indy_policy" json:"indy_policy,omitempty"`
	Rates                    map[string]string `mapstructure:"rates" json:"rates"`
}

// Normalize lowercases hex identifiers, strips 0x prefixes and sorts every list.
func (p Protocol) Normalize() Protocol {
	out := p
	out.Network = strings.ToLower(strings.TrimSpace(p.Network))
	if out.Network == "" {
		out.Network = "mainnet"
	}
	out.StabilityPoolScripts = normHexList(p.StabilityPoolScripts)
	out.StabilityPoolDatumHashes = normHexList(p.StabilityPoolDatumHashes)
	out.RobScripts = normHexList(p.RobScripts)
	out.RobDatumHashes = normHexList(p.RobDatumHashes)
	out.StakingScripts = normHexList(p.StakingScripts)
	out.IAssetPolicies = normHexList(p.IAssetPolicies)
	out.IndyPolicy = normHex(p.IndyPolicy)
	rates := make(map[string]string, len(p.Rates))
	for k, v := range p.Rates {
		rates[normHex(k)] = strings.TrimSpace(v)
	}
	out.Rates = rates
	return out
}

// Heuristic reports whether no stability pool or order book identifiers are configured.
func (p Protocol) Heuristic() bool {
	return len(p.StabilityPoolScripts) == 0 && len(p.StabilityPoolDatumHashes) == 0 &&
		len(p.RobScripts) == 0 && len(p.RobDatumHashes) == 0
}

// IsIAssetPolicy reports whether policyID is a configured iAsset policy, or any
// non-INDY policy when none are configured.
func (p Protocol) IsIAssetPolicy(policyID string) bool {
	policyID = normHex(policyID)
	if policyID == "" {
		return false
	}
	if len(p.IAssetPolicies) == 0 {
		return policyID != p.IndyPolicy
	}
	return containsSorted(p.IAssetPolicies, policyID)
}

func (p Protocol) IsIndyPolicy(policyID string) bool {
	return p.IndyPolicy != "" && normHex(policyID) == p.IndyPolicy
}

// IsStabilityPoolUtxo reports whether u sits at a stability pool script.
func (p Protocol) IsStabilityPoolUtxo(u UtxoView) bool {
	if len(p.StabilityPoolScripts) == 0 && len(p.StabilityPoolDatumHashes) == 0 {
		if !p.Heuristic() {
			return false
		}
		return u.Datum != nil && p.heldIAsset(u) != ""
	}
	if len(p.StabilityPoolScripts) > 0 && !containsSorted(p.StabilityPoolScripts, normHex(u.PaymentCred)) {
		return false
	}
	if len(p.StabilityPoolDatumHashes) > 0 {
		if u.Datum == nil || !containsSorted(p.StabilityPoolDatumHashes, normHex(u.Datum.Hash)) {
			return false
		}
	}
	return datumMatches(p.StabilityPoolDatum, u.Datum)
}

// IsRobUtxo reports whether u sits at a redemption order book script.
func (p Protocol) IsRobUtxo(u UtxoView) bool {
	if len(p.RobScripts) == 0 && len(p.RobDatumHashes) == 0 {
		if !p.Heuristic() {
			return false
		}
		// heuristic: an order is a datum-carrying UTxO holding only ADA
		return u.Datum != nil && len(u.Assets) == 0
	}
	if len(p.RobScripts) > 0 && !containsSorted(p.RobScripts, normHex(u.PaymentCred)) {
		return false
	}
	if len(p.RobDatumHashes) > 0 {
		if u.Datum == nil || !containsSorted(p.RobDatumHashes, normHex(u.Datum.Hash)) {
			return false
		}
	}
	return datumMatches(p.RobDatum, u.Datum)
}

// IsStakingScript reports whether a redeemer or withdrawal targets the INDY staking script.
func (p Protocol) IsStakingScript(scriptHash string) bool {
	return len(p.StakingScripts) > 0 && containsSorted(p.StakingScripts, normHex(scriptHash))
}

// PoolOf returns the iAsset unit a stability pool UTxO holds, if any.
func (p Protocol) PoolOf(u UtxoView) string {
	return p.heldIAsset(u)
}

func (p Protocol) heldIAsset(u UtxoView) string {
	units := make([]string, 0, len(u.Assets))
	for _, a := range u.Assets {
		if p.IsIAssetPolicy(a.PolicyID) {
			units = append(units, a.Unit())
		}
	}
	if len(units) == 0 {
		return ""
	}
	sort.Strings(units)
	return units[0]
}

// RateFor returns the ADA-per-unit rate for an iAsset unit, looked up by unit then policy.
func (p Protocol) RateFor(unit, policyID string) (decimal.Decimal, string, bool) {
	for _, key := range []string{normHex(unit), normHex(policyID)} {
		if key == "" {
			continue
		}
		text, ok := p.Rates[key]
		if !ok || text == "" {
			continue
		}
		rate, err := decimal.NewFromString(text)
		if err != nil || !rate.IsPositive() {
			continue
		}
		return rate, "config:" + key, true
	}
	return decimal.Zero, "", false
}

func datumMatches(shape *DatumShape, datum *DatumRef) bool {
	if shape == nil {
		return true
	}
	if datum == nil || len(datum.Value) == 0 {
		return false
	}
	var body struct {
		Constructor *int              `json:"constructor"`
		Fields      []json.RawMessage `json:"fields"`
	}
	if err := json.Unmarshal(datum.Value, &body); err != nil || body.Constructor == nil {
		return false
	}
	return *body.Constructor == shape.Constructor && len(body.Fields) >= shape.MinFields
}

// DatumConstructor extracts the Plutus constructor index from a JSON datum or redeemer body.
func DatumConstructor(value json.RawMessage) (int, bool) {
	if len(value) == 0 {
		return 0, false
	}
	var body struct {
		Constructor *int `json:"constructor"`
	}
	if err := json.Unmarshal(value, &body); err != nil || body.Constructor == nil {
		return 0, false
	}
	return *body.Constructor, true
}

func normHex(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimPrefix(s, "0x")
}

func normHexList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, normHex(v))
	}
	out = uniqueSorted(out)
	if out == nil {
		return []string{}
	}
	return out
}

func containsSorted(values []string, v string) bool {
	if v == "" {
		return false
	}
	i := sort.SearchStrings(values, v)
	return i < len(values) && values[i] == v
}
