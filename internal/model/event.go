package model

import (
	"fmt"
	"sort"
)

// EventKind is the closed set of reconstructed domain events.
type EventKind string

const (
	KindStabilityPoolDeposit        EventKind = "stability_pool_deposit"
	KindStabilityPoolWithdrawal     EventKind = "stability_pool_withdrawal"
	KindStabilityPoolLiquidation    EventKind = "stability_pool_liquidation"
	KindRedemptionOrderPlacement    EventKind = "redemption_order_placement"
	KindRedemptionOrderFill         EventKind = "redemption_order_fill"
	KindRedemptionOrderCancellation EventKind = "redemption_order_cancellation"
	KindStakingRewardClaim          EventKind = "staking_reward_claim"
)

// EventKinds lists every kind in report order.
var EventKinds = []EventKind{
	KindStabilityPoolDeposit,
	KindStabilityPoolWithdrawal,
	KindStabilityPoolLiquidation,
	KindRedemptionOrderPlacement,
	KindRedemptionOrderFill,
	KindRedemptionOrderCancellation,
	KindStakingRewardClaim,
}

func (k EventKind) Valid() bool {
	for _, known := range EventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Classification tags how confidently an event was recognized.
type Classification string

const (
	ClassificationMatched      Classification = "matched"
	ClassificationUnclassified Classification = "unclassified_movement"
)

// Warning codes attached to views and events.
const (
	WarnUnresolvedReference  = "unresolved_reference"
	WarnAmbiguous            = "ambiguous_classification"
	WarnUnparseable          = "unparseable_record"
	WarnContradictory        = "contradictory_record"
	WarnRateUnavailable      = "rate_unavailable"
	WarnPoolTotalUnavailable = "pool_total_unavailable"
	WarnDatumHashMismatch    = "datum_hash_mismatch"
)

// Warning is a non-fatal observation carried alongside derived data.
type Warning struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

func NewWarning(code, format string, args ...any) Warning {
	return Warning{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// Evidence lists the ledger facts an event was derived from.
type Evidence struct {
	Signature     string   `json:"signature"`
	Inputs        []string `json:"inputs,omitempty"`
	Outputs       []string `json:"outputs,omitempty"`
	DatumHashes   []string `json:"datum_hashes,omitempty"`
	PolicyIDs     []string `json:"policy_ids,omitempty"`
	ScriptHashes  []string `json:"script_hashes,omitempty"`
	EffectiveRate *Figure  `json:"effective_rate,omitempty"`
	RateSource    string   `json:"rate_source,omitempty"`
}

// Normalize sorts and de-duplicates the reference lists.
func (e *Evidence) Normalize() {
	e.Inputs = uniqueSorted(e.Inputs)
	e.Outputs = uniqueSorted(e.Outputs)
	e.DatumHashes = uniqueSorted(e.DatumHashes)
	e.PolicyIDs = uniqueSorted(e.PolicyIDs)
	e.ScriptHashes = uniqueSorted(e.ScriptHashes)
}

type LiquidationDetail struct {
	IAsset              string    `json:"iasset"`
	IAssetBurnt         Quantity  `json:"iasset_burnt"`
	AdaReceivedLovelace int64     `json:"ada_received_lovelace"`
	BurntValueLovelace  *Figure   `json:"burnt_value_lovelace,omitempty"`
	PoolTotalBefore     *Quantity `json:"pool_total_before,omitempty"`
	PoolTotalAfter      *Quantity `json:"pool_total_after,omitempty"`
}

type StabilityPoolDetail struct {
	IAsset          string    `json:"iasset,omitempty"`
	IAssetAmount    *Quantity `json:"iasset_amount,omitempty"`
	PoolTotalBefore *Quantity `json:"pool_total_before,omitempty"`
	PoolTotalAfter  *Quantity `json:"pool_total_after,omitempty"`
}

type OrderDetail struct {
	OrderRef          string  `json:"order_ref"`
	ContinuationRef   string  `json:"continuation_ref,omitempty"`
	IAsset            string  `json:"iasset,omitempty"`
	FaceValueLovelace int64   `json:"face_value_lovelace"`
	ReceivedValue     *Figure `json:"received_value_lovelace,omitempty"`
	PremiumLovelace   *Figure `json:"premium_lovelace,omitempty"`
	PremiumPct        *Figure `json:"premium_pct,omitempty"`
	CooldownSlots     *uint64 `json:"cooldown_slots,omitempty"`
	CooldownSeconds   *int64  `json:"cooldown_seconds,omitempty"`
}

// Reward sources.
const (
	RewardLedgerWithdrawal = "ledger_withdrawal"
	RewardIndyStaking      = "indy_staking"
)

type RewardDetail struct {
	Source         string    `json:"source"`
	AmountLovelace int64     `json:"amount_lovelace"`
	IndyAmount     *Quantity `json:"indy_amount,omitempty"`
	Epoch          *int64    `json:"epoch,omitempty"`
}

// Event is one reconstructed domain event. Exactly one detail block matches Kind.
type Event struct {
	Kind               EventKind            `json:"kind"`
	Classification     Classification       `json:"classification"`
	Signature          string               `json:"signature"`
	TxHash             string               `json:"tx_hash"`
	Slot               uint64               `json:"slot"`
	Timestamp          int64                `json:"timestamp"`
	TxIndex            uint32               `json:"tx_index"`
	OutputIndex        uint32               `json:"output_index"`
	Rank               int                  `json:"rank"`
	Pool               string               `json:"pool,omitempty"`
	LovelaceDelta      int64                `json:"lovelace_delta"`
	AssetDeltas        []AssetAmount        `json:"asset_deltas,omitempty"`
	AdaEquivalentDelta Figure               `json:"ada_equivalent_delta"`
	Liquidation        *LiquidationDetail   `json:"liquidation,omitempty"`
	StabilityPool      *StabilityPoolDetail `json:"stability_pool,omitempty"`
	Order              *OrderDetail         `json:"order,omitempty"`
	Reward             *RewardDetail        `json:"reward,omitempty"`
	Evidence           Evidence             `json:"evidence"`
	Warnings           []Warning            `json:"warnings,omitempty"`
}

// Less orders events by slot, tx index, tx hash, output index, then signature rank.
func (e Event) Less(other Event) bool {
	if e.Slot != other.Slot {
		return e.Slot < other.Slot
	}
	if e.TxIndex != other.TxIndex {
		return e.TxIndex < other.TxIndex
	}
	if e.TxHash != other.TxHash {
		return e.TxHash < other.TxHash
	}
	if e.OutputIndex != other.OutputIndex {
		return e.OutputIndex < other.OutputIndex
	}
	if e.Rank != other.Rank {
		return e.Rank < other.Rank
	}
	return e.Kind < other.Kind
}

// SortEvents orders events canonically.
func SortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Less(events[j])
	})
}

func uniqueSorted(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
