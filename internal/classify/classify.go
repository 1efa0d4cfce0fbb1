// Package classify reconstructs protocol events from normalized transactions by
// matching an ordered table of signatures against each transaction.
package classify

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gorusys/indigo-proof-of-yield/internal/model"
	"github.com/gorusys/indigo-proof-of-yield/internal/telemetry"
)

// Signature names, in table order.
const (
	SigLiquidation       = "sp_liquidation"
	SigDeposit           = "sp_deposit"
	SigWithdrawal        = "sp_withdrawal"
	SigOrderPlacement    = "rob_placement"
	SigOrderFill         = "rob_fill"
	SigOrderCancellation = "rob_cancellation"
	SigRewardWithdrawal  = "reward_withdrawal"
	SigIndyStakingClaim  = "indy_staking_claim"
	SigUnclassified      = "unclassified_movement"
)

var lovelacePerAda = decimal.NewFromInt(1_000_000)

type matchFunc func(r *run, tx *txContext) []model.Event

// Signature recognizes one event kind. A signature may emit several events for
// one transaction, for example one liquidation per burnt iAsset.
type Signature struct {
	Name  string
	Kind  model.EventKind
	match matchFunc
}

// DefaultSignatures is the signature table in match order. The index of a
// signature is the rank of the events it emits.
var DefaultSignatures = []Signature{
	{Name: SigLiquidation, Kind: model.KindStabilityPoolLiquidation, match: matchLiquidation},
	{Name: SigDeposit, Kind: model.KindStabilityPoolDeposit, match: matchDeposit},
	{Name: SigWithdrawal, Kind: model.KindStabilityPoolWithdrawal, match: matchWithdrawal},
	{Name: SigOrderPlacement, Kind: model.KindRedemptionOrderPlacement, match: matchOrderPlacement},
	{Name: SigOrderFill, Kind: model.KindRedemptionOrderFill, match: matchOrderFill},
	{Name: SigOrderCancellation, Kind: model.KindRedemptionOrderCancellation, match: matchOrderCancellation},
	{Name: SigRewardWithdrawal, Kind: model.KindStakingRewardClaim, match: matchRewardWithdrawal},
	{Name: SigIndyStakingClaim, Kind: model.KindStakingRewardClaim, match: matchIndyStakingClaim},
}

// SignatureNames lists the names of a signature table.
func SignatureNames(sigs []Signature) []string {
	names := make([]string, 0, len(sigs))
	for _, s := range sigs {
		names = append(names, s.Name)
	}
	return names
}

// Classifier is safe for concurrent use; all per-run state lives in Classify.
type Classifier struct {
	protocol   model.Protocol
	signatures []Signature
	metrics    *telemetry.Metrics
	logger     *zap.Logger
}

func New(protocol model.Protocol, metrics *telemetry.Metrics, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		protocol:   protocol.Normalize(),
		signatures: DefaultSignatures,
		metrics:    metrics,
		logger:     logger,
	}
}

// WithSignatures returns a classifier that matches only sigs, in the given order.
func (c *Classifier) WithSignatures(sigs []Signature) *Classifier {
	out := *c
	out.signatures = append([]Signature(nil), sigs...)
	return &out
}

// orderState follows one redemption order through partial fills.
type orderState struct {
	origin string
	placed bool
	slot   uint64
	time   int64
}

type run struct {
	classifier *Classifier
	orders     map[string]*orderState
}

// Classify returns the events of every in-window transaction touching the scope,
// in canonical order.
func (c *Classifier) Classify(views []model.TxView, scope model.Scope) []model.Event {
	ordered := append([]model.TxView(nil), views...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Slot != b.Slot {
			return a.Slot < b.Slot
		}
		if a.TxIndex != b.TxIndex {
			return a.TxIndex < b.TxIndex
		}
		return a.TxHash < b.TxHash
	})

	r := &run{classifier: c, orders: make(map[string]*orderState)}
	events := make([]model.Event, 0)
	var outside, incomplete int
	for i := range ordered {
		v := &ordered[i]
		if !scope.Window.Contains(v.Slot, v.Timestamp) {
			outside++
			continue
		}
		if !v.Complete() {
			incomplete++
			continue
		}
		tx := newTxContext(v, scope, c.protocol)
		if !tx.touchesScope() {
			continue
		}
		events = append(events, r.classifyTx(tx)...)
	}
	model.SortEvents(events)

	for _, e := range events {
		c.metrics.Event(string(e.Kind), string(e.Classification))
		for _, w := range e.Warnings {
			c.metrics.Warning(w.Code)
		}
	}
	c.logger.Info("classified transactions",
		zap.Int("views", len(views)),
		zap.Int("outside_window", outside),
		zap.Int("incomplete", incomplete),
		zap.Int("events", len(events)),
		zap.Bool("heuristic", c.protocol.Heuristic()),
	)
	return events
}

func (r *run) classifyTx(tx *txContext) []model.Event {
	var out []model.Event
	var matched []string
	for rank, sig := range r.classifier.signatures {
		found := sig.match(r, tx)
		if len(found) == 0 {
			continue
		}
		matched = append(matched, sig.Name)
		for i := range found {
			r.stamp(&found[i], tx, sig.Name, rank)
		}
		out = append(out, found...)
	}

	if len(out) == 0 {
		e, ok := r.unclassified(tx)
		if !ok {
			return nil
		}
		r.stamp(&e, tx, SigUnclassified, len(r.classifier.signatures))
		return []model.Event{e}
	}

	if len(matched) > 1 {
		for i := range out {
			out[i].Warnings = append(out[i].Warnings, model.NewWarning(model.WarnAmbiguous,
				"transaction matched signatures %s", strings.Join(matched, ",")))
		}
	}
	if hasWarning(tx.view.Warnings, model.WarnUnparseable) {
		for i := range out {
			out[i].Classification = model.ClassificationUnclassified
		}
	}
	return out
}

// stamp fills the fields every event carries from its transaction.
func (r *run) stamp(e *model.Event, tx *txContext, signature string, rank int) {
	v := tx.view
	e.Signature = signature
	e.Evidence.Signature = signature
	e.Rank = rank
	e.TxHash = v.TxHash
	e.Slot = v.Slot
	e.Timestamp = v.Timestamp
	e.TxIndex = v.TxIndex
	if e.Classification == "" {
		e.Classification = model.ClassificationMatched
	}
	e.Warnings = append(e.Warnings, v.Warnings...)
	e.Evidence.Normalize()
}

// unclassified emits a stability pool movement for scoped value that entered or
// left protocol scripts without matching any signature.
func (r *run) unclassified(tx *txContext) (model.Event, bool) {
	parseIssue := hasWarning(tx.view.Warnings, model.WarnUnparseable)
	if !tx.hasScriptUtxos() && !parseIssue {
		return model.Event{}, false
	}
	lovelace := tx.walletLovelace()
	assets := tx.walletAssetDeltas()
	if lovelace == 0 && len(assets) == 0 {
		return model.Event{}, false
	}

	value, missing := r.assetValue(assets)
	value = value.Add(decimal.NewFromInt(lovelace))

	kind := model.KindStabilityPoolWithdrawal
	if value.IsNegative() || (value.IsZero() && lovelace < 0) {
		kind = model.KindStabilityPoolDeposit
	}
	e := model.Event{
		Kind:               kind,
		Classification:     model.ClassificationUnclassified,
		LovelaceDelta:      lovelace,
		AssetDeltas:        assets,
		AdaEquivalentDelta: model.NewFigure(value),
		StabilityPool:      &model.StabilityPoolDetail{},
		Evidence: model.Evidence{
			Inputs:       refs(tx.spIn, tx.robIn, tx.walletIn),
			Outputs:      refs(tx.spOut, tx.robOut, tx.walletOut),
			DatumHashes:  datumHashes(tx.spIn, tx.spOut, tx.robIn, tx.robOut),
			ScriptHashes: scriptHashes(tx.spIn, tx.spOut, tx.robIn, tx.robOut, tx.stakingIn),
		},
		OutputIndex: firstIndex(tx.walletOut),
		Warnings: []model.Warning{model.NewWarning(model.WarnAmbiguous,
			"no signature matched; scoped value moved %d lovelace and %d assets", lovelace, len(assets))},
	}
	for _, unit := range missing {
		e.Warnings = append(e.Warnings, model.NewWarning(model.WarnRateUnavailable, "no rate for %s", unit))
	}
	return e, true
}

// rate looks up the configured ADA rate of an iAsset unit.
func (r *run) rate(unit, policyID string) (decimal.Decimal, string, bool) {
	return r.classifier.protocol.RateFor(unit, policyID)
}

// lovelaceValue prices qty units of an iAsset in lovelace.
func (r *run) lovelaceValue(qty decimal.Decimal, unit, policyID string) (decimal.Decimal, decimal.Decimal, string, bool) {
	rate, source, ok := r.rate(unit, policyID)
	if !ok {
		return decimal.Zero, decimal.Zero, "", false
	}
	return qty.Mul(rate).Mul(lovelacePerAda), rate, source, true
}

// assetValue prices iAsset deltas in lovelace, returning the units without a rate.
func (r *run) assetValue(assets []model.AssetAmount) (decimal.Decimal, []string) {
	total := decimal.Zero
	var missing []string
	for _, a := range assets {
		if !r.classifier.protocol.IsIAssetPolicy(a.PolicyID) {
			continue
		}
		value, _, _, ok := r.lovelaceValue(a.Quantity.Decimal(), a.Unit(), a.PolicyID)
		if !ok {
			missing = append(missing, a.Unit())
			continue
		}
		total = total.Add(value)
	}
	return total, missing
}

func hasWarning(warnings []model.Warning, code string) bool {
	for _, w := range warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}
