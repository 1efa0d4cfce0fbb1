package classify

import (
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/gorusys/indigo-proof-of-yield/internal/model"
)

// txContext partitions one transaction's UTxOs into protocol script UTxOs and
// the scoped wallet UTxOs whose value movements events are measured against.
type txContext struct {
	view     *model.TxView
	scope    model.Scope
	protocol model.Protocol

	spIn, spOut         []model.UtxoView
	robIn, robOut       []model.UtxoView
	stakingIn           []model.UtxoView
	walletIn, walletOut []model.UtxoView
	stakeAddrs          map[string]struct{}
}

func newTxContext(view *model.TxView, scope model.Scope, protocol model.Protocol) *txContext {
	tx := &txContext{
		view:       view,
		scope:      scope,
		protocol:   protocol,
		stakeAddrs: make(map[string]struct{}),
	}
	if scope.StakeAddress != "" {
		tx.stakeAddrs[scope.StakeAddress] = struct{}{}
	}

	place := func(u model.UtxoView, input bool) {
		switch {
		case protocol.IsStabilityPoolUtxo(u):
			if input {
				tx.spIn = append(tx.spIn, u)
			} else {
				tx.spOut = append(tx.spOut, u)
			}
		case protocol.IsRobUtxo(u):
			if input {
				tx.robIn = append(tx.robIn, u)
			} else {
				tx.robOut = append(tx.robOut, u)
			}
		case protocol.IsStakingScript(u.PaymentCred):
			if input {
				tx.stakingIn = append(tx.stakingIn, u)
			}
		case scope.Touches(u.Address, u.StakeAddress):
			if input {
				tx.walletIn = append(tx.walletIn, u)
			} else {
				tx.walletOut = append(tx.walletOut, u)
			}
			if u.StakeAddress != "" {
				tx.stakeAddrs[u.StakeAddress] = struct{}{}
			}
		}
	}
	for _, u := range view.Inputs {
		place(u, true)
	}
	for _, u := range view.Outputs {
		place(u, false)
	}
	return tx
}

// touchesScope reports whether any UTxO or reward withdrawal of the transaction
// belongs to the scope.
func (t *txContext) touchesScope() bool {
	for _, u := range t.view.Inputs {
		if t.scope.Touches(u.Address, u.StakeAddress) {
			return true
		}
	}
	for _, u := range t.view.Outputs {
		if t.scope.Touches(u.Address, u.StakeAddress) {
			return true
		}
	}
	for _, w := range t.view.Withdrawals {
		if t.scope.StakeAddress != "" && w.StakeAddress == t.scope.StakeAddress {
			return true
		}
	}
	return false
}

func (t *txContext) hasScriptUtxos() bool {
	return len(t.spIn)+len(t.spOut)+len(t.robIn)+len(t.robOut)+len(t.stakingIn) > 0
}

func (t *txContext) touching(utxos []model.UtxoView) []model.UtxoView {
	var out []model.UtxoView
	for _, u := range utxos {
		if t.scope.Touches(u.Address, u.StakeAddress) {
			out = append(out, u)
		}
	}
	return out
}

// walletLovelace is the net lovelace received by the scoped wallet.
func (t *txContext) walletLovelace() int64 {
	return sumLovelace(t.walletOut) - sumLovelace(t.walletIn)
}

// walletAsset is the net quantity of unit received by the scoped wallet.
func (t *txContext) walletAsset(unit string) decimal.Decimal {
	total := decimal.Zero
	for _, u := range t.walletOut {
		total = total.Add(u.AssetQuantity(unit))
	}
	for _, u := range t.walletIn {
		total = total.Sub(u.AssetQuantity(unit))
	}
	return total
}

// walletAssetDeltas lists the non-zero native asset movements of the scoped wallet.
func (t *txContext) walletAssetDeltas() []model.AssetAmount {
	totals := make(map[string]model.AssetAmount)
	add := func(utxos []model.UtxoView, sign int64) {
		for _, u := range utxos {
			for _, a := range u.Assets {
				cur, ok := totals[a.Unit()]
				if !ok {
					cur = model.AssetAmount{PolicyID: a.PolicyID, AssetName: a.AssetName, Quantity: model.NewQuantity(decimal.Zero)}
				}
				cur.Quantity = model.NewQuantity(cur.Quantity.Decimal().Add(a.Quantity.Decimal().Mul(decimal.NewFromInt(sign))))
				totals[a.Unit()] = cur
			}
		}
	}
	add(t.walletOut, 1)
	add(t.walletIn, -1)

	out := make([]model.AssetAmount, 0, len(totals))
	for _, a := range totals {
		if a.Quantity.Decimal().IsZero() {
			continue
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil
	}
	model.SortAssets(out)
	return out
}

// burns lists iAsset units burnt by the transaction, sorted by unit.
func (t *txContext) burns() []model.AssetAmount {
	var out []model.AssetAmount
	for _, a := range t.view.Mint {
		if a.Quantity.Decimal().IsNegative() && t.protocol.IsIAssetPolicy(a.PolicyID) {
			out = append(out, a)
		}
	}
	model.SortAssets(out)
	return out
}

// pools lists the iAsset units held by the given stability pool UTxOs.
func (t *txContext) pools(utxos ...[]model.UtxoView) []string {
	var units []string
	for _, set := range utxos {
		for _, u := range set {
			if unit := t.protocol.PoolOf(u); unit != "" {
				units = append(units, unit)
			}
		}
	}
	return uniqueSorted(units)
}

// poolUtxos selects the UTxOs of one pool, or all of them when none hold the unit.
func (t *txContext) poolUtxos(utxos []model.UtxoView, unit string) []model.UtxoView {
	var out []model.UtxoView
	for _, u := range utxos {
		if t.protocol.PoolOf(u) == unit {
			out = append(out, u)
		}
	}
	if len(out) == 0 {
		return utxos
	}
	return out
}

func (t *txContext) redeemerConstructor(ref string) (int, bool) {
	r, ok := t.view.RedeemerFor(ref)
	if !ok {
		return 0, false
	}
	return model.DatumConstructor(r.Value)
}

func sumLovelace(utxos []model.UtxoView) int64 {
	var total int64
	for _, u := range utxos {
		total += u.Lovelace
	}
	return total
}

func sumAsset(utxos []model.UtxoView, unit string) decimal.Decimal {
	total := decimal.Zero
	for _, u := range utxos {
		total = total.Add(u.AssetQuantity(unit))
	}
	return total
}

func refs(utxos ...[]model.UtxoView) []string {
	var out []string
	for _, set := range utxos {
		for _, u := range set {
			out = append(out, u.Ref)
		}
	}
	return out
}

func datumHashes(utxos ...[]model.UtxoView) []string {
	var out []string
	for _, set := range utxos {
		for _, u := range set {
			if u.Datum != nil && u.Datum.Hash != "" {
				out = append(out, u.Datum.Hash)
			}
		}
	}
	return out
}

func scriptHashes(utxos ...[]model.UtxoView) []string {
	var out []string
	for _, set := range utxos {
		for _, u := range set {
			if u.PaymentCred != "" {
				out = append(out, u.PaymentCred)
			}
		}
	}
	return out
}

// refIndex returns the output index of a "hash#index" reference.
func refIndex(ref string) uint32 {
	i := strings.LastIndexByte(ref, '#')
	if i < 0 {
		return 0
	}
	v, err := strconv.ParseUint(ref[i+1:], 10, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}

func firstIndex(utxos []model.UtxoView) uint32 {
	if len(utxos) == 0 {
		return 0
	}
	return refIndex(utxos[0].Ref)
}

func uniqueSorted(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := append([]string(nil), values...)
	sort.Strings(out)
	j := 0
	for i, v := range out {
		if i > 0 && v == out[j-1] {
			continue
		}
		out[j] = v
		j++
	}
	return out[:j]
}
