package classify

import (
	"github.com/shopspring/decimal"

	"github.com/gorusys/indigo-proof-of-yield/internal/model"
)

// matchLiquidation: a stability pool input is spent while an iAsset is burnt.
// One event per burnt iAsset.
func matchLiquidation(r *run, tx *txContext) []model.Event {
	if len(tx.spIn) == 0 {
		return nil
	}
	burns := tx.burns()
	if len(burns) == 0 {
		return nil
	}

	var events []model.Event
	for _, burn := range burns {
		unit := burn.Unit()
		burnt := burn.Quantity.Decimal().Neg()
		poolIn := tx.poolUtxos(tx.spIn, unit)
		poolOut := tx.poolUtxos(tx.spOut, unit)

		// ADA credited to the scoped pool account, or to the pool as a whole when
		// no pool UTxO carries the scope.
		creditIn, creditOut := tx.touching(poolIn), tx.touching(poolOut)
		if len(creditIn)+len(creditOut) == 0 {
			creditIn, creditOut = poolIn, poolOut
		}
		received := sumLovelace(creditOut) - sumLovelace(creditIn)

		e := model.Event{
			Kind:          model.KindStabilityPoolLiquidation,
			Pool:          unit,
			LovelaceDelta: tx.walletLovelace(),
			AssetDeltas:   tx.walletAssetDeltas(),
			OutputIndex:   firstIndex(creditOut),
			Evidence: model.Evidence{
				Inputs:       refs(poolIn),
				Outputs:      refs(poolOut),
				DatumHashes:  datumHashes(poolIn, poolOut),
				PolicyIDs:    []string{burn.PolicyID},
				ScriptHashes: scriptHashes(poolIn, poolOut),
			},
		}
		if received <= 0 {
			if credit := tx.walletLovelace(); credit > 0 {
				received = credit
				e.OutputIndex = firstIndex(tx.walletOut)
			}
		}
		if received <= 0 {
			e.Classification = model.ClassificationUnclassified
			e.Warnings = append(e.Warnings, model.NewWarning(model.WarnContradictory,
				"iAsset %s burnt but no ADA credited to the pool or the scope", unit))
			received = 0
		}

		detail := &model.LiquidationDetail{
			IAsset:              unit,
			IAssetBurnt:         model.NewQuantity(burnt),
			AdaReceivedLovelace: received,
		}
		if len(poolIn) > 0 && len(poolOut) > 0 {
			before := model.NewQuantity(sumAsset(poolIn, unit))
			after := model.NewQuantity(sumAsset(poolOut, unit))
			detail.PoolTotalBefore, detail.PoolTotalAfter = &before, &after
		} else {
			e.Warnings = append(e.Warnings, model.NewWarning(model.WarnPoolTotalUnavailable,
				"pool %s totals not observed on both sides", unit))
		}

		if value, rate, source, ok := r.lovelaceValue(burnt, unit, burn.PolicyID); ok {
			detail.BurntValueLovelace = model.FigurePtr(value)
			e.Evidence.EffectiveRate = model.FigurePtr(rate)
			e.Evidence.RateSource = source
		} else {
			e.Warnings = append(e.Warnings, model.NewWarning(model.WarnRateUnavailable,
				"no rate for %s; burnt value left empty", unit))
		}
		e.Liquidation = detail
		e.AdaEquivalentDelta = model.FigureFromInt(received)
		events = append(events, e)
	}
	return events
}

func matchDeposit(r *run, tx *txContext) []model.Event {
	return matchPoolMovement(r, tx, model.KindStabilityPoolDeposit)
}

func matchWithdrawal(r *run, tx *txContext) []model.Event {
	return matchPoolMovement(r, tx, model.KindStabilityPoolWithdrawal)
}

// matchPoolMovement: iAsset moves between the scoped wallet and a stability pool
// without a burn. Wallet outflow is a deposit, inflow a withdrawal. Only the
// iAsset leg is valued; ADA paid out of the pool was already counted when the
// liquidation credited it.
func matchPoolMovement(r *run, tx *txContext, kind model.EventKind) []model.Event {
	if len(tx.spIn)+len(tx.spOut) == 0 || len(tx.burns()) > 0 {
		return nil
	}

	var events []model.Event
	for _, unit := range tx.pools(tx.spIn, tx.spOut) {
		moved := tx.walletAsset(unit)
		if kind == model.KindStabilityPoolDeposit {
			moved = moved.Neg()
		}
		if !moved.IsPositive() {
			continue
		}
		poolIn := tx.poolUtxos(tx.spIn, unit)
		poolOut := tx.poolUtxos(tx.spOut, unit)
		amount := model.NewQuantity(moved)

		detail := &model.StabilityPoolDetail{IAsset: unit, IAssetAmount: &amount}
		e := model.Event{
			Kind:          kind,
			Pool:          unit,
			LovelaceDelta: tx.walletLovelace(),
			AssetDeltas:   tx.walletAssetDeltas(),
			StabilityPool: detail,
			Evidence: model.Evidence{
				Inputs:       refs(poolIn, tx.walletIn),
				Outputs:      refs(poolOut, tx.walletOut),
				DatumHashes:  datumHashes(poolIn, poolOut),
				PolicyIDs:    []string{policyOf(unit, tx)},
				ScriptHashes: scriptHashes(poolIn, poolOut),
			},
		}
		if kind == model.KindStabilityPoolDeposit {
			e.OutputIndex = firstIndex(poolOut)
		} else {
			e.OutputIndex = firstIndex(tx.walletOut)
		}

		if len(poolIn) > 0 && len(poolOut) > 0 {
			before := model.NewQuantity(sumAsset(poolIn, unit))
			after := model.NewQuantity(sumAsset(poolOut, unit))
			detail.PoolTotalBefore, detail.PoolTotalAfter = &before, &after
		}

		value, rate, source, ok := r.lovelaceValue(moved, unit, policyOf(unit, tx))
		if ok {
			if kind == model.KindStabilityPoolDeposit {
				value = value.Neg()
			}
			e.AdaEquivalentDelta = model.NewFigure(value)
			e.Evidence.EffectiveRate = model.FigurePtr(rate)
			e.Evidence.RateSource = source
		} else {
			e.AdaEquivalentDelta = model.FigureFromInt(0)
			e.Warnings = append(e.Warnings, model.NewWarning(model.WarnRateUnavailable,
				"no rate for %s; ADA-equivalent value left at zero", unit))
		}
		events = append(events, e)
	}
	return events
}

// matchOrderPlacement: the scoped wallet funds new order book UTxOs.
func matchOrderPlacement(r *run, tx *txContext) []model.Event {
	if len(tx.robOut) == 0 || len(tx.robIn) > 0 || len(tx.walletIn) == 0 {
		return nil
	}
	orders := tx.touching(tx.robOut)
	if len(orders) == 0 {
		orders = tx.robOut
	}

	var events []model.Event
	for _, u := range orders {
		r.orders[u.Ref] = &orderState{origin: u.Ref, placed: true, slot: tx.view.Slot, time: tx.view.Timestamp}
		e := model.Event{
			Kind:               model.KindRedemptionOrderPlacement,
			LovelaceDelta:      tx.walletLovelace(),
			AssetDeltas:        tx.walletAssetDeltas(),
			AdaEquivalentDelta: model.FigureFromInt(-u.Lovelace),
			OutputIndex:        refIndex(u.Ref),
			Order: &model.OrderDetail{
				OrderRef:          u.Ref,
				FaceValueLovelace: u.Lovelace,
			},
			Evidence: model.Evidence{
				Inputs:       refs(tx.walletIn),
				Outputs:      []string{u.Ref},
				DatumHashes:  datumHashes([]model.UtxoView{u}),
				ScriptHashes: scriptHashes([]model.UtxoView{u}),
			},
		}
		events = append(events, e)
	}
	return events
}

type orderOutcome int

const (
	outcomeNone orderOutcome = iota
	outcomeFill
	outcomeCancel
)

// scopedOrders lists consumed order UTxOs that belong to the scope, either by
// address or because their placement was observed.
func (r *run) scopedOrders(tx *txContext) []model.UtxoView {
	var out []model.UtxoView
	for _, u := range tx.robIn {
		if _, tracked := r.orders[u.Ref]; tracked || tx.scope.Touches(u.Address, u.StakeAddress) {
			out = append(out, u)
		}
	}
	return out
}

// continuation finds the order UTxO that carries a partially filled order forward.
func continuation(tx *txContext, order model.UtxoView) (model.UtxoView, bool) {
	for _, u := range tx.robOut {
		if u.Address == order.Address && u.Lovelace < order.Lovelace {
			return u, true
		}
	}
	return model.UtxoView{}, false
}

func (r *run) outcome(tx *txContext, order model.UtxoView) orderOutcome {
	if cancel := r.classifier.protocol.RobCancelRedeemer; cancel != nil {
		if ctor, ok := tx.redeemerConstructor(order.Ref); ok && ctor == *cancel {
			return outcomeCancel
		}
		return outcomeFill
	}
	if _, ok := continuation(tx, order); ok {
		return outcomeFill
	}
	for _, a := range tx.walletAssetDeltas() {
		if a.Quantity.Decimal().IsPositive() && r.classifier.protocol.IsIAssetPolicy(a.PolicyID) {
			return outcomeFill
		}
	}
	if tx.walletLovelace() > 0 {
		return outcomeCancel
	}
	return outcomeNone
}

// track moves an order's state from the consumed UTxO to its continuation.
func (r *run) track(order model.UtxoView, next *model.UtxoView) *orderState {
	state, ok := r.orders[order.Ref]
	if !ok {
		state = &orderState{origin: order.Ref}
	}
	delete(r.orders, order.Ref)
	if next != nil {
		r.orders[next.Ref] = state
	}
	return state
}

// matchOrderFill: a scoped order is consumed and the owner receives iAssets,
// possibly leaving a continuation order for the unfilled remainder.
func matchOrderFill(r *run, tx *txContext) []model.Event {
	var filled []model.UtxoView
	for _, u := range r.scopedOrders(tx) {
		if r.outcome(tx, u) == outcomeFill {
			filled = append(filled, u)
		}
	}
	if len(filled) == 0 {
		return nil
	}

	details := make([]*model.OrderDetail, len(filled))
	nexts := make([]*model.UtxoView, len(filled))
	faces := make([]int64, len(filled))
	for i, u := range filled {
		detail := &model.OrderDetail{FaceValueLovelace: u.Lovelace}
		if cont, ok := continuation(tx, u); ok {
			nexts[i] = &cont
			detail.ContinuationRef = cont.Ref
			detail.FaceValueLovelace = u.Lovelace - cont.Lovelace
		}
		details[i] = detail
		faces[i] = detail.FaceValueLovelace
	}

	received, rate, source, missing := r.receivedValue(tx)
	shares := splitByFace(received, faces)
	var events []model.Event
	for i, u := range filled {
		detail, next := details[i], nexts[i]
		state := r.track(u, next)
		detail.OrderRef = state.origin

		e := model.Event{
			Kind:          model.KindRedemptionOrderFill,
			LovelaceDelta: tx.walletLovelace(),
			AssetDeltas:   tx.walletAssetDeltas(),
			OutputIndex:   firstIndex(tx.walletOut),
			Order:         detail,
			Evidence: model.Evidence{
				Inputs:       []string{u.Ref},
				Outputs:      refs(tx.walletOut),
				DatumHashes:  datumHashes([]model.UtxoView{u}),
				ScriptHashes: scriptHashes([]model.UtxoView{u}),
			},
		}
		if next != nil {
			e.Evidence.Outputs = append(e.Evidence.Outputs, next.Ref)
		}
		for _, a := range tx.walletAssetDeltas() {
			if a.Quantity.Decimal().IsPositive() && r.classifier.protocol.IsIAssetPolicy(a.PolicyID) {
				detail.IAsset = a.Unit()
				e.Evidence.PolicyIDs = append(e.Evidence.PolicyIDs, a.PolicyID)
			}
		}

		if state.placed {
			slots := tx.view.Slot - state.slot
			seconds := tx.view.Timestamp - state.time
			detail.CooldownSlots = &slots
			detail.CooldownSeconds = &seconds
		}

		if len(missing) > 0 {
			e.AdaEquivalentDelta = model.FigureFromInt(0)
			for _, unit := range missing {
				e.Warnings = append(e.Warnings, model.NewWarning(model.WarnRateUnavailable,
					"no rate for %s; received value left empty", unit))
			}
			events = append(events, e)
			continue
		}
		if len(filled) > 1 {
			e.Warnings = append(e.Warnings, model.NewWarning(model.WarnAmbiguous,
				"%d scoped orders filled in one transaction; received value split by face value", len(filled)))
		}
		share := shares[i]
		e.AdaEquivalentDelta = model.NewFigure(share)
		detail.ReceivedValue = model.FigurePtr(share)
		premium := share.Sub(decimal.NewFromInt(detail.FaceValueLovelace))
		detail.PremiumLovelace = model.FigurePtr(premium)
		if detail.FaceValueLovelace > 0 {
			pct := premium.Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(detail.FaceValueLovelace))
			detail.PremiumPct = model.FigurePtr(pct)
		}
		if source != "" {
			e.Evidence.EffectiveRate = model.FigurePtr(rate)
			e.Evidence.RateSource = source
		}
		events = append(events, e)
	}
	return events
}

// splitByFace divides total across orders in proportion to their face values.
// The last order takes the rounding remainder so the parts sum to total. With
// no face value at all the split is even.
func splitByFace(total decimal.Decimal, faces []int64) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(faces))
	if len(faces) == 0 {
		return shares
	}
	var sum int64
	for _, f := range faces {
		sum += f
	}
	allocated := decimal.Zero
	last := len(faces) - 1
	for i, f := range faces[:last] {
		var share decimal.Decimal
		if sum > 0 {
			share = total.Mul(decimal.NewFromInt(f)).Div(decimal.NewFromInt(sum))
		} else {
			share = total.Div(decimal.NewFromInt(int64(len(faces))))
		}
		share = share.RoundBank(model.FigurePrecision)
		shares[i] = share
		allocated = allocated.Add(share)
	}
	shares[last] = total.Sub(allocated)
	return shares
}

// receivedValue prices everything the scoped wallet received in lovelace: iAssets
// at their configured rate plus any net lovelace credit.
func (r *run) receivedValue(tx *txContext) (decimal.Decimal, decimal.Decimal, string, []string) {
	total := decimal.Zero
	if credit := tx.walletLovelace(); credit > 0 {
		total = total.Add(decimal.NewFromInt(credit))
	}
	var lastRate decimal.Decimal
	var lastSource string
	var missing []string
	for _, a := range tx.walletAssetDeltas() {
		if !a.Quantity.Decimal().IsPositive() || !r.classifier.protocol.IsIAssetPolicy(a.PolicyID) {
			continue
		}
		value, rate, source, ok := r.lovelaceValue(a.Quantity.Decimal(), a.Unit(), a.PolicyID)
		if !ok {
			missing = append(missing, a.Unit())
			continue
		}
		total = total.Add(value)
		lastRate, lastSource = rate, source
	}
	return total, lastRate, lastSource, missing
}

// matchOrderCancellation: a scoped order is consumed and its ADA returned.
func matchOrderCancellation(r *run, tx *txContext) []model.Event {
	var events []model.Event
	for _, u := range r.scopedOrders(tx) {
		if r.outcome(tx, u) != outcomeCancel {
			continue
		}
		state := r.track(u, nil)
		e := model.Event{
			Kind:               model.KindRedemptionOrderCancellation,
			LovelaceDelta:      tx.walletLovelace(),
			AssetDeltas:        tx.walletAssetDeltas(),
			AdaEquivalentDelta: model.FigureFromInt(u.Lovelace),
			OutputIndex:        firstIndex(tx.walletOut),
			Order: &model.OrderDetail{
				OrderRef:          state.origin,
				FaceValueLovelace: u.Lovelace,
			},
			Evidence: model.Evidence{
				Inputs:       []string{u.Ref},
				Outputs:      refs(tx.walletOut),
				DatumHashes:  datumHashes([]model.UtxoView{u}),
				ScriptHashes: scriptHashes([]model.UtxoView{u}),
			},
		}
		events = append(events, e)
	}
	return events
}

// matchRewardWithdrawal: ledger staking rewards withdrawn from a scoped stake address.
func matchRewardWithdrawal(_ *run, tx *txContext) []model.Event {
	var events []model.Event
	for _, w := range tx.view.Withdrawals {
		if w.Lovelace <= 0 {
			continue
		}
		if _, ok := tx.stakeAddrs[w.StakeAddress]; !ok {
			continue
		}
		e := model.Event{
			Kind:               model.KindStakingRewardClaim,
			LovelaceDelta:      tx.walletLovelace(),
			AssetDeltas:        tx.walletAssetDeltas(),
			AdaEquivalentDelta: model.FigureFromInt(w.Lovelace),
			OutputIndex:        firstIndex(tx.walletOut),
			Reward: &model.RewardDetail{
				Source:         model.RewardLedgerWithdrawal,
				AmountLovelace: w.Lovelace,
				Epoch:          tx.view.Epoch,
			},
			Evidence: model.Evidence{Outputs: refs(tx.walletOut)},
		}
		events = append(events, e)
	}
	return events
}

// matchIndyStakingClaim: a staking script UTxO or redeemer is involved and the
// scoped wallet ends up with more ADA.
func matchIndyStakingClaim(r *run, tx *txContext) []model.Event {
	p := r.classifier.protocol
	involved := len(tx.stakingIn) > 0
	var scripts []string
	for _, red := range tx.view.Redeemers {
		if p.IsStakingScript(red.ScriptHash) {
			involved = true
			scripts = append(scripts, red.ScriptHash)
		}
	}
	if !involved {
		return nil
	}
	credit := tx.walletLovelace()
	for _, w := range tx.view.Withdrawals {
		if _, ok := tx.stakeAddrs[w.StakeAddress]; ok {
			credit -= w.Lovelace
		}
	}
	if credit <= 0 {
		return nil
	}

	detail := &model.RewardDetail{
		Source:         model.RewardIndyStaking,
		AmountLovelace: credit,
		Epoch:          tx.view.Epoch,
	}
	e := model.Event{
		Kind:          model.KindStakingRewardClaim,
		LovelaceDelta: tx.walletLovelace(),
		AssetDeltas:   tx.walletAssetDeltas(),
		OutputIndex:   firstIndex(tx.walletOut),
		Reward:        detail,
		Evidence: model.Evidence{
			Inputs:       refs(tx.stakingIn),
			Outputs:      refs(tx.walletOut),
			DatumHashes:  datumHashes(tx.stakingIn),
			ScriptHashes: append(scriptHashes(tx.stakingIn), scripts...),
		},
	}
	value := decimal.NewFromInt(credit)

	// INDY minted straight to the wallet is an emission reward.
	for _, a := range tx.view.Mint {
		if !p.IsIndyPolicy(a.PolicyID) || !a.Quantity.Decimal().IsPositive() {
			continue
		}
		got := tx.walletAsset(a.Unit())
		if !got.IsPositive() {
			continue
		}
		qty := decimal.Min(got, a.Quantity.Decimal())
		amount := model.NewQuantity(qty)
		detail.IndyAmount = &amount
		e.Evidence.PolicyIDs = append(e.Evidence.PolicyIDs, a.PolicyID)
		if v, rate, source, ok := r.lovelaceValue(qty, a.Unit(), a.PolicyID); ok {
			value = value.Add(v)
			e.Evidence.EffectiveRate = model.FigurePtr(rate)
			e.Evidence.RateSource = source
		} else {
			e.Warnings = append(e.Warnings, model.NewWarning(model.WarnRateUnavailable,
				"no rate for INDY %s; only the ADA part is valued", a.Unit()))
		}
		break
	}
	e.AdaEquivalentDelta = model.NewFigure(value)
	return []model.Event{e}
}

func policyOf(unit string, tx *txContext) string {
	for _, set := range [][]model.UtxoView{tx.spIn, tx.spOut, tx.walletIn, tx.walletOut} {
		for _, u := range set {
			for _, a := range u.Assets {
				if a.Unit() == unit {
					return a.PolicyID
				}
			}
		}
	}
	return ""
}
