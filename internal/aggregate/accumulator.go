package aggregate

import (
	"github.com/shopspring/decimal"

	"github.com/gorusys/indigo-proof-of-yield/internal/model"
)

// PoolAccumulator holds running stability pool figures for one iAsset pool.
type PoolAccumulator struct {
	Pool         string
	Deposits     int
	Withdrawals  int
	Liquidations int
	Deposited    decimal.Decimal
	Withdrawn    decimal.Decimal
	Burnt        decimal.Decimal
	Received     decimal.Decimal
	BurntValue   decimal.Decimal
	MissingRates int

	// balance is the scoped iAsset balance implied by observed events. It starts
	// at zero, so balances held before the window are not reflected.
	balance       decimal.Decimal
	lastTotal     decimal.Decimal
	hasTotal      bool
	dilution      decimal.Decimal
	totalsChanges int
}

func NewPoolAccumulator(pool string) *PoolAccumulator {
	return &PoolAccumulator{
		Pool:       pool,
		Deposited:  decimal.Zero,
		Withdrawn:  decimal.Zero,
		Burnt:      decimal.Zero,
		Received:   decimal.Zero,
		BurntValue: decimal.Zero,
		balance:    decimal.Zero,
		dilution:   decimal.Zero,
	}
}

// AddEvent folds one stability pool event into the pool figures.
func (a *PoolAccumulator) AddEvent(e model.Event) {
	var before, after *model.Quantity
	var amount decimal.Decimal

	switch e.Kind {
	case model.KindStabilityPoolDeposit:
		a.Deposits++
		a.Deposited = a.Deposited.Sub(e.AdaEquivalentDelta.Decimal())
		if sp := e.StabilityPool; sp != nil {
			before, after = sp.PoolTotalBefore, sp.PoolTotalAfter
			if sp.IAssetAmount != nil {
				amount = sp.IAssetAmount.Decimal()
			}
		}
	case model.KindStabilityPoolWithdrawal:
		a.Withdrawals++
		a.Withdrawn = a.Withdrawn.Add(e.AdaEquivalentDelta.Decimal())
		if sp := e.StabilityPool; sp != nil {
			before, after = sp.PoolTotalBefore, sp.PoolTotalAfter
			if sp.IAssetAmount != nil {
				amount = sp.IAssetAmount.Decimal().Neg()
			}
		}
	case model.KindStabilityPoolLiquidation:
		a.Liquidations++
		if l := e.Liquidation; l != nil {
			before, after = l.PoolTotalBefore, l.PoolTotalAfter
			a.Burnt = a.Burnt.Add(l.IAssetBurnt.Decimal())
			a.Received = a.Received.Add(decimal.NewFromInt(l.AdaReceivedLovelace))
			if l.BurntValueLovelace != nil {
				a.BurntValue = a.BurntValue.Add(l.BurntValueLovelace.Decimal())
			} else {
				a.MissingRates++
			}
		}
	default:
		return
	}

	a.applyShare(e.Kind, amount, before, after)
}

// applyShare moves the scoped balance and accumulates the change in pool share
// across the event. Liquidations scale the balance by the pool's shrink factor.
func (a *PoolAccumulator) applyShare(kind model.EventKind, amount decimal.Decimal, before, after *model.Quantity) {
	observed := before != nil && after != nil
	shareBefore, okBefore := decimal.Zero, false
	if observed {
		shareBefore, okBefore = ratio(a.balance, before.Decimal())
	}

	switch kind {
	case model.KindStabilityPoolLiquidation:
		if observed {
			if scale, ok := ratio(after.Decimal(), before.Decimal()); ok {
				a.balance = a.balance.Mul(scale)
			}
		}
	default:
		a.balance = a.balance.Add(amount)
		if a.balance.IsNegative() {
			a.balance = decimal.Zero
		}
	}

	if !observed {
		return
	}
	a.totalsChanges++
	a.lastTotal = after.Decimal()
	a.hasTotal = true
	shareAfter, okAfter := ratio(a.balance, after.Decimal())
	if okBefore && okAfter {
		a.dilution = a.dilution.Add(shareAfter.Sub(shareBefore))
	}
}

// Metrics renders the accumulated figures.
func (a *PoolAccumulator) Metrics() model.PoolMetrics {
	out := model.PoolMetrics{
		Pool:                     a.Pool,
		Deposits:                 a.Deposits,
		Withdrawals:              a.Withdrawals,
		Liquidations:             a.Liquidations,
		DepositedLovelace:        model.NewFigure(a.Deposited),
		WithdrawnLovelace:        model.NewFigure(a.Withdrawn),
		IAssetBurnt:              model.NewFigure(a.Burnt),
		AdaReceivedLovelace:      model.NewFigure(a.Received),
		ObservedPoolTotalChanges: a.totalsChanges,
	}

	switch {
	case a.Liquidations == 0:
		out.RealizedPremiumNote = "no liquidations"
	case a.MissingRates > 0:
		out.RealizedPremiumNote = "rate unavailable for some liquidations"
	default:
		out.BurntValueLovelace = model.FigurePtr(a.BurntValue)
		premium, ok := percent(a.Received.Sub(a.BurntValue), a.BurntValue)
		out.RealizedPremiumPct = figurePtrOrNil(premium, ok)
		if !ok {
			out.RealizedPremiumNote = "burnt value is zero"
		}
	}

	if a.totalsChanges == 0 {
		out.DilutionNote = "pool totals not observed"
	} else {
		out.DilutionEstimate = model.FigurePtr(a.dilution)
		share, ok := ratio(a.balance, a.lastTotal)
		out.FinalShare = figurePtrOrNil(share, ok && a.hasTotal)
	}
	return out
}
