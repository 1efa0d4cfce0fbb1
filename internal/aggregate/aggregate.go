// Package aggregate derives the summary metrics of a scope from its ordered events.
package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/gorusys/indigo-proof-of-yield/internal/model"
)

// Options controls how the window is resolved to wall-clock time.
type Options struct {
	// Network maps slot bounds to unix time. Zero value means mainnet.
	Network model.NetworkParams
}

// Compute is a pure function of its inputs. Events are folded in canonical
// order whatever order they are passed in.
func Compute(events []model.Event, scope model.Scope, opts Options) model.Metrics {
	ordered := append([]model.Event(nil), events...)
	model.SortEvents(ordered)

	network := opts.Network
	if network.Name == "" {
		network = model.Network("mainnet")
	}

	var m model.Metrics
	start, end := windowBounds(ordered, scope.Window, network)
	m.WindowStart, m.WindowEnd = start, end

	inflow, outflow := decimal.Zero, decimal.Zero
	pools := make(map[string]*PoolAccumulator)
	var redemption redemptionAccumulator
	var staking stakingAccumulator
	capital := newCapitalTracker(start)

	for _, e := range ordered {
		m.Counts.Add(e)
		m.Warnings += len(e.Warnings)

		delta := e.AdaEquivalentDelta.Decimal()
		if delta.IsPositive() {
			inflow = inflow.Add(delta)
		} else {
			outflow = outflow.Add(delta.Neg())
		}
		capital.apply(e)

		switch e.Kind {
		case model.KindStabilityPoolDeposit, model.KindStabilityPoolWithdrawal, model.KindStabilityPoolLiquidation:
			if e.Pool == "" {
				continue
			}
			acc, ok := pools[e.Pool]
			if !ok {
				acc = NewPoolAccumulator(e.Pool)
				pools[e.Pool] = acc
			}
			acc.AddEvent(e)
		case model.KindRedemptionOrderPlacement, model.KindRedemptionOrderFill, model.KindRedemptionOrderCancellation:
			redemption.add(e)
		case model.KindStakingRewardClaim:
			staking.add(e)
		}
	}

	netFlow := inflow.Sub(outflow)
	m.InflowLovelace = model.NewFigure(inflow)
	m.OutflowLovelace = model.NewFigure(outflow)
	m.NetFlowLovelace = model.NewFigure(netFlow)

	days := decimal.Zero
	if start != nil && end != nil && *end > *start {
		days, _ = ratio(decimal.NewFromInt(*end-*start), decimal.NewFromInt(secondsPerDay))
	}
	m.WindowDays = model.NewFigure(days)
	base := capital.base(end)
	m.CapitalBaseLovelace = model.NewFigure(base)
	m.AnnualizedReturn, m.AnnualizedReturnNote = annualize(netFlow, base, days)

	names := make([]string, 0, len(pools))
	for name := range pools {
		names = append(names, name)
	}
	sort.Strings(names)
	m.Pools = make([]model.PoolMetrics, 0, len(names))
	for _, name := range names {
		m.Pools = append(m.Pools, pools[name].Metrics())
	}

	m.Redemption = redemption.metrics()
	m.Staking = staking.metrics()
	return m
}

// windowBounds resolves the window to unix seconds, falling back to the first
// and last event time for open sides.
func windowBounds(ordered []model.Event, w model.Window, network model.NetworkParams) (*int64, *int64) {
	start, end := w.TimeBounds(network)
	if len(ordered) == 0 {
		return start, end
	}
	if start == nil {
		v := ordered[0].Timestamp
		for _, e := range ordered {
			if e.Timestamp < v {
				v = e.Timestamp
			}
		}
		start = &v
	}
	if end == nil {
		v := ordered[len(ordered)-1].Timestamp
		for _, e := range ordered {
			if e.Timestamp > v {
				v = e.Timestamp
			}
		}
		end = &v
	}
	return start, end
}

// capitalTracker integrates the deployed balance over time.
type capitalTracker struct {
	start   *int64
	last    int64
	balance decimal.Decimal
	area    decimal.Decimal
}

func newCapitalTracker(start *int64) *capitalTracker {
	t := &capitalTracker{balance: decimal.Zero, area: decimal.Zero, start: start}
	if start != nil {
		t.last = *start
	}
	return t
}

func (t *capitalTracker) advance(ts int64) {
	if t.start == nil || ts <= t.last {
		return
	}
	t.area = t.area.Add(t.balance.Mul(decimal.NewFromInt(ts - t.last)))
	t.last = ts
}

// apply moves the balance: deposits and placements add capital, withdrawals,
// fills and cancellations release it.
func (t *capitalTracker) apply(e model.Event) {
	t.advance(e.Timestamp)
	delta := e.AdaEquivalentDelta.Decimal().Abs()
	switch e.Kind {
	case model.KindStabilityPoolDeposit:
		t.balance = t.balance.Add(delta)
	case model.KindRedemptionOrderPlacement:
		t.balance = t.balance.Add(faceValue(e))
	case model.KindStabilityPoolWithdrawal:
		t.balance = t.balance.Sub(delta)
	case model.KindRedemptionOrderFill, model.KindRedemptionOrderCancellation:
		t.balance = t.balance.Sub(faceValue(e))
	}
	if t.balance.IsNegative() {
		t.balance = decimal.Zero
	}
}

// base is the time-weighted average balance over [start, end].
func (t *capitalTracker) base(end *int64) decimal.Decimal {
	if t.start == nil || end == nil || *end <= *t.start {
		return decimal.Zero
	}
	t.advance(*end)
	avg, _ := ratio(t.area, decimal.NewFromInt(*end-*t.start))
	return avg
}

func faceValue(e model.Event) decimal.Decimal {
	if e.Order == nil {
		return decimal.Zero
	}
	return decimal.NewFromInt(e.Order.FaceValueLovelace)
}

type redemptionAccumulator struct {
	placements, fills, cancellations   int
	placed, face, premium, premiumFace decimal.Decimal
	unpriced                           int
	cooldowns                          int
	cooldownTotal                      decimal.Decimal
	withoutCooldown                    int
}

func (r *redemptionAccumulator) add(e model.Event) {
	switch e.Kind {
	case model.KindRedemptionOrderPlacement:
		r.placements++
		r.placed = r.placed.Add(faceValue(e))
	case model.KindRedemptionOrderCancellation:
		r.cancellations++
	case model.KindRedemptionOrderFill:
		r.fills++
		if e.Order == nil {
			return
		}
		face := decimal.NewFromInt(e.Order.FaceValueLovelace)
		r.face = r.face.Add(face)
		if e.Order.PremiumLovelace != nil {
			r.premium = r.premium.Add(e.Order.PremiumLovelace.Decimal())
			r.premiumFace = r.premiumFace.Add(face)
		} else {
			r.unpriced++
		}
		if e.Order.CooldownSeconds != nil {
			r.cooldowns++
			r.cooldownTotal = r.cooldownTotal.Add(decimal.NewFromInt(*e.Order.CooldownSeconds))
		} else {
			r.withoutCooldown++
		}
	}
}

func (r *redemptionAccumulator) metrics() model.RedemptionMetrics {
	out := model.RedemptionMetrics{
		Placements:            r.placements,
		Fills:                 r.fills,
		Cancellations:         r.cancellations,
		PlacedLovelace:        model.NewFigure(r.placed),
		FaceValueLovelace:     model.NewFigure(r.face),
		PremiumLovelace:       model.NewFigure(r.premium),
		CooldownsObserved:     r.cooldowns,
		OrdersWithoutCooldown: r.withoutCooldown,
	}
	switch {
	case r.fills == 0:
		out.ReimbursementNote = "no fills"
	case r.unpriced > 0:
		out.ReimbursementNote = "received value unavailable for some fills"
	default:
		pct, ok := percent(r.premium, r.face)
		out.ReimbursementPct = figurePtrOrNil(pct, ok)
		if !ok {
			out.ReimbursementNote = "face value filled is zero"
		}
	}
	if mean, ok := ratio(r.cooldownTotal, decimal.NewFromInt(int64(r.cooldowns))); ok {
		out.MeanCooldownSeconds = model.FigurePtr(mean)
	}
	return out
}

type stakingAccumulator struct {
	claims              int
	ledger, indy, total decimal.Decimal
	indyQuantity        decimal.Decimal
}

func (s *stakingAccumulator) add(e model.Event) {
	s.claims++
	value := e.AdaEquivalentDelta.Decimal()
	s.total = s.total.Add(value)
	if e.Reward == nil {
		return
	}
	switch e.Reward.Source {
	case model.RewardLedgerWithdrawal:
		s.ledger = s.ledger.Add(value)
	case model.RewardIndyStaking:
		s.indy = s.indy.Add(value)
		if e.Reward.IndyAmount != nil {
			s.indyQuantity = s.indyQuantity.Add(e.Reward.IndyAmount.Decimal())
		}
	}
}

func (s *stakingAccumulator) metrics() model.StakingMetrics {
	return model.StakingMetrics{
		Claims:                s.claims,
		LedgerRewardsLovelace: model.NewFigure(s.ledger),
		IndyRewardsLovelace:   model.NewFigure(s.indy),
		IndyRewardsQuantity:   model.NewFigure(s.indyQuantity),
		TotalRewardsLovelace:  model.NewFigure(s.total),
	}
}
