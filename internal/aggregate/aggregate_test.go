package aggregate

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorusys/indigo-proof-of-yield/internal/model"
)

const pool = "aa1169555344"

var scope = model.NewScope([]string{"addr_user"}, "stake_user", model.Window{})

func qty(v int64) *model.Quantity {
	q := model.NewQuantity(decimal.NewFromInt(v))
	return &q
}

func fig(text string) *model.Figure {
	f := model.NewFigure(decimal.RequireFromString(text))
	return &f
}

func deposit(hash string, ts int64, amount, before, after int64, value string) model.Event {
	return model.Event{
		Kind:               model.KindStabilityPoolDeposit,
		Classification:     model.ClassificationMatched,
		TxHash:             hash,
		Slot:               uint64(ts),
		Timestamp:          ts,
		Pool:               pool,
		AdaEquivalentDelta: *fig("-" + value),
		StabilityPool: &model.StabilityPoolDetail{
			IAsset: pool, IAssetAmount: qty(amount), PoolTotalBefore: qty(before), PoolTotalAfter: qty(after),
		},
	}
}

func liquidation(hash string, ts int64, received int64, burnt int64, burntValue *model.Figure, before, after int64) model.Event {
	return model.Event{
		Kind:               model.KindStabilityPoolLiquidation,
		Classification:     model.ClassificationMatched,
		TxHash:             hash,
		Slot:               uint64(ts),
		Timestamp:          ts,
		Pool:               pool,
		AdaEquivalentDelta: model.FigureFromInt(received),
		Liquidation: &model.LiquidationDetail{
			IAsset:              pool,
			IAssetBurnt:         *qty(burnt),
			AdaReceivedLovelace: received,
			BurntValueLovelace:  burntValue,
			PoolTotalBefore:     qty(before),
			PoolTotalAfter:      qty(after),
		},
	}
}

func TestLiquidationRealizedPremium(t *testing.T) {
	events := []model.Event{liquidation("11", 1700000000, 49_000_000, 100, fig("45000000"), 1000, 900)}
	m := Compute(events, scope, Options{})

	require.Len(t, m.Pools, 1)
	p := m.Pools[0]
	assert.Equal(t, pool, p.Pool)
	assert.Equal(t, 1, p.Liquidations)
	assert.Equal(t, "100.000000000000", p.IAssetBurnt.String())
	assert.Equal(t, "49000000.000000000000", p.AdaReceivedLovelace.String())
	require.NotNil(t, p.BurntValueLovelace)
	assert.Equal(t, "45000000.000000000000", p.BurntValueLovelace.String())
	require.NotNil(t, p.RealizedPremiumPct)
	assert.Equal(t, "8.888888888889", p.RealizedPremiumPct.String())
	assert.Empty(t, p.RealizedPremiumNote)

	assert.Equal(t, "49000000.000000000000", m.NetFlowLovelace.String())
	assert.Equal(t, 1, m.Counts.StabilityPoolLiquidations)
	assert.Equal(t, 1, m.Counts.Total)
}

func TestPoolDepositAndWithdrawalTotals(t *testing.T) {
	withdrawal := deposit("03", 30, 50, 1200, 1150, "22500000")
	withdrawal.Kind = model.KindStabilityPoolWithdrawal
	withdrawal.AdaEquivalentDelta = *fig("22500000")
	withdrawal.StabilityPool.IAssetAmount = qty(50)

	events := []model.Event{
		deposit("01", 10, 100, 1000, 1100, "45000000"),
		deposit("02", 20, 100, 1100, 1200, "45000000"),
		withdrawal,
	}
	m := Compute(events, scope, Options{})
	require.Len(t, m.Pools, 1)
	p := m.Pools[0]
	assert.Equal(t, 2, p.Deposits)
	assert.Equal(t, 1, p.Withdrawals)
	assert.Equal(t, "90000000.000000000000", p.DepositedLovelace.String())
	assert.Equal(t, "22500000.000000000000", p.WithdrawnLovelace.String())
	assert.Equal(t, "-67500000.000000000000", m.NetFlowLovelace.String())

	empty := Compute([]model.Event{liquidation("11", 10, 49_000_000, 100, fig("45000000"), 1000, 900)}, scope, Options{})
	assert.Equal(t, "0.000000000000", empty.Pools[0].DepositedLovelace.String())
	assert.Equal(t, "0.000000000000", empty.Pools[0].WithdrawnLovelace.String())
}

func TestRealizedPremiumUndefined(t *testing.T) {
	tests := []struct {
		name   string
		events []model.Event
		note   string
	}{
		{
			name:   "missing rate",
			events: []model.Event{liquidation("11", 10, 49_000_000, 100, nil, 1000, 900)},
			note:   "rate unavailable for some liquidations",
		},
		{
			name:   "zero burnt value",
			events: []model.Event{liquidation("11", 10, 49_000_000, 100, fig("0"), 1000, 900)},
			note:   "burnt value is zero",
		},
		{
			name:   "no liquidations",
			events: []model.Event{deposit("01", 10, 100, 1000, 1100, "45000000")},
			note:   "no liquidations",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Compute(tt.events, scope, Options{})
			require.Len(t, m.Pools, 1)
			assert.Nil(t, m.Pools[0].RealizedPremiumPct)
			assert.Equal(t, tt.note, m.Pools[0].RealizedPremiumNote)
		})
	}
}

func TestAnnualizedReturnAndCapitalBase(t *testing.T) {
	from, to := int64(1_700_000_000), int64(1_700_000_000+10*secondsPerDay)
	window := model.NewScope(scope.Addresses, scope.StakeAddress, model.Window{FromTime: &from, ToTime: &to})

	// 100 ADA deployed for the whole window, 101 ADA claimed half way.
	events := []model.Event{
		deposit("01", from, 200, 1000, 1200, "100000000"),
		{
			Kind:               model.KindStakingRewardClaim,
			Classification:     model.ClassificationMatched,
			TxHash:             "02",
			Slot:               uint64(from + 5*secondsPerDay),
			Timestamp:          from + 5*secondsPerDay,
			AdaEquivalentDelta: model.FigureFromInt(101_000_000),
			Reward:             &model.RewardDetail{Source: model.RewardLedgerWithdrawal, AmountLovelace: 101_000_000},
		},
	}
	m := Compute(events, window, Options{})

	require.NotNil(t, m.WindowStart)
	assert.Equal(t, from, *m.WindowStart)
	assert.Equal(t, to, *m.WindowEnd)
	assert.Equal(t, "10.000000000000", m.WindowDays.String())
	assert.Equal(t, "100000000.000000000000", m.CapitalBaseLovelace.String())
	assert.Equal(t, "1000000.000000000000", m.NetFlowLovelace.String())
	assert.Equal(t, "101000000.000000000000", m.InflowLovelace.String())
	assert.Equal(t, "100000000.000000000000", m.OutflowLovelace.String())
	require.NotNil(t, m.AnnualizedReturn)
	// 0.01 * 365.25 / 10
	assert.Equal(t, "0.365250000000", m.AnnualizedReturn.String())
	assert.Empty(t, m.AnnualizedReturnNote)

	assert.Equal(t, 1, m.Staking.Claims)
	assert.Equal(t, "101000000.000000000000", m.Staking.LedgerRewardsLovelace.String())
	assert.Equal(t, "101000000.000000000000", m.Staking.TotalRewardsLovelace.String())
}

func TestDivisionByZeroIsUndefined(t *testing.T) {
	t.Run("no events", func(t *testing.T) {
		m := Compute(nil, scope, Options{})
		assert.Nil(t, m.AnnualizedReturn)
		assert.Equal(t, "window length is zero", m.AnnualizedReturnNote)
		assert.Nil(t, m.WindowStart)
		assert.Empty(t, m.Pools)
		assert.Equal(t, "0.000000000000", m.NetFlowLovelace.String())
	})

	t.Run("zero length window", func(t *testing.T) {
		events := []model.Event{deposit("01", 500, 100, 1000, 1100, "45000000")}
		m := Compute(events, scope, Options{})
		assert.Nil(t, m.AnnualizedReturn)
		assert.Equal(t, "window length is zero", m.AnnualizedReturnNote)
		assert.Equal(t, "0.000000000000", m.WindowDays.String())
	})

	t.Run("zero capital base", func(t *testing.T) {
		from, to := int64(0), int64(secondsPerDay)
		window := model.NewScope(scope.Addresses, scope.StakeAddress, model.Window{FromTime: &from, ToTime: &to})
		events := []model.Event{{
			Kind:               model.KindStakingRewardClaim,
			TxHash:             "01",
			Timestamp:          100,
			AdaEquivalentDelta: model.FigureFromInt(5_000_000),
			Reward:             &model.RewardDetail{Source: model.RewardLedgerWithdrawal, AmountLovelace: 5_000_000},
		}}
		m := Compute(events, window, Options{})
		assert.Nil(t, m.AnnualizedReturn)
		assert.Equal(t, "capital base is zero", m.AnnualizedReturnNote)
		assert.Equal(t, "0.000000000000", m.CapitalBaseLovelace.String())
	})
}

func TestWindowFromSlotBounds(t *testing.T) {
	fromSlot, toSlot := uint64(86400), uint64(86400+2*secondsPerDay)
	window := model.NewScope(scope.Addresses, "", model.Window{FromSlot: &fromSlot, ToSlot: &toSlot})
	m := Compute(nil, window, Options{Network: model.Network("preprod")})
	require.NotNil(t, m.WindowStart)
	assert.Equal(t, int64(1655769600), *m.WindowStart)
	assert.Equal(t, int64(1655769600+2*secondsPerDay), *m.WindowEnd)
	assert.Equal(t, "2.000000000000", m.WindowDays.String())
}

func TestDilutionAccumulatesEventByEvent(t *testing.T) {
	events := []model.Event{
		// share 0 -> 100/1000
		deposit("01", 10, 100, 900, 1000, "45000000"),
		// pool halves; share stays 50/500
		liquidation("02", 20, 10_000_000, 500, fig("9000000"), 1000, 500),
		// others deposited in between: share 50/2000 -> 150/2100
		deposit("03", 30, 100, 2000, 2100, "45000000"),
	}
	m := Compute(events, scope, Options{})
	require.Len(t, m.Pools, 1)
	p := m.Pools[0]
	assert.Equal(t, 3, p.ObservedPoolTotalChanges)
	require.NotNil(t, p.DilutionEstimate)

	want := decimal.RequireFromString("0.1").
		Add(decimal.NewFromInt(150).DivRound(decimal.NewFromInt(2100), 24)).
		Sub(decimal.NewFromInt(50).DivRound(decimal.NewFromInt(2000), 24))
	assert.Equal(t, model.NewFigure(want).String(), p.DilutionEstimate.String())
	require.NotNil(t, p.FinalShare)
	assert.Equal(t, model.NewFigure(decimal.NewFromInt(150).DivRound(decimal.NewFromInt(2100), 24)).String(), p.FinalShare.String())
}

func TestDilutionWithoutTotals(t *testing.T) {
	e := deposit("01", 10, 100, 0, 0, "45000000")
	e.StabilityPool.PoolTotalBefore, e.StabilityPool.PoolTotalAfter = nil, nil
	m := Compute([]model.Event{e}, scope, Options{})
	require.Len(t, m.Pools, 1)
	assert.Nil(t, m.Pools[0].DilutionEstimate)
	assert.Equal(t, "pool totals not observed", m.Pools[0].DilutionNote)
}

func TestRedemptionMetrics(t *testing.T) {
	slots := uint64(60)
	secs := int64(60)
	events := []model.Event{
		{
			Kind: model.KindRedemptionOrderPlacement, TxHash: "01", Slot: 100, Timestamp: 100,
			AdaEquivalentDelta: model.FigureFromInt(-80_000_000),
			Order:              &model.OrderDetail{OrderRef: "01#0", FaceValueLovelace: 80_000_000},
		},
		{
			Kind: model.KindRedemptionOrderFill, TxHash: "02", Slot: 160, Timestamp: 160,
			AdaEquivalentDelta: model.FigureFromInt(51_500_000),
			Order: &model.OrderDetail{
				OrderRef: "01#0", FaceValueLovelace: 50_000_000,
				ReceivedValue: fig("51500000"), PremiumLovelace: fig("1500000"),
				CooldownSlots: &slots, CooldownSeconds: &secs,
			},
		},
		{
			Kind: model.KindRedemptionOrderFill, TxHash: "03", Slot: 200, Timestamp: 200,
			AdaEquivalentDelta: model.FigureFromInt(30_300_000),
			Order: &model.OrderDetail{
				OrderRef: "01#0", FaceValueLovelace: 30_000_000,
				ReceivedValue: fig("30300000"), PremiumLovelace: fig("300000"),
			},
		},
	}
	m := Compute(events, scope, Options{})
	r := m.Redemption
	assert.Equal(t, 1, r.Placements)
	assert.Equal(t, 2, r.Fills)
	assert.Equal(t, "80000000.000000000000", r.PlacedLovelace.String())
	assert.Equal(t, "80000000.000000000000", r.FaceValueLovelace.String())
	assert.Equal(t, "1800000.000000000000", r.PremiumLovelace.String())
	require.NotNil(t, r.ReimbursementPct)
	assert.Equal(t, "2.250000000000", r.ReimbursementPct.String())
	assert.Equal(t, 1, r.CooldownsObserved)
	assert.Equal(t, 1, r.OrdersWithoutCooldown)
	require.NotNil(t, r.MeanCooldownSeconds)
	assert.Equal(t, "60.000000000000", r.MeanCooldownSeconds.String())

	// 80 ADA deployed for 60s, 30 ADA for 40s over a 100s window.
	assert.Equal(t, "60000000.000000000000", m.CapitalBaseLovelace.String())
}

func TestRedemptionWithoutPremium(t *testing.T) {
	m := Compute([]model.Event{{
		Kind:  model.KindRedemptionOrderFill,
		Order: &model.OrderDetail{OrderRef: "01#0", FaceValueLovelace: 10},
	}}, scope, Options{})
	assert.Nil(t, m.Redemption.ReimbursementPct)
	assert.Equal(t, "received value unavailable for some fills", m.Redemption.ReimbursementNote)
	assert.Nil(t, m.Redemption.MeanCooldownSeconds)
}

func TestComputeIsOrderInvariant(t *testing.T) {
	events := []model.Event{
		deposit("01", 10, 100, 900, 1000, "45000000"),
		liquidation("02", 20, 10_000_000, 500, fig("9000000"), 1000, 500),
		deposit("03", 30, 100, 2000, 2100, "45000000"),
		{Kind: model.KindStakingRewardClaim, TxHash: "04", Slot: 40, Timestamp: 40,
			AdaEquivalentDelta: model.FigureFromInt(3),
			Reward:             &model.RewardDetail{Source: model.RewardIndyStaking, AmountLovelace: 3, IndyAmount: qty(7)},
			Warnings:           []model.Warning{model.NewWarning(model.WarnAmbiguous, "x")}},
	}
	want := Compute(events, scope, Options{})
	assert.Equal(t, 1, want.Warnings)
	assert.Equal(t, "7.000000000000", want.Staking.IndyRewardsQuantity.String())

	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 10; i++ {
		shuffled := append([]model.Event(nil), events...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, Compute(shuffled, scope, Options{}))
	}
}
