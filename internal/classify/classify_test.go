package classify

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorusys/indigo-proof-of-yield/internal/aggregate"
	"github.com/gorusys/indigo-proof-of-yield/internal/model"
)

const (
	iusdPolicy = "aa11"
	iusdName   = "69555344"
	iusd       = iusdPolicy + iusdName
	indyPolicy = "bb22"
	indyName   = "494e4459"
	userAddr   = "addr_user"
	userStake  = "stake_user"
)

var testScope = model.NewScope([]string{userAddr}, userStake, model.Window{})

func asset(policy, name string, qty int64) model.AssetAmount {
	return model.AssetAmount{PolicyID: policy, AssetName: name, Quantity: model.NewQuantity(decimal.NewFromInt(qty))}
}

func wallet(ref string, lovelace int64, assets ...model.AssetAmount) model.UtxoView {
	return model.UtxoView{Ref: ref, Address: userAddr, StakeAddress: userStake, Lovelace: lovelace, Assets: assets}
}

func script(ref, addr, cred string, lovelace int64, assets ...model.AssetAmount) model.UtxoView {
	return model.UtxoView{
		Ref:          ref,
		Address:      addr,
		PaymentCred:  cred,
		StakeAddress: userStake,
		Lovelace:     lovelace,
		Assets:       assets,
		Datum:        &model.DatumRef{Hash: "d0" + cred, Resolved: true, Value: json.RawMessage(`{"constructor":0,"fields":[]}`)},
	}
}

func heuristicProtocol() model.Protocol {
	return model.Protocol{
		IndyPolicy: indyPolicy,
		Rates:      map[string]string{iusdPolicy: "0.45", indyPolicy: "0.5"},
	}.Normalize()
}

func liquidationView() model.TxView {
	return model.TxView{
		TxHash:    "11",
		Slot:      5000,
		Timestamp: 1700000000,
		TxIndex:   2,
		Inputs: []model.UtxoView{
			script("00#0", "addr_sp", "5b", 10_000_000, asset(iusdPolicy, iusdName, 1000)),
			{Ref: "00#1", Address: "addr_liquidator", Lovelace: 60_000_000},
		},
		Outputs: []model.UtxoView{
			script("11#0", "addr_sp", "5b", 59_000_000, asset(iusdPolicy, iusdName, 900)),
			{Ref: "11#1", Address: "addr_liquidator", Lovelace: 10_800_000},
		},
		Mint: []model.AssetAmount{asset(iusdPolicy, iusdName, -100)},
	}
}

func TestSignatureTableOrder(t *testing.T) {
	assert.Equal(t, []string{
		SigLiquidation, SigDeposit, SigWithdrawal,
		SigOrderPlacement, SigOrderFill, SigOrderCancellation,
		SigRewardWithdrawal, SigIndyStakingClaim,
	}, SignatureNames(DefaultSignatures))
	for _, sig := range DefaultSignatures {
		assert.True(t, sig.Kind.Valid(), sig.Name)
	}
}

func TestLiquidationScenario(t *testing.T) {
	events := New(heuristicProtocol(), nil, nil).Classify([]model.TxView{liquidationView()}, testScope)
	require.Len(t, events, 1)
	e := events[0]

	assert.Equal(t, model.KindStabilityPoolLiquidation, e.Kind)
	assert.Equal(t, model.ClassificationMatched, e.Classification)
	assert.Equal(t, SigLiquidation, e.Evidence.Signature)
	assert.Equal(t, 0, e.Rank)
	assert.Equal(t, uint32(2), e.TxIndex)
	assert.Equal(t, iusd, e.Pool)
	assert.Empty(t, e.Warnings)

	require.NotNil(t, e.Liquidation)
	assert.Equal(t, int64(49_000_000), e.Liquidation.AdaReceivedLovelace)
	assert.Equal(t, "100", e.Liquidation.IAssetBurnt.String())
	require.NotNil(t, e.Liquidation.BurntValueLovelace)
	assert.Equal(t, "45000000.000000000000", e.Liquidation.BurntValueLovelace.String())
	assert.Equal(t, "1000", e.Liquidation.PoolTotalBefore.String())
	assert.Equal(t, "900", e.Liquidation.PoolTotalAfter.String())
	assert.Equal(t, "49000000.000000000000", e.AdaEquivalentDelta.String())

	require.NotNil(t, e.Evidence.EffectiveRate)
	assert.Equal(t, "0.450000000000", e.Evidence.EffectiveRate.String())
	assert.Equal(t, "config:"+iusdPolicy, e.Evidence.RateSource)
	assert.Equal(t, []string{"00#0"}, e.Evidence.Inputs)
	assert.Equal(t, []string{"11#0"}, e.Evidence.Outputs)
	assert.Equal(t, []string{iusdPolicy}, e.Evidence.PolicyIDs)
}

func TestLiquidationWithoutRate(t *testing.T) {
	events := New(model.Protocol{}, nil, nil).Classify([]model.TxView{liquidationView()}, testScope)
	require.Len(t, events, 1)
	e := events[0]
	assert.Nil(t, e.Liquidation.BurntValueLovelace)
	assert.Nil(t, e.Evidence.EffectiveRate)
	require.Len(t, e.Warnings, 1)
	assert.Equal(t, model.WarnRateUnavailable, e.Warnings[0].Code)
}

func TestLiquidationWithoutCreditIsContradictory(t *testing.T) {
	v := liquidationView()
	v.Outputs[0].Lovelace = 10_000_000
	events := New(heuristicProtocol(), nil, nil).Classify([]model.TxView{v}, testScope)
	require.Len(t, events, 1)
	assert.Equal(t, model.ClassificationUnclassified, events[0].Classification)
	assert.Equal(t, int64(0), events[0].Liquidation.AdaReceivedLovelace)
	assert.True(t, hasWarning(events[0].Warnings, model.WarnContradictory))
}

func depositView(hash string, slot uint64, amount int64) model.TxView {
	return model.TxView{
		TxHash:    hash,
		Slot:      slot,
		Timestamp: 1700000000 + int64(slot),
		Inputs: []model.UtxoView{
			script("aa#0", "addr_sp", "5b", 2_000_000, asset(iusdPolicy, iusdName, 1000)),
			wallet("bb#0", 5_000_000, asset(iusdPolicy, iusdName, amount)),
		},
		Outputs: []model.UtxoView{
			script(hash+"#0", "addr_sp", "5b", 2_000_000, asset(iusdPolicy, iusdName, 1000+amount)),
			wallet(hash+"#1", 4_800_000),
		},
	}
}

func TestDepositAndWithdrawal(t *testing.T) {
	deposit := depositView("21", 100, 200)
	withdraw := model.TxView{
		TxHash:    "22",
		Slot:      200,
		Timestamp: 1700000200,
		Inputs: []model.UtxoView{
			script("21#0", "addr_sp", "5b", 2_000_000, asset(iusdPolicy, iusdName, 1200)),
			wallet("21#1", 4_800_000),
		},
		Outputs: []model.UtxoView{
			script("22#0", "addr_sp", "5b", 2_000_000, asset(iusdPolicy, iusdName, 1150)),
			wallet("22#1", 4_600_000, asset(iusdPolicy, iusdName, 50)),
		},
	}

	events := New(heuristicProtocol(), nil, nil).Classify([]model.TxView{withdraw, deposit}, testScope)
	require.Len(t, events, 2)

	d := events[0]
	assert.Equal(t, model.KindStabilityPoolDeposit, d.Kind)
	assert.Equal(t, "200", d.StabilityPool.IAssetAmount.String())
	assert.Equal(t, "1000", d.StabilityPool.PoolTotalBefore.String())
	assert.Equal(t, "1200", d.StabilityPool.PoolTotalAfter.String())
	assert.Equal(t, "-90000000.000000000000", d.AdaEquivalentDelta.String())
	assert.Equal(t, int64(-200_000), d.LovelaceDelta)
	assert.Equal(t, uint32(0), d.OutputIndex)

	w := events[1]
	assert.Equal(t, model.KindStabilityPoolWithdrawal, w.Kind)
	assert.Equal(t, "50", w.StabilityPool.IAssetAmount.String())
	assert.Equal(t, "22500000.000000000000", w.AdaEquivalentDelta.String())
	assert.Equal(t, uint32(1), w.OutputIndex)
}

func orderViews() []model.TxView {
	place := model.TxView{
		TxHash:    "31",
		Slot:      1000,
		Timestamp: 1700001000,
		Inputs:    []model.UtxoView{wallet("30#0", 100_000_000)},
		Outputs: []model.UtxoView{
			script("31#0", "addr_rob", "70b", 80_000_000),
			wallet("31#1", 19_800_000),
		},
	}
	partial := model.TxView{
		TxHash:    "32",
		Slot:      1060,
		Timestamp: 1700001060,
		Inputs: []model.UtxoView{
			script("31#0", "addr_rob", "70b", 80_000_000),
			{Ref: "39#0", Address: "addr_redeemer", Lovelace: 5_000_000, Assets: []model.AssetAmount{asset(iusdPolicy, iusdName, 500)}},
		},
		Outputs: []model.UtxoView{
			script("32#0", "addr_rob", "70b", 30_000_000),
			wallet("32#1", 2_000_000, asset(iusdPolicy, iusdName, 110)),
		},
	}
	final := model.TxView{
		TxHash:    "33",
		Slot:      1100,
		Timestamp: 1700001100,
		Inputs:    []model.UtxoView{script("32#0", "addr_rob", "70b", 30_000_000)},
		Outputs:   []model.UtxoView{wallet("33#0", 0, asset(iusdPolicy, iusdName, 70))},
	}
	return []model.TxView{place, partial, final}
}

func TestOrderPlacementAndFillsWithCooldown(t *testing.T) {
	events := New(heuristicProtocol(), nil, nil).Classify(orderViews(), testScope)
	require.Len(t, events, 3)

	p := events[0]
	assert.Equal(t, model.KindRedemptionOrderPlacement, p.Kind)
	assert.Equal(t, "31#0", p.Order.OrderRef)
	assert.Equal(t, int64(80_000_000), p.Order.FaceValueLovelace)
	assert.Equal(t, "-80000000.000000000000", p.AdaEquivalentDelta.String())

	f1 := events[1]
	assert.Equal(t, model.KindRedemptionOrderFill, f1.Kind)
	assert.Equal(t, "31#0", f1.Order.OrderRef)
	assert.Equal(t, "32#0", f1.Order.ContinuationRef)
	assert.Equal(t, int64(50_000_000), f1.Order.FaceValueLovelace)
	assert.Equal(t, "51500000.000000000000", f1.Order.ReceivedValue.String())
	assert.Equal(t, "1500000.000000000000", f1.Order.PremiumLovelace.String())
	assert.Equal(t, "3.000000000000", f1.Order.PremiumPct.String())
	require.NotNil(t, f1.Order.CooldownSlots)
	assert.Equal(t, uint64(60), *f1.Order.CooldownSlots)
	assert.Equal(t, int64(60), *f1.Order.CooldownSeconds)
	assert.Equal(t, iusd, f1.Order.IAsset)

	f2 := events[2]
	assert.Equal(t, model.KindRedemptionOrderFill, f2.Kind)
	assert.Equal(t, "31#0", f2.Order.OrderRef, "continuations keep the original order reference")
	assert.Empty(t, f2.Order.ContinuationRef)
	assert.Equal(t, int64(30_000_000), f2.Order.FaceValueLovelace)
	assert.Equal(t, "31500000.000000000000", f2.Order.ReceivedValue.String())
	require.NotNil(t, f2.Order.CooldownSlots)
	assert.Equal(t, uint64(100), *f2.Order.CooldownSlots)
}

func TestFillWithoutObservedPlacementHasNoCooldown(t *testing.T) {
	views := orderViews()[1:]
	events := New(heuristicProtocol(), nil, nil).Classify(views, testScope)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, model.KindRedemptionOrderFill, e.Kind)
		assert.Nil(t, e.Order.CooldownSlots)
		assert.Nil(t, e.Order.CooldownSeconds)
	}
	assert.Equal(t, "31#0", events[1].Order.OrderRef)
}

func TestPlacementOutsideWindowGivesNoCooldown(t *testing.T) {
	from := uint64(1050)
	scope := model.NewScope([]string{userAddr}, userStake, model.Window{FromSlot: &from})
	events := New(heuristicProtocol(), nil, nil).Classify(orderViews(), scope)
	require.Len(t, events, 2)
	assert.Nil(t, events[0].Order.CooldownSlots)
}

func TestCancellationByRedeemer(t *testing.T) {
	cancel := 1
	protocol := model.Protocol{RobScripts: []string{"70b"}, RobCancelRedeemer: &cancel}
	place := orderViews()[0]
	cancelTx := model.TxView{
		TxHash:    "34",
		Slot:      1200,
		Timestamp: 1700001200,
		Inputs:    []model.UtxoView{script("31#0", "addr_rob", "70b", 80_000_000)},
		Outputs:   []model.UtxoView{wallet("34#0", 79_800_000)},
		Redeemers: []model.Redeemer{{Purpose: "spend", ScriptHash: "70b", SpendsInput: "31#0", Value: json.RawMessage(`{"constructor":1,"fields":[]}`)}},
	}

	events := New(protocol, nil, nil).Classify([]model.TxView{cancelTx, place}, testScope)
	require.Len(t, events, 2)
	assert.Equal(t, model.KindRedemptionOrderPlacement, events[0].Kind)
	c := events[1]
	assert.Equal(t, model.KindRedemptionOrderCancellation, c.Kind)
	assert.Equal(t, "31#0", c.Order.OrderRef)
	assert.Equal(t, "80000000.000000000000", c.AdaEquivalentDelta.String())
}

func TestTwoSignaturesGiveTwoEvents(t *testing.T) {
	v := depositView("41", 300, 100)
	v.Withdrawals = []model.Withdrawal{{StakeAddress: userStake, Lovelace: 3_000_000}}

	events := New(heuristicProtocol(), nil, nil).Classify([]model.TxView{v}, testScope)
	require.Len(t, events, 2)
	assert.Equal(t, model.KindStabilityPoolDeposit, events[0].Kind)
	assert.Equal(t, model.KindStakingRewardClaim, events[1].Kind)
	assert.Less(t, events[0].Rank, events[1].Rank)
	assert.Equal(t, model.RewardLedgerWithdrawal, events[1].Reward.Source)
	assert.Equal(t, int64(3_000_000), events[1].Reward.AmountLovelace)
	for _, e := range events {
		assert.True(t, hasWarning(e.Warnings, model.WarnAmbiguous))
	}
}

func TestIndyStakingClaim(t *testing.T) {
	protocol := heuristicProtocol()
	protocol.StakingScripts = []string{"5a4e"}
	protocol = protocol.Normalize()
	epoch := int64(480)

	v := model.TxView{
		TxHash:    "51",
		Slot:      700,
		Timestamp: 1700000700,
		Epoch:     &epoch,
		Inputs: []model.UtxoView{
			script("50#0", "addr_staking", "5a4e", 2_000_000, asset(indyPolicy, indyName, 1000)),
			wallet("50#1", 5_000_000),
		},
		Outputs: []model.UtxoView{
			script("51#0", "addr_staking", "5a4e", 2_000_000, asset(indyPolicy, indyName, 1000)),
			wallet("51#1", 9_000_000, asset(indyPolicy, indyName, 10)),
		},
		Mint: []model.AssetAmount{asset(indyPolicy, indyName, 10)},
	}

	events := New(protocol, nil, nil).Classify([]model.TxView{v}, testScope)
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, model.KindStakingRewardClaim, e.Kind)
	assert.Equal(t, SigIndyStakingClaim, e.Signature)
	assert.Equal(t, model.RewardIndyStaking, e.Reward.Source)
	assert.Equal(t, int64(4_000_000), e.Reward.AmountLovelace)
	assert.Equal(t, "10", e.Reward.IndyAmount.String())
	assert.Equal(t, "9000000.000000000000", e.AdaEquivalentDelta.String())
	assert.Equal(t, &epoch, e.Reward.Epoch)
}

func TestUnclassifiedMovementFallback(t *testing.T) {
	protocol := model.Protocol{StabilityPoolScripts: []string{"5b"}}
	v := model.TxView{
		TxHash:    "61",
		Slot:      800,
		Timestamp: 1700000800,
		Inputs:    []model.UtxoView{wallet("60#0", 20_000_000)},
		Outputs: []model.UtxoView{
			script("61#0", "addr_sp", "5b", 15_000_000),
			wallet("61#1", 4_800_000),
		},
	}
	events := New(protocol, nil, nil).Classify([]model.TxView{v}, testScope)
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, model.KindStabilityPoolDeposit, e.Kind)
	assert.Equal(t, model.ClassificationUnclassified, e.Classification)
	assert.Equal(t, SigUnclassified, e.Signature)
	assert.Equal(t, len(DefaultSignatures), e.Rank)
	assert.Equal(t, int64(-15_200_000), e.LovelaceDelta)
	assert.True(t, hasWarning(e.Warnings, model.WarnAmbiguous))
}

func TestUnparseableViewDegrades(t *testing.T) {
	v := depositView("71", 900, 100)
	v.Warnings = []model.Warning{model.NewWarning(model.WarnUnparseable, "bad quantity")}
	events := New(heuristicProtocol(), nil, nil).Classify([]model.TxView{v}, testScope)
	require.Len(t, events, 1)
	assert.Equal(t, model.ClassificationUnclassified, events[0].Classification)
	assert.True(t, hasWarning(events[0].Warnings, model.WarnUnparseable))
}

func TestFilteringByWindowAndScope(t *testing.T) {
	to := int64(1699999999)
	closed := model.NewScope([]string{userAddr}, userStake, model.Window{ToTime: &to})
	c := New(heuristicProtocol(), nil, nil)

	assert.Empty(t, c.Classify([]model.TxView{liquidationView()}, closed))

	other := model.NewScope([]string{"addr_other"}, "stake_other", model.Window{})
	assert.Empty(t, c.Classify([]model.TxView{liquidationView()}, other))

	incomplete := model.TxView{TxHash: "81", Slot: 10, Timestamp: 1700000010}
	assert.Empty(t, c.Classify([]model.TxView{incomplete}, testScope))
}

func TestClassifyIsOrderInvariant(t *testing.T) {
	views := append(orderViews(), liquidationView(), depositView("21", 100, 200))
	c := New(heuristicProtocol(), nil, nil)
	want := c.Classify(views, testScope)
	require.Len(t, want, 5)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]model.TxView(nil), views...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, c.Classify(shuffled, testScope))
	}
	for i := 1; i < len(want); i++ {
		assert.False(t, want[i].Less(want[i-1]))
	}
}

func TestWithSignaturesRestrictsTable(t *testing.T) {
	deposit := depositView("91", 100, 200)

	only := New(heuristicProtocol(), nil, nil).WithSignatures(DefaultSignatures[1:2])
	events := only.Classify([]model.TxView{deposit}, testScope)
	require.Len(t, events, 1)
	assert.Equal(t, SigDeposit, events[0].Signature)
	assert.Equal(t, 0, events[0].Rank)

	none := New(heuristicProtocol(), nil, nil).WithSignatures(DefaultSignatures[:1])
	events = none.Classify([]model.TxView{deposit}, testScope)
	require.Len(t, events, 1)
	assert.Equal(t, SigUnclassified, events[0].Signature)
	assert.Equal(t, 1, events[0].Rank)
	assert.Equal(t, model.KindStabilityPoolDeposit, events[0].Kind)
	assert.Equal(t, "-90200000.000000000000", events[0].AdaEquivalentDelta.String())
}

func TestRefIndex(t *testing.T) {
	assert.Equal(t, uint32(7), refIndex("abc#7"))
	assert.Equal(t, uint32(0), refIndex("abc"))
	assert.Equal(t, uint32(0), refIndex("abc#x"))
}

func batchedFillViews() []model.TxView {
	place := model.TxView{
		TxHash:    "51",
		Slot:      2000,
		Timestamp: 1700002000,
		Inputs:    []model.UtxoView{wallet("50#0", 100_500_000)},
		Outputs: []model.UtxoView{
			script("51#0", "addr_rob", "70b", 50_000_000),
			script("51#1", "addr_rob", "70b", 50_000_000),
			wallet("51#2", 300_000),
		},
	}
	fill := model.TxView{
		TxHash:    "52",
		Slot:      2100,
		Timestamp: 1700002100,
		Inputs: []model.UtxoView{
			script("51#0", "addr_rob", "70b", 50_000_000),
			script("51#1", "addr_rob", "70b", 50_000_000),
			{Ref: "49#0", Address: "addr_bot", Lovelace: 5_000_000, Assets: []model.AssetAmount{asset(iusdPolicy, iusdName, 500)}},
		},
		Outputs: []model.UtxoView{
			wallet("52#0", 2_000_000, asset(iusdPolicy, iusdName, 230)),
			{Ref: "52#1", Address: "addr_bot", Lovelace: 102_800_000, Assets: []model.AssetAmount{asset(iusdPolicy, iusdName, 270)}},
		},
	}
	return []model.TxView{place, fill}
}

func TestBatchedFillsSplitReceivedValue(t *testing.T) {
	events := New(heuristicProtocol(), nil, nil).Classify(batchedFillViews(), testScope)
	require.Len(t, events, 4)

	// 2 ADA plus 230 iUSD at 0.45.
	received := decimal.NewFromInt(105_500_000)
	total := decimal.Zero
	orders := map[string]bool{}
	for _, e := range events[2:] {
		assert.Equal(t, model.KindRedemptionOrderFill, e.Kind)
		assert.True(t, hasWarning(e.Warnings, model.WarnAmbiguous))
		require.NotNil(t, e.Order.ReceivedValue)
		require.NotNil(t, e.Order.PremiumLovelace)
		assert.Equal(t, "52750000.000000000000", e.Order.ReceivedValue.String())
		assert.Equal(t, "2750000.000000000000", e.Order.PremiumLovelace.String())
		assert.Equal(t, "5.500000000000", e.Order.PremiumPct.String())
		assert.Equal(t, e.Order.ReceivedValue.String(), e.AdaEquivalentDelta.String())
		require.NotNil(t, e.Order.CooldownSeconds)
		assert.Equal(t, int64(100), *e.Order.CooldownSeconds)
		total = total.Add(e.AdaEquivalentDelta.Decimal())
		orders[e.Order.OrderRef] = true
	}
	assert.True(t, received.Equal(total), "fill deltas sum to %s, want %s", total, received)
	assert.Equal(t, map[string]bool{"51#0": true, "51#1": true}, orders)

	m := aggregate.Compute(events, testScope, aggregate.Options{})
	assert.Equal(t, "5500000.000000000000", m.NetFlowLovelace.String())
	r := m.Redemption
	assert.Equal(t, 2, r.Placements)
	assert.Equal(t, 2, r.Fills)
	require.NotNil(t, r.ReimbursementPct)
	assert.Equal(t, "5.500000000000", r.ReimbursementPct.String())
	assert.Empty(t, r.ReimbursementNote)
}

func TestSplitByFaceKeepsRemainderOnLastOrder(t *testing.T) {
	shares := splitByFace(decimal.NewFromInt(100), []int64{1, 1, 1})
	require.Len(t, shares, 3)
	assert.Equal(t, "33.333333333333", shares[0].String())
	assert.Equal(t, "33.333333333333", shares[1].String())
	assert.Equal(t, "33.333333333334", shares[2].String())

	even := splitByFace(decimal.NewFromInt(10), []int64{0, 0})
	assert.Equal(t, "5", even[0].String())
	assert.Equal(t, "5", even[1].String())

	weighted := splitByFace(decimal.NewFromInt(90), []int64{20, 10})
	assert.True(t, weighted[0].Equal(decimal.NewFromInt(60)))
	assert.True(t, weighted[1].Equal(decimal.NewFromInt(30)))
}
