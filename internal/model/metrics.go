package model

// Counts tallies events per kind.
type Counts struct {
	StabilityPoolDeposits        int `json:"stability_pool_deposits"`
	StabilityPoolWithdrawals     int `json:"stability_pool_withdrawals"`
	StabilityPoolLiquidations    int `json:"stability_pool_liquidations"`
	RedemptionOrderPlacements    int `json:"redemption_order_placements"`
	RedemptionOrderFills         int `json:"redemption_order_fills"`
	RedemptionOrderCancellations int `json:"redemption_order_cancellations"`
	StakingRewardClaims          int `json:"staking_reward_claims"`
	Unclassified                 int `json:"unclassified"`
	Total                        int `json:"total"`
}

// Add counts one event.
func (c *Counts) Add(e Event) {
	c.Total++
	if e.Classification == ClassificationUnclassified {
		c.Unclassified++
	}
	switch e.Kind {
	case KindStabilityPoolDeposit:
		c.StabilityPoolDeposits++
	case KindStabilityPoolWithdrawal:
		c.StabilityPoolWithdrawals++
	case KindStabilityPoolLiquidation:
		c.StabilityPoolLiquidations++
	case KindRedemptionOrderPlacement:
		c.RedemptionOrderPlacements++
	case KindRedemptionOrderFill:
		c.RedemptionOrderFills++
	case KindRedemptionOrderCancellation:
		c.RedemptionOrderCancellations++
	case KindStakingRewardClaim:
		c.StakingRewardClaims++
	}
}

// PoolMetrics aggregates stability pool outcomes for one iAsset pool.
type PoolMetrics struct {
	Pool                     string  `json:"pool"`
	Deposits                 int     `json:"deposits"`
	Withdrawals              int     `json:"withdrawals"`
	Liquidations             int     `json:"liquidations"`
	DepositedLovelace        Figure  `json:"deposited_lovelace"`
	WithdrawnLovelace        Figure  `json:"withdrawn_lovelace"`
	IAssetBurnt              Figure  `json:"iasset_burnt"`
	AdaReceivedLovelace      Figure  `json:"ada_received_lovelace"`
	BurntValueLovelace       *Figure `json:"burnt_value_lovelace"`
	RealizedPremiumPct       *Figure `json:"realized_premium_pct"`
	RealizedPremiumNote      string  `json:"realized_premium_note,omitempty"`
	DilutionEstimate         *Figure `json:"dilution_estimate"`
	DilutionNote             string  `json:"dilution_note,omitempty"`
	FinalShare               *Figure `json:"final_share"`
	ObservedPoolTotalChanges int     `json:"observed_pool_total_changes"`
}

// RedemptionMetrics aggregates redemption order book outcomes.
type RedemptionMetrics struct {
	Placements            int     `json:"placements"`
	Fills                 int     `json:"fills"`
	Cancellations         int     `json:"cancellations"`
	PlacedLovelace        Figure  `json:"placed_lovelace"`
	FaceValueLovelace     Figure  `json:"face_value_filled_lovelace"`
	PremiumLovelace       Figure  `json:"premium_received_lovelace"`
	ReimbursementPct      *Figure `json:"reimbursement_pct"`
	ReimbursementNote     string  `json:"reimbursement_note,omitempty"`
	CooldownsObserved     int     `json:"cooldowns_observed"`
	MeanCooldownSeconds   *Figure `json:"mean_cooldown_seconds"`
	OrdersWithoutCooldown int     `json:"orders_without_cooldown"`
}

// StakingMetrics aggregates reward claims.
type StakingMetrics struct {
	Claims                int    `json:"claims"`
	LedgerRewardsLovelace Figure `json:"ledger_rewards_lovelace"`
	IndyRewardsLovelace   Figure `json:"indy_rewards_lovelace"`
	IndyRewardsQuantity   Figure `json:"indy_rewards_quantity"`
	TotalRewardsLovelace  Figure `json:"total_rewards_lovelace"`
}

// Metrics is the fixed summary computed once over the ordered event list.
type Metrics struct {
	WindowStart          *int64            `json:"window_start"`
	WindowEnd            *int64            `json:"window_end"`
	WindowDays           Figure            `json:"window_days"`
	NetFlowLovelace      Figure            `json:"net_flow_lovelace"`
	InflowLovelace       Figure            `json:"inflow_lovelace"`
	OutflowLovelace      Figure            `json:"outflow_lovelace"`
	CapitalBaseLovelace  Figure            `json:"capital_base_lovelace"`
	AnnualizedReturn     *Figure           `json:"annualized_return"`
	AnnualizedReturnNote string            `json:"annualized_return_note,omitempty"`
	Counts               Counts            `json:"counts"`
	Pools                []PoolMetrics     `json:"pools"`
	Redemption           RedemptionMetrics `json:"redemption"`
	Staking              StakingMetrics    `json:"staking"`
	Warnings             int               `json:"warnings"`
}
