package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/arb-engine/flashloan-arb-engine/pkg/gas"
	"github.com/arb-engine/flashloan-arb-engine/pkg/interfaces"
	"github.com/arb-engine/flashloan-arb-engine/pkg/profit"
	"github.com/arb-engine/flashloan-arb-engine/pkg/types"
)

// Config holds the orchestrator's stage parameters.
type Config struct {
	// RevalidationToleranceBps is the fraction of the originally observed
	// output (in basis points) the re-quoted output must still reach.
	RevalidationToleranceBps int64
	// BaseSlippageBps is the slippage tolerance before timing protection
	// pads it.
	BaseSlippageBps int64
	// GasUnits is the gas limit estimate for one flash-loan arbitrage
	// transaction.
	GasUnits uint64
	// SimulationTimeout bounds the dry-run RPC call.
	SimulationTimeout time.Duration
	// BroadcastTimeout bounds the broadcast RPC call and receipt wait.
	BroadcastTimeout time.Duration
	// BundleMaxWait is the deadline flush for a partially filled bundle.
	BundleMaxWait time.Duration
	// Contract is the on-chain flash-loan arbitrage contract.
	Contract common.Address
	// Executor is the address whose balance funds gas and receives profit.
	Executor common.Address
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() *Config {
	return &Config{
		RevalidationToleranceBps: 9500,
		BaseSlippageBps:          50,
		GasUnits:                 400000,
		SimulationTimeout:        5 * time.Second,
		BroadcastTimeout:         30 * time.Second,
		BundleMaxWait:            2 * time.Second,
	}
}

// Validate checks the configuration for construction-time errors.
func (c *Config) Validate() error {
	if c.RevalidationToleranceBps <= 0 || c.RevalidationToleranceBps > 10000 {
		return fmt.Errorf("revalidation tolerance must be in (0, 10000], got %d", c.RevalidationToleranceBps)
	}
	if c.BaseSlippageBps <= 0 {
		return fmt.Errorf("base slippage must be positive, got %d", c.BaseSlippageBps)
	}
	if c.GasUnits == 0 {
		return fmt.Errorf("gas units must be positive")
	}
	if c.SimulationTimeout <= 0 || c.BroadcastTimeout <= 0 {
		return fmt.Errorf("simulation and broadcast timeouts must be positive")
	}
	if c.BundleMaxWait <= 0 {
		return fmt.Errorf("bundle max wait must be positive, got %s", c.BundleMaxWait)
	}
	return nil
}

// Orchestrator runs one Opportunity through the gated stage sequence:
// dedup filter → revalidate → size → profit check → gas gate →
// profit-after-gas → timing → simulate → broadcast → record. Every failed
// guard settles the opportunity immediately with a non-success result and no
// retry; a superseding opportunity must be rediscovered by the scanner.
type Orchestrator struct {
	config *Config

	dedup   interfaces.DedupEngine
	risk    interfaces.RiskController
	gasCtrl interfaces.GasController
	timing  interfaces.TimingController
	sizing  *profit.Calculator
	chain   interfaces.ChainClient
	venues  map[string]interfaces.VenueAdapter
	metrics interfaces.MetricsCollector
	bundler *Bundler

	// latestCycle reports the scanner's last completed cycle so stale
	// opportunities can be cancelled before simulation.
	latestCycle func() uint64
}

// NewOrchestrator wires the pipeline stages. The controllers are injected,
// not owned: the orchestrator keeps no persistent state beyond in-flight
// opportunities.
func NewOrchestrator(
	cfg *Config,
	dedupEngine interfaces.DedupEngine,
	riskCtrl interfaces.RiskController,
	gasCtrl interfaces.GasController,
	timingCtrl interfaces.TimingController,
	sizing *profit.Calculator,
	chain interfaces.ChainClient,
	venues map[string]interfaces.VenueAdapter,
	metrics interfaces.MetricsCollector,
	latestCycle func() uint64,
) (*Orchestrator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if dedupEngine == nil || riskCtrl == nil || gasCtrl == nil || timingCtrl == nil {
		return nil, fmt.Errorf("all controllers are required")
	}
	if sizing == nil || chain == nil || metrics == nil {
		return nil, fmt.Errorf("sizing calculator, chain client and metrics are required")
	}
	if latestCycle == nil {
		latestCycle = func() uint64 { return 0 }
	}

	return &Orchestrator{
		config:      cfg,
		dedup:       dedupEngine,
		risk:        riskCtrl,
		gasCtrl:     gasCtrl,
		timing:      timingCtrl,
		sizing:      sizing,
		chain:       chain,
		venues:      venues,
		metrics:     metrics,
		bundler:     NewBundler(timingCtrl, chain, cfg.BroadcastTimeout, cfg.BundleMaxWait),
		latestCycle: latestCycle,
	}, nil
}

// Close flushes any pending bundle.
func (o *Orchestrator) Close() {
	o.bundler.Close()
}

// Process runs the opportunity through every stage and returns its terminal
// ExecutionResult. It never returns an error: every failure mode settles
// locally and nothing escapes to the scan loop.
func (o *Orchestrator) Process(ctx context.Context, opp *types.Opportunity) *types.ExecutionResult {
	started := time.Now()
	defer func() {
		o.metrics.RecordLatency("pipeline", time.Since(started))
	}()

	// DedupFiltered: the sole cross-worker mutual-exclusion point.
	if !o.dedup.Admit(opp.DedupKey()) {
		return o.settle(opp, types.StageDedupFiltered, types.FailureDuplicate, ErrDuplicate.Error())
	}

	// Trade admission: the risk circuit breaker gates everything else.
	if decision := o.risk.CanTrade(); !decision.Allowed {
		return o.settle(opp, types.StageDedupFiltered, types.FailureRiskBlocked, decision.Reason)
	}

	// Validated: re-quote the same path at current market state.
	freshOut, err := o.revalidate(ctx, opp)
	if err != nil {
		code := types.FailureRejected
		if errors.Is(err, ErrStale) {
			code = types.FailureStale
		}
		return o.settle(opp, types.StageValidated, code, err.Error())
	}
	o.metrics.RecordStageOutcome(types.StageValidated, "")

	// Sized: conservative fraction of the venue-constrained draw.
	loanAmount, err := o.sizeLoan(ctx, opp)
	if err != nil {
		return o.settle(opp, types.StageSized, types.FailureRejected, err.Error())
	}

	// ProfitChecked: gross profit at the loan size minus the flash fee.
	netAfterFee, err := o.checkProfit(opp, freshOut, loanAmount)
	if err != nil {
		return o.settle(opp, types.StageProfitChecked, types.FailureRejected, err.Error())
	}

	// GasGated: absolute, peak-hour and momentum thresholds.
	gasPriceGwei, gateErr := o.gateGas(ctx)
	if gateErr != nil {
		return o.settle(opp, types.StageGasGated, types.FailureGasBlocked, gateErr.Error())
	}

	// ProfitAfterGasChecked: still positive at the competitive bid.
	bidGwei := o.gasCtrl.CompetitiveBid(gasPriceGwei)
	check := o.gasCtrl.ProfitAfterGas(netAfterFee, bidGwei, o.config.GasUnits)
	if !check.Profitable {
		return o.settle(opp, types.StageProfitAfterGasChecked, types.FailureGasBlocked,
			fmt.Sprintf("unprofitable after gas: net %s wei", check.NetProfit.String()))
	}

	// TimingAdjusted: await the anti-frontrunning delay, then prepare.
	call, err := o.applyTiming(ctx, opp, loanAmount, bidGwei)
	if err != nil {
		return o.settle(opp, types.StageTimingAdjusted, types.FailureSuperseded, err.Error())
	}

	// Cancel if a newer scan cycle completed while we were gated: the
	// market has moved on and this instance must not reach the chain.
	if o.latestCycle() > opp.ScanCycle {
		return o.settle(opp, types.StageTimingAdjusted, types.FailureSuperseded, ErrSuperseded.Error())
	}

	// Simulated: the mandatory dry run. A failure here is free of on-chain
	// cost and always short-circuits; no path may skip this stage.
	simResult := o.simulate(ctx, opp, call)
	if simResult != nil {
		return simResult
	}

	// Broadcast: only reachable after a passing simulation.
	return o.broadcast(ctx, opp, call, check.NetProfit)
}

// revalidate re-quotes the path and enforces the tolerance band against the
// originally observed output.
func (o *Orchestrator) revalidate(ctx context.Context, opp *types.Opportunity) (*big.Int, error) {
	freshOut, err := o.walkPath(ctx, opp, opp.AmountIn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrControllerFault, err)
	}

	floor := new(big.Int).Mul(opp.ExpectedOut, big.NewInt(o.config.RevalidationToleranceBps))
	floor.Div(floor, big.NewInt(10000))
	if freshOut.Cmp(floor) < 0 {
		return nil, fmt.Errorf("%w: output %s below %d bps of observed %s",
			ErrStale, freshOut.String(), o.config.RevalidationToleranceBps, opp.ExpectedOut.String())
	}
	return freshOut, nil
}

// walkPath quotes the opportunity's path hop by hop.
func (o *Orchestrator) walkPath(ctx context.Context, opp *types.Opportunity, amountIn *big.Int) (*big.Int, error) {
	amount := new(big.Int).Set(amountIn)
	for i, venueName := range opp.Venues {
		adapter, ok := o.venues[venueName]
		if !ok {
			return nil, fmt.Errorf("unknown venue %q", venueName)
		}
		quote, err := adapter.Quote(ctx, opp.Path[i], opp.Path[i+1], amount)
		if err != nil {
			return nil, fmt.Errorf("quote %s hop %d: %w", venueName, i, err)
		}
		if quote.AmountOut == nil || quote.AmountOut.Sign() <= 0 {
			return nil, fmt.Errorf("quote %s hop %d: empty output", venueName, i)
		}
		amount = quote.AmountOut
	}
	return amount, nil
}

// sizeLoan derives the loan from the tightest liquidity along the path.
func (o *Orchestrator) sizeLoan(ctx context.Context, opp *types.Opportunity) (*big.Int, error) {
	var minReserves *big.Int
	for i, venueName := range opp.Venues {
		adapter, ok := o.venues[venueName]
		if !ok {
			return nil, fmt.Errorf("%w: unknown venue %q", ErrControllerFault, venueName)
		}
		reserves, err := adapter.Liquidity(ctx, opp.Path[i], opp.Path[i+1])
		if err != nil {
			return nil, fmt.Errorf("%w: liquidity %s hop %d: %v", ErrControllerFault, venueName, i, err)
		}
		if minReserves == nil || reserves.Cmp(minReserves) < 0 {
			minReserves = reserves
		}
	}

	loan := o.sizing.SizeLoan(minReserves)
	if loan.Sign() <= 0 {
		return nil, fmt.Errorf("%w: insufficient liquidity to size loan", ErrGateRejected)
	}
	return loan, nil
}

// checkProfit scales the revalidated profit rate to the loan amount and
// subtracts the flash-loan fee.
func (o *Orchestrator) checkProfit(opp *types.Opportunity, freshOut, loanAmount *big.Int) (*big.Int, error) {
	// Revalidated profit rate in bps relative to the probe amount.
	grossAtProbe := new(big.Int).Sub(freshOut, opp.AmountIn)
	rateBps := new(big.Int).Mul(grossAtProbe, big.NewInt(10000))
	rateBps.Div(rateBps, opp.AmountIn)

	grossAtLoan := new(big.Int).Mul(loanAmount, rateBps)
	grossAtLoan.Div(grossAtLoan, big.NewInt(10000))

	net := profit.NetProfit(grossAtLoan, loanAmount)
	if net.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s wei gross does not cover the flash-loan fee",
			ErrGateRejected, grossAtLoan.String())
	}
	return net, nil
}

// gateGas polls the current gas price, feeds the controller and applies the
// gas gate. Returns the current price in gwei on success.
func (o *Orchestrator) gateGas(ctx context.Context) (float64, error) {
	priceWei, err := o.chain.CurrentGasPrice(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: gas price query: %v", ErrControllerFault, err)
	}

	gwei := gas.WeiToGwei(priceWei)
	o.gasCtrl.Observe(gwei)
	o.metrics.UpdateGasPrice(gwei)

	trend := o.gasCtrl.ClassifyTrend()
	if decision := o.gasCtrl.Gate(gwei, trend); !decision.Trade {
		return 0, fmt.Errorf("%w: %s", ErrGateRejected, decision.Reason)
	}
	return gwei, nil
}

// applyTiming awaits the anti-frontrunning delay and prepares the call.
func (o *Orchestrator) applyTiming(ctx context.Context, opp *types.Opportunity, loanAmount *big.Int, bidGwei float64) (*types.FlashLoanCall, error) {
	delay := o.timing.ComputeDelay(time.Now())
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: cancelled during timing delay", ErrSuperseded)
		}
	}

	now := time.Now()
	call := &types.FlashLoanCall{
		OpportunityID: opp.ID,
		Contract:      o.config.Contract,
		Asset:         opp.Path[0],
		Amount:        loanAmount,
		Path:          opp.Path,
		Venues:        opp.Venues,
		SlippageBps:   o.timing.ProtectSlippage(o.config.BaseSlippageBps),
		GasPrice:      gas.GweiToWei(bidGwei),
		GasLimit:      o.config.GasUnits,
		PreparedAt:    now,
	}
	o.timing.MarkTradePrepared(now)
	return call, nil
}

// simulate performs the dry run. A non-nil return is the settled failure
// result; nil means the simulation passed and broadcast may proceed.
func (o *Orchestrator) simulate(ctx context.Context, opp *types.Opportunity, call *types.FlashLoanCall) *types.ExecutionResult {
	simCtx, cancel := context.WithTimeout(ctx, o.config.SimulationTimeout)
	defer cancel()

	simResult, err := o.chain.Simulate(simCtx, call)
	if err == nil && simResult != nil && simResult.Success {
		o.metrics.RecordStageOutcome(types.StageSimulated, "")
		return nil
	}

	reason := ErrSimulationFailed.Error()
	if err != nil {
		reason = fmt.Sprintf("%s: %v", reason, err)
	} else if simResult != nil && simResult.RevertReason != "" {
		reason = fmt.Sprintf("%s: %s", reason, simResult.RevertReason)
	}

	// Zero-cost semantics: the dry run spent nothing on chain, so the
	// failure counts toward consecutive failures but never as a loss.
	o.risk.RecordTrade(false, big.NewInt(0), nil)

	result := o.settle(opp, types.StageSimulated, types.FailureExecution, reason)
	result.Simulated = true
	return result
}

// broadcast sends the call through the bundler and records the terminal
// outcome with the risk controller exactly once.
func (o *Orchestrator) broadcast(ctx context.Context, opp *types.Opportunity, call *types.FlashLoanCall, expectedNet *big.Int) *types.ExecutionResult {
	receipt, err := o.bundler.Submit(ctx, call)

	newBalance := o.queryBalance()

	if err != nil || receipt == nil || !receipt.Success {
		// A timeout may still have landed on chain, so the recorded loss
		// is the realized spend when known and the worst case otherwise.
		loss := call.GasCost()
		if receipt != nil {
			loss = receipt.GasSpent()
		}
		o.risk.RecordTrade(false, new(big.Int).Neg(loss), newBalance)

		reason := ErrBroadcastFailed.Error()
		if err != nil {
			reason = fmt.Sprintf("%s: %v", reason, err)
		}
		result := o.settle(opp, types.StageBroadcast, types.FailureExecution, reason)
		result.Simulated = true
		result.SimulationPassed = true
		result.Broadcast = true
		if receipt != nil {
			hash := receipt.TxHash
			result.TxHash = &hash
		}
		result.ProfitOrLoss = new(big.Int).Neg(loss)
		return result
	}

	realized := new(big.Int).Sub(expectedNet, receipt.GasSpent())
	// ProfitAfterGas already charged the estimated cost; add it back and
	// subtract the realized spend instead.
	estimatedCost := new(big.Int).Mul(call.GasPrice, new(big.Int).SetUint64(call.GasLimit))
	realized.Add(realized, estimatedCost)

	// Prefer the contract-reported figure when the receipt carries the
	// execution event; the estimate above only covers the quote-based view.
	if receipt.RealizedProfit != nil {
		realized = new(big.Int).Sub(receipt.RealizedProfit, receipt.GasSpent())
	}

	o.risk.RecordTrade(true, realized, newBalance)

	hash := receipt.TxHash
	result := &types.ExecutionResult{
		OpportunityID:    opp.ID,
		Stage:            types.StageSettled,
		Simulated:        true,
		SimulationPassed: true,
		Broadcast:        true,
		Success:          true,
		ProfitOrLoss:     realized,
		TxHash:           &hash,
		CompletedAt:      time.Now(),
	}
	o.metrics.RecordResult(result)
	log.Printf("[pipeline] executed %s profit=%s wei tx=%s", opp.ID, realized.String(), hash.Hex())
	return result
}

// queryBalance fetches the executor balance for risk accounting. A query
// failure is logged and leaves the controller's balance untouched.
func (o *Orchestrator) queryBalance() *big.Int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	balance, err := o.chain.BalanceOf(ctx, o.config.Executor)
	if err != nil {
		log.Printf("[pipeline] balance query failed: %v", err)
		return nil
	}
	o.metrics.UpdateBalance(weiToFloat(balance))
	return balance
}

// settle builds the non-success terminal result and records it. Every
// failure transitions directly to Settled; the rejecting stage is kept in
// FailedAt so the result shape matches the success path.
func (o *Orchestrator) settle(opp *types.Opportunity, failedAt types.Stage, code types.FailureCode, reason string) *types.ExecutionResult {
	result := &types.ExecutionResult{
		OpportunityID: opp.ID,
		Stage:         types.StageSettled,
		FailedAt:      failedAt,
		Code:          code,
		Success:       false,
		ProfitOrLoss:  big.NewInt(0),
		Reason:        reason,
		CompletedAt:   time.Now(),
	}
	o.metrics.RecordResult(result)
	return result
}

func weiToFloat(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(wei).Float64()
	return f
}
